// Copyright (c) 2025 Keyward Labs
//
// This file is part of go-fido-enroll.
//
// go-fido-enroll is licensed under the GNU Affero General Public License v3.0.
// See the LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package enroll

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/keyward/go-fido-enroll/pkg/logging"
)

// Service runs the security-key registration ceremony end to end: it issues
// options backed by a pending ceremony, verifies the attestation response,
// and persists the resulting credential under a compare-and-insert contract.
type Service struct {
	webauthn   *webauthn.WebAuthn
	config     *Config
	options    *OptionsBuilder
	verifier   *AttestationVerifier
	challenges ChallengeStore
	creds      CredentialStore
	tokens     TokenGenerator // optional
	logger     *logging.Logger
	audit      *logging.Logger
	configured bool
}

// ServiceParams contains dependencies for creating an enrollment service.
type ServiceParams struct {
	// Config carries the relying party's deployment constants (required).
	Config *Config

	// ChallengeStore holds pending ceremony state (required).
	ChallengeStore ChallengeStore

	// CredentialStore is the durable credential persistence (required).
	CredentialStore CredentialStore

	// TokenGenerator optionally signs a confirmation token after a
	// successful enrollment. If nil, the credential's group ID is returned.
	TokenGenerator TokenGenerator

	// Logger is the operational log channel. Defaults to logging.DefaultLogger.
	Logger *logging.Logger

	// AuditLogger receives security-relevant events. Defaults to
	// logging.NewAuditLogger.
	AuditLogger *logging.Logger
}

// NewService creates a new enrollment service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.ChallengeStore == nil {
		return nil, fmt.Errorf("challenge store is required")
	}
	if params.CredentialStore == nil {
		return nil, fmt.Errorf("credential store is required")
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	wa, err := webauthn.New(params.Config.ToWebAuthnConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create webauthn instance: %w", err)
	}

	logger := params.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	audit := params.AuditLogger
	if audit == nil {
		audit = logging.NewAuditLogger()
	}

	return &Service{
		webauthn:   wa,
		config:     params.Config,
		options:    NewOptionsBuilder(params.Config),
		verifier:   NewAttestationVerifier(wa, params.Config, params.ChallengeStore, params.CredentialStore, audit),
		challenges: params.ChallengeStore,
		creds:      params.CredentialStore,
		tokens:     params.TokenGenerator,
		logger:     logger,
		audit:      audit,
		configured: true,
	}, nil
}

// BeginRegistration starts the registration ceremony for the authenticated
// session. Any ceremony already pending for the session is superseded.
// Returns the options to be serialized verbatim for the client and the new
// ceremony's ID, which the client must echo back on finish.
func (s *Service) BeginRegistration(ctx context.Context, sessionID string, user Registrant) (*protocol.CredentialCreation, string, error) {
	if !s.configured {
		return nil, "", ErrNotConfigured
	}
	if sessionID == "" {
		return nil, "", NewError("begin registration", fmt.Errorf("session id is required"))
	}

	existing, err := s.creds.GetByUserID(ctx, user.UserID())
	if err != nil {
		return nil, "", WrapError("get credentials", err)
	}

	ceremony, err := s.challenges.Begin(ctx, sessionID)
	if err != nil {
		recordCeremony(PhaseBegin, StatusError)
		return nil, "", WrapError("begin ceremony", err)
	}

	options, err := s.options.Build(user, ceremony, existing)
	if err != nil {
		recordCeremony(PhaseBegin, StatusError)
		return nil, "", err
	}

	recordCeremony(PhaseBegin, StatusSuccess)
	return options, ceremony.ID, nil
}

// FinishRegistration completes the ceremony: it verifies the client's
// response and durably inserts the new credential. Returns the persisted
// record and a confirmation token.
//
// Every failure is terminal for the attempt. The user restarts from
// BeginRegistration; no partial state is left behind.
func (s *Service) FinishRegistration(ctx context.Context, sessionID string, user Registrant, payload []byte) (*CredentialRecord, string, error) {
	if !s.configured {
		return nil, "", ErrNotConfigured
	}

	record, err := s.verifier.Verify(ctx, sessionID, user, payload)
	if err != nil {
		recordFailure(err)
		return nil, "", err
	}

	// The store's compare-and-insert closes the race two concurrent
	// registrations of the same credential ID would otherwise win together.
	if err := s.creds.Insert(ctx, record); err != nil {
		recordFailure(err)
		if IsDuplicateCredential(err) {
			s.audit.Warn("concurrent duplicate credential insert",
				"user_id", user.UserID(),
				"credential_id", base64.RawURLEncoding.EncodeToString(record.CredentialID))
			return nil, "", WrapError("insert credential", err)
		}
		return nil, "", WrapError("insert credential", err)
	}

	token, err := s.generateToken(ctx, record)
	if err != nil {
		return nil, "", WrapError("generate token", err)
	}

	recordCeremony(PhaseFinish, StatusSuccess)
	s.logger.Info("security key registered",
		"user_id", record.UserID,
		"group_id", record.GroupID,
		"sign_count", record.SignCount)

	return record, token, nil
}

// IsEnrolled checks if an account has any registered security keys.
func (s *Service) IsEnrolled(ctx context.Context, userID string) (bool, error) {
	if !s.configured {
		return false, ErrNotConfigured
	}

	records, err := s.creds.GetByUserID(ctx, userID)
	if err != nil {
		return false, WrapError("get credentials", err)
	}
	return len(records) > 0, nil
}

// Credentials retrieves all registered credentials for an account.
func (s *Service) Credentials(ctx context.Context, userID string) ([]*CredentialRecord, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	return s.creds.GetByUserID(ctx, userID)
}

// DeleteCredential removes a credential.
func (s *Service) DeleteCredential(ctx context.Context, credentialID []byte) error {
	if !s.configured {
		return ErrNotConfigured
	}
	return s.creds.Delete(ctx, credentialID)
}

// DeleteUserCredentials removes all credentials for an account.
func (s *Service) DeleteUserCredentials(ctx context.Context, userID string) error {
	if !s.configured {
		return ErrNotConfigured
	}
	return s.creds.DeleteByUserID(ctx, userID)
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}

// generateToken produces the post-enrollment confirmation token.
func (s *Service) generateToken(ctx context.Context, record *CredentialRecord) (string, error) {
	if s.tokens != nil {
		return s.tokens.GenerateToken(ctx, record)
	}
	return record.GroupID, nil
}
