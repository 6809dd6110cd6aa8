// Copyright (c) 2025 Keyward Labs
//
// This file is part of go-fido-enroll.
//
// go-fido-enroll is licensed under the GNU Affero General Public License v3.0.
// See the LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package enroll

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/keyward/go-fido-enroll/pkg/logging"
)

// RegistrationPayload is the wire envelope the client posts back after the
// authenticator ceremony: the ceremony identifier echoed from the options
// round trip and the raw credential creation response.
type RegistrationPayload struct {
	CeremonyID string          `json:"ceremony_id"`
	Credential json.RawMessage `json:"credential"`
}

// AttestationVerifier validates a client's attestation response against the
// pending ceremony and the relying party's deployment constants, and extracts
// the credential to be persisted.
type AttestationVerifier struct {
	webauthn *webauthn.WebAuthn
	config   *Config
	store    ChallengeStore
	creds    CredentialStore
	audit    *logging.Logger
}

// NewAttestationVerifier creates a verifier. The webauthn instance must have
// been built from the same Config (see Config.ToWebAuthnConfig).
func NewAttestationVerifier(wa *webauthn.WebAuthn, config *Config, store ChallengeStore, creds CredentialStore, audit *logging.Logger) *AttestationVerifier {
	if audit == nil {
		audit = logging.NewAuditLogger()
	}
	return &AttestationVerifier{
		webauthn: wa,
		config:   config,
		store:    store,
		creds:    creds,
		audit:    audit,
	}
}

// Verify runs the registration ceremony's verification steps in order. Each
// step is a distinct failure point; all failures are terminal for the attempt
// and the user restarts from BeginRegistration.
//
// The returned CredentialRecord is not yet persisted: the caller owns the
// durable compare-and-insert.
func (v *AttestationVerifier) Verify(ctx context.Context, sessionID string, user Registrant, payload []byte) (*CredentialRecord, error) {
	// Parsing happens before the pending ceremony is touched: a garbled
	// payload must stay retryable against the same challenge.
	envelope, response, err := parsePayload(payload)
	if err != nil {
		return nil, err
	}

	// Consuming is destructive no matter what happens downstream. Exactly one
	// of two concurrent attempts for the same session can get past this line.
	ceremony, err := v.store.Consume(ctx, sessionID)
	if err != nil {
		return nil, WrapError("consume ceremony", err)
	}

	// A response built for a superseded ceremony is indistinguishable from an
	// expired one: that ceremony's state no longer exists.
	if envelope.CeremonyID != ceremony.ID {
		return nil, NewError("consume ceremony", ErrCeremonyExpired)
	}

	clientData := response.Response.CollectedClientData

	rpIDHash := sha256.Sum256([]byte(v.config.RPID))
	if clientData.Origin != v.config.ServiceURL ||
		!bytes.Equal(response.Response.AttestationObject.AuthData.RPIDHash, rpIDHash[:]) {
		v.audit.Warn("registration origin mismatch",
			"session_id", sessionID,
			"origin", clientData.Origin,
			"expected_origin", v.config.ServiceURL)
		return nil, NewError("verify origin", ErrOriginMismatch)
	}

	if subtle.ConstantTimeCompare([]byte(clientData.Challenge), []byte(ceremony.Challenge)) != 1 {
		return nil, NewError("verify challenge", ErrChallengeMismatch)
	}

	// Structural verification of the attestation statement. Policy requests
	// "none" attestation, so self and none formats pass on signature
	// structure alone; no trust root is consulted.
	// CredParams must mirror the algorithms offered at begin time; the
	// library's algorithm check accepts nothing on an empty list.
	session := webauthn.SessionData{
		Challenge:  ceremony.Challenge,
		UserID:     ceremony.UserHandle,
		CredParams: defaultCredentialParameters(),
	}
	credential, err := v.webauthn.CreateCredential(newCeremonyUser(user, ceremony.UserHandle), session, response)
	if err != nil {
		return nil, WrapError("verify attestation", fmt.Errorf("%w: %v", ErrAttestationInvalid, err))
	}

	// Credential IDs are unique across the whole system. A collision with any
	// account is fatal for this attempt; another user's record is never
	// overwritten.
	if _, err := v.creds.GetByCredentialID(ctx, credential.ID); err == nil {
		v.audit.Warn("duplicate credential id on registration",
			"session_id", sessionID,
			"user_id", user.UserID(),
			"credential_id", base64.RawURLEncoding.EncodeToString(credential.ID))
		return nil, NewError("check credential uniqueness", ErrDuplicateCredential)
	} else if !IsCredentialNotFound(err) {
		return nil, WrapError("check credential uniqueness", err)
	}

	groupID, err := v.groupIDFor(ctx, user, ceremony)
	if err != nil {
		return nil, WrapError("resolve group id", err)
	}

	return FromWebAuthnCredential(user.UserID(), groupID, credential), nil
}

// parsePayload decodes the envelope and the credential creation response.
// Any failure here is ErrMalformedPayload.
func parsePayload(payload []byte) (*RegistrationPayload, *protocol.ParsedCredentialCreationData, error) {
	var envelope RegistrationPayload
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, nil, NewError("parse payload", ErrMalformedPayload)
	}
	if envelope.CeremonyID == "" || len(envelope.Credential) == 0 {
		return nil, nil, NewError("parse payload", ErrMalformedPayload)
	}

	response, err := protocol.ParseCredentialCreationResponseBytes(envelope.Credential)
	if err != nil {
		return nil, nil, NewError("parse credential", ErrMalformedPayload)
	}

	if response.Response.CollectedClientData.Type != "webauthn.create" {
		return nil, nil, NewError("parse credential", ErrMalformedPayload)
	}

	return &envelope, response, nil
}

// groupIDFor returns the account's stable credential grouping identifier:
// the group of an already-registered credential when one exists, otherwise
// this ceremony's ID becomes the group.
func (v *AttestationVerifier) groupIDFor(ctx context.Context, user Registrant, ceremony *PendingCeremony) (string, error) {
	existing, err := v.creds.GetByUserID(ctx, user.UserID())
	if err != nil {
		return "", err
	}
	if len(existing) > 0 {
		return existing[0].GroupID, nil
	}
	return ceremony.ID, nil
}
