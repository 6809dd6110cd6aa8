// Copyright (c) 2025 Keyward Labs
//
// This file is part of go-fido-enroll.
//
// go-fido-enroll is licensed under the GNU Affero General Public License v3.0.
// See the LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package enroll

import (
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// AllTransports is the full set of transport hints attached to every entry of
// the exclusion list. The server cannot know how an already-registered key is
// connected, so it hints all of them.
var AllTransports = []protocol.AuthenticatorTransport{
	protocol.USB,
	protocol.NFC,
	protocol.BLE,
	protocol.Internal,
}

// Registrant is the authenticated account a security key is being enrolled
// for. Applications bring their own user model and implement this interface.
type Registrant interface {
	// UserID returns the account identifier the credential will belong to.
	UserID() string

	// Email returns the account's contact address. It doubles as the
	// ceremony's user name and as the display name fallback.
	Email() string

	// Name returns the account's friendly name. May be empty.
	Name() string
}

// Account is a minimal Registrant implementation for applications without
// their own user model.
type Account struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email"`
	DisplayName  string `json:"display_name,omitempty"`
}

// UserID returns the account identifier.
func (a Account) UserID() string { return a.ID }

// Email returns the account's contact address.
func (a Account) Email() string { return a.EmailAddress }

// Name returns the account's friendly name.
func (a Account) Name() string { return a.DisplayName }

// PendingCeremony is the transient state of one in-flight registration
// attempt. At most one exists per session; a later BeginRegistration for the
// same session supersedes it.
type PendingCeremony struct {
	// ID is an opaque identifier generated fresh per attempt. It is not the
	// account's permanent identifier.
	ID string `json:"id"`

	// SessionID binds the ceremony to the authenticated session that
	// started it.
	SessionID string `json:"session_id"`

	// Challenge is the single-use random challenge, base64url-encoded
	// without padding.
	Challenge string `json:"challenge"`

	// UserHandle is the opaque user identifier sent to the authenticator in
	// place of the account identifier.
	UserHandle []byte `json:"user_handle"`

	// CreatedAt is when the ceremony was issued.
	CreatedAt time.Time `json:"created_at"`
}

// CredentialRecord is the durable entity persisted after a successful
// verification. It is a value: the verifier constructs it once and nothing
// mutates it afterwards.
type CredentialRecord struct {
	// CredentialID is the identifier assigned by the authenticator. Unique
	// across the whole system, never just per account.
	CredentialID []byte `json:"credential_id"`

	// UserID is the account this credential authenticates.
	UserID string `json:"user_id"`

	// GroupID correlates all of one account's credentials without linking
	// to the primary identity. Pinned from the ceremony ID of the account's
	// first successful enrollment.
	GroupID string `json:"group_id"`

	// PublicKey is the credential's public key in COSE format, stored
	// verbatim as returned by verification.
	PublicKey []byte `json:"public_key"`

	// AttestationType indicates the type of attestation used.
	AttestationType string `json:"attestation_type"`

	// Transport lists the transports reported by the authenticator.
	Transport []protocol.AuthenticatorTransport `json:"transport,omitempty"`

	// Flags contains authenticator capability flags.
	Flags CredentialFlags `json:"flags"`

	// AAGUID is the authenticator model identifier.
	AAGUID []byte `json:"aaguid"`

	// SignCount is the signature counter reported at registration time.
	// Authenticators without a counter legitimately report 0.
	SignCount uint32 `json:"sign_count"`

	// CreatedAt is when the credential was registered.
	CreatedAt time.Time `json:"created_at"`
}

// CredentialFlags contains authenticator capability flags.
type CredentialFlags struct {
	// UserPresent indicates the user was present during the operation.
	UserPresent bool `json:"user_present"`

	// UserVerified indicates the user was verified (e.g., biometric, PIN).
	UserVerified bool `json:"user_verified"`

	// BackupEligible indicates the credential can be backed up.
	BackupEligible bool `json:"backup_eligible"`

	// BackupState indicates the credential is currently backed up.
	BackupState bool `json:"backup_state"`
}

// Descriptor returns the exclusion-list entry for this credential.
func (c *CredentialRecord) Descriptor() protocol.CredentialDescriptor {
	return protocol.CredentialDescriptor{
		Type:         protocol.PublicKeyCredentialType,
		CredentialID: c.CredentialID,
		Transport:    AllTransports,
	}
}

// FromWebAuthnCredential creates a CredentialRecord from the go-webauthn
// library's credential type.
func FromWebAuthnCredential(userID, groupID string, wc *webauthn.Credential) *CredentialRecord {
	return &CredentialRecord{
		CredentialID:    wc.ID,
		UserID:          userID,
		GroupID:         groupID,
		PublicKey:       wc.PublicKey,
		AttestationType: wc.AttestationType,
		Transport:       wc.Transport,
		Flags: CredentialFlags{
			UserPresent:    wc.Flags.UserPresent,
			UserVerified:   wc.Flags.UserVerified,
			BackupEligible: wc.Flags.BackupEligible,
			BackupState:    wc.Flags.BackupState,
		},
		AAGUID:    wc.Authenticator.AAGUID,
		SignCount: wc.Authenticator.SignCount,
		CreatedAt: time.Now().UTC(),
	}
}

// ceremonyUser adapts a Registrant plus the ceremony's opaque user handle to
// the go-webauthn User interface. The handle, not the account identifier, is
// what the authenticator sees.
type ceremonyUser struct {
	handle      []byte
	name        string
	displayName string
}

func newCeremonyUser(user Registrant, handle []byte) *ceremonyUser {
	displayName := user.Name()
	if displayName == "" {
		displayName = user.Email()
	}
	return &ceremonyUser{
		handle:      handle,
		name:        user.Email(),
		displayName: displayName,
	}
}

// WebAuthnID returns the ceremony's opaque user handle.
func (u *ceremonyUser) WebAuthnID() []byte {
	return u.handle
}

// WebAuthnName returns the account's contact address.
func (u *ceremonyUser) WebAuthnName() string {
	return u.name
}

// WebAuthnDisplayName returns the friendly name, or the contact address when
// none is set.
func (u *ceremonyUser) WebAuthnDisplayName() string {
	return u.displayName
}

// WebAuthnCredentials returns nil; exclusion lists are built from the
// credential store, not from the user object.
func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	return nil
}
