// Copyright (c) 2025 Keyward Labs
//
// This file is part of go-fido-enroll.
//
// go-fido-enroll is licensed under the GNU Affero General Public License v3.0.
// See the LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package enroll

import (
	"context"
)

// ChallengeStore manages pending ceremony state keyed by the authenticated
// session. Implementations must make Consume an atomic check-and-remove:
// of two near-simultaneous verification attempts for one session, exactly one
// may obtain the pending ceremony.
type ChallengeStore interface {
	// Begin generates a fresh ceremony (new ceremony ID, new challenge) for
	// the session, overwriting any previously pending ceremony. At most one
	// pending ceremony exists per session.
	Begin(ctx context.Context, sessionID string) (*PendingCeremony, error)

	// Consume retrieves and removes the pending ceremony for the session in
	// one indivisible step. Returns ErrCeremonyExpired if none exists
	// (expired, already consumed, or never started). The removal happens
	// regardless of how downstream verification turns out: a failed ceremony
	// always restarts from Begin.
	Consume(ctx context.Context, sessionID string) (*PendingCeremony, error)
}

// CredentialStore manages durable security-key credential persistence.
type CredentialStore interface {
	// Insert stores a new credential. The existence check and the write are
	// one atomic compare-and-insert on the credential ID: a collision with
	// any account's credential returns ErrDuplicateCredential and writes
	// nothing.
	Insert(ctx context.Context, record *CredentialRecord) error

	// GetByCredentialID retrieves a credential by its ID, regardless of
	// which account owns it. Returns ErrCredentialNotFound if absent.
	GetByCredentialID(ctx context.Context, credentialID []byte) (*CredentialRecord, error)

	// GetByUserID retrieves all credentials for an account. Returns an empty
	// slice if the account has none.
	GetByUserID(ctx context.Context, userID string) ([]*CredentialRecord, error)

	// Delete removes a credential by its ID. Returns ErrCredentialNotFound
	// if the credential does not exist.
	Delete(ctx context.Context, credentialID []byte) error

	// DeleteByUserID removes all credentials for an account.
	DeleteByUserID(ctx context.Context, userID string) error
}

// TokenGenerator is an optional interface for producing a confirmation token
// after a successful enrollment. If not provided, the service returns the
// credential's group ID.
type TokenGenerator interface {
	// GenerateToken creates a token acknowledging the new credential.
	GenerateToken(ctx context.Context, record *CredentialRecord) (string, error)
}
