// Copyright (c) 2025 Keyward Labs
//
// This file is part of go-fido-enroll.
//
// go-fido-enroll is licensed under the GNU Affero General Public License v3.0.
// See the LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package enroll

import (
	"errors"
	"fmt"
)

// Sentinel errors for the registration ceremony. Every one of them is
// recoverable from the user's perspective: the ceremony is restarted from
// BeginRegistration. None of them leaves partial durable state behind.
var (
	// ErrMalformedPayload is returned when the client response cannot be
	// parsed into a credential creation response. The pending ceremony is
	// left untouched.
	ErrMalformedPayload = errors.New("malformed registration payload")

	// ErrCeremonyExpired is returned when no pending ceremony exists for the
	// session, or the response targets a ceremony that was superseded by a
	// later BeginRegistration.
	ErrCeremonyExpired = errors.New("registration ceremony expired")

	// ErrOriginMismatch is returned when the response's origin or relying
	// party identifier does not match the deployment configuration. This is
	// security-relevant and is reported to the audit channel.
	ErrOriginMismatch = errors.New("origin or relying party mismatch")

	// ErrChallengeMismatch is returned when the challenge echoed by the
	// client differs from the one issued for the consumed ceremony.
	ErrChallengeMismatch = errors.New("challenge mismatch")

	// ErrAttestationInvalid is returned when the attestation statement fails
	// structural verification.
	ErrAttestationInvalid = errors.New("invalid attestation")

	// ErrDuplicateCredential is returned when the credential ID is already
	// registered, for this or any other account. Security-relevant.
	ErrDuplicateCredential = errors.New("credential already registered")

	// ErrCredentialNotFound is returned when a credential cannot be found.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrNotConfigured is returned when the service is not properly configured.
	ErrNotConfigured = errors.New("enrollment service not configured")
)

// CeremonyError wraps an error with the operation that produced it.
type CeremonyError struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error returns the error message.
func (e *CeremonyError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *CeremonyError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *CeremonyError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new CeremonyError with the given operation and error.
func NewError(op string, err error) error {
	return &CeremonyError{
		Op:  op,
		Err: err,
	}
}

// WrapError wraps an error with an operation name if it's not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(op, err)
}

// IsCeremonyExpired returns true if the error indicates the pending ceremony
// was missing, consumed, or superseded.
func IsCeremonyExpired(err error) bool {
	return errors.Is(err, ErrCeremonyExpired)
}

// IsDuplicateCredential returns true if the error indicates a credential ID
// collision.
func IsDuplicateCredential(err error) bool {
	return errors.Is(err, ErrDuplicateCredential)
}

// IsCredentialNotFound returns true if the error indicates a credential was
// not found.
func IsCredentialNotFound(err error) bool {
	return errors.Is(err, ErrCredentialNotFound)
}

// IsSecurityRelevant returns true for failures that may indicate spoofing or
// credential reuse across accounts and therefore belong on the audit channel.
func IsSecurityRelevant(err error) bool {
	return errors.Is(err, ErrOriginMismatch) || errors.Is(err, ErrDuplicateCredential)
}
