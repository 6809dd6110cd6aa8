// Copyright (c) 2025 Keyward Labs
//
// This file is part of go-fido-enroll.
//
// go-fido-enroll is licensed under the GNU Affero General Public License v3.0.
// See the LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package http

// HeaderSessionID is the header carrying the authenticated session ID.
const HeaderSessionID = "X-Session-Id"

// HeaderCeremonyID is the header carrying the ceremony ID issued on begin.
// The client echoes it inside the finish envelope.
const HeaderCeremonyID = "X-Ceremony-Id"

// EnrollResponse is the response after a successful registration.
type EnrollResponse struct {
	// Token is the enrollment confirmation token (JWT or the group ID).
	Token string `json:"token"`

	// GroupID is the account's credential grouping identifier.
	GroupID string `json:"group_id"`

	// CredentialID is the base64url-encoded credential ID.
	CredentialID string `json:"credential_id"`
}

// StatusResponse is the response for the enrollment status check.
type StatusResponse struct {
	// Enrolled indicates whether the account has registered security keys.
	Enrolled bool `json:"enrolled"`

	// Count is the number of registered security keys.
	Count int `json:"count"`
}

// ErrorResponse is the response format for errors.
type ErrorResponse struct {
	// Error is the error code.
	Error string `json:"error"`

	// Message is a human-readable error message.
	Message string `json:"message"`
}

// Error codes returned in ErrorResponse.
const (
	ErrorCodeInvalidRequest      = "invalid_request"
	ErrorCodeInvalidSession      = "invalid_session"
	ErrorCodeCeremonyExpired     = "ceremony_expired"
	ErrorCodeVerificationFailed  = "verification_failed"
	ErrorCodeDuplicateCredential = "duplicate_credential"
	ErrorCodeInternalError       = "internal_error"
)

// retryMessage is the user-facing text for every verification failure. The
// precise cause goes to the operational and audit logs, never to the client.
const retryMessage = "registration failed, please retry"
