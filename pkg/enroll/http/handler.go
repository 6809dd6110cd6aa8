// Copyright (c) 2025 Keyward Labs
//
// This file is part of go-fido-enroll.
//
// go-fido-enroll is licensed under the GNU Affero General Public License v3.0.
// See the LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/keyward/go-fido-enroll/pkg/enroll"
)

// maxPayloadBytes bounds the finish request body. Attestation responses are
// small; anything larger is garbage.
const maxPayloadBytes = 1 << 20

// RegistrantResolver maps an authenticated session to the account it belongs
// to. The surrounding application owns authentication; these handlers only
// trust what the resolver tells them.
type RegistrantResolver interface {
	// ResolveSession returns the account behind the session, or an error if
	// the session is unknown or no longer valid.
	ResolveSession(ctx context.Context, sessionID string) (enroll.Registrant, error)
}

// ErrUnknownSession is returned by resolvers for sessions they cannot map to
// an account.
var ErrUnknownSession = errors.New("unknown session")

// StaticResolver is a fixed session-to-account map. This is intended for
// development and testing only.
type StaticResolver struct {
	mu       sync.RWMutex
	sessions map[string]enroll.Registrant
}

// NewStaticResolver creates an empty static resolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{sessions: make(map[string]enroll.Registrant)}
}

// Add registers a session for an account.
func (r *StaticResolver) Add(sessionID string, user enroll.Registrant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = user
}

// ResolveSession implements RegistrantResolver.
func (r *StaticResolver) ResolveSession(ctx context.Context, sessionID string) (enroll.Registrant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrUnknownSession
	}
	return user, nil
}

// Handler provides HTTP handlers for the security-key enrollment ceremony.
// These handlers can be mounted on any HTTP router.
type Handler struct {
	service  *enroll.Service
	resolver RegistrantResolver
	logger   *slog.Logger
}

// NewHandler creates a new enrollment HTTP handler.
func NewHandler(service *enroll.Service, resolver RegistrantResolver) *Handler {
	return &Handler{
		service:  service,
		resolver: resolver,
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger for the handler.
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	h.logger = logger
	return h
}

// BeginEnrollment handles POST /enroll/begin
//
// Header: X-Session-Id (authenticated session)
// Response: WebAuthn PublicKeyCredentialCreationOptions, serialized verbatim
// Header: X-Ceremony-Id (echoed back inside the finish envelope)
func (h *Handler) BeginEnrollment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	user, sessionID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	options, ceremonyID, err := h.service.BeginRegistration(r.Context(), sessionID, user)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.Header().Set(HeaderCeremonyID, ceremonyID)
	h.writeJSON(w, http.StatusOK, options)
}

// FinishEnrollment handles POST /enroll/finish
//
// Header: X-Session-Id (authenticated session)
// Request body: {"ceremony_id": "...", "credential": <attestation response>}
// Response: EnrollResponse with token, group ID and credential ID
func (h *Handler) FinishEnrollment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	user, sessionID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "unreadable request body")
		return
	}

	record, token, err := h.service.FinishRegistration(r.Context(), sessionID, user, payload)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, EnrollResponse{
		Token:        token,
		GroupID:      record.GroupID,
		CredentialID: base64.RawURLEncoding.EncodeToString(record.CredentialID),
	})
}

// EnrollmentStatus handles GET /enroll/status
//
// Header: X-Session-Id (authenticated session)
// Response: {"enrolled": true/false, "count": N}
func (h *Handler) EnrollmentStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	user, _, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	records, err := h.service.Credentials(r.Context(), user.UserID())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, StatusResponse{
		Enrolled: len(records) > 0,
		Count:    len(records),
	})
}

// authenticate extracts the session header and resolves it to an account.
// A false return means the error response was already written.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (enroll.Registrant, string, bool) {
	sessionID := r.Header.Get(HeaderSessionID)
	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidSession, "session ID header is required")
		return nil, "", false
	}

	user, err := h.resolver.ResolveSession(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, ErrorCodeInvalidSession, "session not recognized")
		return nil, "", false
	}

	return user, sessionID, true
}

// handleServiceError maps ceremony errors to HTTP responses. Verification
// failures all read the same to the client; the distinction lives in the
// error code, the metrics and the audit log.
func (h *Handler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, enroll.ErrMalformedPayload):
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, retryMessage)
	case errors.Is(err, enroll.ErrCeremonyExpired):
		h.writeError(w, http.StatusBadRequest, ErrorCodeCeremonyExpired, retryMessage)
	case errors.Is(err, enroll.ErrOriginMismatch),
		errors.Is(err, enroll.ErrChallengeMismatch),
		errors.Is(err, enroll.ErrAttestationInvalid):
		h.writeError(w, http.StatusBadRequest, ErrorCodeVerificationFailed, retryMessage)
	case errors.Is(err, enroll.ErrDuplicateCredential):
		h.writeError(w, http.StatusConflict, ErrorCodeDuplicateCredential, retryMessage)
	default:
		h.logger.Error("enrollment request failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal server error")
	}
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Response headers already written, can only log the error
		h.logger.Error("failed to encode JSON response",
			"error", err,
			"status", status)
	}
}

// writeError writes an error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}
