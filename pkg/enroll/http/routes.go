// Copyright (c) 2025 Keyward Labs
//
// This file is part of go-fido-enroll.
//
// go-fido-enroll is licensed under the GNU Affero General Public License v3.0.
// See the LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountChi mounts enrollment routes on a chi router.
//
// Example:
//
//	handler := enrollhttp.NewHandler(svc, resolver)
//	r.Route("/api/v1/enroll", func(r chi.Router) {
//	    enrollhttp.MountChi(r, handler)
//	})
func MountChi(r chi.Router, h *Handler) {
	r.Post("/begin", h.BeginEnrollment)
	r.Post("/finish", h.FinishEnrollment)
	r.Get("/status", h.EnrollmentStatus)
}

// MountStdlib mounts enrollment routes on a stdlib http.ServeMux.
// The prefix should not include a trailing slash.
//
// Example:
//
//	handler := enrollhttp.NewHandler(svc, resolver)
//	enrollhttp.MountStdlib(mux, "/api/v1/enroll", handler)
func MountStdlib(mux *http.ServeMux, prefix string, h *Handler) {
	mux.HandleFunc(prefix+"/begin", h.BeginEnrollment)
	mux.HandleFunc(prefix+"/finish", h.FinishEnrollment)
	mux.HandleFunc(prefix+"/status", h.EnrollmentStatus)
}

// RouteEntry represents a single route with its method, path, and handler.
type RouteEntry struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// Routes returns a slice of route entries for manual mounting.
// Useful for frameworks not directly supported.
func (h *Handler) Routes() []RouteEntry {
	return []RouteEntry{
		{Method: "POST", Path: "/begin", Handler: h.BeginEnrollment},
		{Method: "POST", Path: "/finish", Handler: h.FinishEnrollment},
		{Method: "GET", Path: "/status", Handler: h.EnrollmentStatus},
	}
}
