// Copyright (c) 2025 Keyward Labs
//
// This file is part of go-fido-enroll.
//
// go-fido-enroll is licensed under the GNU Affero General Public License v3.0.
// See the LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMountChi(t *testing.T) {
	h := newTestHandler(t)

	router := chi.NewRouter()
	router.Route("/api/v1/enroll", func(r chi.Router) {
		MountChi(r, h)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/enroll/begin", nil)
	req.Header.Set(HeaderSessionID, testSession)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(HeaderCeremonyID))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/enroll/status", nil)
	req.Header.Set(HeaderSessionID, testSession)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMountStdlib(t *testing.T) {
	h := newTestHandler(t)

	mux := http.NewServeMux()
	MountStdlib(mux, "/enroll", h)

	req := httptest.NewRequest(http.MethodPost, "/enroll/begin", nil)
	req.Header.Set(HeaderSessionID, testSession)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	// Method checking still happens inside the handler
	req = httptest.NewRequest(http.MethodGet, "/enroll/begin", nil)
	req.Header.Set(HeaderSessionID, testSession)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRoutes(t *testing.T) {
	h := newTestHandler(t)

	routes := h.Routes()
	require.Len(t, routes, 3)

	paths := make(map[string]string)
	for _, route := range routes {
		paths[route.Path] = route.Method
		assert.NotNil(t, route.Handler)
	}

	assert.Equal(t, "POST", paths["/begin"])
	assert.Equal(t, "POST", paths["/finish"])
	assert.Equal(t, "GET", paths["/status"])
}
