// Copyright (c) 2025 Keyward Labs
//
// This file is part of go-fido-enroll.
//
// go-fido-enroll is licensed under the GNU Affero General Public License v3.0
// (AGPL-3.0). See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_Disabled(t *testing.T) {
	l := New(nil)
	defer l.Stop()

	assert.False(t, l.IsEnabled())
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("anyone"))
	}
}

func TestLimiter_BurstThenDeny(t *testing.T) {
	l := New(&Config{
		Enabled:           true,
		RequestsPerMinute: 60,
		Burst:             3,
	})
	defer l.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("client-a"), "request %d within burst should pass", i)
	}
	assert.False(t, l.Allow("client-a"), "request beyond burst should be denied")
}

func TestLimiter_ClientsAreIndependent(t *testing.T) {
	l := New(&Config{
		Enabled:           true,
		RequestsPerMinute: 60,
		Burst:             1,
	})
	defer l.Stop()

	assert.True(t, l.Allow("client-a"))
	assert.False(t, l.Allow("client-a"))

	// A different client has its own bucket.
	assert.True(t, l.Allow("client-b"))
}

func TestLimiter_DefaultBurst(t *testing.T) {
	l := New(&Config{
		Enabled:           true,
		RequestsPerMinute: 5,
	})
	defer l.Stop()

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("client-a"))
	}
	assert.False(t, l.Allow("client-a"))
}

func TestLimiter_Cleanup(t *testing.T) {
	l := New(&Config{
		Enabled:           true,
		RequestsPerMinute: 60,
		Burst:             1,
		MaxIdle:           10 * time.Millisecond,
		CleanupInterval:   time.Hour, // drive cleanup manually
	})
	defer l.Stop()

	l.Allow("client-a")
	assert.Equal(t, 1, l.Stats()["active_clients"])

	time.Sleep(20 * time.Millisecond)
	l.cleanup()

	assert.Equal(t, 0, l.Stats()["active_clients"])
}

func TestLimiter_StopIsIdempotent(t *testing.T) {
	l := New(&Config{Enabled: true, RequestsPerMinute: 60})
	l.Stop()
	l.Stop()
}

func TestMiddleware_KeyedBySession(t *testing.T) {
	l := New(&Config{
		Enabled:           true,
		RequestsPerMinute: 60,
		Burst:             1,
	})
	defer l.Stop()

	var hits int
	handler := Middleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))

	do := func(sessionID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/begin", nil)
		if sessionID != "" {
			req.Header.Set(HeaderSessionID, sessionID)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, do("sess-1").Code)

	rec := do("sess-1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"rate limit exceeded","code":"rate_limited"}`, rec.Body.String())

	// A different session is not affected by the first one's exhaustion.
	assert.Equal(t, http.StatusOK, do("sess-2").Code)
	assert.Equal(t, 2, hits)
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "addr:10.0.0.1:5555", clientKey(req))

	req.Header.Set(HeaderSessionID, "sess-1")
	assert.Equal(t, "session:sess-1", clientKey(req))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		remote   string
		expected string
	}{
		{
			name:     "remote addr fallback",
			remote:   "192.0.2.1:1234",
			expected: "192.0.2.1:1234",
		},
		{
			name:     "x-real-ip",
			headers:  map[string]string{"X-Real-IP": "203.0.113.7"},
			remote:   "192.0.2.1:1234",
			expected: "203.0.113.7",
		},
		{
			name:     "x-forwarded-for single",
			headers:  map[string]string{"X-Forwarded-For": "203.0.113.7"},
			remote:   "192.0.2.1:1234",
			expected: "203.0.113.7",
		},
		{
			name:     "x-forwarded-for chain takes first",
			headers:  map[string]string{"X-Forwarded-For": "203.0.113.7, 198.51.100.2"},
			remote:   "192.0.2.1:1234",
			expected: "203.0.113.7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, clientIP(req))
		})
	}
}
