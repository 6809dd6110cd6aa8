// Copyright (c) 2025 Keyward Labs
//
// This file is part of go-fido-enroll.
//
// go-fido-enroll is licensed under the GNU Affero General Public License v3.0.
// See the LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package enroll

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"github.com/google/uuid"
)

// challengeSize is the entropy of a registration challenge in bytes. The
// WebAuthn specification requires at least 16; 32 is used throughout.
const challengeSize = 32

// newPendingCeremony draws a fresh ceremony for the session: a random UUID as
// ceremony ID (its raw bytes double as the WebAuthn user handle) and a random
// challenge encoded base64url without padding.
func newPendingCeremony(sessionID string) (*PendingCeremony, error) {
	id := uuid.New()

	challenge := make([]byte, challengeSize)
	if _, err := rand.Read(challenge); err != nil {
		return nil, err
	}

	return &PendingCeremony{
		ID:         id.String(),
		SessionID:  sessionID,
		Challenge:  base64.RawURLEncoding.EncodeToString(challenge),
		UserHandle: id[:],
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// MemoryChallengeStore is an in-memory implementation of ChallengeStore,
// suitable for single-process deployments and testing. Shared-session
// deployments should back the interface with their session store instead.
type MemoryChallengeStore struct {
	mu         sync.Mutex
	ceremonies map[string]*PendingCeremony
	ttl        time.Duration
}

// NewMemoryChallengeStore creates a new in-memory challenge store with the
// default 5 minute ceremony TTL.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return NewMemoryChallengeStoreWithTTL(5 * time.Minute)
}

// NewMemoryChallengeStoreWithTTL creates a new in-memory challenge store with
// a custom ceremony TTL.
func NewMemoryChallengeStoreWithTTL(ttl time.Duration) *MemoryChallengeStore {
	return &MemoryChallengeStore{
		ceremonies: make(map[string]*PendingCeremony),
		ttl:        ttl,
	}
}

// Begin generates a fresh ceremony for the session, superseding any pending
// one. The superseded challenge becomes unusable even if later presented.
func (s *MemoryChallengeStore) Begin(ctx context.Context, sessionID string) (*PendingCeremony, error) {
	ceremony, err := newPendingCeremony(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ceremonies[sessionID] = ceremony
	return ceremony, nil
}

// Consume retrieves and removes the pending ceremony for the session. A
// ceremony older than the store TTL is still removed but returns
// ErrCeremonyExpired. The check and the removal happen under one lock so
// concurrent consumers cannot both observe the same ceremony.
func (s *MemoryChallengeStore) Consume(ctx context.Context, sessionID string) (*PendingCeremony, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ceremony, ok := s.ceremonies[sessionID]
	if !ok {
		return nil, ErrCeremonyExpired
	}
	delete(s.ceremonies, sessionID)

	if time.Since(ceremony.CreatedAt) > s.ttl {
		return nil, ErrCeremonyExpired
	}

	return ceremony, nil
}

// Count returns the number of pending ceremonies in the store.
func (s *MemoryChallengeStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ceremonies)
}

// Clear removes all pending ceremonies from the store.
func (s *MemoryChallengeStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ceremonies = make(map[string]*PendingCeremony)
}

// Cleanup removes expired ceremonies and reports how many were removed.
func (s *MemoryChallengeStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, ceremony := range s.ceremonies {
		if now.Sub(ceremony.CreatedAt) > s.ttl {
			delete(s.ceremonies, id)
			removed++
		}
	}
	return removed
}

// StartCleanupRoutine runs Cleanup at the given interval until the context is
// cancelled.
func (s *MemoryChallengeStore) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cleanup()
			}
		}
	}()
}
