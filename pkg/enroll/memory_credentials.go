// Copyright (c) 2025 Keyward Labs
//
// This file is part of go-fido-enroll.
//
// go-fido-enroll is licensed under the GNU Affero General Public License v3.0.
// See the LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package enroll

import (
	"context"
	"encoding/hex"
	"sync"
)

// MemoryCredentialStore is an in-memory implementation of CredentialStore.
// This is intended for development and testing only.
type MemoryCredentialStore struct {
	mu       sync.RWMutex
	byID     map[string]*CredentialRecord
	byUserID map[string][]*CredentialRecord
}

// NewMemoryCredentialStore creates a new in-memory credential store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		byID:     make(map[string]*CredentialRecord),
		byUserID: make(map[string][]*CredentialRecord),
	}
}

// Insert stores a new credential. The uniqueness check and the write share
// one lock, so two concurrent registrations of the same credential ID cannot
// both succeed.
func (s *MemoryCredentialStore) Insert(ctx context.Context, record *CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := hex.EncodeToString(record.CredentialID)
	if _, ok := s.byID[key]; ok {
		return ErrDuplicateCredential
	}

	s.byID[key] = record
	s.byUserID[record.UserID] = append(s.byUserID[record.UserID], record)
	return nil
}

// GetByCredentialID retrieves a credential by its ID, regardless of owner.
func (s *MemoryCredentialStore) GetByCredentialID(ctx context.Context, credentialID []byte) (*CredentialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.byID[hex.EncodeToString(credentialID)]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	return record, nil
}

// GetByUserID retrieves all credentials for an account.
func (s *MemoryCredentialStore) GetByUserID(ctx context.Context, userID string) ([]*CredentialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, ok := s.byUserID[userID]
	if !ok {
		return []*CredentialRecord{}, nil
	}

	// Return a copy to prevent external modification
	result := make([]*CredentialRecord, len(records))
	copy(result, records)
	return result, nil
}

// Delete removes a credential by its ID.
func (s *MemoryCredentialStore) Delete(ctx context.Context, credentialID []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := hex.EncodeToString(credentialID)
	record, ok := s.byID[key]
	if !ok {
		return ErrCredentialNotFound
	}

	delete(s.byID, key)

	records := s.byUserID[record.UserID]
	for i, r := range records {
		if hex.EncodeToString(r.CredentialID) == key {
			s.byUserID[record.UserID] = append(records[:i], records[i+1:]...)
			break
		}
	}

	return nil
}

// DeleteByUserID removes all credentials for an account.
func (s *MemoryCredentialStore) DeleteByUserID(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, ok := s.byUserID[userID]
	if !ok {
		return nil
	}

	for _, record := range records {
		delete(s.byID, hex.EncodeToString(record.CredentialID))
	}

	delete(s.byUserID, userID)
	return nil
}

// Count returns the total number of credentials in the store.
func (s *MemoryCredentialStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Clear removes all credentials from the store.
func (s *MemoryCredentialStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]*CredentialRecord)
	s.byUserID = make(map[string][]*CredentialRecord)
}
