// Copyright (c) 2025 Keyward Labs
//
// This file is part of go-fido-enroll.
//
// go-fido-enroll is licensed under the GNU Affero General Public License v3.0.
// See the LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package enroll

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(userID string, credentialID []byte) *CredentialRecord {
	return &CredentialRecord{
		CredentialID:    credentialID,
		UserID:          userID,
		GroupID:         "group-" + userID,
		PublicKey:       []byte("cose-key"),
		AttestationType: "none",
		SignCount:       0,
		CreatedAt:       time.Now().UTC(),
	}
}

func TestMemoryCredentialStore_InsertAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCredentialStore()

	record := testRecord("user-1", []byte{1, 2, 3})
	require.NoError(t, store.Insert(ctx, record))

	got, err := store.GetByCredentialID(ctx, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "group-user-1", got.GroupID)

	records, err := store.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestMemoryCredentialStore_DuplicateInsert(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCredentialStore()

	require.NoError(t, store.Insert(ctx, testRecord("user-1", []byte{1, 2, 3})))

	// Same credential ID, different owner: still rejected
	err := store.Insert(ctx, testRecord("user-2", []byte{1, 2, 3}))
	assert.ErrorIs(t, err, ErrDuplicateCredential)

	// The original owner's record is untouched
	got, err := store.GetByCredentialID(ctx, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
}

func TestMemoryCredentialStore_ConcurrentInsertSameID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCredentialStore()

	const attempts = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			record := testRecord(fmt.Sprintf("user-%d", n), []byte{9, 9, 9})
			if err := store.Insert(ctx, record); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, store.Count())
}

func TestMemoryCredentialStore_GetByUserID_Empty(t *testing.T) {
	store := NewMemoryCredentialStore()

	records, err := store.GetByUserID(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMemoryCredentialStore_GetByCredentialID_NotFound(t *testing.T) {
	store := NewMemoryCredentialStore()

	_, err := store.GetByCredentialID(context.Background(), []byte{0xff})
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestMemoryCredentialStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCredentialStore()

	require.NoError(t, store.Insert(ctx, testRecord("user-1", []byte{1})))
	require.NoError(t, store.Insert(ctx, testRecord("user-1", []byte{2})))

	require.NoError(t, store.Delete(ctx, []byte{1}))

	_, err := store.GetByCredentialID(ctx, []byte{1})
	assert.ErrorIs(t, err, ErrCredentialNotFound)

	records, err := store.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, records, 1)

	// Deleting again fails
	assert.ErrorIs(t, store.Delete(ctx, []byte{1}), ErrCredentialNotFound)
}

func TestMemoryCredentialStore_DeleteByUserID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCredentialStore()

	require.NoError(t, store.Insert(ctx, testRecord("user-1", []byte{1})))
	require.NoError(t, store.Insert(ctx, testRecord("user-1", []byte{2})))
	require.NoError(t, store.Insert(ctx, testRecord("user-2", []byte{3})))

	require.NoError(t, store.DeleteByUserID(ctx, "user-1"))

	records, err := store.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 1, store.Count())

	// Deleting an unknown user is a no-op
	assert.NoError(t, store.DeleteByUserID(ctx, "nobody"))
}
