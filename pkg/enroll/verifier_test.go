// Copyright (c) 2025 Keyward Labs
//
// This file is part of go-fido-enroll.
//
// go-fido-enroll is licensed under the GNU Affero General Public License v3.0.
// See the LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package enroll

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRPID   = "example.com"
	testOrigin = "https://example.com"
)

func verifierTestConfig() *Config {
	cfg := &Config{
		RPID:          testRPID,
		RPDisplayName: "Example",
		ServiceURL:    testOrigin,
	}
	cfg.SetDefaults()
	return cfg
}

type verifierFixture struct {
	verifier   *AttestationVerifier
	challenges *MemoryChallengeStore
	creds      *MemoryCredentialStore
	user       Account
}

func newVerifierFixture(t *testing.T) *verifierFixture {
	t.Helper()

	cfg := verifierTestConfig()
	wa, err := webauthn.New(cfg.ToWebAuthnConfig())
	require.NoError(t, err)

	challenges := NewMemoryChallengeStore()
	creds := NewMemoryCredentialStore()

	return &verifierFixture{
		verifier:   NewAttestationVerifier(wa, cfg, challenges, creds, nil),
		challenges: challenges,
		creds:      creds,
		user:       Account{ID: "user-1", EmailAddress: "alice@example.com", DisplayName: "Alice"},
	}
}

func TestAttestationVerifier_Success(t *testing.T) {
	ctx := context.Background()
	f := newVerifierFixture(t)

	ceremony, err := f.challenges.Begin(ctx, "session-1")
	require.NoError(t, err)

	authenticator, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)

	payload, err := authenticator.CreateRegistrationPayload(ceremony.ID, ceremony.Challenge, testOrigin)
	require.NoError(t, err)

	record, err := f.verifier.Verify(ctx, "session-1", f.user, payload)
	require.NoError(t, err)

	assert.Equal(t, authenticator.CredentialID, record.CredentialID)
	assert.Equal(t, "user-1", record.UserID)
	assert.Equal(t, ceremony.ID, record.GroupID)
	assert.Equal(t, "none", record.AttestationType)
	assert.Equal(t, uint32(0), record.SignCount)
	assert.True(t, record.Flags.UserPresent)
	assert.False(t, record.Flags.UserVerified)
	assert.NotEmpty(t, record.PublicKey)
	assert.Equal(t, authenticator.AAGUID, record.AAGUID)

	// The ceremony was consumed
	_, err = f.challenges.Consume(ctx, "session-1")
	assert.ErrorIs(t, err, ErrCeremonyExpired)
}

func TestAttestationVerifier_MalformedPayloadKeepsCeremony(t *testing.T) {
	ctx := context.Background()
	f := newVerifierFixture(t)

	ceremony, err := f.challenges.Begin(ctx, "session-1")
	require.NoError(t, err)

	for _, payload := range [][]byte{
		[]byte("not json"),
		[]byte(`{}`),
		[]byte(`{"ceremony_id":"` + ceremony.ID + `"}`),
		[]byte(`{"ceremony_id":"` + ceremony.ID + `","credential":{"type":"public-key"}}`),
	} {
		_, err = f.verifier.Verify(ctx, "session-1", f.user, payload)
		assert.ErrorIs(t, err, ErrMalformedPayload)
	}

	// The pending ceremony survived every malformed attempt and still works
	authenticator, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	payload, err := authenticator.CreateRegistrationPayload(ceremony.ID, ceremony.Challenge, testOrigin)
	require.NoError(t, err)

	_, err = f.verifier.Verify(ctx, "session-1", f.user, payload)
	assert.NoError(t, err)
}

func TestAttestationVerifier_WrongClientDataType(t *testing.T) {
	ctx := context.Background()
	f := newVerifierFixture(t)

	ceremony, err := f.challenges.Begin(ctx, "session-1")
	require.NoError(t, err)

	authenticator, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	payload, err := authenticator.CreateRegistrationPayload(ceremony.ID, ceremony.Challenge, testOrigin)
	require.NoError(t, err)

	// Swap the client data for an authentication-ceremony one
	payload = swapClientDataType(t, payload, "webauthn.get")

	_, err = f.verifier.Verify(ctx, "session-1", f.user, payload)
	assert.ErrorIs(t, err, ErrMalformedPayload)

	// Still pre-consume: the ceremony remains pending
	assert.Equal(t, 1, f.challenges.Count())
}

func TestAttestationVerifier_NoPendingCeremony(t *testing.T) {
	ctx := context.Background()
	f := newVerifierFixture(t)

	authenticator, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	payload, err := authenticator.CreateRegistrationPayload("some-id", "c29tZS1jaGFsbGVuZ2U", testOrigin)
	require.NoError(t, err)

	_, err = f.verifier.Verify(ctx, "session-1", f.user, payload)
	assert.ErrorIs(t, err, ErrCeremonyExpired)
}

func TestAttestationVerifier_SupersededCeremony(t *testing.T) {
	ctx := context.Background()
	f := newVerifierFixture(t)

	first, err := f.challenges.Begin(ctx, "session-1")
	require.NoError(t, err)
	_, err = f.challenges.Begin(ctx, "session-1")
	require.NoError(t, err)

	// The response was built for the superseded ceremony
	authenticator, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	payload, err := authenticator.CreateRegistrationPayload(first.ID, first.Challenge, testOrigin)
	require.NoError(t, err)

	_, err = f.verifier.Verify(ctx, "session-1", f.user, payload)
	assert.ErrorIs(t, err, ErrCeremonyExpired)
}

func TestAttestationVerifier_TamperedChallenge(t *testing.T) {
	ctx := context.Background()
	f := newVerifierFixture(t)

	ceremony, err := f.challenges.Begin(ctx, "session-1")
	require.NoError(t, err)

	// Flip one byte of the issued challenge
	tampered, err := base64.RawURLEncoding.DecodeString(ceremony.Challenge)
	require.NoError(t, err)
	tampered[0] ^= 0x01

	authenticator, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	payload, err := authenticator.CreateRegistrationPayload(
		ceremony.ID, base64.RawURLEncoding.EncodeToString(tampered), testOrigin)
	require.NoError(t, err)

	_, err = f.verifier.Verify(ctx, "session-1", f.user, payload)
	assert.ErrorIs(t, err, ErrChallengeMismatch)
}

func TestAttestationVerifier_OriginMismatch(t *testing.T) {
	ctx := context.Background()
	f := newVerifierFixture(t)

	ceremony, err := f.challenges.Begin(ctx, "session-1")
	require.NoError(t, err)

	authenticator, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	payload, err := authenticator.CreateRegistrationPayload(ceremony.ID, ceremony.Challenge, "https://evil.example")
	require.NoError(t, err)

	_, err = f.verifier.Verify(ctx, "session-1", f.user, payload)
	assert.ErrorIs(t, err, ErrOriginMismatch)
}

func TestAttestationVerifier_RPIDHashMismatch(t *testing.T) {
	ctx := context.Background()
	f := newVerifierFixture(t)

	ceremony, err := f.challenges.Begin(ctx, "session-1")
	require.NoError(t, err)

	wrongHash := sha256.Sum256([]byte("other.example"))
	authenticator, err := NewMockAuthenticator(testRPID, WithRPIDHash(wrongHash[:]))
	require.NoError(t, err)
	payload, err := authenticator.CreateRegistrationPayload(ceremony.ID, ceremony.Challenge, testOrigin)
	require.NoError(t, err)

	_, err = f.verifier.Verify(ctx, "session-1", f.user, payload)
	assert.ErrorIs(t, err, ErrOriginMismatch)
}

func TestAttestationVerifier_MissingUserPresence(t *testing.T) {
	ctx := context.Background()
	f := newVerifierFixture(t)

	ceremony, err := f.challenges.Begin(ctx, "session-1")
	require.NoError(t, err)

	authenticator, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	authenticator.UserPresent = false

	payload, err := authenticator.CreateRegistrationPayload(ceremony.ID, ceremony.Challenge, testOrigin)
	require.NoError(t, err)

	_, err = f.verifier.Verify(ctx, "session-1", f.user, payload)
	assert.ErrorIs(t, err, ErrAttestationInvalid)
}

func TestAttestationVerifier_DuplicateCredentialAcrossUsers(t *testing.T) {
	ctx := context.Background()
	f := newVerifierFixture(t)

	authenticator, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)

	// First user registers the key
	ceremony, err := f.challenges.Begin(ctx, "session-1")
	require.NoError(t, err)
	payload, err := authenticator.CreateRegistrationPayload(ceremony.ID, ceremony.Challenge, testOrigin)
	require.NoError(t, err)
	record, err := f.verifier.Verify(ctx, "session-1", f.user, payload)
	require.NoError(t, err)
	require.NoError(t, f.creds.Insert(ctx, record))

	// A different account presents the same credential ID
	other := Account{ID: "user-2", EmailAddress: "bob@example.com"}
	ceremony2, err := f.challenges.Begin(ctx, "session-2")
	require.NoError(t, err)
	payload2, err := authenticator.CreateRegistrationPayload(ceremony2.ID, ceremony2.Challenge, testOrigin)
	require.NoError(t, err)

	_, err = f.verifier.Verify(ctx, "session-2", other, payload2)
	assert.ErrorIs(t, err, ErrDuplicateCredential)

	// The original record keeps its owner
	got, err := f.creds.GetByCredentialID(ctx, authenticator.CredentialID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
}

func TestAttestationVerifier_GroupIDPinning(t *testing.T) {
	ctx := context.Background()
	f := newVerifierFixture(t)

	// First enrollment pins the group to that ceremony's ID
	first, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	ceremony1, err := f.challenges.Begin(ctx, "session-1")
	require.NoError(t, err)
	payload1, err := first.CreateRegistrationPayload(ceremony1.ID, ceremony1.Challenge, testOrigin)
	require.NoError(t, err)
	record1, err := f.verifier.Verify(ctx, "session-1", f.user, payload1)
	require.NoError(t, err)
	require.NoError(t, f.creds.Insert(ctx, record1))
	assert.Equal(t, ceremony1.ID, record1.GroupID)

	// A second key joins the existing group, not a new one
	second, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	ceremony2, err := f.challenges.Begin(ctx, "session-1")
	require.NoError(t, err)
	payload2, err := second.CreateRegistrationPayload(ceremony2.ID, ceremony2.Challenge, testOrigin)
	require.NoError(t, err)
	record2, err := f.verifier.Verify(ctx, "session-1", f.user, payload2)
	require.NoError(t, err)

	assert.Equal(t, record1.GroupID, record2.GroupID)
	assert.NotEqual(t, ceremony2.ID, record2.GroupID)
}

func TestAttestationVerifier_SignCountPreserved(t *testing.T) {
	ctx := context.Background()
	f := newVerifierFixture(t)

	ceremony, err := f.challenges.Begin(ctx, "session-1")
	require.NoError(t, err)

	authenticator, err := NewMockAuthenticator(testRPID, WithSignCount(42))
	require.NoError(t, err)
	payload, err := authenticator.CreateRegistrationPayload(ceremony.ID, ceremony.Challenge, testOrigin)
	require.NoError(t, err)

	record, err := f.verifier.Verify(ctx, "session-1", f.user, payload)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), record.SignCount)
}

// swapClientDataType rewrites the client data JSON inside a registration
// payload to carry a different ceremony type, leaving everything else intact.
func swapClientDataType(t *testing.T, payload []byte, ceremonyType string) []byte {
	t.Helper()

	var envelope map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(payload, &envelope))

	var credential map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(envelope["credential"], &credential))

	var response map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(credential["response"], &response))

	var clientDataB64 string
	require.NoError(t, json.Unmarshal(response["clientDataJSON"], &clientDataB64))
	clientDataRaw, err := base64.RawURLEncoding.DecodeString(clientDataB64)
	require.NoError(t, err)

	var clientData map[string]interface{}
	require.NoError(t, json.Unmarshal(clientDataRaw, &clientData))
	clientData["type"] = ceremonyType

	newClientData, err := json.Marshal(clientData)
	require.NoError(t, err)
	newClientDataB64, err := json.Marshal(base64.RawURLEncoding.EncodeToString(newClientData))
	require.NoError(t, err)

	response["clientDataJSON"] = newClientDataB64
	newResponse, err := json.Marshal(response)
	require.NoError(t, err)
	credential["response"] = newResponse
	newCredential, err := json.Marshal(credential)
	require.NoError(t, err)
	envelope["credential"] = newCredential

	out, err := json.Marshal(envelope)
	require.NoError(t, err)
	return out
}
