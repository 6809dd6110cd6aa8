// Copyright (c) 2025 Keyward Labs
//
// This file is part of go-fido-enroll.
//
// go-fido-enroll is licensed under the GNU Affero General Public License v3.0.
// See the LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package enroll

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
)

// MockAuthenticator simulates a security key for testing purposes. It
// produces wire-format attestation responses ("none" format) that parse and
// verify like the real thing.
type MockAuthenticator struct {
	// AAGUID is the authenticator's model identifier (16 bytes).
	AAGUID []byte

	// privateKey is the credential's key pair.
	privateKey *ecdsa.PrivateKey

	// CredentialID is the credential identifier.
	CredentialID []byte

	// SignCount is the initial signature counter.
	SignCount uint32

	// UserPresent indicates whether the UP flag should be set.
	UserPresent bool

	// UserVerified indicates whether the UV flag should be set.
	UserVerified bool

	// rpIDHash is the SHA-256 hash of the RP ID.
	rpIDHash []byte
}

// MockAuthenticatorOption is a functional option for configuring a
// MockAuthenticator.
type MockAuthenticatorOption func(*MockAuthenticator)

// WithCredentialID sets a custom credential ID.
func WithCredentialID(credentialID []byte) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.CredentialID = credentialID
	}
}

// WithSignCount sets the initial sign count.
func WithSignCount(count uint32) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.SignCount = count
	}
}

// WithRPIDHash overrides the RP ID hash embedded in the authenticator data.
// Useful for exercising relying-party mismatch handling.
func WithRPIDHash(hash []byte) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.rpIDHash = hash
	}
}

// NewMockAuthenticator creates a new mock authenticator for testing.
func NewMockAuthenticator(rpID string, opts ...MockAuthenticatorOption) (*MockAuthenticator, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	aaguid := make([]byte, 16)
	if _, err := rand.Read(aaguid); err != nil {
		return nil, err
	}

	credentialID := make([]byte, 32)
	if _, err := rand.Read(credentialID); err != nil {
		return nil, err
	}

	rpIDHash := sha256.Sum256([]byte(rpID))

	m := &MockAuthenticator{
		AAGUID:       aaguid,
		privateKey:   privateKey,
		CredentialID: credentialID,
		SignCount:    0,
		UserPresent:  true,
		UserVerified: false,
		rpIDHash:     rpIDHash[:],
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// PublicKeyBytes returns the credential public key in COSE format.
func (m *MockAuthenticator) PublicKeyBytes() ([]byte, error) {
	pubKey := m.privateKey.Public().(*ecdsa.PublicKey)

	coseKey := map[int]interface{}{
		1:  2,                          // kty: EC2
		3:  int(webauthncose.AlgES256), // alg: ES256
		-1: 1,                          // crv: P-256
		-2: pubKey.X.Bytes(),           // x coordinate
		-3: pubKey.Y.Bytes(),           // y coordinate
	}

	return webauthncbor.Marshal(coseKey)
}

// CreateAttestationResponse builds the wire-format credential creation
// response a browser would post back: base64url-encoded client data JSON and
// a CBOR attestation object in "none" format. The challenge is the
// base64url string issued with the options.
func (m *MockAuthenticator) CreateAttestationResponse(challenge, origin string) ([]byte, error) {
	authData, err := m.buildAuthenticatorData()
	if err != nil {
		return nil, err
	}

	clientDataJSON := buildClientDataJSON("webauthn.create", challenge, origin)

	attestationObject, err := webauthncbor.Marshal(map[string]interface{}{
		"authData": authData,
		"fmt":      "none",
		"attStmt":  map[string]interface{}{},
	})
	if err != nil {
		return nil, err
	}

	credentialIDBase64 := base64.RawURLEncoding.EncodeToString(m.CredentialID)

	response := protocol.CredentialCreationResponse{
		PublicKeyCredential: protocol.PublicKeyCredential{
			Credential: protocol.Credential{
				ID:   credentialIDBase64,
				Type: "public-key",
			},
			RawID:                  m.CredentialID,
			ClientExtensionResults: protocol.AuthenticationExtensionsClientOutputs{},
		},
		AttestationResponse: protocol.AuthenticatorAttestationResponse{
			AuthenticatorResponse: protocol.AuthenticatorResponse{
				ClientDataJSON: clientDataJSON,
			},
			AttestationObject: attestationObject,
			Transports:        []string{"usb"},
		},
	}

	return json.Marshal(response)
}

// CreateRegistrationPayload wraps an attestation response in the wire
// envelope FinishRegistration consumes.
func (m *MockAuthenticator) CreateRegistrationPayload(ceremonyID, challenge, origin string) ([]byte, error) {
	credential, err := m.CreateAttestationResponse(challenge, origin)
	if err != nil {
		return nil, err
	}
	return json.Marshal(RegistrationPayload{
		CeremonyID: ceremonyID,
		Credential: credential,
	})
}

// buildFlags builds the authenticator flags byte. AT is always set: a
// registration response carries attested credential data.
func (m *MockAuthenticator) buildFlags() byte {
	var flags byte = 0x40 // AT
	if m.UserPresent {
		flags |= 0x01 // UP
	}
	if m.UserVerified {
		flags |= 0x04 // UV
	}
	return flags
}

// buildAuthenticatorData builds the raw authenticator data structure with
// attested credential data.
func (m *MockAuthenticator) buildAuthenticatorData() ([]byte, error) {
	var buf bytes.Buffer

	// rpIdHash (32 bytes)
	buf.Write(m.rpIDHash)

	// flags (1 byte)
	buf.WriteByte(m.buildFlags())

	// signCount (4 bytes, big-endian)
	signCountBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(signCountBytes, m.SignCount)
	buf.Write(signCountBytes)

	// AAGUID (16 bytes)
	buf.Write(m.AAGUID)

	// Credential ID length (2 bytes, big-endian) + credential ID
	credIDLen := make([]byte, 2)
	binary.BigEndian.PutUint16(credIDLen, uint16(len(m.CredentialID)))
	buf.Write(credIDLen)
	buf.Write(m.CredentialID)

	// Credential public key (COSE format)
	pubKeyBytes, err := m.PublicKeyBytes()
	if err != nil {
		return nil, err
	}
	buf.Write(pubKeyBytes)

	return buf.Bytes(), nil
}

// buildClientDataJSON builds the collected client data structure.
func buildClientDataJSON(ceremonyType, challenge, origin string) []byte {
	clientData := struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
		Origin    string `json:"origin"`
	}{
		Type:      ceremonyType,
		Challenge: challenge,
		Origin:    origin,
	}

	jsonBytes, _ := json.Marshal(clientData)
	return jsonBytes
}
