// Copyright (c) 2025 Keyward Labs
//
// This file is part of go-fido-enroll.
//
// go-fido-enroll is licensed under the GNU Affero General Public License v3.0.
// See the LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package enroll

import (
	"encoding/base64"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
)

// OptionsBuilder constructs the registration options payload sent to the
// client. Given its inputs it is pure: the only entropy was already consumed
// when the pending ceremony was drawn.
//
// The options are built field-by-field from a fixed schema. Optional protocol
// extensions (such as the physical-location extension) are simply never part
// of that schema — the declared policy is the minimum extension surface.
type OptionsBuilder struct {
	config *Config
}

// NewOptionsBuilder creates an options builder for the given deployment
// configuration.
func NewOptionsBuilder(config *Config) *OptionsBuilder {
	return &OptionsBuilder{config: config}
}

// Build produces the credential creation options for a pending ceremony.
// The ceremony's user handle stands in for the account identifier, so no
// permanent identifier leaks into credential metadata. Every existing
// credential appears on the exclusion list, tagged with the full transport
// hint set. Attestation "none" and user verification "discouraged" are fixed
// policy.
//
// The caller must have persisted the ceremony via ChallengeStore before
// sending the options to the client.
func (b *OptionsBuilder) Build(user Registrant, ceremony *PendingCeremony, existing []*CredentialRecord) (*protocol.CredentialCreation, error) {
	challenge, err := base64.RawURLEncoding.DecodeString(ceremony.Challenge)
	if err != nil {
		return nil, WrapError("decode challenge", err)
	}

	displayName := user.Name()
	if displayName == "" {
		displayName = user.Email()
	}

	exclude := make([]protocol.CredentialDescriptor, len(existing))
	for i, record := range existing {
		exclude[i] = record.Descriptor()
	}

	return &protocol.CredentialCreation{
		Response: protocol.PublicKeyCredentialCreationOptions{
			RelyingParty: protocol.RelyingPartyEntity{
				CredentialEntity: protocol.CredentialEntity{
					Name: b.config.RPDisplayName,
				},
				ID: b.config.RPID,
			},
			User: protocol.UserEntity{
				CredentialEntity: protocol.CredentialEntity{
					Name: user.Email(),
				},
				DisplayName: displayName,
				ID:          protocol.URLEncodedBase64(ceremony.UserHandle),
			},
			Challenge:             challenge,
			Parameters:            defaultCredentialParameters(),
			Timeout:               int(b.config.Timeout.Milliseconds()),
			CredentialExcludeList: exclude,
			AuthenticatorSelection: protocol.AuthenticatorSelection{
				UserVerification: protocol.VerificationDiscouraged,
			},
			Attestation: protocol.PreferNoAttestation,
		},
	}, nil
}

// defaultCredentialParameters lists the signature algorithms accepted for new
// credentials, strongest-preferred.
func defaultCredentialParameters() []protocol.CredentialParameter {
	return []protocol.CredentialParameter{
		{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgES256},
		{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgEdDSA},
		{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgRS256},
	}
}
