// Copyright (c) 2025 Keyward Labs
//
// This file is part of go-fido-enroll.
//
// go-fido-enroll is licensed under the GNU Affero General Public License v3.0.
// See the LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package enroll

import (
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// Config carries the deployment constants of the relying party. RPID and
// ServiceURL are fixed per deployment, never per-request input.
type Config struct {
	// RPID is the Relying Party identifier, typically the domain name.
	// Example: "example.com"
	RPID string `yaml:"id" json:"id" mapstructure:"id"`

	// RPDisplayName is the human-readable name of the Relying Party.
	RPDisplayName string `yaml:"display_name" json:"display_name" mapstructure:"display_name"`

	// ServiceURL is the effective origin the client ceremony must report.
	// Example: "https://example.com"
	ServiceURL string `yaml:"service_url" json:"service_url" mapstructure:"service_url"`

	// Timeout is the client-side ceremony timeout.
	// Default: 60s
	Timeout time.Duration `yaml:"timeout" json:"timeout" mapstructure:"timeout"`

	// CeremonyTTL is how long a pending ceremony stays consumable.
	// Default: 5m
	CeremonyTTL time.Duration `yaml:"ceremony_ttl" json:"ceremony_ttl" mapstructure:"ceremony_ttl"`

	// Debug enables debug logging in the underlying WebAuthn library.
	Debug bool `yaml:"debug" json:"debug" mapstructure:"debug"`
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.RPID == "" {
		return fmt.Errorf("RPID is required")
	}
	if c.RPDisplayName == "" {
		return fmt.Errorf("RPDisplayName is required")
	}
	if c.ServiceURL == "" {
		return fmt.Errorf("ServiceURL is required")
	}
	return nil
}

// SetDefaults sets default values for unset configuration fields.
func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.CeremonyTTL == 0 {
		c.CeremonyTTL = 5 * time.Minute
	}
}

// ToWebAuthnConfig converts the Config to the go-webauthn library's
// configuration. Attestation preference and user verification are fixed
// policy, not configurable: "none" favors compatibility and privacy,
// "discouraged" never mandates a PIN or biometric.
func (c *Config) ToWebAuthnConfig() *webauthn.Config {
	cfg := &webauthn.Config{
		RPID:                  c.RPID,
		RPDisplayName:         c.RPDisplayName,
		RPOrigins:             []string{c.ServiceURL},
		Debug:                 c.Debug,
		AttestationPreference: protocol.PreferNoAttestation,
		AuthenticatorSelection: protocol.AuthenticatorSelection{
			UserVerification: protocol.VerificationDiscouraged,
		},
	}

	if c.Timeout > 0 {
		cfg.Timeouts = webauthn.TimeoutsConfig{
			Registration: webauthn.TimeoutConfig{
				Enforce:    true,
				Timeout:    c.Timeout,
				TimeoutUVD: c.Timeout,
			},
		}
	}

	return cfg
}
