// Copyright (c) 2025 Keyward Labs
//
// This file is part of go-fido-enroll.
//
// go-fido-enroll is licensed under the GNU Affero General Public License v3.0.
// See the LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

// Package config loads the server configuration from file, environment and
// flags via viper. Relying-party constants are deployment configuration;
// they are never read from request input.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/keyward/go-fido-enroll/pkg/enroll"
)

// envKeyReplacer maps nested config keys to environment names, e.g.
// server.listen becomes SERVER_LISTEN.
var envKeyReplacer = strings.NewReplacer(".", "_")

// EnvPrefix is the prefix for environment variable overrides, e.g.
// FIDO_ENROLL_SERVER_LISTEN.
const EnvPrefix = "FIDO_ENROLL"

// Config represents the complete server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Enroll  enroll.Config `yaml:"relying_party" mapstructure:"relying_party"`
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`
	Token   TokenConfig   `yaml:"token" mapstructure:"token"`
	Limits  LimitsConfig  `yaml:"rate_limit" mapstructure:"rate_limit"`

	// Sessions maps development session IDs to accounts. Real deployments
	// integrate their own session resolver and leave this empty.
	Sessions map[string]SessionAccount `yaml:"sessions" mapstructure:"sessions"`
}

// ServerConfig contains server-level settings.
type ServerConfig struct {
	// Listen is the address the HTTP server binds to.
	Listen string `yaml:"listen" mapstructure:"listen"`

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`

	// IdleTimeout is the maximum time to wait for the next request.
	IdleTimeout time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Debug enables debug-level logging.
	Debug bool `yaml:"debug" mapstructure:"debug"`
}

// StorageConfig controls credential persistence.
type StorageConfig struct {
	// Path is the SQLite database file. Empty means in-memory storage.
	Path string `yaml:"path" mapstructure:"path"`
}

// TokenConfig controls the post-enrollment confirmation token.
type TokenConfig struct {
	// Secret is the HMAC signing secret. Empty disables signed tokens; the
	// credential group ID is returned instead.
	Secret string `yaml:"secret" mapstructure:"secret"`

	// Issuer is the JWT issuer claim.
	Issuer string `yaml:"issuer" mapstructure:"issuer"`

	// TTL is how long tokens are valid.
	TTL time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// LimitsConfig controls per-client rate limiting on the enrollment API.
type LimitsConfig struct {
	// Enabled turns rate limiting on.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// RequestsPerMinute is the sustained per-client rate.
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`

	// Burst allows short bursts above the sustained rate.
	Burst int `yaml:"burst" mapstructure:"burst"`
}

// SessionAccount is a development account bound to a static session ID.
type SessionAccount struct {
	ID    string `yaml:"id" mapstructure:"id"`
	Email string `yaml:"email" mapstructure:"email"`
	Name  string `yaml:"name" mapstructure:"name"`
}

// Load reads the configuration from the given file (optional) with
// environment overrides applied.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Enroll.Debug = cfg.Enroll.Debug || cfg.Logging.Debug
	cfg.Enroll.SetDefaults()
	if err := cfg.Enroll.Validate(); err != nil {
		return nil, fmt.Errorf("invalid relying party config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("logging.debug", false)
	v.SetDefault("relying_party.timeout", 60*time.Second)
	v.SetDefault("relying_party.ceremony_ttl", 5*time.Minute)
	v.SetDefault("token.issuer", "go-fido-enroll")
	v.SetDefault("token.ttl", 5*time.Minute)
	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.requests_per_minute", 30)
}
