// Copyright (c) 2025 Keyward Labs
//
// This file is part of go-fido-enroll.
//
// go-fido-enroll is licensed under the GNU Affero General Public License v3.0.
// See the LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package enroll

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTTokenGenerator signs post-enrollment confirmation tokens. The token
// names the credential group, never the credential's public key material, and
// lets the surrounding application hand the user to its next step (such as
// recovery-code generation) with proof the ceremony completed.
type JWTTokenGenerator struct {
	secret    []byte
	issuer    string
	expiresIn time.Duration
}

// JWTTokenGeneratorConfig contains configuration for the token generator.
type JWTTokenGeneratorConfig struct {
	// Secret is the HMAC signing secret (required).
	Secret []byte
	// Issuer is the JWT issuer claim (default: "go-fido-enroll").
	Issuer string
	// ExpiresIn is how long tokens are valid (default: 5 minutes).
	ExpiresIn time.Duration
}

// NewJWTTokenGenerator creates a new token generator with the given
// configuration.
func NewJWTTokenGenerator(config *JWTTokenGeneratorConfig) (*JWTTokenGenerator, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if len(config.Secret) == 0 {
		return nil, fmt.Errorf("signing secret is required")
	}

	issuer := config.Issuer
	if issuer == "" {
		issuer = "go-fido-enroll"
	}

	expiresIn := config.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 5 * time.Minute
	}

	return &JWTTokenGenerator{
		secret:    config.Secret,
		issuer:    issuer,
		expiresIn: expiresIn,
	}, nil
}

// GenerateToken creates a JWT acknowledging the new credential.
func (g *JWTTokenGenerator) GenerateToken(ctx context.Context, record *CredentialRecord) (string, error) {
	now := time.Now()

	claims := jwt.MapClaims{
		"iss": g.issuer,
		"sub": record.GroupID,
		"iat": now.Unix(),
		"exp": now.Add(g.expiresIn).Unix(),
		"nbf": now.Unix(),
		"cid": base64.RawURLEncoding.EncodeToString(record.CredentialID),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(g.secret)
}

// VerifyToken verifies a confirmation token and returns its claims.
func (g *JWTTokenGenerator) VerifyToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return g.secret, nil
	}, jwt.WithIssuer(g.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims type")
	}
	return claims, nil
}
