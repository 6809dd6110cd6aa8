// Copyright (c) 2025 Keyward Labs
//
// This file is part of go-fido-enroll.
//
// go-fido-enroll is licensed under the GNU Affero General Public License v3.0.
// See the LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

// Package enroll implements the server side of the WebAuthn (FIDO2)
// registration ceremony: issuing session-bound challenges, building
// credential creation options, verifying attestation responses, and
// producing the credential record to persist.
//
// This package wraps the go-webauthn/webauthn library and provides:
//   - A ChallengeStore contract with begin/consume atomicity (at most one
//     pending ceremony per session, consumed exactly once)
//   - Field-by-field options construction with a fixed policy: attestation
//     "none", user verification "discouraged", no protocol extensions
//   - Ordered verification with a distinct error per failure point
//   - Pluggable credential persistence under a compare-and-insert contract
//
// # Architecture
//
// The package is designed with a layered architecture:
//
//  1. Service layer (Service) - ceremony orchestration
//  2. Storage layer (ChallengeStore, CredentialStore) - pluggable persistence
//  3. HTTP layer (pkg/enroll/http) - composable chi handlers
//
// # Usage
//
// Basic usage with in-memory storage (for development):
//
//	svc, err := enroll.NewService(enroll.ServiceParams{
//	    Config: &enroll.Config{
//	        RPID:          "example.com",
//	        RPDisplayName: "Example",
//	        ServiceURL:    "https://example.com",
//	    },
//	    ChallengeStore:  enroll.NewMemoryChallengeStore(),
//	    CredentialStore: enroll.NewMemoryCredentialStore(),
//	})
//
// For production, back CredentialStore with a database (see
// pkg/enroll/sqlite) and ChallengeStore with the application's session store.
//
// # Authentication
//
// This package deliberately covers registration only. Validating assertions
// during login is a separate ceremony with its own state and belongs to the
// surrounding application.
//
// Note: WebAuthn requires HTTPS for all operations. Browsers will only
// expose the WebAuthn API in secure contexts.
package enroll
