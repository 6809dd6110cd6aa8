// Copyright (c) 2025 Keyward Labs
//
// This file is part of go-fido-enroll.
//
// go-fido-enroll is licensed under the GNU Affero General Public License v3.0.
// See the LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

// Package http provides router-agnostic HTTP handlers for the security-key
// enrollment ceremony.
//
// The handlers assume an already-authenticated caller: every request carries
// an X-Session-Id header, and a RegistrantResolver supplied by the
// surrounding application maps it to the account being enrolled. The handlers
// never authenticate anyone themselves.
//
// Routes:
//
//	POST /begin   start a ceremony, returns creation options plus an
//	              X-Ceremony-Id header
//	POST /finish  complete a ceremony with the attestation envelope
//	GET  /status  report whether the account has registered keys
//
// Mount on chi with MountChi, on a stdlib mux with MountStdlib, or iterate
// Routes for anything else.
//
// Failed verifications all answer with the same retryable message; the
// specific cause is visible only in the error code, the Prometheus metrics
// and the audit log.
package http
