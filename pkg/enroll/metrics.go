// Copyright (c) 2025 Keyward Labs
//
// This file is part of go-fido-enroll.
//
// go-fido-enroll is licensed under the GNU Affero General Public License v3.0.
// See the LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package enroll

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all enrollment metrics
	Namespace = "fido_enroll"

	// Label names
	LabelPhase  = "phase"
	LabelStatus = "status"
	LabelReason = "reason"

	// Phase values
	PhaseBegin  = "begin"
	PhaseFinish = "finish"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	// CeremoniesTotal tracks registration ceremony phases by outcome.
	CeremoniesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ceremonies_total",
			Help:      "Total number of registration ceremony phases by outcome",
		},
		[]string{LabelPhase, LabelStatus},
	)

	// FailuresTotal tracks verification failures by reason.
	FailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "failures_total",
			Help:      "Total number of registration failures by reason",
		},
		[]string{LabelReason},
	)
)

func recordCeremony(phase, status string) {
	CeremoniesTotal.WithLabelValues(phase, status).Inc()
}

func recordFailure(err error) {
	CeremoniesTotal.WithLabelValues(PhaseFinish, StatusError).Inc()
	FailuresTotal.WithLabelValues(failureReason(err)).Inc()
}

// failureReason maps an error to its metric label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrMalformedPayload):
		return "malformed_payload"
	case errors.Is(err, ErrCeremonyExpired):
		return "ceremony_expired"
	case errors.Is(err, ErrOriginMismatch):
		return "origin_mismatch"
	case errors.Is(err, ErrChallengeMismatch):
		return "challenge_mismatch"
	case errors.Is(err, ErrAttestationInvalid):
		return "attestation_invalid"
	case errors.Is(err, ErrDuplicateCredential):
		return "duplicate_credential"
	default:
		return "internal"
	}
}
