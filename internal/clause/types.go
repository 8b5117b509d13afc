// Package clause turns raw analysis records into well-formed clauses and
// guards the original-text capture invariant.
package clause

import (
	"errors"
	"strings"
)

// RiskLevel classifies how dangerous a clause is for the signing party.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ParseRiskLevel normalizes a risk label from the analysis service.
// Matching is case-insensitive; anything unrecognized maps to low.
func ParseRiskLevel(raw string) RiskLevel {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "critical":
		return RiskCritical
	case "high":
		return RiskHigh
	case "medium":
		return RiskMedium
	default:
		return RiskLow
	}
}

// Clause is one extracted unit of contract text with risk metadata and an
// optional suggested replacement.
//
// OriginalText is write-once: it is set at ingestion (or reconstructed for
// degraded records) and never reassigned afterwards. CurrentText equals
// OriginalText until the clause is accepted, then equals SaferAlternative.
type Clause struct {
	ID               string
	Title            string
	Risk             RiskLevel
	OriginalText     string
	CurrentText      string
	SaferAlternative string
	Confidence       float64
	Explanation      string
	Accepted         bool
	Degraded         bool
}

// HasSaferAlternative reports whether the analysis produced a replacement.
func (c *Clause) HasSaferAlternative() bool {
	return strings.TrimSpace(c.SaferAlternative) != ""
}

// Raw is one element of the analysis service's response, loosely typed the
// way the collaborator emits it.
type Raw struct {
	Text             string  `json:"text"`
	Label            string  `json:"label"`
	RiskLevel        string  `json:"risk_level"`
	Confidence       float64 `json:"confidence"`
	RuleSummary      string  `json:"rule_summary"`
	SaferAlternative *string `json:"safer_alternative"`
	OriginalText     *string `json:"original_text,omitempty"`
	Accepted         *bool   `json:"accepted,omitempty"`
}

// Warning records a non-fatal data-integrity problem found during ingestion.
type Warning struct {
	ClauseID string
	Message  string
}

var ErrNotFound = errors.New("clause not found")
