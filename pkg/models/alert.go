package models

import (
	"strings"
	"time"
)

// Severity is the alert severity tier.
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
)

// Detection source names as emitted by the detector.
const (
	EngineIDS         = "IDS"
	EngineTraffic     = "Traffic Engine"
	EngineUEBA        = "UEBA"
	EngineArtifact    = "Artifact Engine"
	EngineThreatIntel = "Threat Intelligence"
	EngineUnknown     = "Unknown"
	AlertTypeUnknown  = "Unknown"
)

// ParseSeverity maps a case-insensitive severity name onto its canonical tier.
// Unrecognised values are returned unchanged.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical
	case "high":
		return SeverityHigh
	case "medium":
		return SeverityMedium
	case "low":
		return SeverityLow
	default:
		return Severity(strings.TrimSpace(s))
	}
}

// Tier returns the scoring tier; anything unknown or missing counts as Low.
func (s Severity) Tier() Severity {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium:
		return s
	default:
		return SeverityLow
	}
}

// Alert is one detection produced by an upstream engine.
// Timestamp is assigned at ingestion and never read from the wire.
type Alert struct {
	Engine    string    `json:"engine"`
	Severity  Severity  `json:"severity"`
	AlertType string    `json:"alertType"`
	Details   Value     `json:"details"`
	Tags      []string  `json:"tags,omitempty"`
	Timestamp time.Time `json:"-"`
}

// EngineName returns the engine, or "Unknown" when it is missing.
func (a Alert) EngineName() string {
	if a.Engine == "" {
		return EngineUnknown
	}
	return a.Engine
}

// TypeName returns the alert type, or "Unknown" when it is missing.
func (a Alert) TypeName() string {
	if a.AlertType == "" {
		return AlertTypeUnknown
	}
	return a.AlertType
}

// SeverityName returns the severity label, defaulting to Low.
func (a Alert) SeverityName() Severity {
	if a.Severity == "" {
		return SeverityLow
	}
	return a.Severity
}
