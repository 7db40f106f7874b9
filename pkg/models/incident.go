package models

import "time"

// Fixed envelope values for correlated incidents.
const (
	IncidentEngine    = "CORRELATION BRAIN"
	IncidentAlertType = "Multi-Vector Attack Incident"
)

// SeverityBreakdown counts contributing alerts per severity tier.
type SeverityBreakdown struct {
	Critical int `json:"Critical"`
	High     int `json:"High"`
	Medium   int `json:"Medium"`
	Low      int `json:"Low"`
}

// Add counts one alert of the given severity.
func (b *SeverityBreakdown) Add(s Severity) {
	switch s.Tier() {
	case SeverityCritical:
		b.Critical++
	case SeverityHigh:
		b.High++
	case SeverityMedium:
		b.Medium++
	default:
		b.Low++
	}
}

// Total returns the number of counted alerts.
func (b SeverityBreakdown) Total() int {
	return b.Critical + b.High + b.Medium + b.Low
}

// Incident is a correlated multi-alert attack signal for one entity.
type Incident struct {
	ID        string          `json:"id"`
	Engine    string          `json:"engine"`
	Severity  Severity        `json:"severity"`
	AlertType string          `json:"alertType"`
	Details   IncidentDetails `json:"details"`
	CreatedAt time.Time       `json:"created_at"`
}

// IncidentDetails is the correlation summary carried by an incident.
type IncidentDetails struct {
	TargetEntity      string            `json:"target_entity"`
	RiskScore         int               `json:"risk_score"`
	EnginesInvolved   []string          `json:"engines_involved"`
	EngineCount       int               `json:"engine_count"`
	AlertCount        int               `json:"alert_count"`
	SeverityBreakdown SeverityBreakdown `json:"severity_breakdown"`
	AttackPatterns    []string          `json:"attack_patterns"`
	Timeline          []string          `json:"timeline"`
	RuleTags          []string          `json:"rule_tags,omitempty"`
	WindowStart       time.Time         `json:"window_start"`
	WindowEnd         time.Time         `json:"window_end"`
	AttackDuration    float64           `json:"attack_duration"`
}

// Duration returns the attack duration as a time.Duration.
func (d IncidentDetails) Duration() time.Duration {
	return d.WindowEnd.Sub(d.WindowStart)
}
