package correlation

import "correlationbrain/pkg/models"

// Assessment is the risk evaluation of one entity's history.
type Assessment struct {
	Score     int
	RawScore  int
	Engines   []string
	Breakdown models.SeverityBreakdown
}

// SeverityWeight returns the base points of one alert.
func SeverityWeight(s models.Severity) int {
	switch s.Tier() {
	case models.SeverityCritical:
		return 40
	case models.SeverityHigh:
		return 20
	case models.SeverityMedium:
		return 10
	default:
		return 5
	}
}

// ApplyMultiplier scales a raw severity sum by the number of distinct engines,
// truncating toward zero: x1 for one engine, x1.5 for two, x2 for three, x2.5 beyond.
func ApplyMultiplier(raw, engines int) int {
	switch {
	case engines <= 1:
		return raw
	case engines == 2:
		return raw * 3 / 2
	case engines == 3:
		return raw * 2
	default:
		return raw * 5 / 2
	}
}

// Score computes the composite risk of alerts. Engines are listed in first-seen order.
func Score(alerts []models.Alert) Assessment {
	var a Assessment
	seen := make(map[string]struct{}, 4)
	for _, alert := range alerts {
		engine := alert.EngineName()
		if _, ok := seen[engine]; !ok {
			seen[engine] = struct{}{}
			a.Engines = append(a.Engines, engine)
		}
		a.Breakdown.Add(alert.Severity)
		a.RawScore += SeverityWeight(alert.Severity)
	}
	a.Score = ApplyMultiplier(a.RawScore, len(a.Engines))
	return a
}
