package correlation

import "correlationbrain/pkg/models"

// Attack-chain labels attached to incidents.
const (
	LabelAPTChain         = "APT_CHAIN: Malware → C2 Communication → Known Threat"
	LabelInsiderThreat    = "INSIDER_THREAT: Suspicious User + Data Exfiltration"
	LabelNetworkAttack    = "NETWORK_ATTACK: Intrusion Attempt + Anomalous Traffic"
	LabelMalwareOutbreak  = "MALWARE_OUTBREAK: Multiple Malicious Files Detected"
	LabelMultiStageAttack = "MULTI_STAGE_ATTACK: Coordinated Attack Across Multiple Vectors"
	LabelLateralMovement  = "LATERAL_MOVEMENT: Multiple Hosts + Suspicious User or Intrusion Activity"
)

// chainView is the per-history summary the pattern rules read.
type chainView struct {
	engines map[string]struct{}
	alerts  []models.Alert
}

func (v chainView) has(engines ...string) bool {
	for _, e := range engines {
		if _, ok := v.engines[e]; !ok {
			return false
		}
	}
	return true
}

func (v chainView) count(engine string) int {
	n := 0
	for _, a := range v.alerts {
		if a.EngineName() == engine {
			n++
		}
	}
	return n
}

// Pattern is one named attack-chain signature.
type Pattern struct {
	Label string
	match func(chainView) bool
}

// CorePatterns are evaluated for every incident, in this order.
var CorePatterns = []Pattern{
	{Label: LabelAPTChain, match: func(v chainView) bool {
		return v.has(models.EngineArtifact, models.EngineTraffic, models.EngineThreatIntel)
	}},
	{Label: LabelInsiderThreat, match: func(v chainView) bool {
		return v.has(models.EngineUEBA) && (v.has(models.EngineTraffic) || v.has(models.EngineArtifact))
	}},
	{Label: LabelNetworkAttack, match: func(v chainView) bool {
		return v.has(models.EngineIDS, models.EngineTraffic)
	}},
	{Label: LabelMalwareOutbreak, match: func(v chainView) bool {
		return v.count(models.EngineArtifact) >= 2
	}},
	{Label: LabelMultiStageAttack, match: func(v chainView) bool {
		return len(v.engines) >= 4
	}},
}

// LateralMovementPattern is opt-in; see Config.ExtendedPatterns.
var LateralMovementPattern = Pattern{Label: LabelLateralMovement, match: func(v chainView) bool {
	return DetectLateralMovement(v.alerts)
}}

// Matcher evaluates a fixed list of patterns.
type Matcher struct {
	patterns []Pattern
}

// NewMatcher returns a matcher over the core patterns, plus lateral movement when extended is set.
func NewMatcher(extended bool) *Matcher {
	patterns := append([]Pattern(nil), CorePatterns...)
	if extended {
		patterns = append(patterns, LateralMovementPattern)
	}
	return &Matcher{patterns: patterns}
}

// Match returns the labels of every pattern satisfied by alerts. Never nil.
func (m *Matcher) Match(alerts []models.Alert) []string {
	view := chainView{engines: make(map[string]struct{}, 4), alerts: alerts}
	for _, a := range alerts {
		view.engines[a.EngineName()] = struct{}{}
	}
	out := make([]string, 0, 2)
	for _, p := range m.patterns {
		if p.match(view) {
			out = append(out, p.Label)
		}
	}
	return out
}

// MatchPatterns evaluates the core patterns.
func MatchPatterns(alerts []models.Alert) []string {
	return NewMatcher(false).Match(alerts)
}

// DetectLateralMovement reports two or more distinct host IPs together with
// behavioral or intrusion activity.
func DetectLateralMovement(alerts []models.Alert) bool {
	ips := make(map[string]struct{}, 4)
	suspicious := false
	for _, a := range alerts {
		for _, field := range []string{"ip_address", "source_ip"} {
			if v, ok := a.Details.Field(field); ok && !v.IsNull() {
				ips[v.String()] = struct{}{}
			}
		}
		if name := a.EngineName(); name == models.EngineUEBA || name == models.EngineIDS {
			suspicious = true
		}
	}
	return len(ips) >= 2 && suspicious
}
