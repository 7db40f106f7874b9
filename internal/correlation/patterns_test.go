package correlation

import (
	"reflect"
	"testing"

	"correlationbrain/pkg/models"
)

func alertsFrom(engines ...string) []models.Alert {
	out := make([]models.Alert, 0, len(engines))
	for _, e := range engines {
		out = append(out, newAlert(e, models.SeverityHigh, nil))
	}
	return out
}

func TestPatternsFireInIsolation(t *testing.T) {
	cases := []struct {
		name    string
		engines []string
		want    []string
	}{
		{"apt chain", []string{models.EngineArtifact, models.EngineTraffic, models.EngineThreatIntel}, []string{LabelAPTChain}},
		{"insider threat via traffic", []string{models.EngineUEBA, models.EngineTraffic}, []string{LabelInsiderThreat}},
		{"insider threat via artifact", []string{models.EngineUEBA, models.EngineArtifact}, []string{LabelInsiderThreat}},
		{"network attack", []string{models.EngineIDS, models.EngineTraffic}, []string{LabelNetworkAttack}},
		{"malware outbreak", []string{models.EngineArtifact, models.EngineArtifact}, []string{LabelMalwareOutbreak}},
		{"multi stage", []string{models.EngineIDS, models.EngineThreatIntel, models.EngineArtifact, "Sandbox"}, []string{LabelMultiStageAttack}},
		{"artifact and traffic only", []string{models.EngineArtifact, models.EngineTraffic}, []string{}},
		{"empty", nil, []string{}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := MatchPatterns(alertsFrom(c.engines...))
			if !reflect.DeepEqual(got, c.want) {
				t.Fatalf("got %v want %v", got, c.want)
			}
		})
	}
}

func TestPatternsCombine(t *testing.T) {
	got := MatchPatterns(alertsFrom(
		models.EngineArtifact, models.EngineTraffic, models.EngineThreatIntel,
		models.EngineUEBA, models.EngineIDS, models.EngineArtifact,
	))
	want := []string{LabelAPTChain, LabelInsiderThreat, LabelNetworkAttack, LabelMalwareOutbreak, LabelMultiStageAttack}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestLateralMovementIsOptIn(t *testing.T) {
	alerts := []models.Alert{
		newAlert(models.EngineUEBA, models.SeverityHigh, map[string]interface{}{"ip_address": "10.0.0.1", "username": "bob"}),
		newAlert(models.EngineUEBA, models.SeverityHigh, map[string]interface{}{"source_ip": "10.0.0.2", "username": "bob"}),
	}

	if got := MatchPatterns(alerts); len(got) != 0 {
		t.Fatalf("core matcher should not report lateral movement, got %v", got)
	}
	got := NewMatcher(true).Match(alerts)
	if !reflect.DeepEqual(got, []string{LabelLateralMovement}) {
		t.Fatalf("expected lateral movement, got %v", got)
	}
}

func TestDetectLateralMovementNeedsSuspiciousEngine(t *testing.T) {
	alerts := []models.Alert{
		newAlert(models.EngineTraffic, models.SeverityHigh, ip("10.0.0.1")),
		newAlert(models.EngineTraffic, models.SeverityHigh, ip("10.0.0.2")),
	}
	if DetectLateralMovement(alerts) {
		t.Fatalf("traffic-only history must not count as lateral movement")
	}
	alerts = append(alerts, newAlert(models.EngineIDS, models.SeverityHigh, nil))
	if !DetectLateralMovement(alerts) {
		t.Fatalf("expected lateral movement once IDS joins")
	}
}

func TestPatternsCountEnginesLikeScore(t *testing.T) {
	alerts := alertsFrom(models.EngineIDS, models.EngineThreatIntel, "", models.EngineUnknown)

	if n := len(Score(alerts).Engines); n != 3 {
		t.Fatalf("expected 3 scored engines, got %d", n)
	}
	if got := MatchPatterns(alerts); len(got) != 0 {
		t.Fatalf("missing engine should count as Unknown, got patterns %v", got)
	}
}
