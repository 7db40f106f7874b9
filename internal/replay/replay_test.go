package replay

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"correlationbrain/internal/correlation"
	"correlationbrain/pkg/models"
)

func writeLines(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alerts.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path
}

func TestAPTChainScenarioProducesOneIncident(t *testing.T) {
	entries := make([]Entry, 0, 3)
	for _, a := range APTChainScenario("192.168.1.100") {
		entries = append(entries, Entry{Alert: a})
	}

	res := Run(entries, Options{Start: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)})
	if len(res.Incidents) != 1 {
		t.Fatalf("expected 1 incident, got %d", len(res.Incidents))
	}
	inc := res.Incidents[0]
	if inc.Details.TargetEntity != "192.168.1.100" || inc.Details.RiskScore != 75 {
		t.Fatalf("unexpected incident %+v", inc.Details)
	}
	if res.Statistics.TotalAlertsProcessed != 3 || res.Statistics.IncidentsGenerated != 1 {
		t.Fatalf("unexpected statistics %+v", res.Statistics)
	}
	if res.Statistics.EntitiesTracked != 3 {
		t.Fatalf("expected ip, file and destination entities, got %+v", res.Statistics.ActiveEntities)
	}
}

func TestLoadAlertsJSONLSkipsInvalidLines(t *testing.T) {
	path := writeLines(t,
		`{"engine":"IDS","severity":"High","alertType":"Port Scan","details":{"source_ip":"10.0.0.1"}}`,
		``,
		`not json`,
		`{"severity":"High"}`,
		`{"engine":"UEBA","severity":"Low","details":{"username":"bob"},"timestamp":"2026-03-01T12:00:00Z"}`,
	)

	entries, stats, err := LoadAlertsJSONL(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if stats.Lines != 4 || stats.Loaded != 2 || stats.Skipped != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if !entries[0].At.IsZero() {
		t.Fatalf("first entry has no timestamp")
	}
	if !entries[1].At.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp %s", entries[1].At)
	}
}

func TestRunHonoursRecordedTimestamps(t *testing.T) {
	path := writeLines(t,
		`{"engine":"Artifact Engine","severity":"Critical","details":{"source_ip":"10.0.0.5"},"timestamp":"2026-03-01T12:00:00Z"}`,
		`{"engine":"Traffic Engine","severity":"Critical","details":{"source_ip":"10.0.0.5"},"timestamp":"2026-03-01T12:20:00Z"}`,
		`{"engine":"IDS","severity":"Critical","details":{"source_ip":"10.0.0.5"}}`,
	)
	entries, _, err := LoadAlertsJSONL(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	res := Run(entries, Options{Brain: correlation.Config{Threshold: 60}, Step: 10 * time.Second})
	if len(res.Incidents) != 1 {
		t.Fatalf("expected only the last two alerts to correlate, got %d incidents", len(res.Incidents))
	}
	d := res.Incidents[0].Details
	if d.AlertCount != 2 || d.AttackDuration != 10 {
		t.Fatalf("unexpected incident details %+v", d)
	}
}

func TestWriteJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "incidents.jsonl")
	rows := []models.Statistics{{TotalAlertsProcessed: 1}, {TotalAlertsProcessed: 2}}
	if err := WriteJSONLines(path, rows); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var got models.Statistics
	if err := json.Unmarshal([]byte(lines[1]), &got); err != nil || got.TotalAlertsProcessed != 2 {
		t.Fatalf("unexpected second line %q", lines[1])
	}
}
