package correlation

import (
	"testing"
	"time"

	"correlationbrain/pkg/models"
)

func TestMemoryPruneDropsAlertsAtWindowBoundary(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(15 * time.Minute)

	old := newAlert(models.EngineIDS, models.SeverityHigh, nil)
	old.Timestamp = base
	fresh := newAlert(models.EngineTraffic, models.SeverityLow, nil)
	fresh.Timestamp = base.Add(time.Minute)

	m.Append("10.0.0.1", old)
	m.Append("10.0.0.1", fresh)
	m.Append("USER:bob", old)

	if dropped := m.Prune(base.Add(15*time.Minute - time.Nanosecond)); dropped != 0 {
		t.Fatalf("expected nothing pruned inside the window, dropped %d", dropped)
	}

	if dropped := m.Prune(base.Add(15 * time.Minute)); dropped != 2 {
		t.Fatalf("expected 2 alerts dropped at the boundary, got %d", dropped)
	}
	if m.Len() != 1 {
		t.Fatalf("expected empty entity to be removed, have %v", m.Entities())
	}
	got := m.Get("10.0.0.1")
	if len(got) != 1 || got[0].Engine != models.EngineTraffic {
		t.Fatalf("unexpected remaining alerts: %+v", got)
	}
	if m.Get("USER:bob") != nil {
		t.Fatalf("expected USER:bob to be gone")
	}
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	m := NewMemory(time.Minute)
	m.Append("e", newAlert(models.EngineIDS, models.SeverityHigh, nil))

	got := m.Get("e")
	got[0].Engine = "mutated"
	if m.Get("e")[0].Engine != models.EngineIDS {
		t.Fatalf("memory was mutated through Get")
	}
}

func TestMemoryDefaultsWindow(t *testing.T) {
	if w := NewMemory(0).Window(); w != DefaultWindow {
		t.Fatalf("expected default window, got %s", w)
	}
}
