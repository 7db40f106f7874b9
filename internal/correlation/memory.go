package correlation

import (
	"sort"
	"time"

	"correlationbrain/pkg/models"
)

// Memory holds the recent alerts of every entity in arrival order.
// It is not safe for concurrent use; Brain serialises access.
type Memory struct {
	window  time.Duration
	entries map[string][]models.Alert
}

// NewMemory creates an empty store that retains alerts for window.
func NewMemory(window time.Duration) *Memory {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Memory{
		window:  window,
		entries: make(map[string][]models.Alert),
	}
}

// Window returns the retention horizon.
func (m *Memory) Window() time.Duration {
	return m.window
}

// Prune drops alerts with now-ts >= window and removes entities left empty.
// It returns the number of alerts dropped.
func (m *Memory) Prune(now time.Time) int {
	dropped := 0
	for entity, alerts := range m.entries {
		kept := alerts[:0]
		for _, a := range alerts {
			if now.Sub(a.Timestamp) < m.window {
				kept = append(kept, a)
			}
		}
		dropped += len(alerts) - len(kept)
		if len(kept) == 0 {
			delete(m.entries, entity)
			continue
		}
		m.entries[entity] = kept
	}
	return dropped
}

// Append records alert under entity.
func (m *Memory) Append(entity string, alert models.Alert) {
	m.entries[entity] = append(m.entries[entity], alert)
}

// Get returns a copy of the entity's alerts.
func (m *Memory) Get(entity string) []models.Alert {
	alerts := m.entries[entity]
	if len(alerts) == 0 {
		return nil
	}
	out := make([]models.Alert, len(alerts))
	copy(out, alerts)
	return out
}

// Len returns the number of tracked entities.
func (m *Memory) Len() int {
	return len(m.entries)
}

// Entities returns tracked entity keys in sorted order.
func (m *Memory) Entities() []string {
	out := make([]string, 0, len(m.entries))
	for entity := range m.entries {
		out = append(out, entity)
	}
	sort.Strings(out)
	return out
}

// Forget removes all alerts of one entity.
func (m *Memory) Forget(entity string) {
	delete(m.entries, entity)
}

// Clear removes everything.
func (m *Memory) Clear() {
	m.entries = make(map[string][]models.Alert)
}
