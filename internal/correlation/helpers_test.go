package correlation

import (
	"time"

	"correlationbrain/pkg/models"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newAlert(engine string, sev models.Severity, details map[string]interface{}) models.Alert {
	return models.Alert{
		Engine:    engine,
		Severity:  sev,
		AlertType: engine + " detection",
		Details:   models.FromAny(details),
	}
}

func ip(addr string) map[string]interface{} {
	return map[string]interface{}{"source_ip": addr}
}
