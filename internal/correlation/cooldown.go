package correlation

import "time"

// CooldownPeriod is the minimum spacing between incidents for one entity.
const CooldownPeriod = 60 * time.Second

// Cooldowns remembers when each entity last produced an incident.
// Entries are only overwritten, never expired.
type Cooldowns struct {
	period time.Duration
	last   map[string]time.Time
}

// NewCooldowns creates an empty cooldown table.
func NewCooldowns(period time.Duration) *Cooldowns {
	if period <= 0 {
		period = CooldownPeriod
	}
	return &Cooldowns{period: period, last: make(map[string]time.Time)}
}

// Admit reports whether an incident for entity may be emitted at now.
func (c *Cooldowns) Admit(entity string, now time.Time) bool {
	last, ok := c.last[entity]
	if !ok {
		return true
	}
	return now.Sub(last) >= c.period
}

// Record stores now as the entity's last incident time.
func (c *Cooldowns) Record(entity string, now time.Time) {
	c.last[entity] = now
}

// Last returns the entity's last incident time.
func (c *Cooldowns) Last(entity string) (time.Time, bool) {
	t, ok := c.last[entity]
	return t, ok
}

// Len returns the number of entities with a recorded incident.
func (c *Cooldowns) Len() int {
	return len(c.last)
}

// Clear forgets all incident times.
func (c *Cooldowns) Clear() {
	c.last = make(map[string]time.Time)
}
