package correlation

import (
	"strings"
	"sync"
	"time"

	"correlationbrain/internal/logger"
	"correlationbrain/internal/metrics"
	"correlationbrain/pkg/models"
)

// Defaults for Config.
const (
	DefaultThreshold = 60
	DefaultWindow    = 15 * time.Minute
)

// Config controls correlation behavior.
type Config struct {
	Threshold int
	Window    time.Duration

	// EvaluateAll scores every entity of an alert and emits the highest-scoring
	// admitted one instead of stopping at the first qualifying entity.
	EvaluateAll bool
	// ClearOnIncident forgets an entity's history once it produces an incident.
	ClearOnIncident bool
	// ExtendedPatterns enables the lateral-movement signature.
	ExtendedPatterns bool

	Now     func() time.Time
	Metrics *metrics.Metrics
}

// Brain correlates alerts from independent engines by shared entities and
// emits throttled incidents. All methods are safe for concurrent use; each
// Ingest call runs as one atomic unit.
type Brain struct {
	mu        sync.Mutex
	cfg       Config
	memory    *Memory
	cooldowns *Cooldowns
	matcher   *Matcher
	now       func() time.Time
	metrics   *metrics.Metrics

	totalAlerts int
	incidents   int
}

// New creates a correlation brain.
func New(cfg Config) *Brain {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger.Infof("Correlation brain initialized: threshold=%d window=%s", cfg.Threshold, cfg.Window)
	return &Brain{
		cfg:       cfg,
		memory:    NewMemory(cfg.Window),
		cooldowns: NewCooldowns(CooldownPeriod),
		matcher:   NewMatcher(cfg.ExtendedPatterns),
		now:       cfg.Now,
		metrics:   cfg.Metrics,
	}
}

// Threshold returns the configured incident threshold.
func (b *Brain) Threshold() int {
	return b.cfg.Threshold
}

// Ingest records alert against its entities and returns an incident when one
// of them crosses the threshold outside its cooldown. It returns nil otherwise.
func (b *Brain) Ingest(alert models.Alert) *models.Incident {
	started := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.memory.Prune(now)
	b.totalAlerts++
	alert.Timestamp = now

	entities := ExtractEntities(alert)
	defer func() {
		b.metrics.ObserveIngest(alert.Engine, len(entities), b.memory.Len(), time.Since(started))
	}()
	if len(entities) == 0 {
		logger.Debugf("Alert from %s carries no entities; not correlated", alert.EngineName())
		return nil
	}

	if b.cfg.EvaluateAll {
		return b.evaluateAll(entities, alert, now)
	}

	for _, entity := range entities {
		b.memory.Append(entity, alert)
		history := b.memory.Get(entity)
		assessment := Score(history)
		if assessment.Score < b.cfg.Threshold {
			continue
		}
		if !b.cooldowns.Admit(entity, now) {
			b.metrics.ObserveSuppressed()
			logger.Debugf("Incident for %s suppressed by cooldown (score=%d)", entity, assessment.Score)
			continue
		}
		return b.emit(entity, history, assessment, now)
	}
	return nil
}

func (b *Brain) evaluateAll(entities []string, alert models.Alert, now time.Time) *models.Incident {
	bestEntity := ""
	var bestHistory []models.Alert
	var best Assessment
	for _, entity := range entities {
		b.memory.Append(entity, alert)
		history := b.memory.Get(entity)
		assessment := Score(history)
		if assessment.Score < b.cfg.Threshold {
			continue
		}
		if !b.cooldowns.Admit(entity, now) {
			b.metrics.ObserveSuppressed()
			continue
		}
		if bestEntity == "" || assessment.Score > best.Score {
			bestEntity, bestHistory, best = entity, history, assessment
		}
	}
	if bestEntity == "" {
		return nil
	}
	return b.emit(bestEntity, bestHistory, best, now)
}

func (b *Brain) emit(entity string, history []models.Alert, a Assessment, now time.Time) *models.Incident {
	b.cooldowns.Record(entity, now)
	b.incidents++

	patterns := b.matcher.Match(history)
	incident := BuildIncident(entity, history, a, patterns, now)
	if b.cfg.ClearOnIncident {
		b.memory.Forget(entity)
	}

	logger.Infof("Incident detected: target=%s score=%d threshold=%d engines=[%s] alerts=%d patterns=[%s]",
		entity, a.Score, b.cfg.Threshold, strings.Join(a.Engines, ", "), len(history), strings.Join(patterns, ", "))
	b.metrics.ObserveIncident(patterns)
	return incident
}

// Statistics returns counters and a snapshot of the entities currently in memory.
func (b *Brain) Statistics() models.Statistics {
	b.mu.Lock()
	defer b.mu.Unlock()

	entities := b.memory.Entities()
	active := make([]models.EntitySummary, 0, len(entities))
	for _, entity := range entities {
		alerts := b.memory.Get(entity)
		active = append(active, models.EntitySummary{
			Entity:     entity,
			AlertCount: len(alerts),
			Engines:    Score(alerts).Engines,
		})
	}
	return models.Statistics{
		TotalAlertsProcessed: b.totalAlerts,
		IncidentsGenerated:   b.incidents,
		EntitiesTracked:      len(entities),
		ActiveEntities:       active,
	}
}

// History returns the alerts currently remembered for entity.
func (b *Brain) History(entity string) []models.Alert {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.memory.Get(entity)
}

// Reset clears memory, cooldowns and counters.
func (b *Brain) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.memory.Clear()
	b.cooldowns.Clear()
	b.totalAlerts = 0
	b.incidents = 0
	logger.Infof("Correlation brain reset")
}
