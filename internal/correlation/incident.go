package correlation

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"correlationbrain/pkg/models"
)

// BuildIncident assembles the incident record for entity from its history.
func BuildIncident(entity string, alerts []models.Alert, a Assessment, patterns []string, now time.Time) *models.Incident {
	timeline := make([]string, 0, len(alerts))
	var start, end time.Time
	var tags []string
	seenTags := make(map[string]struct{})
	for i, alert := range alerts {
		timeline = append(timeline, fmt.Sprintf("%d. [%s] %s (%s)", i+1, alert.EngineName(), alert.TypeName(), alert.SeverityName()))
		if i == 0 || alert.Timestamp.Before(start) {
			start = alert.Timestamp
		}
		if i == 0 || alert.Timestamp.After(end) {
			end = alert.Timestamp
		}
		for _, tag := range alert.Tags {
			if _, ok := seenTags[tag]; ok {
				continue
			}
			seenTags[tag] = struct{}{}
			tags = append(tags, tag)
		}
	}
	if patterns == nil {
		patterns = []string{}
	}
	engines := append([]string{}, a.Engines...)

	return &models.Incident{
		ID:        uuid.NewString(),
		Engine:    models.IncidentEngine,
		Severity:  models.SeverityCritical,
		AlertType: models.IncidentAlertType,
		CreatedAt: now,
		Details: models.IncidentDetails{
			TargetEntity:      entity,
			RiskScore:         a.Score,
			EnginesInvolved:   engines,
			EngineCount:       len(engines),
			AlertCount:        len(alerts),
			SeverityBreakdown: a.Breakdown,
			AttackPatterns:    patterns,
			Timeline:          timeline,
			RuleTags:          tags,
			WindowStart:       start,
			WindowEnd:         end,
			AttackDuration:    end.Sub(start).Seconds(),
		},
	}
}
