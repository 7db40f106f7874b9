package pipeline

import (
	"context"

	"correlationbrain/pkg/models"
)

// IncidentIndex updates a derived per-entity incident index.
type IncidentIndex interface {
	RecordIncident(ctx context.Context, incident *models.Incident) error
	Close() error
}
