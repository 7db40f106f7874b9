package rules

import "correlationbrain/pkg/models"

// Tagger labels alerts with the titles of matching detection rules.
type Tagger interface {
	Apply(alert *models.Alert) []string
}

// NoopTagger returns no tags.
type NoopTagger struct{}

// Apply returns an empty tag list.
func (n *NoopTagger) Apply(alert *models.Alert) []string {
	return nil
}
