package pipeline

import "correlationbrain/pkg/models"

// RecordWriter delivers forwarded alerts and incidents.
type RecordWriter interface {
	WriteRecords(records []models.Record) error
	Close() error
}
