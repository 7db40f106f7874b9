package incidentjson

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"correlationbrain/internal/logger"
	"correlationbrain/pkg/models"
)

// Writer outputs forwarded alerts and incidents to a JSON lines file.
type Writer struct {
	file    *os.File
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewWriter creates a JSONL writer. Existing content is truncated.
func NewWriter(path string) (*Writer, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	logger.Infof("Incident JSON writer initialized: %s", path)
	return &Writer{
		file:    f,
		encoder: json.NewEncoder(f),
	}, nil
}

// WriteRecords writes a batch of records, one JSON document per line.
func (w *Writer) WriteRecords(records []models.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, rec := range records {
		if err := w.encoder.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode %s record: %w", rec.Kind(), err)
		}
	}
	return nil
}

// Close closes the output file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		err := w.file.Close()
		w.file = nil
		return err
	}
	return nil
}
