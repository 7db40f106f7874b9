package incidentnats

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"correlationbrain/internal/logger"
	"correlationbrain/pkg/models"
)

// Config configures the NATS writer.
type Config struct {
	URL                string
	Name               string
	AlertSubjectPrefix string
	IncidentSubject    string
}

type publisher interface {
	Publish(subject string, data []byte) error
}

// Writer publishes forwarded alerts on <prefix>.<engine> and incidents on a
// single subject.
type Writer struct {
	pub             publisher
	conn            *nats.Conn
	alertPrefix     string
	incidentSubject string
}

// NewWriter connects to NATS and returns a writer.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Name == "" {
		cfg.Name = "correlationbrain-publisher"
	}
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	w := newWriter(conn, cfg)
	w.conn = conn
	logger.Infof("NATS writer initialized: alerts=%s.* incidents=%s", w.alertPrefix, w.incidentSubject)
	return w, nil
}

func newWriter(pub publisher, cfg Config) *Writer {
	if cfg.AlertSubjectPrefix == "" {
		cfg.AlertSubjectPrefix = "correlated.alerts"
	}
	if cfg.IncidentSubject == "" {
		cfg.IncidentSubject = "correlated.incidents"
	}
	return &Writer{
		pub:             pub,
		alertPrefix:     strings.TrimSuffix(cfg.AlertSubjectPrefix, "."),
		incidentSubject: cfg.IncidentSubject,
	}
}

// Subject returns the subject a record is published on.
func (w *Writer) Subject(rec models.Record) string {
	if rec.Incident != nil {
		return w.incidentSubject
	}
	engine := "unknown"
	if rec.Alert != nil {
		engine = subjectToken(rec.Alert.EngineName())
	}
	return w.alertPrefix + "." + engine
}

// WriteRecords publishes every record.
func (w *Writer) WriteRecords(records []models.Record) error {
	var errs []error
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			errs = append(errs, fmt.Errorf("marshal %s: %w", rec.Kind(), err))
			continue
		}
		if err := w.pub.Publish(w.Subject(rec), data); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", rec.Kind(), err))
		}
	}
	return errors.Join(errs...)
}

// Close flushes pending messages and closes the connection.
func (w *Writer) Close() error {
	if w.conn == nil {
		return nil
	}
	return w.conn.Drain()
}

// subjectToken turns "Traffic Engine" into "traffic_engine".
func subjectToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '.', '*', '>', '\t':
			return '_'
		}
		return r
	}, s)
}
