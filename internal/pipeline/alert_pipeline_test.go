package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"correlationbrain/internal/correlation"
	"correlationbrain/internal/metrics"
	"correlationbrain/pkg/models"
)

type chanSource struct {
	ch     chan []byte
	closed bool
}

func newChanSource(payloads ...string) *chanSource {
	ch := make(chan []byte, len(payloads))
	for _, p := range payloads {
		ch <- []byte(p)
	}
	return &chanSource{ch: ch}
}

func (s *chanSource) Pop(ctx context.Context) ([]byte, error) {
	select {
	case p := <-s.ch:
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *chanSource) Close() error {
	s.closed = true
	return nil
}

type memoryWriter struct {
	mu       sync.Mutex
	records  []models.Record
	incident chan struct{}
	fail     bool
	closed   bool
}

func newMemoryWriter() *memoryWriter {
	return &memoryWriter{incident: make(chan struct{}, 8)}
}

func (w *memoryWriter) WriteRecords(records []models.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.records = append(w.records, records...)
	for _, r := range records {
		if r.Incident != nil {
			w.incident <- struct{}{}
		}
	}
	if w.fail {
		return errors.New("backend unavailable")
	}
	return nil
}

func (w *memoryWriter) Close() error {
	w.closed = true
	return nil
}

func (w *memoryWriter) kinds() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.records))
	for _, r := range w.records {
		out = append(out, r.Kind())
	}
	return out
}

type memoryIndex struct {
	mu        sync.Mutex
	incidents []*models.Incident
}

func (i *memoryIndex) RecordIncident(ctx context.Context, incident *models.Incident) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.incidents = append(i.incidents, incident)
	return nil
}

func (i *memoryIndex) Close() error { return nil }

type staticTagger struct{ tag string }

func (t staticTagger) Apply(alert *models.Alert) []string { return []string{t.tag} }

const (
	artifactCritical = `{"engine":"Artifact Engine","severity":"Critical","alertType":"Malware Detected","details":{"source_ip":"10.0.0.5","file_hash":"abc"}}`
	trafficMedium    = `{"engine":"Traffic Engine","severity":"Medium","alertType":"Suspicious Flow","details":{"flow_data":{"SourceIP":"10.0.0.5"}}}`
)

func TestAlertPipelineRunDeliversAlertsThenIncident(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	brain := correlation.New(correlation.Config{Metrics: m})
	source := newChanSource(`not json`, artifactCritical, trafficMedium)
	writer := newMemoryWriter()
	index := &memoryIndex{}

	p := NewAlertPipeline(source, nil, brain, writer, index, m, Options{FlushInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case <-writer.incident:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for incident delivery")
	}
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not stop")
	}
	require.NoError(t, p.Close())

	assert.Equal(t, []string{"alert", "alert", "incident"}, writer.kinds())
	assert.True(t, writer.closed)
	assert.True(t, source.closed)

	require.Len(t, index.incidents, 1)
	assert.Equal(t, "10.0.0.5", index.incidents[0].Details.TargetEntity)
	assert.Equal(t, 75, index.incidents[0].Details.RiskScore)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.InvalidPayloads))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("incident", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("alert", "ok")))
	assert.Equal(t, 2, brain.Statistics().TotalAlertsProcessed)
}

func TestAlertPipelineCountsFailedDeliveries(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	brain := correlation.New(correlation.Config{})
	writer := newMemoryWriter()
	writer.fail = true

	p := NewAlertPipeline(newChanSource(artifactCritical, trafficMedium), nil, brain, writer, nil, m, Options{FlushInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case <-writer.incident:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for incident delivery")
	}
	cancel()
	<-done

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("incident", "error")))
	assert.Equal(t, 1, brain.Statistics().IncidentsGenerated)
}

func TestProcessIncidentsOnlyAndTagging(t *testing.T) {
	brain := correlation.New(correlation.Config{})
	p := NewAlertPipeline(nil, staticTagger{tag: "Known Bad"}, brain, newMemoryWriter(), nil, nil, Options{IncidentsOnly: true})

	assert.Empty(t, p.Process([]byte(artifactCritical)))
	recs := p.Process([]byte(trafficMedium))
	require.Len(t, recs, 1)
	require.NotNil(t, recs[0].Incident)
	assert.Equal(t, []string{"Known Bad"}, recs[0].Incident.Details.RuleTags)

	assert.Nil(t, p.Process([]byte(`{"severity":"High"}`)))
}
