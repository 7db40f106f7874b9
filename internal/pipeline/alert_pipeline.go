package pipeline

import (
	"context"
	"sync"
	"time"

	"correlationbrain/internal/correlation"
	"correlationbrain/internal/logger"
	"correlationbrain/internal/metrics"
	"correlationbrain/internal/rules"
	"correlationbrain/internal/transform/alertjson"
	"correlationbrain/pkg/models"
)

// Options tunes the alert pipeline.
type Options struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	// IncidentsOnly stops forwarding individual alerts to the writer.
	IncidentsOnly bool
}

// AlertPipeline reads alert payloads, feeds them to the brain in arrival
// order and delivers forwarded alerts and incidents.
type AlertPipeline struct {
	source  Source
	tagger  rules.Tagger
	brain   *correlation.Brain
	writer  RecordWriter
	index   IncidentIndex
	metrics *metrics.Metrics
	opts    Options
}

// NewAlertPipeline creates a pipeline. tagger, index and m may be nil.
func NewAlertPipeline(source Source, tagger rules.Tagger, brain *correlation.Brain, writer RecordWriter, index IncidentIndex, m *metrics.Metrics, opts Options) *AlertPipeline {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	return &AlertPipeline{
		source:  source,
		tagger:  tagger,
		brain:   brain,
		writer:  writer,
		index:   index,
		metrics: m,
		opts:    opts,
	}
}

// Run starts the pipeline and blocks until ctx is cancelled and pending
// records have been flushed.
func (p *AlertPipeline) Run(ctx context.Context) error {
	logger.Infof("Alert pipeline started (threshold=%d)", p.brain.Threshold())

	msgCh := make(chan []byte, p.opts.QueueSize)
	recCh := make(chan models.Record, p.opts.QueueSize)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.readLoop(ctx, msgCh)
		close(msgCh)
	}()

	// A single ingest goroutine keeps correlation in arrival order.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for payload := range msgCh {
			for _, rec := range p.Process(payload) {
				recCh <- rec
			}
		}
		close(recCh)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.writeLoop(recCh)
	}()

	wg.Wait()
	logger.Infof("Alert pipeline stopped")
	return ctx.Err()
}

// Close releases pipeline resources.
func (p *AlertPipeline) Close() error {
	if p.index != nil {
		if err := p.index.Close(); err != nil {
			logger.Errorf("Failed to close incident index: %v", err)
		}
	}
	if p.writer != nil {
		if err := p.writer.Close(); err != nil {
			logger.Errorf("Failed to close record writer: %v", err)
		}
	}
	if p.source != nil {
		return p.source.Close()
	}
	return nil
}

// Process parses, tags and correlates one payload and returns the records to
// deliver: the alert itself (unless IncidentsOnly) followed by any incident.
func (p *AlertPipeline) Process(payload []byte) []models.Record {
	alert, err := alertjson.Parse(payload)
	if err != nil {
		p.metrics.ObserveInvalid()
		logger.Warnf("Failed to parse alert: %v", err)
		return nil
	}
	if p.tagger != nil {
		alert.Tags = append(alert.Tags, p.tagger.Apply(&alert)...)
	}

	out := make([]models.Record, 0, 2)
	if !p.opts.IncidentsOnly {
		out = append(out, models.AlertRecord(alert))
	}
	if incident := p.brain.Ingest(alert); incident != nil {
		out = append(out, models.IncidentRecord(incident))
	}
	return out
}

func (p *AlertPipeline) readLoop(ctx context.Context, out chan<- []byte) {
	for {
		if ctx.Err() != nil {
			return
		}
		payload, err := p.source.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Errorf("Failed to pop alert payload: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}
		if payload == nil {
			continue
		}
		select {
		case out <- payload:
		case <-ctx.Done():
			return
		}
	}
}

func (p *AlertPipeline) writeLoop(in <-chan models.Record) {
	ticker := time.NewTicker(p.opts.FlushInterval)
	defer ticker.Stop()

	var batch []models.Record

	flush := func() {
		if len(batch) == 0 {
			return
		}
		err := p.writer.WriteRecords(batch)
		if err != nil {
			logger.Errorf("Failed to deliver %d records: %v", len(batch), err)
		}
		for _, rec := range batch {
			p.metrics.ObserveDelivery(rec.Kind(), err)
		}
		batch = nil
	}

	for {
		select {
		case <-ticker.C:
			flush()
		case rec, ok := <-in:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if rec.Incident != nil {
				p.indexIncident(rec.Incident)
				flush()
				continue
			}
			if len(batch) >= p.opts.BatchSize {
				flush()
			}
		}
	}
}

func (p *AlertPipeline) indexIncident(incident *models.Incident) {
	if p.index == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.index.RecordIncident(ctx, incident); err != nil {
		logger.Warnf("Failed to index incident for %s: %v", incident.Details.TargetEntity, err)
	}
}
