package incidentclickhouse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"correlationbrain/pkg/models"
)

// Config configures the ClickHouse HTTP writer.
type Config struct {
	URL      string
	Database string
	Table    string
	Username string
	Password string
	Timeout  time.Duration
	Headers  map[string]string
}

// Writer inserts incidents into ClickHouse via HTTP JSONEachRow.
// Forwarded alerts are not stored.
type Writer struct {
	endpoint string
	headers  map[string]string
	client   *http.Client
}

// NewWriter creates a ClickHouse HTTP writer.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("clickhouse URL is empty")
	}
	if cfg.Database == "" {
		cfg.Database = "default"
	}
	if cfg.Table == "" {
		cfg.Table = "incidents"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	q := fmt.Sprintf("INSERT INTO %s.%s FORMAT JSONEachRow", quoteIdent(cfg.Database), quoteIdent(cfg.Table))
	base := strings.TrimRight(cfg.URL, "/")
	endpoint := base + "/?date_time_input_format=best_effort&query=" + url.QueryEscape(q)

	headers := map[string]string{}
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	if cfg.Username != "" {
		headers["X-ClickHouse-User"] = cfg.Username
	}
	if cfg.Password != "" {
		headers["X-ClickHouse-Key"] = cfg.Password
	}

	return &Writer{
		endpoint: endpoint,
		headers:  headers,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Row is the flattened table layout of one incident.
type Row struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	TargetEntity   string    `json:"target_entity"`
	RiskScore      int       `json:"risk_score"`
	EngineCount    int       `json:"engine_count"`
	AlertCount     int       `json:"alert_count"`
	Engines        []string  `json:"engines"`
	AttackPatterns []string  `json:"attack_patterns"`
	Timeline       []string  `json:"timeline"`
	RuleTags       []string  `json:"rule_tags"`
	Critical       int       `json:"critical_count"`
	High           int       `json:"high_count"`
	Medium         int       `json:"medium_count"`
	Low            int       `json:"low_count"`
	WindowStart    time.Time `json:"window_start"`
	WindowEnd      time.Time `json:"window_end"`
	DurationSec    float64   `json:"attack_duration"`
}

// RowFromIncident flattens an incident.
func RowFromIncident(inc *models.Incident) Row {
	d := inc.Details
	tags := d.RuleTags
	if tags == nil {
		tags = []string{}
	}
	return Row{
		ID:             inc.ID,
		CreatedAt:      inc.CreatedAt.UTC(),
		TargetEntity:   d.TargetEntity,
		RiskScore:      d.RiskScore,
		EngineCount:    d.EngineCount,
		AlertCount:     d.AlertCount,
		Engines:        d.EnginesInvolved,
		AttackPatterns: d.AttackPatterns,
		Timeline:       d.Timeline,
		RuleTags:       tags,
		Critical:       d.SeverityBreakdown.Critical,
		High:           d.SeverityBreakdown.High,
		Medium:         d.SeverityBreakdown.Medium,
		Low:            d.SeverityBreakdown.Low,
		WindowStart:    d.WindowStart.UTC(),
		WindowEnd:      d.WindowEnd.UTC(),
		DurationSec:    d.AttackDuration,
	}
}

// WriteRecords inserts the incidents among records.
func (w *Writer) WriteRecords(records []models.Record) error {
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	rows := 0
	for _, rec := range records {
		if rec.Incident == nil {
			continue
		}
		if err := enc.Encode(RowFromIncident(rec.Incident)); err != nil {
			return fmt.Errorf("failed to marshal incident row: %w", err)
		}
		rows++
	}
	if rows == 0 {
		return nil
	}

	req, err := http.NewRequest(http.MethodPost, w.endpoint, &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("clickhouse request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("clickhouse request failed with status %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	return nil
}

// Close releases resources.
func (w *Writer) Close() error {
	return nil
}

func quoteIdent(v string) string {
	if v == "" {
		return ""
	}
	v = strings.ReplaceAll(v, "`", "")
	return "`" + v + "`"
}
