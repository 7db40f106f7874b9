package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"correlationbrain/internal/correlation"
	"correlationbrain/internal/logger"
	"correlationbrain/internal/rules"
	"correlationbrain/internal/transform/alertjson"
	"correlationbrain/pkg/models"
)

// Entry is one recorded alert. At is zero when the line carried no timestamp.
type Entry struct {
	Alert models.Alert
	At    time.Time
}

// LoadStats counts the lines read from a capture.
type LoadStats struct {
	Lines   int
	Loaded  int
	Skipped int
}

type timestampEnvelope struct {
	Timestamp string `json:"timestamp"`
}

// LoadAlertsJSONL reads one alert per line. Lines that are not valid alerts
// are skipped and counted. An optional RFC3339 "timestamp" field sets the
// arrival time used during replay.
func LoadAlertsJSONL(path string) ([]Entry, LoadStats, error) {
	var stats LoadStats
	f, err := os.Open(path)
	if err != nil {
		return nil, stats, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	entries := make([]Entry, 0, 256)
	s := bufio.NewScanner(f)
	buf := make([]byte, 0, 1024*1024)
	s.Buffer(buf, 8*1024*1024)

	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		stats.Lines++
		alert, err := alertjson.Parse([]byte(line))
		if err != nil {
			stats.Skipped++
			logger.Debugf("Skipping replay line %d: %v", stats.Lines, err)
			continue
		}
		entry := Entry{Alert: alert}
		var env timestampEnvelope
		if err := json.Unmarshal([]byte(line), &env); err == nil && env.Timestamp != "" {
			if t, err := time.Parse(time.RFC3339Nano, env.Timestamp); err == nil {
				entry.At = t.UTC()
			}
		}
		entries = append(entries, entry)
		stats.Loaded++
	}
	if err := s.Err(); err != nil {
		return nil, stats, fmt.Errorf("scan input: %w", err)
	}
	return entries, stats, nil
}

// Options controls a replay run.
type Options struct {
	Brain correlation.Config
	// Start is the clock value of the first alert. It defaults to the first
	// entry's timestamp, or the current time.
	Start time.Time
	// Step advances the clock between alerts without timestamps.
	Step   time.Duration
	Tagger rules.Tagger
}

// Result is the outcome of a replay run.
type Result struct {
	Incidents  []*models.Incident
	Statistics models.Statistics
}

// Run feeds entries through a fresh brain on a simulated clock that never
// moves backwards.
func Run(entries []Entry, opts Options) Result {
	if opts.Step <= 0 {
		opts.Step = time.Second
	}
	if opts.Start.IsZero() {
		opts.Start = time.Now().UTC()
		if len(entries) > 0 && !entries[0].At.IsZero() {
			opts.Start = entries[0].At
		}
	}

	clock := opts.Start
	cfg := opts.Brain
	cfg.Now = func() time.Time { return clock }
	brain := correlation.New(cfg)

	var res Result
	for i, e := range entries {
		switch {
		case !e.At.IsZero() && e.At.After(clock):
			clock = e.At
		case i > 0 && e.At.IsZero():
			clock = clock.Add(opts.Step)
		}
		alert := e.Alert
		if opts.Tagger != nil {
			alert.Tags = append(alert.Tags, opts.Tagger.Apply(&alert)...)
		}
		if inc := brain.Ingest(alert); inc != nil {
			res.Incidents = append(res.Incidents, inc)
		}
	}
	res.Statistics = brain.Statistics()
	return res
}

// WriteJSONLines writes rows as JSON lines, creating parent directories.
func WriteJSONLines[T any](path string, rows []T) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, item := range rows {
		if err := enc.Encode(item); err != nil {
			return fmt.Errorf("encode row: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}
