package incidenthttp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"

	"correlationbrain/internal/logger"
	"correlationbrain/pkg/models"
)

// Writer posts each alert and incident to the backend API as its own JSON document.
type Writer struct {
	url     string
	headers map[string]string
	client  *retryablehttp.Client
}

// Config configures the HTTP writer. A negative MaxRetries disables retries.
type Config struct {
	URL          string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	Headers      map[string]string
}

// NewWriter creates an HTTP writer.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("backend API URL is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = timeout
	client.RetryMax = retries
	client.RetryWaitMin = backoff
	client.RetryWaitMax = backoff
	client.Backoff = retryablehttp.LinearJitterBackoff
	client.Logger = leveledLogger{}

	return &Writer{
		url:     cfg.URL,
		headers: cfg.Headers,
		client:  client,
	}, nil
}

// WriteRecords posts every record. A failed record does not stop the rest;
// all failures are returned together.
func (w *Writer) WriteRecords(records []models.Record) error {
	var errs []error
	for _, rec := range records {
		if err := w.post(rec); err != nil {
			errs = append(errs, fmt.Errorf("send %s: %w", rec.Kind(), err))
		}
	}
	return errors.Join(errs...)
}

func (w *Writer) post(rec models.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	req, err := retryablehttp.NewRequest(http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("http request failed with status %s", resp.Status)
	}
	return nil
}

// Close releases HTTP resources.
func (w *Writer) Close() error {
	w.client.HTTPClient.CloseIdleConnections()
	return nil
}

type leveledLogger struct{}

func (leveledLogger) Error(msg string, kv ...interface{}) { logger.L().Errorw(msg, kv...) }
func (leveledLogger) Info(msg string, kv ...interface{})  { logger.L().Debugw(msg, kv...) }
func (leveledLogger) Debug(msg string, kv ...interface{}) { logger.L().Debugw(msg, kv...) }
func (leveledLogger) Warn(msg string, kv ...interface{})  { logger.L().Warnw(msg, kv...) }
