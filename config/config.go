package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	CorrelationBrain CorrelationBrainConfig `yaml:"correlationbrain"`
}

// CorrelationBrainConfig is the project configuration.
type CorrelationBrainConfig struct {
	Input       InputConfig       `yaml:"input"`
	Brain       BrainConfig       `yaml:"brain"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Tagging     TaggingConfig     `yaml:"tagging"`
	Output      OutputConfig      `yaml:"output"`
	EntityIndex EntityIndexConfig `yaml:"entity_index"`
	API         APIConfig         `yaml:"api"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// InputConfig controls where alerts are read from.
type InputConfig struct {
	Mode  string      `yaml:"mode" validate:"oneof=redis nats"`
	Redis RedisConfig `yaml:"redis"`
	NATS  NATSConfig  `yaml:"nats"`
}

// RedisConfig controls a Redis connection and list key.
type RedisConfig struct {
	Addr         string        `yaml:"addr" validate:"required,hostname_port"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db" validate:"gte=0"`
	Key          string        `yaml:"key"`
	BlockTimeout time.Duration `yaml:"block_timeout"`
}

// NATSConfig controls the NATS alert subscription.
type NATSConfig struct {
	URL        string `yaml:"url" validate:"required,url"`
	Subject    string `yaml:"subject" validate:"required"`
	Queue      string `yaml:"queue"`
	Name       string `yaml:"name"`
	BufferSize int    `yaml:"buffer_size" validate:"gte=1"`
}

// BrainConfig controls correlation.
type BrainConfig struct {
	Threshold        int           `yaml:"threshold" validate:"gte=1"`
	Window           time.Duration `yaml:"window" validate:"gt=0"`
	EvaluateAll      bool          `yaml:"evaluate_all"`
	ClearOnIncident  bool          `yaml:"clear_on_incident"`
	ExtendedPatterns bool          `yaml:"extended_patterns"`
}

// PipelineConfig controls pipeline behavior.
type PipelineConfig struct {
	QueueSize     int           `yaml:"queue_size" validate:"gte=1"`
	BatchSize     int           `yaml:"batch_size" validate:"gte=1"`
	FlushInterval time.Duration `yaml:"flush_interval" validate:"gt=0"`
	IncidentsOnly bool          `yaml:"incidents_only"`
}

// TaggingConfig controls Sigma alert tagging.
type TaggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"required_if=Enabled true"`
}

// OutputConfig controls the delivery sink.
type OutputConfig struct {
	Mode       string                 `yaml:"mode" validate:"oneof=file http clickhouse nats"`
	File       FileOutputConfig       `yaml:"file"`
	HTTP       HTTPOutputConfig       `yaml:"http"`
	ClickHouse ClickHouseOutputConfig `yaml:"clickhouse"`
	NATS       NATSOutputConfig       `yaml:"nats"`
}

// FileOutputConfig config for local JSON output.
type FileOutputConfig struct {
	Path string `yaml:"path"`
}

// HTTPOutputConfig config for the backend API.
// A negative MaxRetries disables retries.
type HTTPOutputConfig struct {
	URL          string            `yaml:"url" validate:"omitempty,url"`
	Timeout      time.Duration     `yaml:"timeout"`
	MaxRetries   int               `yaml:"max_retries"`
	RetryBackoff time.Duration     `yaml:"retry_backoff"`
	Headers      map[string]string `yaml:"headers"`
}

// ClickHouseOutputConfig config for ClickHouse HTTP JSONEachRow writes.
type ClickHouseOutputConfig struct {
	URL      string            `yaml:"url" validate:"omitempty,url"`
	Database string            `yaml:"database"`
	Table    string            `yaml:"table"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	Timeout  time.Duration     `yaml:"timeout"`
	Headers  map[string]string `yaml:"headers"`
}

// NATSOutputConfig config for publishing records to NATS.
type NATSOutputConfig struct {
	URL                string `yaml:"url" validate:"omitempty,url"`
	AlertSubjectPrefix string `yaml:"alert_subject_prefix"`
	IncidentSubject    string `yaml:"incident_subject"`
}

// EntityIndexConfig controls the Redis per-entity incident index.
type EntityIndexConfig struct {
	Enabled bool          `yaml:"enabled"`
	Addr    string        `yaml:"addr"`
	DB      int           `yaml:"db"`
	Prefix  string        `yaml:"prefix"`
	TTL     time.Duration `yaml:"ttl"`
}

// APIConfig controls the HTTP API.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" validate:"required_if=Enabled true"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyEnv overlays the detector environment variables on cfg.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	c := &cfg.CorrelationBrain
	if v := strings.TrimSpace(getenv("BACKEND_API_URL")); v != "" {
		c.Output.HTTP.URL = v
		if c.Output.Mode == "" {
			c.Output.Mode = "http"
		}
	}
	if v := strings.TrimSpace(getenv("API_TIMEOUT")); v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil || secs <= 0 {
			return fmt.Errorf("invalid API_TIMEOUT %q", v)
		}
		c.Output.HTTP.Timeout = time.Duration(secs * float64(time.Second))
	}
	if v := strings.TrimSpace(getenv("MAX_RETRIES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MAX_RETRIES %q", v)
		}
		if n == 0 {
			n = -1
		}
		c.Output.HTTP.MaxRetries = n
	}
	if v := strings.TrimSpace(getenv("LOG_LEVEL")); v != "" {
		c.Logging.Level = strings.ToLower(v)
		c.Logging.Enabled = true
	}
	if v := strings.TrimSpace(getenv("LOG_FILE")); v != "" {
		c.Logging.File = v
		c.Logging.Enabled = true
	}
	return nil
}

// ApplyDefaults fills unset values.
func ApplyDefaults(cfg *Config) {
	c := &cfg.CorrelationBrain

	if c.Input.Mode == "" {
		c.Input.Mode = "redis"
	}
	if c.Input.Redis.Addr == "" {
		c.Input.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Input.Redis.Key == "" {
		c.Input.Redis.Key = "security_alerts"
	}
	if c.Input.Redis.BlockTimeout == 0 {
		c.Input.Redis.BlockTimeout = 5 * time.Second
	}
	if c.Input.NATS.URL == "" {
		c.Input.NATS.URL = "nats://127.0.0.1:4222"
	}
	if c.Input.NATS.Subject == "" {
		c.Input.NATS.Subject = "alerts.>"
	}
	if c.Input.NATS.Name == "" {
		c.Input.NATS.Name = "correlationbrain"
	}
	if c.Input.NATS.BufferSize <= 0 {
		c.Input.NATS.BufferSize = 1024
	}

	if c.Brain.Threshold <= 0 {
		c.Brain.Threshold = 60
	}
	if c.Brain.Window <= 0 {
		c.Brain.Window = 15 * time.Minute
	}

	if c.Pipeline.QueueSize <= 0 {
		c.Pipeline.QueueSize = 1024
	}
	if c.Pipeline.BatchSize <= 0 {
		c.Pipeline.BatchSize = 100
	}
	if c.Pipeline.FlushInterval <= 0 {
		c.Pipeline.FlushInterval = time.Second
	}

	if c.Output.Mode == "" {
		c.Output.Mode = "file"
	}
	if c.Output.File.Path == "" {
		c.Output.File.Path = "output/incidents.jsonl"
	}
	if c.Output.HTTP.Timeout <= 0 {
		c.Output.HTTP.Timeout = 5 * time.Second
	}
	if c.Output.HTTP.MaxRetries == 0 {
		c.Output.HTTP.MaxRetries = 3
	}
	if c.Output.HTTP.RetryBackoff <= 0 {
		c.Output.HTTP.RetryBackoff = time.Second
	}
	if c.Output.ClickHouse.Database == "" {
		c.Output.ClickHouse.Database = "correlationbrain"
	}
	if c.Output.ClickHouse.Table == "" {
		c.Output.ClickHouse.Table = "incidents"
	}
	if c.Output.ClickHouse.Timeout <= 0 {
		c.Output.ClickHouse.Timeout = 5 * time.Second
	}
	if c.Output.NATS.URL == "" {
		c.Output.NATS.URL = c.Input.NATS.URL
	}
	if c.Output.NATS.AlertSubjectPrefix == "" {
		c.Output.NATS.AlertSubjectPrefix = "correlated.alerts"
	}
	if c.Output.NATS.IncidentSubject == "" {
		c.Output.NATS.IncidentSubject = "correlated.incidents"
	}

	if c.EntityIndex.Addr == "" {
		c.EntityIndex.Addr = c.Input.Redis.Addr
	}
	if c.EntityIndex.Prefix == "" {
		c.EntityIndex.Prefix = "correlationbrain:entity"
	}
	if c.EntityIndex.TTL <= 0 {
		c.EntityIndex.TTL = 24 * time.Hour
	}

	if c.API.Addr == "" {
		c.API.Addr = ":8090"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks field constraints and mode-specific requirements.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	c := cfg.CorrelationBrain
	switch c.Output.Mode {
	case "http":
		if c.Output.HTTP.URL == "" {
			return fmt.Errorf("invalid config: output.http.url is required for http output")
		}
	case "clickhouse":
		if c.Output.ClickHouse.URL == "" {
			return fmt.Errorf("invalid config: output.clickhouse.url is required for clickhouse output")
		}
	case "file":
		if c.Output.File.Path == "" {
			return fmt.Errorf("invalid config: output.file.path is required for file output")
		}
	}
	if c.Input.Mode == "redis" && c.Input.Redis.Key == "" {
		return fmt.Errorf("invalid config: input.redis.key is required")
	}
	return nil
}
