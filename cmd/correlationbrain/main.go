package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"correlationbrain/config"
	"correlationbrain/internal/api"
	"correlationbrain/internal/correlation"
	"correlationbrain/internal/entityindex"
	inputnats "correlationbrain/internal/input/nats"
	inputredis "correlationbrain/internal/input/redis"
	"correlationbrain/internal/logger"
	"correlationbrain/internal/metrics"
	"correlationbrain/internal/output/incidentclickhouse"
	"correlationbrain/internal/output/incidenthttp"
	"correlationbrain/internal/output/incidentjson"
	"correlationbrain/internal/output/incidentnats"
	"correlationbrain/internal/pipeline"
	"correlationbrain/internal/replay"
	"correlationbrain/internal/rules"
	"correlationbrain/internal/transform/alertjson"
)

const configName = "correlationbrain.yml"

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat(configName); err == nil {
		return configName
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, configName)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return configName
}

// loadConfig reads the config file, overlays the environment and fills
// defaults. A missing file yields the defaults.
func loadConfig(configArg string) (*config.Config, string, error) {
	configPath := findConfigFile(configArg)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, configPath, fmt.Errorf("load config: %w", err)
		}
		log.Printf("Warning: %s not found, using defaults", configPath)
		cfg = &config.Config{}
		configPath = ""
	}
	if err := config.ApplyEnv(cfg, os.Getenv); err != nil {
		return nil, configPath, err
	}
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, configPath, err
	}
	return cfg, configPath, nil
}

func brainConfig(c config.BrainConfig, m *metrics.Metrics) correlation.Config {
	return correlation.Config{
		Threshold:        c.Threshold,
		Window:           c.Window,
		EvaluateAll:      c.EvaluateAll,
		ClearOnIncident:  c.ClearOnIncident,
		ExtendedPatterns: c.ExtendedPatterns,
		Metrics:          m,
	}
}

func loadTagger(c config.TaggingConfig) rules.Tagger {
	if !c.Enabled {
		return nil
	}
	tagger, stats, err := rules.NewSigmaTagger(c.Path)
	if err != nil {
		logger.Errorf("Failed to load Sigma rules from %s: %v", c.Path, err)
		log.Fatalf("Failed to load Sigma rules: %v", err)
	}
	logger.Infof("Sigma rules loaded: loaded=%d skipped_complex=%d skipped_datasource=%d skipped_invalid=%d files=%d",
		stats.Loaded,
		stats.SkippedComplex,
		stats.SkippedDatasource,
		stats.SkippedInvalid,
		stats.TotalFiles,
	)
	if stats.Loaded == 0 {
		logger.Warnf("No compatible Sigma rules loaded; alert tagging is effectively disabled")
		return nil
	}
	return tagger
}

func newSource(c config.InputConfig) pipeline.Source {
	switch c.Mode {
	case "nats":
		sub, err := inputnats.NewSubscriber(inputnats.Config{
			URL:        c.NATS.URL,
			Subject:    c.NATS.Subject,
			Queue:      c.NATS.Queue,
			Name:       c.NATS.Name,
			BufferSize: c.NATS.BufferSize,
		})
		if err != nil {
			logger.Errorf("Failed to create NATS subscriber: %v", err)
			log.Fatalf("Failed to create NATS subscriber: %v", err)
		}
		logger.Infof("Input mode: nats (%s %s)", c.NATS.URL, c.NATS.Subject)
		return sub
	default:
		consumer, err := inputredis.NewConsumer(inputredis.Config{
			Addr:         c.Redis.Addr,
			Password:     c.Redis.Password,
			DB:           c.Redis.DB,
			Key:          c.Redis.Key,
			BlockTimeout: c.Redis.BlockTimeout,
		})
		if err != nil {
			logger.Errorf("Failed to create Redis consumer: %v", err)
			log.Fatalf("Failed to create Redis consumer: %v", err)
		}
		logger.Infof("Input mode: redis (%s list=%s)", c.Redis.Addr, c.Redis.Key)
		return consumer
	}
}

func newWriter(c config.OutputConfig) pipeline.RecordWriter {
	switch c.Mode {
	case "file":
		w, err := incidentjson.NewWriter(c.File.Path)
		if err != nil {
			logger.Errorf("Failed to create file writer: %v", err)
			log.Fatalf("Failed to create file writer: %v", err)
		}
		logger.Infof("Output mode: file (%s)", c.File.Path)
		return w
	case "http":
		w, err := incidenthttp.NewWriter(incidenthttp.Config{
			URL:          c.HTTP.URL,
			Timeout:      c.HTTP.Timeout,
			MaxRetries:   c.HTTP.MaxRetries,
			RetryBackoff: c.HTTP.RetryBackoff,
			Headers:      c.HTTP.Headers,
		})
		if err != nil {
			logger.Errorf("Failed to create HTTP writer: %v", err)
			log.Fatalf("Failed to create HTTP writer: %v", err)
		}
		logger.Infof("Output mode: http (%s timeout=%s retries=%d)", c.HTTP.URL, c.HTTP.Timeout, c.HTTP.MaxRetries)
		return w
	case "clickhouse":
		w, err := incidentclickhouse.NewWriter(incidentclickhouse.Config{
			URL:      c.ClickHouse.URL,
			Database: c.ClickHouse.Database,
			Table:    c.ClickHouse.Table,
			Username: c.ClickHouse.Username,
			Password: c.ClickHouse.Password,
			Timeout:  c.ClickHouse.Timeout,
			Headers:  c.ClickHouse.Headers,
		})
		if err != nil {
			logger.Errorf("Failed to create ClickHouse writer: %v", err)
			log.Fatalf("Failed to create ClickHouse writer: %v", err)
		}
		logger.Infof("Output mode: clickhouse (%s/%s.%s)", c.ClickHouse.URL, c.ClickHouse.Database, c.ClickHouse.Table)
		return w
	case "nats":
		w, err := incidentnats.NewWriter(incidentnats.Config{
			URL:                c.NATS.URL,
			Name:               "correlationbrain-output",
			AlertSubjectPrefix: c.NATS.AlertSubjectPrefix,
			IncidentSubject:    c.NATS.IncidentSubject,
		})
		if err != nil {
			logger.Errorf("Failed to create NATS writer: %v", err)
			log.Fatalf("Failed to create NATS writer: %v", err)
		}
		logger.Infof("Output mode: nats (%s incidents=%s)", c.NATS.URL, c.NATS.IncidentSubject)
		return w
	default:
		log.Fatalf("Unknown output mode: %s", c.Mode)
	}
	return nil
}

func openEntityIndex(c config.EntityIndexConfig, password string) (*entityindex.RedisStore, error) {
	return entityindex.NewRedisStore(entityindex.RedisConfig{
		Addr:      c.Addr,
		Password:  password,
		DB:        c.DB,
		KeyPrefix: c.Prefix,
		TTL:       c.TTL,
	})
}

func runServe(args []string) {
	configArg := ""
	if len(args) > 0 {
		configArg = args[0]
	}

	cfg, configPath, err := loadConfig(configArg)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	c := cfg.CorrelationBrain

	if err := logger.Init(c.Logging.Enabled, c.Logging.Level, c.Logging.File, c.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Infof("Correlation brain starting")
	if configPath != "" {
		logger.Infof("Config loaded from: %s", configPath)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	brain := correlation.New(brainConfig(c.Brain, m))
	logger.Infof("Brain configured: threshold=%d window=%s evaluate_all=%v clear_on_incident=%v extended_patterns=%v",
		c.Brain.Threshold, c.Brain.Window, c.Brain.EvaluateAll, c.Brain.ClearOnIncident, c.Brain.ExtendedPatterns)

	source := newSource(c.Input)
	tagger := loadTagger(c.Tagging)
	writer := newWriter(c.Output)

	var index pipeline.IncidentIndex
	var apiIndex api.EntityIndex
	if c.EntityIndex.Enabled {
		store, err := openEntityIndex(c.EntityIndex, c.Input.Redis.Password)
		if err != nil {
			logger.Errorf("Failed to open entity index: %v", err)
			log.Fatalf("Failed to open entity index: %v", err)
		}
		index = store
		apiIndex = store
		logger.Infof("Entity index: redis (%s prefix=%s ttl=%s)", c.EntityIndex.Addr, c.EntityIndex.Prefix, c.EntityIndex.TTL)
	}

	pipe := pipeline.NewAlertPipeline(source, tagger, brain, writer, index, m, pipeline.Options{
		QueueSize:     c.Pipeline.QueueSize,
		BatchSize:     c.Pipeline.BatchSize,
		FlushInterval: c.Pipeline.FlushInterval,
		IncidentsOnly: c.Pipeline.IncidentsOnly,
	})

	var server *api.API
	if c.API.Enabled {
		server = api.New(brain, apiIndex, reg)
		go func() {
			if err := server.Start(c.API.Addr); err != nil {
				logger.Errorf("API server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := pipe.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorf("Pipeline error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-done:
	}

	logger.Infof("Shutting down")
	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warnf("Pipeline did not stop within 10s")
	}

	if server != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := server.Stop(stopCtx); err != nil {
			logger.Errorf("Error stopping API server: %v", err)
		}
		stopCancel()
	}

	if err := pipe.Close(); err != nil {
		logger.Errorf("Error closing pipeline: %v", err)
	}

	stats := brain.Statistics()
	logger.Infof("Correlation brain stopped: alerts=%d incidents=%d entities=%d",
		stats.TotalAlertsProcessed, stats.IncidentsGenerated, stats.EntitiesTracked)
}

func runReplay(args []string) int {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	input := fs.String("input", "alerts.jsonl", "Alert JSONL input path")
	output := fs.String("output", "output/incidents.jsonl", "Incident JSONL output path")
	statsOutput := fs.String("stats", "", "Optional statistics JSON output path")
	threshold := fs.Int("threshold", correlation.DefaultThreshold, "Risk score threshold")
	window := fs.Duration("window", correlation.DefaultWindow, "Correlation window")
	step := fs.Duration("step", time.Second, "Clock step between alerts without a timestamp")
	evaluateAll := fs.Bool("evaluate-all", false, "Score every entity and emit the highest-scoring one")
	clearOnIncident := fs.Bool("clear-on-incident", false, "Forget an entity's history after it raises an incident")
	extended := fs.Bool("extended-patterns", false, "Enable the lateral movement signature")
	rulesPath := fs.String("rules", "", "Optional Sigma rules file or directory for tagging")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	entries, loadStats, err := replay.LoadAlertsJSONL(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load alerts: %v\n", err)
		return 1
	}

	opts := replay.Options{
		Brain: correlation.Config{
			Threshold:        *threshold,
			Window:           *window,
			EvaluateAll:      *evaluateAll,
			ClearOnIncident:  *clearOnIncident,
			ExtendedPatterns: *extended,
		},
		Step: *step,
	}
	if strings.TrimSpace(*rulesPath) != "" {
		tagger, _, err := rules.NewSigmaTagger(*rulesPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load rules: %v\n", err)
			return 1
		}
		opts.Tagger = tagger
	}

	res := replay.Run(entries, opts)
	if err := replay.WriteJSONLines(*output, res.Incidents); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write incidents: %v\n", err)
		return 1
	}
	if strings.TrimSpace(*statsOutput) != "" {
		if err := writeJSON(*statsOutput, res.Statistics); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write statistics: %v\n", err)
			return 1
		}
	}

	fmt.Printf("replayed lines=%d alerts=%d skipped=%d incidents=%d output=%s\n",
		loadStats.Lines, loadStats.Loaded, loadStats.Skipped, len(res.Incidents), *output)
	return 0
}

func runSend(args []string) int {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	input := fs.String("input", "alerts.jsonl", "Alert JSONL input path")
	configArg := fs.String("config", "", "Config file with the Redis input settings")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, _, err := loadConfig(*configArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	rc := cfg.CorrelationBrain.Input.Redis

	payloads, skipped, err := readAlertLines(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read alerts: %v\n", err)
		return 1
	}

	consumer, err := inputredis.NewConsumer(inputredis.Config{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
		Key:      rc.Key,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to redis: %v\n", err)
		return 1
	}
	defer consumer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := consumer.Push(ctx, payloads...); err != nil {
		fmt.Fprintf(os.Stderr, "failed to push alerts: %v\n", err)
		return 1
	}

	fmt.Printf("sent alerts=%d skipped=%d key=%s\n", len(payloads), skipped, consumer.Key())
	return 0
}

// readAlertLines returns the lines of path that parse as alerts.
func readAlertLines(path string) ([][]byte, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var payloads [][]byte
	skipped := 0
	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 0, 1024*1024), 8*1024*1024)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		if _, err := alertjson.Parse([]byte(line)); err != nil {
			skipped++
			continue
		}
		payloads = append(payloads, []byte(line))
	}
	if err := s.Err(); err != nil {
		return nil, 0, err
	}
	return payloads, skipped, nil
}

func runDemo(args []string) int {
	fs := flag.NewFlagSet("demo", flag.ContinueOnError)
	target := fs.String("target", "192.168.1.100", "Compromised host IP used in the scenario")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	scenario := replay.APTChainScenario(*target)
	entries := make([]replay.Entry, 0, len(scenario))
	for _, alert := range scenario {
		entries = append(entries, replay.Entry{Alert: alert})
	}

	res := replay.Run(entries, replay.Options{Step: 10 * time.Second})

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if len(res.Incidents) == 0 {
		fmt.Println("no incident generated")
	}
	for _, inc := range res.Incidents {
		fmt.Println("INCIDENT GENERATED")
		if err := enc.Encode(inc); err != nil {
			fmt.Fprintf(os.Stderr, "failed to encode incident: %v\n", err)
			return 1
		}
	}
	fmt.Println("BRAIN STATISTICS")
	if err := enc.Encode(res.Statistics); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode statistics: %v\n", err)
		return 1
	}
	return 0
}

func runEntities(args []string) int {
	fs := flag.NewFlagSet("entities", flag.ContinueOnError)
	configArg := fs.String("config", "", "Config file with the entity index settings")
	top := fs.Int64("top", 10, "Number of highest-scoring entities to list")
	since := fs.Duration("since", 0, "List entities with an incident within this duration instead of the top scores")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, _, err := loadConfig(*configArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	c := cfg.CorrelationBrain

	store, err := openEntityIndex(c.EntityIndex, c.Input.Redis.Password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open entity index: %v\n", err)
		return 1
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var states []entityindex.EntityState
	if *since > 0 {
		states, err = store.Since(ctx, time.Now().Add(-*since), *top)
	} else {
		states, err = store.Top(ctx, *top)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to query entity index: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	for _, st := range states {
		if err := enc.Encode(st); err != nil {
			fmt.Fprintf(os.Stderr, "failed to encode entity: %v\n", err)
			return 1
		}
	}
	return 0
}

func writeJSON(path string, v interface{}) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			runServe(os.Args[2:])
			return
		case "replay":
			os.Exit(runReplay(os.Args[2:]))
		case "send":
			os.Exit(runSend(os.Args[2:]))
		case "demo":
			os.Exit(runDemo(os.Args[2:]))
		case "entities":
			os.Exit(runEntities(os.Args[2:]))
		default:
			// First arg is a config path.
			runServe(os.Args[1:])
			return
		}
	}

	runServe(nil)
}
