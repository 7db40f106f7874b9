package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitWritesFilteredLevelsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "brain.log")
	if err := Init(true, "warn", path, false); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer Init(false, "", "", false)

	Infof("incident %d", 1)
	Warnf("delivery failed: %s", "timeout")
	Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "incident 1") {
		t.Fatalf("info line should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "WARN") || !strings.Contains(out, "delivery failed: timeout") {
		t.Fatalf("expected warn line, got %q", out)
	}
}

func TestDisabledLoggerDiscards(t *testing.T) {
	if err := Init(false, "debug", "", true); err != nil {
		t.Fatalf("init: %v", err)
	}
	Errorf("nothing to see")
	if L() == nil {
		t.Fatalf("logger must never be nil")
	}
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	if parseLevel("verbose").String() != "info" {
		t.Fatalf("unexpected default level")
	}
}
