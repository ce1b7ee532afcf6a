package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), FileName))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := Default()
	if cfg.BasePort != def.BasePort || cfg.RateLimit.MaxRequests != def.RateLimit.MaxRequests {
		t.Fatalf("missing file config = %+v, want defaults", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	doc := `
base_port: 5100
rate_limit:
  max_requests: 10
  window_sec: 2
log:
  max_bytes: 1024
  retain: 1
  compress_timeout_sec: 5
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BasePort != 5100 {
		t.Errorf("BasePort = %d, want 5100", cfg.BasePort)
	}
	if cfg.RateLimit.MaxRequests != 10 || cfg.RateWindow() != 2*time.Second {
		t.Errorf("rate limit = %+v", cfg.RateLimit)
	}
	if cfg.Log.MaxBytes != 1024 || cfg.CompressTimeout() != 5*time.Second {
		t.Errorf("log = %+v", cfg.Log)
	}
	// Untouched fields keep their defaults.
	if cfg.Host != "127.0.0.1" || cfg.HeartbeatSec != Default().HeartbeatSec {
		t.Errorf("defaults lost: host=%q heartbeat=%d", cfg.Host, cfg.HeartbeatSec)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []string{
		"base_port: -1",
		"port_span: 0",
		"rate_limit: {max_requests: 0, window_sec: 5}",
		"log: {max_bytes: 0, retain: 3}",
		"heartbeat_sec: 0",
		"heartbeat_sec: -5",
	}
	for _, doc := range cases {
		path := filepath.Join(t.TempDir(), FileName)
		if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Errorf("Load(%q) accepted invalid config", doc)
		}
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte(":\n\t- nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted malformed YAML")
	}
}
