package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vango-dev/bridge/internal/errors"
)

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.Server.Addr != DefaultAddr {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, DefaultAddr)
	}
	if cfg.Server.HeartbeatInterval.Std() != 30*time.Second {
		t.Errorf("Server.HeartbeatInterval = %v, want 30s", cfg.Server.HeartbeatInterval)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Namespace != DefaultNamespace {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
	if cfg.Redis.Enabled {
		t.Error("Redis should be disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	tmpDir := t.TempDir()

	if _, err := Load(tmpDir); errors.Code(err) != "B080" {
		t.Errorf("Load() on empty dir = %v, want B080", err)
	}

	configJSON := `{
  "server": {
    "addr": ":9000",
    "readTimeout": "2m",
    "heartbeatInterval": "15s"
  },
  "metrics": {"enabled": false},
  "log": {"level": "debug", "format": "json"}
}
`
	if err := os.WriteFile(filepath.Join(tmpDir, ConfigFileName), []byte(configJSON), 0644); err != nil {
		t.Fatal(err)
	}
	if !Exists(tmpDir) {
		t.Error("Exists() = false after writing bridge.json")
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Server.ReadTimeout.Std() != 2*time.Minute {
		t.Errorf("Server.ReadTimeout = %v", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout.Std() != 10*time.Second {
		t.Errorf("Server.WriteTimeout default lost: %v", cfg.Server.WriteTimeout)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = true, want false")
	}
	if cfg.Metrics.Namespace != DefaultNamespace {
		t.Errorf("Metrics.Namespace default lost: %q", cfg.Metrics.Namespace)
	}
	if cfg.Path() != filepath.Join(tmpDir, ConfigFileName) {
		t.Errorf("Path() = %q", cfg.Path())
	}
}

func TestLoadYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configYAML := `server:
  addr: "127.0.0.1:7000"
  shutdownTimeout: 5s
  mailboxSize: 8
redis:
  enabled: true
  addr: redis:6379
  topic: jobs
`
	if err := os.WriteFile(filepath.Join(tmpDir, "bridge.yaml"), []byte(configYAML), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:7000" || cfg.Server.ShutdownTimeout.Std() != 5*time.Second {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Server.MailboxSize != 8 {
		t.Errorf("Server.MailboxSize = %d, want 8", cfg.Server.MailboxSize)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "redis:6379" || cfg.Redis.Topic != "jobs" {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	if cfg.Redis.ConsumerGroup != "bridge-workers" {
		t.Errorf("Redis.ConsumerGroup default lost: %q", cfg.Redis.ConsumerGroup)
	}
}

func TestLoadFileErrors(t *testing.T) {
	tmpDir := t.TempDir()

	if _, err := LoadFile(filepath.Join(tmpDir, "missing.json")); errors.Code(err) != "B080" {
		t.Errorf("missing file = %v, want B080", err)
	}

	bad := filepath.Join(tmpDir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"server": {"readTimeout": "soon"}}`), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadFile(bad)
	if errors.Code(err) != "B081" {
		t.Fatalf("bad duration = %v, want B081", err)
	}
	if !strings.Contains(err.(*errors.BridgeError).Detail, "bad.json") {
		t.Errorf("detail does not name the file: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"zero read timeout", func(c *Config) { c.Server.ReadTimeout = 0 }},
		{"heartbeat too slow", func(c *Config) { c.Server.HeartbeatInterval = c.Server.ReadTimeout }},
		{"negative heartbeat", func(c *Config) { c.Server.HeartbeatInterval = -1 }},
		{"zero mailbox", func(c *Config) { c.Server.MailboxSize = 0 }},
		{"message limit below largest frame", func(c *Config) { c.Server.MaxMessageSize = 64 * 1024 }},
		{"relative metrics path", func(c *Config) { c.Metrics.Path = "metrics" }},
		{"redis without addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.modify(cfg)
			if err := cfg.Validate(); errors.Code(err) != "B081" {
				t.Errorf("Validate() = %v, want B081", err)
			}
		})
	}

	cfg := New()
	cfg.Server.HeartbeatInterval = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("zero heartbeat should disable pings, got %v", err)
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	for _, name := range []string{"out.json", "out.yml"} {
		t.Run(name, func(t *testing.T) {
			cfg := New()
			cfg.Server.Addr = ":1234"
			cfg.Server.ReadTimeout = Duration(90 * time.Second)

			path := filepath.Join(tmpDir, name)
			if err := cfg.SaveTo(path); err != nil {
				t.Fatalf("SaveTo() error: %v", err)
			}
			data, _ := os.ReadFile(path)
			if !strings.Contains(string(data), "1m30s") {
				t.Errorf("saved file does not use duration strings:\n%s", data)
			}

			loaded, err := LoadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if loaded.Server.Addr != ":1234" || loaded.Server.ReadTimeout != cfg.Server.ReadTimeout {
				t.Errorf("loaded Server = %+v", loaded.Server)
			}
		})
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: "warn", Format: "json"}.Logger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record written at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"k":"v"`) {
		t.Errorf("unexpected output: %s", out)
	}

	level, err := LogConfig{}.SlogLevel()
	if err != nil || level != slog.LevelInfo {
		t.Errorf("empty level = %v, %v; want info", level, err)
	}
}
