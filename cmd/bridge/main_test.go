package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vango-dev/bridge/internal/config"
	"github.com/vango-dev/bridge/internal/demo"
	"github.com/vango-dev/bridge/pkg/bridge"
	"github.com/vango-dev/bridge/pkg/worker"
	"github.com/vango-dev/bridge/pkg/workerhost"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startHost(t *testing.T) string {
	t.Helper()
	reg := worker.NewRegistry()
	demo.Register(reg, nil)
	host := workerhost.New(reg, workerhost.WithLogger(quietLogger()))
	srv := httptest.NewServer(host.Router())
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRunSendCounter(t *testing.T) {
	base := startHost(t)
	in := strings.NewReader("{\"times\":2}\n\nnot json\n{}\n")
	var out bytes.Buffer

	err := runSend(context.Background(), base+"/workers/counter", in, &out, 300*time.Millisecond, quietLogger())
	if err != nil {
		t.Fatalf("runSend() error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d outputs, want 3: %q", len(lines), out.String())
	}
	if !strings.Contains(lines[2], `"total":3`) {
		t.Errorf("last output = %s, want total 3", lines[2])
	}
}

func TestRunSendUnknownWorker(t *testing.T) {
	base := startHost(t)
	err := runSend(context.Background(), base+"/workers/nope", strings.NewReader(""), io.Discard, 0, quietLogger())
	if !errors.Is(err, bridge.ErrConnect) {
		t.Fatalf("runSend() error = %v, want ErrConnect", err)
	}
}

func TestHostConfig(t *testing.T) {
	cfg := config.New()
	cfg.Server.ReadTimeout = config.Duration(5 * time.Second)
	cfg.Server.HeartbeatInterval = 0
	cfg.Server.MailboxSize = 7

	hc := hostConfig(cfg)
	if hc.ReadTimeout != 5*time.Second {
		t.Errorf("ReadTimeout = %v", hc.ReadTimeout)
	}
	if hc.HeartbeatInterval != 0 {
		t.Errorf("HeartbeatInterval = %v, want disabled", hc.HeartbeatInterval)
	}
	if hc.MailboxSize != 7 {
		t.Errorf("MailboxSize = %d", hc.MailboxSize)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if cfg.Server.Addr != config.DefaultAddr {
		t.Errorf("Addr = %q, want %q", cfg.Server.Addr, config.DefaultAddr)
	}

	path := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(path, []byte("server:\n  addr: \":9999\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig(%q) error: %v", path, err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("Addr = %q, want :9999", cfg.Server.Addr)
	}
}

func TestVersionShort(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--short"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out.String()) != version {
		t.Errorf("version output = %q", out.String())
	}
}
