package daemon_test

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"

	"reel/internal/config"
	"reel/internal/daemon"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.StorageDir = filepath.Join(base, "storage")
	cfg.Paths.ScratchDir = filepath.Join(base, "scratch")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Workflow.ShutdownGraceSeconds = 1
	return &cfg
}

func TestDaemonStartServesAPI(t *testing.T) {
	d, err := daemon.New(testConfig(t), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = d.Close() }()

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	addr := d.Addr()
	if addr == "" {
		t.Fatal("expected a bound address")
	}

	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestDaemonRejectsSecondStart(t *testing.T) {
	d, err := daemon.New(testConfig(t), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = d.Close() }()

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := d.Start(context.Background()); err == nil {
		t.Fatal("second Start must fail while running")
	}
}

func TestDaemonSingleInstanceLock(t *testing.T) {
	cfg := testConfig(t)

	first, err := daemon.New(cfg, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = first.Close() }()
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	second, err := daemon.New(cfg, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = second.Close() }()
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("second instance must fail to acquire the lock")
	}

	first.Stop()
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("restart after lock release failed: %v", err)
	}
}

func TestDaemonStopIsIdempotent(t *testing.T) {
	d, err := daemon.New(testConfig(t), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	d.Stop()
	d.Stop()
	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}
