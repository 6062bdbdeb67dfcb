package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/simview/internal/scene"
	"github.com/danmuck/simview/internal/testutil/testlog"
)

func TestLoadViewerConfigDefaultsAndOverrides(t *testing.T) {
	cfg, err := loadViewerConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Address != "127.0.0.1" || cfg.Port != 8080 {
		t.Fatalf("unexpected endpoint: %s:%d", cfg.Address, cfg.Port)
	}
	if cfg.ConnectTimeout != 2*time.Second {
		t.Fatalf("unexpected connect timeout: %v", cfg.ConnectTimeout)
	}
	if cfg.TickRate != 30 || cfg.InitBudget != 5*time.Millisecond {
		t.Fatalf("unexpected tick settings: %d %v", cfg.TickRate, cfg.InitBudget)
	}
	if cfg.ContactForceScale != 0.5 || cfg.ContactPointSize != 0.05 {
		t.Fatalf("unexpected contact settings: %v %v", cfg.ContactForceScale, cfg.ContactPointSize)
	}
	if !cfg.ShowCollisionBodies || cfg.ShowContactForces {
		t.Fatalf("unexpected visibility: %+v", cfg)
	}
	if cfg.MetricsAddr != "127.0.0.1:9108" {
		t.Fatalf("unexpected metrics addr: %q", cfg.MetricsAddr)
	}
	if cfg.MaxReplyBytes != defaultViewerConfig().MaxReplyBytes {
		t.Fatalf("undefined key must keep default: %d", cfg.MaxReplyBytes)
	}
	if cfg.ReconnectInitialDelay != 500*time.Millisecond || cfg.ReconnectMaxDelay != 10*time.Second {
		t.Fatalf("unexpected reconnect delays: %v %v", cfg.ReconnectInitialDelay, cfg.ReconnectMaxDelay)
	}

	ccfg := cfg.clientConfig()
	if ccfg.Visibility != (scene.Visibility{VisualBodies: true, CollisionBodies: true, ContactPoints: true}) {
		t.Fatalf("unexpected client visibility: %+v", ccfg.Visibility)
	}
	if ccfg.Transport.ConnectTimeout != 2*time.Second {
		t.Fatalf("connect timeout not carried: %v", ccfg.Transport.ConnectTimeout)
	}
}

func TestLoadViewerConfigRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(bad, []byte(`connect_timeout = "soon"`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := loadViewerConfig(bad); err == nil {
		t.Fatalf("expected duration parse error")
	}

	unknown := filepath.Join(dir, "unknown.toml")
	if err := os.WriteFile(unknown, []byte(`adress = "typo"`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := loadViewerConfig(unknown); err == nil {
		t.Fatalf("expected unknown key error")
	}

	if _, err := loadViewerConfig(filepath.Join(dir, "missing.toml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("SIMVIEW_PORT", "9001")
	t.Setenv("SIMVIEW_INIT_BUDGET", "1ms")
	t.Setenv("SIMVIEW_SHOW_CONTACT_FORCES", "true")

	cfg, err := loadViewerConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if err := applyEnv(&cfg); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.Port != 9001 || cfg.InitBudget != time.Millisecond || !cfg.ShowContactForces {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.Address != "127.0.0.1" {
		t.Fatalf("unset env must keep file value: %q", cfg.Address)
	}
}

func TestValidate(t *testing.T) {
	cfg := defaultViewerConfig()
	if err := cfg.validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	cfg.Port = 70000
	if err := cfg.validate(); err == nil {
		t.Fatalf("expected port error")
	}
	cfg = defaultViewerConfig()
	cfg.TickRate = 0
	if err := cfg.validate(); err == nil {
		t.Fatalf("expected tick rate error")
	}
}

func TestViewLoopBacksOffWithoutServer(t *testing.T) {
	testlog.Start(t)
	cfg := defaultViewerConfig()
	cfg.Port = 1
	cfg.TickRate = 1000
	cfg.ConnectTimeout = 50 * time.Millisecond
	cfg.ReconnectInitialDelay = time.Millisecond
	cfg.ReconnectMaxDelay = 2 * time.Millisecond

	mem := scene.NewMemory()
	if err := viewLoop(context.Background(), cfg, mem, 3); err != nil {
		t.Fatalf("view loop: %v", err)
	}
	if mem.Count(scene.Objects) != 0 {
		t.Fatalf("unexpected objects without a server")
	}

	path := filepath.Join(t.TempDir(), "scene.cbor")
	if err := writeSnapshot(path, mem); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if _, err := scene.DecodeSnapshot(b); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
}
