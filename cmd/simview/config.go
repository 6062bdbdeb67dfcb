package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/danmuck/simview/internal/client"
	"github.com/danmuck/simview/internal/scene"
	"github.com/danmuck/simview/internal/transport"
)

// viewerConfig is the resolved simview configuration. Env vars override the
// file, flags override both.
type viewerConfig struct {
	Address        string        `env:"SIMVIEW_ADDRESS"`
	Port           int           `env:"SIMVIEW_PORT"`
	ConnectTimeout time.Duration `env:"SIMVIEW_CONNECT_TIMEOUT"`
	TickRate       int           `env:"SIMVIEW_TICK_RATE"`
	InitBudget     time.Duration `env:"SIMVIEW_INIT_BUDGET"`

	ContactForceScale   float64 `env:"SIMVIEW_CONTACT_FORCE_SCALE"`
	ContactPointSize    float64 `env:"SIMVIEW_CONTACT_POINT_SIZE"`
	ShowVisualBodies    bool    `env:"SIMVIEW_SHOW_VISUAL_BODIES"`
	ShowCollisionBodies bool    `env:"SIMVIEW_SHOW_COLLISION_BODIES"`
	ShowContactPoints   bool    `env:"SIMVIEW_SHOW_CONTACT_POINTS"`
	ShowContactForces   bool    `env:"SIMVIEW_SHOW_CONTACT_FORCES"`

	MetricsAddr  string `env:"SIMVIEW_METRICS_ADDR"`
	SnapshotPath string `env:"SIMVIEW_SNAPSHOT_PATH"`

	MaxReplyBytes         int           `env:"SIMVIEW_MAX_REPLY_BYTES"`
	ReconnectInitialDelay time.Duration `env:"SIMVIEW_RECONNECT_INITIAL_DELAY"`
	ReconnectMaxDelay     time.Duration `env:"SIMVIEW_RECONNECT_MAX_DELAY"`
}

func defaultViewerConfig() viewerConfig {
	ccfg := client.DefaultConfig()
	tcfg := transport.DefaultConfig()
	return viewerConfig{
		Address:               "127.0.0.1",
		Port:                  8080,
		ConnectTimeout:        tcfg.ConnectTimeout,
		TickRate:              60,
		InitBudget:            client.DefaultInitBudget,
		ContactForceScale:     ccfg.ContactForceScale,
		ContactPointSize:      ccfg.ContactPointSize,
		ShowVisualBodies:      ccfg.Visibility.VisualBodies,
		ShowCollisionBodies:   ccfg.Visibility.CollisionBodies,
		ShowContactPoints:     ccfg.Visibility.ContactPoints,
		ShowContactForces:     ccfg.Visibility.ContactForces,
		MaxReplyBytes:         tcfg.Limits.MaxReplyBytes,
		ReconnectInitialDelay: tcfg.Backoff.InitialDelay,
		ReconnectMaxDelay:     tcfg.Backoff.MaxDelay,
	}
}

type fileConfig struct {
	Address               string  `toml:"address"`
	Port                  int     `toml:"port"`
	ConnectTimeout        string  `toml:"connect_timeout"`
	TickRate              int     `toml:"tick_rate"`
	InitBudget            string  `toml:"init_budget"`
	ContactForceScale     float64 `toml:"contact_force_scale"`
	ContactPointSize      float64 `toml:"contact_point_size"`
	ShowVisualBodies      bool    `toml:"show_visual_bodies"`
	ShowCollisionBodies   bool    `toml:"show_collision_bodies"`
	ShowContactPoints     bool    `toml:"show_contact_points"`
	ShowContactForces     bool    `toml:"show_contact_forces"`
	MetricsAddr           string  `toml:"metrics_addr"`
	SnapshotPath          string  `toml:"snapshot_path"`
	MaxReplyBytes         int     `toml:"max_reply_bytes"`
	ReconnectInitialDelay string  `toml:"reconnect_initial_delay"`
	ReconnectMaxDelay     string  `toml:"reconnect_max_delay"`
}

// loadViewerConfig reads path on top of the defaults. An empty path keeps
// the defaults.
func loadViewerConfig(path string) (viewerConfig, error) {
	cfg := defaultViewerConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return viewerConfig{}, fmt.Errorf("load simview config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return viewerConfig{}, fmt.Errorf("load simview config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("tick_rate") {
		cfg.TickRate = raw.TickRate
	}
	if meta.IsDefined("contact_force_scale") {
		cfg.ContactForceScale = raw.ContactForceScale
	}
	if meta.IsDefined("contact_point_size") {
		cfg.ContactPointSize = raw.ContactPointSize
	}
	if meta.IsDefined("show_visual_bodies") {
		cfg.ShowVisualBodies = raw.ShowVisualBodies
	}
	if meta.IsDefined("show_collision_bodies") {
		cfg.ShowCollisionBodies = raw.ShowCollisionBodies
	}
	if meta.IsDefined("show_contact_points") {
		cfg.ShowContactPoints = raw.ShowContactPoints
	}
	if meta.IsDefined("show_contact_forces") {
		cfg.ShowContactForces = raw.ShowContactForces
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("snapshot_path") {
		cfg.SnapshotPath = strings.TrimSpace(raw.SnapshotPath)
	}
	if meta.IsDefined("max_reply_bytes") {
		cfg.MaxReplyBytes = raw.MaxReplyBytes
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.ConnectTimeout},
		{"init_budget", raw.InitBudget, &cfg.InitBudget},
		{"reconnect_initial_delay", raw.ReconnectInitialDelay, &cfg.ReconnectInitialDelay},
		{"reconnect_max_delay", raw.ReconnectMaxDelay, &cfg.ReconnectMaxDelay},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return viewerConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}
	return cfg, nil
}

// applyEnv overrides cfg with any SIMVIEW_* variables that are set.
func applyEnv(cfg *viewerConfig) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("simview env: %w", err)
	}
	return nil
}

func (c viewerConfig) validate() error {
	if strings.TrimSpace(c.Address) == "" {
		return fmt.Errorf("address is required")
	}
	if c.Port < 1 || c.Port > 0xFFFF {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	if c.TickRate <= 0 {
		return fmt.Errorf("tick_rate must be positive: %d", c.TickRate)
	}
	return nil
}

func (c viewerConfig) clientConfig() client.Config {
	cfg := client.DefaultConfig()
	cfg.Transport.ConnectTimeout = c.ConnectTimeout
	cfg.Transport.Limits.MaxReplyBytes = c.MaxReplyBytes
	cfg.Transport.Backoff.InitialDelay = c.ReconnectInitialDelay
	cfg.Transport.Backoff.MaxDelay = c.ReconnectMaxDelay
	cfg.Visibility = scene.Visibility{
		VisualBodies:    c.ShowVisualBodies,
		CollisionBodies: c.ShowCollisionBodies,
		ContactPoints:   c.ShowContactPoints,
		ContactForces:   c.ShowContactForces,
	}
	cfg.ContactForceScale = c.ContactForceScale
	cfg.ContactPointSize = c.ContactPointSize
	cfg.Budget = client.NewTimeBudget(c.InitBudget)
	return cfg
}
