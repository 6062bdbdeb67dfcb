package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/simview/internal/client"
	"github.com/danmuck/simview/internal/logging"
	"github.com/danmuck/simview/internal/observability"
	"github.com/danmuck/simview/internal/scene"
	"github.com/danmuck/simview/internal/transport"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func runViewer(c *cli.Context) error {
	cfg, err := loadViewerConfig(c.String("config"))
	if err != nil {
		return err
	}
	if err := applyEnv(&cfg); err != nil {
		return err
	}
	if c.IsSet("server") {
		cfg.Address = c.String("server")
	}
	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	if c.IsSet("snapshot") {
		cfg.SnapshotPath = c.String("snapshot")
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, "simview")
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logging.Warnf("simview tracing shutdown err=%v", err)
		}
	}()

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	mem := scene.NewMemory()
	err = viewLoop(ctx, cfg, mem, c.Int("ticks"))
	if cfg.SnapshotPath != "" {
		if serr := writeSnapshot(cfg.SnapshotPath, mem); serr != nil {
			return errors.Join(err, serr)
		}
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// viewLoop connects with backoff and steps the client at the configured
// tick rate until ctx ends or maxTicks steps ran.
func viewLoop(ctx context.Context, cfg viewerConfig, builder scene.Builder, maxTicks int) error {
	ccfg := cfg.clientConfig()
	cl := client.New(builder, ccfg)
	defer cl.Close()
	reconnect := transport.NewReconnector(ccfg.Transport.WithDefaults().Backoff, rand.New(rand.NewSource(time.Now().UnixNano())))

	ticker := time.NewTicker(time.Second / time.Duration(cfg.TickRate))
	defer ticker.Stop()

	last := cl.State()
	for ticks := 0; maxTicks <= 0 || ticks < maxTicks; ticks++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if !cl.Connected() {
			if err := cl.Connect(ctx, cfg.Address, cfg.Port, cfg.ConnectTimeout); err != nil {
				delay := reconnect.Failed()
				logging.Warnf("simview connect attempt=%d retry_in=%s err=%v", reconnect.Attempts(), delay, err)
				if err := sleep(ctx, delay); err != nil {
					return err
				}
				continue
			}
			reconnect.Succeeded()
		}

		if err := cl.Step(ctx); err != nil {
			logging.Warnf("simview step err=%v", err)
		}
		if s := cl.State(); s != last {
			p := cl.Progress()
			logging.Infof("simview state=%s objects=%d/%d visuals=%d/%d", s, p.ObjectsDone, p.ObjectsTotal, p.VisualsDone, p.VisualsTotal)
			last = s
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func serveMetrics(addr string) *http.Server {
	observability.RegisterMetrics()
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.RequestLogger(log.Logger, promhttp.Handler()))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Errorf("simview metrics addr=%s err=%v", addr, err)
		}
	}()
	logging.Infof("simview metrics listening addr=%s", addr)
	return srv
}

func writeSnapshot(path string, mem *scene.Memory) error {
	b, err := mem.Snapshot().MarshalCBOR()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	logging.Infof("simview snapshot path=%s bytes=%d", path, len(b))
	return nil
}
