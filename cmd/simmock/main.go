package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/simview/internal/logging"
	"github.com/danmuck/simview/internal/protocol"
	"github.com/danmuck/simview/internal/simserver"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:   "simmock",
		Usage:  "Serve an animated demo scene over the simulation mirror protocol",
		Action: runMock,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen",
				Aliases: []string{"l"},
				Usage:   "Listen on `ADDR`.",
				Value:   "127.0.0.1:8080",
			},
			&cli.IntFlag{
				Name:  "rate",
				Usage: "Advance the demo scene `HZ` times per second.",
				Value: 60,
			},
			&cli.DurationFlag{
				Name:  "hibernate-after",
				Usage: "Report hibernating after `DURATION`; 0 never hibernates.",
			},
		},
	}

	logging.ConfigureRuntime()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "simmock: %v\n", err)
		os.Exit(1)
	}
}

func runMock(c *cli.Context) error {
	rate := c.Int("rate")
	if rate <= 0 {
		return fmt.Errorf("rate must be positive: %d", rate)
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", c.String("listen"))
	if err != nil {
		return err
	}
	srv := simserver.New(simserver.DefaultConfig(), simserver.DemoScene())
	go animate(ctx, srv, time.Second/time.Duration(rate), c.Duration("hibernate-after"))
	return srv.Serve(ctx, ln)
}

func animate(ctx context.Context, srv *simserver.Server, every, hibernateAfter time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			elapsed := now.Sub(start)
			srv.Update(func(sc *simserver.Scene) { simserver.Advance(sc, elapsed) })
			if hibernateAfter > 0 && elapsed >= hibernateAfter && srv.Status() == protocol.StatusRendering {
				logging.Infof("simmock hibernating elapsed=%s", elapsed)
				srv.SetStatus(protocol.StatusHibernating)
			}
		}
	}
}
