package main

import (
	"context"
	"testing"
	"time"

	"github.com/danmuck/simview/internal/protocol"
	"github.com/danmuck/simview/internal/simserver"
)

func TestAnimateMovesSceneAndHibernates(t *testing.T) {
	srv := simserver.New(simserver.DefaultConfig(), simserver.DemoScene())
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		animate(ctx, srv, 5*time.Millisecond, 20*time.Millisecond)
		close(done)
	}()
	<-done

	if srv.Status() != protocol.StatusHibernating {
		t.Fatalf("expected hibernating status, got %s", srv.Status())
	}
	sc := srv.Scene()
	if sc.VisualPoses[0].Position == (protocol.Vec3{0, 0, 2}) {
		t.Fatalf("visual marker did not move")
	}
}
