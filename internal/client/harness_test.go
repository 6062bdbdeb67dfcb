package client

import (
	"context"
	"errors"
	"testing"

	"github.com/danmuck/simview/internal/protocol"
	"github.com/danmuck/simview/internal/scene"
	"github.com/danmuck/simview/internal/simserver"
	"github.com/danmuck/simview/internal/transport"
)

// serverTransport answers requests straight from a simserver.Server without
// a socket.
type serverTransport struct {
	srv     *simserver.Server
	pending []protocol.Request
	sent    []protocol.Request
	reply   protocol.Reader
	dead    bool
	closes  int
}

func (t *serverTransport) SendRequest(req protocol.Request) error {
	if t.closes > 0 {
		return transport.ErrClosed
	}
	t.pending = append(t.pending, req)
	t.sent = append(t.sent, req)
	return nil
}

func (t *serverTransport) ReadReply() (int, error) {
	if len(t.pending) == 0 {
		return 0, errors.New("no request pending")
	}
	req := t.pending[0]
	t.pending = t.pending[1:]
	payload := t.srv.Reply(req)
	t.reply.Reset(payload)
	return len(payload), nil
}

func (t *serverTransport) Reply() *protocol.Reader { return &t.reply }

func (t *serverTransport) IsAlive() bool { return t.closes == 0 && !t.dead }

func (t *serverTransport) Close() error {
	t.closes++
	return nil
}

type harness struct {
	t      *testing.T
	client *Client
	mem    *scene.Memory
	srv    *simserver.Server
	conn   *serverTransport
}

func newHarness(t *testing.T, sc simserver.Scene, budget Budget) *harness {
	t.Helper()
	h := &harness{t: t, mem: scene.NewMemory(), srv: simserver.New(simserver.DefaultConfig(), sc)}
	h.conn = &serverTransport{srv: h.srv}
	cfg := DefaultConfig()
	cfg.Budget = budget
	cfg.Dial = func(context.Context, string, int, transport.Config) (Transport, error) {
		return h.conn, nil
	}
	h.client = New(h.mem, cfg)
	if err := h.client.Connect(context.Background(), "sim", 8080, 0); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return h
}

func (h *harness) step() {
	h.t.Helper()
	if err := h.client.Step(context.Background()); err != nil {
		h.t.Fatalf("step in %s: %v", h.client.State(), err)
	}
}

// stepUntil steps until the client reaches want or the tick limit runs out.
func (h *harness) stepUntil(want State, limit int) int {
	h.t.Helper()
	for i := 1; i <= limit; i++ {
		h.step()
		if h.client.State() == want {
			return i
		}
	}
	h.t.Fatalf("state %s not reached in %d ticks, at %s", want, limit, h.client.State())
	return 0
}

func sphere(index uint64, radius float64) protocol.ObjectDescriptor {
	return protocol.ObjectDescriptor{
		Index: index,
		Kind:  protocol.ObjectSphere,
		Name:  "ball",
		Shape: protocol.Shape{Kind: protocol.ShapeSphere, Params: []float64{radius}},
	}
}

func box(index uint64) protocol.ObjectDescriptor {
	return protocol.ObjectDescriptor{
		Index: index,
		Kind:  protocol.ObjectBox,
		Name:  "crate",
		Shape: protocol.Shape{Kind: protocol.ShapeBox, Params: []float64{1, 2, 3}},
	}
}

func marker(name string) protocol.VisualDescriptor {
	return protocol.VisualDescriptor{
		Name:  name,
		Kind:  protocol.VisualSphere,
		Color: [4]float64{1, 0, 0, 1},
		Glow:  true,
		Shape: protocol.Shape{Kind: protocol.ShapeSphere, Params: []float64{0.1}},
	}
}

func sceneOf(version uint64, objects ...protocol.ObjectDescriptor) simserver.Scene {
	return simserver.Scene{
		Document:      "<scene/>",
		ObjectVersion: version,
		Objects:       objects,
		ObjectPoses:   simserver.DefaultPoses(objects),
	}
}
