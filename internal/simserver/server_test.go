package simserver

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/danmuck/simview/internal/client"
	"github.com/danmuck/simview/internal/protocol"
	"github.com/danmuck/simview/internal/protocol/frame"
	"github.com/danmuck/simview/internal/scene"
	"github.com/danmuck/simview/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testLimits = frame.Limits{PacketSize: 64, MaxReplyBytes: 1 << 20}

func startServer(t *testing.T, sc Scene) (*Server, string, int) {
	t.Helper()
	srv := New(Config{Limits: testLimits}, sc)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	host, p, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(p)
	require.NoError(t, err)
	return srv, host, port
}

func newClient(mem *scene.Memory) *client.Client {
	cfg := client.DefaultConfig()
	cfg.Transport.Limits = testLimits
	cfg.Budget = &client.CountBudget{N: 2}
	return client.New(mem, cfg)
}

func TestEncodeOnlyStatusWhenNotRendering(t *testing.T) {
	sc := DemoScene()
	for _, status := range []protocol.ServerStatus{protocol.StatusHibernating, protocol.StatusTerminating} {
		b := sc.Encode(status, protocol.RequestInitializeObjects)
		assert.Len(t, b, 4)
		got, err := protocol.NewReader(b).ReadStatus()
		require.NoError(t, err)
		assert.Equal(t, status, got)
	}
}

func TestEncodeRoundTripsThroughDecoder(t *testing.T) {
	sc := DemoScene()
	r := protocol.NewReader(sc.Encode(protocol.StatusRendering, protocol.RequestInitializeObjects))
	_, err := r.ReadHeader(protocol.MessageInitialization)
	require.NoError(t, err)
	version, err := r.ReadU64()
	require.NoError(t, err)
	assert.Equal(t, sc.ObjectVersion, version)
	n, err := r.ReadCount(protocol.MinObjectSize)
	require.NoError(t, err)
	require.Equal(t, len(sc.Objects), n)
	for i := 0; i < n; i++ {
		d, err := protocol.DecodeObject(r)
		require.NoError(t, err)
		assert.Equal(t, sc.Objects[i].Index, d.Index)
		assert.Equal(t, sc.Objects[i].Kind, d.Kind)
	}
	assert.Zero(t, r.Remaining())
}

func TestInjectOverridesOnce(t *testing.T) {
	srv := New(DefaultConfig(), DemoScene())
	srv.Inject(protocol.RequestServerStatus, []byte{1, 0, 0, 0})
	assert.Equal(t, []byte{1, 0, 0, 0}, srv.Reply(protocol.RequestServerStatus))

	r := protocol.NewReader(srv.Reply(protocol.RequestServerStatus))
	status, err := r.ReadHeader(protocol.MessageStatus)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusRendering, status)
}

func TestAdvanceMovesBodiesAndEmitsContacts(t *testing.T) {
	sc := DemoScene()
	Advance(&sc, 0)
	require.Len(t, sc.Contacts, 1)
	assert.Greater(t, sc.Contacts[0].Force[2], 0.0)

	Advance(&sc, 800*time.Millisecond)
	assert.Empty(t, sc.Contacts)
	assert.Greater(t, sc.ObjectPoses[1][0].Position[2], 0.6)
}

func TestClientMirrorsServerOverTCP(t *testing.T) {
	testlog.Start(t)
	srv, host, port := startServer(t, DemoScene())
	mem := scene.NewMemory()
	c := newClient(mem)
	defer c.Close()
	require.NoError(t, c.Connect(context.Background(), host, port, time.Second))

	ctx := context.Background()
	for i := 0; i < 10 && c.State() != client.StateUpdateObjectPosition; i++ {
		require.NoError(t, c.Step(ctx))
	}
	require.Equal(t, client.StateUpdateObjectPosition, c.State())
	assert.Equal(t, []string{"0", "1", "2", "3", "4", "4/0/0", "4/1/0"}, mem.Roots(scene.Objects))
	assert.Equal(t, []string{"target"}, mem.Roots(scene.Visuals))
	assert.Equal(t, `<scene name="demo"/>`, c.SceneDocument())

	srv.Update(func(sc *Scene) { Advance(sc, 0) })
	require.NoError(t, c.Step(ctx))
	assert.Equal(t, []string{"0"}, mem.Roots(scene.Contacts))
	h, ok := mem.FindByName(scene.Objects, "1")
	require.True(t, ok)
	n, _ := mem.Node(h)
	assert.InDelta(t, 0.5, n.Pose.Position[2], 1e-9)

	srv.Update(func(sc *Scene) {
		sc.ObjectVersion++
		sc.Objects = sc.Objects[:2]
		sc.ObjectPoses = DefaultPoses(sc.Objects)
	})
	require.NoError(t, c.Step(ctx))
	assert.Equal(t, client.StateReinitObjectsStart, c.State())
	require.NoError(t, c.Step(ctx))
	assert.Equal(t, client.StateUpdateObjectPosition, c.State())
	assert.Equal(t, []string{"0", "1"}, mem.Roots(scene.Objects))
}

func TestTerminatingServerFailsClient(t *testing.T) {
	testlog.Start(t)
	srv, host, port := startServer(t, DemoScene())
	mem := scene.NewMemory()
	c := newClient(mem)
	defer c.Close()
	require.NoError(t, c.Connect(context.Background(), host, port, time.Second))

	ctx := context.Background()
	require.NoError(t, c.Step(ctx))
	require.NoError(t, c.Step(ctx))
	require.NoError(t, c.Step(ctx))

	srv.SetStatus(protocol.StatusTerminating)
	err := c.Step(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, protocol.ErrProtocolViolation))
	assert.False(t, c.Connected())
	assert.Zero(t, mem.Count(scene.Objects))

	require.NoError(t, c.Step(ctx))
	assert.Equal(t, client.StateIdle, c.State())
}

func TestDroppedConnectionSettlesClientInIdle(t *testing.T) {
	testlog.Start(t)
	srv, host, port := startServer(t, DemoScene())
	mem := scene.NewMemory()
	c := newClient(mem)
	defer c.Close()
	require.NoError(t, c.Connect(context.Background(), host, port, time.Second))
	require.NoError(t, c.Step(context.Background()))

	srv.closeAllConns()
	deadline := time.Now().Add(2 * time.Second)
	for c.Connected() && time.Now().Before(deadline) {
		// A write racing the close may fail; either way the client disconnects.
		_ = c.Step(context.Background())
	}
	assert.False(t, c.Connected())
	assert.Equal(t, client.StateIdle, c.State())
}

func TestConnectWithCanceledContextFails(t *testing.T) {
	c := newClient(scene.NewMemory())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Connect(ctx, "127.0.0.1", 1, 0)
	assert.True(t, errors.Is(err, protocol.ErrTransport))
	assert.False(t, c.Connected())
}
