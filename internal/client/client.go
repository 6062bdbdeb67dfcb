// Package client mirrors a remote simulation into a scene.
//
// Ownership boundary:
// - the synchronization state machine driven by Step
// - time-sliced initialization under an injectable Budget
// - the namespace registry of created scene identifiers
// - pose, visual and contact updates
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/simview/internal/logging"
	"github.com/danmuck/simview/internal/observability"
	"github.com/danmuck/simview/internal/protocol"
	"github.com/danmuck/simview/internal/scene"
	"github.com/danmuck/simview/internal/transport"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrNotConnected = errors.New("client: not connected")

// Transport is the connection surface the state machine drives.
// *transport.Conn implements it.
type Transport interface {
	SendRequest(req protocol.Request) error
	ReadReply() (int, error)
	Reply() *protocol.Reader
	IsAlive() bool
	Close() error
}

// Dialer opens a Transport. The default wraps transport.Dial.
type Dialer func(ctx context.Context, address string, port int, cfg transport.Config) (Transport, error)

func dialTCP(ctx context.Context, address string, port int, cfg transport.Config) (Transport, error) {
	return transport.Dial(ctx, address, port, cfg)
}

// Config defines client behavior.
type Config struct {
	Transport  transport.Config
	Visibility scene.Visibility

	// ContactForceScale is the arrow length of the largest force in a batch.
	ContactForceScale float64
	// ContactPointSize is the radius of contact point markers.
	ContactPointSize  float64

	// Budget bounds initialization work per tick. Nil uses a TimeBudget of
	// DefaultInitBudget.
	Budget Budget
	Dial   Dialer
}

func DefaultConfig() Config {
	return Config{
		Transport:         transport.DefaultConfig(),
		Visibility:        scene.DefaultVisibility(),
		ContactForceScale: 1.0,
		ContactPointSize:  0.02,
	}
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	c.Transport = c.Transport.WithDefaults()
	if c.ContactForceScale <= 0 {
		c.ContactForceScale = def.ContactForceScale
	}
	if c.ContactPointSize <= 0 {
		c.ContactPointSize = def.ContactPointSize
	}
	if c.Budget == nil {
		c.Budget = NewTimeBudget(DefaultInitBudget)
	}
	if c.Dial == nil {
		c.Dial = dialTCP
	}
	return c
}

// Client owns one connection and the scene content it mirrors. It is not
// safe for concurrent use; one Step runs at a time.
type Client struct {
	cfg     Config
	builder scene.Builder
	reg     *scene.Registry
	conn    Transport
	state   State

	objectVersion uint64
	visualVersion uint64
	progress      Progress
	document      string
}

func New(builder scene.Builder, cfg Config) *Client {
	return &Client{
		cfg:     cfg.WithDefaults(),
		builder: builder,
		reg:     scene.NewRegistry(),
	}
}

func (c *Client) State() State {
	return c.state
}

func (c *Client) Progress() Progress {
	return c.progress
}

// SceneDocument returns the configuration document fetched by the last
// object (re)initialization.
func (c *Client) SceneDocument() string {
	return c.document
}

// Connected reports whether a connection is held. It does not probe the peer.
func (c *Client) Connected() bool {
	return c.conn != nil
}

// Connect replaces any current connection with a new one to address:port.
// A zero timeout waits until ctx ends.
func (c *Client) Connect(ctx context.Context, address string, port int, timeout time.Duration) error {
	c.Close()
	cfg := c.cfg.Transport
	cfg.ConnectTimeout = timeout
	conn, err := c.cfg.Dial(ctx, address, port, cfg)
	if err != nil {
		observability.RecordError(errorKind(err))
		return err
	}
	c.conn = conn
	logging.Infof("client.Client connect addr=%s port=%d", address, port)
	return nil
}

// Close drops the connection and the mirrored scene. Safe to call in any state.
func (c *Client) Close() {
	c.closeConn()
	c.reset()
}

func (c *Client) closeConn() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		logging.Debugf("client.Client close err=%v", err)
	}
	c.conn = nil
}

// reset clears every namespace and returns to Idle.
func (c *Client) reset() {
	c.clearScene()
	c.state = StateIdle
}

func (c *Client) clearScene() {
	for _, ns := range []scene.Namespace{scene.Objects, scene.Visuals, scene.Contacts} {
		c.clearNamespace(ns)
	}
	c.progress = Progress{}
	c.objectVersion = 0
	c.visualVersion = 0
}

func (c *Client) clearNamespace(ns scene.Namespace) {
	c.builder.DestroyAll(ns)
	c.reg.Clear(ns)
	observability.SetEntities(string(ns), 0)
}

// Step runs one scheduler tick. Without a live connection the scene is
// cleared, the client settles in Idle and Step returns nil. Any other error
// clears the scene and closes the connection before it is returned.
func (c *Client) Step(ctx context.Context) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	from := c.state
	began := time.Now()
	_, span := observability.Tracer().Start(ctx, "client.Step",
		trace.WithAttributes(attribute.String("state", from.String())))
	defer func() {
		observability.RecordStep(from.String(), time.Since(began))
		span.SetAttributes(attribute.String("next_state", c.state.String()))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.conn == nil || !c.conn.IsAlive() {
		if c.conn != nil {
			logging.Warnf("client.Client step connection lost state=%s", c.state)
		}
		c.closeConn()
		c.reset()
		return nil
	}

	for {
		more, err := c.dispatch()
		if err != nil {
			c.fail(err)
			return err
		}
		if !more {
			return nil
		}
	}
}

func (c *Client) fail(err error) {
	logging.Errorf("client.Client step failed state=%s err=%v", c.state, err)
	observability.RecordError(errorKind(err))
	c.clearScene()
	c.closeConn()
	c.state = StateIdle
}

// dispatch runs the handler of the current state and reports whether the
// tick continues into the state it moved to.
func (c *Client) dispatch() (bool, error) {
	switch c.state {
	case StateIdle:
		return c.stepIdle()
	case StateInitObjectsStart:
		return c.startObjects(StateInitializingObjects)
	case StateInitializingObjects:
		return c.initializeObjects(StateInitVisualsStart, true)
	case StateInitVisualsStart:
		return c.startVisuals(StateInitializingVisuals)
	case StateInitializingVisuals:
		return c.initializeVisuals(StateUpdateObjectPosition)
	case StateUpdateObjectPosition:
		return c.updateObjects()
	case StateReinitObjectsStart:
		c.clearNamespace(scene.Objects)
		observability.RecordReinit(string(scene.Objects))
		return c.startObjects(StateReinitializingObjects)
	case StateReinitializingObjects:
		return c.initializeObjects(StateUpdateObjectPosition, false)
	case StateUpdateVisualPosition:
		return c.updateVisuals()
	case StateReinitVisualsStart:
		c.clearNamespace(scene.Visuals)
		observability.RecordReinit(string(scene.Visuals))
		return c.startVisuals(StateReinitializingVisuals)
	case StateReinitializingVisuals:
		return c.initializeVisuals(StateUpdateVisualPosition)
	}
	return false, fmt.Errorf("client: unhandled state %s", c.state)
}

func (c *Client) transition(next State) {
	if next != c.state {
		logging.Debugf("client.Client transition from=%s to=%s", c.state, next)
	}
	c.state = next
}

// exchange sends req and reads the reply header. ok is false when the tick
// must end without decoding: the peer closed before replying (state kept)
// or the server is hibernating (scene cleared, state Idle).
func (c *Client) exchange(req protocol.Request, want protocol.MessageType) (r *protocol.Reader, ok bool, err error) {
	if err := c.conn.SendRequest(req); err != nil {
		return nil, false, err
	}
	n, err := c.conn.ReadReply()
	if err != nil {
		return nil, false, err
	}
	observability.RecordReply(req.String(), n)
	if n == 0 {
		logging.Debugf("client.Client exchange empty reply req=%s state=%s", req, c.state)
		return nil, false, nil
	}
	r = c.conn.Reply()
	status, err := r.ReadHeader(want)
	if err != nil {
		return nil, false, fmt.Errorf("%s reply: %w", req, err)
	}
	if status == protocol.StatusHibernating {
		logging.Infof("client.Client server hibernating state=%s", c.state)
		c.reset()
		return nil, false, nil
	}
	return r, true, nil
}

func (c *Client) stepIdle() (bool, error) {
	c.clearScene()
	_, ok, err := c.exchange(protocol.RequestServerStatus, protocol.MessageStatus)
	if err != nil || !ok {
		return false, err
	}
	c.transition(StateInitObjectsStart)
	return false, nil
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, protocol.ErrTruncated):
		return "truncated"
	case errors.Is(err, protocol.ErrDecode):
		return "decode"
	case errors.Is(err, protocol.ErrUnknownEntity):
		return "unknown_entity"
	case errors.Is(err, protocol.ErrProtocolViolation):
		return "protocol_violation"
	case errors.Is(err, protocol.ErrTransport):
		return "transport"
	default:
		return "other"
	}
}
