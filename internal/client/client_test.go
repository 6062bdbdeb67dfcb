package client

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/danmuck/simview/internal/protocol"
	"github.com/danmuck/simview/internal/scene"
	"github.com/danmuck/simview/internal/simserver"
	"github.com/danmuck/simview/internal/testutil/testlog"
)

func TestSingleSphereReadyAfterTwoTicks(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, sceneOf(1, sphere(0, 0.5)), nil)

	h.step()
	if h.client.State() != StateInitObjectsStart {
		t.Fatalf("expected init_objects_start after first tick, got %s", h.client.State())
	}
	h.step()
	if h.client.State() != StateUpdateObjectPosition {
		t.Fatalf("expected update_object_position after second tick, got %s", h.client.State())
	}
	if got := h.mem.Roots(scene.Objects); !reflect.DeepEqual(got, []string{"0"}) {
		t.Fatalf("unexpected object roots: %v", got)
	}
	shapes := h.mem.Shapes(scene.Objects, "0")
	if len(shapes) != 1 || shapes[0].Kind != scene.ShapeSphere || shapes[0].Params[0] != 0.5 {
		t.Fatalf("unexpected sphere shapes: %+v", shapes)
	}
	if h.client.SceneDocument() != "<scene/>" {
		t.Fatalf("scene document not cached: %q", h.client.SceneDocument())
	}
	want := []protocol.Request{
		protocol.RequestServerStatus,
		protocol.RequestConfigXML,
		protocol.RequestInitializeObjects,
		protocol.RequestInitializeVisuals,
	}
	if !reflect.DeepEqual(h.conn.sent, want) {
		t.Fatalf("unexpected request sequence: %v", h.conn.sent)
	}
}

func TestUpdateTickAppliesPosesAndYields(t *testing.T) {
	testlog.Start(t)
	sc := sceneOf(1, sphere(0, 0.5))
	sc.Visuals = []protocol.VisualDescriptor{marker("goal")}
	sc.VisualPoses = []protocol.Pose{{Name: "goal", Position: protocol.Vec3{4, 5, 6}, Rotation: protocol.IdentityQuat}}
	sc.ObjectPoses[0][0].Position = protocol.Vec3{1, 2, 3}
	h := newHarness(t, sc, nil)
	h.stepUntil(StateUpdateObjectPosition, 4)

	sent := len(h.conn.sent)
	h.step()
	if h.client.State() != StateUpdateObjectPosition {
		t.Fatalf("expected to yield back to update_object_position, got %s", h.client.State())
	}
	want := []protocol.Request{protocol.RequestObjectPosition, protocol.RequestVisualPosition, protocol.RequestContactInfos}
	if !reflect.DeepEqual(h.conn.sent[sent:], want) {
		t.Fatalf("unexpected update requests: %v", h.conn.sent[sent:])
	}
	root, _ := h.mem.FindByName(scene.Objects, "0")
	n, _ := h.mem.Node(root)
	if n.Pose.Position != (protocol.Vec3{1, 2, 3}) {
		t.Fatalf("object pose not applied: %+v", n.Pose)
	}
	root, _ = h.mem.FindByName(scene.Visuals, "goal")
	n, _ = h.mem.Node(root)
	if n.Pose.Position != (protocol.Vec3{4, 5, 6}) {
		t.Fatalf("visual pose not applied: %+v", n.Pose)
	}
}

func TestObjectVersionChangeReinitializes(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, sceneOf(3, sphere(0, 0.5)), nil)
	h.stepUntil(StateUpdateObjectPosition, 4)
	h.step()

	h.srv.Update(func(sc *simserver.Scene) {
		*sc = sceneOf(4, box(0), sphere(1, 0.25))
	})
	posesBefore := h.mem.PosesSet
	h.step()
	if h.client.State() != StateReinitObjectsStart {
		t.Fatalf("expected reinit_objects_start, got %s", h.client.State())
	}
	if h.mem.PosesSet != posesBefore {
		t.Fatalf("stale poses applied on version mismatch")
	}

	h.step()
	if h.client.State() != StateUpdateObjectPosition {
		t.Fatalf("expected update_object_position after reinit, got %s", h.client.State())
	}
	if got := h.mem.Roots(scene.Objects); !reflect.DeepEqual(got, []string{"0", "1"}) {
		t.Fatalf("unexpected roots after reinit: %v", got)
	}
	if shapes := h.mem.Shapes(scene.Objects, "0"); len(shapes) != 1 || shapes[0].Kind != scene.ShapeBox {
		t.Fatalf("object 0 not rebuilt as box: %+v", shapes)
	}
	if p := h.client.Progress(); p.ObjectsDone != 2 || p.ObjectsTotal != 2 {
		t.Fatalf("unexpected progress: %+v", p)
	}
	h.step()
	if h.client.State() != StateUpdateObjectPosition {
		t.Fatalf("expected steady updates after reinit, got %s", h.client.State())
	}
}

func TestVisualVersionChangeReinitializesVisuals(t *testing.T) {
	testlog.Start(t)
	sc := sceneOf(1, sphere(0, 0.5))
	sc.VisualVersion = 7
	sc.Visuals = []protocol.VisualDescriptor{marker("a")}
	h := newHarness(t, sc, nil)
	h.stepUntil(StateUpdateObjectPosition, 4)

	h.srv.Update(func(sc *simserver.Scene) {
		sc.VisualVersion = 8
		sc.Visuals = []protocol.VisualDescriptor{marker("b"), marker("c")}
	})
	h.step()
	if h.client.State() != StateReinitVisualsStart {
		t.Fatalf("expected reinit_visuals_start, got %s", h.client.State())
	}
	h.step()
	if h.client.State() != StateUpdateVisualPosition {
		t.Fatalf("expected update_visual_position, got %s", h.client.State())
	}
	if got := h.mem.Roots(scene.Visuals); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Fatalf("unexpected visual roots: %v", got)
	}
	if got := h.mem.Roots(scene.Objects); !reflect.DeepEqual(got, []string{"0"}) {
		t.Fatalf("objects must survive a visual reinit: %v", got)
	}
	h.step()
	if h.client.State() != StateUpdateObjectPosition {
		t.Fatalf("expected update_object_position, got %s", h.client.State())
	}
}

func TestHibernatingDuringInitReturnsToIdle(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, sceneOf(1, sphere(0, 0.5), sphere(1, 0.5)), nil)
	h.step()
	if h.client.State() != StateInitObjectsStart {
		t.Fatalf("expected init_objects_start, got %s", h.client.State())
	}

	h.srv.SetStatus(protocol.StatusHibernating)
	h.step()
	if h.client.State() != StateIdle {
		t.Fatalf("expected idle while hibernating, got %s", h.client.State())
	}
	if n := h.mem.Count(scene.Objects); n != 0 || h.mem.RootsCreated != 0 {
		t.Fatalf("objects created while hibernating: count=%d roots=%d", n, h.mem.RootsCreated)
	}
	if !h.client.Connected() {
		t.Fatalf("hibernation must keep the connection")
	}

	h.step()
	if h.client.State() != StateIdle {
		t.Fatalf("expected to stay idle, got %s", h.client.State())
	}
	h.srv.SetStatus(protocol.StatusRendering)
	h.stepUntil(StateUpdateObjectPosition, 3)
}

func TestHibernatingDuringUpdatesClearsScene(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, sceneOf(1, sphere(0, 0.5)), nil)
	h.stepUntil(StateUpdateObjectPosition, 4)

	h.srv.SetStatus(protocol.StatusHibernating)
	h.step()
	if h.client.State() != StateIdle || h.mem.Count(scene.Objects) != 0 {
		t.Fatalf("expected idle with empty scene, got %s count=%d", h.client.State(), h.mem.Count(scene.Objects))
	}
}

func TestTruncatedReplyClosesAndClears(t *testing.T) {
	testlog.Start(t)
	sc := sceneOf(1, sphere(0, 0.5))
	sc.Visuals = []protocol.VisualDescriptor{marker("goal")}
	h := newHarness(t, sc, nil)
	h.stepUntil(StateUpdateObjectPosition, 4)

	w := protocol.NewWriter()
	w.WriteHeader(protocol.StatusRendering, protocol.MessageObjectPositionUpdate)
	w.WriteU64(1)
	w.WriteU64(1)
	w.WriteU64(1)
	w.WriteU64(200) // name length beyond the reply
	w.WriteString(strings.Repeat("x", 62))
	h.srv.Inject(protocol.RequestObjectPosition, w.Bytes())

	err := h.client.Step(context.Background())
	if !errors.Is(err, protocol.ErrTruncated) {
		t.Fatalf("expected truncated error, got %v", err)
	}
	if h.conn.closes != 1 || h.client.Connected() {
		t.Fatalf("connection not closed: closes=%d", h.conn.closes)
	}
	if h.mem.Count(scene.Objects) != 0 || h.mem.Count(scene.Visuals) != 0 {
		t.Fatalf("scene not cleared")
	}
	if err := h.client.Step(context.Background()); err != nil {
		t.Fatalf("step without connection: %v", err)
	}
	if h.client.State() != StateIdle {
		t.Fatalf("expected idle, got %s", h.client.State())
	}
}

func TestBudgetedInitPreservesStreamOrder(t *testing.T) {
	testlog.Start(t)
	indices := []uint64{5, 3, 9, 0, 12, 7, 1}
	objects := make([]protocol.ObjectDescriptor, 0, len(indices))
	for _, idx := range indices {
		objects = append(objects, sphere(idx, 0.1))
	}

	for _, perTick := range []int{1, 2, 3, 7, 0} {
		t.Run(fmt.Sprintf("per_tick_%d", perTick), func(t *testing.T) {
			h := newHarness(t, sceneOf(1, objects...), &CountBudget{N: perTick})
			h.stepUntil(StateUpdateObjectPosition, 2*len(objects)+2)

			want := make([]string, 0, len(indices))
			for _, idx := range indices {
				want = append(want, protocol.ObjectID(idx))
			}
			if got := h.client.reg.IDs(scene.Objects); !reflect.DeepEqual(got, want) {
				t.Fatalf("stream order lost: got %v want %v", got, want)
			}
			if h.mem.RootsCreated != len(indices) {
				t.Fatalf("expected %d roots, got %d", len(indices), h.mem.RootsCreated)
			}
		})
	}
}

func TestBudgetedInitYieldsBetweenTicks(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, sceneOf(1, sphere(0, 1), sphere(1, 1), sphere(2, 1)), &CountBudget{N: 1})
	h.step()
	h.step()
	if h.client.State() != StateInitializingObjects {
		t.Fatalf("expected initializing_objects, got %s", h.client.State())
	}
	if p := h.client.Progress(); p.ObjectsDone != 1 || p.ObjectsTotal != 3 {
		t.Fatalf("unexpected progress: %+v", p)
	}
	h.step()
	if p := h.client.Progress(); p.ObjectsDone != 2 {
		t.Fatalf("unexpected progress: %+v", p)
	}
}

func TestVisualProgressUsesVisualCounts(t *testing.T) {
	testlog.Start(t)
	sc := sceneOf(1, sphere(0, 1))
	sc.Visuals = []protocol.VisualDescriptor{marker("a"), marker("b"), marker("c")}
	h := newHarness(t, sc, &CountBudget{N: 1})
	h.step()
	h.step()
	if h.client.State() != StateInitializingVisuals {
		t.Fatalf("expected initializing_visuals, got %s", h.client.State())
	}
	p := h.client.Progress()
	if p.VisualsDone != 1 || p.VisualsTotal != 3 || p.ObjectsDone != 1 || p.ObjectsTotal != 1 {
		t.Fatalf("visual progress must track visual counts: %+v", p)
	}
	if got := p.Fraction(); got != 0.5 {
		t.Fatalf("unexpected fraction %v", got)
	}
}

func TestDuplicateIdentifierIsProtocolViolation(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, sceneOf(1, sphere(4, 1), box(4)), nil)
	h.step()
	err := h.client.Step(context.Background())
	if !errors.Is(err, protocol.ErrProtocolViolation) || !errors.Is(err, scene.ErrDuplicateID) {
		t.Fatalf("expected duplicate id violation, got %v", err)
	}
	if h.mem.Count(scene.Objects) != 0 {
		t.Fatalf("scene not cleared after violation")
	}
}

func TestUnknownPoseTargetFails(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, sceneOf(1, sphere(0, 1)), nil)
	h.stepUntil(StateUpdateObjectPosition, 4)
	h.srv.Update(func(sc *simserver.Scene) {
		sc.ObjectPoses = [][]protocol.Pose{{{Name: "42", Rotation: protocol.IdentityQuat}}}
	})
	err := h.client.Step(context.Background())
	var unknown protocol.UnknownEntityError
	if !errors.As(err, &unknown) || unknown.ID != "42" || unknown.Namespace != string(scene.Objects) {
		t.Fatalf("expected unknown entity 42, got %v", err)
	}
}

func TestTerminatingIsProtocolViolation(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, sceneOf(1), nil)
	h.srv.SetStatus(protocol.StatusTerminating)
	err := h.client.Step(context.Background())
	if !errors.Is(err, protocol.ErrProtocolViolation) {
		t.Fatalf("expected protocol violation, got %v", err)
	}
	if h.client.Connected() {
		t.Fatalf("connection kept after terminating")
	}
}

func TestEmptyReplySkipsTick(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, sceneOf(1, sphere(0, 1)), nil)
	h.srv.Inject(protocol.RequestServerStatus, nil)
	h.step()
	if h.client.State() != StateIdle || !h.client.Connected() {
		t.Fatalf("expected skipped tick in idle, got %s", h.client.State())
	}
	h.step()
	if h.client.State() != StateInitObjectsStart {
		t.Fatalf("expected init_objects_start, got %s", h.client.State())
	}
}

func TestDeadConnectionSettlesInIdle(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, sceneOf(1, sphere(0, 1)), nil)
	h.stepUntil(StateUpdateObjectPosition, 4)

	h.conn.dead = true
	if err := h.client.Step(context.Background()); err != nil {
		t.Fatalf("dead connection step: %v", err)
	}
	if h.client.State() != StateIdle || h.mem.Count(scene.Objects) != 0 || h.client.Connected() {
		t.Fatalf("expected cleared idle client, got %s", h.client.State())
	}
}

func TestCloseResetsFromAnyState(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, sceneOf(1, sphere(0, 1)), nil)
	h.stepUntil(StateUpdateObjectPosition, 4)
	h.client.Close()
	h.client.Close()
	if h.client.State() != StateIdle || h.mem.Count(scene.Objects) != 0 {
		t.Fatalf("close did not reset")
	}
	if h.conn.closes != 1 {
		t.Fatalf("expected one transport close, got %d", h.conn.closes)
	}
}

func TestStepHonorsCanceledContext(t *testing.T) {
	h := newHarness(t, sceneOf(1), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.client.Step(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if len(h.conn.sent) != 0 {
		t.Fatalf("requests sent after cancel: %v", h.conn.sent)
	}
}

func TestArticulatedPartsAreSeparateRoots(t *testing.T) {
	testlog.Start(t)
	robot := protocol.ObjectDescriptor{
		Index:       2,
		Kind:        protocol.ObjectArticulatedSystem,
		Name:        "arm",
		ResourceDir: "arm/",
		Parts: [2][]protocol.Part{
			{
				{ID: protocol.PartID(2, protocol.PartVisual, 0), Shape: protocol.Shape{Kind: protocol.ShapeMesh, MeshFile: "link0.dae", MeshScale: protocol.Vec3{1, 1, 1}}},
				{ID: protocol.PartID(2, protocol.PartVisual, 1), Shape: protocol.Shape{Kind: protocol.ShapeBox, Params: []float64{1, 1, 1}}},
			},
			{
				{ID: protocol.PartID(2, protocol.PartCollision, 0), Group: 3, Shape: protocol.Shape{Kind: protocol.ShapeCapsule, Params: []float64{0.1, 0.5}}},
			},
		},
	}
	h := newHarness(t, sceneOf(1, robot), nil)
	h.stepUntil(StateUpdateObjectPosition, 4)

	want := []string{"2", "2/0/0", "2/0/1", "2/1/0"}
	if got := h.mem.Roots(scene.Objects); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected articulated roots: %v", got)
	}
	col := h.mem.Shapes(scene.Objects, "2/1/0")
	if len(col) != 1 || !col[0].Collision || col[0].Group != 3 {
		t.Fatalf("collision part not flagged: %+v", col)
	}
	mesh := h.mem.Shapes(scene.Objects, "2/0/0")
	if len(mesh) != 1 || mesh[0].MeshFile != "link0.dae" {
		t.Fatalf("mesh part lost: %+v", mesh)
	}
	h.step()
	if h.client.State() != StateUpdateObjectPosition {
		t.Fatalf("part poses not applied: %s", h.client.State())
	}
}

func TestCompoundHalfSpaceAndHeightMap(t *testing.T) {
	testlog.Start(t)
	objects := []protocol.ObjectDescriptor{
		{Index: 0, Kind: protocol.ObjectHalfSpace, Name: "ground", Height: -1},
		{Index: 1, Kind: protocol.ObjectCompound, Name: "dumbbell", Children: []protocol.CompoundChild{
			{Shape: protocol.Shape{Kind: protocol.ShapeSphere, Params: []float64{0.2}}, Pose: protocol.Pose{Position: protocol.Vec3{-1, 0, 0}, Rotation: protocol.IdentityQuat}},
			{Shape: protocol.Shape{Kind: protocol.ShapeSphere, Params: []float64{0.2}}, Pose: protocol.Pose{Position: protocol.Vec3{1, 0, 0}, Rotation: protocol.IdentityQuat}},
		}},
		{Index: 2, Kind: protocol.ObjectHeightMap, Name: "terrain", HeightMap: &protocol.HeightMap{
			Size: [2]float32{4, 4}, SamplesX: 2, SamplesY: 2, Heights: []float32{0, 1, 2, 3},
		}},
	}
	h := newHarness(t, sceneOf(1, objects...), nil)
	h.stepUntil(StateUpdateObjectPosition, 4)

	if s := h.mem.Shapes(scene.Objects, "0"); len(s) != 1 || s[0].Kind != scene.ShapePlane || s[0].Params[0] != -1 {
		t.Fatalf("unexpected half space: %+v", s)
	}
	s := h.mem.Shapes(scene.Objects, "1")
	if len(s) != 2 || s[1].Local.Position != (protocol.Vec3{1, 0, 0}) {
		t.Fatalf("unexpected compound: %+v", s)
	}
	if s := h.mem.Shapes(scene.Objects, "2"); len(s) != 1 || s[0].HeightMap == nil || len(s[0].HeightMap.Heights) != 4 {
		t.Fatalf("unexpected height field: %+v", s)
	}
}
