package scene

import (
	"fmt"
	"sort"

	"github.com/danmuck/simview/internal/protocol"
	"github.com/fxamacker/cbor/v2"
)

// Node is one root or shape node held by Memory.
type Node struct {
	Handle    Handle        `cbor:"handle"`
	Namespace Namespace     `cbor:"ns"`
	ID        string        `cbor:"id,omitempty"`
	Parent    Handle        `cbor:"parent,omitempty"`
	Shape     *ShapeSpec    `cbor:"shape,omitempty"`
	Pose      protocol.Pose `cbor:"pose"`
	Visible   bool          `cbor:"visible"`
}

// Memory is a headless Builder that keeps the scene graph in maps. It backs
// the simview CLI and tests. It is not safe for concurrent use.
type Memory struct {
	next       Handle
	nodes      map[Handle]*Node
	byName     map[Namespace]map[string]Handle
	visibility Visibility

	// Counters for callers that want to observe builder traffic.
	RootsCreated  int
	ShapesCreated int
	PosesSet      int
}

func NewMemory() *Memory {
	return &Memory{
		nodes:      make(map[Handle]*Node),
		byName:     make(map[Namespace]map[string]Handle),
		visibility: DefaultVisibility(),
	}
}

var (
	_ Builder       = (*Memory)(nil)
	_ ViewFinalizer = (*Memory)(nil)
)

func (m *Memory) CreateRoot(ns Namespace, id string) (Handle, error) {
	names, ok := m.byName[ns]
	if !ok {
		names = make(map[string]Handle)
		m.byName[ns] = names
	}
	if _, exists := names[id]; exists {
		return 0, fmt.Errorf("%w: %s/%q", ErrDuplicateID, ns, id)
	}
	m.next++
	n := &Node{
		Handle:    m.next,
		Namespace: ns,
		ID:        id,
		Pose:      protocol.Pose{Name: id, Rotation: protocol.IdentityQuat},
		Visible:   true,
	}
	m.nodes[n.Handle] = n
	names[id] = n.Handle
	m.RootsCreated++
	return n.Handle, nil
}

func (m *Memory) CreateShape(parent Handle, spec ShapeSpec) (Handle, error) {
	p, ok := m.nodes[parent]
	if !ok {
		return 0, fmt.Errorf("%w: parent %d", ErrNoSuchNode, parent)
	}
	m.next++
	s := spec
	n := &Node{
		Handle:    m.next,
		Namespace: p.Namespace,
		Parent:    parent,
		Shape:     &s,
		Pose:      spec.Local,
		Visible:   m.shapeVisible(p.Namespace, spec),
	}
	m.nodes[n.Handle] = n
	m.ShapesCreated++
	return n.Handle, nil
}

func (m *Memory) SetPose(ns Namespace, id string, pose protocol.Pose) error {
	h, ok := m.byName[ns][id]
	if !ok {
		return protocol.UnknownEntityError{Namespace: string(ns), ID: id}
	}
	m.nodes[h].Pose = pose
	m.PosesSet++
	return nil
}

func (m *Memory) DestroyAll(ns Namespace) {
	for h, n := range m.nodes {
		if n.Namespace == ns {
			delete(m.nodes, h)
		}
	}
	delete(m.byName, ns)
}

func (m *Memory) FindByName(ns Namespace, id string) (Handle, bool) {
	h, ok := m.byName[ns][id]
	return h, ok
}

// ApplyVisibility updates shape visibility for existing and future nodes.
func (m *Memory) ApplyVisibility(v Visibility) {
	m.visibility = v
	for _, n := range m.nodes {
		if n.Shape != nil {
			n.Visible = m.shapeVisible(n.Namespace, *n.Shape)
		}
	}
}

func (m *Memory) shapeVisible(ns Namespace, spec ShapeSpec) bool {
	switch {
	case ns == Contacts && spec.Kind == ShapeArrow:
		return m.visibility.ContactForces
	case ns == Contacts:
		return m.visibility.ContactPoints
	case spec.Collision:
		return m.visibility.CollisionBodies
	case ns == Objects:
		return m.visibility.VisualBodies
	default:
		return true
	}
}

// Node returns a copy of the node behind h.
func (m *Memory) Node(h Handle) (Node, bool) {
	n, ok := m.nodes[h]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Roots returns the root identifiers of ns, sorted.
func (m *Memory) Roots(ns Namespace) []string {
	ids := make([]string, 0, len(m.byName[ns]))
	for id := range m.byName[ns] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Shapes returns the shape nodes under the root id in ns, in creation order.
func (m *Memory) Shapes(ns Namespace, id string) []ShapeSpec {
	root, ok := m.byName[ns][id]
	if !ok {
		return nil
	}
	var nodes []*Node
	for _, n := range m.nodes {
		if n.Parent == root && n.Shape != nil {
			nodes = append(nodes, n)
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Handle < nodes[j].Handle })
	out := make([]ShapeSpec, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, *n.Shape)
	}
	return out
}

// Count returns the number of nodes (roots and shapes) in ns.
func (m *Memory) Count(ns Namespace) int {
	var c int
	for _, n := range m.nodes {
		if n.Namespace == ns {
			c++
		}
	}
	return c
}

// Snapshot is a serializable copy of the scene graph.
type Snapshot struct {
	Nodes []Node `cbor:"nodes"`
}

// Snapshot copies every node, ordered by handle.
func (m *Memory) Snapshot() Snapshot {
	nodes := make([]Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		nodes = append(nodes, *n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Handle < nodes[j].Handle })
	return Snapshot{Nodes: nodes}
}

// MarshalCBOR encodes the snapshot with canonical map ordering.
func (s Snapshot) MarshalCBOR() ([]byte, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	type plain Snapshot
	return em.Marshal(plain(s))
}

// DecodeSnapshot parses a snapshot written by MarshalCBOR.
func DecodeSnapshot(b []byte) (Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(b, &s); err != nil {
		return Snapshot{}, fmt.Errorf("scene: decode snapshot: %w", err)
	}
	return s, nil
}
