// Package scene defines what the synchronization core hands to a renderer.
//
// Ownership boundary:
// - the Builder contract a renderer implements
// - shape specs derived from decoded descriptors
// - the namespace registry mapping identifiers to node handles
// - a headless in-memory Builder with CBOR snapshots
package scene

import (
	"errors"
	"fmt"

	"github.com/danmuck/simview/internal/protocol"
)

// Namespace partitions identifiers; an identifier is unique within one namespace.
type Namespace string

const (
	Objects  Namespace = "objects"
	Visuals  Namespace = "visuals"
	Contacts Namespace = "contacts"
)

// Handle is an opaque reference to a renderer node.
type Handle uint64

var (
	ErrDuplicateID = fmt.Errorf("%w: duplicate identifier", protocol.ErrProtocolViolation)
	ErrNoSuchNode  = errors.New("scene: no such node")
)

// ShapeKind is the renderable geometry of one shape node.
type ShapeKind int

const (
	ShapeSphere ShapeKind = iota
	ShapeBox
	ShapeCylinder
	ShapeCone
	ShapeCapsule
	ShapeMesh
	ShapePlane
	ShapeHeightField
	ShapeArrow
)

var shapeKindNames = [...]string{"sphere", "box", "cylinder", "cone", "capsule", "mesh", "plane", "heightfield", "arrow"}

func (k ShapeKind) String() string {
	if k < 0 || int(k) >= len(shapeKindNames) {
		return fmt.Sprintf("shape(%d)", int(k))
	}
	return shapeKindNames[k]
}

// ShapeSpec describes one shape attached under a root node.
type ShapeSpec struct {
	Kind ShapeKind `cbor:"kind"`

	// Params are kind-specific dimensions: sphere radius, box extents,
	// radius+height for cylinders/cones/capsules, plane height.
	Params    []float64           `cbor:"params,omitempty"`
	MeshFile  string              `cbor:"mesh,omitempty"`
	Scale     protocol.Vec3       `cbor:"scale"`
	Local     protocol.Pose       `cbor:"local"`
	HeightMap *protocol.HeightMap `cbor:"heightmap,omitempty"`

	Appearance string     `cbor:"appearance,omitempty"`
	Color      [4]float64 `cbor:"color"`
	Material   string     `cbor:"material,omitempty"`
	Glow       bool       `cbor:"glow,omitempty"`
	Shadow     bool       `cbor:"shadow,omitempty"`

	// Collision marks articulated collision geometry; Group is its collision group.
	Collision bool   `cbor:"collision,omitempty"`
	Group     uint64 `cbor:"group,omitempty"`
}

// Visibility toggles optional geometry once a scene is fully initialized.
type Visibility struct {
	VisualBodies    bool
	CollisionBodies bool
	ContactPoints   bool
	ContactForces   bool
}

func DefaultVisibility() Visibility {
	return Visibility{
		VisualBodies:    true,
		CollisionBodies: false,
		ContactPoints:   true,
		ContactForces:   true,
	}
}

// Builder is implemented by the renderer.
type Builder interface {
	CreateRoot(ns Namespace, id string) (Handle, error)
	CreateShape(parent Handle, spec ShapeSpec) (Handle, error)
	SetPose(ns Namespace, id string, pose protocol.Pose) error
	DestroyAll(ns Namespace)
	FindByName(ns Namespace, id string) (Handle, bool)
}

// ViewFinalizer is optionally implemented by builders that hide geometry or
// disable extra views after initialization completes.
type ViewFinalizer interface {
	ApplyVisibility(v Visibility)
}
