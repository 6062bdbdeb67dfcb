package protocol

import (
	"fmt"
	"math"
	"strconv"
)

// Vec3 is an x, y, z triple.
type Vec3 [3]float64

// Norm returns the euclidean length of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// Scale returns v multiplied by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v[0] * s, v[1] * s, v[2] * s}
}

// Quat is a unit quaternion stored w, x, y, z.
type Quat [4]float64

// IdentityQuat is the zero rotation.
var IdentityQuat = Quat{1, 0, 0, 0}

// Pose is one named position/orientation update.
type Pose struct {
	Name     string
	Position Vec3
	Rotation Quat
}

// Contact is one contact point and the force acting at it.
type Contact struct {
	Position Vec3
	Force    Vec3
}

// Shape is one geometric primitive. Params holds the kind-specific dimensions
// (radius / extents / radius+height); mesh shapes carry a file and a scale instead.
type Shape struct {
	Kind      ShapeKind
	Params    []float64
	MeshFile  string
	MeshScale Vec3
}

// CompoundChild is a shape placed relative to its compound's origin.
type CompoundChild struct {
	Shape Shape
	Pose  Pose
}

// Part is one visual or collision shape of an articulated system.
type Part struct {
	ID    string
	Group uint64
	Shape Shape
}

// HeightMap is a row-major grid of heights.
type HeightMap struct {
	Center   [2]float32
	Size     [2]float32
	SamplesX uint64
	SamplesY uint64
	Heights  []float32
}

// Articulated visual/collision pass indexes.
const (
	PartVisual    = 0
	PartCollision = 1
)

// ObjectDescriptor is one decoded simulated object.
type ObjectDescriptor struct {
	Index      uint64
	Kind       ObjectKind
	Name       string
	Appearance string

	// Primitive kinds (Sphere, Box, Cylinder, Cone, Capsule, Mesh).
	Shape Shape
	// HalfSpace.
	Height float32
	// Compound.
	Children []CompoundChild
	// HeightMap.
	HeightMap *HeightMap
	// ArticulatedSystem: Parts[PartVisual] and Parts[PartCollision].
	ResourceDir string
	Parts       [2][]Part
}

// ID is the stable identifier of the object's root node.
func (d ObjectDescriptor) ID() string {
	return ObjectID(d.Index)
}

// ObjectID returns the root identifier for an object index.
func ObjectID(index uint64) string {
	return strconv.FormatUint(index, 10)
}

// PartID returns the identifier for one articulated sub-shape.
func PartID(index uint64, visItem, sub int) string {
	return fmt.Sprintf("%d/%d/%d", index, visItem, sub)
}

// VisualDescriptor is one decoded server-declared visual marker.
type VisualDescriptor struct {
	Name     string
	Kind     VisualKind
	Color    [4]float64
	Material string
	Glow     bool
	Shadow   bool
	Shape    Shape
}

// Minimum encoded sizes, used to reject impossible counts early.
const (
	MinObjectSize  = 8 + 4 + 8 + 8
	MinVisualSize  = 8 + 4 + 4*8 + 8 + 2
	MinPoseSize    = 8 + 7*8
	MinContactSize = 6 * 8
	MinPartSize    = 4 + 8 + 8
)

func primitiveShapeKind(kind ObjectKind) (ShapeKind, bool) {
	switch kind {
	case ObjectSphere:
		return ShapeSphere, true
	case ObjectBox:
		return ShapeBox, true
	case ObjectCylinder:
		return ShapeCylinder, true
	case ObjectCone:
		return ShapeCone, true
	case ObjectCapsule:
		return ShapeCapsule, true
	case ObjectMesh:
		return ShapeMesh, true
	default:
		return 0, false
	}
}

func shapeParamCount(kind ShapeKind) int {
	switch kind {
	case ShapeSphere:
		return 1
	case ShapeBox:
		return 3
	case ShapeCylinder, ShapeCone, ShapeCapsule:
		return 2
	default:
		return 0
	}
}

// DecodeObject reads one object descriptor.
func DecodeObject(r *Reader) (ObjectDescriptor, error) {
	var d ObjectDescriptor
	var err error
	if d.Index, err = r.ReadU64(); err != nil {
		return d, err
	}
	if d.Kind, err = r.ReadObjectKind(); err != nil {
		return d, err
	}
	if d.Name, err = r.ReadString(); err != nil {
		return d, err
	}
	if d.Appearance, err = r.ReadString(); err != nil {
		return d, err
	}

	if sk, ok := primitiveShapeKind(d.Kind); ok {
		d.Shape, err = readFixedShape(r, sk)
		return d, err
	}

	switch d.Kind {
	case ObjectHalfSpace:
		d.Height, err = r.ReadF32()
	case ObjectCompound:
		d.Children, err = readCompound(r)
	case ObjectHeightMap:
		d.HeightMap, err = readHeightMap(r)
	case ObjectArticulatedSystem:
		if d.ResourceDir, err = r.ReadString(); err != nil {
			return d, err
		}
		for visItem := PartVisual; visItem <= PartCollision; visItem++ {
			if d.Parts[visItem], err = readParts(r, d.Index, visItem); err != nil {
				return d, err
			}
		}
	default:
		err = fmt.Errorf("%w: unhandled object kind %s", ErrDecode, d.Kind)
	}
	return d, err
}

// readFixedShape reads a primitive whose parameter count is implied by its kind.
func readFixedShape(r *Reader, kind ShapeKind) (Shape, error) {
	if kind == ShapeMesh {
		return readMesh(r)
	}
	params, err := r.ReadF64s(shapeParamCount(kind))
	if err != nil {
		return Shape{}, err
	}
	return Shape{Kind: kind, Params: params}, nil
}

// readCountedShape reads a primitive whose parameters are preceded by a u64 count.
func readCountedShape(r *Reader, kind ShapeKind) (Shape, error) {
	if kind == ShapeMesh {
		return readMesh(r)
	}
	n, err := r.ReadCount(8)
	if err != nil {
		return Shape{}, err
	}
	if want := shapeParamCount(kind); n < want {
		return Shape{}, fmt.Errorf("%w: %s needs %d params, got %d", ErrDecode, kind, want, n)
	}
	params, err := r.ReadF64s(n)
	if err != nil {
		return Shape{}, err
	}
	return Shape{Kind: kind, Params: params}, nil
}

// readMesh reads a mesh reference. The file extension is not validated.
func readMesh(r *Reader) (Shape, error) {
	file, err := r.ReadString()
	if err != nil {
		return Shape{}, err
	}
	scale, err := r.ReadVec3()
	if err != nil {
		return Shape{}, err
	}
	return Shape{Kind: ShapeMesh, MeshFile: file, MeshScale: scale}, nil
}

func readPose(r *Reader) (Pose, error) {
	pos, err := r.ReadVec3()
	if err != nil {
		return Pose{}, err
	}
	rot, err := r.ReadQuat()
	if err != nil {
		return Pose{}, err
	}
	return Pose{Position: pos, Rotation: rot}, nil
}

func readCompound(r *Reader) ([]CompoundChild, error) {
	n, err := r.ReadCount(4 + 8 + 7*8)
	if err != nil {
		return nil, err
	}
	children := make([]CompoundChild, 0, n)
	for i := 0; i < n; i++ {
		kind, err := r.ReadShapeKind()
		if err != nil {
			return nil, err
		}
		shape, err := readCountedShape(r, kind)
		if err != nil {
			return nil, err
		}
		pose, err := readPose(r)
		if err != nil {
			return nil, err
		}
		children = append(children, CompoundChild{Shape: shape, Pose: pose})
	}
	return children, nil
}

func readHeightMap(r *Reader) (*HeightMap, error) {
	hm := &HeightMap{}
	var err error
	for i := range hm.Center {
		if hm.Center[i], err = r.ReadF32(); err != nil {
			return nil, err
		}
	}
	for i := range hm.Size {
		if hm.Size[i], err = r.ReadF32(); err != nil {
			return nil, err
		}
	}
	if hm.SamplesX, err = r.ReadU64(); err != nil {
		return nil, err
	}
	if hm.SamplesY, err = r.ReadU64(); err != nil {
		return nil, err
	}
	if hm.SamplesX != 0 && hm.SamplesY > math.MaxInt32/hm.SamplesX {
		return nil, fmt.Errorf("%w: heightmap %dx%d too large", ErrDecode, hm.SamplesX, hm.SamplesY)
	}
	if hm.Heights, err = r.ReadF32s(int(hm.SamplesX * hm.SamplesY)); err != nil {
		return nil, err
	}
	return hm, nil
}

func readParts(r *Reader, index uint64, visItem int) ([]Part, error) {
	n, err := r.ReadCount(MinPartSize)
	if err != nil {
		return nil, err
	}
	parts := make([]Part, 0, n)
	for j := 0; j < n; j++ {
		kind, err := r.ReadShapeKind()
		if err != nil {
			return nil, err
		}
		group, err := r.ReadU64()
		if err != nil {
			return nil, err
		}
		shape, err := readCountedShape(r, kind)
		if err != nil {
			return nil, err
		}
		parts = append(parts, Part{ID: PartID(index, visItem, j), Group: group, Shape: shape})
	}
	return parts, nil
}

// EncodeObject writes d in the grammar DecodeObject reads.
func EncodeObject(w *Writer, d ObjectDescriptor) {
	w.WriteU64(d.Index)
	w.WriteObjectKind(d.Kind)
	w.WriteString(d.Name)
	w.WriteString(d.Appearance)

	if sk, ok := primitiveShapeKind(d.Kind); ok {
		shape := d.Shape
		shape.Kind = sk
		writeFixedShape(w, shape)
		return
	}
	switch d.Kind {
	case ObjectHalfSpace:
		w.WriteF32(d.Height)
	case ObjectCompound:
		w.WriteU64(uint64(len(d.Children)))
		for _, c := range d.Children {
			w.WriteShapeKind(c.Shape.Kind)
			writeCountedShape(w, c.Shape)
			w.WriteVec3(c.Pose.Position)
			w.WriteQuat(c.Pose.Rotation)
		}
	case ObjectHeightMap:
		hm := d.HeightMap
		if hm == nil {
			hm = &HeightMap{}
		}
		for _, f := range hm.Center {
			w.WriteF32(f)
		}
		for _, f := range hm.Size {
			w.WriteF32(f)
		}
		w.WriteU64(hm.SamplesX)
		w.WriteU64(hm.SamplesY)
		for _, h := range hm.Heights {
			w.WriteF32(h)
		}
	case ObjectArticulatedSystem:
		w.WriteString(d.ResourceDir)
		for _, parts := range d.Parts {
			w.WriteU64(uint64(len(parts)))
			for _, p := range parts {
				w.WriteShapeKind(p.Shape.Kind)
				w.WriteU64(p.Group)
				writeCountedShape(w, p.Shape)
			}
		}
	}
}

func writeFixedShape(w *Writer, s Shape) {
	if s.Kind == ShapeMesh {
		w.WriteString(s.MeshFile)
		w.WriteVec3(s.MeshScale)
		return
	}
	for i := 0; i < shapeParamCount(s.Kind); i++ {
		var v float64
		if i < len(s.Params) {
			v = s.Params[i]
		}
		w.WriteF64(v)
	}
}

func writeCountedShape(w *Writer, s Shape) {
	if s.Kind == ShapeMesh {
		w.WriteString(s.MeshFile)
		w.WriteVec3(s.MeshScale)
		return
	}
	w.WriteU64(uint64(len(s.Params)))
	for _, v := range s.Params {
		w.WriteF64(v)
	}
}

func visualShapeKind(kind VisualKind) ShapeKind {
	switch kind {
	case VisualSphere:
		return ShapeSphere
	case VisualBox:
		return ShapeBox
	case VisualCylinder:
		return ShapeCylinder
	case VisualCapsule:
		return ShapeCapsule
	default:
		return ShapeMesh
	}
}

// DecodeVisual reads one visual marker descriptor.
func DecodeVisual(r *Reader) (VisualDescriptor, error) {
	var d VisualDescriptor
	var err error
	if d.Name, err = r.ReadString(); err != nil {
		return d, err
	}
	if d.Kind, err = r.ReadVisualKind(); err != nil {
		return d, err
	}
	for i := range d.Color {
		if d.Color[i], err = r.ReadF64(); err != nil {
			return d, err
		}
	}
	if d.Material, err = r.ReadString(); err != nil {
		return d, err
	}
	if d.Glow, err = r.ReadBool(); err != nil {
		return d, err
	}
	if d.Shadow, err = r.ReadBool(); err != nil {
		return d, err
	}
	d.Shape, err = readFixedShape(r, visualShapeKind(d.Kind))
	return d, err
}

// EncodeVisual writes d in the grammar DecodeVisual reads.
func EncodeVisual(w *Writer, d VisualDescriptor) {
	w.WriteString(d.Name)
	w.WriteVisualKind(d.Kind)
	for _, c := range d.Color {
		w.WriteF64(c)
	}
	w.WriteString(d.Material)
	w.WriteBool(d.Glow)
	w.WriteBool(d.Shadow)
	shape := d.Shape
	shape.Kind = visualShapeKind(d.Kind)
	writeFixedShape(w, shape)
}

// DecodePose reads a name followed by a position and orientation.
func DecodePose(r *Reader) (Pose, error) {
	name, err := r.ReadString()
	if err != nil {
		return Pose{}, err
	}
	p, err := readPose(r)
	if err != nil {
		return Pose{}, err
	}
	p.Name = name
	return p, nil
}

func EncodePose(w *Writer, p Pose) {
	w.WriteString(p.Name)
	w.WriteVec3(p.Position)
	w.WriteQuat(p.Rotation)
}

// DecodeObjectPoses reads the grouped pose list of an object position update.
// Each object contributes one or more named parts.
func DecodeObjectPoses(r *Reader) ([]Pose, error) {
	n, err := r.ReadCount(8)
	if err != nil {
		return nil, err
	}
	var poses []Pose
	for i := 0; i < n; i++ {
		parts, err := r.ReadCount(MinPoseSize)
		if err != nil {
			return nil, err
		}
		for j := 0; j < parts; j++ {
			p, err := DecodePose(r)
			if err != nil {
				return nil, err
			}
			poses = append(poses, p)
		}
	}
	return poses, nil
}

// EncodeObjectPoses writes groups of part poses, one group per object.
func EncodeObjectPoses(w *Writer, groups [][]Pose) {
	w.WriteU64(uint64(len(groups)))
	for _, g := range groups {
		w.WriteU64(uint64(len(g)))
		for _, p := range g {
			EncodePose(w, p)
		}
	}
}

// DecodeVisualPoses reads the flat pose list of a visual position update.
func DecodeVisualPoses(r *Reader) ([]Pose, error) {
	n, err := r.ReadCount(MinPoseSize)
	if err != nil {
		return nil, err
	}
	poses := make([]Pose, 0, n)
	for i := 0; i < n; i++ {
		p, err := DecodePose(r)
		if err != nil {
			return nil, err
		}
		poses = append(poses, p)
	}
	return poses, nil
}

func EncodeVisualPoses(w *Writer, poses []Pose) {
	w.WriteU64(uint64(len(poses)))
	for _, p := range poses {
		EncodePose(w, p)
	}
}

// DecodeContacts reads a full contact batch.
func DecodeContacts(r *Reader) ([]Contact, error) {
	n, err := r.ReadCount(MinContactSize)
	if err != nil {
		return nil, err
	}
	contacts := make([]Contact, 0, n)
	for i := 0; i < n; i++ {
		pos, err := r.ReadVec3()
		if err != nil {
			return nil, err
		}
		force, err := r.ReadVec3()
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, Contact{Position: pos, Force: force})
	}
	return contacts, nil
}

func EncodeContacts(w *Writer, contacts []Contact) {
	w.WriteU64(uint64(len(contacts)))
	for _, c := range contacts {
		w.WriteVec3(c.Position)
		w.WriteVec3(c.Force)
	}
}
