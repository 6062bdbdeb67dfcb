package protocol

import "fmt"

// Request is the 4-byte opcode a client sends to ask for one reply.
type Request int32

const (
	RequestServerStatus Request = iota
	RequestInitializeObjects
	RequestInitializeVisuals
	RequestObjectPosition
	RequestVisualPosition
	RequestContactInfos
	RequestConfigXML
)

var requestNames = [...]string{
	"server_status",
	"initialize_objects",
	"initialize_visuals",
	"object_position",
	"visual_position",
	"contact_infos",
	"config_xml",
}

func (r Request) Valid() bool {
	return r >= 0 && int(r) < len(requestNames)
}

func (r Request) String() string {
	if !r.Valid() {
		return fmt.Sprintf("request(%d)", int32(r))
	}
	return requestNames[r]
}

// ServerStatus leads every reply.
type ServerStatus int32

const (
	StatusRendering ServerStatus = iota
	StatusHibernating
	StatusTerminating
)

var statusNames = [...]string{"rendering", "hibernating", "terminating"}

func (s ServerStatus) Valid() bool {
	return s >= 0 && int(s) < len(statusNames)
}

func (s ServerStatus) String() string {
	if !s.Valid() {
		return fmt.Sprintf("status(%d)", int32(s))
	}
	return statusNames[s]
}

// MessageType follows a Rendering status and selects the reply body grammar.
type MessageType int32

const (
	MessageInitialization MessageType = iota
	MessageObjectPositionUpdate
	MessageStatus
	MessageVisualInitialization
	MessageVisualPositionUpdate
	MessageContactInfoUpdate
	MessageConfigXML
	MessageNoMessage
)

var messageTypeNames = [...]string{
	"initialization",
	"object_position_update",
	"status",
	"visual_initialization",
	"visual_position_update",
	"contact_info_update",
	"config_xml",
	"no_message",
}

func (m MessageType) Valid() bool {
	return m >= 0 && int(m) < len(messageTypeNames)
}

func (m MessageType) String() string {
	if !m.Valid() {
		return fmt.Sprintf("message(%d)", int32(m))
	}
	return messageTypeNames[m]
}

// ObjectKind tags one simulated object in an initialization reply.
type ObjectKind int32

const (
	ObjectSphere ObjectKind = iota
	ObjectBox
	ObjectCylinder
	ObjectCone
	ObjectCapsule
	ObjectMesh
	ObjectHalfSpace
	ObjectCompound
	ObjectHeightMap
	ObjectArticulatedSystem
)

var objectKindNames = [...]string{
	"sphere",
	"box",
	"cylinder",
	"cone",
	"capsule",
	"mesh",
	"halfspace",
	"compound",
	"heightmap",
	"articulated_system",
}

func (k ObjectKind) Valid() bool {
	return k >= 0 && int(k) < len(objectKindNames)
}

func (k ObjectKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("object_kind(%d)", int32(k))
	}
	return objectKindNames[k]
}

// ShapeKind tags sub-shapes of compounds and articulated systems.
type ShapeKind int32

const (
	ShapeBox ShapeKind = iota
	ShapeCylinder
	ShapeSphere
	ShapeMesh
	ShapeCapsule
	ShapeCone
)

var shapeKindNames = [...]string{"box", "cylinder", "sphere", "mesh", "capsule", "cone"}

func (k ShapeKind) Valid() bool {
	return k >= 0 && int(k) < len(shapeKindNames)
}

func (k ShapeKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("shape_kind(%d)", int32(k))
	}
	return shapeKindNames[k]
}

// VisualKind tags one server-declared visual marker.
type VisualKind int32

const (
	VisualSphere VisualKind = iota
	VisualBox
	VisualCylinder
	VisualCapsule
	VisualMesh
)

var visualKindNames = [...]string{"sphere", "box", "cylinder", "capsule", "mesh"}

func (k VisualKind) Valid() bool {
	return k >= 0 && int(k) < len(visualKindNames)
}

func (k VisualKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("visual_kind(%d)", int32(k))
	}
	return visualKindNames[k]
}
