package simserver

import (
	"github.com/danmuck/simview/internal/protocol"
)

// Scene is the state the server reports. Versions must change whenever the
// object or visual population changes.
type Scene struct {
	Document string

	ObjectVersion uint64
	Objects       []protocol.ObjectDescriptor
	// ObjectPoses holds one group of part poses per object.
	ObjectPoses   [][]protocol.Pose

	VisualVersion uint64
	Visuals       []protocol.VisualDescriptor
	VisualPoses   []protocol.Pose

	Contacts []protocol.Contact
}

// Clone returns a deep copy of the slices a caller may mutate.
func (s Scene) Clone() Scene {
	out := s
	out.Objects = append([]protocol.ObjectDescriptor(nil), s.Objects...)
	out.ObjectPoses = make([][]protocol.Pose, len(s.ObjectPoses))
	for i, g := range s.ObjectPoses {
		out.ObjectPoses[i] = append([]protocol.Pose(nil), g...)
	}
	out.Visuals = append([]protocol.VisualDescriptor(nil), s.Visuals...)
	out.VisualPoses = append([]protocol.Pose(nil), s.VisualPoses...)
	out.Contacts = append([]protocol.Contact(nil), s.Contacts...)
	return out
}

// DefaultPoses returns an identity pose for every identifier the objects
// register: the root of each object plus every articulated part.
func DefaultPoses(objects []protocol.ObjectDescriptor) [][]protocol.Pose {
	groups := make([][]protocol.Pose, 0, len(objects))
	for _, d := range objects {
		group := []protocol.Pose{{Name: d.ID(), Rotation: protocol.IdentityQuat}}
		for _, parts := range d.Parts {
			for _, p := range parts {
				group = append(group, protocol.Pose{Name: p.ID, Rotation: protocol.IdentityQuat})
			}
		}
		groups = append(groups, group)
	}
	return groups
}

// Encode builds the reply payload for req under status.
func (s Scene) Encode(status protocol.ServerStatus, req protocol.Request) []byte {
	w := protocol.NewWriter()
	if status != protocol.StatusRendering {
		w.WriteStatus(status)
		return w.Bytes()
	}
	switch req {
	case protocol.RequestServerStatus:
		w.WriteHeader(status, protocol.MessageStatus)
	case protocol.RequestConfigXML:
		w.WriteHeader(status, protocol.MessageConfigXML)
		w.WriteString(s.Document)
	case protocol.RequestInitializeObjects:
		w.WriteHeader(status, protocol.MessageInitialization)
		w.WriteU64(s.ObjectVersion)
		w.WriteU64(uint64(len(s.Objects)))
		for _, d := range s.Objects {
			protocol.EncodeObject(w, d)
		}
	case protocol.RequestInitializeVisuals:
		w.WriteHeader(status, protocol.MessageVisualInitialization)
		w.WriteU64(s.VisualVersion)
		w.WriteU64(uint64(len(s.Visuals)))
		for _, d := range s.Visuals {
			protocol.EncodeVisual(w, d)
		}
	case protocol.RequestObjectPosition:
		w.WriteHeader(status, protocol.MessageObjectPositionUpdate)
		w.WriteU64(s.ObjectVersion)
		protocol.EncodeObjectPoses(w, s.ObjectPoses)
	case protocol.RequestVisualPosition:
		w.WriteHeader(status, protocol.MessageVisualPositionUpdate)
		w.WriteU64(s.VisualVersion)
		protocol.EncodeVisualPoses(w, s.VisualPoses)
	case protocol.RequestContactInfos:
		w.WriteHeader(status, protocol.MessageContactInfoUpdate)
		protocol.EncodeContacts(w, s.Contacts)
	default:
		w.WriteHeader(status, protocol.MessageNoMessage)
	}
	return w.Bytes()
}
