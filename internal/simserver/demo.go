package simserver

import (
	"math"
	"time"

	"github.com/danmuck/simview/internal/protocol"
)

// DemoScene is a small scene exercising every object kind the client builds.
func DemoScene() Scene {
	objects := []protocol.ObjectDescriptor{
		{Index: 0, Kind: protocol.ObjectHalfSpace, Name: "ground", Appearance: "checkerboard"},
		{Index: 1, Kind: protocol.ObjectSphere, Name: "ball", Shape: protocol.Shape{Params: []float64{0.5}}},
		{Index: 2, Kind: protocol.ObjectBox, Name: "crate", Shape: protocol.Shape{Params: []float64{1, 1, 1}}},
		{Index: 3, Kind: protocol.ObjectCompound, Name: "dumbbell", Children: []protocol.CompoundChild{
			{Shape: protocol.Shape{Kind: protocol.ShapeSphere, Params: []float64{0.2}}, Pose: protocol.Pose{Position: protocol.Vec3{-0.5, 0, 0}, Rotation: protocol.IdentityQuat}},
			{Shape: protocol.Shape{Kind: protocol.ShapeCylinder, Params: []float64{0.05, 1}}, Pose: protocol.Pose{Rotation: protocol.IdentityQuat}},
			{Shape: protocol.Shape{Kind: protocol.ShapeSphere, Params: []float64{0.2}}, Pose: protocol.Pose{Position: protocol.Vec3{0.5, 0, 0}, Rotation: protocol.IdentityQuat}},
		}},
		{Index: 4, Kind: protocol.ObjectArticulatedSystem, Name: "pendulum", ResourceDir: "pendulum/", Parts: [2][]protocol.Part{
			{
				{ID: protocol.PartID(4, protocol.PartVisual, 0), Shape: protocol.Shape{Kind: protocol.ShapeMesh, MeshFile: "pendulum/link.dae", MeshScale: protocol.Vec3{1, 1, 1}}},
			},
			{
				{ID: protocol.PartID(4, protocol.PartCollision, 0), Group: 1, Shape: protocol.Shape{Kind: protocol.ShapeCapsule, Params: []float64{0.05, 1}}},
			},
		}},
	}
	return Scene{
		Document:      `<scene name="demo"/>`,
		ObjectVersion: 1,
		Objects:       objects,
		ObjectPoses:   DefaultPoses(objects),
		VisualVersion: 1,
		Visuals: []protocol.VisualDescriptor{{
			Name:  "target",
			Kind:  protocol.VisualSphere,
			Color: [4]float64{0, 1, 0, 0.5},
			Glow:  true,
			Shape: protocol.Shape{Params: []float64{0.1}},
		}},
		VisualPoses: []protocol.Pose{{Name: "target", Position: protocol.Vec3{0, 0, 2}, Rotation: protocol.IdentityQuat}},
	}
}

// Advance moves the demo bodies to their positions at elapsed and derives a
// contact for the ball whenever it touches the ground.
func Advance(sc *Scene, elapsed time.Duration) {
	t := elapsed.Seconds()
	height := 0.5 + math.Abs(math.Sin(2*t))*2
	angle := math.Sin(t)
	for _, group := range sc.ObjectPoses {
		for i := range group {
			p := &group[i]
			switch p.Name {
			case "1":
				p.Position = protocol.Vec3{0, 0, height}
			case "2":
				p.Position = protocol.Vec3{2, 0, 0.5}
				p.Rotation = yaw(t)
			case "3":
				p.Position = protocol.Vec3{-2, 0, 0.2}
			case "4/0/0", "4/1/0":
				p.Position = protocol.Vec3{math.Sin(angle), 3, 2 - math.Cos(angle)}
				p.Rotation = roll(angle)
			}
		}
	}
	for i := range sc.VisualPoses {
		sc.VisualPoses[i].Position = protocol.Vec3{math.Cos(t), math.Sin(t), 2}
	}
	sc.Contacts = sc.Contacts[:0]
	if height < 0.6 {
		sc.Contacts = append(sc.Contacts, protocol.Contact{
			Position: protocol.Vec3{0, 0, 0},
			Force:    protocol.Vec3{0, 0, 9.81 * (0.6 - height) * 10},
		})
	}
}

func yaw(a float64) protocol.Quat {
	return protocol.Quat{math.Cos(a / 2), 0, 0, math.Sin(a / 2)}
}

func roll(a float64) protocol.Quat {
	return protocol.Quat{math.Cos(a / 2), math.Sin(a / 2), 0, 0}
}
