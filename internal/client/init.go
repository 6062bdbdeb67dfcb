package client

import (
	"fmt"

	"github.com/danmuck/simview/internal/logging"
	"github.com/danmuck/simview/internal/observability"
	"github.com/danmuck/simview/internal/protocol"
	"github.com/danmuck/simview/internal/scene"
)

// startObjects fetches the scene document and the object initialization
// header, then continues into next.
func (c *Client) startObjects(next State) (bool, error) {
	r, ok, err := c.exchange(protocol.RequestConfigXML, protocol.MessageConfigXML)
	if err != nil || !ok {
		return false, err
	}
	doc, err := r.ReadString()
	if err != nil {
		return false, fmt.Errorf("config document: %w", err)
	}
	c.document = doc

	r, ok, err = c.exchange(protocol.RequestInitializeObjects, protocol.MessageInitialization)
	if err != nil || !ok {
		return false, err
	}
	version, err := r.ReadU64()
	if err != nil {
		return false, fmt.Errorf("object version: %w", err)
	}
	count, err := r.ReadCount(protocol.MinObjectSize)
	if err != nil {
		return false, fmt.Errorf("object count: %w", err)
	}
	c.objectVersion = version
	c.progress.ObjectsDone = 0
	c.progress.ObjectsTotal = count
	logging.Infof("client.Client init objects version=%d count=%d", version, count)
	c.transition(next)
	return true, nil
}

// initializeObjects instantiates descriptors from the held reply until the
// count is reached or the budget runs out. chain reports whether completion
// continues the tick.
func (c *Client) initializeObjects(next State, chain bool) (bool, error) {
	r := c.conn.Reply()
	c.cfg.Budget.Begin()
	for c.progress.ObjectsDone < c.progress.ObjectsTotal {
		d, err := protocol.DecodeObject(r)
		if err != nil {
			return false, fmt.Errorf("object %d: %w", c.progress.ObjectsDone, err)
		}
		if err := c.buildObject(d); err != nil {
			return false, err
		}
		c.progress.ObjectsDone++
		if c.progress.ObjectsDone < c.progress.ObjectsTotal && c.cfg.Budget.Exhausted() {
			observability.SetEntities(string(scene.Objects), c.reg.Len(scene.Objects))
			return false, nil
		}
	}
	observability.SetEntities(string(scene.Objects), c.reg.Len(scene.Objects))
	c.transition(next)
	return chain, nil
}

func (c *Client) startVisuals(next State) (bool, error) {
	r, ok, err := c.exchange(protocol.RequestInitializeVisuals, protocol.MessageVisualInitialization)
	if err != nil || !ok {
		return false, err
	}
	version, err := r.ReadU64()
	if err != nil {
		return false, fmt.Errorf("visual version: %w", err)
	}
	count, err := r.ReadCount(protocol.MinVisualSize)
	if err != nil {
		return false, fmt.Errorf("visual count: %w", err)
	}
	c.visualVersion = version
	c.progress.VisualsDone = 0
	c.progress.VisualsTotal = count
	logging.Infof("client.Client init visuals version=%d count=%d", version, count)
	c.transition(next)
	return true, nil
}

// initializeVisuals mirrors initializeObjects for visual markers. Completion
// always yields.
func (c *Client) initializeVisuals(next State) (bool, error) {
	r := c.conn.Reply()
	c.cfg.Budget.Begin()
	for c.progress.VisualsDone < c.progress.VisualsTotal {
		d, err := protocol.DecodeVisual(r)
		if err != nil {
			return false, fmt.Errorf("visual %d: %w", c.progress.VisualsDone, err)
		}
		if err := c.buildVisual(d); err != nil {
			return false, err
		}
		c.progress.VisualsDone++
		if c.progress.VisualsDone < c.progress.VisualsTotal && c.cfg.Budget.Exhausted() {
			observability.SetEntities(string(scene.Visuals), c.reg.Len(scene.Visuals))
			return false, nil
		}
	}
	observability.SetEntities(string(scene.Visuals), c.reg.Len(scene.Visuals))
	if f, ok := c.builder.(scene.ViewFinalizer); ok {
		f.ApplyVisibility(c.cfg.Visibility)
	}
	c.transition(next)
	return false, nil
}

// createRoot creates and registers one root node.
func (c *Client) createRoot(ns scene.Namespace, id string) (scene.Handle, error) {
	if _, exists := c.reg.Lookup(ns, id); exists {
		return 0, fmt.Errorf("%w: %s/%q", scene.ErrDuplicateID, ns, id)
	}
	h, err := c.builder.CreateRoot(ns, id)
	if err != nil {
		return 0, err
	}
	return h, c.reg.Add(ns, id, h)
}

func (c *Client) buildObject(d protocol.ObjectDescriptor) error {
	root, err := c.createRoot(scene.Objects, d.ID())
	if err != nil {
		return err
	}
	base := scene.ShapeSpec{Appearance: d.Appearance, Local: identityPose()}

	switch d.Kind {
	case protocol.ObjectSphere, protocol.ObjectBox, protocol.ObjectCylinder,
		protocol.ObjectCone, protocol.ObjectCapsule, protocol.ObjectMesh:
		_, err = c.builder.CreateShape(root, shapeSpec(base, d.Shape))
	case protocol.ObjectHalfSpace:
		spec := base
		spec.Kind = scene.ShapePlane
		spec.Params = []float64{float64(d.Height)}
		_, err = c.builder.CreateShape(root, spec)
	case protocol.ObjectCompound:
		for _, child := range d.Children {
			spec := shapeSpec(base, child.Shape)
			spec.Local = child.Pose
			if _, err = c.builder.CreateShape(root, spec); err != nil {
				break
			}
		}
	case protocol.ObjectHeightMap:
		spec := base
		spec.Kind = scene.ShapeHeightField
		spec.HeightMap = d.HeightMap
		_, err = c.builder.CreateShape(root, spec)
	case protocol.ObjectArticulatedSystem:
		err = c.buildArticulated(d, base)
	}
	return err
}

// buildArticulated registers every visual and collision part as its own root
// so the server can pose parts individually.
func (c *Client) buildArticulated(d protocol.ObjectDescriptor, base scene.ShapeSpec) error {
	for visItem, parts := range d.Parts {
		for _, part := range parts {
			h, err := c.createRoot(scene.Objects, part.ID)
			if err != nil {
				return err
			}
			spec := shapeSpec(base, part.Shape)
			spec.Collision = visItem == protocol.PartCollision
			spec.Group = part.Group
			if _, err := c.builder.CreateShape(h, spec); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Client) buildVisual(d protocol.VisualDescriptor) error {
	root, err := c.createRoot(scene.Visuals, d.Name)
	if err != nil {
		return err
	}
	spec := shapeSpec(scene.ShapeSpec{Local: identityPose()}, d.Shape)
	spec.Color = d.Color
	spec.Material = d.Material
	spec.Glow = d.Glow
	spec.Shadow = d.Shadow
	_, err = c.builder.CreateShape(root, spec)
	return err
}

func shapeSpec(base scene.ShapeSpec, s protocol.Shape) scene.ShapeSpec {
	spec := base
	spec.Kind = sceneShapeKind(s.Kind)
	spec.Params = s.Params
	spec.MeshFile = s.MeshFile
	spec.Scale = protocol.Vec3{1, 1, 1}
	if s.Kind == protocol.ShapeMesh {
		spec.Scale = s.MeshScale
	}
	return spec
}

func sceneShapeKind(k protocol.ShapeKind) scene.ShapeKind {
	switch k {
	case protocol.ShapeBox:
		return scene.ShapeBox
	case protocol.ShapeCylinder:
		return scene.ShapeCylinder
	case protocol.ShapeSphere:
		return scene.ShapeSphere
	case protocol.ShapeMesh:
		return scene.ShapeMesh
	case protocol.ShapeCapsule:
		return scene.ShapeCapsule
	case protocol.ShapeCone:
		return scene.ShapeCone
	}
	return scene.ShapeMesh
}

func identityPose() protocol.Pose {
	return protocol.Pose{Rotation: protocol.IdentityQuat}
}
