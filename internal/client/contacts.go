package client

import (
	"fmt"
	"strconv"

	"github.com/danmuck/simview/internal/observability"
	"github.com/danmuck/simview/internal/protocol"
	"github.com/danmuck/simview/internal/scene"
)

// updateContacts replaces the contact markers with the latest batch. The
// previous markers are always removed. Arrows are scaled against the largest
// force in the batch; a batch with no nonzero force creates nothing.
func (c *Client) updateContacts() (bool, error) {
	c.clearNamespace(scene.Contacts)

	r, ok, err := c.exchange(protocol.RequestContactInfos, protocol.MessageContactInfoUpdate)
	if err != nil || !ok {
		return false, err
	}
	contacts, err := protocol.DecodeContacts(r)
	if err != nil {
		return false, fmt.Errorf("contacts: %w", err)
	}
	observability.RecordContacts(len(contacts))

	var maxForce float64
	for _, ct := range contacts {
		if m := ct.Force.Norm(); m > maxForce {
			maxForce = m
		}
	}
	if maxForce == 0 {
		return true, nil
	}

	vis := c.cfg.Visibility
	if !vis.ContactPoints && !vis.ContactForces {
		return true, nil
	}
	for i, ct := range contacts {
		if ct.Force.Norm() == 0 {
			continue
		}
		if err := c.buildContact(strconv.Itoa(i), ct, maxForce); err != nil {
			return false, err
		}
	}
	observability.SetEntities(string(scene.Contacts), c.reg.Len(scene.Contacts))
	return true, nil
}

func (c *Client) buildContact(id string, ct protocol.Contact, maxForce float64) error {
	root, err := c.createRoot(scene.Contacts, id)
	if err != nil {
		return err
	}
	if c.cfg.Visibility.ContactPoints {
		spec := scene.ShapeSpec{
			Kind:   scene.ShapeSphere,
			Params: []float64{c.cfg.ContactPointSize},
			Scale:  protocol.Vec3{1, 1, 1},
			Local:  identityPose(),
			Color:  [4]float64{1, 0, 0, 1},
		}
		if _, err := c.builder.CreateShape(root, spec); err != nil {
			return err
		}
	}
	if c.cfg.Visibility.ContactForces {
		spec := scene.ShapeSpec{
			Kind:  scene.ShapeArrow,
			Scale: ct.Force.Scale(c.cfg.ContactForceScale / maxForce),
			Local: identityPose(),
			Color: [4]float64{0, 0, 1, 1},
		}
		if _, err := c.builder.CreateShape(root, spec); err != nil {
			return err
		}
	}
	return c.builder.SetPose(scene.Contacts, id, protocol.Pose{
		Name:     id,
		Position: ct.Position,
		Rotation: protocol.IdentityQuat,
	})
}
