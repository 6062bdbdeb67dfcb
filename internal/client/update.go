package client

import (
	"fmt"

	"github.com/danmuck/simview/internal/logging"
	"github.com/danmuck/simview/internal/protocol"
	"github.com/danmuck/simview/internal/scene"
)

// updateObjects applies one object position update. A version mismatch
// moves to ReinitObjectsStart without decoding the remaining body.
func (c *Client) updateObjects() (bool, error) {
	r, ok, err := c.exchange(protocol.RequestObjectPosition, protocol.MessageObjectPositionUpdate)
	if err != nil || !ok {
		return false, err
	}
	version, err := r.ReadU64()
	if err != nil {
		return false, fmt.Errorf("object version: %w", err)
	}
	if version != c.objectVersion {
		logging.Infof("client.Client object version changed from=%d to=%d", c.objectVersion, version)
		c.transition(StateReinitObjectsStart)
		return false, nil
	}
	poses, err := protocol.DecodeObjectPoses(r)
	if err != nil {
		return false, fmt.Errorf("object poses: %w", err)
	}
	if err := c.applyPoses(scene.Objects, poses); err != nil {
		return false, err
	}
	c.transition(StateUpdateVisualPosition)
	return true, nil
}

// updateVisuals applies one visual position update followed by a contact
// update, then yields back to UpdateObjectPosition.
func (c *Client) updateVisuals() (bool, error) {
	r, ok, err := c.exchange(protocol.RequestVisualPosition, protocol.MessageVisualPositionUpdate)
	if err != nil || !ok {
		return false, err
	}
	version, err := r.ReadU64()
	if err != nil {
		return false, fmt.Errorf("visual version: %w", err)
	}
	if version != c.visualVersion {
		logging.Infof("client.Client visual version changed from=%d to=%d", c.visualVersion, version)
		c.transition(StateReinitVisualsStart)
		return false, nil
	}
	poses, err := protocol.DecodeVisualPoses(r)
	if err != nil {
		return false, fmt.Errorf("visual poses: %w", err)
	}
	if err := c.applyPoses(scene.Visuals, poses); err != nil {
		return false, err
	}

	ok, err = c.updateContacts()
	if err != nil || !ok {
		return false, err
	}
	c.transition(StateUpdateObjectPosition)
	return false, nil
}

func (c *Client) applyPoses(ns scene.Namespace, poses []protocol.Pose) error {
	for _, p := range poses {
		if _, ok := c.reg.Lookup(ns, p.Name); !ok {
			return protocol.UnknownEntityError{Namespace: string(ns), ID: p.Name}
		}
		if err := c.builder.SetPose(ns, p.Name, p); err != nil {
			return err
		}
	}
	return nil
}
