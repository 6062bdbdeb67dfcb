package client

import "fmt"

// State is the synchronization state of a Client.
type State int

const (
	StateIdle State = iota
	StateInitObjectsStart
	StateInitializingObjects
	StateInitVisualsStart
	StateInitializingVisuals
	StateUpdateObjectPosition
	StateReinitObjectsStart
	StateReinitializingObjects
	StateUpdateVisualPosition
	StateReinitVisualsStart
	StateReinitializingVisuals
)

var stateNames = [...]string{
	"idle",
	"init_objects_start",
	"initializing_objects",
	"init_visuals_start",
	"initializing_visuals",
	"update_object_position",
	"reinit_objects_start",
	"reinitializing_objects",
	"update_visual_position",
	"reinit_visuals_start",
	"reinitializing_visuals",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Progress reports how much of the current scene has been instantiated.
// Visual progress is computed from visual counts.
type Progress struct {
	ObjectsDone  int
	ObjectsTotal int
	VisualsDone  int
	VisualsTotal int
}

// Fraction returns the combined completion in [0, 1]. An empty scene is complete.
func (p Progress) Fraction() float64 {
	total := p.ObjectsTotal + p.VisualsTotal
	if total == 0 {
		return 1
	}
	return float64(p.ObjectsDone+p.VisualsDone) / float64(total)
}
