package timestep

import (
	"gonum.org/v1/gonum/mat"
)

// Transition packages together a single bootstrapped transition of
// environmental interaction:
//
//	S, A, Rn, In, S', A'
//
// Reward holds the n-step return Rn accumulated between State and
// NextState, and Discount holds the bootstrap discount In = gamma^n
// applied to value estimates at NextState. For a transition that ends
// an episode, Done is true and Discount is 0, so that no bootstrapping
// occurs past the end of the episode.
//
// Actions are one-hot vectors over a discrete action space. NextAction
// records the action selected at NextState and may be nil when the
// transition was recorded without one.
//
// Weight is the importance weight of the transition, used to scale its
// contribution to a batch loss. A weight of 1 leaves the transition's
// contribution unscaled.
type Transition struct {
	State      mat.Vector
	Action     mat.Vector
	Reward     float64
	Discount   float64
	NextState  mat.Vector
	NextAction mat.Vector
	Done       bool
	Weight     float64
}

// NewTransition packages a timestep pair and its action pair into a
// single-step Transition with unit importance weight. The discount of
// next is used as the bootstrap discount, and becomes 0 if next ends
// the episode.
func NewTransition(step TimeStep, action mat.Vector, next TimeStep,
	nextAction mat.Vector) Transition {
	discount := next.Discount
	if next.Last() {
		discount = 0.0
	}

	return Transition{
		State:      step.Observation,
		Action:     action,
		Reward:     next.Reward,
		Discount:   discount,
		NextState:  next.Observation,
		NextAction: nextAction,
		Done:       next.Last(),
		Weight:     1.0,
	}
}

// Clone returns a deep copy of the transition, sharing no storage
// with the original
func (t Transition) Clone() Transition {
	clone := t
	clone.State = mat.VecDenseCopyOf(t.State)
	clone.Action = mat.VecDenseCopyOf(t.Action)
	clone.NextState = mat.VecDenseCopyOf(t.NextState)
	if t.NextAction != nil {
		clone.NextAction = mat.VecDenseCopyOf(t.NextAction)
	}
	return clone
}
