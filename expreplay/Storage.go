package expreplay

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/gotd/timestep"
)

// storage holds the flat per-field caches of a replay buffer: one
// row of each cache per buffer slot. Transition data is copied in on
// write, so that later mutation of an added transition can never
// reach the buffer.
type storage struct {
	featureSize int
	actionSize  int

	states      []float64
	actions     []float64
	nextStates  []float64
	nextActions []float64

	rewards   []float64
	discounts []float64
	weights   []float64

	done          []bool
	hasNextAction []bool
}

// newStorage returns storage for capacity transitions of featureSize
// state features and actionSize action dimensions
func newStorage(capacity, featureSize, actionSize int) *storage {
	return &storage{
		featureSize: featureSize,
		actionSize:  actionSize,

		states:      make([]float64, capacity*featureSize),
		actions:     make([]float64, capacity*actionSize),
		nextStates:  make([]float64, capacity*featureSize),
		nextActions: make([]float64, capacity*actionSize),

		rewards:   make([]float64, capacity),
		discounts: make([]float64, capacity),
		weights:   make([]float64, capacity),

		done:          make([]bool, capacity),
		hasNextAction: make([]bool, capacity),
	}
}

// set overwrites the buffer slot at index with a copy of t. Nothing
// is written if t does not fit the storage's sizes.
func (s *storage) set(index int, t timestep.Transition) error {
	if t.State.Len() != s.featureSize || t.NextState.Len() != s.featureSize {
		return fmt.Errorf("invalid feature size \n\twant(%v) \n\thave(%v)",
			s.featureSize, t.State.Len())
	}
	if t.Action.Len() != s.actionSize {
		return fmt.Errorf("invalid action size \n\twant(%v) \n\thave(%v)",
			s.actionSize, t.Action.Len())
	}
	if t.NextAction != nil && t.NextAction.Len() != s.actionSize {
		return fmt.Errorf("invalid next action size \n\twant(%v) "+
			"\n\thave(%v)", s.actionSize, t.NextAction.Len())
	}
	if t.Weight <= 0 {
		return fmt.Errorf("non-positive importance weight \n\thave(%v)",
			t.Weight)
	}
	if t.Done && t.Discount != 0 {
		return fmt.Errorf("transition ends an episode but has discount "+
			"%v != 0", t.Discount)
	}

	stateStart := index * s.featureSize
	for j := 0; j < s.featureSize; j++ {
		s.states[stateStart+j] = t.State.AtVec(j)
		s.nextStates[stateStart+j] = t.NextState.AtVec(j)
	}

	actionStart := index * s.actionSize
	for j := 0; j < s.actionSize; j++ {
		s.actions[actionStart+j] = t.Action.AtVec(j)
		if t.NextAction != nil {
			s.nextActions[actionStart+j] = t.NextAction.AtVec(j)
		} else {
			s.nextActions[actionStart+j] = 0
		}
	}
	s.hasNextAction[index] = t.NextAction != nil

	s.rewards[index] = t.Reward
	s.discounts[index] = t.Discount
	s.weights[index] = t.Weight
	s.done[index] = t.Done

	return nil
}

// transition returns the buffer slot at index as a Transition whose
// vectors view the storage directly. The views stay valid until the
// slot is overwritten.
func (s *storage) transition(index int) timestep.Transition {
	stateStart := index * s.featureSize
	actionStart := index * s.actionSize

	t := timestep.Transition{
		State: mat.NewVecDense(s.featureSize,
			s.states[stateStart:stateStart+s.featureSize]),
		Action: mat.NewVecDense(s.actionSize,
			s.actions[actionStart:actionStart+s.actionSize]),
		Reward:   s.rewards[index],
		Discount: s.discounts[index],
		NextState: mat.NewVecDense(s.featureSize,
			s.nextStates[stateStart:stateStart+s.featureSize]),
		Done:   s.done[index],
		Weight: s.weights[index],
	}
	if s.hasNextAction[index] {
		t.NextAction = mat.NewVecDense(s.actionSize,
			s.nextActions[actionStart:actionStart+s.actionSize])
	}
	return t
}

// batch assembles the buffer slots at the given indices into a Batch,
// copying their data out of the storage
func (s *storage) batch(indices []int) (timestep.Batch, error) {
	transitions := make([]timestep.Transition, len(indices))
	for i, index := range indices {
		transitions[i] = s.transition(index)
	}
	return timestep.NewBatch(transitions)
}
