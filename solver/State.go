package solver

import (
	"fmt"
	"sort"

	"github.com/samuelfneumann/gotd/network"
)

// State holds the state of a solver Method: the number of update
// steps taken so far and one moment tree per slot of the Method. Each
// moment tree mirrors the structure of the weight tree being
// optimized, e.g. the Adam Method keeps a first moment tree in slot m
// and a second moment tree in slot v.
type State struct {
	Step    int
	Moments map[string]network.Params
}

// NewState returns the zeroed State for optimizing params with a
// Method using the given slots
func NewState(slots []string, params network.Params) *State {
	moments := make(map[string]network.Params, len(slots))
	for _, slot := range slots {
		moments[slot] = params.ZerosLike()
	}
	return &State{Step: 0, Moments: moments}
}

// Slots returns the sorted slot names of the State's moment trees
func (s *State) Slots() []string {
	slots := make([]string, 0, len(s.Moments))
	for slot := range s.Moments {
		slots = append(slots, slot)
	}
	sort.Strings(slots)
	return slots
}

// Clone returns a deep copy of the State. The copy shares no storage
// with the original.
func (s *State) Clone() *State {
	moments := make(map[string]network.Params, len(s.Moments))
	for slot, tree := range s.Moments {
		moments[slot] = tree.Clone()
	}
	return &State{Step: s.Step, Moments: moments}
}

// CheckCompatible returns an error describing the first structural
// difference between the State and the state required to optimize
// params with a Method using the given slots
func (s *State) CheckCompatible(slots []string, params network.Params) error {
	if s.Step < 0 {
		return fmt.Errorf("checkcompatible: negative step count %v", s.Step)
	}
	if len(s.Moments) != len(slots) {
		return fmt.Errorf("checkcompatible: invalid number of moment trees "+
			"\n\twant(%v) \n\thave(%v)", len(slots), len(s.Moments))
	}

	for _, slot := range slots {
		tree, ok := s.Moments[slot]
		if !ok {
			return fmt.Errorf("checkcompatible: no moment tree for slot %v",
				slot)
		}
		if err := params.CheckCompatible(tree); err != nil {
			return fmt.Errorf("checkcompatible: slot %v: %v", slot, err)
		}
	}
	return nil
}
