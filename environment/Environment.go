// Package environment outlines the interfaces and structs needed to
// describe concrete environments
package environment

import (
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/gotd/timestep"
)

// Starter implements a distribution of starting states and samples
// starting states for environments
type Starter interface {
	Start() mat.Vector
}

// Environment implements a simulated environment that an agent
// interacts with through discrete timesteps. An Environment starts
// ready to use. Reset resets the Environment between episodes.
//
// Step takes a single environmental step given some action and
// returns the next timestep and whether that timestep ends the
// current episode.
type Environment interface {
	Reset() timestep.TimeStep
	Step(action mat.Vector) (timestep.TimeStep, bool)
	ObservationSpec() Spec
	ActionSpec() Spec
	DiscountSpec() Spec
}
