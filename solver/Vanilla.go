package solver

import (
	"gonum.org/v1/gonum/floats"

	"github.com/samuelfneumann/gotd/network"
	"github.com/samuelfneumann/gotd/utils/floatutils"
)

// VanillaConfig describes a configuration of the vanilla gradient
// descent solver.
type VanillaConfig struct {
	StepSize float64
	Clip     float64 // <= 0 if no clipping
}

// NewVanilla returns a new Vanilla Solver
func NewVanilla(stepSize, clip float64) (*Solver, error) {
	vanilla := VanillaConfig{
		StepSize: stepSize,
		Clip:     clip,
	}

	return newSolver(Vanilla, vanilla)
}

// Create returns a Vanilla Method as described by the VanillaConfig
func (v VanillaConfig) Create() Method {
	return &vanilla{v}
}

// ValidType returns if the given Solver type is a valid type to be
// created with this config.
func (v VanillaConfig) ValidType(t Type) bool {
	return t == Vanilla
}

// vanilla implements plain stochastic gradient descent
type vanilla struct {
	config VanillaConfig
}

// Init returns the (empty) vanilla gradient descent state
func (v *vanilla) Init(params network.Params) *State {
	return NewState(v.Slots(), params)
}

// Slots returns the names of the moment trees vanilla gradient
// descent keeps, of which there are none
func (v *vanilla) Slots() []string {
	return nil
}

// Step computes a single gradient descent update:
//
//	p <- p - stepSize * g
//
// Gradients are clipped elementwise to [-Clip, Clip] first when a
// positive Clip is configured. The input weights, gradients, and state
// are left unmodified.
func (v *vanilla) Step(params, grads network.Params, state *State) (
	network.Params, *State, error) {
	if err := checkStep(v, params, grads, state); err != nil {
		return nil, nil, err
	}

	newParams := params.Clone()
	newState := state.Clone()
	newState.Step = state.Step + 1

	for name := range newParams {
		weights := newParams[name].Data().([]float64)
		grad := grads[name].Data().([]float64)

		if v.config.Clip > 0 {
			clipped := make([]float64, len(grad))
			for i := range grad {
				clipped[i] = floatutils.Clip(grad[i], -v.config.Clip,
					v.config.Clip)
			}
			grad = clipped
		}

		floats.AddScaled(weights, -v.config.StepSize, grad)
	}

	return newParams, newState, nil
}
