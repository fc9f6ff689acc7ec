package solver

import (
	"math"

	"github.com/samuelfneumann/gotd/network"
	"github.com/samuelfneumann/gotd/utils/floatutils"
)

// RMSPropConfig implements a specific configuration of the RMSProp
// solver
type RMSPropConfig struct {
	StepSize float64
	Epsilon  float64
	Rho      float64
	Clip     float64 // <= 0 if no clipping
}

// NewDefaultRMSProp returns a new RMSProp Solver with default
// hyperparameters
func NewDefaultRMSProp(stepSize float64) (*Solver, error) {
	return NewRMSProp(stepSize, 1e-8, 0.999, -1.0)
}

// NewRMSProp returns a new RMSProp Solver
func NewRMSProp(stepSize, epsilon, rho, clip float64) (*Solver, error) {
	rmsprop := RMSPropConfig{
		StepSize: stepSize,
		Epsilon:  epsilon,
		Rho:      rho,
		Clip:     clip,
	}

	return newSolver(RMSProp, rmsprop)
}

// Create returns a new RMSProp Method as described by the
// RMSPropConfig
func (r RMSPropConfig) Create() Method {
	return &rmsProp{r}
}

// ValidType returns if the given Solver type is a valid type to be
// created with this config.
func (r RMSPropConfig) ValidType(t Type) bool {
	return t == RMSProp
}

// rmsProp implements the RMSProp gradient descent method, scaling
// each update by a running average of squared gradients
type rmsProp struct {
	config RMSPropConfig
}

// Init returns the zeroed RMSProp state for optimizing params
func (r *rmsProp) Init(params network.Params) *State {
	return NewState(r.Slots(), params)
}

// Slots returns the names of the moment trees RMSProp keeps
func (r *rmsProp) Slots() []string {
	return []string{"sq"}
}

// Step computes a single RMSProp update:
//
//	sq <- rho * sq + (1 - rho) * g * g
//	p  <- p - stepSize * g / (sqrt(sq) + epsilon)
//
// Gradients are clipped elementwise to [-Clip, Clip] first when a
// positive Clip is configured. The input weights, gradients, and state
// are left unmodified.
func (r *rmsProp) Step(params, grads network.Params, state *State) (
	network.Params, *State, error) {
	if err := checkStep(r, params, grads, state); err != nil {
		return nil, nil, err
	}

	newParams := params.Clone()
	newState := state.Clone()
	newState.Step = state.Step + 1

	rho := r.config.Rho

	for name := range newParams {
		weights := newParams[name].Data().([]float64)
		grad := grads[name].Data().([]float64)
		sq := newState.Moments["sq"][name].Data().([]float64)

		for i := range weights {
			g := grad[i]
			if r.config.Clip > 0 {
				g = floatutils.Clip(g, -r.config.Clip, r.config.Clip)
			}

			sq[i] = rho*sq[i] + (1.0-rho)*g*g
			weights[i] -= r.config.StepSize * g /
				(math.Sqrt(sq[i]) + r.config.Epsilon)
		}
	}

	return newParams, newState, nil
}
