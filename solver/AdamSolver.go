package solver

import (
	"math"

	"github.com/samuelfneumann/gotd/network"
)

// AdamConfig describes a configuration of the Adam solver
type AdamConfig struct {
	StepSize float64
	Epsilon  float64 // Smoothing factor
	Beta1    float64
	Beta2    float64
}

// NewDefaultAdam returns a new Adam Solver with default hyperparameters
func NewDefaultAdam(stepSize float64) (*Solver, error) {
	return NewAdam(stepSize, 1e-8, 0.9, 0.999)
}

// NewAdam returns a new Adam Solver
func NewAdam(stepSize, epsilon, beta1, beta2 float64) (*Solver, error) {
	adam := AdamConfig{
		StepSize: stepSize,
		Epsilon:  epsilon,
		Beta1:    beta1,
		Beta2:    beta2,
	}

	return newSolver(Adam, adam)
}

// Create returns a new Adam Method as described by the AdamConfig
func (a AdamConfig) Create() Method {
	return &adam{a}
}

// ValidType returns if the given Solver type is a valid type to be
// created with this config.
func (a AdamConfig) ValidType(t Type) bool {
	return t == Adam
}

// adam implements the Adam gradient descent method with bias-corrected
// first and second moment estimates
type adam struct {
	config AdamConfig
}

// Init returns the zeroed Adam state for optimizing params
func (a *adam) Init(params network.Params) *State {
	return NewState(a.Slots(), params)
}

// Slots returns the names of the moment trees Adam keeps
func (a *adam) Slots() []string {
	return []string{"m", "v"}
}

// Step computes a single Adam update:
//
//	m <- beta1 * m + (1 - beta1) * g
//	v <- beta2 * v + (1 - beta2) * g * g
//	p <- p - stepSize * mHat / (sqrt(vHat) + epsilon)
//
// where mHat and vHat are the bias-corrected moment estimates. The
// input weights, gradients, and state are left unmodified.
func (a *adam) Step(params, grads network.Params, state *State) (
	network.Params, *State, error) {
	if err := checkStep(a, params, grads, state); err != nil {
		return nil, nil, err
	}

	newParams := params.Clone()
	newState := state.Clone()
	newState.Step = state.Step + 1

	beta1 := a.config.Beta1
	beta2 := a.config.Beta2
	correct1 := 1.0 - math.Pow(beta1, float64(newState.Step))
	correct2 := 1.0 - math.Pow(beta2, float64(newState.Step))

	for name := range newParams {
		weights := newParams[name].Data().([]float64)
		grad := grads[name].Data().([]float64)
		m := newState.Moments["m"][name].Data().([]float64)
		v := newState.Moments["v"][name].Data().([]float64)

		for i := range weights {
			m[i] = beta1*m[i] + (1.0-beta1)*grad[i]
			v[i] = beta2*v[i] + (1.0-beta2)*grad[i]*grad[i]

			mHat := m[i] / correct1
			vHat := v[i] / correct2
			weights[i] -= a.config.StepSize * mHat /
				(math.Sqrt(vHat) + a.config.Epsilon)
		}
	}

	return newParams, newState, nil
}
