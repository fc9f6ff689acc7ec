// Package policyobj implements gradient-ascent objectives for
// parametrized policies.
//
// A policy objective scores the actions a policy took with externally
// supplied advantages and moves the policy's weights up the gradient
// of the expected score. Objectives follow the update conventions of
// package tdlearn: importance weights clip to the same interval, a
// non-finite gradient aborts an update before anything changes, and a
// fused update equals a gradient computation followed by a separate
// application.
package policyobj

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/samuelfneumann/gotd/funcapprox"
	"github.com/samuelfneumann/gotd/network"
	"github.com/samuelfneumann/gotd/solver"
	"github.com/samuelfneumann/gotd/timestep"
	"github.com/samuelfneumann/gotd/utils/floatutils"
)

// Importance weights are clipped to this interval before they reach
// the objective, bounding the variance that extreme sampling ratios
// can inject into an update
const (
	minImportanceWeight = 0.1
	maxImportanceWeight = 10.0
)

// onlinePolicy is the objective's view of the policy being trained:
// the bare function together with its head geometry
type onlinePolicy struct {
	fn       *funcapprox.Func
	features int
	actions  int
}

// Gradients packages everything one gradient computation produces:
// the gradient tree, the function state after the forward pass and
// the update's metrics
type Gradients struct {
	Grads         network.Params
	FunctionState funcapprox.FunctionState
	Metrics       map[string]float64
}

// VanillaPG updates a categorical policy along the REINFORCE policy
// gradient
//
//	E[W * Adv * grad log pi(A|S)]
//
// with advantages supplied by the caller, optionally plus the gradient
// of an entropy bonus that keeps the action distribution spread out.
// A VanillaPG is not safe for concurrent use.
type VanillaPG struct {
	pi      *onlinePolicy
	beta    float64
	sol     *solver.Solver
	state   *solver.State
	kernels map[int]*objectiveKernel
}

// NewVanillaPG returns a VanillaPG ascending the policy gradient of
// pi through the given solver. The entropy bonus has strength beta
// >= 0, and beta = 0 disables it.
func NewVanillaPG(pi *funcapprox.Policy, sol *solver.Solver,
	beta float64) (*VanillaPG, error) {
	if pi == nil {
		return nil, fmt.Errorf("newvanillapg: no policy given")
	}
	if sol == nil || sol.Method == nil {
		return nil, fmt.Errorf("newvanillapg: no solver given")
	}
	if beta < 0 {
		return nil, fmt.Errorf("newvanillapg: entropy bonus must be "+
			"non-negative \n\thave(%v)", beta)
	}

	on := &onlinePolicy{
		fn:       pi.Func,
		features: pi.Features(),
		actions:  pi.NumActions(),
	}

	return &VanillaPG{
		pi:      on,
		beta:    beta,
		sol:     sol,
		state:   sol.Init(on.fn.Params()),
		kernels: make(map[int]*objectiveKernel),
	}, nil
}

// Name returns the name of the objective
func (v *VanillaPG) Name() string {
	return "VanillaPG"
}

// GradsAndMetrics computes the gradients of the objective on the batch
// under the given advantages, without applying them. Nothing of the
// objective's mutable state changes, so splitting an update into
// GradsAndMetrics followed by UpdateFromGrads produces exactly the
// parameters Update would.
func (v *VanillaPG) GradsAndMetrics(batch timestep.Batch,
	advantages []float64) (*Gradients, error) {
	if err := batch.Validate(); err != nil {
		return nil, fmt.Errorf("gradsandmetrics: %v", err)
	}
	if batch.Features() != v.pi.features {
		return nil, fmt.Errorf("gradsandmetrics: invalid number of state "+
			"features \n\twant(%v) \n\thave(%v)", v.pi.features,
			batch.Features())
	}
	if batch.ActionDims() != v.pi.actions {
		return nil, fmt.Errorf("gradsandmetrics: invalid number of actions "+
			"\n\twant(%v) \n\thave(%v)", v.pi.actions, batch.ActionDims())
	}
	if len(advantages) != batch.Size() {
		return nil, fmt.Errorf("gradsandmetrics: invalid number of "+
			"advantages \n\twant(%v) \n\thave(%v)", batch.Size(),
			len(advantages))
	}

	weights := clipWeights(batch)

	input, newState, err := v.pi.fn.Normalize(v.pi.fn.FunctionState(),
		batch.Obs, true)
	if err != nil {
		return nil, fmt.Errorf("gradsandmetrics: %v", err)
	}

	k, err := v.kernel(batch.Size())
	if err != nil {
		return nil, fmt.Errorf("gradsandmetrics: %v", err)
	}

	grads, cost, entropy, err := k.run(v.pi.fn.Params(), input,
		batch.Actions, advantages, weights)
	if err != nil {
		return nil, fmt.Errorf("gradsandmetrics: %v", err)
	}

	name := v.Name()
	metrics := map[string]float64{
		name + "/loss":       cost,
		name + "/entropy":    entropy,
		name + "/grads_max":  gradsMax(grads),
		name + "/grads_norm": gradsNorm(grads),
	}

	return &Gradients{
		Grads:         grads,
		FunctionState: newState,
		Metrics:       metrics,
	}, nil
}

// Update computes the gradients of the objective on the batch and
// applies them through the solver, committing the new weights,
// function state and optimizer state. An update either completes or
// changes nothing: non-finite gradients and structural mismatches
// abort before any commit.
func (v *VanillaPG) Update(batch timestep.Batch,
	advantages []float64) (map[string]float64, error) {
	result, err := v.GradsAndMetrics(batch, advantages)
	if err != nil {
		return nil, fmt.Errorf("update: %v", err)
	}

	if err := v.UpdateFromGrads(result.Grads, result.FunctionState); err != nil {
		return nil, fmt.Errorf("update: %v", err)
	}
	return result.Metrics, nil
}

// UpdateFromGrads applies externally computed gradients through the
// objective's solver, committing the new weights, the given function
// state and the next optimizer state. Gradients with any non-finite
// value are rejected before anything changes.
func (v *VanillaPG) UpdateFromGrads(grads network.Params,
	st funcapprox.FunctionState) error {
	if !grads.AllFinite() {
		return fmt.Errorf("updatefromgrads: non-finite gradient, " +
			"parameters unchanged")
	}

	params := v.pi.fn.Params()
	newParams, newState, err := v.sol.Step(params, grads, v.state)
	if err != nil {
		return fmt.Errorf("updatefromgrads: %v", err)
	}

	if err := v.pi.fn.SetFunctionState(st); err != nil {
		return fmt.Errorf("updatefromgrads: %v", err)
	}
	if err := v.pi.fn.SetParams(newParams); err != nil {
		return fmt.Errorf("updatefromgrads: %v", err)
	}
	v.state = newState
	return nil
}

// Optimizer returns the objective's solver
func (v *VanillaPG) Optimizer() *solver.Solver {
	return v.sol
}

// SetOptimizer replaces the objective's solver, keeping the current
// optimizer state. The new solver must use the same state structure
// as the current one.
func (v *VanillaPG) SetOptimizer(sol *solver.Solver) error {
	if sol == nil || sol.Method == nil {
		return fmt.Errorf("setoptimizer: no solver given")
	}
	if err := v.state.CheckCompatible(sol.Slots(),
		v.pi.fn.Params()); err != nil {
		return fmt.Errorf("setoptimizer: %v", err)
	}

	v.sol = sol
	return nil
}

// OptimizerState returns a copy of the objective's optimizer state
func (v *VanillaPG) OptimizerState() *solver.State {
	return v.state.Clone()
}

// SetOptimizerState replaces the objective's optimizer state with a
// copy of st, which must match the solver and the policy's weight tree
func (v *VanillaPG) SetOptimizerState(st *solver.State) error {
	if st == nil {
		return fmt.Errorf("setoptimizerstate: no state given")
	}
	if err := st.CheckCompatible(v.sol.Slots(),
		v.pi.fn.Params()); err != nil {
		return fmt.Errorf("setoptimizerstate: %v", err)
	}

	v.state = st.Clone()
	return nil
}

// kernel returns the objective kernel for the given batch size,
// compiling and caching it on first use
func (v *VanillaPG) kernel(batch int) (*objectiveKernel, error) {
	if k, ok := v.kernels[batch]; ok {
		return k, nil
	}

	k, err := newObjectiveKernel(v.pi, v.beta, batch)
	if err != nil {
		return nil, fmt.Errorf("kernel: could not compile kernel for "+
			"batch size %v: %v", batch, err)
	}
	v.kernels[batch] = k
	return k, nil
}

// clipWeights returns the batch's importance weights clipped to the
// objective's weight interval. A batch without weights means unit
// weights.
func clipWeights(batch timestep.Batch) []float64 {
	weights := make([]float64, batch.Size())
	for i := range weights {
		w := 1.0
		if batch.Weights != nil {
			w = batch.Weights.AtVec(i)
		}
		weights[i] = floatutils.Clip(w, minImportanceWeight,
			maxImportanceWeight)
	}
	return weights
}

// gradsMax returns the largest absolute value in the gradient tree
func gradsMax(grads network.Params) float64 {
	max := math.Inf(-1)
	for _, leaf := range grads {
		for _, g := range leaf.Data().([]float64) {
			if a := math.Abs(g); a > max {
				max = a
			}
		}
	}
	return max
}

// gradsNorm returns the l2 norm of the gradient tree
func gradsNorm(grads network.Params) float64 {
	total := 0.0
	for _, leaf := range grads {
		data := leaf.Data().([]float64)
		total += floats.Dot(data, data)
	}
	return math.Sqrt(total)
}
