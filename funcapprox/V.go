package funcapprox

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/gotd/network"
	"github.com/samuelfneumann/gotd/probdist"
)

// V is a state value function. The underlying network has a single
// head when the function predicts scalar values, and one head per
// support atom when the function predicts value distributions.
type V struct {
	*Func
	support   *probdist.Support
	transform *probdist.ValueTransform
	atomDist  *probdist.Categorical
}

// NewV returns a V computing the forward pass of net. A non-nil
// support makes the function distributional, in which case the network
// must have one output per support atom. The transform and normalizer
// may each be nil.
func NewV(net network.NeuralNet, support *probdist.Support,
	transform *probdist.ValueTransform, normalizer *Normalizer,
	seed uint64) (*V, error) {
	var atomDist *probdist.Categorical
	heads := 1
	if support != nil {
		heads = support.NumAtoms()

		var err error
		atomDist, err = probdist.NewCategorical(support.NumAtoms())
		if err != nil {
			return nil, fmt.Errorf("newv: %v", err)
		}
	}
	if net != nil && net.Outputs() != heads {
		return nil, fmt.Errorf("newv: invalid number of network "+
			"outputs \n\twant(%v) \n\thave(%v)", heads, net.Outputs())
	}

	f, err := NewFunc(net, normalizer, seed)
	if err != nil {
		return nil, fmt.Errorf("newv: %v", err)
	}

	return &V{
		Func:      f,
		support:   support,
		transform: transform,
		atomDist:  atomDist,
	}, nil
}

// Distributional returns whether the function predicts value
// distributions rather than scalar values
func (v *V) Distributional() bool {
	return v.support != nil
}

// Support returns the support of the function's value distributions,
// or nil if the function predicts scalar values
func (v *V) Support() *probdist.Support {
	return v.support
}

// Transform returns the function's value transform, or nil
func (v *V) Transform() *probdist.ValueTransform {
	return v.transform
}

// Copy returns an independent copy of the function, sharing no
// weights, state, kernels or randomness with the original
func (v *V) Copy() (*V, error) {
	f, err := v.Func.Copy()
	if err != nil {
		return nil, fmt.Errorf("copy: %v", err)
	}

	return &V{
		Func:      f,
		support:   v.support,
		transform: v.transform,
		atomDist:  v.atomDist,
	}, nil
}

// SoftUpdate moves the function's weights toward the weights of src by
// Polyak interpolation and replaces its state with a copy of src's
func (v *V) SoftUpdate(src *V, tau float64) error {
	return v.Func.SoftUpdate(src.Func, tau)
}

// HardUpdate replaces the function's weights and state with copies of
// src's
func (v *V) HardUpdate(src *V) error {
	return v.Func.HardUpdate(src.Func)
}

// Values converts a raw network head output into state values on the
// real scale, one per row. For a distributional function the value of
// a state is the mean of its predicted distribution mapped back
// through the value transform.
func (v *V) Values(out *mat.Dense) (*mat.VecDense, error) {
	rows, cols := out.Dims()
	if cols != v.Outputs() {
		return nil, fmt.Errorf("values: invalid head width \n\twant(%v) "+
			"\n\thave(%v)", v.Outputs(), cols)
	}

	values := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		if v.support == nil {
			values.SetVec(i, v.real(out.At(i, 0)))
			continue
		}

		probs := v.atomDist.Probs(out.RawRowView(i))
		values.SetVec(i, v.real(v.support.Mean(probs)))
	}
	return values, nil
}

// ValuesWith returns the value of every state of obs, computed with
// the given weights and function state instead of the function's own.
// Like Forward, it mutates nothing.
func (v *V) ValuesWith(p network.Params, st FunctionState, rng *rand.Rand,
	obs *mat.Dense) (*mat.VecDense, error) {
	out, _, err := v.Forward(p, st, rng, obs, false)
	if err != nil {
		return nil, fmt.Errorf("valueswith: %v", err)
	}

	values, err := v.Values(out)
	if err != nil {
		return nil, fmt.Errorf("valueswith: %v", err)
	}
	return values, nil
}

// DistProbs converts a raw network head output into distribution
// probabilities, one distribution over the support atoms per row. The
// function must be distributional.
func (v *V) DistProbs(out *mat.Dense) (*mat.Dense, error) {
	if v.support == nil {
		return nil, fmt.Errorf("distprobs: function predicts scalar values")
	}

	rows, cols := out.Dims()
	if cols != v.Outputs() {
		return nil, fmt.Errorf("distprobs: invalid head width "+
			"\n\twant(%v) \n\thave(%v)", v.Outputs(), cols)
	}

	probs := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		probs.SetRow(i, v.atomDist.Probs(out.RawRowView(i)))
	}
	return probs, nil
}

// DistProbsWith returns the distribution probabilities of every state
// of obs, computed with the given weights and function state instead
// of the function's own
func (v *V) DistProbsWith(p network.Params, st FunctionState,
	rng *rand.Rand, obs *mat.Dense) (*mat.Dense, error) {
	out, _, err := v.Forward(p, st, rng, obs, false)
	if err != nil {
		return nil, fmt.Errorf("distprobswith: %v", err)
	}

	probs, err := v.DistProbs(out)
	if err != nil {
		return nil, fmt.Errorf("distprobswith: %v", err)
	}
	return probs, nil
}

// Evaluate returns the value of every state of obs, using the
// function's own weights and state
func (v *V) Evaluate(obs *mat.Dense) (*mat.VecDense, error) {
	out, err := v.Func.Evaluate(obs)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %v", err)
	}

	values, err := v.Values(out)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %v", err)
	}
	return values, nil
}

// real maps a value from the transform scale to the real scale
func (v *V) real(value float64) float64 {
	if v.transform == nil {
		return value
	}
	return v.transform.Inverse(value)
}
