package funcapprox

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/gotd/network"
	"github.com/samuelfneumann/gotd/probdist"
	"github.com/samuelfneumann/gotd/utils/floatutils"
)

// Q is a state-action value function over a discrete action space.
//
// The underlying network has one head per action when the function
// predicts scalar values, and one head per action and support atom
// when the function predicts value distributions. Values are learned
// on the scale of the function's value transform, if any, and reported
// on the real scale.
type Q struct {
	*Func
	numActions int
	support    *probdist.Support
	transform  *probdist.ValueTransform
	atomDist   *probdist.Categorical
}

// NewQ returns a Q over numActions actions computing the forward pass
// of net. A non-nil support makes the function distributional, in
// which case the network must have numActions times the number of
// support atoms outputs. The transform and normalizer may each be nil.
func NewQ(net network.NeuralNet, numActions int, support *probdist.Support,
	transform *probdist.ValueTransform, normalizer *Normalizer,
	seed uint64) (*Q, error) {
	if numActions < 1 {
		return nil, fmt.Errorf("newq: action space must have at least "+
			"one action \n\thave(%v)", numActions)
	}

	var atomDist *probdist.Categorical
	heads := numActions
	if support != nil {
		heads = numActions * support.NumAtoms()

		var err error
		atomDist, err = probdist.NewCategorical(support.NumAtoms())
		if err != nil {
			return nil, fmt.Errorf("newq: %v", err)
		}
	}
	if net != nil && net.Outputs() != heads {
		return nil, fmt.Errorf("newq: invalid number of network "+
			"outputs \n\twant(%v) \n\thave(%v)", heads, net.Outputs())
	}

	f, err := NewFunc(net, normalizer, seed)
	if err != nil {
		return nil, fmt.Errorf("newq: %v", err)
	}

	return &Q{
		Func:       f,
		numActions: numActions,
		support:    support,
		transform:  transform,
		atomDist:   atomDist,
	}, nil
}

// NumActions returns the number of actions the function scores
func (q *Q) NumActions() int {
	return q.numActions
}

// Distributional returns whether the function predicts value
// distributions rather than scalar values
func (q *Q) Distributional() bool {
	return q.support != nil
}

// Support returns the support of the function's value distributions,
// or nil if the function predicts scalar values
func (q *Q) Support() *probdist.Support {
	return q.support
}

// Transform returns the function's value transform, or nil
func (q *Q) Transform() *probdist.ValueTransform {
	return q.transform
}

// Copy returns an independent copy of the function, sharing no
// weights, state, kernels or randomness with the original
func (q *Q) Copy() (*Q, error) {
	f, err := q.Func.Copy()
	if err != nil {
		return nil, fmt.Errorf("copy: %v", err)
	}

	return &Q{
		Func:       f,
		numActions: q.numActions,
		support:    q.support,
		transform:  q.transform,
		atomDist:   q.atomDist,
	}, nil
}

// SoftUpdate moves the function's weights toward the weights of src by
// Polyak interpolation and replaces its state with a copy of src's
func (q *Q) SoftUpdate(src *Q, tau float64) error {
	return q.Func.SoftUpdate(src.Func, tau)
}

// HardUpdate replaces the function's weights and state with copies of
// src's
func (q *Q) HardUpdate(src *Q) error {
	return q.Func.HardUpdate(src.Func)
}

// Values converts a raw network head output into state-action values
// on the real scale, one row per state and one column per action. For
// a distributional function the value of an action is the mean of its
// predicted distribution mapped back through the value transform.
func (q *Q) Values(out *mat.Dense) (*mat.Dense, error) {
	rows, cols := out.Dims()
	if cols != q.Outputs() {
		return nil, fmt.Errorf("values: invalid head width \n\twant(%v) "+
			"\n\thave(%v)", q.Outputs(), cols)
	}

	values := mat.NewDense(rows, q.numActions, nil)
	if q.support == nil {
		for i := 0; i < rows; i++ {
			for a := 0; a < q.numActions; a++ {
				values.Set(i, a, q.real(out.At(i, a)))
			}
		}
		return values, nil
	}

	atoms := q.support.NumAtoms()
	for i := 0; i < rows; i++ {
		row := out.RawRowView(i)
		for a := 0; a < q.numActions; a++ {
			probs := q.atomDist.Probs(row[a*atoms : (a+1)*atoms])
			values.Set(i, a, q.real(q.support.Mean(probs)))
		}
	}
	return values, nil
}

// ValuesWith returns the value of every action in every state of obs,
// computed with the given weights and function state instead of the
// function's own. Like Forward, it mutates nothing.
func (q *Q) ValuesWith(p network.Params, st FunctionState, rng *rand.Rand,
	obs *mat.Dense) (*mat.Dense, error) {
	out, _, err := q.Forward(p, st, rng, obs, false)
	if err != nil {
		return nil, fmt.Errorf("valueswith: %v", err)
	}

	values, err := q.Values(out)
	if err != nil {
		return nil, fmt.Errorf("valueswith: %v", err)
	}
	return values, nil
}

// DistProbs converts a raw network head output into distribution
// probabilities, one block of support atoms per action within each
// row. The function must be distributional.
func (q *Q) DistProbs(out *mat.Dense) (*mat.Dense, error) {
	if q.support == nil {
		return nil, fmt.Errorf("distprobs: function predicts scalar values")
	}

	rows, cols := out.Dims()
	if cols != q.Outputs() {
		return nil, fmt.Errorf("distprobs: invalid head width "+
			"\n\twant(%v) \n\thave(%v)", q.Outputs(), cols)
	}

	atoms := q.support.NumAtoms()
	probs := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		row := out.RawRowView(i)
		for a := 0; a < q.numActions; a++ {
			block := q.atomDist.Probs(row[a*atoms : (a+1)*atoms])
			for k, p := range block {
				probs.Set(i, a*atoms+k, p)
			}
		}
	}
	return probs, nil
}

// DistProbsWith returns the distribution probabilities of every action
// in every state of obs, computed with the given weights and function
// state instead of the function's own
func (q *Q) DistProbsWith(p network.Params, st FunctionState,
	rng *rand.Rand, obs *mat.Dense) (*mat.Dense, error) {
	out, _, err := q.Forward(p, st, rng, obs, false)
	if err != nil {
		return nil, fmt.Errorf("distprobswith: %v", err)
	}

	probs, err := q.DistProbs(out)
	if err != nil {
		return nil, fmt.Errorf("distprobswith: %v", err)
	}
	return probs, nil
}

// EvaluateAll returns the value of every action in every state of obs,
// using the function's own weights and state
func (q *Q) EvaluateAll(obs *mat.Dense) (*mat.Dense, error) {
	out, err := q.Func.Evaluate(obs)
	if err != nil {
		return nil, fmt.Errorf("evaluateall: %v", err)
	}

	values, err := q.Values(out)
	if err != nil {
		return nil, fmt.Errorf("evaluateall: %v", err)
	}
	return values, nil
}

// Evaluate returns the value of taking the one-hot actions in the
// states of obs, one value per row
func (q *Q) Evaluate(obs, actions *mat.Dense) (*mat.VecDense, error) {
	values, err := q.EvaluateAll(obs)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %v", err)
	}

	rows, _ := values.Dims()
	aRows, aCols := actions.Dims()
	if aRows != rows || aCols != q.numActions {
		return nil, fmt.Errorf("evaluate: invalid action shape "+
			"\n\twant(%v x %v) \n\thave(%v x %v)", rows, q.numActions,
			aRows, aCols)
	}

	selected := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		value := 0.0
		for a := 0; a < q.numActions; a++ {
			value += actions.At(i, a) * values.At(i, a)
		}
		selected.SetVec(i, value)
	}
	return selected, nil
}

// Greedy returns the highest-valued action in each state of obs,
// breaking ties in favour of the lowest action index
func (q *Q) Greedy(obs *mat.Dense) ([]int, error) {
	values, err := q.EvaluateAll(obs)
	if err != nil {
		return nil, fmt.Errorf("greedy: %v", err)
	}

	rows, _ := values.Dims()
	actions := make([]int, rows)
	for i := range actions {
		_, indices := floatutils.MaxSlice(values.RawRowView(i))
		actions[i] = indices[0]
	}
	return actions, nil
}

// real maps a value from the transform scale to the real scale
func (q *Q) real(value float64) float64 {
	if q.transform == nil {
		return value
	}
	return q.transform.Inverse(value)
}
