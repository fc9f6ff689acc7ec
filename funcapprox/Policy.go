package funcapprox

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/gotd/network"
	"github.com/samuelfneumann/gotd/probdist"
)

// Policy is a categorical policy over a discrete action space. The
// underlying network predicts one unnormalized logit per action, and
// actions are reported as one-hot vectors.
type Policy struct {
	*Func
	numActions int
	dist       *probdist.Categorical
	codec      *probdist.OneHot
}

// NewPolicy returns a categorical policy over numActions actions
// computing the forward pass of net, which must have one output per
// action. The normalizer may be nil.
func NewPolicy(net network.NeuralNet, numActions int,
	normalizer *Normalizer, seed uint64) (*Policy, error) {
	if numActions < 1 {
		return nil, fmt.Errorf("newpolicy: action space must have at "+
			"least one action \n\thave(%v)", numActions)
	}
	if net != nil && net.Outputs() != numActions {
		return nil, fmt.Errorf("newpolicy: invalid number of network "+
			"outputs \n\twant(%v) \n\thave(%v)", numActions, net.Outputs())
	}

	dist, err := probdist.NewCategorical(numActions)
	if err != nil {
		return nil, fmt.Errorf("newpolicy: %v", err)
	}
	codec, err := probdist.NewOneHot(numActions)
	if err != nil {
		return nil, fmt.Errorf("newpolicy: %v", err)
	}

	f, err := NewFunc(net, normalizer, seed)
	if err != nil {
		return nil, fmt.Errorf("newpolicy: %v", err)
	}

	return &Policy{
		Func:       f,
		numActions: numActions,
		dist:       dist,
		codec:      codec,
	}, nil
}

// NumActions returns the number of actions the policy chooses between
func (p *Policy) NumActions() int {
	return p.numActions
}

// Copy returns an independent copy of the policy, sharing no weights,
// state, kernels or randomness with the original
func (p *Policy) Copy() (*Policy, error) {
	f, err := p.Func.Copy()
	if err != nil {
		return nil, fmt.Errorf("copy: %v", err)
	}

	return &Policy{
		Func:       f,
		numActions: p.numActions,
		dist:       p.dist,
		codec:      p.codec,
	}, nil
}

// SoftUpdate moves the policy's weights toward the weights of src by
// Polyak interpolation and replaces its state with a copy of src's
func (p *Policy) SoftUpdate(src *Policy, tau float64) error {
	return p.Func.SoftUpdate(src.Func, tau)
}

// HardUpdate replaces the policy's weights and state with copies of
// src's
func (p *Policy) HardUpdate(src *Policy) error {
	return p.Func.HardUpdate(src.Func)
}

// DistParams returns the unnormalized action logits of the policy in
// every state of obs, using the policy's own weights and state
func (p *Policy) DistParams(obs *mat.Dense) (*mat.Dense, error) {
	logits, err := p.Func.Evaluate(obs)
	if err != nil {
		return nil, fmt.Errorf("distparams: %v", err)
	}
	return logits, nil
}

// Probs returns the action probabilities of the policy in every state
// of obs, one distribution per row
func (p *Policy) Probs(obs *mat.Dense) (*mat.Dense, error) {
	logits, err := p.DistParams(obs)
	if err != nil {
		return nil, fmt.Errorf("probs: %v", err)
	}

	rows, _ := logits.Dims()
	probs := mat.NewDense(rows, p.numActions, nil)
	for i := 0; i < rows; i++ {
		probs.SetRow(i, p.dist.Probs(logits.RawRowView(i)))
	}
	return probs, nil
}

// ProbsWith returns the action probabilities of the policy in every
// state of obs, computed with the given weights and function state
// instead of the policy's own. Like Forward, it mutates nothing.
func (p *Policy) ProbsWith(params network.Params, st FunctionState,
	rng *rand.Rand, obs *mat.Dense) (*mat.Dense, error) {
	logits, _, err := p.Forward(params, st, rng, obs, false)
	if err != nil {
		return nil, fmt.Errorf("probswith: %v", err)
	}

	rows, _ := logits.Dims()
	probs := mat.NewDense(rows, p.numActions, nil)
	for i := 0; i < rows; i++ {
		probs.SetRow(i, p.dist.Probs(logits.RawRowView(i)))
	}
	return probs, nil
}

// SelectAction samples an action from the policy's distribution over
// actions in the state obs, advancing the policy's random number
// stream. The action is returned one-hot encoded.
func (p *Policy) SelectAction(obs mat.Vector) (mat.Vector, error) {
	probs, err := p.Probs(rowDense(obs))
	if err != nil {
		return nil, fmt.Errorf("selectaction: %v", err)
	}

	action := p.dist.Sample(probs.RawRowView(0), p.rng)
	return p.codec.Encode(action), nil
}

// Mode returns the most probable action of the policy in the state
// obs, one-hot encoded, breaking ties in favour of the lowest action
// index
func (p *Policy) Mode(obs mat.Vector) (mat.Vector, error) {
	probs, err := p.Probs(rowDense(obs))
	if err != nil {
		return nil, fmt.Errorf("mode: %v", err)
	}

	return p.codec.Encode(p.dist.Mode(probs.RawRowView(0))), nil
}
