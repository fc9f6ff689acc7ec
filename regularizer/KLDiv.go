package regularizer

import (
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/samuelfneumann/gotd/funcapprox"
	"github.com/samuelfneumann/gotd/network"
	"github.com/samuelfneumann/gotd/probdist"
	"github.com/samuelfneumann/gotd/timestep"
)

// KLDiv penalizes action distributions that drift away from a fixed
// prior. The penalty of a transition is
//
//	beta * KL(pi(. | s) || prior)
//
// A nil prior means the uniform distribution, which makes KLDiv an
// entropy regularizer up to an additive constant.
type KLDiv struct {
	pi    *funcapprox.Policy
	dist  *probdist.Categorical
	prior []float64
	beta  float64
}

// NewKLDiv returns a KL-divergence regularizer over the policy pi
// with temperature beta >= 0. The prior must be a distribution over
// the policy's actions, or nil for the uniform prior.
func NewKLDiv(pi *funcapprox.Policy, prior []float64,
	beta float64) (*KLDiv, error) {
	if pi == nil {
		return nil, fmt.Errorf("newkldiv: no policy to regularize")
	}
	if beta < 0 {
		return nil, fmt.Errorf("newkldiv: beta must be non-negative "+
			"\n\thave(%v)", beta)
	}

	dist, err := probdist.NewCategorical(pi.NumActions())
	if err != nil {
		return nil, fmt.Errorf("newkldiv: %v", err)
	}

	if prior == nil {
		prior = make([]float64, pi.NumActions())
		for i := range prior {
			prior[i] = 1.0 / float64(len(prior))
		}
	}
	if len(prior) != pi.NumActions() {
		return nil, fmt.Errorf("newkldiv: invalid prior length "+
			"\n\twant(%v) \n\thave(%v)", pi.NumActions(), len(prior))
	}
	total := 0.0
	for _, p := range prior {
		if p < 0 {
			return nil, fmt.Errorf("newkldiv: prior has negative "+
				"probability %v", p)
		}
		total += p
	}
	if total == 0 {
		return nil, fmt.Errorf("newkldiv: prior has no probability mass")
	}

	normalized := make([]float64, len(prior))
	for i := range prior {
		normalized[i] = prior[i] / total
	}

	return &KLDiv{pi: pi, dist: dist, prior: normalized, beta: beta}, nil
}

// BatchEval returns beta times the KL divergence from the prior of
// the policy's action distribution at each observation of the batch,
// computed with the given weight and state snapshot
func (k *KLDiv) BatchEval(p network.Params, st funcapprox.FunctionState,
	rng *rand.Rand, batch timestep.Batch) ([]float64, error) {
	probs, err := k.pi.ProbsWith(p, st, rng, batch.Obs)
	if err != nil {
		return nil, fmt.Errorf("batcheval: %v", err)
	}

	rows, _ := probs.Dims()
	penalties := make([]float64, rows)
	for i := range penalties {
		penalties[i] = k.beta * k.dist.KL(probs.RawRowView(i), k.prior)
	}
	return penalties, nil
}

// Params returns a copy of the regularized policy's weights
func (k *KLDiv) Params() network.Params {
	return k.pi.Params()
}

// FunctionState returns a copy of the regularized policy's function
// state
func (k *KLDiv) FunctionState() funcapprox.FunctionState {
	return k.pi.FunctionState()
}

// Hyperparams returns the regularizer's temperature under the key
// beta
func (k *KLDiv) Hyperparams() map[string]float64 {
	return map[string]float64{"beta": k.beta}
}
