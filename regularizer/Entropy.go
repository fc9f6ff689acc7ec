package regularizer

import (
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/samuelfneumann/gotd/funcapprox"
	"github.com/samuelfneumann/gotd/network"
	"github.com/samuelfneumann/gotd/probdist"
	"github.com/samuelfneumann/gotd/timestep"
)

// Entropy penalizes low-entropy action distributions. The penalty of
// a transition is
//
//	-beta * H(pi(. | s))
//
// so that subtracting it from a bootstrap target rewards policies
// that keep their action distributions spread out.
type Entropy struct {
	pi   *funcapprox.Policy
	dist *probdist.Categorical
	beta float64
}

// NewEntropy returns an entropy regularizer over the policy pi with
// temperature beta >= 0
func NewEntropy(pi *funcapprox.Policy, beta float64) (*Entropy, error) {
	if pi == nil {
		return nil, fmt.Errorf("newentropy: no policy to regularize")
	}
	if beta < 0 {
		return nil, fmt.Errorf("newentropy: beta must be non-negative "+
			"\n\thave(%v)", beta)
	}

	dist, err := probdist.NewCategorical(pi.NumActions())
	if err != nil {
		return nil, fmt.Errorf("newentropy: %v", err)
	}

	return &Entropy{pi: pi, dist: dist, beta: beta}, nil
}

// BatchEval returns -beta times the entropy of the policy's action
// distribution at each observation of the batch, computed with the
// given weight and state snapshot
func (e *Entropy) BatchEval(p network.Params, st funcapprox.FunctionState,
	rng *rand.Rand, batch timestep.Batch) ([]float64, error) {
	probs, err := e.pi.ProbsWith(p, st, rng, batch.Obs)
	if err != nil {
		return nil, fmt.Errorf("batcheval: %v", err)
	}

	rows, _ := probs.Dims()
	penalties := make([]float64, rows)
	for i := range penalties {
		penalties[i] = -e.beta * e.dist.Entropy(probs.RawRowView(i))
	}
	return penalties, nil
}

// Params returns a copy of the regularized policy's weights
func (e *Entropy) Params() network.Params {
	return e.pi.Params()
}

// FunctionState returns a copy of the regularized policy's function
// state
func (e *Entropy) FunctionState() funcapprox.FunctionState {
	return e.pi.FunctionState()
}

// Hyperparams returns the regularizer's temperature under the key
// beta
func (e *Entropy) Hyperparams() map[string]float64 {
	return map[string]float64{"beta": e.beta}
}
