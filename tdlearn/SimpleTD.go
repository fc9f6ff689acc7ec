package tdlearn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/gotd/funcapprox"
	"github.com/samuelfneumann/gotd/regularizer"
	"github.com/samuelfneumann/gotd/solver"
	"github.com/samuelfneumann/gotd/timestep"
)

// simpleTD bootstraps a state value function from a target copy of
// itself:
//
//	target = Rn + In * v_targ(S')
type simpleTD struct {
	v     *funcapprox.V
	vTarg *funcapprox.V
}

// NewSimpleTD returns a Learner training v toward its one-function TD
// targets. A nil vTarg makes the learner bootstrap from v itself, a
// nil loss defaults to the Huber loss with threshold 1, and reg may be
// nil.
func NewSimpleTD(v, vTarg *funcapprox.V, sol *solver.Solver,
	loss ValueLoss, reg regularizer.Regularizer) (*Learner, error) {
	if v == nil {
		return nil, fmt.Errorf("newsimpletd: no online function given")
	}
	if vTarg == nil {
		vTarg = v
	}
	if err := checkVPair(v, vTarg); err != nil {
		return nil, fmt.Errorf("newsimpletd: %v", err)
	}

	on, err := onlineV(v)
	if err != nil {
		return nil, fmt.Errorf("newsimpletd: %v", err)
	}

	l, err := newLearner(on, &simpleTD{v: v, vTarg: vTarg}, sol, loss, reg)
	if err != nil {
		return nil, fmt.Errorf("newsimpletd: %v", err)
	}
	return l, nil
}

func (s *simpleTD) name() string {
	return "SimpleTD"
}

func (s *simpleTD) bundle() *TargetBundle {
	b := newTargetBundle()
	b.add("v", s.v.Params(), s.v.FunctionState())
	b.add("v_targ", s.vTarg.Params(), s.vTarg.FunctionState())
	return b
}

func (s *simpleTD) targets(b *TargetBundle,
	batch timestep.Batch) ([]float64, error) {
	p, st, err := b.entry("v_targ")
	if err != nil {
		return nil, err
	}

	boots, err := s.vTarg.ValuesWith(p, st, s.vTarg.Rng(), batch.NextObs)
	if err != nil {
		return nil, err
	}
	return bootstrapTargets(s.v.Transform(), batch, vecSlice(boots)), nil
}

func (s *simpleTD) targetProbs(b *TargetBundle,
	batch timestep.Batch) (*mat.Dense, error) {
	p, st, err := b.entry("v_targ")
	if err != nil {
		return nil, err
	}

	probs, err := s.vTarg.DistProbsWith(p, st, s.vTarg.Rng(), batch.NextObs)
	if err != nil {
		return nil, err
	}
	return bellmanProject(s.v.Support(), s.v.Transform(), batch, probs)
}

func (s *simpleTD) targetPredictions(b *TargetBundle,
	batch timestep.Batch) ([]float64, error) {
	return vEstimates(s.vTarg, b, "v_targ", batch)
}
