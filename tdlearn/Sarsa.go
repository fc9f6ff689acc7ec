package tdlearn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/gotd/funcapprox"
	"github.com/samuelfneumann/gotd/regularizer"
	"github.com/samuelfneumann/gotd/solver"
	"github.com/samuelfneumann/gotd/timestep"
)

// sarsa bootstraps a state-action value function from the target
// estimate of the action actually taken at the next state:
//
//	target = Rn + In * q_targ(S', A')
//
// Batches consumed by this strategy must record next actions.
type sarsa struct {
	q     *funcapprox.Q
	qTarg *funcapprox.Q
}

// NewSarsa returns a Learner training q toward its Sarsa targets. A
// nil qTarg makes the learner bootstrap from q itself, a nil loss
// defaults to the Huber loss with threshold 1, and reg may be nil.
func NewSarsa(q, qTarg *funcapprox.Q, sol *solver.Solver, loss ValueLoss,
	reg regularizer.Regularizer) (*Learner, error) {
	if q == nil {
		return nil, fmt.Errorf("newsarsa: no online function given")
	}
	if qTarg == nil {
		qTarg = q
	}
	if err := checkQPair(q, qTarg); err != nil {
		return nil, fmt.Errorf("newsarsa: %v", err)
	}

	on, err := onlineQ(q)
	if err != nil {
		return nil, fmt.Errorf("newsarsa: %v", err)
	}

	l, err := newLearner(on, &sarsa{q: q, qTarg: qTarg}, sol, loss, reg)
	if err != nil {
		return nil, fmt.Errorf("newsarsa: %v", err)
	}
	return l, nil
}

func (s *sarsa) name() string {
	return "Sarsa"
}

func (s *sarsa) bundle() *TargetBundle {
	b := newTargetBundle()
	b.add("q", s.q.Params(), s.q.FunctionState())
	b.add("q_targ", s.qTarg.Params(), s.qTarg.FunctionState())
	return b
}

func (s *sarsa) targets(b *TargetBundle,
	batch timestep.Batch) ([]float64, error) {
	if !batch.HasNextActions() {
		return nil, fmt.Errorf("targets: batch does not record next actions")
	}

	p, st, err := b.entry("q_targ")
	if err != nil {
		return nil, err
	}

	values, err := s.qTarg.ValuesWith(p, st, s.qTarg.Rng(), batch.NextObs)
	if err != nil {
		return nil, err
	}

	indices := batch.NextActionIndices()
	boots := make([]float64, batch.Size())
	for i := range boots {
		boots[i] = values.At(i, indices[i])
	}
	return bootstrapTargets(s.q.Transform(), batch, boots), nil
}

func (s *sarsa) targetProbs(b *TargetBundle,
	batch timestep.Batch) (*mat.Dense, error) {
	if !batch.HasNextActions() {
		return nil, fmt.Errorf("targetprobs: batch does not record next " +
			"actions")
	}

	p, st, err := b.entry("q_targ")
	if err != nil {
		return nil, err
	}

	probs, err := s.qTarg.DistProbsWith(p, st, s.qTarg.Rng(), batch.NextObs)
	if err != nil {
		return nil, err
	}

	blocks := gatherBlocks(probs, batch.NextActionIndices(),
		s.q.Support().NumAtoms())
	return bellmanProject(s.q.Support(), s.q.Transform(), batch, blocks)
}

func (s *sarsa) targetPredictions(b *TargetBundle,
	batch timestep.Batch) ([]float64, error) {
	return qEstimates(s.qTarg, b, "q_targ", batch)
}
