package tdlearn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/gotd/funcapprox"
	"github.com/samuelfneumann/gotd/regularizer"
	"github.com/samuelfneumann/gotd/solver"
	"github.com/samuelfneumann/gotd/timestep"
	"github.com/samuelfneumann/gotd/utils/floatutils"
)

// qLearning bootstraps a state-action value function from the highest
// target estimate at the next state:
//
//	target = Rn + In * max_a q_targ(S', a)
type qLearning struct {
	q     *funcapprox.Q
	qTarg *funcapprox.Q
}

// NewQLearning returns a Learner training q toward its Q-learning
// targets. A nil qTarg makes the learner bootstrap from q itself, a
// nil loss defaults to the Huber loss with threshold 1, and reg may be
// nil.
func NewQLearning(q, qTarg *funcapprox.Q, sol *solver.Solver,
	loss ValueLoss, reg regularizer.Regularizer) (*Learner, error) {
	if q == nil {
		return nil, fmt.Errorf("newqlearning: no online function given")
	}
	if qTarg == nil {
		qTarg = q
	}
	if err := checkQPair(q, qTarg); err != nil {
		return nil, fmt.Errorf("newqlearning: %v", err)
	}

	on, err := onlineQ(q)
	if err != nil {
		return nil, fmt.Errorf("newqlearning: %v", err)
	}

	l, err := newLearner(on, &qLearning{q: q, qTarg: qTarg}, sol, loss, reg)
	if err != nil {
		return nil, fmt.Errorf("newqlearning: %v", err)
	}
	return l, nil
}

func (s *qLearning) name() string {
	return "QLearning"
}

func (s *qLearning) bundle() *TargetBundle {
	b := newTargetBundle()
	b.add("q", s.q.Params(), s.q.FunctionState())
	b.add("q_targ", s.qTarg.Params(), s.qTarg.FunctionState())
	return b
}

func (s *qLearning) targets(b *TargetBundle,
	batch timestep.Batch) ([]float64, error) {
	p, st, err := b.entry("q_targ")
	if err != nil {
		return nil, err
	}

	values, err := s.qTarg.ValuesWith(p, st, s.qTarg.Rng(), batch.NextObs)
	if err != nil {
		return nil, err
	}

	boots := make([]float64, batch.Size())
	for i := range boots {
		max, _ := floatutils.MaxSlice(values.RawRowView(i))
		boots[i] = max
	}
	return bootstrapTargets(s.q.Transform(), batch, boots), nil
}

func (s *qLearning) targetProbs(b *TargetBundle,
	batch timestep.Batch) (*mat.Dense, error) {
	p, st, err := b.entry("q_targ")
	if err != nil {
		return nil, err
	}

	out, _, err := s.qTarg.Forward(p, st, s.qTarg.Rng(), batch.NextObs,
		false)
	if err != nil {
		return nil, err
	}

	values, err := s.qTarg.Values(out)
	if err != nil {
		return nil, err
	}
	probs, err := s.qTarg.DistProbs(out)
	if err != nil {
		return nil, err
	}

	blocks := gatherBlocks(probs, greedyIndices(values),
		s.q.Support().NumAtoms())
	return bellmanProject(s.q.Support(), s.q.Transform(), batch, blocks)
}

func (s *qLearning) targetPredictions(b *TargetBundle,
	batch timestep.Batch) ([]float64, error) {
	return qEstimates(s.qTarg, b, "q_targ", batch)
}
