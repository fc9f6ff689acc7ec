package tdlearn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/gotd/funcapprox"
	"github.com/samuelfneumann/gotd/regularizer"
	"github.com/samuelfneumann/gotd/solver"
	"github.com/samuelfneumann/gotd/timestep"
)

// doubleQLearning decouples action selection from action evaluation:
// the online function chooses the greedy next action and the target
// function scores it:
//
//	target = Rn + In * q_targ(S', argmax_a q(S', a))
type doubleQLearning struct {
	q     *funcapprox.Q
	qTarg *funcapprox.Q
}

// NewDoubleQLearning returns a Learner training q toward its double
// Q-learning targets. A nil qTarg makes the learner bootstrap from q
// itself, which reduces the update to plain Q-learning. A nil loss
// defaults to the Huber loss with threshold 1, and reg may be nil.
func NewDoubleQLearning(q, qTarg *funcapprox.Q, sol *solver.Solver,
	loss ValueLoss, reg regularizer.Regularizer) (*Learner, error) {
	if q == nil {
		return nil, fmt.Errorf("newdoubleqlearning: no online function given")
	}
	if qTarg == nil {
		qTarg = q
	}
	if err := checkQPair(q, qTarg); err != nil {
		return nil, fmt.Errorf("newdoubleqlearning: %v", err)
	}

	on, err := onlineQ(q)
	if err != nil {
		return nil, fmt.Errorf("newdoubleqlearning: %v", err)
	}

	strat := &doubleQLearning{q: q, qTarg: qTarg}
	l, err := newLearner(on, strat, sol, loss, reg)
	if err != nil {
		return nil, fmt.Errorf("newdoubleqlearning: %v", err)
	}
	return l, nil
}

func (s *doubleQLearning) name() string {
	return "DoubleQLearning"
}

func (s *doubleQLearning) bundle() *TargetBundle {
	b := newTargetBundle()
	b.add("q", s.q.Params(), s.q.FunctionState())
	b.add("q_targ", s.qTarg.Params(), s.qTarg.FunctionState())
	return b
}

// selected returns the greedy next action of each transition under
// the bundled online function
func (s *doubleQLearning) selected(b *TargetBundle,
	batch timestep.Batch) ([]int, error) {
	p, st, err := b.entry("q")
	if err != nil {
		return nil, err
	}

	values, err := s.q.ValuesWith(p, st, s.q.Rng(), batch.NextObs)
	if err != nil {
		return nil, err
	}
	return greedyIndices(values), nil
}

func (s *doubleQLearning) targets(b *TargetBundle,
	batch timestep.Batch) ([]float64, error) {
	indices, err := s.selected(b, batch)
	if err != nil {
		return nil, err
	}

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
		boots[i] = values.At(i, indices[i])
	}
	return bootstrapTargets(s.q.Transform(), batch, boots), nil
}

func (s *doubleQLearning) targetProbs(b *TargetBundle,
	batch timestep.Batch) (*mat.Dense, error) {
	indices, err := s.selected(b, batch)
	if err != nil {
		return nil, err
	}

	p, st, err := b.entry("q_targ")
	if err != nil {
		return nil, err
	}
	probs, err := s.qTarg.DistProbsWith(p, st, s.qTarg.Rng(), batch.NextObs)
	if err != nil {
		return nil, err
	}

	blocks := gatherBlocks(probs, indices, s.q.Support().NumAtoms())
	return bellmanProject(s.q.Support(), s.q.Transform(), batch, blocks)
}

func (s *doubleQLearning) targetPredictions(b *TargetBundle,
	batch timestep.Batch) ([]float64, error) {
	return qEstimates(s.qTarg, b, "q_targ", batch)
}
