package tdlearn

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/gotd/funcapprox"
	"github.com/samuelfneumann/gotd/regularizer"
	"github.com/samuelfneumann/gotd/solver"
	"github.com/samuelfneumann/gotd/timestep"
)

// expectedSarsa bootstraps a state-action value function from the
// target estimates at the next state, weighted by a target policy:
//
//	target = Rn + In * sum_a pi_targ(a|S') * q_targ(S', a)
type expectedSarsa struct {
	q      *funcapprox.Q
	piTarg *funcapprox.Policy
	qTarg  *funcapprox.Q
}

// NewExpectedSarsa returns a Learner training q toward its expected
// Sarsa targets under piTarg. A nil qTarg makes the learner bootstrap
// from q itself, a nil loss defaults to the Huber loss with threshold
// 1, and reg may be nil.
func NewExpectedSarsa(q *funcapprox.Q, piTarg *funcapprox.Policy,
	qTarg *funcapprox.Q, sol *solver.Solver, loss ValueLoss,
	reg regularizer.Regularizer) (*Learner, error) {
	if q == nil {
		return nil, fmt.Errorf("newexpectedsarsa: no online function given")
	}
	if piTarg == nil {
		return nil, fmt.Errorf("newexpectedsarsa: no target policy given")
	}
	if piTarg.NumActions() != q.NumActions() {
		return nil, fmt.Errorf("newexpectedsarsa: target policy actions "+
			"do not match online actions \n\twant(%v) \n\thave(%v)",
			q.NumActions(), piTarg.NumActions())
	}
	if piTarg.Features() != q.Features() {
		return nil, fmt.Errorf("newexpectedsarsa: target policy features "+
			"do not match online features \n\twant(%v) \n\thave(%v)",
			q.Features(), piTarg.Features())
	}
	if qTarg == nil {
		qTarg = q
	}
	if err := checkQPair(q, qTarg); err != nil {
		return nil, fmt.Errorf("newexpectedsarsa: %v", err)
	}

	on, err := onlineQ(q)
	if err != nil {
		return nil, fmt.Errorf("newexpectedsarsa: %v", err)
	}

	strat := &expectedSarsa{q: q, piTarg: piTarg, qTarg: qTarg}
	l, err := newLearner(on, strat, sol, loss, reg)
	if err != nil {
		return nil, fmt.Errorf("newexpectedsarsa: %v", err)
	}
	return l, nil
}

func (s *expectedSarsa) name() string {
	return "ExpectedSarsa"
}

func (s *expectedSarsa) bundle() *TargetBundle {
	b := newTargetBundle()
	b.add("q", s.q.Params(), s.q.FunctionState())
	b.add("q_targ", s.qTarg.Params(), s.qTarg.FunctionState())
	b.add("pi_targ", s.piTarg.Params(), s.piTarg.FunctionState())
	return b
}

// policyProbs evaluates the bundled target policy at the next states
func (s *expectedSarsa) policyProbs(b *TargetBundle,
	batch timestep.Batch) (*mat.Dense, error) {
	p, st, err := b.entry("pi_targ")
	if err != nil {
		return nil, err
	}
	return s.piTarg.ProbsWith(p, st, s.piTarg.Rng(), batch.NextObs)
}

func (s *expectedSarsa) targets(b *TargetBundle,
	batch timestep.Batch) ([]float64, error) {
	piProbs, err := s.policyProbs(b, batch)
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
		boots[i] = floats.Dot(piProbs.RawRowView(i), values.RawRowView(i))
	}
	return bootstrapTargets(s.q.Transform(), batch, boots), nil
}

func (s *expectedSarsa) targetProbs(b *TargetBundle,
	batch timestep.Batch) (*mat.Dense, error) {
	piProbs, err := s.policyProbs(b, batch)
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

	// Mix the per-action distributions under the target policy before
	// backing the mixture up through the Bellman map
	rows := batch.Size()
	atoms := s.q.Support().NumAtoms()
	mixed := mat.NewDense(rows, atoms, nil)
	for i := 0; i < rows; i++ {
		row := probs.RawRowView(i)
		weights := piProbs.RawRowView(i)
		for a, w := range weights {
			for k := 0; k < atoms; k++ {
				mixed.Set(i, k, mixed.At(i, k)+w*row[a*atoms+k])
			}
		}
	}
	return bellmanProject(s.q.Support(), s.q.Transform(), batch, mixed)
}

func (s *expectedSarsa) targetPredictions(b *TargetBundle,
	batch timestep.Batch) ([]float64, error) {
	return qEstimates(s.qTarg, b, "q_targ", batch)
}
