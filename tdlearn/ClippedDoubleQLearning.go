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

// clippedDoubleQLearning bootstraps from the most pessimistic of a
// family of target functions. Each target proposes its own greedy
// estimate of the next state and the elementwise minimum over the
// proposals is bootstrapped, so a single overestimating function
// cannot inflate the target:
//
//	target = Rn + In * min_j max_a q_targ_j(S', a)
type clippedDoubleQLearning struct {
	q     *funcapprox.Q
	qTarg []*funcapprox.Q
}

// NewClippedDoubleQLearning returns a Learner training q toward the
// minimum of the greedy estimates of at least two target functions. A
// nil loss defaults to the Huber loss with threshold 1, and reg may be
// nil.
func NewClippedDoubleQLearning(q *funcapprox.Q, qTarg []*funcapprox.Q,
	sol *solver.Solver, loss ValueLoss,
	reg regularizer.Regularizer) (*Learner, error) {
	if q == nil {
		return nil, fmt.Errorf("newclippeddoubleqlearning: no online " +
			"function given")
	}
	if len(qTarg) < 2 {
		return nil, fmt.Errorf("newclippeddoubleqlearning: clipping needs "+
			"at least two target functions \n\twant(>= 2) \n\thave(%v)",
			len(qTarg))
	}
	for i, targ := range qTarg {
		if err := checkQPair(q, targ); err != nil {
			return nil, fmt.Errorf("newclippeddoubleqlearning: target "+
				"%v: %v", i, err)
		}
	}

	on, err := onlineQ(q)
	if err != nil {
		return nil, fmt.Errorf("newclippeddoubleqlearning: %v", err)
	}

	strat := &clippedDoubleQLearning{q: q, qTarg: qTarg}
	l, err := newLearner(on, strat, sol, loss, reg)
	if err != nil {
		return nil, fmt.Errorf("newclippeddoubleqlearning: %v", err)
	}
	return l, nil
}

func (s *clippedDoubleQLearning) name() string {
	return "ClippedDoubleQLearning"
}

// key returns the bundle key of the i-th target function
func (s *clippedDoubleQLearning) key(i int) string {
	return fmt.Sprintf("q_targ/%d", i)
}

func (s *clippedDoubleQLearning) bundle() *TargetBundle {
	b := newTargetBundle()
	b.add("q", s.q.Params(), s.q.FunctionState())
	for i, targ := range s.qTarg {
		b.add(s.key(i), targ.Params(), targ.FunctionState())
	}
	return b
}

func (s *clippedDoubleQLearning) targets(b *TargetBundle,
	batch timestep.Batch) ([]float64, error) {
	boots := make([]float64, batch.Size())

	for j, targ := range s.qTarg {
		p, st, err := b.entry(s.key(j))
		if err != nil {
			return nil, err
		}
		values, err := targ.ValuesWith(p, st, targ.Rng(), batch.NextObs)
		if err != nil {
			return nil, err
		}

		for i := range boots {
			greedy, _ := floatutils.MaxSlice(values.RawRowView(i))
			if j == 0 || greedy < boots[i] {
				boots[i] = greedy
			}
		}
	}
	return bootstrapTargets(s.q.Transform(), batch, boots), nil
}

func (s *clippedDoubleQLearning) targetProbs(b *TargetBundle,
	batch timestep.Batch) (*mat.Dense, error) {
	rows := batch.Size()
	atoms := s.q.Support().NumAtoms()

	// Track, per transition, the most pessimistic greedy mean seen so
	// far and the atom block that produced it
	blocks := mat.NewDense(rows, atoms, nil)
	means := make([]float64, rows)

	for j, targ := range s.qTarg {
		p, st, err := b.entry(s.key(j))
		if err != nil {
			return nil, err
		}

		out, _, err := targ.Forward(p, st, targ.Rng(), batch.NextObs, false)
		if err != nil {
			return nil, err
		}
		values, err := targ.Values(out)
		if err != nil {
			return nil, err
		}
		probs, err := targ.DistProbs(out)
		if err != nil {
			return nil, err
		}

		for i := 0; i < rows; i++ {
			greedy, indices := floatutils.MaxSlice(values.RawRowView(i))
			if j > 0 && greedy >= means[i] {
				continue
			}

			means[i] = greedy
			a := indices[0]
			blocks.SetRow(i, probs.RawRowView(i)[a*atoms:(a+1)*atoms])
		}
	}
	return bellmanProject(s.q.Support(), s.q.Transform(), batch, blocks)
}

func (s *clippedDoubleQLearning) targetPredictions(b *TargetBundle,
	batch timestep.Batch) ([]float64, error) {
	return qEstimates(s.qTarg[0], b, s.key(0), batch)
}
