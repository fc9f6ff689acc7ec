package tdlearn

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/gotd/funcapprox"
	"github.com/samuelfneumann/gotd/probdist"
	"github.com/samuelfneumann/gotd/timestep"
)

// newTestPolicy returns a 2-action policy of 2 features whose logits
// are the given biases in every state
func newTestPolicy(t *testing.T, logits []float64) *funcapprox.Policy {
	t.Helper()

	pi, err := funcapprox.NewPolicy(newTestNet(t, 2, 2), 2, nil, 42)
	if err != nil {
		t.Fatalf("could not create policy: %v", err)
	}

	if logits != nil {
		p := pi.Params()
		copy(p["L0/b"].Data().([]float64), logits)
		if err := pi.SetParams(p); err != nil {
			t.Fatalf("could not set weights: %v", err)
		}
	}
	return pi
}

// strategyTargets computes the scalar bootstrap targets of a learner
// on the batch
func strategyTargets(t *testing.T, l *Learner,
	batch timestep.Batch) []float64 {
	t.Helper()

	targets, err := l.strat.targets(l.TargetBundle(), batch)
	if err != nil {
		t.Fatalf("could not compute targets: %v", err)
	}
	return targets
}

// checkTargets fails the test if the computed targets differ from the
// expected ones
func checkTargets(t *testing.T, expected, got []float64) {
	t.Helper()

	if len(got) != len(expected) {
		t.Fatalf("expected %v targets, got %v", len(expected), len(got))
	}
	for i, target := range expected {
		if math.Abs(got[i]-target) > 1e-12 {
			t.Errorf("target %d: expected %v, got %v", i, target, got[i])
		}
	}
}

// targetBatch returns a 2-transition batch whose second transition
// ends the episode:
//
//	s0 --a0, R=1, In=0.5--> s1    s1 --a1, R=2, In=0--> s0
func targetBatch(t *testing.T) timestep.Batch {
	t.Helper()

	batch, err := timestep.NewBatch([]timestep.Transition{
		chainTransition([]float64{1, 0}, 0, 1.0, 0.5, []float64{0, 1}, 0,
			false),
		chainTransition([]float64{0, 1}, 1, 2.0, 0.0, []float64{1, 0}, -1,
			true),
	})
	if err != nil {
		t.Fatalf("could not build batch: %v", err)
	}
	return batch
}

func TestSimpleTDTargets(t *testing.T) {
	// v_targ(s0) = 2 and v_targ(s1) = 4
	v := newScalarV(t, []float64{1, 3})
	vTarg := newScalarV(t, []float64{2, 4})

	l, err := NewSimpleTD(v, vTarg, testVanilla(t, 0.1), NewMSE(), nil)
	if err != nil {
		t.Fatalf("could not create learner: %v", err)
	}

	// 1 + 0.5*4 bootstrapped, 2 unbootstrapped at the episode end
	checkTargets(t, []float64{3.0, 2.0},
		strategyTargets(t, l, targetBatch(t)))
}

func TestQLearningTargetsGreedy(t *testing.T) {
	q := newScalarQ(t, []float64{1, 2, 3, 4})
	// q_targ(s1) = [0, 5]
	qTarg := newScalarQ(t, []float64{2, 1, 0, 5})

	l, err := NewQLearning(q, qTarg, testVanilla(t, 0.1), NewMSE(), nil)
	if err != nil {
		t.Fatalf("could not create learner: %v", err)
	}

	checkTargets(t, []float64{1.0 + 0.5*5.0, 2.0},
		strategyTargets(t, l, targetBatch(t)))
}

func TestSarsaTargets(t *testing.T) {
	q := newScalarQ(t, []float64{1, 2, 3, 4})
	// q_targ(s1) = [0, 5], and the recorded next action a0 bootstraps
	// the lower estimate
	qTarg := newScalarQ(t, []float64{2, 1, 0, 5})

	l, err := NewSarsa(q, qTarg, testVanilla(t, 0.1), NewMSE(), nil)
	if err != nil {
		t.Fatalf("could not create learner: %v", err)
	}

	checkTargets(t, []float64{1.0, 2.0},
		strategyTargets(t, l, targetBatch(t)))
}

func TestSarsaRequiresNextActions(t *testing.T) {
	q := newScalarQ(t, nil)
	l, err := NewSarsa(q, nil, testVanilla(t, 0.1), NewMSE(), nil)
	if err != nil {
		t.Fatalf("could not create learner: %v", err)
	}

	batch, err := timestep.NewBatch([]timestep.Transition{
		chainTransition([]float64{1, 0}, 0, 1.0, 0.9, []float64{0, 1}, -1,
			false),
	})
	if err != nil {
		t.Fatalf("could not build batch: %v", err)
	}
	if batch.HasNextActions() {
		t.Fatal("expected a batch without next actions")
	}

	if _, _, err := l.Update(batch); err == nil {
		t.Error("expected an error for a batch without next actions")
	}
}

func TestExpectedSarsaTargets(t *testing.T) {
	q := newScalarQ(t, []float64{1, 2, 3, 4})
	// q_targ(s1) = [0, 5]
	qTarg := newScalarQ(t, []float64{2, 1, 0, 5})

	// A uniform policy bootstraps the mean estimate
	uniform, err := NewExpectedSarsa(q, newTestPolicy(t, nil), qTarg,
		testVanilla(t, 0.1), NewMSE(), nil)
	if err != nil {
		t.Fatalf("could not create learner: %v", err)
	}
	checkTargets(t, []float64{1.0 + 0.5*2.5, 2.0},
		strategyTargets(t, uniform, targetBatch(t)))

	// Logits (0, ln 3) put probability (1/4, 3/4) on the actions
	biased, err := NewExpectedSarsa(q, newTestPolicy(t,
		[]float64{0, math.Log(3)}), qTarg, testVanilla(t, 0.1), NewMSE(),
		nil)
	if err != nil {
		t.Fatalf("could not create learner: %v", err)
	}
	checkTargets(t, []float64{1.0 + 0.5*(0.25*0.0+0.75*5.0), 2.0},
		strategyTargets(t, biased, targetBatch(t)))
}

func TestDoubleQLearningSelectsOnline(t *testing.T) {
	// The online function prefers a1 at s1, where the target function
	// scores a1 at 0 and a0 at 5. Decoupled selection bootstraps 0
	// where plain Q-learning would bootstrap 5.
	q := newScalarQ(t, []float64{1, 2, 3, 4})
	qTarg := newScalarQ(t, []float64{2, 1, 5, 0})

	double, err := NewDoubleQLearning(q, qTarg, testVanilla(t, 0.1),
		NewMSE(), nil)
	if err != nil {
		t.Fatalf("could not create learner: %v", err)
	}
	checkTargets(t, []float64{1.0, 2.0},
		strategyTargets(t, double, targetBatch(t)))

	plain, err := NewQLearning(q, qTarg, testVanilla(t, 0.1), NewMSE(), nil)
	if err != nil {
		t.Fatalf("could not create learner: %v", err)
	}
	checkTargets(t, []float64{1.0 + 0.5*5.0, 2.0},
		strategyTargets(t, plain, targetBatch(t)))
}

func TestClippedDoubleQLearningTargets(t *testing.T) {
	q := newScalarQ(t, []float64{1, 2, 3, 4})
	// Greedy estimates at s1 are 2 under the first target and 1 under
	// the second, so 1 is bootstrapped
	targ0 := newScalarQ(t, []float64{1, 0, 0, 2})
	targ1 := newScalarQ(t, []float64{3, 0, 0, 1})

	clipped, err := NewClippedDoubleQLearning(q,
		[]*funcapprox.Q{targ0, targ1}, testVanilla(t, 0.1), NewMSE(), nil)
	if err != nil {
		t.Fatalf("could not create learner: %v", err)
	}

	batch := targetBatch(t)
	got := strategyTargets(t, clipped, batch)
	checkTargets(t, []float64{1.5, 2.0}, got)

	// The clipped target can never exceed any single target's estimate
	for _, targ := range []*funcapprox.Q{targ0, targ1} {
		single, err := NewQLearning(q, targ, testVanilla(t, 0.1), NewMSE(),
			nil)
		if err != nil {
			t.Fatalf("could not create learner: %v", err)
		}
		alone := strategyTargets(t, single, batch)
		for i := range got {
			if got[i] > alone[i]+1e-12 {
				t.Errorf("target %d: clipped %v exceeds single estimate %v",
					i, got[i], alone[i])
			}
		}
	}
}

func TestClippedDoubleQLearningNeedsTwoTargets(t *testing.T) {
	q := newScalarQ(t, nil)

	if _, err := NewClippedDoubleQLearning(q, nil, testVanilla(t, 0.1),
		NewMSE(), nil); err == nil {
		t.Error("expected an error for no target functions")
	}
	if _, err := NewClippedDoubleQLearning(q,
		[]*funcapprox.Q{newScalarQ(t, nil)}, testVanilla(t, 0.1), NewMSE(),
		nil); err == nil {
		t.Error("expected an error for a single target function")
	}
}

func TestClippedDoubleQLearningBundle(t *testing.T) {
	q := newScalarQ(t, []float64{1, 2, 3, 4})
	targ0 := newScalarQ(t, []float64{1, 0, 0, 2})
	targ1 := newScalarQ(t, []float64{3, 0, 0, 1})

	l, err := NewClippedDoubleQLearning(q, []*funcapprox.Q{targ0, targ1},
		testVanilla(t, 0.1), NewMSE(), nil)
	if err != nil {
		t.Fatalf("could not create learner: %v", err)
	}

	b := l.TargetBundle()
	keys := b.Keys()
	expected := []string{"q", "q_targ/0", "q_targ/1"}
	if len(keys) != len(expected) {
		t.Fatalf("expected keys %v, got %v", expected, keys)
	}
	for i, key := range expected {
		if keys[i] != key {
			t.Errorf("key %d: expected %v, got %v", i, key, keys[i])
		}
	}

	// Each key holds its own function's weights
	p0, err := b.Params("q_targ/0")
	if err != nil {
		t.Fatalf("could not read bundle: %v", err)
	}
	p1, err := b.Params("q_targ/1")
	if err != nil {
		t.Fatalf("could not read bundle: %v", err)
	}
	if p0["L0/W"].Data().([]float64)[0] != 1 ||
		p1["L0/W"].Data().([]float64)[0] != 3 {
		t.Error("expected each target key to hold that target's weights")
	}
}

func TestTargetBundleSnapshots(t *testing.T) {
	q := newScalarQ(t, []float64{1, 2, 3, 4})
	l, err := NewQLearning(q, nil, testVanilla(t, 0.1), NewMSE(), nil)
	if err != nil {
		t.Fatalf("could not create learner: %v", err)
	}

	b := l.TargetBundle()
	keys := b.Keys()
	if len(keys) != 2 || keys[0] != "q" || keys[1] != "q_targ" {
		t.Fatalf("expected keys [q q_targ], got %v", keys)
	}
	if b.Has("reg") {
		t.Error("expected no regularizer key without a regularizer")
	}
	if len(b.Hyperparams()) != 0 {
		t.Error("expected no hyperparameters without a regularizer")
	}

	// Later weight changes must not reach into the snapshot
	setLayerWeights(t, q.Func, []float64{9, 9, 9, 9})
	p, err := b.Params("q")
	if err != nil {
		t.Fatalf("could not read bundle: %v", err)
	}
	if p["L0/W"].Data().([]float64)[0] != 1 {
		t.Error("expected the bundle to snapshot the weights")
	}

	if _, err := b.Params("pi_targ"); err == nil {
		t.Error("expected an error for an absent key")
	}
}

func TestQLearningTransformTargets(t *testing.T) {
	transform := probdist.LogTransform()

	q, err := funcapprox.NewQ(newTestNet(t, 2, 2), 2, nil, transform, nil,
		42)
	if err != nil {
		t.Fatalf("could not create function: %v", err)
	}
	qTarg, err := funcapprox.NewQ(newTestNet(t, 2, 2), 2, nil, transform,
		nil, 42)
	if err != nil {
		t.Fatalf("could not create function: %v", err)
	}

	// Biases put every target head at transform(3), so the bootstrap
	// value is 3 on the real scale
	p := qTarg.Params()
	for i := range p["L0/b"].Data().([]float64) {
		p["L0/b"].Data().([]float64)[i] = transform.Fn(3.0)
	}
	if err := qTarg.SetParams(p); err != nil {
		t.Fatalf("could not set weights: %v", err)
	}

	l, err := NewQLearning(q, qTarg, testVanilla(t, 0.1), NewMSE(), nil)
	if err != nil {
		t.Fatalf("could not create learner: %v", err)
	}

	checkTargets(t,
		[]float64{transform.Fn(1.0 + 0.5*3.0), transform.Fn(2.0)},
		strategyTargets(t, l, targetBatch(t)))
}

func TestQLearningTargetProbs(t *testing.T) {
	support, err := probdist.NewSupport(0.0, 2.0, 3)
	if err != nil {
		t.Fatalf("could not create support: %v", err)
	}

	q, err := funcapprox.NewQ(newTestNet(t, 2, 6), 2, support, nil, nil, 42)
	if err != nil {
		t.Fatalf("could not create function: %v", err)
	}
	qTarg, err := funcapprox.NewQ(newTestNet(t, 2, 6), 2, support, nil, nil,
		42)
	if err != nil {
		t.Fatalf("could not create function: %v", err)
	}

	// Action 1's distribution concentrates at the atom 2, making it
	// greedy over action 0's uniform distribution with mean 1
	p := qTarg.Params()
	copy(p["L0/b"].Data().([]float64), []float64{0, 0, 0, 0, 0, 20})
	if err := qTarg.SetParams(p); err != nil {
		t.Fatalf("could not set weights: %v", err)
	}

	l, err := NewQLearning(q, qTarg, testVanilla(t, 0.1), NewMSE(), nil)
	if err != nil {
		t.Fatalf("could not create learner: %v", err)
	}

	batch, err := timestep.NewBatch([]timestep.Transition{
		chainTransition([]float64{1, 0}, 0, 0.5, 0.5, []float64{0, 1}, -1,
			false),
	})
	if err != nil {
		t.Fatalf("could not build batch: %v", err)
	}

	probs, err := l.strat.targetProbs(l.TargetBundle(), batch)
	if err != nil {
		t.Fatalf("could not compute target distribution: %v", err)
	}

	// The greedy block's mass sits at atom 2, which the Bellman map
	// sends to 0.5 + 0.5*2 = 1.5, splitting it between atoms 1 and 2
	expected := mat.NewDense(1, 3, []float64{0.0, 0.5, 0.5})
	if !mat.EqualApprox(probs, expected, 1e-6) {
		t.Errorf("expected \n%v, got \n%v", mat.Formatted(expected),
			mat.Formatted(probs))
	}
}

func TestLearnerNames(t *testing.T) {
	q := newScalarQ(t, nil)
	v := newScalarV(t, nil)

	cases := []struct {
		name  string
		build func() (*Learner, error)
	}{
		{"SimpleTD", func() (*Learner, error) {
			return NewSimpleTD(v, nil, testVanilla(t, 0.1), nil, nil)
		}},
		{"QLearning", func() (*Learner, error) {
			return NewQLearning(q, nil, testVanilla(t, 0.1), nil, nil)
		}},
		{"Sarsa", func() (*Learner, error) {
			return NewSarsa(q, nil, testVanilla(t, 0.1), nil, nil)
		}},
		{"ExpectedSarsa", func() (*Learner, error) {
			return NewExpectedSarsa(q, newTestPolicy(t, nil), nil,
				testVanilla(t, 0.1), nil, nil)
		}},
		{"DoubleQLearning", func() (*Learner, error) {
			return NewDoubleQLearning(q, nil, testVanilla(t, 0.1), nil, nil)
		}},
		{"ClippedDoubleQLearning", func() (*Learner, error) {
			return NewClippedDoubleQLearning(q,
				[]*funcapprox.Q{newScalarQ(t, nil), newScalarQ(t, nil)},
				testVanilla(t, 0.1), nil, nil)
		}},
	}
	for _, c := range cases {
		l, err := c.build()
		if err != nil {
			t.Fatalf("%v: could not create learner: %v", c.name, err)
		}
		if l.Name() != c.name {
			t.Errorf("expected name %v, got %v", c.name, l.Name())
		}
	}
}

func TestConstructorValidation(t *testing.T) {
	q := newScalarQ(t, nil)

	if _, err := NewQLearning(nil, nil, testVanilla(t, 0.1), nil,
		nil); err == nil {
		t.Error("expected an error for a missing online function")
	}

	// 3 actions against the online function's 2
	wide, err := funcapprox.NewQ(newTestNet(t, 2, 3), 3, nil, nil, nil, 42)
	if err != nil {
		t.Fatalf("could not create function: %v", err)
	}
	if _, err := NewQLearning(q, wide, testVanilla(t, 0.1), nil,
		nil); err == nil {
		t.Error("expected an error for mismatched action counts")
	}

	// A distributional target cannot bootstrap a scalar function
	support, err := probdist.NewSupport(0.0, 1.0, 2)
	if err != nil {
		t.Fatalf("could not create support: %v", err)
	}
	dist, err := funcapprox.NewQ(newTestNet(t, 2, 4), 2, support, nil, nil,
		42)
	if err != nil {
		t.Fatalf("could not create function: %v", err)
	}
	if _, err := NewQLearning(q, dist, testVanilla(t, 0.1), nil,
		nil); err == nil {
		t.Error("expected an error for a scalar-distributional pair")
	}

	if _, err := NewExpectedSarsa(q, nil, nil, testVanilla(t, 0.1), nil,
		nil); err == nil {
		t.Error("expected an error for a missing target policy")
	}
}
