package probdist

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"
)

func TestNewCategoricalRejectsIllegalArguments(t *testing.T) {
	if _, err := NewCategorical(0); err == nil {
		t.Error("expected error for zero categories")
	}
}

func TestCategoricalProbs(t *testing.T) {
	dist, err := NewCategorical(2)
	if err != nil {
		t.Fatalf("could not create distribution: %v", err)
	}

	probs := dist.Probs([]float64{0.0, 0.0})
	for i, prob := range probs {
		if math.Abs(prob-0.5) > 1e-15 {
			t.Errorf("category %d: expected 0.5, got %v", i, prob)
		}
	}

	probs = dist.Probs([]float64{math.Log(1.0), math.Log(3.0)})
	if math.Abs(probs[0]-0.25) > 1e-15 {
		t.Errorf("expected 0.25, got %v", probs[0])
	}
	if math.Abs(probs[1]-0.75) > 1e-15 {
		t.Errorf("expected 0.75, got %v", probs[1])
	}
}

func TestCategoricalLogProbs(t *testing.T) {
	dist, err := NewCategorical(3)
	if err != nil {
		t.Fatalf("could not create distribution: %v", err)
	}

	logits := []float64{1.5, -0.5, 1000.0}
	probs := dist.Probs(logits)
	logProbs := dist.LogProbs(logits)

	for i := range probs {
		if math.Abs(math.Exp(logProbs[i])-probs[i]) > 1e-15 {
			t.Errorf("category %d: expected %v, got %v", i, probs[i],
				math.Exp(logProbs[i]))
		}
	}
}

func TestCategoricalSample(t *testing.T) {
	dist, err := NewCategorical(3)
	if err != nil {
		t.Fatalf("could not create distribution: %v", err)
	}

	// A degenerate distribution always samples its single category
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		if sampled := dist.Sample([]float64{0.0, 1.0, 0.0}, rng); sampled != 1 {
			t.Errorf("expected category 1, got %v", sampled)
		}
	}

	// Identical sources should generate identical samples
	first := rand.New(rand.NewSource(13))
	second := rand.New(rand.NewSource(13))
	probs := []float64{0.2, 0.5, 0.3}
	for i := 0; i < 10; i++ {
		a := dist.Sample(probs, first)
		b := dist.Sample(probs, second)
		if a != b {
			t.Errorf("sample %d: expected identical samples, got %v "+
				"and %v", i, a, b)
		}
		if a < 0 || a >= 3 {
			t.Errorf("sample %d: category out of range: %v", i, a)
		}
	}
}

func TestCategoricalMode(t *testing.T) {
	dist, err := NewCategorical(4)
	if err != nil {
		t.Fatalf("could not create distribution: %v", err)
	}

	if mode := dist.Mode([]float64{0.1, 0.2, 0.6, 0.1}); mode != 2 {
		t.Errorf("expected mode 2, got %v", mode)
	}

	// Ties break in favour of the lowest index
	if mode := dist.Mode([]float64{0.1, 0.4, 0.4, 0.1}); mode != 1 {
		t.Errorf("expected mode 1, got %v", mode)
	}
}

func TestCategoricalEntropy(t *testing.T) {
	dist, err := NewCategorical(4)
	if err != nil {
		t.Fatalf("could not create distribution: %v", err)
	}

	uniform := []float64{0.25, 0.25, 0.25, 0.25}
	if ent := dist.Entropy(uniform); math.Abs(ent-math.Log(4.0)) > 1e-15 {
		t.Errorf("expected entropy %v, got %v", math.Log(4.0), ent)
	}

	degenerate := []float64{0.0, 1.0, 0.0, 0.0}
	if ent := dist.Entropy(degenerate); ent != 0.0 {
		t.Errorf("expected entropy 0, got %v", ent)
	}
}

func TestCategoricalKL(t *testing.T) {
	dist, err := NewCategorical(2)
	if err != nil {
		t.Fatalf("could not create distribution: %v", err)
	}

	p := []float64{0.3, 0.7}
	if kl := dist.KL(p, p); math.Abs(kl) > 1e-15 {
		t.Errorf("expected zero divergence, got %v", kl)
	}

	kl := dist.KL([]float64{1.0, 0.0}, []float64{0.5, 0.5})
	if math.Abs(kl-math.Log(2.0)) > 1e-15 {
		t.Errorf("expected divergence %v, got %v", math.Log(2.0), kl)
	}
}
