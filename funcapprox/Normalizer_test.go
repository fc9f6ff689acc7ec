package funcapprox

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

func TestNormalizerInitState(t *testing.T) {
	n, err := NewNormalizer(3)
	if err != nil {
		t.Fatalf("could not create normalizer: %v", err)
	}

	st := n.InitState()
	if len(st) != 3 {
		t.Fatalf("expected 3 state entries, got %v", len(st))
	}
	for _, mean := range st[normMeanKey].Data().([]float64) {
		if mean != 0.0 {
			t.Errorf("expected zero mean, got %v", mean)
		}
	}
	for _, variance := range st[normVarKey].Data().([]float64) {
		if variance != 1.0 {
			t.Errorf("expected unit variance, got %v", variance)
		}
	}
	if count := st[normCountKey].Data().([]float64)[0]; count != 0.0 {
		t.Errorf("expected zero count, got %v", count)
	}
}

func TestNormalizerStandardizes(t *testing.T) {
	n, err := NewNormalizer(1)
	if err != nil {
		t.Fatalf("could not create normalizer: %v", err)
	}

	st := n.InitState()
	st[normMeanKey].Data().([]float64)[0] = 1.0
	st[normVarKey].Data().([]float64)[0] = 4.0
	st[normCountKey].Data().([]float64)[0] = 10.0

	normalized, _, err := n.Normalize(st, mat.NewDense(1, 1,
		[]float64{3.0}), false)
	if err != nil {
		t.Fatalf("could not normalize: %v", err)
	}

	if math.Abs(normalized.At(0, 0)-1.0) > 1e-8 {
		t.Errorf("expected 1, got %v", normalized.At(0, 0))
	}
}

func TestNormalizerUpdatesOnlyWhenTraining(t *testing.T) {
	n, err := NewNormalizer(1)
	if err != nil {
		t.Fatalf("could not create normalizer: %v", err)
	}

	st := n.InitState()
	x := mat.NewDense(2, 1, []float64{0.0, 2.0})

	_, after, err := n.Normalize(st, x, false)
	if err != nil {
		t.Fatalf("could not normalize: %v", err)
	}
	if count := after[normCountKey].Data().([]float64)[0]; count != 0.0 {
		t.Errorf("expected an unchanged count, got %v", count)
	}

	_, after, err = n.Normalize(st, x, true)
	if err != nil {
		t.Fatalf("could not normalize: %v", err)
	}
	if count := after[normCountKey].Data().([]float64)[0]; count != 2.0 {
		t.Errorf("expected count 2, got %v", count)
	}
	if mean := after[normMeanKey].Data().([]float64)[0]; math.Abs(mean-1.0) > 1e-15 {
		t.Errorf("expected mean 1, got %v", mean)
	}

	// The input state is read, never written
	if count := st[normCountKey].Data().([]float64)[0]; count != 0.0 {
		t.Errorf("expected the input state to be unmodified, got count %v",
			count)
	}
}

func TestNormalizerRunningStatistics(t *testing.T) {
	n, err := NewNormalizer(1)
	if err != nil {
		t.Fatalf("could not create normalizer: %v", err)
	}

	st := n.InitState()
	_, st, err = n.Normalize(st, mat.NewDense(2, 1, []float64{0.0, 2.0}),
		true)
	if err != nil {
		t.Fatalf("could not normalize: %v", err)
	}
	_, st, err = n.Normalize(st, mat.NewDense(2, 1, []float64{4.0, 6.0}),
		true)
	if err != nil {
		t.Fatalf("could not normalize: %v", err)
	}

	// Mean and population variance of {0, 2, 4, 6}
	if count := st[normCountKey].Data().([]float64)[0]; count != 4.0 {
		t.Errorf("expected count 4, got %v", count)
	}
	if mean := st[normMeanKey].Data().([]float64)[0]; math.Abs(mean-3.0) > 1e-12 {
		t.Errorf("expected mean 3, got %v", mean)
	}
	if variance := st[normVarKey].Data().([]float64)[0]; math.Abs(variance-5.0) > 1e-12 {
		t.Errorf("expected variance 5, got %v", variance)
	}
}

func TestNormalizerRejectsIllegalArguments(t *testing.T) {
	n, err := NewNormalizer(2)
	if err != nil {
		t.Fatalf("could not create normalizer: %v", err)
	}

	if _, _, err := n.Normalize(n.InitState(), mat.NewDense(1, 3, nil),
		false); err == nil {
		t.Error("expected error for too many features")
	}

	st := n.InitState()
	delete(st, normCountKey)
	if _, _, err := n.Normalize(st, mat.NewDense(1, 2, nil),
		false); err == nil {
		t.Error("expected error for a foreign state tree")
	}
}

func TestFuncWithNormalizerEvolvesState(t *testing.T) {
	n, err := NewNormalizer(3)
	if err != nil {
		t.Fatalf("could not create normalizer: %v", err)
	}
	f, err := NewFunc(newTestNet(t, 3, 2, G.Ones()), n, 42)
	if err != nil {
		t.Fatalf("could not create function: %v", err)
	}

	x := mat.NewDense(2, 3, []float64{
		1.0, 2.0, 3.0,
		3.0, 2.0, 1.0,
	})

	// A training call returns evolved state without touching the
	// canonical one
	_, after, err := f.Forward(f.Params(), f.FunctionState(), f.Rng(), x,
		true)
	if err != nil {
		t.Fatalf("could not run forward pass: %v", err)
	}
	if count := after[normCountKey].Data().([]float64)[0]; count != 2.0 {
		t.Errorf("expected count 2, got %v", count)
	}
	if count := f.FunctionState()[normCountKey].Data().([]float64)[0]; count != 0.0 {
		t.Errorf("expected canonical count 0, got %v", count)
	}

	// Committing the state changes what future calls compute with
	if err := f.SetFunctionState(after); err != nil {
		t.Fatalf("could not set state: %v", err)
	}
	if count := f.FunctionState()[normCountKey].Data().([]float64)[0]; count != 2.0 {
		t.Errorf("expected canonical count 2, got %v", count)
	}
}
