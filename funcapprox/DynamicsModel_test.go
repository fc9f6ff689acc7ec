package funcapprox

import (
	"testing"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

// newTestModel returns a dynamics model over 3 successor states and 2
// actions of 2 observation features, with the given successor logit
// biases and zero weights
func newTestModel(t *testing.T, biases []float64) *DynamicsModel {
	model, err := NewDynamicsModel(newTestNet(t, 4, 3, G.Zeroes()), 2, 3,
		nil, 42)
	if err != nil {
		t.Fatalf("could not create model: %v", err)
	}

	params := model.Params()
	copy(params["L0/b"].Data().([]float64), biases)
	if err := model.SetParams(params); err != nil {
		t.Fatalf("could not set weights: %v", err)
	}

	return model
}

func TestDynamicsModelShapes(t *testing.T) {
	model := newTestModel(t, []float64{0.0, 0.0, 0.0})

	if model.ObsFeatures() != 2 {
		t.Errorf("expected 2 observation features, got %v",
			model.ObsFeatures())
	}
	if model.NumStates() != 3 {
		t.Errorf("expected 3 states, got %v", model.NumStates())
	}
	if model.NumActions() != 2 {
		t.Errorf("expected 2 actions, got %v", model.NumActions())
	}

	logits, err := model.DistParams(
		mat.NewDense(2, 2, []float64{1.0, 0.0, 0.0, 1.0}),
		mat.NewDense(2, 2, []float64{1.0, 0.0, 0.0, 1.0}),
	)
	if err != nil {
		t.Fatalf("could not compute successor logits: %v", err)
	}
	rows, cols := logits.Dims()
	if rows != 2 || cols != 3 {
		t.Errorf("expected a 2 x 3 output, got %v x %v", rows, cols)
	}
}

func TestDynamicsModelMode(t *testing.T) {
	model := newTestModel(t, []float64{0.0, 9.0, 0.0})

	mode, err := model.Mode(
		mat.NewVecDense(2, []float64{1.0, 0.0}),
		mat.NewVecDense(2, []float64{0.0, 1.0}),
	)
	if err != nil {
		t.Fatalf("could not compute mode: %v", err)
	}

	expected := mat.NewVecDense(3, []float64{0.0, 1.0, 0.0})
	if !mat.Equal(mode, expected) {
		t.Errorf("expected %v, got %v", mat.Formatted(expected.T()),
			mat.Formatted(mode.T()))
	}
}

func TestDynamicsModelSample(t *testing.T) {
	model := newTestModel(t, []float64{-50.0, -50.0, 50.0})

	for i := 0; i < 10; i++ {
		successor, err := model.Sample(
			mat.NewVecDense(2, []float64{0.0, 1.0}),
			mat.NewVecDense(2, []float64{1.0, 0.0}),
		)
		if err != nil {
			t.Fatalf("could not sample successor: %v", err)
		}
		if successor.AtVec(2) != 1.0 {
			t.Errorf("expected successor 2, got %v",
				mat.Formatted(successor.T()))
		}
	}
}

func TestDynamicsModelRejectsIllegalArguments(t *testing.T) {
	// A network whose input is consumed entirely by the action block
	// leaves no observation features
	if _, err := NewDynamicsModel(newTestNet(t, 2, 3, G.Zeroes()), 2, 3,
		nil, 42); err == nil {
		t.Error("expected error for a network with no observation features")
	}

	if _, err := NewDynamicsModel(newTestNet(t, 4, 2, G.Zeroes()), 2, 3,
		nil, 42); err == nil {
		t.Error("expected error for an illegal head width")
	}

	model := newTestModel(t, []float64{0.0, 0.0, 0.0})
	if _, err := model.DistParams(mat.NewDense(1, 2, nil),
		mat.NewDense(2, 2, nil)); err == nil {
		t.Error("expected error for mismatched batches")
	}
	if _, err := model.DistParams(mat.NewDense(1, 3, nil),
		mat.NewDense(1, 2, nil)); err == nil {
		t.Error("expected error for illegal observation width")
	}
}
