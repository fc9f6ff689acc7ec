package probdist

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// newTestSupport returns a support of 5 atoms at [0, 1, 2, 3, 4]
func newTestSupport(t *testing.T) *Support {
	support, err := NewSupport(0.0, 4.0, 5)
	if err != nil {
		t.Fatalf("could not create support: %v", err)
	}

	return support
}

func TestNewSupportRejectsIllegalArguments(t *testing.T) {
	if _, err := NewSupport(0.0, 4.0, 1); err == nil {
		t.Error("expected error for a single-atom support")
	}
	if _, err := NewSupport(1.0, 1.0, 5); err == nil {
		t.Error("expected error for an empty support interval")
	}
}

func TestSupportAtoms(t *testing.T) {
	support := newTestSupport(t)

	atoms := support.Atoms()
	expected := []float64{0.0, 1.0, 2.0, 3.0, 4.0}
	for i := range expected {
		if atoms[i] != expected[i] {
			t.Errorf("atom %d: expected %v, got %v", i, expected[i],
				atoms[i])
		}
	}

	// Mutating the returned slice should not affect the support
	atoms[0] = -100.0
	if support.Atoms()[0] != 0.0 {
		t.Error("Atoms returned a reference to the internal atom slice")
	}
}

func TestSupportMean(t *testing.T) {
	support := newTestSupport(t)

	mean := support.Mean([]float64{0.0, 0.75, 0.25, 0.0, 0.0})
	if math.Abs(mean-1.25) > 1e-15 {
		t.Errorf("expected mean 1.25, got %v", mean)
	}
}

func TestSupportMeans(t *testing.T) {
	support := newTestSupport(t)

	probs := mat.NewDense(2, 5, []float64{
		1.0, 0.0, 0.0, 0.0, 0.0,
		0.0, 0.0, 0.25, 0.5, 0.25,
	})
	means, err := support.Means(probs)
	if err != nil {
		t.Fatalf("could not compute means: %v", err)
	}

	if means.AtVec(0) != 0.0 {
		t.Errorf("expected mean 0, got %v", means.AtVec(0))
	}
	if math.Abs(means.AtVec(1)-3.0) > 1e-15 {
		t.Errorf("expected mean 3, got %v", means.AtVec(1))
	}

	if _, err := support.Means(mat.NewDense(1, 3, nil)); err == nil {
		t.Error("expected error for illegal probability columns")
	}
}

func TestSupportProjectIdentity(t *testing.T) {
	support := newTestSupport(t)

	probs := mat.NewDense(1, 5, []float64{0.1, 0.2, 0.4, 0.2, 0.1})
	shift := mat.NewVecDense(1, []float64{0.0})
	scale := mat.NewVecDense(1, []float64{1.0})

	projected, err := support.Project(probs, shift, scale, nil)
	if err != nil {
		t.Fatalf("could not project: %v", err)
	}

	for k := 0; k < 5; k++ {
		if math.Abs(projected.At(0, k)-probs.At(0, k)) > 1e-15 {
			t.Errorf("atom %d: expected %v, got %v", k, probs.At(0, k),
				projected.At(0, k))
		}
	}
}

func TestSupportProjectSplitsMass(t *testing.T) {
	support := newTestSupport(t)

	// All mass at atom value 2 maps to 0.25 + 0.5*2 = 1.25, which
	// splits 3:1 between the atoms at 1 and 2
	probs := mat.NewDense(1, 5, []float64{0.0, 0.0, 1.0, 0.0, 0.0})
	shift := mat.NewVecDense(1, []float64{0.25})
	scale := mat.NewVecDense(1, []float64{0.5})

	projected, err := support.Project(probs, shift, scale, nil)
	if err != nil {
		t.Fatalf("could not project: %v", err)
	}

	expected := []float64{0.0, 0.75, 0.25, 0.0, 0.0}
	for k := range expected {
		if math.Abs(projected.At(0, k)-expected[k]) > 1e-15 {
			t.Errorf("atom %d: expected %v, got %v", k, expected[k],
				projected.At(0, k))
		}
	}
}

func TestSupportProjectConservesMass(t *testing.T) {
	support := newTestSupport(t)

	probs := mat.NewDense(2, 5, []float64{
		0.05, 0.25, 0.4, 0.2, 0.1,
		0.3, 0.1, 0.1, 0.1, 0.4,
	})
	shift := mat.NewVecDense(2, []float64{0.37, -1.2})
	scale := mat.NewVecDense(2, []float64{0.9, 0.99})

	projected, err := support.Project(probs, shift, scale, nil)
	if err != nil {
		t.Fatalf("could not project: %v", err)
	}

	for i := 0; i < 2; i++ {
		mass := 0.0
		for k := 0; k < 5; k++ {
			mass += projected.At(i, k)
		}
		if math.Abs(mass-1.0) > 1e-12 {
			t.Errorf("row %d: expected unit mass, got %v", i, mass)
		}
	}
}

func TestSupportProjectClipsToBounds(t *testing.T) {
	support := newTestSupport(t)

	probs := mat.NewDense(1, 5, []float64{0.2, 0.2, 0.2, 0.2, 0.2})
	shift := mat.NewVecDense(1, []float64{10.0})
	scale := mat.NewVecDense(1, []float64{1.0})

	projected, err := support.Project(probs, shift, scale, nil)
	if err != nil {
		t.Fatalf("could not project: %v", err)
	}

	if math.Abs(projected.At(0, 4)-1.0) > 1e-15 {
		t.Errorf("expected all mass at the last atom, got %v",
			mat.Formatted(projected))
	}
}

func TestSupportProjectEpisodeEnd(t *testing.T) {
	support := newTestSupport(t)

	// A zero scale collapses the distribution onto the shift value
	probs := mat.NewDense(1, 5, []float64{0.2, 0.2, 0.2, 0.2, 0.2})
	shift := mat.NewVecDense(1, []float64{2.5})
	scale := mat.NewVecDense(1, []float64{0.0})

	projected, err := support.Project(probs, shift, scale, nil)
	if err != nil {
		t.Fatalf("could not project: %v", err)
	}

	expected := []float64{0.0, 0.0, 0.5, 0.5, 0.0}
	for k := range expected {
		if math.Abs(projected.At(0, k)-expected[k]) > 1e-12 {
			t.Errorf("atom %d: expected %v, got %v", k, expected[k],
				projected.At(0, k))
		}
	}

	mean := support.Mean(mat.Row(nil, 0, projected))
	if math.Abs(mean-2.5) > 1e-12 {
		t.Errorf("expected mean 2.5, got %v", mean)
	}
}

func TestSupportProjectPropagatesNaN(t *testing.T) {
	support := newTestSupport(t)

	probs := mat.NewDense(1, 5, []float64{0.0, 0.0, 1.0, 0.0, 0.0})
	shift := mat.NewVecDense(1, []float64{math.NaN()})
	scale := mat.NewVecDense(1, []float64{1.0})

	projected, err := support.Project(probs, shift, scale, nil)
	if err != nil {
		t.Fatalf("could not project: %v", err)
	}

	row := mat.Row(nil, 0, projected)
	hasNaN := false
	for _, mass := range row {
		hasNaN = hasNaN || math.IsNaN(mass)
	}
	if !hasNaN {
		t.Errorf("expected NaN mass, got %v", row)
	}
}

func TestSupportProjectWithTransform(t *testing.T) {
	transform := LogTransform()

	// Atoms hold log-scale values spanning [0, transform(10)]
	support, err := NewSupport(0.0, transform.Fn(10.0), 3)
	if err != nil {
		t.Fatalf("could not create support: %v", err)
	}

	probs := mat.NewDense(1, 3, []float64{0.5, 0.25, 0.25})
	shift := mat.NewVecDense(1, []float64{10.0})
	scale := mat.NewVecDense(1, []float64{0.0})

	projected, err := support.Project(probs, shift, scale, transform)
	if err != nil {
		t.Fatalf("could not project: %v", err)
	}

	// With a zero scale every atom maps to transform(10), the upper
	// bound of the support
	if math.Abs(projected.At(0, 2)-1.0) > 1e-12 {
		t.Errorf("expected all mass at the last atom, got %v",
			mat.Formatted(projected))
	}
}

func TestSupportProjectRejectsIllegalShapes(t *testing.T) {
	support := newTestSupport(t)

	probs := mat.NewDense(2, 5, nil)
	shift := mat.NewVecDense(2, nil)
	scale := mat.NewVecDense(2, nil)

	if _, err := support.Project(mat.NewDense(2, 4, nil), shift, scale,
		nil); err == nil {
		t.Error("expected error for illegal probability columns")
	}
	if _, err := support.Project(probs, mat.NewVecDense(3, nil), scale,
		nil); err == nil {
		t.Error("expected error for illegal shift length")
	}
	if _, err := support.Project(probs, shift, mat.NewVecDense(1, nil),
		nil); err == nil {
		t.Error("expected error for illegal scale length")
	}
}
