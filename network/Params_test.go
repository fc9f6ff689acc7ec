package network

import (
	"math"
	"testing"

	"gorgonia.org/tensor"
)

// newTestParams returns a two-leaf tree with known weights
func newTestParams() Params {
	return Params{
		"L0/W": tensor.New(
			tensor.WithShape(2, 2),
			tensor.WithBacking([]float64{1.0, 2.0, 3.0, 4.0}),
		),
		"L0/b": tensor.New(
			tensor.WithShape(2),
			tensor.WithBacking([]float64{0.5, -0.5}),
		),
	}
}

// TestParamsCloneIsDisjoint ensures that modifying a clone leaves the
// original tree unchanged
func TestParamsCloneIsDisjoint(t *testing.T) {
	params := newTestParams()
	cloned := params.Clone()

	cloned["L0/W"].Set(0, 100.0)

	if params["L0/W"].Data().([]float64)[0] != 1.0 {
		t.Error("modifying a cloned tree changed the original weights")
	}
}

// TestParamsPolyakEndpoints checks that a Polyak average with tau = 0
// leaves the tree unchanged and with tau = 1 copies the source tree
// exactly, bit for bit.
func TestParamsPolyakEndpoints(t *testing.T) {
	src := Params{
		"L0/W": tensor.New(
			tensor.WithShape(2, 2),
			tensor.WithBacking([]float64{-1.0, 0.25, 1.0 / 3.0, 7.5}),
		),
		"L0/b": tensor.New(
			tensor.WithShape(2),
			tensor.WithBacking([]float64{0.1, 0.2}),
		),
	}

	unchanged := newTestParams()
	if err := unchanged.Polyak(src, 0.0); err != nil {
		t.Fatal(err)
	}
	for name, weights := range newTestParams() {
		for i, value := range weights.Data().([]float64) {
			if unchanged[name].Data().([]float64)[i] != value {
				t.Errorf("tau = 0 changed %v[%v]", name, i)
			}
		}
	}

	replaced := newTestParams()
	if err := replaced.Polyak(src, 1.0); err != nil {
		t.Fatal(err)
	}
	for name, weights := range src {
		for i, value := range weights.Data().([]float64) {
			if replaced[name].Data().([]float64)[i] != value {
				t.Errorf("tau = 1 did not copy %v[%v]: want %v have %v",
					name, i, value, replaced[name].Data().([]float64)[i])
			}
		}
	}
}

// TestParamsPolyakInterpolates checks the Polyak average at an
// intermediate tau
func TestParamsPolyakInterpolates(t *testing.T) {
	params := newTestParams()
	src := params.ZerosLike()

	if err := params.Polyak(src, 0.5); err != nil {
		t.Fatal(err)
	}

	expected := []float64{0.5, 1.0, 1.5, 2.0}
	for i, value := range params["L0/W"].Data().([]float64) {
		if math.Abs(value-expected[i]) > 1e-14 {
			t.Errorf("tau = 0.5: want %v have %v at index %v", expected[i],
				value, i)
		}
	}
}

// TestParamsCheckCompatible ensures structural mismatches are caught
func TestParamsCheckCompatible(t *testing.T) {
	params := newTestParams()

	if err := params.CheckCompatible(newTestParams()); err != nil {
		t.Errorf("identical trees flagged incompatible: %v", err)
	}

	missing := newTestParams()
	delete(missing, "L0/b")
	if err := params.CheckCompatible(missing); err == nil {
		t.Error("tree with missing weights flagged compatible")
	}

	renamed := newTestParams()
	renamed["L1/W"] = renamed["L0/W"]
	delete(renamed, "L0/W")
	if err := params.CheckCompatible(renamed); err == nil {
		t.Error("tree with renamed weights flagged compatible")
	}

	reshaped := newTestParams()
	reshaped["L0/b"] = tensor.New(
		tensor.WithShape(3),
		tensor.WithBacking([]float64{1.0, 2.0, 3.0}),
	)
	if err := params.CheckCompatible(reshaped); err == nil {
		t.Error("tree with reshaped weights flagged compatible")
	}

	if err := params.Polyak(missing, 0.5); err == nil {
		t.Error("polyak between incompatible trees did not fail")
	}
}

// TestParamsAllFinite checks NaN and infinity detection
func TestParamsAllFinite(t *testing.T) {
	params := newTestParams()
	if !params.AllFinite() {
		t.Error("finite tree flagged non-finite")
	}

	params["L0/W"].Set(2, math.NaN())
	if params.AllFinite() {
		t.Error("tree containing NaN flagged finite")
	}

	params = newTestParams()
	params["L0/b"].Set(0, math.Inf(-1))
	if params.AllFinite() {
		t.Error("tree containing -Inf flagged finite")
	}
}

// TestParamsZerosLike checks structure and contents of a zeroed tree
func TestParamsZerosLike(t *testing.T) {
	params := newTestParams()
	zeroed := params.ZerosLike()

	if err := params.CheckCompatible(zeroed); err != nil {
		t.Errorf("zeroed tree incompatible with original: %v", err)
	}
	for name, weights := range zeroed {
		for i, value := range weights.Data().([]float64) {
			if value != 0.0 {
				t.Errorf("%v[%v] not zeroed: have %v", name, i, value)
			}
		}
	}
}
