package funcapprox

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gorgonia.org/tensor"
)

const (
	normMeanKey  string = "norm/mean"
	normVarKey   string = "norm/var"
	normCountKey string = "norm/count"

	// normEpsilon keeps the standardization denominator away from 0
	normEpsilon float64 = 1e-8
)

// Normalizer standardizes observations using running per-feature mean
// and variance estimates. The estimates live in the FunctionState of
// the function that owns the normalizer rather than in the normalizer
// itself, so snapshotting or synchronizing a function carries its
// normalization statistics along with its weights.
type Normalizer struct {
	features int
}

// NewNormalizer returns a normalizer for observation vectors with the
// given number of features
func NewNormalizer(features int) (*Normalizer, error) {
	if features < 1 {
		return nil, fmt.Errorf("newnormalizer: features must be "+
			"positive \n\twant(> 0) \n\thave(%v)", features)
	}

	return &Normalizer{features: features}, nil
}

// InitState returns the state of a normalizer that has seen no data:
// zero mean, unit variance, and a zero observation count
func (n *Normalizer) InitState() FunctionState {
	variance := make([]float64, n.features)
	for i := range variance {
		variance[i] = 1.0
	}

	return FunctionState{
		normMeanKey: tensor.New(
			tensor.WithBacking(make([]float64, n.features)),
			tensor.WithShape(n.features),
		),
		normVarKey: tensor.New(
			tensor.WithBacking(variance),
			tensor.WithShape(n.features),
		),
		normCountKey: tensor.New(
			tensor.WithBacking([]float64{0.0}),
			tensor.WithShape(1),
		),
	}
}

// Normalize standardizes each row of x using the statistics in st.
// When training is true, the returned state holds statistics updated
// with the rows of x; otherwise its contents are identical to st. The
// statistics in st are used for standardization either way, and st
// itself is never modified.
func (n *Normalizer) Normalize(st FunctionState, x *mat.Dense,
	training bool) (*mat.Dense, FunctionState, error) {
	rows, cols := x.Dims()
	if cols != n.features {
		return nil, nil, fmt.Errorf("normalize: invalid number of "+
			"features \n\twant(%v) \n\thave(%v)", n.features, cols)
	}
	if err := n.InitState().CheckCompatible(st); err != nil {
		return nil, nil, fmt.Errorf("normalize: %v", err)
	}

	mean := st[normMeanKey].Data().([]float64)
	variance := st[normVarKey].Data().([]float64)

	normalized := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			normalized.Set(i, j,
				(x.At(i, j)-mean[j])/math.Sqrt(variance[j]+normEpsilon))
		}
	}

	newState := st.Clone()
	if training {
		n.update(newState, x)
	}

	return normalized, newState, nil
}

// update folds the rows of x into the running statistics in st using
// the parallel combination of the existing and the batch moments
func (n *Normalizer) update(st FunctionState, x *mat.Dense) {
	rows, _ := x.Dims()
	batch := float64(rows)

	mean := st[normMeanKey].Data().([]float64)
	variance := st[normVarKey].Data().([]float64)
	count := st[normCountKey].Data().([]float64)

	newCount := count[0] + batch
	column := make([]float64, rows)
	for j := 0; j < n.features; j++ {
		mat.Col(column, j, x)

		batchMean, batchVar := stat.MeanVariance(column, nil)
		batchM2 := 0.0
		if rows > 1 {
			batchM2 = batchVar * (batch - 1)
		}

		delta := batchMean - mean[j]
		m2 := variance[j]*count[0] + batchM2 +
			delta*delta*count[0]*batch/newCount

		mean[j] += delta * batch / newCount
		variance[j] = m2 / newCount
	}
	count[0] = newCount
}
