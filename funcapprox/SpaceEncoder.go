package funcapprox

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/gotd/environment"
	"github.com/samuelfneumann/gotd/probdist"
)

// SpaceEncoder maps raw vectors from an environment space into
// network inputs. Scalar discrete spaces are one-hot encoded and
// continuous spaces pass through unchanged, which is the default
// preprocessing a function approximator applies when it is built
// straight from an environment's specifications.
type SpaceEncoder struct {
	spec  environment.Spec
	codec *probdist.OneHot
}

// NewSpaceEncoder returns an encoder for the space described by spec
func NewSpaceEncoder(spec environment.Spec) (*SpaceEncoder, error) {
	var codec *probdist.OneHot
	if spec.Cardinality == environment.Discrete && spec.Shape.Len() == 1 {
		var err error
		codec, err = probdist.NewOneHot(spec.NumValues())
		if err != nil {
			return nil, fmt.Errorf("newspaceencoder: %v", err)
		}
	}

	return &SpaceEncoder{spec: spec, codec: codec}, nil
}

// Features returns the number of features of an encoded vector
func (e *SpaceEncoder) Features() int {
	if e.codec != nil {
		return e.codec.NumCategories()
	}
	return e.spec.Shape.Len()
}

// Encode returns the network input encoding of the raw vector v
func (e *SpaceEncoder) Encode(v mat.Vector) (mat.Vector, error) {
	if v.Len() != e.spec.Shape.Len() {
		return nil, fmt.Errorf("encode: invalid vector length "+
			"\n\twant(%v) \n\thave(%v)", e.spec.Shape.Len(), v.Len())
	}

	if e.codec == nil {
		return mat.VecDenseCopyOf(v), nil
	}

	value := v.AtVec(0) - e.spec.LowerBound.AtVec(0)
	index := int(value)
	if float64(index) != value || math.Signbit(value) ||
		index >= e.codec.NumCategories() {
		return nil, fmt.Errorf("encode: %v is not a value of the "+
			"discrete space [%v, %v]", v.AtVec(0),
			e.spec.LowerBound.AtVec(0), e.spec.UpperBound.AtVec(0))
	}

	return e.codec.Encode(index), nil
}

// EncodeBatch returns a matrix whose rows are the encodings of the
// argument vectors
func (e *SpaceEncoder) EncodeBatch(vs []mat.Vector) (*mat.Dense, error) {
	if len(vs) == 0 {
		return nil, fmt.Errorf("encodebatch: no vectors given")
	}

	encoded := mat.NewDense(len(vs), e.Features(), nil)
	for i, v := range vs {
		row, err := e.Encode(v)
		if err != nil {
			return nil, fmt.Errorf("encodebatch: %v", err)
		}
		for j := 0; j < row.Len(); j++ {
			encoded.Set(i, j, row.AtVec(j))
		}
	}
	return encoded, nil
}
