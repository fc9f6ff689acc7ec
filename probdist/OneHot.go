package probdist

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// OneHot encodes category indices as one-hot vectors and decodes
// one-hot vectors back into category indices
type OneHot struct {
	n int
}

// NewOneHot returns a one-hot codec for n categories
func NewOneHot(n int) (*OneHot, error) {
	if n < 1 {
		return nil, fmt.Errorf("newonehot: categories must be "+
			"positive \n\twant(> 0) \n\thave(%v)", n)
	}

	return &OneHot{n: n}, nil
}

// NumCategories returns the number of categories of the codec
func (o *OneHot) NumCategories() int {
	return o.n
}

// Encode returns the one-hot encoding of category index i
func (o *OneHot) Encode(i int) *mat.VecDense {
	if i < 0 || i >= o.n {
		panic(fmt.Sprintf("encode: category index out of range "+
			"\n\twant(< %v) \n\thave(%v)", o.n, i))
	}

	encoded := mat.NewVecDense(o.n, nil)
	encoded.SetVec(i, 1.0)

	return encoded
}

// EncodeBatch returns a matrix whose rows are the one-hot encodings
// of the argument category indices
func (o *OneHot) EncodeBatch(indices []int) *mat.Dense {
	encoded := mat.NewDense(len(indices), o.n, nil)
	for row, i := range indices {
		if i < 0 || i >= o.n {
			panic(fmt.Sprintf("encodebatch: category index out of range "+
				"\n\twant(< %v) \n\thave(%v)", o.n, i))
		}
		encoded.Set(row, i, 1.0)
	}

	return encoded
}

// Decode returns the category index encoded by the one-hot vector v
func (o *OneHot) Decode(v mat.Vector) (int, error) {
	if v.Len() != o.n {
		return -1, fmt.Errorf("decode: illegal vector length "+
			"\n\twant(%v) \n\thave(%v)", o.n, v.Len())
	}

	index := -1
	for i := 0; i < v.Len(); i++ {
		switch v.AtVec(i) {
		case 0.0:

		case 1.0:
			if index >= 0 {
				return -1, fmt.Errorf("decode: vector is not one-hot")
			}
			index = i

		default:
			return -1, fmt.Errorf("decode: vector is not one-hot")
		}
	}
	if index < 0 {
		return -1, fmt.Errorf("decode: vector is not one-hot")
	}

	return index, nil
}
