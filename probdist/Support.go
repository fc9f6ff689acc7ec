package probdist

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	"github.com/samuelfneumann/gotd/utils/floatutils"
)

// Support is a fixed grid of equally spaced atoms on which categorical
// value distributions are defined. A value distribution assigns a
// probability to each atom, and the expected value of the distribution
// is the probability-weighted sum of the atom values.
type Support struct {
	atoms  []float64
	bounds r1.Interval
	delta  float64
}

// NewSupport returns a support of numAtoms equally spaced atoms on
// the interval [min, max]
func NewSupport(min, max float64, numAtoms int) (*Support, error) {
	if numAtoms < 2 {
		return nil, fmt.Errorf("newsupport: support needs at least two "+
			"atoms \n\twant(>= 2) \n\thave(%v)", numAtoms)
	}
	if max <= min {
		return nil, fmt.Errorf("newsupport: illegal support interval "+
			"[%v, %v]", min, max)
	}

	delta := (max - min) / float64(numAtoms-1)
	atoms := make([]float64, numAtoms)
	for i := range atoms {
		atoms[i] = min + float64(i)*delta
	}

	return &Support{
		atoms:  atoms,
		bounds: r1.Interval{Min: min, Max: max},
		delta:  delta,
	}, nil
}

// NumAtoms returns the number of atoms in the support
func (s *Support) NumAtoms() int {
	return len(s.atoms)
}

// Bounds returns the interval spanned by the support
func (s *Support) Bounds() r1.Interval {
	return s.bounds
}

// Atoms returns a copy of the atom values of the support
func (s *Support) Atoms() []float64 {
	atoms := make([]float64, len(s.atoms))
	copy(atoms, s.atoms)

	return atoms
}

// Mean returns the expected value of the distribution that assigns
// the argument probabilities to the atoms of the support
func (s *Support) Mean(probs []float64) float64 {
	if len(probs) != len(s.atoms) {
		panic(fmt.Sprintf("mean: illegal number of probabilities "+
			"\n\twant(%v) \n\thave(%v)", len(s.atoms), len(probs)))
	}

	return floats.Dot(probs, s.atoms)
}

// Means returns the expected value of each row of probs, where each
// row holds the probabilities of one distribution over the support
func (s *Support) Means(probs *mat.Dense) (*mat.VecDense, error) {
	rows, cols := probs.Dims()
	if cols != len(s.atoms) {
		return nil, fmt.Errorf("means: illegal number of probability "+
			"columns \n\twant(%v) \n\thave(%v)", len(s.atoms), cols)
	}

	means := mat.NewVecDense(rows, nil)
	means.MulVec(probs, mat.NewVecDense(len(s.atoms), s.Atoms()))

	return means, nil
}

// Project transforms each row of probs through the affine map
//
//	atom -> shift + scale * atom
//
// and redistributes the probability mass of the transformed atoms back
// onto the support. Transformed atoms are first clipped to the bounds
// of the support, and the mass of an atom that falls between two
// support atoms is split between them in proportion to its proximity
// to each.
//
// If transform is non-nil, the atoms of the support are understood to
// hold transformed values, so each atom is mapped through
//
//	atom -> transform(shift + scale * inverse(atom))
//
// Project returns a new matrix and leaves probs unmodified. Each row
// of the result sums to the same total mass as the matching row of
// probs. In particular, a row whose scale is zero concentrates all of
// its mass at the atoms nearest to shift, which is how distributions
// are backed up through the end of an episode.
func (s *Support) Project(probs *mat.Dense, shift, scale *mat.VecDense,
	transform *ValueTransform) (*mat.Dense, error) {
	rows, cols := probs.Dims()
	if cols != len(s.atoms) {
		return nil, fmt.Errorf("project: illegal number of probability "+
			"columns \n\twant(%v) \n\thave(%v)", len(s.atoms), cols)
	}
	if shift.Len() != rows || scale.Len() != rows {
		return nil, fmt.Errorf("project: illegal number of affine "+
			"parameters \n\twant(%v) \n\thave(%v, %v)", rows, shift.Len(),
			scale.Len())
	}

	projected := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for k := 0; k < cols; k++ {
			value := s.atoms[k]
			if transform != nil {
				value = transform.Inverse(value)
			}
			value = shift.AtVec(i) + scale.AtVec(i)*value
			if transform != nil {
				value = transform.Fn(value)
			}

			s.addMass(projected, i, value, probs.At(i, k))
		}
	}

	return projected, nil
}

// addMass adds probability mass p at value to row i of out, splitting
// the mass between the two support atoms that bracket value. A NaN
// value poisons the row rather than being clipped to the support.
func (s *Support) addMass(out *mat.Dense, i int, value, p float64) {
	if math.IsNaN(value) {
		out.Set(i, 0, math.NaN())
		return
	}

	value = floatutils.ClipInterval(value, s.bounds)

	position := (value - s.bounds.Min) / s.delta
	lower := int(position)
	if lower >= len(s.atoms)-1 {
		out.Set(i, len(s.atoms)-1, out.At(i, len(s.atoms)-1)+p)
		return
	}

	upperWeight := position - float64(lower)
	out.Set(i, lower, out.At(i, lower)+p*(1-upperWeight))
	out.Set(i, lower+1, out.At(i, lower+1)+p*upperWeight)
}
