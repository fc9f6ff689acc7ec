package probdist

import "math"

// ValueTransform is a pair of inverse monotone maps used to learn
// value functions in a transformed space. Predictions and targets are
// computed through Fn, and Inverse recovers values on the original
// scale, so bootstrapped targets take the form
//
//	Fn(reward + discount * Inverse(prediction))
//
// Fn and Inverse must be inverses of one another.
type ValueTransform struct {
	Fn      func(float64) float64
	Inverse func(float64) float64
}

// LogTransform returns a transform that compresses values
// logarithmically while preserving their sign. It is useful when the
// magnitude of returns varies over many orders of magnitude.
func LogTransform() *ValueTransform {
	return &ValueTransform{
		Fn: func(x float64) float64 {
			return sign(x) * math.Log(1+math.Abs(x))
		},
		Inverse: func(x float64) float64 {
			return sign(x) * (math.Exp(math.Abs(x)) - 1)
		},
	}
}

func sign(x float64) float64 {
	if x < 0 {
		return -1
	}

	return 1
}
