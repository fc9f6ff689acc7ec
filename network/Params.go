package network

import (
	"fmt"
	"math"
	"sort"

	"gorgonia.org/tensor"
)

// Params is a named tree of network weights. Keys identify learnable
// tensors by the layer that owns them, e.g. L0/W and L0/b for the
// weights and bias of the first layer. Two Params are compatible when
// they hold the same keys with the same shapes, in which case they
// describe weights for the same network architecture.
//
// Params is the currency of weight synchronization: target networks
// are kept in step with their online counterparts by interpolating
// between compatible Params.
type Params map[string]*tensor.Dense

// Names returns the sorted names of all weights in the tree
func (p Params) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the tree. The copy shares no storage
// with the original.
func (p Params) Clone() Params {
	cloned := make(Params, len(p))
	for name, weights := range p {
		cloned[name] = weights.Clone().(*tensor.Dense)
	}
	return cloned
}

// CheckCompatible returns an error describing the first structural
// difference between p and other, or nil if the two trees hold the
// same keys with the same shapes.
func (p Params) CheckCompatible(other Params) error {
	if len(p) != len(other) {
		return fmt.Errorf("checkcompatible: different number of weights "+
			"\n\twant(%v) \n\thave(%v)", len(p), len(other))
	}

	for _, name := range p.Names() {
		weights, ok := other[name]
		if !ok {
			return fmt.Errorf("checkcompatible: no weights named %v", name)
		}
		if !p[name].Shape().Eq(weights.Shape()) {
			return fmt.Errorf("checkcompatible: weights %v have wrong shape "+
				"\n\twant(%v) \n\thave(%v)", name, p[name].Shape(),
				weights.Shape())
		}
	}
	return nil
}

// Polyak sets each weight in the tree to a Polyak average between its
// existing value and the value of the same weight in src:
//
//	p <- (1 - tau) * p + tau * src
//
// With tau = 1, the tree becomes a copy of src. With tau = 0, the
// tree is unchanged. The trees must be compatible.
func (p Params) Polyak(src Params, tau float64) error {
	if err := p.CheckCompatible(src); err != nil {
		return fmt.Errorf("polyak: %v", err)
	}

	for name := range p {
		weights, err := p[name].MulScalar(1-tau, true)
		if err != nil {
			return fmt.Errorf("polyak: could not scale %v: %v", name, err)
		}

		srcWeights, err := src[name].MulScalar(tau, true)
		if err != nil {
			return fmt.Errorf("polyak: could not scale source %v: %v", name,
				err)
		}

		newWeights, err := weights.Add(srcWeights)
		if err != nil {
			return fmt.Errorf("polyak: could not average %v: %v", name, err)
		}
		p[name] = newWeights
	}
	return nil
}

// AllFinite returns whether every weight in the tree is finite, that
// is, neither NaN nor an infinity.
func (p Params) AllFinite() bool {
	for _, weights := range p {
		for _, value := range weights.Data().([]float64) {
			if math.IsNaN(value) || math.IsInf(value, 0) {
				return false
			}
		}
	}
	return true
}

// ZerosLike returns a new tree with the same structure as p and every
// weight set to 0
func (p Params) ZerosLike() Params {
	zeroed := make(Params, len(p))
	for name, weights := range p {
		zeroed[name] = tensor.New(
			tensor.Of(tensor.Float64),
			tensor.WithShape(weights.Shape()...),
		)
	}
	return zeroed
}
