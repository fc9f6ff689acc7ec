// Package funcapprox provides parametrized function approximators for
// reinforcement learning: plain functions of batches of observations
// along with the typed wrappers (state value functions, state-action
// value functions, policies, dynamics models) that give their heads
// meaning.
//
// A function approximator separates what it computes from what it
// owns. The forward pass is pure, computing with whatever weights and
// function state it is handed, while the approximator itself owns the
// canonical copies of those trees together with a random number
// stream. Target functions are made with Copy and kept in step with
// SoftUpdate, so the typical learner owns one online function and one
// or more copies whose weights trail behind it.
package funcapprox

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"

	"github.com/samuelfneumann/gotd/network"
)

// Func is a parametrized function approximator. It owns a canonical
// set of weights, the function state of its state-carrying components,
// and a random number stream, while the forward pass itself is pure.
//
// A Func evaluates batches of any size. A compute kernel is compiled
// for each distinct batch size on first use and cached for the
// lifetime of the Func.
//
// A Func is not safe for concurrent use.
type Func struct {
	net        network.NeuralNet
	params     network.Params
	state      FunctionState
	normalizer *Normalizer
	rng        *rand.Rand
	kernels    map[int]*kernel
}

// NewFunc returns a Func computing the forward pass of net, seeded
// with net's current weights. The normalizer may be nil, in which case
// inputs reach the network unchanged and the Func carries an empty
// function state.
func NewFunc(net network.NeuralNet, normalizer *Normalizer,
	seed uint64) (*Func, error) {
	if net == nil {
		return nil, fmt.Errorf("newfunc: no network given")
	}
	if normalizer != nil && normalizer.features != net.Features() {
		return nil, fmt.Errorf("newfunc: normalizer features do not "+
			"match network features \n\twant(%v) \n\thave(%v)",
			net.Features(), normalizer.features)
	}

	state := FunctionState{}
	if normalizer != nil {
		state = normalizer.InitState()
	}

	return &Func{
		net:        net,
		params:     net.Params(),
		state:      state,
		normalizer: normalizer,
		rng:        rand.New(rand.NewSource(seed)),
		kernels:    make(map[int]*kernel),
	}, nil
}

// Forward evaluates the function on the rows of x with the given
// weights and function state, returning the raw output of the network
// head along with the function state after the call. When training is
// true the returned state reflects what the call learned about its
// inputs; otherwise its contents are identical to st. The statistics
// in st are what the call computes with either way.
//
// Forward is pure: p, st and the Func itself are left unmodified, and
// rng is consumed only by stochastic components, of which the fully
// connected stack has none. A failed call has no observable effect.
func (f *Func) Forward(p network.Params, st FunctionState, rng *rand.Rand,
	x *mat.Dense, training bool) (*mat.Dense, FunctionState, error) {
	rows, cols := x.Dims()
	if cols != f.net.Features() {
		return nil, nil, fmt.Errorf("forward: invalid number of features "+
			"\n\twant(%v) \n\thave(%v)", f.net.Features(), cols)
	}

	input, newState, err := f.Normalize(st, x, training)
	if err != nil {
		return nil, nil, fmt.Errorf("forward: %v", err)
	}

	k, err := f.kernel(rows)
	if err != nil {
		return nil, nil, fmt.Errorf("forward: %v", err)
	}

	out, err := k.run(p, input)
	if err != nil {
		return nil, nil, fmt.Errorf("forward: %v", err)
	}

	return out, newState, nil
}

// Normalize standardizes the rows of x through the function's
// normalizer with the statistics in st, returning the network-ready
// input and the function state after the call. A function without a
// normalizer passes x through unchanged and requires an empty state.
//
// Normalize is the preprocessing half of Forward, exposed so that a
// caller computing with the network clone of this function, rather
// than through Forward, sees the same inputs Forward would.
func (f *Func) Normalize(st FunctionState, x *mat.Dense,
	training bool) (*mat.Dense, FunctionState, error) {
	if f.normalizer != nil {
		return f.normalizer.Normalize(st, x, training)
	}

	if len(st) != 0 {
		return nil, nil, fmt.Errorf("normalize: function carries no "+
			"state \n\twant(0 entries) \n\thave(%v)", len(st))
	}
	return x, st.Clone(), nil
}

// Evaluate runs the function on x with its own weights and state. The
// function state is left untouched.
func (f *Func) Evaluate(x *mat.Dense) (*mat.Dense, error) {
	out, _, err := f.Forward(f.params, f.state, f.rng, x, false)
	return out, err
}

// Params returns a copy of the function's weights
func (f *Func) Params() network.Params {
	return f.params.Clone()
}

// SetParams replaces the function's weights with a copy of p, which
// must be compatible with the function's weight tree
func (f *Func) SetParams(p network.Params) error {
	if err := f.params.CheckCompatible(p); err != nil {
		return fmt.Errorf("setparams: %v", err)
	}

	f.params = p.Clone()
	return nil
}

// FunctionState returns a copy of the function's state
func (f *Func) FunctionState() FunctionState {
	return f.state.Clone()
}

// SetFunctionState replaces the function's state with a copy of st,
// which must be compatible with the function's state tree
func (f *Func) SetFunctionState(st FunctionState) error {
	if err := f.state.CheckCompatible(st); err != nil {
		return fmt.Errorf("setfunctionstate: %v", err)
	}

	f.state = st.Clone()
	return nil
}

// Rng returns the function's random number stream. Drawing from the
// stream advances it.
func (f *Func) Rng() *rand.Rand {
	return f.rng
}

// Features returns the number of features of a single input to the
// function
func (f *Func) Features() int {
	return f.net.Features()
}

// Outputs returns the width of the network head
func (f *Func) Outputs() int {
	return f.net.Outputs()
}

// Copy returns an independent copy of the function with the same
// weights and state. The copy owns a fresh kernel cache and a random
// number stream split from the parent's, which advances the parent
// stream.
func (f *Func) Copy() (*Func, error) {
	clone, err := f.net.CloneWithBatch(f.net.BatchSize())
	if err != nil {
		return nil, fmt.Errorf("copy: could not clone network: %v", err)
	}

	return &Func{
		net:        clone,
		params:     f.params.Clone(),
		state:      f.state.Clone(),
		normalizer: f.normalizer,
		rng:        rand.New(rand.NewSource(f.rng.Uint64())),
		kernels:    make(map[int]*kernel),
	}, nil
}

// SoftUpdate moves the function's weights toward the weights of src by
// Polyak interpolation:
//
//	params <- (1 - tau) * params + tau * srcParams
//
// The function state is not interpolated. It is replaced outright with
// a copy of src's state. The two functions must have compatible weight
// and state trees, and a failed update changes nothing.
func (f *Func) SoftUpdate(src *Func, tau float64) error {
	if tau < 0.0 || tau > 1.0 {
		return fmt.Errorf("softupdate: tau must be in [0, 1] "+
			"\n\thave(%v)", tau)
	}
	if err := f.state.CheckCompatible(src.state); err != nil {
		return fmt.Errorf("softupdate: %v", err)
	}

	newParams := f.params.Clone()
	if err := newParams.Polyak(src.params, tau); err != nil {
		return fmt.Errorf("softupdate: %v", err)
	}

	f.params = newParams
	f.state = src.state.Clone()
	return nil
}

// HardUpdate replaces the function's weights and state with copies of
// src's. The two functions must have compatible weight and state
// trees.
func (f *Func) HardUpdate(src *Func) error {
	if err := f.params.CheckCompatible(src.params); err != nil {
		return fmt.Errorf("hardupdate: %v", err)
	}
	if err := f.state.CheckCompatible(src.state); err != nil {
		return fmt.Errorf("hardupdate: %v", err)
	}

	f.params = src.params.Clone()
	f.state = src.state.Clone()
	return nil
}

// CloneNetworkTo clones the function's network architecture so that
// its forward pass is computed from the given input nodes on graph.
// The clone shares no graph with the function and its weights are
// unspecified until set with SetParams.
func (f *Func) CloneNetworkTo(axis int, inputs []*G.Node,
	graph *G.ExprGraph) (network.NeuralNet, error) {
	return f.net.CloneWithInputTo(axis, inputs, graph)
}

// kernel returns the compute kernel for the given batch size,
// compiling and caching it on first use
func (f *Func) kernel(batch int) (*kernel, error) {
	if k, ok := f.kernels[batch]; ok {
		return k, nil
	}

	clone, err := f.net.CloneWithBatch(batch)
	if err != nil {
		return nil, fmt.Errorf("kernel: could not compile kernel for "+
			"batch size %v: %v", batch, err)
	}

	k := &kernel{net: clone, vm: G.NewTapeMachine(clone.Graph())}
	f.kernels[batch] = k
	return k, nil
}

// kernel is a compiled forward pass for a single batch size
type kernel struct {
	net network.NeuralNet
	vm  G.VM
}

// run evaluates the kernel's network on input x with weights p
func (k *kernel) run(p network.Params, x *mat.Dense) (*mat.Dense, error) {
	if err := k.net.SetParams(p); err != nil {
		return nil, err
	}

	rows, cols := x.Dims()
	data := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		data = append(data, x.RawRowView(i)...)
	}
	if err := k.net.SetInput(data); err != nil {
		return nil, err
	}

	if err := k.vm.RunAll(); err != nil {
		k.vm.Reset()
		return nil, fmt.Errorf("run: could not run tape machine: %v", err)
	}
	k.vm.Reset()

	raw := k.net.Output().Data().([]float64)
	out := make([]float64, len(raw))
	copy(out, raw)

	return mat.NewDense(rows, k.net.Outputs(), out), nil
}

// rowDense adapts a single observation vector into a 1-row batch
func rowDense(v mat.Vector) *mat.Dense {
	row := mat.NewDense(1, v.Len(), nil)
	for j := 0; j < v.Len(); j++ {
		row.Set(0, j, v.AtVec(j))
	}
	return row
}
