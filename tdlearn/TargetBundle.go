package tdlearn

import (
	"fmt"
	"sort"

	"github.com/samuelfneumann/gotd/funcapprox"
	"github.com/samuelfneumann/gotd/network"
)

// A TargetBundle is a snapshot of every weight tree a target
// computation reads: the online function under "q" or "v", each
// bootstrap source under "q_targ", "v_targ" or "q_targ/<i>", a target
// policy under "pi_targ" and a regularized policy under "reg". A
// learner assembles a fresh bundle on every update call, so that no
// gradient can flow into a target function and no concurrent
// synchronization can change a target mid-update.
//
// Functions that a learner is not configured with contribute no key.
// Callers must not modify the returned trees.
type TargetBundle struct {
	params  map[string]network.Params
	states  map[string]funcapprox.FunctionState
	hparams map[string]float64
}

func newTargetBundle() *TargetBundle {
	return &TargetBundle{
		params: make(map[string]network.Params),
		states: make(map[string]funcapprox.FunctionState),
	}
}

// add stores the weight and state snapshot of one function. The
// bundle takes ownership of both trees.
func (b *TargetBundle) add(key string, p network.Params,
	st funcapprox.FunctionState) {
	b.params[key] = p
	b.states[key] = st
}

// setHyperparams stores the regularizer hyperparameters, taking
// ownership of the map
func (b *TargetBundle) setHyperparams(hparams map[string]float64) {
	b.hparams = hparams
}

// Keys returns the sorted keys of the functions in the bundle
func (b *TargetBundle) Keys() []string {
	keys := make([]string, 0, len(b.params))
	for key := range b.params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Has returns whether the bundle holds a snapshot under key
func (b *TargetBundle) Has(key string) bool {
	_, ok := b.params[key]
	return ok
}

// Params returns the weight tree stored under key
func (b *TargetBundle) Params(key string) (network.Params, error) {
	p, ok := b.params[key]
	if !ok {
		return nil, fmt.Errorf("params: bundle holds no weights for %v "+
			"\n\thave(%v)", key, b.Keys())
	}
	return p, nil
}

// FunctionState returns the function state stored under key
func (b *TargetBundle) FunctionState(key string) (funcapprox.FunctionState,
	error) {
	st, ok := b.states[key]
	if !ok {
		return nil, fmt.Errorf("functionstate: bundle holds no state for "+
			"%v \n\thave(%v)", key, b.Keys())
	}
	return st, nil
}

// Hyperparams returns the regularizer hyperparameters of the bundle
// by name. The map is empty when no regularizer is configured.
func (b *TargetBundle) Hyperparams() map[string]float64 {
	hparams := make(map[string]float64, len(b.hparams))
	for name, value := range b.hparams {
		hparams[name] = value
	}
	return hparams
}

// entry returns the weight and state snapshot stored under key
func (b *TargetBundle) entry(key string) (network.Params,
	funcapprox.FunctionState, error) {
	p, err := b.Params(key)
	if err != nil {
		return nil, nil, err
	}
	st, err := b.FunctionState(key)
	if err != nil {
		return nil, nil, err
	}
	return p, st, nil
}
