// Package regularizer implements policy regularizers for TD-learning
// targets.
//
// A policy regularizer scores each transition of a batch with a
// penalty computed from a policy's action distribution, such as a
// negative entropy bonus. TD updaters subtract the penalty from their
// bootstrap targets, so that the value functions they learn account
// for the regularization the policy is trained under. A regularizer
// is always evaluated against a snapshot of the policy's weights
// taken by the updater, never against the live policy.
package regularizer

import (
	"golang.org/x/exp/rand"

	"github.com/samuelfneumann/gotd/funcapprox"
	"github.com/samuelfneumann/gotd/network"
	"github.com/samuelfneumann/gotd/timestep"
)

// Regularizer computes per-transition penalties from a policy's
// action distribution
type Regularizer interface {
	// BatchEval returns the penalty of each transition in the batch,
	// computed with the given snapshot of the regularized policy's
	// weights and function state
	BatchEval(p network.Params, st funcapprox.FunctionState,
		rng *rand.Rand, batch timestep.Batch) ([]float64, error)

	// Params returns a copy of the regularized policy's weights
	Params() network.Params

	// FunctionState returns a copy of the regularized policy's
	// function state
	FunctionState() funcapprox.FunctionState

	// Hyperparams returns the hyperparameters of the regularizer by
	// name
	Hyperparams() map[string]float64
}
