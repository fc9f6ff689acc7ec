package funcapprox

import "github.com/samuelfneumann/gotd/network"

// FunctionState is the non-trainable state of a parametrized function,
// such as the running statistics of an observation normalizer. It has
// the same named-tree structure as network.Params so that weights and
// state can be snapshotted, structure-checked and synchronized with
// the same machinery.
//
// Unlike network weights, function state is never interpolated when
// synchronizing a target function. It is replaced outright.
type FunctionState = network.Params
