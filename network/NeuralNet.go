// Package network implements neural network function approximators
// using Gorgonia computational graphs.
//
// A NeuralNet populates an ExprGraph with its forward pass but does
// not own a vm. An external vm should be used to run the forward pass
// after setting the network input with SetInput. The weights of a
// network are exposed as a named Params tree, which allows the same
// architecture to be instantiated on many graphs, with many batch
// sizes, while sharing a single canonical set of weights.
package network

import (
	G "gorgonia.org/gorgonia"
)

type NeuralNet interface {
	Graph() *G.ExprGraph
	Clone() (NeuralNet, error)
	CloneWithBatch(int) (NeuralNet, error)

	// CloneWithInputTo clones the network so that its forward pass is
	// computed from the given input nodes on the given graph. Multiple
	// input nodes are concatenated along axis before the first layer.
	CloneWithInputTo(axis int, inputs []*G.Node, graph *G.ExprGraph) (NeuralNet,
		error)

	BatchSize() int
	Features() int
	Outputs() int

	SetInput([]float64) error

	// Params returns a copy of the network weights. SetParams sets the
	// network weights to a copy of those in the argument tree, which
	// must be compatible with the network architecture.
	Params() Params
	SetParams(Params) error

	Learnables() G.Nodes
	Output() G.Value
	Prediction() *G.Node
}
