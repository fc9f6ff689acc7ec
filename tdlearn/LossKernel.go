package tdlearn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gotd/network"
	"github.com/samuelfneumann/gotd/utils/op"
)

// lossKernel is a compiled loss and gradient computation for a single
// batch size. The kernel's graph holds a clone of the online network
// together with the loss on top of its head, differentiated with
// respect to the network weights. Targets, action masks and importance
// weights enter the graph as inputs, so target computations can never
// leak gradients.
type lossKernel struct {
	net   network.NeuralNet
	vm    G.VM
	batch int

	obs     *G.Node
	mask    *G.Node
	target  *G.Node
	weights *G.Node
	probs   *G.Node

	cost    *G.Node
	costVal G.Value
}

// newLossKernel compiles the loss kernel of f for the given batch
// size. A scalar head minimizes the importance-weighted mean of loss
// over predicted values, and a distributional head minimizes the mean
// cross-entropy between target and predicted atom distributions.
func newLossKernel(f *onlineFunc, loss ValueLoss,
	batch int) (*lossKernel, error) {
	graph := G.NewGraph()

	obs := G.NewMatrix(
		graph,
		tensor.Float64,
		G.WithShape(batch, f.features),
		G.WithName("obs"),
		G.WithInit(G.Zeroes()),
	)

	net, err := f.fn.CloneNetworkTo(1, []*G.Node{obs}, graph)
	if err != nil {
		return nil, fmt.Errorf("newlosskernel: could not clone network: %v",
			err)
	}

	k := &lossKernel{net: net, batch: batch, obs: obs}

	if f.atoms == 0 {
		err = k.scalarCost(f, loss, graph)
	} else {
		err = k.distributionalCost(f, graph)
	}
	if err != nil {
		return nil, fmt.Errorf("newlosskernel: %v", err)
	}

	if _, err := G.Grad(k.cost, net.Learnables()...); err != nil {
		return nil, fmt.Errorf("newlosskernel: could not compute gradient: "+
			"%v", err)
	}
	G.Read(k.cost, &k.costVal)

	k.vm = G.NewTapeMachine(graph, G.BindDualValues(net.Learnables()...))
	return k, nil
}

// scalarCost adds the scalar branch to the graph: the predicted value
// of each transition is the head output at the taken action, and the
// cost is the importance-weighted mean of loss between predictions
// and targets.
func (k *lossKernel) scalarCost(f *onlineFunc, loss ValueLoss,
	graph *G.ExprGraph) error {
	k.mask = G.NewMatrix(
		graph,
		tensor.Float64,
		G.WithShape(k.batch, f.actions),
		G.WithName("mask"),
		G.WithInit(G.Zeroes()),
	)
	k.target = G.NewVector(
		graph,
		tensor.Float64,
		G.WithShape(k.batch),
		G.WithName("target"),
		G.WithInit(G.Zeroes()),
	)
	k.weights = G.NewVector(
		graph,
		tensor.Float64,
		G.WithShape(k.batch),
		G.WithName("weights"),
		G.WithInit(G.Zeroes()),
	)

	selected := G.Must(G.Sum(
		G.Must(G.HadamardProd(k.net.Prediction(), k.mask)), 1))

	lossVec, err := loss.Fwd(selected, k.target)
	if err != nil {
		return fmt.Errorf("scalarcost: %v", err)
	}

	k.cost = G.Must(G.Mean(G.Must(G.HadamardProd(k.weights, lossVec))))
	return nil
}

// distributionalCost adds the distributional branch to the graph: the
// head output is reshaped to one atom distribution per action, and the
// cost is the mean cross-entropy of the predicted log-probabilities
// under the target probabilities. Only the taken action's block of the
// target probabilities is nonzero, which confines the cross-entropy to
// the predicted distribution of the taken action.
func (k *lossKernel) distributionalCost(f *onlineFunc,
	graph *G.ExprGraph) error {
	k.probs = G.NewMatrix(
		graph,
		tensor.Float64,
		G.WithShape(k.batch, f.actions*f.atoms),
		G.WithName("targetprobs"),
		G.WithInit(G.Zeroes()),
	)

	shape := tensor.Shape{k.batch, f.actions, f.atoms}
	pred := G.Must(G.Reshape(k.net.Prediction(), shape))
	logProbs := op.LogSoftmax(pred, 2)
	targ := G.Must(G.Reshape(k.probs, shape))

	crossEntropy := G.Must(G.HadamardProd(targ, logProbs))
	crossEntropy = G.Must(G.Sum(crossEntropy, 2))
	crossEntropy = G.Must(G.Sum(crossEntropy, 1))
	crossEntropy = G.Must(G.Neg(crossEntropy))

	k.cost = G.Must(G.Mean(crossEntropy))
	return nil
}

// runScalar computes the gradients, cost and raw head output of the
// scalar branch with weights p on the given inputs
func (k *lossKernel) runScalar(p network.Params, obs, mask *mat.Dense,
	target, weights []float64) (network.Params, float64, *mat.Dense, error) {
	if err := k.net.SetParams(p); err != nil {
		return nil, 0, nil, fmt.Errorf("runscalar: %v", err)
	}
	k.let(k.obs, obs)
	k.let(k.mask, mask)
	k.letVec(k.target, target)
	k.letVec(k.weights, weights)
	return k.exec()
}

// runDist computes the gradients, cost and raw head output of the
// distributional branch with weights p on the given inputs
func (k *lossKernel) runDist(p network.Params, obs,
	probs *mat.Dense) (network.Params, float64, *mat.Dense, error) {
	if err := k.net.SetParams(p); err != nil {
		return nil, 0, nil, fmt.Errorf("rundist: %v", err)
	}
	k.let(k.obs, obs)
	k.let(k.probs, probs)
	return k.exec()
}

// exec runs the tape machine and collects the gradient tree, the cost
// and a copy of the raw head output
func (k *lossKernel) exec() (network.Params, float64, *mat.Dense, error) {
	if err := k.vm.RunAll(); err != nil {
		k.vm.Reset()
		return nil, 0, nil, fmt.Errorf("exec: could not run tape machine: "+
			"%v", err)
	}

	grads := make(network.Params, len(k.net.Learnables()))
	for _, learnable := range k.net.Learnables() {
		grad, err := learnable.Grad()
		if err != nil {
			k.vm.Reset()
			return nil, 0, nil, fmt.Errorf("exec: no gradient for %v: %v",
				learnable.Name(), err)
		}
		grads[learnable.Name()] = grad.(*tensor.Dense).Clone().(*tensor.Dense)
	}

	cost := k.costVal.Data().(float64)

	raw := k.net.Output().Data().([]float64)
	out := make([]float64, len(raw))
	copy(out, raw)
	pred := mat.NewDense(k.batch, k.net.Outputs(), out)

	k.vm.Reset()
	return grads, cost, pred, nil
}

// let sets a matrix input node, which must have m's shape
func (k *lossKernel) let(node *G.Node, m *mat.Dense) {
	rows, cols := m.Dims()
	if !node.Shape().Eq(tensor.Shape{rows, cols}) {
		panic(fmt.Sprintf("let: invalid shape for input %v \n\twant(%v) "+
			"\n\thave(%v, %v)", node.Name(), node.Shape(), rows, cols))
	}

	data := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		data = append(data, m.RawRowView(i)...)
	}

	if err := G.Let(node, tensor.New(tensor.WithBacking(data),
		tensor.WithShape(rows, cols))); err != nil {
		panic(fmt.Sprintf("let: could not set input %v: %v", node.Name(),
			err))
	}
}

// letVec sets a vector input node, which must have len(data) elements
func (k *lossKernel) letVec(node *G.Node, data []float64) {
	if !node.Shape().Eq(tensor.Shape{len(data)}) {
		panic(fmt.Sprintf("letvec: invalid shape for input %v \n\twant(%v) "+
			"\n\thave(%v)", node.Name(), node.Shape(), len(data)))
	}

	values := make([]float64, len(data))
	copy(values, data)

	if err := G.Let(node, tensor.New(tensor.WithBacking(values),
		tensor.WithShape(len(values)))); err != nil {
		panic(fmt.Sprintf("letvec: could not set input %v: %v", node.Name(),
			err))
	}
}
