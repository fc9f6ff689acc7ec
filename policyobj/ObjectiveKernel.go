package policyobj

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gotd/network"
	"github.com/samuelfneumann/gotd/utils/op"
)

// objectiveKernel is a compiled objective and gradient computation for
// a single batch size. The kernel's graph holds a clone of the policy
// network with the negated objective on top of its logits,
// differentiated with respect to the network weights. Advantages,
// action masks and importance weights enter the graph as inputs, so
// they are constants under differentiation. The entropy bonus is part
// of the graph and therefore contributes gradients, unlike the
// snapshot-evaluated regularizers of package tdlearn.
type objectiveKernel struct {
	net   network.NeuralNet
	vm    G.VM
	batch int

	obs     *G.Node
	mask    *G.Node
	adv     *G.Node
	weights *G.Node

	cost       *G.Node
	costVal    G.Value
	entropyVal G.Value
}

// newObjectiveKernel compiles the objective kernel of pi for the given
// batch size. The kernel minimizes
//
//	-mean(W * (Adv * log pi(A|S) + beta*H(pi(.|S))))
//
// which ascends the importance-weighted policy gradient objective with
// an entropy bonus of strength beta.
func newObjectiveKernel(pi *onlinePolicy, beta float64,
	batch int) (*objectiveKernel, error) {
	graph := G.NewGraph()

	obs := G.NewMatrix(
		graph,
		tensor.Float64,
		G.WithShape(batch, pi.features),
		G.WithName("obs"),
		G.WithInit(G.Zeroes()),
	)

	net, err := pi.fn.CloneNetworkTo(1, []*G.Node{obs}, graph)
	if err != nil {
		return nil, fmt.Errorf("newobjectivekernel: could not clone "+
			"network: %v", err)
	}

	k := &objectiveKernel{net: net, batch: batch, obs: obs}

	k.mask = G.NewMatrix(
		graph,
		tensor.Float64,
		G.WithShape(batch, pi.actions),
		G.WithName("mask"),
		G.WithInit(G.Zeroes()),
	)
	k.adv = G.NewVector(
		graph,
		tensor.Float64,
		G.WithShape(batch),
		G.WithName("advantages"),
		G.WithInit(G.Zeroes()),
	)
	k.weights = G.NewVector(
		graph,
		tensor.Float64,
		G.WithShape(batch),
		G.WithName("weights"),
		G.WithInit(G.Zeroes()),
	)

	logProbs := op.LogSoftmax(net.Prediction(), 1)
	logPi := G.Must(G.Sum(G.Must(G.HadamardProd(logProbs, k.mask)), 1))

	probs := G.Must(G.Exp(logProbs))
	entropy := G.Must(G.Neg(
		G.Must(G.Sum(G.Must(G.HadamardProd(probs, logProbs)), 1))))
	G.Read(G.Must(G.Mean(entropy)), &k.entropyVal)

	score := G.Must(G.HadamardProd(k.adv, logPi))
	if beta != 0 {
		betaNode := G.NewScalar(graph, G.Float64, G.WithValue(beta),
			G.WithName("entropy_beta"))
		score = G.Must(G.Add(score,
			G.Must(G.HadamardProd(betaNode, entropy))))
	}

	k.cost = G.Must(G.Neg(
		G.Must(G.Mean(G.Must(G.HadamardProd(k.weights, score))))))

	if _, err := G.Grad(k.cost, net.Learnables()...); err != nil {
		return nil, fmt.Errorf("newobjectivekernel: could not compute "+
			"gradient: %v", err)
	}
	G.Read(k.cost, &k.costVal)

	k.vm = G.NewTapeMachine(graph, G.BindDualValues(net.Learnables()...))
	return k, nil
}

// run computes the gradients, cost and mean entropy of the objective
// with weights p on the given inputs
func (k *objectiveKernel) run(p network.Params, obs, mask *mat.Dense,
	adv, weights []float64) (network.Params, float64, float64, error) {
	if err := k.net.SetParams(p); err != nil {
		return nil, 0, 0, fmt.Errorf("run: %v", err)
	}
	k.let(k.obs, obs)
	k.let(k.mask, mask)
	k.letVec(k.adv, adv)
	k.letVec(k.weights, weights)

	if err := k.vm.RunAll(); err != nil {
		k.vm.Reset()
		return nil, 0, 0, fmt.Errorf("run: could not run tape machine: %v",
			err)
	}

	grads := make(network.Params, len(k.net.Learnables()))
	for _, learnable := range k.net.Learnables() {
		grad, err := learnable.Grad()
		if err != nil {
			k.vm.Reset()
			return nil, 0, 0, fmt.Errorf("run: no gradient for %v: %v",
				learnable.Name(), err)
		}
		grads[learnable.Name()] = grad.(*tensor.Dense).Clone().(*tensor.Dense)
	}

	cost := k.costVal.Data().(float64)
	entropy := k.entropyVal.Data().(float64)

	k.vm.Reset()
	return grads, cost, entropy, nil
}

// let sets a matrix input node, which must have m's shape
func (k *objectiveKernel) let(node *G.Node, m *mat.Dense) {
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
func (k *objectiveKernel) letVec(node *G.Node, data []float64) {
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
