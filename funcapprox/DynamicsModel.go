package funcapprox

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/gotd/network"
	"github.com/samuelfneumann/gotd/probdist"
)

// DynamicsModel is a learned model of environment transitions over a
// discrete observation space. The underlying network takes the
// concatenation of an observation and a one-hot action and predicts
// one unnormalized logit per successor observation.
type DynamicsModel struct {
	*Func
	numActions int
	numStates  int
	dist       *probdist.Categorical
	obsCodec   *probdist.OneHot
}

// NewDynamicsModel returns a dynamics model over numStates successor
// observations and numActions actions computing the forward pass of
// net. The network's input width must leave at least one observation
// feature after the one-hot action block, and its output width must
// equal numStates. The normalizer may be nil.
func NewDynamicsModel(net network.NeuralNet, numActions, numStates int,
	normalizer *Normalizer, seed uint64) (*DynamicsModel, error) {
	if numActions < 1 {
		return nil, fmt.Errorf("newdynamicsmodel: action space must "+
			"have at least one action \n\thave(%v)", numActions)
	}
	if numStates < 1 {
		return nil, fmt.Errorf("newdynamicsmodel: observation space "+
			"must have at least one state \n\thave(%v)", numStates)
	}
	if net != nil {
		if net.Features() <= numActions {
			return nil, fmt.Errorf("newdynamicsmodel: network input "+
				"leaves no observation features \n\twant(> %v) \n\thave(%v)",
				numActions, net.Features())
		}
		if net.Outputs() != numStates {
			return nil, fmt.Errorf("newdynamicsmodel: invalid number of "+
				"network outputs \n\twant(%v) \n\thave(%v)", numStates,
				net.Outputs())
		}
	}

	dist, err := probdist.NewCategorical(numStates)
	if err != nil {
		return nil, fmt.Errorf("newdynamicsmodel: %v", err)
	}
	obsCodec, err := probdist.NewOneHot(numStates)
	if err != nil {
		return nil, fmt.Errorf("newdynamicsmodel: %v", err)
	}

	f, err := NewFunc(net, normalizer, seed)
	if err != nil {
		return nil, fmt.Errorf("newdynamicsmodel: %v", err)
	}

	return &DynamicsModel{
		Func:       f,
		numActions: numActions,
		numStates:  numStates,
		dist:       dist,
		obsCodec:   obsCodec,
	}, nil
}

// NumActions returns the number of actions the model conditions on
func (d *DynamicsModel) NumActions() int {
	return d.numActions
}

// NumStates returns the number of successor observations the model
// predicts over
func (d *DynamicsModel) NumStates() int {
	return d.numStates
}

// ObsFeatures returns the number of features of a single observation
// input to the model
func (d *DynamicsModel) ObsFeatures() int {
	return d.Features() - d.numActions
}

// Copy returns an independent copy of the model, sharing no weights,
// state, kernels or randomness with the original
func (d *DynamicsModel) Copy() (*DynamicsModel, error) {
	f, err := d.Func.Copy()
	if err != nil {
		return nil, fmt.Errorf("copy: %v", err)
	}

	return &DynamicsModel{
		Func:       f,
		numActions: d.numActions,
		numStates:  d.numStates,
		dist:       d.dist,
		obsCodec:   d.obsCodec,
	}, nil
}

// DistParams returns the unnormalized successor logits of the model
// for every observation-action row pair, using the model's own weights
// and state. Actions must be one-hot rows.
func (d *DynamicsModel) DistParams(obs, actions *mat.Dense) (*mat.Dense,
	error) {
	input, err := d.concat(obs, actions)
	if err != nil {
		return nil, fmt.Errorf("distparams: %v", err)
	}

	logits, err := d.Func.Evaluate(input)
	if err != nil {
		return nil, fmt.Errorf("distparams: %v", err)
	}
	return logits, nil
}

// Sample draws a successor observation for taking one-hot action a in
// the observation s, advancing the model's random number stream. The
// successor is returned one-hot encoded.
func (d *DynamicsModel) Sample(s, a mat.Vector) (mat.Vector, error) {
	probs, err := d.probs(s, a)
	if err != nil {
		return nil, fmt.Errorf("sample: %v", err)
	}

	return d.obsCodec.Encode(d.dist.Sample(probs, d.rng)), nil
}

// Mode returns the most probable successor observation for taking
// one-hot action a in the observation s, one-hot encoded
func (d *DynamicsModel) Mode(s, a mat.Vector) (mat.Vector, error) {
	probs, err := d.probs(s, a)
	if err != nil {
		return nil, fmt.Errorf("mode: %v", err)
	}

	return d.obsCodec.Encode(d.dist.Mode(probs)), nil
}

// probs returns the successor probabilities for a single
// observation-action pair
func (d *DynamicsModel) probs(s, a mat.Vector) ([]float64, error) {
	logits, err := d.DistParams(rowDense(s), rowDense(a))
	if err != nil {
		return nil, err
	}

	return d.dist.Probs(logits.RawRowView(0)), nil
}

// concat joins observation rows and one-hot action rows into network
// input rows
func (d *DynamicsModel) concat(obs, actions *mat.Dense) (*mat.Dense, error) {
	rows, obsCols := obs.Dims()
	aRows, aCols := actions.Dims()
	if aRows != rows {
		return nil, fmt.Errorf("concat: observation and action batches "+
			"differ \n\twant(%v rows) \n\thave(%v)", rows, aRows)
	}
	if obsCols != d.ObsFeatures() || aCols != d.numActions {
		return nil, fmt.Errorf("concat: invalid input widths "+
			"\n\twant(%v + %v) \n\thave(%v + %v)", d.ObsFeatures(),
			d.numActions, obsCols, aCols)
	}

	input := mat.NewDense(rows, obsCols+aCols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < obsCols; j++ {
			input.Set(i, j, obs.At(i, j))
		}
		for j := 0; j < aCols; j++ {
			input.Set(i, obsCols+j, actions.At(i, j))
		}
	}
	return input, nil
}
