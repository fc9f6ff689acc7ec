package tdlearn

import (
	"fmt"
	"math"

	G "gorgonia.org/gorgonia"

	"github.com/samuelfneumann/gotd/utils/op"
)

// A ValueLoss scores scalar value predictions against bootstrap
// targets. Fwd adds the elementwise loss of a vector of predictions
// against a vector of targets to their graph, while Deriv computes
// the derivative of the loss with respect to a single prediction.
// Both views describe the same loss, so that a learner can
// differentiate the loss in its compute kernel and still recover
// per-transition TD errors in closed form.
type ValueLoss interface {
	Fwd(pred, target *G.Node) (*G.Node, error)
	Deriv(pred, target float64) float64
}

// Huber is the Huber loss: quadratic within kappa of the target and
// linear beyond, which keeps gradients bounded under outlier targets
type Huber struct {
	kappa float64
}

// NewHuber returns a Huber loss with threshold kappa > 0
func NewHuber(kappa float64) (*Huber, error) {
	if kappa <= 0 {
		return nil, fmt.Errorf("newhuber: threshold must be positive "+
			"\n\thave(%v)", kappa)
	}
	return &Huber{kappa: kappa}, nil
}

// Fwd adds the elementwise Huber loss of pred against target to their
// graph. With c = min(|pred - target|, kappa), the loss is
//
//	0.5*c^2 + kappa*(|pred - target| - c)
func (h *Huber) Fwd(pred, target *G.Node) (*G.Node, error) {
	diff, err := G.Sub(pred, target)
	if err != nil {
		return nil, fmt.Errorf("fwd: could not compute error: %v", err)
	}
	abs, err := G.Abs(diff)
	if err != nil {
		return nil, fmt.Errorf("fwd: could not compute absolute error: %v",
			err)
	}

	kappa := G.NewScalar(pred.Graph(), G.Float64, G.WithValue(h.kappa),
		G.WithName("huber_kappa"))
	half := G.NewScalar(pred.Graph(), G.Float64, G.WithValue(0.5),
		G.WithName("huber_half"))

	clipped, err := op.Min(abs, kappa)
	if err != nil {
		return nil, fmt.Errorf("fwd: could not clip error: %v", err)
	}

	quadratic := G.Must(G.HadamardProd(half, G.Must(G.Square(clipped))))
	linear := G.Must(G.HadamardProd(kappa, G.Must(G.Sub(abs, clipped))))

	loss, err := G.Add(quadratic, linear)
	if err != nil {
		return nil, fmt.Errorf("fwd: could not compute loss: %v", err)
	}
	return loss, nil
}

// Deriv returns the derivative of the Huber loss with respect to the
// prediction
func (h *Huber) Deriv(pred, target float64) float64 {
	diff := pred - target
	if math.Abs(diff) <= h.kappa {
		return diff
	}
	return math.Copysign(h.kappa, diff)
}

// MSE is the halved squared error loss
//
//	0.5*(pred - target)^2
//
// whose negated prediction derivative is exactly the classic TD error
// target - prediction.
type MSE struct{}

// NewMSE returns an MSE loss
func NewMSE() *MSE {
	return &MSE{}
}

// Fwd adds the elementwise halved squared error of pred against
// target to their graph
func (m *MSE) Fwd(pred, target *G.Node) (*G.Node, error) {
	diff, err := G.Sub(pred, target)
	if err != nil {
		return nil, fmt.Errorf("fwd: could not compute error: %v", err)
	}

	half := G.NewScalar(pred.Graph(), G.Float64, G.WithValue(0.5),
		G.WithName("mse_half"))

	loss, err := G.HadamardProd(half, G.Must(G.Square(diff)))
	if err != nil {
		return nil, fmt.Errorf("fwd: could not compute loss: %v", err)
	}
	return loss, nil
}

// Deriv returns the derivative of the halved squared error with
// respect to the prediction
func (m *MSE) Deriv(pred, target float64) float64 {
	return pred - target
}
