// Package tdlearn implements temporal-difference learning of value
// functions.
//
// A Learner owns the gradient-descent half of TD learning: it clips
// importance weights, folds an optional policy regularizer into its
// targets, differentiates the loss between predictions and targets
// with respect to the online function's weights, and applies the
// gradients through a solver. What it bootstraps toward is supplied
// by a target-construction strategy chosen at creation, one per
// classic TD variant. Every function a strategy reads is snapshotted
// into a TargetBundle at the start of each update, so targets are
// constants under differentiation.
//
// Learners support both scalar and distributional value functions.
// A scalar function minimizes a ValueLoss between predicted values
// and bootstrap targets, while a distributional function minimizes
// the cross-entropy between its predicted atom distributions and the
// target distribution after a Bellman projection onto its support.
package tdlearn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/gotd/funcapprox"
	"github.com/samuelfneumann/gotd/network"
	"github.com/samuelfneumann/gotd/probdist"
	"github.com/samuelfneumann/gotd/regularizer"
	"github.com/samuelfneumann/gotd/solver"
	"github.com/samuelfneumann/gotd/timestep"
	"github.com/samuelfneumann/gotd/utils/floatutils"
)

// Importance weights are clipped to this interval before they reach
// the loss, bounding the variance that extreme sampling ratios can
// inject into an update
const (
	minImportanceWeight = 0.1
	maxImportanceWeight = 10.0
)

// targeter constructs bootstrap targets. Implementations distinguish
// the TD variants: which function evaluates the next state, which
// chooses the action there, and how multiple estimates combine. All
// reads go through the bundle the targeter itself assembled, never
// through the live functions.
type targeter interface {
	name() string

	// bundle snapshots every function the targeter reads
	bundle() *TargetBundle

	// targets returns the scalar bootstrap target of each transition
	// on the online function's transform scale
	targets(b *TargetBundle, batch timestep.Batch) ([]float64, error)

	// targetProbs returns the target atom distribution of each
	// transition, projected onto the online function's support
	targetProbs(b *TargetBundle, batch timestep.Batch) (*mat.Dense, error)

	// targetPredictions returns the bootstrap source's own estimate
	// of each transition's current state, for the drift metric
	targetPredictions(b *TargetBundle, batch timestep.Batch) ([]float64,
		error)
}

// onlineFunc is the learner's view of the function being trained: the
// bare function together with its head geometry
type onlineFunc struct {
	fn        *funcapprox.Func
	features  int
	actions   int
	atoms     int
	support   *probdist.Support
	transform *probdist.ValueTransform
	atomDist  *probdist.Categorical
	useAction bool
}

// onlineQ adapts a state-action value function for training
func onlineQ(q *funcapprox.Q) (*onlineFunc, error) {
	on := &onlineFunc{
		fn:        q.Func,
		features:  q.Features(),
		actions:   q.NumActions(),
		support:   q.Support(),
		transform: q.Transform(),
		useAction: true,
	}
	if q.Distributional() {
		on.atoms = q.Support().NumAtoms()

		var err error
		on.atomDist, err = probdist.NewCategorical(on.atoms)
		if err != nil {
			return nil, err
		}
	}
	return on, nil
}

// onlineV adapts a state value function for training. A state value
// function behaves like a state-action value function over a single
// action that every transition takes.
func onlineV(v *funcapprox.V) (*onlineFunc, error) {
	on := &onlineFunc{
		fn:        v.Func,
		features:  v.Features(),
		actions:   1,
		support:   v.Support(),
		transform: v.Transform(),
		useAction: false,
	}
	if v.Distributional() {
		on.atoms = v.Support().NumAtoms()

		var err error
		on.atomDist, err = probdist.NewCategorical(on.atoms)
		if err != nil {
			return nil, err
		}
	}
	return on, nil
}

// real maps a value from the transform scale to the real scale
func (o *onlineFunc) real(value float64) float64 {
	if o.transform == nil {
		return value
	}
	return o.transform.Inverse(value)
}

// Gradients packages everything one gradient computation produces:
// the gradient tree, the function state after the forward pass, the
// update's metrics, and the per-transition TD errors
type Gradients struct {
	Grads         network.Params
	FunctionState funcapprox.FunctionState
	Metrics       map[string]float64
	TDError       []float64
}

// Learner updates a value function toward the bootstrap targets of
// one TD variant. A Learner is not safe for concurrent use, and no
// two updates may run against the same online function at once.
type Learner struct {
	on      *onlineFunc
	strat   targeter
	loss    ValueLoss
	reg     regularizer.Regularizer
	sol     *solver.Solver
	state   *solver.State
	kernels map[int]*lossKernel
}

// newLearner returns a Learner training on's weights with the given
// strategy. A nil loss defaults to the Huber loss with threshold 1.
func newLearner(on *onlineFunc, strat targeter, sol *solver.Solver,
	loss ValueLoss, reg regularizer.Regularizer) (*Learner, error) {
	if sol == nil || sol.Method == nil {
		return nil, fmt.Errorf("no solver given")
	}

	if loss == nil {
		var err error
		loss, err = NewHuber(1.0)
		if err != nil {
			return nil, err
		}
	}

	return &Learner{
		on:      on,
		strat:   strat,
		loss:    loss,
		reg:     reg,
		sol:     sol,
		state:   sol.Init(on.fn.Params()),
		kernels: make(map[int]*lossKernel),
	}, nil
}

// Name returns the name of the learner's target-construction strategy
func (l *Learner) Name() string {
	return l.strat.name()
}

// TargetBundle snapshots every function the learner's next update
// would read targets from, including the regularized policy when a
// regularizer is configured
func (l *Learner) TargetBundle() *TargetBundle {
	b := l.strat.bundle()
	if l.reg != nil {
		b.add("reg", l.reg.Params(), l.reg.FunctionState())
		b.setHyperparams(l.reg.Hyperparams())
	}
	return b
}

// GradsAndMetrics computes the gradients of the learner's loss on the
// batch, without applying them. Nothing of the learner's mutable
// state changes, so splitting an update into GradsAndMetrics followed
// by UpdateFromGrads produces exactly the parameters Update would.
func (l *Learner) GradsAndMetrics(batch timestep.Batch) (*Gradients, error) {
	if err := batch.Validate(); err != nil {
		return nil, fmt.Errorf("gradsandmetrics: %v", err)
	}
	if batch.Features() != l.on.features {
		return nil, fmt.Errorf("gradsandmetrics: invalid number of state "+
			"features \n\twant(%v) \n\thave(%v)", l.on.features,
			batch.Features())
	}
	if l.on.useAction && batch.ActionDims() != l.on.actions {
		return nil, fmt.Errorf("gradsandmetrics: invalid number of actions "+
			"\n\twant(%v) \n\thave(%v)", l.on.actions, batch.ActionDims())
	}

	b := l.TargetBundle()
	rows := batch.Size()

	weights := clipWeights(batch)

	// The regularizer's penalty becomes a bonus on the target
	bonus := make([]float64, rows)
	if l.reg != nil {
		p, st, err := b.entry("reg")
		if err != nil {
			return nil, fmt.Errorf("gradsandmetrics: %v", err)
		}
		penalties, err := l.reg.BatchEval(p, st, l.on.fn.Rng(), batch)
		if err != nil {
			return nil, fmt.Errorf("gradsandmetrics: %v", err)
		}
		for i, penalty := range penalties {
			bonus[i] = -penalty
		}
	}

	input, newState, err := l.on.fn.Normalize(l.on.fn.FunctionState(),
		batch.Obs, true)
	if err != nil {
		return nil, fmt.Errorf("gradsandmetrics: %v", err)
	}

	k, err := l.kernel(rows)
	if err != nil {
		return nil, fmt.Errorf("gradsandmetrics: %v", err)
	}

	params := l.on.fn.Params()

	var grads network.Params
	var cost float64
	var preds, targets []float64

	if l.on.atoms == 0 {
		targets, err = l.strat.targets(b, batch)
		if err != nil {
			return nil, fmt.Errorf("gradsandmetrics: %v", err)
		}
		floats.Add(targets, bonus)

		mask := l.mask(batch)
		var raw *mat.Dense
		grads, cost, raw, err = k.runScalar(params, input, mask, targets,
			weights)
		if err != nil {
			return nil, fmt.Errorf("gradsandmetrics: %v", err)
		}
		preds = selectByMask(raw, mask)
	} else {
		probs, err := l.strat.targetProbs(b, batch)
		if err != nil {
			return nil, fmt.Errorf("gradsandmetrics: %v", err)
		}
		if l.reg != nil {
			probs, err = l.on.support.Project(probs,
				mat.NewVecDense(rows, bonus), ones(rows), l.on.transform)
			if err != nil {
				return nil, fmt.Errorf("gradsandmetrics: %v", err)
			}
		}

		var raw *mat.Dense
		grads, cost, raw, err = k.runDist(params, input,
			l.expandProbs(probs, batch))
		if err != nil {
			return nil, fmt.Errorf("gradsandmetrics: %v", err)
		}
		preds = l.predictedMeans(raw, batch)
		targets = l.targetMeans(probs)
	}

	tdError := make([]float64, rows)
	for i := range tdError {
		tdError[i] = -l.loss.Deriv(preds[i], targets[i])
	}

	targPreds, err := l.strat.targetPredictions(b, batch)
	if err != nil {
		return nil, fmt.Errorf("gradsandmetrics: %v", err)
	}
	drift := make([]float64, rows)
	for i := range drift {
		drift[i] = -l.loss.Deriv(targPreds[i], preds[i])
	}

	name := l.Name()
	metrics := map[string]float64{
		name + "/loss":          cost,
		name + "/td_error":      weightedMean(weights, tdError),
		name + "/td_error_targ": weightedMean(weights, drift),
		name + "/grads_max":     gradsMax(grads),
		name + "/grads_norm":    gradsNorm(grads),
	}

	return &Gradients{
		Grads:         grads,
		FunctionState: newState,
		Metrics:       metrics,
		TDError:       tdError,
	}, nil
}

// Update computes the gradients of the learner's loss on the batch
// and applies them through the solver, committing the new weights,
// function state and optimizer state. An update either completes or
// changes nothing: non-finite gradients and structural mismatches
// abort before any commit.
func (l *Learner) Update(batch timestep.Batch) (map[string]float64,
	[]float64, error) {
	result, err := l.GradsAndMetrics(batch)
	if err != nil {
		return nil, nil, fmt.Errorf("update: %v", err)
	}

	if err := l.UpdateFromGrads(result.Grads, result.FunctionState); err != nil {
		return nil, nil, fmt.Errorf("update: %v", err)
	}
	return result.Metrics, result.TDError, nil
}

// UpdateFromGrads applies externally computed gradients through the
// learner's solver, committing the new weights, the given function
// state and the next optimizer state. Gradients with any non-finite
// value are rejected before anything changes.
func (l *Learner) UpdateFromGrads(grads network.Params,
	st funcapprox.FunctionState) error {
	if !grads.AllFinite() {
		return fmt.Errorf("updatefromgrads: non-finite gradient, " +
			"parameters unchanged")
	}

	params := l.on.fn.Params()
	newParams, newState, err := l.sol.Step(params, grads, l.state)
	if err != nil {
		return fmt.Errorf("updatefromgrads: %v", err)
	}

	if err := l.on.fn.SetFunctionState(st); err != nil {
		return fmt.Errorf("updatefromgrads: %v", err)
	}
	if err := l.on.fn.SetParams(newParams); err != nil {
		return fmt.Errorf("updatefromgrads: %v", err)
	}
	l.state = newState
	return nil
}

// TDError returns the TD error of each transition in the batch under
// the learner's current weights, without updating anything
func (l *Learner) TDError(batch timestep.Batch) ([]float64, error) {
	result, err := l.GradsAndMetrics(batch)
	if err != nil {
		return nil, fmt.Errorf("tderror: %v", err)
	}
	return result.TDError, nil
}

// Optimizer returns the learner's solver
func (l *Learner) Optimizer() *solver.Solver {
	return l.sol
}

// SetOptimizer replaces the learner's solver, keeping the current
// optimizer state. The new solver must use the same state structure
// as the current one.
func (l *Learner) SetOptimizer(sol *solver.Solver) error {
	if sol == nil || sol.Method == nil {
		return fmt.Errorf("setoptimizer: no solver given")
	}
	if err := l.state.CheckCompatible(sol.Slots(),
		l.on.fn.Params()); err != nil {
		return fmt.Errorf("setoptimizer: %v", err)
	}

	l.sol = sol
	return nil
}

// OptimizerState returns a copy of the learner's optimizer state
func (l *Learner) OptimizerState() *solver.State {
	return l.state.Clone()
}

// SetOptimizerState replaces the learner's optimizer state with a
// copy of st, which must match the solver and the online function's
// weight tree
func (l *Learner) SetOptimizerState(st *solver.State) error {
	if st == nil {
		return fmt.Errorf("setoptimizerstate: no state given")
	}
	if err := st.CheckCompatible(l.sol.Slots(),
		l.on.fn.Params()); err != nil {
		return fmt.Errorf("setoptimizerstate: %v", err)
	}

	l.state = st.Clone()
	return nil
}

// kernel returns the loss kernel for the given batch size, compiling
// and caching it on first use
func (l *Learner) kernel(batch int) (*lossKernel, error) {
	if k, ok := l.kernels[batch]; ok {
		return k, nil
	}

	k, err := newLossKernel(l.on, l.loss, batch)
	if err != nil {
		return nil, fmt.Errorf("kernel: could not compile kernel for "+
			"batch size %v: %v", batch, err)
	}
	l.kernels[batch] = k
	return k, nil
}

// mask returns the prediction-selection mask of the batch: the one-hot
// actions for a state-action value function, and a column of ones for
// a state value function
func (l *Learner) mask(batch timestep.Batch) *mat.Dense {
	if l.on.useAction {
		return batch.Actions
	}

	rows := batch.Size()
	mask := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		mask.Set(i, 0, 1)
	}
	return mask
}

// actionIndices returns the index of the trained head for each
// transition
func (l *Learner) actionIndices(batch timestep.Batch) []int {
	if l.on.useAction {
		return batch.ActionIndices()
	}
	return make([]int, batch.Size())
}

// expandProbs spreads the (batch x atoms) target probabilities into
// the full (batch x actions*atoms) head layout, leaving every block
// but the taken action's at zero
func (l *Learner) expandProbs(probs *mat.Dense,
	batch timestep.Batch) *mat.Dense {
	rows, atoms := probs.Dims()
	if atoms != l.on.atoms {
		panic(fmt.Sprintf("expandprobs: invalid number of atoms "+
			"\n\twant(%v) \n\thave(%v)", l.on.atoms, atoms))
	}

	indices := l.actionIndices(batch)
	expanded := mat.NewDense(rows, l.on.actions*l.on.atoms, nil)
	for i := 0; i < rows; i++ {
		row := probs.RawRowView(i)
		for k, p := range row {
			expanded.Set(i, indices[i]*l.on.atoms+k, p)
		}
	}
	return expanded
}

// predictedMeans returns the real-scale mean of the predicted atom
// distribution of each transition's taken action
func (l *Learner) predictedMeans(raw *mat.Dense,
	batch timestep.Batch) []float64 {
	indices := l.actionIndices(batch)
	means := make([]float64, batch.Size())
	for i := range means {
		row := raw.RawRowView(i)
		block := row[indices[i]*l.on.atoms : (indices[i]+1)*l.on.atoms]
		means[i] = l.on.real(l.on.support.Mean(l.on.atomDist.Probs(block)))
	}
	return means
}

// targetMeans returns the real-scale mean of each row of target
// probabilities
func (l *Learner) targetMeans(probs *mat.Dense) []float64 {
	rows, _ := probs.Dims()
	means := make([]float64, rows)
	for i := range means {
		means[i] = l.on.real(l.on.support.Mean(probs.RawRowView(i)))
	}
	return means
}

// clipWeights returns the batch's importance weights clipped to the
// learner's weight interval. A batch without weights means unit
// weights.
func clipWeights(batch timestep.Batch) []float64 {
	weights := make([]float64, batch.Size())
	for i := range weights {
		w := 1.0
		if batch.Weights != nil {
			w = batch.Weights.AtVec(i)
		}
		weights[i] = floatutils.Clip(w, minImportanceWeight,
			maxImportanceWeight)
	}
	return weights
}

// selectByMask returns the masked row sums of raw, one per row
func selectByMask(raw, mask *mat.Dense) []float64 {
	rows, cols := raw.Dims()
	selected := make([]float64, rows)
	for i := 0; i < rows; i++ {
		total := 0.0
		for j := 0; j < cols; j++ {
			total += raw.At(i, j) * mask.At(i, j)
		}
		selected[i] = total
	}
	return selected
}

// weightedMean returns the mean of the elementwise product of weights
// and values
func weightedMean(weights, values []float64) float64 {
	return floats.Dot(weights, values) / float64(len(values))
}

// ones returns a vector of n ones
func ones(n int) *mat.VecDense {
	v := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		v.SetVec(i, 1)
	}
	return v
}

// gradsMax returns the largest absolute value in the gradient tree
func gradsMax(grads network.Params) float64 {
	max := math.Inf(-1)
	for _, leaf := range grads {
		for _, g := range leaf.Data().([]float64) {
			if a := math.Abs(g); a > max {
				max = a
			}
		}
	}
	return max
}

// gradsNorm returns the l2 norm of the gradient tree
func gradsNorm(grads network.Params) float64 {
	total := 0.0
	for _, leaf := range grads {
		data := leaf.Data().([]float64)
		total += floats.Dot(data, data)
	}
	return math.Sqrt(total)
}
