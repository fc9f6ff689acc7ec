package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Batch packages together a batch of transitions in matrix form,
// ready to be consumed by a single update. Row i of each matrix and
// element i of each vector describe transition i of the batch.
//
// NextActions may be nil when no update consuming the batch needs the
// actions taken at the next states. Weights may be nil, in which case
// every transition carries unit importance weight.
type Batch struct {
	Obs         *mat.Dense
	Actions     *mat.Dense
	Rewards     *mat.VecDense
	Discounts   *mat.VecDense
	NextObs     *mat.Dense
	NextActions *mat.Dense
	Done        []bool
	Weights     *mat.VecDense
}

// NewBatch stacks transitions into a Batch. All transitions must
// share the same feature and action dimensions. Next actions are
// included only if every transition carries one.
func NewBatch(transitions []Transition) (Batch, error) {
	if len(transitions) == 0 {
		return Batch{}, fmt.Errorf("newbatch: no transitions to batch")
	}

	rows := len(transitions)
	features := transitions[0].State.Len()
	actionDims := transitions[0].Action.Len()

	// An episode-ending transition may omit its next action without
	// dropping next actions from the whole batch
	haveNextActions := true
	for _, transition := range transitions {
		if transition.NextAction == nil && !transition.Done {
			haveNextActions = false
			break
		}
	}

	batch := Batch{
		Obs:       mat.NewDense(rows, features, nil),
		Actions:   mat.NewDense(rows, actionDims, nil),
		Rewards:   mat.NewVecDense(rows, nil),
		Discounts: mat.NewVecDense(rows, nil),
		NextObs:   mat.NewDense(rows, features, nil),
		Done:      make([]bool, rows),
		Weights:   mat.NewVecDense(rows, nil),
	}
	if haveNextActions {
		batch.NextActions = mat.NewDense(rows, actionDims, nil)
	}

	for i, transition := range transitions {
		if transition.State.Len() != features ||
			transition.NextState.Len() != features {
			return Batch{}, fmt.Errorf("newbatch: transition %v has "+
				"invalid feature size \n\twant(%v) \n\thave(%v)", i, features,
				transition.State.Len())
		}
		if transition.Action.Len() != actionDims {
			return Batch{}, fmt.Errorf("newbatch: transition %v has "+
				"invalid action size \n\twant(%v) \n\thave(%v)", i, actionDims,
				transition.Action.Len())
		}

		for j := 0; j < features; j++ {
			batch.Obs.Set(i, j, transition.State.AtVec(j))
			batch.NextObs.Set(i, j, transition.NextState.AtVec(j))
		}
		for j := 0; j < actionDims; j++ {
			batch.Actions.Set(i, j, transition.Action.AtVec(j))
			if haveNextActions && transition.NextAction != nil {
				batch.NextActions.Set(i, j, transition.NextAction.AtVec(j))
			}
		}

		batch.Rewards.SetVec(i, transition.Reward)
		batch.Discounts.SetVec(i, transition.Discount)
		batch.Done[i] = transition.Done
		batch.Weights.SetVec(i, transition.Weight)
	}

	return batch, batch.Validate()
}

// Size returns the number of transitions in the batch
func (b Batch) Size() int {
	rows, _ := b.Obs.Dims()
	return rows
}

// Features returns the number of state features of each observation
// in the batch
func (b Batch) Features() int {
	_, cols := b.Obs.Dims()
	return cols
}

// ActionDims returns the dimensionality of the one-hot action vectors
// in the batch
func (b Batch) ActionDims() int {
	_, cols := b.Actions.Dims()
	return cols
}

// HasNextActions returns whether the batch records the actions taken
// at the next states
func (b Batch) HasNextActions() bool {
	return b.NextActions != nil
}

// ActionIndices returns the index of the selected action for each
// transition in the batch
func (b Batch) ActionIndices() []int {
	return oneHotIndices(b.Actions)
}

// NextActionIndices returns the index of the next action for each
// transition in the batch. The batch must record next actions.
func (b Batch) NextActionIndices() []int {
	if !b.HasNextActions() {
		panic("nextactionindices: batch does not record next actions")
	}
	return oneHotIndices(b.NextActions)
}

func oneHotIndices(actions *mat.Dense) []int {
	rows, cols := actions.Dims()
	indices := make([]int, rows)

	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if actions.At(i, j) == 1.0 {
				indices[i] = j
				break
			}
		}
	}
	return indices
}

// Validate returns an error describing the first structural problem
// with the batch: mismatched leading dimensions, non-positive
// importance weights, actions that are not one-hot vectors, or
// episode-ending transitions with a nonzero bootstrap discount.
func (b Batch) Validate() error {
	if b.Obs == nil || b.Actions == nil || b.Rewards == nil ||
		b.Discounts == nil || b.NextObs == nil || b.Done == nil {
		return fmt.Errorf("validate: batch is missing required data")
	}

	rows, features := b.Obs.Dims()
	if rows == 0 {
		return fmt.Errorf("validate: batch is empty")
	}

	nextRows, nextFeatures := b.NextObs.Dims()
	if nextRows != rows || nextFeatures != features {
		return fmt.Errorf("validate: next observations have invalid shape "+
			"\n\twant(%v x %v) \n\thave(%v x %v)", rows, features, nextRows,
			nextFeatures)
	}

	actionRows, actionDims := b.Actions.Dims()
	if actionRows != rows {
		return fmt.Errorf("validate: invalid number of actions "+
			"\n\twant(%v) \n\thave(%v)", rows, actionRows)
	}
	if err := checkOneHot(b.Actions, "action"); err != nil {
		return fmt.Errorf("validate: %v", err)
	}

	if b.NextActions != nil {
		nextActionRows, nextActionDims := b.NextActions.Dims()
		if nextActionRows != rows || nextActionDims != actionDims {
			return fmt.Errorf("validate: next actions have invalid shape "+
				"\n\twant(%v x %v) \n\thave(%v x %v)", rows, actionDims,
				nextActionRows, nextActionDims)
		}
		// An episode-ending transition may record an all-zero next
		// action, since nothing is bootstrapped through it
		for i := 0; i < rows; i++ {
			row := b.NextActions.RawRowView(i)
			if b.Done[i] && allZero(row) {
				continue
			}
			if err := oneHotRow(row); err != nil {
				return fmt.Errorf("validate: next action %v %v", i, err)
			}
		}
	}

	if b.Rewards.Len() != rows {
		return fmt.Errorf("validate: invalid number of rewards "+
			"\n\twant(%v) \n\thave(%v)", rows, b.Rewards.Len())
	}
	if b.Discounts.Len() != rows {
		return fmt.Errorf("validate: invalid number of discounts "+
			"\n\twant(%v) \n\thave(%v)", rows, b.Discounts.Len())
	}
	if len(b.Done) != rows {
		return fmt.Errorf("validate: invalid number of done flags "+
			"\n\twant(%v) \n\thave(%v)", rows, len(b.Done))
	}

	for i := 0; i < rows; i++ {
		if b.Done[i] && b.Discounts.AtVec(i) != 0.0 {
			return fmt.Errorf("validate: transition %v ends an episode but "+
				"has discount %v != 0", i, b.Discounts.AtVec(i))
		}
	}

	if b.Weights != nil {
		if b.Weights.Len() != rows {
			return fmt.Errorf("validate: invalid number of weights "+
				"\n\twant(%v) \n\thave(%v)", rows, b.Weights.Len())
		}
		for i := 0; i < rows; i++ {
			if b.Weights.AtVec(i) <= 0.0 {
				return fmt.Errorf("validate: transition %v has non-positive "+
					"importance weight %v", i, b.Weights.AtVec(i))
			}
		}
	}

	return nil
}

// checkOneHot ensures every row of actions holds exactly one 1 and is
// otherwise 0
func checkOneHot(actions *mat.Dense, kind string) error {
	rows, _ := actions.Dims()
	for i := 0; i < rows; i++ {
		if err := oneHotRow(actions.RawRowView(i)); err != nil {
			return fmt.Errorf("%v %v %v", kind, i, err)
		}
	}
	return nil
}

// oneHotRow ensures a single action vector holds exactly one 1 and is
// otherwise 0
func oneHotRow(row []float64) error {
	ones := 0
	for _, value := range row {
		switch value {
		case 1.0:
			ones++
		case 0.0:
		default:
			return fmt.Errorf("is not a one-hot vector")
		}
	}
	if ones != 1 {
		return fmt.Errorf("is not a one-hot vector")
	}
	return nil
}

// allZero returns whether every element of row is 0
func allZero(row []float64) bool {
	for _, value := range row {
		if value != 0.0 {
			return false
		}
	}
	return true
}
