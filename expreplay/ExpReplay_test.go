package expreplay

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/gotd/timestep"
)

const (
	testFeatures = 2
	testActions  = 2
)

// testTransition returns a distinct transition for position i of an
// episode. The transition's reward equals i, which the tests use to
// identify which transitions a sample returned.
func testTransition(i int, withNextAction bool) timestep.Transition {
	transition := timestep.Transition{
		State:     mat.NewVecDense(testFeatures, []float64{float64(i), 1}),
		Action:    oneHot(i % testActions),
		Reward:    float64(i),
		Discount:  0.9,
		NextState: mat.NewVecDense(testFeatures, []float64{float64(i + 1), 1}),
		Done:      false,
		Weight:    1.0,
	}
	if withNextAction {
		transition.NextAction = oneHot((i + 1) % testActions)
	}
	return transition
}

// oneHot returns a one-hot action vector for action index i
func oneHot(i int) *mat.VecDense {
	action := mat.NewVecDense(testActions, nil)
	action.SetVec(i, 1)
	return action
}

// fill adds transitions 0, 1, ..., n-1 to the buffer
func fill(t *testing.T, buffer ExperienceReplayer, n int,
	withNextAction bool) {
	t.Helper()

	for i := 0; i < n; i++ {
		if err := buffer.Add(testTransition(i, withNextAction)); err != nil {
			t.Fatalf("could not add transition %v: %v", i, err)
		}
	}
}

// checkRewards fails the test unless the batch holds exactly the
// transitions with the expected rewards, in order
func checkRewards(t *testing.T, batch timestep.Batch, expected []float64) {
	t.Helper()

	if batch.Size() != len(expected) {
		t.Fatalf("expected batch size %v, got %v", len(expected),
			batch.Size())
	}
	for i, reward := range expected {
		if batch.Rewards.AtVec(i) != reward {
			t.Errorf("transition %v: expected reward %v, got %v", i,
				reward, batch.Rewards.AtVec(i))
		}
	}
}

// newTestBuffer returns a buffer using the generic cache: fifo
// removal of two slots at a time and fifo sampling
func newTestBuffer(t *testing.T, minCapacity, maxCapacity,
	sampleSize int) ExperienceReplayer {
	t.Helper()

	buffer, err := Factory(Fifo, Fifo, minCapacity, maxCapacity,
		testFeatures, testActions, 2, sampleSize, 42)
	if err != nil {
		t.Fatalf("could not create buffer: %v", err)
	}
	return buffer
}

func TestSampleRoundTrip(t *testing.T) {
	buffer := newTestBuffer(t, 1, 3, 2)
	fill(t, buffer, 3, true)

	batch, err := buffer.Sample()
	if err != nil {
		t.Fatalf("could not sample: %v", err)
	}

	// Fifo sampling returns the two oldest transitions in insertion
	// order
	checkRewards(t, batch, []float64{0, 1})

	if batch.Obs.At(0, 0) != 0 || batch.Obs.At(1, 0) != 1 {
		t.Errorf("observations do not match the stored transitions: %v",
			mat.Formatted(batch.Obs))
	}
	if batch.NextObs.At(0, 0) != 1 || batch.NextObs.At(1, 0) != 2 {
		t.Errorf("next observations do not match the stored "+
			"transitions: %v", mat.Formatted(batch.NextObs))
	}
	if !batch.HasNextActions() {
		t.Error("expected the batch to carry next actions")
	}
	if batch.Discounts.AtVec(0) != 0.9 || batch.Weights.AtVec(0) != 1 {
		t.Errorf("expected discount 0.9 and weight 1, got %v and %v",
			batch.Discounts.AtVec(0), batch.Weights.AtVec(0))
	}
}

func TestSampleWithoutNextActions(t *testing.T) {
	buffer := newTestBuffer(t, 1, 3, 2)
	fill(t, buffer, 2, false)

	batch, err := buffer.Sample()
	if err != nil {
		t.Fatalf("could not sample: %v", err)
	}
	if batch.HasNextActions() {
		t.Error("expected the batch to carry no next actions")
	}
}

func TestAddEvictsOldestFirst(t *testing.T) {
	buffer := newTestBuffer(t, 1, 3, 2)

	// The fourth add overflows the buffer, so the remover frees the
	// two oldest slots first
	fill(t, buffer, 4, true)

	if buffer.Capacity() != 2 {
		t.Fatalf("expected capacity 2 after eviction, got %v",
			buffer.Capacity())
	}

	batch, err := buffer.Sample()
	if err != nil {
		t.Fatalf("could not sample: %v", err)
	}
	checkRewards(t, batch, []float64{2, 3})
}

func TestSampleEmptyBuffer(t *testing.T) {
	buffer := newTestBuffer(t, 2, 5, 2)

	_, err := buffer.Sample()
	if !IsEmptyBuffer(err) {
		t.Errorf("expected an empty buffer error, got %v", err)
	}
}

func TestSampleBelowMinCapacity(t *testing.T) {
	buffer := newTestBuffer(t, 2, 5, 2)
	fill(t, buffer, 1, true)

	_, err := buffer.Sample()
	if !IsInsufficientSamples(err) {
		t.Errorf("expected an insufficient samples error, got %v", err)
	}

	// One more transition reaches the minimum capacity
	if err := buffer.Add(testTransition(1, true)); err != nil {
		t.Fatalf("could not add transition: %v", err)
	}
	if _, err := buffer.Sample(); err != nil {
		t.Errorf("expected sampling to succeed at min capacity, got %v",
			err)
	}
}

func TestFifoRemove1RingBuffer(t *testing.T) {
	// A fifo remover freeing one slot at a time selects the ring
	// buffer implementation
	buffer, err := Factory(Fifo, Fifo, 1, 2, testFeatures, testActions,
		1, 2, 42)
	if err != nil {
		t.Fatalf("could not create buffer: %v", err)
	}
	if _, ok := buffer.(*fifoRemove1Cache); !ok {
		t.Fatalf("expected a fifoRemove1Cache, got %T", buffer)
	}

	fill(t, buffer, 3, true)

	if buffer.Capacity() != 2 {
		t.Fatalf("expected capacity 2, got %v", buffer.Capacity())
	}

	batch, err := buffer.Sample()
	if err != nil {
		t.Fatalf("could not sample: %v", err)
	}
	checkRewards(t, batch, []float64{1, 2})
}

func TestOnlineBuffer(t *testing.T) {
	// A buffer of capacity one holds only the most recent transition
	buffer, err := Factory(Fifo, Fifo, 1, 1, testFeatures, testActions,
		1, 1, 42)
	if err != nil {
		t.Fatalf("could not create buffer: %v", err)
	}
	if _, ok := buffer.(*onlineCache); !ok {
		t.Fatalf("expected an onlineCache, got %T", buffer)
	}

	if _, err := buffer.Sample(); !IsEmptyBuffer(err) {
		t.Errorf("expected an empty buffer error, got %v", err)
	}

	fill(t, buffer, 3, true)

	batch, err := buffer.Sample()
	if err != nil {
		t.Fatalf("could not sample: %v", err)
	}
	checkRewards(t, batch, []float64{2})
}

func TestUniformSampleDrawsFromBuffer(t *testing.T) {
	buffer, err := Factory(Fifo, Uniform, 1, 10, testFeatures,
		testActions, 2, 4, 42)
	if err != nil {
		t.Fatalf("could not create buffer: %v", err)
	}
	fill(t, buffer, 5, true)

	batch, err := buffer.Sample()
	if err != nil {
		t.Fatalf("could not sample: %v", err)
	}
	if batch.Size() != 4 {
		t.Fatalf("expected batch size 4, got %v", batch.Size())
	}
	for i := 0; i < batch.Size(); i++ {
		reward := batch.Rewards.AtVec(i)
		if reward < 0 || reward > 4 || reward != float64(int(reward)) {
			t.Errorf("transition %v: reward %v was never added to the "+
				"buffer", i, reward)
		}
	}
}

func TestAddCopiesTransitionData(t *testing.T) {
	buffer := newTestBuffer(t, 1, 3, 2)

	transition := testTransition(0, true)
	state := transition.State.(*mat.VecDense)
	if err := buffer.Add(transition); err != nil {
		t.Fatalf("could not add transition: %v", err)
	}

	// Mutating the added transition must not reach the buffer
	state.SetVec(0, -100)

	batch, err := buffer.Sample()
	if err != nil {
		t.Fatalf("could not sample: %v", err)
	}
	if batch.Obs.At(0, 0) != 0 {
		t.Errorf("expected the buffer to copy transition data, "+
			"got observation %v", batch.Obs.At(0, 0))
	}
}

func TestAddRejectsMismatchedTransitions(t *testing.T) {
	buffer := newTestBuffer(t, 1, 3, 2)

	bad := testTransition(0, true)
	bad.State = mat.NewVecDense(testFeatures+1, nil)
	if err := buffer.Add(bad); err == nil {
		t.Error("expected adding a mismatched transition to fail")
	}

	nonPositive := testTransition(0, true)
	nonPositive.Weight = 0
	if err := buffer.Add(nonPositive); err == nil {
		t.Error("expected adding a zero-weight transition to fail")
	}
}

func TestCreateSelectorRejectsUnknownType(t *testing.T) {
	if _, err := CreateSelector(SelectorType("nope"), 1, 42); err == nil {
		t.Error("expected an unknown selector type to fail")
	}
}
