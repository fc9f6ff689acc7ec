package tracer

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/gotd/timestep"
)

// step returns a distinct 2-feature observation and a one-hot action
// for position i of an episode
func step(i int) (mat.Vector, mat.Vector) {
	obs := mat.NewVecDense(2, []float64{float64(i), 1})
	action := mat.NewVecDense(2, nil)
	action.SetVec(i%2, 1)
	return obs, action
}

// drain pops every complete transition from the tracer
func drain(t *testing.T, tr *NStep) []timestep.Transition {
	t.Helper()

	var transitions []timestep.Transition
	for tr.CanPop() {
		transition, err := tr.Pop()
		if err != nil {
			t.Fatalf("could not pop: %v", err)
		}
		transitions = append(transitions, transition)
	}
	return transitions
}

// checkTransition fails the test unless got matches the expected
// transition field for field
func checkTransition(t *testing.T, i int, expected,
	got timestep.Transition) {
	t.Helper()

	if !mat.Equal(expected.State, got.State) {
		t.Errorf("transition %v: expected state %v, got %v", i,
			mat.Formatted(expected.State.T()), mat.Formatted(got.State.T()))
	}
	if !mat.Equal(expected.Action, got.Action) {
		t.Errorf("transition %v: expected action %v, got %v", i,
			mat.Formatted(expected.Action.T()), mat.Formatted(got.Action.T()))
	}
	if got.Reward != expected.Reward {
		t.Errorf("transition %v: expected reward %v, got %v", i,
			expected.Reward, got.Reward)
	}
	if got.Discount != expected.Discount {
		t.Errorf("transition %v: expected discount %v, got %v", i,
			expected.Discount, got.Discount)
	}
	if !mat.Equal(expected.NextState, got.NextState) {
		t.Errorf("transition %v: expected next state %v, got %v", i,
			mat.Formatted(expected.NextState.T()),
			mat.Formatted(got.NextState.T()))
	}
	if !mat.Equal(expected.NextAction, got.NextAction) {
		t.Errorf("transition %v: expected next action %v, got %v", i,
			mat.Formatted(expected.NextAction.T()),
			mat.Formatted(got.NextAction.T()))
	}
	if got.Done != expected.Done {
		t.Errorf("transition %v: expected done %v, got %v", i,
			expected.Done, got.Done)
	}
	if got.Weight != 1.0 {
		t.Errorf("transition %v: expected unit weight, got %v", i,
			got.Weight)
	}
}

func TestNStepOneStepTrace(t *testing.T) {
	tr, err := NewNStep(1, 0.9)
	if err != nil {
		t.Fatalf("could not create tracer: %v", err)
	}

	s0, a0 := step(0)
	s1, a1 := step(1)
	s2, a2 := step(2)

	var transitions []timestep.Transition
	for i, record := range []struct {
		obs, action mat.Vector
		reward      float64
		done        bool
	}{
		{s0, a0, 1, false},
		{s1, a1, 2, false},
		{s2, a2, 3, true},
	} {
		if err := tr.Add(record.obs, record.action, record.reward,
			record.done); err != nil {
			t.Fatalf("could not add step %v: %v", i, err)
		}
		transitions = append(transitions, drain(t, tr)...)
	}

	expected := []timestep.Transition{
		{State: s0, Action: a0, Reward: 1, Discount: 0.9, NextState: s1,
			NextAction: a1},
		{State: s1, Action: a1, Reward: 2, Discount: 0.9, NextState: s2,
			NextAction: a2},
		{State: s2, Action: a2, Reward: 3, Discount: 0, NextState: s2,
			NextAction: a2, Done: true},
	}
	if len(transitions) != len(expected) {
		t.Fatalf("expected %v transitions, got %v", len(expected),
			len(transitions))
	}
	for i := range expected {
		checkTransition(t, i, expected[i], transitions[i])
	}
}

func TestNStepTwoStepTrace(t *testing.T) {
	tr, err := NewNStep(2, 0.5)
	if err != nil {
		t.Fatalf("could not create tracer: %v", err)
	}

	s0, a0 := step(0)
	s1, a1 := step(1)
	s2, a2 := step(2)
	s3, a3 := step(3)

	var transitions []timestep.Transition
	for i, record := range []struct {
		obs, action mat.Vector
		reward      float64
		done        bool
	}{
		{s0, a0, 1, false},
		{s1, a1, 2, false},
		{s2, a2, 4, false},
		{s3, a3, 8, true},
	} {
		if err := tr.Add(record.obs, record.action, record.reward,
			record.done); err != nil {
			t.Fatalf("could not add step %v: %v", i, err)
		}
		transitions = append(transitions, drain(t, tr)...)
	}

	// Two-step returns fold the next reward in at gamma = 0.5 and
	// bootstrap two observations ahead until the episode end truncates
	// the horizon
	expected := []timestep.Transition{
		{State: s0, Action: a0, Reward: 1 + 0.5*2, Discount: 0.25,
			NextState: s2, NextAction: a2},
		{State: s1, Action: a1, Reward: 2 + 0.5*4, Discount: 0.25,
			NextState: s3, NextAction: a3},
		{State: s2, Action: a2, Reward: 4 + 0.5*8, Discount: 0,
			NextState: s2, NextAction: a2, Done: true},
		{State: s3, Action: a3, Reward: 8, Discount: 0, NextState: s3,
			NextAction: a3, Done: true},
	}
	if len(transitions) != len(expected) {
		t.Fatalf("expected %v transitions, got %v", len(expected),
			len(transitions))
	}
	for i := range expected {
		checkTransition(t, i, expected[i], transitions[i])
	}
}

func TestNStepAddAfterEpisodeEnd(t *testing.T) {
	tr, err := NewNStep(1, 0.9)
	if err != nil {
		t.Fatalf("could not create tracer: %v", err)
	}

	s0, a0 := step(0)
	if err := tr.Add(s0, a0, 1, true); err != nil {
		t.Fatalf("could not add step: %v", err)
	}

	err = tr.Add(s0, a0, 1, false)
	if !IsEpisodeDone(err) {
		t.Errorf("expected an episode-done error, got %v", err)
	}

	drain(t, tr)
	if err := tr.Add(s0, a0, 1, false); err != nil {
		t.Errorf("could not add after draining the episode: %v", err)
	}
}

func TestNStepPopBeforeReady(t *testing.T) {
	tr, err := NewNStep(1, 0.9)
	if err != nil {
		t.Fatalf("could not create tracer: %v", err)
	}

	if _, err := tr.Pop(); !IsInsufficientSteps(err) {
		t.Errorf("expected an insufficient-steps error, got %v", err)
	}

	s0, a0 := step(0)
	if err := tr.Add(s0, a0, 1, false); err != nil {
		t.Fatalf("could not add step: %v", err)
	}
	if _, err := tr.Pop(); !IsInsufficientSteps(err) {
		t.Errorf("expected an insufficient-steps error, got %v", err)
	}
}

func TestNStepReset(t *testing.T) {
	tr, err := NewNStep(1, 0.9)
	if err != nil {
		t.Fatalf("could not create tracer: %v", err)
	}

	s0, a0 := step(0)
	if err := tr.Add(s0, a0, 1, true); err != nil {
		t.Fatalf("could not add step: %v", err)
	}

	tr.Reset()
	if tr.Len() != 0 {
		t.Errorf("expected an empty tracer after reset, have %v steps",
			tr.Len())
	}
	if tr.CanPop() {
		t.Error("expected nothing to pop after reset")
	}
	if err := tr.Add(s0, a0, 1, false); err != nil {
		t.Errorf("could not add after reset: %v", err)
	}
}

func TestNStepTransitionsBatch(t *testing.T) {
	tr, err := NewNStep(1, 0.9)
	if err != nil {
		t.Fatalf("could not create tracer: %v", err)
	}

	var transitions []timestep.Transition
	for i := 0; i < 3; i++ {
		obs, action := step(i)
		if err := tr.Add(obs, action, float64(i), i == 2); err != nil {
			t.Fatalf("could not add step %v: %v", i, err)
		}
		transitions = append(transitions, drain(t, tr)...)
	}

	batch, err := timestep.NewBatch(transitions)
	if err != nil {
		t.Fatalf("could not batch traced transitions: %v", err)
	}
	if batch.Size() != 3 {
		t.Errorf("expected a batch of 3 transitions, got %v", batch.Size())
	}
}

func TestNewNStepValidation(t *testing.T) {
	if _, err := NewNStep(0, 0.9); err == nil {
		t.Error("expected error creating a tracer with no horizon")
	}
	if _, err := NewNStep(1, -0.1); err == nil {
		t.Error("expected error creating a tracer with a negative discount")
	}
	if _, err := NewNStep(1, 1.5); err == nil {
		t.Error("expected error creating a tracer with a discount above one")
	}
}
