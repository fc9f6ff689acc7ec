// Package tracer converts raw environment interaction into
// bootstrapped transitions.
//
// A tracer receives one (observation, action, reward, done) record per
// environment step and emits Transitions whose Reward holds the
// discounted partial return accumulated over the tracing horizon and
// whose Discount holds the bootstrap discount past it. Feeding the
// emitted transitions to a replay buffer or directly to an updater
// keeps the updaters themselves single-step.
package tracer

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/gotd/timestep"
)

var errEpisodeDone = errors.New("episode finished, pop remaining " +
	"transitions before adding")

var errInsufficientSteps = errors.New("not enough steps to build a " +
	"transition")

// IsEpisodeDone returns whether an error reports an addition to a
// tracer still holding the tail of a finished episode.
func IsEpisodeDone(err error) bool {
	return err == errEpisodeDone
}

// IsInsufficientSteps returns whether an error reports a pop from a
// tracer that has not yet seen far enough past the popped step.
func IsInsufficientSteps(err error) bool {
	return err == errInsufficientSteps
}

// NStep folds environment steps into n-step transitions. A popped
// transition carries the n-step partial return
//
//	Rn = R[t+1] + gamma*R[t+2] + ... + gamma^(n-1)*R[t+n]
//
// as its reward and gamma^n as its bootstrap discount, with the
// observation and action n steps past the popped step as its next
// observation and action. When the episode ends within the horizon,
// the partial return truncates at the end and the transition records
// a bootstrap discount of 0.
type NStep struct {
	n      int
	gamma  float64
	gammas []float64
	gamman float64

	obs     []mat.Vector
	actions []mat.Vector
	rewards []float64
	done    bool
}

// NewNStep returns a tracer folding rewards over an n >= 1 step
// horizon with discount rate 0 <= gamma <= 1
func NewNStep(n int, gamma float64) (*NStep, error) {
	if n < 1 {
		return nil, fmt.Errorf("newnstep: horizon must be at least one "+
			"step \n\thave(%v)", n)
	}
	if gamma < 0 || gamma > 1 {
		return nil, fmt.Errorf("newnstep: discount rate must be in [0, 1] "+
			"\n\thave(%v)", gamma)
	}

	gammas := make([]float64, n)
	for i := range gammas {
		gammas[i] = math.Pow(gamma, float64(i))
	}

	return &NStep{
		n:      n,
		gamma:  gamma,
		gammas: gammas,
		gamman: math.Pow(gamma, float64(n)),
	}, nil
}

// Add records one environment step: the action selected at the given
// observation, the reward the step earned and whether it ended the
// episode. After an episode ends, the tracer's remaining transitions
// must be popped before the next episode's steps are added.
func (tr *NStep) Add(obs, action mat.Vector, reward float64,
	done bool) error {
	if tr.done && tr.Len() > 0 {
		return errEpisodeDone
	}

	tr.obs = append(tr.obs, obs)
	tr.actions = append(tr.actions, action)
	tr.rewards = append(tr.rewards, reward)
	tr.done = done
	return nil
}

// Len returns the number of steps the tracer holds
func (tr *NStep) Len() int {
	return len(tr.obs)
}

// CanPop returns whether the tracer holds a step whose transition is
// complete: either the tracing horizon has passed it, or the episode
// has ended
func (tr *NStep) CanPop() bool {
	return tr.Len() > 0 && (tr.done || tr.Len() > tr.n)
}

// Pop removes the oldest step and returns its transition with unit
// importance weight
func (tr *NStep) Pop() (timestep.Transition, error) {
	if !tr.CanPop() {
		return timestep.Transition{}, errInsufficientSteps
	}

	obs := tr.obs[0]
	action := tr.actions[0]
	tr.obs = tr.obs[1:]
	tr.actions = tr.actions[1:]

	rn := 0.0
	for k := 0; k < tr.n && k < len(tr.rewards); k++ {
		rn += tr.gammas[k] * tr.rewards[k]
	}
	tr.rewards = tr.rewards[1:]

	transition := timestep.Transition{
		State:  obs,
		Action: action,
		Reward: rn,
		Weight: 1.0,
	}
	if tr.Len() >= tr.n {
		transition.Discount = tr.gamman
		transition.NextState = tr.obs[tr.n-1]
		transition.NextAction = tr.actions[tr.n-1]
	} else {
		// The episode ends inside the horizon, so nothing is
		// bootstrapped and the next observation is a placeholder
		transition.Discount = 0.0
		transition.NextState = obs
		transition.NextAction = action
		transition.Done = true
	}

	return transition, nil
}

// Reset drops everything the tracer holds, readying it for a fresh
// episode
func (tr *NStep) Reset() {
	tr.obs = nil
	tr.actions = nil
	tr.rewards = nil
	tr.done = false
}
