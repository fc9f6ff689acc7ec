package expreplay

import (
	"github.com/samuelfneumann/gotd/timestep"
)

// onlineCache implements an experience replay buffer for sampling
// completely online.
//
// When creating a new experience replay buffer, the user could
// choose to use a buffer with a maximum capacity of 1. In this case,
// experience replay reduces to online sampling, and the buffer only
// ever holds the most recent transition. This struct increases
// computational efficiency when a new cache is created with
// online sampling.
type onlineCache struct {
	transition timestep.Transition
	filled     bool
}

// newOnline returns a new online replay buffer
func newOnline() ExperienceReplayer {
	return &onlineCache{}
}

// Add overwrites the buffer with a copy of t
func (o *onlineCache) Add(t timestep.Transition) error {
	o.transition = t.Clone()
	o.filled = true
	return nil
}

// Sample returns the most recently added transition as a batch of
// size 1
func (o *onlineCache) Sample() (timestep.Batch, error) {
	if !o.filled {
		return timestep.Batch{}, &ExpReplayError{
			Op:  "sample",
			Err: errEmptyBuffer,
		}
	}

	batch, err := timestep.NewBatch([]timestep.Transition{o.transition})
	if err != nil {
		return timestep.Batch{}, &ExpReplayError{Op: "sample", Err: err}
	}
	return batch, nil
}

// Capacity returns the current number of elements in the cache that
// are available for sampling
func (o *onlineCache) Capacity() int {
	if !o.filled {
		return 0
	}
	return 1
}

// MaxCapacity returns the maximum number of elements that are allowed
// in the cache
func (o *onlineCache) MaxCapacity() int {
	return 1
}

// MinCapacity returns the minimum number of elements required in the
// cache before sampling is allowed
func (o *onlineCache) MinCapacity() int {
	return 1
}

// BatchSize returns the number of samples sampled using Sample() -
// a.k.a the batch size
func (o *onlineCache) BatchSize() int {
	return 1
}
