package expreplay

import (
	"fmt"

	"github.com/samuelfneumann/gotd/timestep"
)

// fifoRemove1Cache implements a concrete ExperienceReplayer where
// elements are removed from the buffer in a FiFo manner and only a
// single element is removed from the buffer at a time. This is the
// most common use of experience replay.
//
// Knowing that the oldest slot is always the one removed lets the
// buffer run as a ring: an add overwrites the oldest slot directly,
// with no free-slot bookkeeping at all.
type fifoRemove1Cache struct {
	store *storage

	// Slot i of the storage always holds slots[i] = i. The slice
	// exists so that sampleFrom can return occupied slots without
	// allocating.
	slots []int

	currentInUsePos int
	isFull          bool

	// Outlines how data is sampled
	sampler Selector

	minCapacity int
	maxCapacity int
}

// newFifoRemove1Cache returns a new fifoRemove1Cache. The sampler
// parameter is a Selector which determines how data is sampled from
// the replay buffer. The featureSize and actionSize parameters define
// the size of the feature and action vectors. The minCapacity
// parameter determines the minimum number of samples that should be
// in the buffer before sampling is allowed. The maxCapacity parameter
// determines the maximum number of samples allowed in the buffer at
// any given time.
func newFifoRemove1Cache(sampler Selector, minCapacity, maxCapacity,
	featureSize, actionSize int) *fifoRemove1Cache {
	slots := make([]int, maxCapacity)
	for i := range slots {
		slots[i] = i
	}

	return &fifoRemove1Cache{
		store: newStorage(maxCapacity, featureSize, actionSize),
		slots: slots,

		currentInUsePos: 0,
		isFull:          false,

		sampler: sampler,

		minCapacity: minCapacity,
		maxCapacity: maxCapacity,
	}
}

// BatchSize returns the number of samples sampled using Sample() -
// a.k.a the batch size
func (c *fifoRemove1Cache) BatchSize() int {
	return c.sampler.BatchSize()
}

// insertOrder returns the first n slots that data was inserted at,
// oldest first. Once the ring has wrapped, the oldest slot is the one
// the next add will overwrite.
func (c *fifoRemove1Cache) insertOrder(n int) []int {
	if n > c.Capacity() {
		n = c.Capacity()
	}

	if !c.isFull {
		return c.slots[:n]
	}

	order := make([]int, n)
	for i := range order {
		order[i] = (c.currentInUsePos + i) % c.maxCapacity
	}
	return order
}

// sampleFrom returns the slots to sample from
func (c *fifoRemove1Cache) sampleFrom() []int {
	return c.slots[:c.Capacity()]
}

// Sample samples and returns a batch of transitions from the replay
// buffer
func (c *fifoRemove1Cache) Sample() (timestep.Batch, error) {
	if c.Capacity() == 0 {
		return timestep.Batch{}, &ExpReplayError{
			Op:  "sample",
			Err: errEmptyBuffer,
		}
	}
	if c.Capacity() < c.MinCapacity() {
		return timestep.Batch{}, &ExpReplayError{
			Op:  "sample",
			Err: errInsufficientSamples,
		}
	}

	batch, err := c.store.batch(c.sampler.choose(c))
	if err != nil {
		return timestep.Batch{}, fmt.Errorf("sample: %v", err)
	}
	return batch, nil
}

// Capacity returns the current number of elements in the buffer that
// are available for sampling
func (c *fifoRemove1Cache) Capacity() int {
	if c.isFull {
		return c.maxCapacity
	}
	return c.currentInUsePos
}

// MaxCapacity returns the maximum number of elements that are allowed
// in the buffer
func (c *fifoRemove1Cache) MaxCapacity() int {
	return c.maxCapacity
}

// MinCapacity returns the minimum number of elements required in the
// buffer before sampling is allowed
func (c *fifoRemove1Cache) MinCapacity() int {
	return c.minCapacity
}

// Add adds a transition to the buffer, overwriting the oldest
// transition once the buffer is full
func (c *fifoRemove1Cache) Add(t timestep.Transition) error {
	index := c.currentInUsePos
	if err := c.store.set(index, t); err != nil {
		return fmt.Errorf("add: %v", err)
	}

	if !c.isFull && index+1 == c.maxCapacity {
		c.isFull = true
	}
	c.currentInUsePos = (c.currentInUsePos + 1) % c.maxCapacity

	return nil
}
