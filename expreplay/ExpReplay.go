// Package expreplay implements experience replay buffers of
// bootstrapped transitions.
//
// A replay buffer stores complete Transitions, including their n-step
// rewards, bootstrap discounts, importance weights and next actions,
// and samples them back out as a Batch ready for an updater. How
// slots are chosen for sampling and for removal is decided by two
// Selectors given at creation.
package expreplay

import (
	"container/list"
	"fmt"

	"github.com/samuelfneumann/gotd"
	"github.com/samuelfneumann/gotd/timestep"
)

// Config implements a specific configuration of an ExperienceReplayer
type Config struct {
	RemoveMethod      SelectorType
	SampleMethod      SelectorType
	RemoveSize        int
	SampleSize        int
	MaxReplayCapacity int
	MinReplayCapacity int
}

// Create creates and returns the ExperienceReplayer with the specified
// Config.
func (c Config) Create(featureSize, actionSize int,
	seed uint64) (ExperienceReplayer, error) {
	return Factory(c.RemoveMethod, c.SampleMethod, c.MinReplayCapacity,
		c.MaxReplayCapacity, featureSize, actionSize, c.RemoveSize,
		c.SampleSize, seed)
}

// ExperienceReplayer implements an experience replay buffer
type ExperienceReplayer interface {
	// Add adds a transition to the buffer
	Add(t timestep.Transition) error

	// Sample samples a batch of experience from the buffer
	Sample() (timestep.Batch, error)

	// Capacity returns the current number of samples in the buffer
	Capacity() int

	// MaxCapacity returns the maximum allowable samples in the buffer
	MaxCapacity() int

	// MinCapacity returns the number of samples required to be in
	// the buffer before the buffer can be sampled
	MinCapacity() int

	// BatchSize returns the number of samples returned by Sample()
	BatchSize() int
}

// Factory is a factory method for creating an ExperienceReplayer
func Factory(removeMethod, sampleMethod SelectorType, minCapacity,
	maxCapacity, featureSize, actionSize, removeSize, sampleSize int,
	seed uint64) (ExperienceReplayer, error) {
	remover, err := CreateSelector(removeMethod, removeSize, seed)
	if err != nil {
		return nil, fmt.Errorf("factory: %v", err)
	}
	sampler, err := CreateSelector(sampleMethod, sampleSize, seed)
	if err != nil {
		return nil, fmt.Errorf("factory: %v", err)
	}

	return New(remover, sampler, minCapacity, maxCapacity, featureSize,
		actionSize)
}

// New creates and returns a new ExperienceReplayer. The remover and
// sampler parameters are Selectors which determine how data is removed
// and sampled from the replay buffer. The featureSize and actionSize
// parameters define the size of the feature and action vectors.
//
// Pixel observations should be flattened before adding to the buffer.
func New(remover, sampler Selector, minCapacity, maxCapacity, featureSize,
	actionSize int) (ExperienceReplayer, error) {
	if minCapacity <= 0 {
		return nil, fmt.Errorf("new: minCapacity must be > 0")
	}
	if maxCapacity < 1 {
		return nil, fmt.Errorf("new: maxCapacity must be >= 1")
	}
	if maxCapacity < minCapacity {
		return nil, fmt.Errorf("new: cannot have min capacity(%v) > max "+
			"capacity(%v)", minCapacity, maxCapacity)
	}
	if maxCapacity < sampler.BatchSize() {
		return nil, fmt.Errorf("new: cannot have batch size(%v) > max "+
			"buffer capacity(%v)", sampler.BatchSize(), maxCapacity)
	}

	// If minCapacity == maxCapacity == 1, then the replay buffer
	// only stores the most recent online transition. In this case,
	// onlineCache makes a number of efficiency improvements
	if minCapacity == 1 && maxCapacity == 1 {
		if sampler.BatchSize() > 1 || remover.BatchSize() > 1 {
			gotd.Warningf("new: using online sampler, ignoring batch " +
				"size > 1")
		}
		return newOnline(), nil
	}

	if _, ok := remover.(*fifoSelector); ok && remover.BatchSize() == 1 {
		return newFifoRemove1Cache(sampler, minCapacity, maxCapacity,
			featureSize, actionSize), nil
	}

	emptyIndices := make([]int, maxCapacity)
	for i := range emptyIndices {
		emptyIndices[i] = i
	}

	return &cache{
		store: newStorage(maxCapacity, featureSize, actionSize),

		emptyIndices:  emptyIndices,
		inUseIndices:  make([]int, 0, maxCapacity),
		orderOfInsert: list.New(),

		remover: remover,
		sampler: sampler,

		minCapacity: minCapacity,
		maxCapacity: maxCapacity,
	}, nil
}

// cache implements a concrete ExperienceReplayer for any combination
// of remover and sampler. It tracks which slots are free and which
// hold data, together with the chronological order the held slots
// were written in.
type cache struct {
	store *storage

	// The slots of the storage that are empty and have no data
	emptyIndices []int

	// The slots of the storage that have data
	inUseIndices []int

	// orderOfInsert outlines the chronological order of inserts. For
	// i > j, the data at slot orderOfInsert[i] was inserted into the
	// buffer after the data at slot orderOfInsert[j]
	orderOfInsert *list.List

	// Outlines how data is removed and sampled
	remover Selector
	sampler Selector

	minCapacity int
	maxCapacity int
}

// sampleFrom returns the slots to sample from
func (c *cache) sampleFrom() []int {
	return c.inUseIndices
}

// insertOrder returns a slice of at most n slots which describes
// the order that the first n data were inserted into the buffer.
//
// For example, if this function returns []int{9, 15, 1}, this means
// that the oldest data in the buffer is at slot 9, the next oldest
// at slot 15, and the next at slot 1.
func (c *cache) insertOrder(n int) []int {
	if n > c.Capacity() {
		n = c.Capacity()
	}

	insertOrder := make([]int, 0, n)
	element := c.orderOfInsert.Front()
	for element != nil && len(insertOrder) < n {
		insertOrder = append(insertOrder, element.Value.(int))
		element = element.Next()
	}
	return insertOrder
}

// BatchSize returns the number of samples sampled using Sample() -
// a.k.a the batch size
func (c *cache) BatchSize() int {
	return c.sampler.BatchSize()
}

// remove frees slots chosen by the cache's remover
func (c *cache) remove() error {
	if c.Capacity() <= c.minCapacity {
		return fmt.Errorf("remove: cannot remove, buffer at min capacity")
	}

	for _, index := range c.remover.choose(c) {
		c.freeSlot(index)
	}
	return nil
}

// freeSlot removes the slot at index from the in-use bookkeeping
func (c *cache) freeSlot(index int) {
	for i := range c.inUseIndices {
		if c.inUseIndices[i] == index {
			c.inUseIndices[i] = c.inUseIndices[len(c.inUseIndices)-1]
			c.inUseIndices = c.inUseIndices[:len(c.inUseIndices)-1]
			break
		}
	}

	element := c.orderOfInsert.Front()
	for element != nil {
		if element.Value.(int) == index {
			c.orderOfInsert.Remove(element)
			break
		}
		element = element.Next()
	}

	c.emptyIndices = append(c.emptyIndices, index)
}

// Sample samples and returns a batch of transitions from the replay
// buffer
func (c *cache) Sample() (timestep.Batch, error) {
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

// Capacity returns the current number of elements in the cache that
// are available for sampling
func (c *cache) Capacity() int {
	return len(c.inUseIndices)
}

// MaxCapacity returns the maximum number of elements that are allowed
// in the cache
func (c *cache) MaxCapacity() int {
	return c.maxCapacity
}

// MinCapacity returns the minimum number of elements required in the
// cache before sampling is allowed
func (c *cache) MinCapacity() int {
	return c.minCapacity
}

// Add adds a transition to the cache
func (c *cache) Add(t timestep.Transition) error {
	if c.Capacity() >= c.maxCapacity {
		if err := c.remove(); err != nil {
			return fmt.Errorf("add: cannot add to full buffer: %v", err)
		}
	}

	index := c.emptyIndices[len(c.emptyIndices)-1]
	if err := c.store.set(index, t); err != nil {
		return fmt.Errorf("add: %v", err)
	}

	c.emptyIndices = c.emptyIndices[:len(c.emptyIndices)-1]
	c.orderOfInsert.PushBack(index)
	c.inUseIndices = append(c.inUseIndices, index)

	return nil
}
