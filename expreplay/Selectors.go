package expreplay

import (
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/samuelfneumann/gotd/utils/intutils"
)

// SelectorType describes the available ways of choosing buffer slots
type SelectorType string

// Available selector types
const (
	Uniform SelectorType = "uniform"
	Fifo    SelectorType = "fifo"
)

// CreateSelector returns a new Selector of the given type choosing
// batchSize slots at a time
func CreateSelector(method SelectorType, batchSize int,
	seed uint64) (Selector, error) {
	switch method {
	case Uniform:
		return NewUniformSelector(batchSize, seed), nil
	case Fifo:
		return NewFifoSelector(batchSize), nil
	default:
		return nil, fmt.Errorf("createselector: no such selector type: %v",
			method)
	}
}

// Selector implements functionality for choosing which slots data
// should be sampled or removed from in an experience replay buffer.
// A Selector never mutates the buffer it chooses from.
type Selector interface {
	// choose selects the slots at which data should be drawn from
	// the experience replay buffer
	choose(c orderedSampler) []int

	// BatchSize returns the number of slots that will be selected
	BatchSize() int
}

// orderedSampler exposes a replay buffer's occupied slots and their
// insertion order to a Selector
type orderedSampler interface {
	// sampleFrom returns the slots holding data
	sampleFrom() []int

	// insertOrder returns the first n slots that data was inserted
	// at, oldest first. At most the number of occupied slots is
	// returned.
	insertOrder(n int) []int
}

// uniformSelector is a Selector which selects slots from an
// experience replay buffer uniformly randomly, with replacement
type uniformSelector struct {
	samples int
	rng     *rand.Rand
}

// NewUniformSelector returns a new Selector which selects data
// uniformly randomly from an experience replay buffer
func NewUniformSelector(samples int, seed uint64) Selector {
	return &uniformSelector{
		samples: samples,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// BatchSize gets the number of samples in a batch drawn from the
// buffer
func (u *uniformSelector) BatchSize() int {
	return u.samples
}

// choose selects the slots at which to draw data from the buffer
func (u *uniformSelector) choose(c orderedSampler) []int {
	from := c.sampleFrom()
	selected := make([]int, u.BatchSize())
	for i := range selected {
		selected[i] = from[u.rng.Intn(len(from))]
	}
	return selected
}

// fifoSelector is a Selector which selects slots from an experience
// replay buffer first-in-first-out
type fifoSelector struct {
	samples int
}

// NewFifoSelector returns a new Selector which draws data from an
// experience replay buffer FiFo
func NewFifoSelector(samples int) Selector {
	return &fifoSelector{samples: samples}
}

// BatchSize gets the number of samples in a batch drawn from the
// buffer
func (f *fifoSelector) BatchSize() int {
	return f.samples
}

// choose selects the slots at which to draw data from the buffer,
// oldest data first
func (f *fifoSelector) choose(c orderedSampler) []int {
	return c.insertOrder(intutils.Min(f.BatchSize(), len(c.sampleFrom())))
}
