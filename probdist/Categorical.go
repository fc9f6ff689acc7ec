// Package probdist provides probability distributions over discrete
// supports along with the numeric machinery needed to construct
// bootstrapped targets from them.
package probdist

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/samuelfneumann/gotd/utils/floatutils"
)

// Categorical is a categorical distribution over a fixed number of
// categories. The distribution itself is stateless. Each method takes
// the parameters of a concrete distribution (logits or probabilities)
// as an argument, so that a single Categorical can serve every sample
// in a batch.
type Categorical struct {
	n int
}

// NewCategorical returns a categorical distribution over n categories
func NewCategorical(n int) (*Categorical, error) {
	if n < 1 {
		return nil, fmt.Errorf("newcategorical: categories must be "+
			"positive \n\twant(> 0) \n\thave(%v)", n)
	}

	return &Categorical{n: n}, nil
}

// NumCategories returns the number of categories of the distribution
func (c *Categorical) NumCategories() int {
	return c.n
}

// Probs converts unnormalized logits into probabilities using a
// numerically stable softmax
func (c *Categorical) Probs(logits []float64) []float64 {
	c.checkLen("probs", logits)

	lse := floats.LogSumExp(logits)
	probs := make([]float64, c.n)
	for i, logit := range logits {
		probs[i] = math.Exp(logit - lse)
	}

	return probs
}

// LogProbs converts unnormalized logits into log probabilities using
// a numerically stable log-softmax
func (c *Categorical) LogProbs(logits []float64) []float64 {
	c.checkLen("logprobs", logits)

	lse := floats.LogSumExp(logits)
	logProbs := make([]float64, c.n)
	for i, logit := range logits {
		logProbs[i] = logit - lse
	}

	return logProbs
}

// Sample returns the index of a category drawn from the distribution
// with the argument probabilities
func (c *Categorical) Sample(probs []float64, rng *rand.Rand) int {
	c.checkLen("sample", probs)

	dist := distuv.NewCategorical(probs, rng)
	return int(dist.Rand())
}

// Mode returns the index of the most probable category, breaking
// ties in favour of the lowest index
func (c *Categorical) Mode(probs []float64) int {
	c.checkLen("mode", probs)

	_, indices := floatutils.MaxSlice(probs)
	return indices[0]
}

// Entropy returns the entropy of the distribution with the argument
// probabilities. Categories with no probability mass contribute
// nothing to the entropy.
func (c *Categorical) Entropy(probs []float64) float64 {
	c.checkLen("entropy", probs)

	entropy := 0.0
	for _, prob := range probs {
		if prob > 0 {
			entropy -= prob * math.Log(prob)
		}
	}

	return entropy
}

// KL returns the Kullback-Leibler divergence from the distribution
// with probabilities q to the distribution with probabilities p
func (c *Categorical) KL(p, q []float64) float64 {
	c.checkLen("kl", p)
	c.checkLen("kl", q)

	kl := 0.0
	for i := range p {
		if p[i] > 0 {
			kl += p[i] * (math.Log(p[i]) - math.Log(q[i]))
		}
	}

	return kl
}

// checkLen panics if params is not a legal parameter vector for the
// distribution. Callers of the exported methods are responsible for
// providing parameters of the correct length.
func (c *Categorical) checkLen(op string, params []float64) {
	if len(params) != c.n {
		panic(fmt.Sprintf("%v: illegal number of distribution "+
			"parameters \n\twant(%v) \n\thave(%v)", op, c.n, len(params)))
	}
}
