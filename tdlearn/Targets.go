package tdlearn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/gotd/funcapprox"
	"github.com/samuelfneumann/gotd/probdist"
	"github.com/samuelfneumann/gotd/timestep"
	"github.com/samuelfneumann/gotd/utils/floatutils"
)

// checkQPair ensures a target state-action value function can stand in
// for the online function it bootstraps
func checkQPair(online, target *funcapprox.Q) error {
	if target == nil {
		return fmt.Errorf("no target function given")
	}
	if target.Features() != online.Features() {
		return fmt.Errorf("target features do not match online features "+
			"\n\twant(%v) \n\thave(%v)", online.Features(), target.Features())
	}
	if target.NumActions() != online.NumActions() {
		return fmt.Errorf("target actions do not match online actions "+
			"\n\twant(%v) \n\thave(%v)", online.NumActions(),
			target.NumActions())
	}
	if target.Distributional() != online.Distributional() {
		return fmt.Errorf("online and target functions must both be " +
			"scalar or both be distributional")
	}
	if online.Distributional() &&
		target.Support().NumAtoms() != online.Support().NumAtoms() {
		return fmt.Errorf("target support does not match online support "+
			"\n\twant(%v atoms) \n\thave(%v atoms)",
			online.Support().NumAtoms(), target.Support().NumAtoms())
	}
	return nil
}

// checkVPair ensures a target state value function can stand in for
// the online function it bootstraps
func checkVPair(online, target *funcapprox.V) error {
	if target == nil {
		return fmt.Errorf("no target function given")
	}
	if target.Features() != online.Features() {
		return fmt.Errorf("target features do not match online features "+
			"\n\twant(%v) \n\thave(%v)", online.Features(), target.Features())
	}
	if target.Distributional() != online.Distributional() {
		return fmt.Errorf("online and target functions must both be " +
			"scalar or both be distributional")
	}
	if online.Distributional() &&
		target.Support().NumAtoms() != online.Support().NumAtoms() {
		return fmt.Errorf("target support does not match online support "+
			"\n\twant(%v atoms) \n\thave(%v atoms)",
			online.Support().NumAtoms(), target.Support().NumAtoms())
	}
	return nil
}

// bootstrapTargets folds real-scale bootstrap values into the n-step
// targets of the batch on the transform scale:
//
//	target <- f(Rn + In * boot)
func bootstrapTargets(transform *probdist.ValueTransform,
	batch timestep.Batch, boots []float64) []float64 {
	targets := make([]float64, batch.Size())
	for i := range targets {
		target := batch.Rewards.AtVec(i) + batch.Discounts.AtVec(i)*boots[i]
		if transform != nil {
			target = transform.Fn(target)
		}
		targets[i] = target
	}
	return targets
}

// bellmanProject maps per-transition atom distributions through the
// n-step Bellman affine map
//
//	atom -> Rn + In * atom
//
// on the real scale and redistributes the mass onto support
func bellmanProject(support *probdist.Support,
	transform *probdist.ValueTransform, batch timestep.Batch,
	probs *mat.Dense) (*mat.Dense, error) {
	return support.Project(probs, batch.Rewards, batch.Discounts, transform)
}

// greedyIndices returns the column of the largest value in each row,
// breaking ties in favour of the lowest index
func greedyIndices(values *mat.Dense) []int {
	rows, _ := values.Dims()
	indices := make([]int, rows)
	for i := range indices {
		_, maxIndices := floatutils.MaxSlice(values.RawRowView(i))
		indices[i] = maxIndices[0]
	}
	return indices
}

// gatherBlocks collects the atom block of one action per row of a
// (rows x actions*atoms) probability matrix
func gatherBlocks(probs *mat.Dense, indices []int, atoms int) *mat.Dense {
	rows, _ := probs.Dims()
	blocks := mat.NewDense(rows, atoms, nil)
	for i := 0; i < rows; i++ {
		row := probs.RawRowView(i)
		blocks.SetRow(i, row[indices[i]*atoms:(indices[i]+1)*atoms])
	}
	return blocks
}

// vecSlice copies a vector into a plain slice
func vecSlice(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}

// realScale maps a value from the transform scale to the real scale
func realScale(transform *probdist.ValueTransform, value float64) float64 {
	if transform == nil {
		return value
	}
	return transform.Inverse(value)
}

// qEstimates returns the bundled function's estimate of each
// transition's taken state-action pair: the raw head value for a
// scalar function and the real-scale distribution mean for a
// distributional one
func qEstimates(q *funcapprox.Q, b *TargetBundle, key string,
	batch timestep.Batch) ([]float64, error) {
	p, st, err := b.entry(key)
	if err != nil {
		return nil, err
	}

	out, _, err := q.Forward(p, st, q.Rng(), batch.Obs, false)
	if err != nil {
		return nil, err
	}

	indices := batch.ActionIndices()
	estimates := make([]float64, batch.Size())

	if !q.Distributional() {
		for i := range estimates {
			estimates[i] = out.At(i, indices[i])
		}
		return estimates, nil
	}

	probs, err := q.DistProbs(out)
	if err != nil {
		return nil, err
	}

	atoms := q.Support().NumAtoms()
	for i := range estimates {
		block := probs.RawRowView(i)[indices[i]*atoms : (indices[i]+1)*atoms]
		estimates[i] = realScale(q.Transform(), q.Support().Mean(block))
	}
	return estimates, nil
}

// vEstimates returns the bundled function's estimate of each
// transition's current state: the raw head value for a scalar
// function and the real-scale distribution mean for a distributional
// one
func vEstimates(v *funcapprox.V, b *TargetBundle, key string,
	batch timestep.Batch) ([]float64, error) {
	p, st, err := b.entry(key)
	if err != nil {
		return nil, err
	}

	out, _, err := v.Forward(p, st, v.Rng(), batch.Obs, false)
	if err != nil {
		return nil, err
	}

	estimates := make([]float64, batch.Size())
	if !v.Distributional() {
		for i := range estimates {
			estimates[i] = out.At(i, 0)
		}
		return estimates, nil
	}

	probs, err := v.DistProbs(out)
	if err != nil {
		return nil, err
	}
	for i := range estimates {
		estimates[i] = realScale(v.Transform(),
			v.Support().Mean(probs.RawRowView(i)))
	}
	return estimates, nil
}
