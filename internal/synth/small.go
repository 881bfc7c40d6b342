package synth

import (
	"context"
	"fmt"
	"math/rand"
)

// randomScale is the magnitude of the random entries in the small dense
// stiffness matrix before diagonal dominance is added.
const randomScale = 1e10

// RunSmall generates a dense small test case: a random symmetric stiffness
// matrix with the base stiffness added on the diagonal, a diagonal mass
// matrix and the usual random vectors. The whole matrix is materialized, so
// this mode is only meant for sizes that comfortably fit in memory.
func (s *Synthesizer) RunSmall(ctx context.Context) error {
	p := s.params
	n := p.Size
	if n < 1 {
		return fmt.Errorf("synth: invalid size %d", n)
	}
	rng := rand.New(rand.NewSource(p.Seed))

	k := make([]float64, n*n)
	for i := range k {
		k[i] = rng.Float64() * randomScale
	}
	// Symmetrize, then make the diagonal dominant.
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			avg := (k[i*n+j] + k[j*n+i]) / 2
			k[i*n+j] = avg
			k[j*n+i] = avg
		}
	}
	for i := 0; i < n; i++ {
		k[i*n+i] += p.BaseStiffness
	}

	stiff, err := s.store.Group(GroupMatrices).Create(DatasetStiffness, []int{n, n})
	if err != nil {
		return fmt.Errorf("synth: %w", err)
	}
	if err := stiff.WriteBlock([]int{0, 0}, []int{n, n}, k); err != nil {
		return fmt.Errorf("synth: stiffness: %w", err)
	}

	mass, err := s.store.Group(GroupMatrices).Create(DatasetMass, []int{n, n})
	if err != nil {
		return fmt.Errorf("synth: %w", err)
	}
	if err := s.writeBlocked(ctx, mass, MassBlock); err != nil {
		return fmt.Errorf("synth: mass: %w", err)
	}

	if err := s.writeVectors(ctx); err != nil {
		return fmt.Errorf("synth: %w", err)
	}
	return s.writeAttrs()
}
