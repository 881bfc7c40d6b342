// Package synth generates large banded structural matrices block by block,
// streaming each finished block to the array store so the full matrix is
// never held in memory.
package synth

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"github.com/jvillar/structlab/internal/arrstore"
)

// Dataset layout written by the synthesizer and read back by the analysis
// pipeline.
const (
	GroupMatrices = "matrices"
	GroupVectors  = "vectors"
	GroupResults  = "results"

	DatasetStiffness    = "stiffness"
	DatasetMass         = "mass"
	DatasetForce        = "force"
	DatasetDisplacement = "displacement"
)

// Params controls the synthesized patterns. Defaults reproduce a stiffness
// diagonal around 7e10 N/m with an exponentially decaying off-diagonal band
// and a constant 0.054 kg mass per degree of freedom.
type Params struct {
	Size          int
	BlockEdge     int
	Bandwidth     int
	BaseStiffness float64
	Amplitude     float64
	Period        float64
	Decay         float64
	OffDiagScale  float64
	MassPerDOF    float64
	ForceSigma    float64
	DispSigma     float64
	Seed          int64
	Workers       int
}

// DefaultParams returns the reference parameter set for a given matrix size.
func DefaultParams(size int) Params {
	return Params{
		Size:          size,
		BlockEdge:     1000,
		Bandwidth:     50,
		BaseStiffness: 7e10,
		Amplitude:     0.1,
		Period:        1000,
		Decay:         10,
		OffDiagScale:  0.3,
		MassPerDOF:    0.054,
		ForceSigma:    1000,
		DispSigma:     1e-6,
		Seed:          42,
		Workers:       1,
	}
}

// StiffnessBlock computes the values of the stiffness block with global
// origin (i0, j0). It is a pure function of its arguments, so blocks may be
// computed in any order or in parallel. A nil result means the block lies
// entirely outside the band and carries no values.
func StiffnessBlock(p Params, i0, j0, rows, cols int) []float64 {
	if abs(i0-j0) >= 2*p.BlockEdge {
		return nil
	}

	block := make([]float64, rows*cols)
	switch {
	case i0 == j0:
		// Diagonal block: slowly varying, always-positive diagonal.
		for k := 0; k < rows && k < cols; k++ {
			idx := i0 + k
			block[k*cols+k] = p.BaseStiffness * (1.0 + p.Amplitude*math.Sin(float64(idx)/p.Period))
		}
	case abs(i0-j0) <= p.BlockEdge:
		// Near-diagonal block: decaying band of fixed bandwidth.
		for bi := 0; bi < rows; bi++ {
			for bj := 0; bj < cols; bj++ {
				dist := abs((i0 + bi) - (j0 + bj))
				if dist <= p.Bandwidth {
					block[bi*cols+bj] = -p.BaseStiffness * math.Exp(-float64(dist)/p.Decay) * p.OffDiagScale
				}
			}
		}
	}
	return block
}

// MassBlock computes the diagonal mass block with global origin (i0, j0).
// Only blocks intersecting the global diagonal carry values.
func MassBlock(p Params, i0, j0, rows, cols int) []float64 {
	if i0 != j0 {
		return nil
	}
	block := make([]float64, rows*cols)
	for k := 0; k < rows && k < cols; k++ {
		block[k*cols+k] = p.MassPerDOF
	}
	return block
}

// Synthesizer writes the four reference datasets into a store.
type Synthesizer struct {
	store  arrstore.Store
	params Params
}

// New creates a synthesizer over the given store.
func New(store arrstore.Store, params Params) *Synthesizer {
	if params.BlockEdge < 1 {
		params.BlockEdge = DefaultParams(params.Size).BlockEdge
	}
	if params.Workers < 1 {
		params.Workers = 1
	}
	return &Synthesizer{store: store, params: params}
}

// Run generates the banded stiffness matrix, the diagonal mass matrix and
// the force/displacement vectors. Any write failure aborts the run; a store
// left unclosed after a failure must be treated as corrupt.
func (s *Synthesizer) Run(ctx context.Context) error {
	p := s.params
	n := p.Size
	if n < 1 {
		return fmt.Errorf("synth: invalid size %d", n)
	}

	stiff, err := s.store.Group(GroupMatrices).Create(DatasetStiffness, []int{n, n})
	if err != nil {
		return fmt.Errorf("synth: %w", err)
	}
	if err := s.writeBlocked(ctx, stiff, StiffnessBlock); err != nil {
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

// writeBlocked fans blocks out over a bounded worker group. With one worker
// (the default) blocks are generated in the reference row-major order.
func (s *Synthesizer) writeBlocked(ctx context.Context, ds arrstore.Dataset, pattern func(Params, int, int, int, int) []float64) error {
	p := s.params
	n := p.Size

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Workers)

	for i0 := 0; i0 < n; i0 += p.BlockEdge {
		for j0 := 0; j0 < n; j0 += p.BlockEdge {
			i0, j0 := i0, j0
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				rows := min(p.BlockEdge, n-i0)
				cols := min(p.BlockEdge, n-j0)
				block := pattern(p, i0, j0, rows, cols)
				if block == nil {
					return nil
				}
				return ds.WriteBlock([]int{i0, j0}, []int{rows, cols}, block)
			})
		}
	}
	return g.Wait()
}

// writeVectors generates the gaussian force and displacement vectors in
// block-sized segments from a single seeded source.
func (s *Synthesizer) writeVectors(ctx context.Context) error {
	p := s.params
	rng := rand.New(rand.NewSource(p.Seed))

	specs := []struct {
		group string
		name  string
		sigma float64
	}{
		{GroupVectors, DatasetForce, p.ForceSigma},
		{GroupResults, DatasetDisplacement, p.DispSigma},
	}

	for _, spec := range specs {
		ds, err := s.store.Group(spec.group).Create(spec.name, []int{p.Size})
		if err != nil {
			return err
		}
		for off := 0; off < p.Size; off += p.BlockEdge {
			if err := ctx.Err(); err != nil {
				return err
			}
			nv := min(p.BlockEdge, p.Size-off)
			seg := make([]float64, nv)
			for i := range seg {
				seg[i] = rng.NormFloat64() * spec.sigma
			}
			if err := ds.WriteBlock([]int{off}, []int{nv}, seg); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Synthesizer) writeAttrs() error {
	attrs := map[string]any{
		"description": "synthetic structural test matrices",
		"size":        s.params.Size,
		"n_dof":       s.params.Size,
		"created_by":  "structlab generate",
	}
	for name, v := range attrs {
		if err := s.store.SetAttr(name, v); err != nil {
			return fmt.Errorf("synth: %w", err)
		}
	}
	return nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
