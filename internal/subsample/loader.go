// Package subsample loads on-disk datasets under a memory budget, applying
// one integer stride to every axis when a dataset is too large to load
// fully. The reduction is lossy and one-way: subsampled index k corresponds
// to original index k*stride, an approximation downstream analysis must
// tolerate.
package subsample

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/jvillar/structlab/internal/arrstore"
)

// DefaultMaxSize bounds the leading dimension of a loaded array.
const DefaultMaxSize = 2000

// Loader applies the stride rule to datasets.
//
// RefLength, when set, is a shared reference length for correlated datasets:
// datasets of that exact size get their stride from it and stay
// index-aligned; datasets of any other size use their own length, so a
// dataset small enough for the budget always loads unchanged.
type Loader struct {
	MaxSize   int
	RefLength int
}

// New creates a loader with the given memory budget.
func New(maxSize int) *Loader {
	if maxSize < 1 {
		maxSize = DefaultMaxSize
	}
	return &Loader{MaxSize: maxSize}
}

// Stride returns the stride that applies to a dataset of leading dimension
// n, and whether subsampling applies at all. The reference length only
// governs datasets of exactly that size; anything else falls back to its
// own length, so small datasets always load unchanged.
func (l *Loader) Stride(n int) (int, bool) {
	ref := n
	if l.RefLength > 0 && l.RefLength == n {
		ref = l.RefLength
	}
	if ref <= l.MaxSize {
		return 1, false
	}
	return ref / l.MaxSize, true
}

// Matrix loads a 2-D dataset, strided on both axes when its leading
// dimension exceeds the budget.
type Matrix struct {
	Data       *mat.Dense
	Stride     int
	Subsampled bool
}

// Vector loads a 1-D dataset under the same stride rule.
type Vector struct {
	Data       []float64
	Stride     int
	Subsampled bool
}

// LoadMatrix reads a 2-D dataset within the budget.
func (l *Loader) LoadMatrix(ds arrstore.Dataset) (*Matrix, error) {
	shape := ds.Shape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("subsample: expected 2-D dataset, got shape %v", shape)
	}

	stride, sub := l.Stride(shape[0])
	if !sub {
		data, err := ds.ReadBlock([]int{0, 0}, shape)
		if err != nil {
			return nil, fmt.Errorf("subsample: %w", err)
		}
		return &Matrix{Data: mat.NewDense(shape[0], shape[1], data), Stride: 1}, nil
	}

	data, outShape, err := ds.ReadStrided(stride)
	if err != nil {
		return nil, fmt.Errorf("subsample: %w", err)
	}
	return &Matrix{
		Data:       mat.NewDense(outShape[0], outShape[1], data),
		Stride:     stride,
		Subsampled: true,
	}, nil
}

// LoadVector reads a 1-D dataset within the budget.
func (l *Loader) LoadVector(ds arrstore.Dataset) (*Vector, error) {
	shape := ds.Shape()
	if len(shape) != 1 {
		return nil, fmt.Errorf("subsample: expected 1-D dataset, got shape %v", shape)
	}

	stride, sub := l.Stride(shape[0])
	if !sub {
		data, err := ds.ReadBlock([]int{0}, shape)
		if err != nil {
			return nil, fmt.Errorf("subsample: %w", err)
		}
		return &Vector{Data: data, Stride: 1}, nil
	}

	data, _, err := ds.ReadStrided(stride)
	if err != nil {
		return nil, fmt.Errorf("subsample: %w", err)
	}
	return &Vector{Data: data, Stride: stride, Subsampled: true}, nil
}
