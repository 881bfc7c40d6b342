// Package modal solves the generalized eigenvalue problem K x = λ M x for
// the lowest-frequency vibration modes of a loaded (sub)matrix pair.
package modal

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Numerical failures. They are recoverable: callers skip modal analysis and
// continue with the rest of the run.
var (
	// ErrDimensionMismatch indicates non-square or non-conformant inputs.
	ErrDimensionMismatch = errors.New("modal: dimension mismatch between stiffness and mass")

	// ErrSingularMass indicates a mass matrix that is not positive definite.
	ErrSingularMass = errors.New("modal: singular or indefinite mass matrix")

	// ErrNotConverged indicates the eigensolver failed to factorize.
	ErrNotConverged = errors.New("modal: eigensolver did not converge")
)

// Reduction names the strategy used to bound the problem size before
// solving. LeadingBlock is an accuracy shortcut, not a physically grounded
// reduction; it captures a subset of DOFs, nothing more. The named value
// exists so a real reduction (Guyan condensation) can be swapped in without
// changing the solver contract.
type Reduction string

const (
	// ReductionNone solves the full system regardless of size.
	ReductionNone Reduction = "none"

	// ReductionLeadingBlock restricts K and M to the leading principal
	// submatrix when the system exceeds the truncation bound.
	ReductionLeadingBlock Reduction = "leading-block"
)

const (
	// DefaultTruncation is the leading-block size bound.
	DefaultTruncation = 500

	// DefaultModeCount is the number of eigenpairs extracted.
	DefaultModeCount = 6
)

// Solver computes modal decompositions.
type Solver struct {
	Reduction  Reduction
	Truncation int
}

// NewSolver returns a solver with the reference policy: leading-block
// truncation at 500 DOF.
func NewSolver() *Solver {
	return &Solver{Reduction: ReductionLeadingBlock, Truncation: DefaultTruncation}
}

// Mode is one eigenpair of the generalized problem.
type Mode struct {
	Frequency  float64 // natural frequency, Hz
	Eigenvalue float64
	Shape      []float64
	Residual   float64 // |K x - lambda M x|
}

// Result holds the extracted modes in ascending eigenvalue order, plus the
// approximation notices and numerical warnings accumulated on the way.
type Result struct {
	Modes     []Mode
	Truncated bool
	Notices   []string
	Warnings  []string
}

// Frequencies returns the natural frequencies in Hz.
func (r *Result) Frequencies() []float64 {
	out := make([]float64, len(r.Modes))
	for i, m := range r.Modes {
		out[i] = m.Frequency
	}
	return out
}

// Solve extracts the modeCount smallest-magnitude eigenpairs of
// K x = λ M x. Both matrices are truncated identically when the reduction
// policy applies, then converted to sparse form; the symmetric reduced
// problem is solved densely (it is bounded by the truncation size) and each
// eigenpair is verified through the sparse operators.
func (s *Solver) Solve(k, m mat.Matrix, modeCount int) (*Result, error) {
	kr, kc := k.Dims()
	mr, mc := m.Dims()
	if kr != kc || mr != mc || kr != mr {
		return nil, fmt.Errorf("%w: K %dx%d, M %dx%d", ErrDimensionMismatch, kr, kc, mr, mc)
	}
	if modeCount <= 0 {
		modeCount = DefaultModeCount
	}

	res := &Result{}
	n := kr
	if s.Reduction == ReductionLeadingBlock && s.Truncation > 0 && n > s.Truncation {
		n = s.Truncation
		res.Truncated = true
		res.Notices = append(res.Notices,
			fmt.Sprintf("restricted to leading %dx%d block of %d DOF (approximation, not a reduced model)", n, n, kr))
	}
	kd := leadingDense(k, n)
	md := leadingDense(m, n)
	if modeCount > n {
		modeCount = n
	}

	kcsr := NewCSR(kd, 0)
	mcsr := NewCSR(md, 0)

	// Reduce K x = λ M x to a standard symmetric problem B y = λ y.
	var b *mat.SymDense
	var backTransform func(y []float64) []float64
	if mcsr.DiagonalOnly() {
		d := mcsr.Diag()
		for i, v := range d {
			if v <= 0 {
				return nil, fmt.Errorf("%w: non-positive diagonal mass at DOF %d", ErrSingularMass, i)
			}
		}
		b = diagScaled(kd, d)
		backTransform = func(y []float64) []float64 {
			x := make([]float64, len(y))
			for i := range y {
				x[i] = y[i] / math.Sqrt(d[i])
			}
			return x
		}
	} else {
		var chol mat.Cholesky
		if !chol.Factorize(symmetrize(md)) {
			return nil, ErrSingularMass
		}
		var l mat.TriDense
		chol.LTo(&l)

		var tmp, c mat.Dense
		if err := tmp.Solve(&l, kd); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotConverged, err)
		}
		if err := c.Solve(&l, tmp.T()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotConverged, err)
		}
		b = symmetrize(&c)
		backTransform = func(y []float64) []float64 {
			var x mat.VecDense
			if err := x.SolveVec(l.T(), mat.NewVecDense(len(y), y)); err != nil {
				return y
			}
			return x.RawVector().Data
		}
	}

	var es mat.EigenSym
	if !es.Factorize(b, true) {
		return nil, ErrNotConverged
	}
	values := es.Values(nil) // ascending
	var vectors mat.Dense
	es.VectorsTo(&vectors)

	for i := 0; i < modeCount; i++ {
		lambda := values[i]
		if lambda < 0 {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("mode %d: negative eigenvalue %.6e, not a physically valid (K,M) pair", i+1, lambda))
		}

		y := make([]float64, n)
		mat.Col(y, i, &vectors)
		shape := normalize(backTransform(y))

		mode := Mode{
			Eigenvalue: lambda,
			Frequency:  frequency(lambda),
			Shape:      shape,
			Residual:   residual(kcsr, mcsr, shape, lambda),
		}
		res.Modes = append(res.Modes, mode)
	}
	return res, nil
}

// frequency converts an eigenvalue to its natural frequency in Hz.
// Negative eigenvalues map to zero; the caller carries the warning.
func frequency(lambda float64) float64 {
	if lambda <= 0 {
		return 0
	}
	return math.Sqrt(lambda) / (2 * math.Pi)
}

func residual(k, m *CSR, x []float64, lambda float64) float64 {
	kx := make([]float64, len(x))
	mx := make([]float64, len(x))
	k.MulVec(kx, x)
	m.MulVec(mx, x)
	var sum float64
	for i := range x {
		r := kx[i] - lambda*mx[i]
		sum += r * r
	}
	return math.Sqrt(sum)
}

func normalize(x []float64) []float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return x
	}
	for i := range x {
		x[i] /= norm
	}
	return x
}

// leadingDense copies the leading n×n principal submatrix.
func leadingDense(a mat.Matrix, n int) *mat.Dense {
	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out.Set(i, j, a.At(i, j))
		}
	}
	return out
}

// diagScaled builds the symmetric matrix D^{-1/2} K D^{-1/2} for diagonal
// mass d, symmetrizing K's values on the way.
func diagScaled(k *mat.Dense, d []float64) *mat.SymDense {
	n := len(d)
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := (k.At(i, j) + k.At(j, i)) / 2
			out.SetSym(i, j, v/math.Sqrt(d[i]*d[j]))
		}
	}
	return out
}

func symmetrize(a *mat.Dense) *mat.SymDense {
	n, _ := a.Dims()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, (a.At(i, j)+a.At(j, i))/2)
		}
	}
	return out
}
