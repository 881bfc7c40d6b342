// Package analysis computes diagnostic statistics of loaded structural
// matrices: bandwidth, sparsity, diagonal range and mass totals. The
// numbers are descriptive; they feed the report, not the solvers.
package analysis

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// bandwidthSampleRows bounds the rows scanned by EstimateBandwidth.
const bandwidthSampleRows = 100

// EstimateBandwidth estimates the band width of a matrix by scanning the
// first rows for their outermost significant entries. Entries below 1e-10
// of the row maximum count as zero.
func EstimateBandwidth(a *mat.Dense) int {
	n, cols := a.Dims()
	rows := min(n, bandwidthSampleRows)

	maxBand := 0
	for i := 0; i < rows; i++ {
		rowMax := 0.0
		for j := 0; j < cols; j++ {
			if v := math.Abs(a.At(i, j)); v > rowMax {
				rowMax = v
			}
		}
		if rowMax == 0 {
			continue
		}
		lo, hi := -1, -1
		for j := 0; j < cols; j++ {
			if math.Abs(a.At(i, j)) > rowMax*1e-10 {
				if lo < 0 {
					lo = j
				}
				hi = j
			}
		}
		if lo >= 0 && hi-lo+1 > maxBand {
			maxBand = hi - lo + 1
		}
	}
	if maxBand > n {
		return n
	}
	return maxBand
}

// Sparsity returns the percentage of exactly-zero entries.
func Sparsity(a *mat.Dense) float64 {
	r, c := a.Dims()
	if r*c == 0 {
		return 0
	}
	zeros := 0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if a.At(i, j) == 0 {
				zeros++
			}
		}
	}
	return 100 * float64(zeros) / float64(r*c)
}

// DiagRange returns the minimum and maximum diagonal entries.
func DiagRange(a *mat.Dense) (lo, hi float64) {
	r, c := a.Dims()
	n := min(r, c)
	if n == 0 {
		return 0, 0
	}
	lo, hi = a.At(0, 0), a.At(0, 0)
	for i := 1; i < n; i++ {
		v := a.At(i, i)
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// ConditionEstimate approximates the condition number as the ratio of the
// largest to smallest diagonal entry. It is a cheap screening figure for
// diagonally dominant matrices, not a norm-based condition number.
func ConditionEstimate(a *mat.Dense) float64 {
	lo, hi := DiagRange(a)
	if lo == 0 {
		return math.Inf(1)
	}
	return hi / lo
}

// MassTotals sums the diagonal of a mass matrix, returning the total mass
// and the mean mass per DOF.
func MassTotals(m *mat.Dense) (total, perDOF float64) {
	r, c := m.Dims()
	n := min(r, c)
	if n == 0 {
		return 0, 0
	}
	for i := 0; i < n; i++ {
		total += m.At(i, i)
	}
	return total, total / float64(n)
}
