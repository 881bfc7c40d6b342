package modal

import "gonum.org/v1/gonum/mat"

// CSR is a compressed sparse row matrix. The solver converts the truncated
// dense blocks to this form before operating on them; for banded structural
// matrices the nonzero fraction is small, so products and residual checks
// stay cheap.
type CSR struct {
	rows, cols int
	indptr     []int
	indices    []int
	data       []float64
}

// NewCSR compresses a dense matrix, dropping entries with absolute value
// at or below tol.
func NewCSR(a mat.Matrix, tol float64) *CSR {
	r, c := a.Dims()
	m := &CSR{
		rows:   r,
		cols:   c,
		indptr: make([]int, r+1),
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := a.At(i, j)
			if v > tol || v < -tol {
				m.indices = append(m.indices, j)
				m.data = append(m.data, v)
			}
		}
		m.indptr[i+1] = len(m.data)
	}
	return m
}

// Dims returns the matrix dimensions.
func (m *CSR) Dims() (r, c int) { return m.rows, m.cols }

// At returns the element at (i, j).
func (m *CSR) At(i, j int) float64 {
	if i < 0 || m.rows <= i {
		panic("row index out of range")
	}
	if j < 0 || m.cols <= j {
		panic("column index out of range")
	}
	for k := m.indptr[i]; k < m.indptr[i+1]; k++ {
		if m.indices[k] == j {
			return m.data[k]
		}
	}
	return 0
}

// T returns the transpose view.
func (m *CSR) T() mat.Matrix { return mat.Transpose{Matrix: m} }

// NNZ returns the number of stored nonzeros.
func (m *CSR) NNZ() int { return len(m.data) }

// MulVec computes dst = M*x.
func (m *CSR) MulVec(dst, x []float64) {
	if m.cols != len(x) {
		panic("dimension mismatch")
	}
	if m.rows != len(dst) {
		panic("dimension mismatch")
	}
	for i := 0; i < m.rows; i++ {
		var sum float64
		for k := m.indptr[i]; k < m.indptr[i+1]; k++ {
			sum += m.data[k] * x[m.indices[k]]
		}
		dst[i] = sum
	}
}

// Diag returns the main diagonal as a dense slice.
func (m *CSR) Diag() []float64 {
	n := min(m.rows, m.cols)
	d := make([]float64, n)
	for i := 0; i < n; i++ {
		for k := m.indptr[i]; k < m.indptr[i+1]; k++ {
			if m.indices[k] == i {
				d[i] = m.data[k]
				break
			}
		}
	}
	return d
}

// DiagonalOnly reports whether every stored nonzero lies on the diagonal.
func (m *CSR) DiagonalOnly() bool {
	for i := 0; i < m.rows; i++ {
		for k := m.indptr[i]; k < m.indptr[i+1]; k++ {
			if m.indices[k] != i {
				return false
			}
		}
	}
	return true
}
