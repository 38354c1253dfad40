// Package matutil collects small gonum matrix helpers shared by the model
// and observer packages.
package matutil

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Eye returns an (n by n) identity matrix.
func Eye(n int) *mat.Dense {
	data := make([]float64, n*n)
	for i := 0; i < n; i++ {
		data[i*n+i] = 1
	}
	return mat.NewDense(n, n, data)
}

// IsZero reports whether every entry of matrix is within tol of zero.
func IsZero(matrix mat.Matrix, tol float64) bool {
	m, n := matrix.Dims()
	for row := 0; row < m; row++ {
		for col := 0; col < n; col++ {
			if math.Abs(matrix.At(row, col)) > tol {
				return false
			}
		}
	}
	return true
}

// IsIdentity reports whether matrix is square and within tol of the
// identity, entrywise.
func IsIdentity(matrix mat.Matrix, tol float64) bool {
	m, n := matrix.Dims()
	if m != n {
		return false
	}
	for row := 0; row < m; row++ {
		for col := 0; col < n; col++ {
			want := 0.
			if row == col {
				want = 1.
			}
			if math.Abs(matrix.At(row, col)-want) > tol {
				return false
			}
		}
	}
	return true
}

// NaNOrInf checks if there are any NaN or Inf entries in matrix.
func NaNOrInf(matrix mat.Matrix) bool {
	m, n := matrix.Dims()
	for row := 0; row < m; row++ {
		for col := 0; col < n; col++ {
			if math.IsNaN(matrix.At(row, col)) || math.IsInf(matrix.At(row, col), 0) {
				return true
			}
		}
	}
	return false
}

// Symmetrize overwrites the square matrix p with (p + p')/2, countering
// the symmetry drift that accumulates over repeated covariance updates.
func Symmetrize(p *mat.Dense) {
	m, n := p.Dims()
	if m != n {
		panic("matutil: cannot symmetrize a non-square matrix")
	}
	for row := 0; row < m; row++ {
		for col := row + 1; col < n; col++ {
			avg := (p.At(row, col) + p.At(col, row)) / 2.
			p.Set(row, col, avg)
			p.Set(col, row, avg)
		}
	}
}
