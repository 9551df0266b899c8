package covariance

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"gomatch/domain/core"
)

// DefaultEpsilon is the ridge term added to the covariance diagonal before
// inversion. Small enough not to distort well-conditioned samples, large
// enough to make near-collinear covariates invertible.
const DefaultEpsilon = 1e-6

// Precision is the inverted, regularized covariance matrix shared by every
// distance computation. Immutable once built.
type Precision struct {
	sym *mat.SymDense
}

// NewPrecision wraps an already-inverted covariance matrix. Callers that
// estimate from raw samples should use Estimator instead.
func NewPrecision(sym *mat.SymDense) *Precision {
	return &Precision{sym: sym}
}

// Dim returns the covariate dimension k
func (p *Precision) Dim() int {
	return p.sym.SymmetricDim()
}

// Matrix exposes the underlying symmetric matrix read-only
func (p *Precision) Matrix() mat.Symmetric {
	return p.sym
}

// Quadratic evaluates diffᵀ Σ⁻¹ diff for a difference vector
func (p *Precision) Quadratic(diff []float64) float64 {
	k := p.Dim()
	total := 0.0
	for i := 0; i < k; i++ {
		row := 0.0
		for j := 0; j < k; j++ {
			row += p.sym.At(i, j) * diff[j]
		}
		total += row * diff[i]
	}
	return total
}

// Estimator computes a numerically stable precision matrix from the pooled
// covariate sample.
type Estimator struct {
	epsilon float64
}

// NewEstimator creates an estimator with the given ridge epsilon. A zero or
// negative epsilon falls back to DefaultEpsilon.
func NewEstimator(epsilon float64) *Estimator {
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}
	return &Estimator{epsilon: epsilon}
}

// Epsilon returns the configured ridge term
func (e *Estimator) Epsilon() float64 {
	return e.epsilon
}

// Estimate computes Σ over the sample columns, adds ε·I and inverts via
// Cholesky. Rows containing non-finite values are excluded from estimation.
// Fails with ErrSingularCovariance when Σ+εI is not positive definite or
// when fewer than two complete rows remain.
func (e *Estimator) Estimate(sample [][]float64) (*Precision, error) {
	complete := completeRows(sample)
	if len(complete) < 2 {
		return nil, core.NewSingularCovarianceError("need at least 2 complete covariate rows")
	}

	k := len(complete[0])
	data := mat.NewDense(len(complete), k, nil)
	for i, row := range complete {
		data.SetRow(i, row)
	}

	sigma := mat.NewSymDense(k, nil)
	stat.CovarianceMatrix(sigma, data, nil)

	// Ridge regularization: Σ + εI
	for i := 0; i < k; i++ {
		sigma.SetSym(i, i, sigma.At(i, i)+e.epsilon)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(sigma); !ok {
		return nil, core.NewSingularCovarianceError("Cholesky factorization failed after ridge regularization")
	}

	prec := mat.NewSymDense(k, nil)
	if err := chol.InverseTo(prec); err != nil {
		// A Condition error still fills the inverse; anything else is fatal.
		if _, ok := err.(mat.Condition); !ok {
			return nil, core.NewSingularCovarianceError(err.Error())
		}
	}

	return &Precision{sym: prec}, nil
}

func completeRows(sample [][]float64) [][]float64 {
	complete := make([][]float64, 0, len(sample))
	for _, row := range sample {
		if rowComplete(row) {
			complete = append(complete, row)
		}
	}
	return complete
}

func rowComplete(row []float64) bool {
	for _, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return len(row) > 0
}
