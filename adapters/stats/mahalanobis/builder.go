package mahalanobis

import (
	"context"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"gomatch/adapters/stats/covariance"
	"gomatch/domain/cohort"
	"gomatch/domain/core"
)

// Forbidden marks a treated/control pair excluded by risk-set eligibility.
// The assigner treats these entries as unusable.
const Forbidden = math.MaxFloat64

// Matrix is the m×n treated×control distance matrix. Entry (i,j) is the
// Mahalanobis distance between treated unit i and control unit j, or
// Forbidden when the pair is ineligible. Immutable once built.
type Matrix struct {
	rows, cols int
	data       []float64
}

// Rows returns the treated count m
func (m *Matrix) Rows() int { return m.rows }

// Cols returns the control count n
func (m *Matrix) Cols() int { return m.cols }

// At returns the distance for (treated i, control j)
func (m *Matrix) At(i, j int) float64 {
	return m.data[i*m.cols+j]
}

// Builder computes pairwise Mahalanobis distances under a shared precision
// matrix. Rows are independent, so they are computed in parallel across a
// bounded worker group; every row runs the same sequential inner loop, so
// the result is bit-identical to a fully sequential build.
type Builder struct {
	workers int
	riskSet bool
}

// Option configures a Builder
type Option func(*Builder)

// WithWorkers bounds row parallelism. Zero or negative means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(b *Builder) { b.workers = n }
}

// WithRiskSet enables per-row control eligibility: a control is eligible
// for a treated unit only when the control's event/censoring time is at or
// after the treated unit's treatment time.
func WithRiskSet(enabled bool) Option {
	return func(b *Builder) { b.riskSet = enabled }
}

// NewBuilder creates a distance matrix builder
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{}
	for _, opt := range opts {
		opt(b)
	}
	if b.workers <= 0 {
		b.workers = runtime.GOMAXPROCS(0)
	}
	return b
}

// Build computes the full treated×control distance matrix. Fails with
// ErrEmptyGroup before any distance work when either group is empty, and
// with ErrDimensionMismatch when a covariate vector disagrees with the
// precision dimension.
func (b *Builder) Build(ctx context.Context, treated, controls []cohort.Subject, prec *covariance.Precision) (*Matrix, error) {
	if len(treated) == 0 {
		return nil, core.NewEmptyGroupError("treated")
	}
	if len(controls) == 0 {
		return nil, core.NewEmptyGroupError("control")
	}

	k := prec.Dim()
	for _, s := range treated {
		if len(s.Covariates) != k {
			return nil, core.NewDimensionMismatchError(s.ID, len(s.Covariates), k)
		}
	}
	for _, s := range controls {
		if len(s.Covariates) != k {
			return nil, core.NewDimensionMismatchError(s.ID, len(s.Covariates), k)
		}
	}

	m := &Matrix{
		rows: len(treated),
		cols: len(controls),
		data: make([]float64, len(treated)*len(controls)),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i := range treated {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			b.buildRow(m.data[i*m.cols:(i+1)*m.cols], treated[i], controls, prec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return m, nil
}

// buildRow fills the distances from one treated unit to every control.
// Each goroutine writes only its own row slice.
func (b *Builder) buildRow(row []float64, t cohort.Subject, controls []cohort.Subject, prec *covariance.Precision) {
	k := prec.Dim()
	diff := make([]float64, k)
	for j, c := range controls {
		if b.riskSet && c.EventTime < t.EventTime {
			row[j] = Forbidden
			continue
		}
		for d := 0; d < k; d++ {
			diff[d] = t.Covariates[d] - c.Covariates[d]
		}
		q := prec.Quadratic(diff)
		if q < 0 {
			// Tiny negative quadratics can appear from rounding on
			// near-identical vectors.
			q = 0
		}
		row[j] = math.Sqrt(q)
	}
}
