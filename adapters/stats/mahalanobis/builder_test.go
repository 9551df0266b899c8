package mahalanobis

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"gomatch/adapters/stats/covariance"
	"gomatch/domain/cohort"
	"gomatch/domain/core"
)

func identityPrecision(k int) *covariance.Precision {
	sym := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		sym.SetSym(i, i, 1)
	}
	return covariance.NewPrecision(sym)
}

func TestBuildEuclideanUnderIdentityPrecision(t *testing.T) {
	// With Σ⁻¹ = I the Mahalanobis distance reduces to Euclidean distance.
	treated := []cohort.Subject{
		{ID: "t1", Treated: true, Covariates: []float64{0, 0}},
		{ID: "t2", Treated: true, Covariates: []float64{3, 4}},
	}
	controls := []cohort.Subject{
		{ID: "c1", Covariates: []float64{0, 0}},
		{ID: "c2", Covariates: []float64{3, 0}},
		{ID: "c3", Covariates: []float64{0, 4}},
	}

	m, err := NewBuilder().Build(context.Background(), treated, controls, identityPrecision(2))
	require.NoError(t, err)
	require.Equal(t, 2, m.Rows())
	require.Equal(t, 3, m.Cols())

	assert.InDelta(t, 0.0, m.At(0, 0), 1e-12)
	assert.InDelta(t, 3.0, m.At(0, 1), 1e-12)
	assert.InDelta(t, 4.0, m.At(0, 2), 1e-12)
	assert.InDelta(t, 5.0, m.At(1, 0), 1e-12)
	assert.InDelta(t, 4.0, m.At(1, 1), 1e-12)
	assert.InDelta(t, 3.0, m.At(1, 2), 1e-12)
}

func TestBuildWeightedPrecision(t *testing.T) {
	// Σ⁻¹ = diag(4, 0.25): the first axis counts double, the second half.
	sym := mat.NewSymDense(2, []float64{4, 0, 0, 0.25})
	prec := covariance.NewPrecision(sym)

	treated := []cohort.Subject{{ID: "t1", Covariates: []float64{1, 2}}}
	controls := []cohort.Subject{{ID: "c1", Covariates: []float64{3, 6}}}

	m, err := NewBuilder().Build(context.Background(), treated, controls, prec)
	require.NoError(t, err)

	// sqrt(4*(-2)^2 + 0.25*(-4)^2) = sqrt(16 + 4) = sqrt(20)
	assert.InDelta(t, math.Sqrt(20), m.At(0, 0), 1e-12)
}

func TestBuildSymmetryOfSwappedVectors(t *testing.T) {
	prec := identityPrecision(3)
	a := cohort.Subject{ID: "a", Covariates: []float64{1, -2, 0.5}}
	b := cohort.Subject{ID: "b", Covariates: []float64{-1, 4, 2}}

	m1, err := NewBuilder().Build(context.Background(), []cohort.Subject{a}, []cohort.Subject{b}, prec)
	require.NoError(t, err)
	m2, err := NewBuilder().Build(context.Background(), []cohort.Subject{b}, []cohort.Subject{a}, prec)
	require.NoError(t, err)

	assert.Equal(t, m1.At(0, 0), m2.At(0, 0))
}

func TestBuildEmptyGroups(t *testing.T) {
	prec := identityPrecision(1)
	one := []cohort.Subject{{ID: "x", Covariates: []float64{1}}}

	_, err := NewBuilder().Build(context.Background(), nil, one, prec)
	require.ErrorIs(t, err, core.ErrEmptyGroup)
	assert.Contains(t, err.Error(), "treated")

	_, err = NewBuilder().Build(context.Background(), one, nil, prec)
	require.ErrorIs(t, err, core.ErrEmptyGroup)
	assert.Contains(t, err.Error(), "control")
}

func TestBuildDimensionMismatch(t *testing.T) {
	prec := identityPrecision(2)
	treated := []cohort.Subject{{ID: "t1", Covariates: []float64{1, 2, 3}}}
	controls := []cohort.Subject{{ID: "c1", Covariates: []float64{1, 2}}}

	_, err := NewBuilder().Build(context.Background(), treated, controls, prec)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestBuildParallelMatchesSequential(t *testing.T) {
	prec := identityPrecision(4)
	var treated, controls []cohort.Subject
	for i := 0; i < 40; i++ {
		treated = append(treated, cohort.Subject{
			ID:         core.SubjectID(core.NewID()),
			Covariates: []float64{float64(i), float64(i) * 0.5, float64(i % 7), float64(40 - i)},
		})
		controls = append(controls, cohort.Subject{
			ID:         core.SubjectID(core.NewID()),
			Covariates: []float64{float64(i) + 0.25, float64(i) * 0.75, float64(i % 5), float64(i)},
		})
	}

	seq, err := NewBuilder(WithWorkers(1)).Build(context.Background(), treated, controls, prec)
	require.NoError(t, err)
	par, err := NewBuilder(WithWorkers(8)).Build(context.Background(), treated, controls, prec)
	require.NoError(t, err)

	for i := 0; i < seq.Rows(); i++ {
		for j := 0; j < seq.Cols(); j++ {
			if seq.At(i, j) != par.At(i, j) {
				t.Fatalf("parallel result differs at (%d,%d): %v vs %v", i, j, seq.At(i, j), par.At(i, j))
			}
		}
	}
}

func TestBuildRiskSetEligibility(t *testing.T) {
	prec := identityPrecision(1)
	treated := []cohort.Subject{
		{ID: "t1", Covariates: []float64{0}, EventTime: 5},
	}
	controls := []cohort.Subject{
		{ID: "early", Covariates: []float64{1}, EventTime: 3},
		{ID: "late", Covariates: []float64{2}, EventTime: 9},
	}

	m, err := NewBuilder(WithRiskSet(true)).Build(context.Background(), treated, controls, prec)
	require.NoError(t, err)

	assert.Equal(t, Forbidden, m.At(0, 0))
	assert.InDelta(t, 2.0, m.At(0, 1), 1e-12)
}
