package balance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gomatch/domain/cohort"
	"gomatch/domain/core"
	"gomatch/domain/matching"
)

func TestReportShrinksSMDAfterExactMatching(t *testing.T) {
	// Treated covariates sit well above the control bulk, but each treated
	// subject has one exact twin among the controls. Matching on the twins
	// should drive the after-matching SMD to zero while the before-matching
	// SMD stays large.
	subjects := []cohort.Subject{
		{ID: "t1", Treated: true, Covariates: []float64{10}, Outcome: 1},
		{ID: "t2", Treated: true, Covariates: []float64{12}, Outcome: 1},
		{ID: "t3", Treated: true, Covariates: []float64{14}, Outcome: 1},
		{ID: "c1", Treated: false, Covariates: []float64{10}, Outcome: 0},
		{ID: "c2", Treated: false, Covariates: []float64{12}, Outcome: 0},
		{ID: "c3", Treated: false, Covariates: []float64{14}, Outcome: 0},
		{ID: "c4", Treated: false, Covariates: []float64{1}, Outcome: 0},
		{ID: "c5", Treated: false, Covariates: []float64{2}, Outcome: 0},
		{ID: "c6", Treated: false, Covariates: []float64{3}, Outcome: 0},
	}
	c, err := cohort.New(subjects, []core.CovariateKey{"severity"})
	require.NoError(t, err)

	pairs, err := matching.NewMatchedPairSet([]matching.MatchedPair{
		{TreatedID: "t1", ControlID: "c1"},
		{TreatedID: "t2", ControlID: "c2"},
		{TreatedID: "t3", ControlID: "c3"},
	})
	require.NoError(t, err)

	rows, err := NewReporter().Report(c, pairs)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Equal(t, core.CovariateKey("severity"), rows[0].Covariate)
	assert.Greater(t, math.Abs(rows[0].SMDBefore), 1.0)
	assert.InDelta(t, 0.0, rows[0].SMDAfter, 1e-12)
	assert.InDelta(t, 12.0, rows[0].MeanTreat, 1e-12)
	assert.InDelta(t, 12.0, rows[0].MeanContr, 1e-12)
}

func TestReportSeparatedCovariateStaysFinite(t *testing.T) {
	// A binary covariate fixed at 1 for every treated subject and 0 for
	// every control has zero variance within each group. The SMD has no
	// scale to standardize by, so the raw mean difference is reported.
	subjects := []cohort.Subject{
		{ID: "t1", Treated: true, Covariates: []float64{1, 5}},
		{ID: "t2", Treated: true, Covariates: []float64{1, 7}},
		{ID: "c1", Treated: false, Covariates: []float64{0, 5}},
		{ID: "c2", Treated: false, Covariates: []float64{0, 7}},
	}
	c, err := cohort.New(subjects, []core.CovariateKey{"exposed", "age"})
	require.NoError(t, err)

	pairs, err := matching.NewMatchedPairSet([]matching.MatchedPair{
		{TreatedID: "t1", ControlID: "c1"},
		{TreatedID: "t2", ControlID: "c2"},
	})
	require.NoError(t, err)

	rows, err := NewReporter().Report(c, pairs)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.False(t, math.IsInf(rows[0].SMDBefore, 0))
	assert.False(t, math.IsInf(rows[0].SMDAfter, 0))
	assert.InDelta(t, 1.0, rows[0].SMDBefore, 1e-12)
	assert.InDelta(t, 1.0, rows[0].SMDAfter, 1e-12)
	assert.InDelta(t, 0.0, rows[1].SMDAfter, 1e-12)
}

func TestReportUnnamedCovariates(t *testing.T) {
	subjects := []cohort.Subject{
		{ID: "t1", Treated: true, Covariates: []float64{1, 2}},
		{ID: "c1", Treated: false, Covariates: []float64{2, 1}},
		{ID: "c2", Treated: false, Covariates: []float64{3, 0}},
	}
	c, err := cohort.New(subjects, nil)
	require.NoError(t, err)

	pairs, err := matching.NewMatchedPairSet([]matching.MatchedPair{
		{TreatedID: "t1", ControlID: "c1"},
	})
	require.NoError(t, err)

	rows, err := NewReporter().Report(c, pairs)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, core.CovariateKey("x1"), rows[0].Covariate)
	assert.Equal(t, core.CovariateKey("x2"), rows[1].Covariate)
}

func TestReportEmptyGroup(t *testing.T) {
	subjects := []cohort.Subject{
		{ID: "c1", Treated: false, Covariates: []float64{1}},
		{ID: "c2", Treated: false, Covariates: []float64{2}},
	}
	c, err := cohort.New(subjects, nil)
	require.NoError(t, err)

	pairs, err := matching.NewMatchedPairSet(nil)
	require.NoError(t, err)

	_, err = NewReporter().Report(c, pairs)
	assert.ErrorIs(t, err, core.ErrEmptyGroup)
}
