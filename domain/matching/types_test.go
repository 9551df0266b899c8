package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gomatch/domain/cohort"
)

func TestNewMatchedPairSetEnforcesBijection(t *testing.T) {
	valid := []MatchedPair{
		{TreatedID: "t1", ControlID: "c1", Distance: 0.5},
		{TreatedID: "t2", ControlID: "c2", Distance: 1.5},
	}
	s, err := NewMatchedPairSet(valid)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	assert.InDelta(t, 2.0, s.TotalDistance(), 1e-12)

	_, err = NewMatchedPairSet([]MatchedPair{
		{TreatedID: "t1", ControlID: "c1", Distance: 0.5},
		{TreatedID: "t1", ControlID: "c2", Distance: 1.5},
	})
	assert.Error(t, err)

	_, err = NewMatchedPairSet([]MatchedPair{
		{TreatedID: "t1", ControlID: "c1", Distance: 0.5},
		{TreatedID: "t2", ControlID: "c1", Distance: 1.5},
	})
	assert.Error(t, err)

	_, err = NewMatchedPairSet([]MatchedPair{
		{TreatedID: "t1", ControlID: "c1", Distance: -0.1},
	})
	assert.Error(t, err)
}

func TestAlignedOutcomesPreservesPairOrder(t *testing.T) {
	c, err := cohort.New([]cohort.Subject{
		{ID: "t1", Treated: true, Covariates: []float64{1}, Outcome: 10},
		{ID: "t2", Treated: true, Covariates: []float64{2}, Outcome: 20},
		{ID: "c1", Treated: false, Covariates: []float64{1}, Outcome: 5},
		{ID: "c2", Treated: false, Covariates: []float64{2}, Outcome: 15},
	}, nil)
	require.NoError(t, err)

	s, err := NewMatchedPairSet([]MatchedPair{
		{TreatedID: "t2", ControlID: "c1", Distance: 1},
		{TreatedID: "t1", ControlID: "c2", Distance: 1},
	})
	require.NoError(t, err)

	treated, controls, err := s.AlignedOutcomes(c)
	require.NoError(t, err)
	assert.Equal(t, []float64{20, 10}, treated)
	assert.Equal(t, []float64{5, 15}, controls)
}

func TestAlignedOutcomesUnknownID(t *testing.T) {
	c, err := cohort.New([]cohort.Subject{
		{ID: "t1", Treated: true, Covariates: []float64{1}, Outcome: 10},
		{ID: "c1", Treated: false, Covariates: []float64{1}, Outcome: 5},
	}, nil)
	require.NoError(t, err)

	s, err := NewMatchedPairSet([]MatchedPair{
		{TreatedID: "t1", ControlID: "ghost", Distance: 0},
	})
	require.NoError(t, err)

	_, _, err = s.AlignedOutcomes(c)
	assert.Error(t, err)
}
