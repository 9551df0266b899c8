package testkit

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gomatch/domain/core"
	"gomatch/domain/matching"
)

func TestGeneratorReproducible(t *testing.T) {
	spec := CohortSpec{Treated: 10, Controls: 15, Covariates: 3, Twins: 2, Effect: 1.5}

	a, err := NewGenerator(42).Cohort(spec)
	require.NoError(t, err)
	b, err := NewGenerator(42).Cohort(spec)
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestGeneratorPlantsTwins(t *testing.T) {
	c, err := NewGenerator(7).Cohort(CohortSpec{
		Treated: 8, Controls: 8, Covariates: 2, Twins: 3,
	})
	require.NoError(t, err)

	byID := make(map[core.SubjectID][]float64)
	for _, s := range c.Subjects() {
		byID[s.ID] = s.Covariates
	}
	assert.Equal(t, byID["t000"], byID["c000"])
	assert.Equal(t, byID["t001"], byID["c001"])
	assert.Equal(t, byID["t002"], byID["c002"])
	assert.NotEqual(t, byID["t003"], byID["c003"])
}

func TestGeneratorRejectsBadSpec(t *testing.T) {
	_, err := NewGenerator(1).Cohort(CohortSpec{Treated: 0, Controls: 5, Covariates: 2})
	assert.Error(t, err)

	_, err = NewGenerator(1).Cohort(CohortSpec{Treated: 3, Controls: 3, Covariates: 2, Twins: 4})
	assert.Error(t, err)
}

func TestWriteCSV(t *testing.T) {
	c, err := NewGenerator(3).Cohort(CohortSpec{
		Treated: 2, Controls: 2, Covariates: 2,
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, c))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "id,treated,outcome,x1,x2", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "t000,1,"))
	assert.True(t, strings.HasPrefix(lines[3], "c000,0,"))
}

func TestWriteCSVIncludesEventTime(t *testing.T) {
	c, err := NewGenerator(3).Cohort(CohortSpec{
		Treated: 2, Controls: 2, Covariates: 1, WithTimes: true,
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, c))
	assert.True(t, strings.HasPrefix(buf.String(), "id,treated,outcome,x1,event_time"))
}

func TestInMemoryRunRepository(t *testing.T) {
	repo := NewInMemoryRunRepository()
	ctx := context.Background()

	_, err := repo.GetByID(ctx, core.RunID("missing"))
	assert.ErrorIs(t, err, core.ErrRunNotFound)

	early := &matching.RunArtifact{
		RunID:        core.NewRunID(),
		TreatedCount: 5,
		ControlCount: 5,
		Pairs:        []matching.MatchedPair{{TreatedID: "a", ControlID: "b"}},
		CreatedAt:    core.NewTimestamp(core.Now().Time().Add(-1000)),
	}
	late := &matching.RunArtifact{
		RunID:        core.NewRunID(),
		TreatedCount: 3,
		ControlCount: 4,
		Test:         &matching.TestResult{PValue: 0.04},
		CreatedAt:    core.Now(),
	}
	require.NoError(t, repo.Save(ctx, early))
	require.NoError(t, repo.Save(ctx, late))

	got, err := repo.GetByID(ctx, early.RunID)
	require.NoError(t, err)
	assert.Equal(t, early, got)

	summaries, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, late.RunID, summaries[0].RunID)
	require.NotNil(t, summaries[0].PValue)
	assert.InDelta(t, 0.04, *summaries[0].PValue, 1e-15)
	assert.Nil(t, summaries[1].PValue)

	limited, err := repo.ListRecent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestInMemoryListRecentStableOnEqualTimestamps(t *testing.T) {
	repo := NewInMemoryRunRepository()
	ctx := context.Background()

	now := core.Now()
	for i := 0; i < 6; i++ {
		require.NoError(t, repo.Save(ctx, &matching.RunArtifact{
			RunID:     core.NewRunID(),
			CreatedAt: now,
		}))
	}

	first, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	for trial := 0; trial < 10; trial++ {
		again, err := repo.ListRecent(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
