package balance

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"gomatch/domain/cohort"
	"gomatch/domain/core"
	"gomatch/domain/matching"
)

// Reporter computes covariate balance diagnostics: the standardized mean
// difference (SMD) per covariate between the treated and control groups,
// before matching (full groups) and after matching (matched subjects only).
// Matching is working when the after-matching SMDs shrink toward zero.
type Reporter struct{}

// NewReporter creates a balance reporter
func NewReporter() *Reporter {
	return &Reporter{}
}

// Report builds one BalanceRow per covariate. Covariate labels come from
// the cohort when present, positional names otherwise.
func (r *Reporter) Report(c *cohort.Cohort, pairs *matching.MatchedPairSet) ([]matching.BalanceRow, error) {
	treated, controls := c.Split()
	if len(treated) == 0 || len(controls) == 0 {
		return nil, core.NewEmptyGroupError(groupName(len(treated) == 0))
	}

	matchedTreated, matchedControls, err := matchedSubjects(c, pairs)
	if err != nil {
		return nil, err
	}

	rows := make([]matching.BalanceRow, c.Dimension())
	for j := 0; j < c.Dimension(); j++ {
		before, err := smd(column(treated, j), column(controls, j))
		if err != nil {
			return nil, err
		}
		after, err := smd(column(matchedTreated, j), column(matchedControls, j))
		if err != nil {
			return nil, err
		}

		meanT, _ := stats.Mean(column(matchedTreated, j))
		meanC, _ := stats.Mean(column(matchedControls, j))

		rows[j] = matching.BalanceRow{
			Covariate: covariateKey(c, j),
			SMDBefore: before,
			SMDAfter:  after,
			MeanTreat: meanT,
			MeanContr: meanC,
		}
	}
	return rows, nil
}

// smd computes the standardized mean difference between two samples using
// the pooled standard deviation. With zero pooled variance there is no
// scale to standardize by, so the raw mean difference is reported; the
// value stays finite and JSON-encodable.
func smd(a, b []float64) (float64, error) {
	meanA, err := stats.Mean(a)
	if err != nil {
		return 0, fmt.Errorf("balance mean: %w", err)
	}
	meanB, err := stats.Mean(b)
	if err != nil {
		return 0, fmt.Errorf("balance mean: %w", err)
	}
	varA, err := stats.SampleVariance(a)
	if err != nil {
		varA = 0
	}
	varB, err := stats.SampleVariance(b)
	if err != nil {
		varB = 0
	}

	pooled := math.Sqrt((varA + varB) / 2)
	diff := meanA - meanB
	if pooled == 0 {
		return diff, nil
	}
	return diff / pooled, nil
}

func matchedSubjects(c *cohort.Cohort, pairs *matching.MatchedPairSet) (treated, controls []cohort.Subject, err error) {
	byID := make(map[core.SubjectID]cohort.Subject, c.Size())
	for _, s := range c.Subjects() {
		byID[s.ID] = s
	}
	for _, p := range pairs.Pairs() {
		ts, ok := byID[p.TreatedID]
		if !ok {
			return nil, nil, fmt.Errorf("matched treated id %s not in cohort", p.TreatedID)
		}
		cs, ok := byID[p.ControlID]
		if !ok {
			return nil, nil, fmt.Errorf("matched control id %s not in cohort", p.ControlID)
		}
		treated = append(treated, ts)
		controls = append(controls, cs)
	}
	return treated, controls, nil
}

func column(subjects []cohort.Subject, j int) []float64 {
	col := make([]float64, len(subjects))
	for i, s := range subjects {
		col[i] = s.Covariates[j]
	}
	return col
}

func covariateKey(c *cohort.Cohort, j int) core.CovariateKey {
	if keys := c.CovariateKeys(); keys != nil {
		return keys[j]
	}
	return core.CovariateKey(fmt.Sprintf("x%d", j+1))
}

func groupName(treatedEmpty bool) string {
	if treatedEmpty {
		return "treated"
	}
	return "control"
}
