package matching

import (
	"fmt"

	"gomatch/domain/cohort"
	"gomatch/domain/core"
)

// MatchedPair links one treated subject to one control subject with the
// Mahalanobis distance the assignment paid for the pair.
type MatchedPair struct {
	TreatedID core.SubjectID `json:"treated_id"`
	ControlID core.SubjectID `json:"control_id"`
	Distance  float64        `json:"distance"`
}

// MatchedPairSet is a feasible one-to-one assignment in ascending treated
// enumeration order. Each treated id appears exactly once and each control
// id at most once.
type MatchedPairSet struct {
	pairs []MatchedPair
}

// NewMatchedPairSet validates the bijection invariant and wraps the pairs.
func NewMatchedPairSet(pairs []MatchedPair) (*MatchedPairSet, error) {
	treatedSeen := make(map[core.SubjectID]bool, len(pairs))
	controlSeen := make(map[core.SubjectID]bool, len(pairs))
	for _, p := range pairs {
		if treatedSeen[p.TreatedID] {
			return nil, fmt.Errorf("treated id %s matched more than once", p.TreatedID)
		}
		if controlSeen[p.ControlID] {
			return nil, fmt.Errorf("control id %s matched more than once", p.ControlID)
		}
		if p.Distance < 0 {
			return nil, fmt.Errorf("pair (%s, %s) has negative distance %f", p.TreatedID, p.ControlID, p.Distance)
		}
		treatedSeen[p.TreatedID] = true
		controlSeen[p.ControlID] = true
	}
	return &MatchedPairSet{pairs: pairs}, nil
}

// Pairs returns the matched pairs in treated enumeration order
func (s *MatchedPairSet) Pairs() []MatchedPair {
	return s.pairs
}

// Len returns the number of matched pairs
func (s *MatchedPairSet) Len() int {
	return len(s.pairs)
}

// AlignedOutcomes looks up the outcome for both sides of every pair,
// preserving pair order, so the two slices are aligned index-for-index for
// the paired significance test.
func (s *MatchedPairSet) AlignedOutcomes(c *cohort.Cohort) (treated, controls []float64, err error) {
	treated = make([]float64, 0, len(s.pairs))
	controls = make([]float64, 0, len(s.pairs))
	for _, p := range s.pairs {
		tv, ok := c.OutcomeByID(p.TreatedID)
		if !ok {
			return nil, nil, fmt.Errorf("treated id %s not in cohort", p.TreatedID)
		}
		cv, ok := c.OutcomeByID(p.ControlID)
		if !ok {
			return nil, nil, fmt.Errorf("control id %s not in cohort", p.ControlID)
		}
		treated = append(treated, tv)
		controls = append(controls, cv)
	}
	return treated, controls, nil
}

// TotalDistance sums the pair distances
func (s *MatchedPairSet) TotalDistance() float64 {
	total := 0.0
	for _, p := range s.pairs {
		total += p.Distance
	}
	return total
}

// TestResult is the output of the paired significance test
type TestResult struct {
	Statistic float64 `json:"statistic"`
	PValue    float64 `json:"p_value"`
	Pairs     int     `json:"pairs"`
	Zeros     int     `json:"zeros_dropped"`
	Method    string  `json:"method"`
}

// BalanceRow reports how well one covariate is balanced between groups
// before and after matching, as standardized mean differences.
type BalanceRow struct {
	Covariate  core.CovariateKey `json:"covariate"`
	SMDBefore  float64           `json:"smd_before"`
	SMDAfter   float64           `json:"smd_after"`
	MeanTreat  float64           `json:"mean_treated"`
	MeanContr  float64           `json:"mean_control"`
}

// RunArtifact is the persisted record of one matching run
type RunArtifact struct {
	RunID          core.RunID      `json:"run_id"`
	Fingerprint    core.CohortHash `json:"fingerprint"`
	TreatedCount   int             `json:"treated_count"`
	ControlCount   int             `json:"control_count"`
	CovariateCount int             `json:"covariate_count"`
	Pairs          []MatchedPair   `json:"pairs"`
	Balance        []BalanceRow    `json:"balance,omitempty"`
	Test           *TestResult     `json:"test,omitempty"`
	TestSkipped    string          `json:"test_skipped,omitempty"`
	RuntimeMs      int64           `json:"runtime_ms"`
	CreatedAt      core.Timestamp  `json:"created_at"`
}
