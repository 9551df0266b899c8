package cohort

import (
	"math"

	"gomatch/domain/core"
)

// Subject is one observational unit: a unique identifier, a binary treatment
// flag, a fixed-length covariate vector and a numeric outcome. EventTime is
// only consulted when risk-set matching is enabled; zero means "unknown".
type Subject struct {
	ID         core.SubjectID `json:"id"`
	Treated    bool           `json:"treated"`
	Covariates []float64      `json:"covariates"`
	Outcome    float64        `json:"outcome"`
	EventTime  float64        `json:"event_time,omitempty"`
}

// Cohort is a validated, immutable collection of subjects. Construction is
// the single place where ingestion preconditions are enforced: unique IDs,
// a consistent covariate dimension and finite values everywhere. Subjects
// with missing (NaN/Inf) covariates or outcomes are rejected here rather
// than silently dropped by later stages.
type Cohort struct {
	subjects      []Subject
	covariateKeys []core.CovariateKey
	dimension     int
	fingerprint   core.CohortHash
}

// New validates subjects and builds a cohort. Covariate keys are optional
// labels for reporting; when provided their count must match the covariate
// dimension.
func New(subjects []Subject, covariateKeys []core.CovariateKey) (*Cohort, error) {
	if len(subjects) == 0 {
		return nil, core.ErrEmptyCohort
	}

	dimension := len(subjects[0].Covariates)
	if covariateKeys != nil && len(covariateKeys) != dimension {
		return nil, core.NewDimensionMismatchError(subjects[0].ID, dimension, len(covariateKeys))
	}

	seen := make(map[core.SubjectID]bool, len(subjects))
	rows := make([]string, 0, len(subjects))
	for _, s := range subjects {
		if s.ID.String() == "" {
			return nil, core.NewMissingValueError(s.ID, "id")
		}
		if seen[s.ID] {
			return nil, core.NewDuplicateSubjectError(s.ID)
		}
		seen[s.ID] = true

		if len(s.Covariates) != dimension {
			return nil, core.NewDimensionMismatchError(s.ID, len(s.Covariates), dimension)
		}
		for j, v := range s.Covariates {
			if !isFinite(v) {
				key := covariateLabel(covariateKeys, j)
				return nil, core.NewMissingValueError(s.ID, key)
			}
		}
		if !isFinite(s.Outcome) {
			return nil, core.NewMissingValueError(s.ID, "outcome")
		}

		rows = append(rows, core.CanonicalSubjectRow(s.ID, s.Treated, s.Covariates, s.Outcome))
	}

	return &Cohort{
		subjects:      subjects,
		covariateKeys: covariateKeys,
		dimension:     dimension,
		fingerprint:   core.ComputeCohortHash(rows),
	}, nil
}

// Subjects returns all subjects in ingestion order
func (c *Cohort) Subjects() []Subject {
	return c.subjects
}

// Size returns the subject count
func (c *Cohort) Size() int {
	return len(c.subjects)
}

// Dimension returns the covariate vector length k
func (c *Cohort) Dimension() int {
	return c.dimension
}

// CovariateKeys returns the covariate labels, or nil when unnamed
func (c *Cohort) CovariateKeys() []core.CovariateKey {
	return c.covariateKeys
}

// Fingerprint returns the canonical cohort hash for determinism audits
func (c *Cohort) Fingerprint() core.CohortHash {
	return c.fingerprint
}

// Split partitions the cohort by treatment flag, preserving ingestion order
// within each group. The treated slice order defines the row enumeration
// used by the distance matrix and matched-pair output.
func (c *Cohort) Split() (treated, controls []Subject) {
	for _, s := range c.subjects {
		if s.Treated {
			treated = append(treated, s)
		} else {
			controls = append(controls, s)
		}
	}
	return treated, controls
}

// CovariateSample returns the pooled covariate matrix over all subjects as
// row-major rows. Every row is complete: ingestion already rejected missing
// values, so covariance estimation and distance computation see the same
// data.
func (c *Cohort) CovariateSample() [][]float64 {
	rows := make([][]float64, len(c.subjects))
	for i, s := range c.subjects {
		rows[i] = s.Covariates
	}
	return rows
}

// OutcomeByID returns the outcome for a subject id
func (c *Cohort) OutcomeByID(id core.SubjectID) (float64, bool) {
	for _, s := range c.subjects {
		if s.ID == id {
			return s.Outcome, true
		}
	}
	return 0, false
}

func covariateLabel(keys []core.CovariateKey, j int) string {
	if keys != nil {
		return keys[j].String()
	}
	return "covariate"
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
