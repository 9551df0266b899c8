package ports

import (
	"context"

	"gomatch/domain/cohort"
	"gomatch/domain/core"
)

// SubjectSourcePort supplies a validated cohort from an external table.
// Loading is the excluded collaborator's concern; the pipeline only sees
// Subject records.
type SubjectSourcePort interface {
	// LoadCohort reads every subject row and returns a validated cohort
	LoadCohort(ctx context.Context) (*cohort.Cohort, error)
}

// SubjectSchema names the columns of the source table
type SubjectSchema struct {
	IDColumn        string
	TreatmentColumn string
	OutcomeColumn   string
	CovariateCols   []string
	TimeColumn      string // optional, risk-set matching only
}

// CovariateKeys converts the covariate column names to domain keys
func (s SubjectSchema) CovariateKeys() []core.CovariateKey {
	keys := make([]core.CovariateKey, len(s.CovariateCols))
	for i, col := range s.CovariateCols {
		keys[i] = core.CovariateKey(col)
	}
	return keys
}
