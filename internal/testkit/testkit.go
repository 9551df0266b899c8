// Package testkit provides synthetic cohorts and in-memory collaborators
// for exercising the matching pipeline without external infrastructure.
package testkit

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"

	"gomatch/domain/cohort"
	"gomatch/domain/core"
	"gomatch/domain/matching"
	"gomatch/ports"
)

// CohortSpec controls the shape of a generated cohort.
type CohortSpec struct {
	Treated    int
	Controls   int
	Covariates int
	// Twins plants this many controls as exact covariate copies of the
	// first Twins treated subjects. Matching should pair them at
	// distance zero.
	Twins int
	// Effect is added to every treated outcome on top of the shared
	// baseline, giving the signed-rank test a known signal.
	Effect float64
	// WithTimes populates EventTime so risk-set matching has data.
	WithTimes bool
}

// Generator produces reproducible synthetic cohorts from a fixed seed.
type Generator struct {
	rng *rand.Rand
}

func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Cohort builds a validated cohort of the requested shape. Covariates are
// drawn from unit normals shifted by a mild treatment selection bias, so
// the unmatched groups are imbalanced and matching has work to do.
func (g *Generator) Cohort(spec CohortSpec) (*cohort.Cohort, error) {
	if spec.Treated <= 0 || spec.Controls <= 0 || spec.Covariates <= 0 {
		return nil, fmt.Errorf("cohort spec requires positive counts, got %+v", spec)
	}
	if spec.Twins > spec.Treated || spec.Twins > spec.Controls {
		return nil, fmt.Errorf("cannot plant %d twins in a %d/%d cohort",
			spec.Twins, spec.Treated, spec.Controls)
	}

	subjects := make([]cohort.Subject, 0, spec.Treated+spec.Controls)
	for i := 0; i < spec.Treated; i++ {
		covs := make([]float64, spec.Covariates)
		for k := range covs {
			covs[k] = g.rng.NormFloat64() + 0.4
		}
		s := cohort.Subject{
			ID:         core.SubjectID(fmt.Sprintf("t%03d", i)),
			Treated:    true,
			Covariates: covs,
			Outcome:    g.outcome(covs) + spec.Effect,
		}
		if spec.WithTimes {
			s.EventTime = 1 + g.rng.Float64()*100
		}
		subjects = append(subjects, s)
	}
	for j := 0; j < spec.Controls; j++ {
		var covs []float64
		if j < spec.Twins {
			covs = append([]float64(nil), subjects[j].Covariates...)
		} else {
			covs = make([]float64, spec.Covariates)
			for k := range covs {
				covs[k] = g.rng.NormFloat64()
			}
		}
		s := cohort.Subject{
			ID:         core.SubjectID(fmt.Sprintf("c%03d", j)),
			Treated:    false,
			Covariates: covs,
			Outcome:    g.outcome(covs),
		}
		if spec.WithTimes {
			s.EventTime = 1 + g.rng.Float64()*100
		}
		subjects = append(subjects, s)
	}

	keys := make([]core.CovariateKey, spec.Covariates)
	for k := range keys {
		keys[k] = core.CovariateKey(fmt.Sprintf("x%d", k+1))
	}
	return cohort.New(subjects, keys)
}

// outcome is a noisy linear response so covariates and outcomes correlate.
func (g *Generator) outcome(covs []float64) float64 {
	sum := 0.0
	for _, v := range covs {
		sum += v
	}
	return sum + g.rng.NormFloat64()*0.5
}

// WriteCSV emits the cohort in the column layout the file reader expects:
// id, treated, outcome, covariates, and event_time when any subject has one.
func WriteCSV(w io.Writer, c *cohort.Cohort) error {
	subjects := c.Subjects()
	withTimes := false
	for _, s := range subjects {
		if s.EventTime != 0 {
			withTimes = true
			break
		}
	}

	header := []string{"id", "treated", "outcome"}
	for _, key := range c.CovariateKeys() {
		header = append(header, string(key))
	}
	if withTimes {
		header = append(header, "event_time")
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, s := range subjects {
		row := []string{string(s.ID), boolField(s.Treated), floatField(s.Outcome)}
		for _, v := range s.Covariates {
			row = append(row, floatField(v))
		}
		if withTimes {
			row = append(row, floatField(s.EventTime))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func floatField(v float64) string {
	return fmt.Sprintf("%g", v)
}

// InMemoryRunRepository stores runs in a map. It backs tests and the
// server when no database is configured.
type InMemoryRunRepository struct {
	mu   sync.RWMutex
	runs map[core.RunID]*matching.RunArtifact
}

var _ ports.RunRepositoryPort = (*InMemoryRunRepository)(nil)

func NewInMemoryRunRepository() *InMemoryRunRepository {
	return &InMemoryRunRepository{runs: make(map[core.RunID]*matching.RunArtifact)}
}

func (r *InMemoryRunRepository) Save(_ context.Context, run *matching.RunArtifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.RunID] = run
	return nil
}

func (r *InMemoryRunRepository) GetByID(_ context.Context, id core.RunID) (*matching.RunArtifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, core.NewRunNotFoundError(id)
	}
	return run, nil
}

func (r *InMemoryRunRepository) ListRecent(_ context.Context, limit int) ([]ports.RunSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summaries := make([]ports.RunSummary, 0, len(r.runs))
	for _, run := range r.runs {
		s := ports.RunSummary{
			RunID:        run.RunID,
			TreatedCount: run.TreatedCount,
			ControlCount: run.ControlCount,
			PairCount:    len(run.Pairs),
			CreatedAt:    run.CreatedAt,
		}
		if run.Test != nil {
			p := run.Test.PValue
			s.PValue = &p
		}
		summaries = append(summaries, s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		// RunID tie-break keeps the order stable for runs saved within
		// the same timestamp tick.
		ti, tj := summaries[i].CreatedAt.Time(), summaries[j].CreatedAt.Time()
		if ti.Equal(tj) {
			return summaries[i].RunID > summaries[j].RunID
		}
		return ti.After(tj)
	})
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}
