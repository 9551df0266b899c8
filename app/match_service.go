package app

import (
	"context"
	"errors"
	"time"

	"gomatch/adapters/stats/assignment"
	"gomatch/adapters/stats/balance"
	"gomatch/adapters/stats/covariance"
	"gomatch/adapters/stats/mahalanobis"
	"gomatch/adapters/stats/wilcoxon"
	"gomatch/domain/cohort"
	"gomatch/domain/core"
	"gomatch/domain/matching"
	"gomatch/internal"
	"gomatch/ports"
)

// MatchConfig carries every policy value of the pipeline explicitly.
// Zero values fall back to component defaults.
type MatchConfig struct {
	Epsilon    float64 // ridge term for covariance regularization
	MinPairs   int     // significance test pair-count threshold
	ExactLimit int     // largest n for the exact signed-rank distribution
	Workers    int     // distance row parallelism, 0 = GOMAXPROCS
	RiskSet    bool    // restrict controls to those still at risk
}

// MatchService runs the full matching pipeline: split by treatment flag,
// estimate the precision matrix, build the distance matrix, solve the
// optimal assignment, report balance, and test matched outcomes.
type MatchService struct {
	estimator *covariance.Estimator
	builder   *mahalanobis.Builder
	solver    *assignment.Solver
	tester    *wilcoxon.Tester
	reporter  *balance.Reporter
	repo      ports.RunRepositoryPort
	logger    *internal.Logger
}

// NewMatchService wires the pipeline components from one config. The
// repository may be nil, in which case runs are not persisted.
func NewMatchService(cfg MatchConfig, repo ports.RunRepositoryPort, logger *internal.Logger) *MatchService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &MatchService{
		estimator: covariance.NewEstimator(cfg.Epsilon),
		builder: mahalanobis.NewBuilder(
			mahalanobis.WithWorkers(cfg.Workers),
			mahalanobis.WithRiskSet(cfg.RiskSet),
		),
		solver:   assignment.NewSolver(),
		tester:   wilcoxon.NewTester(cfg.MinPairs, cfg.ExactLimit),
		reporter: balance.NewReporter(),
		repo:     repo,
		logger:   logger,
	}
}

// Run executes the pipeline over a validated cohort and returns the run
// artifact. An insufficient pair count skips the significance test but
// keeps the matched pairs valid; every other stage failure aborts the run.
func (s *MatchService) Run(ctx context.Context, c *cohort.Cohort) (*matching.RunArtifact, error) {
	startTime := time.Now()
	runID := core.NewRunID()

	treated, controls := c.Split()
	s.logger.Info("run %s: matching %d treated against %d controls over %d covariates",
		runID, len(treated), len(controls), c.Dimension())

	prec, err := s.estimator.Estimate(c.CovariateSample())
	if err != nil {
		return nil, err
	}

	distances, err := s.builder.Build(ctx, treated, controls, prec)
	if err != nil {
		return nil, err
	}

	selected, err := s.solver.Solve(distances)
	if err != nil {
		var inf *assignment.InfeasibleError
		if errors.As(err, &inf) && inf.Row >= 0 {
			return nil, core.NewInfeasibleAssignmentError(treated[inf.Row].ID)
		}
		return nil, err
	}

	pairs := make([]matching.MatchedPair, len(selected))
	for i, p := range selected {
		pairs[i] = matching.MatchedPair{
			TreatedID: treated[p.Row].ID,
			ControlID: controls[p.Col].ID,
			Distance:  distances.At(p.Row, p.Col),
		}
	}
	pairSet, err := matching.NewMatchedPairSet(pairs)
	if err != nil {
		return nil, err
	}

	balanceRows, err := s.reporter.Report(c, pairSet)
	if err != nil {
		return nil, err
	}

	artifact := &matching.RunArtifact{
		RunID:          runID,
		Fingerprint:    c.Fingerprint(),
		TreatedCount:   len(treated),
		ControlCount:   len(controls),
		CovariateCount: c.Dimension(),
		Pairs:          pairSet.Pairs(),
		Balance:        balanceRows,
		CreatedAt:      core.Now(),
	}

	treatedOutcomes, controlOutcomes, err := pairSet.AlignedOutcomes(c)
	if err != nil {
		return nil, err
	}
	result, err := s.tester.Test(treatedOutcomes, controlOutcomes)
	switch {
	case errors.Is(err, core.ErrInsufficientPairs):
		// The pairs stay usable; only the test step is skipped.
		s.logger.Warn("run %s: %v", runID, err)
		artifact.TestSkipped = err.Error()
	case err != nil:
		return nil, err
	default:
		artifact.Test = &result
	}

	artifact.RuntimeMs = time.Since(startTime).Milliseconds()

	if s.repo != nil {
		if err := s.repo.Save(ctx, artifact); err != nil {
			return nil, err
		}
	}

	s.logger.Info("run %s: %d pairs, total distance %.4f, %dms",
		runID, pairSet.Len(), pairSet.TotalDistance(), artifact.RuntimeMs)
	return artifact, nil
}
