package main

import (
	"encoding/json"
	"fmt"
	"os"

	"gomatch/adapters/excel"
	"gomatch/adapters/report"
	"gomatch/app"
	"gomatch/internal"
	"gomatch/internal/testkit"
	"gomatch/ports"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "gomatch",
		Short: "Covariate matching with Mahalanobis distance and optimal assignment",
	}

	rootCmd.AddCommand(
		newMatchCmd(),
		newGenerateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newMatchCmd() *cobra.Command {
	var (
		idCol, treatCol, outcomeCol, timeCol string
		covariates                           []string
		epsilon                              float64
		minPairs, exactLimit, workers        int
		riskSet                              bool
		reportPath                           string
	)

	cmd := &cobra.Command{
		Use:   "match [file]",
		Short: "Match treated to control subjects and test matched outcomes",
		Long: `Load a cohort table from a CSV or Excel file, pair each treated subject
with its closest control by Mahalanobis distance, and run a Wilcoxon
signed-rank test on the matched outcome differences.

Example: gomatch match cohort.csv --covariates age,severity,baseline`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(covariates) == 0 {
				return fmt.Errorf("at least one covariate column is required")
			}

			schema := ports.SubjectSchema{
				IDColumn:        idCol,
				TreatmentColumn: treatCol,
				OutcomeColumn:   outcomeCol,
				CovariateCols:   covariates,
				TimeColumn:      timeCol,
			}
			if riskSet && timeCol == "" {
				return fmt.Errorf("--risk-set requires --time-col")
			}

			logger := internal.DefaultLogger
			cohort, err := excel.NewDataReader(args[0], schema, logger).LoadCohort(cmd.Context())
			if err != nil {
				return err
			}

			service := app.NewMatchService(app.MatchConfig{
				Epsilon:    epsilon,
				MinPairs:   minPairs,
				ExactLimit: exactLimit,
				Workers:    workers,
				RiskSet:    riskSet,
			}, nil, logger)

			artifact, err := service.Run(cmd.Context(), cohort)
			if err != nil {
				return err
			}

			if reportPath != "" {
				md := report.NewBuilder().Markdown(artifact)
				if err := os.WriteFile(reportPath, []byte(md), 0o644); err != nil {
					return fmt.Errorf("failed to write report: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "report written to %s\n", reportPath)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(artifact)
		},
	}

	cmd.Flags().StringVar(&idCol, "id-col", "id", "Subject identifier column")
	cmd.Flags().StringVar(&treatCol, "treatment-col", "treated", "Treatment flag column")
	cmd.Flags().StringVar(&outcomeCol, "outcome-col", "outcome", "Outcome column")
	cmd.Flags().StringVar(&timeCol, "time-col", "", "Event time column for risk-set matching")
	cmd.Flags().StringSliceVar(&covariates, "covariates", nil, "Covariate columns (comma-separated)")
	cmd.Flags().Float64Var(&epsilon, "epsilon", 0, "Ridge term for covariance regularization (0 = default)")
	cmd.Flags().IntVar(&minPairs, "min-pairs", 0, "Minimum pairs for the significance test (0 = default)")
	cmd.Flags().IntVar(&exactLimit, "exact-limit", 0, "Largest n for the exact null distribution (0 = default)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Distance computation workers (0 = all cores)")
	cmd.Flags().BoolVar(&riskSet, "risk-set", false, "Restrict controls to those still at risk at the treated event time")
	cmd.Flags().StringVar(&reportPath, "report", "", "Write a markdown report to this path")

	return cmd
}

func newGenerateCmd() *cobra.Command {
	var (
		seed                          int64
		treated, controls, covariates int
		twins                         int
		effect                        float64
		withTimes                     bool
		out                           string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a synthetic cohort CSV for testing",
		Long: `Generate a reproducible synthetic cohort with a known treatment effect
and optional planted covariate twins.

Example: gomatch generate --treated 50 --controls 80 --covariates 4 --out cohort.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			gen := testkit.NewGenerator(seed)
			cohort, err := gen.Cohort(testkit.CohortSpec{
				Treated:    treated,
				Controls:   controls,
				Covariates: covariates,
				Twins:      twins,
				Effect:     effect,
				WithTimes:  withTimes,
			})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := testkit.WriteCSV(w, cohort); err != nil {
				return err
			}
			if out != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d subjects to %s\n", cohort.Size(), out)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&seed, "seed", 42, "Random seed for deterministic generation")
	cmd.Flags().IntVar(&treated, "treated", 25, "Number of treated subjects")
	cmd.Flags().IntVar(&controls, "controls", 50, "Number of control subjects")
	cmd.Flags().IntVar(&covariates, "covariates", 3, "Number of covariates")
	cmd.Flags().IntVar(&twins, "twins", 0, "Controls planted as exact covariate twins")
	cmd.Flags().Float64Var(&effect, "effect", 1.0, "Treatment effect added to treated outcomes")
	cmd.Flags().BoolVar(&withTimes, "with-times", false, "Include an event_time column")
	cmd.Flags().StringVar(&out, "out", "", "Output file (default stdout)")

	return cmd
}
