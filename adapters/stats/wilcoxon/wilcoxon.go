package wilcoxon

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"gomatch/domain/core"
	"gomatch/domain/matching"
)

const (
	// DefaultMinPairs is the smallest pair count accepted for testing. The
	// normal approximation is unreliable below this size.
	DefaultMinPairs = 10

	// DefaultExactLimit is the largest retained-pair count for which the
	// exact signed-rank distribution is used instead of the normal
	// approximation. Ties always force the approximation, since the exact
	// distribution assumes distinct ranks.
	DefaultExactLimit = 25

	// MethodExact identifies p-values from the exact null distribution
	MethodExact = "exact"
	// MethodNormal identifies continuity-corrected normal approximations
	MethodNormal = "normal-approximation"
	// MethodDegenerate identifies the no-information case: every difference
	// was zero
	MethodDegenerate = "degenerate"
)

// Tester runs the paired two-sided Wilcoxon signed-rank test on matched
// outcome sequences. No side effects beyond the returned result.
type Tester struct {
	minPairs   int
	exactLimit int
}

// NewTester creates a tester. Non-positive arguments fall back to the
// defaults.
func NewTester(minPairs, exactLimit int) *Tester {
	if minPairs <= 0 {
		minPairs = DefaultMinPairs
	}
	if exactLimit <= 0 {
		exactLimit = DefaultExactLimit
	}
	return &Tester{minPairs: minPairs, exactLimit: exactLimit}
}

// MinPairs returns the configured pair-count threshold
func (t *Tester) MinPairs() int {
	return t.minPairs
}

// Test computes the two-sided signed-rank test over index-aligned treated
// and control outcomes. Fails with ErrInsufficientPairs below the
// configured threshold. Zero differences carry no directional information
// and are discarded before ranking; absolute differences are ranked
// ascending with average ranks on ties; the statistic is min(W+, W-).
func (t *Tester) Test(treated, controls []float64) (matching.TestResult, error) {
	if len(treated) != len(controls) {
		return matching.TestResult{}, fmt.Errorf("outcome sequences differ in length: %d vs %d", len(treated), len(controls))
	}
	if len(treated) < t.minPairs {
		return matching.TestResult{}, core.NewInsufficientPairsError(len(treated), t.minPairs)
	}

	diffs := make([]float64, 0, len(treated))
	zeros := 0
	for i := range treated {
		d := treated[i] - controls[i]
		if d == 0 {
			zeros++
			continue
		}
		diffs = append(diffs, d)
	}

	n := len(diffs)
	if n == 0 {
		return matching.TestResult{
			Statistic: 0,
			PValue:    1.0,
			Pairs:     len(treated),
			Zeros:     zeros,
			Method:    MethodDegenerate,
		}, nil
	}

	abs := make([]float64, n)
	for i, d := range diffs {
		abs[i] = math.Abs(d)
	}
	ranks, tieCorrection := rankWithTies(abs)

	wPlus, wMinus := 0.0, 0.0
	for i, d := range diffs {
		if d > 0 {
			wPlus += ranks[i]
		} else {
			wMinus += ranks[i]
		}
	}
	statistic := math.Min(wPlus, wMinus)

	var pValue float64
	method := MethodNormal
	if n <= t.exactLimit && tieCorrection == 0 {
		pValue = exactPValue(statistic, n)
		method = MethodExact
	} else {
		pValue = normalPValue(statistic, n, tieCorrection)
	}

	return matching.TestResult{
		Statistic: statistic,
		PValue:    pValue,
		Pairs:     len(treated),
		Zeros:     zeros,
		Method:    method,
	}, nil
}

// rankWithTies assigns ascending ranks to values, averaging ranks within
// tie groups, and returns the tie correction term Σ(t³-t) over tie groups.
func rankWithTies(values []float64) ([]float64, float64) {
	n := len(values)
	type pair struct {
		value float64
		index int
	}
	pairs := make([]pair, n)
	for i, v := range values {
		pairs[i] = pair{value: v, index: i}
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].value < pairs[j].value
	})

	ranks := make([]float64, n)
	tieCorrection := 0.0

	i := 0
	for i < n {
		j := i + 1
		for j < n && pairs[j].value == pairs[i].value {
			j++
		}
		groupSize := j - i
		avgRank := float64(i+1) + float64(groupSize-1)/2.0
		for k := i; k < j; k++ {
			ranks[pairs[k].index] = avgRank
		}
		if groupSize > 1 {
			g := float64(groupSize)
			tieCorrection += g*g*g - g
		}
		i = j
	}

	return ranks, tieCorrection
}

// exactPValue computes the two-sided p-value from the exact null
// distribution of the signed-rank sum over n distinct ranks: a counting DP
// over the 2^n equally likely sign configurations.
func exactPValue(statistic float64, n int) float64 {
	maxSum := n * (n + 1) / 2
	ways := make([]float64, maxSum+1)
	ways[0] = 1
	for r := 1; r <= n; r++ {
		for s := maxSum; s >= r; s-- {
			ways[s] += ways[s-r]
		}
	}

	w := int(math.Floor(statistic + 0.5))
	if w > maxSum {
		w = maxSum
	}
	cdf := 0.0
	for s := 0; s <= w; s++ {
		cdf += ways[s]
	}
	p := 2 * cdf / math.Pow(2, float64(n))
	return math.Min(p, 1.0)
}

// normalPValue computes the continuity-corrected large-sample p-value with
// a tie correction to the variance.
func normalPValue(statistic float64, n int, tieCorrection float64) float64 {
	fn := float64(n)
	mean := fn * (fn + 1) / 4
	variance := fn*(fn+1)*(2*fn+1)/24 - tieCorrection/48
	if variance <= 0 {
		return 1.0
	}

	// The statistic is min(W+, W-), always at or below the mean; the
	// continuity correction shifts half a rank toward it.
	z := (statistic - mean + 0.5) / math.Sqrt(variance)
	normal := distuv.Normal{Mu: 0, Sigma: 1}
	p := 2 * normal.CDF(z)
	if p > 1 {
		p = 1
	}
	if p < 0 {
		p = 0
	}
	return p
}
