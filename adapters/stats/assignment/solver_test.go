package assignment

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gomatch/domain/core"
)

type costMatrix struct {
	rows, cols int
	data       []float64
}

func (m costMatrix) Rows() int           { return m.rows }
func (m costMatrix) Cols() int           { return m.cols }
func (m costMatrix) At(i, j int) float64 { return m.data[i*m.cols+j] }

// bruteForce enumerates every feasible one-to-one assignment and returns
// the minimum total cost. Only usable for tiny matrices.
func bruteForce(m costMatrix) float64 {
	nr, nc := m.rows, m.cols
	if nr > nc {
		t := costMatrix{rows: nc, cols: nr, data: make([]float64, nr*nc)}
		for i := 0; i < nr; i++ {
			for j := 0; j < nc; j++ {
				t.data[j*nr+i] = m.At(i, j)
			}
		}
		return bruteForce(t)
	}

	used := make([]bool, nc)
	best := math.Inf(1)
	var rec func(row int, total float64)
	rec = func(row int, total float64) {
		if row == nr {
			if total < best {
				best = total
			}
			return
		}
		for j := 0; j < nc; j++ {
			if used[j] || m.At(row, j) >= Forbidden {
				continue
			}
			used[j] = true
			rec(row+1, total+m.At(row, j))
			used[j] = false
		}
	}
	rec(0, 0)
	return best
}

func totalCost(m costMatrix, pairs []Pair) float64 {
	total := 0.0
	for _, p := range pairs {
		total += m.At(p.Row, p.Col)
	}
	return total
}

func TestSolveKnownSquare(t *testing.T) {
	// Classic 3x3 with an obvious optimum on the anti-diagonal.
	m := costMatrix{rows: 3, cols: 3, data: []float64{
		4, 1, 3,
		2, 0, 5,
		3, 2, 2,
	}}

	pairs, err := NewSolver().Solve(m)
	require.NoError(t, err)
	require.Len(t, pairs, 3)
	assert.InDelta(t, 5.0, totalCost(m, pairs), 1e-12)
}

func TestSolveMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 200; trial++ {
		nr := 1 + rng.Intn(6)
		nc := 1 + rng.Intn(6)
		m := costMatrix{rows: nr, cols: nc, data: make([]float64, nr*nc)}
		for i := range m.data {
			m.data[i] = math.Round(rng.Float64()*1000) / 10
		}

		pairs, err := NewSolver().Solve(m)
		require.NoError(t, err, "trial %d (%dx%d)", trial, nr, nc)
		require.Len(t, pairs, minInt(nr, nc))

		want := bruteForce(m)
		got := totalCost(m, pairs)
		assert.InDelta(t, want, got, 1e-9, "trial %d (%dx%d)", trial, nr, nc)
	}
}

func TestSolveBijection(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	m := costMatrix{rows: 5, cols: 9, data: make([]float64, 45)}
	for i := range m.data {
		m.data[i] = rng.Float64()
	}

	pairs, err := NewSolver().Solve(m)
	require.NoError(t, err)

	rowsSeen := make(map[int]bool)
	colsSeen := make(map[int]bool)
	for _, p := range pairs {
		assert.False(t, rowsSeen[p.Row], "row %d reused", p.Row)
		assert.False(t, colsSeen[p.Col], "col %d reused", p.Col)
		rowsSeen[p.Row] = true
		colsSeen[p.Col] = true
	}
}

func TestSolveMoreRowsThanCols(t *testing.T) {
	// 4 rows, 2 cols: only 2 rows can be matched; total must still be
	// globally minimal.
	m := costMatrix{rows: 4, cols: 2, data: []float64{
		10, 10,
		1, 10,
		10, 1,
		10, 10,
	}}

	pairs, err := NewSolver().Solve(m)
	require.NoError(t, err)
	require.Len(t, pairs, 2)

	assert.Equal(t, []Pair{{Row: 1, Col: 0}, {Row: 2, Col: 1}}, pairs)
	assert.InDelta(t, 2.0, totalCost(m, pairs), 1e-12)
}

func TestSolveRowOrderAscending(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	m := costMatrix{rows: 7, cols: 4, data: make([]float64, 28)}
	for i := range m.data {
		m.data[i] = rng.Float64()
	}

	pairs, err := NewSolver().Solve(m)
	require.NoError(t, err)
	for i := 1; i < len(pairs); i++ {
		assert.Less(t, pairs[i-1].Row, pairs[i].Row)
	}
}

func TestSolveDeterminism(t *testing.T) {
	// All-equal costs: massively tied. The solver must still pick the same
	// assignment every time.
	m := costMatrix{rows: 4, cols: 6, data: make([]float64, 24)}
	for i := range m.data {
		m.data[i] = 1.0
	}

	first, err := NewSolver().Solve(m)
	require.NoError(t, err)
	for trial := 0; trial < 20; trial++ {
		again, err := NewSolver().Solve(m)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSolveForbiddenEntries(t *testing.T) {
	m := costMatrix{rows: 2, cols: 2, data: []float64{
		Forbidden, 1,
		2, Forbidden,
	}}

	pairs, err := NewSolver().Solve(m)
	require.NoError(t, err)
	assert.Equal(t, []Pair{{Row: 0, Col: 1}, {Row: 1, Col: 0}}, pairs)
}

func TestSolveInfeasible(t *testing.T) {
	m := costMatrix{rows: 2, cols: 2, data: []float64{
		Forbidden, Forbidden,
		1, 2,
	}}

	_, err := NewSolver().Solve(m)
	assert.ErrorIs(t, err, core.ErrInfeasibleAssignment)

	var inf *InfeasibleError
	require.ErrorAs(t, err, &inf)
	assert.Equal(t, 0, inf.Row)
	assert.Equal(t, -1, inf.Col)
}

func TestSolveInfeasibleColumnOnTranspose(t *testing.T) {
	// More rows than columns: column 1 has no usable row, and the error
	// reports it in original coordinates.
	m := costMatrix{rows: 3, cols: 2, data: []float64{
		1, Forbidden,
		2, Forbidden,
		3, Forbidden,
	}}

	_, err := NewSolver().Solve(m)
	assert.ErrorIs(t, err, core.ErrInfeasibleAssignment)

	var inf *InfeasibleError
	require.ErrorAs(t, err, &inf)
	assert.Equal(t, -1, inf.Row)
	assert.Equal(t, 1, inf.Col)
}

func TestSolveEmpty(t *testing.T) {
	_, err := NewSolver().Solve(costMatrix{rows: 0, cols: 3})
	assert.ErrorIs(t, err, core.ErrInfeasibleAssignment)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
