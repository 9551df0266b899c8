package assignment

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gomatch/domain/core"
)

// Forbidden marks a cost entry that must never be selected. Any cost at or
// above this value is treated as an absent edge.
const Forbidden = math.MaxFloat64

// Costs is a read-only rectangular cost matrix
type Costs interface {
	Rows() int
	Cols() int
	At(i, j int) float64
}

// Pair is one selected (row, column) of the assignment
type Pair struct {
	Row int
	Col int
}

// InfeasibleError reports which side of the matrix could not be matched.
// Exactly one of Row and Col is set; the other is -1. Callers can translate
// the index back to a subject identifier.
type InfeasibleError struct {
	Row int
	Col int
}

func (e *InfeasibleError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("%v: no usable column reachable from row %d", core.ErrInfeasibleAssignment, e.Row)
	}
	return fmt.Sprintf("%v: no usable row reachable from column %d", core.ErrInfeasibleAssignment, e.Col)
}

func (e *InfeasibleError) Unwrap() error {
	return core.ErrInfeasibleAssignment
}

// Solver finds a globally optimal one-to-one assignment between the rows
// and a subset of the columns of a rectangular cost matrix, minimizing
// total cost. It implements the shortest augmenting path formulation of the
// Jonker-Volgenant algorithm with dual potentials, O(min(m,n)²·max(m,n)).
// The solver is deterministic: identical inputs always yield identical
// assignments, with cost ties broken by index order.
type Solver struct{}

// NewSolver creates an assignment solver
func NewSolver() *Solver {
	return &Solver{}
}

// Solve returns min(m,n) pairs in ascending row order. When the matrix has
// more rows than columns the problem is solved on its transpose, leaving
// the surplus rows unmatched. Fails with ErrInfeasibleAssignment when some
// row has no usable column left.
func (s *Solver) Solve(costs Costs) ([]Pair, error) {
	nr, nc := costs.Rows(), costs.Cols()
	if nr == 0 || nc == 0 {
		return nil, fmt.Errorf("%w: empty cost matrix", core.ErrInfeasibleAssignment)
	}

	if nr <= nc {
		col4row, err := solve(nr, nc, costs.At)
		if err != nil {
			return nil, err
		}
		pairs := make([]Pair, nr)
		for i, j := range col4row {
			pairs[i] = Pair{Row: i, Col: j}
		}
		return pairs, nil
	}

	// More rows than columns: assign every column on the transpose instead.
	col4row, err := solve(nc, nr, func(i, j int) float64 { return costs.At(j, i) })
	if err != nil {
		// Transposed row indices are original column indices.
		var inf *InfeasibleError
		if errors.As(err, &inf) {
			return nil, &InfeasibleError{Row: -1, Col: inf.Row}
		}
		return nil, err
	}
	pairs := make([]Pair, nc)
	for j, i := range col4row {
		pairs[j] = Pair{Row: i, Col: j}
	}
	sortPairsByRow(pairs)
	return pairs, nil
}

// solve runs the augmenting path algorithm for nr <= nc, returning the
// matched column for every row.
func solve(nr, nc int, cost func(i, j int) float64) ([]int, error) {
	u := make([]float64, nr)
	v := make([]float64, nc)
	shortestPathCosts := make([]float64, nc)
	path := make([]int, nc)
	col4row := make([]int, nr)
	row4col := make([]int, nc)
	visitedRows := make([]bool, nr)
	visitedCols := make([]bool, nc)
	remaining := make([]int, nc)

	for i := range col4row {
		col4row[i] = -1
	}
	for j := range row4col {
		row4col[j] = -1
	}

	for curRow := 0; curRow < nr; curRow++ {
		minVal := 0.0
		i := curRow
		numRemaining := nc
		for it := 0; it < nc; it++ {
			remaining[it] = nc - it - 1
		}
		for t := range visitedRows {
			visitedRows[t] = false
		}
		for t := range visitedCols {
			visitedCols[t] = false
		}
		for t := range shortestPathCosts {
			shortestPathCosts[t] = math.Inf(1)
		}

		// Dijkstra over the residual graph until an unmatched column is
		// reached.
		sink := -1
		for sink == -1 {
			index := -1
			lowest := math.Inf(1)
			visitedRows[i] = true

			for it := 0; it < numRemaining; it++ {
				j := remaining[it]
				r := math.Inf(1)
				if c := cost(i, j); c < Forbidden {
					r = minVal + c - u[i] - v[j]
				}
				if r < shortestPathCosts[j] {
					path[j] = i
					shortestPathCosts[j] = r
				}
				if shortestPathCosts[j] < lowest ||
					(shortestPathCosts[j] == lowest && row4col[j] == -1) {
					lowest = shortestPathCosts[j]
					index = it
				}
			}

			minVal = lowest
			if math.IsInf(minVal, 1) {
				return nil, &InfeasibleError{Row: curRow, Col: -1}
			}

			j := remaining[index]
			if row4col[j] == -1 {
				sink = j
			} else {
				i = row4col[j]
			}
			visitedCols[j] = true
			numRemaining--
			remaining[index] = remaining[numRemaining]
		}

		// Update dual potentials.
		u[curRow] += minVal
		for t := 0; t < nr; t++ {
			if visitedRows[t] && t != curRow {
				u[t] += minVal - shortestPathCosts[col4row[t]]
			}
		}
		for j := 0; j < nc; j++ {
			if visitedCols[j] {
				v[j] -= minVal - shortestPathCosts[j]
			}
		}

		// Augment along the found path.
		j := sink
		for {
			i := path[j]
			row4col[j] = i
			col4row[i], j = j, col4row[i]
			if i == curRow {
				break
			}
		}
	}

	return col4row, nil
}

func sortPairsByRow(pairs []Pair) {
	sort.Slice(pairs, func(a, b int) bool {
		return pairs[a].Row < pairs[b].Row
	})
}
