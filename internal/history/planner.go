package history

import (
	"fmt"
	"time"

	"vela/internal/market"
)

// defaultChunkBudget is applied when a granularity is missing from the table.
const defaultChunkBudget = 300

// Chunk is one bounded sub-range of a larger requested time range, sized so
// the upstream per-request candle ceiling is respected.
type Chunk struct {
	ProductID   string
	Start       time.Time
	End         time.Time
	Granularity market.Granularity
}

// Planner splits [start, end) into ordered, contiguous, non-overlapping
// chunks. Same inputs always produce the same boundaries.
type Planner struct {
	budgets map[market.Granularity]int
}

func NewPlanner(budgets map[market.Granularity]int) *Planner {
	table := make(map[market.Granularity]int, len(budgets))
	for g, n := range budgets {
		table[g] = n
	}
	return &Planner{budgets: table}
}

// Plan emits ascending chunks covering [start, end). Each chunk spans at most
// budget × granularity-duration; the final chunk is clipped to end. A range
// with end ≤ start plans to nothing.
func (p *Planner) Plan(productID string, start, end time.Time, g market.Granularity) ([]Chunk, error) {
	if !g.Valid() {
		return nil, fmt.Errorf("plan: unsupported granularity %q", g)
	}
	if !end.After(start) {
		return nil, nil
	}
	budget := p.budgets[g]
	if budget <= 0 {
		budget = defaultChunkBudget
	}
	span := time.Duration(budget) * g.Duration()
	out := make([]Chunk, 0, int(end.Sub(start)/span)+1)
	for cur := start; cur.Before(end); cur = cur.Add(span) {
		chunkEnd := cur.Add(span)
		if chunkEnd.After(end) {
			chunkEnd = end
		}
		out = append(out, Chunk{
			ProductID:   productID,
			Start:       cur,
			End:         chunkEnd,
			Granularity: g,
		})
	}
	return out, nil
}
