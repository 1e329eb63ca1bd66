package search

import (
	"slices"
)

// Pad builds the client result list.
//
// Without re-ranking the merged list is truncated to limit. With re-ranking,
// items scoring above threshold are taken first; if fewer than limit clear
// it, the list is topped up from the full set ordered by vector score under
// the metric's policy, keeping only items inside the policy's acceptance
// band. The result never exceeds limit.
func Pad(items []*Candidate, metric Metric, limit int, threshold float64, reranked bool) []*Candidate {
	if limit <= 0 {
		return []*Candidate{}
	}
	if !reranked {
		return slices.Clone(items[:min(limit, len(items))])
	}

	out := make([]*Candidate, 0, limit)
	present := make(map[string]bool, limit)
	for _, c := range items {
		if len(out) == limit {
			return out
		}
		if c.Score != nil && *c.Score > threshold {
			out = append(out, c)
			present[c.ChunkID] = true
		}
	}

	for _, c := range backfillOrder(items, metric.Policy()) {
		if len(out) == limit {
			break
		}
		if !present[c.ChunkID] {
			out = append(out, c)
			present[c.ChunkID] = true
		}
	}
	return out
}

// backfillOrder returns the candidates inside the acceptance band, best
// vector score first.
func backfillOrder(items []*Candidate, p MetricPolicy) []*Candidate {
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b *Candidate) int {
		sa, sb := p.fill(a.VectorSearchScore), p.fill(b.VectorSearchScore)
		switch {
		case p.better(sa, sb):
			return -1
		case p.better(sb, sa):
			return 1
		}
		return 0
	})
	return slices.DeleteFunc(sorted, func(c *Candidate) bool {
		return !p.Accept(p.fill(c.VectorSearchScore))
	})
}
