package search

import (
	"slices"
)

// Merge tags vector and keyword hits with their source and folds them into
// one list with a single candidate per chunk id, vector hits first.
//
// A chunk found by both modes unions sources on both records and backfills
// each missing score from the other record, so the raw lists reported for
// diagnostics stay consistent with the merged one. Inputs are mutated.
func Merge(vector, keyword []*Candidate) []*Candidate {
	for _, c := range vector {
		addSource(c, SourceVector)
	}
	for _, c := range keyword {
		addSource(c, SourceKeyword)
	}

	byID := make(map[string]*Candidate, len(vector)+len(keyword))
	merged := make([]*Candidate, 0, len(vector)+len(keyword))
	for _, c := range slices.Concat(vector, keyword) {
		existing, seen := byID[c.ChunkID]
		if !seen {
			byID[c.ChunkID] = c
			merged = append(merged, c)
			continue
		}
		if existing == c {
			continue
		}
		unionSources(existing, c)
		backfill(&existing.VectorSearchScore, &c.VectorSearchScore)
		backfill(&existing.KeywordSearchScore, &c.KeywordSearchScore)
	}
	return merged
}

func addSource(c *Candidate, s Source) {
	if !slices.Contains(c.Sources, s) {
		c.Sources = append(c.Sources, s)
		slices.Sort(c.Sources)
	}
}

func unionSources(a, b *Candidate) {
	union := slices.Concat(a.Sources, b.Sources)
	slices.Sort(union)
	union = slices.Compact(union)
	a.Sources = union
	b.Sources = slices.Clone(union)
}

// backfill copies whichever side is set into the side that is nil.
func backfill(a, b **float64) {
	switch {
	case *a == nil && *b != nil:
		*a = float64Ptr(**b)
	case *b == nil && *a != nil:
		*b = float64Ptr(**a)
	}
}
