package search

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// Ranker is a cross-encoder: one relevance score per passage, in input order.
type Ranker interface {
	Rank(ctx context.Context, query string, passages []string) ([]float64, error)
}

// Rerank scores merged candidates with one batch call, mirrors the scores
// onto the raw per-mode lists and stable-sorts merged by score descending.
func Rerank(ctx context.Context, ranker Ranker, query string, merged []*Candidate, raw ...[]*Candidate) error {
	if len(merged) == 0 {
		return nil
	}

	passages := make([]string, len(merged))
	for i, c := range merged {
		passages[i] = c.Content
	}

	scores, err := ranker.Rank(ctx, query, passages)
	if err != nil {
		if amerrors.IsCommon(err) {
			return err
		}
		return amerrors.New(amerrors.ErrCodeRerankFailed, "cross encoder failed", err)
	}
	if len(scores) != len(passages) {
		return amerrors.New(amerrors.ErrCodeRerankFailed,
			fmt.Sprintf("cross encoder returned %d scores for %d passages", len(scores), len(passages)), nil)
	}

	byID := make(map[string]float64, len(merged))
	for i, c := range merged {
		c.Score = float64Ptr(scores[i])
		byID[c.ChunkID] = scores[i]
	}
	for _, list := range raw {
		for _, c := range list {
			if s, ok := byID[c.ChunkID]; ok {
				c.Score = float64Ptr(s)
			}
		}
	}

	slices.SortStableFunc(merged, func(a, b *Candidate) int {
		return cmp.Compare(*b.Score, *a.Score)
	})
	return nil
}
