package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cand(id string) *Candidate {
	return &Candidate{Chunk: Chunk{ChunkID: id, Content: "content of " + id}}
}

func vecHit(id string, score float64) *Candidate {
	c := cand(id)
	c.VectorSearchScore = float64Ptr(score)
	return c
}

func kwHit(id string, score float64) *Candidate {
	c := cand(id)
	c.KeywordSearchScore = float64Ptr(score)
	return c
}

func ids(items []*Candidate) []string {
	out := make([]string, len(items))
	for i, c := range items {
		out[i] = c.ChunkID
	}
	return out
}

func TestMerge_DedupUnionsSources(t *testing.T) {
	// Given: chunk b found by both modes
	vector := []*Candidate{vecHit("a", 0.1), vecHit("b", 0.2)}
	keyword := []*Candidate{kwHit("b", 3.5), kwHit("c", 1.0)}

	// When: merging
	merged := Merge(vector, keyword)

	// Then: one candidate per chunk, vector hits first
	require.Equal(t, []string{"a", "b", "c"}, ids(merged))
	assert.Equal(t, []Source{SourceVector}, merged[0].Sources)
	assert.Equal(t, []Source{SourceKeyword, SourceVector}, merged[1].Sources)
	assert.Equal(t, []Source{SourceKeyword}, merged[2].Sources)
}

func TestMerge_BackfillsScoresBothWays(t *testing.T) {
	vector := []*Candidate{vecHit("x", -0.8)}
	keyword := []*Candidate{kwHit("x", 0.42)}

	merged := Merge(vector, keyword)

	require.Len(t, merged, 1)
	x := merged[0]
	require.NotNil(t, x.VectorSearchScore)
	require.NotNil(t, x.KeywordSearchScore)
	assert.Equal(t, -0.8, *x.VectorSearchScore)
	assert.Equal(t, 0.42, *x.KeywordSearchScore)

	// the raw keyword record is updated too
	assert.Equal(t, -0.8, *keyword[0].VectorSearchScore)
	assert.Equal(t, []Source{SourceKeyword, SourceVector}, keyword[0].Sources)
}

func TestMerge_SingleModeKeepsNilScore(t *testing.T) {
	merged := Merge([]*Candidate{vecHit("a", 0.3)}, nil)

	require.Len(t, merged, 1)
	assert.Nil(t, merged[0].KeywordSearchScore)
	assert.Nil(t, merged[0].Score)
}

func TestMerge_Idempotent(t *testing.T) {
	vector := []*Candidate{vecHit("a", 0.3), vecHit("b", 0.4)}
	keyword := []*Candidate{kwHit("a", 2)}

	first := Merge(vector, keyword)
	second := Merge(first, nil)

	assert.Equal(t, ids(first), ids(second))
	assert.Equal(t, []Source{SourceKeyword, SourceVector}, second[0].Sources)
}

func TestMerge_Empty(t *testing.T) {
	merged := Merge(nil, nil)

	assert.NotNil(t, merged)
	assert.Empty(t, merged)
}
