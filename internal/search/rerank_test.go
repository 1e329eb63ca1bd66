package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// fixedRanker returns preset scores and records the passages it saw.
type fixedRanker struct {
	scores   []float64
	err      error
	calls    int
	passages []string
}

func (f *fixedRanker) Rank(_ context.Context, _ string, passages []string) ([]float64, error) {
	f.calls++
	f.passages = passages
	if f.err != nil {
		return nil, f.err
	}
	return f.scores, nil
}

func TestRerank_AssignsMirrorsAndSorts(t *testing.T) {
	// Given: merged candidates and separately retained raw lists
	vector := []*Candidate{vecHit("a", 0.1), vecHit("b", 0.2)}
	keyword := []*Candidate{kwHit("b", 1), kwHit("c", 2)}
	merged := Merge(vector, keyword)
	ranker := &fixedRanker{scores: []float64{0.1, 0.9, 0.5}}

	// When: re-ranking
	err := Rerank(context.Background(), ranker, "q", merged, vector, keyword)
	require.NoError(t, err)

	// Then: one batch call, sorted by score, mirrored onto raw lists
	assert.Equal(t, 1, ranker.calls)
	assert.Equal(t, []string{"content of a", "content of b", "content of c"}, ranker.passages)
	assert.Equal(t, []string{"b", "c", "a"}, ids(merged))
	assert.Equal(t, 0.9, *keyword[0].Score)
	assert.Equal(t, 0.5, *keyword[1].Score)
	assert.Equal(t, 0.1, *vector[0].Score)
}

func TestRerank_StableForTies(t *testing.T) {
	merged := []*Candidate{cand("a"), cand("b"), cand("c")}

	err := Rerank(context.Background(), &fixedRanker{scores: []float64{1, 2, 1}}, "q", merged)

	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, ids(merged))
}

func TestRerank_CountMismatch(t *testing.T) {
	merged := []*Candidate{cand("a"), cand("b")}

	err := Rerank(context.Background(), &fixedRanker{scores: []float64{1}}, "q", merged)

	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeRerankFailed, amerrors.GetCode(err))
}

func TestRerank_FailurePropagates(t *testing.T) {
	merged := []*Candidate{cand("a")}

	err := Rerank(context.Background(), &fixedRanker{err: errors.New("model crashed")}, "q", merged)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "cross encoder failed")
	assert.Nil(t, merged[0].Score)
}

func TestRerank_EmptyDoesNotCall(t *testing.T) {
	r := &fixedRanker{}

	require.NoError(t, Rerank(context.Background(), r, "q", nil))
	assert.Zero(t, r.calls)
}

func TestStaticRanker(t *testing.T) {
	scores, err := StaticRanker{}.Rank(context.Background(), "reset password", []string{
		"How to reset your password",
		"Password policy",
		"Billing",
	})

	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0.5, 0}, scores)
}

func TestRankerRegistry_Resolve(t *testing.T) {
	reg := NewRankerRegistry(RankerConfig{})

	rk, err := reg.Resolve("static", "lexical")
	require.NoError(t, err)
	assert.IsType(t, StaticRanker{}, rk)

	for _, tt := range []struct{ provider, model string }{
		{"http", "cross-encoder/ms-marco-MiniLM-L-6-v2"}, // no endpoint configured
		{"sagemaker", "x"},
		{"static", ""},
	} {
		_, err := reg.Resolve(tt.provider, tt.model)
		require.Error(t, err)
		assert.ErrorIs(t, err, amerrors.ErrCrossEncoderNotFound)
		assert.True(t, amerrors.IsCommon(err))
		assert.Contains(t, err.Error(), "Cross encoder model not found")
	}
}

func TestHTTPRanker_ScoresInInputOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rerank", r.URL.Path)
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "bge-reranker", req.Model)
		assert.Len(t, req.Documents, 3)
		// results come back sorted by relevance, not by input
		_, _ = w.Write([]byte(`{"results":[{"index":2,"score":0.9},{"index":0,"score":0.5},{"index":1,"score":0.1}]}`))
	}))
	defer srv.Close()

	reg := NewRankerRegistry(RankerConfig{Endpoint: srv.URL + "/"})
	rk, err := reg.Resolve("http", "bge-reranker")
	require.NoError(t, err)

	scores, err := rk.Rank(context.Background(), "q", []string{"a", "b", "c"})

	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.1, 0.9}, scores)
}

func TestHTTPRanker_CircuitOpens(t *testing.T) {
	// Given: an endpoint that rejects every request
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	reg := NewRankerRegistry(RankerConfig{Endpoint: srv.URL, MaxFailures: 2, ResetTimeout: time.Hour})
	rk, err := reg.Resolve("http", "m")
	require.NoError(t, err)

	// When: failing twice
	for range 2 {
		_, err := rk.Rank(context.Background(), "q", []string{"p"})
		require.Error(t, err)
	}

	// Then: the third call fails fast without reaching the endpoint
	_, err = rk.Rank(context.Background(), "q", []string{"p"})
	assert.ErrorIs(t, err, amerrors.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())
}
