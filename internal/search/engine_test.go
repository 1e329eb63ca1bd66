package search

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/embed"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/metrics"
	"github.com/Aman-CERP/amanrag/internal/workspace"
)

// mockVector returns preset hits. Hits are cloned per call so merge
// mutations never leak between queries.
type mockVector struct {
	hits   []*Candidate
	err    error
	calls  atomic.Int32
	metric Metric
	limit  int
	block  bool
}

func (m *mockVector) VectorSearch(ctx context.Context, _ *workspace.Workspace, _ []float32, metric Metric, limit int) ([]*Candidate, error) {
	m.calls.Add(1)
	m.metric, m.limit = metric, limit
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.err != nil {
		return nil, m.err
	}
	return cloneAll(m.hits), nil
}

type mockKeyword struct {
	hits     []*Candidate
	err      error
	calls    atomic.Int32
	language string
}

func (m *mockKeyword) KeywordSearch(_ context.Context, _ *workspace.Workspace, _ string, language string, _ int) ([]*Candidate, error) {
	m.calls.Add(1)
	m.language = language
	if m.err != nil {
		return nil, m.err
	}
	return cloneAll(m.hits), nil
}

func cloneAll(in []*Candidate) []*Candidate {
	out := make([]*Candidate, len(in))
	for i, c := range in {
		cp := *c
		out[i] = &cp
	}
	return out
}

type staticEmbedders struct{ err error }

func (s staticEmbedders) Resolve(provider, model string) (embed.Embedder, error) {
	if s.err != nil {
		return nil, s.err
	}
	return embed.NewStaticEmbedder(model, 8), nil
}

type mockRankers struct {
	ranker Ranker
	err    error
}

func (m mockRankers) Resolve(provider, model string) (Ranker, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.ranker, nil
}

type fixedDetector struct{}

func (fixedDetector) Detect(_ string, supported []string) (string, []string) {
	return supported[0], []string{supported[0]}
}

type fixture struct {
	vector  *mockVector
	keyword *mockKeyword
	ranker  *fixedRanker
	ws      *workspace.Workspace
}

func newFixture() *fixture {
	return &fixture{
		vector:  &mockVector{hits: []*Candidate{vecHit("a", 0.9), vecHit("b", 0.8), vecHit("c", 0.7)}},
		keyword: &mockKeyword{hits: []*Candidate{kwHit("b", 2), kwHit("d", 1)}},
		ranker:  &fixedRanker{},
		ws: &workspace.Workspace{
			ID:                      "ws-1",
			Engine:                  workspace.EngineAurora,
			EmbeddingsModelProvider: "static",
			EmbeddingsModelName:     "static-8",
			Metric:                  "cosine",
			HybridSearch:            true,
			Languages:               []string{"english", "german"},
		},
	}
}

func (f *fixture) engine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	e, err := NewEngine(
		Adapters{Engine: "aurora", Vector: f.vector, Keyword: f.keyword, EchoDetectedLanguages: true},
		staticEmbedders{}, mockRankers{ranker: f.ranker}, fixedDetector{}, opts...)
	require.NoError(t, err)
	return e
}

func TestNewEngine_RequiresDependencies(t *testing.T) {
	_, err := NewEngine(Adapters{}, staticEmbedders{}, mockRankers{}, fixedDetector{})

	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestQuery_EmptyQueryShortCircuits(t *testing.T) {
	for _, q := range []string{"", "   \t\n"} {
		f := newFixture()
		e := f.engine(t)

		payload, err := e.Query(context.Background(), f.ws, QueryRequest{Query: q, Limit: 5})
		require.NoError(t, err)

		data, err := json.Marshal(payload)
		require.NoError(t, err)
		assert.JSONEq(t, `{"items": []}`, string(data))
		assert.Zero(t, f.vector.calls.Load())
		assert.Zero(t, f.keyword.calls.Load())
	}
}

func TestQuery_UnknownMetricBeforeAnyCall(t *testing.T) {
	f := newFixture()
	f.ws.Metric = "manhattan"
	e := f.engine(t)

	_, err := e.Query(context.Background(), f.ws, QueryRequest{Query: "hello", Limit: 5})

	require.ErrorIs(t, err, amerrors.ErrUnsupportedMetric)
	assert.True(t, amerrors.IsCommon(err))
	assert.Zero(t, f.vector.calls.Load())
	assert.Zero(t, f.keyword.calls.Load())
}

func TestQuery_UnresolvableModelsAreCommonErrors(t *testing.T) {
	t.Run("embeddings", func(t *testing.T) {
		f := newFixture()
		e, err := NewEngine(Adapters{Engine: "aurora", Vector: f.vector},
			staticEmbedders{err: amerrors.EmbeddingsModelNotFound("x", "y")}, mockRankers{}, fixedDetector{})
		require.NoError(t, err)

		_, err = e.Query(context.Background(), f.ws, QueryRequest{Query: "q", Limit: 5})

		assert.ErrorIs(t, err, amerrors.ErrEmbeddingsModelNotFound)
		assert.Zero(t, f.vector.calls.Load())
	})

	t.Run("cross encoder", func(t *testing.T) {
		f := newFixture()
		f.ws.CrossEncoderModelProvider = "http"
		f.ws.CrossEncoderModelName = "missing"
		e, err := NewEngine(Adapters{Engine: "aurora", Vector: f.vector},
			staticEmbedders{}, mockRankers{err: amerrors.CrossEncoderModelNotFound("http", "missing")}, fixedDetector{})
		require.NoError(t, err)

		_, err = e.Query(context.Background(), f.ws, QueryRequest{Query: "q", Limit: 5})

		assert.ErrorIs(t, err, amerrors.ErrCrossEncoderNotFound)
		assert.Zero(t, f.vector.calls.Load())
	})
}

func TestQuery_NoCrossEncoderKeepsMergeOrder(t *testing.T) {
	// Given: hybrid workspace without a cross-encoder
	f := newFixture()
	e := f.engine(t)

	// When: querying with a threshold that would filter everything
	payload, err := e.Query(context.Background(), f.ws, QueryRequest{Query: "q", Limit: 10, Threshold: 100})
	require.NoError(t, err)

	// Then: merge order, nil scores, no threshold filtering
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(payload.Items))
	for _, c := range payload.Items {
		assert.Nil(t, c.Score)
	}
	assert.Zero(t, f.ranker.calls)
	assert.Equal(t, VectorSearchBreadth, f.vector.limit)
	assert.Equal(t, MetricCosine, f.vector.metric)
}

func TestQuery_RerankedAndPadded(t *testing.T) {
	// Given: a cross-encoder that only likes d
	f := newFixture()
	f.ws.CrossEncoderModelProvider = "static"
	f.ws.CrossEncoderModelName = "m"
	f.ranker.scores = []float64{-1, -2, -3, 4}
	e := f.engine(t)

	// When: asking for 3 with threshold 0
	payload, err := e.Query(context.Background(), f.ws, QueryRequest{Query: "q", Limit: 3})
	require.NoError(t, err)

	// Then: d clears the threshold, a and b backfill by vector score
	assert.Equal(t, []string{"d", "a", "b"}, ids(payload.Items))
	require.NotNil(t, payload.Items[0].Score)
	assert.Equal(t, 4.0, *payload.Items[0].Score)
}

func TestQuery_FullResponse(t *testing.T) {
	f := newFixture()
	f.ws.CrossEncoderModelProvider = "static"
	f.ws.CrossEncoderModelName = "m"
	f.ranker.scores = []float64{-1, -2, -3, 4}
	e := f.engine(t)

	payload, err := e.Query(context.Background(), f.ws, QueryRequest{Query: "q", Limit: 2, FullResponse: true, Threshold: 10})
	require.NoError(t, err)

	// merged post re-rank, trimmed to limit, no threshold
	assert.Equal(t, []string{"d", "a"}, ids(payload.Items))
	assert.Equal(t, []string{"a", "b", "c"}, ids(payload.VectorSearchItems))
	assert.Equal(t, []string{"b", "d"}, ids(payload.KeywordSearchItems))
	assert.Equal(t, "cosine", payload.VectorSearchMetric)
	// scores mirrored onto raw lists
	require.NotNil(t, payload.KeywordSearchItems[0].Score)
	assert.Equal(t, -2.0, *payload.KeywordSearchItems[0].Score)
}

func TestQuery_EchoesLanguages(t *testing.T) {
	f := newFixture()
	e := f.engine(t)

	payload, err := e.Query(context.Background(), f.ws, QueryRequest{Query: "q", Limit: 5})
	require.NoError(t, err)

	assert.Equal(t, "aurora", payload.Engine)
	assert.Equal(t, "english", payload.QueryLanguage)
	assert.Equal(t, []string{"english", "german"}, payload.SupportedLanguages)
	assert.Equal(t, []string{"english"}, payload.DetectedLanguages)
	assert.Equal(t, "english", f.keyword.language)
}

func TestQuery_DetectedLanguagesOnlyWhenEchoed(t *testing.T) {
	f := newFixture()
	e, err := NewEngine(Adapters{Engine: "opensearch", Vector: f.vector, Keyword: f.keyword},
		staticEmbedders{}, mockRankers{}, fixedDetector{})
	require.NoError(t, err)

	payload, err := e.Query(context.Background(), f.ws, QueryRequest{Query: "q", Limit: 5})
	require.NoError(t, err)

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "detected_languages")
	assert.Contains(t, string(data), `"supported_languages":["english","german"]`)
}

func TestQuery_KeywordSkippedWithoutHybrid(t *testing.T) {
	f := newFixture()
	f.ws.HybridSearch = false
	e := f.engine(t)

	payload, err := e.Query(context.Background(), f.ws, QueryRequest{Query: "q", Limit: 10, FullResponse: true})
	require.NoError(t, err)

	assert.Zero(t, f.keyword.calls.Load())
	assert.NotNil(t, payload.KeywordSearchItems)
	assert.Empty(t, payload.KeywordSearchItems)
	assert.Equal(t, []string{"a", "b", "c"}, ids(payload.Items))
}

func TestQuery_PartialFailure(t *testing.T) {
	kwErr := amerrors.NetworkError("database unavailable", nil)

	t.Run("fail mode", func(t *testing.T) {
		f := newFixture()
		f.keyword.err = kwErr
		e := f.engine(t)

		_, err := e.Query(context.Background(), f.ws, QueryRequest{Query: "q", Limit: 5})

		assert.ErrorIs(t, err, kwErr)
	})

	t.Run("both fail joins errors", func(t *testing.T) {
		f := newFixture()
		vecErr := errors.New("vector down")
		f.vector.err = vecErr
		f.keyword.err = kwErr
		e := f.engine(t)

		_, err := e.Query(context.Background(), f.ws, QueryRequest{Query: "q", Limit: 5})

		assert.ErrorIs(t, err, vecErr)
		assert.ErrorIs(t, err, kwErr)
	})

	t.Run("degrade mode", func(t *testing.T) {
		f := newFixture()
		f.keyword.err = kwErr
		reg := prometheus.NewRegistry()
		m := metrics.New(reg)
		e := f.engine(t,
			WithConfig(EngineConfig{PartialFailure: PartialFailureDegrade}),
			WithMetrics(m))

		payload, err := e.Query(context.Background(), f.ws, QueryRequest{Query: "q", Limit: 5})
		require.NoError(t, err)

		assert.True(t, payload.Degraded)
		assert.Equal(t, []Source{SourceKeyword}, payload.DegradedSources)
		assert.Equal(t, []string{"a", "b", "c"}, ids(payload.Items))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.DegradedTotal.WithLabelValues("aurora", "keyword_search")))
	})

	t.Run("degrade never hides common errors", func(t *testing.T) {
		f := newFixture()
		f.keyword.err = amerrors.UnsupportedMetric("x")
		e := f.engine(t, WithConfig(EngineConfig{PartialFailure: PartialFailureDegrade}))

		_, err := e.Query(context.Background(), f.ws, QueryRequest{Query: "q", Limit: 5})

		assert.True(t, amerrors.IsCommon(err))
	})
}

func TestQuery_Timeout(t *testing.T) {
	f := newFixture()
	f.vector.block = true
	e := f.engine(t, WithConfig(EngineConfig{Timeout: 20 * time.Millisecond, PartialFailure: PartialFailureDegrade}))

	_, err := e.Query(context.Background(), f.ws, QueryRequest{Query: "q", Limit: 5})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestService_RoutesByEngine(t *testing.T) {
	f := newFixture()
	reg, err := workspace.NewRegistry(*f.ws, workspace.Workspace{
		ID: "os", Engine: workspace.EngineOpenSearch, EmbeddingsModelName: "m",
	})
	require.NoError(t, err)
	svc := NewService(reg, f.engine(t))

	payload, err := svc.Search(context.Background(), "ws-1", QueryRequest{Query: "q", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, payload.Items, 1)

	_, err = svc.Search(context.Background(), "os", QueryRequest{Query: "q", Limit: 1})
	assert.Equal(t, amerrors.ErrCodeUnsupportedEngine, amerrors.GetCode(err))

	_, err = svc.Search(context.Background(), "nope", QueryRequest{Query: "q"})
	assert.ErrorIs(t, err, amerrors.ErrWorkspaceNotFound)

	assert.Equal(t, []string{"aurora"}, svc.Engines())
}
