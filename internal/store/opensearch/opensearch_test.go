package opensearch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/workspace"
)

const hitsJSON = `{"hits":{"hits":[
 {"_id":"c1","_score":0.93,"_source":{"chunk_id":"c1","workspace_id":"Ws-1","title":"Reset","content":"reset your password","metadata":{"page":2}}},
 {"_id":"c2","_score":0.71,"_source":{"workspace_id":"Ws-1","content":"password policy"}}
]}}`

var testWS = &workspace.Workspace{ID: "Ws-1", Engine: workspace.EngineOpenSearch}

func newStore(t *testing.T, handler http.HandlerFunc) *Store {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	s, err := New(context.Background(), Config{Endpoint: srv.URL, Username: "admin", Password: "pw"})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestIndexNameAndContentField(t *testing.T) {
	assert.Equal(t, "ws1", IndexName("Ws-1"))
	assert.Equal(t, "content.german", ContentField("German"))
	assert.Equal(t, "content", ContentField("klingon"))
}

func TestVectorSearch_KNNQuery(t *testing.T) {
	// Given: a cluster answering two hits
	var body map[string]any
	s := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws1/_search", r.URL.Path)
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "admin", user)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(hitsJSON))
	})

	// When: searching
	got, err := s.VectorSearch(context.Background(), testWS, []float32{0.5, 0.25}, search.MetricCosine, 25)
	require.NoError(t, err)

	// Then: knn on content_embeddings, scores carried raw
	knn := body["query"].(map[string]any)["knn"].(map[string]any)["content_embeddings"].(map[string]any)
	assert.Equal(t, float64(25), knn["k"])
	assert.Equal(t, float64(25), body["size"])
	require.Len(t, got, 2)
	assert.Equal(t, "c1", got[0].ChunkID)
	assert.InDelta(t, 0.93, *got[0].VectorSearchScore, 1e-6)
	assert.Equal(t, "c2", got[1].ChunkID, "falls back to _id")
	assert.Equal(t, float64(2), got[0].Metadata["page"])
}

func TestVectorSearch_UnknownMetricNeverCalls(t *testing.T) {
	var calls atomic.Int32
	s := newStore(t, func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })

	_, err := s.VectorSearch(context.Background(), testWS, []float32{1}, search.Metric("manhattan"), 25)

	assert.ErrorIs(t, err, amerrors.ErrUnsupportedMetric)
	assert.Zero(t, calls.Load())
}

func TestKeywordSearch_MatchOnLanguageField(t *testing.T) {
	var body map[string]any
	s := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(hitsJSON))
	})

	got, err := s.KeywordSearch(context.Background(), testWS, "passwort", "german", 25)
	require.NoError(t, err)

	match := body["query"].(map[string]any)["match"].(map[string]any)
	assert.Contains(t, match, "content.german")
	require.Len(t, got, 2)
	assert.InDelta(t, 0.71, *got[1].KeywordSearchScore, 1e-6)
	assert.Nil(t, got[1].VectorSearchScore)
}

func TestSearch_IndexMissing(t *testing.T) {
	s := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"type":"index_not_found_exception"}}`, http.StatusNotFound)
	})

	_, err := s.KeywordSearch(context.Background(), testWS, "q", "english", 25)

	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeSearchFailed, amerrors.GetCode(err))
	assert.Contains(t, err.Error(), "opensearch query")
	var ae *amerrors.AmanError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "404", ae.Details["status"])
}

func TestSearch_RetriesUnavailableCluster(t *testing.T) {
	// Given: a cluster that answers 503 once, then the hits
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(hitsJSON))
	}))
	t.Cleanup(srv.Close)
	s, err := New(context.Background(), Config{Endpoint: srv.URL, MaxRetries: 2})
	require.NoError(t, err)

	// When: searching
	got, err := s.KeywordSearch(context.Background(), testWS, "q", "english", 25)

	// Then: the client retried and returned the hits
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSearch_ClusterDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	endpoint := srv.URL
	srv.Close()
	s, err := New(context.Background(), Config{Endpoint: endpoint})
	require.NoError(t, err)

	_, err = s.KeywordSearch(context.Background(), testWS, "q", "english", 25)

	require.Error(t, err)
	assert.Equal(t, amerrors.CategoryNetwork, amerrors.GetCategory(err))
}

func TestNew_SignsRequestsWithSigV4(t *testing.T) {
	// Given: static AWS credentials and a region
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIDEXAMPLE")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	t.Setenv("AWS_SESSION_TOKEN", "")
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_CONFIG_FILE", "/nonexistent/aws/config")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/nonexistent/aws/credentials")
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(hitsJSON))
	}))
	t.Cleanup(srv.Close)
	s, err := New(context.Background(), Config{
		Endpoint: srv.URL, Username: "ignored", Password: "ignored",
		AWSRegion: "eu-west-1", AWSService: "aoss",
	})
	require.NoError(t, err)

	// When: querying
	_, err = s.KeywordSearch(context.Background(), testWS, "q", "english", 25)

	// Then: the request carries a SigV4 signature scoped to the service
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(auth, "AWS4-HMAC-SHA256"), auth)
	assert.Contains(t, auth, "/eu-west-1/aoss/aws4_request")
}

func TestNew_RequiresEndpoint(t *testing.T) {
	_, err := New(context.Background(), Config{})

	assert.Equal(t, amerrors.CategoryConfig, amerrors.GetCategory(err))
}

func TestPing(t *testing.T) {
	s := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"version":{"number":"2.13.0"}}`))
	})

	assert.NoError(t, s.Ping(context.Background()))
}

func TestPing_Unauthorized(t *testing.T) {
	s := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	err := s.Ping(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "opensearch ping")
}
