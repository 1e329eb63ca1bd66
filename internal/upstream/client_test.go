package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

func fastRetry() amerrors.RetryConfig {
	return amerrors.RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func TestPostJSON_SendsHeadersAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["q"]})
	}))
	defer srv.Close()

	c := New("test", time.Second, WithHeader("Authorization", "Bearer k"))
	var out map[string]string
	err := c.PostJSON(context.Background(), srv.URL, map[string]string{"q": "hi"}, &out)

	require.NoError(t, err)
	assert.Equal(t, "hi", out["echo"])
}

func TestPostJSON_RetriesServerErrors(t *testing.T) {
	// Given: a server failing once with 503
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	// When: posting
	c := New("test", time.Second, WithRetry(fastRetry()))
	err := c.PostJSON(context.Background(), srv.URL, struct{}{}, nil)

	// Then: the second attempt succeeds
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPostJSON_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New("test", time.Second, WithRetry(fastRetry()))
	err := c.PostJSON(context.Background(), srv.URL, struct{}{}, nil)

	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeUpstreamStatus, amerrors.GetCode(err))
	assert.Contains(t, err.Error(), "bad model")
	assert.Equal(t, int32(1), calls.Load())
}

func TestStatusError_CarriesUpstreamReason(t *testing.T) {
	err := StatusError("cross-encoder", 422, "  unknown model ms-marco\n")

	assert.Equal(t, "[ERR_303_UPSTREAM_STATUS] cross-encoder returned status 422: unknown model ms-marco", err.Error())
	assert.Equal(t, "[ERR_303_UPSTREAM_STATUS] x returned status 404", StatusError("x", 404, " ").Error())
}

func TestStatusError_Retryable(t *testing.T) {
	assert.True(t, amerrors.IsRetryable(StatusError("x", 429, "")))
	assert.True(t, amerrors.IsRetryable(StatusError("x", 502, "")))
	assert.False(t, amerrors.IsRetryable(StatusError("x", 404, "")))
}
