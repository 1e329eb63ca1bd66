package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Aman-CERP/amanrag/internal/embed"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/upstream"
)

// Cross-encoder provider names accepted in workspace configuration.
const (
	RankerProviderHTTP   = "http"
	RankerProviderStatic = "static"
)

// DefaultRerankTimeout bounds a single rerank request.
const DefaultRerankTimeout = 10 * time.Second

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"results"`
}

// HTTPRanker calls a rerank service at POST {endpoint}/v1/rerank. Calls go
// through a circuit breaker shared by every model on the same endpoint.
type HTTPRanker struct {
	client   *upstream.Client
	breaker  *amerrors.CircuitBreaker
	endpoint string
	model    string
}

var _ Ranker = (*HTTPRanker)(nil)

// Rank scores passages in input order.
func (r *HTTPRanker) Rank(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return []float64{}, nil
	}
	return amerrors.Execute(r.breaker, func() ([]float64, error) {
		var resp rerankResponse
		req := rerankRequest{Query: query, Documents: passages, Model: r.model}
		if err := r.client.PostJSON(ctx, r.endpoint+"/v1/rerank", req, &resp); err != nil {
			return nil, err
		}
		if len(resp.Results) != len(passages) {
			return nil, fmt.Errorf("rerank returned %d results for %d passages", len(resp.Results), len(passages))
		}
		scores := make([]float64, len(passages))
		seen := make([]bool, len(passages))
		for _, res := range resp.Results {
			if res.Index < 0 || res.Index >= len(passages) || seen[res.Index] {
				return nil, fmt.Errorf("rerank returned invalid index %d", res.Index)
			}
			seen[res.Index] = true
			scores[res.Index] = res.Score
		}
		return scores, nil
	})
}

// StaticRanker scores passages by the share of query terms they contain.
// It needs no model and is used offline and in tests.
type StaticRanker struct{}

var _ Ranker = StaticRanker{}

// Rank returns a score in [0, 1] per passage.
func (StaticRanker) Rank(_ context.Context, query string, passages []string) ([]float64, error) {
	terms := make(map[string]bool)
	for _, t := range embed.Tokenize(query) {
		terms[t] = true
	}
	scores := make([]float64, len(passages))
	if len(terms) == 0 {
		return scores, nil
	}
	for i, p := range passages {
		found := make(map[string]bool)
		for _, t := range embed.Tokenize(p) {
			if terms[t] {
				found[t] = true
			}
		}
		scores[i] = float64(len(found)) / float64(len(terms))
	}
	return scores, nil
}

// RankerConfig configures the cross-encoder registry.
type RankerConfig struct {
	Endpoint     string
	APIKey       string
	Timeout      time.Duration
	MaxFailures  int
	ResetTimeout time.Duration
}

// RankerRegistry resolves (provider, model) pairs to rankers.
type RankerRegistry struct {
	cfg     RankerConfig
	client  *upstream.Client
	breaker *amerrors.CircuitBreaker

	mu      sync.Mutex
	rankers map[string]Ranker
}

var _ RankerResolver = (*RankerRegistry)(nil)

// NewRankerRegistry creates a registry. The HTTP provider is only available
// when an endpoint is configured.
func NewRankerRegistry(cfg RankerConfig) *RankerRegistry {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRerankTimeout
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &RankerRegistry{
		cfg: cfg,
		client: upstream.New("cross-encoder", cfg.Timeout,
			upstream.WithHeader("Authorization", bearer(cfg.APIKey))),
		breaker: amerrors.NewCircuitBreaker("cross-encoder",
			amerrors.WithMaxFailures(cfg.MaxFailures),
			amerrors.WithResetTimeout(cfg.ResetTimeout)),
		rankers: make(map[string]Ranker),
	}
}

func bearer(key string) string {
	if key == "" {
		return ""
	}
	return "Bearer " + key
}

// Resolve returns the ranker for a workspace's cross-encoder model, or the
// common "Cross encoder model not found" error.
func (r *RankerRegistry) Resolve(provider, model string) (Ranker, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if strings.TrimSpace(model) == "" {
		return nil, amerrors.CrossEncoderModelNotFound(provider, model)
	}

	key := provider + "/" + model
	r.mu.Lock()
	defer r.mu.Unlock()
	if rk, ok := r.rankers[key]; ok {
		return rk, nil
	}

	var rk Ranker
	switch provider {
	case RankerProviderHTTP:
		if r.cfg.Endpoint == "" {
			return nil, amerrors.CrossEncoderModelNotFound(provider, model).
				WithSuggestion("Set cross_encoder.endpoint or AMANRAG_CROSS_ENCODER_ENDPOINT")
		}
		rk = &HTTPRanker{client: r.client, breaker: r.breaker, endpoint: r.cfg.Endpoint, model: model}
	case RankerProviderStatic:
		rk = StaticRanker{}
	default:
		return nil, amerrors.CrossEncoderModelNotFound(provider, model)
	}
	r.rankers[key] = rk
	return rk, nil
}

// Close releases idle connections.
func (r *RankerRegistry) Close() {
	r.client.Close()
}
