package embed

import (
	"strings"
	"sync"
	"time"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// Provider names accepted in workspace configuration.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderStatic = "static"
)

// RegistryConfig holds provider endpoints and shared settings.
type RegistryConfig struct {
	OllamaHost       string
	OpenAIBaseURL    string
	OpenAIAPIKey     string
	Timeout          time.Duration
	CacheSize        int
	StaticDimensions int
}

// Registry resolves (provider, model) pairs to cached embedders. Each pair
// is built once and reused.
type Registry struct {
	cfg RegistryConfig

	mu        sync.Mutex
	embedders map[string]Embedder
}

// NewRegistry creates a registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	return &Registry{cfg: cfg, embedders: make(map[string]Embedder)}
}

// Resolve returns the embedder for a workspace's embeddings model. Unknown
// providers, a missing model name and an OpenAI provider without an API key
// all resolve to the common "Embeddings model not found" error.
func (r *Registry) Resolve(provider, model string) (Embedder, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" || strings.TrimSpace(model) == "" {
		return nil, amerrors.EmbeddingsModelNotFound(provider, model)
	}

	key := provider + "/" + model
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.embedders[key]; ok {
		return e, nil
	}

	var inner Embedder
	switch provider {
	case ProviderOllama:
		inner = NewOllamaEmbedder(OllamaConfig{Host: r.cfg.OllamaHost, Model: model, Timeout: r.cfg.Timeout})
	case ProviderOpenAI:
		if r.cfg.OpenAIAPIKey == "" {
			return nil, amerrors.EmbeddingsModelNotFound(provider, model).
				WithSuggestion("Set OPENAI_API_KEY or embeddings.openai_api_key")
		}
		inner = NewOpenAIEmbedder(OpenAIConfig{
			BaseURL: r.cfg.OpenAIBaseURL,
			APIKey:  r.cfg.OpenAIAPIKey,
			Model:   model,
			Timeout: r.cfg.Timeout,
		})
	case ProviderStatic:
		inner = NewStaticEmbedder(model, r.cfg.StaticDimensions)
	default:
		return nil, amerrors.EmbeddingsModelNotFound(provider, model)
	}

	e := NewCachedEmbedder(inner, r.cfg.CacheSize)
	r.embedders[key] = e
	return e, nil
}

// Close closes every embedder built so far.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, e := range r.embedders {
		_ = e.Close()
		delete(r.embedders, key)
	}
	return nil
}
