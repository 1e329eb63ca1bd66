// Package search implements the hybrid query engine: vector and keyword
// retrieval, merge by chunk identity, cross-encoder re-ranking and the
// metric-aware fallback padding of the final result list.
package search

import (
	"context"

	"github.com/Aman-CERP/amanrag/internal/embed"
	"github.com/Aman-CERP/amanrag/internal/workspace"
)

// VectorSearchBreadth is the number of raw hits requested from each
// retrieval mode, independent of the caller's limit.
const VectorSearchBreadth = 25

// KeywordSearchBreadth matches the vector breadth.
const KeywordSearchBreadth = VectorSearchBreadth

// Source names a retrieval mode that produced a candidate.
type Source string

const (
	SourceKeyword Source = "keyword_search"
	SourceVector  Source = "vector_search"
)

// Chunk is the unit of retrieval. Chunks are read-only on the query path.
type Chunk struct {
	ChunkID           string         `json:"chunk_id"`
	WorkspaceID       string         `json:"workspace_id"`
	DocumentID        string         `json:"document_id"`
	DocumentSubID     string         `json:"document_sub_id"`
	DocumentType      string         `json:"document_type"`
	DocumentSubType   string         `json:"document_sub_type"`
	Path              string         `json:"path"`
	Language          string         `json:"language"`
	Title             string         `json:"title"`
	Content           string         `json:"content"`
	ContentComplement string         `json:"content_complement"`
	Metadata          map[string]any `json:"metadata"`
}

// Candidate is a chunk enriched with the retrieval fields of one query.
// Nil scores mean the mode never produced the chunk, or re-ranking did not run.
type Candidate struct {
	Chunk
	Sources            []Source `json:"sources"`
	VectorSearchScore  *float64 `json:"vector_search_score"`
	KeywordSearchScore *float64 `json:"keyword_search_score"`
	Score              *float64 `json:"score"`
}

// QueryRequest is one query against a workspace. Limit is trusted as given.
type QueryRequest struct {
	Query        string
	Limit        int
	FullResponse bool
	Threshold    float64
}

// Payload is the JSON result of a query.
type Payload struct {
	Engine             string       `json:"engine,omitempty"`
	Items              []*Candidate `json:"items"`
	VectorSearchItems  []*Candidate `json:"vector_search_items,omitzero"`
	KeywordSearchItems []*Candidate `json:"keyword_search_items,omitzero"`
	VectorSearchMetric string       `json:"vector_search_metric,omitempty"`
	QueryLanguage      string       `json:"query_language,omitempty"`
	SupportedLanguages []string     `json:"supported_languages,omitzero"`
	DetectedLanguages  []string     `json:"detected_languages,omitzero"`
	Degraded           bool         `json:"degraded,omitempty"`
	DegradedSources    []Source     `json:"degraded_sources,omitempty"`
}

// VectorSearcher runs nearest-neighbour retrieval for one engine.
type VectorSearcher interface {
	VectorSearch(ctx context.Context, ws *workspace.Workspace, embedding []float32, metric Metric, limit int) ([]*Candidate, error)
}

// KeywordSearcher runs full-text retrieval for one engine.
type KeywordSearcher interface {
	KeywordSearch(ctx context.Context, ws *workspace.Workspace, query, language string, limit int) ([]*Candidate, error)
}

// Adapters is the per-engine capability pair the orchestrator is built from.
type Adapters struct {
	Engine  string
	Vector  VectorSearcher
	Keyword KeywordSearcher

	// EchoDetectedLanguages adds every detected language to the payload.
	EchoDetectedLanguages bool
}

// EmbedderResolver resolves a workspace's embeddings model.
type EmbedderResolver interface {
	Resolve(provider, model string) (embed.Embedder, error)
}

// RankerResolver resolves a workspace's cross-encoder model.
type RankerResolver interface {
	Resolve(provider, model string) (Ranker, error)
}

// LanguageDetector picks the query language among the supported ones and
// reports every language it found signal for.
type LanguageDetector interface {
	Detect(text string, supported []string) (language string, detected []string)
}

func float64Ptr(v float64) *float64 { return &v }
