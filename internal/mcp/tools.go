package mcp

import "github.com/Aman-CERP/amanrag/internal/search"

// SemanticSearchInput defines the input schema for the semantic_search tool.
type SemanticSearchInput struct {
	WorkspaceID  string   `json:"workspace_id" jsonschema:"id of the workspace to search"`
	Query        string   `json:"query" jsonschema:"the natural language query"`
	Limit        *int     `json:"limit,omitempty" jsonschema:"maximum number of items, 1 to 100, default 5"`
	Threshold    *float64 `json:"threshold,omitempty" jsonschema:"minimum cross-encoder score for an item to be kept before padding"`
	FullResponse bool     `json:"full_response,omitempty" jsonschema:"return the merged list unfiltered plus the raw vector and keyword lists"`
}

// ResultItem is one retrieved chunk.
type ResultItem struct {
	ChunkID            string         `json:"chunk_id"`
	DocumentID         string         `json:"document_id,omitempty"`
	Path               string         `json:"path,omitempty"`
	Title              string         `json:"title,omitempty"`
	Language           string         `json:"language,omitempty"`
	Content            string         `json:"content"`
	Sources            []string       `json:"sources"`
	Score              *float64       `json:"score,omitempty" jsonschema:"cross-encoder relevance, absent when re-ranking did not run"`
	VectorSearchScore  *float64       `json:"vector_search_score,omitempty" jsonschema:"raw vector search value in the workspace metric"`
	KeywordSearchScore *float64       `json:"keyword_search_score,omitempty" jsonschema:"raw keyword search score"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// SemanticSearchOutput defines the output schema for the semantic_search tool.
type SemanticSearchOutput struct {
	Engine             string       `json:"engine,omitempty"`
	Items              []ResultItem `json:"items"`
	VectorSearchItems  []ResultItem `json:"vector_search_items,omitempty"`
	KeywordSearchItems []ResultItem `json:"keyword_search_items,omitempty"`
	VectorSearchMetric string       `json:"vector_search_metric,omitempty"`
	QueryLanguage      string       `json:"query_language,omitempty"`
	SupportedLanguages []string     `json:"supported_languages,omitempty"`
	DetectedLanguages  []string     `json:"detected_languages,omitempty"`
	Degraded           bool         `json:"degraded,omitempty"`
	DegradedSources    []string     `json:"degraded_sources,omitempty"`
}

// ListWorkspacesInput defines the input schema for the list_workspaces tool.
type ListWorkspacesInput struct{}

// WorkspaceInfo summarises one workspace.
type WorkspaceInfo struct {
	WorkspaceID  string   `json:"workspace_id"`
	Name         string   `json:"name,omitempty"`
	Engine       string   `json:"engine"`
	Metric       string   `json:"metric"`
	HybridSearch bool     `json:"hybrid_search"`
	Reranks      bool     `json:"reranks"`
	Languages    []string `json:"languages"`
}

// ListWorkspacesOutput defines the output schema for the list_workspaces tool.
type ListWorkspacesOutput struct {
	Workspaces []WorkspaceInfo `json:"workspaces"`
}

// ToSearchOutput converts a payload to the tool output.
func ToSearchOutput(p *search.Payload) SemanticSearchOutput {
	out := SemanticSearchOutput{
		Engine:             p.Engine,
		Items:              toItems(p.Items),
		VectorSearchMetric: p.VectorSearchMetric,
		QueryLanguage:      p.QueryLanguage,
		SupportedLanguages: p.SupportedLanguages,
		DetectedLanguages:  p.DetectedLanguages,
		Degraded:           p.Degraded,
	}
	for _, src := range p.DegradedSources {
		out.DegradedSources = append(out.DegradedSources, string(src))
	}
	if p.VectorSearchItems != nil {
		out.VectorSearchItems = toItems(p.VectorSearchItems)
	}
	if p.KeywordSearchItems != nil {
		out.KeywordSearchItems = toItems(p.KeywordSearchItems)
	}
	return out
}

func toItems(cands []*search.Candidate) []ResultItem {
	items := make([]ResultItem, 0, len(cands))
	for _, c := range cands {
		sources := make([]string, len(c.Sources))
		for i, s := range c.Sources {
			sources[i] = string(s)
		}
		items = append(items, ResultItem{
			ChunkID:            c.ChunkID,
			DocumentID:         c.DocumentID,
			Path:               c.Path,
			Title:              c.Title,
			Language:           c.Language,
			Content:            c.Content,
			Sources:            sources,
			Score:              c.Score,
			VectorSearchScore:  c.VectorSearchScore,
			KeywordSearchScore: c.KeywordSearchScore,
			Metadata:           c.Metadata,
		})
	}
	return items
}
