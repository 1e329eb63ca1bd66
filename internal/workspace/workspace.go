// Package workspace holds the workspace configuration records that drive
// each query: engine, embeddings and cross-encoder models, distance metric,
// hybrid search switch and supported languages.
package workspace

import (
	"fmt"
	"slices"
	"strings"
)

// Engine names.
const (
	EngineAurora     = "aurora"
	EngineOpenSearch = "opensearch"
	EngineLocal      = "local"
)

// DefaultLanguage is used when a workspace lists no languages.
const DefaultLanguage = "english"

// Workspace is a read-only workspace configuration record.
type Workspace struct {
	ID     string `yaml:"id" json:"workspace_id"`
	Name   string `yaml:"name,omitempty" json:"name,omitempty"`
	Engine string `yaml:"engine" json:"engine"`

	EmbeddingsModelProvider   string `yaml:"embeddings_model_provider" json:"embeddings_model_provider"`
	EmbeddingsModelName       string `yaml:"embeddings_model_name" json:"embeddings_model_name"`
	EmbeddingsModelDimensions int    `yaml:"embeddings_model_dimensions,omitempty" json:"embeddings_model_dimensions,omitempty"`

	// An empty cross-encoder model name disables re-ranking.
	CrossEncoderModelProvider string `yaml:"cross_encoder_model_provider,omitempty" json:"cross_encoder_model_provider,omitempty"`
	CrossEncoderModelName     string `yaml:"cross_encoder_model_name,omitempty" json:"cross_encoder_model_name,omitempty"`

	Metric       string   `yaml:"metric" json:"metric"`
	HybridSearch bool     `yaml:"hybrid_search" json:"hybrid_search"`
	Languages    []string `yaml:"languages,omitempty" json:"languages"`
}

// Reranks reports whether the workspace configures a cross-encoder.
func (w *Workspace) Reranks() bool {
	return w.CrossEncoderModelName != ""
}

// SupportedLanguages returns the workspace languages, lowercased, or the
// default language when none are configured.
func (w *Workspace) SupportedLanguages() []string {
	if len(w.Languages) == 0 {
		return []string{DefaultLanguage}
	}
	out := make([]string, 0, len(w.Languages))
	for _, l := range w.Languages {
		l = strings.ToLower(strings.TrimSpace(l))
		if l != "" && !slices.Contains(out, l) {
			out = append(out, l)
		}
	}
	if len(out) == 0 {
		return []string{DefaultLanguage}
	}
	return out
}

// Clone returns a deep copy.
func (w *Workspace) Clone() *Workspace {
	c := *w
	c.Languages = slices.Clone(w.Languages)
	return &c
}

// Validate checks structural fields only. Metric and model names are
// resolved per query and fail there with a common error.
func (w *Workspace) Validate() error {
	if strings.TrimSpace(w.ID) == "" {
		return fmt.Errorf("workspace id is required")
	}
	switch w.Engine {
	case EngineAurora, EngineOpenSearch, EngineLocal:
	default:
		return fmt.Errorf("workspace %s: engine must be one of aurora, opensearch, local (got %q)", w.ID, w.Engine)
	}
	if w.EmbeddingsModelName == "" {
		return fmt.Errorf("workspace %s: embeddings_model_name is required", w.ID)
	}
	if w.CrossEncoderModelProvider != "" && w.CrossEncoderModelName == "" {
		return fmt.Errorf("workspace %s: cross_encoder_model_provider set without cross_encoder_model_name", w.ID)
	}
	return nil
}
