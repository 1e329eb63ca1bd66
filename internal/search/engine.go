package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanrag/internal/embed"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/metrics"
	"github.com/Aman-CERP/amanrag/internal/workspace"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Partial failure modes.
const (
	// PartialFailureFail fails the query when either retrieval mode fails.
	PartialFailureFail = "fail"
	// PartialFailureDegrade answers from the surviving mode and flags the payload.
	PartialFailureDegrade = "degrade"
)

// EngineConfig tunes the orchestrator.
type EngineConfig struct {
	// Timeout bounds one query. Zero disables it.
	Timeout time.Duration

	// PartialFailure is PartialFailureFail or PartialFailureDegrade.
	PartialFailure string
}

// DefaultEngineConfig returns the default orchestrator settings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Timeout:        30 * time.Second,
		PartialFailure: PartialFailureFail,
	}
}

// Engine is the query orchestrator for one engine's adapter pair.
type Engine struct {
	adapters  Adapters
	embedders EmbedderResolver
	rankers   RankerResolver
	detector  LanguageDetector
	config    EngineConfig
	metrics   *metrics.Metrics
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithConfig replaces the default orchestrator settings.
func WithConfig(cfg EngineConfig) EngineOption {
	return func(e *Engine) {
		e.config = cfg
	}
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates an orchestrator. A nil keyword adapter disables hybrid
// search for the engine.
func NewEngine(adapters Adapters, embedders EmbedderResolver, rankers RankerResolver, detector LanguageDetector, opts ...EngineOption) (*Engine, error) {
	if adapters.Vector == nil {
		return nil, errors.Join(ErrNilDependency, errors.New("vector adapter is required"))
	}
	if embedders == nil {
		return nil, errors.Join(ErrNilDependency, errors.New("embedder resolver is required"))
	}
	if rankers == nil {
		return nil, errors.Join(ErrNilDependency, errors.New("ranker resolver is required"))
	}
	if detector == nil {
		return nil, errors.Join(ErrNilDependency, errors.New("language detector is required"))
	}

	e := &Engine{
		adapters:  adapters,
		embedders: embedders,
		rankers:   rankers,
		detector:  detector,
		config:    DefaultEngineConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Name returns the engine name echoed in payloads.
func (e *Engine) Name() string {
	return e.adapters.Engine
}

// plan holds everything resolved before any I/O.
type plan struct {
	query    string
	metric   Metric
	embedder embed.Embedder
	ranker   Ranker
	language string
	detected []string
	hybrid   bool
}

// Query runs one query against ws.
func (e *Engine) Query(ctx context.Context, ws *workspace.Workspace, req QueryRequest) (payload *Payload, err error) {
	start := time.Now()
	defer func() {
		items := 0
		if payload != nil {
			items = len(payload.Items)
		}
		e.metrics.ObserveQuery(e.adapters.Engine, start, err, items)
	}()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return &Payload{Items: []*Candidate{}}, nil
	}

	p, err := e.prepare(ws, query)
	if err != nil {
		return nil, err
	}

	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	vector, keyword, failed, err := e.retrieve(ctx, ws, p)
	if err != nil {
		slog.Warn("query_failed",
			slog.String("engine", e.adapters.Engine),
			slog.String("workspace_id", ws.ID),
			slog.String("error", err.Error()))
		return nil, err
	}

	merged := Merge(vector, keyword)
	if e.metrics != nil {
		e.metrics.CandidatesMerged.WithLabelValues(e.adapters.Engine).Observe(float64(len(merged)))
	}

	if p.ranker != nil {
		rerankStart := time.Now()
		if err := Rerank(ctx, p.ranker, p.query, merged, vector, keyword); err != nil {
			return nil, err
		}
		e.metrics.ObserveStage(e.adapters.Engine, metrics.StageRerank, rerankStart)
	}

	payload = &Payload{
		Engine:             e.adapters.Engine,
		QueryLanguage:      p.language,
		SupportedLanguages: ws.SupportedLanguages(),
	}
	if e.adapters.EchoDetectedLanguages {
		payload.DetectedLanguages = p.detected
	}
	if len(failed) > 0 {
		payload.Degraded = true
		payload.DegradedSources = failed
	}

	if req.FullResponse {
		payload.Items = merged[:max(0, min(req.Limit, len(merged)))]
		payload.VectorSearchItems = nonNil(vector)
		payload.KeywordSearchItems = nonNil(keyword)
		payload.VectorSearchMetric = string(p.metric)
	} else {
		payload.Items = Pad(merged, p.metric, req.Limit, req.Threshold, p.ranker != nil)
		e.countPadded(payload.Items, req.Threshold, p.ranker != nil)
	}

	slog.Debug("query_complete",
		slog.String("engine", e.adapters.Engine),
		slog.String("workspace_id", ws.ID),
		slog.String("language", p.language),
		slog.Int("vector_hits", len(vector)),
		slog.Int("keyword_hits", len(keyword)),
		slog.Int("merged", len(merged)),
		slog.Int("items", len(payload.Items)),
		slog.Bool("reranked", p.ranker != nil),
		slog.Duration("duration", time.Since(start)))

	return payload, nil
}

// prepare validates the workspace configuration and resolves models and
// language. Configuration mistakes surface here as common errors before
// any adapter is called.
func (e *Engine) prepare(ws *workspace.Workspace, query string) (*plan, error) {
	metric, err := ParseMetric(ws.Metric)
	if err != nil {
		return nil, err
	}
	embedder, err := e.embedders.Resolve(ws.EmbeddingsModelProvider, ws.EmbeddingsModelName)
	if err != nil {
		return nil, err
	}

	p := &plan{
		query:    query,
		metric:   metric,
		embedder: embedder,
		hybrid:   ws.HybridSearch && e.adapters.Keyword != nil,
	}
	if ws.Reranks() {
		p.ranker, err = e.rankers.Resolve(ws.CrossEncoderModelProvider, ws.CrossEncoderModelName)
		if err != nil {
			return nil, err
		}
	}
	p.language, p.detected = e.detector.Detect(query, ws.SupportedLanguages())
	return p, nil
}

// retrieve runs the vector and keyword modes concurrently. Each branch keeps
// its own error; the group never cancels the sibling.
func (e *Engine) retrieve(ctx context.Context, ws *workspace.Workspace, p *plan) (vector, keyword []*Candidate, failed []Source, err error) {
	var g errgroup.Group
	var vecErr, kwErr error

	g.Go(func() error {
		embedStart := time.Now()
		embedding, err := p.embedder.Embed(ctx, p.query)
		if err != nil {
			vecErr = err
			return nil
		}
		e.metrics.ObserveStage(e.adapters.Engine, metrics.StageEmbed, embedStart)

		searchStart := time.Now()
		vector, vecErr = e.adapters.Vector.VectorSearch(ctx, ws, embedding, p.metric, VectorSearchBreadth)
		e.metrics.ObserveStage(e.adapters.Engine, metrics.StageVector, searchStart)
		return nil
	})

	if p.hybrid {
		g.Go(func() error {
			searchStart := time.Now()
			keyword, kwErr = e.adapters.Keyword.KeywordSearch(ctx, ws, p.query, p.language, KeywordSearchBreadth)
			e.metrics.ObserveStage(e.adapters.Engine, metrics.StageKeyword, searchStart)
			return nil
		})
	}

	_ = g.Wait()

	switch {
	case vecErr == nil && kwErr == nil:
		return vector, keyword, nil, nil
	case vecErr != nil && kwErr != nil:
		return nil, nil, nil, errors.Join(vecErr, kwErr)
	}

	single, source := vecErr, SourceVector
	if kwErr != nil {
		single, source = kwErr, SourceKeyword
	}
	if e.config.PartialFailure != PartialFailureDegrade || amerrors.IsCommon(single) || ctx.Err() != nil {
		return nil, nil, nil, single
	}

	slog.Warn("retrieval_degraded",
		slog.String("engine", e.adapters.Engine),
		slog.String("workspace_id", ws.ID),
		slog.String("failed_source", string(source)),
		slog.String("error", single.Error()))
	if e.metrics != nil {
		e.metrics.DegradedTotal.WithLabelValues(e.adapters.Engine, string(source)).Inc()
	}
	if source == SourceVector {
		vector = nil
	} else {
		keyword = nil
	}
	return vector, keyword, []Source{source}, nil
}

func (e *Engine) countPadded(items []*Candidate, threshold float64, reranked bool) {
	if e.metrics == nil || !reranked {
		return
	}
	padded := 0
	for _, c := range items {
		if c.Score == nil || *c.Score <= threshold {
			padded++
		}
	}
	if padded > 0 {
		e.metrics.PaddedItemsTotal.WithLabelValues(e.adapters.Engine).Add(float64(padded))
	}
}

func nonNil(list []*Candidate) []*Candidate {
	if list == nil {
		return []*Candidate{}
	}
	return list
}
