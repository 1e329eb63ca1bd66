// Package local is the embedded engine. Each workspace lives in its own data
// directory holding a SQLite chunk catalogue, a bleve keyword index and an
// HNSW vector graph, written by Load and read-only while serving queries.
package local

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/coder/hnsw"
	"github.com/gofrs/flock"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/workspace"
)

// EngineName is the workspace engine value served by this package.
const EngineName = workspace.EngineLocal

const (
	catalogFile = "chunks.db"
	keywordDir  = "bm25.bleve"
	graphFile   = "vectors.hnsw"
	lockFile    = ".lock"

	lockRetryDelay = 50 * time.Millisecond
)

// Config configures the local engine.
type Config struct {
	DataDir string
}

// Store serves every local workspace under one data directory. Workspace
// indices are opened on first use and cached until Invalidate or Close.
type Store struct {
	dataDir string

	mu   sync.Mutex
	open map[string]*wsIndex
}

var (
	_ search.VectorSearcher  = (*Store)(nil)
	_ search.KeywordSearcher = (*Store)(nil)
)

// New creates a store rooted at cfg.DataDir.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return nil, amerrors.ConfigError("local data directory is required", nil)
	}
	return &Store{dataDir: cfg.DataDir, open: make(map[string]*wsIndex)}, nil
}

// Adapters returns the engine's capability pair.
func (s *Store) Adapters() search.Adapters {
	return search.Adapters{
		Engine:  EngineName,
		Vector:  s,
		Keyword: s,
	}
}

// WorkspaceDir is the data directory of one workspace.
func (s *Store) WorkspaceDir(workspaceID string) string {
	return filepath.Join(s.dataDir, strings.ReplaceAll(workspaceID, "-", ""))
}

// wsIndex is one opened workspace.
type wsIndex struct {
	catalog *catalog
	keyword bleve.Index
	graph   *hnsw.Graph[uint64]
	metric  search.Metric
	dims    int

	vecOnce sync.Once
	vecs    []keyedVector
	vecErr  error
}

func (w *wsIndex) close() error {
	var firstErr error
	if w.keyword != nil {
		firstErr = w.keyword.Close()
	}
	if err := w.catalog.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (w *wsIndex) allVectors(ctx context.Context) ([]keyedVector, error) {
	w.vecOnce.Do(func() {
		w.vecs, w.vecErr = w.catalog.vectors(ctx)
	})
	return w.vecs, w.vecErr
}

func (s *Store) index(ctx context.Context, workspaceID string) (*wsIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.open[workspaceID]; ok {
		return idx, nil
	}
	idx, err := s.openIndex(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	s.open[workspaceID] = idx
	return idx, nil
}

// openIndex opens a workspace under a shared lock so a concurrent Load never
// hands out half-written files.
func (s *Store) openIndex(ctx context.Context, workspaceID string) (*wsIndex, error) {
	dir := s.WorkspaceDir(workspaceID)
	if !exists(filepath.Join(dir, catalogFile)) {
		return nil, amerrors.New(amerrors.ErrCodeSearchFailed, "local workspace is not loaded", nil).
			WithDetail("workspace_id", workspaceID).
			WithSuggestion("Run 'amanrag load --workspace " + workspaceID + "' first")
	}

	lock := flock.New(filepath.Join(dir, lockFile))
	if _, err := lock.TryRLockContext(ctx, lockRetryDelay); err != nil {
		return nil, openError(workspaceID, "lock data directory", err)
	}
	defer func() { _ = lock.Unlock() }()

	cat, err := openCatalog(filepath.Join(dir, catalogFile))
	if err != nil {
		return nil, openError(workspaceID, "open catalogue", err)
	}
	idx := &wsIndex{catalog: cat}

	metric, err := cat.meta(ctx, metaMetric)
	if err != nil {
		_ = idx.close()
		return nil, openError(workspaceID, "read catalogue metadata", err)
	}
	idx.metric = search.Metric(metric)
	dims, _ := cat.meta(ctx, metaDimensions)
	idx.dims, _ = strconv.Atoi(dims)

	if kwPath := filepath.Join(dir, keywordDir); exists(kwPath) {
		if idx.keyword, err = openKeywordIndex(kwPath); err != nil {
			_ = idx.close()
			return nil, openError(workspaceID, "open keyword index", err)
		}
	}

	if gPath := filepath.Join(dir, graphFile); graphMetric(idx.metric) && exists(gPath) {
		if idx.graph, err = readGraph(gPath); err != nil {
			// The catalogue still answers exactly.
			slog.Warn("local_graph_unreadable",
				slog.String("workspace_id", workspaceID),
				slog.String("error", err.Error()))
			idx.graph = nil
		}
	}

	slog.Debug("local_workspace_opened",
		slog.String("workspace_id", workspaceID),
		slog.String("metric", metric),
		slog.Bool("graph", idx.graph != nil))
	return idx, nil
}

// VectorSearch returns the limit nearest chunks with raw distances,
// ascending. The graph answers when it was built for metric; any other
// metric is scanned exactly.
func (s *Store) VectorSearch(ctx context.Context, ws *workspace.Workspace, embedding []float32, metric search.Metric, limit int) ([]*search.Candidate, error) {
	dist, err := distanceFor(metric)
	if err != nil {
		return nil, err
	}
	idx, err := s.index(ctx, ws.ID)
	if err != nil {
		return nil, err
	}
	if idx.dims > 0 && len(embedding) != idx.dims {
		return nil, amerrors.New(amerrors.ErrCodeSearchFailed, "query embedding dimension mismatch", nil).
			WithDetail("expected", strconv.Itoa(idx.dims)).
			WithDetail("got", strconv.Itoa(len(embedding)))
	}

	var hits []vectorHit
	if idx.graph != nil && idx.metric == metric {
		hits = searchGraph(idx.graph, dist, embedding, limit)
	} else {
		vecs, err := idx.allVectors(ctx)
		if err != nil {
			return nil, queryError("vector search", ws.ID, err)
		}
		hits = scanVectors(vecs, dist, embedding, limit)
	}

	keys := make([]uint64, len(hits))
	for i, h := range hits {
		keys[i] = h.key
	}
	chunks, err := idx.catalog.byKeys(ctx, keys)
	if err != nil {
		return nil, queryError("vector search", ws.ID, err)
	}

	out := make([]*search.Candidate, 0, len(hits))
	for _, h := range hits {
		chunk, ok := chunks[h.key]
		if !ok {
			continue
		}
		score := h.distance
		out = append(out, &search.Candidate{Chunk: chunk, VectorSearchScore: &score})
	}
	return out, nil
}

// KeywordSearch runs a match query on the language's analyzed field.
func (s *Store) KeywordSearch(ctx context.Context, ws *workspace.Workspace, query, language string, limit int) ([]*search.Candidate, error) {
	idx, err := s.index(ctx, ws.ID)
	if err != nil {
		return nil, err
	}
	if idx.keyword == nil {
		return []*search.Candidate{}, nil
	}

	hits, err := searchKeyword(ctx, idx.keyword, query, ContentField(language, ws.SupportedLanguages()), limit)
	if err != nil {
		return nil, queryError("keyword search", ws.ID, err)
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.chunkID
	}
	chunks, err := idx.catalog.byChunkIDs(ctx, ids)
	if err != nil {
		return nil, queryError("keyword search", ws.ID, err)
	}

	out := make([]*search.Candidate, 0, len(hits))
	for _, h := range hits {
		chunk, ok := chunks[h.chunkID]
		if !ok {
			continue
		}
		score := h.score
		out = append(out, &search.Candidate{Chunk: chunk, KeywordSearchScore: &score})
	}
	return out, nil
}

// Invalidate closes a cached workspace so the next query reopens it.
func (s *Store) Invalidate(workspaceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.open[workspaceID]; ok {
		if err := idx.close(); err != nil {
			slog.Warn("local_workspace_close_failed",
				slog.String("workspace_id", workspaceID),
				slog.String("error", err.Error()))
		}
		delete(s.open, workspaceID)
	}
}

// Ping checks that the data directory is reachable.
func (s *Store) Ping(context.Context) error {
	info, err := os.Stat(s.dataDir)
	if err != nil {
		return amerrors.New(amerrors.ErrCodeSearchFailed, "local data directory unavailable", err)
	}
	if !info.IsDir() {
		return amerrors.New(amerrors.ErrCodeSearchFailed, "local data path is not a directory", nil).
			WithDetail("path", s.dataDir)
	}
	return nil
}

// Close closes every opened workspace.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for id, idx := range s.open {
		if err := idx.close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.open, id)
	}
	return firstErr
}

func openError(workspaceID, op string, err error) error {
	return amerrors.New(amerrors.ErrCodeSearchFailed, fmt.Sprintf("local %s", op), err).
		WithDetail("workspace_id", workspaceID)
}

func queryError(op, workspaceID string, err error) error {
	return amerrors.New(amerrors.ErrCodeSearchFailed, "local "+op, err).
		WithDetail("workspace_id", workspaceID)
}
