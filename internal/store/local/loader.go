package local

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/Aman-CERP/amanrag/internal/embed"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/workspace"
)

// Load stages reported to a Progress callback.
const (
	StageRead   = "read"
	StageEmbed  = "embed"
	StageWrite  = "write"
	StageIndex  = "index"
	StageGraph  = "graph"
	maxLineSize = 16 * 1024 * 1024
)

// Record is one line of a chunk file: a chunk plus an optional precomputed
// embedding.
type Record struct {
	search.Chunk
	Embedding []float32 `json:"content_embeddings,omitempty"`
}

// Progress receives load progress. total is zero when unknown.
type Progress func(stage string, done, total int)

// LoadStats summarises one Load.
type LoadStats struct {
	Chunks   int
	Embedded int
	Total    int
	Duration time.Duration
}

// ReadRecords parses a JSONL chunk file. Blank lines are skipped; chunks
// without a workspace id are assigned to workspaceID.
func ReadRecords(r io.Reader, workspaceID string) ([]Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		records []Record
		line    int
	)
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, amerrors.ValidationError(fmt.Sprintf("line %d: invalid chunk", line), err)
		}
		if rec.ChunkID == "" {
			return nil, amerrors.ValidationError(fmt.Sprintf("line %d: chunk_id is required", line), nil)
		}
		if strings.TrimSpace(rec.Content) == "" {
			return nil, amerrors.ValidationError(fmt.Sprintf("line %d: content is required", line), nil)
		}
		if rec.WorkspaceID == "" {
			rec.WorkspaceID = workspaceID
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, amerrors.ValidationError("read chunk file", err)
	}
	return records, nil
}

// Load writes records into the workspace's data directory under an exclusive
// lock. Records without an embedding are embedded with embedder first. The
// catalogue is upserted, the keyword index updated, and the vector graph
// rebuilt over every stored chunk.
func (s *Store) Load(ctx context.Context, ws *workspace.Workspace, records []Record, embedder embed.Embedder, progress Progress) (LoadStats, error) {
	start := time.Now()
	if progress == nil {
		progress = func(string, int, int) {}
	}
	metric := search.Metric(strings.ToLower(ws.Metric))
	if _, err := distanceFor(metric); err != nil {
		return LoadStats{}, err
	}

	dir := s.WorkspaceDir(ws.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return LoadStats{}, amerrors.New(amerrors.ErrCodeIndexFailed, "create data directory", err)
	}
	lock := flock.New(filepath.Join(dir, lockFile))
	if _, err := lock.TryLockContext(ctx, lockRetryDelay); err != nil {
		return LoadStats{}, amerrors.New(amerrors.ErrCodeIndexFailed, "lock data directory", err)
	}
	defer func() { _ = lock.Unlock() }()

	s.Invalidate(ws.ID)
	progress(StageRead, len(records), len(records))

	embedded, err := embedMissing(ctx, records, embedder, progress)
	if err != nil {
		return LoadStats{}, err
	}
	dims, err := checkDimensions(records, ws.EmbeddingsModelDimensions)
	if err != nil {
		return LoadStats{}, err
	}

	cat, err := openCatalog(filepath.Join(dir, catalogFile))
	if err != nil {
		return LoadStats{}, amerrors.New(amerrors.ErrCodeIndexFailed, "open catalogue", err)
	}
	defer cat.close()

	if stored, _ := cat.meta(ctx, metaDimensions); stored != "" && dims > 0 {
		if n, _ := strconv.Atoi(stored); n > 0 && n != dims {
			return LoadStats{}, amerrors.New(amerrors.ErrCodeIndexFailed, "embedding dimension differs from stored chunks", nil).
				WithDetail("stored", stored).
				WithDetail("got", strconv.Itoa(dims)).
				WithSuggestion("Remove " + dir + " and load again")
		}
	}

	progress(StageWrite, 0, len(records))
	if err := cat.upsert(ctx, records, metric, dims); err != nil {
		return LoadStats{}, amerrors.New(amerrors.ErrCodeIndexFailed, "write catalogue", err)
	}
	progress(StageWrite, len(records), len(records))

	progress(StageIndex, 0, len(records))
	if err := writeKeywordIndex(ctx, filepath.Join(dir, keywordDir), records, ws.SupportedLanguages()); err != nil {
		return LoadStats{}, amerrors.New(amerrors.ErrCodeIndexFailed, "write keyword index", err)
	}
	progress(StageIndex, len(records), len(records))

	total, err := cat.count(ctx)
	if err != nil {
		return LoadStats{}, amerrors.New(amerrors.ErrCodeIndexFailed, "count chunks", err)
	}
	gPath := filepath.Join(dir, graphFile)
	if graphMetric(metric) {
		vecs, err := cat.vectors(ctx)
		if err != nil {
			return LoadStats{}, amerrors.New(amerrors.ErrCodeIndexFailed, "read vectors", err)
		}
		progress(StageGraph, 0, len(vecs))
		if err := writeGraph(gPath, metric, vecs); err != nil {
			return LoadStats{}, amerrors.New(amerrors.ErrCodeIndexFailed, "write vector graph", err)
		}
		progress(StageGraph, len(vecs), len(vecs))
	} else if err := os.Remove(gPath); err != nil && !os.IsNotExist(err) {
		return LoadStats{}, amerrors.New(amerrors.ErrCodeIndexFailed, "remove stale vector graph", err)
	}

	stats := LoadStats{
		Chunks:   len(records),
		Embedded: embedded,
		Total:    total,
		Duration: time.Since(start),
	}
	slog.Info("local_load_complete",
		slog.String("workspace_id", ws.ID),
		slog.Int("chunks", stats.Chunks),
		slog.Int("embedded", stats.Embedded),
		slog.Int("total", stats.Total),
		slog.Duration("duration", stats.Duration))
	return stats, nil
}

// embedMissing fills in embeddings for records that lack one, in batches.
func embedMissing(ctx context.Context, records []Record, embedder embed.Embedder, progress Progress) (int, error) {
	var missing []int
	for i := range records {
		if len(records[i].Embedding) == 0 {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}
	if embedder == nil {
		return 0, amerrors.ValidationError(
			fmt.Sprintf("%d chunks have no embedding and no embeddings model is available", len(missing)), nil)
	}

	progress(StageEmbed, 0, len(missing))
	for startIdx := 0; startIdx < len(missing); startIdx += embed.DefaultBatchSize {
		end := min(startIdx+embed.DefaultBatchSize, len(missing))
		batch := missing[startIdx:end]
		texts := make([]string, len(batch))
		for j, i := range batch {
			texts[j] = records[i].Content
		}
		vecs, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, err
		}
		if len(vecs) != len(batch) {
			return 0, amerrors.New(amerrors.ErrCodeEmbeddingFailed, "embedding count mismatch", nil)
		}
		for j, i := range batch {
			records[i].Embedding = vecs[j]
		}
		progress(StageEmbed, end, len(missing))
	}
	return len(missing), nil
}

// checkDimensions verifies every record shares one dimension, matching want
// when want is set.
func checkDimensions(records []Record, want int) (int, error) {
	dims := want
	for _, r := range records {
		if dims == 0 {
			dims = len(r.Embedding)
		}
		if len(r.Embedding) != dims {
			return 0, amerrors.ValidationError("embedding dimension mismatch", nil).
				WithDetail("chunk_id", r.ChunkID).
				WithDetail("expected", strconv.Itoa(dims)).
				WithDetail("got", strconv.Itoa(len(r.Embedding)))
		}
	}
	return dims, nil
}
