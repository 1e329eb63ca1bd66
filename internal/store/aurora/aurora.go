// Package aurora is the PostgreSQL + pgvector engine. Each workspace is one
// table holding chunks, their embeddings and a full-text searchable content
// column.
package aurora

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/workspace"
)

// EngineName is the workspace engine value served by this package.
const EngineName = workspace.EngineAurora

// Querier is the subset of a pgx pool the adapter needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PoolConfig holds tunable parameters for the PostgreSQL connection pool.
type PoolConfig struct {
	DSN               string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// NewPool creates a pgx pool with pgvector types registered on every
// connection and verifies it with a ping.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, amerrors.ConfigError("parse aurora dsn", err)
	}
	if cfg.MaxConns > 0 {
		config.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		config.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		config.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		config.HealthCheckPeriod = cfg.HealthCheckPeriod
	}
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, amerrors.NetworkError("create aurora pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, amerrors.NetworkError("ping aurora", err)
	}
	return pool, nil
}

// Store runs vector and keyword queries against workspace tables.
type Store struct {
	db Querier
}

var (
	_ search.VectorSearcher  = (*Store)(nil)
	_ search.KeywordSearcher = (*Store)(nil)
)

// New creates a store over db.
func New(db Querier) *Store {
	return &Store{db: db}
}

// Adapters returns the engine's capability pair. Aurora echoes every
// detected language.
func (s *Store) Adapters() search.Adapters {
	return search.Adapters{
		Engine:                EngineName,
		Vector:                s,
		Keyword:               s,
		EchoDetectedLanguages: true,
	}
}

// TableName maps a workspace id to its quoted table identifier.
func TableName(workspaceID string) string {
	return pgx.Identifier{strings.ReplaceAll(workspaceID, "-", "")}.Sanitize()
}

const chunkColumns = `chunk_id, workspace_id,
	COALESCE(document_id, '') AS document_id,
	COALESCE(document_sub_id, '') AS document_sub_id,
	COALESCE(document_type, '') AS document_type,
	COALESCE(document_sub_type, '') AS document_sub_type,
	COALESCE(path, '') AS path,
	COALESCE(language, '') AS language,
	COALESCE(title, '') AS title,
	content,
	COALESCE(content_complement, '') AS content_complement,
	COALESCE(metadata, '{}'::jsonb) AS metadata`

var distanceOperators = map[search.Metric]string{
	search.MetricCosine: "<=>",
	search.MetricL2:     "<->",
	search.MetricInner:  "<#>",
}

// vectorSQL builds the nearest-neighbour query for metric. Ordering is
// ascending on the raw operator value for every metric.
func vectorSQL(table string, metric search.Metric) (string, error) {
	op, ok := distanceOperators[metric]
	if !ok {
		return "", amerrors.UnsupportedMetric(string(metric))
	}
	return fmt.Sprintf(`SELECT %s, content_embeddings %s $1 AS %s_score
FROM %s
ORDER BY %s_score ASC
LIMIT $2`, chunkColumns, op, metric, table, metric), nil
}

func keywordSQL(table string) string {
	return fmt.Sprintf(`SELECT %s, ts_rank_cd(to_tsvector($1::regconfig, content), plainto_tsquery($1::regconfig, $2))::float8 AS keyword_score
FROM %s
WHERE to_tsvector($1::regconfig, content) @@ plainto_tsquery($1::regconfig, $2)
ORDER BY keyword_score DESC
LIMIT $3`, chunkColumns, table)
}

// VectorSearch returns the limit nearest chunks. An unsupported metric fails
// before the database is touched.
func (s *Store) VectorSearch(ctx context.Context, ws *workspace.Workspace, embedding []float32, metric search.Metric, limit int) ([]*search.Candidate, error) {
	sql, err := vectorSQL(TableName(ws.ID), metric)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, sql, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, queryError("vector search", ws.ID, err)
	}
	return scanCandidates(rows, func(c *search.Candidate, score float64) {
		c.VectorSearchScore = &score
	})
}

// KeywordSearch ranks chunks with ts_rank_cd under the language's text
// search configuration.
func (s *Store) KeywordSearch(ctx context.Context, ws *workspace.Workspace, query, language string, limit int) ([]*search.Candidate, error) {
	rows, err := s.db.Query(ctx, keywordSQL(TableName(ws.ID)), RegConfig(language), query, limit)
	if err != nil {
		return nil, queryError("keyword search", ws.ID, err)
	}
	return scanCandidates(rows, func(c *search.Candidate, score float64) {
		c.KeywordSearchScore = &score
	})
}

func scanCandidates(rows pgx.Rows, setScore func(*search.Candidate, float64)) ([]*search.Candidate, error) {
	defer rows.Close()

	var out []*search.Candidate
	for rows.Next() {
		c := &search.Candidate{}
		var score float64
		if err := rows.Scan(
			&c.ChunkID, &c.WorkspaceID, &c.DocumentID, &c.DocumentSubID,
			&c.DocumentType, &c.DocumentSubType, &c.Path, &c.Language,
			&c.Title, &c.Content, &c.ContentComplement, &c.Metadata, &score,
		); err != nil {
			return nil, amerrors.New(amerrors.ErrCodeSearchFailed, "scan aurora row", err)
		}
		setScore(c, score)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, amerrors.New(amerrors.ErrCodeSearchFailed, "read aurora rows", err)
	}
	return out, nil
}

func queryError(op, workspaceID string, err error) error {
	return amerrors.New(amerrors.ErrCodeSearchFailed, "aurora "+op, err).
		WithDetail("workspace_id", workspaceID)
}
