package local

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	_ "modernc.org/sqlite" // pure Go driver, registers "sqlite"

	"github.com/Aman-CERP/amanrag/internal/search"
)

const catalogSchema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	chunk_id           TEXT NOT NULL UNIQUE,
	workspace_id       TEXT NOT NULL,
	document_id        TEXT NOT NULL DEFAULT '',
	document_sub_id    TEXT NOT NULL DEFAULT '',
	document_type      TEXT NOT NULL DEFAULT '',
	document_sub_type  TEXT NOT NULL DEFAULT '',
	path               TEXT NOT NULL DEFAULT '',
	language           TEXT NOT NULL DEFAULT '',
	title              TEXT NOT NULL DEFAULT '',
	content            TEXT NOT NULL,
	content_complement TEXT NOT NULL DEFAULT '',
	metadata           TEXT NOT NULL DEFAULT '{}',
	embedding          BLOB NOT NULL
);
`

const (
	metaMetric     = "metric"
	metaDimensions = "dimensions"
)

const chunkSelect = `SELECT id, chunk_id, workspace_id, document_id, document_sub_id,
	document_type, document_sub_type, path, language, title, content,
	content_complement, metadata FROM chunks`

// catalog is the SQLite table of chunks and their embeddings. Row ids double
// as vector graph keys.
type catalog struct {
	db *sql.DB
}

func openCatalog(path string) (*catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalogue: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}
	if _, err := db.Exec(catalogSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize catalogue schema: %w", err)
	}
	return &catalog{db: db}, nil
}

func (c *catalog) close() error {
	return c.db.Close()
}

func (c *catalog) meta(ctx context.Context, key string) (string, error) {
	var value string
	err := c.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (c *catalog) setMeta(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// upsert writes records in one transaction, keeping existing row ids.
func (c *catalog) upsert(ctx context.Context, records []Record, metric search.Metric, dims int) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks (
		chunk_id, workspace_id, document_id, document_sub_id, document_type,
		document_sub_type, path, language, title, content, content_complement,
		metadata, embedding
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(chunk_id) DO UPDATE SET
		workspace_id = excluded.workspace_id,
		document_id = excluded.document_id,
		document_sub_id = excluded.document_sub_id,
		document_type = excluded.document_type,
		document_sub_type = excluded.document_sub_type,
		path = excluded.path,
		language = excluded.language,
		title = excluded.title,
		content = excluded.content,
		content_complement = excluded.content_complement,
		metadata = excluded.metadata,
		embedding = excluded.embedding`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		meta := []byte("{}")
		if len(r.Metadata) > 0 {
			if meta, err = json.Marshal(r.Metadata); err != nil {
				return fmt.Errorf("encode metadata of %s: %w", r.ChunkID, err)
			}
		}
		if _, err := stmt.ExecContext(ctx,
			r.ChunkID, r.WorkspaceID, r.DocumentID, r.DocumentSubID, r.DocumentType,
			r.DocumentSubType, r.Path, r.Language, r.Title, r.Content, r.ContentComplement,
			string(meta), encodeVector(r.Embedding),
		); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", r.ChunkID, err)
		}
	}

	if err := c.setMeta(ctx, tx, metaMetric, string(metric)); err != nil {
		return fmt.Errorf("write metric: %w", err)
	}
	if err := c.setMeta(ctx, tx, metaDimensions, fmt.Sprint(dims)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	return tx.Commit()
}

// keyedVector is one stored embedding.
type keyedVector struct {
	key    uint64
	vector []float32
}

func (c *catalog) vectors(ctx context.Context) ([]keyedVector, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, embedding FROM chunks ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []keyedVector
	for rows.Next() {
		var (
			id   int64
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		out = append(out, keyedVector{key: uint64(id), vector: decodeVector(blob)})
	}
	return out, rows.Err()
}

func (c *catalog) count(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

func (c *catalog) byKeys(ctx context.Context, keys []uint64) (map[uint64]search.Chunk, error) {
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = int64(k)
	}
	byID := make(map[uint64]search.Chunk, len(keys))
	err := c.selectIn(ctx, "id", args, func(id int64, chunk search.Chunk) {
		byID[uint64(id)] = chunk
	})
	return byID, err
}

func (c *catalog) byChunkIDs(ctx context.Context, ids []string) (map[string]search.Chunk, error) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	byID := make(map[string]search.Chunk, len(ids))
	err := c.selectIn(ctx, "chunk_id", args, func(_ int64, chunk search.Chunk) {
		byID[chunk.ChunkID] = chunk
	})
	return byID, err
}

func (c *catalog) selectIn(ctx context.Context, column string, args []any, fn func(int64, search.Chunk)) error {
	if len(args) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")
	query := fmt.Sprintf("%s WHERE %s IN (%s)", chunkSelect, column, placeholders)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    int64
			chunk search.Chunk
			meta  string
		)
		if err := rows.Scan(&id, &chunk.ChunkID, &chunk.WorkspaceID, &chunk.DocumentID,
			&chunk.DocumentSubID, &chunk.DocumentType, &chunk.DocumentSubType, &chunk.Path,
			&chunk.Language, &chunk.Title, &chunk.Content, &chunk.ContentComplement, &meta,
		); err != nil {
			return err
		}
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &chunk.Metadata); err != nil {
				return fmt.Errorf("decode metadata of %s: %w", chunk.ChunkID, err)
			}
		}
		fn(id, chunk)
	}
	return rows.Err()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v
}
