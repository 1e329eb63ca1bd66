package aurora

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/workspace"
)

var columns = []string{
	"chunk_id", "workspace_id", "document_id", "document_sub_id", "document_type",
	"document_sub_type", "path", "language", "title", "content", "content_complement",
	"metadata", "score",
}

func row(rows *pgxmock.Rows, id string, score float64) *pgxmock.Rows {
	return rows.AddRow(id, "ws-1", "doc-1", "", "text", "", "s3://bucket/doc.txt",
		"english", "Title", "content "+id, "", map[string]any{"page": float64(1)}, score)
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

var testWS = &workspace.Workspace{ID: "5c1a-0a7e", Engine: workspace.EngineAurora}

func TestTableName(t *testing.T) {
	assert.Equal(t, `"5c1a0a7e"`, TableName("5c1a-0a7e"))
	assert.Equal(t, `"we""ird"`, TableName(`we"ird`))
}

func TestVectorSearch_InnerOrderingPreserved(t *testing.T) {
	// Given: the database returns negated inner products ascending
	mock := newMock(t)
	rows := pgxmock.NewRows(columns)
	row(rows, "best", -0.9)
	row(rows, "mid", -0.3)
	row(rows, "worst", 0.1)
	mock.ExpectQuery(regexp.QuoteMeta(`content_embeddings <#> $1 AS inner_score`) + `(?s).*` +
		regexp.QuoteMeta(`FROM "5c1a0a7e"`) + `(?s).*` + regexp.QuoteMeta(`ORDER BY inner_score ASC`)).
		WithArgs(pgxmock.AnyArg(), search.VectorSearchBreadth).
		WillReturnRows(rows)

	// When: searching with the inner metric
	got, err := New(mock).VectorSearch(context.Background(), testWS, []float32{0.1, 0.2}, search.MetricInner, search.VectorSearchBreadth)
	require.NoError(t, err)

	// Then: order and raw scores are kept
	require.Len(t, got, 3)
	assert.Equal(t, "best", got[0].ChunkID)
	assert.Equal(t, -0.9, *got[0].VectorSearchScore)
	assert.Equal(t, 0.1, *got[2].VectorSearchScore)
	assert.Nil(t, got[0].KeywordSearchScore)
	assert.Equal(t, "s3://bucket/doc.txt", got[0].Path)
	assert.Equal(t, float64(1), got[0].Metadata["page"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVectorSearch_Operators(t *testing.T) {
	for metric, op := range map[search.Metric]string{
		search.MetricCosine: "<=>",
		search.MetricL2:     "<->",
	} {
		sql, err := vectorSQL(`"t"`, metric)
		require.NoError(t, err)
		assert.Contains(t, sql, "content_embeddings "+op+" $1")
		assert.Contains(t, sql, "ORDER BY "+string(metric)+"_score ASC")
	}
}

func TestVectorSearch_UnknownMetricNeverQueries(t *testing.T) {
	mock := newMock(t)

	_, err := New(mock).VectorSearch(context.Background(), testWS, []float32{1}, search.Metric("manhattan"), 25)

	require.ErrorIs(t, err, amerrors.ErrUnsupportedMetric)
	assert.True(t, amerrors.IsCommon(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKeywordSearch_UsesRegConfig(t *testing.T) {
	mock := newMock(t)
	rows := pgxmock.NewRows(columns)
	row(rows, "k1", 0.7)
	mock.ExpectQuery(regexp.QuoteMeta(`ts_rank_cd(to_tsvector($1::regconfig, content), plainto_tsquery($1::regconfig, $2))`)).
		WithArgs("german", "passwort zurücksetzen", 25).
		WillReturnRows(rows)

	got, err := New(mock).KeywordSearch(context.Background(), testWS, "passwort zurücksetzen", "German", 25)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0.7, *got[0].KeywordSearchScore)
	assert.Nil(t, got[0].VectorSearchScore)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKeywordSearch_QueryError(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("SELECT").WillReturnError(errors.New("relation does not exist"))

	_, err := New(mock).KeywordSearch(context.Background(), testWS, "q", "english", 25)

	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeSearchFailed, amerrors.GetCode(err))
	assert.Contains(t, err.Error(), "aurora keyword search")
}

func TestRegConfig(t *testing.T) {
	assert.Equal(t, "english", RegConfig("English"))
	assert.Equal(t, "simple", RegConfig("japanese"))
	assert.Equal(t, "simple", RegConfig(""))
}

func TestAdapters(t *testing.T) {
	a := New(newMock(t)).Adapters()

	assert.Equal(t, "aurora", a.Engine)
	assert.True(t, a.EchoDetectedLanguages)
	assert.NotNil(t, a.Keyword)
}
