package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/pkg/version"
)

const testWorkspaces = `
workspaces:
  - id: faq
    engine: local
    embeddings_model_provider: static
    embeddings_model_name: static-64
    metric: cosine
    hybrid_search: true
  - id: tickets
    engine: aurora
    embeddings_model_provider: static
    embeddings_model_name: static-64
    metric: l2
`

const testChunks = `{"chunk_id":"c1","document_id":"d1","title":"Password reset","content":"To reset your password open settings and choose reset password."}
{"chunk_id":"c2","document_id":"d1","title":"Refunds","content":"Refunds are issued within fourteen days of purchase."}

{"chunk_id":"c3","document_id":"d2","title":"Shipping","content":"Orders ship from the central warehouse every weekday."}
`

// setupProject writes a config directory with a local data dir.
func setupProject(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("AMANRAG_AURORA_DSN", "")
	t.Setenv("AMANRAG_OPENSEARCH_ENDPOINT", "")

	dir := t.TempDir()
	cfg := "workspaces_file: workspaces.yaml\n" +
		"logging:\n  level: error\n" +
		"embeddings:\n  static_dimensions: 64\n" +
		"local:\n  data_dir: " + filepath.Join(dir, "data") + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".amanrag.yaml"), []byte(cfg), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "workspaces.yaml"), []byte(testWorkspaces), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chunks.jsonl"), []byte(testChunks), 0o644))
	return dir
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, _, err := run(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version.Version+"\n", out)

	out, _, err = run(t, "version", "--json")
	require.NoError(t, err)
	var info version.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Version, info.Version)
}

func TestWorkspacesCmd_JSON(t *testing.T) {
	// Given: a project with two workspaces
	dir := setupProject(t)

	// When: listing them as JSON
	out, _, err := run(t, "workspaces", "--json", "--dir", dir)

	// Then: both are returned in file order
	require.NoError(t, err)
	var list struct {
		Workspaces []struct {
			ID string `json:"workspace_id"`
		} `json:"workspaces"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, "faq", list.Workspaces[0].ID)
	assert.Equal(t, "tickets", list.Workspaces[1].ID)
}

func TestLoadThenSearch(t *testing.T) {
	// Given: chunks loaded into the local workspace
	dir := setupProject(t)
	_, progress, err := run(t, "load", "--dir", dir, "--workspace", "faq", "--file", filepath.Join(dir, "chunks.jsonl"), "--plain")
	require.NoError(t, err)
	assert.Contains(t, progress, "Complete: 3 chunks loaded (3 embedded)")
	assert.Contains(t, progress, "3 in workspace faq")

	// When: searching for the password chunk
	out, _, err := run(t, "search", "--dir", dir, "--json", "--full", "--limit", "2", "faq", "reset", "password")

	// Then: the payload is limited and carries the keyword hit
	require.NoError(t, err)
	var payload search.Payload
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Len(t, payload.Items, 2)
	assert.Equal(t, "english", payload.QueryLanguage)
	assert.Equal(t, "cosine", payload.VectorSearchMetric)
	require.NotEmpty(t, payload.KeywordSearchItems)
	assert.Equal(t, "c1", payload.KeywordSearchItems[0].ChunkID)
}

func TestSearch_HumanOutput(t *testing.T) {
	dir := setupProject(t)
	_, _, err := run(t, "load", "--dir", dir, "-w", "faq", "-f", filepath.Join(dir, "chunks.jsonl"), "--plain")
	require.NoError(t, err)

	out, _, err := run(t, "search", "--dir", dir, "--no-color", "faq", "refund policy")

	require.NoError(t, err)
	assert.Contains(t, out, "results • language english")
	assert.True(t, strings.Contains(out, "Refunds") || strings.Contains(out, "c2"))
}

func TestSearch_UnknownWorkspace(t *testing.T) {
	dir := setupProject(t)

	_, _, err := run(t, "search", "--dir", dir, "missing", "anything")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestSearch_RequiresQuery(t *testing.T) {
	_, _, err := run(t, "search", "faq")

	assert.Error(t, err)
}

func TestLoad_RejectsNonLocalWorkspace(t *testing.T) {
	dir := setupProject(t)

	_, _, err := run(t, "load", "--dir", dir, "--workspace", "tickets", "--file", filepath.Join(dir, "chunks.jsonl"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not local")
}

func TestLoad_MissingFile(t *testing.T) {
	dir := setupProject(t)

	_, _, err := run(t, "load", "--dir", dir, "--workspace", "faq", "--file", filepath.Join(dir, "nope.jsonl"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot open chunk file")
}

func TestLoad_Stdin(t *testing.T) {
	dir := setupProject(t)
	var stderr bytes.Buffer
	root := NewRootCmd()
	root.SetIn(strings.NewReader(testChunks))
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&stderr)
	root.SetArgs([]string{"load", "--dir", dir, "-w", "faq", "-f", "-", "--plain"})

	require.NoError(t, root.Execute())
	assert.Contains(t, stderr.String(), "Complete: 3 chunks loaded")
}

func TestDoctorCmd_ReportsUnconfiguredEngine(t *testing.T) {
	// Given: a project whose tickets workspace needs aurora, which has no DSN
	dir := setupProject(t)

	// When: running the checks
	out, _, err := run(t, "doctor", "--dir", dir, "--no-color")

	// Then: the local workspace passes and the aurora one fails the run
	require.Error(t, err)
	assert.Contains(t, out, "✓ engine_local: reachable")
	assert.Contains(t, out, "✓ workspace_faq_metric: cosine")
	assert.Contains(t, out, "✗ workspace_tickets_engine: engine aurora is not configured")
	assert.Contains(t, out, "Status: failed")
}
