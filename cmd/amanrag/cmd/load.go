package cmd

import (
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/embed"
	"github.com/Aman-CERP/amanrag/internal/store/local"
	"github.com/Aman-CERP/amanrag/internal/ui"
	"github.com/Aman-CERP/amanrag/internal/workspace"
)

func newLoadCmd(root *rootOptions) *cobra.Command {
	var (
		workspaceID string
		file        string
		plain       bool
	)

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load chunks into a local workspace",
		Long: `Load a JSONL file of chunks into a workspace served by the local engine.

Each line is one chunk with at least chunk_id and content. Chunks without
content_embeddings are embedded with the workspace's embeddings model.
Existing chunks with the same chunk_id are replaced.

Examples:
  amanrag load --workspace docs --file chunks.jsonl
  cat chunks.jsonl | amanrag load --workspace docs --file -`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, root, logStderr)
			if err != nil {
				return err
			}
			defer a.Close()

			ws, err := a.workspaces.Get(workspaceID)
			if err != nil {
				return err
			}
			if ws.Engine != workspace.EngineLocal {
				return amerrors.ValidationError("workspace "+ws.ID+" is served by "+ws.Engine+", not local", nil).
					WithSuggestion("Load aurora and opensearch workspaces with their own ingestion tooling")
			}

			in, closeIn, err := openInput(cmd, file)
			if err != nil {
				return err
			}
			records, err := local.ReadRecords(in, ws.ID)
			closeIn()
			if err != nil {
				return err
			}

			var embedder embed.Embedder
			if slices.ContainsFunc(records, func(r local.Record) bool { return len(r.Embedding) == 0 }) {
				embedder, err = a.embedders.Resolve(ws.EmbeddingsModelProvider, ws.EmbeddingsModelName)
				if err != nil {
					return err
				}
			}

			renderer := ui.NewRenderer(ui.Config{
				Output:     cmd.ErrOrStderr(),
				ForcePlain: plain,
				NoColor:    root.noColor,
				Title:      ws.ID,
			})
			if err := renderer.Start(ctx); err != nil {
				return err
			}
			defer func() { _ = renderer.Stop() }()

			stats, err := a.local.Load(ctx, ws, records, embedder, func(stage string, done, total int) {
				renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.ParseStage(stage), Current: done, Total: total})
			})
			if err != nil {
				return err
			}
			renderer.Complete(ui.CompletionStats{
				WorkspaceID: ws.ID,
				Chunks:      stats.Chunks,
				Embedded:    stats.Embedded,
				Total:       stats.Total,
				Duration:    stats.Duration,
			})
			return nil
		},
	}

	cmd.Flags().StringVarP(&workspaceID, "workspace", "w", "", "Workspace id (required)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSONL chunk file, or - for stdin (required)")
	cmd.Flags().BoolVar(&plain, "plain", false, "Plain progress output")
	_ = cmd.MarkFlagRequired("workspace")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, amerrors.New(amerrors.ErrCodeFileNotFound, "cannot open chunk file", err).
			WithDetail("path", path)
	}
	return f, func() { _ = f.Close() }, nil
}
