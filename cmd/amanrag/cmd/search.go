package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/api"
	"github.com/Aman-CERP/amanrag/internal/output"
	"github.com/Aman-CERP/amanrag/internal/search"
)

func newSearchCmd(root *rootOptions) *cobra.Command {
	var (
		limit     int
		threshold float64
		full      bool
		jsonOut   bool
	)

	cmd := &cobra.Command{
		Use:   "search <workspace> <query>",
		Short: "Query a workspace",
		Long: `Run one hybrid query against a workspace and print the ranked chunks.

Examples:
  amanrag search docs "how do I reset my password"
  amanrag search docs "refund policy" --limit 10 --threshold 0.2
  amanrag search docs "refund policy" --full --json`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, root, logStderr)
			if err != nil {
				return err
			}
			defer a.Close()

			var limitPtr *int
			if cmd.Flags().Changed("limit") {
				limitPtr = &limit
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = a.cfg.Search.DefaultThreshold
			}
			req := search.QueryRequest{
				Query:        strings.Join(args[1:], " "),
				Limit:        api.ClampLimit(limitPtr, a.cfg.Search.DefaultLimit, a.cfg.Search.MaxLimit),
				FullResponse: full,
				Threshold:    threshold,
			}

			payload, err := a.service.Search(ctx, args[0], req)
			if err != nil {
				return err
			}

			w := output.New(cmd.OutOrStdout(), root.noColor)
			if jsonOut {
				return w.JSON(payload)
			}
			w.Payload(payload)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", api.DefaultLimit, "Maximum number of results")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Minimum re-ranking score to keep a result")
	cmd.Flags().BoolVar(&full, "full", false, "Include the vector and keyword result lists")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the payload as JSON")
	return cmd
}
