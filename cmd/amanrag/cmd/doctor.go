package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/output"
	"github.com/Aman-CERP/amanrag/internal/preflight"
)

func newDoctorCmd(root *rootOptions) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check engines and workspaces",
		Long: `Check that every configured engine answers and every workspace's
metric, embeddings model and cross-encoder resolve. Exits non-zero when a
required check fails.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, root, logStderr)
			if err != nil {
				return err
			}
			defer a.Close()

			pingers := make(map[string]preflight.Pinger, len(a.checks))
			for name, p := range a.checks {
				pingers[name] = p
			}
			checker := preflight.New(
				preflight.WithDataDir(a.cfg.Local.DataDir),
				preflight.WithPingers(pingers),
				preflight.WithEmbedders(a.embedders),
				preflight.WithRankers(a.rankers),
			)
			results := checker.Run(ctx, a.workspaces.List())

			w := output.New(cmd.OutOrStdout(), root.noColor)
			if jsonOut {
				if err := w.JSON(map[string]any{"status": preflight.SummaryStatus(results), "checks": results}); err != nil {
					return err
				}
			} else {
				for _, r := range results {
					switch r.Status {
					case preflight.StatusPass:
						w.Successf("%s: %s", r.Name, r.Message)
					case preflight.StatusWarn:
						w.Warningf("%s: %s", r.Name, r.Message)
					default:
						w.Errorf("%s: %s", r.Name, r.Message)
					}
				}
				w.Newline()
				w.Status("", "Status: "+preflight.SummaryStatus(results))
			}

			if preflight.HasCriticalFailures(results) {
				return fmt.Errorf("preflight checks failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the results as JSON")
	return cmd
}
