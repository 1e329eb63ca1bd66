// Package cmd provides the CLI commands for amanrag.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/profiling"
	"github.com/Aman-CERP/amanrag/internal/ui"
	"github.com/Aman-CERP/amanrag/pkg/version"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	dir      string
	logLevel string
	noColor  bool
	profile  profiling.Config
	profiler *profiling.Profiler
}

// NewRootCmd creates the root command for the amanrag CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "amanrag",
		Short: "Hybrid semantic search and re-ranking over workspace chunks",
		Long: `amanrag answers natural-language queries against workspaces of
document chunks. Each workspace runs on one engine (aurora, opensearch or
local) and combines vector and keyword retrieval, optional cross-encoder
re-ranking and query language detection.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if !opts.profile.Enabled() {
				return nil
			}
			p, err := profiling.Start(opts.profile)
			if err != nil {
				return err
			}
			opts.profiler = p
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if opts.profiler == nil {
				return nil
			}
			err := opts.profiler.Stop()
			opts.profiler = nil
			return err
		},
	}
	cmd.SetVersionTemplate("amanrag version {{.Version}}\n")

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.dir, "dir", ".", "Directory holding .amanrag.yaml and .env")
	flags.StringVar(&opts.logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	flags.BoolVar(&opts.noColor, "no-color", ui.DetectNoColor(), "Disable colored output")
	flags.StringVar(&opts.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	flags.StringVar(&opts.profile.Heap, "profile-mem", "", "Write heap profile to file")
	flags.StringVar(&opts.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newLoadCmd(opts))
	cmd.AddCommand(newWorkspacesCmd(opts))
	cmd.AddCommand(newDoctorCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		_, _ = fmt.Fprint(os.Stderr, amerrors.FormatForCLI(err))
		return err
	}
	return nil
}
