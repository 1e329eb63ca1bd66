package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/api"
	"github.com/Aman-CERP/amanrag/internal/output"
)

func newWorkspacesCmd(root *rootOptions) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "workspaces",
		Short: "List configured workspaces",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), root, logStderr)
			if err != nil {
				return err
			}
			defer a.Close()

			list := a.service.Workspaces()
			w := output.New(cmd.OutOrStdout(), root.noColor)
			if jsonOut {
				return w.JSON(api.WorkspaceList{Workspaces: list, Count: len(list)})
			}
			w.Workspaces(list)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the list as JSON")
	return cmd
}
