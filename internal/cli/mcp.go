package cli

import (
	"github.com/spf13/cobra"

	"github.com/lazypower/lattice/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the memory operations as MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		subj, err := subject(cfg)
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		return mcpserver.New(a.dispatcher, subj, VersionString()).ServeStdio()
	},
}
