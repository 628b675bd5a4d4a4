package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/lattice/internal/config"
	"github.com/lazypower/lattice/internal/hooks"
)

const hookTimeout = 10 * time.Second

// Hooks must never break the agent host: failures go to stderr and the
// process exits 0.
var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Handle agent host hook events",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		path := configPath
		if path == "" {
			path, _ = config.DefaultPath()
		}
		loaded, err := config.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "lattice hook: %v (using defaults)\n", err)
			loaded = config.Default()
		}
		if subjectID != "" {
			loaded.Server.Subject = subjectID
		}
		cfg = loaded
	},
}

var hookEndCmd = &cobra.Command{
	Use:   "end",
	Short: "Handle SessionEnd hook",
	Run: func(cmd *cobra.Command, args []string) {
		client := hooks.NewClient("http://" + cfg.ListenAddr())
		ctx, cancel := context.WithTimeout(cmd.Context(), hookTimeout)
		defer cancel()
		if err := hooks.Handle(ctx, "end", cmd.InOrStdin(), client, cfg.Server.Subject); err != nil {
			fmt.Fprintf(os.Stderr, "lattice hook: %v\n", err)
		}
	},
}

func init() {
	hookCmd.AddCommand(hookEndCmd)
}
