package cli

import (
	"github.com/spf13/cobra"

	"github.com/lazypower/lattice/internal/config"
	"github.com/lazypower/lattice/internal/logging"
)

var (
	configPath string
	subjectID  string
	cfg        config.Config
)

var rootCmd = &cobra.Command{
	Use:   "lattice",
	Short: "Per-subject semantic memory graph",
	Long: "Lattice keeps a semantic memory graph per subject: memories with gravity and depth,\n" +
		"typed relations, an append-only ledger, and ranked recall. Single Go binary.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			var err error
			if path, err = config.DefaultPath(); err != nil {
				return err
			}
		}
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		if subjectID != "" {
			loaded.Server.Subject = subjectID
		}
		cfg = loaded
		logging.Setup(cfg.Log)
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.lattice/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&subjectID, "subject", "s", "", "subject id (default from config)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(opCmd)
	rootCmd.AddCommand(recallCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(hookCmd)
}
