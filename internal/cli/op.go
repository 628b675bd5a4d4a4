package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lazypower/lattice/internal/protocol"
)

var opCmd = &cobra.Command{
	Use:   "op <name> [json|-]",
	Short: "Run one operation and print its JSON result",
	Long: "Run one operation against the subject's graph. Arguments are a JSON object,\n" +
		"given inline or read from stdin with '-'. Operations: " + strings.Join(protocol.Names, ", "),
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		subj, err := subject(cfg)
		if err != nil {
			return err
		}

		var raw []byte
		if len(args) == 2 {
			if args[1] == "-" {
				if raw, err = io.ReadAll(cmd.InOrStdin()); err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
			} else {
				raw = []byte(args[1])
			}
		}

		a, err := openApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.dispatcher.Execute(cmd.Context(), subj, protocol.Call{Op: args[0], Args: raw})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), result)
	},
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
