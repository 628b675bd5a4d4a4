package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lazypower/lattice/internal/engine"
	"github.com/lazypower/lattice/internal/store"
)

var (
	recallMax   int
	recallTypes []string
	recallTags  []string
	recallEdges bool
	asJSON      bool
)

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Rank the subject's memories against a query",
	Args:  cobra.MinimumNArgs(1),
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

		res, err := a.engine.Recall(cmd.Context(), subj, strings.Join(args, " "), engine.RecallOptions{
			MaxResults:   recallMax,
			NodeTypes:    recallTypes,
			Tags:         recallTags,
			IncludeEdges: &recallEdges,
		})
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd.OutOrStdout(), res)
		}
		printRecall(cmd.OutOrStdout(), res)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show graph statistics for the subject",
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

		res, err := a.engine.Status(cmd.Context(), subj)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd.OutOrStdout(), res)
		}
		printStatus(cmd.OutOrStdout(), res)
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the subject's identity summary",
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

		res, err := a.engine.WhoAmI(cmd.Context(), subj)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd.OutOrStdout(), res)
		}
		printWhoAmI(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	recallCmd.Flags().IntVarP(&recallMax, "limit", "n", 0, "maximum number of results (default from config)")
	recallCmd.Flags().StringSliceVarP(&recallTypes, "type", "t", nil, "filter by node type")
	recallCmd.Flags().StringSliceVar(&recallTags, "tag", nil, "filter by tag")
	recallCmd.Flags().BoolVar(&recallEdges, "edges", true, "include one-hop context")

	for _, c := range []*cobra.Command{recallCmd, statusCmd, whoamiCmd} {
		c.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	}
}

func ago(ms int64) string {
	if ms == 0 {
		return "never"
	}
	return humanize.Time(time.UnixMilli(ms))
}

func nodeLine(n store.Node) string {
	line := fmt.Sprintf("#%d [%s] %s", n.ID, n.NodeType, n.Content)
	if len(n.Tags) > 0 {
		line += "  (" + strings.Join(n.Tags, ", ") + ")"
	}
	return line
}

func printRecall(w io.Writer, res *engine.RecallResult) {
	if len(res.Results) == 0 {
		fmt.Fprintf(w, "No memories match %q.\n", res.Query)
		return
	}
	for i, hit := range res.Results {
		fmt.Fprintf(w, "%2d. %.3f  %s\n", i+1, hit.Score, nodeLine(hit.Node))
		fmt.Fprintf(w, "      similarity %.3f  gravity %.2f  depth %.2f  accessed %s\n",
			hit.Similarity, hit.Node.Gravity, hit.Node.Depth, ago(hit.Node.LastAccessedAt))
	}
	if len(res.Context) > 0 {
		fmt.Fprintln(w, "\nRelated:")
		for _, c := range res.Context {
			fmt.Fprintf(w, "  #%d -%s-> %s\n", c.Via.SourceID, c.Via.RelationType, nodeLine(c.Node))
		}
	}
}

func printStatus(w io.Writer, res *engine.StatusResult) {
	if !res.Exists {
		fmt.Fprintf(w, "Subject %q has no memories yet.\n", res.SubjectID)
		return
	}
	fmt.Fprintf(w, "Subject:     %s (version %d)\n", res.SubjectID, res.Version)
	fmt.Fprintf(w, "Nodes:       %s\n", humanize.Comma(int64(res.NodeCount)))
	fmt.Fprintf(w, "Edges:       %s\n", humanize.Comma(int64(res.EdgeCount)))
	fmt.Fprintf(w, "Avg gravity: %.2f\n", res.AvgGravity)
	fmt.Fprintf(w, "Avg depth:   %.2f\n", res.AvgDepth)
	if res.OldestMemoryAt != nil && res.NewestMemoryAt != nil {
		fmt.Fprintf(w, "Memories:    oldest %s, newest %s\n", ago(*res.OldestMemoryAt), ago(*res.NewestMemoryAt))
	}
	fmt.Fprintf(w, "Last 24h:    %d created, %d accessed, %d ledger entries\n",
		res.Recent.NodesCreated, res.Recent.NodesAccessed, res.Recent.LedgerEntries)
	fmt.Fprintf(w, "Embedding:   %s, cache %d (%d hits / %d misses)\n",
		res.Embedding.Model, res.Embedding.CacheSize, res.Embedding.CacheHits, res.Embedding.CacheMisses)
	if len(res.TopNodes) > 0 {
		fmt.Fprintln(w, "\nTop nodes:")
		for _, n := range res.TopNodes {
			fmt.Fprintf(w, "  %s\n", nodeLine(n))
		}
	}
}

func printWhoAmI(w io.Writer, res *engine.WhoAmIResult) {
	if !res.Exists {
		fmt.Fprintf(w, "Subject %q has no memories yet.\n", res.SubjectID)
	} else {
		fmt.Fprintf(w, "Subject %s: %d memories, avg gravity %.2f, avg depth %.2f\n",
			res.SubjectID, res.Graph.NodeCount, res.AvgGravity, res.AvgDepth)
		if p := res.Position; p != nil {
			fmt.Fprintf(w, "Position: coherence %.3f, drift %.3f over %d core / %d recent nodes\n",
				p.Coherence, p.Drift, p.CoreNodes, p.RecentNodes)
		}
		if len(res.TopNodes) > 0 {
			fmt.Fprintln(w, "\nCore:")
			for _, n := range res.TopNodes {
				fmt.Fprintf(w, "  %s\n", nodeLine(n))
			}
		}
	}
	if len(res.RecentLedger) > 0 {
		fmt.Fprintln(w, "\nLedger:")
		for _, e := range res.RecentLedger {
			fmt.Fprintf(w, "  %s [%s] %s\n", ago(e.CreatedAt), e.EntryType, e.Content)
		}
	}
}
