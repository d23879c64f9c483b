package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pursuit-cli/internal/history"
	"github.com/sells-group/pursuit-cli/internal/model"
)

var (
	historyKind string
	historyXLSX string
)

var historyCmd = &cobra.Command{
	Use:   "history <pursuit-id>",
	Short: "Show run history and totals for a job kind",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := model.JobKind(historyKind)
		if !kind.Valid() {
			return eris.Errorf("unknown job kind %q", historyKind)
		}

		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := newController(st).History(ctx, args[0], kind)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Printf("no %s runs recorded for %s\n", kind, args[0])
			return nil
		}

		for _, e := range entries {
			fmt.Printf("%s  %s  %-7s  %6dms  in=%-6d out=%-6d $%.4f",
				e.Timestamp.Format("2006-01-02 15:04:05"), e.ID[:8], e.Status,
				e.DurationMS, e.TokensIn, e.TokensOut, e.CostUSD)
			for k, v := range e.Summary {
				fmt.Printf("  %s=%d", k, v)
			}
			fmt.Println()
		}

		totals := history.Reduce(entries)
		fmt.Printf("\ntotal: %d runs  %dms  in=%d out=%d  $%.4f\n",
			len(entries), totals.DurationMS, totals.TokensIn, totals.TokensOut, totals.CostUSD)

		if historyXLSX != "" {
			if err := history.ExportXLSX(historyXLSX, kind, entries); err != nil {
				return err
			}
			fmt.Printf("exported %s\n", historyXLSX)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyKind, "kind", string(model.JobKindExtraction), "job kind")
	historyCmd.Flags().StringVar(&historyXLSX, "xlsx", "", "export history to an xlsx workbook at this path")
	rootCmd.AddCommand(historyCmd)
}
