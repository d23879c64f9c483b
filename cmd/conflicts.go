package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pursuit-cli/internal/conflict"
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts <pursuit-id>",
	Short: "List unresolved field conflicts between baseline and extraction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		p, err := st.GetPursuit(ctx, args[0])
		if err != nil {
			return err
		}
		r, err := conflict.New(st, p)
		if err != nil {
			return err
		}

		pending := r.Pending()
		if len(pending) == 0 {
			fmt.Printf("no conflicts for %s\n", args[0])
			return nil
		}
		for _, c := range pending {
			fmt.Printf("%-16s baseline=%v  extracted=%v\n", c.Field, c.Baseline, c.Current)
		}
		fmt.Printf("\n%d unresolved; run `pursuit-cli conflicts resolve %s <field> --keep current|baseline`\n",
			len(pending), args[0])
		return nil
	},
}

var resolveKeep string

var conflictsResolveCmd = &cobra.Command{
	Use:   "resolve <pursuit-id> <field>",
	Short: "Resolve one field conflict by keeping the baseline or extracted value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var chooseCurrent bool
		switch resolveKeep {
		case "current":
			chooseCurrent = true
		case "baseline":
		default:
			return eris.Errorf("--keep must be current or baseline, got %q", resolveKeep)
		}

		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		p, err := st.GetPursuit(ctx, args[0])
		if err != nil {
			return err
		}
		r, err := conflict.New(st, p)
		if err != nil {
			return err
		}

		before := len(r.Pending())
		if err := r.Resolve(ctx, args[1], chooseCurrent); err != nil {
			return err
		}
		if len(r.Pending()) == before {
			fmt.Printf("field %q has no pending conflict\n", args[1])
			return nil
		}
		fmt.Printf("resolved %s (%d remaining)\n", args[1], len(r.Pending()))
		return nil
	},
}

func init() {
	conflictsResolveCmd.Flags().StringVar(&resolveKeep, "keep", "current", "which side to keep: current or baseline")
	conflictsCmd.AddCommand(conflictsResolveCmd)
	rootCmd.AddCommand(conflictsCmd)
}
