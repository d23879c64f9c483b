package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pursuit-cli/internal/model"
	"github.com/sells-group/pursuit-cli/internal/ranker"
	"github.com/sells-group/pursuit-cli/internal/store"
)

var selectionCmd = &cobra.Command{
	Use:   "selection <pursuit-id>",
	Short: "Show the saved reference selection for a pursuit",
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
		sel, err := p.State.SelectedReferences()
		if err != nil {
			return err
		}
		if sel == nil || len(sel.PursuitIDs) == 0 {
			fmt.Printf("no references selected for %s\n", args[0])
			return nil
		}

		details := make(map[string]model.PursuitDetail, len(sel.PursuitDetails))
		for _, d := range sel.PursuitDetails {
			details[d.ID] = d
		}
		for _, id := range sel.PursuitIDs {
			name := id
			if d, ok := details[id]; ok {
				name = fmt.Sprintf("%s (%s)", d.Name, id)
			}
			fmt.Println(name)
			if comps := sel.Components[id]; len(comps) > 0 {
				fmt.Printf("  components: %s\n", strings.Join(comps, ", "))
			}
		}
		return nil
	},
}

var selectionToggleCmd = &cobra.Command{
	Use:   "toggle <pursuit-id> <reference-id> [component]",
	Short: "Toggle a reference pursuit or one of its components",
	Args:  cobra.RangeArgs(2, 3),
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
		saved, err := p.State.SelectedReferences()
		if err != nil {
			return err
		}

		cand, err := findReference(ctx, st, args[1])
		if err != nil {
			return err
		}

		sel := ranker.LoadSelection(saved)
		if len(args) == 3 {
			sel.ToggleComponent(cand, args[2])
		} else {
			sel.ToggleRecord(cand)
		}
		if err := saveSelection(ctx, st, args[0], sel); err != nil {
			return err
		}

		verb := "deselected"
		if sel.IsSelected(cand.ID) {
			verb = "selected"
		}
		fmt.Printf("%s %s\n", verb, cand.ID)
		return nil
	},
}

func findReference(ctx context.Context, st store.Store, id string) (*model.ReferencePursuit, error) {
	refs, err := st.ListReferences(ctx)
	if err != nil {
		return nil, err
	}
	for i := range refs {
		if refs[i].ID == id {
			return &refs[i], nil
		}
	}
	return nil, eris.Errorf("reference pursuit %q not found", id)
}

// saveSelection persists the serialized selection under its state key and
// clears the dirty flag.
func saveSelection(ctx context.Context, st store.Store, pursuitID string, sel *ranker.Selection) error {
	if _, err := st.SavePursuit(ctx, pursuitID, map[string]any{
		"state": map[string]any{
			model.StateKeySelectedReferences: sel.Serialize(),
		},
	}); err != nil {
		return err
	}
	sel.MarkSaved()
	return nil
}

func init() {
	selectionCmd.AddCommand(selectionToggleCmd)
	rootCmd.AddCommand(selectionCmd)
}
