package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/pursuit-cli/internal/model"
)

type importFile struct {
	Pursuits   []model.Pursuit          `json:"pursuits"`
	References []model.ReferencePursuit `json:"references"`
}

var importCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Import pursuits and reference pursuits from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var f importFile
		if err := json.Unmarshal(raw, &f); err != nil {
			return err
		}

		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		for i := range f.Pursuits {
			if err := st.PutPursuit(ctx, &f.Pursuits[i]); err != nil {
				return err
			}
		}
		for i := range f.References {
			if err := st.PutReference(ctx, &f.References[i]); err != nil {
				return err
			}
		}

		fmt.Printf("imported %d pursuits, %d references\n", len(f.Pursuits), len(f.References))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
