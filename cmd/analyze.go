package main

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pursuit-cli/internal/controller"
	"github.com/sells-group/pursuit-cli/internal/model"
)

var (
	analyzeKind    string
	analyzePayload string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <pursuit-id>",
	Short: "Run an analysis job and follow it to a terminal state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := model.JobKind(analyzeKind)
		if !kind.Valid() {
			return eris.Errorf("unknown job kind %q (extraction, gap_analysis, prompt_generation)", analyzeKind)
		}

		var payload map[string]any
		if analyzePayload != "" {
			if err := json.Unmarshal([]byte(analyzePayload), &payload); err != nil {
				return eris.Wrap(err, "parse --payload")
			}
		}

		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		states, err := newController(st).Run(ctx, args[0], kind, payload)
		if err != nil {
			if eris.Is(err, controller.ErrAlreadyRunning) {
				fmt.Printf("%s job already running for %s\n", kind, args[0])
				return nil
			}
			return err
		}

		for s := range states {
			switch s.State {
			case controller.StateCompleted:
				fmt.Printf("completed: run %s tokens_in=%d tokens_out=%d cost=$%.4f\n",
					s.Entry.ID, s.Entry.TokensIn, s.Entry.TokensOut, s.Entry.CostUSD)
			case controller.StateFailed:
				return eris.Wrap(s.Err, "job failed")
			case controller.StateTimedOut:
				fmt.Println("timed out: analysis did not complete; it may still finish server-side")
			default:
				fmt.Println(string(s.State))
			}
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeKind, "kind", string(model.JobKindExtraction), "job kind to run")
	analyzeCmd.Flags().StringVar(&analyzePayload, "payload", "", "JSON payload forwarded to the job")
	rootCmd.AddCommand(analyzeCmd)
}
