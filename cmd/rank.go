package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pursuit-cli/internal/ranker"
)

var rankLocal bool

var rankCmd = &cobra.Command{
	Use:   "rank <pursuit-id>",
	Short: "Rank historical reference pursuits against a target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		target, err := st.GetPursuit(ctx, args[0])
		if err != nil {
			return err
		}
		candidates, err := st.ListReferences(ctx)
		if err != nil {
			return err
		}

		var semantic ranker.SemanticProvider
		if !rankLocal {
			client, err := newClaudeClient()
			if err != nil {
				zap.L().Warn("ranking without semantic provider", zap.Error(err))
			} else {
				semantic = &ranker.ClaudeSemantic{Client: client, Model: cfg.Anthropic.Model}
			}
		}

		r, err := ranker.New(ranker.DefaultWeights, ranker.Config{
			RelevanceThreshold:  cfg.Ranker.RelevanceThreshold,
			RecencyHalfLifeDays: float64(cfg.Ranker.RecencyHalfLife),
		}, semantic, nil)
		if err != nil {
			return err
		}

		ranked, err := r.Rank(ctx, target, candidates)
		if err != nil {
			return err
		}

		for i, sc := range ranked {
			fmt.Printf("%2d. %.3f  %-28s %-20s %s\n",
				i+1, sc.Score, sc.Candidate.Name, sc.Candidate.Industry, sc.Candidate.WinStatus)
		}
		return nil
	},
}

func init() {
	rankCmd.Flags().BoolVar(&rankLocal, "local", false, "skip the Claude semantic lookup and score locally only")
	rootCmd.AddCommand(rankCmd)
}
