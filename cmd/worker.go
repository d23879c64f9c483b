package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pursuit-cli/internal/resilience"
	"github.com/sells-group/pursuit-cli/internal/runner"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the local analysis job executor",
	Long:  "Claims pending analysis jobs from the store, runs them against Claude, and writes results back to the pursuit records.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		client, err := newClaudeClient()
		if err != nil {
			return err
		}
		kinds, err := runner.LoadKinds(cfg.Runner.KindsPath)
		if err != nil {
			return err
		}

		r := runner.New(st, client, kinds, runner.Config{
			Model: cfg.Anthropic.Model,
			Retry: resilience.RetryConfig{MaxAttempts: cfg.Runner.MaxAttempts},
		})

		zap.L().Info("worker started",
			zap.String("model", cfg.Anthropic.Model),
			zap.Int("poll_secs", cfg.Runner.PollSecs))
		return r.Run(ctx, time.Duration(cfg.Runner.PollSecs)*time.Second)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
