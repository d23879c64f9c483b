package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pursuit-cli/internal/ranker"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for jobs, history, conflicts, ranking, and selection",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		var semantic ranker.SemanticProvider
		if client, err := newClaudeClient(); err == nil {
			semantic = &ranker.ClaudeSemantic{Client: client, Model: cfg.Anthropic.Model}
		} else {
			zap.L().Warn("serving without semantic provider", zap.Error(err))
		}
		rk, err := ranker.New(ranker.DefaultWeights, ranker.Config{
			RelevanceThreshold:  cfg.Ranker.RelevanceThreshold,
			RecencyHalfLifeDays: float64(cfg.Ranker.RecencyHalfLife),
		}, semantic, nil)
		if err != nil {
			return err
		}

		api := &apiServer{
			store:      st,
			controller: newController(st),
			ranker:     rk,
			base:       ctx,
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(api, cfg.Server.AllowedOrigins),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
