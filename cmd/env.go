package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pursuit-cli/internal/controller"
	"github.com/sells-group/pursuit-cli/internal/store"
	"github.com/sells-group/pursuit-cli/pkg/claude"
)

// openStore builds the configured record store and runs migrations.
func openStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite", "":
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// newController builds a job controller from the loaded config.
func newController(st store.Store) *controller.Controller {
	return controller.New(st, controller.Config{
		PollInterval:    cfg.Controller.PollInterval(),
		Deadline:        cfg.Controller.Deadline(),
		PollRetryBudget: cfg.Controller.PollRetryBudget,
		Initiator:       cfg.Controller.Initiator,
	})
}

// newClaudeClient builds the Anthropic client, or errors when no key is set.
func newClaudeClient() (claude.Client, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic key not configured (PURSUIT_ANTHROPIC_KEY)")
	}
	return claude.NewClient(cfg.Anthropic.Key, claude.WithRateLimit(cfg.Anthropic.RPS)), nil
}
