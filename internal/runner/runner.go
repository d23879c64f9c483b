// Package runner executes queued analysis jobs: it claims pending jobs from
// the store, renders the kind's prompt against the pursuit, calls Claude,
// and writes the parsed result back to the record.
package runner

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pursuit-cli/internal/cost"
	"github.com/sells-group/pursuit-cli/internal/model"
	"github.com/sells-group/pursuit-cli/internal/resilience"
	"github.com/sells-group/pursuit-cli/internal/store"
	"github.com/sells-group/pursuit-cli/pkg/claude"
)

// Config tunes the runner.
type Config struct {
	// Model is the Anthropic model id used for every job kind.
	Model string
	// Retry wraps each Claude call.
	Retry resilience.RetryConfig
}

// Runner drains the analysis job queue.
type Runner struct {
	store  store.Store
	client claude.Client
	kinds  map[model.JobKind]KindDef
	cfg    Config
	costs  *cost.Calculator
}

// New builds a Runner. kinds must cover every job kind (see LoadKinds).
func New(st store.Store, client claude.Client, kinds map[model.JobKind]KindDef, cfg Config) *Runner {
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-5-20250929"
	}
	return &Runner{
		store:  st,
		client: client,
		kinds:  kinds,
		cfg:    cfg,
		costs:  cost.NewCalculator(cost.DefaultRates()),
	}
}

// RunOnce claims and executes at most one pending job. It reports whether a
// job was claimed. Execution failures are recorded on the job row, not
// returned: a poisoned job must not wedge the queue.
func (r *Runner) RunOnce(ctx context.Context) (bool, error) {
	job, err := r.store.NextPendingJob(ctx)
	if err != nil {
		return false, eris.Wrap(err, "runner: claim job")
	}
	if job == nil {
		return false, nil
	}

	log := zap.L().With(
		zap.String("job", job.ID),
		zap.String("pursuit", job.PursuitID),
		zap.String("kind", string(job.Kind)))
	log.Info("runner: job claimed")

	if err := r.execute(ctx, job); err != nil {
		log.Error("runner: job failed", zap.Error(err))
		if cerr := r.store.CompleteJob(ctx, job.ID, model.JobStatusFailed, err.Error()); cerr != nil {
			log.Error("runner: mark job failed", zap.Error(cerr))
		}
		return true, nil
	}

	if err := r.store.CompleteJob(ctx, job.ID, model.JobStatusComplete, ""); err != nil {
		return true, eris.Wrapf(err, "runner: mark job %s complete", job.ID)
	}
	log.Info("runner: job complete")
	return true, nil
}

// Run drains the queue until ctx is cancelled, sleeping between empty polls.
func (r *Runner) Run(ctx context.Context, idle time.Duration) error {
	if idle <= 0 {
		idle = 2 * time.Second
	}
	for {
		worked, err := r.RunOnce(ctx)
		if err != nil {
			return err
		}
		if worked {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(idle):
		}
	}
}

func (r *Runner) execute(ctx context.Context, job *model.AnalysisJob) error {
	def, ok := r.kinds[job.Kind]
	if !ok {
		return eris.Errorf("runner: no definition for job kind %q", job.Kind)
	}

	p, err := r.store.GetPursuit(ctx, job.PursuitID)
	if err != nil {
		return eris.Wrap(err, "runner: load pursuit")
	}

	retry := r.cfg.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("claude", string(job.Kind))
	}

	start := time.Now()
	resp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*claude.MessageResponse, error) {
		return r.client.CreateMessage(ctx, claude.MessageRequest{
			Model:       r.cfg.Model,
			MaxTokens:   def.MaxTokens,
			System:      def.System,
			Messages:    []claude.Message{{Role: "user", Content: renderPrompt(def.Prompt, p)}},
			Temperature: def.Temperature,
		})
	})
	if err != nil {
		return eris.Wrapf(err, "runner: %s call", job.Kind)
	}
	resp.Usage.LogUsage(r.cfg.Model, string(job.Kind))

	metrics := model.RunMetrics{
		GeneratedAt: time.Now().UTC(),
		DurationMS:  time.Since(start).Milliseconds(),
		TokensIn:    int(resp.Usage.InputTokens),
		TokensOut:   int(resp.Usage.OutputTokens),
		CostUSD:     r.costs.Job(r.cfg.Model, int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)),
	}

	field, result, err := parseResult(job, resp.Text, metrics)
	if err != nil {
		return err
	}
	if _, err := r.store.SavePursuit(ctx, job.PursuitID, map[string]any{field: result}); err != nil {
		return eris.Wrap(err, "runner: save result")
	}
	return nil
}

// parseResult decodes the model's reply into the job kind's result struct
// and names the record field it belongs under.
func parseResult(job *model.AnalysisJob, text string, metrics model.RunMetrics) (string, any, error) {
	body := stripFences(text)
	switch job.Kind {
	case model.JobKindExtraction:
		var fields map[string]any
		if err := json.Unmarshal([]byte(body), &fields); err != nil {
			return "", nil, eris.Wrap(err, "runner: decode extraction reply")
		}
		return "extraction", &model.ExtractionResult{Fields: fields, Metrics: metrics}, nil

	case model.JobKindGapAnalysis:
		var out struct {
			Gaps []model.Gap `json:"gaps"`
		}
		if err := json.Unmarshal([]byte(body), &out); err != nil {
			return "", nil, eris.Wrap(err, "runner: decode gap analysis reply")
		}
		return "gap_analysis", &model.GapAnalysisResult{Gaps: out.Gaps, Metrics: metrics}, nil

	case model.JobKindPrompt:
		var out struct {
			Prompt string `json:"prompt"`
		}
		if err := json.Unmarshal([]byte(body), &out); err != nil || out.Prompt == "" {
			// Some replies come back as plain prose.
			out.Prompt = strings.TrimSpace(body)
		}
		regenerated, _ := job.Payload["regenerate"].(bool)
		return "prompt", &model.PromptResult{Prompt: out.Prompt, Regenerated: regenerated, Metrics: metrics}, nil
	}
	return "", nil, eris.Errorf("runner: unsupported job kind %q", job.Kind)
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
