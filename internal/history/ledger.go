// Package history maintains the append-only run ledger for each pursuit and
// job kind. Entries are ordered newest-first and never mutated, reordered,
// or deleted, even when a later run fails.
package history

import (
	"github.com/sells-group/pursuit-cli/internal/model"
)

// Append returns a new list with entry prepended. The input slice is never
// mutated; callers holding the old list keep a stable view.
func Append(entries []model.JobRunEntry, entry model.JobRunEntry) []model.JobRunEntry {
	out := make([]model.JobRunEntry, 0, len(entries)+1)
	out = append(out, entry)
	out = append(out, entries...)
	return out
}

// Totals holds aggregate metrics across a run history.
type Totals struct {
	Runs       int     `json:"runs"`
	DurationMS int64   `json:"duration_ms"`
	TokensIn   int     `json:"tokens_in"`
	TokensOut  int     `json:"tokens_out"`
	CostUSD    float64 `json:"cost_usd"`
}

// Reduce sums a history list into aggregate totals. Pure, no I/O.
func Reduce(entries []model.JobRunEntry) Totals {
	var t Totals
	for _, e := range entries {
		t.Runs++
		t.DurationMS += e.DurationMS
		t.TokensIn += e.TokensIn
		t.TokensOut += e.TokensOut
		t.CostUSD += e.CostUSD
	}
	return t
}

// ForKind reads the run history for a job kind from a pursuit's state bag.
func ForKind(p *model.Pursuit, kind model.JobKind) ([]model.JobRunEntry, error) {
	if p.State == nil {
		return nil, nil
	}
	return p.State.History(kind)
}

// PayloadFor builds the partial merge-save payload carrying only the given
// kind's history key, so a save never clobbers unrelated fields written by
// concurrent jobs.
func PayloadFor(kind model.JobKind, entries []model.JobRunEntry) map[string]any {
	list := make([]any, 0, len(entries))
	for _, e := range entries {
		list = append(list, e)
	}
	return map[string]any{
		"state": map[string]any{
			kind.HistoryKey(): list,
		},
	}
}
