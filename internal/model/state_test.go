package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateBagRoundTripsUnknownKeys(t *testing.T) {
	raw := []byte(`{
		"extraction_history": [{"id": "r1", "status": "success"}],
		"overview_snapshot": {"industry": "Healthcare"},
		"future_feature": {"nested": [1, 2, 3]},
		"another_unknown": "keep me"
	}`)

	var bag StateBag
	require.NoError(t, json.Unmarshal(raw, &bag))

	entries, err := bag.History(JobKindExtraction)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "r1", entries[0].ID)

	out, err := json.Marshal(bag)
	require.NoError(t, err)

	var round map[string]any
	require.NoError(t, json.Unmarshal(out, &round))
	assert.Equal(t, "keep me", round["another_unknown"])
	assert.Contains(t, round, "future_feature")
}

func TestStateBagHistoryMissingKey(t *testing.T) {
	bag := StateBag{}
	entries, err := bag.History(JobKindGapAnalysis)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStateBagMergePreservesDisjointKeys(t *testing.T) {
	base := StateBag{}
	require.NoError(t, base.SetHistory(JobKindExtraction, []JobRunEntry{{ID: "r1"}}))

	overlay := StateBag{}
	require.NoError(t, overlay.SetHistory(JobKindGapAnalysis, []JobRunEntry{{ID: "r2"}}))

	merged := base.Merge(overlay)

	ext, err := merged.History(JobKindExtraction)
	require.NoError(t, err)
	gap, err := merged.History(JobKindGapAnalysis)
	require.NoError(t, err)
	assert.Len(t, ext, 1)
	assert.Len(t, gap, 1)
}

func TestSelectedReferencesAccessors(t *testing.T) {
	bag := StateBag{}
	sel, err := bag.SelectedReferences()
	require.NoError(t, err)
	assert.Nil(t, sel)

	require.NoError(t, bag.SetSelectedReferences(&SelectedReferences{
		PursuitIDs: []string{"a"},
		Components: map[string][]string{"a": {"approach"}},
	}))

	sel, err = bag.SelectedReferences()
	require.NoError(t, err)
	require.NotNil(t, sel)
	assert.Equal(t, []string{"a"}, sel.PursuitIDs)
	assert.Equal(t, []string{"approach"}, sel.Components["a"])
}

func TestJobKind(t *testing.T) {
	assert.True(t, JobKindExtraction.Valid())
	assert.True(t, JobKindGapAnalysis.Valid())
	assert.True(t, JobKindPrompt.Valid())
	assert.False(t, JobKind("sentiment").Valid())

	assert.Equal(t, "extraction_history", JobKindExtraction.HistoryKey())
	assert.Equal(t, "gap_analysis_history", JobKindGapAnalysis.HistoryKey())
	assert.Equal(t, "prompt_history", JobKindPrompt.HistoryKey())
}

func TestNewRunEntryDefaultsAbsentMetricsToZero(t *testing.T) {
	entry := NewRunEntry("r1", "cli", nil, RunEntrySuccess, nil)
	assert.Equal(t, "r1", entry.ID)
	assert.Equal(t, "cli", entry.Initiator)
	assert.Zero(t, entry.DurationMS)
	assert.Zero(t, entry.TokensIn)
	assert.Zero(t, entry.TokensOut)
	assert.Zero(t, entry.CostUSD)
	assert.False(t, entry.Timestamp.IsZero())
}

func TestResultForAndSummaryFor(t *testing.T) {
	p := &Pursuit{ID: "p1"}
	assert.Nil(t, p.ResultFor(JobKindExtraction))
	assert.Nil(t, p.SummaryFor(JobKindGapAnalysis))

	p.GapAnalysis = &GapAnalysisResult{
		Gaps:    []Gap{{Requirement: "security plan"}, {Requirement: "pricing"}},
		Metrics: RunMetrics{GeneratedAt: time.Now().UTC(), TokensIn: 10},
	}
	require.NotNil(t, p.ResultFor(JobKindGapAnalysis))
	assert.Equal(t, 10, p.ResultFor(JobKindGapAnalysis).TokensIn)
	assert.Equal(t, map[string]int{"gaps_found": 2}, p.SummaryFor(JobKindGapAnalysis))

	p.Extraction = &ExtractionResult{Fields: map[string]any{"industry": "Pharma", "empty": ""}}
	assert.Equal(t, map[string]int{"fields_extracted": 1}, p.SummaryFor(JobKindExtraction))
}
