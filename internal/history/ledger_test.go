package history

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pursuit-cli/internal/model"
)

func entry(id string, cost float64) model.JobRunEntry {
	return model.JobRunEntry{
		ID:         id,
		Initiator:  "tester",
		Timestamp:  time.Now().UTC(),
		DurationMS: 1200,
		TokensIn:   100,
		TokensOut:  50,
		CostUSD:    cost,
		Status:     model.RunEntrySuccess,
	}
}

func TestAppend_PrependsNewestFirst(t *testing.T) {
	t.Parallel()
	var entries []model.JobRunEntry
	entries = Append(entries, entry("run-1", 0.01))
	entries = Append(entries, entry("run-2", 0.02))
	entries = Append(entries, entry("run-3", 0.03))

	require.Len(t, entries, 3)
	assert.Equal(t, "run-3", entries[0].ID)
	assert.Equal(t, "run-2", entries[1].ID)
	assert.Equal(t, "run-1", entries[2].ID)
}

func TestAppend_NeverMutatesInput(t *testing.T) {
	t.Parallel()
	original := []model.JobRunEntry{entry("run-1", 0.01)}
	snapshot := original[0]

	extended := Append(original, entry("run-2", 0.02))

	require.Len(t, original, 1)
	assert.Equal(t, snapshot, original[0])
	require.Len(t, extended, 2)
	assert.Equal(t, "run-2", extended[0].ID)
}

func TestReduce(t *testing.T) {
	t.Parallel()
	entries := []model.JobRunEntry{entry("a", 0.02), entry("b", 0.03)}

	totals := Reduce(entries)
	assert.Equal(t, 2, totals.Runs)
	assert.Equal(t, int64(2400), totals.DurationMS)
	assert.Equal(t, 200, totals.TokensIn)
	assert.Equal(t, 100, totals.TokensOut)
	assert.InDelta(t, 0.05, totals.CostUSD, 1e-9)
}

func TestReduce_Empty(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Totals{}, Reduce(nil))
}

func TestForKind_ReadsStateBag(t *testing.T) {
	t.Parallel()
	p := &model.Pursuit{State: model.StateBag{}}
	require.NoError(t, p.State.SetHistory(model.JobKindExtraction, []model.JobRunEntry{entry("run-1", 0.01)}))

	entries, err := ForKind(p, model.JobKindExtraction)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "run-1", entries[0].ID)

	// Missing kind and missing state both yield empty.
	none, err := ForKind(p, model.JobKindGapAnalysis)
	require.NoError(t, err)
	assert.Empty(t, none)

	none, err = ForKind(&model.Pursuit{}, model.JobKindExtraction)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPayloadFor_CarriesOnlyHistoryKey(t *testing.T) {
	t.Parallel()
	payload := PayloadFor(model.JobKindGapAnalysis, []model.JobRunEntry{entry("run-1", 0.01)})

	state, ok := payload["state"].(map[string]any)
	require.True(t, ok)
	require.Len(t, state, 1)
	require.Contains(t, state, "gap_analysis_history")

	// The payload must survive a JSON round trip into the persisted shape.
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	var decoded struct {
		State struct {
			GapHistory []model.JobRunEntry `json:"gap_analysis_history"`
		} `json:"state"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded.State.GapHistory, 1)
	assert.Equal(t, "run-1", decoded.State.GapHistory[0].ID)
}

func TestExportXLSX(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "history.xlsx")
	entries := []model.JobRunEntry{entry("run-2", 0.02), entry("run-1", 0.01)}

	require.NoError(t, ExportXLSX(path, model.JobKindExtraction, entries))
	assert.FileExists(t, path)
}
