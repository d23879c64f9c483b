package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pursuit-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedPursuit(t *testing.T, st *SQLiteStore, id string) *model.Pursuit {
	t.Helper()
	p := &model.Pursuit{
		ID:           id,
		EntityName:   "Acme Water Authority",
		Industry:     "utilities",
		Geography:    "Texas",
		ServiceTypes: []string{"engineering", "permitting"},
	}
	require.NoError(t, st.PutPursuit(context.Background(), p))
	return p
}

func TestSQLite_GetPursuit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedPursuit(t, st, "p1")

	p, err := st.GetPursuit(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Water Authority", p.EntityName)
	assert.Equal(t, []string{"engineering", "permitting"}, p.ServiceTypes)
}

func TestSQLite_GetPursuit_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetPursuit(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_SavePursuit_PartialMerge(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedPursuit(t, st, "p1")

	p, err := st.SavePursuit(ctx, "p1", map[string]any{"industry": "energy"})
	require.NoError(t, err)
	assert.Equal(t, "energy", p.Industry)
	// Untouched fields survive.
	assert.Equal(t, "Acme Water Authority", p.EntityName)
	assert.Equal(t, []string{"engineering", "permitting"}, p.ServiceTypes)
}

func TestSQLite_SavePursuit_StateMergesOneLevelDeep(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedPursuit(t, st, "p1")

	// Writer A sets extraction history.
	_, err := st.SavePursuit(ctx, "p1", map[string]any{
		"state": map[string]any{
			"extraction_history": []map[string]any{{"id": "run-1", "status": "success"}},
		},
	})
	require.NoError(t, err)

	// Writer B sets gap-analysis history; A's key must survive.
	p, err := st.SavePursuit(ctx, "p1", map[string]any{
		"state": map[string]any{
			"gap_analysis_history": []map[string]any{{"id": "run-2", "status": "success"}},
		},
	})
	require.NoError(t, err)

	extraction, err := p.State.History(model.JobKindExtraction)
	require.NoError(t, err)
	require.Len(t, extraction, 1)
	assert.Equal(t, "run-1", extraction[0].ID)

	gaps, err := p.State.History(model.JobKindGapAnalysis)
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	assert.Equal(t, "run-2", gaps[0].ID)
}

func TestSQLite_SavePursuit_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.SavePursuit(context.Background(), "missing", map[string]any{"industry": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_JobQueue_Lifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedPursuit(t, st, "p1")

	require.NoError(t, st.StartJob(ctx, "p1", model.JobKindExtraction, map[string]any{"source": "rfp.pdf"}))

	job, err := st.NextPendingJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "p1", job.PursuitID)
	assert.Equal(t, model.JobKindExtraction, job.Kind)
	assert.Equal(t, model.JobStatusRunning, job.Status)
	assert.Equal(t, "rfp.pdf", job.Payload["source"])

	// Queue is drained.
	next, err := st.NextPendingJob(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)

	require.NoError(t, st.CompleteJob(ctx, job.ID, model.JobStatusComplete, ""))
}

func TestSQLite_StartJob_UnknownPursuit(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.StartJob(context.Background(), "missing", model.JobKindExtraction, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_CompleteJob_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.CompleteJob(context.Background(), "missing", model.JobStatusComplete, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_References_PutAndList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	ref := &model.ReferencePursuit{
		ID:        "r1",
		Name:      "Regional Water Treatment Study",
		Industry:  "utilities",
		WinStatus: model.WinStatusWon,
		CreatedAt: time.Now().UTC().Add(-24 * time.Hour),
		Components: []model.Component{
			{Name: "executive_summary", WordCount: 800, Relevance: 0.9},
		},
	}
	require.NoError(t, st.PutReference(ctx, ref))

	refs, err := st.ListReferences(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "Regional Water Treatment Study", refs[0].Name)
	require.Len(t, refs[0].Components, 1)
	assert.Equal(t, 0.9, refs[0].Components[0].Relevance)
}

func TestMergeFields_TopLevelLastWriterWins(t *testing.T) {
	t.Parallel()
	doc := map[string]any{"industry": "utilities", "geography": "Texas"}
	merged := mergeFields(doc, map[string]any{"industry": "energy"})
	assert.Equal(t, "energy", merged["industry"])
	assert.Equal(t, "Texas", merged["geography"])
	// Input untouched.
	assert.Equal(t, "utilities", doc["industry"])
}

func TestMergeFields_StateReplacedWhenNotObject(t *testing.T) {
	t.Parallel()
	doc := map[string]any{"state": "corrupt"}
	merged := mergeFields(doc, map[string]any{"state": map[string]any{"k": 1}})
	assert.Equal(t, map[string]any{"k": 1}, merged["state"])
}
