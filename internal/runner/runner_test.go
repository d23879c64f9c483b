package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pursuit-cli/internal/model"
	"github.com/sells-group/pursuit-cli/internal/resilience"
	"github.com/sells-group/pursuit-cli/pkg/claude"
)

// mockClient is a testify mock for the claude.Client interface.
type mockClient struct {
	mock.Mock
}

func (m *mockClient) CreateMessage(ctx context.Context, req claude.MessageRequest) (*claude.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*claude.MessageResponse), args.Error(1)
}

// queueStore is an in-memory store.Store backing one pursuit and a job queue.
type queueStore struct {
	mu        sync.Mutex
	pursuit   *model.Pursuit
	queue     []*model.AnalysisJob
	saved     []map[string]any
	completed map[string]model.JobStatus
	errors    map[string]string
}

func newQueueStore(p *model.Pursuit) *queueStore {
	return &queueStore{
		pursuit:   p,
		completed: make(map[string]model.JobStatus),
		errors:    make(map[string]string),
	}
}

func (q *queueStore) GetPursuit(ctx context.Context, id string) (*model.Pursuit, error) {
	return q.pursuit, nil
}

func (q *queueStore) SavePursuit(ctx context.Context, id string, fields map[string]any) (*model.Pursuit, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.saved = append(q.saved, fields)
	return q.pursuit, nil
}

func (q *queueStore) PutPursuit(ctx context.Context, p *model.Pursuit) error { return nil }

func (q *queueStore) StartJob(ctx context.Context, id string, kind model.JobKind, payload map[string]any) error {
	return nil
}

func (q *queueStore) NextPendingJob(ctx context.Context) (*model.AnalysisJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queue) == 0 {
		return nil, nil
	}
	job := q.queue[0]
	q.queue = q.queue[1:]
	return job, nil
}

func (q *queueStore) CompleteJob(ctx context.Context, jobID string, status model.JobStatus, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed[jobID] = status
	q.errors[jobID] = errMsg
	return nil
}

func (q *queueStore) PutReference(ctx context.Context, r *model.ReferencePursuit) error { return nil }
func (q *queueStore) ListReferences(ctx context.Context) ([]model.ReferencePursuit, error) {
	return nil, nil
}
func (q *queueStore) Migrate(ctx context.Context) error { return nil }
func (q *queueStore) Close() error                      { return nil }

func testKinds(t *testing.T) map[model.JobKind]KindDef {
	t.Helper()
	kinds, err := LoadKinds("")
	require.NoError(t, err)
	return kinds
}

func TestRunOnceExecutesExtractionJob(t *testing.T) {
	p := &model.Pursuit{ID: "p1", EntityName: "Acme Corp", Industry: "Healthcare"}
	st := newQueueStore(p)
	st.queue = append(st.queue, &model.AnalysisJob{
		ID:        "job1",
		PursuitID: "p1",
		Kind:      model.JobKindExtraction,
		Status:    model.JobStatusPending,
	})

	mc := &mockClient{}
	mc.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req claude.MessageRequest) bool {
		return req.Messages[0].Role == "user"
	})).Return(&claude.MessageResponse{
		Text:  "```json\n{\"industry\": \"Pharma\", \"geography\": \"US-East\"}\n```",
		Usage: claude.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}, nil)

	r := New(st, mc, testKinds(t), Config{})
	worked, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, worked)

	require.Len(t, st.saved, 1)
	result, ok := st.saved[0]["extraction"].(*model.ExtractionResult)
	require.True(t, ok)
	assert.Equal(t, "Pharma", result.Fields["industry"])
	assert.Equal(t, 100, result.Metrics.TokensIn)
	assert.Equal(t, 50, result.Metrics.TokensOut)
	assert.Greater(t, result.Metrics.CostUSD, 0.0)
	assert.False(t, result.Metrics.GeneratedAt.IsZero())

	assert.Equal(t, model.JobStatusComplete, st.completed["job1"])
	mc.AssertExpectations(t)
}

func TestRunOnceMarksFailedJob(t *testing.T) {
	st := newQueueStore(&model.Pursuit{ID: "p1"})
	st.queue = append(st.queue, &model.AnalysisJob{
		ID:        "job1",
		PursuitID: "p1",
		Kind:      model.JobKindGapAnalysis,
		Status:    model.JobStatusPending,
	})

	mc := &mockClient{}
	mc.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, eris.New("invalid request"))

	r := New(st, mc, testKinds(t), Config{Retry: resilience.RetryConfig{MaxAttempts: 1}})
	worked, err := r.RunOnce(context.Background())
	require.NoError(t, err, "execution failures are recorded, not returned")
	assert.True(t, worked)

	assert.Equal(t, model.JobStatusFailed, st.completed["job1"])
	assert.Contains(t, st.errors["job1"], "invalid request")
	assert.Empty(t, st.saved)
}

func TestRunOnceEmptyQueue(t *testing.T) {
	r := New(newQueueStore(&model.Pursuit{ID: "p1"}), &mockClient{}, testKinds(t), Config{})
	worked, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, worked)
}

func TestRunOncePromptFallsBackToProse(t *testing.T) {
	st := newQueueStore(&model.Pursuit{ID: "p1", EntityName: "Acme Corp"})
	st.queue = append(st.queue, &model.AnalysisJob{
		ID:        "job1",
		PursuitID: "p1",
		Kind:      model.JobKindPrompt,
		Payload:   map[string]any{"regenerate": true},
		Status:    model.JobStatusPending,
	})

	mc := &mockClient{}
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(&claude.MessageResponse{
		Text:  "Research Acme Corp's recent healthcare engagements.",
		Usage: claude.TokenUsage{InputTokens: 80, OutputTokens: 30},
	}, nil)

	r := New(st, mc, testKinds(t), Config{})
	worked, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, worked)

	require.Len(t, st.saved, 1)
	result, ok := st.saved[0]["prompt"].(*model.PromptResult)
	require.True(t, ok)
	assert.Equal(t, "Research Acme Corp's recent healthcare engagements.", result.Prompt)
	assert.True(t, result.Regenerated)
}

func TestRunDrainsQueueThenIdles(t *testing.T) {
	st := newQueueStore(&model.Pursuit{ID: "p1"})
	st.queue = append(st.queue, &model.AnalysisJob{
		ID: "job1", PursuitID: "p1", Kind: model.JobKindExtraction,
	})

	mc := &mockClient{}
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(&claude.MessageResponse{
		Text: `{"industry": "Pharma"}`,
	}, nil)

	r := New(st, mc, testKinds(t), Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, r.Run(ctx, 5*time.Millisecond))

	assert.Equal(t, model.JobStatusComplete, st.completed["job1"])
}

func TestLoadKindsDefaults(t *testing.T) {
	kinds, err := LoadKinds("")
	require.NoError(t, err)
	require.Len(t, kinds, 3)
	for _, kind := range []model.JobKind{model.JobKindExtraction, model.JobKindGapAnalysis, model.JobKindPrompt} {
		def, ok := kinds[kind]
		require.True(t, ok, "missing %s", kind)
		assert.NotEmpty(t, def.Prompt)
		assert.Greater(t, def.MaxTokens, int64(0))
	}
}

func TestRenderPrompt(t *testing.T) {
	p := &model.Pursuit{
		EntityName:   "Acme Corp",
		Industry:     "Healthcare",
		ServiceTypes: []string{"audit", "advisory"},
	}
	got := renderPrompt("{{entity_name}} / {{industry}} / {{service_types}}", p)
	assert.Equal(t, "Acme Corp / Healthcare / audit, advisory", got)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences(`{"a":1}`))
}
