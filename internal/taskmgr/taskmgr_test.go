package taskmgr

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yokitheyo/pagesmith/internal/model"
	"github.com/yokitheyo/pagesmith/internal/taskstore"
	"github.com/yokitheyo/pagesmith/internal/worker"
	"github.com/yokitheyo/pagesmith/internal/workflow"
)

type recordingRunner struct {
	mu      sync.Mutex
	created []workflow.Job
	updated []workflow.Job
}

func (r *recordingRunner) CreateProject(_ context.Context, job workflow.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, job)
}

func (r *recordingRunner) UpdateProject(_ context.Context, job workflow.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, job)
}

// inlineScheduler runs jobs on the caller's goroutine, or refuses them.
type inlineScheduler struct {
	err  error
	jobs int
}

func (s *inlineScheduler) Submit(job worker.Job) error {
	if s.err != nil {
		return s.err
	}
	s.jobs++
	job(context.Background())
	return nil
}

func validRequest(round int) model.ProjectRequest {
	return model.ProjectRequest{
		Secret:        "s3cret",
		Email:         "student@example.com",
		Task:          "captcha-solver",
		Round:         round,
		Nonce:         "ab12",
		Brief:         "Build a captcha solver page",
		Checks:        []string{"page loads"},
		EvaluationURL: "https://eval.example.com/notify",
	}
}

func newManager(sched Scheduler) (*TaskManager, *taskstore.MemoryStore, *recordingRunner) {
	store := taskstore.NewMemoryStore()
	runner := &recordingRunner{}
	tm := NewTaskManager("s3cret", "my-site", store, runner, sched, WithIDGenerator(func() string { return "task-1" }))
	return tm, store, runner
}

func TestSubmit_RoundOneCreates(t *testing.T) {
	sched := &inlineScheduler{}
	tm, store, runner := newManager(sched)

	acc, err := tm.Submit(validRequest(1))
	require.NoError(t, err)
	assert.Equal(t, "task-1", acc.TaskID)
	assert.Equal(t, "/tasks/task-1/status", acc.StatusURL)
	assert.NotEmpty(t, acc.Message)

	require.Len(t, runner.created, 1)
	assert.Empty(t, runner.updated)
	job := runner.created[0]
	assert.Equal(t, "task-1", job.TaskID)
	assert.Equal(t, "my-site", job.RepoName)
	assert.Equal(t, "Build a captcha solver page", job.Brief)
	assert.Equal(t, "https://eval.example.com/notify", job.EvalURL)
	assert.Equal(t, model.Identity{Email: "student@example.com", Task: "captcha-solver", Round: 1, Nonce: "ab12"}, job.Identity)

	rec, ok := store.Get("task-1")
	require.True(t, ok)
	assert.Equal(t, model.StatusPending, rec.Status)
	assert.Equal(t, "Task has been queued.", rec.Details)
}

func TestSubmit_LaterRoundsUpdate(t *testing.T) {
	tm, _, runner := newManager(&inlineScheduler{})
	_, err := tm.Submit(validRequest(3))
	require.NoError(t, err)
	assert.Empty(t, runner.created)
	require.Len(t, runner.updated, 1)
	assert.Equal(t, 3, runner.updated[0].Identity.Round)
}

func TestSubmit_BadSecretCreatesNoTask(t *testing.T) {
	sched := &inlineScheduler{}
	tm, store, _ := newManager(sched)
	req := validRequest(1)
	req.Secret = "wrong"

	_, err := tm.Submit(req)
	assert.True(t, errors.Is(err, ErrAuth))
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 0, sched.jobs)
}

func TestSubmit_Validation(t *testing.T) {
	cases := map[string]struct {
		mutate func(*model.ProjectRequest)
		want   error
	}{
		"zero round":       {func(r *model.ProjectRequest) { r.Round = 0 }, ErrInvalidRound},
		"negative round":   {func(r *model.ProjectRequest) { r.Round = -2 }, ErrInvalidRound},
		"missing eval url": {func(r *model.ProjectRequest) { r.EvaluationURL = "" }, ErrInvalidEvalURL},
		"ftp eval url":     {func(r *model.ProjectRequest) { r.EvaluationURL = "ftp://x/y" }, ErrInvalidEvalURL},
		"relative url":     {func(r *model.ProjectRequest) { r.EvaluationURL = "/notify" }, ErrInvalidEvalURL},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			tm, store, _ := newManager(&inlineScheduler{})
			req := validRequest(1)
			tc.mutate(&req)
			_, err := tm.Submit(req)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
			assert.Equal(t, 0, store.Len())
		})
	}
}

func TestSubmit_QueueFullFailsTask(t *testing.T) {
	tm, store, runner := newManager(&inlineScheduler{err: worker.ErrQueueFull})

	_, err := tm.Submit(validRequest(1))
	assert.True(t, errors.Is(err, ErrQueueFull))
	assert.Empty(t, runner.created)

	rec, ok := store.Get("task-1")
	require.True(t, ok)
	assert.Equal(t, model.StatusFailed, rec.Status)
	assert.Equal(t, "rejected: worker queue full", rec.Details)
}

func TestSubmit_ClosedPoolReportsShutdown(t *testing.T) {
	tm, store, runner := newManager(&inlineScheduler{err: worker.ErrClosed})

	_, err := tm.Submit(validRequest(1))
	assert.True(t, errors.Is(err, ErrShuttingDown))
	assert.False(t, errors.Is(err, ErrQueueFull))
	assert.Empty(t, runner.created)

	rec, ok := store.Get("task-1")
	require.True(t, ok)
	assert.Equal(t, model.StatusFailed, rec.Status)
	assert.Equal(t, "rejected: server shutting down", rec.Details)
}

func TestSubmit_RejectionLogsStoreError(t *testing.T) {
	var buf bytes.Buffer
	store := &refusingStore{MemoryStore: taskstore.NewMemoryStore()}
	tm := NewTaskManager("s3cret", "my-site", store, &recordingRunner{}, &inlineScheduler{err: worker.ErrQueueFull},
		WithIDGenerator(func() string { return "task-1" }),
		WithLogger(zerolog.New(&buf)))

	_, err := tm.Submit(validRequest(1))
	assert.True(t, errors.Is(err, ErrQueueFull))
	assert.Contains(t, buf.String(), "failed to record rejected task")
}

// refusingStore accepts the PENDING record and refuses everything after it.
type refusingStore struct {
	*taskstore.MemoryStore
}

func (s *refusingStore) Set(id string, rec model.Record) error {
	if rec.Status != model.StatusPending {
		return errors.New("store unavailable")
	}
	return s.MemoryStore.Set(id, rec)
}

func TestSubmit_UniqueIDs(t *testing.T) {
	store := taskstore.NewMemoryStore()
	tm := NewTaskManager("s3cret", "my-site", store, &recordingRunner{}, &inlineScheduler{})
	a, err := tm.Submit(validRequest(1))
	require.NoError(t, err)
	b, err := tm.Submit(validRequest(1))
	require.NoError(t, err)
	assert.NotEqual(t, a.TaskID, b.TaskID)
	assert.Equal(t, 2, store.Len())
}

func TestGetTask(t *testing.T) {
	tm, _, _ := newManager(&inlineScheduler{})
	_, err := tm.GetTask("nope")
	assert.True(t, errors.Is(err, ErrTaskNotFound))

	_, err = tm.Submit(validRequest(1))
	require.NoError(t, err)
	rec, err := tm.GetTask("task-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, rec.Status)
}
