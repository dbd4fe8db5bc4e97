package taskmgr

import (
	"context"
	"crypto/subtle"
	"net/url"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/yokitheyo/pagesmith/internal/model"
	"github.com/yokitheyo/pagesmith/internal/taskstore"
	"github.com/yokitheyo/pagesmith/internal/worker"
	"github.com/yokitheyo/pagesmith/internal/workflow"
)

var (
	ErrAuth           = errors.New("invalid secret")
	ErrInvalidRound   = errors.New("round must be 1 or greater")
	ErrInvalidEvalURL = errors.New("evaluation_url must be an absolute http(s) url")
	ErrQueueFull      = errors.New("server is busy, try again later")
	ErrShuttingDown   = errors.New("server is shutting down")
	ErrTaskNotFound   = errors.New("task not found")
)

const (
	queuedDetails   = "Task has been queued."
	rejectedDetails = "rejected: worker queue full"
	closedDetails   = "rejected: server shutting down"
	acceptedMessage = "Request received. Project generation has started in the background."
)

type Runner interface {
	CreateProject(ctx context.Context, job workflow.Job)
	UpdateProject(ctx context.Context, job workflow.Job)
}

type Scheduler interface {
	Submit(job worker.Job) error
}

// Accepted is returned for a request that was queued.
type Accepted struct {
	Message   string `json:"message"`
	TaskID    string `json:"task_id"`
	StatusURL string `json:"status_url"`
}

type TaskManager struct {
	secret   string
	repoName string
	store    taskstore.Store
	runner   Runner
	pool     Scheduler
	newID    func() string
	logger   zerolog.Logger
}

type Option func(*TaskManager)

func WithIDGenerator(fn func() string) Option {
	return func(tm *TaskManager) {
		if fn != nil {
			tm.newID = fn
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(tm *TaskManager) { tm.logger = l }
}

func NewTaskManager(secret, repoName string, store taskstore.Store, runner Runner, pool Scheduler, opts ...Option) *TaskManager {
	tm := &TaskManager{
		secret:   secret,
		repoName: repoName,
		store:    store,
		runner:   runner,
		pool:     pool,
		newID:    func() string { return uuid.New().String() },
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(tm)
	}
	return tm
}

// Submit authenticates req, records a PENDING task and hands the workflow to
// the pool without waiting for it. Round 1 creates the repository, later
// rounds update it.
func (tm *TaskManager) Submit(req model.ProjectRequest) (Accepted, error) {
	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(tm.secret)) != 1 {
		tm.logger.Warn().Str("email", req.Email).Msg("authentication failed")
		return Accepted{}, ErrAuth
	}
	if req.Round < 1 {
		return Accepted{}, errors.Wrapf(ErrInvalidRound, "got %d", req.Round)
	}
	if !validEvalURL(req.EvaluationURL) {
		return Accepted{}, ErrInvalidEvalURL
	}

	id := tm.newID()
	if err := tm.store.Set(id, model.Pending(queuedDetails)); err != nil {
		return Accepted{}, errors.Wrap(err, "record task")
	}

	job := workflow.Job{
		TaskID:      id,
		RepoName:    tm.repoName,
		Brief:       req.Brief,
		Attachments: req.Attachments,
		Checks:      req.Checks,
		EvalURL:     req.EvaluationURL,
		Identity:    req.Identity(),
	}
	run := tm.runner.CreateProject
	if req.Round > 1 {
		run = tm.runner.UpdateProject
	}

	if err := tm.pool.Submit(func(ctx context.Context) { run(ctx, job) }); err != nil {
		return Accepted{}, tm.reject(id, err)
	}

	tm.logger.Info().
		Str("task_id", id).
		Str("task", req.Task).
		Int("round", req.Round).
		Msg("task queued")

	return Accepted{
		Message:   acceptedMessage,
		TaskID:    id,
		StatusURL: StatusURL(id),
	}, nil
}

// reject fails a task the pool refused and maps the refusal for the caller.
func (tm *TaskManager) reject(id string, cause error) error {
	details, err := rejectedDetails, ErrQueueFull
	if errors.Is(cause, worker.ErrClosed) {
		details, err = closedDetails, ErrShuttingDown
	}
	if serr := tm.store.Set(id, model.Failed(details)); serr != nil {
		tm.logger.Error().Err(serr).Str("task_id", id).Msg("failed to record rejected task")
	}
	tm.logger.Error().Err(cause).Str("task_id", id).Msg("task rejected")
	return errors.Wrap(err, cause.Error())
}

func (tm *TaskManager) GetTask(taskID string) (model.Record, error) {
	rec, ok := tm.store.Get(taskID)
	if !ok {
		return model.Record{}, ErrTaskNotFound
	}
	return rec, nil
}

func StatusURL(taskID string) string {
	return "/tasks/" + taskID + "/status"
}

func validEvalURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
