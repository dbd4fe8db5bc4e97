// Package workflow runs the create and update pipelines that turn a brief
// into a published page.
package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/yokitheyo/pagesmith/internal/attachment"
	"github.com/yokitheyo/pagesmith/internal/delivery"
	"github.com/yokitheyo/pagesmith/internal/model"
	"github.com/yokitheyo/pagesmith/internal/taskstore"
	"github.com/yokitheyo/pagesmith/internal/vcs"
)

const (
	indexPath  = "index.html"
	readmePath = "README.md"

	createMessage = "Initial commit of AI-generated code and README"
	updateMessage = "chore: Update AI-generated code and documentation"
)

type Generator interface {
	HTML(ctx context.Context, brief string, files []attachment.File, checks []string) (string, error)
	Readme(ctx context.Context, brief, html string) (string, error)
	ReviseHTML(ctx context.Context, brief, existing string, files []attachment.File, checks []string) (string, error)
	ReviseReadme(ctx context.Context, brief, existing, html string) (string, error)
}

type Deliverer interface {
	Submit(ctx context.Context, url string, payload any) delivery.Outcome
}

type AttachmentResolver interface {
	Resolve(ctx context.Context, atts []model.Attachment) ([]attachment.File, []string)
}

// Job is everything one workflow run needs.
type Job struct {
	TaskID      string
	RepoName    string
	Brief       string
	Attachments []model.Attachment
	Checks      []string
	EvalURL     string
	Identity    model.Identity
}

type Engine struct {
	store    taskstore.Store
	gen      Generator
	repos    vcs.Provider
	deliver  Deliverer
	resolver AttachmentResolver
	locks    *keyedMutex
	logger   zerolog.Logger
}

type Option func(*Engine)

func WithResolver(r AttachmentResolver) Option {
	return func(e *Engine) { e.resolver = r }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func NewEngine(store taskstore.Store, gen Generator, repos vcs.Provider, deliver Deliverer, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		gen:     gen,
		repos:   repos,
		deliver: deliver,
		locks:   newKeyedMutex(),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// run is the mutable state threaded through the steps of one workflow run.
type run struct {
	job       Job
	repo      vcs.Repository
	files     []attachment.File
	skipped   []string
	oldHTML   string
	oldReadme string
	html      string
	readme    string
	commitSHA string
	outcome   delivery.Outcome
}

type step struct {
	details string
	exec    func(ctx context.Context, r *run) error
}

// plan is one workflow. steps run while the repository lock is held;
// deliver runs after it is released.
type plan struct {
	steps      []step
	deliver    step
	failPrefix string
	done       string
}

// CreateProject creates the repository, generates and commits the page,
// enables Pages and reports to the evaluation URL.
func (e *Engine) CreateProject(ctx context.Context, job Job) {
	e.execute(ctx, job, plan{
		failPrefix: "An error occurred",
		done:       "Project created, hosted, and committed successfully.",
		steps: []step{
			{"Initializing services", e.resolveAttachments},
			{fmt.Sprintf("Creating repository '%s'", job.RepoName), e.createRepo},
			{"Generating code with AI", e.generateHTML},
			{"Generating README.md with AI", e.generateReadme},
			{"Committing generated code...", e.commit(createMessage)},
			{"Enabling GitHub Pages hosting", e.enablePages},
		},
		deliver: step{"Posting to evaluation url", e.submit},
	})
}

// UpdateProject revises the page in an existing repository. Pages is
// assumed to be enabled by the earlier create run.
func (e *Engine) UpdateProject(ctx context.Context, job Job) {
	e.execute(ctx, job, plan{
		failPrefix: "An error occurred during update",
		done:       "Project updated and redeployed successfully.",
		steps: []step{
			{"Initializing update process", e.resolveAttachments},
			{fmt.Sprintf("Fetching existing repository '%s'", job.RepoName), e.fetchRepo},
			{"Fetching current files from GitHub", e.fetchFiles},
			{"Generating updated HTML code with AI", e.reviseHTML},
			{"Generating updated README.md with AI", e.reviseReadme},
			{"Committing updates to GitHub", e.commit(updateMessage)},
		},
		deliver: step{"Posting to Eval url", e.submit},
	})
}

func (e *Engine) execute(ctx context.Context, job Job, p plan) {
	log := e.logger.With().Str("task_id", job.TaskID).Str("repo", job.RepoName).Logger()

	r := &run{job: job}
	defer func() {
		if v := recover(); v != nil {
			err := &StepError{Kind: KindPanic, Err: errors.Errorf("panic: %v", v)}
			log.Error().Interface("panic", v).Msg("workflow panicked")
			e.set(log, job.TaskID, e.failure(p, r, err))
		}
	}()

	if err := e.runLocked(ctx, log, r, p.steps); err != nil {
		e.set(log, job.TaskID, e.failure(p, r, err))
		return
	}
	if err := e.runStep(ctx, log, r, p.deliver); err != nil {
		e.set(log, job.TaskID, e.failure(p, r, err))
		return
	}

	rec := model.Record{
		Status:            model.StatusSuccess,
		Details:           p.done,
		RepoURL:           r.repo.HTMLURL,
		PagesURL:          r.repo.PagesURL(),
		CommitSHA:         r.commitSHA,
		DeliveryStatus:    model.DeliveryExhausted,
		AttachmentsFailed: r.skipped,
	}
	if r.outcome.Delivered {
		rec.DeliveryStatus = model.DeliveryDelivered
	}
	e.set(log, job.TaskID, rec)
	log.Info().Str("pages_url", rec.PagesURL).Str("delivery", string(rec.DeliveryStatus)).Msg("task completed")
}

// runLocked runs steps in order while holding the lock for the repository.
func (e *Engine) runLocked(ctx context.Context, log zerolog.Logger, r *run, steps []step) error {
	unlock := e.locks.Lock(r.job.RepoName)
	defer unlock()

	for _, s := range steps {
		if err := e.runStep(ctx, log, r, s); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) runStep(ctx context.Context, log zerolog.Logger, r *run, s step) error {
	e.set(log, r.job.TaskID, model.Record{
		Status:            model.StatusInProgress,
		Details:           s.details,
		AttachmentsFailed: r.skipped,
	})
	log.Info().Str("step", s.details).Msg("workflow step")
	if err := s.exec(ctx, r); err != nil {
		log.Error().Err(err).Str("step", s.details).Msg("task failed")
		return err
	}
	return nil
}

func (e *Engine) failure(p plan, r *run, err error) model.Record {
	return model.Record{
		Status:            model.StatusFailed,
		Details:           fmt.Sprintf("%s: %v", p.failPrefix, err),
		AttachmentsFailed: r.skipped,
	}
}

func (e *Engine) set(log zerolog.Logger, taskID string, rec model.Record) {
	if err := e.store.Set(taskID, rec); err != nil {
		log.Warn().Err(err).Str("status", string(rec.Status)).Msg("task store rejected update")
	}
}

func (e *Engine) resolveAttachments(ctx context.Context, r *run) error {
	if e.resolver == nil || len(r.job.Attachments) == 0 {
		return nil
	}
	r.files, r.skipped = e.resolver.Resolve(ctx, r.job.Attachments)
	if len(r.skipped) > 0 {
		e.logger.Warn().Str("task_id", r.job.TaskID).Strs("skipped", r.skipped).Msg("some attachments were skipped")
	}
	return nil
}

func (e *Engine) createRepo(ctx context.Context, r *run) error {
	repo, err := e.repos.CreateRepo(ctx, r.job.RepoName)
	if err != nil {
		return stepErr(KindRepoCreation, err)
	}
	r.repo = repo
	return nil
}

func (e *Engine) fetchRepo(ctx context.Context, r *run) error {
	repo, err := e.repos.GetRepo(ctx, r.job.RepoName)
	if err != nil {
		return stepErr(KindRepoNotFound, err)
	}
	r.repo = repo
	return nil
}

func (e *Engine) fetchFiles(ctx context.Context, r *run) error {
	var err error
	if r.oldHTML, err = e.readFile(ctx, r.repo, indexPath); err != nil {
		return err
	}
	r.oldReadme, err = e.readFile(ctx, r.repo, readmePath)
	return err
}

func (e *Engine) readFile(ctx context.Context, repo vcs.Repository, path string) (string, error) {
	content, err := e.repos.ReadFile(ctx, repo, path)
	if err != nil {
		return "", stepErr(KindContentFetch, errors.Wrapf(err, "failed to fetch content for '%s'", path))
	}
	return content, nil
}

func (e *Engine) generateHTML(ctx context.Context, r *run) (err error) {
	r.html, err = e.gen.HTML(ctx, r.job.Brief, r.files, r.job.Checks)
	return checkGenerated(r.html, err, "AI model returned empty code")
}

func (e *Engine) generateReadme(ctx context.Context, r *run) (err error) {
	r.readme, err = e.gen.Readme(ctx, r.job.Brief, r.html)
	return checkGenerated(r.readme, err, "AI model returned empty readme")
}

func (e *Engine) reviseHTML(ctx context.Context, r *run) (err error) {
	r.html, err = e.gen.ReviseHTML(ctx, r.job.Brief, r.oldHTML, r.files, r.job.Checks)
	return checkGenerated(r.html, err, "AI model returned empty updated code")
}

func (e *Engine) reviseReadme(ctx context.Context, r *run) (err error) {
	r.readme, err = e.gen.ReviseReadme(ctx, r.job.Brief, r.oldReadme, r.html)
	return checkGenerated(r.readme, err, "AI model returned empty updated README.md")
}

func checkGenerated(out string, err error, emptyMsg string) error {
	if err != nil {
		return stepErr(KindGeneration, err)
	}
	if strings.TrimSpace(out) == "" {
		return stepErr(KindEmptyGeneration, errors.New(emptyMsg))
	}
	return nil
}

func (e *Engine) commit(message string) func(context.Context, *run) error {
	return func(ctx context.Context, r *run) error {
		files := make(map[string]string, len(r.files)+2)
		for _, f := range r.files {
			files[f.Name] = string(f.Data)
		}
		files[indexPath] = r.html
		files[readmePath] = r.readme

		sha, err := e.repos.Commit(ctx, r.repo, vcs.CommitRequest{Files: files, Message: message})
		if err != nil {
			return stepErr(KindCommit, errors.Wrap(err, "commit failed"))
		}
		r.commitSHA = sha
		return nil
	}
}

func (e *Engine) enablePages(ctx context.Context, r *run) error {
	return stepErr(KindHosting, e.repos.EnablePages(ctx, r.repo))
}

// submit always succeeds; the outcome lands in the terminal record.
func (e *Engine) submit(ctx context.Context, r *run) error {
	payload := model.NewEvaluationPayload(r.job.Identity, r.repo.HTMLURL, r.commitSHA, r.repo.PagesURL())
	r.outcome = e.deliver.Submit(ctx, r.job.EvalURL, payload)
	return nil
}
