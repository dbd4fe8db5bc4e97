package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/yokitheyo/pagesmith/internal/api"
	"github.com/yokitheyo/pagesmith/internal/attachment"
	"github.com/yokitheyo/pagesmith/internal/config"
	"github.com/yokitheyo/pagesmith/internal/delivery"
	"github.com/yokitheyo/pagesmith/internal/generate"
	"github.com/yokitheyo/pagesmith/internal/logging"
	"github.com/yokitheyo/pagesmith/internal/taskmgr"
	"github.com/yokitheyo/pagesmith/internal/taskstore"
	"github.com/yokitheyo/pagesmith/internal/vcs"
	"github.com/yokitheyo/pagesmith/internal/worker"
	"github.com/yokitheyo/pagesmith/internal/workflow"
)

func main() {
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.Log.Level)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos, err := vcs.NewGitHub(cfg.GitHubPAT, &http.Client{Timeout: time.Minute},
		vcs.WithGitHubLogger(logging.Component(logger, "github")))
	if err != nil {
		return err
	}
	gen, err := generate.New(ctx, generate.Config{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.Model.BaseURL,
		Model:   cfg.Model.Name,
	}, logging.Component(logger, "generate"))
	if err != nil {
		return err
	}
	submitter := delivery.NewSubmitter(
		delivery.WithMaxAttempts(cfg.Delivery.MaxAttempts),
		delivery.WithAttemptTimeout(cfg.Delivery.AttemptTimeout.Std()),
		delivery.WithInitialDelay(cfg.Delivery.InitialDelay.Std()),
		delivery.WithLogger(logging.Component(logger, "delivery")),
	)
	resolver := attachment.NewResolver(cfg.Attachments.MaxBytes, cfg.Attachments.AllowedContentTypes, nil)

	store := taskstore.NewMemoryStore()
	engine := workflow.NewEngine(store, gen, repos, submitter,
		workflow.WithResolver(resolver),
		workflow.WithLogger(logging.Component(logger, "workflow")),
	)

	// Runs are not cancelled by the signal; Shutdown drains them.
	pool := worker.New(context.WithoutCancel(ctx), cfg.Workers.Count, cfg.Workers.QueueSize,
		logging.Component(logger, "worker"))
	tm := taskmgr.NewTaskManager(cfg.Secret, cfg.RepoName, store, engine, pool,
		taskmgr.WithLogger(logging.Component(logger, "taskmgr")))

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), logging.GinMiddleware(logging.Component(logger, "http")))
	api.RegisterHandlers(r, tm, logging.Component(logger, "api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Int("port", cfg.Server.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		store.Sweep(cfg.Tasks.Retention.Std(), cfg.Tasks.SweepInterval.Std(), gctx.Done(),
			logging.Component(logger, "taskstore"))
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("http shutdown")
		}
		if err := pool.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Int("pending", pool.Pending()).Msg("workers did not drain before timeout")
		}
		return nil
	})
	return g.Wait()
}
