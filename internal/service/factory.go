// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/inbox-sweeper/internal/actions"
	"github.com/xkilldash9x/inbox-sweeper/internal/batch"
	"github.com/xkilldash9x/inbox-sweeper/internal/browser"
	"github.com/xkilldash9x/inbox-sweeper/internal/config"
	"github.com/xkilldash9x/inbox-sweeper/internal/extractor"
	"github.com/xkilldash9x/inbox-sweeper/internal/llmclient"
	"github.com/xkilldash9x/inbox-sweeper/internal/mail"
	"github.com/xkilldash9x/inbox-sweeper/internal/patterns"
	"github.com/xkilldash9x/inbox-sweeper/internal/probe"
	"github.com/xkilldash9x/inbox-sweeper/internal/store"
	"github.com/xkilldash9x/inbox-sweeper/internal/unsubscribe"
)

// Options selects which optional parts Build initializes.
type Options struct {
	// WithStore connects to the database and builds the email-backed batch.
	WithStore bool
	// WithJobs starts the background job manager.
	WithJobs bool
}

// Build handles the dependency injection and initialization of all components.
// The browser is not launched here; it starts lazily on first use.
func Build(ctx context.Context, cfg config.Interface, opts Options, logger *zap.Logger) (*Components, error) {
	components := &Components{logger: logger}

	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Browser session
	components.Session = browser.NewSession(cfg.Browser(), cfg.Timeouts(), logger)
	logger.Debug("Browser session initialized.")

	// 2. Content classifier (optional)
	classifier, err := llmclient.NewContentClassifier(ctx, cfg.LLM(), logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize content classifier: %w", err)
		return nil, initializationErr
	}
	if classifier == nil {
		logger.Info("No LLM API key configured, AI fallback is disabled.")
	}
	components.Classifier = classifier

	// 3. Orchestrator and batch runner
	components.Orchestrator = unsubscribe.NewOrchestrator(
		components.Session,
		probe.New(cfg.Probe(), logger),
		patterns.NewMatcher(cfg.Probe(), cfg.Timeouts(), logger),
		actions.NewExecutor(cfg.Timeouts(), logger),
		classifier,
		cfg.Timeouts(),
		logger,
	)
	components.Runner = batch.NewRunner(components.Orchestrator, components.Session, logger)
	components.Extractor = extractor.New(logger)
	components.Mail = mail.NewGateway(cfg.Mail(), logger)
	logger.Debug("Unsubscribe pipeline initialized.")

	// 4. Database and email-backed batch
	if opts.WithStore {
		pool, err := newPool(ctx, cfg.Database())
		if err != nil {
			initializationErr = err
			return nil, initializationErr
		}
		components.DBPool = pool

		dbStore, err := store.New(ctx, pool, logger)
		if err != nil {
			initializationErr = fmt.Errorf("failed to initialize database store: %w", err)
			return nil, initializationErr
		}
		if err := dbStore.EnsureSchema(ctx); err != nil {
			initializationErr = err
			return nil, initializationErr
		}
		components.Store = dbStore

		resolver := batch.NewResolver(dbStore, components.Mail, components.Extractor, cfg.Batch().ResolveConcurrency, logger)
		components.EmailBatch = batch.NewEmailBatch(resolver, components.Runner, dbStore, cfg.Batch().RecordOutcomes, logger)
		logger.Debug("Store and email batch initialized.")
	}

	// 5. Job manager
	if opts.WithJobs {
		components.Jobs = batch.NewJobManager(cfg.Server().JobRetention, 0, logger)
		components.Jobs.Start(ctx)
		logger.Debug("Job manager started.")
	}

	logger.Info("All components initialized successfully.")
	return components, nil
}

func newPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is not configured (hint: check SWEEPER_DATABASE_URL)")
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}
	return pool, nil
}
