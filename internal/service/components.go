// File: internal/service/components.go
package service

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/inbox-sweeper/api/schemas"
	"github.com/xkilldash9x/inbox-sweeper/internal/batch"
	"github.com/xkilldash9x/inbox-sweeper/internal/browser"
	"github.com/xkilldash9x/inbox-sweeper/internal/extractor"
	"github.com/xkilldash9x/inbox-sweeper/internal/mail"
	"github.com/xkilldash9x/inbox-sweeper/internal/store"
	"github.com/xkilldash9x/inbox-sweeper/internal/unsubscribe"
)

// Components holds every initialized service of the sweeper.
// Shutdown releases them in reverse dependency order.
type Components struct {
	Session      *browser.Session
	Classifier   schemas.ContentClassifier
	Orchestrator *unsubscribe.Orchestrator
	Runner       *batch.Runner
	Extractor    *extractor.Extractor
	Mail         *mail.Gateway
	Jobs         *batch.JobManager

	// Store and EmailBatch are nil when no database was requested.
	Store      *store.Store
	EmailBatch *batch.EmailBatch
	DBPool     *pgxpool.Pool

	logger *zap.Logger
}

// Shutdown gracefully closes all components. It is safe to call on a
// partially built set.
func (c *Components) Shutdown() {
	logger := c.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Beginning components shutdown sequence.")

	// 1. Stop taking and running jobs so nothing new touches the browser.
	if c.Jobs != nil {
		c.Jobs.Stop()
		logger.Debug("Job manager stopped.")
	}

	// 2. Close the shared browser.
	if c.Session != nil {
		c.Session.Release()
		logger.Debug("Browser session released.")
	}

	// 3. Close the database connection pool.
	if c.DBPool != nil {
		c.DBPool.Close()
		logger.Debug("Database connection pool closed.")
	}

	logger.Info("All components shut down successfully.")
}
