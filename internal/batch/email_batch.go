package batch

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/inbox-sweeper/api/schemas"
)

// EmailBatch resolves stored emails to links, runs them, and optionally
// records every outcome in the repository.
type EmailBatch struct {
	resolver *Resolver
	runner   *Runner
	repo     schemas.Repository
	record   bool
	logger   *zap.Logger
}

// NewEmailBatch creates an email-backed batch. When record is true each item
// outcome is written to the repository after the batch completes.
func NewEmailBatch(resolver *Resolver, runner *Runner, repo schemas.Repository, record bool, logger *zap.Logger) *EmailBatch {
	return &EmailBatch{
		resolver: resolver,
		runner:   runner,
		repo:     repo,
		record:   record,
		logger:   logger.Named("email_batch"),
	}
}

// RunEmailBatch processes the given emails of one user.
func (e *EmailBatch) RunEmailBatch(ctx context.Context, userID string, emailIDs []string, reporter schemas.ProgressReporter) (schemas.BatchResult, error) {
	e.logger.Info("Resolving unsubscribe links.", zap.String("user_id", userID), zap.Int("emails", len(emailIDs)))
	items := e.resolver.Resolve(ctx, userID, emailIDs)

	res, err := e.runner.RunBatch(ctx, items, reporter)
	if err != nil {
		return res, err
	}

	if e.record && e.repo != nil {
		for _, item := range res.PerItem {
			if err := e.repo.RecordOutcome(ctx, userID, item); err != nil {
				e.logger.Warn("Failed to record unsubscribe outcome.", zap.String("email_id", item.EmailID), zap.Error(err))
			}
		}
	}
	return res, nil
}
