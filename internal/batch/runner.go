// Package batch runs unsubscribe attempts over many emails and tracks them
// as jobs.
package batch

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/xkilldash9x/inbox-sweeper/api/schemas"
)

// Per-item failure messages.
const (
	MsgEmailNotFound   = "Email not found"
	MsgUserNotFound    = "User not found"
	MsgNoLinks         = "No unsubscribe links found"
	MsgNoSuitableLink  = "No suitable unsubscribe link found"
	MsgMailtoUnhandled = "Mailto links not supported yet"
)

// Runner processes batch items strictly one at a time against the shared
// browser, which it releases exactly once when the batch ends.
type Runner struct {
	unsub  schemas.Unsubscriber
	host   schemas.BrowserHost
	logger *zap.Logger
}

// NewRunner creates a batch runner.
func NewRunner(unsub schemas.Unsubscriber, host schemas.BrowserHost, logger *zap.Logger) *Runner {
	return &Runner{unsub: unsub, host: host, logger: logger.Named("batch_runner")}
}

// Percent maps completed items to a whole percentage.
func Percent(completed, total int) int {
	if total <= 0 {
		return 100
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}

// RunBatch processes items in order. Only a browser launch failure is
// returned as an error; every per-item failure lands in the result.
func (r *Runner) RunBatch(ctx context.Context, items []schemas.BatchItem, reporter schemas.ProgressReporter) (schemas.BatchResult, error) {
	defer r.host.Release()

	report := func(p int) {
		if reporter != nil {
			reporter.ReportProgress(p)
		}
	}
	report(0)

	if needsBrowser(items) {
		if err := r.host.Launch(ctx); err != nil {
			r.logger.Error("Browser launch failed, aborting batch.", zap.Error(err))
			return schemas.BatchResult{}, fmt.Errorf("failed to launch browser: %w", err)
		}
	}

	r.logger.Info("Processing unsubscribe batch.", zap.Int("total", len(items)))
	outcomes := make([]schemas.ItemOutcome, 0, len(items))
	for i, item := range items {
		out := r.processItem(ctx, item)
		outcomes = append(outcomes, out)
		r.logger.Info("Batch item finished.",
			zap.String("email_id", item.EmailID),
			zap.Bool("success", out.Success),
			zap.String("message", out.Message),
			zap.String("error", out.ErrorMessage),
		)
		report(Percent(i+1, len(items)))
	}
	if len(items) == 0 {
		report(100)
	}

	res := schemas.NewBatchResult(outcomes)
	r.logger.Info("Batch complete.",
		zap.Int("total", res.Total),
		zap.Int("successful", res.Successful),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func needsBrowser(items []schemas.BatchItem) bool {
	for _, it := range items {
		if it.ResolveErr == "" && it.Link != nil && it.Link.Kind != schemas.LinkMailto {
			return true
		}
	}
	return false
}

// processItem turns one item into an outcome. Panics are contained to the
// item so the rest of the batch still runs.
func (r *Runner) processItem(ctx context.Context, item schemas.BatchItem) (out schemas.ItemOutcome) {
	out.EmailID = item.EmailID
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Recovered from panic while processing batch item.", zap.String("email_id", item.EmailID), zap.Any("panic", rec))
			out.UnsubscribeOutcome = schemas.UnsubscribeOutcome{ErrorMessage: fmt.Sprintf("panic: %v", rec)}
		}
	}()

	switch {
	case item.ResolveErr != "":
		out.ErrorMessage = item.ResolveErr
		return out
	case item.Link == nil:
		out.ErrorMessage = MsgNoSuitableLink
		return out
	}

	out.Link = item.Link.URL
	if item.Link.Kind == schemas.LinkMailto {
		out.ErrorMessage = MsgMailtoUnhandled
		return out
	}
	if err := ctx.Err(); err != nil {
		out.ErrorMessage = err.Error()
		return out
	}

	out.UnsubscribeOutcome = r.unsub.UnsubscribeFromLink(ctx, item.Link.URL, item.OwnerEmail)
	return out
}
