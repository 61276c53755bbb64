// Package unsubscribe drives a single unsubscribe attempt from navigation to
// a definitive outcome.
package unsubscribe

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/inbox-sweeper/api/schemas"
	"github.com/xkilldash9x/inbox-sweeper/internal/actions"
	"github.com/xkilldash9x/inbox-sweeper/internal/browser"
	"github.com/xkilldash9x/inbox-sweeper/internal/config"
	"github.com/xkilldash9x/inbox-sweeper/internal/patterns"
	"github.com/xkilldash9x/inbox-sweeper/internal/probe"
)

// Stage names the state an attempt ended in.
type Stage string

const (
	StageNavigating       Stage = "navigating"
	StageChallengeCheck   Stage = "challenge_check"
	StagePreSuccessCheck  Stage = "pre_success_check"
	StagePatternAttempt   Stage = "pattern_attempt"
	StageAiAnalysis       Stage = "ai_analysis"
	StageAiExecution      Stage = "ai_execution"
	StagePostSuccessCheck Stage = "post_success_check"
	StageAborted          Stage = "aborted"
)

// Outcome messages.
const (
	MsgAutoDetected     = "Successfully unsubscribed (auto-detected)"
	MsgPatternConfirmed = "Successfully completed unsubscribe form"
	MsgPatternAssumed   = "Clicked unsubscribe button (assumed success)"
	MsgAiConfirmed      = "Successfully unsubscribed using AI-powered form filling"
	MsgAiAssumed        = "Completed AI-suggested actions (assumed success)"
	MsgManualVisit      = "Could not automatically unsubscribe. Please visit the link manually."
	MsgChallengeBlocked = "Page protected by Cloudflare. Please visit the link manually."
	MsgProcessingFailed = "Failed to process unsubscribe link"
)

// PageOpener hands out fresh isolated pages on the shared browser.
type PageOpener interface {
	OpenPage(ctx context.Context) (browser.Page, error)
}

// Orchestrator runs the per-link state machine. It never closes the shared
// browser; only the pages it opens.
type Orchestrator struct {
	pages      PageOpener
	probe      *probe.Probe
	matcher    *patterns.Matcher
	executor   *actions.Executor
	classifier schemas.ContentClassifier
	timeouts   config.TimeoutConfig
	logger     *zap.Logger
}

var _ schemas.Unsubscriber = (*Orchestrator)(nil)

// NewOrchestrator wires the pipeline. classifier may be nil, which disables
// the AI step.
func NewOrchestrator(
	pages PageOpener,
	pr *probe.Probe,
	matcher *patterns.Matcher,
	executor *actions.Executor,
	classifier schemas.ContentClassifier,
	timeouts config.TimeoutConfig,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		pages:      pages,
		probe:      pr,
		matcher:    matcher,
		executor:   executor,
		classifier: classifier,
		timeouts:   timeouts,
		logger:     logger.Named("orchestrator"),
	}
}

// UnsubscribeFromLink performs one attempt and always returns a definitive
// outcome. ownerEmail may be empty, in which case the AI step is skipped.
func (o *Orchestrator) UnsubscribeFromLink(ctx context.Context, url, ownerEmail string) (outcome schemas.UnsubscribeOutcome) {
	log := o.logger.With(zap.String("url", url))

	page, err := o.pages.OpenPage(ctx)
	if err != nil {
		log.Error("Failed to open page.", zap.Error(err))
		return failed(StageNavigating, err)
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("Recovered from panic during unsubscribe attempt.", zap.Any("panic", r), zap.Stack("stack"))
			outcome = failed(StageAborted, fmt.Errorf("panic: %v", r))
		}
		if cerr := page.Close(); cerr != nil {
			log.Debug("Page close failed.", zap.Error(cerr))
		}
	}()

	outcome, err = o.run(ctx, page, url, ownerEmail, log)
	if err != nil {
		log.Error("Unsubscribe attempt aborted.", zap.String("stage", string(outcome.Stage)), zap.Error(err))
		return failed(Stage(outcome.Stage), err)
	}

	log.Info("Unsubscribe attempt finished.",
		zap.Bool("success", outcome.Success),
		zap.Bool("confirmed", outcome.Confirmed),
		zap.String("stage", outcome.Stage),
		zap.String("message", outcome.Message),
	)
	return outcome
}

// run walks the states. A returned error aborts the attempt; the outcome's
// Stage records where that happened.
func (o *Orchestrator) run(ctx context.Context, page browser.Page, url, ownerEmail string, log *zap.Logger) (schemas.UnsubscribeOutcome, error) {
	at := func(s Stage) schemas.UnsubscribeOutcome { return schemas.UnsubscribeOutcome{Stage: string(s)} }

	// -- Navigating --
	log.Info("Navigating to unsubscribe page.")
	navCtx, cancel := context.WithTimeout(ctx, o.timeouts.Navigation)
	err := page.Navigate(navCtx, url)
	cancel()
	if err != nil {
		return at(StageNavigating), fmt.Errorf("%w: %v", schemas.ErrNavigation, err)
	}
	if err := browser.Sleep(ctx, o.timeouts.PostLoadSettle); err != nil {
		return at(StageNavigating), err
	}

	// -- ChallengeCheck --
	challenged, err := o.detectChallenge(ctx, page, log)
	if err != nil {
		return at(StageChallengeCheck), err
	}
	if challenged {
		log.Info("Challenge page detected, waiting for it to clear.", zap.Duration("grace", o.timeouts.ChallengeGrace))
		if err := browser.Sleep(ctx, o.timeouts.ChallengeGrace); err != nil {
			return at(StageChallengeCheck), err
		}
		if challenged, err = o.detectChallenge(ctx, page, log); err != nil {
			return at(StageChallengeCheck), err
		}
		if challenged {
			log.Warn("Challenge did not clear within the grace period.")
			return schemas.UnsubscribeOutcome{
				Message:          MsgChallengeBlocked,
				ErrorMessage:     schemas.ErrChallengeBlocked.Error(),
				ChallengeBlocked: true,
				Stage:            string(StageChallengeCheck),
			}, nil
		}
	}

	// -- PreSuccessCheck --
	if ok, phrase := o.detectSuccess(ctx, page, log); ok {
		return confirmed(MsgAutoDetected, phrase, StagePreSuccessCheck), nil
	}

	// -- PatternAttempt --
	match, err := o.matcher.Run(ctx, page)
	if err != nil {
		return at(StagePatternAttempt), err
	}
	if match != nil {
		return o.verify(ctx, page, log, MsgPatternConfirmed, MsgPatternAssumed)
	}

	// -- AiAnalysis / AiExecution --
	if ownerEmail != "" && o.classifier != nil {
		outcome, done, err := o.tryClassifier(ctx, page, ownerEmail, log)
		if err != nil || done {
			return outcome, err
		}
	} else {
		log.Debug("Skipping AI analysis.", zap.Bool("has_owner_email", ownerEmail != ""), zap.Bool("has_classifier", o.classifier != nil))
	}

	// -- Manual visit --
	outcome := schemas.UnsubscribeOutcome{Message: MsgManualVisit, Stage: string(StagePostSuccessCheck)}
	outcome.ScreenshotBase64 = o.screenshot(ctx, page, log)
	outcome.ErrorMessage = schemas.ErrNoMatch.Error()
	return outcome, nil
}

func (o *Orchestrator) tryClassifier(ctx context.Context, page browser.Page, ownerEmail string, log *zap.Logger) (schemas.UnsubscribeOutcome, bool, error) {
	log.Info("No pattern matched, asking the classifier.")
	snap, err := o.probe.Snapshot(ctx, page)
	if err != nil {
		log.Warn("Snapshot failed, skipping AI analysis.", zap.Error(err))
		return schemas.UnsubscribeOutcome{}, false, nil
	}

	plan, err := o.classifier.ProposeActions(ctx, snap, ownerEmail)
	if err != nil {
		if ctx.Err() != nil {
			return schemas.UnsubscribeOutcome{Stage: string(StageAiAnalysis)}, false, ctx.Err()
		}
		log.Warn("Classifier failed, treating as no actions.", zap.Error(err))
		plan = schemas.ActionPlan{}
	}
	log.Info("Classifier proposed a plan.", zap.Int("actions", len(plan.Actions)), zap.String("reasoning", plan.Reasoning))
	if len(plan.Actions) == 0 {
		return schemas.UnsubscribeOutcome{}, false, nil
	}

	res := o.executor.Execute(ctx, page, plan.Actions)
	if !res.Success {
		if ctx.Err() != nil {
			return schemas.UnsubscribeOutcome{Stage: string(StageAiExecution)}, false, ctx.Err()
		}
		log.Warn("Action execution failed.", zap.String("message", res.Message))
		return schemas.UnsubscribeOutcome{}, false, nil
	}

	outcome, err := o.verify(ctx, page, log, MsgAiConfirmed, MsgAiAssumed)
	return outcome, true, err
}

// verify re-checks the page after a mutating step. Either way the attempt
// counts as a success; only the message and Confirmed differ.
func (o *Orchestrator) verify(ctx context.Context, page browser.Page, log *zap.Logger, confirmedMsg, assumedMsg string) (schemas.UnsubscribeOutcome, error) {
	if err := browser.Sleep(ctx, o.timeouts.ActionSettle); err != nil {
		return schemas.UnsubscribeOutcome{Stage: string(StagePostSuccessCheck)}, err
	}
	if ok, phrase := o.detectSuccess(ctx, page, log); ok {
		return confirmed(confirmedMsg, phrase, StagePostSuccessCheck), nil
	}
	return schemas.UnsubscribeOutcome{Success: true, Message: assumedMsg, Stage: string(StagePostSuccessCheck)}, nil
}

// detectChallenge treats an unreadable page as unchallenged. Only
// cancellation is surfaced.
func (o *Orchestrator) detectChallenge(ctx context.Context, page browser.Page, log *zap.Logger) (bool, error) {
	challenged, err := o.probe.DetectChallenge(ctx, page)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, schemas.ErrPageClosed) {
			return false, err
		}
		log.Debug("Challenge probe failed.", zap.Error(err))
		return false, nil
	}
	return challenged, nil
}

func (o *Orchestrator) detectSuccess(ctx context.Context, page browser.Page, log *zap.Logger) (bool, string) {
	ok, phrase, err := o.probe.DetectSuccess(ctx, page)
	if err != nil {
		log.Debug("Success probe failed.", zap.Error(err))
		return false, ""
	}
	if ok {
		log.Info("Success text found on page.", zap.String("phrase", phrase))
	}
	return ok, phrase
}

func (o *Orchestrator) screenshot(ctx context.Context, page browser.Page, log *zap.Logger) string {
	shotCtx, cancel := context.WithTimeout(ctx, o.timeouts.Screenshot)
	defer cancel()
	buf, err := page.Screenshot(shotCtx)
	if err != nil {
		log.Warn("Screenshot failed.", zap.Error(err))
		return ""
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func confirmed(msg, phrase string, stage Stage) schemas.UnsubscribeOutcome {
	return schemas.UnsubscribeOutcome{
		Success:       true,
		Message:       msg,
		Confirmed:     true,
		MatchedPhrase: phrase,
		Stage:         string(stage),
	}
}

func failed(stage Stage, err error) schemas.UnsubscribeOutcome {
	if stage == "" {
		stage = StageAborted
	}
	return schemas.UnsubscribeOutcome{
		Message:      MsgProcessingFailed,
		ErrorMessage: err.Error(),
		Stage:        string(stage),
	}
}
