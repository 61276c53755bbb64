// Package actions executes classifier-proposed UI actions against a live page.
package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/inbox-sweeper/api/schemas"
	"github.com/xkilldash9x/inbox-sweeper/internal/browser"
	"github.com/xkilldash9x/inbox-sweeper/internal/config"
)

// Executor runs action lists with per-action isolation: a failing action is
// logged and the sequence continues.
type Executor struct {
	actionTimeout time.Duration
	clickPause    time.Duration
	settle        time.Duration
	logger        *zap.Logger
}

// NewExecutor creates an executor from the timeout configuration.
func NewExecutor(timeouts config.TimeoutConfig, logger *zap.Logger) *Executor {
	return &Executor{
		actionTimeout: timeouts.Action,
		clickPause:    timeouts.ClickPause,
		settle:        timeouts.ActionSettle,
		logger:        logger.Named("action_executor"),
	}
}

// Execute runs every action in order, then waits the settle window. It only
// reports failure when the sequence as a whole could not be processed, such
// as a closed page or a cancelled context.
func (e *Executor) Execute(ctx context.Context, page browser.Page, actions []schemas.AiAction) schemas.ExecutionResult {
	res := schemas.ExecutionResult{}

	for i, action := range actions {
		if err := ctx.Err(); err != nil {
			return e.abort(res, err)
		}

		log := e.logger.With(
			zap.Int("index", i),
			zap.String("type", string(action.Kind)),
			zap.String("selector", action.Selector),
		)
		if action.Description != "" {
			log = log.With(zap.String("description", action.Description))
		}

		err := e.dispatch(ctx, page, action)
		switch {
		case errors.Is(err, errUnknownKind):
			log.Warn("Unknown action type, skipping.")
			res.Skipped++
		case err != nil:
			if isFatal(ctx, err) {
				return e.abort(res, err)
			}
			log.Warn("Action failed, continuing with the remaining actions.", zap.Error(err))
			res.Failed++
		default:
			log.Info("Action executed.")
			res.Executed++
		}
	}

	if err := browser.Sleep(ctx, e.settle); err != nil {
		return e.abort(res, err)
	}

	res.Success = true
	res.Message = fmt.Sprintf("Executed %d of %d actions", res.Executed, len(actions))
	return res
}

var errUnknownKind = errors.New("unknown action type")

// dispatch maps one action variant to its page operation under the per-action
// timeout.
func (e *Executor) dispatch(ctx context.Context, page browser.Page, action schemas.AiAction) error {
	actionCtx, cancel := context.WithTimeout(ctx, e.actionTimeout)
	defer cancel()

	switch action.Kind {
	case schemas.ActionFill:
		return page.Fill(actionCtx, action.Selector, action.Value)
	case schemas.ActionClick:
		if err := page.Click(actionCtx, action.Selector); err != nil {
			return err
		}
		return browser.Sleep(ctx, e.clickPause)
	case schemas.ActionCheck:
		return page.Check(actionCtx, action.Selector)
	case schemas.ActionSelect:
		return page.SelectOption(actionCtx, action.Selector, action.Value)
	default:
		return errUnknownKind
	}
}

// isFatal reports errors that make the rest of the sequence pointless.
func isFatal(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, schemas.ErrPageClosed)
}

func (e *Executor) abort(res schemas.ExecutionResult, err error) schemas.ExecutionResult {
	e.logger.Error("Action sequence aborted.", zap.Error(err))
	res.Success = false
	res.Message = "Failed to execute AI actions: " + err.Error()
	return res
}
