package actions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/inbox-sweeper/api/schemas"
	"github.com/xkilldash9x/inbox-sweeper/internal/config"
	"github.com/xkilldash9x/inbox-sweeper/internal/mocks"
)

func newTestExecutor(t *testing.T) (*Executor, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	timeouts := config.NewDefaultConfig().Timeouts()
	timeouts.ClickPause = 0
	timeouts.ActionSettle = 0
	return NewExecutor(timeouts, zap.New(core)), logs
}

func TestExecuteFailedActionDoesNotAbort(t *testing.T) {
	exec, logs := newTestExecutor(t)
	page := new(mocks.MockPage)
	page.On("Click", mock.Anything, "#does-not-exist").Return(errors.New("no node found")).Once()
	page.On("Check", mock.Anything, "#optout").Return(nil).Once()

	res := exec.Execute(context.Background(), page, []schemas.AiAction{
		{Kind: schemas.ActionClick, Selector: "#does-not-exist"},
		{Kind: schemas.ActionCheck, Selector: "#optout", Description: "tick opt out"},
	})

	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Executed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, logs.FilterMessage("Action failed, continuing with the remaining actions.").Len())
	page.AssertExpectations(t)
}

func TestExecuteDispatchesEveryKind(t *testing.T) {
	exec, _ := newTestExecutor(t)
	page := new(mocks.MockPage)
	page.On("Fill", mock.Anything, "#email", "owner@example.com").Return(nil).Once()
	page.On("SelectOption", mock.Anything, "#reason", "too_many").Return(nil).Once()
	page.On("Check", mock.Anything, "#all").Return(nil).Once()
	page.On("Click", mock.Anything, `button:has-text("Save")`).Return(nil).Once()

	res := exec.Execute(context.Background(), page, []schemas.AiAction{
		{Kind: schemas.ActionFill, Selector: "#email", Value: "owner@example.com"},
		{Kind: schemas.ActionSelect, Selector: "#reason", Value: "too_many"},
		{Kind: schemas.ActionCheck, Selector: "#all"},
		{Kind: schemas.ActionClick, Selector: `button:has-text("Save")`},
	})

	require.True(t, res.Success)
	assert.Equal(t, 4, res.Executed)
	assert.Zero(t, res.Failed)
	page.AssertExpectations(t)
}

func TestExecuteSkipsUnknownKind(t *testing.T) {
	exec, logs := newTestExecutor(t)
	page := new(mocks.MockPage)

	res := exec.Execute(context.Background(), page, []schemas.AiAction{{Kind: "hover", Selector: "#menu"}})

	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, logs.FilterMessage("Unknown action type, skipping.").Len())
	page.AssertNotCalled(t, "Click", mock.Anything, mock.Anything)
}

func TestExecuteAppliesPerActionTimeout(t *testing.T) {
	exec, _ := newTestExecutor(t)
	page := new(mocks.MockPage)
	page.On("Fill", mock.Anything, "#slow", "x").Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		deadline, ok := ctx.Deadline()
		require.True(t, ok, "each action runs under its own deadline")
		assert.WithinDuration(t, time.Now().Add(5*time.Second), deadline, time.Second)
	}).Return(nil)

	res := exec.Execute(context.Background(), page, []schemas.AiAction{{Kind: schemas.ActionFill, Selector: "#slow", Value: "x"}})
	assert.True(t, res.Success)
	page.AssertExpectations(t)
}

func TestExecuteAbortsOnClosedPage(t *testing.T) {
	exec, _ := newTestExecutor(t)
	page := new(mocks.MockPage)
	page.On("Click", mock.Anything, "#a").Return(schemas.ErrPageClosed).Once()

	res := exec.Execute(context.Background(), page, []schemas.AiAction{
		{Kind: schemas.ActionClick, Selector: "#a"},
		{Kind: schemas.ActionClick, Selector: "#b"},
	})

	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "Failed to execute AI actions")
	page.AssertNotCalled(t, "Click", mock.Anything, "#b")
}

func TestExecuteCancelledContext(t *testing.T) {
	exec, _ := newTestExecutor(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := exec.Execute(ctx, new(mocks.MockPage), []schemas.AiAction{{Kind: schemas.ActionClick, Selector: "#a"}})
	assert.False(t, res.Success)
}

func TestExecuteEmptyList(t *testing.T) {
	exec, _ := newTestExecutor(t)
	res := exec.Execute(context.Background(), new(mocks.MockPage), nil)
	assert.True(t, res.Success)
	assert.Equal(t, "Executed 0 of 0 actions", res.Message)
}
