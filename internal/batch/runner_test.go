package batch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/inbox-sweeper/api/schemas"
	"github.com/xkilldash9x/inbox-sweeper/internal/mocks"
)

type progressRecorder struct {
	mu     sync.Mutex
	values []int
}

func (p *progressRecorder) ReportProgress(percent int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, percent)
}

func (p *progressRecorder) Values() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.values...)
}

func httpItem(emailID, url string) schemas.BatchItem {
	return schemas.BatchItem{
		EmailID:    emailID,
		Link:       &schemas.UnsubscribeLink{URL: url, Kind: schemas.LinkHTTP, Source: schemas.SourceHeader},
		OwnerEmail: "owner@example.com",
	}
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 100, Percent(0, 0))
	assert.Equal(t, 0, Percent(0, 3))
	assert.Equal(t, 33, Percent(1, 3))
	assert.Equal(t, 67, Percent(2, 3))
	assert.Equal(t, 100, Percent(3, 3))
}

func TestRunBatchMixedItems(t *testing.T) {
	unsub := new(mocks.MockUnsubscriber)
	host := new(mocks.MockBrowserHost)
	host.On("Launch", mock.Anything).Return(nil).Once()
	host.On("Release").Return().Once()

	unsub.On("UnsubscribeFromLink", mock.Anything, "https://a.example/u", "owner@example.com").
		Return(schemas.UnsubscribeOutcome{Success: true, Message: "Successfully unsubscribed (auto-detected)"}).Once()
	unsub.On("UnsubscribeFromLink", mock.Anything, "https://c.example/u", "owner@example.com").
		Return(schemas.UnsubscribeOutcome{Success: false, Message: "Please visit the page manually", ErrorMessage: "no match"}).Once()

	items := []schemas.BatchItem{
		httpItem("e1", "https://a.example/u"),
		{EmailID: "e2", Link: &schemas.UnsubscribeLink{URL: "mailto:leave@b.example", Kind: schemas.LinkMailto}},
		httpItem("e3", "https://c.example/u"),
		{EmailID: "e4", ResolveErr: MsgEmailNotFound},
	}

	progress := &progressRecorder{}
	runner := NewRunner(unsub, host, zaptest.NewLogger(t))
	res, err := runner.RunBatch(context.Background(), items, progress)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 1, res.Successful)
	assert.Equal(t, 3, res.Failed)
	require.Len(t, res.PerItem, 4)

	ids := make([]string, 0, len(res.PerItem))
	for _, it := range res.PerItem {
		ids = append(ids, it.EmailID)
	}
	assert.Equal(t, []string{"e1", "e2", "e3", "e4"}, ids)

	assert.Equal(t, MsgMailtoUnhandled, res.PerItem[1].ErrorMessage)
	assert.Equal(t, "mailto:leave@b.example", res.PerItem[1].Link)
	assert.Equal(t, MsgEmailNotFound, res.PerItem[3].ErrorMessage)
	assert.Equal(t, []int{0, 25, 50, 75, 100}, progress.Values())

	unsub.AssertExpectations(t)
	host.AssertExpectations(t)
}

func TestRunBatchLaunchFailureReleasesOnce(t *testing.T) {
	unsub := new(mocks.MockUnsubscriber)
	host := new(mocks.MockBrowserHost)
	host.On("Launch", mock.Anything).Return(errors.New("chrome not found")).Once()
	host.On("Release").Return().Once()

	runner := NewRunner(unsub, host, zaptest.NewLogger(t))
	_, err := runner.RunBatch(context.Background(), []schemas.BatchItem{httpItem("e1", "https://a.example/u")}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chrome not found")

	unsub.AssertNotCalled(t, "UnsubscribeFromLink", mock.Anything, mock.Anything, mock.Anything)
	host.AssertExpectations(t)
}

func TestRunBatchSkipsLaunchWhenNothingNeedsBrowser(t *testing.T) {
	host := new(mocks.MockBrowserHost)
	host.On("Release").Return().Once()

	runner := NewRunner(new(mocks.MockUnsubscriber), host, zaptest.NewLogger(t))
	res, err := runner.RunBatch(context.Background(), []schemas.BatchItem{
		{EmailID: "e1", ResolveErr: MsgNoLinks},
		{EmailID: "e2"},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, MsgNoLinks, res.PerItem[0].ErrorMessage)
	assert.Equal(t, MsgNoSuitableLink, res.PerItem[1].ErrorMessage)
	host.AssertNotCalled(t, "Launch", mock.Anything)
	host.AssertExpectations(t)
}

func TestRunBatchEmpty(t *testing.T) {
	host := new(mocks.MockBrowserHost)
	host.On("Release").Return().Once()
	progress := &progressRecorder{}

	runner := NewRunner(new(mocks.MockUnsubscriber), host, zaptest.NewLogger(t))
	res, err := runner.RunBatch(context.Background(), nil, progress)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Total)
	assert.NotNil(t, res.PerItem)
	assert.Equal(t, []int{0, 100}, progress.Values())
	host.AssertExpectations(t)
}

func TestRunBatchContainsItemPanic(t *testing.T) {
	unsub := new(mocks.MockUnsubscriber)
	host := new(mocks.MockBrowserHost)
	host.On("Launch", mock.Anything).Return(nil)
	host.On("Release").Return().Once()

	unsub.On("UnsubscribeFromLink", mock.Anything, "https://a.example/u", mock.Anything).
		Run(func(mock.Arguments) { panic("boom") }).Return(schemas.UnsubscribeOutcome{}).Once()
	unsub.On("UnsubscribeFromLink", mock.Anything, "https://b.example/u", mock.Anything).
		Return(schemas.UnsubscribeOutcome{Success: true}).Once()

	runner := NewRunner(unsub, host, zaptest.NewLogger(t))
	res, err := runner.RunBatch(context.Background(), []schemas.BatchItem{
		httpItem("e1", "https://a.example/u"),
		httpItem("e2", "https://b.example/u"),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Successful)
	assert.Equal(t, 1, res.Failed)
	assert.Contains(t, res.PerItem[0].ErrorMessage, "boom")
	assert.Equal(t, "e1", res.PerItem[0].EmailID)
	host.AssertExpectations(t)
}

func TestRunBatchCancelledContextStillAccountsForEveryItem(t *testing.T) {
	host := new(mocks.MockBrowserHost)
	host.On("Launch", mock.Anything).Return(nil)
	host.On("Release").Return().Once()
	unsub := new(mocks.MockUnsubscriber)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewRunner(unsub, host, zaptest.NewLogger(t))
	res, err := runner.RunBatch(ctx, []schemas.BatchItem{
		httpItem("e1", "https://a.example/u"),
		httpItem("e2", "https://b.example/u"),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 2, res.Failed)
	for _, it := range res.PerItem {
		assert.Equal(t, context.Canceled.Error(), it.ErrorMessage)
	}
	unsub.AssertNotCalled(t, "UnsubscribeFromLink", mock.Anything, mock.Anything, mock.Anything)
}
