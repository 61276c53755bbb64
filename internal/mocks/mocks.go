// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/xkilldash9x/inbox-sweeper/api/schemas"
	"github.com/xkilldash9x/inbox-sweeper/internal/browser"
	"github.com/xkilldash9x/inbox-sweeper/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Database() config.DatabaseConfig {
	args := m.Called()
	return args.Get(0).(config.DatabaseConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Timeouts() config.TimeoutConfig {
	args := m.Called()
	return args.Get(0).(config.TimeoutConfig)
}

func (m *MockConfig) Probe() config.ProbeConfig {
	args := m.Called()
	return args.Get(0).(config.ProbeConfig)
}

func (m *MockConfig) LLM() config.LLMConfig {
	args := m.Called()
	return args.Get(0).(config.LLMConfig)
}

func (m *MockConfig) Mail() config.MailConfig {
	args := m.Called()
	return args.Get(0).(config.MailConfig)
}

func (m *MockConfig) Server() config.ServerConfig {
	args := m.Called()
	return args.Get(0).(config.ServerConfig)
}

func (m *MockConfig) Batch() config.BatchConfig {
	args := m.Called()
	return args.Get(0).(config.BatchConfig)
}

// --- Setters ---

func (m *MockConfig) SetBrowserHeadless(b bool) {
	m.Called(b)
}

// -- Page Mock --

// MockPage mocks browser.Page.
type MockPage struct {
	mock.Mock
}

var _ browser.Page = (*MockPage)(nil)

func (m *MockPage) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockPage) Title(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPage) URL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPage) HTML(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPage) VisibleText(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPage) Evaluate(ctx context.Context, script string, out interface{}) error {
	return m.Called(ctx, script, out).Error(0)
}

func (m *MockPage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return m.Called(ctx, selector, timeout).Error(0)
}

func (m *MockPage) Click(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockPage) Fill(ctx context.Context, selector, value string) error {
	return m.Called(ctx, selector, value).Error(0)
}

func (m *MockPage) Check(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockPage) SelectOption(ctx context.Context, selector, value string) error {
	return m.Called(ctx, selector, value).Error(0)
}

func (m *MockPage) Screenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockPage) Close() error {
	return m.Called().Error(0)
}

// -- Collaborator Mocks --

// MockClassifier mocks schemas.ContentClassifier.
type MockClassifier struct {
	mock.Mock
}

func (m *MockClassifier) ProposeActions(ctx context.Context, snapshot schemas.PageSnapshot, ownerEmail string) (schemas.ActionPlan, error) {
	args := m.Called(ctx, snapshot, ownerEmail)
	return args.Get(0).(schemas.ActionPlan), args.Error(1)
}

// MockMailGateway mocks schemas.MailGateway.
type MockMailGateway struct {
	mock.Mock
}

func (m *MockMailGateway) FetchOriginalBody(ctx context.Context, creds schemas.MailCredentials, messageID string) (schemas.OriginalMessage, error) {
	args := m.Called(ctx, creds, messageID)
	return args.Get(0).(schemas.OriginalMessage), args.Error(1)
}

// MockRepository mocks schemas.Repository.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetUser(ctx context.Context, userID string) (*schemas.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.User), args.Error(1)
}

func (m *MockRepository) GetEmail(ctx context.Context, userID, emailID string) (*schemas.Email, error) {
	args := m.Called(ctx, userID, emailID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.Email), args.Error(1)
}

func (m *MockRepository) RecordOutcome(ctx context.Context, userID string, outcome schemas.ItemOutcome) error {
	return m.Called(ctx, userID, outcome).Error(0)
}

func (m *MockRepository) ListOutcomes(ctx context.Context, emailID string) ([]schemas.ItemOutcome, error) {
	args := m.Called(ctx, emailID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.ItemOutcome), args.Error(1)
}

// MockUnsubscriber mocks schemas.Unsubscriber.
type MockUnsubscriber struct {
	mock.Mock
}

func (m *MockUnsubscriber) UnsubscribeFromLink(ctx context.Context, url, ownerEmail string) schemas.UnsubscribeOutcome {
	args := m.Called(ctx, url, ownerEmail)
	return args.Get(0).(schemas.UnsubscribeOutcome)
}

// MockBrowserHost mocks schemas.BrowserHost.
type MockBrowserHost struct {
	mock.Mock
}

func (m *MockBrowserHost) Launch(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockBrowserHost) Release() {
	m.Called()
}
