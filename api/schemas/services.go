package schemas

import (
	"context"
)

// -- Collaborator Interfaces --

// MailGateway retrieves original message content from a mailbox.
type MailGateway interface {
	// FetchOriginalBody returns the message identified by messageID, preferring
	// the HTML body over plain text.
	FetchOriginalBody(ctx context.Context, creds MailCredentials, messageID string) (OriginalMessage, error)
}

// LinkExtractor locates unsubscribe links inside a message.
type LinkExtractor interface {
	// ExtractLinks returns de-duplicated candidates, header-sourced links first.
	ExtractLinks(htmlBody string, headers map[string]string) []UnsubscribeLink
	// PickBest chooses the link to act on, or nil when there is none.
	PickBest(links []UnsubscribeLink) *UnsubscribeLink
}

// ContentClassifier proposes UI actions for a page it has never seen before.
// An empty action list is a valid answer meaning "nothing safe to do".
type ContentClassifier interface {
	ProposeActions(ctx context.Context, snapshot PageSnapshot, ownerEmail string) (ActionPlan, error)
}

// Repository is the persistent store of users, emails and attempt history.
type Repository interface {
	GetUser(ctx context.Context, userID string) (*User, error)
	GetEmail(ctx context.Context, userID, emailID string) (*Email, error)
	RecordOutcome(ctx context.Context, userID string, outcome ItemOutcome) error
	ListOutcomes(ctx context.Context, emailID string) ([]ItemOutcome, error)
}

// ProgressReporter receives batch progress as a percentage in [0, 100].
type ProgressReporter interface {
	ReportProgress(percent int)
}

// ProgressFunc adapts a function to the ProgressReporter interface.
type ProgressFunc func(percent int)

func (f ProgressFunc) ReportProgress(percent int) { f(percent) }

// Unsubscriber performs a single unsubscribe attempt.
type Unsubscriber interface {
	UnsubscribeFromLink(ctx context.Context, url, ownerEmail string) UnsubscribeOutcome
}

// BrowserHost is implemented by the owner of the shared browser. Launch is
// idempotent; Release closes the browser and is safe to call repeatedly.
type BrowserHost interface {
	Launch(ctx context.Context) error
	Release()
}
