package schemas

import (
	"strings"
)

// -- Link Schemas --

// LinkKind identifies how an unsubscribe link is acted upon.
type LinkKind string

const (
	LinkHTTP   LinkKind = "http"
	LinkMailto LinkKind = "mailto"
)

// LinkSource records where in the message a link was found.
type LinkSource string

const (
	SourceHeader LinkSource = "header"
	SourceBody   LinkSource = "body"
	SourceFooter LinkSource = "footer"
)

// UnsubscribeLink is a candidate unsubscribe target extracted from a message.
type UnsubscribeLink struct {
	URL        string     `json:"url"`
	Kind       LinkKind   `json:"kind"`
	Source     LinkSource `json:"source"`
	OriginHint string     `json:"origin_hint,omitempty"`
	Text       string     `json:"text,omitempty"`
}

// KindFromURL derives the link kind from its scheme. Anything that is not a
// mailto link is treated as an http link.
func KindFromURL(rawURL string) LinkKind {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(rawURL)), "mailto:") {
		return LinkMailto
	}
	return LinkHTTP
}

// -- Page Snapshot Schemas --

// SnapshotButton describes a clickable control on the page.
type SnapshotButton struct {
	Text      string `json:"text"`
	ID        string `json:"id"`
	ClassName string `json:"className"`
	TagKind   string `json:"type"`
}

// SnapshotLink describes an anchor on the page.
type SnapshotLink struct {
	Text      string `json:"text"`
	Href      string `json:"href"`
	ID        string `json:"id"`
	ClassName string `json:"className"`
}

// SnapshotInput describes a single form field.
type SnapshotInput struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	ID          string `json:"id"`
	Placeholder string `json:"placeholder"`
}

// SnapshotForm describes a form and its fields.
type SnapshotForm struct {
	Action string          `json:"action"`
	Method string          `json:"method"`
	Inputs []SnapshotInput `json:"inputs"`
}

// SnapshotCheckbox describes a checkbox together with its resolved label.
type SnapshotCheckbox struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Checked bool   `json:"checked"`
	Label   string `json:"label"`
}

// PageSnapshot is a read-only structural view of a page at one point in time.
// It goes stale as soon as any action runs and must never be reused after a
// navigation.
type PageSnapshot struct {
	Title      string             `json:"title"`
	URL        string             `json:"url"`
	Buttons    []SnapshotButton   `json:"buttons"`
	Links      []SnapshotLink     `json:"links"`
	Forms      []SnapshotForm     `json:"forms"`
	Checkboxes []SnapshotCheckbox `json:"checkboxes"`
}

// -- AI Action Schemas --

// ActionKind tags the variant of an AiAction.
type ActionKind string

const (
	ActionFill   ActionKind = "fill"
	ActionClick  ActionKind = "click"
	ActionCheck  ActionKind = "check"
	ActionSelect ActionKind = "select"
)

// AiAction is a single UI step proposed by the content classifier.
type AiAction struct {
	Kind        ActionKind `json:"type"`
	Selector    string     `json:"selector"`
	Value       string     `json:"value,omitempty"`
	Description string     `json:"description,omitempty"`
}

// ActionPlan is the classifier's proposal for a page.
type ActionPlan struct {
	Actions   []AiAction `json:"actions"`
	Reasoning string     `json:"reasoning"`
}

// ExecutionResult summarizes a run of the action executor.
type ExecutionResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Executed int    `json:"executed"`
	Failed   int    `json:"failed"`
	Skipped  int    `json:"skipped"`
}

// -- Outcome Schemas --

// UnsubscribeOutcome is the terminal result of one unsubscribe attempt.
// ScreenshotBase64 holds a base64 PNG, or a JPEG when
// browser.screenshot_quality is below 100.
type UnsubscribeOutcome struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	ScreenshotBase64 string `json:"screenshot,omitempty"`
	ErrorMessage     string `json:"error,omitempty"`
	ChallengeBlocked bool   `json:"isCloudflare,omitempty"`
	// Confirmed is set when a success phrase was actually observed on the page.
	Confirmed     bool   `json:"confirmed"`
	MatchedPhrase string `json:"matchedPhrase,omitempty"`
	Stage         string `json:"stage,omitempty"`
}

// BatchItem pairs an email with the link to act on.
type BatchItem struct {
	EmailID    string           `json:"emailId"`
	Link       *UnsubscribeLink `json:"link,omitempty"`
	OwnerEmail string           `json:"ownerEmail,omitempty"`
	// ResolveErr is set when no actionable link could be produced for the email.
	ResolveErr string `json:"-"`
}

// ItemOutcome is an UnsubscribeOutcome tagged with its email.
type ItemOutcome struct {
	EmailID string `json:"emailId"`
	Link    string `json:"link,omitempty"`
	UnsubscribeOutcome
}

// BatchResult aggregates the outcomes of a batch. PerItem preserves input
// order, and Successful+Failed always equals Total.
type BatchResult struct {
	Total      int           `json:"total"`
	PerItem    []ItemOutcome `json:"results"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
}

// NewBatchResult tallies a set of item outcomes.
func NewBatchResult(items []ItemOutcome) BatchResult {
	res := BatchResult{Total: len(items), PerItem: items}
	for _, it := range items {
		if it.Success {
			res.Successful++
		} else {
			res.Failed++
		}
	}
	if res.PerItem == nil {
		res.PerItem = []ItemOutcome{}
	}
	return res
}
