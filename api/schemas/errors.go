package schemas

import "errors"

// Failure categories for a single unsubscribe attempt. They are wrapped with
// context and matched with errors.Is.
var (
	ErrChallengeBlocked = errors.New("Cloudflare protection detected")
	ErrNavigation       = errors.New("navigation failed")
	ErrNoMatch          = errors.New("no actionable unsubscribe control found")
	ErrClassifier       = errors.New("content classifier failed")
	ErrPageClosed       = errors.New("page is closed")
)

// Lookup failures reported by the repository and the mail gateway.
var (
	ErrEmailNotFound   = errors.New("email not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrMessageNotFound = errors.New("message not found")
)
