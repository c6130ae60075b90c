package notify

import "errors"

var (
	// ErrNotConfigured is returned when the email notifier lacks an API key,
	// a sender or recipients.
	ErrNotConfigured = errors.New("notify: email notifier not configured")

	// ErrSendFailed wraps delivery failures.
	ErrSendFailed = errors.New("notify: failed to send notice")

	// ErrRenderFailed is returned when a notice cannot be rendered to HTML.
	ErrRenderFailed = errors.New("notify: failed to render notice")
)

