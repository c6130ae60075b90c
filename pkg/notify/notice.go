package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/dmitrymomot/trekpay/pkg/logger"
)

// Kind classifies a notice.
type Kind string

const (
	// KindRetriesExhausted is sent when a job reaches the failed state.
	KindRetriesExhausted Kind = "retries_exhausted"
	// KindLedgerPending is sent when a charge succeeded but its ledger
	// record could not be written.
	KindLedgerPending Kind = "ledger_pending"
)

// Notice is a message for the operations team that needs a human to
// reconcile state by hand.
type Notice struct {
	Kind        Kind
	JobID       string
	JobType     string
	ReferenceID string
	Detail      string
	Fields      map[string]string
	At          time.Time
}

// Subject returns a one-line summary.
func (n Notice) Subject() string {
	return fmt.Sprintf("[trekpay] %s: %s %s", n.Kind, n.JobType, n.ReferenceID)
}

// Body renders the notice as plain text. Fields are sorted by key.
func (n Notice) Body() string {
	var b strings.Builder
	fmt.Fprintf(&b, "kind: %s\n", n.Kind)
	fmt.Fprintf(&b, "job_id: %s\n", n.JobID)
	fmt.Fprintf(&b, "job_type: %s\n", n.JobType)
	fmt.Fprintf(&b, "reference_id: %s\n", n.ReferenceID)
	if !n.At.IsZero() {
		fmt.Fprintf(&b, "at: %s\n", n.At.UTC().Format(time.RFC3339))
	}
	for _, k := range slices.Sorted(maps.Keys(n.Fields)) {
		fmt.Fprintf(&b, "%s: %s\n", k, n.Fields[k])
	}
	if n.Detail != "" {
		fmt.Fprintf(&b, "\n%s\n", n.Detail)
	}
	return b.String()
}

// Notifier delivers notices.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// Log writes notices to a logger at warn level. It is the fallback when no
// email provider is configured.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a log notifier. A nil logger discards notices.
func NewLog(l *slog.Logger) *Log {
	if l == nil {
		l = logger.Nop()
	}
	return &Log{logger: l}
}

// Notify implements Notifier.
func (l *Log) Notify(ctx context.Context, n Notice) error {
	attrs := []any{
		slog.String("kind", string(n.Kind)),
		slog.String("job_id", n.JobID),
		slog.String("job_type", n.JobType),
		slog.String("reference_id", n.ReferenceID),
	}
	for _, k := range slices.Sorted(maps.Keys(n.Fields)) {
		attrs = append(attrs, slog.String(k, n.Fields[k]))
	}
	if n.Detail != "" {
		attrs = append(attrs, slog.String("detail", n.Detail))
	}
	l.logger.WarnContext(ctx, "reconciliation required", attrs...)
	return nil
}

// Multi fans a notice out to every notifier. All notifiers are called; the
// errors are joined.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, n Notice) error {
	var errs []error
	for _, nt := range m {
		if nt == nil {
			continue
		}
		if err := nt.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
