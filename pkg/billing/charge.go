package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/trekpay/pkg/gateway"
	"github.com/dmitrymomot/trekpay/pkg/job"
	"github.com/dmitrymomot/trekpay/pkg/logger"
	"github.com/dmitrymomot/trekpay/pkg/notify"
	"github.com/dmitrymomot/trekpay/pkg/paytoken"
)

const (
	// ResultLedgerPending prefixes the job result when the charge was
	// captured but the ledger write failed.
	ResultLedgerPending = "ledger_pending"

	// LedgerTimeout bounds the ledger write after a captured charge. The
	// worker waits for it even past the job timeout.
	LedgerTimeout = 10 * time.Second
)

// Charger charges a stored payment method.
type Charger interface {
	Charge(ctx context.Context, req gateway.ChargeRequest) (*gateway.Payment, error)
}

// TokenValidator checks a stored payment token before it is charged.
// *paytoken.Validator satisfies it.
type TokenValidator interface {
	Validate(ctx context.Context, token string) paytoken.Result
}

// ChargeHandler processes "charge" jobs: it charges the organizer's saved
// payment method and records the payment in the ledger.
//
// The job id is sent as the gateway idempotency key, so a job retried after
// a lost response does not charge twice.
type ChargeHandler struct {
	charger  Charger
	ledger   Ledger
	notifier notify.Notifier
	tokens   TokenValidator
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a ChargeHandler.
type Option func(*ChargeHandler)

// WithNotifier sets where reconciliation notices go.
// Defaults to a notifier that discards them.
func WithNotifier(n notify.Notifier) Option {
	return func(h *ChargeHandler) {
		if n != nil {
			h.notifier = n
		}
	}
}

// WithTokenValidator checks the payment token before every charge.
// A malformed token cancels the job; a failed remote check is retried.
func WithTokenValidator(v TokenValidator) Option {
	return func(h *ChargeHandler) {
		if v != nil {
			h.tokens = v
		}
	}
}

// WithLogger sets the handler logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *ChargeHandler) {
		if l != nil {
			h.logger = l
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(h *ChargeHandler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewChargeHandler creates the charge handler.
//
// Example:
//
//	h, err := billing.NewChargeHandler(gw, ledger, billing.WithNotifier(n))
//	w, err := job.NewWorker(q,
//	    job.WithTask[billing.ChargePayload](h),
//	    job.WithExhaustedHook(h.OnExhausted),
//	)
func NewChargeHandler(c Charger, l Ledger, opts ...Option) (*ChargeHandler, error) {
	if c == nil {
		return nil, ErrChargerRequired
	}
	if l == nil {
		return nil, ErrLedgerRequired
	}

	h := &ChargeHandler{
		charger:  c,
		ledger:   l,
		notifier: notify.NewLog(nil),
		logger:   logger.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Name returns the job type.
func (h *ChargeHandler) Name() string { return JobType }

// Handle charges the payment method in p. Malformed payloads and requests
// the gateway rejects as invalid are permanent; every other charge error is
// retried by the queue. A ledger failure after a captured charge does not
// fail the job: the result is marked ledger_pending and a reconciliation
// notice is sent instead, because retrying would charge again.
func (h *ChargeHandler) Handle(ctx context.Context, p ChargePayload) (string, error) {
	if err := p.Validate(); err != nil {
		return "", job.Permanent(err)
	}
	if err := h.checkToken(ctx, p.PaymentMethodID); err != nil {
		return "", err
	}

	var jobID uuid.UUID
	key := p.OrderID
	if j, ok := job.FromContext(ctx); ok {
		jobID = j.ID
		key = j.ID.String()
	}

	// From here a captured charge must reach the ledger, so the worker
	// waits for this handler instead of retrying it on timeout.
	if err := job.Commit(ctx); err != nil {
		return "", err
	}

	pay, err := h.charger.Charge(ctx, p.Request(key))
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidRequest) {
			return "", job.Permanent(err)
		}
		return "", err
	}

	rec := Payment{
		SubscriptionID: p.SubscriptionID,
		OrderID:        p.OrderID,
		PaymentID:      pay.ID,
		Amount:         p.Amount,
		Status:         PaymentStatusCaptured,
		PaidAt:         pay.Paid(h.now()),
		JobID:          jobID,
	}
	if pay.Amount > 0 {
		rec.Amount = pay.Amount
	}

	// The charge is captured; the record must be written even if the
	// handler deadline expired during the gateway call.
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), LedgerTimeout)
	defer cancel()

	if err := h.ledger.Append(lctx, rec); err != nil {
		h.logger.ErrorContext(ctx, "record payment",
			slog.String("subscription_id", p.SubscriptionID),
			slog.String("payment_id", pay.ID),
			slog.Any("error", err),
		)
		h.notify(lctx, notify.Notice{
			Kind:        notify.KindLedgerPending,
			JobID:       jobIDString(jobID),
			JobType:     JobType,
			ReferenceID: p.SubscriptionID,
			Detail:      err.Error(),
			Fields: map[string]string{
				"organizer_id": p.OrganizerID,
				"order_id":     p.OrderID,
				"payment_id":   pay.ID,
				"amount":       FormatAmount(rec.Amount),
			},
			At: h.now(),
		})
		return ResultLedgerPending + ":" + pay.ID, nil
	}

	return pay.ID, nil
}

// OnExhausted sends a reconciliation notice for a job whose retries ran
// out. It matches the signature of job.WithExhaustedHook.
func (h *ChargeHandler) OnExhausted(ctx context.Context, j *job.Job) {
	n := notify.Notice{
		Kind:        notify.KindRetriesExhausted,
		JobID:       j.ID.String(),
		JobType:     j.Type,
		ReferenceID: j.ReferenceID,
		Detail:      j.LastError,
		Fields: map[string]string{
			"retry_count": strconv.Itoa(j.RetryCount),
			"max_retries": strconv.Itoa(j.MaxRetries),
		},
		At: h.now(),
	}
	var p ChargePayload
	if err := j.Decode(&p); err == nil {
		n.Fields["organizer_id"] = p.OrganizerID
		n.Fields["order_id"] = p.OrderID
		n.Fields["amount"] = FormatAmount(p.Amount)
	}
	h.notify(ctx, n)
}

func (h *ChargeHandler) checkToken(ctx context.Context, token string) error {
	if h.tokens == nil {
		return nil
	}
	res := h.tokens.Validate(ctx, token)
	switch {
	case res.Valid:
		return nil
	case res.Reason == paytoken.ReasonRemoteCheckFailed:
		return fmt.Errorf("%w: %s", ErrTokenRejected, res.Reason)
	default:
		return job.Permanent(fmt.Errorf("%w: %s", ErrTokenRejected, res.Reason))
	}
}

func (h *ChargeHandler) notify(ctx context.Context, n notify.Notice) {
	if err := h.notifier.Notify(ctx, n); err != nil {
		h.logger.ErrorContext(ctx, "send reconciliation notice",
			slog.String("kind", string(n.Kind)),
			slog.Any("error", err),
		)
	}
}

func jobIDString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}
