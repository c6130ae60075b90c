package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/dmitrymomot/trekpay/pkg/logger"
)

const idempotencyHeader = "X-Idempotency-Key"

// ChargeRequest is a recurring charge against a saved payment method.
// Amount is in the smallest currency unit.
type ChargeRequest struct {
	CustomerID      string `json:"customer_id"`
	PaymentMethodID string `json:"token"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	OrderID         string `json:"order_id"`

	// IdempotencyKey makes a retried charge collapse onto the first one.
	// The charge handler uses the job id.
	IdempotencyKey string `json:"-"`
}

func (r ChargeRequest) validate() error {
	var missing []string
	if r.CustomerID == "" {
		missing = append(missing, "customer_id")
	}
	if r.PaymentMethodID == "" {
		missing = append(missing, "token")
	}
	if r.OrderID == "" {
		missing = append(missing, "order_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	if r.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	return nil
}

// Payment is the gateway record of a captured charge.
type Payment struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	OrderID   string `json:"order_id"`
	CreatedAt int64  `json:"created_at"`
}

// Paid returns the capture time reported by the gateway, or fallback when absent.
func (p *Payment) Paid(fallback time.Time) time.Time {
	if p.CreatedAt <= 0 {
		return fallback
	}
	return time.Unix(p.CreatedAt, 0).UTC()
}

// Client calls the payment gateway REST API.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client. Token lookups are retried up to cfg.ReadRetries
// times when the gateway reports a temporary failure. Charges are left to
// the job queue, so the HTTP client never repeats a POST.
func New(cfg Config, opts ...Option) (*Client, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	c := &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
			SetBasicAuth(cfg.KeyID, cfg.KeySecret).
			SetTimeout(cfg.Timeout).
			SetRetryCount(max(cfg.ReadRetries, 0)).
			AddRetryCondition(retryTemporaryRead).
			SetHeader("Accept", "application/json"),
		limiter: rate.NewLimiter(limit, max(cfg.RateBurst, 1)),
		logger:  logger.Nop(),
	}
	if cfg.ReadRetryWait > 0 {
		c.http.SetRetryWaitTime(cfg.ReadRetryWait)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Charge captures a recurring payment.
func (c *Client) Charge(ctx context.Context, req ChargeRequest) (*Payment, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.Currency == "" {
		req.Currency = "INR"
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	r := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&Payment{}).
		SetError(&errorEnvelope{})
	if req.IdempotencyKey != "" {
		r.SetHeader(idempotencyHeader, req.IdempotencyKey)
	}

	start := time.Now()
	resp, err := r.Post("/v1/payments/create/recurring")
	if err != nil {
		return nil, fmt.Errorf("gateway: charge: %w", err)
	}
	if resp.IsError() {
		apiErr := apiError(resp)
		c.logger.WarnContext(ctx, "gateway charge rejected",
			slog.String("order_id", req.OrderID),
			slog.Int("status", apiErr.StatusCode),
			slog.String("code", apiErr.Code),
		)
		return nil, apiErr
	}

	p := resp.Result().(*Payment)
	c.logger.InfoContext(ctx, "gateway charge captured",
		slog.String("order_id", req.OrderID),
		slog.String("payment_id", p.ID),
		slog.Duration("took", time.Since(start)),
	)
	return p, nil
}

// VerifyToken checks that a saved payment token exists and is usable.
// It returns ErrTokenNotFound for unknown tokens.
func (c *Client) VerifyToken(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidRequest)
	}
	if err := c.wait(ctx); err != nil {
		return err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("token", token).
		SetError(&errorEnvelope{}).
		Get("/v1/tokens/{token}")
	if err != nil {
		return fmt.Errorf("gateway: verify token: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return ErrTokenNotFound
	}
	if resp.IsError() {
		return apiError(resp)
	}
	return nil
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Join(ErrRateLimited, err)
	}
	return nil
}

// retryTemporaryRead retries GET requests that failed in transit or got a
// temporary error status.
func retryTemporaryRead(resp *resty.Response, err error) bool {
	if resp == nil || resp.Request == nil || resp.Request.Method != http.MethodGet {
		return false
	}
	if err != nil {
		return resp.Request.Context().Err() == nil
	}
	return resp.IsError() && (&APIError{StatusCode: resp.StatusCode()}).Temporary()
}

func apiError(resp *resty.Response) *APIError {
	e := &APIError{StatusCode: resp.StatusCode()}
	if env, ok := resp.Error().(*errorEnvelope); ok && env != nil {
		e.Code = env.Error.Code
		e.Description = env.Error.Description
	}
	return e
}
