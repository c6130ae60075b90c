package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/trekpay/pkg/logger"
)

const (
	defaultTimeout = 5 * time.Second

	// StatusHealthy indicates all checks passed.
	StatusHealthy = "healthy"
	// StatusUnhealthy indicates one or more checks failed.
	StatusUnhealthy = "unhealthy"
)

// CheckFunc reports whether a dependency is usable. It matches the
// Healthcheck closures of the db, redis and job packages.
type CheckFunc func(ctx context.Context) error

// Checks maps a check name to its function.
type Checks map[string]CheckFunc

// Report is the outcome of one readiness probe.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]Result `json:"checks,omitempty"`
}

// Result is the outcome of a single check.
type Result struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

// Healthy reports whether every check passed.
func (r *Report) Healthy() bool { return r.Status == StatusHealthy }

// Prober runs readiness checks.
type Prober struct {
	checks  Checks
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Prober.
type Option func(*Prober)

// WithTimeout bounds a whole probe run. Defaults to 5 seconds.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithLogger sets the logger used to report failed checks.
func WithLogger(l *slog.Logger) Option {
	return func(p *Prober) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProber creates a prober. Nil checks are ignored.
func NewProber(checks Checks, opts ...Option) *Prober {
	p := &Prober{
		checks:  make(Checks, len(checks)),
		timeout: defaultTimeout,
		logger:  logger.Nop(),
	}
	for name, fn := range checks {
		if fn != nil {
			p.checks[name] = fn
		}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes every check concurrently and aggregates the results.
func (p *Prober) Run(ctx context.Context) *Report {
	report := &Report{Status: StatusHealthy}
	if len(p.checks) == 0 {
		return report
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		g       errgroup.Group
		results = make(map[string]Result, len(p.checks))
	)
	for name, check := range p.checks {
		g.Go(func() error {
			start := time.Now()
			err := runCheck(ctx, check)
			res := Result{Status: StatusHealthy, Latency: time.Since(start).Round(time.Microsecond).String()}
			if err != nil {
				res.Status = StatusUnhealthy
				res.Error = err.Error()
				p.logger.WarnContext(ctx, "health check failed",
					slog.String("check", name),
					slog.Any("error", err),
				)
			}

			mu.Lock()
			results[name] = res
			if err != nil {
				report.Status = StatusUnhealthy
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report.Checks = results
	return report
}

// Err returns nil when every check passes, or ErrCheckFailed joined with
// the individual failures.
func (p *Prober) Err(ctx context.Context) error {
	report := p.Run(ctx)
	if report.Healthy() {
		return nil
	}
	errs := []error{ErrCheckFailed}
	for name, res := range report.Checks {
		if res.Status != StatusHealthy {
			errs = append(errs, fmt.Errorf("%s: %s", name, res.Error))
		}
	}
	return errors.Join(errs...)
}

// runCheck converts a check that outlives ctx or panics into an error.
func runCheck(ctx context.Context, check CheckFunc) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("health: check panicked: %v", r)
			}
		}()
		done <- check(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return errors.Join(ErrCheckTimeout, ctx.Err())
	}
}
