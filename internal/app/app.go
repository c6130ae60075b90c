// Package app runs a long-lived process: it starts services in order, serves
// the probe endpoints, and on SIGINT or SIGTERM stops everything gracefully.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/trekpay/pkg/logger"
)

const (
	defaultShutdownTimeout   = 30 * time.Second
	defaultReadHeaderTimeout = 5 * time.Second
	defaultReadTimeout       = 10 * time.Second
	defaultWriteTimeout      = 10 * time.Second
	defaultIdleTimeout       = 60 * time.Second
)

// service is a component started before the process is ready and stopped
// before shutdown hooks run.
type service struct {
	name  string
	start func(context.Context) error
	stop  func(context.Context) error
}

// Runner owns the process lifecycle.
type Runner struct {
	address         string
	handler         http.Handler
	logger          *slog.Logger
	shutdownTimeout time.Duration
	services        []service
	shutdownHooks   []func(context.Context) error
	baseCtx         context.Context
}

// Option configures a Runner.
type Option func(*Runner)

// Address sets the probe server address. Without a handler no server runs.
func Address(addr string) Option {
	return func(r *Runner) {
		if addr != "" {
			r.address = addr
		}
	}
}

// Handler sets the probe server handler.
func Handler(h http.Handler) Option {
	return func(r *Runner) {
		if h != nil {
			r.handler = h
		}
	}
}

// Logger sets the lifecycle logger.
func Logger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// ShutdownTimeout bounds stopping services, the server and shutdown hooks
// together. Defaults to 30 seconds.
func ShutdownTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.shutdownTimeout = d
		}
	}
}

// Service registers a component with start and stop functions. Services
// start in registration order and stop in reverse order. If a start fails,
// only the services already started are stopped.
//
// Example:
//
//	app.Service("worker", worker.StartFunc(), worker.Shutdown())
func Service(name string, start, stop func(context.Context) error) Option {
	return func(r *Runner) {
		if start != nil {
			r.services = append(r.services, service{name: name, start: start, stop: stop})
		}
	}
}

// ShutdownHook registers a cleanup function run after every service has
// stopped. Hooks run in registration order.
//
// Example:
//
//	app.ShutdownHook(db.Shutdown(pool))
func ShutdownHook(fn func(context.Context) error) Option {
	return func(r *Runner) {
		if fn != nil {
			r.shutdownHooks = append(r.shutdownHooks, fn)
		}
	}
}

// WithContext sets the base context. Cancelling it has the same effect as a
// termination signal.
func WithContext(ctx context.Context) Option {
	return func(r *Runner) {
		if ctx != nil {
			r.baseCtx = ctx
		}
	}
}

// New creates a runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		address:         ":8081",
		logger:          logger.Nop(),
		shutdownTimeout: defaultShutdownTimeout,
		baseCtx:         context.Background(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts the probe server and the services, then blocks until a signal
// arrives, the base context ends or the server fails.
func (r *Runner) Run() error {
	ctx, cancel := signal.NotifyContext(r.baseCtx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	var server *http.Server
	if r.handler != nil {
		ln, err := net.Listen("tcp", r.address)
		if err != nil {
			return errors.Join(r.shutdown(nil, nil), err)
		}
		server = &http.Server{
			Handler:           r.handler,
			ReadHeaderTimeout: defaultReadHeaderTimeout,
			ReadTimeout:       defaultReadTimeout,
			WriteTimeout:      defaultWriteTimeout,
			IdleTimeout:       defaultIdleTimeout,
		}
		g.Go(func() error {
			r.logger.Info("probe server starting", slog.String("address", ln.Addr().String()))
			if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	started := make([]service, 0, len(r.services))
	for _, s := range r.services {
		if err := s.start(ctx); err != nil {
			r.logger.Error("service failed to start", slog.String("service", s.name), slog.Any("error", err))
			return errors.Join(err, r.shutdown(server, started), g.Wait())
		}
		r.logger.Info("service started", slog.String("service", s.name))
		started = append(started, s)
	}

	<-gctx.Done()
	r.logger.Info("shutting down")

	err := r.shutdown(server, started)
	return errors.Join(g.Wait(), err)
}

// shutdown stops started services in reverse order, then the server, then
// runs the shutdown hooks, all under one timeout.
func (r *Runner) shutdown(server *http.Server, started []service) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(started) - 1; i >= 0; i-- {
		s := started[i]
		if s.stop == nil {
			continue
		}
		if err := s.stop(ctx); err != nil {
			errs = append(errs, err)
			r.logger.Error("service failed to stop", slog.String("service", s.name), slog.Any("error", err))
		}
	}

	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	for _, hook := range r.shutdownHooks {
		if err := hook(ctx); err != nil {
			errs = append(errs, err)
			r.logger.Error("shutdown hook failed", slog.Any("error", err))
		}
	}

	if len(errs) > 0 {
		r.logger.Error("shutdown completed with errors")
		return errors.Join(errs...)
	}
	r.logger.Info("shutdown completed")
	return nil
}
