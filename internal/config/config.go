// Package config loads the process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/dmitrymomot/trekpay/pkg/billing"
	"github.com/dmitrymomot/trekpay/pkg/db"
	"github.com/dmitrymomot/trekpay/pkg/gateway"
	"github.com/dmitrymomot/trekpay/pkg/logger"
	"github.com/dmitrymomot/trekpay/pkg/notify"
	"github.com/dmitrymomot/trekpay/pkg/redis"
)

var (
	ErrLoadDotenv = errors.New("config: failed to load .env file")
	ErrParse      = errors.New("config: failed to parse environment")
	ErrInvalid    = errors.New("config: invalid configuration")
)

// Config is the full configuration of the charge worker and jobctl.
type Config struct {
	App     App
	DB      db.Config
	Redis   redis.Config
	Worker  Worker
	Token   Token
	Gateway gateway.Config
	Notify  notify.Config
	Log     logger.Config
}

// App holds process-level settings.
type App struct {
	ProbeAddr       string        `env:"PROBE_ADDR" envDefault:":8081"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Worker holds the queue, worker and reaper settings.
type Worker struct {
	Interval     time.Duration `env:"JOB_POLL_INTERVAL" envDefault:"30s"`
	BatchSize    int           `env:"JOB_BATCH_SIZE" envDefault:"10"`
	Timeout      time.Duration `env:"JOB_TIMEOUT" envDefault:"30s"`
	MaxRetries   int           `env:"JOB_MAX_RETRIES" envDefault:"5"`
	BackoffBase  time.Duration `env:"JOB_BACKOFF_BASE" envDefault:"60s"`
	BackoffMax   time.Duration `env:"JOB_BACKOFF_MAX_DELAY" envDefault:"0s"`
	ReaperCron   string        `env:"JOB_REAPER_SCHEDULE" envDefault:"*/5 * * * *"`
	ClaimTimeout time.Duration `env:"JOB_CLAIM_TIMEOUT" envDefault:"10m"`
}

// Token holds payment token validation settings.
type Token struct {
	Remote    bool          `env:"PAYTOKEN_REMOTE_CHECK" envDefault:"true"`
	CacheTTL  time.Duration `env:"PAYTOKEN_CACHE_TTL" envDefault:"15m"`
	MinLength int           `env:"PAYTOKEN_MIN_LENGTH" envDefault:"8"`

	LookupTimeout time.Duration `env:"PAYTOKEN_LOOKUP_TIMEOUT" envDefault:"30s"`
}

// Load reads .env files (all optional; defaults to ".env") into the process
// environment without overriding variables already set, then parses the
// environment into a Config.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Join(ErrLoadDotenv, fmt.Errorf("%s: %w", f, err))
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, errors.Join(ErrParse, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks relations between settings that tags cannot express.
func (c *Config) Validate() error {
	var errs []error
	// A committed charge may run up to the ledger timeout past JOB_TIMEOUT.
	if longest := c.Worker.Timeout + billing.LedgerTimeout; c.Worker.ClaimTimeout <= longest {
		errs = append(errs, fmt.Errorf("JOB_CLAIM_TIMEOUT (%s) must exceed JOB_TIMEOUT plus the ledger timeout (%s)", c.Worker.ClaimTimeout, longest))
	}
	if c.Worker.BackoffMax > 0 && c.Worker.BackoffMax < c.Worker.BackoffBase {
		errs = append(errs, fmt.Errorf("JOB_BACKOFF_MAX_DELAY (%s) is below JOB_BACKOFF_BASE (%s)", c.Worker.BackoffMax, c.Worker.BackoffBase))
	}
	if c.Worker.MaxRetries <= 0 {
		errs = append(errs, fmt.Errorf("JOB_MAX_RETRIES must be positive, got %d", c.Worker.MaxRetries))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalid}, errs...)...)
	}
	return nil
}
