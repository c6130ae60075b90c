package gateway

import "time"

// Config holds payment gateway credentials and client limits.
type Config struct {
	BaseURL   string `env:"GATEWAY_BASE_URL" envDefault:"https://api.razorpay.com"`
	KeyID     string `env:"GATEWAY_KEY_ID"`
	KeySecret string `env:"GATEWAY_KEY_SECRET"`

	Timeout time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"20s"`

	// Read-only calls are retried in place on temporary failures.
	// Charges never are; the job queue retries them.
	ReadRetries   int           `env:"GATEWAY_READ_RETRIES" envDefault:"2"`
	ReadRetryWait time.Duration `env:"GATEWAY_READ_RETRY_WAIT" envDefault:"200ms"`

	// Token bucket shared by every call made by this process.
	RatePerSecond float64 `env:"GATEWAY_RATE_PER_SECOND" envDefault:"5"`
	RateBurst     int     `env:"GATEWAY_RATE_BURST" envDefault:"5"`
}

// Configured reports whether credentials are present.
func (c Config) Configured() bool {
	return c.BaseURL != "" && c.KeyID != "" && c.KeySecret != ""
}
