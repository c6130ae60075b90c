package paytoken

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/trekpay/pkg/logger"
)

// Reason explains a validation verdict.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonMissing           Reason = "missing"
	ReasonInvalidFormat     Reason = "invalid_format"
	ReasonNotVerifiedRemote Reason = "not_verified_remote"
	ReasonRemoteCheckFailed Reason = "remote_check_failed"
)

const (
	defaultMinLength     = 8
	defaultCacheTTL      = 15 * time.Minute
	defaultLookupTimeout = 30 * time.Second
	separator            = "_"
)

// Result is the verdict for one token. Valid with ReasonNotVerifiedRemote
// means the token only passed the local format check.
type Result struct {
	Valid  bool   `json:"valid"`
	Reason Reason `json:"reason,omitempty"`
}

// Verifier confirms a token with the payment gateway.
// *gateway.Client satisfies it.
type Verifier interface {
	VerifyToken(ctx context.Context, token string) error
}

// Validator decides whether a stored payment token can be relied on for
// an automatic charge.
type Validator struct {
	verifier      Verifier
	cache         Cache
	cacheTTL      time.Duration
	lookupTimeout time.Duration
	minLength     int
	logger        *slog.Logger
	group         singleflight.Group
}

// Option configures a Validator.
type Option func(*Validator)

// WithVerifier enables the remote check. Without it, well-formed tokens
// are reported as not_verified_remote.
func WithVerifier(v Verifier) Option {
	return func(val *Validator) {
		if v != nil {
			val.verifier = v
		}
	}
}

// WithCache stores positive remote verdicts for ttl.
// A non-positive ttl uses 15 minutes.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(val *Validator) {
		if c != nil {
			val.cache = c
		}
		if ttl > 0 {
			val.cacheTTL = ttl
		}
	}
}

// WithMinLength overrides the minimum token length. Defaults to 8.
func WithMinLength(n int) Option {
	return func(val *Validator) {
		if n > 0 {
			val.minLength = n
		}
	}
}

// WithLookupTimeout bounds one shared remote check. Defaults to 30 seconds.
// The check is not tied to any single caller, so a cancelled caller does
// not fail the others waiting on it.
func WithLookupTimeout(d time.Duration) Option {
	return func(val *Validator) {
		if d > 0 {
			val.lookupTimeout = d
		}
	}
}

// WithLogger sets the validator logger.
func WithLogger(l *slog.Logger) Option {
	return func(val *Validator) {
		if l != nil {
			val.logger = l
		}
	}
}

// New creates a validator.
//
// Example:
//
//	v := paytoken.New(
//	    paytoken.WithVerifier(gw),
//	    paytoken.WithCache(paytoken.NewRedisCache(rdb), time.Hour),
//	)
//	if res := v.Validate(ctx, sub.PaymentMethodID); !res.Valid {
//	    // fall back to a manual payment link
//	}
func New(opts ...Option) *Validator {
	v := &Validator{
		cacheTTL:      defaultCacheTTL,
		lookupTimeout: defaultLookupTimeout,
		minLength:     defaultMinLength,
		logger:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate classifies token. It never returns an error: a failed remote
// check is reported as an invalid verdict.
func (v *Validator) Validate(ctx context.Context, token string) Result {
	token = strings.TrimSpace(token)
	if token == "" {
		return Result{Reason: ReasonMissing}
	}
	if !v.wellFormed(token) {
		return Result{Reason: ReasonInvalidFormat}
	}
	if v.verifier == nil {
		return Result{Valid: true, Reason: ReasonNotVerifiedRemote}
	}

	key := cacheKey(token)
	if v.cached(ctx, key) {
		return Result{Valid: true}
	}

	// Concurrent checks of one token share a single gateway call.
	ch := v.group.DoChan(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.lookupTimeout)
		defer cancel()

		if err := v.verifier.VerifyToken(lctx, token); err != nil {
			v.logger.WarnContext(lctx, "payment token remote check failed", slog.Any("error", err))
			return Result{Reason: ReasonRemoteCheckFailed}, nil
		}
		if v.cache != nil {
			if err := v.cache.Set(lctx, key, v.cacheTTL); err != nil {
				v.logger.WarnContext(lctx, "payment token cache write failed", slog.Any("error", err))
			}
		}
		return Result{Valid: true}, nil
	})

	select {
	case r := <-ch:
		return r.Val.(Result)
	case <-ctx.Done():
		return Result{Reason: ReasonRemoteCheckFailed}
	}
}

// wellFormed requires the minimum length and a separator that is neither
// the first nor the last character, as in "token_Ab12Cd34".
func (v *Validator) wellFormed(token string) bool {
	if len(token) < v.minLength {
		return false
	}
	i := strings.Index(token, separator)
	return i > 0 && i < len(token)-1
}

func (v *Validator) cached(ctx context.Context, key string) bool {
	if v.cache == nil {
		return false
	}
	ok, err := v.cache.Has(ctx, key)
	if err != nil {
		v.logger.WarnContext(ctx, "payment token cache read failed", slog.Any("error", err))
		return false
	}
	return ok
}

// cacheKey hashes the token so raw tokens never reach the cache.
func cacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
