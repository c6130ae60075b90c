package job

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// DefaultBackoffBase is the base delay of the default backoff.
const DefaultBackoffBase = 60 * time.Second

const maxDuration = time.Duration(math.MaxInt64)

// Backoff computes retry delays as base*2^n plus uniform jitter in [0, base).
// The zero value uses DefaultBackoffBase and no cap.
type Backoff struct {
	// Base is the delay unit. Zero means DefaultBackoffBase.
	Base time.Duration
	// MaxDelay caps the returned delay, jitter included. Zero means uncapped.
	MaxDelay time.Duration

	mu   sync.Mutex
	rand *rand.Rand
}

// NewBackoff returns a backoff with the given base and cap.
func NewBackoff(base, maxDelay time.Duration) *Backoff {
	return &Backoff{Base: base, MaxDelay: maxDelay}
}

// Delay returns the wait before the retry following attempt retryCount.
// Negative counts are treated as zero.
func (b *Backoff) Delay(retryCount int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = DefaultBackoffBase
	}
	n := min(max(retryCount, 0), 62)

	delay := maxDuration
	if base <= maxDuration>>n {
		delay = base << n
	}
	if j := b.jitter(base); delay <= maxDuration-j {
		delay += j
	} else {
		delay = maxDuration
	}

	if b.MaxDelay > 0 && delay > b.MaxDelay {
		return b.MaxDelay
	}
	return delay
}

func (b *Backoff) jitter(base time.Duration) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rand != nil {
		return time.Duration(b.rand.Int64N(int64(base)))
	}
	return time.Duration(rand.Int64N(int64(base)))
}

// withSeed makes jitter deterministic. Used by tests.
func (b *Backoff) withSeed(seed uint64) *Backoff {
	b.rand = rand.New(rand.NewPCG(seed, seed))
	return b
}
