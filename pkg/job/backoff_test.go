package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_Delay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		retryCount int
		min        time.Duration
		max        time.Duration
	}{
		{name: "first retry", retryCount: 0, min: 60 * time.Second, max: 120 * time.Second},
		{name: "second retry", retryCount: 1, min: 120 * time.Second, max: 180 * time.Second},
		{name: "third retry", retryCount: 2, min: 240 * time.Second, max: 300 * time.Second},
		{name: "fifth retry", retryCount: 4, min: 960 * time.Second, max: 1020 * time.Second},
		{name: "negative clamps to zero", retryCount: -3, min: 60 * time.Second, max: 120 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b := &Backoff{}
			for range 50 {
				d := b.Delay(tt.retryCount)
				assert.GreaterOrEqual(t, d, tt.min)
				assert.Less(t, d, tt.max)
			}
		})
	}
}

func TestBackoff_Monotonic(t *testing.T) {
	t.Parallel()

	// Jitter is below one base unit, so the lower bound of n+1 is above
	// the upper bound of n.
	b := (&Backoff{}).withSeed(42)
	prev := time.Duration(0)
	for n := range 10 {
		d := b.Delay(n)
		assert.Greater(t, d, prev, "retry %d", n)
		prev = d
	}
}

func TestBackoff_Seeded(t *testing.T) {
	t.Parallel()

	a := (&Backoff{}).withSeed(7)
	b := (&Backoff{}).withSeed(7)
	for n := range 5 {
		assert.Equal(t, a.Delay(n), b.Delay(n))
	}
}

func TestBackoff_CustomBase(t *testing.T) {
	t.Parallel()

	b := NewBackoff(time.Second, 0)
	d := b.Delay(3)
	assert.GreaterOrEqual(t, d, 8*time.Second)
	assert.Less(t, d, 9*time.Second)
}

func TestBackoff_MaxDelay(t *testing.T) {
	t.Parallel()

	b := NewBackoff(time.Minute, time.Hour)
	assert.Equal(t, time.Hour, b.Delay(10))
	assert.Less(t, b.Delay(0), 2*time.Minute)
}

func TestBackoff_Saturates(t *testing.T) {
	t.Parallel()

	b := &Backoff{}
	assert.Equal(t, maxDuration, b.Delay(40))
	assert.Equal(t, maxDuration, b.Delay(1000))
}
