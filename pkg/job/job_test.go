package job

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusInProgress, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusFailed, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusPending, true},
		{StatusInProgress, StatusFailed, true},
		{StatusInProgress, StatusCancelled, true},
		{StatusCompleted, StatusPending, false},
		{StatusFailed, StatusPending, false},
		{StatusCancelled, StatusInProgress, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	assert.True(t, StatusPending.Valid())
	assert.False(t, Status("running").Valid())

	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusInProgress.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}

func TestJob_Due(t *testing.T) {
	t.Parallel()

	now := time.Now()
	j := &Job{Status: StatusPending, NextRetryAt: now}
	assert.True(t, j.Due(now))
	assert.False(t, j.Due(now.Add(-time.Second)))

	j.Status = StatusInProgress
	assert.False(t, j.Due(now.Add(time.Hour)))
}

func TestJob_Decode(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()

		j := &Job{Payload: json.RawMessage(`{"message":"hi","count":2}`)}
		var p testPayload
		require.NoError(t, j.Decode(&p))
		assert.Equal(t, testPayload{Message: "hi", Count: 2}, p)
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()

		var p testPayload
		assert.ErrorIs(t, (&Job{}).Decode(&p), ErrInvalidPayload)
	})

	t.Run("malformed", func(t *testing.T) {
		t.Parallel()

		j := &Job{Payload: json.RawMessage(`{"count":"two"}`)}
		var p testPayload
		assert.ErrorIs(t, j.Decode(&p), ErrInvalidPayload)
	})
}

func TestFromContext(t *testing.T) {
	t.Parallel()

	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	j := &Job{ID: uuid.New(), Type: "charge"}
	got, ok := FromContext(withJob(context.Background(), j))
	require.True(t, ok)
	assert.Equal(t, j.ID, got.ID)

	extractors := LogExtractors()
	require.Len(t, extractors, 2)
	attr, ok := extractors[0](withJob(context.Background(), j))
	require.True(t, ok)
	assert.Equal(t, j.ID.String(), attr.Value.String())
	attr, ok = extractors[1](withJob(context.Background(), j))
	require.True(t, ok)
	assert.Equal(t, "charge", attr.Value.String())
}

func TestPermanent(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Permanent(nil))

	err := Permanent(ErrInvalidPayload)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, ErrInvalidPayload)
	assert.False(t, IsPermanent(ErrInvalidPayload))
}

func TestFailOutcome(t *testing.T) {
	t.Parallel()

	tests := []struct {
		retryCount, maxRetries int
		wantCount              int
		wantStatus             Status
	}{
		{0, 5, 1, StatusPending},
		{3, 5, 4, StatusPending},
		{4, 5, 5, StatusFailed},
		{0, 1, 1, StatusFailed},
		{7, 5, 5, StatusFailed},
	}
	for _, tt := range tests {
		count, status := failOutcome(tt.retryCount, tt.maxRetries)
		assert.Equal(t, tt.wantCount, count)
		assert.Equal(t, tt.wantStatus, status)
	}
}

// testPayload is a test payload type.
type testPayload struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}
