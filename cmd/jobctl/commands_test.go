package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/trekpay/pkg/billing"
	"github.com/dmitrymomot/trekpay/pkg/job"
	"github.com/dmitrymomot/trekpay/pkg/metrics"
	"github.com/dmitrymomot/trekpay/pkg/paytoken"
)

type memoryBackend struct {
	queue    *job.Queue
	counters *metrics.Counters
	migrated bool
}

func newMemoryBackend(t *testing.T) *memoryBackend {
	t.Helper()

	c := metrics.NewCounters()
	q, err := job.NewQueue(job.NewMemory(), job.WithMetrics(c))
	require.NoError(t, err)
	return &memoryBackend{queue: q, counters: c}
}

func (m *memoryBackend) Queue(context.Context) (*job.Queue, error) { return m.queue, nil }

func (m *memoryBackend) Reaper(context.Context) (*job.Reaper, error) { return job.NewReaper(m.queue) }

func (m *memoryBackend) Validator(context.Context) (*paytoken.Validator, error) {
	return paytoken.New(), nil
}

func (m *memoryBackend) Stats(context.Context, ...string) (metrics.Snapshot, error) {
	return m.counters.Snapshot(), nil
}

func (m *memoryBackend) Migrate(context.Context) error {
	m.migrated = true
	return nil
}

func (m *memoryBackend) Version(context.Context) (int64, error) {
	if !m.migrated {
		return 0, nil
	}
	return 2, nil
}

func (m *memoryBackend) Close() {}

func execute(t *testing.T, b backend, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCmd(b)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

var chargeArgs = []string{
	"enqueue-charge",
	"--organizer", "org_1",
	"--subscription", "sub_1",
	"--customer", "cust_1",
	"--token", "token_Ab12Cd34",
	"--amount", "49900",
	"--order", "order_1",
}

func TestEnqueueListShowCancel(t *testing.T) {
	t.Parallel()

	b := newMemoryBackend(t)

	out, err := execute(t, b, append(chargeArgs, "--max-retries", "3")...)
	require.NoError(t, err)
	assert.Contains(t, out, "enqueued ")

	jobs, err := b.queue.List(context.Background(), job.Filter{})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	id := jobs[0].ID.String()
	assert.Equal(t, 3, jobs[0].MaxRetries)

	out, err = execute(t, b, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, id)
	assert.Contains(t, out, "0/3")

	out, err = execute(t, b, "list", "--status", "failed")
	require.NoError(t, err)
	assert.NotContains(t, out, id)

	out, err = execute(t, b, "show", id)
	require.NoError(t, err)
	var shown job.Job
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, billing.JobType, shown.Type)
	assert.Equal(t, "sub_1", shown.ReferenceID)

	out, err = execute(t, b, "cancel", id, "--reason", "refunded manually")
	require.NoError(t, err)
	assert.Contains(t, out, "cancelled "+id)

	got, err := b.queue.Get(context.Background(), jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCancelled, got.Status)
	assert.Equal(t, "refunded manually", got.LastError)

	_, err = execute(t, b, "cancel", id)
	assert.ErrorIs(t, err, job.ErrInvalidTransition)

	out, err = execute(t, b, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "charge")
}

func TestEnqueueCharge_Validation(t *testing.T) {
	t.Parallel()

	b := newMemoryBackend(t)

	_, err := execute(t, b, "enqueue-charge", "--organizer", "org_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")

	args := append([]string(nil), chargeArgs...)
	args[len(args)-3] = "0" // amount
	_, err = execute(t, b, args...)
	assert.ErrorIs(t, err, billing.ErrInvalidPayload)
}

func TestShow_Errors(t *testing.T) {
	t.Parallel()

	b := newMemoryBackend(t)

	_, err := execute(t, b, "show", "not-a-uuid")
	assert.ErrorContains(t, err, "invalid job id")

	_, err = execute(t, b, "show", "0b6c1d5e-8f4a-4f47-9d7b-2a7a1c3e9f10")
	assert.ErrorIs(t, err, job.ErrNotFound)
}

func TestValidateToken(t *testing.T) {
	t.Parallel()

	b := newMemoryBackend(t)

	out, err := execute(t, b, "validate-token", "token_Ab12Cd34")
	require.NoError(t, err)
	assert.Contains(t, out, `"valid": true`)
	assert.Contains(t, out, `"reason": "not_verified_remote"`)

	out, err = execute(t, b, "validate-token", "ab")
	assert.ErrorIs(t, err, errTokenInvalid)
	assert.Contains(t, out, `"reason": "invalid_format"`)
}

func TestSweepAndMigrate(t *testing.T) {
	t.Parallel()

	b := newMemoryBackend(t)

	out, err := execute(t, b, "sweep")
	require.NoError(t, err)
	assert.Equal(t, "recovered 0 job(s)\n", out)

	out, err = execute(t, b, "schema-version")
	require.NoError(t, err)
	assert.Equal(t, "0\n", out)

	out, err = execute(t, b, "migrate")
	require.NoError(t, err)
	assert.Equal(t, "schema at version 2\n", out)
}

type failingBackend struct{ memoryBackend }

var errBackendDown = errors.New("DATABASE_URL is not set")

func (failingBackend) Queue(context.Context) (*job.Queue, error) { return nil, errBackendDown }

func TestBackendErrorsSurface(t *testing.T) {
	t.Parallel()

	_, err := execute(t, &failingBackend{}, "list")
	assert.ErrorIs(t, err, errBackendDown)
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
