package job

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthcheck_NilWorker(t *testing.T) {
	t.Parallel()

	check := Healthcheck(nil)
	err := check(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHealthcheckFailed)
	assert.ErrorIs(t, err, errWorkerNil)
}

func TestHealthcheck_NotRunning(t *testing.T) {
	t.Parallel()

	q, _ := newTestQueue(t)
	w := newTestWorker(t, q)

	err := Healthcheck(w)(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHealthcheckFailed)
	assert.ErrorIs(t, err, errWorkerNotRunning)
}

func TestHealthcheck_StoreDown(t *testing.T) {
	t.Parallel()

	q, err := NewQueue(failingStore{NewMemory()})
	require.NoError(t, err)
	w := newTestWorker(t, q)
	w.running = true

	err = Healthcheck(w)(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHealthcheckFailed)
	assert.Contains(t, err.Error(), "connection refused")
}
