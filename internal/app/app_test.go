package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) hook(name string, err error) func(context.Context) error {
	return func(context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, name)
		return err
	}
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestRunner_Lifecycle(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())

	r := New(
		WithContext(ctx),
		Service("worker", rec.hook("start worker", nil), rec.hook("stop worker", nil)),
		Service("reaper", rec.hook("start reaper", nil), rec.hook("stop reaper", nil)),
		ShutdownHook(rec.hook("close db", nil)),
		ShutdownHook(rec.hook("close redis", nil)),
	)

	done := make(chan error, 1)
	go func() { done <- r.Run() }()

	require.Eventually(t, func() bool { return len(rec.list()) == 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}

	assert.Equal(t, []string{
		"start worker", "start reaper",
		"stop reaper", "stop worker",
		"close db", "close redis",
	}, rec.list())
}

func TestRunner_StartFailureStopsStartedServices(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	boom := errors.New("boom")

	err := New(
		Service("worker", rec.hook("start worker", nil), rec.hook("stop worker", nil)),
		Service("reaper", rec.hook("start reaper", boom), rec.hook("stop reaper", nil)),
		ShutdownHook(rec.hook("close db", nil)),
	).Run()

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"start worker", "start reaper", "stop worker", "close db"}, rec.list())
}

func TestRunner_ShutdownErrorsAreJoined(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	stopErr := errors.New("stop failed")
	closeErr := errors.New("close failed")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(
		WithContext(ctx),
		Service("worker", rec.hook("start", nil), rec.hook("stop", stopErr)),
		ShutdownHook(rec.hook("close", closeErr)),
		ShutdownTimeout(time.Second),
	).Run()

	assert.ErrorIs(t, err, stopErr)
	assert.ErrorIs(t, err, closeErr)
	assert.Equal(t, []string{"start", "stop", "close"}, rec.list())
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestRunner_ServesProbes(t *testing.T) {
	t.Parallel()

	addr := freeAddr(t)
	ctx, cancel := context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "OK") })

	done := make(chan error, 1)
	go func() { done <- New(WithContext(ctx), Address(addr), Handler(mux)).Run() }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://%s/health/live", addr))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "OK", body)

	cancel()
	require.NoError(t, <-done)
}

func TestRunner_ListenFailureRunsHooks(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	rec := &recorder{}
	err = New(
		Address(ln.Addr().String()),
		Handler(http.NotFoundHandler()),
		Service("worker", rec.hook("start", nil), rec.hook("stop", nil)),
		ShutdownHook(rec.hook("close", nil)),
	).Run()

	require.Error(t, err)
	assert.Equal(t, []string{"close"}, rec.list())
}
