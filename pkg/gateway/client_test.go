package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/trekpay/pkg/gateway"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *gateway.Client {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := gateway.New(gateway.Config{
		BaseURL:   srv.URL,
		KeyID:     "rzp_test_key",
		KeySecret: "secret",
		Timeout:   2 * time.Second,
	})
	require.NoError(t, err)
	return c
}

func validCharge() gateway.ChargeRequest {
	return gateway.ChargeRequest{
		CustomerID:      "cust_1",
		PaymentMethodID: "token_abc123",
		Amount:          49900,
		OrderID:         "order_1",
		IdempotencyKey:  "job-1",
	}
}

func TestNew_NotConfigured(t *testing.T) {
	t.Parallel()

	_, err := gateway.New(gateway.Config{BaseURL: "http://x"})
	assert.ErrorIs(t, err, gateway.ErrNotConfigured)
}

func TestClient_Charge(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payments/create/recurring", r.URL.Path)
		assert.Equal(t, "job-1", r.Header.Get("X-Idempotency-Key"))

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "secret", pass)

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "cust_1", body["customer_id"])
		assert.Equal(t, "token_abc123", body["token"])
		assert.Equal(t, float64(49900), body["amount"])
		assert.Equal(t, "INR", body["currency"])
		assert.Equal(t, "order_1", body["order_id"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pay_1","status":"captured","amount":49900,"order_id":"order_1","created_at":1767225600}`))
	})

	p, err := c.Charge(context.Background(), validCharge())
	require.NoError(t, err)
	assert.Equal(t, "pay_1", p.ID)
	assert.Equal(t, "captured", p.Status)
	assert.Equal(t, int64(49900), p.Amount)
	assert.Equal(t, time.Unix(1767225600, 0).UTC(), p.Paid(time.Time{}))
}

func TestClient_Charge_APIError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		body      string
		code      string
		temporary bool
	}{
		{
			name:      "server error",
			status:    http.StatusBadGateway,
			body:      `{"error":{"code":"SERVER_ERROR","description":"upstream down"}}`,
			code:      "SERVER_ERROR",
			temporary: true,
		},
		{
			name:      "rate limited",
			status:    http.StatusTooManyRequests,
			body:      `{"error":{"code":"TOO_MANY","description":"slow down"}}`,
			code:      "TOO_MANY",
			temporary: true,
		},
		{
			name:   "declined",
			status: http.StatusBadRequest,
			body:   `{"error":{"code":"BAD_REQUEST_ERROR","description":"card declined"}}`,
			code:   "BAD_REQUEST_ERROR",
		},
		{
			name:      "no body",
			status:    http.StatusServiceUnavailable,
			temporary: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				if tt.body != "" {
					w.Header().Set("Content-Type", "application/json")
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.Charge(context.Background(), validCharge())
			var apiErr *gateway.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.code, apiErr.Code)
			assert.Equal(t, tt.temporary, apiErr.Temporary())
		})
	}
}

func TestClient_Charge_InvalidRequest(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(http.ResponseWriter, *http.Request) { calls.Add(1) })

	req := validCharge()
	req.OrderID = ""
	_, err := c.Charge(context.Background(), req)
	assert.ErrorIs(t, err, gateway.ErrInvalidRequest)
	assert.Contains(t, err.Error(), "order_id")

	req = validCharge()
	req.Amount = 0
	_, err = c.Charge(context.Background(), req)
	assert.ErrorIs(t, err, gateway.ErrInvalidRequest)

	assert.Equal(t, int32(0), calls.Load())
}

func TestClient_Charge_Timeout(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Charge(ctx, validCharge())
	require.Error(t, err)
}

func TestClient_VerifyToken(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/tokens/token_known":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"token_known"}`))
		case "/v1/tokens/token_broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ctx := context.Background()
	assert.NoError(t, c.VerifyToken(ctx, "token_known"))
	assert.ErrorIs(t, c.VerifyToken(ctx, "token_missing"), gateway.ErrTokenNotFound)
	assert.ErrorIs(t, c.VerifyToken(ctx, ""), gateway.ErrInvalidRequest)

	var apiErr *gateway.APIError
	require.ErrorAs(t, c.VerifyToken(ctx, "token_broken"), &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestClient_RateLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	c, err := gateway.New(gateway.Config{
		BaseURL:       srv.URL,
		KeyID:         "k",
		KeySecret:     "s",
		RatePerSecond: 0.001,
		RateBurst:     1,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.NoError(t, c.VerifyToken(ctx, "token_a"))
	// The bucket is empty and refills far beyond the deadline.
	assert.ErrorIs(t, c.VerifyToken(ctx, "token_b"), gateway.ErrRateLimited)
}

func TestConfig_Configured(t *testing.T) {
	t.Parallel()

	assert.False(t, gateway.Config{}.Configured())
	assert.True(t, gateway.Config{BaseURL: "u", KeyID: "k", KeySecret: "s"}.Configured())
}

func newRetryingClient(t *testing.T, h http.HandlerFunc) *gateway.Client {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := gateway.New(gateway.Config{
		BaseURL:       srv.URL,
		KeyID:         "rzp_test_key",
		KeySecret:     "secret",
		Timeout:       2 * time.Second,
		ReadRetries:   2,
		ReadRetryWait: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestClient_VerifyToken_RetriesTemporaryFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newRetryingClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"token_known"}`))
	})

	require.NoError(t, c.VerifyToken(context.Background(), "token_known"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_VerifyToken_PermanentFailureNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newRetryingClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	var apiErr *gateway.APIError
	require.ErrorAs(t, c.VerifyToken(context.Background(), "token_x"), &apiErr)
	assert.False(t, apiErr.Temporary())
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Charge_NeverRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newRetryingClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	var apiErr *gateway.APIError
	_, err := c.Charge(context.Background(), validCharge())
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.Temporary())
	assert.Equal(t, int32(1), calls.Load())
}
