package billing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/trekpay/pkg/job"
)

func TestChargePayload_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*ChargePayload)
		wantMsg string
	}{
		{name: "valid", mutate: func(*ChargePayload) {}},
		{name: "no organizer", mutate: func(p *ChargePayload) { p.OrganizerID = "" }, wantMsg: "organizerId"},
		{name: "blank order", mutate: func(p *ChargePayload) { p.OrderID = "  " }, wantMsg: "orderId"},
		{
			name:    "several missing",
			mutate:  func(p *ChargePayload) { p.CustomerID, p.SubscriptionID = "", "" },
			wantMsg: "subscriptionId, razorpayCustomerId",
		},
		{name: "zero amount", mutate: func(p *ChargePayload) { p.Amount = 0 }, wantMsg: "amount must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := validPayload()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidPayload)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestChargePayload_Request(t *testing.T) {
	t.Parallel()

	req := validPayload().Request("key_1")
	assert.Equal(t, "cust_1", req.CustomerID)
	assert.Equal(t, "token_Ab12Cd34", req.PaymentMethodID)
	assert.Equal(t, int64(49900), req.Amount)
	assert.Equal(t, "order_1", req.OrderID)
	assert.Equal(t, "key_1", req.IdempotencyKey)
}

func TestEnqueueCharge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q, err := job.NewQueue(job.NewMemory())
	require.NoError(t, err)

	bad := validPayload()
	bad.Amount = -1
	_, err = EnqueueCharge(ctx, q, bad)
	assert.ErrorIs(t, err, ErrInvalidPayload)

	j, err := EnqueueCharge(ctx, q, validPayload(), job.WithMaxRetries(3))
	require.NoError(t, err)
	assert.Equal(t, JobType, j.Type)
	assert.Equal(t, 3, j.MaxRetries)

	var decoded ChargePayload
	require.NoError(t, j.Decode(&decoded))
	assert.Equal(t, validPayload(), decoded)

	// The wire format keeps the field names billing code sends.
	assert.Contains(t, string(j.Payload), `"razorpayCustomerId":"cust_1"`)

	_, err = EnqueueChargeTx(ctx, q, nil, validPayload())
	assert.ErrorIs(t, err, job.ErrTxUnsupported)
}

func TestFormatAmount(t *testing.T) {
	t.Parallel()

	got := FormatAmount(49900)
	assert.Contains(t, got, "INR")
	assert.Contains(t, got, "499.00")
	assert.Contains(t, FormatAmount(5), "0.05")
}
