package billing

import (
	"fmt"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/dmitrymomot/trekpay/pkg/gateway"
)

// JobType is the job type handled by ChargeHandler.
const JobType = "charge"

// ChargePayload is the body of a charge job. Amount is in paise.
type ChargePayload struct {
	OrganizerID     string `json:"organizerId"`
	SubscriptionID  string `json:"subscriptionId"`
	CustomerID      string `json:"razorpayCustomerId"`
	PaymentMethodID string `json:"paymentMethodId"`
	Amount          int64  `json:"amount"`
	OrderID         string `json:"orderId"`
}

// Validate reports missing or malformed fields.
func (p ChargePayload) Validate() error {
	var missing []string
	for _, f := range []struct{ name, val string }{
		{"organizerId", p.OrganizerID},
		{"subscriptionId", p.SubscriptionID},
		{"razorpayCustomerId", p.CustomerID},
		{"paymentMethodId", p.PaymentMethodID},
		{"orderId", p.OrderID},
	} {
		if strings.TrimSpace(f.val) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidPayload, strings.Join(missing, ", "))
	}
	if p.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidPayload)
	}
	return nil
}

// Request builds the gateway charge request. key deduplicates retried
// charges on the gateway side.
func (p ChargePayload) Request(key string) gateway.ChargeRequest {
	return gateway.ChargeRequest{
		CustomerID:      p.CustomerID,
		PaymentMethodID: p.PaymentMethodID,
		Amount:          p.Amount,
		OrderID:         p.OrderID,
		IdempotencyKey:  key,
	}
}

var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders an amount in paise for humans, e.g. "INR 499.00".
func FormatAmount(paise int64) string {
	return amountPrinter.Sprint(currency.INR.Amount(float64(paise) / 100))
}
