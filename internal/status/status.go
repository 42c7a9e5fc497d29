package status

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrFailedPayment      = errors.New("payment: payment failed")
	ErrSessionNotFound    = errors.New("checkout: session not found")
	ErrInvalidSignature   = errors.New("webhook: invalid signature")
	ErrMalformedEventBody = errors.New("webhook: malformed event body")
)

// Transaction is a payment-provider confirmation, normalized from the
// provider's wire payload. UUID is the opaque order ID echoed back from
// the checkout session metadata; RefID is the provider's own
// transaction reference and deduplicates replayed deliveries.
type Transaction struct {
	RefID         string          `json:"ref_id"`
	UUID          string          `json:"uuid"`
	Status        string          `json:"status"`
	Ccy           string          `json:"ccy"`
	Payer         string          `json:"payer"`
	AccountNumber string          `json:"account_number"`
	Amount        decimal.Decimal `json:"amount"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Final reports whether the provider considers the transaction settled.
func (t *Transaction) Final() bool {
	return t.Status == "FNLD"
}

// CheckoutForm is the request handed to a payment provider to open a
// checkout session. UUID carries the order ID as opaque metadata the
// provider echoes back in its confirmation events.
type CheckoutForm struct {
	UUID        string
	UserRef     string
	Amount      decimal.Decimal
	Currency    string
	Description string
	SuccessURL  string
	CancelURL   string
}
