package gateway

import (
	"context"
	"fmt"

	"ticket-shop/config"
	"ticket-shop/internal/gateway/yespay"
	"ticket-shop/internal/status"
)

// Provider is the payment-session collaborator boundary. Signature
// verification of inbound provider events happens here, before anything
// reaches the reconciler.
type Provider interface {
	// Name returns the provider identifier recorded on Payment rows.
	Name() string

	// CreateCheckoutSession opens a provider checkout for the form and
	// returns the redirect URL.
	CreateCheckoutSession(ctx context.Context, f *status.CheckoutForm) (string, error)

	// VerifyWebhook authenticates a raw provider event against its
	// signature, plus the shared delivery credential when the provider
	// is configured with one, and normalizes it. Returns
	// status.ErrInvalidSignature when either check fails.
	VerifyWebhook(body []byte, signature, credential string) (*status.Transaction, error)

	// CheckTransaction queries the provider for the transaction behind
	// a checkout session, identified by the order ID the session was
	// opened with. Returns status.ErrFailedPayment when the provider
	// has no transaction for it.
	CheckTransaction(ctx context.Context, uuid string) (*status.Transaction, error)

	// SetTransactionChannel sets the channel receiving transactions
	// streamed over the provider's push subscription.
	SetTransactionChannel(ch chan *status.Transaction)

	// Close gracefully closes provider connections.
	Close(ctx context.Context) error
}

// New creates the configured provider instance.
func New(ctx context.Context, cfg *config.GatewayConfig) (Provider, error) {
	switch cfg.Provider {
	case "yespay":
		return yespay.New(ctx, &yespay.Config{
			BaseURL:    cfg.BaseURL,
			PartnerID:  cfg.PartnerID,
			ClientID:   cfg.ClientID,
			ClientKey:  cfg.ClientKey,
			HMACKey:    cfg.HMACKey,
			WebhookKey: cfg.WebhookKey,

			WebhookCredential: cfg.WebhookCredential,

			PNSubKey:    cfg.PNSubKey,
			PNSubSecret: cfg.PNSubSecret,
			PNUUID:      cfg.PNUUID,
			PNChannel:   cfg.PNChannel,
			PNCipherKey: cfg.PNCipherKey,
		})
	default:
		return nil, fmt.Errorf("gateway: unsupported provider %q", cfg.Provider)
	}
}
