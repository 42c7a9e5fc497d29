package yespay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	pubnub "github.com/pubnub/go/v7"
	"github.com/shopspring/decimal"

	"ticket-shop/internal/status"
)

type (
	Config struct {
		BaseURL string `json:"baseUrl" mapstructure:"base_url"`

		PartnerID  string `json:"partnerId" mapstructure:"partner_id"`
		ClientID   string `json:"clientId" mapstructure:"client_id"`
		ClientKey  string `json:"clientKey" mapstructure:"client_key"`
		HMACKey    string `json:"hmacKey" mapstructure:"hmac_key"`
		WebhookKey string `json:"webhookKey" mapstructure:"webhook_key"`

		// WebhookCredential is the bcrypt hash of the shared token YesPay
		// sends on webhook deliveries. Empty disables the check.
		WebhookCredential string `json:"webhookCredential" mapstructure:"webhook_credential"`

		PNSubKey    string `json:"pn_subkey" mapstructure:"pn_subkey"`
		PNSubSecret string `json:"pn_subsecret" mapstructure:"pn_subsecret"`
		PNUUID      string `json:"pn_uuid" mapstructure:"pn_uuid"`
		PNChannel   string `json:"pn_channel" mapstructure:"pn_channel"`
		PNCipherKey string `json:"pn_cipherKey" mapstructure:"pn_cipherkey"`
	}

	// Yespay is the hosted-checkout payment provider. Confirmations
	// arrive both over the signed webhook and over the provider's
	// PubNub transaction stream.
	Yespay struct {
		partnerID      string
		webhookKey     string
		credentialHash string

		pnSubKey    string
		pnSubSecret string
		pnUUID      string
		pnChannels  []string
		pnCipherKey string

		sub *subscribe

		client *Client
	}
)

// payload is YesPay's wire format for one settled transaction.
type payload struct {
	RefID         string          `json:"refNo"`
	UUID          string          `json:"billNumber"`
	Status        string          `json:"processingStatus"`
	Ccy           string          `json:"sourceCurrency"`
	Payer         string          `json:"sourceName"`
	AccountNumber string          `json:"sourceAccount"`
	Amount        decimal.Decimal `json:"txnAmount"`
	CreatedAt     string          `json:"txnDateTime"`
}

// New returns a new YesPay instance connected to the provider backend
// and subscribed to its transaction stream.
func New(ctx context.Context, cfg *Config) (*Yespay, error) {
	client := newClient(ctx, &ClientConfig{
		BaseURL:   cfg.BaseURL,
		PartnerID: cfg.PartnerID,
		ClientID:  cfg.ClientID,
		ClientKey: cfg.ClientKey,
		HMACKey:   cfg.HMACKey,
	})

	// Connect to the YesPay backend. Get access token.
	token, err := client.connect(ctx)
	if err != nil {
		return nil, err
	}
	client.setAccessToken(token)

	// Notify access token expired.
	go client.notifyAccessTokenExpired(ctx)

	y := &Yespay{
		partnerID:      cfg.PartnerID,
		webhookKey:     cfg.WebhookKey,
		credentialHash: cfg.WebhookCredential,

		pnSubKey:    cfg.PNSubKey,
		pnSubSecret: cfg.PNSubSecret,
		pnUUID:      cfg.PNUUID,
		pnChannels:  []string{cfg.PNChannel},
		pnCipherKey: cfg.PNCipherKey,

		client: client,
	}

	// Set YesPay's PubNub config.
	pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(y.pnUUID))
	pnCfg.SubscribeKey = y.pnSubKey
	pnCfg.CipherKey = y.pnCipherKey
	pnCfg.SecretKey = y.pnSubSecret

	// newSubscription subscribes to YesPay's PubNub channel.
	newSub, err := y.newSubscription(ctx, pnCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to YesPay's PubNub channel: %v", err)
	}

	newSub.pn.AddListener(newSub.lis)
	newSub.pn.Subscribe().Channels(y.pnChannels).Execute()
	y.sub = newSub

	return y, nil
}

func (y *Yespay) Name() string {
	return "yespay"
}

// CreateCheckoutSession opens a hosted checkout and returns its URL.
func (y *Yespay) CreateCheckoutSession(ctx context.Context, f *status.CheckoutForm) (string, error) {
	return y.client.createSession(ctx, f)
}

// VerifyWebhook authenticates the raw event body against the webhook
// HMAC key and normalizes the payload. When a shared webhook credential
// is configured, the presented token must also match its bcrypt hash.
func (y *Yespay) VerifyWebhook(body []byte, signature, credential string) (*status.Transaction, error) {
	if y.credentialHash != "" && !CompareCredential([]byte(y.credentialHash), []byte(credential)) {
		return nil, status.ErrInvalidSignature
	}
	if signature == "" || !VerifySignature(body, []byte(y.webhookKey), signature) {
		return nil, status.ErrInvalidSignature
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, status.ErrMalformedEventBody
	}
	tran, err := p.ToDomain()
	if err != nil {
		return nil, status.ErrMalformedEventBody
	}
	return tran, nil
}

func (y *Yespay) SetTransactionChannel(ch chan *status.Transaction) {
	y.sub.ch = ch
}

func (y *Yespay) CheckTransaction(ctx context.Context, uuid string) (*status.Transaction, error) {
	return y.client.checkTransaction(ctx, uuid)
}

func (y *Yespay) Close(_ context.Context) error {
	if y.sub != nil && y.sub.pn != nil {
		y.sub.pn.UnsubscribeAll()
	}
	return nil
}

type subscribe struct {
	pn  *pubnub.PubNub
	lis *pubnub.Listener
	ch  chan *status.Transaction
}

func (y *Yespay) newSubscription(ctx context.Context, pnCfg *pubnub.Config) (*subscribe, error) {
	sub := &subscribe{
		pn:  pubnub.NewPubNub(pnCfg),
		lis: pubnub.NewListener(),
	}

	go sub.processSubscription(ctx)

	return sub, nil
}

func (s *subscribe) processSubscription(ctx context.Context) error {
	listener := s.lis
	for {
		select {
		case st := <-listener.Status:
			switch st.Category {
			case pubnub.PNConnectedCategory:
				log.Println("connected to pubnub")

			case pubnub.PNReconnectedCategory:
				log.Println("reconnected to pubnub")

			case pubnub.PNDisconnectedCategory:
				log.Println("disconnected from pubnub")

			case pubnub.PNTimeoutCategory:
				log.Println("timeout connect to pubnub")

			default:
				log.Println("pubnub status:", st.Category)
			}

		case message := <-listener.Message:
			raw, ok := message.Message.(string)
			if !ok {
				log.Println("unexpected pubnub message type")
				continue
			}

			var p payload
			dec := json.NewDecoder(strings.NewReader(raw))
			if err := dec.Decode(&p); err != nil {
				log.Println(err)
				continue
			}

			tran, err := p.ToDomain()
			if err != nil {
				log.Println(err)
				continue
			}
			if s.ch != nil {
				s.ch <- tran
			}

		case <-ctx.Done():
			log.Println("close subscribe")
			return nil
		}
	}
}

func (p *payload) ToDomain() (*status.Transaction, error) {
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", p.CreatedAt, time.Local)
	if err != nil {
		return nil, err
	}

	return &status.Transaction{
		RefID:         p.RefID,
		UUID:          p.UUID,
		Status:        p.Status,
		Ccy:           p.Ccy,
		Payer:         p.Payer,
		AccountNumber: p.AccountNumber,
		Amount:        p.Amount,
		CreatedAt:     ts,
	}, nil
}
