package yespay

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-shop/internal/status"
)

const webhookKey = "test-webhook-key"

func signedBody(t *testing.T, body string) (payload []byte, signature string) {
	t.Helper()
	return []byte(body), Hmac256([]byte(body), []byte(webhookKey))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"refNo":"R1"}`)
	sig := Hmac256(body, []byte(webhookKey))

	assert.True(t, VerifySignature(body, []byte(webhookKey), sig))
	assert.False(t, VerifySignature(body, []byte("wrong-key"), sig))
	assert.False(t, VerifySignature([]byte(`{"refNo":"R2"}`), []byte(webhookKey), sig))
	assert.False(t, VerifySignature(body, []byte(webhookKey), ""))
}

func TestVerifyWebhook_ValidEvent(t *testing.T) {
	y := &Yespay{webhookKey: webhookKey}

	body, sig := signedBody(t, `{
		"refNo": "REF123",
		"billNumber": "ORDER1",
		"processingStatus": "FNLD",
		"sourceCurrency": "USD",
		"sourceName": "A. Buyer",
		"sourceAccount": "0101xxx123",
		"txnAmount": 75.00,
		"txnDateTime": "2026-08-29 14:30:00"
	}`)

	tran, err := y.VerifyWebhook(body, sig, "")
	require.NoError(t, err)

	assert.Equal(t, "REF123", tran.RefID)
	assert.Equal(t, "ORDER1", tran.UUID)
	assert.True(t, tran.Final())
	assert.Equal(t, "USD", tran.Ccy)
	assert.True(t, decimal.NewFromFloat(75.00).Equal(tran.Amount))
	assert.Equal(t, time.Date(2026, 8, 29, 14, 30, 0, 0, time.Local), tran.CreatedAt)
}

func TestVerifyWebhook_BadSignature(t *testing.T) {
	y := &Yespay{webhookKey: webhookKey}

	body := []byte(`{"refNo":"REF123","billNumber":"ORDER1"}`)

	_, err := y.VerifyWebhook(body, "deadbeef", "")
	assert.ErrorIs(t, err, status.ErrInvalidSignature)

	_, err = y.VerifyWebhook(body, "", "")
	assert.ErrorIs(t, err, status.ErrInvalidSignature)
}

func TestVerifyWebhook_SharedCredential(t *testing.T) {
	hash, err := HashCredential([]byte("delivery-token"))
	require.NoError(t, err)

	y := &Yespay{webhookKey: webhookKey, credentialHash: hash}

	body, sig := signedBody(t, `{
		"refNo": "REF123",
		"billNumber": "ORDER1",
		"processingStatus": "FNLD",
		"txnAmount": 75.00,
		"txnDateTime": "2026-08-29 14:30:00"
	}`)

	tran, err := y.VerifyWebhook(body, sig, "delivery-token")
	require.NoError(t, err)
	assert.Equal(t, "ORDER1", tran.UUID)

	_, err = y.VerifyWebhook(body, sig, "wrong-token")
	assert.ErrorIs(t, err, status.ErrInvalidSignature)

	_, err = y.VerifyWebhook(body, sig, "")
	assert.ErrorIs(t, err, status.ErrInvalidSignature)
}

func TestVerifyWebhook_MalformedBody(t *testing.T) {
	y := &Yespay{webhookKey: webhookKey}

	body, sig := signedBody(t, `{"refNo": "REF123", "txnDateTime": "not-a-date"`)
	_, err := y.VerifyWebhook(body, sig, "")
	assert.ErrorIs(t, err, status.ErrMalformedEventBody)

	body, sig = signedBody(t, `{"refNo": "REF123", "txnDateTime": "not-a-date"}`)
	_, err = y.VerifyWebhook(body, sig, "")
	assert.ErrorIs(t, err, status.ErrMalformedEventBody)
}

func TestTransaction_Final(t *testing.T) {
	tests := []struct {
		processing string
		final      bool
	}{
		{"FNLD", true},
		{"PNDG", false},
		{"RJCT", false},
		{"", false},
	}

	for _, tt := range tests {
		tran := status.Transaction{Status: tt.processing}
		assert.Equal(t, tt.final, tran.Final(), "status %q", tt.processing)
	}
}

func TestRandomNumber(t *testing.T) {
	for i := 0; i < 20; i++ {
		n, err := randomNumber()
		require.NoError(t, err)
		assert.Len(t, n, 18)
	}
}

func TestCredentialHashing(t *testing.T) {
	hash, err := HashCredential([]byte("s3cret"))
	require.NoError(t, err)

	assert.True(t, CompareCredential([]byte(hash), []byte("s3cret")))
	assert.False(t, CompareCredential([]byte(hash), []byte("wrong")))
}
