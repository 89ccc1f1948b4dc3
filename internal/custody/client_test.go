package custody

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedWebhook(secret string, payload webhookPayload) ([]byte, http.Header) {
	body, _ := json.Marshal(payload)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	headers := http.Header{}
	headers.Set("X-Signature", hex.EncodeToString(mac.Sum(nil)))

	return body, headers
}

func TestHTTPCustodianClientProcessWebhookRejectsBadSignature(t *testing.T) {
	client := NewHTTPCustodianClient("https://provider.example", "shared-secret", WalletNetworkTestnet4, nil)

	body, _ := json.Marshal(webhookPayload{ExternalWalletID: "ext-1", NewBalanceSats: 100})
	badHeaders := http.Header{}
	badHeaders.Set("X-Signature", "deadbeef")

	_, err := client.ProcessWebhook(context.Background(), badHeaders, body)
	assert.Error(t, err)
}

func TestHTTPCustodianClientProcessWebhookParsesValidSignature(t *testing.T) {
	client := NewHTTPCustodianClient("https://provider.example", "shared-secret", WalletNetworkTestnet4, nil)

	changedAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	body, headers := signedWebhook("shared-secret", webhookPayload{ExternalWalletID: "ext-1", NewBalanceSats: 77_000, ChangedAt: changedAt})

	notification, err := client.ProcessWebhook(context.Background(), headers, body)
	require.NoError(t, err)
	require.NotNil(t, notification)
	assert.Equal(t, "ext-1", notification.ExternalWalletID)
	assert.EqualValues(t, 77_000, notification.NewBalanceSats)
}

func TestMockCustodianClientInitializeWallet(t *testing.T) {
	client := mockCustodianClient{}

	wallet, err := client.InitializeWallet(context.Background(), "label")
	require.NoError(t, err)
	assert.NotEmpty(t, wallet.ExternalID)
	assert.NoError(t, client.VerifyClient(context.Background()))
}

func TestDefaultClientFactoryBuildsMockClient(t *testing.T) {
	factory := DefaultClientFactory{}

	client, err := factory.Client(CustodianConfig{Provider: CustodianProviderMock})
	require.NoError(t, err)
	assert.IsType(t, mockCustodianClient{}, client)
}

func TestDefaultClientFactoryRejectsUnknownProvider(t *testing.T) {
	factory := DefaultClientFactory{}

	_, err := factory.Client(CustodianConfig{Provider: "unknown"})
	assert.Error(t, err)
}
