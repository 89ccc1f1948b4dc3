package custody

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/northstarcredit/core/pkg/apperr"
	"github.com/northstarcredit/core/pkg/apptrace"
	"github.com/northstarcredit/core/pkg/money"
)

// WalletBalanceChangedNotification is the one notification kind a
// CustodianClient's webhook parser ever produces; every provider's own
// wire format (BitGo transfer confirmations, Komainu balance-updated
// events) collapses down to this before the custody service sees it.
type WalletBalanceChangedNotification struct {
	ExternalWalletID string
	NewBalanceSats   money.Satoshis
	ChangedAt        time.Time
}

// CustodianClient is the capability a configured Custodian exposes once
// its sealed config has been decrypted. Mirrors spec.md §6's custodian
// adapter shape exactly: verify the configuration, initialize a wallet,
// and turn a provider webhook into (at most) one balance-change
// notification.
type CustodianClient interface {
	VerifyClient(ctx context.Context) error
	InitializeWallet(ctx context.Context, label string) (ExternalWallet, error)
	ProcessWebhook(ctx context.Context, headers http.Header, body []byte) (*WalletBalanceChangedNotification, error)
}

// HTTPCustodianClient talks to a provider over a signed JSON REST API.
// Neither BitGo's nor Komainu's Go SDK is part of this module's
// dependency pack, so, exactly as internal/ledgeradapter.HTTPLedger does
// for the external ledger, this is built directly on net/http: a single
// narrow client the provider-specific base URL and webhook secret
// parameterize, rather than a full SDK this module has no use for beyond
// three calls.
type HTTPCustodianClient struct {
	baseURL       string
	webhookSecret string
	network       WalletNetwork
	client        *http.Client
}

func NewHTTPCustodianClient(baseURL, webhookSecret string, network WalletNetwork, client *http.Client) *HTTPCustodianClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &HTTPCustodianClient{baseURL: baseURL, webhookSecret: webhookSecret, network: network, client: client}
}

func (c *HTTPCustodianClient) VerifyClient(ctx context.Context) error {
	ctx, span := apptrace.Start(ctx, "custody", "verify_client")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/ping", nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		apptrace.HandleSpanError(span, "verify client", err)
		return apperr.TransientExternal("Custodian", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apperr.FatalExternal("Custodian", fmt.Errorf("custodian rejected credentials: %d", resp.StatusCode))
	}

	return nil
}

type initializeWalletResponse struct {
	ExternalID string          `json:"external_id"`
	Address    string          `json:"address"`
	RawResponse json.RawMessage `json:"raw_response"`
}

func (c *HTTPCustodianClient) InitializeWallet(ctx context.Context, label string) (ExternalWallet, error) {
	ctx, span := apptrace.Start(ctx, "custody", "initialize_wallet")
	defer span.End()

	body, err := json.Marshal(map[string]string{"label": label})
	if err != nil {
		return ExternalWallet{}, apperr.InvariantViolation("Custodian", "marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/wallets", bytes.NewReader(body))
	if err != nil {
		return ExternalWallet{}, err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		apptrace.HandleSpanError(span, "initialize wallet", err)
		return ExternalWallet{}, apperr.TransientExternal("Custodian", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return ExternalWallet{}, apperr.TransientExternal("Custodian", fmt.Errorf("custodian returned %d", resp.StatusCode))
	}

	if resp.StatusCode >= 400 {
		return ExternalWallet{}, apperr.FatalExternal("Custodian", fmt.Errorf("custodian rejected wallet init: %d", resp.StatusCode))
	}

	var out initializeWalletResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ExternalWallet{}, apperr.FatalExternal("Custodian", err)
	}

	return ExternalWallet{
		ExternalID: out.ExternalID, Address: out.Address, Network: c.network, FullResponse: out.RawResponse,
	}, nil
}

type webhookPayload struct {
	ExternalWalletID string    `json:"external_wallet_id"`
	NewBalanceSats    int64     `json:"new_balance_sats"`
	ChangedAt         time.Time `json:"changed_at"`
}

// ProcessWebhook validates the HMAC-SHA256 signature the provider sends
// on the X-Signature header (the same scheme client/mod.rs's test vector
// exercises) before trusting the payload.
func (c *HTTPCustodianClient) ProcessWebhook(ctx context.Context, headers http.Header, body []byte) (*WalletBalanceChangedNotification, error) {
	_, span := apptrace.Start(ctx, "custody", "process_webhook")
	defer span.End()

	if !c.verifySignature(headers.Get("X-Signature"), body) {
		return nil, apperr.InvariantViolation("CustodianWebhook", "signature verification failed")
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperr.InvariantViolation("CustodianWebhook", "malformed payload: %v", err)
	}

	if payload.ExternalWalletID == "" {
		return nil, nil
	}

	return &WalletBalanceChangedNotification{
		ExternalWalletID: payload.ExternalWalletID,
		NewBalanceSats:   money.Satoshis(payload.NewBalanceSats),
		ChangedAt:        payload.ChangedAt,
	}, nil
}

func (c *HTTPCustodianClient) verifySignature(signature string, body []byte) bool {
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(body)

	return hmac.Equal([]byte(signature), []byte(hex.EncodeToString(mac.Sum(nil))))
}

// mockCustodianClient backs CustodianProviderMock: a non-production
// stand-in that needs no network access, the Go analogue of the Rust
// core's `mock-custodian` feature.
type mockCustodianClient struct{}

func (mockCustodianClient) VerifyClient(context.Context) error { return nil }

func (mockCustodianClient) InitializeWallet(context.Context, string) (ExternalWallet, error) {
	return ExternalWallet{
		ExternalID: "mock-wallet", Address: "bt1qaddressmock", Network: WalletNetworkTestnet4,
	}, nil
}

func (mockCustodianClient) ProcessWebhook(_ context.Context, _ http.Header, body []byte) (*WalletBalanceChangedNotification, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, nil
	}

	if payload.ExternalWalletID == "" {
		return nil, nil
	}

	return &WalletBalanceChangedNotification{
		ExternalWalletID: payload.ExternalWalletID,
		NewBalanceSats:   money.Satoshis(payload.NewBalanceSats),
		ChangedAt:        payload.ChangedAt,
	}, nil
}
