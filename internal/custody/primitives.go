package custody

import "encoding/json"

// CustodianProvider names which external bitcoin custodian a Custodian's
// configuration targets. Closed vocabulary: adding a provider means adding
// both a constant here and a CustodianClient implementation in client.go.
type CustodianProvider string

const (
	CustodianProviderBitgo   CustodianProvider = "bitgo"
	CustodianProviderKomainu CustodianProvider = "komainu"
	CustodianProviderMock    CustodianProvider = "mock"
)

// CustodianConfig is the provider-specific connection configuration a
// Custodian is built from. Credentials is free-form (API key, passphrase,
// wallet id, whatever the provider's client needs) since each provider's
// shape differs; it never leaves this package un-encrypted once attached
// to a Custodian.
type CustodianConfig struct {
	Provider    CustodianProvider `json:"provider"`
	Credentials map[string]string `json:"credentials,omitempty"`
}

// WalletNetwork is the bitcoin network a wallet was opened on.
type WalletNetwork string

const (
	WalletNetworkTestnet3 WalletNetwork = "testnet3"
	WalletNetworkTestnet4 WalletNetwork = "testnet4"
	WalletNetworkMainnet  WalletNetwork = "mainnet"
)

// ExternalWallet is what a CustodianClient hands back after initializing
// a wallet on the provider's side.
type ExternalWallet struct {
	ExternalID   string
	Address      string
	Network      WalletNetwork
	FullResponse json.RawMessage
}
