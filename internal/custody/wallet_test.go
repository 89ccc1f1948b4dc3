package custody

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northstarcredit/core/pkg/money"
)

func testExternalWallet() ExternalWallet {
	return ExternalWallet{ExternalID: "ext-1", Address: "bt1qaddress", Network: WalletNetworkTestnet4}
}

func TestNewWalletCapturesExternalDetails(t *testing.T) {
	wallet := NewWallet("custodian-1", "facility-1", "customer-1", testExternalWallet(), auditInfo())
	assert.Equal(t, "ext-1", wallet.ExternalWalletID)
	assert.Equal(t, "bt1qaddress", wallet.Address)
	assert.Equal(t, WalletNetworkTestnet4, wallet.Network)
	assert.True(t, wallet.Balance.IsZero())
}

func TestUpdateBalanceIsIdempotentOnSameValue(t *testing.T) {
	wallet := NewWallet("custodian-1", "facility-1", "customer-1", testExternalWallet(), auditInfo())

	result := wallet.UpdateBalance(money.Satoshis(50_000), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), auditInfo())
	require.True(t, result.IsExecuted())
	assert.Equal(t, money.Satoshis(50_000), wallet.Balance)

	result = wallet.UpdateBalance(money.Satoshis(50_000), time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), auditInfo())
	assert.False(t, result.IsExecuted())
	assert.Equal(t, money.Satoshis(50_000), wallet.Balance)
}

func TestUpdateBalanceRecordsChangeOnNewValue(t *testing.T) {
	wallet := NewWallet("custodian-1", "facility-1", "customer-1", testExternalWallet(), auditInfo())

	wallet.UpdateBalance(money.Satoshis(50_000), clock(), auditInfo())
	result := wallet.UpdateBalance(money.Satoshis(75_000), clock(), auditInfo())

	require.True(t, result.IsExecuted())
	previous, ok := result.Unwrap()
	require.True(t, ok)
	assert.Equal(t, money.Satoshis(50_000), previous)
	assert.Equal(t, money.Satoshis(75_000), wallet.Balance)
}

func TestReduceWalletRehydratesFromEvents(t *testing.T) {
	seed := NewWallet("custodian-1", "facility-1", "customer-1", testExternalWallet(), auditInfo())
	seed.events.MarkPersisted(clock())

	seed.UpdateBalance(money.Satoshis(12_345), clock(), auditInfo())

	rehydrated, err := reduceWallet(seed.events)
	require.NoError(t, err)
	assert.Equal(t, money.Satoshis(12_345), rehydrated.Balance)
	assert.Equal(t, "facility-1", rehydrated.FacilityID)
	assert.Equal(t, "ext-1", rehydrated.ExternalWalletID)
}
