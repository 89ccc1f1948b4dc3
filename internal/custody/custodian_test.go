package custody

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCustodianSealsConfig(t *testing.T) {
	custodian, err := NewCustodian("Mock Custodian", testConfig(), testEncryptionKey(), auditInfo())
	require.NoError(t, err)
	assert.Equal(t, CustodianProviderMock, custodian.Provider)
	assert.NotEmpty(t, custodian.EncryptedConfig)

	decrypted, err := custodian.Config(testEncryptionKey())
	require.NoError(t, err)
	assert.Equal(t, testConfig(), decrypted)
}

func TestRotateConfigReplacesSealedBytesAndProvider(t *testing.T) {
	custodian, err := NewCustodian("Mock Custodian", testConfig(), testEncryptionKey(), auditInfo())
	require.NoError(t, err)

	original := custodian.EncryptedConfig

	newConfig := CustodianConfig{Provider: CustodianProviderBitgo, Credentials: map[string]string{"base_url": "https://bitgo.example"}}
	require.NoError(t, custodian.RotateConfig(newConfig, testEncryptionKey(), auditInfo()))

	assert.Equal(t, CustodianProviderBitgo, custodian.Provider)
	assert.NotEqual(t, original, custodian.EncryptedConfig)

	decrypted, err := custodian.Config(testEncryptionKey())
	require.NoError(t, err)
	assert.Equal(t, newConfig, decrypted)
}

func TestReduceCustodianRehydratesFromEvents(t *testing.T) {
	seed, err := NewCustodian("Mock Custodian", testConfig(), testEncryptionKey(), auditInfo())
	require.NoError(t, err)
	seed.events.MarkPersisted(clock())

	require.NoError(t, seed.RotateConfig(
		CustodianConfig{Provider: CustodianProviderKomainu, Credentials: map[string]string{"base_url": "https://komainu.example"}},
		testEncryptionKey(), auditInfo(),
	))

	rehydrated, err := reduceCustodian(seed.events)
	require.NoError(t, err)
	assert.Equal(t, CustodianProviderKomainu, rehydrated.Provider)
	assert.Equal(t, "Mock Custodian", rehydrated.Name)
}
