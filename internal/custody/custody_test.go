package custody

import (
	"github.com/northstarcredit/core/internal/authz"
)

func auditInfo() authz.AuditInfo {
	return authz.NewAuditInfo(authz.UserSubject("sub-1"), clock())
}

func testEncryptionKey() EncryptionKey {
	var key EncryptionKey
	copy(key[:], []byte("a-32-byte-test-encryption-key!!!"))

	return key
}

func testConfig() CustodianConfig {
	return CustodianConfig{
		Provider:    CustodianProviderMock,
		Credentials: map[string]string{"base_url": "https://mock.example"},
	}
}
