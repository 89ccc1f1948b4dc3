package custody

import (
	"crypto/rand"
	"encoding/json"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/northstarcredit/core/pkg/apperr"
)

// EncryptionKey is the 32-byte symmetric key every CustodianConfig is
// sealed under at rest (app.custody.encryption.key per the deployment's
// configuration). golang.org/x/crypto was already pulled in transitively
// by the gRPC/otel stack; nacl/secretbox is the same pack's authenticated
// secret-box primitive the teacher's dependency tree carries, so nothing
// new is introduced to encrypt a credential blob.
type EncryptionKey [32]byte

// encryptConfig JSON-encodes cfg and seals it with key under a random
// nonce, prefixing the nonce onto the ciphertext the way secretbox's own
// examples do, since Open needs it back to authenticate and decrypt.
func encryptConfig(cfg CustodianConfig, key EncryptionKey) ([]byte, error) {
	plaintext, err := json.Marshal(cfg)
	if err != nil {
		return nil, apperr.InvariantViolation("Custodian", "marshal config: %v", err)
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, apperr.FatalExternal("Custodian", err)
	}

	k := [32]byte(key)

	return secretbox.Seal(nonce[:], plaintext, &nonce, &k), nil
}

// decryptConfig reverses encryptConfig. Returns InvariantViolation if
// sealed was not produced under key (wrong key, or tampered at rest).
func decryptConfig(sealed []byte, key EncryptionKey) (CustodianConfig, error) {
	if len(sealed) < 24 {
		return CustodianConfig{}, apperr.InvariantViolation("Custodian", "sealed config too short")
	}

	var nonce [24]byte
	copy(nonce[:], sealed[:24])

	k := [32]byte(key)

	plaintext, ok := secretbox.Open(nil, sealed[24:], &nonce, &k)
	if !ok {
		return CustodianConfig{}, apperr.InvariantViolation("Custodian", "config cannot be decrypted with this key")
	}

	var cfg CustodianConfig
	if err := json.Unmarshal(plaintext, &cfg); err != nil {
		return CustodianConfig{}, apperr.InvariantViolation("Custodian", "unmarshal config: %v", err)
	}

	return cfg, nil
}
