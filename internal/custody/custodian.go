package custody

import (
	"github.com/google/uuid"

	"github.com/northstarcredit/core/internal/authz"
	"github.com/northstarcredit/core/pkg/es"
)

// CustodianEvent is the closed set of events recorded against a
// Custodian.
type CustodianEvent struct {
	Type            string            `json:"type"`
	ID              string            `json:"id,omitempty"`
	Name            string            `json:"name,omitempty"`
	Provider        CustodianProvider `json:"provider,omitempty"`
	EncryptedConfig []byte            `json:"encrypted_config,omitempty"`
	AuditInfo       authz.AuditInfo   `json:"audit_info"`
}

func (e CustodianEvent) Kind() string { return e.Type }

const (
	CustodianInitialized   = "initialized"
	CustodianConfigRotated = "config_rotated"
)

// Custodian is one configured external bitcoin custodian connection
// (BitGo, Komainu, or the in-process mock used outside production). Its
// config is never held in cleartext past the moment it is sealed; only
// the sealed bytes are ever part of the entity's state.
type Custodian struct {
	ID              string
	Name            string
	Provider        CustodianProvider
	EncryptedConfig []byte
	events          *es.EntityEvents[CustodianEvent]
}

// NewCustodian seals cfg under key and starts a Custodian wrapping it.
func NewCustodian(name string, cfg CustodianConfig, key EncryptionKey, audit authz.AuditInfo) (*Custodian, error) {
	sealed, err := encryptConfig(cfg, key)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()

	return &Custodian{
		ID: id, Name: name, Provider: cfg.Provider, EncryptedConfig: sealed,
		events: es.NewEntityEvents(id, CustodianEvent{
			Type: CustodianInitialized, ID: id, Name: name, Provider: cfg.Provider,
			EncryptedConfig: sealed, AuditInfo: audit,
		}),
	}, nil
}

// Config decrypts the custodian's sealed configuration under key.
func (c *Custodian) Config(key EncryptionKey) (CustodianConfig, error) {
	return decryptConfig(c.EncryptedConfig, key)
}

// RotateConfig re-seals cfg under a (possibly new) key, the Go analogue
// of the Rust core's rotate_encryption_key: every custodian is re-sealed
// under the current key whenever the deployment's encryption key changes,
// and an operator may also use this to update the provider credentials
// themselves.
func (c *Custodian) RotateConfig(cfg CustodianConfig, key EncryptionKey, audit authz.AuditInfo) error {
	sealed, err := encryptConfig(cfg, key)
	if err != nil {
		return err
	}

	c.Provider = cfg.Provider
	c.EncryptedConfig = sealed
	c.events.Append(CustodianEvent{
		Type: CustodianConfigRotated, Provider: cfg.Provider, EncryptedConfig: sealed, AuditInfo: audit,
	})

	return nil
}

func reduceCustodian(events *es.EntityEvents[CustodianEvent]) (Custodian, error) {
	c := Custodian{events: events}

	for _, e := range events.All() {
		switch e.Type {
		case CustodianInitialized:
			c.ID = e.ID
			c.Name = e.Name
			c.Provider = e.Provider
			c.EncryptedConfig = e.EncryptedConfig
		case CustodianConfigRotated:
			c.Provider = e.Provider
			c.EncryptedConfig = e.EncryptedConfig
		}
	}

	return c, nil
}

func custodianEvents(c *Custodian) *es.EntityEvents[CustodianEvent] { return c.events }
