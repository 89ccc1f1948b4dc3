package custody

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/northstarcredit/core/internal/authz"
	"github.com/northstarcredit/core/pkg/apperr"
	"github.com/northstarcredit/core/pkg/applog"
	"github.com/northstarcredit/core/pkg/apptrace"
	"github.com/northstarcredit/core/pkg/dbtx"
	"github.com/northstarcredit/core/pkg/money"
)

// ClientFactory builds the CustodianClient a Custodian's decrypted
// configuration targets. Split out of Service so tests can substitute a
// fake client without standing up real provider credentials.
type ClientFactory interface {
	Client(cfg CustodianConfig) (CustodianClient, error)
}

// DefaultClientFactory builds an HTTPCustodianClient from cfg's
// credentials for every real provider, and the in-process mock for
// CustodianProviderMock. Credentials is expected to carry "base_url" and
// "webhook_secret" keys for bitgo/komainu.
type DefaultClientFactory struct {
	HTTPClient *http.Client
}

func (f DefaultClientFactory) Client(cfg CustodianConfig) (CustodianClient, error) {
	switch cfg.Provider {
	case CustodianProviderMock:
		return mockCustodianClient{}, nil
	case CustodianProviderBitgo, CustodianProviderKomainu:
		network := WalletNetworkMainnet
		if cfg.Credentials["network"] != "" {
			network = WalletNetwork(cfg.Credentials["network"])
		}

		return NewHTTPCustodianClient(cfg.Credentials["base_url"], cfg.Credentials["webhook_secret"], network, f.HTTPClient), nil
	default:
		return nil, apperr.InvariantViolation("Custodian", "unknown provider %q", cfg.Provider)
	}
}

// Service is the authz-gated entry point for custodian/wallet operations.
// Opening a wallet and applying a webhook's balance notification are
// system-triggered (driven by facility collateralization and the
// custodian's own callback) and skip enforcement, the same split
// internal/credit.Service and internal/deposit.Service document for their
// own write paths.
type Service struct {
	db                 *sql.DB
	custodians         *CustodianRepository
	wallets            *WalletRepository
	clients            ClientFactory
	encryptionKey      EncryptionKey
	defaultCustodianID string
	enforcer           *authz.Enforcer
}

func NewService(db *sql.DB, custodians *CustodianRepository, wallets *WalletRepository, clients ClientFactory, encryptionKey EncryptionKey, defaultCustodianID string, enforcer *authz.Enforcer) *Service {
	return &Service{
		db: db, custodians: custodians, wallets: wallets, clients: clients,
		encryptionKey: encryptionKey, defaultCustodianID: defaultCustodianID, enforcer: enforcer,
	}
}

// CreateCustodian seals cfg under the service's encryption key and
// persists a new Custodian.
func (s *Service) CreateCustodian(ctx context.Context, subject authz.Subject, name string, cfg CustodianConfig) (Custodian, error) {
	if err := s.enforcer.EnforcePermission(ctx, subject, authz.NewPermission(authz.AllCustodians(), authz.ActionCustodianCreate)); err != nil {
		return Custodian{}, err
	}

	custodian, err := NewCustodian(name, cfg, s.encryptionKey, authz.NewAuditInfo(subject, clock()))
	if err != nil {
		return Custodian{}, err
	}

	return s.custodians.Create(ctx, custodian)
}

// RotateCustodianConfig re-seals a custodian's configuration, whether for
// a credential change or a deployment-wide encryption key rotation.
func (s *Service) RotateCustodianConfig(ctx context.Context, subject authz.Subject, custodianID string, cfg CustodianConfig) error {
	if err := s.enforcer.EnforcePermission(ctx, subject, authz.NewPermission(authz.OneCustodian(custodianID), authz.ActionCustodianUpdate)); err != nil {
		return err
	}

	custodian, err := s.custodians.Find(ctx, custodianID)
	if err != nil {
		return err
	}

	if err := custodian.RotateConfig(cfg, s.encryptionKey, authz.NewAuditInfo(subject, clock())); err != nil {
		return err
	}

	return s.custodians.Update(ctx, &custodian)
}

// OpenWallet initializes a wallet on the default custodian for
// facilityID/customerID and persists it. System-triggered: it carries no
// subject to enforce against. Its signature matches
// internal/credit.CustodyWalletOpener; internal/credit.Service does not
// hold one or call this method.
func (s *Service) OpenWallet(ctx context.Context, facilityID, customerID string) (string, error) {
	ctx, span := apptrace.Start(ctx, "custody", "open_wallet")
	defer span.End()

	custodian, err := s.custodians.Find(ctx, s.defaultCustodianID)
	if err != nil {
		apptrace.HandleSpanError(span, "find custodian", err)
		return "", err
	}

	cfg, err := custodian.Config(s.encryptionKey)
	if err != nil {
		return "", err
	}

	client, err := s.clients.Client(cfg)
	if err != nil {
		return "", err
	}

	external, err := client.InitializeWallet(ctx, facilityID)
	if err != nil {
		apptrace.HandleSpanError(span, "initialize wallet", err)
		return "", err
	}

	wallet := NewWallet(custodian.ID, facilityID, customerID, external, authz.NewAuditInfo(authz.SystemSubject, clock()))

	created, err := s.wallets.Create(ctx, wallet)
	if err != nil {
		return "", err
	}

	return created.ID, nil
}

// Wallet returns the wallet with id, enforcing a read permission.
func (s *Service) Wallet(ctx context.Context, subject authz.Subject, id string) (Wallet, error) {
	if err := s.enforcer.EnforcePermission(ctx, subject, authz.NewPermission(authz.OneWallet(id), authz.ActionWalletRead)); err != nil {
		return Wallet{}, err
	}

	return s.wallets.Find(ctx, id)
}

// ManualUpdateWalletBalance lets an operator record a balance an
// automated webhook has not yet (or will never) deliver. Gated on
// wallet:update, unlike HandleWebhook's system path.
func (s *Service) ManualUpdateWalletBalance(ctx context.Context, subject authz.Subject, walletID string, newBalance money.Satoshis) error {
	if err := s.enforcer.EnforcePermission(ctx, subject, authz.NewPermission(authz.OneWallet(walletID), authz.ActionWalletUpdate)); err != nil {
		return err
	}

	wallet, err := s.wallets.Find(ctx, walletID)
	if err != nil {
		return err
	}

	if !wallet.UpdateBalance(newBalance, clock(), authz.NewAuditInfo(subject, clock())).IsExecuted() {
		return nil
	}

	return s.wallets.Update(ctx, &wallet)
}

// HandleWebhook is the system-triggered entry point a provider's webhook
// endpoint calls. It tolerates an unrecognized provider (logs and
// returns, mirroring lib.rs's handle_webhook, which still records the raw
// webhook even when no custodian matches) and only updates a wallet's
// balance when the client actually parses out a notification.
func (s *Service) HandleWebhook(ctx context.Context, provider CustodianProvider, headers http.Header, body []byte) error {
	ctx, span := apptrace.Start(ctx, "custody", "handle_webhook")
	defer span.End()

	log := applog.FromContext(ctx)

	custodianID, err := s.custodians.FindByProvider(ctx, provider)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			log.Warnf("custody: webhook for unconfigured provider %s", provider)
			return nil
		}

		return err
	}

	custodian, err := s.custodians.Find(ctx, custodianID)
	if err != nil {
		return err
	}

	cfg, err := custodian.Config(s.encryptionKey)
	if err != nil {
		return err
	}

	client, err := s.clients.Client(cfg)
	if err != nil {
		return err
	}

	notification, err := client.ProcessWebhook(ctx, headers, body)
	if err != nil {
		apptrace.HandleSpanError(span, "process webhook", err)
		return err
	}

	if notification == nil {
		return nil
	}

	return s.updateWalletBalance(ctx, notification)
}

func (s *Service) updateWalletBalance(ctx context.Context, notification *WalletBalanceChangedNotification) error {
	return dbtx.RunInTransaction(ctx, s.db, func(ctx context.Context) error {
		wallet, err := s.wallets.FindByExternalWalletID(ctx, notification.ExternalWalletID)
		if err != nil {
			return err
		}

		audit := authz.NewAuditInfo(authz.SystemSubject, notification.ChangedAt)

		if !wallet.UpdateBalance(notification.NewBalanceSats, notification.ChangedAt, audit).IsExecuted() {
			return nil
		}

		return s.wallets.Update(ctx, &wallet)
	})
}
