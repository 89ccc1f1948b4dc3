package custody

import (
	"context"
	"database/sql"

	"github.com/Masterminds/squirrel"

	"github.com/northstarcredit/core/pkg/apperr"
	"github.com/northstarcredit/core/pkg/dbtx"
	"github.com/northstarcredit/core/pkg/es"
	"github.com/northstarcredit/core/pkg/outbox"
)

// CustodianRepository persists Custodian event logs and the "custodians"
// projection table webhook routing scans by provider.
type CustodianRepository struct {
	db   *sql.DB
	repo *es.Repository[Custodian, CustodianEvent]
}

func NewCustodianRepository(db *sql.DB) *CustodianRepository {
	store := es.NewEventStore[CustodianEvent](db, "custodian_events", "Custodian", es.NoopPublisher[CustodianEvent]{})

	return &CustodianRepository{db: db, repo: es.NewRepository(store, reduceCustodian, custodianEvents)}
}

func (r *CustodianRepository) Create(ctx context.Context, c *Custodian) (Custodian, error) {
	created, err := r.repo.Create(ctx, c)
	if err != nil {
		return Custodian{}, err
	}

	if err := r.upsertProjection(ctx, &created); err != nil {
		return Custodian{}, err
	}

	return created, nil
}

func (r *CustodianRepository) Update(ctx context.Context, c *Custodian) error {
	if err := r.repo.Update(ctx, c); err != nil {
		return err
	}

	return r.upsertProjection(ctx, c)
}

func (r *CustodianRepository) Find(ctx context.Context, id string) (Custodian, error) {
	return r.repo.Find(ctx, id)
}

func (r *CustodianRepository) upsertProjection(ctx context.Context, c *Custodian) error {
	exec := dbtx.GetExecutor(ctx, r.db)

	query, args, err := squirrel.Insert("custodians").
		Columns("id", "name", "provider").
		Values(c.ID, c.Name, string(c.Provider)).
		Suffix("ON CONFLICT (id) DO UPDATE SET provider = EXCLUDED.provider").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx, query, args...)

	return err
}

// FindByProvider returns the id of the first custodian configured for
// provider, the way handle_webhook's custodian-by-provider lookup does.
func (r *CustodianRepository) FindByProvider(ctx context.Context, provider CustodianProvider) (string, error) {
	ids, err := scanIDs(ctx, dbtx.GetExecutor(ctx, r.db),
		squirrel.Select("id").From("custodians").Where(squirrel.Eq{"provider": string(provider)}).Limit(1))
	if err != nil {
		return "", err
	}

	if len(ids) == 0 {
		return "", apperr.NotFound("Custodian", "no custodian configured for provider %s", provider)
	}

	return ids[0], nil
}

// WalletRepository persists Wallet event logs, the "wallets" projection
// table facility/external-id lookups scan, and relays every event
// (notably BalanceChanged) into the shared outbox so internal/credit's
// reactor can sync a facility's Collateral.
type WalletRepository struct {
	db   *sql.DB
	repo *es.Repository[Wallet, WalletEvent]
}

func NewWalletRepository(db *sql.DB) *WalletRepository {
	store := es.NewEventStore[WalletEvent](db, "wallet_events", "Wallet",
		outbox.NewRelay[WalletEvent]("outbox_events", outbox.DefaultChannel))

	return &WalletRepository{db: db, repo: es.NewRepository(store, reduceWallet, walletEvents)}
}

func (r *WalletRepository) Create(ctx context.Context, w *Wallet) (Wallet, error) {
	created, err := r.repo.Create(ctx, w)
	if err != nil {
		return Wallet{}, err
	}

	if err := r.upsertProjection(ctx, &created); err != nil {
		return Wallet{}, err
	}

	return created, nil
}

func (r *WalletRepository) Update(ctx context.Context, w *Wallet) error {
	if err := r.repo.Update(ctx, w); err != nil {
		return err
	}

	return r.upsertProjection(ctx, w)
}

func (r *WalletRepository) Find(ctx context.Context, id string) (Wallet, error) {
	return r.repo.Find(ctx, id)
}

func (r *WalletRepository) upsertProjection(ctx context.Context, w *Wallet) error {
	exec := dbtx.GetExecutor(ctx, r.db)

	query, args, err := squirrel.Insert("wallets").
		Columns("id", "custodian_id", "facility_id", "external_wallet_id").
		Values(w.ID, w.CustodianID, w.FacilityID, w.ExternalWalletID).
		Suffix("ON CONFLICT (id) DO NOTHING").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx, query, args...)

	return err
}

// FindByExternalWalletID resolves the provider's external wallet id back
// to this core's Wallet, the step update_wallet_balance needs before it
// can apply an incoming webhook notification.
func (r *WalletRepository) FindByExternalWalletID(ctx context.Context, externalWalletID string) (Wallet, error) {
	ids, err := scanIDs(ctx, dbtx.GetExecutor(ctx, r.db),
		squirrel.Select("id").From("wallets").Where(squirrel.Eq{"external_wallet_id": externalWalletID}).Limit(1))
	if err != nil {
		return Wallet{}, err
	}

	if len(ids) == 0 {
		return Wallet{}, apperr.NotFound("Wallet", "no wallet for external id %s", externalWalletID)
	}

	return r.Find(ctx, ids[0])
}

// ListByFacility returns the ids of every wallet opened for facilityID.
func (r *WalletRepository) ListByFacility(ctx context.Context, facilityID string) ([]string, error) {
	return scanIDs(ctx, dbtx.GetExecutor(ctx, r.db),
		squirrel.Select("id").From("wallets").Where(squirrel.Eq{"facility_id": facilityID}))
}

func scanIDs(ctx context.Context, exec dbtx.Executor, b squirrel.SelectBuilder) ([]string, error) {
	query, args, err := b.PlaceholderFormat(squirrel.Dollar).ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}

		ids = append(ids, id)
	}

	return ids, rows.Err()
}
