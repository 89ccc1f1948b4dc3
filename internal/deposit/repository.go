package deposit

import (
	"context"
	"database/sql"

	"github.com/Masterminds/squirrel"

	"github.com/northstarcredit/core/pkg/dbtx"
	"github.com/northstarcredit/core/pkg/es"
	"github.com/northstarcredit/core/pkg/outbox"
)

// AccountRepository persists Account event logs and the "deposit_accounts"
// projection table the balance and freeze lookups scan by customer.
type AccountRepository struct {
	db   *sql.DB
	repo *es.Repository[Account, AccountEvent]
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	store := es.NewEventStore[AccountEvent](db, "deposit_account_events", "Account",
		outbox.NewRelay[AccountEvent]("outbox_events", outbox.DefaultChannel))

	return &AccountRepository{db: db, repo: es.NewRepository(store, reduceAccount, depositAccountEvents)}
}

func (r *AccountRepository) Create(ctx context.Context, a *Account) (Account, error) {
	created, err := r.repo.Create(ctx, a)
	if err != nil {
		return Account{}, err
	}

	if err := r.upsertProjection(ctx, &created); err != nil {
		return Account{}, err
	}

	return created, nil
}

func (r *AccountRepository) Update(ctx context.Context, a *Account) error {
	if err := r.repo.Update(ctx, a); err != nil {
		return err
	}

	return r.upsertProjection(ctx, a)
}

func (r *AccountRepository) Find(ctx context.Context, id string) (Account, error) {
	return r.repo.Find(ctx, id)
}

func (r *AccountRepository) upsertProjection(ctx context.Context, a *Account) error {
	exec := dbtx.GetExecutor(ctx, r.db)

	query, args, err := squirrel.Insert("deposit_accounts").
		Columns("id", "customer_id", "ledger_account_id", "frozen_ledger_account_id", "status").
		Values(a.ID, a.CustomerID, a.LedgerAccountID, a.FrozenLedgerAccountID, string(a.Status)).
		Suffix("ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx, query, args...)

	return err
}

// ListByCustomer returns the IDs of every deposit account belonging to
// customerID.
func (r *AccountRepository) ListByCustomer(ctx context.Context, customerID string) ([]string, error) {
	return scanIDs(ctx, dbtx.GetExecutor(ctx, r.db),
		squirrel.Select("id").From("deposit_accounts").Where(squirrel.Eq{"customer_id": customerID}))
}

// DepositRepository persists Deposit event logs. Deposits confirm on
// creation and have no projection table of their own; they are read back
// only by ID, for reversal.
type DepositRepository struct {
	repo *es.Repository[Deposit, DepositEvent]
}

func NewDepositRepository(db *sql.DB) *DepositRepository {
	store := es.NewEventStore[DepositEvent](db, "deposit_events", "Deposit",
		outbox.NewRelay[DepositEvent]("outbox_events", outbox.DefaultChannel))

	return &DepositRepository{repo: es.NewRepository(store, reduceDeposit, depositEvents)}
}

func (r *DepositRepository) Create(ctx context.Context, d *Deposit) (Deposit, error) {
	return r.repo.Create(ctx, d)
}

func (r *DepositRepository) Update(ctx context.Context, d *Deposit) error {
	return r.repo.Update(ctx, d)
}

func (r *DepositRepository) Find(ctx context.Context, id string) (Deposit, error) {
	return r.repo.Find(ctx, id)
}

// WithdrawalRepository persists Withdrawal event logs and the
// "deposit_withdrawals" projection table the pending-approval sweep scans.
type WithdrawalRepository struct {
	db   *sql.DB
	repo *es.Repository[Withdrawal, WithdrawalEvent]
}

func NewWithdrawalRepository(db *sql.DB) *WithdrawalRepository {
	store := es.NewEventStore[WithdrawalEvent](db, "deposit_withdrawal_events", "Withdrawal",
		outbox.NewRelay[WithdrawalEvent]("outbox_events", outbox.DefaultChannel))

	return &WithdrawalRepository{db: db, repo: es.NewRepository(store, reduceWithdrawal, withdrawalEvents)}
}

func (r *WithdrawalRepository) Create(ctx context.Context, w *Withdrawal) (Withdrawal, error) {
	created, err := r.repo.Create(ctx, w)
	if err != nil {
		return Withdrawal{}, err
	}

	if err := r.upsertProjection(ctx, &created); err != nil {
		return Withdrawal{}, err
	}

	return created, nil
}

func (r *WithdrawalRepository) Update(ctx context.Context, w *Withdrawal) error {
	if err := r.repo.Update(ctx, w); err != nil {
		return err
	}

	return r.upsertProjection(ctx, w)
}

func (r *WithdrawalRepository) Find(ctx context.Context, id string) (Withdrawal, error) {
	return r.repo.Find(ctx, id)
}

func (r *WithdrawalRepository) upsertProjection(ctx context.Context, w *Withdrawal) error {
	exec := dbtx.GetExecutor(ctx, r.db)

	query, args, err := squirrel.Insert("deposit_withdrawals").
		Columns("id", "account_id", "status").
		Values(w.ID, w.AccountID, string(w.Status)).
		Suffix("ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx, query, args...)

	return err
}

// ListByStatus returns the IDs of withdrawals currently in status. No job
// or service method in this package calls it.
func (r *WithdrawalRepository) ListByStatus(ctx context.Context, status WithdrawalStatus) ([]string, error) {
	return scanIDs(ctx, dbtx.GetExecutor(ctx, r.db),
		squirrel.Select("id").From("deposit_withdrawals").Where(squirrel.Eq{"status": string(status)}))
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
