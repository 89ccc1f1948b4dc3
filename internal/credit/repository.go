package credit

import (
	"context"
	"database/sql"

	"github.com/Masterminds/squirrel"

	"github.com/northstarcredit/core/pkg/dbtx"
	"github.com/northstarcredit/core/pkg/es"
	"github.com/northstarcredit/core/pkg/outbox"
)

// ProposalRepository persists CreditFacilityProposal event logs and the
// "credit_facility_proposals" projection table the collateralization
// sweep scans for proposals still awaiting a facility.
type ProposalRepository struct {
	db   *sql.DB
	repo *es.Repository[CreditFacilityProposal, ProposalEvent]
}

func NewProposalRepository(db *sql.DB) *ProposalRepository {
	store := es.NewEventStore[ProposalEvent](db, "credit_facility_proposal_events", "CreditFacilityProposal",
		outbox.NewRelay[ProposalEvent]("outbox_events", outbox.DefaultChannel))

	return &ProposalRepository{db: db, repo: es.NewRepository(store, reduceProposal, creditProposalEvents)}
}

func (r *ProposalRepository) Create(ctx context.Context, p *CreditFacilityProposal) (CreditFacilityProposal, error) {
	created, err := r.repo.Create(ctx, p)
	if err != nil {
		return CreditFacilityProposal{}, err
	}

	if err := r.upsertProjection(ctx, &created); err != nil {
		return CreditFacilityProposal{}, err
	}

	return created, nil
}

func (r *ProposalRepository) Update(ctx context.Context, p *CreditFacilityProposal) error {
	if err := r.repo.Update(ctx, p); err != nil {
		return err
	}

	return r.upsertProjection(ctx, p)
}

func (r *ProposalRepository) Find(ctx context.Context, id string) (CreditFacilityProposal, error) {
	return r.repo.Find(ctx, id)
}

func (r *ProposalRepository) upsertProjection(ctx context.Context, p *CreditFacilityProposal) error {
	exec := dbtx.GetExecutor(ctx, r.db)

	query, args, err := squirrel.Insert("credit_facility_proposals").
		Columns("id", "customer_id", "collateralization_state", "approval_concluded", "approved", "facility_id").
		Values(p.ID, p.CustomerID, string(p.CollateralizationState), p.IsApprovalConcluded(), p.Approved, nullIfEmpty(p.FacilityID)).
		Suffix(`ON CONFLICT (id) DO UPDATE SET collateralization_state = EXCLUDED.collateralization_state,
			approval_concluded = EXCLUDED.approval_concluded, approved = EXCLUDED.approved, facility_id = EXCLUDED.facility_id`).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx, query, args...)

	return err
}

// ListIncomplete returns the IDs of every proposal that has not yet been
// completed into a facility, for the collateralization sweep.
func (r *ProposalRepository) ListIncomplete(ctx context.Context) ([]string, error) {
	return scanIDs(ctx, dbtx.GetExecutor(ctx, r.db),
		squirrel.Select("id").From("credit_facility_proposals").Where(squirrel.Eq{"facility_id": nil}))
}

// FacilityRepository persists CreditFacility event logs and the
// "credit_facilities" projection table.
type FacilityRepository struct {
	db   *sql.DB
	repo *es.Repository[CreditFacility, FacilityEvent]
}

func NewFacilityRepository(db *sql.DB) *FacilityRepository {
	store := es.NewEventStore[FacilityEvent](db, "credit_facility_events", "CreditFacility",
		outbox.NewRelay[FacilityEvent]("outbox_events", outbox.DefaultChannel))

	return &FacilityRepository{db: db, repo: es.NewRepository(store, reduceFacility, creditFacilityEvents)}
}

func (r *FacilityRepository) Create(ctx context.Context, f *CreditFacility) (CreditFacility, error) {
	created, err := r.repo.Create(ctx, f)
	if err != nil {
		return CreditFacility{}, err
	}

	if err := r.upsertProjection(ctx, &created); err != nil {
		return CreditFacility{}, err
	}

	return created, nil
}

func (r *FacilityRepository) Update(ctx context.Context, f *CreditFacility) error {
	if err := r.repo.Update(ctx, f); err != nil {
		return err
	}

	return r.upsertProjection(ctx, f)
}

func (r *FacilityRepository) Find(ctx context.Context, id string) (CreditFacility, error) {
	return r.repo.Find(ctx, id)
}

func (r *FacilityRepository) upsertProjection(ctx context.Context, f *CreditFacility) error {
	exec := dbtx.GetExecutor(ctx, r.db)

	query, args, err := squirrel.Insert("credit_facilities").
		Columns("id", "customer_id", "status", "collateral_id").
		Values(f.ID, f.CustomerID, string(f.Status), f.CollateralID).
		Suffix("ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx, query, args...)

	return err
}

// ListByStatus returns the IDs of facilities currently in status, for
// the maturity sweep and liquidation check jobs.
func (r *FacilityRepository) ListByStatus(ctx context.Context, status FacilityStatus) ([]string, error) {
	return scanIDs(ctx, dbtx.GetExecutor(ctx, r.db),
		squirrel.Select("id").From("credit_facilities").Where(squirrel.Eq{"status": string(status)}))
}

// CollateralRepository persists Collateral event logs.
type CollateralRepository struct {
	repo *es.Repository[Collateral, CollateralEvent]
}

func NewCollateralRepository(db *sql.DB) *CollateralRepository {
	store := es.NewEventStore[CollateralEvent](db, "credit_collateral_events", "Collateral", nil)

	return &CollateralRepository{repo: es.NewRepository(store, reduceCollateral, creditCollateralEvents)}
}

func (r *CollateralRepository) Create(ctx context.Context, c *Collateral) (Collateral, error) {
	return r.repo.Create(ctx, c)
}

func (r *CollateralRepository) Update(ctx context.Context, c *Collateral) error {
	return r.repo.Update(ctx, c)
}

func (r *CollateralRepository) Find(ctx context.Context, id string) (Collateral, error) {
	return r.repo.Find(ctx, id)
}

// ObligationRepository persists Obligation event logs and the
// "credit_obligations" projection table the installment allocator and
// status sweep scan in creation order.
type ObligationRepository struct {
	db   *sql.DB
	repo *es.Repository[Obligation, ObligationEvent]
}

func NewObligationRepository(db *sql.DB) *ObligationRepository {
	store := es.NewEventStore[ObligationEvent](db, "credit_obligation_events", "Obligation",
		outbox.NewRelay[ObligationEvent]("outbox_events", outbox.DefaultChannel))

	return &ObligationRepository{db: db, repo: es.NewRepository(store, reduceObligation, creditObligationEvents)}
}

func (r *ObligationRepository) Create(ctx context.Context, o *Obligation) (Obligation, error) {
	created, err := r.repo.Create(ctx, o)
	if err != nil {
		return Obligation{}, err
	}

	if err := r.upsertProjection(ctx, &created); err != nil {
		return Obligation{}, err
	}

	return created, nil
}

func (r *ObligationRepository) Update(ctx context.Context, o *Obligation) error {
	if err := r.repo.Update(ctx, o); err != nil {
		return err
	}

	return r.upsertProjection(ctx, o)
}

func (r *ObligationRepository) Find(ctx context.Context, id string) (Obligation, error) {
	return r.repo.Find(ctx, id)
}

func (r *ObligationRepository) upsertProjection(ctx context.Context, o *Obligation) error {
	exec := dbtx.GetExecutor(ctx, r.db)

	query, args, err := squirrel.Insert("credit_obligations").
		Columns("id", "facility_id", "status", "created_at").
		Values(o.ID, o.FacilityID, string(o.Status), o.CreatedAt).
		Suffix("ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx, query, args...)

	return err
}

// ListByFacility returns a facility's obligations in creation order, the
// order the installment allocation algorithm and the status sweep job
// both require.
func (r *ObligationRepository) ListByFacility(ctx context.Context, facilityID string) ([]Obligation, error) {
	ids, err := scanIDs(ctx, dbtx.GetExecutor(ctx, r.db),
		squirrel.Select("id").From("credit_obligations").
			Where(squirrel.Eq{"facility_id": facilityID}).
			OrderBy("created_at ASC"))
	if err != nil {
		return nil, err
	}

	out := make([]Obligation, 0, len(ids))

	for _, id := range ids {
		o, err := r.Find(ctx, id)
		if err != nil {
			return nil, err
		}

		out = append(out, o)
	}

	return out, nil
}

// ListNonTerminal returns the IDs of every obligation not yet Paid or
// Defaulted, across every facility, for the status-transition sweep job.
func (r *ObligationRepository) ListNonTerminal(ctx context.Context) ([]string, error) {
	return scanIDs(ctx, dbtx.GetExecutor(ctx, r.db),
		squirrel.Select("id").From("credit_obligations").
			Where(squirrel.NotEq{"status": []string{string(ObligationPaid), string(ObligationDefaulted)}}))
}

// InterestAccrualCycleRepository persists InterestAccrualCycle event
// logs.
type InterestAccrualCycleRepository struct {
	db   *sql.DB
	repo *es.Repository[InterestAccrualCycle, InterestAccrualCycleEvent]
}

func NewInterestAccrualCycleRepository(db *sql.DB) *InterestAccrualCycleRepository {
	store := es.NewEventStore[InterestAccrualCycleEvent](db, "credit_accrual_cycle_events", "InterestAccrualCycle", nil)

	return &InterestAccrualCycleRepository{db: db, repo: es.NewRepository(store, reduceInterestAccrualCycle, creditAccrualCycleEvents)}
}

func (r *InterestAccrualCycleRepository) Create(ctx context.Context, c *InterestAccrualCycle) (InterestAccrualCycle, error) {
	return r.repo.Create(ctx, c)
}

func (r *InterestAccrualCycleRepository) Update(ctx context.Context, c *InterestAccrualCycle) error {
	return r.repo.Update(ctx, c)
}

func (r *InterestAccrualCycleRepository) Find(ctx context.Context, id string) (InterestAccrualCycle, error) {
	return r.repo.Find(ctx, id)
}

// DisbursalRepository persists Disbursal event logs.
type DisbursalRepository struct {
	repo *es.Repository[Disbursal, DisbursalEvent]
}

func NewDisbursalRepository(db *sql.DB) *DisbursalRepository {
	store := es.NewEventStore[DisbursalEvent](db, "credit_disbursal_events", "Disbursal",
		outbox.NewRelay[DisbursalEvent]("outbox_events", outbox.DefaultChannel))

	return &DisbursalRepository{repo: es.NewRepository(store, reduceDisbursal, creditDisbursalEvents)}
}

func (r *DisbursalRepository) Create(ctx context.Context, d *Disbursal) (Disbursal, error) {
	return r.repo.Create(ctx, d)
}

func (r *DisbursalRepository) Update(ctx context.Context, d *Disbursal) error {
	return r.repo.Update(ctx, d)
}

func (r *DisbursalRepository) Find(ctx context.Context, id string) (Disbursal, error) {
	return r.repo.Find(ctx, id)
}

// LiquidationRepository persists LiquidationProcess event logs.
type LiquidationRepository struct {
	repo *es.Repository[LiquidationProcess, LiquidationEvent]
}

func NewLiquidationRepository(db *sql.DB) *LiquidationRepository {
	store := es.NewEventStore[LiquidationEvent](db, "credit_liquidation_events", "LiquidationProcess",
		outbox.NewRelay[LiquidationEvent]("outbox_events", outbox.DefaultChannel))

	return &LiquidationRepository{repo: es.NewRepository(store, reduceLiquidation, creditLiquidationEvents)}
}

func (r *LiquidationRepository) Create(ctx context.Context, l *LiquidationProcess) (LiquidationProcess, error) {
	return r.repo.Create(ctx, l)
}

func (r *LiquidationRepository) Update(ctx context.Context, l *LiquidationProcess) error {
	return r.repo.Update(ctx, l)
}

func (r *LiquidationRepository) Find(ctx context.Context, id string) (LiquidationProcess, error) {
	return r.repo.Find(ctx, id)
}

// InstallmentRepository inserts the append-only installment allocation
// trail; it has no Find, and nothing in this module reads installment
// rows back.
type InstallmentRepository struct {
	db *sql.DB
}

func NewInstallmentRepository(db *sql.DB) *InstallmentRepository {
	return &InstallmentRepository{db: db}
}

func (r *InstallmentRepository) Insert(ctx context.Context, installment ObligationInstallment) error {
	exec := dbtx.GetExecutor(ctx, r.db)

	query, args, err := squirrel.Insert("credit_obligation_installments").
		Columns("id", "obligation_id", "facility_id", "amount", "ledger_tx_id", "recorded_at").
		Values(installment.ID, installment.ObligationID, installment.FacilityID,
			installment.Amount, installment.LedgerTxID, installment.RecordedAt).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx, query, args...)

	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}

	return s
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
