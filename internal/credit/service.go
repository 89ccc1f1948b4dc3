package credit

import (
	"context"
	"database/sql"

	"github.com/northstarcredit/core/internal/authz"
	"github.com/northstarcredit/core/internal/ledgeradapter"
	"github.com/northstarcredit/core/pkg/apperr"
	"github.com/northstarcredit/core/pkg/apptrace"
	"github.com/northstarcredit/core/pkg/dbtx"
	"github.com/northstarcredit/core/pkg/money"
)

// ApprovalProcessStarter starts the governance approval process that
// gates a proposal's or disbursal's sign-off. Defined here, rather than
// importing internal/governance directly, so this package stays free of
// a dependency cycle with the domain that consumes its outbox events.
type ApprovalProcessStarter interface {
	StartApprovalProcess(ctx context.Context, kind, entityID string) (processID string, err error)
}

// CustodyWalletOpener opens the custodian-tracked wallet a facility's
// collateral syncs from, when the facility is not self-custodied.
// Defined here for the same reason as ApprovalProcessStarter.
type CustodyWalletOpener interface {
	OpenWallet(ctx context.Context, facilityID, customerID string) (walletID string, err error)
}

// Service is the access-controlled entry point onto every credit
// aggregate. Each human-initiated method enforces its permission before
// acting; methods only ever called from jobs or the outbox reactor act
// as authz.SystemSubject and skip the check, the same split
// internal/access's Service documents for its own write paths.
type Service struct {
	db            *sql.DB
	proposals     *ProposalRepository
	facilities    *FacilityRepository
	collateral    *CollateralRepository
	obligations   *ObligationRepository
	accrualCycles *InterestAccrualCycleRepository
	disbursals    *DisbursalRepository
	liquidations  *LiquidationRepository
	installments  *InstallmentRepository
	ledger        ledgeradapter.Ledger
	prices        *PriceCache
	approvals     ApprovalProcessStarter
	enforcer      *authz.Enforcer
}

func NewService(
	db *sql.DB,
	proposals *ProposalRepository,
	facilities *FacilityRepository,
	collateral *CollateralRepository,
	obligations *ObligationRepository,
	accrualCycles *InterestAccrualCycleRepository,
	disbursals *DisbursalRepository,
	liquidations *LiquidationRepository,
	installments *InstallmentRepository,
	ledger ledgeradapter.Ledger,
	prices *PriceCache,
	approvals ApprovalProcessStarter,
	enforcer *authz.Enforcer,
) *Service {
	return &Service{
		db: db, proposals: proposals, facilities: facilities, collateral: collateral,
		obligations: obligations, accrualCycles: accrualCycles, disbursals: disbursals,
		liquidations: liquidations, installments: installments, ledger: ledger,
		prices: prices, approvals: approvals, enforcer: enforcer,
	}
}

// CreateProposal starts a CreditFacilityProposal for customerID and kicks
// off the governance approval process it needs before it can become a
// facility.
func (s *Service) CreateProposal(ctx context.Context, subject authz.Subject, customerID string, amount money.UsdCents, terms Terms) (CreditFacilityProposal, error) {
	ctx, span := apptrace.Start(ctx, "credit", "create_proposal")
	defer span.End()

	if err := s.enforcer.EnforcePermission(ctx, subject, authz.NewPermission(authz.AllCreditFacilityProposals(), authz.ActionCreditFacilityProposalCreate)); err != nil {
		return CreditFacilityProposal{}, err
	}

	audit := authz.NewAuditInfo(subject, clock())
	proposal, collateral := NewCreditFacilityProposal(customerID, amount, terms, audit)

	var created CreditFacilityProposal

	err := dbtx.RunInTransaction(ctx, s.db, func(ctx context.Context) error {
		if _, err := s.collateral.Create(ctx, collateral); err != nil {
			return err
		}

		processID, err := s.approvals.StartApprovalProcess(ctx, "credit_facility_proposal", proposal.ID)
		if err != nil {
			return err
		}

		proposal.StartApprovalProcess(processID, audit)

		var createErr error

		created, createErr = s.proposals.Create(ctx, proposal)

		return createErr
	})
	if err != nil {
		return CreditFacilityProposal{}, err
	}

	return created, nil
}

// Proposal returns a proposal by ID.
func (s *Service) Proposal(ctx context.Context, subject authz.Subject, id string) (CreditFacilityProposal, error) {
	if err := s.enforcer.EnforcePermission(ctx, subject, authz.NewPermission(authz.OneCreditFacilityProposal(id), authz.ActionCreditFacilityProposalRead)); err != nil {
		return CreditFacilityProposal{}, err
	}

	return s.proposals.Find(ctx, id)
}

// UpdateProposalCollateralization recomputes one proposal's
// collateralization state from the facility's BTC collateral and the
// current market price, and is called by the collateralization sweep
// job. It is a system-triggered operation: no human initiates a single
// proposal's price refresh.
func (s *Service) UpdateProposalCollateralization(ctx context.Context, proposalID string, btcPriceUSD money.UsdCents) error {
	proposal, err := s.proposals.Find(ctx, proposalID)
	if err != nil {
		return err
	}

	if proposal.IsCompleted() {
		return nil
	}

	collateral, err := s.collateral.Find(ctx, proposal.CollateralID)
	if err != nil {
		return err
	}

	collateralValueUSD := money.UsdCentsFromUSD(collateral.Total.ToBTC().Mul(btcPriceUSD.ToUSD()))
	audit := authz.NewAuditInfo(authz.SystemSubject, clock())

	if !proposal.UpdateCollateralization(collateralValueUSD, audit).IsExecuted() {
		return nil
	}

	return s.proposals.Update(ctx, &proposal)
}

// ConcludeProposalApproval records governance's verdict on a proposal.
// Called by the governance outbox reactor when an approval process
// concludes.
func (s *Service) ConcludeProposalApproval(ctx context.Context, proposalID string, approved bool) error {
	proposal, err := s.proposals.Find(ctx, proposalID)
	if err != nil {
		return err
	}

	if _, err := proposal.ConcludeApprovalProcess(approved); err != nil {
		return err
	}

	return s.proposals.Update(ctx, &proposal)
}

// CompleteProposalIntoFacility creates the CreditFacility for a proposal
// that is fully collateralized and approved, assigning it accounts.
// Idempotent: if the proposal was already completed, it returns the
// existing facility.
func (s *Service) CompleteProposalIntoFacility(ctx context.Context, proposalID string, accounts AccountIDs) (CreditFacility, error) {
	proposal, err := s.proposals.Find(ctx, proposalID)
	if err != nil {
		return CreditFacility{}, err
	}

	if proposal.IsCompleted() {
		return s.facilities.Find(ctx, proposal.FacilityID)
	}

	audit := authz.NewAuditInfo(authz.SystemSubject, clock())
	facility := NewCreditFacility(proposal, accounts, audit)

	var created CreditFacility

	err = dbtx.RunInTransaction(ctx, s.db, func(ctx context.Context) error {
		var createErr error

		created, createErr = s.facilities.Create(ctx, facility)
		if createErr != nil {
			return createErr
		}

		if _, err := proposal.Complete(facility.ID); err != nil {
			return err
		}

		return s.proposals.Update(ctx, &proposal)
	})
	if err != nil {
		return CreditFacility{}, err
	}

	return created, nil
}

// Facility returns a facility by ID.
func (s *Service) Facility(ctx context.Context, subject authz.Subject, id string) (CreditFacility, error) {
	if err := s.enforcer.EnforcePermission(ctx, subject, authz.NewPermission(authz.OneCreditFacility(id), authz.ActionCreditFacilityRead)); err != nil {
		return CreditFacility{}, err
	}

	return s.facilities.Find(ctx, id)
}

// ApproveFacility moves a facility from Initialized to Approved. System
// operation: facility approval rides on the same governance process as
// its originating proposal.
func (s *Service) ApproveFacility(ctx context.Context, facilityID string) error {
	facility, err := s.facilities.Find(ctx, facilityID)
	if err != nil {
		return err
	}

	audit := authz.NewAuditInfo(authz.SystemSubject, clock())

	if _, err := facility.Approve(audit); err != nil {
		return err
	}

	return s.facilities.Update(ctx, &facility)
}

// CreateDisbursal starts a draw-down against an activated facility.
func (s *Service) CreateDisbursal(ctx context.Context, subject authz.Subject, facilityID string, amount money.UsdCents) (Disbursal, error) {
	ctx, span := apptrace.Start(ctx, "credit", "create_disbursal")
	defer span.End()

	if err := s.enforcer.EnforcePermission(ctx, subject, authz.NewPermission(authz.OneCreditFacility(facilityID), authz.ActionCreditFacilityRead)); err != nil {
		return Disbursal{}, err
	}

	facility, err := s.facilities.Find(ctx, facilityID)
	if err != nil {
		return Disbursal{}, err
	}

	audit := authz.NewAuditInfo(subject, clock())

	disbursal, err := NewDisbursal(facilityID, amount, facility.IsActivated(), audit)
	if err != nil {
		return Disbursal{}, err
	}

	processID, err := s.approvals.StartApprovalProcess(ctx, "disbursal", disbursal.ID)
	if err != nil {
		return Disbursal{}, err
	}

	_ = processID

	return s.disbursals.Create(ctx, disbursal)
}

// ApproveDisbursal records a human reviewer's verdict on a disbursal.
func (s *Service) ApproveDisbursal(ctx context.Context, subject authz.Subject, disbursalID string, approved bool) error {
	if err := s.enforcer.EnforcePermission(ctx, subject, authz.NewPermission(authz.OneDisbursal(disbursalID), authz.ActionDisbursalApprove)); err != nil {
		return err
	}

	return s.concludeDisbursalApproval(ctx, disbursalID, approved)
}

// ApproveDisbursalFromGovernance records the verdict governance's own
// approval process reached for a disbursal, delivered through the outbox
// reactor rather than a human call. It is a system-triggered operation:
// the permission check already happened when governance enforced who could
// act on the approval process itself.
func (s *Service) ApproveDisbursalFromGovernance(ctx context.Context, disbursalID string, approved bool) error {
	return s.concludeDisbursalApproval(ctx, disbursalID, approved)
}

func (s *Service) concludeDisbursalApproval(ctx context.Context, disbursalID string, approved bool) error {
	disbursal, err := s.disbursals.Find(ctx, disbursalID)
	if err != nil {
		return err
	}

	if _, err := disbursal.ConcludeApprovalProcess(approved); err != nil {
		return err
	}

	return s.disbursals.Update(ctx, &disbursal)
}

// SyncCollateralFromCustodian applies a custodian-reported wallet balance
// to the facility's Collateral, called by the outbox reactor when
// internal/custody reports a balance change for a wallet backing a
// facility's collateral.
func (s *Service) SyncCollateralFromCustodian(ctx context.Context, facilityID string, balance money.Satoshis) error {
	facility, err := s.facilities.Find(ctx, facilityID)
	if err != nil {
		return err
	}

	collateral, err := s.collateral.Find(ctx, facility.CollateralID)
	if err != nil {
		return err
	}

	if _, err := collateral.UpdateFromCustodian(balance); err != nil {
		return err
	}

	return s.collateral.Update(ctx, &collateral)
}

// SettleDisbursal posts an approved disbursal's principal to the ledger,
// creates the Obligation for it, and activates the facility if this was
// its first settled disbursal.
func (s *Service) SettleDisbursal(ctx context.Context, disbursalID string) error {
	disbursal, err := s.disbursals.Find(ctx, disbursalID)
	if err != nil {
		return err
	}

	if disbursal.Status == DisbursalSettled {
		return nil
	}

	facility, err := s.facilities.Find(ctx, disbursal.FacilityID)
	if err != nil {
		return err
	}

	txID, err := s.ledger.PostTransaction(ctx, ledgeradapter.TransactionRequest{
		ExternalID: "disbursal:" + disbursal.ID,
		Entries: []ledgeradapter.Entry{
			{AccountID: facility.AccountIDs.FacilityAccountID, Direction: ledgeradapter.Credit, Amount: disbursal.Amount},
			{AccountID: facility.AccountIDs.DisbursedReceivableAccountID, Direction: ledgeradapter.Debit, Amount: disbursal.Amount},
		},
	})
	if err != nil {
		return err
	}

	audit := authz.NewAuditInfo(authz.SystemSubject, clock())
	obligation := NewObligation(facility.ID, ObligationTypeDisbursal, disbursal.Amount, facility.Terms, clock(), audit)

	return dbtx.RunInTransaction(ctx, s.db, func(ctx context.Context) error {
		if _, err := s.obligations.Create(ctx, obligation); err != nil {
			return err
		}

		if _, err := disbursal.Settle(txID, obligation.ID, audit); err != nil {
			return err
		}

		if err := s.disbursals.Update(ctx, &disbursal); err != nil {
			return err
		}

		if facility.Status == FacilityApprovedStatus {
			if _, err := facility.Activate(audit); err != nil {
				return err
			}

			return s.facilities.Update(ctx, &facility)
		}

		return nil
	})
}

// RecordInterestAccrual records one day's accrual on the existing cycle
// cycleID. It does not open a cycle.
func (s *Service) RecordInterestAccrual(ctx context.Context, cycleID string, amount money.UsdCents, day string) error {
	cycle, err := s.accrualCycles.Find(ctx, cycleID)
	if err != nil {
		return err
	}

	audit := authz.NewAuditInfo(authz.SystemSubject, clock())

	if _, err := cycle.RecordAccrual(day, amount, audit); err != nil {
		return err
	}

	return s.accrualCycles.Update(ctx, &cycle)
}

// CloseAccrualCycle closes an open cycle, posting an Obligation for its
// total accrued interest when that total is nonzero.
func (s *Service) CloseAccrualCycle(ctx context.Context, cycleID string) error {
	cycle, err := s.accrualCycles.Find(ctx, cycleID)
	if err != nil {
		return err
	}

	if cycle.Status == AccrualCycleClosed {
		return nil
	}

	audit := authz.NewAuditInfo(authz.SystemSubject, clock())

	var obligationID string

	return dbtx.RunInTransaction(ctx, s.db, func(ctx context.Context) error {
		if !cycle.TotalAccrued.IsZero() {
			facility, err := s.facilities.Find(ctx, cycle.FacilityID)
			if err != nil {
				return err
			}

			obligation := NewObligation(cycle.FacilityID, ObligationTypeInterest, cycle.TotalAccrued, facility.Terms, clock(), audit)
			if _, err := s.obligations.Create(ctx, obligation); err != nil {
				return err
			}

			obligationID = obligation.ID
		}

		if _, err := cycle.Close(obligationID, audit); err != nil {
			return err
		}

		return s.accrualCycles.Update(ctx, &cycle)
	})
}

// ApplyPayment allocates an incoming payment across facilityID's
// obligations in creation order, per the installment allocation
// algorithm, and records the installment trail.
func (s *Service) ApplyPayment(ctx context.Context, facilityID string, amount money.UsdCents, ledgerTxID string) (money.UsdCents, error) {
	obligations, err := s.obligations.ListByFacility(ctx, facilityID)
	if err != nil {
		return 0, err
	}

	pointers := make([]*Obligation, len(obligations))
	for i := range obligations {
		pointers[i] = &obligations[i]
	}

	audit := authz.NewAuditInfo(authz.SystemSubject, clock())
	records, remaining := allocateInstallment(pointers, facilityID, ledgerTxID, amount, audit)

	err = dbtx.RunInTransaction(ctx, s.db, func(ctx context.Context) error {
		for i := range pointers {
			if err := s.obligations.Update(ctx, pointers[i]); err != nil {
				return err
			}
		}

		for _, rec := range records {
			if err := s.installments.Insert(ctx, rec); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return remaining, nil
}

// StartLiquidation begins liquidating a facility's collateral once its
// CVL has crossed Terms.LiquidationCVL, marking every non-terminal
// obligation as under liquidation so the status sweep no longer advances
// them toward Defaulted.
func (s *Service) StartLiquidation(ctx context.Context, facilityID string) (LiquidationProcess, error) {
	audit := authz.NewAuditInfo(authz.SystemSubject, clock())

	obligations, err := s.obligations.ListByFacility(ctx, facilityID)
	if err != nil {
		return LiquidationProcess{}, err
	}

	process := StartLiquidationProcess(facilityID, audit)

	var created LiquidationProcess

	err = dbtx.RunInTransaction(ctx, s.db, func(ctx context.Context) error {
		var createErr error

		created, createErr = s.liquidations.Create(ctx, process)
		if createErr != nil {
			return createErr
		}

		for i := range obligations {
			if obligations[i].Status.isTerminal() {
				continue
			}

			if _, err := obligations[i].StartLiquidation(); err != nil {
				if apperr.Is(err, apperr.KindInvariantViolation) {
					continue
				}

				return err
			}

			if err := s.obligations.Update(ctx, &obligations[i]); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return LiquidationProcess{}, err
	}

	return created, nil
}
