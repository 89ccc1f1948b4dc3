package deposit

import (
	"context"
	"database/sql"

	"github.com/northstarcredit/core/internal/authz"
	"github.com/northstarcredit/core/internal/ledgeradapter"
	"github.com/northstarcredit/core/pkg/apperr"
	"github.com/northstarcredit/core/pkg/apptrace"
	"github.com/northstarcredit/core/pkg/money"
)

// WithdrawalApprovalStarter starts the governance approval process a
// withdrawal needs before it can confirm. Defined here, rather than
// importing internal/governance directly, for the same reason
// internal/credit defines its own ApprovalProcessStarter.
type WithdrawalApprovalStarter interface {
	StartApprovalProcess(ctx context.Context, kind, entityID string) (processID string, err error)
}

// Service is the access-controlled entry point onto deposit accounts,
// deposits, and withdrawals. Deposits and reversals are system-triggered,
// driven off an external ledger or banking webhook rather than a human
// actor, so they skip enforcement the same way internal/credit's
// disbursal settlement does.
type Service struct {
	db          *sql.DB
	accounts    *AccountRepository
	deposits    *DepositRepository
	withdrawals *WithdrawalRepository
	ledger      ledgeradapter.Ledger
	approvals   WithdrawalApprovalStarter
	enforcer    *authz.Enforcer
}

func NewService(
	db *sql.DB,
	accounts *AccountRepository,
	deposits *DepositRepository,
	withdrawals *WithdrawalRepository,
	ledger ledgeradapter.Ledger,
	approvals WithdrawalApprovalStarter,
	enforcer *authz.Enforcer,
) *Service {
	return &Service{
		db: db, accounts: accounts, deposits: deposits, withdrawals: withdrawals,
		ledger: ledger, approvals: approvals, enforcer: enforcer,
	}
}

// OpenAccount opens a deposit account for customerID against an existing
// ledger account pair. System-triggered: called from the onboarding flow
// once a customer's applicant record clears, not directly by a human
// reviewer.
func (s *Service) OpenAccount(ctx context.Context, customerID, ledgerAccountID, frozenLedgerAccountID string, active bool) (Account, error) {
	audit := authz.NewAuditInfo(authz.SystemSubject, clock())
	account := NewAccount(customerID, ledgerAccountID, frozenLedgerAccountID, active, audit)

	return s.accounts.Create(ctx, account)
}

// Account returns a deposit account by ID.
func (s *Service) Account(ctx context.Context, subject authz.Subject, id string) (Account, error) {
	if err := s.enforcer.EnforcePermission(ctx, subject, authz.NewPermission(authz.OneDepositAccount(id), authz.ActionDepositAccountRead)); err != nil {
		return Account{}, err
	}

	return s.accounts.Find(ctx, id)
}

// FreezeAccount places accountID under a regulatory hold. The external
// ledger, not this core, holds the account's running balance, so it is
// the ledger's own freeze endpoint that sweeps the balance to the paired
// frozen account once notified; this call only records the status
// transition. System-triggered, called by compliance tooling outside the
// scope modeled here rather than a human subject in this service.
func (s *Service) FreezeAccount(ctx context.Context, accountID string) error {
	account, err := s.accounts.Find(ctx, accountID)
	if err != nil {
		return err
	}

	if !account.UpdateStatus(AccountFrozen, authz.NewAuditInfo(authz.SystemSubject, clock())).IsExecuted() {
		return nil
	}

	return s.accounts.Update(ctx, &account)
}

// RecordDeposit posts a ledger credit for amount into accountID and
// records the confirmed Deposit. System-triggered: driven by an external
// banking or ledger webhook, not a human-initiated command.
func (s *Service) RecordDeposit(ctx context.Context, accountID string, amount money.UsdCents, reference string) (Deposit, error) {
	ctx, span := apptrace.Start(ctx, "deposit", "record_deposit")
	defer span.End()

	account, err := s.accounts.Find(ctx, accountID)
	if err != nil {
		return Deposit{}, err
	}

	txID, err := s.ledger.PostTransaction(ctx, ledgeradapter.TransactionRequest{
		ExternalID: "deposit:" + reference,
		Entries: []ledgeradapter.Entry{
			{AccountID: account.LedgerAccountID, Direction: ledgeradapter.Credit, Amount: amount},
		},
	})
	if err != nil {
		return Deposit{}, err
	}

	audit := authz.NewAuditInfo(authz.SystemSubject, clock())

	deposit, err := NewDeposit(accountID, amount, reference, txID, audit)
	if err != nil {
		return Deposit{}, err
	}

	return s.deposits.Create(ctx, deposit)
}

// RevertDeposit reverses a previously confirmed deposit, posting the
// offsetting ledger entry. Idempotent: reverting an already-reverted
// deposit is a no-op.
func (s *Service) RevertDeposit(ctx context.Context, depositID string) error {
	deposit, err := s.deposits.Find(ctx, depositID)
	if err != nil {
		return err
	}

	if deposit.Status == DepositReverted {
		return nil
	}

	account, err := s.accounts.Find(ctx, deposit.AccountID)
	if err != nil {
		return err
	}

	txID, err := s.ledger.PostTransaction(ctx, ledgeradapter.TransactionRequest{
		ExternalID: "deposit-reversal:" + deposit.ID,
		Entries: []ledgeradapter.Entry{
			{AccountID: account.LedgerAccountID, Direction: ledgeradapter.Debit, Amount: deposit.Amount},
		},
	})
	if err != nil {
		return err
	}

	audit := authz.NewAuditInfo(authz.SystemSubject, clock())

	if !deposit.Revert(txID, audit).IsExecuted() {
		return nil
	}

	return s.deposits.Update(ctx, &deposit)
}

// InitiateWithdrawal starts a withdrawal of amount from accountID, kicking
// off the governance approval process it needs before it can confirm.
func (s *Service) InitiateWithdrawal(ctx context.Context, subject authz.Subject, accountID string, amount money.UsdCents, reference string) (Withdrawal, error) {
	ctx, span := apptrace.Start(ctx, "deposit", "initiate_withdrawal")
	defer span.End()

	if err := s.enforcer.EnforcePermission(ctx, subject, authz.NewPermission(authz.OneDepositAccount(accountID), authz.ActionWithdrawalInitiate)); err != nil {
		return Withdrawal{}, err
	}

	account, err := s.accounts.Find(ctx, accountID)
	if err != nil {
		return Withdrawal{}, err
	}

	if !account.IsUsable() {
		return Withdrawal{}, apperr.InvariantViolation("DepositAccount", "account %s is not active (status=%s)", accountID, account.Status)
	}

	withdrawal, err := NewWithdrawal(accountID, amount, reference, "", authz.NewAuditInfo(subject, clock()))
	if err != nil {
		return Withdrawal{}, err
	}

	processID, err := s.approvals.StartApprovalProcess(ctx, "withdrawal", withdrawal.ID)
	if err != nil {
		return Withdrawal{}, err
	}

	withdrawal.ApprovalProcessID = processID

	return s.withdrawals.Create(ctx, withdrawal)
}

// Withdrawal returns a withdrawal by ID.
func (s *Service) Withdrawal(ctx context.Context, subject authz.Subject, id string) (Withdrawal, error) {
	if err := s.enforcer.EnforcePermission(ctx, subject, authz.NewPermission(authz.OneWithdrawal(id), authz.ActionWithdrawalRead)); err != nil {
		return Withdrawal{}, err
	}

	return s.withdrawals.Find(ctx, id)
}

// ApproveWithdrawal records a human reviewer's verdict on a withdrawal.
func (s *Service) ApproveWithdrawal(ctx context.Context, subject authz.Subject, withdrawalID string, approved bool) error {
	if err := s.enforcer.EnforcePermission(ctx, subject, authz.NewPermission(authz.OneWithdrawal(withdrawalID), authz.ActionWithdrawalApprove)); err != nil {
		return err
	}

	return s.ConcludeWithdrawalApproval(ctx, withdrawalID, approved)
}

// ConcludeWithdrawalApproval records the verdict governance's own approval
// process reached for a withdrawal, delivered through the outbox reactor.
// System-triggered: the permission check already happened when governance
// enforced who could act on the approval process itself.
func (s *Service) ConcludeWithdrawalApproval(ctx context.Context, withdrawalID string, approved bool) error {
	withdrawal, err := s.withdrawals.Find(ctx, withdrawalID)
	if err != nil {
		return err
	}

	audit := authz.NewAuditInfo(authz.SystemSubject, clock())

	if !withdrawal.ConcludeApprovalProcess(approved, audit).IsExecuted() {
		return nil
	}

	return s.withdrawals.Update(ctx, &withdrawal)
}

// ConfirmWithdrawal posts an approved withdrawal's debit to the ledger and
// marks it Confirmed.
func (s *Service) ConfirmWithdrawal(ctx context.Context, withdrawalID string) error {
	withdrawal, err := s.withdrawals.Find(ctx, withdrawalID)
	if err != nil {
		return err
	}

	if withdrawal.Status == WithdrawalConfirmed {
		return nil
	}

	account, err := s.accounts.Find(ctx, withdrawal.AccountID)
	if err != nil {
		return err
	}

	txID, err := s.ledger.PostTransaction(ctx, ledgeradapter.TransactionRequest{
		ExternalID: "withdrawal:" + withdrawal.ID,
		Entries: []ledgeradapter.Entry{
			{AccountID: account.LedgerAccountID, Direction: ledgeradapter.Debit, Amount: withdrawal.Amount},
		},
	})
	if err != nil {
		return err
	}

	audit := authz.NewAuditInfo(authz.SystemSubject, clock())

	if _, err := withdrawal.Confirm(txID, audit); err != nil {
		return err
	}

	return s.withdrawals.Update(ctx, &withdrawal)
}

// CancelWithdrawal withdraws a request that has not yet confirmed.
func (s *Service) CancelWithdrawal(ctx context.Context, subject authz.Subject, withdrawalID string) error {
	if err := s.enforcer.EnforcePermission(ctx, subject, authz.NewPermission(authz.OneWithdrawal(withdrawalID), authz.ActionWithdrawalApprove)); err != nil {
		return err
	}

	withdrawal, err := s.withdrawals.Find(ctx, withdrawalID)
	if err != nil {
		return err
	}

	audit := authz.NewAuditInfo(subject, clock())

	if _, err := withdrawal.Cancel("", audit); err != nil {
		return err
	}

	return s.withdrawals.Update(ctx, &withdrawal)
}

// RevertWithdrawal reverses a previously confirmed withdrawal, posting the
// offsetting ledger entry.
func (s *Service) RevertWithdrawal(ctx context.Context, withdrawalID string) error {
	withdrawal, err := s.withdrawals.Find(ctx, withdrawalID)
	if err != nil {
		return err
	}

	account, err := s.accounts.Find(ctx, withdrawal.AccountID)
	if err != nil {
		return err
	}

	txID, err := s.ledger.PostTransaction(ctx, ledgeradapter.TransactionRequest{
		ExternalID: "withdrawal-reversal:" + withdrawal.ID,
		Entries: []ledgeradapter.Entry{
			{AccountID: account.LedgerAccountID, Direction: ledgeradapter.Credit, Amount: withdrawal.Amount},
		},
	})
	if err != nil {
		return err
	}

	audit := authz.NewAuditInfo(authz.SystemSubject, clock())

	idempotent, err := withdrawal.Revert(txID, audit)
	if err != nil {
		return err
	}

	if !idempotent.IsExecuted() {
		return nil
	}

	return s.withdrawals.Update(ctx, &withdrawal)
}
