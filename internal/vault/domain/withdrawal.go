package domain

import (
	"time"

	"github.com/hbeckert/covault/internal/errors"
)

// WithdrawalState describes the lifecycle state of a withdrawal request.
type WithdrawalState string

const (
	// WithdrawalStatePending indicates the request is awaiting approvals.
	WithdrawalStatePending WithdrawalState = "PENDING"
	// WithdrawalStateExecuted indicates the request released its funds.
	// Executed is terminal; there is no cancellation path.
	WithdrawalStateExecuted WithdrawalState = "EXECUTED"
)

// WithdrawalRequest represents a pending or executed withdrawal against an
// account. Approvals accumulate until every non-requester owner has approved,
// after which only the requester may execute it.
type WithdrawalRequest struct {
	// ID is unique and monotonically assigned within the owning account.
	ID uint64
	// AccountID references the owning account.
	AccountID uint64
	// Requester created the request and is the only identity allowed to
	// execute it.
	Requester Identity
	// Amount is the requested amount in minor units, validated against the
	// balance at request time and re-validated at execution.
	Amount int64
	// Approvers holds distinct non-requester owners in approval order.
	Approvers []Identity
	// State is the lifecycle state.
	State WithdrawalState
	// CreatedAt is when the request was created.
	CreatedAt time.Time
}

// NewWithdrawalRequest builds a pending withdrawal request. The requester
// must already be validated as an account owner; the amount is checked
// against the balance the account holds right now.
func NewWithdrawalRequest(id uint64, account Account, requester Identity, amount int64, now func() time.Time) (WithdrawalRequest, error) {
	if now == nil {
		now = time.Now
	}
	if amount <= 0 {
		return WithdrawalRequest{}, errors.New(errors.CodeInvalidAmount, "withdrawal amount must be positive")
	}
	if amount > account.Balance {
		return WithdrawalRequest{}, errors.Newf(errors.CodeInsufficientFunds, "balance %d is below requested amount %d", account.Balance, amount)
	}

	return WithdrawalRequest{
		ID:        id,
		AccountID: account.ID,
		Requester: normalizeIdentity(requester),
		Amount:    amount,
		State:     WithdrawalStatePending,
		CreatedAt: now().UTC(),
	}, nil
}

// HasApproved reports whether the identity already approved the request.
func (w WithdrawalRequest) HasApproved(id Identity) bool {
	id = normalizeIdentity(id)
	for _, approver := range w.Approvers {
		if approver == id {
			return true
		}
	}
	return false
}

// ApprovalCount returns the number of distinct owner approvals.
func (w WithdrawalRequest) ApprovalCount() int {
	return len(w.Approvers)
}

// QuorumMet reports whether every non-requester owner has approved. A
// single-owner account has a quorum of zero and is immediately executable.
func (w WithdrawalRequest) QuorumMet(ownerCount int) bool {
	return len(w.Approvers) >= ownerCount-1
}

// Approve records an approval by the caller. The caller must be a
// non-requester owner of the account who has not yet approved, and the
// request must still be pending.
func (w *WithdrawalRequest) Approve(account Account, caller Identity) error {
	caller = normalizeIdentity(caller)
	if w.State != WithdrawalStatePending {
		return errors.Newf(errors.CodeRequestAlreadyExecuted, "withdrawal %d is already executed", w.ID)
	}
	if !account.IsOwner(caller) {
		return errors.Newf(errors.CodeNotOwner, "identity %q does not own account %d", caller, account.ID)
	}
	if caller == w.Requester {
		return errors.New(errors.CodeSelfApproval, "requester cannot approve their own withdrawal")
	}
	if w.HasApproved(caller) {
		return errors.Newf(errors.CodeAlreadyApproved, "identity %q already approved withdrawal %d", caller, w.ID)
	}
	w.Approvers = append(w.Approvers, caller)
	return nil
}

// Execute releases the withdrawal: it debits the account and marks the
// request executed. Only the requester may execute, quorum must be met, and
// the current balance must still cover the amount. All checks pass before
// any state changes, so a failed execution leaves both the request and the
// account untouched.
func (w *WithdrawalRequest) Execute(account *Account, caller Identity) error {
	caller = normalizeIdentity(caller)
	if w.State != WithdrawalStatePending {
		return errors.Newf(errors.CodeRequestAlreadyExecuted, "withdrawal %d is already executed", w.ID)
	}
	if caller != w.Requester {
		return errors.Newf(errors.CodeNotRequester, "only the requester may execute withdrawal %d", w.ID)
	}
	if !w.QuorumMet(len(account.Owners)) {
		return errors.Newf(errors.CodeQuorumNotMet, "withdrawal %d has %d of %d required approvals", w.ID, len(w.Approvers), len(account.Owners)-1)
	}
	if err := account.Debit(w.Amount); err != nil {
		return err
	}
	w.State = WithdrawalStateExecuted
	return nil
}
