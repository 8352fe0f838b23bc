// Package service exposes the vault engine: the single operation surface
// through which accounts, deposits, and the withdrawal approval workflow are
// driven. Every operation validates the caller against the stored owner set,
// applies the transition, and appends an event record.
package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"time"

	"github.com/hbeckert/covault/internal/errors"
	"github.com/hbeckert/covault/internal/platform/logger"
	"github.com/hbeckert/covault/internal/storage"
	"github.com/hbeckert/covault/internal/vault/domain"
	"github.com/hbeckert/covault/internal/vault/event"
)

// Engine sequences all registry mutations. A single mutex serializes
// operations so no two calls ever interleave partial state changes; an
// InsufficientFunds check and the debit it guards always observe the same
// balance.
type Engine struct {
	mu     sync.Mutex
	stores storage.Stores
	clock  func() time.Time
	log    *logger.Logger
}

// New creates an engine on top of the given stores.
func New(stores storage.Stores, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	return &Engine{
		stores: stores,
		clock:  time.Now,
		log:    log,
	}
}

// CreateAccount creates an account owned by the caller plus otherOwners and
// returns its id.
func (e *Engine) CreateAccount(ctx context.Context, caller domain.Identity, otherOwners []domain.Identity) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Validate before allocating: a rejected create must not consume an id,
	// so successful accounts stay densely numbered.
	account, err := domain.NewAccount(0, caller, otherOwners, e.clock)
	if err != nil {
		e.log.Debug("create account rejected", "caller", caller, "code", errors.GetCode(err))
		return 0, err
	}

	id, err := e.stores.Accounts.NextAccountID(ctx)
	if err != nil {
		return 0, internalError("allocate account id", err)
	}
	account.ID = id

	if err := e.stores.Accounts.PutAccount(ctx, account); err != nil {
		return 0, internalError("persist account", err)
	}

	owners := make([]string, len(account.Owners))
	for i, owner := range account.Owners {
		owners[i] = string(owner)
	}
	e.appendEvent(ctx, event.TypeAccountCreated, caller, account.ID, event.AccountCreatedPayload{
		AccountID: account.ID,
		Owners:    owners,
	})

	e.log.Info("account created", "account_id", account.ID, "owners", len(account.Owners))
	return account.ID, nil
}

// GetAccounts returns the ids of every account the caller owns, in creation
// order. It never fails for unknown callers; they own nothing.
func (e *Engine) GetAccounts(ctx context.Context, caller domain.Identity) ([]uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids, err := e.stores.Accounts.ListAccountIDs(ctx, caller)
	if err != nil {
		return nil, internalError("list accounts", err)
	}
	return ids, nil
}

// GetOwners returns the account's owner set in creation order.
func (e *Engine) GetOwners(ctx context.Context, accountID uint64) ([]domain.Identity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	account, err := e.getAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return account.Owners, nil
}

// GetBalance returns the account's current balance. Reads are unrestricted;
// only mutations require ownership.
func (e *Engine) GetBalance(ctx context.Context, accountID uint64) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	account, err := e.getAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// Deposit credits the account. Only owners may deposit.
func (e *Engine) Deposit(ctx context.Context, caller domain.Identity, accountID uint64, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	account, err := e.getAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.IsOwner(caller) {
		e.log.Debug("deposit rejected", "caller", caller, "account_id", accountID, "code", errors.CodeNotOwner)
		return errors.Newf(errors.CodeNotOwner, "identity %q does not own account %d", caller, accountID)
	}
	if err := account.Credit(amount); err != nil {
		e.log.Debug("deposit rejected", "caller", caller, "account_id", accountID, "code", errors.GetCode(err))
		return err
	}

	if err := e.stores.Accounts.PutAccount(ctx, account); err != nil {
		return internalError("persist account", err)
	}

	e.appendEvent(ctx, event.TypeDeposit, caller, accountID, event.DepositPayload{
		Depositor: string(caller),
		AccountID: accountID,
		Amount:    amount,
	})

	e.log.Info("deposit committed", "account_id", accountID, "amount", amount)
	return nil
}

// RequestWithdrawal creates a pending withdrawal request and returns its id.
// The amount is validated against the balance the account holds right now;
// execution re-validates against the balance at that later moment.
func (e *Engine) RequestWithdrawal(ctx context.Context, caller domain.Identity, accountID uint64, amount int64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	account, err := e.getAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if !account.IsOwner(caller) {
		e.log.Debug("withdrawal request rejected", "caller", caller, "account_id", accountID, "code", errors.CodeNotOwner)
		return 0, errors.Newf(errors.CodeNotOwner, "identity %q does not own account %d", caller, accountID)
	}

	// Validate before allocating so a rejected request does not consume an id.
	request, err := domain.NewWithdrawalRequest(0, account, caller, amount, e.clock)
	if err != nil {
		e.log.Debug("withdrawal request rejected", "caller", caller, "account_id", accountID, "code", errors.GetCode(err))
		return 0, err
	}

	id, err := e.stores.Withdrawals.NextWithdrawalID(ctx, accountID)
	if err != nil {
		return 0, internalError("allocate withdrawal id", err)
	}
	request.ID = id

	if err := e.stores.Withdrawals.PutWithdrawal(ctx, request); err != nil {
		return 0, internalError("persist withdrawal", err)
	}

	e.appendEvent(ctx, event.TypeWithdrawalRequested, caller, accountID, event.WithdrawalRequestedPayload{
		Requester:    string(caller),
		AccountID:    accountID,
		WithdrawalID: request.ID,
		Amount:       amount,
	})

	e.log.Info("withdrawal requested", "account_id", accountID, "withdrawal_id", request.ID, "amount", amount)
	return request.ID, nil
}

// ApproveWithdrawal records the caller's approval of a pending request.
// Approval never triggers execution; the requester executes explicitly.
func (e *Engine) ApproveWithdrawal(ctx context.Context, caller domain.Identity, accountID, withdrawalID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	account, err := e.getAccount(ctx, accountID)
	if err != nil {
		return err
	}
	request, err := e.getWithdrawal(ctx, accountID, withdrawalID)
	if err != nil {
		return err
	}

	if err := request.Approve(account, caller); err != nil {
		e.log.Debug("approval rejected", "caller", caller, "account_id", accountID, "withdrawal_id", withdrawalID, "code", errors.GetCode(err))
		return err
	}

	if err := e.stores.Withdrawals.PutWithdrawal(ctx, request); err != nil {
		return internalError("persist withdrawal", err)
	}

	e.appendEvent(ctx, event.TypeWithdrawalApproved, caller, accountID, event.WithdrawalApprovedPayload{
		Approver:     string(caller),
		AccountID:    accountID,
		WithdrawalID: withdrawalID,
		Approvals:    request.ApprovalCount(),
	})

	e.log.Info("withdrawal approved", "account_id", accountID, "withdrawal_id", withdrawalID, "approvals", request.ApprovalCount())
	return nil
}

// GetApprovals returns the number of approvals a request has collected.
func (e *Engine) GetApprovals(ctx context.Context, accountID, withdrawalID uint64) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.getAccount(ctx, accountID); err != nil {
		return 0, err
	}
	request, err := e.getWithdrawal(ctx, accountID, withdrawalID)
	if err != nil {
		return 0, err
	}
	return request.ApprovalCount(), nil
}

// Withdraw executes a fully approved request: the balance drops by the
// requested amount and the request becomes terminal, exactly once. Validity
// is re-derived in full here; approvals collected while the balance was
// higher never allow an overdraft.
func (e *Engine) Withdraw(ctx context.Context, caller domain.Identity, accountID, withdrawalID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	account, err := e.getAccount(ctx, accountID)
	if err != nil {
		return err
	}
	request, err := e.getWithdrawal(ctx, accountID, withdrawalID)
	if err != nil {
		return err
	}

	if err := request.Execute(&account, caller); err != nil {
		e.log.Debug("withdrawal rejected", "caller", caller, "account_id", accountID, "withdrawal_id", withdrawalID, "code", errors.GetCode(err))
		return err
	}

	// TODO: wrap the request and account writes in a single store
	// transaction once the store interfaces grow one. Writing the terminal
	// request first means a partial failure can never double-release funds.
	if err := e.stores.Withdrawals.PutWithdrawal(ctx, request); err != nil {
		return internalError("persist withdrawal", err)
	}
	if err := e.stores.Accounts.PutAccount(ctx, account); err != nil {
		return internalError("persist account", err)
	}

	e.appendEvent(ctx, event.TypeWithdrawalExecuted, caller, accountID, event.WithdrawalExecutedPayload{
		AccountID:    accountID,
		WithdrawalID: withdrawalID,
		Amount:       request.Amount,
	})

	e.log.Info("withdrawal executed", "account_id", accountID, "withdrawal_id", withdrawalID, "amount", request.Amount, "balance", account.Balance)
	return nil
}

// ListEvents returns up to limit committed events with Seq > afterSeq, for
// external observers.
func (e *Engine) ListEvents(ctx context.Context, afterSeq uint64, limit int) ([]event.Event, error) {
	events, err := e.stores.Events.ListEvents(ctx, afterSeq, limit)
	if err != nil {
		return nil, internalError("list events", err)
	}
	return events, nil
}

func (e *Engine) getAccount(ctx context.Context, accountID uint64) (domain.Account, error) {
	account, err := e.stores.Accounts.GetAccount(ctx, accountID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return domain.Account{}, errors.Newf(errors.CodeAccountNotFound, "account %d not found", accountID)
		}
		return domain.Account{}, internalError("load account", err)
	}
	return account, nil
}

func (e *Engine) getWithdrawal(ctx context.Context, accountID, withdrawalID uint64) (domain.WithdrawalRequest, error) {
	request, err := e.stores.Withdrawals.GetWithdrawal(ctx, accountID, withdrawalID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return domain.WithdrawalRequest{}, errors.Newf(errors.CodeRequestNotFound, "withdrawal %d not found on account %d", withdrawalID, accountID)
		}
		return domain.WithdrawalRequest{}, internalError("load withdrawal", err)
	}
	return request, nil
}

// appendEvent records a committed transition in the event log. A failed
// append is logged rather than surfaced; the transition itself has already
// committed and must not be reported as failed to the caller.
func (e *Engine) appendEvent(ctx context.Context, eventType event.Type, actor domain.Identity, accountID uint64, payload any) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		e.log.Error("marshal event payload", "type", eventType, "error", err)
		return
	}
	_, err = e.stores.Events.AppendEvent(ctx, event.Event{
		Timestamp:   e.clock().UTC(),
		Type:        eventType,
		ActorID:     actor,
		AccountID:   accountID,
		PayloadJSON: payloadJSON,
	})
	if err != nil {
		e.log.Error("append event", "type", eventType, "error", err)
	}
}

func internalError(op string, err error) error {
	return errors.Newf(errors.CodeInternal, "%s: %v", op, err)
}
