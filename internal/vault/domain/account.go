package domain

import (
	"time"

	"github.com/hbeckert/covault/internal/errors"
)

// MaxOwners is the largest owner set an account may have.
const MaxOwners = 4

// Account represents a jointly owned vault account.
type Account struct {
	// ID is unique and monotonically assigned, never reused.
	ID uint64
	// Owners holds 1-4 distinct identities in creation order, immutable
	// after creation.
	Owners []Identity
	// Balance is the account balance in minor units, never negative.
	Balance int64
	// CreatedAt is when the account was created.
	CreatedAt time.Time
}

// NewAccount builds an account owned by the caller plus otherOwners.
// The owner set must contain 1-4 distinct identities including the caller.
func NewAccount(id uint64, caller Identity, otherOwners []Identity, now func() time.Time) (Account, error) {
	if now == nil {
		now = time.Now
	}

	caller = normalizeIdentity(caller)
	if !caller.IsValid() {
		return Account{}, errors.New(errors.CodeInvalidOwners, "caller identity is missing or malformed")
	}

	owners := make([]Identity, 0, len(otherOwners)+1)
	owners = append(owners, caller)
	seen := map[Identity]struct{}{caller: {}}
	for _, owner := range otherOwners {
		owner = normalizeIdentity(owner)
		if !owner.IsValid() {
			return Account{}, errors.New(errors.CodeInvalidOwners, "owner identity is missing or malformed")
		}
		if _, ok := seen[owner]; ok {
			return Account{}, errors.Newf(errors.CodeInvalidOwners, "duplicate owner %q", owner)
		}
		seen[owner] = struct{}{}
		owners = append(owners, owner)
	}
	if len(owners) > MaxOwners {
		return Account{}, errors.Newf(errors.CodeInvalidOwners, "owner set exceeds %d identities", MaxOwners)
	}

	return Account{
		ID:        id,
		Owners:    owners,
		Balance:   0,
		CreatedAt: now().UTC(),
	}, nil
}

// IsOwner reports whether the identity belongs to the account's owner set.
func (a Account) IsOwner(id Identity) bool {
	id = normalizeIdentity(id)
	for _, owner := range a.Owners {
		if owner == id {
			return true
		}
	}
	return false
}

// Credit increases the balance by the deposited amount.
func (a *Account) Credit(amount int64) error {
	if amount <= 0 {
		return errors.New(errors.CodeInvalidAmount, "deposit amount must be positive")
	}
	a.Balance += amount
	return nil
}

// Debit decreases the balance by the withdrawn amount. The balance is checked
// at the moment of the debit, not at request time, so executed withdrawals
// can never drive it negative.
func (a *Account) Debit(amount int64) error {
	if amount <= 0 {
		return errors.New(errors.CodeInvalidAmount, "withdrawal amount must be positive")
	}
	if amount > a.Balance {
		return errors.Newf(errors.CodeInsufficientFunds, "balance %d is below requested amount %d", a.Balance, amount)
	}
	a.Balance -= amount
	return nil
}
