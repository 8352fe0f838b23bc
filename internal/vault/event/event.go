package event

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/hbeckert/covault/internal/vault/domain"
)

// Type identifies the type of a vault event.
type Type string

// Account lifecycle events.
const (
	// TypeAccountCreated records the creation of an account.
	TypeAccountCreated Type = "account.created"
	// TypeDeposit records a deposit into an account.
	TypeDeposit Type = "account.deposited"
)

// Withdrawal lifecycle events.
const (
	// TypeWithdrawalRequested records the creation of a withdrawal request.
	TypeWithdrawalRequested Type = "withdrawal.requested"
	// TypeWithdrawalApproved records an owner approval of a withdrawal.
	TypeWithdrawalApproved Type = "withdrawal.approved"
	// TypeWithdrawalExecuted records the execution of a withdrawal.
	TypeWithdrawalExecuted Type = "withdrawal.executed"
)

// Event represents an immutable record in the append-only vault log.
// Events are appended exactly once, at the point of the corresponding
// committed state transition, in the order transitions occur.
type Event struct {
	// Seq is the process-wide sequence number (starts at 1).
	// Assigned by storage on append.
	Seq uint64 `json:"seq"`
	// Timestamp is when the transition committed.
	Timestamp time.Time `json:"timestamp"`
	// Type identifies the kind of event.
	Type Type `json:"type"`
	// ActorID is the identity that triggered the transition.
	ActorID domain.Identity `json:"actor_id"`
	// AccountID is the account affected.
	AccountID uint64 `json:"account_id"`
	// PayloadJSON holds event-specific data as JSON.
	PayloadJSON json.RawMessage `json:"payload"`
}

// IsValid reports whether the event type is usable.
func (t Type) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}

// Domain returns the domain prefix of the event type (e.g., "account").
func (t Type) Domain() string {
	for i, c := range t {
		if c == '.' {
			return string(t[:i])
		}
	}
	return string(t)
}
