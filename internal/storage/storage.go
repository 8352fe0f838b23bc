package storage

import (
	"context"
	"errors"

	"github.com/hbeckert/covault/internal/vault/domain"
	"github.com/hbeckert/covault/internal/vault/event"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// AccountStore persists account records and the per-owner index.
type AccountStore interface {
	// NextAccountID allocates the next process-wide account id, starting
	// at 1 and strictly increasing. Ids are never reused.
	NextAccountID(ctx context.Context) (uint64, error)
	// PutAccount persists an account record and indexes it under every
	// owner identity.
	PutAccount(ctx context.Context, account domain.Account) error
	// GetAccount returns the account with the given id, or ErrNotFound.
	GetAccount(ctx context.Context, id uint64) (domain.Account, error)
	// ListAccountIDs returns the ids of accounts owned by the identity, in
	// creation order. It returns an empty slice when the identity owns none.
	ListAccountIDs(ctx context.Context, owner domain.Identity) ([]uint64, error)
}

// WithdrawalStore persists withdrawal request records.
type WithdrawalStore interface {
	// NextWithdrawalID allocates the next withdrawal id scoped to the
	// account, starting at 1 and strictly increasing per account.
	NextWithdrawalID(ctx context.Context, accountID uint64) (uint64, error)
	// PutWithdrawal persists a withdrawal request record.
	PutWithdrawal(ctx context.Context, request domain.WithdrawalRequest) error
	// GetWithdrawal returns the request with the given ids, or ErrNotFound.
	GetWithdrawal(ctx context.Context, accountID, withdrawalID uint64) (domain.WithdrawalRequest, error)
	// ListWithdrawals returns an account's requests in creation order.
	ListWithdrawals(ctx context.Context, accountID uint64) ([]domain.WithdrawalRequest, error)
}

// EventStore persists the append-only event log.
type EventStore interface {
	// AppendEvent appends an event, assigning its sequence number, and
	// returns the stored event.
	AppendEvent(ctx context.Context, evt event.Event) (event.Event, error)
	// ListEvents returns up to limit events with Seq > afterSeq, in
	// sequence order. A limit <= 0 means no limit.
	ListEvents(ctx context.Context, afterSeq uint64, limit int) ([]event.Event, error)
}

// WatermarkStore persists named consumer positions in the event log.
type WatermarkStore interface {
	// GetWatermark returns the stored sequence for the consumer, or zero
	// when the consumer has no watermark yet.
	GetWatermark(ctx context.Context, consumer string) (uint64, error)
	// PutWatermark stores the sequence for the consumer.
	PutWatermark(ctx context.Context, consumer string, seq uint64) error
}

// IdempotentResponse is a cached transport response keyed by idempotency key.
type IdempotentResponse struct {
	Status int
	Body   []byte
}

// IdempotencyStore caches transport responses for idempotent replay.
type IdempotencyStore interface {
	// GetResponse returns the cached response for the key, or ErrNotFound.
	GetResponse(ctx context.Context, key string) (IdempotentResponse, error)
	// PutResponse caches the response for the key.
	PutResponse(ctx context.Context, key string, response IdempotentResponse) error
}

// Stores bundles the stores the engine depends on.
type Stores struct {
	Accounts    AccountStore
	Withdrawals WithdrawalStore
	Events      EventStore
}
