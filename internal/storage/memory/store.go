// Package memory provides an in-process store implementation. It backs tests
// and development runs; durable deployments use the bbolt store.
package memory

import (
	"context"
	"sync"

	"github.com/hbeckert/covault/internal/storage"
	"github.com/hbeckert/covault/internal/vault/domain"
	"github.com/hbeckert/covault/internal/vault/event"
)

// Store keeps the registry in process memory. It implements every store
// interface in the storage package and is safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	nextAccountID uint64
	accounts      map[uint64]domain.Account
	ownerIndex    map[domain.Identity][]uint64

	nextWithdrawalID map[uint64]uint64
	withdrawals      map[uint64][]domain.WithdrawalRequest

	events     []event.Event
	watermarks map[string]uint64

	idempotency map[string]storage.IdempotentResponse
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		accounts:         make(map[uint64]domain.Account),
		ownerIndex:       make(map[domain.Identity][]uint64),
		nextWithdrawalID: make(map[uint64]uint64),
		withdrawals:      make(map[uint64][]domain.WithdrawalRequest),
		watermarks:       make(map[string]uint64),
		idempotency:      make(map[string]storage.IdempotentResponse),
	}
}

// NextAccountID allocates the next process-wide account id.
func (s *Store) NextAccountID(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAccountID++
	return s.nextAccountID, nil
}

// PutAccount persists an account and indexes it under every owner.
func (s *Store) PutAccount(ctx context.Context, account domain.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.accounts[account.ID]
	s.accounts[account.ID] = cloneAccount(account)
	if !existed {
		for _, owner := range account.Owners {
			s.ownerIndex[owner] = append(s.ownerIndex[owner], account.ID)
		}
	}
	return nil
}

// GetAccount returns the account with the given id.
func (s *Store) GetAccount(ctx context.Context, id uint64) (domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return domain.Account{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[id]
	if !ok {
		return domain.Account{}, storage.ErrNotFound
	}
	return cloneAccount(account), nil
}

// ListAccountIDs returns the ids owned by the identity in creation order.
func (s *Store) ListAccountIDs(ctx context.Context, owner domain.Identity) ([]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.ownerIndex[owner]
	out := make([]uint64, len(ids))
	copy(out, ids)
	return out, nil
}

// NextWithdrawalID allocates the next withdrawal id for the account.
func (s *Store) NextWithdrawalID(ctx context.Context, accountID uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextWithdrawalID[accountID]++
	return s.nextWithdrawalID[accountID], nil
}

// PutWithdrawal persists a withdrawal request record.
func (s *Store) PutWithdrawal(ctx context.Context, request domain.WithdrawalRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	requests := s.withdrawals[request.AccountID]
	for i, existing := range requests {
		if existing.ID == request.ID {
			requests[i] = cloneWithdrawal(request)
			return nil
		}
	}
	s.withdrawals[request.AccountID] = append(requests, cloneWithdrawal(request))
	return nil
}

// GetWithdrawal returns the request with the given ids.
func (s *Store) GetWithdrawal(ctx context.Context, accountID, withdrawalID uint64) (domain.WithdrawalRequest, error) {
	if err := ctx.Err(); err != nil {
		return domain.WithdrawalRequest{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, request := range s.withdrawals[accountID] {
		if request.ID == withdrawalID {
			return cloneWithdrawal(request), nil
		}
	}
	return domain.WithdrawalRequest{}, storage.ErrNotFound
}

// ListWithdrawals returns an account's requests in creation order.
func (s *Store) ListWithdrawals(ctx context.Context, accountID uint64) ([]domain.WithdrawalRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	requests := s.withdrawals[accountID]
	out := make([]domain.WithdrawalRequest, 0, len(requests))
	for _, request := range requests {
		out = append(out, cloneWithdrawal(request))
	}
	return out, nil
}

// AppendEvent appends an event, assigning the next sequence number.
func (s *Store) AppendEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	evt.Seq = uint64(len(s.events)) + 1
	s.events = append(s.events, evt)
	return evt, nil
}

// ListEvents returns up to limit events with Seq > afterSeq.
func (s *Store) ListEvents(ctx context.Context, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]event.Event, 0)
	for _, evt := range s.events {
		if evt.Seq <= afterSeq {
			continue
		}
		out = append(out, evt)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// GetWatermark returns the stored sequence for the consumer.
func (s *Store) GetWatermark(ctx context.Context, consumer string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watermarks[consumer], nil
}

// PutWatermark stores the sequence for the consumer.
func (s *Store) PutWatermark(ctx context.Context, consumer string, seq uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watermarks[consumer] = seq
	return nil
}

// GetResponse returns the cached response for the idempotency key.
func (s *Store) GetResponse(ctx context.Context, key string) (storage.IdempotentResponse, error) {
	if err := ctx.Err(); err != nil {
		return storage.IdempotentResponse{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	response, ok := s.idempotency[key]
	if !ok {
		return storage.IdempotentResponse{}, storage.ErrNotFound
	}
	return response, nil
}

// PutResponse caches the response for the idempotency key.
func (s *Store) PutResponse(ctx context.Context, key string, response storage.IdempotentResponse) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idempotency[key] = response
	return nil
}

func cloneAccount(account domain.Account) domain.Account {
	owners := make([]domain.Identity, len(account.Owners))
	copy(owners, account.Owners)
	account.Owners = owners
	return account
}

func cloneWithdrawal(request domain.WithdrawalRequest) domain.WithdrawalRequest {
	approvers := make([]domain.Identity, len(request.Approvers))
	copy(approvers, request.Approvers)
	request.Approvers = approvers
	return request
}
