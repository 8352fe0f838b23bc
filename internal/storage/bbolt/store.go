// Package bbolt provides the BoltDB-backed durable registry.
package bbolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/hbeckert/covault/internal/storage"
	"github.com/hbeckert/covault/internal/vault/domain"
	"github.com/hbeckert/covault/internal/vault/event"
)

const (
	accountBucket     = "account"
	ownerIndexBucket  = "owner_index"
	withdrawalBucket  = "withdrawal"
	counterBucket     = "counter"
	eventBucket       = "event"
	watermarkBucket   = "watermark"
	idempotencyBucket = "idempotency"

	accountCounterKey = "account"
)

// Store provides a BoltDB-backed registry. One Store owns the database file;
// callers close it on shutdown.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// NextAccountID allocates the next process-wide account id.
func (s *Store) NextAccountID(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	var id uint64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(counterBucket))
		if bucket == nil {
			return fmt.Errorf("counter bucket is missing")
		}
		id = readCounter(bucket, []byte(accountCounterKey)) + 1
		return bucket.Put([]byte(accountCounterKey), encodeUint64(id))
	})
	if err != nil {
		return 0, fmt.Errorf("allocate account id: %w", err)
	}
	return id, nil
}

// PutAccount persists an account record and indexes it under every owner.
func (s *Store) PutAccount(ctx context.Context, account domain.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	if account.ID == 0 {
		return fmt.Errorf("account id is required")
	}

	payload, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(accountBucket))
		if bucket == nil {
			return fmt.Errorf("account bucket is missing")
		}
		index := tx.Bucket([]byte(ownerIndexBucket))
		if index == nil {
			return fmt.Errorf("owner index bucket is missing")
		}
		if err := bucket.Put(encodeUint64(account.ID), payload); err != nil {
			return err
		}
		for _, owner := range account.Owners {
			if err := index.Put(ownerIndexKey(owner, account.ID), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetAccount fetches an account record by id.
func (s *Store) GetAccount(ctx context.Context, id uint64) (domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return domain.Account{}, err
	}
	if s == nil || s.db == nil {
		return domain.Account{}, fmt.Errorf("storage is not configured")
	}

	var account domain.Account
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(accountBucket))
		if bucket == nil {
			return fmt.Errorf("account bucket is missing")
		}
		payload := bucket.Get(encodeUint64(id))
		if payload == nil {
			return storage.ErrNotFound
		}
		if err := json.Unmarshal(payload, &account); err != nil {
			return fmt.Errorf("unmarshal account: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Account{}, err
	}
	return account, nil
}

// ListAccountIDs returns the ids owned by the identity in creation order.
// Index keys are owner-prefixed with big-endian ids, so a cursor scan yields
// creation order directly.
func (s *Store) ListAccountIDs(ctx context.Context, owner domain.Identity) ([]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	prefix := ownerIndexPrefix(owner)
	ids := make([]uint64, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		index := tx.Bucket([]byte(ownerIndexBucket))
		if index == nil {
			return fmt.Errorf("owner index bucket is missing")
		}
		cursor := index.Cursor()
		for key, _ := cursor.Seek(prefix); key != nil && strings.HasPrefix(string(key), string(prefix)); key, _ = cursor.Next() {
			// A longer key belongs to another identity that happens to share
			// the prefix bytes; only exact-length remainders are ids.
			if len(key) != len(prefix)+8 {
				continue
			}
			ids = append(ids, decodeUint64(key[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// NextWithdrawalID allocates the next withdrawal id for the account.
func (s *Store) NextWithdrawalID(ctx context.Context, accountID uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	key := withdrawalCounterKey(accountID)
	var id uint64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(counterBucket))
		if bucket == nil {
			return fmt.Errorf("counter bucket is missing")
		}
		id = readCounter(bucket, key) + 1
		return bucket.Put(key, encodeUint64(id))
	})
	if err != nil {
		return 0, fmt.Errorf("allocate withdrawal id: %w", err)
	}
	return id, nil
}

// PutWithdrawal persists a withdrawal request record.
func (s *Store) PutWithdrawal(ctx context.Context, request domain.WithdrawalRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	if request.AccountID == 0 || request.ID == 0 {
		return fmt.Errorf("withdrawal ids are required")
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("marshal withdrawal: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(withdrawalBucket))
		if bucket == nil {
			return fmt.Errorf("withdrawal bucket is missing")
		}
		return bucket.Put(withdrawalKey(request.AccountID, request.ID), payload)
	})
}

// GetWithdrawal fetches a withdrawal request record by account and request id.
func (s *Store) GetWithdrawal(ctx context.Context, accountID, withdrawalID uint64) (domain.WithdrawalRequest, error) {
	if err := ctx.Err(); err != nil {
		return domain.WithdrawalRequest{}, err
	}
	if s == nil || s.db == nil {
		return domain.WithdrawalRequest{}, fmt.Errorf("storage is not configured")
	}

	var request domain.WithdrawalRequest
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(withdrawalBucket))
		if bucket == nil {
			return fmt.Errorf("withdrawal bucket is missing")
		}
		payload := bucket.Get(withdrawalKey(accountID, withdrawalID))
		if payload == nil {
			return storage.ErrNotFound
		}
		if err := json.Unmarshal(payload, &request); err != nil {
			return fmt.Errorf("unmarshal withdrawal: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.WithdrawalRequest{}, err
	}
	return request, nil
}

// ListWithdrawals returns an account's requests in creation order.
func (s *Store) ListWithdrawals(ctx context.Context, accountID uint64) ([]domain.WithdrawalRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	prefix := encodeUint64(accountID)
	requests := make([]domain.WithdrawalRequest, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(withdrawalBucket))
		if bucket == nil {
			return fmt.Errorf("withdrawal bucket is missing")
		}
		cursor := bucket.Cursor()
		for key, payload := cursor.Seek(prefix); key != nil && len(key) == 16 && string(key[:8]) == string(prefix); key, payload = cursor.Next() {
			var request domain.WithdrawalRequest
			if err := json.Unmarshal(payload, &request); err != nil {
				return fmt.Errorf("unmarshal withdrawal: %w", err)
			}
			requests = append(requests, request)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return requests, nil
}

// AppendEvent appends an event to the log, assigning its sequence number.
func (s *Store) AppendEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if s == nil || s.db == nil {
		return event.Event{}, fmt.Errorf("storage is not configured")
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(eventBucket))
		if bucket == nil {
			return fmt.Errorf("event bucket is missing")
		}
		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("allocate event seq: %w", err)
		}
		evt.Seq = seq
		payload, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		return bucket.Put(encodeUint64(seq), payload)
	})
	if err != nil {
		return event.Event{}, err
	}
	return evt, nil
}

// ListEvents returns up to limit events with Seq > afterSeq, in sequence order.
func (s *Store) ListEvents(ctx context.Context, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	events := make([]event.Event, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(eventBucket))
		if bucket == nil {
			return fmt.Errorf("event bucket is missing")
		}
		cursor := bucket.Cursor()
		for key, payload := cursor.Seek(encodeUint64(afterSeq + 1)); key != nil; key, payload = cursor.Next() {
			var evt event.Event
			if err := json.Unmarshal(payload, &evt); err != nil {
				return fmt.Errorf("unmarshal event: %w", err)
			}
			events = append(events, evt)
			if limit > 0 && len(events) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// GetWatermark returns the stored sequence for the consumer.
func (s *Store) GetWatermark(ctx context.Context, consumer string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	var seq uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(watermarkBucket))
		if bucket == nil {
			return fmt.Errorf("watermark bucket is missing")
		}
		seq = readCounter(bucket, []byte(consumer))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// PutWatermark stores the sequence for the consumer.
func (s *Store) PutWatermark(ctx context.Context, consumer string, seq uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(watermarkBucket))
		if bucket == nil {
			return fmt.Errorf("watermark bucket is missing")
		}
		return bucket.Put([]byte(consumer), encodeUint64(seq))
	})
}

// GetResponse returns the cached response for the idempotency key.
func (s *Store) GetResponse(ctx context.Context, key string) (storage.IdempotentResponse, error) {
	if err := ctx.Err(); err != nil {
		return storage.IdempotentResponse{}, err
	}
	if s == nil || s.db == nil {
		return storage.IdempotentResponse{}, fmt.Errorf("storage is not configured")
	}

	var response storage.IdempotentResponse
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(idempotencyBucket))
		if bucket == nil {
			return fmt.Errorf("idempotency bucket is missing")
		}
		payload := bucket.Get([]byte(key))
		if payload == nil {
			return storage.ErrNotFound
		}
		if err := json.Unmarshal(payload, &response); err != nil {
			return fmt.Errorf("unmarshal idempotent response: %w", err)
		}
		return nil
	})
	if err != nil {
		return storage.IdempotentResponse{}, err
	}
	return response, nil
}

// PutResponse caches the response for the idempotency key.
func (s *Store) PutResponse(ctx context.Context, key string, response storage.IdempotentResponse) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}

	payload, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("marshal idempotent response: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(idempotencyBucket))
		if bucket == nil {
			return fmt.Errorf("idempotency bucket is missing")
		}
		return bucket.Put([]byte(key), payload)
	})
}

func (s *Store) ensureBuckets() error {
	buckets := []string{
		accountBucket,
		ownerIndexBucket,
		withdrawalBucket,
		counterBucket,
		eventBucket,
		watermarkBucket,
		idempotencyBucket,
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

func readCounter(bucket *bbolt.Bucket, key []byte) uint64 {
	payload := bucket.Get(key)
	if len(payload) != 8 {
		return 0
	}
	return decodeUint64(payload)
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func decodeUint64(buf []byte) uint64 {
	if len(buf) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(buf)
}

func withdrawalCounterKey(accountID uint64) []byte {
	return append([]byte("withdrawal/"), encodeUint64(accountID)...)
}

func withdrawalKey(accountID, withdrawalID uint64) []byte {
	return append(encodeUint64(accountID), encodeUint64(withdrawalID)...)
}

func ownerIndexPrefix(owner domain.Identity) []byte {
	return append([]byte(owner), 0x00)
}

func ownerIndexKey(owner domain.Identity, accountID uint64) []byte {
	return append(ownerIndexPrefix(owner), encodeUint64(accountID)...)
}
