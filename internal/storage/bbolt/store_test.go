package bbolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hbeckert/covault/internal/storage"
	"github.com/hbeckert/covault/internal/vault/domain"
	"github.com/hbeckert/covault/internal/vault/event"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "covault.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func testClock() time.Time {
	return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for blank path")
	}
}

func TestNextAccountIDSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "covault.db")
	ctx := context.Background()

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	for want := uint64(1); want <= 3; want++ {
		id, err := store.NextAccountID(ctx)
		if err != nil {
			t.Fatalf("next account id: %v", err)
		}
		if id != want {
			t.Fatalf("expected id %d, got %d", want, id)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()
	id, err := reopened.NextAccountID(ctx)
	if err != nil {
		t.Fatalf("next account id after reopen: %v", err)
	}
	if id != 4 {
		t.Fatalf("expected counter to survive reopen with id 4, got %d", id)
	}
}

func TestAccountRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.GetAccount(ctx, 1); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	account, err := domain.NewAccount(1, "addr0", []domain.Identity{"addr1", "addr2"}, testClock)
	if err != nil {
		t.Fatalf("new account: %v", err)
	}
	if err := account.Credit(250); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := store.PutAccount(ctx, account); err != nil {
		t.Fatalf("put account: %v", err)
	}

	got, err := store.GetAccount(ctx, 1)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if got.Balance != 250 {
		t.Fatalf("expected balance 250, got %d", got.Balance)
	}
	if len(got.Owners) != 3 || got.Owners[0] != "addr0" || got.Owners[2] != "addr2" {
		t.Fatalf("expected owners preserved in order, got %v", got.Owners)
	}
	if !got.CreatedAt.Equal(testClock()) {
		t.Fatalf("expected created_at %v, got %v", testClock(), got.CreatedAt)
	}
}

func TestListAccountIDsByOwner(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	put := func(id uint64, caller domain.Identity, others ...domain.Identity) {
		t.Helper()
		account, err := domain.NewAccount(id, caller, others, testClock)
		if err != nil {
			t.Fatalf("new account %d: %v", id, err)
		}
		if err := store.PutAccount(ctx, account); err != nil {
			t.Fatalf("put account %d: %v", id, err)
		}
	}

	put(1, "addr0", "addr1")
	put(2, "addr1")
	put(3, "addr0")

	ids, err := store.ListAccountIDs(ctx, "addr0")
	if err != nil {
		t.Fatalf("list account ids: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Fatalf("expected [1 3] for addr0, got %v", ids)
	}

	ids, err = store.ListAccountIDs(ctx, "addr1")
	if err != nil {
		t.Fatalf("list account ids: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("expected [1 2] for addr1, got %v", ids)
	}

	ids, err = store.ListAccountIDs(ctx, "stranger")
	if err != nil {
		t.Fatalf("list account ids: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no accounts for stranger, got %v", ids)
	}
}

func TestListAccountIDsIsolatesPrefixSharingOwners(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// The owner index separates identity and id with a NUL byte. Identities
	// containing NUL are rejected upstream, but the index scan must still
	// never attribute another identity's keys to a prefix-sharing owner.
	plain := domain.Account{ID: 1, Owners: []domain.Identity{"addr0"}, CreatedAt: testClock()}
	crafted := domain.Account{ID: 2, Owners: []domain.Identity{"addr0\x00x"}, CreatedAt: testClock()}
	for _, account := range []domain.Account{plain, crafted} {
		if err := store.PutAccount(ctx, account); err != nil {
			t.Fatalf("put account %d: %v", account.ID, err)
		}
	}

	ids, err := store.ListAccountIDs(ctx, "addr0")
	if err != nil {
		t.Fatalf("list account ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("expected only [1] for addr0, got %v", ids)
	}

	ids, err = store.ListAccountIDs(ctx, "addr0\x00x")
	if err != nil {
		t.Fatalf("list account ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != 2 {
		t.Fatalf("expected only [2] for the crafted owner, got %v", ids)
	}
}

func TestWithdrawalCountersScopedPerAccount(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.NextWithdrawalID(ctx, 1)
	if err != nil {
		t.Fatalf("next withdrawal id: %v", err)
	}
	second, err := store.NextWithdrawalID(ctx, 1)
	if err != nil {
		t.Fatalf("next withdrawal id: %v", err)
	}
	other, err := store.NextWithdrawalID(ctx, 2)
	if err != nil {
		t.Fatalf("next withdrawal id: %v", err)
	}
	if first != 1 || second != 2 || other != 1 {
		t.Fatalf("expected per-account counters, got %d %d %d", first, second, other)
	}
}

func TestWithdrawalRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.GetWithdrawal(ctx, 1, 1); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	request := domain.WithdrawalRequest{
		ID:        1,
		AccountID: 1,
		Requester: "addr0",
		Amount:    100,
		Approvers: []domain.Identity{"addr1"},
		State:     domain.WithdrawalStatePending,
		CreatedAt: testClock(),
	}
	if err := store.PutWithdrawal(ctx, request); err != nil {
		t.Fatalf("put withdrawal: %v", err)
	}

	got, err := store.GetWithdrawal(ctx, 1, 1)
	if err != nil {
		t.Fatalf("get withdrawal: %v", err)
	}
	if got.Requester != "addr0" || got.Amount != 100 || got.State != domain.WithdrawalStatePending {
		t.Fatalf("unexpected withdrawal %+v", got)
	}
	if got.ApprovalCount() != 1 || got.Approvers[0] != "addr1" {
		t.Fatalf("expected approvers preserved, got %v", got.Approvers)
	}
}

func TestListWithdrawalsCreationOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for id := uint64(1); id <= 3; id++ {
		request := domain.WithdrawalRequest{
			ID:        id,
			AccountID: 7,
			Requester: "addr0",
			Amount:    int64(id) * 10,
			State:     domain.WithdrawalStatePending,
			CreatedAt: testClock(),
		}
		if err := store.PutWithdrawal(ctx, request); err != nil {
			t.Fatalf("put withdrawal %d: %v", id, err)
		}
	}
	// A neighboring account's requests must not bleed into the listing.
	if err := store.PutWithdrawal(ctx, domain.WithdrawalRequest{ID: 1, AccountID: 8, Requester: "addr0", Amount: 5, State: domain.WithdrawalStatePending}); err != nil {
		t.Fatalf("put withdrawal: %v", err)
	}

	requests, err := store.ListWithdrawals(ctx, 7)
	if err != nil {
		t.Fatalf("list withdrawals: %v", err)
	}
	if len(requests) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(requests))
	}
	for i, request := range requests {
		if request.ID != uint64(i)+1 {
			t.Fatalf("expected creation order, got %+v", requests)
		}
	}
}

func TestEventAppendAssignsSequence(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for want := uint64(1); want <= 3; want++ {
		evt, err := store.AppendEvent(ctx, event.Event{
			Timestamp: testClock(),
			Type:      event.TypeDeposit,
			ActorID:   "addr0",
			AccountID: 1,
		})
		if err != nil {
			t.Fatalf("append event: %v", err)
		}
		if evt.Seq != want {
			t.Fatalf("expected seq %d, got %d", want, evt.Seq)
		}
	}

	events, err := store.ListEvents(ctx, 1, 0)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 || events[0].Seq != 2 || events[1].Seq != 3 {
		t.Fatalf("expected events after seq 1, got %+v", events)
	}

	limited, err := store.ListEvents(ctx, 0, 2)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(limited) != 2 || limited[0].Seq != 1 {
		t.Fatalf("expected first two events, got %+v", limited)
	}
}

func TestWatermarkRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	seq, err := store.GetWatermark(ctx, "webhook")
	if err != nil {
		t.Fatalf("get watermark: %v", err)
	}
	if seq != 0 {
		t.Fatalf("expected zero watermark, got %d", seq)
	}
	if err := store.PutWatermark(ctx, "webhook", 17); err != nil {
		t.Fatalf("put watermark: %v", err)
	}
	seq, err = store.GetWatermark(ctx, "webhook")
	if err != nil {
		t.Fatalf("get watermark: %v", err)
	}
	if seq != 17 {
		t.Fatalf("expected watermark 17, got %d", seq)
	}
}

func TestIdempotencyRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.GetResponse(ctx, "key-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	want := storage.IdempotentResponse{Status: 201, Body: []byte(`{"withdrawal_id":2}`)}
	if err := store.PutResponse(ctx, "key-1", want); err != nil {
		t.Fatalf("put response: %v", err)
	}
	got, err := store.GetResponse(ctx, "key-1")
	if err != nil {
		t.Fatalf("get response: %v", err)
	}
	if got.Status != want.Status || string(got.Body) != string(want.Body) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}
