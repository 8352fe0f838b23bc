package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hbeckert/covault/internal/storage"
	"github.com/hbeckert/covault/internal/vault/domain"
	"github.com/hbeckert/covault/internal/vault/event"
)

func testClock() time.Time {
	return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
}

func TestNextAccountIDMonotonic(t *testing.T) {
	store := New()
	ctx := context.Background()

	var last uint64
	for i := 0; i < 5; i++ {
		id, err := store.NextAccountID(ctx)
		if err != nil {
			t.Fatalf("next account id: %v", err)
		}
		if id <= last {
			t.Fatalf("expected strictly increasing ids, got %d after %d", id, last)
		}
		last = id
	}
	if last != 5 {
		t.Fatalf("expected ids to end at 5, got %d", last)
	}
}

func TestAccountRoundTrip(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.GetAccount(ctx, 1); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	account, err := domain.NewAccount(1, "addr0", []domain.Identity{"addr1"}, testClock)
	if err != nil {
		t.Fatalf("new account: %v", err)
	}
	if err := store.PutAccount(ctx, account); err != nil {
		t.Fatalf("put account: %v", err)
	}

	got, err := store.GetAccount(ctx, 1)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if got.ID != 1 || len(got.Owners) != 2 {
		t.Fatalf("unexpected account %+v", got)
	}

	// Mutating the returned copy must not leak into the store.
	got.Balance = 999
	got.Owners[0] = "mallory"
	reread, err := store.GetAccount(ctx, 1)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if reread.Balance != 0 || reread.Owners[0] != "addr0" {
		t.Fatalf("expected stored account isolated from caller copies, got %+v", reread)
	}
}

func TestOwnerIndexCreationOrder(t *testing.T) {
	store := New()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		account, err := domain.NewAccount(uint64(i), "addr0", nil, testClock)
		if err != nil {
			t.Fatalf("new account: %v", err)
		}
		if err := store.PutAccount(ctx, account); err != nil {
			t.Fatalf("put account: %v", err)
		}
	}

	ids, err := store.ListAccountIDs(ctx, "addr0")
	if err != nil {
		t.Fatalf("list account ids: %v", err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Fatalf("expected [1 2 3], got %v", ids)
	}

	// Re-putting an account must not duplicate index entries.
	account, err := store.GetAccount(ctx, 2)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if err := store.PutAccount(ctx, account); err != nil {
		t.Fatalf("re-put account: %v", err)
	}
	ids, err = store.ListAccountIDs(ctx, "addr0")
	if err != nil {
		t.Fatalf("list account ids: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected index unchanged, got %v", ids)
	}

	empty, err := store.ListAccountIDs(ctx, "stranger")
	if err != nil {
		t.Fatalf("list account ids: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty slice for unknown owner, got %v", empty)
	}
}

func TestWithdrawalIDsScopedPerAccount(t *testing.T) {
	store := New()
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
	if first != 1 || second != 2 {
		t.Fatalf("expected 1 then 2 for account 1, got %d then %d", first, second)
	}
	if other != 1 {
		t.Fatalf("expected independent counter per account, got %d", other)
	}
}

func TestWithdrawalRoundTrip(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.GetWithdrawal(ctx, 1, 1); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	request := domain.WithdrawalRequest{
		ID:        1,
		AccountID: 1,
		Requester: "addr0",
		Amount:    100,
		State:     domain.WithdrawalStatePending,
		CreatedAt: testClock(),
	}
	if err := store.PutWithdrawal(ctx, request); err != nil {
		t.Fatalf("put withdrawal: %v", err)
	}

	request.Approvers = append(request.Approvers, "addr1")
	if err := store.PutWithdrawal(ctx, request); err != nil {
		t.Fatalf("update withdrawal: %v", err)
	}

	got, err := store.GetWithdrawal(ctx, 1, 1)
	if err != nil {
		t.Fatalf("get withdrawal: %v", err)
	}
	if got.ApprovalCount() != 1 || got.Approvers[0] != "addr1" {
		t.Fatalf("expected updated approvers, got %+v", got)
	}

	requests, err := store.ListWithdrawals(ctx, 1)
	if err != nil {
		t.Fatalf("list withdrawals: %v", err)
	}
	if len(requests) != 1 {
		t.Fatalf("expected single request after update, got %d", len(requests))
	}
}

func TestEventAppendAndList(t *testing.T) {
	store := New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		evt, err := store.AppendEvent(ctx, event.Event{
			Timestamp: testClock(),
			Type:      event.TypeDeposit,
			AccountID: 1,
		})
		if err != nil {
			t.Fatalf("append event: %v", err)
		}
		if evt.Seq != uint64(i)+1 {
			t.Fatalf("expected seq %d, got %d", i+1, evt.Seq)
		}
	}

	events, err := store.ListEvents(ctx, 1, 0)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 || events[0].Seq != 2 || events[1].Seq != 3 {
		t.Fatalf("expected events 2 and 3, got %+v", events)
	}

	limited, err := store.ListEvents(ctx, 0, 1)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(limited) != 1 || limited[0].Seq != 1 {
		t.Fatalf("expected single event with seq 1, got %+v", limited)
	}
}

func TestWatermark(t *testing.T) {
	store := New()
	ctx := context.Background()

	seq, err := store.GetWatermark(ctx, "webhook")
	if err != nil {
		t.Fatalf("get watermark: %v", err)
	}
	if seq != 0 {
		t.Fatalf("expected zero watermark, got %d", seq)
	}
	if err := store.PutWatermark(ctx, "webhook", 42); err != nil {
		t.Fatalf("put watermark: %v", err)
	}
	seq, err = store.GetWatermark(ctx, "webhook")
	if err != nil {
		t.Fatalf("get watermark: %v", err)
	}
	if seq != 42 {
		t.Fatalf("expected watermark 42, got %d", seq)
	}
}

func TestIdempotencyResponses(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.GetResponse(ctx, "key-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	want := storage.IdempotentResponse{Status: 201, Body: []byte(`{"account_id":1}`)}
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
