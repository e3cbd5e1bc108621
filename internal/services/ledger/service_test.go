package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stakewell/engine/internal/domain/wallet"
	"github.com/stakewell/engine/internal/storage/memory"
)

func TestService_TopUpIdempotent(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)

	entry, applied, err := svc.TopUp(context.Background(), "user-1", 5000, "card top-up", "evt_1")
	if err != nil {
		t.Fatalf("top-up: %v", err)
	}
	if !applied {
		t.Fatalf("first top-up should apply")
	}
	if entry.BalanceAfter != 5000 {
		t.Fatalf("unexpected balance after top-up: %d", entry.BalanceAfter)
	}

	dup, applied, err := svc.TopUp(context.Background(), "user-1", 5000, "card top-up", "evt_1")
	if err != nil {
		t.Fatalf("duplicate top-up: %v", err)
	}
	if applied {
		t.Fatalf("duplicate external ref must not apply twice")
	}
	if dup.ID != entry.ID {
		t.Fatalf("duplicate should return the original entry: %s != %s", dup.ID, entry.ID)
	}

	w, err := store.GetWalletByUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.Balance != 5000 {
		t.Fatalf("balance credited twice: %d", w.Balance)
	}
}

func TestService_RedeemInsufficient(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)

	if _, _, err := svc.TopUp(context.Background(), "user-2", 1000, "seed", "evt_seed"); err != nil {
		t.Fatalf("top-up: %v", err)
	}
	w, err := store.GetWalletByUser(context.Background(), "user-2")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if _, err := svc.AwardPoints(context.Background(), w.ID, 50, "welcome"); err != nil {
		t.Fatalf("award points: %v", err)
	}

	// Costs more points than the wallet holds.
	if _, err := svc.Redeem(context.Background(), "user-2", 500, 200, "hoodie"); !errors.Is(err, wallet.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}

	w, err = store.GetWallet(context.Background(), w.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.Balance != 1000 || w.Points != 50 {
		t.Fatalf("failed redemption must not move funds: balance=%d points=%d", w.Balance, w.Points)
	}

	entry, err := svc.Redeem(context.Background(), "user-2", 200, 30, "sticker pack")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if entry.BalanceAfter != 800 || entry.PointsAfter != 20 {
		t.Fatalf("unexpected post-redeem state: balance=%d points=%d", entry.BalanceAfter, entry.PointsAfter)
	}
}

func TestService_PointsLifetimeSplit(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)

	w, err := svc.EnsureWallet(context.Background(), "user-3")
	if err != nil {
		t.Fatalf("ensure wallet: %v", err)
	}
	if _, err := svc.AwardPoints(context.Background(), w.ID, 100, "bonus"); err != nil {
		t.Fatalf("award: %v", err)
	}
	if _, err := svc.PenalisePoints(context.Background(), w.ID, 40, "missed day"); err != nil {
		t.Fatalf("penalise: %v", err)
	}

	w, err = store.GetWallet(context.Background(), w.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.Points != 60 {
		t.Fatalf("spendable points: got %d want 60", w.Points)
	}
	if w.LifetimePoints != 100 {
		t.Fatalf("lifetime points must not shrink on penalty: got %d", w.LifetimePoints)
	}
}

func TestService_Snapshot(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)

	snap, err := svc.Snapshot(context.Background(), "user-4")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Wallet.Balance != 0 || len(snap.Recent) != 0 {
		t.Fatalf("fresh wallet snapshot should be empty")
	}

	if _, _, err := svc.TopUp(context.Background(), "user-4", 2500, "top-up", "evt_s1"); err != nil {
		t.Fatalf("top-up: %v", err)
	}
	snap, err = svc.Snapshot(context.Background(), "user-4")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Wallet.Balance != 2500 {
		t.Fatalf("snapshot balance: got %d", snap.Wallet.Balance)
	}
	if len(snap.Recent) != 1 || snap.Recent[0].Type != wallet.EntryTopUp {
		t.Fatalf("snapshot should carry the recent ledger entries")
	}
}
