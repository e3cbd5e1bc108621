package staking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stakewell/engine/internal/domain/contract"
	"github.com/stakewell/engine/internal/domain/wallet"
	"github.com/stakewell/engine/internal/services/ledger"
	"github.com/stakewell/engine/internal/storage/memory"
)

func newTestService(t *testing.T) (*Service, *ledger.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	ledgerSvc := ledger.New(store, nil)
	return New(store, store, ledgerSvc, nil), ledgerSvc, store
}

func TestService_CreateContractLocksStake(t *testing.T) {
	svc, ledgerSvc, store := newTestService(t)
	ctx := context.Background()

	if _, _, err := ledgerSvc.TopUp(ctx, "alice", 1000, "seed", "evt_a"); err != nil {
		t.Fatalf("top-up: %v", err)
	}

	c, err := svc.CreateContract(ctx, "alice", "run every day", 7, 500)
	if err != nil {
		t.Fatalf("create contract: %v", err)
	}
	if c.Status != contract.StatusActive {
		t.Fatalf("new contract should be active, got %s", c.Status)
	}

	w, err := store.GetWalletByUser(ctx, "alice")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.Balance != 500 || w.LockedBalance != 500 {
		t.Fatalf("stake not locked: balance=%d locked=%d", w.Balance, w.LockedBalance)
	}
}

func TestService_CreateContractInsufficient(t *testing.T) {
	svc, ledgerSvc, store := newTestService(t)
	ctx := context.Background()

	if _, _, err := ledgerSvc.TopUp(ctx, "bob", 300, "seed", "evt_b"); err != nil {
		t.Fatalf("top-up: %v", err)
	}

	if _, err := svc.CreateContract(ctx, "bob", "write daily", 7, 500); !errors.Is(err, wallet.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}

	w, err := store.GetWalletByUser(ctx, "bob")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.Balance != 300 || w.LockedBalance != 0 {
		t.Fatalf("failed lock must not move funds: balance=%d locked=%d", w.Balance, w.LockedBalance)
	}

	contracts, err := svc.ListContracts(ctx, "bob")
	if err != nil {
		t.Fatalf("list contracts: %v", err)
	}
	for _, c := range contracts {
		if c.Status == contract.StatusActive {
			t.Fatalf("unfunded contract left active: %s", c.ID)
		}
	}
}

func TestService_SettleSuccess(t *testing.T) {
	svc, ledgerSvc, store := newTestService(t)
	ctx := context.Background()

	if _, _, err := ledgerSvc.TopUp(ctx, "carol", 1000, "seed", "evt_c"); err != nil {
		t.Fatalf("top-up: %v", err)
	}
	c, err := svc.CreateContract(ctx, "carol", "meditate", 7, 500)
	if err != nil {
		t.Fatalf("create contract: %v", err)
	}

	settled, unchanged, err := svc.SettleSuccess(ctx, c.ID)
	if err != nil {
		t.Fatalf("settle success: %v", err)
	}
	if unchanged {
		t.Fatalf("first settlement should transition the contract")
	}
	if settled.Status != contract.StatusSuccess {
		t.Fatalf("unexpected status: %s", settled.Status)
	}

	w, err := store.GetWalletByUser(ctx, "carol")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.Balance != 1000 || w.LockedBalance != 0 {
		t.Fatalf("stake not released: balance=%d locked=%d", w.Balance, w.LockedBalance)
	}
	// 7 days * 10 + 500 / 100
	if w.Points != 75 || w.LifetimePoints != 75 {
		t.Fatalf("success bonus: points=%d lifetime=%d", w.Points, w.LifetimePoints)
	}

	// Re-settling a terminal contract is a no-op.
	again, unchanged, err := svc.SettleSuccess(ctx, c.ID)
	if err != nil {
		t.Fatalf("re-settle: %v", err)
	}
	if !unchanged {
		t.Fatalf("second settlement must be a no-op")
	}
	if again.Status != contract.StatusSuccess {
		t.Fatalf("status changed on re-settle: %s", again.Status)
	}
	w, _ = store.GetWalletByUser(ctx, "carol")
	if w.Balance != 1000 || w.Points != 75 {
		t.Fatalf("re-settle moved funds: balance=%d points=%d", w.Balance, w.Points)
	}
}

func TestService_SettleFailureForfeitsToPlatform(t *testing.T) {
	svc, ledgerSvc, store := newTestService(t)
	ctx := context.Background()

	if _, _, err := ledgerSvc.TopUp(ctx, "dave", 800, "seed", "evt_d"); err != nil {
		t.Fatalf("top-up: %v", err)
	}
	c, err := svc.CreateContract(ctx, "dave", "no sugar", 14, 200)
	if err != nil {
		t.Fatalf("create contract: %v", err)
	}

	settled, unchanged, err := svc.SettleFailure(ctx, c.ID)
	if err != nil {
		t.Fatalf("settle failure: %v", err)
	}
	if unchanged || settled.Status != contract.StatusFailed {
		t.Fatalf("unexpected settlement result: unchanged=%t status=%s", unchanged, settled.Status)
	}

	w, err := store.GetWalletByUser(ctx, "dave")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.Balance != 600 || w.LockedBalance != 0 {
		t.Fatalf("forfeit should drain the locked stake only: balance=%d locked=%d", w.Balance, w.LockedBalance)
	}

	pw, err := store.GetPlatformWallet(ctx)
	if err != nil {
		t.Fatalf("platform wallet: %v", err)
	}
	if pw.Balance != 200 || pw.TotalRevenue != 200 {
		t.Fatalf("platform credit missing: balance=%d revenue=%d", pw.Balance, pw.TotalRevenue)
	}
}

func TestService_ReviewSubmission(t *testing.T) {
	svc, ledgerSvc, _ := newTestService(t)
	ctx := context.Background()

	if _, _, err := ledgerSvc.TopUp(ctx, "erin", 1000, "seed", "evt_e"); err != nil {
		t.Fatalf("top-up: %v", err)
	}
	c, err := svc.CreateContract(ctx, "erin", "read daily", 7, 100)
	if err != nil {
		t.Fatalf("create contract: %v", err)
	}

	sub, err := svc.RecordSubmission(ctx, c.ID, "chapter one")
	if err != nil {
		t.Fatalf("record submission: %v", err)
	}
	if sub.Status != contract.SubmissionPending {
		t.Fatalf("new submission should be pending, got %s", sub.Status)
	}

	sub, err = svc.ReviewSubmission(ctx, sub.ID, true)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if sub.Status != contract.SubmissionApproved || sub.ReviewedAt.IsZero() {
		t.Fatalf("approval not recorded: status=%s", sub.Status)
	}

	c, err = svc.GetContract(ctx, c.ID)
	if err != nil {
		t.Fatalf("get contract: %v", err)
	}
	if c.DaysCompleted != 1 {
		t.Fatalf("approved submission should count a day: %d", c.DaysCompleted)
	}

	// A second approval on the same calendar day does not double-count.
	second, err := svc.RecordSubmission(ctx, c.ID, "chapter two")
	if err != nil {
		t.Fatalf("record second submission: %v", err)
	}
	if _, err := svc.ReviewSubmission(ctx, second.ID, true); err != nil {
		t.Fatalf("review second: %v", err)
	}
	c, _ = svc.GetContract(ctx, c.ID)
	if c.DaysCompleted != 1 {
		t.Fatalf("same-day approvals double-counted: %d", c.DaysCompleted)
	}

	// Rejection leaves the day count alone.
	third, err := svc.RecordSubmission(ctx, c.ID, "blurry photo")
	if err != nil {
		t.Fatalf("record third submission: %v", err)
	}
	third, err = svc.ReviewSubmission(ctx, third.ID, false)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if third.Status != contract.SubmissionRejected {
		t.Fatalf("rejection not recorded: %s", third.Status)
	}
}

func TestService_ConcurrentSameDayReviewsCountOneDay(t *testing.T) {
	svc, ledgerSvc, _ := newTestService(t)
	ctx := context.Background()

	if _, _, err := ledgerSvc.TopUp(ctx, "grace", 1000, "seed", "evt_g"); err != nil {
		t.Fatalf("top-up: %v", err)
	}
	c, err := svc.CreateContract(ctx, "grace", "swim daily", 7, 100)
	if err != nil {
		t.Fatalf("create contract: %v", err)
	}

	var subs []contract.Submission
	for i := 0; i < 4; i++ {
		sub, err := svc.RecordSubmission(ctx, c.ID, "lap evidence")
		if err != nil {
			t.Fatalf("record submission: %v", err)
		}
		subs = append(subs, sub)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(subs))
	for _, sub := range subs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.ReviewSubmission(ctx, id, true)
			errs <- err
		}(sub.ID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent review: %v", err)
		}
	}

	c, err = svc.GetContract(ctx, c.ID)
	if err != nil {
		t.Fatalf("get contract: %v", err)
	}
	if c.DaysCompleted != 1 {
		t.Fatalf("same-day approvals must count exactly one day, got %d", c.DaysCompleted)
	}
	reviewed, err := svc.ListSubmissions(ctx, c.ID)
	if err != nil {
		t.Fatalf("list submissions: %v", err)
	}
	for _, sub := range reviewed {
		if sub.Status != contract.SubmissionApproved {
			t.Fatalf("submission %s not approved: %s", sub.ID, sub.Status)
		}
	}
}

func TestService_ConcurrentSettlementMovesFundsOnce(t *testing.T) {
	svc, ledgerSvc, store := newTestService(t)
	ctx := context.Background()

	if _, _, err := ledgerSvc.TopUp(ctx, "heidi", 1000, "seed", "evt_h"); err != nil {
		t.Fatalf("top-up: %v", err)
	}
	c, err := svc.CreateContract(ctx, "heidi", "sleep early", 7, 500)
	if err != nil {
		t.Fatalf("create contract: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		success := i%2 == 0
		go func() {
			defer wg.Done()
			var err error
			if success {
				_, _, err = svc.SettleSuccess(ctx, c.ID)
			} else {
				_, _, err = svc.SettleFailure(ctx, c.ID)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent settle: %v", err)
		}
	}

	settled, err := svc.GetContract(ctx, c.ID)
	if err != nil {
		t.Fatalf("get contract: %v", err)
	}
	if !settled.Terminal() {
		t.Fatalf("contract left non-terminal: %s", settled.Status)
	}

	w, err := store.GetWalletByUser(ctx, "heidi")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	entries, err := store.ListEntries(ctx, w.ID, 0)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	settlements := 0
	for _, e := range entries {
		if e.Type == wallet.EntryStakeRelease || e.Type == wallet.EntryStakeForfeit {
			settlements++
		}
	}
	if settlements != 1 {
		t.Fatalf("expected exactly one settlement entry, got %d", settlements)
	}
	if w.LockedBalance != 0 {
		t.Fatalf("locked stake not cleared: %d", w.LockedBalance)
	}
	switch settled.Status {
	case contract.StatusSuccess:
		if w.Balance != 1000 || w.Points != 75 {
			t.Fatalf("success settlement applied twice or not at all: balance=%d points=%d", w.Balance, w.Points)
		}
	case contract.StatusFailed:
		if w.Balance != 500 || w.Points != 0 {
			t.Fatalf("forfeit settlement inconsistent: balance=%d points=%d", w.Balance, w.Points)
		}
		pw, err := store.GetPlatformWallet(ctx)
		if err != nil {
			t.Fatalf("platform wallet: %v", err)
		}
		if pw.Balance != 500 {
			t.Fatalf("platform credited %d, want 500", pw.Balance)
		}
	}
}

func TestService_EvaluateContract(t *testing.T) {
	svc, ledgerSvc, store := newTestService(t)
	ctx := context.Background()

	if _, _, err := ledgerSvc.TopUp(ctx, "frank", 1000, "seed", "evt_f"); err != nil {
		t.Fatalf("top-up: %v", err)
	}
	c, err := svc.CreateContract(ctx, "frank", "stretch", 1, 100)
	if err != nil {
		t.Fatalf("create contract: %v", err)
	}

	// Not yet due: no submissions, deadline in the future.
	_, changed, err := svc.EvaluateContract(ctx, c.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if changed {
		t.Fatalf("contract settled prematurely")
	}

	sub, err := svc.RecordSubmission(ctx, c.ID, "done")
	if err != nil {
		t.Fatalf("record submission: %v", err)
	}
	if _, err := svc.ReviewSubmission(ctx, sub.ID, true); err != nil {
		t.Fatalf("review: %v", err)
	}

	settled, changed, err := svc.EvaluateContract(ctx, c.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("evaluate after approval: %v", err)
	}
	if !changed || settled.Status != contract.StatusSuccess {
		t.Fatalf("completed contract should settle successfully: changed=%t status=%s", changed, settled.Status)
	}

	// Deadline expiry without enough approvals fails the contract.
	late, err := svc.CreateContract(ctx, "frank", "early rise", 3, 100)
	if err != nil {
		t.Fatalf("create late contract: %v", err)
	}
	late.Deadline = time.Now().UTC().Add(-time.Hour)
	if _, err := store.UpdateContract(ctx, late); err != nil {
		t.Fatalf("backdate deadline: %v", err)
	}

	settled, changed, err = svc.EvaluateContract(ctx, late.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("evaluate expired: %v", err)
	}
	if !changed || settled.Status != contract.StatusFailed {
		t.Fatalf("expired contract should fail: changed=%t status=%s", changed, settled.Status)
	}
}

func TestSuccessBonus(t *testing.T) {
	if got := successBonus(7, 500); got != 75 {
		t.Fatalf("successBonus(7, 500) = %d, want 75", got)
	}
	if got := successBonus(30, 10000); got != 400 {
		t.Fatalf("successBonus(30, 10000) = %d, want 400", got)
	}
	// Monotonic in duration.
	if successBonus(8, 500) <= successBonus(7, 500) {
		t.Fatalf("bonus should grow with duration")
	}
}
