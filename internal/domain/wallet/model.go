// Package wallet holds the wallet and ledger entry models. Monetary amounts
// are int64 cents; points are plain int64 counters.
package wallet

import (
	"errors"
	"time"
)

// Entry types recognised by the ledger. Money-moving types affect Balance or
// LockedBalance, points types affect Points/LifetimePoints.
const (
	EntryTopUp         = "topup"
	EntryStakeLock     = "stake_lock"
	EntryStakeRelease  = "stake_release"
	EntryStakeForfeit  = "stake_forfeit"
	EntryRewardRedeem  = "reward_redeem"
	EntryPointsAward   = "points_award"
	EntryPointsPenalty = "points_penalty"
)

var (
	// ErrInsufficientBalance is returned when a debiting entry exceeds the
	// available funds. No write happens in that case.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNotFound is returned when a wallet or ledger entry does not exist.
	ErrNotFound = errors.New("wallet not found")
)

// Wallet is a user's financial and points account. One per user, created
// lazily on first use, never deleted.
type Wallet struct {
	ID             string
	UserID         string
	Balance        int64 // spendable cents
	LockedBalance  int64 // cents reserved against active contracts
	Points         int64 // spendable points
	LifetimePoints int64 // monotonic lifetime counter, drives rank
	Streak         int   // consecutive activity days
	LastActiveAt   time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Entry is one immutable ledger record. Once written it is never mutated or
// deleted; the wallet's balances must always equal the sum of its entries.
type Entry struct {
	ID          string
	WalletID    string
	Type        string
	Amount      int64 // positive magnitude; direction is implied by Type
	Points      int64 // points delta carried by points entries
	Description string
	ExternalRef string // idempotency key for externally originated entries
	// Balances after this entry was applied, for audit reads without replay.
	BalanceAfter int64
	LockedAfter  int64
	PointsAfter  int64
	CreatedAt    time.Time
}

// Snapshot is the read-side projection of a wallet.
type Snapshot struct {
	Wallet Wallet
	Recent []Entry
}

// PlatformWallet mirrors Wallet at platform scope. It is credited when a
// contract is forfeited.
type PlatformWallet struct {
	ID           string
	Balance      int64
	TotalRevenue int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
