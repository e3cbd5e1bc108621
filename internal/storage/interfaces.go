package storage

import (
	"context"
	"time"

	"github.com/stakewell/engine/internal/domain/contract"
	"github.com/stakewell/engine/internal/domain/gamify"
	"github.com/stakewell/engine/internal/domain/wallet"
)

// Mutation is one balance-affecting write: the ledger entry to record plus
// the deltas it applies to the owning wallet. A store must apply the deltas,
// enforce non-negativity, and insert the entry as a single atomic unit.
type Mutation struct {
	Entry         wallet.Entry
	DeltaBalance  int64
	DeltaLocked   int64
	DeltaPoints   int64
	DeltaLifetime int64
}

// Settlement is the atomic terminal transition of a contract together with
// its ledger effects. The transition only applies while the contract status
// still equals FromStatus; otherwise the store returns
// contract.ErrAlreadySettled and performs no write.
type Settlement struct {
	ContractID     string
	FromStatus     string
	ToStatus       string
	Mutation       Mutation
	PlatformCredit int64 // cents credited to the platform wallet on forfeiture
}

// WalletStore persists wallets and their append-only ledger.
type WalletStore interface {
	// EnsureWallet returns the user's wallet, creating a zeroed one if none
	// exists. Safe to call concurrently for the same user.
	EnsureWallet(ctx context.Context, userID string) (wallet.Wallet, error)
	GetWallet(ctx context.Context, id string) (wallet.Wallet, error)
	GetWalletByUser(ctx context.Context, userID string) (wallet.Wallet, error)

	// Apply appends a ledger entry and mutates the wallet atomically. When
	// the entry carries an ExternalRef already recorded for the wallet, the
	// existing entry is returned with created=false and nothing is written.
	Apply(ctx context.Context, m Mutation) (wallet.Entry, bool, error)

	// UpdateActivity records streak progress. It does not touch balances.
	UpdateActivity(ctx context.Context, walletID string, streak int, lastActiveAt time.Time) (wallet.Wallet, error)

	ListEntries(ctx context.Context, walletID string, limit int) ([]wallet.Entry, error)
}

// ContractStore persists contracts and submissions.
type ContractStore interface {
	CreateContract(ctx context.Context, c contract.Contract) (contract.Contract, error)
	GetContract(ctx context.Context, id string) (contract.Contract, error)
	UpdateContract(ctx context.Context, c contract.Contract) (contract.Contract, error)
	ListContracts(ctx context.Context, userID string) ([]contract.Contract, error)
	ListActiveContracts(ctx context.Context) ([]contract.Contract, error)

	CreateSubmission(ctx context.Context, sub contract.Submission) (contract.Submission, error)
	UpdateSubmission(ctx context.Context, sub contract.Submission) (contract.Submission, error)
	GetSubmission(ctx context.Context, id string) (contract.Submission, error)
	ListSubmissions(ctx context.Context, contractID string) ([]contract.Submission, error)

	// ApproveSubmission marks a pending submission approved and, when no other
	// approved submission shares its UTC calendar day, bumps the contract's
	// completed-day count. Status change and day count are one atomic unit, so
	// concurrent reviews on the same contract count each day exactly once.
	// Approving a non-pending submission is a no-op returning dayCounted=false.
	ApproveSubmission(ctx context.Context, submissionID string, reviewedAt time.Time) (contract.Submission, bool, error)

	// Settle applies the terminal transition and its ledger effects as one
	// atomic unit (contract status, wallet mutation, platform credit).
	Settle(ctx context.Context, s Settlement) (contract.Contract, wallet.Entry, error)
}

// PlatformStore persists the platform-scope wallet and its ledger mirror.
type PlatformStore interface {
	EnsurePlatformWallet(ctx context.Context) (wallet.PlatformWallet, error)
	GetPlatformWallet(ctx context.Context) (wallet.PlatformWallet, error)
	ListPlatformEntries(ctx context.Context, limit int) ([]wallet.Entry, error)
}

// BadgeStore records permanently earned badges and serves the cumulative
// stats badge predicates evaluate against.
type BadgeStore interface {
	// GrantBadge records a badge once. Granting an already-earned badge is a
	// no-op returning created=false.
	GrantBadge(ctx context.Context, grant gamify.BadgeGrant) (bool, error)
	ListBadges(ctx context.Context, walletID string) ([]gamify.BadgeGrant, error)
	UserStats(ctx context.Context, userID string) (gamify.Stats, error)
}
