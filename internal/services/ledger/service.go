// Package ledger is the wallet ledger core: the append path every balance
// mutation goes through, and the read-side balance accessor.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stakewell/engine/internal/app/metrics"
	"github.com/stakewell/engine/internal/domain/wallet"
	"github.com/stakewell/engine/internal/storage"
	"github.com/stakewell/engine/pkg/logger"
)

// Service exposes append and snapshot operations over a wallet store.
type Service struct {
	wallets storage.WalletStore
	log     *logger.Logger
}

// New constructs a ledger service.
func New(wallets storage.WalletStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("ledger")
	}
	return &Service{wallets: wallets, log: log}
}

// MutationFor translates an entry type into the wallet deltas it implies.
// This is the single place entry-type semantics live; both the ledger service
// and the staking engine build mutations through it.
func MutationFor(walletID, entryType string, amount, points int64, description, externalRef string) (storage.Mutation, error) {
	if amount < 0 || points < 0 {
		return storage.Mutation{}, fmt.Errorf("amount and points must be non-negative")
	}

	m := storage.Mutation{Entry: wallet.Entry{
		WalletID:    walletID,
		Type:        entryType,
		Amount:      amount,
		Points:      points,
		Description: description,
		ExternalRef: externalRef,
	}}

	switch entryType {
	case wallet.EntryTopUp:
		m.DeltaBalance = amount
	case wallet.EntryStakeLock:
		m.DeltaBalance = -amount
		m.DeltaLocked = amount
	case wallet.EntryStakeRelease:
		m.DeltaBalance = amount
		m.DeltaLocked = -amount
		m.DeltaPoints = points
		m.DeltaLifetime = points
	case wallet.EntryStakeForfeit:
		m.DeltaLocked = -amount
	case wallet.EntryRewardRedeem:
		m.DeltaPoints = -points
		m.DeltaBalance = -amount
	case wallet.EntryPointsAward:
		m.DeltaPoints = points
		m.DeltaLifetime = points
	case wallet.EntryPointsPenalty:
		m.DeltaPoints = -points
	default:
		return storage.Mutation{}, fmt.Errorf("unknown entry type %q", entryType)
	}
	return m, nil
}

// Apply funnels a mutation through the store with metrics attached. Every
// append in the system goes through here or through a settlement.
func (s *Service) Apply(ctx context.Context, m storage.Mutation) (wallet.Entry, bool, error) {
	entry, applied, err := s.wallets.Apply(ctx, m)
	if err != nil {
		if errors.Is(err, wallet.ErrInsufficientBalance) {
			metrics.RecordInsufficientBalance()
		}
		return wallet.Entry{}, false, err
	}
	if applied {
		metrics.RecordLedgerEntry(m.Entry.Type)
	}
	return entry, applied, nil
}

// EnsureWallet lazily materialises the user's wallet.
func (s *Service) EnsureWallet(ctx context.Context, userID string) (wallet.Wallet, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return wallet.Wallet{}, fmt.Errorf("user_id is required")
	}
	return s.wallets.EnsureWallet(ctx, userID)
}

// TopUp credits the wallet. When externalRef identifies an already-applied
// event the existing entry is returned and applied=false.
func (s *Service) TopUp(ctx context.Context, userID string, amount int64, description, externalRef string) (wallet.Entry, bool, error) {
	if amount <= 0 {
		return wallet.Entry{}, false, fmt.Errorf("amount must be positive")
	}
	w, err := s.EnsureWallet(ctx, userID)
	if err != nil {
		return wallet.Entry{}, false, err
	}

	m, err := MutationFor(w.ID, wallet.EntryTopUp, amount, 0, description, externalRef)
	if err != nil {
		return wallet.Entry{}, false, err
	}
	entry, applied, err := s.Apply(ctx, m)
	if err != nil {
		return wallet.Entry{}, false, err
	}
	if !applied {
		s.log.WithField("wallet_id", w.ID).
			WithField("external_ref", externalRef).
			Info("duplicate top-up suppressed")
		return entry, false, nil
	}
	s.log.WithField("wallet_id", w.ID).
		WithField("amount", amount).
		Info("wallet topped up")
	return entry, true, nil
}

// Redeem debits balance (and optionally points) for a reward. Fails with
// wallet.ErrInsufficientBalance when the wallet cannot cover the debit.
func (s *Service) Redeem(ctx context.Context, userID string, amount, points int64, reward string) (wallet.Entry, error) {
	if amount <= 0 && points <= 0 {
		return wallet.Entry{}, fmt.Errorf("redemption must debit money or points")
	}
	w, err := s.wallets.GetWalletByUser(ctx, userID)
	if err != nil {
		return wallet.Entry{}, err
	}

	m, err := MutationFor(w.ID, wallet.EntryRewardRedeem, amount, points, reward, "")
	if err != nil {
		return wallet.Entry{}, err
	}
	entry, _, err := s.Apply(ctx, m)
	if err != nil {
		return wallet.Entry{}, err
	}
	s.log.WithField("wallet_id", w.ID).
		WithField("reward", reward).
		Info("reward redeemed")
	return entry, nil
}

// AwardPoints appends a points_award entry.
func (s *Service) AwardPoints(ctx context.Context, walletID string, points int64, description string) (wallet.Entry, error) {
	if points <= 0 {
		return wallet.Entry{}, fmt.Errorf("points must be positive")
	}
	m, err := MutationFor(walletID, wallet.EntryPointsAward, 0, points, description, "")
	if err != nil {
		return wallet.Entry{}, err
	}
	entry, _, err := s.Apply(ctx, m)
	return entry, err
}

// PenalisePoints appends a points_penalty entry. The spendable counter floors
// at zero via the store's non-negativity check, so the caller should clamp.
func (s *Service) PenalisePoints(ctx context.Context, walletID string, points int64, description string) (wallet.Entry, error) {
	if points <= 0 {
		return wallet.Entry{}, fmt.Errorf("points must be positive")
	}
	m, err := MutationFor(walletID, wallet.EntryPointsPenalty, 0, points, description, "")
	if err != nil {
		return wallet.Entry{}, err
	}
	entry, _, err := s.Apply(ctx, m)
	return entry, err
}

// Snapshot returns the wallet with its most recent entries, materialising the
// wallet on first touch so the zero state is readable.
func (s *Service) Snapshot(ctx context.Context, userID string) (wallet.Snapshot, error) {
	w, err := s.EnsureWallet(ctx, userID)
	if err != nil {
		return wallet.Snapshot{}, err
	}
	recent, err := s.wallets.ListEntries(ctx, w.ID, 20)
	if err != nil {
		return wallet.Snapshot{}, err
	}
	return wallet.Snapshot{Wallet: w, Recent: recent}, nil
}
