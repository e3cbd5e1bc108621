// Package staking manages the lifecycle of staked funds: lock on contract
// creation, release on success, forfeiture on failure. Settlement is the only
// transition out of the active state and is applied at most once.
package staking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stakewell/engine/internal/app/metrics"
	"github.com/stakewell/engine/internal/domain/contract"
	"github.com/stakewell/engine/internal/domain/wallet"
	"github.com/stakewell/engine/internal/services/ledger"
	"github.com/stakewell/engine/internal/storage"
	"github.com/stakewell/engine/pkg/logger"
)

// qualifyingRatio is the share of submissions that must be approved for a
// contract to settle successfully.
const qualifyingRatio = 0.8

// Service is the staking engine.
type Service struct {
	wallets   storage.WalletStore
	contracts storage.ContractStore
	ledger    *ledger.Service
	log       *logger.Logger
}

// New constructs a staking service.
func New(wallets storage.WalletStore, contracts storage.ContractStore, ledgerSvc *ledger.Service, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("staking")
	}
	return &Service{
		wallets:   wallets,
		contracts: contracts,
		ledger:    ledgerSvc,
		log:       log,
	}
}

// successBonus is the points awarded on successful settlement. Monotonic in
// both duration and stakes.
func successBonus(durationDays int, stakes int64) int64 {
	return int64(durationDays)*10 + stakes/100
}

// CreateContract locks the stake and opens an active contract. Fails with
// wallet.ErrInsufficientBalance when the spendable balance cannot cover the
// stake; nothing is written in that case.
func (s *Service) CreateContract(ctx context.Context, userID, goal string, durationDays int, stakes int64) (contract.Contract, error) {
	userID = strings.TrimSpace(userID)
	goal = strings.TrimSpace(goal)
	if userID == "" {
		return contract.Contract{}, fmt.Errorf("user_id is required")
	}
	if goal == "" {
		return contract.Contract{}, fmt.Errorf("goal is required")
	}
	if durationDays <= 0 {
		return contract.Contract{}, fmt.Errorf("duration_days must be positive")
	}
	if stakes <= 0 {
		return contract.Contract{}, fmt.Errorf("stakes must be positive")
	}

	w, err := s.ledger.EnsureWallet(ctx, userID)
	if err != nil {
		return contract.Contract{}, err
	}

	now := time.Now().UTC()
	c := contract.Contract{
		UserID:       userID,
		Goal:         goal,
		DurationDays: durationDays,
		Stakes:       stakes,
		Status:       contract.StatusActive,
		Deadline:     now.AddDate(0, 0, durationDays),
	}
	c, err = s.contracts.CreateContract(ctx, c)
	if err != nil {
		return contract.Contract{}, err
	}

	m, err := ledger.MutationFor(w.ID, wallet.EntryStakeLock, stakes, 0,
		fmt.Sprintf("stake for %q", goal), "stake_lock:"+c.ID)
	if err != nil {
		return contract.Contract{}, err
	}
	if _, _, err := s.ledger.Apply(ctx, m); err != nil {
		// The contract never had funds behind it; close it out as failed so
		// it cannot be settled later.
		c.Status = contract.StatusFailed
		c.SettledAt = time.Now().UTC()
		if _, updErr := s.contracts.UpdateContract(ctx, c); updErr != nil {
			s.log.WithError(updErr).WithField("contract_id", c.ID).
				Warn("close unfunded contract failed")
		}
		return contract.Contract{}, err
	}

	s.log.WithField("contract_id", c.ID).
		WithField("user_id", userID).
		WithField("stakes", stakes).
		Info("contract staked")
	return c, nil
}

// GetContract returns a single contract.
func (s *Service) GetContract(ctx context.Context, id string) (contract.Contract, error) {
	return s.contracts.GetContract(ctx, id)
}

// ListContracts returns a user's contracts.
func (s *Service) ListContracts(ctx context.Context, userID string) ([]contract.Contract, error) {
	return s.contracts.ListContracts(ctx, userID)
}

// ListSubmissions returns a contract's submissions.
func (s *Service) ListSubmissions(ctx context.Context, contractID string) ([]contract.Submission, error) {
	return s.contracts.ListSubmissions(ctx, contractID)
}

// SettleSuccess releases the stake back to the user's balance, awards the
// success bonus, and marks the contract successful. Re-invocation on a
// terminal contract is a no-op returning unchanged=true.
func (s *Service) SettleSuccess(ctx context.Context, contractID string) (contract.Contract, bool, error) {
	c, err := s.contracts.GetContract(ctx, contractID)
	if err != nil {
		return contract.Contract{}, false, err
	}
	if c.Terminal() {
		return c, true, nil
	}

	w, err := s.wallets.GetWalletByUser(ctx, c.UserID)
	if err != nil {
		return contract.Contract{}, false, err
	}

	bonus := successBonus(c.DurationDays, c.Stakes)
	m, err := ledger.MutationFor(w.ID, wallet.EntryStakeRelease, c.Stakes, bonus,
		fmt.Sprintf("stake released for %q", c.Goal), "settle:"+c.ID)
	if err != nil {
		return contract.Contract{}, false, err
	}

	settled, _, err := s.contracts.Settle(ctx, storage.Settlement{
		ContractID: c.ID,
		FromStatus: contract.StatusActive,
		ToStatus:   contract.StatusSuccess,
		Mutation:   m,
	})
	if errors.Is(err, contract.ErrAlreadySettled) {
		return settled, true, nil
	}
	if err != nil {
		return contract.Contract{}, false, err
	}

	metrics.RecordSettlement("success")
	metrics.RecordLedgerEntry(wallet.EntryStakeRelease)
	s.log.WithField("contract_id", c.ID).
		WithField("bonus", bonus).
		Info("contract settled successfully")
	return settled, false, nil
}

// SettleFailure forfeits the locked stake to the platform wallet and marks
// the contract failed. Same terminal idempotency as SettleSuccess.
func (s *Service) SettleFailure(ctx context.Context, contractID string) (contract.Contract, bool, error) {
	c, err := s.contracts.GetContract(ctx, contractID)
	if err != nil {
		return contract.Contract{}, false, err
	}
	if c.Terminal() {
		return c, true, nil
	}

	w, err := s.wallets.GetWalletByUser(ctx, c.UserID)
	if err != nil {
		return contract.Contract{}, false, err
	}

	m, err := ledger.MutationFor(w.ID, wallet.EntryStakeForfeit, c.Stakes, 0,
		fmt.Sprintf("stake forfeited for %q", c.Goal), "settle:"+c.ID)
	if err != nil {
		return contract.Contract{}, false, err
	}

	settled, _, err := s.contracts.Settle(ctx, storage.Settlement{
		ContractID:     c.ID,
		FromStatus:     contract.StatusActive,
		ToStatus:       contract.StatusFailed,
		Mutation:       m,
		PlatformCredit: c.Stakes,
	})
	if errors.Is(err, contract.ErrAlreadySettled) {
		return settled, true, nil
	}
	if err != nil {
		return contract.Contract{}, false, err
	}

	metrics.RecordSettlement("failed")
	metrics.RecordLedgerEntry(wallet.EntryStakeForfeit)
	s.log.WithField("contract_id", c.ID).
		WithField("forfeited", c.Stakes).
		Info("contract settled as failed")
	return settled, false, nil
}

// RecordSubmission files daily progress evidence against an active contract.
func (s *Service) RecordSubmission(ctx context.Context, contractID, note string) (contract.Submission, error) {
	c, err := s.contracts.GetContract(ctx, contractID)
	if err != nil {
		return contract.Submission{}, err
	}
	if c.Terminal() {
		return contract.Submission{}, fmt.Errorf("contract %s is %s: %w", c.ID, c.Status, contract.ErrAlreadySettled)
	}

	return s.contracts.CreateSubmission(ctx, contract.Submission{
		ContractID: contractID,
		Status:     contract.SubmissionPending,
		Note:       strings.TrimSpace(note),
	})
}

// ReviewSubmission approves or rejects a pending submission. Approval bumps
// the contract's completed-day count (once per calendar day) and advances the
// user's streak.
func (s *Service) ReviewSubmission(ctx context.Context, submissionID string, approve bool) (contract.Submission, error) {
	sub, err := s.contracts.GetSubmission(ctx, submissionID)
	if err != nil {
		return contract.Submission{}, err
	}
	if sub.Status != contract.SubmissionPending {
		return sub, nil
	}

	now := time.Now().UTC()
	sub.ReviewedAt = now
	if !approve {
		sub.Status = contract.SubmissionRejected
		return s.contracts.UpdateSubmission(ctx, sub)
	}

	// Approval and the once-per-day count bump are a single store operation,
	// so concurrent reviews cannot lose or double-count a completed day.
	sub, _, err = s.contracts.ApproveSubmission(ctx, submissionID, now)
	if err != nil {
		return contract.Submission{}, err
	}

	c, err := s.contracts.GetContract(ctx, sub.ContractID)
	if err != nil {
		return contract.Submission{}, err
	}
	if err := s.advanceStreak(ctx, c.UserID, sub.CreatedAt); err != nil {
		s.log.WithError(err).WithField("user_id", c.UserID).Warn("streak update failed")
	}
	return sub, nil
}

// advanceStreak applies the calendar comparison: consecutive day increments,
// a gap resets to one, same day is a no-op.
func (s *Service) advanceStreak(ctx context.Context, userID string, activeAt time.Time) error {
	w, err := s.wallets.GetWalletByUser(ctx, userID)
	if err != nil {
		return err
	}

	day := activeAt.UTC().Truncate(24 * time.Hour)
	last := w.LastActiveAt.UTC().Truncate(24 * time.Hour)

	switch {
	case w.LastActiveAt.IsZero():
		w.Streak = 1
	case day.Equal(last):
		return nil
	case day.Sub(last) == 24*time.Hour:
		w.Streak++
	default:
		w.Streak = 1
	}

	_, err = s.wallets.UpdateActivity(ctx, w.ID, w.Streak, activeAt)
	return err
}

// EvaluateContract decides whether an active contract is due for settlement
// and applies it. Returns the contract and whether a transition happened.
func (s *Service) EvaluateContract(ctx context.Context, contractID string, now time.Time) (contract.Contract, bool, error) {
	c, err := s.contracts.GetContract(ctx, contractID)
	if err != nil {
		return contract.Contract{}, false, err
	}
	if c.Terminal() {
		return c, false, nil
	}

	subs, err := s.contracts.ListSubmissions(ctx, c.ID)
	if err != nil {
		return contract.Contract{}, false, err
	}
	approved := 0
	for _, sub := range subs {
		if sub.Status == contract.SubmissionApproved {
			approved++
		}
	}
	ratio := 0.0
	if len(subs) > 0 {
		ratio = float64(approved) / float64(len(subs))
	}

	switch {
	case c.DaysCompleted >= c.DurationDays && ratio >= qualifyingRatio:
		settled, unchanged, err := s.SettleSuccess(ctx, c.ID)
		return settled, !unchanged && err == nil, err
	case now.After(c.Deadline):
		settled, unchanged, err := s.SettleFailure(ctx, c.ID)
		return settled, !unchanged && err == nil, err
	default:
		return c, false, nil
	}
}
