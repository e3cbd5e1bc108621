// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stakewell/engine/internal/domain/contract"
	"github.com/stakewell/engine/internal/domain/gamify"
	"github.com/stakewell/engine/internal/domain/wallet"
	"github.com/stakewell/engine/internal/storage"
)

// Store keeps everything behind one mutex, which makes every multi-step
// operation trivially atomic.
type Store struct {
	mu     sync.RWMutex
	nextID int64

	wallets       map[string]wallet.Wallet
	walletsByUser map[string]string
	entries       map[string][]wallet.Entry // walletID -> ordered entries
	entryRefs     map[string]string         // walletID+"\x00"+externalRef -> entryID
	entriesByID   map[string]wallet.Entry

	contracts     map[string]contract.Contract
	submissions   map[string]contract.Submission
	subByContract map[string][]string

	platform        wallet.PlatformWallet
	platformEntries []wallet.Entry

	badges map[string][]gamify.BadgeGrant
}

var _ storage.WalletStore = (*Store)(nil)
var _ storage.ContractStore = (*Store)(nil)
var _ storage.PlatformStore = (*Store)(nil)
var _ storage.BadgeStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:        1,
		wallets:       make(map[string]wallet.Wallet),
		walletsByUser: make(map[string]string),
		entries:       make(map[string][]wallet.Entry),
		entryRefs:     make(map[string]string),
		entriesByID:   make(map[string]wallet.Entry),
		contracts:     make(map[string]contract.Contract),
		submissions:   make(map[string]contract.Submission),
		subByContract: make(map[string][]string),
		badges:        make(map[string][]gamify.BadgeGrant),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

func refKey(walletID, externalRef string) string {
	return walletID + "\x00" + externalRef
}

// WalletStore implementation --------------------------------------------------

func (s *Store) EnsureWallet(_ context.Context, userID string) (wallet.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.walletsByUser[userID]; ok {
		return s.wallets[id], nil
	}

	now := time.Now().UTC()
	w := wallet.Wallet{
		ID:        s.nextIDLocked(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.wallets[w.ID] = w
	s.walletsByUser[userID] = w.ID
	return w, nil
}

func (s *Store) GetWallet(_ context.Context, id string) (wallet.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[id]
	if !ok {
		return wallet.Wallet{}, wallet.ErrNotFound
	}
	return w, nil
}

func (s *Store) GetWalletByUser(_ context.Context, userID string) (wallet.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id, ok := s.walletsByUser[userID]; ok {
		return s.wallets[id], nil
	}
	return wallet.Wallet{}, wallet.ErrNotFound
}

func (s *Store) Apply(_ context.Context, m storage.Mutation) (wallet.Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(m)
}

// applyLocked enforces idempotency and non-negativity, then records the entry
// and the new wallet state. Callers must hold the write lock.
func (s *Store) applyLocked(m storage.Mutation) (wallet.Entry, bool, error) {
	w, ok := s.wallets[m.Entry.WalletID]
	if !ok {
		return wallet.Entry{}, false, wallet.ErrNotFound
	}

	if m.Entry.ExternalRef != "" {
		if existing, seen := s.entryRefs[refKey(w.ID, m.Entry.ExternalRef)]; seen {
			return s.entriesByID[existing], false, nil
		}
	}

	balance := w.Balance + m.DeltaBalance
	locked := w.LockedBalance + m.DeltaLocked
	points := w.Points + m.DeltaPoints
	if balance < 0 || locked < 0 || points < 0 {
		return wallet.Entry{}, false, wallet.ErrInsufficientBalance
	}

	now := time.Now().UTC()
	w.Balance = balance
	w.LockedBalance = locked
	w.Points = points
	w.LifetimePoints += m.DeltaLifetime
	w.UpdatedAt = now

	e := m.Entry
	e.ID = s.nextIDLocked()
	e.CreatedAt = now
	e.BalanceAfter = balance
	e.LockedAfter = locked
	e.PointsAfter = points

	s.wallets[w.ID] = w
	s.entries[w.ID] = append(s.entries[w.ID], e)
	s.entriesByID[e.ID] = e
	if e.ExternalRef != "" {
		s.entryRefs[refKey(w.ID, e.ExternalRef)] = e.ID
	}
	return e, true, nil
}

func (s *Store) UpdateActivity(_ context.Context, walletID string, streak int, lastActiveAt time.Time) (wallet.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[walletID]
	if !ok {
		return wallet.Wallet{}, wallet.ErrNotFound
	}
	w.Streak = streak
	w.LastActiveAt = lastActiveAt.UTC()
	w.UpdatedAt = time.Now().UTC()
	s.wallets[walletID] = w
	return w, nil
}

func (s *Store) ListEntries(_ context.Context, walletID string, limit int) ([]wallet.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.entries[walletID]
	result := append([]wallet.Entry(nil), all...)
	// newest first
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ContractStore implementation ------------------------------------------------

func (s *Store) CreateContract(_ context.Context, c contract.Contract) (contract.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = s.nextIDLocked()
	} else if _, exists := s.contracts[c.ID]; exists {
		return contract.Contract{}, fmt.Errorf("contract %s already exists", c.ID)
	}

	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.contracts[c.ID] = c
	return c, nil
}

func (s *Store) GetContract(_ context.Context, id string) (contract.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contracts[id]
	if !ok {
		return contract.Contract{}, contract.ErrNotFound
	}
	return c, nil
}

func (s *Store) UpdateContract(_ context.Context, c contract.Contract) (contract.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.contracts[c.ID]
	if !ok {
		return contract.Contract{}, contract.ErrNotFound
	}
	c.CreatedAt = original.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	s.contracts[c.ID] = c
	return c, nil
}

func (s *Store) ListContracts(_ context.Context, userID string) ([]contract.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]contract.Contract, 0)
	for _, c := range s.contracts {
		if userID == "" || c.UserID == userID {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) ListActiveContracts(_ context.Context) ([]contract.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]contract.Contract, 0)
	for _, c := range s.contracts {
		if c.Status == contract.StatusActive {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) CreateSubmission(_ context.Context, sub contract.Submission) (contract.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contracts[sub.ContractID]; !ok {
		return contract.Submission{}, contract.ErrNotFound
	}
	if sub.ID == "" {
		sub.ID = s.nextIDLocked()
	}
	sub.CreatedAt = time.Now().UTC()
	s.submissions[sub.ID] = sub
	s.subByContract[sub.ContractID] = append(s.subByContract[sub.ContractID], sub.ID)
	return sub, nil
}

func (s *Store) UpdateSubmission(_ context.Context, sub contract.Submission) (contract.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.submissions[sub.ID]
	if !ok {
		return contract.Submission{}, contract.ErrNotFound
	}
	sub.ContractID = original.ContractID
	sub.CreatedAt = original.CreatedAt
	s.submissions[sub.ID] = sub
	return sub, nil
}

func (s *Store) ApproveSubmission(_ context.Context, submissionID string, reviewedAt time.Time) (contract.Submission, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.submissions[submissionID]
	if !ok {
		return contract.Submission{}, false, contract.ErrNotFound
	}
	if sub.Status != contract.SubmissionPending {
		return sub, false, nil
	}

	sub.Status = contract.SubmissionApproved
	sub.ReviewedAt = reviewedAt.UTC()
	s.submissions[submissionID] = sub

	day := sub.CreatedAt.UTC().Truncate(24 * time.Hour)
	for _, id := range s.subByContract[sub.ContractID] {
		other := s.submissions[id]
		if other.ID == sub.ID || other.Status != contract.SubmissionApproved {
			continue
		}
		if other.CreatedAt.UTC().Truncate(24*time.Hour).Equal(day) {
			return sub, false, nil
		}
	}

	c := s.contracts[sub.ContractID]
	c.DaysCompleted++
	c.UpdatedAt = time.Now().UTC()
	s.contracts[sub.ContractID] = c
	return sub, true, nil
}

func (s *Store) GetSubmission(_ context.Context, id string) (contract.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.submissions[id]
	if !ok {
		return contract.Submission{}, contract.ErrNotFound
	}
	return sub, nil
}

func (s *Store) ListSubmissions(_ context.Context, contractID string) ([]contract.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.subByContract[contractID]
	result := make([]contract.Submission, 0, len(ids))
	for _, id := range ids {
		result = append(result, s.submissions[id])
	}
	return result, nil
}

func (s *Store) Settle(_ context.Context, st storage.Settlement) (contract.Contract, wallet.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contracts[st.ContractID]
	if !ok {
		return contract.Contract{}, wallet.Entry{}, contract.ErrNotFound
	}
	if c.Status != st.FromStatus {
		return c, wallet.Entry{}, contract.ErrAlreadySettled
	}

	entry, _, err := s.applyLocked(st.Mutation)
	if err != nil {
		return contract.Contract{}, wallet.Entry{}, err
	}

	if st.PlatformCredit > 0 {
		s.ensurePlatformLocked()
		now := time.Now().UTC()
		s.platform.Balance += st.PlatformCredit
		s.platform.TotalRevenue += st.PlatformCredit
		s.platform.UpdatedAt = now
		s.platformEntries = append(s.platformEntries, wallet.Entry{
			ID:           s.nextIDLocked(),
			WalletID:     s.platform.ID,
			Type:         wallet.EntryStakeForfeit,
			Amount:       st.PlatformCredit,
			Description:  fmt.Sprintf("forfeit from contract %s", c.ID),
			BalanceAfter: s.platform.Balance,
			CreatedAt:    now,
		})
	}

	now := time.Now().UTC()
	c.Status = st.ToStatus
	c.SettledAt = now
	c.UpdatedAt = now
	s.contracts[c.ID] = c
	return c, entry, nil
}

// PlatformStore implementation ------------------------------------------------

func (s *Store) ensurePlatformLocked() {
	if s.platform.ID == "" {
		now := time.Now().UTC()
		s.platform = wallet.PlatformWallet{ID: "platform", CreatedAt: now, UpdatedAt: now}
	}
}

func (s *Store) EnsurePlatformWallet(_ context.Context) (wallet.PlatformWallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensurePlatformLocked()
	return s.platform, nil
}

func (s *Store) GetPlatformWallet(_ context.Context) (wallet.PlatformWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.platform.ID == "" {
		return wallet.PlatformWallet{}, wallet.ErrNotFound
	}
	return s.platform, nil
}

func (s *Store) ListPlatformEntries(_ context.Context, limit int) ([]wallet.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := append([]wallet.Entry(nil), s.platformEntries...)
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// BadgeStore implementation ---------------------------------------------------

func (s *Store) GrantBadge(_ context.Context, grant gamify.BadgeGrant) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range s.badges[grant.WalletID] {
		if g.BadgeKey == grant.BadgeKey {
			return false, nil
		}
	}
	if grant.EarnedAt.IsZero() {
		grant.EarnedAt = time.Now().UTC()
	}
	s.badges[grant.WalletID] = append(s.badges[grant.WalletID], grant)
	return true, nil
}

func (s *Store) ListBadges(_ context.Context, walletID string) ([]gamify.BadgeGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]gamify.BadgeGrant(nil), s.badges[walletID]...), nil
}

func (s *Store) UserStats(_ context.Context, userID string) (gamify.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.walletsByUser[userID]
	if !ok {
		return gamify.Stats{}, wallet.ErrNotFound
	}
	w := s.wallets[id]

	stats := gamify.Stats{
		Streak:         w.Streak,
		LifetimePoints: w.LifetimePoints,
	}
	for _, c := range s.contracts {
		if c.UserID != userID {
			continue
		}
		stats.ContractCount++
		if c.Status == contract.StatusSuccess {
			stats.SuccessCount++
		}
		stats.SubmissionCount += len(s.subByContract[c.ID])
	}
	return stats, nil
}
