// Package gamify derives rank, streak level and badges from ledger history.
// The scorer never mutates balances; its only write is recording earned
// badges, which are permanent.
package gamify

import (
	"context"
	"fmt"
	"strings"
	"time"

	domain "github.com/stakewell/engine/internal/domain/gamify"
	"github.com/stakewell/engine/internal/storage"
	"github.com/stakewell/engine/pkg/logger"
)

// Service computes gamification profiles.
type Service struct {
	wallets storage.WalletStore
	badges  storage.BadgeStore
	catalog Catalog
	log     *logger.Logger
}

// New constructs a scorer over the given catalog. An empty catalog falls
// back to the defaults.
func New(wallets storage.WalletStore, badges storage.BadgeStore, catalog Catalog, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("gamify")
	}
	if len(catalog.Ranks) == 0 {
		catalog = DefaultCatalog()
	}
	return &Service{
		wallets: wallets,
		badges:  badges,
		catalog: catalog,
		log:     log,
	}
}

// RankTable exposes the ordered rank reference data.
func (s *Service) RankTable() []domain.RankTier {
	return append([]domain.RankTier(nil), s.catalog.Ranks...)
}

// BadgeCatalog exposes the badge reference data.
func (s *Service) BadgeCatalog() []domain.BadgeDef {
	return append([]domain.BadgeDef(nil), s.catalog.Badges...)
}

// Profile evaluates the user's current gamification state. Newly eligible
// badges are recorded as a side effect; previously earned badges are always
// retained regardless of current stats.
func (s *Service) Profile(ctx context.Context, userID string) (domain.Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Profile{}, fmt.Errorf("user_id is required")
	}

	w, err := s.wallets.GetWalletByUser(ctx, userID)
	if err != nil {
		return domain.Profile{}, err
	}
	stats, err := s.badges.UserStats(ctx, userID)
	if err != nil {
		return domain.Profile{}, err
	}

	if err := s.evaluateBadges(ctx, w.ID, stats); err != nil {
		return domain.Profile{}, err
	}
	earned, err := s.badges.ListBadges(ctx, w.ID)
	if err != nil {
		return domain.Profile{}, err
	}

	rank, next, progress := s.catalog.rankFor(stats.LifetimePoints)
	return domain.Profile{
		Rank:         rank,
		NextRank:     next,
		RankProgress: progress,
		StreakLevel:  streakLevel(w.Streak),
		Badges:       earned,
	}, nil
}

// evaluateBadges grants every badge whose predicate the stats satisfy. The
// store ignores grants that already exist.
func (s *Service) evaluateBadges(ctx context.Context, walletID string, stats domain.Stats) error {
	now := time.Now().UTC()
	for _, def := range s.catalog.Badges {
		if !eligible(def, stats) {
			continue
		}
		created, err := s.badges.GrantBadge(ctx, domain.BadgeGrant{
			WalletID: walletID,
			BadgeKey: def.Key,
			EarnedAt: now,
		})
		if err != nil {
			return fmt.Errorf("grant badge %s: %w", def.Key, err)
		}
		if created {
			s.log.WithField("wallet_id", walletID).
				WithField("badge", def.Key).
				Info("badge earned")
		}
	}
	return nil
}
