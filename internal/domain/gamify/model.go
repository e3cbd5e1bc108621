// Package gamify holds the rank, streak and badge models derived from ledger
// history. Nothing here mutates state.
package gamify

import "time"

// RankTier maps a lifetime-points threshold to a named tier. Tiers are kept
// sorted ascending by threshold.
type RankTier struct {
	Threshold int64  `yaml:"threshold"`
	Tier      string `yaml:"tier"`
}

// BadgeDef is one entry of the badge catalog. The predicate fields are
// minimum requirements; zero means "not required".
type BadgeDef struct {
	Key             string `yaml:"key"`
	Name            string `yaml:"name"`
	MinStreak       int    `yaml:"min_streak"`
	MinSubmissions  int    `yaml:"min_submissions"`
	MinContracts    int    `yaml:"min_contracts"`
	MinLifetimePts  int64  `yaml:"min_lifetime_points"`
	MinSuccessCount int    `yaml:"min_successes"`
}

// BadgeGrant records a permanently earned badge.
type BadgeGrant struct {
	WalletID string
	BadgeKey string
	EarnedAt time.Time
}

// Stats is the cumulative activity input to badge predicates.
type Stats struct {
	Streak          int
	SubmissionCount int
	ContractCount   int
	SuccessCount    int
	LifetimePoints  int64
}

// Profile is the derived gamification view for a user.
type Profile struct {
	Rank         string
	NextRank     string
	RankProgress int // 0..100, 100 at the top tier
	StreakLevel  int
	Badges       []BadgeGrant
}
