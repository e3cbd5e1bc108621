package gamify

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/stakewell/engine/internal/domain/gamify"
)

// Catalog is the reference data the scorer works from: the ordered rank
// table and the badge definitions.
type Catalog struct {
	Ranks  []gamify.RankTier `yaml:"ranks"`
	Badges []gamify.BadgeDef `yaml:"badges"`
}

// DefaultCatalog returns the built-in reference data used when no YAML file
// is configured.
func DefaultCatalog() Catalog {
	return Catalog{
		Ranks: []gamify.RankTier{
			{Threshold: 0, Tier: "bronze"},
			{Threshold: 100, Tier: "silver"},
			{Threshold: 500, Tier: "gold"},
			{Threshold: 1500, Tier: "platinum"},
			{Threshold: 5000, Tier: "diamond"},
		},
		Badges: []gamify.BadgeDef{
			{Key: "first-steps", Name: "First Steps", MinSubmissions: 1},
			{Key: "committed", Name: "Committed", MinContracts: 1},
			{Key: "week-streak", Name: "Week Streak", MinStreak: 7},
			{Key: "month-streak", Name: "Month Streak", MinStreak: 30},
			{Key: "finisher", Name: "Finisher", MinSuccessCount: 1},
			{Key: "veteran", Name: "Veteran", MinSuccessCount: 5, MinLifetimePts: 500},
			{Key: "high-roller", Name: "High Roller", MinLifetimePts: 1500},
		},
	}
}

// LoadCatalog reads the catalog from path, falling back to the defaults when
// the file does not exist. The rank table is normalised to ascending
// threshold order; duplicate thresholds are rejected.
func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultCatalog(), nil
	}
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	if len(cat.Ranks) == 0 {
		cat.Ranks = DefaultCatalog().Ranks
	}
	sort.Slice(cat.Ranks, func(i, j int) bool { return cat.Ranks[i].Threshold < cat.Ranks[j].Threshold })
	for i := 1; i < len(cat.Ranks); i++ {
		if cat.Ranks[i].Threshold == cat.Ranks[i-1].Threshold {
			return Catalog{}, fmt.Errorf("catalog %s: ranks %s and %s share threshold %d",
				path, cat.Ranks[i-1].Tier, cat.Ranks[i].Tier, cat.Ranks[i].Threshold)
		}
	}

	seen := make(map[string]struct{}, len(cat.Badges))
	for _, b := range cat.Badges {
		if b.Key == "" {
			return Catalog{}, fmt.Errorf("catalog %s: badge with empty key", path)
		}
		if _, dup := seen[b.Key]; dup {
			return Catalog{}, fmt.Errorf("catalog %s: duplicate badge key %s", path, b.Key)
		}
		seen[b.Key] = struct{}{}
	}
	return cat, nil
}

// rankFor resolves the tier for a lifetime-points total, the next tier up,
// and the progress percentage between them.
func (c Catalog) rankFor(lifetime int64) (tier, next string, progress int) {
	idx := 0
	for i, r := range c.Ranks {
		if lifetime >= r.Threshold {
			idx = i
		}
	}
	tier = c.Ranks[idx].Tier

	if idx == len(c.Ranks)-1 {
		return tier, "", 100
	}
	next = c.Ranks[idx+1].Tier

	lower := c.Ranks[idx].Threshold
	upper := c.Ranks[idx+1].Threshold
	progress = int((lifetime - lower) * 100 / (upper - lower))
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return tier, next, progress
}

// streakLevels are the day counts at which the streak level steps up.
var streakLevels = []int{3, 7, 14, 30, 60}

// streakLevel is a step function of consecutive active days.
func streakLevel(streak int) int {
	level := 0
	for _, threshold := range streakLevels {
		if streak >= threshold {
			level++
		}
	}
	return level
}

// eligible reports whether stats satisfy every minimum a badge requires.
func eligible(def gamify.BadgeDef, stats gamify.Stats) bool {
	return stats.Streak >= def.MinStreak &&
		stats.SubmissionCount >= def.MinSubmissions &&
		stats.ContractCount >= def.MinContracts &&
		stats.SuccessCount >= def.MinSuccessCount &&
		stats.LifetimePoints >= def.MinLifetimePts
}
