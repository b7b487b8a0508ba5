package awards

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/service-hours-ledger/internal/models"
)

// Resolver answers tier lookups over a fixed, threshold-ordered tier list.
type Resolver struct {
	tiers []models.AwardTier
}

// NewResolver copies and sorts tiers ascending by threshold, then id.
func NewResolver(tiers []models.AwardTier) *Resolver {
	sorted := make([]models.AwardTier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		if c := sorted[i].Threshold.Cmp(sorted[j].Threshold); c != 0 {
			return c < 0
		}
		return sorted[i].ID < sorted[j].ID
	})
	return &Resolver{tiers: sorted}
}

// Tiers returns the ordered tiers.
func (r *Resolver) Tiers() []models.AwardTier {
	out := make([]models.AwardTier, len(r.tiers))
	copy(out, r.tiers)
	return out
}

// currentIndex is the index of the highest tier whose threshold is at most
// total, or -1.
func (r *Resolver) currentIndex(total decimal.Decimal) int {
	idx := -1
	for i, tier := range r.tiers {
		if tier.Threshold.GreaterThan(total) {
			break
		}
		idx = i
	}
	return idx
}

// CurrentTier returns the highest tier earned by total.
func (r *Resolver) CurrentTier(total decimal.Decimal) (models.AwardTier, bool) {
	idx := r.currentIndex(total)
	if idx < 0 {
		return models.AwardTier{}, false
	}
	return r.tiers[idx], true
}

// NextTier returns the tier after the current one, or the first tier when
// none is held. It reports false once the highest tier is reached.
func (r *Resolver) NextTier(total decimal.Decimal) (models.AwardTier, bool) {
	idx := r.currentIndex(total) + 1
	if idx >= len(r.tiers) {
		return models.AwardTier{}, false
	}
	return r.tiers[idx], true
}
