package sqlstore

import (
	"sort"

	"github.com/sheikh-saqib/service-hours-ledger/internal/models"
)

func sortTiers(tiers []models.AwardTier) {
	sort.SliceStable(tiers, func(i, j int) bool {
		if c := tiers[i].Threshold.Cmp(tiers[j].Threshold); c != 0 {
			return c < 0
		}
		return tiers[i].ID < tiers[j].ID
	})
}
