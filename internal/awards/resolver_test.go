package awards

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/service-hours-ledger/internal/models"
)

func threeTiers() *Resolver {
	// deliberately unsorted
	return NewResolver([]models.AwardTier{
		{ID: 3, Name: "Gold", Threshold: decimal.NewFromInt(50)},
		{ID: 1, Name: "Bronze", Threshold: decimal.NewFromInt(10)},
		{ID: 2, Name: "Silver", Threshold: decimal.NewFromInt(25)},
	})
}

func TestTierLookups(t *testing.T) {
	t.Parallel()

	r := threeTiers()
	tests := []struct {
		total       string
		wantCurrent string
		wantNext    string
	}{
		{"0", "", "Bronze"},
		{"9.99", "", "Bronze"},
		{"10", "Bronze", "Silver"},
		{"24", "Bronze", "Silver"},
		{"25", "Silver", "Gold"},
		{"49.99", "Silver", "Gold"},
		{"50", "Gold", ""},
		{"500", "Gold", ""},
	}
	for _, tt := range tests {
		total := decimal.RequireFromString(tt.total)
		current, ok := r.CurrentTier(total)
		if got := nameOf(current, ok); got != tt.wantCurrent {
			t.Errorf("CurrentTier(%s) = %q, want %q", tt.total, got, tt.wantCurrent)
		}
		next, ok := r.NextTier(total)
		if got := nameOf(next, ok); got != tt.wantNext {
			t.Errorf("NextTier(%s) = %q, want %q", tt.total, got, tt.wantNext)
		}
	}
}

func nameOf(tier models.AwardTier, ok bool) string {
	if !ok {
		return ""
	}
	return tier.Name
}

func TestCurrentTierMonotonic(t *testing.T) {
	t.Parallel()

	r := threeTiers()
	step := decimal.RequireFromString("0.25")
	prev := decimal.NewFromInt(-1)
	for total := decimal.Zero; total.LessThanOrEqual(decimal.NewFromInt(60)); total = total.Add(step) {
		threshold := decimal.NewFromInt(-1)
		if tier, ok := r.CurrentTier(total); ok {
			threshold = tier.Threshold
		}
		if threshold.LessThan(prev) {
			t.Fatalf("CurrentTier(%s) threshold %s dropped below %s", total, threshold, prev)
		}
		prev = threshold

		next, ok := r.NextTier(total)
		if !ok {
			continue
		}
		if current, held := r.CurrentTier(total); held && !next.Threshold.GreaterThan(current.Threshold) {
			t.Fatalf("NextTier(%s) = %s, not above current %s", total, next.Threshold, current.Threshold)
		}
	}
}

func TestEmptyResolver(t *testing.T) {
	t.Parallel()

	r := NewResolver(nil)
	if _, ok := r.CurrentTier(decimal.NewFromInt(100)); ok {
		t.Fatal("expected no current tier")
	}
	if _, ok := r.NextTier(decimal.Zero); ok {
		t.Fatal("expected no next tier")
	}
}

func TestNewResolverCopiesInput(t *testing.T) {
	t.Parallel()

	input := []models.AwardTier{{ID: 1, Name: "Bronze", Threshold: decimal.NewFromInt(10)}}
	r := NewResolver(input)
	input[0].Name = "changed"
	if got := r.Tiers()[0].Name; got != "Bronze" {
		t.Fatalf("tier name = %q, want Bronze", got)
	}
}
