// Package audit recomputes cached totals from the ledger and reports drift.
package audit

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/service-hours-ledger/internal/interfaces"
)

type DriftKind string

const (
	MemberDrift     DriftKind = "member"
	MembershipDrift DriftKind = "membership"
	// OrphanedHours are group-attributed hours with no membership to hold them.
	OrphanedHours DriftKind = "orphaned"
)

// Drift is one cached total that disagrees with its entries.
type Drift struct {
	Kind     DriftKind
	MemberID string
	GroupID  int64
	Cached   decimal.NullDecimal
	Actual   decimal.Decimal
}

func (d Drift) String() string {
	cached := "untracked"
	if d.Cached.Valid {
		cached = d.Cached.Decimal.String()
	}
	if d.Kind == MemberDrift {
		return fmt.Sprintf("%s %s: cached %s, entries sum to %s", d.Kind, d.MemberID, cached, d.Actual)
	}
	return fmt.Sprintf("%s %s/%d: cached %s, entries sum to %s", d.Kind, d.MemberID, d.GroupID, cached, d.Actual)
}

type Report struct {
	Members     int
	Memberships int
	Entries     int
	Drifts      []Drift
}

func (r Report) OK() bool { return len(r.Drifts) == 0 }

type membershipKey struct {
	memberID string
	groupID  int64
}

// Verify reads one consistent snapshot and compares every cached total with
// the sum of the entries it should cover. An untracked total is consistent
// only while its entries sum to zero.
func Verify(ctx context.Context, store interfaces.Store) (Report, error) {
	var report Report
	err := store.WithinTx(ctx, func(ctx context.Context) error {
		members, err := store.ListMembers(ctx)
		if err != nil {
			return fmt.Errorf("list members: %w", err)
		}
		memberships, err := store.ListMemberships(ctx)
		if err != nil {
			return fmt.Errorf("list memberships: %w", err)
		}
		entries, err := store.ListEntries(ctx)
		if err != nil {
			return fmt.Errorf("list entries: %w", err)
		}
		report.Members = len(members)
		report.Memberships = len(memberships)
		report.Entries = len(entries)

		byOwner := make(map[string]decimal.Decimal)
		byMembership := make(map[membershipKey]decimal.Decimal)
		for _, entry := range entries {
			byOwner[entry.OwnerID] = byOwner[entry.OwnerID].Add(entry.Time)
			if groupID, ok := entry.Attribution.GroupID(); ok {
				key := membershipKey{entry.OwnerID, groupID}
				byMembership[key] = byMembership[key].Add(entry.Time)
			}
		}

		for _, member := range members {
			actual := byOwner[member.ID]
			if !matches(member.Total, actual) {
				report.Drifts = append(report.Drifts, Drift{Kind: MemberDrift, MemberID: member.ID, Cached: member.Total, Actual: actual})
			}
		}
		for _, m := range memberships {
			key := membershipKey{m.MemberID, m.GroupID}
			actual := byMembership[key]
			delete(byMembership, key)
			if !matches(m.Total, actual) {
				report.Drifts = append(report.Drifts, Drift{Kind: MembershipDrift, MemberID: m.MemberID, GroupID: m.GroupID, Cached: m.Total, Actual: actual})
			}
		}
		for key, actual := range byMembership {
			report.Drifts = append(report.Drifts, Drift{Kind: OrphanedHours, MemberID: key.memberID, GroupID: key.groupID, Actual: actual})
		}
		return nil
	})
	if err != nil {
		return Report{}, err
	}
	return report, nil
}

func matches(cached decimal.NullDecimal, actual decimal.Decimal) bool {
	if !cached.Valid {
		return actual.IsZero()
	}
	return cached.Decimal.Equal(actual)
}
