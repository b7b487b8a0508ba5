package audit

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/service-hours-ledger/internal/models"
	"github.com/sheikh-saqib/service-hours-ledger/internal/storage/memory"
)

func seeded(t *testing.T) (*memory.MemoryLedgerStore, models.Group) {
	t.Helper()

	ctx := context.Background()
	store := memory.NewMemoryLedgerStore()
	if err := store.CreateMember(ctx, models.Member{ID: "S1", FirstName: "Ana", LastName: "Tui", Role: models.RoleRegular, Total: decimal.NewNullDecimal(decimal.RequireFromString("3.5"))}); err != nil {
		t.Fatalf("create member: %v", err)
	}
	group, err := store.CreateGroup(ctx, "Choir", "choir")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if err := store.CreateMembership(ctx, models.Membership{MemberID: "S1", GroupID: group.ID, Total: decimal.NewNullDecimal(decimal.RequireFromString("2.5"))}); err != nil {
		t.Fatalf("create membership: %v", err)
	}
	for _, e := range []models.LedgerEntry{
		{OwnerID: "S1", Attribution: models.GroupAttribution(group.ID), Time: decimal.RequireFromString("2.5")},
		{OwnerID: "S1", Attribution: models.NoAttribution(), Time: decimal.NewFromInt(1)},
	} {
		e.Date = time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
		e.Status = models.StatusPending
		if _, err := store.CreateEntry(ctx, e); err != nil {
			t.Fatalf("create entry: %v", err)
		}
	}
	return store, group
}

func TestVerifyConsistentStore(t *testing.T) {
	t.Parallel()

	store, _ := seeded(t)
	report, err := Verify(context.Background(), store)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !report.OK() {
		t.Fatalf("drifts = %v, want none", report.Drifts)
	}
	if report.Members != 1 || report.Memberships != 1 || report.Entries != 2 {
		t.Fatalf("report counts = %+v", report)
	}
}

func TestVerifyReportsDrift(t *testing.T) {
	t.Parallel()

	store, group := seeded(t)
	ctx := context.Background()
	if err := store.SetMembershipTotal(ctx, "S1", group.ID, decimal.NewNullDecimal(decimal.NewFromInt(9))); err != nil {
		t.Fatalf("corrupt membership: %v", err)
	}
	if err := store.SetMemberTotal(ctx, "S1", decimal.NullDecimal{}); err != nil {
		t.Fatalf("corrupt member: %v", err)
	}

	report, err := Verify(ctx, store)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(report.Drifts) != 2 {
		t.Fatalf("drifts = %v, want 2", report.Drifts)
	}
	if report.Drifts[0].Kind != MemberDrift || !report.Drifts[0].Actual.Equal(decimal.RequireFromString("3.5")) {
		t.Fatalf("member drift = %+v", report.Drifts[0])
	}
	if report.Drifts[1].Kind != MembershipDrift || report.Drifts[1].GroupID != group.ID {
		t.Fatalf("membership drift = %+v", report.Drifts[1])
	}
}

func TestVerifyReportsOrphanedHours(t *testing.T) {
	t.Parallel()

	store, group := seeded(t)
	ctx := context.Background()
	if err := store.DeleteMembership(ctx, "S1", group.ID); err != nil {
		t.Fatalf("delete membership: %v", err)
	}
	report, err := Verify(ctx, store)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(report.Drifts) != 1 || report.Drifts[0].Kind != OrphanedHours {
		t.Fatalf("drifts = %v, want one orphaned", report.Drifts)
	}
}
