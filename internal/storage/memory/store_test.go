package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/service-hours-ledger/internal/models"
	"github.com/sheikh-saqib/service-hours-ledger/internal/storage"
)

func seedStore(t *testing.T) (*MemoryLedgerStore, models.Group) {
	t.Helper()

	ctx := context.Background()
	store := NewMemoryLedgerStore()
	if err := store.CreateMember(ctx, models.Member{
		ID:        "S1",
		FirstName: "Ana",
		LastName:  "Tui",
		Role:      models.RoleRegular,
		Total:     decimal.NewNullDecimal(decimal.Zero),
	}); err != nil {
		t.Fatalf("create member: %v", err)
	}
	group, err := store.CreateGroup(ctx, "Choir", "choir")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if err := store.CreateMembership(ctx, models.Membership{
		MemberID: "S1",
		GroupID:  group.ID,
		Total:    decimal.NewNullDecimal(decimal.Zero),
	}); err != nil {
		t.Fatalf("create membership: %v", err)
	}
	return store, group
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	t.Parallel()

	store, group := seedStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(ctx context.Context) error {
		if err := store.SetMemberTotal(ctx, "S1", decimal.NewNullDecimal(decimal.NewFromInt(5))); err != nil {
			return err
		}
		if err := store.SetMembershipTotal(ctx, "S1", group.ID, decimal.NewNullDecimal(decimal.NewFromInt(5))); err != nil {
			return err
		}
		if _, err := store.CreateEntry(ctx, models.LedgerEntry{
			OwnerID:     "S1",
			Attribution: models.GroupAttribution(group.ID),
			Time:        decimal.NewFromInt(5),
			Date:        time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
			Status:      models.StatusPending,
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithinTx error = %v, want %v", err, boom)
	}

	member, err := store.GetMember(ctx, "S1")
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if !member.Total.Decimal.IsZero() {
		t.Fatalf("member total = %s, want 0", member.Total.Decimal)
	}
	membership, err := store.GetMembership(ctx, "S1", group.ID)
	if err != nil {
		t.Fatalf("get membership: %v", err)
	}
	if !membership.Total.Decimal.IsZero() {
		t.Fatalf("membership total = %s, want 0", membership.Total.Decimal)
	}
	entries, err := store.ListEntries(ctx)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("entries = %d, want 0", len(entries))
	}
}

func TestWithinTxRollsBackOnPanic(t *testing.T) {
	t.Parallel()

	store, _ := seedStore(t)
	ctx := context.Background()

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = store.WithinTx(ctx, func(ctx context.Context) error {
			if err := store.SetMemberTotal(ctx, "S1", decimal.NewNullDecimal(decimal.NewFromInt(9))); err != nil {
				return err
			}
			panic("mid-transaction")
		})
	}()

	member, err := store.GetMember(ctx, "S1")
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if !member.Total.Decimal.IsZero() {
		t.Fatalf("member total = %s, want 0", member.Total.Decimal)
	}
}

func TestNestedWithinTxJoinsOuter(t *testing.T) {
	t.Parallel()

	store, _ := seedStore(t)
	ctx := context.Background()
	boom := errors.New("outer failed")

	err := store.WithinTx(ctx, func(ctx context.Context) error {
		if err := store.WithinTx(ctx, func(ctx context.Context) error {
			return store.SetMemberTotal(ctx, "S1", decimal.NewNullDecimal(decimal.NewFromInt(2)))
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithinTx error = %v, want %v", err, boom)
	}
	member, _ := store.GetMember(ctx, "S1")
	if !member.Total.Decimal.IsZero() {
		t.Fatalf("inner write survived outer rollback: total = %s", member.Total.Decimal)
	}
}

func TestAfterCommitRunsOnlyOnCommit(t *testing.T) {
	t.Parallel()

	store, _ := seedStore(t)
	ctx := context.Background()

	var ran []string
	_ = store.WithinTx(ctx, func(ctx context.Context) error {
		store.AfterCommit(ctx, func() { ran = append(ran, "rolled-back") })
		return errors.New("fail")
	})
	if err := store.WithinTx(ctx, func(ctx context.Context) error {
		store.AfterCommit(ctx, func() { ran = append(ran, "committed") })
		if len(ran) != 0 {
			t.Fatal("hook ran before commit")
		}
		return nil
	}); err != nil {
		t.Fatalf("WithinTx: %v", err)
	}
	if len(ran) != 1 || ran[0] != "committed" {
		t.Fatalf("hooks = %v, want [committed]", ran)
	}
}

func TestWithinTxHonoursCancelledContext(t *testing.T) {
	t.Parallel()

	store, _ := seedStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	err := store.WithinTx(ctx, func(txCtx context.Context) error {
		if err := store.SetMemberTotal(txCtx, "S1", decimal.NewNullDecimal(decimal.NewFromInt(4))); err != nil {
			return err
		}
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("WithinTx error = %v, want context.Canceled", err)
	}
	member, _ := store.GetMember(context.Background(), "S1")
	if !member.Total.Decimal.IsZero() {
		t.Fatalf("member total = %s, want 0 after cancelled transaction", member.Total.Decimal)
	}
}

func TestDeleteRefusesReferencedRows(t *testing.T) {
	t.Parallel()

	store, group := seedStore(t)
	ctx := context.Background()

	if err := store.DeleteMember(ctx, "S1"); !errors.Is(err, storage.ErrReferenced) {
		t.Fatalf("delete member error = %v, want %v", err, storage.ErrReferenced)
	}
	if err := store.DeleteGroup(ctx, group.ID); !errors.Is(err, storage.ErrReferenced) {
		t.Fatalf("delete group error = %v, want %v", err, storage.ErrReferenced)
	}
}

func TestCreateGroupRejectsDuplicateKey(t *testing.T) {
	t.Parallel()

	store, _ := seedStore(t)
	if _, err := store.CreateGroup(context.Background(), "CHOIR", "choir"); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("create group error = %v, want %v", err, storage.ErrAlreadyExists)
	}
}

func TestCreateMemberRejectsDuplicateEmail(t *testing.T) {
	t.Parallel()

	store := NewMemoryLedgerStore()
	ctx := context.Background()
	first := models.Member{ID: "st100", FirstName: "Ana", LastName: "Tui", Email: "st100@example.nz", Role: models.RoleRegular}
	if err := store.CreateMember(ctx, first); err != nil {
		t.Fatalf("create member: %v", err)
	}
	clash := models.Member{ID: "ST100", FirstName: "Ana", LastName: "Tui", Email: "st100@example.nz", Role: models.RoleRegular}
	if err := store.CreateMember(ctx, clash); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("create member error = %v, want %v", err, storage.ErrAlreadyExists)
	}

	got, err := store.GetMemberByEmail(ctx, "st100@example.nz")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if got.ID != "st100" {
		t.Fatalf("member by email = %s, want st100", got.ID)
	}

	if err := store.DeleteMember(ctx, "st100"); err != nil {
		t.Fatalf("delete member: %v", err)
	}
	if _, err := store.GetMemberByEmail(ctx, "st100@example.nz"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get by email after delete error = %v, want %v", err, storage.ErrNotFound)
	}
	if err := store.CreateMember(ctx, clash); err != nil {
		t.Fatalf("email not released after delete: %v", err)
	}
}

func TestCreateMemberEmailRollsBack(t *testing.T) {
	t.Parallel()

	store := NewMemoryLedgerStore()
	ctx := context.Background()
	member := models.Member{ID: "S9", FirstName: "Ana", LastName: "Tui", Email: "s9@example.nz", Role: models.RoleRegular}
	_ = store.WithinTx(ctx, func(ctx context.Context) error {
		if err := store.CreateMember(ctx, member); err != nil {
			return err
		}
		return errors.New("abort")
	})
	if _, err := store.GetMemberByEmail(ctx, "s9@example.nz"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get by email error = %v, want %v", err, storage.ErrNotFound)
	}
	if err := store.CreateMember(ctx, member); err != nil {
		t.Fatalf("create after rollback: %v", err)
	}
}

func TestCreateEntryChecksReferences(t *testing.T) {
	t.Parallel()

	store, _ := seedStore(t)
	_, err := store.CreateEntry(context.Background(), models.LedgerEntry{
		OwnerID:     "S1",
		Attribution: models.GroupAttribution(999),
		Time:        decimal.NewFromInt(1),
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("create entry error = %v, want %v", err, storage.ErrNotFound)
	}
}

func TestAwardTiersSortedByThreshold(t *testing.T) {
	t.Parallel()

	store := NewMemoryLedgerStore()
	ctx := context.Background()
	if err := store.ReplaceAwardTiers(ctx, []models.AwardTier{
		{ID: 3, Name: "Gold", Threshold: decimal.NewFromInt(50)},
		{ID: 1, Name: "Bronze", Threshold: decimal.NewFromInt(10)},
		{ID: 2, Name: "Silver", Threshold: decimal.NewFromInt(25)},
	}); err != nil {
		t.Fatalf("replace tiers: %v", err)
	}
	tiers, err := store.ListAwardTiers(ctx)
	if err != nil {
		t.Fatalf("list tiers: %v", err)
	}
	var names []string
	for _, tier := range tiers {
		names = append(names, tier.Name)
	}
	if len(names) != 3 || names[0] != "Bronze" || names[1] != "Silver" || names[2] != "Gold" {
		t.Fatalf("tier order = %v, want [Bronze Silver Gold]", names)
	}
}
