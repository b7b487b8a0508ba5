package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/service-hours-ledger/internal/models"
	"github.com/sheikh-saqib/service-hours-ledger/internal/storage"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), ""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestOpenTwiceAppliesMigrationsOnce(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ledger.db")
	first, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close first: %v", err)
	}
	second, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer second.Close()

	var count int
	if err := second.DB().QueryRow(`SELECT COUNT(1) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != 1 {
		t.Fatalf("applied migrations = %d, want 1", count)
	}
}

func seed(t *testing.T, store *Store) models.Group {
	t.Helper()

	ctx := context.Background()
	for _, member := range []models.Member{
		{ID: "S1", FirstName: "Ana", LastName: "Tui", Email: "s1@example.nz", Cohort: "10A", Role: models.RoleRegular, Total: decimal.NewNullDecimal(decimal.Zero)},
		{ID: "T1", FirstName: "Rua", LastName: "Hohaia", Email: "t1@example.nz", Role: models.RoleSupervisor},
	} {
		if err := store.CreateMember(ctx, member); err != nil {
			t.Fatalf("create member %s: %v", member.ID, err)
		}
	}
	group, err := store.CreateGroup(ctx, "Kapa Haka", "kapa haka")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if err := store.CreateMembership(ctx, models.Membership{MemberID: "S1", GroupID: group.ID, Total: decimal.NewNullDecimal(decimal.Zero)}); err != nil {
		t.Fatalf("join student: %v", err)
	}
	if err := store.CreateMembership(ctx, models.Membership{MemberID: "T1", GroupID: group.ID}); err != nil {
		t.Fatalf("join staff: %v", err)
	}
	return group
}

func TestMemberRoundTripKeepsNullTotal(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	seed(t, store)

	staff, err := store.GetMember(context.Background(), "T1")
	if err != nil {
		t.Fatalf("get staff: %v", err)
	}
	if staff.Total.Valid {
		t.Fatalf("staff total = %s, want null", staff.Total.Decimal)
	}
	if staff.Role != models.RoleSupervisor {
		t.Fatalf("role = %v, want supervisor", staff.Role)
	}

	byEmail, err := store.GetMemberByEmail(context.Background(), "t1@example.nz")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if byEmail.ID != "T1" {
		t.Fatalf("member by email = %s, want T1", byEmail.ID)
	}
	if _, err := store.GetMemberByEmail(context.Background(), "T1@example.nz"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get by email with other case error = %v, want %v", err, storage.ErrNotFound)
	}

	student, err := store.GetMember(context.Background(), "S1")
	if err != nil {
		t.Fatalf("get student: %v", err)
	}
	if !student.Total.Valid || !student.Total.Decimal.IsZero() {
		t.Fatalf("student total = %+v, want 0", student.Total)
	}
}

func TestEntryRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	group := seed(t, store)
	ctx := context.Background()

	loggedAt := time.Date(2026, time.May, 4, 9, 30, 0, 0, time.UTC)
	id, err := store.CreateEntry(ctx, models.LedgerEntry{
		OwnerID:     "S1",
		Attribution: models.GroupAttribution(group.ID),
		Time:        decimal.RequireFromString("2.25"),
		Description: "Marae clean-up",
		Date:        time.Date(2026, time.May, 3, 0, 0, 0, 0, time.UTC),
		LoggedAt:    loggedAt,
		Status:      models.StatusPending,
	})
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}

	got, err := store.GetEntry(ctx, id)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if gid, ok := got.Attribution.GroupID(); !ok || gid != group.ID {
		t.Fatalf("attribution = %v, want group %d", got.Attribution, group.ID)
	}
	if !got.Time.Equal(decimal.RequireFromString("2.25")) {
		t.Fatalf("time = %s, want 2.25", got.Time)
	}
	if !got.LoggedAt.Equal(loggedAt) {
		t.Fatalf("logged_at = %v, want %v", got.LoggedAt, loggedAt)
	}
	if got.Date.Format("2006-01-02") != "2026-05-03" {
		t.Fatalf("date = %v, want 2026-05-03", got.Date)
	}

	got.Attribution = models.SupervisorAttribution("T1")
	got.Status = models.StatusLocked
	if err := store.UpdateEntry(ctx, got); err != nil {
		t.Fatalf("update entry: %v", err)
	}
	bySupervisor, err := store.ListEntriesBySupervisor(ctx, "T1")
	if err != nil {
		t.Fatalf("list by supervisor: %v", err)
	}
	if len(bySupervisor) != 1 || bySupervisor[0].Status != models.StatusLocked {
		t.Fatalf("entries by supervisor = %+v, want one locked entry", bySupervisor)
	}
	inGroup, err := store.ListEntriesByOwnerInGroup(ctx, "S1", group.ID)
	if err != nil {
		t.Fatalf("list in group: %v", err)
	}
	if len(inGroup) != 0 {
		t.Fatalf("entries in group = %d, want 0 after re-attribution", len(inGroup))
	}
}

func TestConstraintErrorsMapToStorageSentinels(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	group := seed(t, store)
	ctx := context.Background()

	err := store.CreateMember(ctx, models.Member{ID: "S1", FirstName: "Dup", LastName: "Dup", Email: "dup@example.nz", Role: models.RoleRegular})
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("duplicate member error = %v, want %v", err, storage.ErrAlreadyExists)
	}
	if _, err := store.CreateGroup(ctx, "KAPA HAKA", "kapa haka"); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("duplicate group error = %v, want %v", err, storage.ErrAlreadyExists)
	}
	err = store.CreateMembership(ctx, models.Membership{MemberID: "S1", GroupID: group.ID})
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("duplicate membership error = %v, want %v", err, storage.ErrAlreadyExists)
	}
	err = store.CreateMembership(ctx, models.Membership{MemberID: "ghost", GroupID: group.ID})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("membership for missing member error = %v, want %v", err, storage.ErrNotFound)
	}
	if err := store.DeleteGroup(ctx, group.ID); !errors.Is(err, storage.ErrReferenced) {
		t.Fatalf("delete referenced group error = %v, want %v", err, storage.ErrReferenced)
	}
	if err := store.DeleteEntry(ctx, 404); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("delete missing entry error = %v, want %v", err, storage.ErrNotFound)
	}
}

func TestListMembersOfGroupFiltersRoles(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	group := seed(t, store)

	all, err := store.ListMembersOfGroup(context.Background(), group.ID, nil)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 || all[0].ID != "T1" || all[1].ID != "S1" {
		t.Fatalf("members = %+v, want [T1 S1] ordered by last name", all)
	}
	supervisors, err := store.ListMembersOfGroup(context.Background(), group.ID, models.SupervisoryRoles)
	if err != nil {
		t.Fatalf("list supervisors: %v", err)
	}
	if len(supervisors) != 1 || supervisors[0].ID != "T1" {
		t.Fatalf("supervisors = %+v, want [T1]", supervisors)
	}
}

func TestWithinTxRollsBack(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	group := seed(t, store)
	ctx := context.Background()
	boom := errors.New("boom")

	hooked := false
	err := store.WithinTx(ctx, func(ctx context.Context) error {
		store.AfterCommit(ctx, func() { hooked = true })
		if err := store.SetMembershipTotal(ctx, "S1", group.ID, decimal.NewNullDecimal(decimal.NewFromInt(3))); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithinTx error = %v, want %v", err, boom)
	}
	if hooked {
		t.Fatal("after-commit hook ran for a rolled back transaction")
	}
	membership, err := store.GetMembership(ctx, "S1", group.ID)
	if err != nil {
		t.Fatalf("get membership: %v", err)
	}
	if !membership.Total.Decimal.IsZero() {
		t.Fatalf("membership total = %s, want 0", membership.Total.Decimal)
	}
}

func TestAwardTiersOrderedNumerically(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	if err := store.ReplaceAwardTiers(ctx, []models.AwardTier{
		{ID: 1, Name: "Hundred", Threshold: decimal.NewFromInt(100)},
		{ID: 2, Name: "Nine", Threshold: decimal.NewFromInt(9)},
	}); err != nil {
		t.Fatalf("replace tiers: %v", err)
	}
	tiers, err := store.ListAwardTiers(ctx)
	if err != nil {
		t.Fatalf("list tiers: %v", err)
	}
	if len(tiers) != 2 || tiers[0].Name != "Nine" {
		t.Fatalf("tiers = %+v, want Nine first", tiers)
	}
}
