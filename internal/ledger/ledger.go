package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/service-hours-ledger/internal/apperr"
	eventbus "github.com/sheikh-saqib/service-hours-ledger/internal/events"
	"github.com/sheikh-saqib/service-hours-ledger/internal/interfaces"
	"github.com/sheikh-saqib/service-hours-ledger/internal/logger"
	"github.com/sheikh-saqib/service-hours-ledger/internal/membership"
	"github.com/sheikh-saqib/service-hours-ledger/internal/models"
	"github.com/sheikh-saqib/service-hours-ledger/internal/models/events"
	"github.com/sheikh-saqib/service-hours-ledger/internal/storage"
)

// Ledger owns ledger entries and keeps the member and membership totals in
// step with them. Every mutation applies exact signed deltas inside one
// store transaction; totals are never recomputed from the entries.
type Ledger struct {
	store       interfaces.Store          // entries, member totals and the transaction
	memberships *membership.Registry      // receives every group delta
	publisher   interfaces.EventPublisher // nil means events are dropped
	log         *logger.Logger
	now         func() time.Time // clock for date rules and LoggedAt
	loc         *time.Location   // calendar that decides "today"
	limits      Limits
}

type Option func(*Ledger)

func WithPublisher(p interfaces.EventPublisher) Option {
	return func(l *Ledger) { l.publisher = p }
}

func WithLogger(log *logger.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// WithClock replaces time.Now for date rules and logged-at stamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLocation sets the calendar used to decide "today" and "this year".
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) { l.loc = loc }
}

func WithLimits(limits Limits) Option {
	return func(l *Ledger) { l.limits = limits }
}

// NewLedger creates a Ledger over store, pushing group deltas through memberships.
func NewLedger(store interfaces.Store, memberships *membership.Registry, opts ...Option) *Ledger {
	l := &Ledger{
		store:       store,
		memberships: memberships,
		log:         logger.NewNop(),
		now:         time.Now,
		loc:         time.UTC,
		limits:      DefaultLimits(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// EntryInput is the caller-editable part of an entry.
type EntryInput struct {
	Attribution models.Attribution
	Time        decimal.Decimal
	Description string
	Date        time.Time
}

// Add records a new pending entry for owner and returns its id.
func (l *Ledger) Add(ctx context.Context, ownerID string, in EntryInput) (int64, error) {
	// Stateless checks first, no transaction needed
	in, err := l.validate(in)
	if err != nil {
		return 0, err
	}

	var id int64
	err = l.store.WithinTx(ctx, func(ctx context.Context) error {
		// Lock the owner row so concurrent adds serialize on the total
		owner, err := l.lockOwner(ctx, ownerID)
		if err != nil {
			return err
		}
		if !owner.Total.Valid {
			return apperr.WithMetadata(apperr.CodeUntrackedTotal, "owner does not track hours", map[string]string{"member_id": ownerID})
		}
		if err := l.checkAttribution(ctx, ownerID, in.Attribution); err != nil {
			return err
		}

		// New entries always start pending
		id, err = l.store.CreateEntry(ctx, models.LedgerEntry{
			OwnerID:     ownerID,
			Attribution: in.Attribution,
			Time:        in.Time,
			Description: in.Description,
			Date:        in.Date,
			LoggedAt:    l.stamp(),
			Status:      models.StatusPending,
		})
		if err != nil {
			return fmt.Errorf("create entry: %w", err)
		}

		// Owner total counts every entry; the membership total only group ones.
		if err := l.adjustOwner(ctx, owner, in.Time); err != nil {
			return err
		}
		var groupDeltas []events.GroupDelta
		if groupID, ok := in.Attribution.GroupID(); ok {
			if err := l.memberships.ApplyDelta(ctx, ownerID, groupID, in.Time); err != nil {
				return err
			}
			groupDeltas = append(groupDeltas, events.GroupDelta{GroupID: groupID, Delta: in.Time})
		}

		// Published after commit; a rollback discards it
		ev := events.New(events.EntryRecorded)
		ev.MemberID = ownerID
		ev.EntryID = id
		ev.MemberDelta = in.Time
		ev.GroupDeltas = groupDeltas
		eventbus.PublishAfterCommit(ctx, l.store, l.publisher, l.log, ev)
		l.log.WithMember(ownerID).Audit("entry recorded",
			"entry_id", id, "attribution", in.Attribution.String(), "member_delta", in.Time.String())
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Edit overwrites an entry and moves its hours between whichever totals the
// old and new attribution touch. LoggedAt is refreshed. An unset status
// means pending; only privileged callers should pass StatusLocked.
func (l *Ledger) Edit(ctx context.Context, entryID int64, in EntryInput, status models.EntryStatus) error {
	in, err := l.validate(in)
	if err != nil {
		return err
	}
	if status == 0 {
		status = models.StatusPending
	}
	if !status.Valid() {
		return apperr.WithMetadata(apperr.CodeInvalidStatus, "status must be pending or locked",
			map[string]string{"status": strconv.Itoa(int(status))})
	}

	return l.store.WithinTx(ctx, func(ctx context.Context) error {
		// Lock order: entry, owner, then memberships by ascending group id.
		old, err := l.lockEntry(ctx, entryID)
		if err != nil {
			return err
		}
		owner, err := l.lockOwner(ctx, old.OwnerID)
		if err != nil {
			return err
		}
		if err := l.lockMemberships(ctx, old.OwnerID, old.Attribution, in.Attribution); err != nil {
			return err
		}
		if err := l.checkAttribution(ctx, old.OwnerID, in.Attribution); err != nil {
			return err
		}

		// Reverse the old attribution with the old time, apply the new one
		// with the new time. Same group on both sides nets out.
		deltas := make(map[int64]decimal.Decimal, 2)
		if groupID, ok := old.Attribution.GroupID(); ok {
			deltas[groupID] = deltas[groupID].Sub(old.Time)
		}
		if groupID, ok := in.Attribution.GroupID(); ok {
			deltas[groupID] = deltas[groupID].Add(in.Time)
		}
		groupDeltas, err := l.applyGroupDeltas(ctx, old.OwnerID, deltas)
		if err != nil {
			return err
		}

		// The owner total counts every entry, whatever its attribution.
		memberDelta := in.Time.Sub(old.Time)
		if err := l.adjustOwner(ctx, owner, memberDelta); err != nil {
			return err
		}

		// Overwrite the editable fields, keep id and owner
		updated := old
		updated.Attribution = in.Attribution
		updated.Time = in.Time
		updated.Description = in.Description
		updated.Date = in.Date
		updated.Status = status
		updated.LoggedAt = l.stamp()
		if err := l.store.UpdateEntry(ctx, updated); err != nil {
			return fmt.Errorf("update entry: %w", err)
		}

		ev := events.New(events.EntryRevised)
		ev.MemberID = old.OwnerID
		ev.EntryID = entryID
		ev.MemberDelta = memberDelta
		ev.GroupDeltas = groupDeltas
		eventbus.PublishAfterCommit(ctx, l.store, l.publisher, l.log, ev)
		l.log.WithMember(old.OwnerID).Audit("entry revised",
			"entry_id", entryID,
			"from", old.Attribution.String(), "to", in.Attribution.String(),
			"member_delta", memberDelta.String(), "status", status.String())
		return nil
	})
}

// Delete reverses an entry's effect on every total and removes it.
func (l *Ledger) Delete(ctx context.Context, entryID int64) error {
	return l.store.WithinTx(ctx, func(ctx context.Context) error {
		entry, err := l.lockEntry(ctx, entryID)
		if err != nil {
			return err
		}
		owner, err := l.lockOwner(ctx, entry.OwnerID)
		if err != nil {
			return err
		}

		// Unwind the membership total, then the owner total
		var groupDeltas []events.GroupDelta
		if groupID, ok := entry.Attribution.GroupID(); ok {
			groupDeltas, err = l.applyGroupDeltas(ctx, entry.OwnerID, map[int64]decimal.Decimal{groupID: entry.Time.Neg()})
			if err != nil {
				return err
			}
		}
		if err := l.adjustOwner(ctx, owner, entry.Time.Neg()); err != nil {
			return err
		}
		if err := l.store.DeleteEntry(ctx, entryID); err != nil {
			return fmt.Errorf("delete entry: %w", err)
		}

		ev := events.New(events.EntryRemoved)
		ev.MemberID = entry.OwnerID
		ev.EntryID = entryID
		ev.MemberDelta = entry.Time.Neg()
		ev.GroupDeltas = groupDeltas
		eventbus.PublishAfterCommit(ctx, l.store, l.publisher, l.log, ev)
		l.log.WithMember(entry.OwnerID).Audit("entry removed",
			"entry_id", entryID, "attribution", entry.Attribution.String(), "member_delta", entry.Time.Neg().String())
		return nil
	})
}

// DetachSupervisor clears the attribution of every entry naming supervisorID.
// Supervisor attribution never feeds a membership total and the owner total
// counts the entry either way, so no total changes.
func (l *Ledger) DetachSupervisor(ctx context.Context, supervisorID string) (int, error) {
	var detached int
	err := l.store.WithinTx(ctx, func(ctx context.Context) error {
		entries, err := l.store.ListEntriesBySupervisor(ctx, supervisorID)
		if err != nil {
			return fmt.Errorf("list entries by supervisor: %w", err)
		}
		for _, entry := range entries {
			// Time, status and owner stay as they were
			entry.Attribution = models.NoAttribution()
			if err := l.store.UpdateEntry(ctx, entry); err != nil {
				return fmt.Errorf("detach entry %d: %w", entry.ID, err)
			}
		}
		detached = len(entries)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if detached > 0 {
		l.log.Audit("supervisor detached from entries", "supervisor_id", supervisorID, "entries", detached)
	}
	return detached, nil
}

func (l *Ledger) FindByID(ctx context.Context, entryID int64) (models.LedgerEntry, error) {
	entry, err := l.store.GetEntry(ctx, entryID)
	if err != nil {
		return models.LedgerEntry{}, entryErr(entryID, err)
	}
	return entry, nil
}

func (l *Ledger) FindByOwner(ctx context.Context, ownerID string) ([]models.LedgerEntry, error) {
	entries, err := l.store.ListEntriesByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list entries by owner: %w", err)
	}
	return entries, nil
}

// FindBySupervisor returns the entries naming memberID as supervisor.
func (l *Ledger) FindBySupervisor(ctx context.Context, memberID string) ([]models.LedgerEntry, error) {
	entries, err := l.store.ListEntriesBySupervisor(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("list entries by supervisor: %w", err)
	}
	return entries, nil
}

func (l *Ledger) FindByOwnerInGroup(ctx context.Context, ownerID string, groupID int64) ([]models.LedgerEntry, error) {
	entries, err := l.store.ListEntriesByOwnerInGroup(ctx, ownerID, groupID)
	if err != nil {
		return nil, fmt.Errorf("list entries by owner in group: %w", err)
	}
	return entries, nil
}

func (l *Ledger) stamp() time.Time {
	return l.now().UTC().Truncate(time.Millisecond)
}

func (l *Ledger) lockEntry(ctx context.Context, entryID int64) (models.LedgerEntry, error) {
	entry, err := l.store.LockEntry(ctx, entryID)
	if err != nil {
		return models.LedgerEntry{}, entryErr(entryID, err)
	}
	return entry, nil
}

func entryErr(entryID int64, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.WithMetadata(apperr.CodeNotFound, "entry not found", map[string]string{"entry_id": strconv.FormatInt(entryID, 10)})
	}
	return fmt.Errorf("get entry: %w", err)
}

func (l *Ledger) lockOwner(ctx context.Context, ownerID string) (models.Member, error) {
	owner, err := l.store.LockMember(ctx, ownerID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return models.Member{}, apperr.WithMetadata(apperr.CodeNotFound, "member not found", map[string]string{"member_id": ownerID})
	case err != nil:
		return models.Member{}, fmt.Errorf("lock member: %w", err)
	}
	return owner, nil
}

func (l *Ledger) adjustOwner(ctx context.Context, owner models.Member, delta decimal.Decimal) error {
	// Nothing to write; also lets untracked owners edit text fields
	if delta.IsZero() {
		return nil
	}
	if !owner.Total.Valid {
		return apperr.WithMetadata(apperr.CodeUntrackedTotal, "owner does not track hours", map[string]string{"member_id": owner.ID})
	}
	total := decimal.NewNullDecimal(owner.Total.Decimal.Add(delta))
	if err := l.store.SetMemberTotal(ctx, owner.ID, total); err != nil {
		return fmt.Errorf("set member total: %w", err)
	}
	return nil
}

// lockMemberships takes the owner's membership rows for every group the
// attributions name, lowest group id first. Missing rows are left for
// checkAttribution to report.
func (l *Ledger) lockMemberships(ctx context.Context, ownerID string, attrs ...models.Attribution) error {
	ids := make([]int64, 0, len(attrs))
	for _, attr := range attrs {
		if groupID, ok := attr.GroupID(); ok {
			ids = append(ids, groupID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for i, id := range ids {
		if i > 0 && id == ids[i-1] {
			continue
		}
		_, err := l.store.LockMembership(ctx, ownerID, id)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("lock membership: %w", err)
		}
	}
	return nil
}

// applyGroupDeltas pushes non-zero deltas in group id order, the same order
// every transaction locks memberships in.
func (l *Ledger) applyGroupDeltas(ctx context.Context, ownerID string, deltas map[int64]decimal.Decimal) ([]events.GroupDelta, error) {
	ids := make([]int64, 0, len(deltas))
	for id, delta := range deltas {
		if !delta.IsZero() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	applied := make([]events.GroupDelta, 0, len(ids))
	for _, id := range ids {
		if err := l.memberships.ApplyDelta(ctx, ownerID, id, deltas[id]); err != nil {
			return nil, err
		}
		applied = append(applied, events.GroupDelta{GroupID: id, Delta: deltas[id]})
	}
	return applied, nil
}
