package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/sheikh-saqib/service-hours-ledger/internal/apperr"
	eventbus "github.com/sheikh-saqib/service-hours-ledger/internal/events"
	"github.com/sheikh-saqib/service-hours-ledger/internal/interfaces"
	"github.com/sheikh-saqib/service-hours-ledger/internal/ledger"
	"github.com/sheikh-saqib/service-hours-ledger/internal/logger"
	"github.com/sheikh-saqib/service-hours-ledger/internal/membership"
	"github.com/sheikh-saqib/service-hours-ledger/internal/models"
	"github.com/sheikh-saqib/service-hours-ledger/internal/models/events"
	"github.com/sheikh-saqib/service-hours-ledger/internal/storage"
)

// Manager guards membership changes that could orphan logged hours or leave
// a group without a supervisor, and runs the ordered cascades for removing
// groups and members.
type Manager struct {
	store        interfaces.Store
	memberships  *membership.Registry      // joins and leaves go through here
	ledger       *ledger.Ledger            // entry deletes unwind totals through here
	publisher    interfaces.EventPublisher // nil means events are dropped
	log          *logger.Logger
	maxGroupName int // runes
}

type Option func(*Manager)

func WithPublisher(p interfaces.EventPublisher) Option {
	return func(m *Manager) { m.publisher = p }
}

func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithMaxGroupName caps group names, counted in runes.
func WithMaxGroupName(n int) Option {
	return func(m *Manager) { m.maxGroupName = n }
}

func NewManager(store interfaces.Store, memberships *membership.Registry, l *ledger.Ledger, opts ...Option) *Manager {
	m := &Manager{
		store:        store,
		memberships:  memberships,
		ledger:       l,
		log:          logger.NewNop(),
		maxGroupName: 40,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Reconciliation reports what ReconcileMemberships changed. Retained lists
// locked groups that were kept although the request dropped them.
type Reconciliation struct {
	Joined   []int64
	Left     []int64
	Retained []int64
}

// LockedGroups returns the groups memberID may not leave, ascending.
func (m *Manager) LockedGroups(ctx context.Context, memberID string) ([]int64, error) {
	var locked []int64
	err := m.store.WithinTx(ctx, func(ctx context.Context) error {
		member, err := m.lockMember(ctx, memberID)
		if err != nil {
			return err
		}
		current, err := m.currentGroups(ctx, memberID)
		if err != nil {
			return err
		}
		set, err := m.lockedGroups(ctx, member, current)
		if err != nil {
			return err
		}
		locked = sortedIDs(set)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return locked, nil
}

// ReconcileMemberships moves memberID to the desired group set in one
// transaction. Locked groups stay even when the request omits them.
func (m *Manager) ReconcileMemberships(ctx context.Context, memberID string, desired []int64) (Reconciliation, error) {
	var result Reconciliation
	err := m.store.WithinTx(ctx, func(ctx context.Context) error {
		member, err := m.lockMember(ctx, memberID)
		if err != nil {
			return err
		}
		current, err := m.currentGroups(ctx, memberID)
		if err != nil {
			return err
		}
		locked, err := m.lockedGroups(ctx, member, current)
		if err != nil {
			return err
		}

		// Diff desired against current; locked groups never leave
		want := make(map[int64]struct{}, len(desired))
		for _, id := range desired {
			want[id] = struct{}{}
		}
		for _, id := range sortedIDs(want) {
			if _, ok := current[id]; !ok {
				result.Joined = append(result.Joined, id)
			}
		}
		for _, id := range sortedIDs(current) {
			if _, ok := want[id]; ok {
				continue
			}
			if _, ok := locked[id]; ok {
				result.Retained = append(result.Retained, id)
				continue
			}
			result.Left = append(result.Left, id)
		}

		// Apply joins before leaves so a failure rolls back both
		for _, id := range result.Joined {
			if err := m.memberships.Join(ctx, memberID, id, membership.InitialTotal(member.Role)); err != nil {
				return err
			}
		}
		for _, id := range result.Left {
			if err := m.memberships.Leave(ctx, memberID, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Reconciliation{}, err
	}
	if len(result.Retained) > 0 {
		m.log.WithMember(memberID).Info("kept locked groups in membership", "groups", result.Retained)
	}
	return result, nil
}

// Leave removes one membership unless the group is locked for the member.
func (m *Manager) Leave(ctx context.Context, memberID string, groupID int64) error {
	return m.store.WithinTx(ctx, func(ctx context.Context) error {
		member, err := m.lockMember(ctx, memberID)
		if err != nil {
			return err
		}
		// NotMember beats GroupLocked
		if _, err := m.memberships.Get(ctx, memberID, groupID); err != nil {
			return err
		}
		locked, err := m.lockedGroups(ctx, member, map[int64]struct{}{groupID: {}})
		if err != nil {
			return err
		}
		if _, ok := locked[groupID]; ok {
			return apperr.WithMetadata(apperr.CodeGroupLocked, "group cannot be left", map[string]string{
				"member_id": memberID,
				"group_id":  strconv.FormatInt(groupID, 10),
			})
		}
		return m.memberships.Leave(ctx, memberID, groupID)
	})
}

// RemoveFromGroup is the forced removal: the member's entries in the group
// are deleted, unwinding both totals, and then the membership goes.
func (m *Manager) RemoveFromGroup(ctx context.Context, memberID string, groupID int64) error {
	return m.store.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := m.memberships.Get(ctx, memberID, groupID); err != nil {
			return err
		}
		// Entries first, so the membership total unwinds to zero
		removed, err := m.deleteEntriesInGroup(ctx, memberID, groupID)
		if err != nil {
			return err
		}
		if err := m.memberships.Leave(ctx, memberID, groupID); err != nil {
			return err
		}
		m.log.WithMember(memberID).Audit("member removed from group", "group_id", groupID, "entries_deleted", removed)
		return nil
	})
}

// RemoveGroup deletes a group: each member's entries attributed to it, then
// each membership, then the group itself. Members are processed in the
// registry's stable order.
func (m *Manager) RemoveGroup(ctx context.Context, groupID int64) error {
	return m.store.WithinTx(ctx, func(ctx context.Context) error {
		group, err := m.store.LockGroup(ctx, groupID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return apperr.WithMetadata(apperr.CodeNotFound, "group not found", map[string]string{"group_id": strconv.FormatInt(groupID, 10)})
		case err != nil:
			return fmt.Errorf("lock group: %w", err)
		}

		// Registry order is stable: last name, first name, id
		members, err := m.memberships.ListMembersOf(ctx, groupID)
		if err != nil {
			return err
		}
		var removedEntries int
		for _, member := range members {
			// Only regular members own entries attributed to the group
			if member.Role == models.RoleRegular {
				n, err := m.deleteEntriesInGroup(ctx, member.ID, groupID)
				if err != nil {
					return err
				}
				removedEntries += n
			}
			if err := m.memberships.Leave(ctx, member.ID, groupID); err != nil {
				return err
			}
		}
		// Nothing references the group any more
		if err := m.store.DeleteGroup(ctx, groupID); err != nil {
			return fmt.Errorf("delete group: %w", err)
		}

		ev := events.New(events.GroupRemoved)
		ev.GroupID = groupID
		ev.Count = len(members)
		eventbus.PublishAfterCommit(ctx, m.store, m.publisher, m.log, ev)
		m.log.Audit("group removed", "group_id", groupID, "name", group.Name, "memberships", len(members), "entries_deleted", removedEntries)
		return nil
	})
}

// RemoveMember deletes every entry the member owns, clears entries naming
// them as supervisor, removes their memberships and finally the member.
func (m *Manager) RemoveMember(ctx context.Context, memberID string) error {
	return m.store.WithinTx(ctx, func(ctx context.Context) error {
		member, err := m.store.GetMember(ctx, memberID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return apperr.WithMetadata(apperr.CodeNotFound, "member not found", map[string]string{"member_id": memberID})
		case err != nil:
			return fmt.Errorf("get member: %w", err)
		}

		// Owned entries go through the ledger so both totals unwind
		entries, err := m.ledger.FindByOwner(ctx, memberID)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := m.ledger.Delete(ctx, entry.ID); err != nil {
				return err
			}
		}
		// Entries naming them as supervisor keep their hours
		detached, err := m.ledger.DetachSupervisor(ctx, memberID)
		if err != nil {
			return err
		}

		// Memberships next, then the member row itself
		groups, err := m.memberships.ListGroupsOf(ctx, memberID)
		if err != nil {
			return err
		}
		for _, g := range groups {
			if err := m.memberships.Leave(ctx, memberID, g.Group.ID); err != nil {
				return err
			}
			if member.Role.Supervisory() {
				m.warnIfUnsupervised(ctx, g.Group)
			}
		}

		err = m.store.DeleteMember(ctx, memberID)
		switch {
		case errors.Is(err, storage.ErrReferenced):
			return fmt.Errorf("delete member %s: still referenced: %w", memberID, err)
		case err != nil:
			return fmt.Errorf("delete member: %w", err)
		}

		ev := events.New(events.MemberRemoved)
		ev.MemberID = memberID
		ev.Count = len(entries)
		eventbus.PublishAfterCommit(ctx, m.store, m.publisher, m.log, ev)
		m.log.WithMember(memberID).Audit("member removed",
			"entries_deleted", len(entries), "entries_detached", detached, "memberships", len(groups))
		return nil
	})
}

func (m *Manager) warnIfUnsupervised(ctx context.Context, group models.Group) {
	supervisors, err := m.memberships.ListMembersOf(ctx, group.ID, models.SupervisoryRoles...)
	if err != nil || len(supervisors) > 0 {
		return
	}
	m.log.Warn("group left without a supervisor", "group_id", group.ID, "name", group.Name)
}

func (m *Manager) lockMember(ctx context.Context, memberID string) (models.Member, error) {
	member, err := m.store.LockMember(ctx, memberID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return models.Member{}, apperr.WithMetadata(apperr.CodeNotFound, "member not found", map[string]string{"member_id": memberID})
	case err != nil:
		return models.Member{}, fmt.Errorf("lock member: %w", err)
	}
	return member, nil
}

func (m *Manager) currentGroups(ctx context.Context, memberID string) (map[int64]struct{}, error) {
	groups, err := m.memberships.ListGroupsOf(ctx, memberID)
	if err != nil {
		return nil, err
	}
	set := make(map[int64]struct{}, len(groups))
	for _, g := range groups {
		set[g.Group.ID] = struct{}{}
	}
	return set, nil
}

// lockedGroups narrows groups to the ones member may not leave. A regular
// member is held by any entry attributed to the group; a supervisor or
// administrator by being the group's only supervisor. Groups are locked in
// id order before supervisors are counted.
func (m *Manager) lockedGroups(ctx context.Context, member models.Member, groups map[int64]struct{}) (map[int64]struct{}, error) {
	locked := make(map[int64]struct{})
	if !member.Role.Supervisory() {
		entries, err := m.ledger.FindByOwner(ctx, member.ID)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			groupID, ok := entry.Attribution.GroupID()
			if !ok {
				continue
			}
			if _, held := groups[groupID]; held {
				locked[groupID] = struct{}{}
			}
		}
		return locked, nil
	}

	// Lock each group so a concurrent leave cannot race the count
	for _, groupID := range sortedIDs(groups) {
		if _, err := m.store.LockGroup(ctx, groupID); err != nil {
			return nil, fmt.Errorf("lock group: %w", err)
		}
		supervisors, err := m.memberships.ListMembersOf(ctx, groupID, models.SupervisoryRoles...)
		if err != nil {
			return nil, err
		}
		if len(supervisors) <= 1 {
			locked[groupID] = struct{}{}
		}
	}
	return locked, nil
}

func (m *Manager) deleteEntriesInGroup(ctx context.Context, memberID string, groupID int64) (int, error) {
	entries, err := m.ledger.FindByOwnerInGroup(ctx, memberID, groupID)
	if err != nil {
		return 0, err
	}
	for _, entry := range entries {
		if err := m.ledger.Delete(ctx, entry.ID); err != nil {
			return 0, err
		}
	}
	return len(entries), nil
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
