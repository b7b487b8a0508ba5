package membership

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/service-hours-ledger/internal/apperr"
	eventbus "github.com/sheikh-saqib/service-hours-ledger/internal/events"
	"github.com/sheikh-saqib/service-hours-ledger/internal/interfaces"
	"github.com/sheikh-saqib/service-hours-ledger/internal/logger"
	"github.com/sheikh-saqib/service-hours-ledger/internal/models"
	"github.com/sheikh-saqib/service-hours-ledger/internal/models/events"
	"github.com/sheikh-saqib/service-hours-ledger/internal/storage"
)

// Registry owns membership records and their cached totals.
type Registry struct {
	store     interfaces.Store          // membership rows and the transaction they join
	publisher interfaces.EventPublisher // nil means events are dropped
	log       *logger.Logger
}

type Option func(*Registry)

func WithPublisher(p interfaces.EventPublisher) Option {
	return func(r *Registry) { r.publisher = p }
}

func WithLogger(l *logger.Logger) Option {
	return func(r *Registry) { r.log = l }
}

func NewRegistry(store interfaces.Store, opts ...Option) *Registry {
	r := &Registry{store: store, log: logger.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// InitialTotal is the starting membership total for a member of role:
// zero for regular members, untracked for everyone else.
func InitialTotal(role models.Role) decimal.NullDecimal {
	if role == models.RoleRegular {
		return decimal.NewNullDecimal(decimal.Zero)
	}
	return decimal.NullDecimal{}
}

func meta(memberID string, groupID int64) map[string]string {
	return map[string]string{"member_id": memberID, "group_id": strconv.FormatInt(groupID, 10)}
}

// Join creates the membership with the given starting total.
func (r *Registry) Join(ctx context.Context, memberID string, groupID int64, initialTotal decimal.NullDecimal) error {
	// The store reports a missing member or group as ErrNotFound
	err := r.store.CreateMembership(ctx, models.Membership{MemberID: memberID, GroupID: groupID, Total: initialTotal})
	switch {
	case errors.Is(err, storage.ErrAlreadyExists):
		return apperr.WithMetadata(apperr.CodeAlreadyMember, "member already belongs to group", meta(memberID, groupID))
	case errors.Is(err, storage.ErrNotFound):
		return apperr.WithMetadata(apperr.CodeNotFound, "member or group not found", meta(memberID, groupID))
	case err != nil:
		return fmt.Errorf("create membership: %w", err)
	}

	// Announce only once the surrounding transaction commits
	ev := events.New(events.MembershipJoined)
	ev.MemberID = memberID
	ev.GroupID = groupID
	eventbus.PublishAfterCommit(ctx, r.store, r.publisher, r.log, ev)
	r.log.WithMember(memberID).Audit("membership joined", "group_id", groupID, "tracked", initialTotal.Valid)
	return nil
}

// Leave deletes the membership unconditionally. Callers decide whether
// leaving is safe.
func (r *Registry) Leave(ctx context.Context, memberID string, groupID int64) error {
	err := r.store.DeleteMembership(ctx, memberID, groupID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return apperr.WithMetadata(apperr.CodeNotMember, "member does not belong to group", meta(memberID, groupID))
	case err != nil:
		return fmt.Errorf("delete membership: %w", err)
	}

	ev := events.New(events.MembershipLeft)
	ev.MemberID = memberID
	ev.GroupID = groupID
	eventbus.PublishAfterCommit(ctx, r.store, r.publisher, r.log, ev)
	r.log.WithMember(memberID).Audit("membership left", "group_id", groupID)
	return nil
}

// ApplyDelta adds delta to the membership total under a row lock.
func (r *Registry) ApplyDelta(ctx context.Context, memberID string, groupID int64, delta decimal.Decimal) error {
	return r.store.WithinTx(ctx, func(ctx context.Context) error {
		current, err := r.store.LockMembership(ctx, memberID, groupID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return apperr.WithMetadata(apperr.CodeNotMember, "member does not belong to group", meta(memberID, groupID))
		case err != nil:
			return fmt.Errorf("lock membership: %w", err)
		}
		// Supervisors and administrators carry no total to adjust
		if !current.Total.Valid {
			return apperr.WithMetadata(apperr.CodeUntrackedTotal, "membership total is not tracked", meta(memberID, groupID))
		}
		// Signed delta: positive on add, negative on reversal
		total := decimal.NewNullDecimal(current.Total.Decimal.Add(delta))
		if err := r.store.SetMembershipTotal(ctx, memberID, groupID, total); err != nil {
			return fmt.Errorf("set membership total: %w", err)
		}
		return nil
	})
}

// Get returns one membership.
func (r *Registry) Get(ctx context.Context, memberID string, groupID int64) (models.Membership, error) {
	m, err := r.store.GetMembership(ctx, memberID, groupID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return models.Membership{}, apperr.WithMetadata(apperr.CodeNotMember, "member does not belong to group", meta(memberID, groupID))
	case err != nil:
		return models.Membership{}, fmt.Errorf("get membership: %w", err)
	}
	return m, nil
}

// ListGroupsOf returns the member's groups with their membership totals,
// ordered by group name.
func (r *Registry) ListGroupsOf(ctx context.Context, memberID string) ([]models.GroupTotal, error) {
	// Distinguish an unknown member from one with no groups
	if _, err := r.store.GetMember(ctx, memberID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.WithMetadata(apperr.CodeNotFound, "member not found", map[string]string{"member_id": memberID})
		}
		return nil, fmt.Errorf("get member: %w", err)
	}
	groups, err := r.store.ListGroupsOfMember(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("list groups of member: %w", err)
	}
	return groups, nil
}

// ListMembersOf returns the group's members holding any of roles, or every
// member when roles is empty.
func (r *Registry) ListMembersOf(ctx context.Context, groupID int64, roles ...models.Role) ([]models.Member, error) {
	// Distinguish an unknown group from an empty one
	if _, err := r.store.GetGroup(ctx, groupID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.WithMetadata(apperr.CodeNotFound, "group not found", map[string]string{"group_id": strconv.FormatInt(groupID, 10)})
		}
		return nil, fmt.Errorf("get group: %w", err)
	}
	members, err := r.store.ListMembersOfGroup(ctx, groupID, roles)
	if err != nil {
		return nil, fmt.Errorf("list members of group: %w", err)
	}
	return members, nil
}
