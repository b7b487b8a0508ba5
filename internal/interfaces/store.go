package interfaces

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/service-hours-ledger/internal/models"
)

// Store is the durable record store. Every method takes the context so
// that calls made inside WithinTx run in that transaction.
type Store interface {
	// WithinTx runs fn in one transaction. Nested calls join the outer one.
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	// AfterCommit defers fn until the outermost transaction commits, or
	// runs it immediately outside a transaction.
	AfterCommit(ctx context.Context, fn func())
	Ping(ctx context.Context) error
	Close() error

	MemberStore
	GroupStore
	MembershipStore
	EntryStore
	AwardStore
}

type MemberStore interface {
	CreateMember(ctx context.Context, member models.Member) error
	GetMember(ctx context.Context, id string) (models.Member, error)
	// GetMemberByEmail matches the stored email exactly. Emails are unique.
	GetMemberByEmail(ctx context.Context, email string) (models.Member, error)
	// LockMember reads a member and holds its row until the transaction ends.
	LockMember(ctx context.Context, id string) (models.Member, error)
	UpdateMemberProfile(ctx context.Context, id, firstName, lastName, photo string) error
	SetMemberTotal(ctx context.Context, id string, total decimal.NullDecimal) error
	DeleteMember(ctx context.Context, id string) error
	ListMembers(ctx context.Context) ([]models.Member, error)
}

type GroupStore interface {
	// CreateGroup inserts a group. nameKey is the normalized name used for uniqueness.
	CreateGroup(ctx context.Context, name, nameKey string) (models.Group, error)
	GetGroup(ctx context.Context, id int64) (models.Group, error)
	LockGroup(ctx context.Context, id int64) (models.Group, error)
	DeleteGroup(ctx context.Context, id int64) error
	ListGroups(ctx context.Context) ([]models.Group, error)
}

type MembershipStore interface {
	CreateMembership(ctx context.Context, membership models.Membership) error
	GetMembership(ctx context.Context, memberID string, groupID int64) (models.Membership, error)
	LockMembership(ctx context.Context, memberID string, groupID int64) (models.Membership, error)
	SetMembershipTotal(ctx context.Context, memberID string, groupID int64, total decimal.NullDecimal) error
	DeleteMembership(ctx context.Context, memberID string, groupID int64) error
	// ListGroupsOfMember is ordered by group name, then id.
	ListGroupsOfMember(ctx context.Context, memberID string) ([]models.GroupTotal, error)
	// ListMembersOfGroup is ordered by last name, first name, then id.
	// An empty roles slice means every role.
	ListMembersOfGroup(ctx context.Context, groupID int64, roles []models.Role) ([]models.Member, error)
	ListMemberships(ctx context.Context) ([]models.Membership, error)
}

// EntryStore lists are ordered by entry id.
type EntryStore interface {
	CreateEntry(ctx context.Context, entry models.LedgerEntry) (int64, error)
	GetEntry(ctx context.Context, id int64) (models.LedgerEntry, error)
	LockEntry(ctx context.Context, id int64) (models.LedgerEntry, error)
	UpdateEntry(ctx context.Context, entry models.LedgerEntry) error
	DeleteEntry(ctx context.Context, id int64) error
	ListEntriesByOwner(ctx context.Context, ownerID string) ([]models.LedgerEntry, error)
	ListEntriesByOwnerInGroup(ctx context.Context, ownerID string, groupID int64) ([]models.LedgerEntry, error)
	ListEntriesBySupervisor(ctx context.Context, supervisorID string) ([]models.LedgerEntry, error)
	ListEntries(ctx context.Context) ([]models.LedgerEntry, error)
}

type AwardStore interface {
	ReplaceAwardTiers(ctx context.Context, tiers []models.AwardTier) error
	// ListAwardTiers is ordered by threshold, then id.
	ListAwardTiers(ctx context.Context) ([]models.AwardTier, error)
}
