package memory

import (
	"context" // request-scoped context, carries the open transaction
	"sort"
	"sync" // one writer lock guards all maps

	"github.com/shopspring/decimal"

	interfaces "github.com/sheikh-saqib/service-hours-ledger/internal/interfaces"
	"github.com/sheikh-saqib/service-hours-ledger/internal/models"
	"github.com/sheikh-saqib/service-hours-ledger/internal/storage"
)

type membershipKey struct {
	memberID string
	groupID  int64
}

type groupRecord struct {
	group models.Group
	key   string
}

// MemoryLedgerStore is an in-memory implementation of interfaces.Store.
// A transaction holds the writer lock for its whole duration and keeps an
// undo log that is replayed in reverse when it fails.
type MemoryLedgerStore struct {
	mu          sync.RWMutex
	members     map[string]models.Member
	emails      map[string]string // email -> member id
	groups      map[int64]groupRecord
	groupKeys   map[string]int64
	memberships map[membershipKey]models.Membership
	entries     map[int64]models.LedgerEntry
	tiers       []models.AwardTier
	lastGroupID int64
	lastEntryID int64
}

// NewMemoryLedgerStore creates and returns an empty MemoryLedgerStore.
func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		members:     make(map[string]models.Member),
		emails:      make(map[string]string),
		groups:      make(map[int64]groupRecord),
		groupKeys:   make(map[string]int64),
		memberships: make(map[membershipKey]models.Membership),
		entries:     make(map[int64]models.LedgerEntry),
	}
}

type txKey struct{}

type memTx struct {
	store       *MemoryLedgerStore
	undo        []func()
	afterCommit []func()
}

func (tx *memTx) onRollback(fn func()) {
	tx.undo = append(tx.undo, fn)
}

func (tx *memTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

// remember records how to restore mp[k] to its current state.
func remember[K comparable, V any](tx *memTx, mp map[K]V, k K) {
	prev, existed := mp[k]
	tx.onRollback(func() {
		if existed {
			mp[k] = prev
		} else {
			delete(mp, k)
		}
	})
}

func (m *MemoryLedgerStore) txFrom(ctx context.Context) (*memTx, bool) {
	tx, ok := ctx.Value(txKey{}).(*memTx)
	if !ok || tx.store != m {
		return nil, false
	}
	return tx, true
}

// WithinTx runs fn while holding the writer lock. Any error, panic or
// context cancellation rolls every change back.
func (m *MemoryLedgerStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := m.txFrom(ctx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{store: m}
	committed := false

	m.mu.Lock()
	defer func() {
		if !committed {
			tx.rollback()
		}
		m.mu.Unlock()
		if committed {
			for _, fn := range tx.afterCommit {
				fn()
			}
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	committed = true
	return nil
}

// AfterCommit queues fn behind the open transaction, or runs it now.
func (m *MemoryLedgerStore) AfterCommit(ctx context.Context, fn func()) {
	if tx, ok := m.txFrom(ctx); ok {
		tx.afterCommit = append(tx.afterCommit, fn)
		return
	}
	fn()
}

func (m *MemoryLedgerStore) Ping(ctx context.Context) error { return ctx.Err() }

func (m *MemoryLedgerStore) Close() error { return nil }

// write runs a single mutation, inside the caller's transaction when there
// is one, otherwise in its own.
func (m *MemoryLedgerStore) write(ctx context.Context, fn func(tx *memTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if tx, ok := m.txFrom(ctx); ok {
		return fn(tx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{store: m}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (m *MemoryLedgerStore) read(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := m.txFrom(ctx); ok {
		fn()
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn()
	return nil
}

// Members

func (m *MemoryLedgerStore) CreateMember(ctx context.Context, member models.Member) error {
	return m.write(ctx, func(tx *memTx) error {
		// id and email are both unique, as in the SQL schema
		if _, exists := m.members[member.ID]; exists {
			return storage.ErrAlreadyExists
		}
		if _, taken := m.emails[member.Email]; taken {
			return storage.ErrAlreadyExists
		}
		remember(tx, m.members, member.ID)
		remember(tx, m.emails, member.Email)
		m.members[member.ID] = member
		m.emails[member.Email] = member.ID
		return nil
	})
}

func (m *MemoryLedgerStore) GetMember(ctx context.Context, id string) (models.Member, error) {
	var (
		member models.Member
		ok     bool
	)
	if err := m.read(ctx, func() { member, ok = m.members[id] }); err != nil {
		return models.Member{}, err
	}
	if !ok {
		return models.Member{}, storage.ErrNotFound
	}
	return member, nil
}

func (m *MemoryLedgerStore) GetMemberByEmail(ctx context.Context, email string) (models.Member, error) {
	var (
		member models.Member
		ok     bool
	)
	err := m.read(ctx, func() {
		var id string
		if id, ok = m.emails[email]; ok {
			member = m.members[id]
		}
	})
	if err != nil {
		return models.Member{}, err
	}
	if !ok {
		return models.Member{}, storage.ErrNotFound
	}
	return member, nil
}

// LockMember is GetMember: the writer lock already serializes transactions.
func (m *MemoryLedgerStore) LockMember(ctx context.Context, id string) (models.Member, error) {
	return m.GetMember(ctx, id)
}

func (m *MemoryLedgerStore) UpdateMemberProfile(ctx context.Context, id, firstName, lastName, photo string) error {
	return m.write(ctx, func(tx *memTx) error {
		member, ok := m.members[id]
		if !ok {
			return storage.ErrNotFound
		}
		remember(tx, m.members, id)
		member.FirstName, member.LastName, member.Photo = firstName, lastName, photo
		m.members[id] = member
		return nil
	})
}

func (m *MemoryLedgerStore) SetMemberTotal(ctx context.Context, id string, total decimal.NullDecimal) error {
	return m.write(ctx, func(tx *memTx) error {
		member, ok := m.members[id]
		if !ok {
			return storage.ErrNotFound
		}
		remember(tx, m.members, id)
		member.Total = total
		m.members[id] = member
		return nil
	})
}

func (m *MemoryLedgerStore) DeleteMember(ctx context.Context, id string) error {
	return m.write(ctx, func(tx *memTx) error {
		if _, ok := m.members[id]; !ok {
			return storage.ErrNotFound
		}
		for key := range m.memberships {
			if key.memberID == id {
				return storage.ErrReferenced
			}
		}
		for _, e := range m.entries {
			if supervisor, ok := e.Attribution.SupervisorID(); e.OwnerID == id || (ok && supervisor == id) {
				return storage.ErrReferenced
			}
		}
		member := m.members[id]
		remember(tx, m.members, id)
		remember(tx, m.emails, member.Email)
		delete(m.members, id)
		delete(m.emails, member.Email)
		return nil
	})
}

func (m *MemoryLedgerStore) ListMembers(ctx context.Context) ([]models.Member, error) {
	var result []models.Member
	err := m.read(ctx, func() {
		for _, member := range m.members {
			result = append(result, member)
		}
	})
	sortMembers(result)
	return result, err
}

// Groups

func (m *MemoryLedgerStore) CreateGroup(ctx context.Context, name, nameKey string) (models.Group, error) {
	var group models.Group
	err := m.write(ctx, func(tx *memTx) error {
		if _, taken := m.groupKeys[nameKey]; taken {
			return storage.ErrAlreadyExists
		}
		m.lastGroupID++
		group = models.Group{ID: m.lastGroupID, Name: name}
		remember(tx, m.groups, group.ID)
		remember(tx, m.groupKeys, nameKey)
		m.groups[group.ID] = groupRecord{group: group, key: nameKey}
		m.groupKeys[nameKey] = group.ID
		return nil
	})
	if err != nil {
		return models.Group{}, err
	}
	return group, nil
}

func (m *MemoryLedgerStore) GetGroup(ctx context.Context, id int64) (models.Group, error) {
	var (
		record groupRecord
		ok     bool
	)
	if err := m.read(ctx, func() { record, ok = m.groups[id] }); err != nil {
		return models.Group{}, err
	}
	if !ok {
		return models.Group{}, storage.ErrNotFound
	}
	return record.group, nil
}

func (m *MemoryLedgerStore) LockGroup(ctx context.Context, id int64) (models.Group, error) {
	return m.GetGroup(ctx, id)
}

func (m *MemoryLedgerStore) DeleteGroup(ctx context.Context, id int64) error {
	return m.write(ctx, func(tx *memTx) error {
		record, ok := m.groups[id]
		if !ok {
			return storage.ErrNotFound
		}
		for key := range m.memberships {
			if key.groupID == id {
				return storage.ErrReferenced
			}
		}
		for _, e := range m.entries {
			if groupID, ok := e.Attribution.GroupID(); ok && groupID == id {
				return storage.ErrReferenced
			}
		}
		remember(tx, m.groups, id)
		remember(tx, m.groupKeys, record.key)
		delete(m.groups, id)
		delete(m.groupKeys, record.key)
		return nil
	})
}

func (m *MemoryLedgerStore) ListGroups(ctx context.Context) ([]models.Group, error) {
	var result []models.Group
	err := m.read(ctx, func() {
		for _, record := range m.groups {
			result = append(result, record.group)
		}
	})
	sort.Slice(result, func(i, j int) bool { return groupLess(result[i], result[j]) })
	return result, err
}

// Memberships

func (m *MemoryLedgerStore) CreateMembership(ctx context.Context, membership models.Membership) error {
	return m.write(ctx, func(tx *memTx) error {
		if _, ok := m.members[membership.MemberID]; !ok {
			return storage.ErrNotFound
		}
		if _, ok := m.groups[membership.GroupID]; !ok {
			return storage.ErrNotFound
		}
		key := membershipKey{membership.MemberID, membership.GroupID}
		if _, exists := m.memberships[key]; exists {
			return storage.ErrAlreadyExists
		}
		remember(tx, m.memberships, key)
		m.memberships[key] = membership
		return nil
	})
}

func (m *MemoryLedgerStore) GetMembership(ctx context.Context, memberID string, groupID int64) (models.Membership, error) {
	var (
		membership models.Membership
		ok         bool
	)
	if err := m.read(ctx, func() { membership, ok = m.memberships[membershipKey{memberID, groupID}] }); err != nil {
		return models.Membership{}, err
	}
	if !ok {
		return models.Membership{}, storage.ErrNotFound
	}
	return membership, nil
}

func (m *MemoryLedgerStore) LockMembership(ctx context.Context, memberID string, groupID int64) (models.Membership, error) {
	return m.GetMembership(ctx, memberID, groupID)
}

func (m *MemoryLedgerStore) SetMembershipTotal(ctx context.Context, memberID string, groupID int64, total decimal.NullDecimal) error {
	return m.write(ctx, func(tx *memTx) error {
		key := membershipKey{memberID, groupID}
		membership, ok := m.memberships[key]
		if !ok {
			return storage.ErrNotFound
		}
		remember(tx, m.memberships, key)
		membership.Total = total
		m.memberships[key] = membership
		return nil
	})
}

func (m *MemoryLedgerStore) DeleteMembership(ctx context.Context, memberID string, groupID int64) error {
	return m.write(ctx, func(tx *memTx) error {
		key := membershipKey{memberID, groupID}
		if _, ok := m.memberships[key]; !ok {
			return storage.ErrNotFound
		}
		remember(tx, m.memberships, key)
		delete(m.memberships, key)
		return nil
	})
}

func (m *MemoryLedgerStore) ListGroupsOfMember(ctx context.Context, memberID string) ([]models.GroupTotal, error) {
	var result []models.GroupTotal
	err := m.read(ctx, func() {
		for key, membership := range m.memberships {
			if key.memberID != memberID {
				continue
			}
			result = append(result, models.GroupTotal{Group: m.groups[key.groupID].group, Total: membership.Total})
		}
	})
	sort.Slice(result, func(i, j int) bool { return groupLess(result[i].Group, result[j].Group) })
	return result, err
}

func (m *MemoryLedgerStore) ListMembersOfGroup(ctx context.Context, groupID int64, roles []models.Role) ([]models.Member, error) {
	var result []models.Member
	err := m.read(ctx, func() {
		for key := range m.memberships {
			if key.groupID != groupID {
				continue
			}
			member := m.members[key.memberID]
			if len(roles) == 0 || hasRole(roles, member.Role) {
				result = append(result, member)
			}
		}
	})
	sortMembers(result)
	return result, err
}

func (m *MemoryLedgerStore) ListMemberships(ctx context.Context) ([]models.Membership, error) {
	var result []models.Membership
	err := m.read(ctx, func() {
		for _, membership := range m.memberships {
			result = append(result, membership)
		}
	})
	sort.Slice(result, func(i, j int) bool {
		if result[i].MemberID != result[j].MemberID {
			return result[i].MemberID < result[j].MemberID
		}
		return result[i].GroupID < result[j].GroupID
	})
	return result, err
}

// Entries

func (m *MemoryLedgerStore) checkEntryRefs(entry models.LedgerEntry) error {
	if _, ok := m.members[entry.OwnerID]; !ok {
		return storage.ErrNotFound
	}
	if groupID, ok := entry.Attribution.GroupID(); ok {
		if _, ok := m.groups[groupID]; !ok {
			return storage.ErrNotFound
		}
	}
	if supervisorID, ok := entry.Attribution.SupervisorID(); ok {
		if _, ok := m.members[supervisorID]; !ok {
			return storage.ErrNotFound
		}
	}
	return nil
}

func (m *MemoryLedgerStore) CreateEntry(ctx context.Context, entry models.LedgerEntry) (int64, error) {
	var id int64
	err := m.write(ctx, func(tx *memTx) error {
		if err := m.checkEntryRefs(entry); err != nil {
			return err
		}
		// ids are never handed out twice, even after a rollback
		m.lastEntryID++
		id = m.lastEntryID
		entry.ID = id
		remember(tx, m.entries, id)
		m.entries[id] = entry
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (m *MemoryLedgerStore) GetEntry(ctx context.Context, id int64) (models.LedgerEntry, error) {
	var (
		entry models.LedgerEntry
		ok    bool
	)
	if err := m.read(ctx, func() { entry, ok = m.entries[id] }); err != nil {
		return models.LedgerEntry{}, err
	}
	if !ok {
		return models.LedgerEntry{}, storage.ErrNotFound
	}
	return entry, nil
}

func (m *MemoryLedgerStore) LockEntry(ctx context.Context, id int64) (models.LedgerEntry, error) {
	return m.GetEntry(ctx, id)
}

func (m *MemoryLedgerStore) UpdateEntry(ctx context.Context, entry models.LedgerEntry) error {
	return m.write(ctx, func(tx *memTx) error {
		if _, ok := m.entries[entry.ID]; !ok {
			return storage.ErrNotFound
		}
		if err := m.checkEntryRefs(entry); err != nil {
			return err
		}
		remember(tx, m.entries, entry.ID)
		m.entries[entry.ID] = entry
		return nil
	})
}

func (m *MemoryLedgerStore) DeleteEntry(ctx context.Context, id int64) error {
	return m.write(ctx, func(tx *memTx) error {
		if _, ok := m.entries[id]; !ok {
			return storage.ErrNotFound
		}
		remember(tx, m.entries, id)
		delete(m.entries, id)
		return nil
	})
}

func (m *MemoryLedgerStore) listEntries(ctx context.Context, keep func(models.LedgerEntry) bool) ([]models.LedgerEntry, error) {
	var result []models.LedgerEntry
	err := m.read(ctx, func() {
		for _, e := range m.entries {
			if keep(e) {
				result = append(result, e)
			}
		}
	})
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, err
}

func (m *MemoryLedgerStore) ListEntriesByOwner(ctx context.Context, ownerID string) ([]models.LedgerEntry, error) {
	return m.listEntries(ctx, func(e models.LedgerEntry) bool { return e.OwnerID == ownerID })
}

func (m *MemoryLedgerStore) ListEntriesByOwnerInGroup(ctx context.Context, ownerID string, groupID int64) ([]models.LedgerEntry, error) {
	return m.listEntries(ctx, func(e models.LedgerEntry) bool {
		id, ok := e.Attribution.GroupID()
		return e.OwnerID == ownerID && ok && id == groupID
	})
}

func (m *MemoryLedgerStore) ListEntriesBySupervisor(ctx context.Context, supervisorID string) ([]models.LedgerEntry, error) {
	return m.listEntries(ctx, func(e models.LedgerEntry) bool {
		id, ok := e.Attribution.SupervisorID()
		return ok && id == supervisorID
	})
}

func (m *MemoryLedgerStore) ListEntries(ctx context.Context) ([]models.LedgerEntry, error) {
	return m.listEntries(ctx, func(models.LedgerEntry) bool { return true })
}

// Award tiers

func (m *MemoryLedgerStore) ReplaceAwardTiers(ctx context.Context, tiers []models.AwardTier) error {
	return m.write(ctx, func(tx *memTx) error {
		prev := m.tiers
		tx.onRollback(func() { m.tiers = prev })
		copied := make([]models.AwardTier, len(tiers))
		copy(copied, tiers)
		sortTiers(copied)
		m.tiers = copied
		return nil
	})
}

func (m *MemoryLedgerStore) ListAwardTiers(ctx context.Context) ([]models.AwardTier, error) {
	var copied []models.AwardTier
	err := m.read(ctx, func() {
		copied = make([]models.AwardTier, len(m.tiers))
		copy(copied, m.tiers)
	})
	return copied, err
}

func hasRole(roles []models.Role, role models.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func groupLess(a, b models.Group) bool {
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.ID < b.ID
}

func sortMembers(members []models.Member) {
	sort.Slice(members, func(i, j int) bool {
		a, b := members[i], members[j]
		if a.LastName != b.LastName {
			return a.LastName < b.LastName
		}
		if a.FirstName != b.FirstName {
			return a.FirstName < b.FirstName
		}
		return a.ID < b.ID
	})
}

func sortTiers(tiers []models.AwardTier) {
	sort.SliceStable(tiers, func(i, j int) bool {
		if c := tiers[i].Threshold.Cmp(tiers[j].Threshold); c != 0 {
			return c < 0
		}
		return tiers[i].ID < tiers[j].ID
	})
}

// Compile-time check: ensure MemoryLedgerStore implements the Store interface
var _ interfaces.Store = (*MemoryLedgerStore)(nil)
