// Package sqlstore implements interfaces.Store on database/sql. The postgres
// and sqlite packages supply the driver, schema and dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	interfaces "github.com/sheikh-saqib/service-hours-ledger/internal/interfaces"
	"github.com/sheikh-saqib/service-hours-ledger/internal/models"
	"github.com/sheikh-saqib/service-hours-ledger/internal/storage"
)

const dateLayout = "2006-01-02"

// Dialect captures what differs between SQL backends.
type Dialect struct {
	Name string
	// Rebind rewrites ? placeholders for the driver.
	Rebind func(query string) string
	// LockSuffix is appended to single-row reads made inside a transaction.
	LockSuffix            string
	IsUniqueViolation     func(err error) bool
	IsForeignKeyViolation func(err error) bool
}

// RebindDollar rewrites ? placeholders as $1, $2, ...
func RebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// RebindQuestion leaves ? placeholders untouched.
func RebindQuestion(query string) string { return query }

// Store persists ledger state through database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps an open database handle. Migrations must already be applied.
func New(db *sql.DB, dialect Dialect) *Store {
	if dialect.Rebind == nil {
		dialect.Rebind = RebindQuestion
	}
	if dialect.IsUniqueViolation == nil {
		dialect.IsUniqueViolation = func(error) bool { return false }
	}
	if dialect.IsForeignKeyViolation == nil {
		dialect.IsForeignKeyViolation = func(error) bool { return false }
	}
	return &Store{db: db, dialect: dialect}
}

// DB exposes the underlying handle for health checks and tests.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

type txKey struct{ store *Store }

type txState struct {
	tx          *sql.Tx
	afterCommit []func()
}

func (s *Store) txFrom(ctx context.Context) (*txState, bool) {
	state, ok := ctx.Value(txKey{s}).(*txState)
	return state, ok
}

func (s *Store) conn(ctx context.Context) querier {
	if state, ok := s.txFrom(ctx); ok {
		return state.tx
	}
	return s.db
}

func (s *Store) lockSuffix(ctx context.Context) string {
	if _, ok := s.txFrom(ctx); ok {
		return s.dialect.LockSuffix
	}
	return ""
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.conn(ctx).ExecContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.conn(ctx).QueryContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.conn(ctx).QueryRowContext(ctx, s.dialect.Rebind(query), args...)
}

// WithinTx runs fn in a database transaction; nested calls join it.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := s.txFrom(ctx); ok {
		return fn(ctx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	state := &txState{tx: tx}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{s}, state)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	for _, hook := range state.afterCommit {
		hook()
	}
	return nil
}

// AfterCommit queues fn behind the open transaction, or runs it now.
func (s *Store) AfterCommit(ctx context.Context, fn func()) {
	if state, ok := s.txFrom(ctx); ok {
		state.afterCommit = append(state.afterCommit, fn)
		return
	}
	fn()
}

func affectedOne(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Members

const memberColumns = `id, first_name, last_name, email, cohort, role, photo, total`

func scanMember(row scanner) (models.Member, error) {
	var (
		member models.Member
		role   int
	)
	if err := row.Scan(
		&member.ID,
		&member.FirstName,
		&member.LastName,
		&member.Email,
		&member.Cohort,
		&role,
		&member.Photo,
		&member.Total,
	); err != nil {
		return models.Member{}, err
	}
	member.Role = models.Role(role)
	return member, nil
}

func (s *Store) CreateMember(ctx context.Context, member models.Member) error {
	_, err := s.exec(ctx,
		`INSERT INTO members (`+memberColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		member.ID,
		member.FirstName,
		member.LastName,
		member.Email,
		member.Cohort,
		int(member.Role),
		member.Photo,
		member.Total,
	)
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create member: %w", err)
	}
	return nil
}

func (s *Store) getMember(ctx context.Context, id string, suffix string) (models.Member, error) {
	row := s.queryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE id = ?`+suffix, id)
	member, err := scanMember(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Member{}, storage.ErrNotFound
		}
		return models.Member{}, fmt.Errorf("get member: %w", err)
	}
	return member, nil
}

func (s *Store) GetMember(ctx context.Context, id string) (models.Member, error) {
	return s.getMember(ctx, id, "")
}

func (s *Store) GetMemberByEmail(ctx context.Context, email string) (models.Member, error) {
	row := s.queryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE email = ?`, email)
	member, err := scanMember(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Member{}, storage.ErrNotFound
		}
		return models.Member{}, fmt.Errorf("get member by email: %w", err)
	}
	return member, nil
}

func (s *Store) LockMember(ctx context.Context, id string) (models.Member, error) {
	return s.getMember(ctx, id, s.lockSuffix(ctx))
}

func (s *Store) UpdateMemberProfile(ctx context.Context, id, firstName, lastName, photo string) error {
	result, err := s.exec(ctx,
		`UPDATE members SET first_name = ?, last_name = ?, photo = ? WHERE id = ?`,
		firstName, lastName, photo, id,
	)
	if err != nil {
		return fmt.Errorf("update member profile: %w", err)
	}
	return affectedOne(result)
}

func (s *Store) SetMemberTotal(ctx context.Context, id string, total decimal.NullDecimal) error {
	result, err := s.exec(ctx, `UPDATE members SET total = ? WHERE id = ?`, total, id)
	if err != nil {
		return fmt.Errorf("set member total: %w", err)
	}
	return affectedOne(result)
}

func (s *Store) DeleteMember(ctx context.Context, id string) error {
	result, err := s.exec(ctx, `DELETE FROM members WHERE id = ?`, id)
	if err != nil {
		if s.dialect.IsForeignKeyViolation(err) {
			return storage.ErrReferenced
		}
		return fmt.Errorf("delete member: %w", err)
	}
	return affectedOne(result)
}

func (s *Store) listMembers(ctx context.Context, query string, args ...any) ([]models.Member, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []models.Member
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("list members: %w", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

func (s *Store) ListMembers(ctx context.Context) ([]models.Member, error) {
	return s.listMembers(ctx, `SELECT `+memberColumns+` FROM members ORDER BY last_name, first_name, id`)
}

// Groups

func (s *Store) CreateGroup(ctx context.Context, name, nameKey string) (models.Group, error) {
	var id int64
	err := s.queryRow(ctx,
		`INSERT INTO member_groups (name, name_key) VALUES (?, ?) RETURNING id`,
		name, nameKey,
	).Scan(&id)
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return models.Group{}, storage.ErrAlreadyExists
		}
		return models.Group{}, fmt.Errorf("create group: %w", err)
	}
	return models.Group{ID: id, Name: name}, nil
}

func (s *Store) getGroup(ctx context.Context, id int64, suffix string) (models.Group, error) {
	var group models.Group
	err := s.queryRow(ctx, `SELECT id, name FROM member_groups WHERE id = ?`+suffix, id).Scan(&group.ID, &group.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Group{}, storage.ErrNotFound
		}
		return models.Group{}, fmt.Errorf("get group: %w", err)
	}
	return group, nil
}

func (s *Store) GetGroup(ctx context.Context, id int64) (models.Group, error) {
	return s.getGroup(ctx, id, "")
}

func (s *Store) LockGroup(ctx context.Context, id int64) (models.Group, error) {
	return s.getGroup(ctx, id, s.lockSuffix(ctx))
}

func (s *Store) DeleteGroup(ctx context.Context, id int64) error {
	result, err := s.exec(ctx, `DELETE FROM member_groups WHERE id = ?`, id)
	if err != nil {
		if s.dialect.IsForeignKeyViolation(err) {
			return storage.ErrReferenced
		}
		return fmt.Errorf("delete group: %w", err)
	}
	return affectedOne(result)
}

func (s *Store) ListGroups(ctx context.Context) ([]models.Group, error) {
	rows, err := s.query(ctx, `SELECT id, name FROM member_groups ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []models.Group
	for rows.Next() {
		var group models.Group
		if err := rows.Scan(&group.ID, &group.Name); err != nil {
			return nil, fmt.Errorf("list groups: %w", err)
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

// Memberships

func (s *Store) CreateMembership(ctx context.Context, membership models.Membership) error {
	_, err := s.exec(ctx,
		`INSERT INTO memberships (member_id, group_id, total) VALUES (?, ?, ?)`,
		membership.MemberID, membership.GroupID, membership.Total,
	)
	if err != nil {
		switch {
		case s.dialect.IsUniqueViolation(err):
			return storage.ErrAlreadyExists
		case s.dialect.IsForeignKeyViolation(err):
			return storage.ErrNotFound
		}
		return fmt.Errorf("create membership: %w", err)
	}
	return nil
}

func (s *Store) getMembership(ctx context.Context, memberID string, groupID int64, suffix string) (models.Membership, error) {
	membership := models.Membership{MemberID: memberID, GroupID: groupID}
	err := s.queryRow(ctx,
		`SELECT total FROM memberships WHERE member_id = ? AND group_id = ?`+suffix,
		memberID, groupID,
	).Scan(&membership.Total)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Membership{}, storage.ErrNotFound
		}
		return models.Membership{}, fmt.Errorf("get membership: %w", err)
	}
	return membership, nil
}

func (s *Store) GetMembership(ctx context.Context, memberID string, groupID int64) (models.Membership, error) {
	return s.getMembership(ctx, memberID, groupID, "")
}

func (s *Store) LockMembership(ctx context.Context, memberID string, groupID int64) (models.Membership, error) {
	return s.getMembership(ctx, memberID, groupID, s.lockSuffix(ctx))
}

func (s *Store) SetMembershipTotal(ctx context.Context, memberID string, groupID int64, total decimal.NullDecimal) error {
	result, err := s.exec(ctx,
		`UPDATE memberships SET total = ? WHERE member_id = ? AND group_id = ?`,
		total, memberID, groupID,
	)
	if err != nil {
		return fmt.Errorf("set membership total: %w", err)
	}
	return affectedOne(result)
}

func (s *Store) DeleteMembership(ctx context.Context, memberID string, groupID int64) error {
	result, err := s.exec(ctx,
		`DELETE FROM memberships WHERE member_id = ? AND group_id = ?`,
		memberID, groupID,
	)
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	return affectedOne(result)
}

func (s *Store) ListGroupsOfMember(ctx context.Context, memberID string) ([]models.GroupTotal, error) {
	rows, err := s.query(ctx,
		`SELECT g.id, g.name, m.total
		   FROM memberships m
		   JOIN member_groups g ON g.id = m.group_id
		  WHERE m.member_id = ?
		  ORDER BY g.name, g.id`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("list groups of member: %w", err)
	}
	defer rows.Close()

	var result []models.GroupTotal
	for rows.Next() {
		var item models.GroupTotal
		if err := rows.Scan(&item.Group.ID, &item.Group.Name, &item.Total); err != nil {
			return nil, fmt.Errorf("list groups of member: %w", err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list groups of member: %w", err)
	}
	return result, nil
}

func (s *Store) ListMembersOfGroup(ctx context.Context, groupID int64, roles []models.Role) ([]models.Member, error) {
	query := `SELECT u.id, u.first_name, u.last_name, u.email, u.cohort, u.role, u.photo, u.total
	            FROM memberships m
	            JOIN members u ON u.id = m.member_id
	           WHERE m.group_id = ?`
	args := []any{groupID}
	if len(roles) > 0 {
		placeholders := make([]string, len(roles))
		for i, role := range roles {
			placeholders[i] = "?"
			args = append(args, int(role))
		}
		query += ` AND u.role IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY u.last_name, u.first_name, u.id`
	return s.listMembers(ctx, query, args...)
}

func (s *Store) ListMemberships(ctx context.Context) ([]models.Membership, error) {
	rows, err := s.query(ctx, `SELECT member_id, group_id, total FROM memberships ORDER BY member_id, group_id`)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var result []models.Membership
	for rows.Next() {
		var membership models.Membership
		if err := rows.Scan(&membership.MemberID, &membership.GroupID, &membership.Total); err != nil {
			return nil, fmt.Errorf("list memberships: %w", err)
		}
		result = append(result, membership)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return result, nil
}

// Entries

const entryColumns = `id, owner_id, group_id, supervisor_id, hours, description, entry_date, logged_at, status`

func attributionColumns(a models.Attribution) (sql.NullInt64, sql.NullString) {
	var (
		groupID      sql.NullInt64
		supervisorID sql.NullString
	)
	if id, ok := a.GroupID(); ok {
		groupID = sql.NullInt64{Int64: id, Valid: true}
	}
	if id, ok := a.SupervisorID(); ok {
		supervisorID = sql.NullString{String: id, Valid: true}
	}
	return groupID, supervisorID
}

func scanEntry(row scanner) (models.LedgerEntry, error) {
	var (
		entry        models.LedgerEntry
		groupID      sql.NullInt64
		supervisorID sql.NullString
		date         string
		loggedAt     int64
		status       int
	)
	if err := row.Scan(
		&entry.ID,
		&entry.OwnerID,
		&groupID,
		&supervisorID,
		&entry.Time,
		&entry.Description,
		&date,
		&loggedAt,
		&status,
	); err != nil {
		return models.LedgerEntry{}, err
	}
	switch {
	case groupID.Valid:
		entry.Attribution = models.GroupAttribution(groupID.Int64)
	case supervisorID.Valid:
		entry.Attribution = models.SupervisorAttribution(supervisorID.String)
	}
	parsed, err := time.Parse(dateLayout, date)
	if err != nil {
		return models.LedgerEntry{}, fmt.Errorf("parse entry date %q: %w", date, err)
	}
	entry.Date = parsed
	entry.LoggedAt = time.UnixMilli(loggedAt).UTC()
	entry.Status = models.EntryStatus(status)
	return entry, nil
}

func (s *Store) CreateEntry(ctx context.Context, entry models.LedgerEntry) (int64, error) {
	groupID, supervisorID := attributionColumns(entry.Attribution)
	var id int64
	err := s.queryRow(ctx,
		`INSERT INTO ledger_entries (owner_id, group_id, supervisor_id, hours, description, entry_date, logged_at, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		entry.OwnerID,
		groupID,
		supervisorID,
		entry.Time,
		entry.Description,
		entry.Date.Format(dateLayout),
		entry.LoggedAt.UTC().UnixMilli(),
		int(entry.Status),
	).Scan(&id)
	if err != nil {
		if s.dialect.IsForeignKeyViolation(err) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("create entry: %w", err)
	}
	return id, nil
}

func (s *Store) getEntry(ctx context.Context, id int64, suffix string) (models.LedgerEntry, error) {
	entry, err := scanEntry(s.queryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = ?`+suffix, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.LedgerEntry{}, storage.ErrNotFound
		}
		return models.LedgerEntry{}, fmt.Errorf("get entry: %w", err)
	}
	return entry, nil
}

func (s *Store) GetEntry(ctx context.Context, id int64) (models.LedgerEntry, error) {
	return s.getEntry(ctx, id, "")
}

func (s *Store) LockEntry(ctx context.Context, id int64) (models.LedgerEntry, error) {
	return s.getEntry(ctx, id, s.lockSuffix(ctx))
}

func (s *Store) UpdateEntry(ctx context.Context, entry models.LedgerEntry) error {
	groupID, supervisorID := attributionColumns(entry.Attribution)
	result, err := s.exec(ctx,
		`UPDATE ledger_entries
		    SET group_id = ?, supervisor_id = ?, hours = ?, description = ?,
		        entry_date = ?, logged_at = ?, status = ?
		  WHERE id = ?`,
		groupID,
		supervisorID,
		entry.Time,
		entry.Description,
		entry.Date.Format(dateLayout),
		entry.LoggedAt.UTC().UnixMilli(),
		int(entry.Status),
		entry.ID,
	)
	if err != nil {
		if s.dialect.IsForeignKeyViolation(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("update entry: %w", err)
	}
	return affectedOne(result)
}

func (s *Store) DeleteEntry(ctx context.Context, id int64) error {
	result, err := s.exec(ctx, `DELETE FROM ledger_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return affectedOne(result)
}

func (s *Store) listEntries(ctx context.Context, where string, args ...any) ([]models.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries`
	if where != "" {
		query += ` WHERE ` + where
	}
	query += ` ORDER BY id`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("list entries: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entries, nil
}

func (s *Store) ListEntriesByOwner(ctx context.Context, ownerID string) ([]models.LedgerEntry, error) {
	return s.listEntries(ctx, `owner_id = ?`, ownerID)
}

func (s *Store) ListEntriesByOwnerInGroup(ctx context.Context, ownerID string, groupID int64) ([]models.LedgerEntry, error) {
	return s.listEntries(ctx, `owner_id = ? AND group_id = ?`, ownerID, groupID)
}

func (s *Store) ListEntriesBySupervisor(ctx context.Context, supervisorID string) ([]models.LedgerEntry, error) {
	return s.listEntries(ctx, `supervisor_id = ?`, supervisorID)
}

func (s *Store) ListEntries(ctx context.Context) ([]models.LedgerEntry, error) {
	return s.listEntries(ctx, "")
}

// Award tiers

func (s *Store) ReplaceAwardTiers(ctx context.Context, tiers []models.AwardTier) error {
	return s.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.exec(ctx, `DELETE FROM award_tiers`); err != nil {
			return fmt.Errorf("clear award tiers: %w", err)
		}
		for _, tier := range tiers {
			if _, err := s.exec(ctx,
				`INSERT INTO award_tiers (id, name, color, threshold) VALUES (?, ?, ?, ?)`,
				tier.ID, tier.Name, tier.Color, tier.Threshold,
			); err != nil {
				if s.dialect.IsUniqueViolation(err) {
					return storage.ErrAlreadyExists
				}
				return fmt.Errorf("insert award tier %d: %w", tier.ID, err)
			}
		}
		return nil
	})
}

func (s *Store) ListAwardTiers(ctx context.Context) ([]models.AwardTier, error) {
	rows, err := s.query(ctx, `SELECT id, name, color, threshold FROM award_tiers`)
	if err != nil {
		return nil, fmt.Errorf("list award tiers: %w", err)
	}
	defer rows.Close()

	var tiers []models.AwardTier
	for rows.Next() {
		var tier models.AwardTier
		if err := rows.Scan(&tier.ID, &tier.Name, &tier.Color, &tier.Threshold); err != nil {
			return nil, fmt.Errorf("list award tiers: %w", err)
		}
		tiers = append(tiers, tier)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list award tiers: %w", err)
	}
	// thresholds are TEXT in SQLite, so order numerically here
	sortTiers(tiers)
	return tiers, nil
}

var _ interfaces.Store = (*Store)(nil)
