package enrollment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/sheikh-saqib/service-hours-ledger/internal/apperr"
	eventbus "github.com/sheikh-saqib/service-hours-ledger/internal/events"
	"github.com/sheikh-saqib/service-hours-ledger/internal/interfaces"
	"github.com/sheikh-saqib/service-hours-ledger/internal/logger"
	"github.com/sheikh-saqib/service-hours-ledger/internal/models"
	"github.com/sheikh-saqib/service-hours-ledger/internal/models/events"
	"github.com/sheikh-saqib/service-hours-ledger/internal/storage"
)

// Record is one row of a bulk enrollment. Line is the caller's row number,
// used only in messages.
type Record struct {
	Line      int
	ID        string
	FirstName string
	LastName  string
	Cohort    string
	Role      string
}

// Settings are the site-specific values enrollment needs.
type Settings struct {
	// RoleNames maps the role names accepted in records to roles.
	RoleNames          map[string]models.Role
	EmailDomain        string
	ProfilePlaceholder string
}

// RecordError lists everything wrong with one record.
type RecordError struct {
	Line    int
	ID      string
	Reasons []string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d (%q): %s", e.Line, e.ID, strings.Join(e.Reasons, "; "))
}

// RecordErrors unpacks the per-record failures from an Enroll error.
func RecordErrors(err error) []*RecordError {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Code != apperr.CodeInvalidEnrollment {
		return nil
	}
	var out []*RecordError
	for _, e := range multierr.Errors(appErr.Cause) {
		var rec *RecordError
		if errors.As(e, &rec) {
			out = append(out, rec)
		}
	}
	return out
}

type Enroller struct {
	store     interfaces.Store
	settings  Settings
	roleList  string
	publisher interfaces.EventPublisher
	log       *logger.Logger
}

type Option func(*Enroller)

func WithPublisher(p interfaces.EventPublisher) Option {
	return func(e *Enroller) { e.publisher = p }
}

func WithLogger(l *logger.Logger) Option {
	return func(e *Enroller) { e.log = l }
}

func NewEnroller(store interfaces.Store, settings Settings, opts ...Option) *Enroller {
	names := make([]string, 0, len(settings.RoleNames))
	for name := range settings.RoleNames {
		names = append(names, "'"+name+"'")
	}
	sort.Strings(names)

	e := &Enroller{
		store:    store,
		settings: settings,
		roleList: strings.Join(names, ", "),
		log:      logger.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enroll validates every record and creates all of the members, or none of
// them. A rejected batch returns an InvalidEnrollment error whose records
// are available through RecordErrors.
func (e *Enroller) Enroll(ctx context.Context, records []Record) ([]models.Member, error) {
	if len(records) == 0 {
		return nil, apperr.New(apperr.CodeInvalidEnrollment, "no records to enroll")
	}

	var members []models.Member
	err := e.store.WithinTx(ctx, func(ctx context.Context) error {
		members = make([]models.Member, 0, len(records))
		lines := make([]int, 0, len(records))
		seen := make(map[string]int, len(records))
		var rejected error

		// Validate every record first so one response lists all problems.
		for i, rec := range records {
			if rec.Line == 0 {
				rec.Line = i + 1
			}
			member, reasons, err := e.check(ctx, rec, seen)
			if err != nil {
				return err
			}
			if len(reasons) > 0 {
				rejected = multierr.Append(rejected, &RecordError{Line: rec.Line, ID: rec.ID, Reasons: reasons})
				continue
			}
			members = append(members, member)
			lines = append(lines, rec.Line)
		}
		if rejected != nil {
			return apperr.Wrap(apperr.CodeInvalidEnrollment, "enrollment batch rejected", rejected)
		}

		// Only a concurrent enrollment can collide here.
		for i, member := range members {
			err := e.store.CreateMember(ctx, member)
			switch {
			case errors.Is(err, storage.ErrAlreadyExists):
				return apperr.Wrap(apperr.CodeInvalidEnrollment, "enrollment batch rejected", &RecordError{
					Line:    lines[i],
					ID:      member.ID,
					Reasons: []string{fmt.Sprintf("the user id %q is already in use", member.ID)},
				})
			case err != nil:
				return fmt.Errorf("create member %s: %w", member.ID, err)
			}
		}

		ev := events.New(events.MembersEnrolled)
		ev.Count = len(members)
		eventbus.PublishAfterCommit(ctx, e.store, e.publisher, e.log, ev)
		e.log.Audit("members enrolled", "count", len(members))
		return nil
	})
	if err != nil {
		if len(RecordErrors(err)) > 0 {
			e.log.Debug("enrollment batch rejected", "records", len(records), "error", err)
		}
		return nil, err
	}
	return members, nil
}

// check builds the member for rec and collects every rule it breaks.
// seen tracks lower-cased ids already used in this batch.
func (e *Enroller) check(ctx context.Context, rec Record, seen map[string]int) (models.Member, []string, error) {
	var reasons []string
	id := strings.TrimSpace(rec.ID)
	first := strings.TrimSpace(rec.FirstName)
	last := strings.TrimSpace(rec.LastName)
	cohort := strings.TrimSpace(rec.Cohort)

	switch {
	case id == "":
		reasons = append(reasons, "a user id is required")
	default:
		key := strings.ToLower(id)
		if line, dup := seen[key]; dup {
			reasons = append(reasons, fmt.Sprintf("the user id %q already appears on record %d", id, line))
		} else {
			seen[key] = rec.Line
		}
		taken, err := e.idTaken(ctx, id)
		if err != nil {
			return models.Member{}, nil, err
		}
		if taken {
			reasons = append(reasons, fmt.Sprintf("the user id %q is already in use", id))
		}
	}

	role, ok := e.settings.RoleNames[strings.TrimSpace(rec.Role)]
	if !ok {
		reasons = append(reasons, fmt.Sprintf("%q is not a valid role; it must be one of %s", rec.Role, e.roleList))
	}
	if ok && role == models.RoleRegular && cohort == "" {
		reasons = append(reasons, "a cohort is required for this role")
	}
	if first == "" || last == "" {
		reasons = append(reasons, "both first and last names are required")
	}
	if len(reasons) > 0 {
		return models.Member{}, reasons, nil
	}

	member := models.Member{
		ID:        id,
		FirstName: first,
		LastName:  last,
		Email:     e.email(id),
		Cohort:    cohort,
		Role:      role,
		Photo:     e.settings.ProfilePlaceholder,
	}
	if role == models.RoleRegular {
		member.Total = decimal.NewNullDecimal(decimal.Zero)
	}
	return member, nil, nil
}

// email derives a member's address from their id. Ids differing only in
// case share an address.
func (e *Enroller) email(id string) string {
	return strings.ToLower(id) + "@" + e.settings.EmailDomain
}

// idTaken reports whether id, or an id differing only in case, already
// belongs to a member.
func (e *Enroller) idTaken(ctx context.Context, id string) (bool, error) {
	_, err := e.store.GetMember(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case !errors.Is(err, storage.ErrNotFound):
		return false, fmt.Errorf("get member: %w", err)
	}

	_, err = e.store.GetMemberByEmail(ctx, e.email(id))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("get member by email: %w", err)
	}
}

// UpdateProfile refreshes the name and image the identity provider reports.
// An empty photo falls back to the placeholder.
func (e *Enroller) UpdateProfile(ctx context.Context, id, firstName, lastName, photo string) error {
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	if firstName == "" || lastName == "" {
		return apperr.WithMetadata(apperr.CodeInvalidEnrollment, "both first and last names are required", map[string]string{"member_id": id})
	}
	if strings.TrimSpace(photo) == "" {
		photo = e.settings.ProfilePlaceholder
	}
	err := e.store.UpdateMemberProfile(ctx, id, firstName, lastName, photo)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return apperr.WithMetadata(apperr.CodeNotFound, "member not found", map[string]string{"member_id": id})
	case err != nil:
		return fmt.Errorf("update member profile: %w", err)
	}
	e.log.WithMember(id).Info("profile updated")
	return nil
}
