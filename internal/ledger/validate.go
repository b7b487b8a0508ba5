package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/service-hours-ledger/internal/apperr"
	"github.com/sheikh-saqib/service-hours-ledger/internal/models"
	"github.com/sheikh-saqib/service-hours-ledger/internal/storage"
)

// Limits bound the values an entry may carry.
type Limits struct {
	MaxHours       decimal.Decimal
	MaxDescription int // runes
}

func DefaultLimits() Limits {
	return Limits{MaxHours: decimal.NewFromInt(100), MaxDescription: 100}
}

// validate checks the stateless rules and returns the input normalized:
// trimmed description, date reduced to a civil date at midnight UTC.
func (l *Ledger) validate(in EntryInput) (EntryInput, error) {
	if !in.Time.IsPositive() {
		return in, apperr.WithMetadata(apperr.CodeInvalidTime, "time must be greater than zero",
			map[string]string{"time": in.Time.String()})
	}
	if !in.Time.Equal(in.Time.Truncate(2)) {
		return in, apperr.WithMetadata(apperr.CodeInvalidTime, "time has more than two decimal places",
			map[string]string{"time": in.Time.String()})
	}
	if in.Time.GreaterThan(l.limits.MaxHours) {
		return in, apperr.WithMetadata(apperr.CodeInvalidTime, "time exceeds the per-entry maximum",
			map[string]string{"time": in.Time.String(), "max": l.limits.MaxHours.String()})
	}

	in.Description = strings.TrimSpace(in.Description)
	if in.Description == "" {
		return in, apperr.New(apperr.CodeInvalidDescription, "description is required")
	}
	if n := utf8.RuneCountInString(in.Description); n > l.limits.MaxDescription {
		return in, apperr.WithMetadata(apperr.CodeInvalidDescription, "description is too long",
			map[string]string{"length": strconv.Itoa(n), "max": strconv.Itoa(l.limits.MaxDescription)})
	}

	date, err := l.checkDate(in.Date)
	if err != nil {
		return in, err
	}
	in.Date = date
	return in, nil
}

// checkDate rejects dates after today or outside the current year, both
// judged on the configured calendar.
func (l *Ledger) checkDate(date time.Time) (time.Time, error) {
	if date.IsZero() {
		return time.Time{}, apperr.New(apperr.CodeInvalidDate, "date is required")
	}
	y, m, d := date.Date()
	civil := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	ty, tm, td := l.now().In(l.loc).Date()
	today := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)

	meta := map[string]string{"date": civil.Format(time.DateOnly), "today": today.Format(time.DateOnly)}
	if civil.After(today) {
		return time.Time{}, apperr.WithMetadata(apperr.CodeInvalidDate, "date is in the future", meta)
	}
	if y != ty {
		return time.Time{}, apperr.WithMetadata(apperr.CodeInvalidDate, "date is not in the current year", meta)
	}
	return civil, nil
}

// checkAttribution verifies the attributed group or supervisor against the
// store. A group needs the owner's membership; a supervisor must exist, hold
// a supervisory role and not be the owner.
func (l *Ledger) checkAttribution(ctx context.Context, ownerID string, attr models.Attribution) error {
	switch attr.Kind() {
	case models.AttributionNone:
		return nil

	case models.AttributionGroup:
		groupID, _ := attr.GroupID()
		groupMeta := map[string]string{"member_id": ownerID, "group_id": strconv.FormatInt(groupID, 10)}
		if groupID <= 0 {
			return apperr.WithMetadata(apperr.CodeInvalidAttribution, "group id must be positive", groupMeta)
		}
		if _, err := l.store.GetGroup(ctx, groupID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperr.WithMetadata(apperr.CodeNotFound, "group not found", groupMeta)
			}
			return fmt.Errorf("get group: %w", err)
		}
		if _, err := l.store.LockMembership(ctx, ownerID, groupID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperr.WithMetadata(apperr.CodeNotAMember, "owner is not a member of the group", groupMeta)
			}
			return fmt.Errorf("lock membership: %w", err)
		}
		return nil

	case models.AttributionSupervisor:
		supervisorID, _ := attr.SupervisorID()
		supMeta := map[string]string{"member_id": ownerID, "supervisor_id": supervisorID}
		if supervisorID == "" {
			return apperr.WithMetadata(apperr.CodeInvalidAttribution, "supervisor id is required", supMeta)
		}
		if supervisorID == ownerID {
			return apperr.WithMetadata(apperr.CodeInvalidAttribution, "an entry cannot name its owner as supervisor", supMeta)
		}
		supervisor, err := l.store.GetMember(ctx, supervisorID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperr.WithMetadata(apperr.CodeInvalidAttribution, "supervisor not found", supMeta)
			}
			return fmt.Errorf("get supervisor: %w", err)
		}
		if !supervisor.Role.Supervisory() {
			return apperr.WithMetadata(apperr.CodeInvalidAttribution, "named member is not a supervisor", supMeta)
		}
		return nil

	default:
		return apperr.New(apperr.CodeInvalidAttribution, "unknown attribution kind")
	}
}
