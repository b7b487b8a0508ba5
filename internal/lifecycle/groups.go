package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/sheikh-saqib/service-hours-ledger/internal/apperr"
	eventbus "github.com/sheikh-saqib/service-hours-ledger/internal/events"
	"github.com/sheikh-saqib/service-hours-ledger/internal/membership"
	"github.com/sheikh-saqib/service-hours-ledger/internal/models"
	"github.com/sheikh-saqib/service-hours-ledger/internal/models/events"
	"github.com/sheikh-saqib/service-hours-ledger/internal/storage"
)

// NormalizeGroupName returns the display form of a group name (NFC, single
// spaces) and the key used for uniqueness (the display form case-folded).
func NormalizeGroupName(name string) (display, key string) {
	display = strings.Join(strings.Fields(norm.NFC.String(name)), " ")
	key = norm.NFC.String(cases.Fold().String(display))
	return display, key
}

// CreateGroup creates a group and joins its creator to it.
func (m *Manager) CreateGroup(ctx context.Context, name, creatorID string) (models.Group, error) {
	display, key := NormalizeGroupName(name)
	if display == "" {
		return models.Group{}, apperr.New(apperr.CodeInvalidGroupName, "group name is required")
	}
	if n := utf8.RuneCountInString(display); n > m.maxGroupName {
		return models.Group{}, apperr.WithMetadata(apperr.CodeInvalidGroupName, "group name is too long", map[string]string{
			"length": strconv.Itoa(n),
			"max":    strconv.Itoa(m.maxGroupName),
		})
	}

	var group models.Group
	err := m.store.WithinTx(ctx, func(ctx context.Context) error {
		creator, err := m.store.GetMember(ctx, creatorID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return apperr.WithMetadata(apperr.CodeNotFound, "member not found", map[string]string{"member_id": creatorID})
		case err != nil:
			return fmt.Errorf("get member: %w", err)
		}

		group, err = m.store.CreateGroup(ctx, display, key)
		switch {
		case errors.Is(err, storage.ErrAlreadyExists):
			return apperr.WithMetadata(apperr.CodeGroupNameTaken, "group name already in use", map[string]string{"name": display})
		case err != nil:
			return fmt.Errorf("create group: %w", err)
		}
		if err := m.memberships.Join(ctx, creator.ID, group.ID, membership.InitialTotal(creator.Role)); err != nil {
			return err
		}

		ev := events.New(events.GroupCreated)
		ev.GroupID = group.ID
		ev.MemberID = creator.ID
		eventbus.PublishAfterCommit(ctx, m.store, m.publisher, m.log, ev)
		m.log.WithMember(creator.ID).Audit("group created", "group_id", group.ID, "name", group.Name)
		return nil
	})
	if err != nil {
		return models.Group{}, err
	}
	return group, nil
}
