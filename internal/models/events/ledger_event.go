package events

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type names one kind of ledger event.
type Type string

const (
	EntryRecorded    Type = "entry_recorded"
	EntryRevised     Type = "entry_revised"
	EntryRemoved     Type = "entry_removed"
	MembershipJoined Type = "membership_joined"
	MembershipLeft   Type = "membership_left"
	GroupCreated     Type = "group_created"
	GroupRemoved     Type = "group_removed"
	MemberRemoved    Type = "member_removed"
	MembersEnrolled  Type = "members_enrolled"
)

// GroupDelta is the signed change applied to one membership total.
type GroupDelta struct {
	GroupID int64           `json:"group_id"`
	Delta   decimal.Decimal `json:"delta"`
}

// LedgerEvent is published after a mutation commits.
type LedgerEvent struct {
	EventID     string          `json:"event_id"`
	Type        Type            `json:"type"`
	MemberID    string          `json:"member_id,omitempty"`
	EntryID     int64           `json:"entry_id,omitempty"`
	GroupID     int64           `json:"group_id,omitempty"`
	MemberDelta decimal.Decimal `json:"member_delta"`
	GroupDeltas []GroupDelta    `json:"group_deltas,omitempty"`
	Count       int             `json:"count,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// New stamps an event with a fresh id and the current time.
func New(eventType Type) LedgerEvent {
	return LedgerEvent{
		EventID:    uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
	}
}

// Key returns the partition key: the member when known, else the group.
func (e LedgerEvent) Key() string {
	if e.MemberID != "" {
		return e.MemberID
	}
	return "group-" + strconv.FormatInt(e.GroupID, 10)
}
