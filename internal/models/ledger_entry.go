package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryStatus is the review state of a ledger entry.
type EntryStatus int

const (
	StatusPending EntryStatus = 1
	StatusLocked  EntryStatus = 2
)

func (s EntryStatus) Valid() bool {
	return s == StatusPending || s == StatusLocked
}

func (s EntryStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// LedgerEntry represents one logged unit of service time.
type LedgerEntry struct {
	ID          int64
	OwnerID     string
	Attribution Attribution
	Time        decimal.Decimal // hours, at most two decimal places
	Description string
	Date        time.Time // civil date the work happened, midnight UTC
	LoggedAt    time.Time // set on create and on every edit
	Status      EntryStatus
}
