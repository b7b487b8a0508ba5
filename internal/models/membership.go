package models

import "github.com/shopspring/decimal"

// Membership joins one member to one group. Total is the member's running
// sum of hours attributed to the group, or null when untracked.
type Membership struct {
	MemberID string
	GroupID  int64
	Total    decimal.NullDecimal
}

// GroupTotal pairs a group with the listing member's total inside it.
type GroupTotal struct {
	Group Group
	Total decimal.NullDecimal
}
