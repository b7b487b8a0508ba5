package models

import "github.com/shopspring/decimal"

// Member is an enrolled person. Total is only tracked for regular members;
// for everyone else it is null.
type Member struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Cohort    string
	Role      Role
	Photo     string
	Total     decimal.NullDecimal
}

// Name returns the member's display name.
func (m Member) Name() string {
	return m.FirstName + " " + m.LastName
}
