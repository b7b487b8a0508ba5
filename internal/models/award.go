package models

import "github.com/shopspring/decimal"

// AwardTier is one award level, unlocked once a running total reaches Threshold.
type AwardTier struct {
	ID        int64
	Name      string
	Color     string
	Threshold decimal.Decimal
}
