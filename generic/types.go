/*
Package generic provides the domain-agnostic primitives of the leave engine.

PURPOSE:
  Leave balances, durations and quotas are all day counts that must add up
  exactly: 45/12 has to be 3.75, not 3.7499999. This package holds the
  quantity type (Amount), the calendar-day type (Date), the error kinds every
  layer shares, and the audit entry written by each mutating operation.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: a day count backed by decimal.Decimal
  - Unit:   always days today, kept explicit so stored values are self-describing

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere a balance is touched
  2. Immutability: Amount methods return new values
  3. No domain knowledge: nothing here knows what a leave request is

USAGE:
  monthly := generic.NewAmountFromInt(45, generic.UnitDays).Div(decimal.NewFromInt(12))
  balance = balance.Add(monthly)

SEE ALSO:
  - time.go:   Date and tenure arithmetic
  - errors.go: error kinds
  - audit.go:  AuditEntry
*/
package generic

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Day count with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitDays Unit = "days"
)

func NewAmount(value float64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewAmountFromInt(value int, unit Unit) Amount {
	return Amount{Value: decimal.NewFromInt(int64(value)), Unit: unit}
}

// Days is shorthand for an Amount in UnitDays.
func Days(value float64) Amount { return NewAmount(value, UnitDays) }

// ZeroDays returns 0 days.
func ZeroDays() Amount { return Amount{Value: decimal.Zero, Unit: UnitDays} }

// ParseAmount parses a decimal string as stored by the sqlite layer.
// An empty string is treated as zero.
func ParseAmount(value string, unit Unit) (Amount, error) {
	if value == "" {
		return Amount{Value: decimal.Zero, Unit: unit}, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Amount{}, fmt.Errorf("parse amount %q: %w", value, err)
	}
	return Amount{Value: d, Unit: unit}, nil
}

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Div(s decimal.Decimal) Amount { return Amount{Value: a.Value.Div(s), Unit: a.Unit} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg(), Unit: a.Unit} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) Equal(b Amount) bool          { return a.Value.Equal(b.Value) }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }

// Float64 is for display and JSON only. Never feed it back into arithmetic.
func (a Amount) Float64() float64 {
	f, _ := a.Value.Float64()
	return f
}

// String renders the decimal without trailing zeros ("2.5", "14").
func (a Amount) String() string { return a.Value.String() }
