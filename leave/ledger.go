/*
ledger.go - Balance Ledger

PURPOSE:
  Owns the numeric state on the employee row: regular balance, emergency
  balance and the initial regular balance snapshot. Every change to those
  columns goes through here.

CRITICAL INVARIANTS:
  1. NON-NEGATIVE: no debit may take a balance below zero. The check and the
     write happen in the same transaction as the caller's other writes.
  2. SNAPSHOT ONCE: initial_regular_balance is written the first time a
     balance is established and never again.
  3. AUDITABLE: standalone Debit/Credit/SetInitialBalanceIfUnset each write
     one audit row. The *Tx variants are building blocks for the workflow,
     accrual and import, which write their own audit row per operation.

EXAMPLE:
  err := ledger.Debit(ctx, empID, leave.BalanceRegular, generic.Days(3), actor)
  var short *generic.InsufficientBalanceError
  if errors.As(err, &short) {
      fmt.Println("short by", short.Shortfall)
  }

SEE ALSO:
  - workflow.go: debits on final approval
  - accrual.go:  monthly credits
*/
package leave

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/leave-engine/generic"
)

type Ledger struct {
	Store Store
	Log   *logrus.Entry
	Now   func() time.Time
}

// GetBalances fails NotFound if the employee is unknown or inactive.
func (l *Ledger) GetBalances(ctx context.Context, id EmployeeID) (Balances, error) {
	var out Balances
	err := l.Store.WithTx(ctx, func(tx Tx) error {
		emp, err := loadEmployee(ctx, tx, id, true)
		if err != nil {
			return err
		}
		out = balancesOf(emp)
		return nil
	})
	return out, err
}

// Debit subtracts amount from the kind balance. It fails with
// *generic.InsufficientBalanceError and changes nothing if the result would
// be negative.
func (l *Ledger) Debit(ctx context.Context, id EmployeeID, kind BalanceKind, amount generic.Amount, actor UserID) error {
	if err := checkAmount(kind, amount); err != nil {
		return err
	}
	return l.Store.WithTx(ctx, func(tx Tx) error {
		now := clock(l.Now)
		before, after, err := l.DebitTx(ctx, tx, id, kind, amount, now)
		if err != nil {
			return err
		}
		return writeAudit(ctx, tx, now, generic.AuditBalanceDebit, TableEmployees, int64(id), actor,
			balanceChange(kind, amount, before, after))
	})
}

// Credit adds amount to the kind balance unconditionally.
func (l *Ledger) Credit(ctx context.Context, id EmployeeID, kind BalanceKind, amount generic.Amount, actor UserID) error {
	if err := checkAmount(kind, amount); err != nil {
		return err
	}
	return l.Store.WithTx(ctx, func(tx Tx) error {
		now := clock(l.Now)
		before, after, err := l.CreditTx(ctx, tx, id, kind, amount, now)
		if err != nil {
			return err
		}
		return writeAudit(ctx, tx, now, generic.AuditBalanceCredit, TableEmployees, int64(id), actor,
			balanceChange(kind, amount, before, after))
	})
}

// SetInitialBalanceIfUnset writes the as-hired snapshot if it was never set.
// It reports whether the value was written.
func (l *Ledger) SetInitialBalanceIfUnset(ctx context.Context, id EmployeeID, value generic.Amount, actor UserID) (bool, error) {
	if value.IsNegative() {
		return false, &generic.ValidationError{Field: "initial_balance", Message: "must not be negative"}
	}
	var set bool
	err := l.Store.WithTx(ctx, func(tx Tx) error {
		now := clock(l.Now)
		var err error
		set, err = l.SetInitialTx(ctx, tx, id, value, now)
		if err != nil || !set {
			return err
		}
		return writeAudit(ctx, tx, now, generic.AuditInitialBalanceSet, TableEmployees, int64(id), actor,
			map[string]any{"initial_regular_balance": value.String()})
	})
	return set, err
}

// =============================================================================
// TRANSACTION-BOUND OPERATIONS
// =============================================================================

// DebitTx applies a debit inside tx and returns the balances before and after.
func (l *Ledger) DebitTx(ctx context.Context, tx Tx, id EmployeeID, kind BalanceKind, amount generic.Amount, at time.Time) (Balances, Balances, error) {
	emp, err := loadEmployee(ctx, tx, id, true)
	if err != nil {
		return Balances{}, Balances{}, err
	}
	before := balancesOf(emp)
	available := before.Of(kind)
	remaining := available.Sub(amount)
	if remaining.IsNegative() {
		return before, before, &generic.InsufficientBalanceError{
			EmployeeID: int64(id),
			Kind:       string(kind),
			Available:  available,
			Requested:  amount,
			Shortfall:  remaining.Neg(),
		}
	}
	after, err := l.write(ctx, tx, emp, kind, remaining, at)
	return before, after, err
}

// CreditTx applies a credit inside tx and returns the balances before and after.
func (l *Ledger) CreditTx(ctx context.Context, tx Tx, id EmployeeID, kind BalanceKind, amount generic.Amount, at time.Time) (Balances, Balances, error) {
	emp, err := loadEmployee(ctx, tx, id, true)
	if err != nil {
		return Balances{}, Balances{}, err
	}
	before := balancesOf(emp)
	after, err := l.write(ctx, tx, emp, kind, before.Of(kind).Add(amount), at)
	return before, after, err
}

// SetInitialTx writes the snapshot inside tx if unset.
func (l *Ledger) SetInitialTx(ctx context.Context, tx Tx, id EmployeeID, value generic.Amount, at time.Time) (bool, error) {
	if _, err := loadEmployee(ctx, tx, id, false); err != nil {
		return false, err
	}
	set, err := tx.SetInitialBalance(ctx, id, value, at)
	if err != nil {
		return false, err
	}
	if set {
		logger(l.Log).WithFields(logrus.Fields{
			"employee_id":     id,
			"initial_balance": value.String(),
		}).Debug("initial regular balance recorded")
	}
	return set, nil
}

func (l *Ledger) write(ctx context.Context, tx Tx, emp *Employee, kind BalanceKind, value generic.Amount, at time.Time) (Balances, error) {
	regular, emergency := emp.RegularBalance, emp.EmergencyBalance
	if kind == BalanceEmergency {
		emergency = value
	} else {
		regular = value
	}
	if err := tx.UpdateBalances(ctx, emp.ID, regular, emergency, at); err != nil {
		return Balances{}, err
	}
	emp.RegularBalance, emp.EmergencyBalance, emp.UpdatedAt = regular, emergency, at
	return balancesOf(emp), nil
}

func checkAmount(kind BalanceKind, amount generic.Amount) error {
	if !kind.Valid() {
		return &generic.ValidationError{Field: "kind", Message: "must be regular or emergency"}
	}
	if !amount.IsPositive() {
		return &generic.ValidationError{Field: "amount", Message: "must be positive"}
	}
	return nil
}

func balanceChange(kind BalanceKind, amount generic.Amount, before, after Balances) map[string]any {
	return map[string]any{
		"kind":   string(kind),
		"amount": amount.String(),
		"before": before.Of(kind).String(),
		"after":  after.Of(kind).String(),
	}
}
