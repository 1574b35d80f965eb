/*
accrual.go - Monthly accrual of regular leave

PURPOSE:
  Credits every active employee's regular balance once per calendar month
  with one twelfth of the annual entitlement for their tenure tier.

TENURE TIERS:
  Under 25 years of service:  30 days/year  ->  2.5 days/month
  25 years or more:           45 days/year  ->  3.75 days/month

  The tier changes on the 25th hire anniversary.

IDEMPOTENCY:
  accrual_log holds one row per (year, month). The check, the credits and the
  log insert share one transaction, so a run either credits everyone and
  writes the row or changes nothing. A second run for the same month is a
  no-op that reports AlreadyProcessed.

USAGE:
  svc := &leave.AccrualService{Store: store, Ledger: ledger}
  res, err := svc.RunMonthlyAccrual(ctx, generic.NewDate(2024, time.March, 1))

SEE ALSO:
  - reset.go: the yearly emergency balance reset, gated the same way
*/
package leave

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/leave-engine/generic"
)

const (
	StandardAnnualDays = 30
	SeniorAnnualDays   = 45
	SeniorityYears     = 25
)

// errPeriodProcessed rolls back a run that lost the race for its log row.
var errPeriodProcessed = errors.New("period already processed")

var monthsPerYear = decimal.NewFromInt(12)

// AnnualQuota returns the yearly regular entitlement at asOf.
func AnnualQuota(hire, asOf generic.Date) int {
	if generic.AnniversaryReached(hire, asOf, SeniorityYears) {
		return SeniorAnnualDays
	}
	return StandardAnnualDays
}

// MonthlyAccrual is AnnualQuota / 12.
func MonthlyAccrual(hire, asOf generic.Date) generic.Amount {
	return generic.NewAmountFromInt(AnnualQuota(hire, asOf), generic.UnitDays).Div(monthsPerYear)
}

type AccrualResult struct {
	Year             int
	Month            time.Month
	AlreadyProcessed bool
	Credited         int
	Skipped          []EmployeeID
	Total            generic.Amount
}

type AccrualService struct {
	Store  Store
	Ledger *Ledger
	Log    *logrus.Entry
	Now    func() time.Time
}

// RunMonthlyAccrual credits the month containing asOf.
func (s *AccrualService) RunMonthlyAccrual(ctx context.Context, asOf generic.Date) (AccrualResult, error) {
	if asOf.IsZero() {
		return AccrualResult{}, &generic.ValidationError{Field: "as_of", Message: "is required"}
	}
	log := logger(s.Log).WithFields(logrus.Fields{"year": asOf.Year(), "month": int(asOf.Month())})

	var res AccrualResult
	err := s.Store.WithTx(ctx, func(tx Tx) error {
		res = AccrualResult{Year: asOf.Year(), Month: asOf.Month(), Total: generic.ZeroDays()}

		done, err := tx.AccrualProcessed(ctx, res.Year, res.Month)
		if err != nil {
			return err
		}
		if done {
			res.AlreadyProcessed = true
			return nil
		}

		employees, err := tx.ListEmployees(ctx, EmployeeFilter{Status: StatusActive})
		if err != nil {
			return err
		}

		now := clock(s.Now)
		for _, emp := range employees {
			hire, err := emp.ParsedHireDate()
			if err != nil {
				log.WithField("employee_id", emp.ID).WithField("hire_date", emp.HireDate).
					Warn("skipping accrual: unparsable hire date")
				res.Skipped = append(res.Skipped, emp.ID)
				continue
			}
			if hire.After(asOf) {
				log.WithField("employee_id", emp.ID).WithField("hire_date", emp.HireDate).
					Warn("skipping accrual: hire date after accrual date")
				res.Skipped = append(res.Skipped, emp.ID)
				continue
			}

			amount := MonthlyAccrual(hire, asOf)
			if _, _, err := s.Ledger.CreditTx(ctx, tx, emp.ID, BalanceRegular, amount, now); err != nil {
				return err
			}
			res.Credited++
			res.Total = res.Total.Add(amount)
		}

		inserted, err := tx.MarkAccrualProcessed(ctx, res.Year, res.Month, now)
		if err != nil {
			return err
		}
		if !inserted {
			return errPeriodProcessed
		}

		return writeAudit(ctx, tx, now, generic.AuditMonthlyAccrual, TableAccrualLog, 0, SystemUser, map[string]any{
			"year":     res.Year,
			"month":    int(res.Month),
			"credited": res.Credited,
			"skipped":  len(res.Skipped),
			"total":    res.Total.String(),
		})
	})

	if errors.Is(err, errPeriodProcessed) {
		res = AccrualResult{Year: asOf.Year(), Month: asOf.Month(), AlreadyProcessed: true, Total: generic.ZeroDays()}
		err = nil
	}
	if err != nil {
		return AccrualResult{}, err
	}

	if res.AlreadyProcessed {
		log.Info("monthly accrual already processed")
	} else {
		log.WithFields(logrus.Fields{
			"credited": res.Credited,
			"skipped":  len(res.Skipped),
			"total":    res.Total.String(),
		}).Info("monthly accrual applied")
	}
	return res, nil
}
