package leave

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/leave-engine/generic"
)

// DefaultEmergencyAllowance is the yearly emergency entitlement in days.
const DefaultEmergencyAllowance = 12

type ResetResult struct {
	Year             int
	AlreadyProcessed bool
	Reset            int64
}

// EmergencyResetService sets every active employee's emergency balance to
// Allowance once per calendar year.
//
// Idempotency is year-keyed, not date-keyed: the first call for a year resets
// regardless of day and month, and every later call for that year is a no-op.
// Restricting runs to 1 January is the caller's decision.
type EmergencyResetService struct {
	Store     Store
	Allowance int // zero means DefaultEmergencyAllowance
	Log       *logrus.Entry
	Now       func() time.Time
}

func (s *EmergencyResetService) allowance() generic.Amount {
	if s.Allowance > 0 {
		return generic.NewAmountFromInt(s.Allowance, generic.UnitDays)
	}
	return generic.NewAmountFromInt(DefaultEmergencyAllowance, generic.UnitDays)
}

// RunEmergencyReset resets emergency balances for asOf's year.
func (s *EmergencyResetService) RunEmergencyReset(ctx context.Context, asOf generic.Date) (ResetResult, error) {
	if asOf.IsZero() {
		return ResetResult{}, &generic.ValidationError{Field: "as_of", Message: "is required"}
	}
	log := logger(s.Log).WithField("year", asOf.Year())
	value := s.allowance()

	var res ResetResult
	err := s.Store.WithTx(ctx, func(tx Tx) error {
		res = ResetResult{Year: asOf.Year()}

		done, err := tx.EmergencyResetProcessed(ctx, res.Year)
		if err != nil {
			return err
		}
		if done {
			res.AlreadyProcessed = true
			return nil
		}

		now := clock(s.Now)
		res.Reset, err = tx.ResetEmergencyBalances(ctx, value, now)
		if err != nil {
			return err
		}

		inserted, err := tx.MarkEmergencyResetProcessed(ctx, res.Year, now)
		if err != nil {
			return err
		}
		if !inserted {
			return errPeriodProcessed
		}

		return writeAudit(ctx, tx, now, generic.AuditEmergencyReset, TableEmergencyResetLog, int64(res.Year), SystemUser,
			map[string]any{"year": res.Year, "allowance": value.String(), "employees": res.Reset})
	})

	if errors.Is(err, errPeriodProcessed) {
		res, err = ResetResult{Year: asOf.Year(), AlreadyProcessed: true}, nil
	}
	if err != nil {
		return ResetResult{}, err
	}

	if res.AlreadyProcessed {
		log.Info("emergency reset already processed")
	} else {
		log.WithFields(logrus.Fields{"employees": res.Reset, "allowance": value.String()}).
			Info("emergency balances reset")
	}
	return res, nil
}
