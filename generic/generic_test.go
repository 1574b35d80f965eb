package generic

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// DATES
// =============================================================================

func TestParseDate(t *testing.T) {
	d, err := ParseDate("start_date", " 2024-02-29 ")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", d.String())

	for _, bad := range []string{"", "2023-02-29", "29/02/2024", "2024-2-29"} {
		_, err := ParseDate("start_date", bad)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "input %q", bad)
		assert.Equal(t, "start_date", verr.Field)
	}
}

func TestInclusiveDays(t *testing.T) {
	tests := []struct {
		from, to Date
		want     int
	}{
		{NewDate(2024, time.March, 1), NewDate(2024, time.March, 5), 5},
		{NewDate(2024, time.March, 1), NewDate(2024, time.March, 1), 1},
		{NewDate(2024, time.February, 28), NewDate(2024, time.March, 1), 3},
		{NewDate(2023, time.December, 30), NewDate(2024, time.January, 2), 4},
		{NewDate(2024, time.March, 5), NewDate(2024, time.March, 1), 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s..%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, InclusiveDays(tt.from, tt.to))
		})
	}
}

func TestOverlaps(t *testing.T) {
	d := func(day int) Date { return NewDate(2024, time.April, day) }

	assert.True(t, Overlaps(d(1), d(5), d(5), d(8)), "shared end day")
	assert.True(t, Overlaps(d(1), d(10), d(3), d(4)), "containment")
	assert.False(t, Overlaps(d(1), d(4), d(5), d(8)), "adjacent")
}

func TestAnniversaryReached(t *testing.T) {
	hire := NewDate(1999, time.March, 1)
	assert.False(t, AnniversaryReached(hire, NewDate(2024, time.February, 29), 25))
	assert.True(t, AnniversaryReached(hire, NewDate(2024, time.March, 1), 25))

	leap := NewDate(2000, time.February, 29)
	assert.True(t, AnniversaryReached(leap, NewDate(2025, time.March, 1), 25))
	assert.False(t, AnniversaryReached(leap, NewDate(2025, time.February, 28), 25))
}

func TestDate_TextRoundTrip(t *testing.T) {
	var d Date
	require.NoError(t, d.UnmarshalText([]byte("2024-07-01")))
	b, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "2024-07-01", string(b))
}

// =============================================================================
// AMOUNTS
// =============================================================================

func TestAmount_DecimalArithmetic(t *testing.T) {
	monthly := NewAmountFromInt(45, UnitDays).Div(decimal.NewFromInt(12))
	assert.Equal(t, "3.75", monthly.String())

	total := ZeroDays()
	for i := 0; i < 12; i++ {
		total = total.Add(NewAmountFromInt(30, UnitDays).Div(decimal.NewFromInt(12)))
	}
	assert.Equal(t, "30", total.String(), "twelve monthly accruals add up exactly")

	a, err := ParseAmount("2.5", UnitDays)
	require.NoError(t, err)
	assert.True(t, a.Sub(Days(3)).IsNegative())
	assert.True(t, a.Equal(Days(2.5)))

	_, err = ParseAmount("two", UnitDays)
	assert.Error(t, err)
}

// =============================================================================
// ERRORS
// =============================================================================

func TestKindOf(t *testing.T) {
	driverErr := errors.New("disk I/O error")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"not found", &NotFoundError{Resource: "employee", Key: 1}, KindNotFound},
		{"forbidden", &ForbiddenError{Role: "employee"}, KindForbidden},
		{"transition", &TransitionError{RequestID: 1, From: "approved", To: "cancelled"}, KindInvalidTransition},
		{"balance", &InsufficientBalanceError{Kind: "regular"}, KindInsufficientBalance},
		{"duplicate", &DuplicateAbsenceError{EmployeeID: 1}, KindDuplicateAbsence},
		{"quota", &QuotaError{Quota: "yearly_quota"}, KindQuotaExceeded},
		{"validation", &ValidationError{Field: "x"}, KindValidation},
		{"overlap", fmt.Errorf("%w: request 3", ErrOverlap), KindValidation},
		{"wrapped", fmt.Errorf("submit: %w", &QuotaError{}), KindQuotaExceeded},
		{"unavailable", Unavailable("insert", driverErr), KindUnavailable},
		{"internal", driverErr, KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestUnavailable(t *testing.T) {
	driverErr := errors.New("database is locked")

	err := Unavailable("commit", driverErr)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, driverErr)
	assert.True(t, IsRetryable(err))
	assert.False(t, IsClientError(err))

	assert.Nil(t, Unavailable("commit", nil))

	classified := &ValidationError{Field: "name"}
	assert.Same(t, classified, Unavailable("insert", classified))
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(&NotFoundError{}))
	assert.True(t, IsClientError(&ValidationError{}))
	assert.False(t, IsClientError(errors.New("boom")))
	assert.True(t, IsNotFound(fmt.Errorf("load: %w", &NotFoundError{Resource: "absence"})))
}
