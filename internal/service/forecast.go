package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kontoplan/kontoplan/internal/database"
	"github.com/kontoplan/kontoplan/internal/database/repository"
)

// ForecastService projects active recurring patterns into a month-by-month
// liquidity curve on top of the current balance.
type ForecastService struct {
	Accounts *repository.AccountRepo
	Patterns *repository.PatternRepo
}

// Forecast is the projection result. Amounts keep full decimal precision;
// rounding is left to presentation.
type Forecast struct {
	CurrentBalance decimal.Decimal
	AsOfDate       time.Time
	Months         []MonthProjection
}

// MonthProjection is one projected calendar month.
type MonthProjection struct {
	Month            time.Time // first day of the month
	ProjectedIncome  decimal.Decimal
	ProjectedCosts   decimal.Decimal
	ProjectedBalance decimal.Decimal
	Occurrences      int
	// Tentative marks months whose totals include occurrences from
	// detected-but-unconfirmed patterns.
	Tentative bool
}

// Project builds a forecast over the given horizon starting from today.
func (s *ForecastService) Project(ctx context.Context, tenantID string, horizonMonths int) (Forecast, error) {
	return s.ProjectAsOf(ctx, tenantID, database.Now(), horizonMonths)
}

// ProjectAsOf is Project with an explicit as-of date. The first projected
// month is the calendar month after asOf; occurrences already booked on or
// before asOf are never generated again.
func (s *ForecastService) ProjectAsOf(ctx context.Context, tenantID string, asOf time.Time, horizonMonths int) (Forecast, error) {
	accounts, err := s.Accounts.List(ctx, tenantID)
	if err != nil {
		return Forecast{}, err
	}
	balance := decimal.Zero
	for _, a := range accounts {
		if a.Balance != nil {
			balance = balance.Add(*a.Balance)
		}
	}

	patterns, err := s.Patterns.List(ctx, tenantID)
	if err != nil {
		return Forecast{}, err
	}

	f := Forecast{CurrentBalance: balance, AsOfDate: asOf}
	if horizonMonths <= 0 {
		return f, nil
	}

	firstMonth := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	horizonEnd := firstMonth.AddDate(0, horizonMonths, 0)

	months := make([]MonthProjection, horizonMonths)
	for i := range months {
		months[i] = MonthProjection{
			Month:           firstMonth.AddDate(0, i, 0),
			ProjectedIncome: decimal.Zero,
			ProjectedCosts:  decimal.Zero,
		}
	}

	for _, p := range patterns {
		if !includeInForecast(p) {
			continue
		}
		tentative := p.Status == repository.StatusDetected
		for _, date := range occurrenceDates(p, asOf, horizonEnd) {
			idx := monthsApart(firstMonth, date)
			if idx < 0 || idx >= horizonMonths {
				continue
			}
			m := &months[idx]
			if p.AmountAvg.IsNegative() {
				m.ProjectedCosts = m.ProjectedCosts.Add(p.AmountAvg)
			} else {
				m.ProjectedIncome = m.ProjectedIncome.Add(p.AmountAvg)
			}
			m.Occurrences++
			if tentative {
				m.Tentative = true
			}
		}
	}

	running := balance
	for i := range months {
		running = running.Add(months[i].ProjectedIncome).Add(months[i].ProjectedCosts)
		months[i].ProjectedBalance = running
	}
	f.Months = months
	return f, nil
}

// includeInForecast keeps confirmed and detected patterns; ignored and
// paused patterns are excluded, as are irregular ones, which have no
// deterministic next occurrence.
func includeInForecast(p repository.RecurringPattern) bool {
	if p.Status == repository.StatusIgnored || p.Status == repository.StatusPaused {
		return false
	}
	return p.Frequency != repository.FrequencyIrregular
}

// occurrenceDates steps forward from the pattern's last occurrence at its
// frequency, anchored to the typical day-of-month, generating dates
// strictly after asOf and before horizonEnd.
func occurrenceDates(p repository.RecurringPattern, asOf, horizonEnd time.Time) []time.Time {
	step := p.Frequency.Months()
	if step == 0 {
		return nil
	}
	var out []time.Time
	date := p.LastSeen
	for {
		date = addMonthsAnchored(date, step, p.DayOfMonth)
		if !date.Before(horizonEnd) {
			return out
		}
		if date.After(asOf) {
			out = append(out, date)
		}
	}
}

// addMonthsAnchored advances by whole months and re-anchors to the typical
// day, clamping day 29..31 to the end of shorter months instead of rolling
// into the next month.
func addMonthsAnchored(date time.Time, months, day int) time.Time {
	anchor := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, months, 0)
	last := anchor.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(anchor.Year(), anchor.Month(), day, 0, 0, 0, 0, time.UTC)
}

func monthsApart(from, to time.Time) int {
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}
