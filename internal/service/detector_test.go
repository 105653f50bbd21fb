package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kontoplan/kontoplan/internal/database/repository"
)

func TestDetectMonthlyPattern(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEnv(t)
	account := e.seedAccount(t, ctx, "tenant-a", "")
	cp := e.seedCounterparty(t, ctx, "tenant-a", "HOSTING GMBH")

	// six occurrences exactly 30 days apart, identical amounts
	start := date(2025, 1, 5)
	for i := 0; i < 6; i++ {
		e.seedTransaction(t, ctx, "tenant-a", account.ID, &cp.ID, start.AddDate(0, 0, 30*i), "-49.90")
	}

	patterns, err := e.detector().DetectAsOf(ctx, "tenant-a", date(2025, 7, 1))
	require.NoError(t, err)
	require.Len(t, patterns, 1)

	p := patterns[0]
	require.Equal(t, repository.FrequencyMonthly, p.Frequency)
	require.GreaterOrEqual(t, p.Confidence, 0.8)
	require.Equal(t, repository.StatusDetected, p.Status)
	require.True(t, p.AmountAvg.Equal(decimal.RequireFromString("-49.90")))
	require.Len(t, p.Evidence, 6)
	require.Equal(t, start.AddDate(0, 0, 150).Format("2006-01-02"), p.LastSeen.Format("2006-01-02"))
}

func TestSingleTransactionYieldsNoPattern(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEnv(t)
	account := e.seedAccount(t, ctx, "tenant-a", "")
	cp := e.seedCounterparty(t, ctx, "tenant-a", "ONE OFF LTD")
	e.seedTransaction(t, ctx, "tenant-a", account.ID, &cp.ID, date(2025, 2, 10), "-900.00")

	patterns, err := e.detector().DetectAsOf(ctx, "tenant-a", date(2025, 7, 1))
	require.NoError(t, err)
	require.Empty(t, patterns)

	stored, err := e.patterns.List(ctx, "tenant-a")
	require.NoError(t, err)
	require.Empty(t, stored)
}

func TestDissimilarTransactionsYieldNoPattern(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEnv(t)
	account := e.seedAccount(t, ctx, "tenant-a", "")
	cp := e.seedCounterparty(t, ctx, "tenant-a", "RANDOM SHOP")

	// neither similar amounts nor a repeating interval: score stays at 1
	e.seedTransaction(t, ctx, "tenant-a", account.ID, &cp.ID, date(2025, 1, 3), "-12.34")
	e.seedTransaction(t, ctx, "tenant-a", account.ID, &cp.ID, date(2025, 1, 17), "-250.00")

	patterns, err := e.detector().DetectAsOf(ctx, "tenant-a", date(2025, 7, 1))
	require.NoError(t, err)
	require.Empty(t, patterns)
}

func TestTwoConsistentOccurrencesMidConfidence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEnv(t)
	account := e.seedAccount(t, ctx, "tenant-a", "")
	cp := e.seedCounterparty(t, ctx, "tenant-a", "VERSICHERUNG AG")

	// two occurrences a quarter apart with slightly different amounts
	e.seedTransaction(t, ctx, "tenant-a", account.ID, &cp.ID, date(2025, 1, 15), "-300.00")
	e.seedTransaction(t, ctx, "tenant-a", account.ID, &cp.ID, date(2025, 4, 15), "-310.00")

	patterns, err := e.detector().DetectAsOf(ctx, "tenant-a", date(2025, 7, 1))
	require.NoError(t, err)
	require.Len(t, patterns, 1)

	p := patterns[0]
	// one interval cannot show two consecutive in-tolerance intervals
	require.Equal(t, repository.FrequencyIrregular, p.Frequency)
	require.GreaterOrEqual(t, p.Confidence, 0.5)
	require.Less(t, p.Confidence, 0.8)
}

func TestDetectIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEnv(t)
	account := e.seedAccount(t, ctx, "tenant-a", "")
	cp := e.seedCounterparty(t, ctx, "tenant-a", "HOSTING GMBH")
	for i := 0; i < 4; i++ {
		e.seedTransaction(t, ctx, "tenant-a", account.ID, &cp.ID, date(2025, 1, 5).AddDate(0, i, 0), "-49.90")
	}

	first, err := e.detector().DetectAsOf(ctx, "tenant-a", date(2025, 7, 1))
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := e.detector().DetectAsOf(ctx, "tenant-a", date(2025, 7, 1))
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, first[0].ID, second[0].ID, "existing pattern updated, not duplicated")

	stored, err := e.patterns.List(ctx, "tenant-a")
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

func TestDetectUpdatesButNeverTouchesConfirmation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEnv(t)
	account := e.seedAccount(t, ctx, "tenant-a", "")
	cp := e.seedCounterparty(t, ctx, "tenant-a", "HOSTING GMBH")
	for i := 0; i < 4; i++ {
		e.seedTransaction(t, ctx, "tenant-a", account.ID, &cp.ID, date(2025, 1, 5).AddDate(0, i, 0), "-49.90")
	}

	patterns, err := e.detector().DetectAsOf(ctx, "tenant-a", date(2025, 7, 1))
	require.NoError(t, err)
	patternID := patterns[0].ID

	actions := &PatternService{Patterns: e.patterns}
	require.NoError(t, actions.Confirm(ctx, "tenant-a", patternID))

	// a new occurrence arrives; re-detection refreshes the derived fields
	e.seedTransaction(t, ctx, "tenant-a", account.ID, &cp.ID, date(2025, 5, 5), "-59.90")

	patterns, err = e.detector().DetectAsOf(ctx, "tenant-a", date(2025, 7, 1))
	require.NoError(t, err)
	require.Len(t, patterns, 1)

	p := patterns[0]
	require.Equal(t, patternID, p.ID)
	require.Equal(t, repository.StatusConfirmed, p.Status, "confirmation survives re-detection")
	require.Equal(t, "2025-05-05", p.LastSeen.Format("2006-01-02"))
	require.Len(t, p.Evidence, 5)
	require.False(t, p.AmountAvg.Equal(decimal.RequireFromString("-49.90")), "average refreshed")
}

func TestDetectRespectsLookbackWindow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEnv(t)
	account := e.seedAccount(t, ctx, "tenant-a", "")
	cp := e.seedCounterparty(t, ctx, "tenant-a", "ANCIENT VENDOR")

	// recurring, but years before the window
	for i := 0; i < 6; i++ {
		e.seedTransaction(t, ctx, "tenant-a", account.ID, &cp.ID, date(2020, 1, 5).AddDate(0, i, 0), "-100.00")
	}

	patterns, err := e.detector().DetectAsOf(ctx, "tenant-a", date(2025, 7, 1))
	require.NoError(t, err)
	require.Empty(t, patterns)
}

func TestDetectIgnoresOtherTenants(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEnv(t)
	account := e.seedAccount(t, ctx, "tenant-b", "")
	cp := e.seedCounterparty(t, ctx, "tenant-b", "HOSTING GMBH")
	for i := 0; i < 4; i++ {
		e.seedTransaction(t, ctx, "tenant-b", account.ID, &cp.ID, date(2025, 1, 5).AddDate(0, i, 0), "-49.90")
	}

	patterns, err := e.detector().DetectAsOf(ctx, "tenant-a", date(2025, 7, 1))
	require.NoError(t, err)
	require.Empty(t, patterns)
}

func TestClassifyFrequencyBuckets(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		intervals []int
		want      repository.Frequency
	}{
		{"monthly", []int{30, 31, 29}, repository.FrequencyMonthly},
		{"monthly with drift", []int{28, 33, 30}, repository.FrequencyMonthly},
		{"quarterly", []int{91, 90}, repository.FrequencyQuarterly},
		{"semi-annual", []int{181, 183}, repository.FrequencySemiAnnual},
		{"annual", []int{365, 366}, repository.FrequencyAnnual},
		{"scattered", []int{12, 47, 200}, repository.FrequencyIrregular},
		{"single interval", []int{30}, repository.FrequencyIrregular},
		{"empty", nil, repository.FrequencyIrregular},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, _ := classifyFrequency(tc.intervals)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestAmountsAgreeWithinFivePercent(t *testing.T) {
	t.Parallel()

	a := decimal.RequireFromString("-100.00")
	require.True(t, amountsAgree(a, decimal.RequireFromString("-100.00")))
	require.True(t, amountsAgree(a, decimal.RequireFromString("-104.99")))
	require.False(t, amountsAgree(a, decimal.RequireFromString("-106.00")))
	require.True(t, amountsAgree(decimal.Zero, decimal.Zero))
}

func TestModeEntryDayPrefersMostCommon(t *testing.T) {
	t.Parallel()

	txs := []repository.Transaction{
		{EntryDate: date(2025, 1, 1), Amount: decimal.New(-1, 0)},
		{EntryDate: date(2025, 2, 1), Amount: decimal.New(-1, 0)},
		{EntryDate: date(2025, 3, 2), Amount: decimal.New(-1, 0)},
	}
	require.Equal(t, 1, modeEntryDay(txs))
}

func TestDetectAfterImportEndToEnd(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e := newTestEnv(t)
	account := e.seedAccount(t, ctx, "tenant-a", "")

	statement := `:20:STARTUMS
:25:10020030/1234567
:60F:C250101EUR10000,00
:61:250101D1200,00NDDTRENT-01
:86:105?20SVWZ+Miete Januar?32ACME RENT
:61:250201D1200,00NDDTRENT-02
:86:105?20SVWZ+Miete Februar?32ACME RENT
:61:250301D1200,00NDDTRENT-03
:86:105?20SVWZ+Miete Maerz?32ACME RENT
:62F:C250331EUR6400,00
-
`
	res, err := e.importer(0).Import(ctx, "tenant-a", account.ID, []byte(statement))
	require.NoError(t, err)
	require.Equal(t, 3, res.Imported)

	patterns, err := e.detector().DetectAsOf(ctx, "tenant-a", date(2025, 3, 15))
	require.NoError(t, err)
	require.Len(t, patterns, 1)

	p := patterns[0]
	require.Equal(t, repository.FrequencyMonthly, p.Frequency)
	require.True(t, p.AmountAvg.Equal(decimal.RequireFromString("-1200")))
	require.GreaterOrEqual(t, p.Confidence, 0.8)
	require.Equal(t, 1, p.DayOfMonth)
}
