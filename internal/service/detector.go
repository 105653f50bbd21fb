package service

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kontoplan/kontoplan/internal/database"
	"github.com/kontoplan/kontoplan/internal/database/repository"
)

// DetectionService scans a tenant's transaction history for recurring
// payments. Detection is a pure function from the history to a draft set;
// persistence then diffs the drafts against stored patterns by
// counterparty, updating in place instead of duplicating. Re-running is
// always safe.
type DetectionService struct {
	DB           *sql.DB
	Transactions *repository.TransactionRepo
	Patterns     *repository.PatternRepo

	// LookbackMonths bounds the scanned history; 0 uses the default.
	LookbackMonths int
}

const defaultLookbackMonths = 18

// Amounts agree when they differ by at most 5%.
var amountTolerance = decimal.NewFromFloat(0.05)

// Detect runs the scan and returns the stored state of every pattern it
// created or refreshed. Confirmation state is never touched.
func (s *DetectionService) Detect(ctx context.Context, tenantID string) ([]repository.RecurringPattern, error) {
	return s.DetectAsOf(ctx, tenantID, database.Now())
}

// DetectAsOf is Detect with an explicit end of the lookback window.
func (s *DetectionService) DetectAsOf(ctx context.Context, tenantID string, asOf time.Time) ([]repository.RecurringPattern, error) {
	lookback := s.LookbackMonths
	if lookback <= 0 {
		lookback = defaultLookbackMonths
	}
	cutoff := asOf.AddDate(0, -lookback, 0)

	txs, err := s.Transactions.ListSince(ctx, tenantID, cutoff)
	if err != nil {
		return nil, err
	}
	drafts := detectPatterns(txs)

	var ids []string
	err = database.WithTx(s.DB, func(tx *sql.Tx) error {
		for _, d := range drafts {
			p := repository.RecurringPattern{
				ID:             uuid.NewString(),
				TenantID:       tenantID,
				CounterpartyID: d.counterpartyID,
				AmountAvg:      d.amountAvg,
				Frequency:      d.frequency,
				DayOfMonth:     d.dayOfMonth,
				Confidence:     d.confidence,
				Status:         repository.StatusDetected,
				LastSeen:       d.lastSeen,
			}
			id, err := s.Patterns.Upsert(ctx, tx, p)
			if err != nil {
				return err
			}
			if err := s.Patterns.ReplaceEvidence(ctx, tx, id, d.evidence); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]repository.RecurringPattern, 0, len(ids))
	for _, id := range ids {
		p, err := s.Patterns.Get(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

// patternDraft is the detection output before persistence.
type patternDraft struct {
	counterpartyID string
	amountAvg      decimal.Decimal
	frequency      repository.Frequency
	dayOfMonth     int
	confidence     float64
	lastSeen       time.Time
	evidence       []string
}

// detectPatterns groups transactions by counterparty and keeps the groups
// whose pairwise similarity clears the recurrence threshold.
func detectPatterns(txs []repository.Transaction) []patternDraft {
	groups := make(map[string][]repository.Transaction)
	var order []string
	for _, t := range txs {
		if t.CounterpartyID == nil {
			continue
		}
		id := *t.CounterpartyID
		if _, seen := groups[id]; !seen {
			order = append(order, id)
		}
		groups[id] = append(groups[id], t)
	}

	var drafts []patternDraft
	for _, id := range order {
		if d, ok := analyzeGroup(id, groups[id]); ok {
			drafts = append(drafts, d)
		}
	}
	return drafts
}

// analyzeGroup scores one counterparty's transactions. Sharing the
// counterparty is worth one point, so a consecutive pair qualifies as
// potentially recurring when the amounts agree within 5% or the interval
// matches a repeating period (total score >= 2). Transactions that appear
// in no qualifying pair contribute nothing; one-off payments fall out here.
func analyzeGroup(counterpartyID string, txs []repository.Transaction) (patternDraft, bool) {
	if len(txs) < 2 {
		return patternDraft{}, false
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i].EntryDate.Before(txs[j].EntryDate) })

	contributing := make(map[int]bool)
	for i := 0; i+1 < len(txs); i++ {
		a, b := txs[i], txs[i+1]
		score := 1
		if amountsAgree(a.Amount, b.Amount) {
			score++
		}
		if _, ok := matchPeriod(daysBetween(a.EntryDate, b.EntryDate)); ok {
			score++
		}
		if score >= 2 {
			contributing[i] = true
			contributing[i+1] = true
		}
	}
	if len(contributing) < 2 {
		return patternDraft{}, false
	}

	evidence := make([]repository.Transaction, 0, len(contributing))
	for i := 0; i < len(txs); i++ {
		if contributing[i] {
			evidence = append(evidence, txs[i])
		}
	}

	intervals := make([]int, 0, len(evidence)-1)
	for i := 0; i+1 < len(evidence); i++ {
		intervals = append(intervals, daysBetween(evidence[i].EntryDate, evidence[i+1].EntryDate))
	}
	frequency, withinTolerance := classifyFrequency(intervals)

	d := patternDraft{
		counterpartyID: counterpartyID,
		amountAvg:      averageAmount(evidence),
		frequency:      frequency,
		dayOfMonth:     modeEntryDay(evidence),
		confidence:     confidence(evidence, intervals, withinTolerance),
		lastSeen:       evidence[len(evidence)-1].EntryDate,
	}
	for _, t := range evidence {
		d.evidence = append(d.evidence, t.ID)
	}
	return d, true
}

func amountsAgree(a, b decimal.Decimal) bool {
	larger := decimal.Max(a.Abs(), b.Abs())
	if larger.IsZero() {
		return true
	}
	diff := a.Sub(b).Abs()
	return diff.LessThanOrEqual(larger.Mul(amountTolerance))
}

// period buckets. Tolerances widen with the period length.
type periodBucket struct {
	frequency repository.Frequency
	min, max  int
	tolerance int
}

var periodBuckets = []periodBucket{
	{repository.FrequencyMonthly, 28, 31, 3},
	{repository.FrequencyQuarterly, 89, 92, 6},
	{repository.FrequencySemiAnnual, 178, 184, 10},
	{repository.FrequencyAnnual, 363, 368, 14},
}

// matchPeriod reports which repeating period an interval is consistent with.
func matchPeriod(days int) (periodBucket, bool) {
	for _, b := range periodBuckets {
		if days >= b.min-b.tolerance && days <= b.max+b.tolerance {
			return b, true
		}
	}
	return periodBucket{}, false
}

// classifyFrequency picks the period bucket holding the most consecutive
// intervals. A bucket needs at least two consecutive in-tolerance
// intervals to qualify; otherwise the group is irregular. The second
// return value is how many of the intervals fall inside the winning
// bucket, for confidence scoring.
func classifyFrequency(intervals []int) (repository.Frequency, int) {
	best := repository.FrequencyIrregular
	bestCount := 0
	for _, b := range periodBuckets {
		inBucket := 0
		run, bestRun := 0, 0
		for _, days := range intervals {
			if days >= b.min-b.tolerance && days <= b.max+b.tolerance {
				inBucket++
				run++
				if run > bestRun {
					bestRun = run
				}
			} else {
				run = 0
			}
		}
		if bestRun >= 2 && inBucket > bestCount {
			best = b.frequency
			bestCount = inBucket
		}
	}
	if best == repository.FrequencyIrregular {
		// count intervals that at least sit in some bucket, so sparse
		// evidence still informs the confidence score
		for _, days := range intervals {
			if _, ok := matchPeriod(days); ok {
				bestCount++
			}
		}
	}
	return best, bestCount
}

// confidence folds the three evidence signals into a 0..1 score: how many
// occurrences corroborate the pattern, how tight the amounts are, and how
// tight the interval clustering is.
func confidence(evidence []repository.Transaction, intervals []int, withinTolerance int) float64 {
	var score float64

	switch n := len(evidence); {
	case n >= 6:
		score += 0.40
	case n >= 4:
		score += 0.30
	case n == 3:
		score += 0.25
	default:
		score += 0.20
	}

	switch dev := maxRelativeAmountDeviation(evidence); {
	case dev.LessThanOrEqual(decimal.NewFromFloat(0.001)):
		score += 0.30
	case dev.LessThanOrEqual(decimal.NewFromFloat(0.02)):
		score += 0.25
	case dev.LessThanOrEqual(amountTolerance):
		score += 0.15
	default:
		score += 0.05
	}

	switch {
	case len(intervals) >= 2 && withinTolerance == len(intervals):
		score += 0.30
	case len(intervals) == 1 && withinTolerance == 1:
		score += 0.25
	case len(intervals) > 0 && withinTolerance*3 >= len(intervals)*2:
		score += 0.15
	default:
		score += 0.05
	}

	if score > 1 {
		score = 1
	}
	return score
}

// maxRelativeAmountDeviation measures amount spread as the largest
// deviation from the mean, relative to the mean.
func maxRelativeAmountDeviation(txs []repository.Transaction) decimal.Decimal {
	mean := averageAmount(txs).Abs()
	if mean.IsZero() {
		return decimal.Zero
	}
	maxDev := decimal.Zero
	for _, t := range txs {
		dev := t.Amount.Abs().Sub(mean).Abs()
		if dev.GreaterThan(maxDev) {
			maxDev = dev
		}
	}
	return maxDev.Div(mean)
}

func averageAmount(txs []repository.Transaction) decimal.Decimal {
	amounts := make([]decimal.Decimal, len(txs))
	for i, t := range txs {
		amounts[i] = t.Amount
	}
	return decimal.Avg(amounts[0], amounts[1:]...)
}

// modeEntryDay returns the most common day-of-month, preferring the
// earliest day on ties.
func modeEntryDay(txs []repository.Transaction) int {
	counts := make(map[int]int)
	for _, t := range txs {
		counts[t.EntryDate.Day()]++
	}
	day, best := 1, 0
	for d := 1; d <= 31; d++ {
		if counts[d] > best {
			day, best = d, counts[d]
		}
	}
	return day
}

func daysBetween(a, b time.Time) int {
	d := b.Sub(a)
	if d < 0 {
		d = -d
	}
	return int(d.Hours() / 24)
}
