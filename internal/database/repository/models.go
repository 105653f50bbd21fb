package repository

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Account represents a bank account row. Identity fields (bank code,
// account number) are fixed after creation.
type Account struct {
	ID            string
	TenantID      string
	Name          string
	BankCode      string
	AccountNumber string
	IBAN          *string
	BIC           *string
	Currency      string
	Balance       *decimal.Decimal
	BalanceDate   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Counterparty represents a deduplicated payer/payee row.
type Counterparty struct {
	ID        string
	TenantID  string
	Name      string
	IBAN      *string
	BIC       *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction represents an immutable booked transaction row.
type Transaction struct {
	ID             string
	TenantID       string
	AccountID      string
	CounterpartyID *string
	EntryDate      time.Time
	ValueDate      *time.Time
	Amount         decimal.Decimal
	Currency       string
	TypeCode       *string
	EndToEndRef    *string
	MandateRef     *string
	CreditorID     *string
	Purpose        string
	Raw            string
	SourceHash     string
	CreatedAt      time.Time
}

// Frequency classifies how often a recurring payment repeats. It is a
// closed set so projection code can handle every case exhaustively.
type Frequency int

const (
	FrequencyMonthly Frequency = iota
	FrequencyQuarterly
	FrequencySemiAnnual
	FrequencyAnnual
	FrequencyIrregular
)

func (f Frequency) String() string {
	switch f {
	case FrequencyMonthly:
		return "monthly"
	case FrequencyQuarterly:
		return "quarterly"
	case FrequencySemiAnnual:
		return "semi_annual"
	case FrequencyAnnual:
		return "annual"
	case FrequencyIrregular:
		return "irregular"
	}
	return "irregular"
}

// Months returns the period length in months, or 0 for irregular.
func (f Frequency) Months() int {
	switch f {
	case FrequencyMonthly:
		return 1
	case FrequencyQuarterly:
		return 3
	case FrequencySemiAnnual:
		return 6
	case FrequencyAnnual:
		return 12
	}
	return 0
}

// ParseFrequency converts a stored frequency string back to its variant.
func ParseFrequency(s string) (Frequency, error) {
	switch s {
	case "monthly":
		return FrequencyMonthly, nil
	case "quarterly":
		return FrequencyQuarterly, nil
	case "semi_annual":
		return FrequencySemiAnnual, nil
	case "annual":
		return FrequencyAnnual, nil
	case "irregular":
		return FrequencyIrregular, nil
	}
	return FrequencyIrregular, fmt.Errorf("unknown frequency %q", s)
}

// Pattern confirmation states. Only explicit user action moves a pattern
// out of StatusDetected; detection re-runs never touch the status.
const (
	StatusDetected  = "detected"
	StatusConfirmed = "confirmed"
	StatusIgnored   = "ignored"
	StatusPaused    = "paused"
)

// RecurringPattern represents a detected or confirmed recurring payment row.
type RecurringPattern struct {
	ID             string
	TenantID       string
	CounterpartyID string
	AmountAvg      decimal.Decimal
	Frequency      Frequency
	DayOfMonth     int
	Confidence     float64
	Status         string
	ConfirmedAt    *time.Time
	LastSeen       time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Evidence       []string // transaction IDs backing the pattern
}
