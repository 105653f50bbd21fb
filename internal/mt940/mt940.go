// Package mt940 reads SWIFT MT940 customer statement messages, the format
// German banks use for end-of-day account statements.
package mt940

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Header carries the statement-level fields that precede the entry lines.
type Header struct {
	Reference     string // :20:
	BankCode      string // :25: routing part
	AccountNumber string // :25: account part
	StatementNo   string // :28C:
	Opening       Balance
}

// Balance is a dated, signed balance from a :60: or :62: field.
type Balance struct {
	Date     time.Time
	Currency string
	Amount   decimal.Decimal // debit balances are negative
}

// Entry is one booked transaction, assembled from a :61: line and its
// :86: information field.
type Entry struct {
	Index     int // position in the statement, starting at 1
	ValueDate time.Time
	EntryDate time.Time
	Amount    decimal.Decimal // signed, debits negative
	Currency  string
	TypeCode  string // e.g. NTRF, NDDT
	Reference string // customer reference from :61:
	BankRef   string // institution reference after //

	// Fields extracted from the :86: block.
	BookingText   string // ?00
	Purpose       string // ?20..?29 concatenated in original order
	Name          string // ?32 + ?33
	AccountOrIBAN string // ?31
	BankCodeOrBIC string // ?30
	EndToEndRef   string // SVWZ EREF+
	MandateRef    string // SVWZ MREF+
	CreditorID    string // SVWZ CRED+

	// Raw is the verbatim :61:/:86: source block, kept so downstream
	// consumers can recover from imperfect sub-field assembly.
	Raw string
}

// FormatError reports input that is not recognizable as MT940 at all.
// It fails the whole statement.
type FormatError struct {
	Msg string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("mt940: %s", e.Msg)
}

// EntryError reports a single malformed entry. The reader continues with
// the next entry after returning one.
type EntryError struct {
	Index int
	Msg   string
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("mt940: entry %d: %s", e.Index, e.Msg)
}
