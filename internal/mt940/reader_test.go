package mt940

import (
	"io"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const sampleStatement = `:20:STARTUMS
:25:10020030/1234567
:28C:00001/001
:60F:C250101EUR10000,00
:61:2501030103D1200,00NDDTRENT-REF//BANKREF1
:86:105?00SEPA-LASTSCHRIFT?20EREF+RENT-2025-01?21SVWZ+Miete Januar Bue
ro Mitte?32ACME RENT GMBH?33 + CO KG?31DE02100500000054540402?30BELADEBE
:61:250115C2500,00NTRFNONREF
:86:166?00GUTSCHRIFT?20SVWZ+Rechnung 1001?32KUNDE SCHMIDT
:62F:C250131EUR11300,00
-
`

func TestReadStatement(t *testing.T) {
	t.Parallel()

	r := NewReader(strings.NewReader(sampleStatement))

	h, err := r.Header()
	require.NoError(t, err)
	require.Equal(t, "STARTUMS", h.Reference)
	require.Equal(t, "10020030", h.BankCode)
	require.Equal(t, "1234567", h.AccountNumber)
	require.Equal(t, "00001/001", h.StatementNo)
	require.True(t, h.Opening.Amount.Equal(decimal.RequireFromString("10000.00")))
	require.Equal(t, "EUR", h.Opening.Currency)

	first, err := r.Read()
	require.NoError(t, err)
	require.Equal(t, 1, first.Index)
	require.Equal(t, "2025-01-03", first.ValueDate.Format("2006-01-02"))
	require.Equal(t, "2025-01-03", first.EntryDate.Format("2006-01-02"))
	require.True(t, first.Amount.Equal(decimal.RequireFromString("-1200.00")))
	require.Equal(t, "EUR", first.Currency)
	require.Equal(t, "NDDT", first.TypeCode)
	require.Equal(t, "RENT-REF", first.Reference)
	require.Equal(t, "BANKREF1", first.BankRef)
	require.Equal(t, "SEPA-LASTSCHRIFT", first.BookingText)
	require.Equal(t, "ACME RENT GMBH + CO KG", first.Name)
	require.Equal(t, "DE02100500000054540402", first.AccountOrIBAN)
	require.Equal(t, "BELADEBE", first.BankCodeOrBIC)
	require.Equal(t, "RENT-2025-01", first.EndToEndRef)
	require.Equal(t, "Miete Januar Buero Mitte", first.Purpose)
	require.Contains(t, first.Raw, ":61:2501030103D1200,00NDDT")
	require.Contains(t, first.Raw, "ACME RENT GMBH")

	second, err := r.Read()
	require.NoError(t, err)
	require.Equal(t, 2, second.Index)
	require.True(t, second.Amount.Equal(decimal.RequireFromString("2500.00")))
	require.Empty(t, second.Reference, "NONREF normalizes to empty")
	require.Equal(t, "KUNDE SCHMIDT", second.Name)
	require.Equal(t, "Rechnung 1001", second.Purpose)

	_, err = r.Read()
	require.Equal(t, io.EOF, err)

	closing, ok := r.ClosingBalance()
	require.True(t, ok)
	require.True(t, closing.Amount.Equal(decimal.RequireFromString("11300.00")))
	require.Equal(t, "2025-01-31", closing.Date.Format("2006-01-02"))
}

func TestReadContinuesPastMalformedEntry(t *testing.T) {
	t.Parallel()

	statement := `:20:STARTUMS
:25:10020030/1234567
:60F:C250101EUR500,00
:61:garbage-amount-line
:86:999?20broken
:61:250110C100,00NTRFNONREF
:86:166?20SVWZ+ok?32PAYER
:62F:C250131EUR600,00
-
`
	r := NewReader(strings.NewReader(statement))

	_, err := r.Read()
	var entryErr *EntryError
	require.ErrorAs(t, err, &entryErr)
	require.Equal(t, 1, entryErr.Index)

	good, err := r.Read()
	require.NoError(t, err)
	require.Equal(t, 2, good.Index)
	require.Equal(t, "PAYER", good.Name)

	_, err = r.Read()
	require.Equal(t, io.EOF, err)
}

func TestHeaderRejectsNonMT940(t *testing.T) {
	t.Parallel()

	r := NewReader(strings.NewReader("date,amount,description\n2025-01-01,12.00,coffee\n"))
	_, err := r.Header()
	var formatErr *FormatError
	require.ErrorAs(t, err, &formatErr)

	// Read surfaces the same failure
	r2 := NewReader(strings.NewReader("not a statement at all"))
	_, err = r2.Read()
	require.ErrorAs(t, err, &formatErr)
}

func TestUnstructuredInformationBlock(t *testing.T) {
	t.Parallel()

	statement := `:20:REF
:25:10020030/1234567
:60F:C250101EUR0,00
:61:250105D42,50NMSCNONREF
:86:DAUERAUFTRAG MIETE GARAGE
:62F:D250131EUR42,50
-
`
	r := NewReader(strings.NewReader(statement))
	e, err := r.Read()
	require.NoError(t, err)
	require.Equal(t, "DAUERAUFTRAG MIETE GARAGE", e.Purpose)
	require.Empty(t, e.Name)
	require.True(t, e.Amount.Equal(decimal.RequireFromString("-42.5")))

	_, err = r.Read()
	require.Equal(t, io.EOF, err)
	closing, ok := r.ClosingBalance()
	require.True(t, ok)
	require.True(t, closing.Amount.IsNegative())
}

func TestEntryDateAcrossYearBoundary(t *testing.T) {
	t.Parallel()

	statement := `:20:REF
:25:10020030/1234567
:60F:C250101EUR0,00
:61:2501021230D10,00NMSCNONREF
:62F:C250102EUR0,00
-
`
	r := NewReader(strings.NewReader(statement))
	e, err := r.Read()
	require.NoError(t, err)
	require.Equal(t, "2025-01-02", e.ValueDate.Format("2006-01-02"))
	require.Equal(t, "2024-12-30", e.EntryDate.Format("2006-01-02"))
}

func TestRestartableByReconstruction(t *testing.T) {
	t.Parallel()

	for i := 0; i < 2; i++ {
		r := NewReader(strings.NewReader(sampleStatement))
		n := 0
		for {
			_, err := r.Read()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			n++
		}
		require.Equal(t, 2, n)
	}
}
