package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kontoplan/kontoplan/internal/mt940"
)

const rentStatement = `:20:STARTUMS
:25:10020030/1234567
:28C:00001/001
:60F:C250101EUR10000,00
:61:250101D1200,00NDDTRENT-01
:86:105?00SEPA-LASTSCHRIFT?20SVWZ+Miete Januar?32ACME RENT
:61:250115C2500,00NTRFINV-1001
:86:166?00GUTSCHRIFT?20SVWZ+Rechnung 1001?32KUNDE SCHMIDT
:62F:C250131EUR11300,00
-
`

func TestImportIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e := newTestEnv(t)
	account := e.seedAccount(t, ctx, "tenant-a", "")
	svc := e.importer(0)

	res, err := svc.Import(ctx, "tenant-a", account.ID, []byte(rentStatement))
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	require.Equal(t, 2, res.Imported)
	require.Equal(t, 0, res.Skipped)

	res2, err := svc.Import(ctx, "tenant-a", account.ID, []byte(rentStatement))
	require.NoError(t, err)
	require.Empty(t, res2.Errors)
	require.Equal(t, 0, res2.Imported)
	require.Equal(t, 2, res2.Skipped)

	txs, err := e.transactions.ListByAccount(ctx, "tenant-a", account.ID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
}

func TestImportResolvesCounterparties(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEnv(t)
	account := e.seedAccount(t, ctx, "tenant-a", "")

	_, err := e.importer(0).Import(ctx, "tenant-a", account.ID, []byte(rentStatement))
	require.NoError(t, err)

	cps, err := e.counterparties.List(ctx, "tenant-a")
	require.NoError(t, err)
	require.Len(t, cps, 2)
	names := []string{cps[0].Name, cps[1].Name}
	require.ElementsMatch(t, []string{"ACME RENT", "KUNDE SCHMIDT"}, names)

	// re-import creates no new counterparties
	_, err = e.importer(0).Import(ctx, "tenant-a", account.ID, []byte(rentStatement))
	require.NoError(t, err)
	cps, err = e.counterparties.List(ctx, "tenant-a")
	require.NoError(t, err)
	require.Len(t, cps, 2)
}

func TestImportUpdatesAccountBalance(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEnv(t)
	account := e.seedAccount(t, ctx, "tenant-a", "")

	_, err := e.importer(0).Import(ctx, "tenant-a", account.ID, []byte(rentStatement))
	require.NoError(t, err)

	got, err := e.accounts.Get(ctx, "tenant-a", account.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Balance)
	require.True(t, got.Balance.Equal(decimal.RequireFromString("11300.00")),
		"closing balance applied, got %s", got.Balance)
	require.Equal(t, "2025-01-31", got.BalanceDate.Format("2006-01-02"))
}

func TestImportRejectsForeignStatement(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEnv(t)
	account := e.seedAccount(t, ctx, "tenant-a", "")

	foreign := `:20:STARTUMS
:25:99988877/7654321
:60F:C250101EUR0,00
:61:250101C10,00NTRFNONREF
:62F:C250131EUR10,00
-
`
	_, err := e.importer(0).Import(ctx, "tenant-a", account.ID, []byte(foreign))
	var mismatch *AccountMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, "7654321", mismatch.GotAccount)

	txs, err := e.transactions.ListByAccount(ctx, "tenant-a", account.ID)
	require.NoError(t, err)
	require.Empty(t, txs, "nothing persisted on account mismatch")
}

func TestImportRejectsUnrecognizableFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEnv(t)
	account := e.seedAccount(t, ctx, "tenant-a", "")

	_, err := e.importer(0).Import(ctx, "tenant-a", account.ID, []byte("date,amount\n2025-01-01,10.00\n"))
	var formatErr *mt940.FormatError
	require.ErrorAs(t, err, &formatErr)

	txs, err := e.transactions.ListByAccount(ctx, "tenant-a", account.ID)
	require.NoError(t, err)
	require.Empty(t, txs)
}

func TestImportCollectsRecordErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEnv(t)
	account := e.seedAccount(t, ctx, "tenant-a", "")

	mixed := `:20:STARTUMS
:25:10020030/1234567
:60F:C250101EUR0,00
:61:not-a-valid-line
:86:999?20broken
:61:250110C100,00NTRFNONREF
:86:166?20SVWZ+ok?32PAYER
:62F:C250131EUR100,00
-
`
	res, err := e.importer(0).Import(ctx, "tenant-a", account.ID, []byte(mixed))
	require.NoError(t, err, "record errors do not abort the batch")
	require.Equal(t, 1, res.Imported)
	require.Len(t, res.Errors, 1)
	require.Equal(t, 1, res.Errors[0].Index)
}

func TestImportEnforcesRecordLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEnv(t)
	account := e.seedAccount(t, ctx, "tenant-a", "")

	_, err := e.importer(1).Import(ctx, "tenant-a", account.ID, []byte(rentStatement))
	require.Error(t, err)

	txs, err := e.transactions.ListByAccount(ctx, "tenant-a", account.ID)
	require.NoError(t, err)
	require.Empty(t, txs, "oversized file rejected before any write")
}

func TestFingerprintStability(t *testing.T) {
	t.Parallel()

	base := fingerprint("acct-1", date(2025, 1, 3), "-1200", "EUR", "REF1", "ACME RENT")
	require.Equal(t, base, fingerprint("acct-1", date(2025, 1, 3), "-1200", "EUR", "REF1", "ACME RENT"),
		"identical fields always collide")

	variants := []string{
		fingerprint("acct-2", date(2025, 1, 3), "-1200", "EUR", "REF1", "ACME RENT"),
		fingerprint("acct-1", date(2025, 1, 4), "-1200", "EUR", "REF1", "ACME RENT"),
		fingerprint("acct-1", date(2025, 1, 3), "-1201", "EUR", "REF1", "ACME RENT"),
		fingerprint("acct-1", date(2025, 1, 3), "-1200", "USD", "REF1", "ACME RENT"),
		fingerprint("acct-1", date(2025, 1, 3), "-1200", "EUR", "REF2", "ACME RENT"),
		fingerprint("acct-1", date(2025, 1, 3), "-1200", "EUR", "REF1", "ACME RENTAL"),
	}
	for i, v := range variants {
		require.NotEqual(t, base, v, "variant %d must not collide", i)
	}
}

func TestCounterpartyUniqueUnderConcurrentResolution(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEnv(t)

	// the same name resolved repeatedly (as racing imports would) must
	// converge on one row and one id
	first := e.seedCounterparty(t, ctx, "tenant-a", "ACME RENT")
	for i := 0; i < 10; i++ {
		again := e.seedCounterparty(t, ctx, "tenant-a", "ACME RENT")
		require.Equal(t, first.ID, again.ID)
	}
	cps, err := e.counterparties.List(ctx, "tenant-a")
	require.NoError(t, err)
	require.Len(t, cps, 1)

	// a different tenant gets its own row
	other := e.seedCounterparty(t, ctx, "tenant-b", "ACME RENT")
	require.NotEqual(t, first.ID, other.ID)
}
