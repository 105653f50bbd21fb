package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kontoplan/kontoplan/internal/database"
	"github.com/kontoplan/kontoplan/internal/database/repository"
)

// testEnv bundles a migrated temp database with the repos and services
// under test.
type testEnv struct {
	db             *sql.DB
	accounts       *repository.AccountRepo
	counterparties *repository.CounterpartyRepo
	transactions   *repository.TransactionRepo
	patterns       *repository.PatternRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	migrations, err := filepath.Abs("../database/migrations")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(dbPath, migrations))

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return &testEnv{
		db:             db,
		accounts:       repository.NewAccountRepo(db),
		counterparties: repository.NewCounterpartyRepo(db),
		transactions:   repository.NewTransactionRepo(db),
		patterns:       repository.NewPatternRepo(db),
	}
}

func (e *testEnv) importer(maxRecords int) *ImportService {
	return &ImportService{
		DB:             e.db,
		Accounts:       e.accounts,
		Counterparties: e.counterparties,
		Transactions:   e.transactions,
		MaxRecords:     maxRecords,
	}
}

func (e *testEnv) detector() *DetectionService {
	return &DetectionService{DB: e.db, Transactions: e.transactions, Patterns: e.patterns}
}

func (e *testEnv) forecaster() *ForecastService {
	return &ForecastService{Accounts: e.accounts, Patterns: e.patterns}
}

func (e *testEnv) merger() *MergeService {
	return &MergeService{
		DB:             e.db,
		Counterparties: e.counterparties,
		Transactions:   e.transactions,
		Patterns:       e.patterns,
	}
}

func (e *testEnv) seedAccount(t *testing.T, ctx context.Context, tenantID string, balance string) repository.Account {
	t.Helper()
	a := repository.Account{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		Name:          "Business Checking",
		BankCode:      "10020030",
		AccountNumber: "1234567",
		Currency:      "EUR",
	}
	if balance != "" {
		b := decimal.RequireFromString(balance)
		d := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
		a.Balance = &b
		a.BalanceDate = &d
	}
	require.NoError(t, e.accounts.Insert(ctx, a))
	return a
}

func (e *testEnv) seedCounterparty(t *testing.T, ctx context.Context, tenantID, name string) repository.Counterparty {
	t.Helper()
	cp, err := e.counterparties.FindOrCreate(ctx, e.db, repository.Counterparty{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Name:     name,
	})
	require.NoError(t, err)
	return cp
}

// seedTransaction writes a transaction the way the importer would.
func (e *testEnv) seedTransaction(t *testing.T, ctx context.Context, tenantID, accountID string, counterpartyID *string, date time.Time, amount string) repository.Transaction {
	t.Helper()
	tx := repository.Transaction{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		AccountID:  accountID,
		EntryDate:  date,
		Amount:     decimal.RequireFromString(amount),
		Currency:   "EUR",
		SourceHash: uuid.NewString(),
	}
	tx.CounterpartyID = counterpartyID
	inserted, err := e.transactions.InsertIgnoreDuplicate(ctx, e.db, tx)
	require.NoError(t, err)
	require.True(t, inserted)
	return tx
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
