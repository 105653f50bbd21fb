package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionRepo handles booked transactions. Rows are append-only: they
// are created by imports, reassigned only during counterparty merges, and
// removed only by account-deletion cascade.
type TransactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo {
	return &TransactionRepo{db: db}
}

const transactionColumns = `id, tenant_id, account_id, counterparty_id, entry_date, value_date,
 amount, currency, type_code, end_to_end_ref, mandate_ref, creditor_id, purpose, raw, source_hash, created_at`

// InsertIgnoreDuplicate persists a transaction unless its fingerprint
// already exists for the tenant. Returns true when a row was written.
func (r *TransactionRepo) InsertIgnoreDuplicate(ctx context.Context, q Querier, t Transaction) (bool, error) {
	res, err := q.ExecContext(ctx, `
	INSERT INTO transactions(`+transactionColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(tenant_id, source_hash) DO NOTHING;
	`, t.ID, t.TenantID, t.AccountID, t.CounterpartyID, t.EntryDate, t.ValueDate,
		t.Amount.String(), t.Currency, t.TypeCode, t.EndToEndRef, t.MandateRef, t.CreditorID,
		t.Purpose, t.Raw, t.SourceHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListSince returns a tenant's transactions with entry date on or after
// the cutoff, oldest first.
func (r *TransactionRepo) ListSince(ctx context.Context, tenantID string, cutoff time.Time) ([]Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT `+transactionColumns+` FROM transactions
	WHERE tenant_id = ? AND entry_date >= ?
	ORDER BY entry_date ASC, created_at ASC`, tenantID, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (r *TransactionRepo) ListByAccount(ctx context.Context, tenantID, accountID string) ([]Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT `+transactionColumns+` FROM transactions
	WHERE tenant_id = ? AND account_id = ?
	ORDER BY entry_date DESC, created_at DESC`, tenantID, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (r *TransactionRepo) CountByCounterparty(ctx context.Context, tenantID, counterpartyID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
	SELECT COUNT(*) FROM transactions WHERE tenant_id = ? AND counterparty_id = ?`,
		tenantID, counterpartyID).Scan(&n)
	return n, err
}

// Reassign moves all of one counterparty's transactions to another. Used
// by merges only; transactions are otherwise immutable.
func (r *TransactionRepo) Reassign(ctx context.Context, tx *sql.Tx, tenantID, fromCounterparty, toCounterparty string) error {
	_, err := tx.ExecContext(ctx, `
	UPDATE transactions SET counterparty_id = ?
	WHERE tenant_id = ? AND counterparty_id = ?`, toCounterparty, tenantID, fromCounterparty)
	return err
}

func collectTransactions(rows *sql.Rows) ([]Transaction, error) {
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(row scanner) (Transaction, error) {
	var t Transaction
	var counterparty, typeCode, e2e, mandate, creditor sql.NullString
	var valueDate sql.NullTime
	var amount string
	if err := row.Scan(&t.ID, &t.TenantID, &t.AccountID, &counterparty, &t.EntryDate, &valueDate,
		&amount, &t.Currency, &typeCode, &e2e, &mandate, &creditor, &t.Purpose, &t.Raw,
		&t.SourceHash, &t.CreatedAt); err != nil {
		return Transaction{}, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Transaction{}, err
	}
	t.Amount = d
	if counterparty.Valid {
		t.CounterpartyID = &counterparty.String
	}
	if valueDate.Valid {
		v := valueDate.Time
		t.ValueDate = &v
	}
	if typeCode.Valid {
		t.TypeCode = &typeCode.String
	}
	if e2e.Valid {
		t.EndToEndRef = &e2e.String
	}
	if mandate.Valid {
		t.MandateRef = &mandate.String
	}
	if creditor.Valid {
		t.CreditorID = &creditor.String
	}
	return t, nil
}
