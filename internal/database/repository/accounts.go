package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// AccountRepo handles bank accounts.
type AccountRepo struct {
	db *sql.DB
}

func NewAccountRepo(db *sql.DB) *AccountRepo {
	return &AccountRepo{db: db}
}

func (r *AccountRepo) Insert(ctx context.Context, a Account) error {
	var balance *string
	if a.Balance != nil {
		s := a.Balance.String()
		balance = &s
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO accounts(id, tenant_id, name, bank_code, account_number, iban, bic, currency, balance, balance_date, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`, a.ID, a.TenantID, a.Name, a.BankCode, a.AccountNumber, a.IBAN, a.BIC, a.Currency, balance, a.BalanceDate)
	return err
}

// UpdateBalance records a statement closing balance. Only the balance and
// its date change; identity fields stay fixed after creation.
func (r *AccountRepo) UpdateBalance(ctx context.Context, tenantID, id string, balance decimal.Decimal, date time.Time) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE accounts SET balance = ?, balance_date = ?, updated_at = CURRENT_TIMESTAMP
	WHERE tenant_id = ? AND id = ?`, balance.String(), date, tenantID, id)
	return err
}

func (r *AccountRepo) Get(ctx context.Context, tenantID, id string) (*Account, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, tenant_id, name, bank_code, account_number, iban, bic, currency, balance, balance_date, created_at, updated_at
	FROM accounts WHERE tenant_id = ? AND id = ?`, tenantID, id)
	a, err := scanAccount(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) List(ctx context.Context, tenantID string) ([]Account, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, tenant_id, name, bank_code, account_number, iban, bic, currency, balance, balance_date, created_at, updated_at
	FROM accounts WHERE tenant_id = ? ORDER BY name`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Delete removes an account; transactions cascade via foreign key.
func (r *AccountRepo) Delete(ctx context.Context, tenantID, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE tenant_id = ? AND id = ?`, tenantID, id)
	return err
}

func scanAccount(row scanner) (Account, error) {
	var a Account
	var iban, bic, balance sql.NullString
	var balanceDate sql.NullTime
	if err := row.Scan(&a.ID, &a.TenantID, &a.Name, &a.BankCode, &a.AccountNumber,
		&iban, &bic, &a.Currency, &balance, &balanceDate, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Account{}, err
	}
	if iban.Valid {
		a.IBAN = &iban.String
	}
	if bic.Valid {
		a.BIC = &bic.String
	}
	if balance.Valid {
		d, err := decimal.NewFromString(balance.String)
		if err != nil {
			return Account{}, err
		}
		a.Balance = &d
	}
	if balanceDate.Valid {
		t := balanceDate.Time
		a.BalanceDate = &t
	}
	return a, nil
}
