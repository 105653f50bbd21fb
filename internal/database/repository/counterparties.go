package repository

import (
	"context"
	"database/sql"
)

// CounterpartyRepo handles payer/payee entities.
type CounterpartyRepo struct {
	db *sql.DB
}

func NewCounterpartyRepo(db *sql.DB) *CounterpartyRepo {
	return &CounterpartyRepo{db: db}
}

// FindOrCreate resolves a counterparty by exact name within a tenant,
// creating it when absent. The UNIQUE(tenant_id, name) constraint plus the
// conflict clause make this safe under concurrent imports: the losing
// insert falls through to the existing row and returns its id.
func (r *CounterpartyRepo) FindOrCreate(ctx context.Context, q Querier, c Counterparty) (Counterparty, error) {
	row := q.QueryRowContext(ctx, `
	INSERT INTO counterparties(id, tenant_id, name, iban, bic, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(tenant_id, name) DO UPDATE SET
	 iban = COALESCE(counterparties.iban, excluded.iban),
	 bic  = COALESCE(counterparties.bic, excluded.bic),
	 updated_at = CURRENT_TIMESTAMP
	RETURNING id, tenant_id, name, iban, bic, created_at, updated_at;
	`, c.ID, c.TenantID, c.Name, c.IBAN, c.BIC)
	return scanCounterparty(row)
}

// Rename changes the display name. References are by id, so nothing else moves.
func (r *CounterpartyRepo) Rename(ctx context.Context, tenantID, id, name string) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE counterparties SET name = ?, updated_at = CURRENT_TIMESTAMP
	WHERE tenant_id = ? AND id = ?`, name, tenantID, id)
	return err
}

func (r *CounterpartyRepo) Get(ctx context.Context, tenantID, id string) (*Counterparty, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, tenant_id, name, iban, bic, created_at, updated_at
	FROM counterparties WHERE tenant_id = ? AND id = ?`, tenantID, id)
	c, err := scanCounterparty(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *CounterpartyRepo) List(ctx context.Context, tenantID string) ([]Counterparty, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, tenant_id, name, iban, bic, created_at, updated_at
	FROM counterparties WHERE tenant_id = ? ORDER BY name`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Counterparty
	for rows.Next() {
		c, err := scanCounterparty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CounterpartyRepo) Delete(ctx context.Context, tx *sql.Tx, tenantID, id string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM counterparties WHERE tenant_id = ? AND id = ?`, tenantID, id)
	return err
}

func scanCounterparty(row scanner) (Counterparty, error) {
	var c Counterparty
	var iban, bic sql.NullString
	if err := row.Scan(&c.ID, &c.TenantID, &c.Name, &iban, &bic, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Counterparty{}, err
	}
	if iban.Valid {
		c.IBAN = &iban.String
	}
	if bic.Valid {
		c.BIC = &bic.String
	}
	return c, nil
}
