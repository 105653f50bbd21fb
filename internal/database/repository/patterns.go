package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// PatternRepo handles recurring payment patterns and their evidence links.
type PatternRepo struct {
	db *sql.DB
}

func NewPatternRepo(db *sql.DB) *PatternRepo {
	return &PatternRepo{db: db}
}

const patternColumns = `id, tenant_id, counterparty_id, amount_avg, frequency, day_of_month,
 confidence, status, confirmed_at, last_seen, created_at, updated_at`

// Upsert creates a pattern or refreshes the detection-derived fields of the
// existing pattern for the same counterparty. Status and confirmed_at are
// deliberately left alone on conflict: only user actions move them.
func (r *PatternRepo) Upsert(ctx context.Context, q Querier, p RecurringPattern) (string, error) {
	row := q.QueryRowContext(ctx, `
	INSERT INTO recurring_patterns(`+patternColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(tenant_id, counterparty_id) DO UPDATE SET
	 amount_avg   = excluded.amount_avg,
	 frequency    = excluded.frequency,
	 day_of_month = excluded.day_of_month,
	 confidence   = excluded.confidence,
	 last_seen    = excluded.last_seen,
	 updated_at   = CURRENT_TIMESTAMP
	RETURNING id;
	`, p.ID, p.TenantID, p.CounterpartyID, p.AmountAvg.String(), p.Frequency.String(),
		p.DayOfMonth, p.Confidence, p.Status, p.ConfirmedAt, p.LastSeen)
	var id string
	if err := row.Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

// ReplaceEvidence swaps the evidence set backing a pattern.
func (r *PatternRepo) ReplaceEvidence(ctx context.Context, q Querier, patternID string, transactionIDs []string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM pattern_transactions WHERE pattern_id = ?`, patternID); err != nil {
		return err
	}
	for _, txID := range transactionIDs {
		if _, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO pattern_transactions(pattern_id, transaction_id) VALUES (?, ?)`,
			patternID, txID); err != nil {
			return err
		}
	}
	return nil
}

func (r *PatternRepo) Get(ctx context.Context, tenantID, id string) (*RecurringPattern, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT `+patternColumns+` FROM recurring_patterns WHERE tenant_id = ? AND id = ?`, tenantID, id)
	p, err := scanPattern(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	evidence, err := r.fetchEvidence(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Evidence = evidence
	return &p, nil
}

func (r *PatternRepo) GetByCounterparty(ctx context.Context, tenantID, counterpartyID string) (*RecurringPattern, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT `+patternColumns+` FROM recurring_patterns
	WHERE tenant_id = ? AND counterparty_id = ?`, tenantID, counterpartyID)
	p, err := scanPattern(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	evidence, err := r.fetchEvidence(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Evidence = evidence
	return &p, nil
}

func (r *PatternRepo) List(ctx context.Context, tenantID string) ([]RecurringPattern, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT `+patternColumns+` FROM recurring_patterns
	WHERE tenant_id = ? ORDER BY confidence DESC, last_seen DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RecurringPattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		evidence, err := r.fetchEvidence(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Evidence = evidence
	}
	return out, nil
}

// UpdateStatus moves the confirmation state. confirmedAt is set when the
// user confirms and kept so resume can restore the confirmed state.
func (r *PatternRepo) UpdateStatus(ctx context.Context, tenantID, id, status string, confirmedAt *time.Time) error {
	if confirmedAt != nil {
		_, err := r.db.ExecContext(ctx, `
		UPDATE recurring_patterns SET status = ?, confirmed_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE tenant_id = ? AND id = ?`, status, confirmedAt, tenantID, id)
		return err
	}
	_, err := r.db.ExecContext(ctx, `
	UPDATE recurring_patterns SET status = ?, updated_at = CURRENT_TIMESTAMP
	WHERE tenant_id = ? AND id = ?`, status, tenantID, id)
	return err
}

// ReassignCounterparty points a pattern at another counterparty (merge path).
func (r *PatternRepo) ReassignCounterparty(ctx context.Context, tx *sql.Tx, tenantID, patternID, counterpartyID string) error {
	_, err := tx.ExecContext(ctx, `
	UPDATE recurring_patterns SET counterparty_id = ?, updated_at = CURRENT_TIMESTAMP
	WHERE tenant_id = ? AND id = ?`, counterpartyID, tenantID, patternID)
	return err
}

// MoveEvidence repoints evidence rows from one pattern to another (merge path).
func (r *PatternRepo) MoveEvidence(ctx context.Context, tx *sql.Tx, fromPatternID, toPatternID string) error {
	_, err := tx.ExecContext(ctx, `
	INSERT OR IGNORE INTO pattern_transactions(pattern_id, transaction_id)
	SELECT ?, transaction_id FROM pattern_transactions WHERE pattern_id = ?`,
		toPatternID, fromPatternID)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM pattern_transactions WHERE pattern_id = ?`, fromPatternID)
	return err
}

func (r *PatternRepo) Delete(ctx context.Context, tx *sql.Tx, tenantID, id string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM recurring_patterns WHERE tenant_id = ? AND id = ?`, tenantID, id)
	return err
}

func (r *PatternRepo) fetchEvidence(ctx context.Context, patternID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT transaction_id FROM pattern_transactions WHERE pattern_id = ? ORDER BY transaction_id`, patternID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanPattern(row scanner) (RecurringPattern, error) {
	var p RecurringPattern
	var amount, freq string
	var confirmedAt sql.NullTime
	if err := row.Scan(&p.ID, &p.TenantID, &p.CounterpartyID, &amount, &freq, &p.DayOfMonth,
		&p.Confidence, &p.Status, &confirmedAt, &p.LastSeen, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return RecurringPattern{}, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return RecurringPattern{}, err
	}
	p.AmountAvg = d
	f, err := ParseFrequency(freq)
	if err != nil {
		return RecurringPattern{}, err
	}
	p.Frequency = f
	if confirmedAt.Valid {
		t := confirmedAt.Time
		p.ConfirmedAt = &t
	}
	return p, nil
}
