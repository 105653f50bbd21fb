package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kontoplan/kontoplan/internal/database"
	"github.com/kontoplan/kontoplan/internal/database/repository"
	"github.com/kontoplan/kontoplan/internal/mt940"
)

// ImportService ingests MT940 statements for an account.
type ImportService struct {
	DB             *sql.DB
	Accounts       *repository.AccountRepo
	Counterparties *repository.CounterpartyRepo
	Transactions   *repository.TransactionRepo

	// MaxRecords bounds a single import; 0 means unlimited. Oversized
	// files are rejected before any write.
	MaxRecords int
}

// ImportResult reports what a statement import did. Skipped counts
// fingerprint duplicates, which are an expected outcome of re-uploading
// a statement, never an error.
type ImportResult struct {
	Imported int
	Skipped  int
	Errors   []RecordError
}

// Import parses the statement, verifies it belongs to the target account,
// and persists all new transactions in one database transaction. File-level
// problems (unrecognizable format, account mismatch, oversized file) abort
// before any write; malformed records are skipped and reported.
func (s *ImportService) Import(ctx context.Context, tenantID, accountID string, data []byte) (ImportResult, error) {
	res := ImportResult{}

	account, err := s.Accounts.Get(ctx, tenantID, accountID)
	if err != nil {
		return res, err
	}
	if account == nil {
		return res, fmt.Errorf("account %s not found", accountID)
	}

	r := mt940.NewReader(bytes.NewReader(data))
	header, err := r.Header()
	if err != nil {
		return res, err
	}
	if !accountMatches(*account, header) {
		return res, &AccountMismatchError{
			WantBankCode: account.BankCode,
			WantAccount:  account.AccountNumber,
			GotBankCode:  header.BankCode,
			GotAccount:   header.AccountNumber,
		}
	}

	// Collect all entries before writing so a file-level bound or format
	// failure leaves the database untouched.
	var entries []mt940.Entry
	for {
		entry, err := r.Read()
		if err == io.EOF {
			break
		}
		if recErr, ok := err.(*mt940.EntryError); ok {
			res.Errors = append(res.Errors, RecordError{Index: recErr.Index, Message: recErr.Msg})
			continue
		}
		if err != nil {
			return ImportResult{}, err
		}
		entries = append(entries, entry)
	}
	if s.MaxRecords > 0 && len(entries) > s.MaxRecords {
		return ImportResult{}, fmt.Errorf("statement has %d records, limit is %d; split the file", len(entries), s.MaxRecords)
	}

	err = database.WithTx(s.DB, func(tx *sql.Tx) error {
		for _, entry := range entries {
			inserted, err := s.importEntry(ctx, tx, tenantID, account.ID, entry)
			if err != nil {
				res.Errors = append(res.Errors, RecordError{Index: entry.Index, Message: err.Error()})
				continue
			}
			if inserted {
				res.Imported++
			} else {
				res.Skipped++
			}
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}

	if closing, ok := r.ClosingBalance(); ok {
		if account.BalanceDate == nil || closing.Date.After(*account.BalanceDate) {
			if err := s.Accounts.UpdateBalance(ctx, tenantID, account.ID, closing.Amount, closing.Date); err != nil {
				return ImportResult{}, err
			}
		}
	}
	return res, nil
}

func (s *ImportService) importEntry(ctx context.Context, tx *sql.Tx, tenantID, accountID string, entry mt940.Entry) (bool, error) {
	var counterpartyID *string
	counterpartyName := entry.Name
	if counterpartyName != "" {
		cp, err := s.resolveCounterparty(ctx, tx, tenantID, entry)
		if err != nil {
			return false, fmt.Errorf("counterparty: %w", err)
		}
		counterpartyID = &cp.ID
	}

	t := repository.Transaction{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		AccountID:      accountID,
		CounterpartyID: counterpartyID,
		EntryDate:      entry.EntryDate,
		Amount:         entry.Amount,
		Currency:       entry.Currency,
		Purpose:        entry.Purpose,
		Raw:            entry.Raw,
		SourceHash: fingerprint(accountID, entry.EntryDate, entry.Amount.String(),
			entry.Currency, entry.Reference, counterpartyName),
	}
	if !entry.ValueDate.IsZero() {
		v := entry.ValueDate
		t.ValueDate = &v
	}
	t.TypeCode = nullableStr(entry.TypeCode)
	t.EndToEndRef = nullableStr(entry.EndToEndRef)
	t.MandateRef = nullableStr(entry.MandateRef)
	t.CreditorID = nullableStr(entry.CreditorID)

	return s.Transactions.InsertIgnoreDuplicate(ctx, tx, t)
}

// resolveCounterparty is a strict find-or-create on the exact extracted
// name. No fuzzy matching happens at import time; near-duplicate names are
// collapsed only by an explicit merge.
func (s *ImportService) resolveCounterparty(ctx context.Context, tx *sql.Tx, tenantID string, entry mt940.Entry) (repository.Counterparty, error) {
	c := repository.Counterparty{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Name:     entry.Name,
	}
	if iban := strings.TrimSpace(entry.AccountOrIBAN); iban != "" {
		c.IBAN = &iban
	}
	if bic := strings.TrimSpace(entry.BankCodeOrBIC); bic != "" {
		c.BIC = &bic
	}
	return s.Counterparties.FindOrCreate(ctx, tx, c)
}

// fingerprint is the deduplication hash. Statements are append-only, so a
// genuine duplicate reproduces every hashed field identically on re-export.
func fingerprint(accountID string, date time.Time, amount, currency, reference, counterpartyName string) string {
	joined := strings.Join([]string{
		accountID,
		date.Format(time.DateOnly),
		amount,
		currency,
		reference,
		counterpartyName,
	}, "|")
	sum := sha256.Sum256([]byte(joined))
	return fmt.Sprintf("%x", sum[:])
}

func accountMatches(account repository.Account, header mt940.Header) bool {
	if header.AccountNumber == "" {
		return false
	}
	if strings.TrimLeft(header.AccountNumber, "0") != strings.TrimLeft(account.AccountNumber, "0") {
		return false
	}
	// some banks omit the routing part of :25:
	return header.BankCode == "" || header.BankCode == account.BankCode
}

func nullableStr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
