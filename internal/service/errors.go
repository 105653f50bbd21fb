package service

import "fmt"

// AccountMismatchError means the statement header declares a different
// account than the import target. The whole import aborts before any write.
type AccountMismatchError struct {
	WantBankCode string
	WantAccount  string
	GotBankCode  string
	GotAccount   string
}

func (e *AccountMismatchError) Error() string {
	return fmt.Sprintf("statement declares account %s/%s, target account is %s/%s",
		e.GotBankCode, e.GotAccount, e.WantBankCode, e.WantAccount)
}

// RecordError is a single malformed or rejected record. The import
// continues past it and reports it in the result.
type RecordError struct {
	Index   int
	Message string
}

func (e RecordError) Error() string {
	return fmt.Sprintf("record %d: %s", e.Index, e.Message)
}
