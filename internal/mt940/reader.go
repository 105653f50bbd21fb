package mt940

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Reader yields statement entries one at a time, csv.Reader style: call
// Read until it returns io.EOF. A reader is single-pass; construct a new
// one over the same bytes to restart.
type Reader struct {
	sc         *bufio.Scanner
	pending    *tag
	stashed    string
	hasStashed bool
	scanErr    error

	header    *Header
	headerErr error
	closing   *Balance
	currency  string
	index     int
}

type tag struct {
	name  string
	value string
	raw   string
}

var tagStart = regexp.MustCompile(`^:(\d{2}[A-Z]?):(.*)$`)

func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Reader{sc: sc}
}

// Header parses the statement header (:20:, :25:, :28C:, :60:) if it has
// not been parsed yet. A *FormatError means the input is not MT940.
func (r *Reader) Header() (Header, error) {
	if r.header != nil || r.headerErr != nil {
		if r.headerErr != nil {
			return Header{}, r.headerErr
		}
		return *r.header, nil
	}
	h := Header{}
	seenOpening := false
	for {
		t, err := r.peekTag()
		if err == io.EOF {
			break
		}
		if err != nil {
			r.headerErr = err
			return Header{}, err
		}
		switch t.name {
		case "20":
			h.Reference = firstLine(t.value)
		case "25":
			bank, acct := splitAccountID(firstLine(t.value))
			h.BankCode, h.AccountNumber = bank, acct
		case "28", "28C":
			h.StatementNo = firstLine(t.value)
		case "60F", "60M":
			b, err := parseBalance(firstLine(t.value))
			if err != nil {
				r.headerErr = &FormatError{Msg: fmt.Sprintf("opening balance: %v", err)}
				return Header{}, r.headerErr
			}
			h.Opening = b
			r.currency = b.Currency
			seenOpening = true
		default:
			// first entry or trailer reached
			if h.AccountNumber == "" && !seenOpening {
				r.headerErr = &FormatError{Msg: "missing :25: account identification"}
				return Header{}, r.headerErr
			}
			r.header = &h
			return h, nil
		}
		r.consumeTag()
		if seenOpening && h.AccountNumber != "" {
			r.header = &h
			return h, nil
		}
	}
	if h.AccountNumber == "" {
		r.headerErr = &FormatError{Msg: "no recognizable MT940 tags"}
		return Header{}, r.headerErr
	}
	r.header = &h
	return h, nil
}

// Read returns the next entry. It returns io.EOF after the last entry,
// a *EntryError for a malformed entry (the reader keeps going), and a
// *FormatError when the input is not MT940.
func (r *Reader) Read() (Entry, error) {
	if _, err := r.Header(); err != nil {
		return Entry{}, err
	}
	for {
		t, err := r.peekTag()
		if err != nil {
			return Entry{}, err
		}
		switch t.name {
		case "61":
			r.consumeTag()
			r.index++
			return r.readEntry(*t)
		case "62F", "62M":
			b, err := parseBalance(firstLine(t.value))
			if err == nil {
				// last closing balance wins across statement pages
				r.closing = &b
			}
			r.consumeTag()
		case "60F", "60M":
			// next page repeats a balance; keep currency in sync
			if b, err := parseBalance(firstLine(t.value)); err == nil {
				r.currency = b.Currency
			}
			r.consumeTag()
		default:
			// page headers (:20:, :25:, :28C:), forward balances
			// (:64:, :65:) and stray :86: blocks
			r.consumeTag()
		}
	}
}

// ClosingBalance reports the last :62: balance seen. Complete only after
// Read has returned io.EOF.
func (r *Reader) ClosingBalance() (Balance, bool) {
	if r.closing == nil {
		return Balance{}, false
	}
	return *r.closing, true
}

func (r *Reader) readEntry(lineTag tag) (Entry, error) {
	raw := lineTag.raw
	var info *tag
	if t, err := r.peekTag(); err == nil && t.name == "86" {
		r.consumeTag()
		info = t
		raw += "\n" + t.raw
	}

	e := Entry{Index: r.index, Currency: r.currency, Raw: raw}
	if err := parseStatementLine(&e, firstLine(lineTag.value)); err != nil {
		return Entry{}, &EntryError{Index: r.index, Msg: err.Error()}
	}
	if info != nil {
		parseInformation(&e, strings.ReplaceAll(info.value, "\n", ""))
	}
	return e, nil
}

// :61: value date YYMMDD, optional entry date MMDD, debit/credit mark,
// optional funds code, amount with comma decimals, type code, reference
// with optional //bank reference.
var statementLine = regexp.MustCompile(`^(\d{6})(\d{4})?(RC|RD|C|D)([A-Z])?(\d+,\d*)([A-Z][A-Z0-9]{3})(.*)$`)

func parseStatementLine(e *Entry, s string) error {
	m := statementLine.FindStringSubmatch(s)
	if m == nil {
		return fmt.Errorf("malformed :61: line %q", s)
	}
	valueDate, err := time.Parse("060102", m[1])
	if err != nil {
		return fmt.Errorf("value date: %v", err)
	}
	e.ValueDate = valueDate
	e.EntryDate = valueDate
	if m[2] != "" {
		entryDate, err := time.Parse("0102", m[2])
		if err != nil {
			return fmt.Errorf("entry date: %v", err)
		}
		e.EntryDate = resolveEntryYear(valueDate, entryDate.Month(), entryDate.Day())
	}
	amount, err := decimal.NewFromString(strings.Replace(m[5], ",", ".", 1))
	if err != nil {
		return fmt.Errorf("amount %q: %v", m[5], err)
	}
	switch m[3] {
	case "D", "RC":
		amount = amount.Neg()
	}
	e.Amount = amount
	e.TypeCode = m[6]
	ref := strings.TrimSpace(m[7])
	if i := strings.Index(ref, "//"); i >= 0 {
		e.Reference = strings.TrimSpace(ref[:i])
		e.BankRef = strings.TrimSpace(ref[i+2:])
	} else {
		e.Reference = ref
	}
	if e.Reference == "NONREF" {
		e.Reference = ""
	}
	return nil
}

// The :61: entry date has no year. It belongs to the value date's year
// except across a year boundary, where the nearer year applies.
func resolveEntryYear(valueDate time.Time, month time.Month, day int) time.Time {
	year := valueDate.Year()
	if valueDate.Month() == time.January && month == time.December {
		year--
	} else if valueDate.Month() == time.December && month == time.January {
		year++
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// :86: carries bank-specific sub-fields delimited by '?'. The German
// convention: ?00 booking text, ?20..?29 purpose lines, ?30 counterparty
// bank code, ?31 account or IBAN, ?32/?33 counterparty name. Banks differ
// in which sub-fields they fill and in what order; purpose lines are
// concatenated in their original order since one logical remittance text
// is split across fixed-width sub-fields.
func parseInformation(e *Entry, s string) {
	if !strings.Contains(s, "?") {
		e.Purpose = applySEPATags(e, strings.TrimSpace(s))
		return
	}
	var purpose, name strings.Builder
	parts := strings.Split(s, "?")
	for _, part := range parts[1:] {
		if len(part) < 2 {
			continue
		}
		code, value := part[:2], part[2:]
		switch {
		case code == "00":
			e.BookingText = strings.TrimSpace(value)
		case code >= "20" && code <= "29":
			purpose.WriteString(value)
		case code == "30":
			e.BankCodeOrBIC = strings.TrimSpace(value)
		case code == "31":
			e.AccountOrIBAN = strings.TrimSpace(value)
		case code == "32", code == "33":
			name.WriteString(value)
		}
	}
	e.Name = strings.TrimSpace(name.String())
	e.Purpose = applySEPATags(e, strings.TrimSpace(purpose.String()))
}

// SEPA remittance tags embedded in the purpose text.
var sepaTags = []string{"EREF+", "KREF+", "MREF+", "CRED+", "DEBT+", "SVWZ+", "ABWA+", "ABWE+"}

// applySEPATags splits structured SEPA references out of an assembled
// purpose text. When an SVWZ+ block exists it becomes the purpose; the
// full assembled text is still recoverable from Entry.Raw.
func applySEPATags(e *Entry, purpose string) string {
	positions := findSEPATags(purpose)
	if len(positions) == 0 {
		return purpose
	}
	for i, pos := range positions {
		end := len(purpose)
		if i+1 < len(positions) {
			end = positions[i+1].start
		}
		value := strings.TrimSpace(purpose[pos.start+len(pos.tag) : end])
		switch pos.tag {
		case "EREF+":
			e.EndToEndRef = value
		case "MREF+":
			e.MandateRef = value
		case "CRED+":
			e.CreditorID = value
		case "SVWZ+":
			return value
		}
	}
	// structured tags but no SVWZ+ block: strip tags from the text
	return strings.TrimSpace(purpose[:positions[0].start])
}

type tagPos struct {
	tag   string
	start int
}

func findSEPATags(s string) []tagPos {
	var out []tagPos
	for _, t := range sepaTags {
		if i := strings.Index(s, t); i >= 0 {
			out = append(out, tagPos{tag: t, start: i})
		}
	}
	// keep source order
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].start < out[j-1].start; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// :60:/:62: debit/credit mark, date YYMMDD, currency, amount.
var balanceLine = regexp.MustCompile(`^(C|D)(\d{6})([A-Z]{3})(\d+,\d*)$`)

func parseBalance(s string) (Balance, error) {
	m := balanceLine.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Balance{}, fmt.Errorf("malformed balance %q", s)
	}
	date, err := time.Parse("060102", m[2])
	if err != nil {
		return Balance{}, err
	}
	amount, err := decimal.NewFromString(strings.Replace(m[4], ",", ".", 1))
	if err != nil {
		return Balance{}, err
	}
	if m[1] == "D" {
		amount = amount.Neg()
	}
	return Balance{Date: date, Currency: m[3], Amount: amount}, nil
}

// splitAccountID splits a :25: value like 10020030/1234567890 into bank
// code and account number. Trailing currency letters on the account part
// are dropped.
func splitAccountID(s string) (bankCode, accountNumber string) {
	s = strings.TrimSpace(s)
	i := strings.Index(s, "/")
	if i < 0 {
		return "", s
	}
	bankCode = s[:i]
	accountNumber = strings.TrimRight(s[i+1:], "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	return bankCode, strings.TrimSpace(accountNumber)
}

func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// peekTag returns the next tag without consuming it.
func (r *Reader) peekTag() (*tag, error) {
	if r.pending != nil {
		return r.pending, nil
	}
	if r.scanErr != nil {
		return nil, r.scanErr
	}
	var cur *tag
	for {
		line, ok := r.nextLine()
		if !ok {
			break
		}
		if line == "-" || strings.TrimSpace(line) == "" {
			if cur != nil {
				r.pending = cur
				return cur, nil
			}
			continue
		}
		if m := tagStart.FindStringSubmatch(line); m != nil {
			if cur != nil {
				// a new tag begins; only one tag is buffered at a
				// time, so the line is stashed for the next call
				r.stashed = line
				r.hasStashed = true
				r.pending = cur
				return cur, nil
			}
			cur = &tag{name: m[1], value: m[2], raw: line}
			continue
		}
		if cur == nil {
			// preamble noise before the first tag (e.g. envelope headers)
			continue
		}
		cur.value += "\n" + line
		cur.raw += "\n" + line
	}
	if err := r.sc.Err(); err != nil {
		r.scanErr = err
		return nil, err
	}
	r.scanErr = io.EOF
	if cur != nil {
		r.pending = cur
		return cur, nil
	}
	return nil, io.EOF
}

func (r *Reader) nextLine() (string, bool) {
	if r.hasStashed {
		r.hasStashed = false
		return r.stashed, true
	}
	if r.sc.Scan() {
		return strings.TrimRight(r.sc.Text(), "\r"), true
	}
	return "", false
}

func (r *Reader) consumeTag() {
	r.pending = nil
}
