// Package extract decodes M-PESA "received money" confirmations into transactions.
package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ArionMiles/mpesaledger/pkg/api"
)

// DefaultMinReferenceLength is the shortest reference code the grammar accepts.
const DefaultMinReferenceLength = 10

// ExcerptLength bounds the body prefix carried by a MismatchError, in runes.
const ExcerptLength = 120

// maxRepeat is the largest repetition count RE2 accepts.
const maxRepeat = 1000

// ErrNoMatch is returned (wrapped in a *MismatchError) when a body does not
// follow the confirmation grammar.
var ErrNoMatch = errors.New("body does not match confirmation grammar")

// grammar is anchored at the start of the body; anything after the time is ignored.
const grammar = `(?i)^(?P<reference>[A-Z0-9]{%d,})\s+` +
	`Confirmed\.You\s+have\s+received\s+Ksh(?P<amount>[\d,]+\.\d{2})\s+` +
	`from\s+(?P<name>.+?)\s+` +
	`(?P<phone>\d{10,12})\s+` +
	`on\s+(?P<date>\d{1,2}/\d{1,2}/\d{2})\s+at\s+(?P<time>\d{1,2}:\d{2}\s[AP]M)`

// Match is the set of named captures produced by the grammar.
type Match struct {
	Reference string
	Amount    string
	Name      string
	Phone     string
	Date      string
	Time      string
}

// Transaction assembles the ledger record from the captures.
func (m Match) Transaction() api.Transaction {
	return api.Transaction{
		Reference: m.Reference,
		Amount:    m.Amount,
		FromName:  strings.TrimSpace(m.Name),
		FromPhone: m.Phone,
		Date:      m.Date + " at " + m.Time,
	}
}

// MismatchError reports a body that failed the grammar.
type MismatchError struct {
	// Excerpt is the start of the offending body, at most ExcerptLength runes.
	Excerpt string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%v: %q", ErrNoMatch, e.Excerpt)
}

func (e *MismatchError) Unwrap() error { return ErrNoMatch }

// Extractor applies the confirmation grammar. It holds no mutable state and
// may be shared.
type Extractor struct {
	re     *regexp.Regexp
	minRef int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMinReferenceLength changes the minimum reference length.
func WithMinReferenceLength(n int) Option {
	return func(e *Extractor) {
		e.minRef = n
	}
}

// New compiles the grammar.
func New(opts ...Option) (*Extractor, error) {
	e := &Extractor{minRef: DefaultMinReferenceLength}
	for _, opt := range opts {
		opt(e)
	}

	if e.minRef < 1 || e.minRef > maxRepeat {
		return nil, fmt.Errorf("minimum reference length must be between 1 and %d, got %d", maxRepeat, e.minRef)
	}

	re, err := regexp.Compile(fmt.Sprintf(grammar, e.minRef))
	if err != nil {
		return nil, fmt.Errorf("compiling grammar: %w", err)
	}
	e.re = re
	return e, nil
}

// MinReferenceLength returns the configured minimum reference length.
func (e *Extractor) MinReferenceLength() int {
	return e.minRef
}

// Match applies the grammar and returns the named captures.
func (e *Extractor) Match(body string) (Match, bool) {
	sub := e.re.FindStringSubmatch(body)
	if sub == nil {
		return Match{}, false
	}

	var m Match
	for i, name := range e.re.SubexpNames() {
		switch name {
		case "reference":
			m.Reference = sub[i]
		case "amount":
			m.Amount = sub[i]
		case "name":
			m.Name = sub[i]
		case "phone":
			m.Phone = sub[i]
		case "date":
			m.Date = sub[i]
		case "time":
			m.Time = sub[i]
		}
	}
	return m, true
}

// Extract decodes body into a transaction. A body that does not follow the
// grammar yields a *MismatchError and a zero Transaction.
func (e *Extractor) Extract(body string) (api.Transaction, error) {
	m, ok := e.Match(body)
	if !ok {
		return api.Transaction{}, &MismatchError{Excerpt: Excerpt(body, ExcerptLength)}
	}
	return m.Transaction(), nil
}

// Excerpt returns at most n runes from the start of s.
func Excerpt(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
