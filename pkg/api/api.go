// Package api defines the core data structures shared by mpesaledger components.
package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Header is the fixed header row of the ledger. Column KeyColumn holds the reference.
var Header = []string{"Date", "Mpesa Reference", "From Name", "From Phone", "Amount"}

// KeyColumn is the 0-based index of the reference column in a ledger row.
const KeyColumn = 1

// DateLayout parses the Date field of a Transaction ("1/1/23 at 12:00 PM").
const DateLayout = "2/1/06 at 3:04 PM"

// RawMessage is one SMS entry from a backup document.
type RawMessage struct {
	Address string
	Type    int
	Body    string
	// Date is the message timestamp in epoch milliseconds, zero when absent.
	Date int64
	// ContactName is informational only, the filter never looks at it.
	ContactName string
	// Document is the name of the backup file the message came from.
	Document string
}

// Transaction holds a decoded M-PESA confirmation.
// Amount and Date are kept exactly as they appeared in the message.
type Transaction struct {
	Reference string `json:"reference"`
	Amount    string `json:"amount"`
	FromName  string `json:"from_name"`
	FromPhone string `json:"from_phone"`
	Date      string `json:"date"`
}

// Row returns the transaction in ledger column order.
func (t Transaction) Row() []string {
	return []string{t.Date, t.Reference, t.FromName, t.FromPhone, t.Amount}
}

// AmountValue parses the verbatim amount ("1,000.00") into a decimal.
func (t Transaction) AmountValue() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.ReplaceAll(t.Amount, ",", ""))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing amount %q: %w", t.Amount, err)
	}
	return d, nil
}

var meridiem = strings.NewReplacer(" am", " AM", " pm", " PM")

// Time parses the verbatim date in the given location.
// Dates are day/month/year as M-PESA sends them.
func (t Transaction) Time(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	ts, err := time.ParseInLocation(DateLayout, meridiem.Replace(t.Date), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", t.Date, err)
	}
	return ts, nil
}

// Outcome is the result of merging a transaction into the ledger.
// The zero value is returned alongside errors and means nothing was decided.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeAppended
	OutcomeDuplicate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUnknown:
		return "unknown"
	case OutcomeAppended:
		return "appended"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Verdict records which eligibility gate, if any, rejected a message.
type Verdict int

const (
	VerdictEligible Verdict = iota
	VerdictWrongSender
	VerdictWrongType
	VerdictNameMissing
)

func (v Verdict) String() string {
	switch v {
	case VerdictEligible:
		return "eligible"
	case VerdictWrongSender:
		return "sender is not MPESA"
	case VerdictWrongType:
		return "not an inbox message"
	case VerdictNameMissing:
		return "name not found in message"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// EventKind identifies what happened while processing input.
type EventKind string

const (
	EventDocument          EventKind = "document"
	EventMalformedDocument EventKind = "malformed-document"
	EventIneligible        EventKind = "ineligible"
	EventNoMatch           EventKind = "no-grammar-match"
	EventDuplicate         EventKind = "duplicate"
	EventAppended          EventKind = "appended"
)

// Event describes the outcome of one step of a run.
// Only the fields relevant to Kind are set.
type Event struct {
	Kind        EventKind
	Document    string
	Message     RawMessage
	Transaction Transaction
	// Verdict is the failed gate of an ineligible message.
	Verdict Verdict
	// Excerpt is a bounded prefix of a body that did not match the grammar.
	Excerpt string
	Err     error
}

// Reporter receives events as a run progresses.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(Event)

// Report calls f(e).
func (f ReporterFunc) Report(e Event) { f(e) }
