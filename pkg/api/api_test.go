package api

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestTransactionRow(t *testing.T) {
	txn := Transaction{
		Reference: "QAB1CD2EF3",
		Amount:    "1,000.00",
		FromName:  "JOHN DOE",
		FromPhone: "254712345678",
		Date:      "1/1/23 at 12:00 PM",
	}

	row := txn.Row()
	if len(row) != len(Header) {
		t.Fatalf("row has %d columns, header has %d", len(row), len(Header))
	}
	if row[KeyColumn] != txn.Reference {
		t.Errorf("key column: got %q, want %q", row[KeyColumn], txn.Reference)
	}
	if row[0] != txn.Date || row[4] != txn.Amount {
		t.Errorf("unexpected row order: %v", row)
	}
}

func TestTransactionAmountValue(t *testing.T) {
	tests := []struct {
		amount  string
		want    string
		wantErr bool
	}{
		{"1,000.00", "1000", false},
		{"12,345,678.90", "12345678.9", false},
		{"50.05", "50.05", false},
		{"", "", true},
		{"abc", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.amount, func(t *testing.T) {
			got, err := Transaction{Amount: tc.amount}.AmountValue()
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.amount)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(decimal.RequireFromString(tc.want)) {
				t.Errorf("amount: got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestTransactionTime(t *testing.T) {
	tests := []struct {
		date    string
		want    time.Time
		wantErr bool
	}{
		{"1/1/23 at 12:00 PM", time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC), false},
		{"15/3/24 at 9:05 AM", time.Date(2024, 3, 15, 9, 5, 0, 0, time.UTC), false},
		{"15/3/24 at 9:05 pm", time.Date(2024, 3, 15, 21, 5, 0, 0, time.UTC), false},
		{"3/15/24 at 9:05 AM", time.Time{}, true},
	}

	for _, tc := range tests {
		t.Run(tc.date, func(t *testing.T) {
			got, err := Transaction{Date: tc.date}.Time(nil)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.date)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Errorf("time: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestOutcomeString(t *testing.T) {
	tests := []struct {
		outcome Outcome
		want    string
	}{
		{OutcomeUnknown, "unknown"},
		{OutcomeAppended, "appended"},
		{OutcomeDuplicate, "duplicate"},
		{Outcome(42), "outcome(42)"},
	}
	for _, tc := range tests {
		if got := tc.outcome.String(); got != tc.want {
			t.Errorf("got %q, want %q", got, tc.want)
		}
	}

	var zero Outcome
	if zero != OutcomeUnknown {
		t.Errorf("zero outcome is %v, want unknown", zero)
	}
}

func TestVerdictString(t *testing.T) {
	if got := VerdictNameMissing.String(); got != "name not found in message" {
		t.Errorf("got %q", got)
	}
	if got := Verdict(9).String(); got != "verdict(9)" {
		t.Errorf("got %q", got)
	}
}
