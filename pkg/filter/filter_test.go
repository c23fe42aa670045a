package filter

import (
	"testing"

	"github.com/ArionMiles/mpesaledger/pkg/api"
)

const confirmation = "ABC123 Confirmed.You have received Ksh1,000.00 from JOHN DOE 254712345678 on 1/1/23 at 12:00 PM"

func TestCheck(t *testing.T) {
	tests := []struct {
		name   string
		msg    api.RawMessage
		target string
		want   Verdict
	}{
		{
			name:   "eligible exact case",
			msg:    api.RawMessage{Address: "MPESA", Type: 1, Body: confirmation},
			target: "JOHN DOE",
			want:   VerdictEligible,
		},
		{
			name:   "eligible different case",
			msg:    api.RawMessage{Address: "MPESA", Type: 1, Body: confirmation},
			target: "john doe",
			want:   VerdictEligible,
		},
		{
			name:   "substring inside a longer word",
			msg:    api.RawMessage{Address: "MPESA", Type: 1, Body: confirmation},
			target: "OHN D",
			want:   VerdictEligible,
		},
		{
			name:   "other sender",
			msg:    api.RawMessage{Address: "OTHER", Type: 1, Body: "This should be ignored"},
			target: "JOHN DOE",
			want:   VerdictWrongSender,
		},
		{
			name:   "sender match is case sensitive",
			msg:    api.RawMessage{Address: "mpesa", Type: 1, Body: confirmation},
			target: "JOHN DOE",
			want:   VerdictWrongSender,
		},
		{
			name:   "sent message",
			msg:    api.RawMessage{Address: "MPESA", Type: 2, Body: confirmation},
			target: "JOHN DOE",
			want:   VerdictWrongType,
		},
		{
			name:   "name missing",
			msg:    api.RawMessage{Address: "MPESA", Type: 1, Body: confirmation},
			target: "JANE DOE",
			want:   VerdictNameMissing,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Check(tc.msg, tc.target); got != tc.want {
				t.Errorf("verdict: got %v, want %v", got, tc.want)
			}
			if got, want := Eligible(tc.msg, tc.target), tc.want == VerdictEligible; got != want {
				t.Errorf("eligible: got %v, want %v", got, want)
			}
		})
	}
}

func TestEligible_GatesIgnoreBody(t *testing.T) {
	// A body that names the target and is a valid confirmation must still be
	// rejected when the sender or type gate fails.
	for _, msg := range []api.RawMessage{
		{Address: "OTHER", Type: 1, Body: confirmation},
		{Address: "MPESA", Type: 0, Body: confirmation},
		{Address: "", Type: 1, Body: confirmation},
	} {
		if Eligible(msg, "JOHN DOE") {
			t.Errorf("message %+v should not be eligible", msg)
		}
	}
}
