// Package filter decides which SMS messages are worth handing to the extractor.
package filter

import (
	"strings"

	"github.com/ArionMiles/mpesaledger/pkg/api"
)

const (
	// Sender is the address M-PESA confirmations are delivered from.
	Sender = "MPESA"
	// TypeInbox is the backup type code of a received message.
	TypeInbox = 1
)

// Verdict is the gate outcome; see api.Verdict.
type Verdict = api.Verdict

const (
	VerdictEligible    = api.VerdictEligible
	VerdictWrongSender = api.VerdictWrongSender
	VerdictWrongType   = api.VerdictWrongType
	VerdictNameMissing = api.VerdictNameMissing
)

// Check runs the gates in order and returns the first one that fails.
// The name match is a case-insensitive substring test, not a token match.
func Check(msg api.RawMessage, target string) Verdict {
	if msg.Address != Sender {
		return VerdictWrongSender
	}
	if msg.Type != TypeInbox {
		return VerdictWrongType
	}
	if !strings.Contains(strings.ToLower(msg.Body), strings.ToLower(target)) {
		return VerdictNameMissing
	}
	return VerdictEligible
}

// Eligible reports whether msg should be passed to the extractor.
func Eligible(msg api.RawMessage, target string) bool {
	return Check(msg, target) == VerdictEligible
}
