package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/ArionMiles/mpesaledger/pkg/api"
	"github.com/ArionMiles/mpesaledger/pkg/extract"
	"github.com/ArionMiles/mpesaledger/pkg/filter"
	"github.com/ArionMiles/mpesaledger/pkg/pipeline"
)

// debugExcerptLength bounds the body shown for messages missing the sender name.
const debugExcerptLength = 80

// consoleReporter prints run progress for a terminal.
type consoleReporter struct {
	out    io.Writer
	sender string
	debug  bool

	document  *color.Color
	potential *color.Color
	matched   *color.Color
	comment   *color.Color
	failure   *color.Color
	results   *color.Color
}

func newConsoleReporter(out io.Writer, sender string, debug bool) *consoleReporter {
	return &consoleReporter{
		out:       out,
		sender:    sender,
		debug:     debug,
		document:  color.New(color.FgBlue),
		potential: color.New(color.FgGreen),
		matched:   color.New(color.FgGreen, color.Bold),
		comment:   color.New(color.FgYellow),
		failure:   color.New(color.FgRed),
		results:   color.New(color.FgMagenta, color.Bold),
	}
}

// Report implements api.Reporter.
func (r *consoleReporter) Report(e api.Event) {
	switch e.Kind {
	case api.EventDocument:
		fmt.Fprintln(r.out)
		r.document.Fprintf(r.out, "Processing %s\n", e.Document)

	case api.EventMalformedDocument:
		fmt.Fprintln(r.out)
		r.failure.Fprintf(r.out, "Invalid XML in %s: %v\n", e.Document, e.Err)

	case api.EventIneligible:
		if !r.debug || e.Verdict != filter.VerdictNameMissing {
			return
		}
		r.comment.Fprintf(r.out, "Name '%s' not found in message:\n", r.sender)
		fmt.Fprintf(r.out, "  %s...\n", extract.Excerpt(e.Message.Body, debugExcerptLength))

	case api.EventNoMatch:
		r.potential.Fprintln(r.out, "  Potential match found!")
		r.failure.Fprintln(r.out, "  PATTERN DIDN'T MATCH:")
		fmt.Fprintf(r.out, "  %s...\n", e.Excerpt)

	case api.EventDuplicate:
		r.potential.Fprintln(r.out, "  Potential match found!")
		r.comment.Fprintf(r.out, "  Duplicate reference %s — Skipping\n", e.Transaction.Reference)

	case api.EventAppended:
		t := e.Transaction
		r.potential.Fprintln(r.out, "  Potential match found!")
		r.matched.Fprintln(r.out, "  MATCHED TRANSACTION:")
		fmt.Fprintf(r.out, "    Ref: %s\n", t.Reference)
		fmt.Fprintf(r.out, "    From: %s\n", t.FromName)
		fmt.Fprintf(r.out, "    Phone: %s\n", t.FromPhone)
		fmt.Fprintf(r.out, "    Amount: %s\n", t.Amount)
		fmt.Fprintf(r.out, "    Date: %s\n", t.Date)
	}
}

// Results prints the run summary.
func (r *consoleReporter) Results(s pipeline.Summary) {
	fmt.Fprintln(r.out)
	r.results.Fprintln(r.out, "RESULTS:")
	fmt.Fprintf(r.out, "- Found %d new transactions (Ksh%s)\n", s.Appended, s.Total.StringFixed(2))
	fmt.Fprintf(r.out, "- Skipped %d duplicate references\n", s.Duplicates)
	if s.Mismatched > 0 {
		fmt.Fprintf(r.out, "- %d messages did not match the confirmation pattern\n", s.Mismatched)
	}
	if s.MalformedDocuments > 0 {
		fmt.Fprintf(r.out, "- %d backup files could not be read\n", s.MalformedDocuments)
	}
	fmt.Fprintf(r.out, "- Output saved to %s\n", s.Output)
}
