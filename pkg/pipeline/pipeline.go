// Package pipeline runs backup messages through filter, extractor and ledger.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/mpesaledger/pkg/api"
	"github.com/ArionMiles/mpesaledger/pkg/extract"
	"github.com/ArionMiles/mpesaledger/pkg/filter"
	"github.com/ArionMiles/mpesaledger/pkg/ledger"
	"github.com/ArionMiles/mpesaledger/pkg/reader/smsbackup"
)

// Config holds pipeline settings.
type Config struct {
	// SenderName is matched case-insensitively against message bodies.
	SenderName string
	// RunID identifies this run in logs and the summary.
	RunID string
}

// Summary holds the counters of one run.
type Summary struct {
	RunID              string
	Documents          int
	MalformedDocuments int
	Messages           int
	Ineligible         int
	Mismatched         int
	Duplicates         int
	Appended           int
	// Total is the sum of appended amounts.
	Total decimal.Decimal
	// Output is the ledger location.
	Output string
}

// Pipeline processes messages one at a time, in order.
// It is not safe for concurrent use.
type Pipeline struct {
	cfg       Config
	ledger    *ledger.Ledger
	extractor *extract.Extractor
	reporter  api.Reporter
	logger    *slog.Logger
	summary   Summary
}

// New creates a pipeline over an opened ledger. The caller keeps ownership
// of the ledger and must close it.
func New(cfg Config, l *ledger.Ledger, e *extract.Extractor, r api.Reporter, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if r == nil {
		r = api.ReporterFunc(func(api.Event) {})
	}

	return &Pipeline{
		cfg:       cfg,
		ledger:    l,
		extractor: e,
		reporter:  r,
		logger:    logger,
		summary: Summary{
			RunID:  cfg.RunID,
			Total:  decimal.Zero,
			Output: l.Location(),
		},
	}
}

// Run parses and processes each file in order. Malformed documents are
// reported and skipped; ledger errors and cancellation stop the run.
func (p *Pipeline) Run(ctx context.Context, paths []string) (Summary, error) {
	p.logger.Info("starting run", "files", len(paths), "sender_name", p.cfg.SenderName)

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return p.summary, err
		}

		doc, err := smsbackup.ParseFile(path)
		if err != nil {
			p.ReportMalformed(path, err)
			continue
		}

		if err := p.ProcessDocument(ctx, doc); err != nil {
			return p.summary, err
		}
	}

	p.logger.Info("run complete",
		"appended", p.summary.Appended,
		"duplicates", p.summary.Duplicates,
		"mismatched", p.summary.Mismatched,
		"malformed_documents", p.summary.MalformedDocuments,
	)
	return p.summary, nil
}

// ReportMalformed records a document that could not be parsed.
func (p *Pipeline) ReportMalformed(name string, err error) {
	p.summary.MalformedDocuments++
	p.logger.Warn("skipping malformed document", "document", name, "error", err)
	p.reporter.Report(api.Event{Kind: api.EventMalformedDocument, Document: name, Err: err})
}

// ProcessDocument processes every message of doc.
func (p *Pipeline) ProcessDocument(ctx context.Context, doc smsbackup.Document) error {
	p.summary.Documents++
	p.reporter.Report(api.Event{Kind: api.EventDocument, Document: doc.Name})
	p.logger.Debug("processing document", "document", doc.Name, "messages", len(doc.Messages))

	for _, msg := range doc.Messages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.ProcessMessage(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// ProcessMessage runs one message through filter, extractor and ledger.
// Only ledger failures are returned; everything else becomes an event.
func (p *Pipeline) ProcessMessage(ctx context.Context, msg api.RawMessage) error {
	p.summary.Messages++

	if verdict := filter.Check(msg, p.cfg.SenderName); verdict != filter.VerdictEligible {
		p.summary.Ineligible++
		p.reporter.Report(api.Event{
			Kind:     api.EventIneligible,
			Document: msg.Document,
			Message:  msg,
			Verdict:  verdict,
		})
		return nil
	}

	txn, err := p.extractor.Extract(msg.Body)
	if err != nil {
		var mismatch *extract.MismatchError
		if !errors.As(err, &mismatch) {
			return fmt.Errorf("extracting transaction: %w", err)
		}
		p.summary.Mismatched++
		p.logger.Debug("grammar mismatch", "document", msg.Document, "excerpt", mismatch.Excerpt)
		p.reporter.Report(api.Event{
			Kind:     api.EventNoMatch,
			Document: msg.Document,
			Message:  msg,
			Excerpt:  mismatch.Excerpt,
			Err:      err,
		})
		return nil
	}

	outcome, err := p.ledger.Merge(ctx, txn)
	if err != nil {
		return err
	}

	switch outcome {
	case api.OutcomeDuplicate:
		p.summary.Duplicates++
		p.reporter.Report(api.Event{Kind: api.EventDuplicate, Document: msg.Document, Message: msg, Transaction: txn})
	case api.OutcomeAppended:
		p.summary.Appended++
		if amount, err := txn.AmountValue(); err == nil {
			p.summary.Total = p.summary.Total.Add(amount)
		} else {
			p.logger.Warn("amount not added to total", "reference", txn.Reference, "error", err)
		}
		p.reporter.Report(api.Event{Kind: api.EventAppended, Document: msg.Document, Message: msg, Transaction: txn})
	}
	return nil
}

// Summary returns the counters so far.
func (p *Pipeline) Summary() Summary {
	return p.summary
}
