// Package ledger deduplicates transactions against a persisted, append-only store.
//
// A Ledger moves through Uninitialized -> Loaded -> Closed. Open performs the
// single load of known references; Merge may only be called while Loaded.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ArionMiles/mpesaledger/pkg/api"
)

var (
	// ErrUnreadable means the persisted store could not be loaded.
	ErrUnreadable = errors.New("ledger unreadable")
	// ErrUnwritable means a record could not be appended to the store.
	ErrUnwritable = errors.New("ledger unwritable")
	// ErrClosed is returned by Merge after Close.
	ErrClosed = errors.New("ledger closed")
)

// Store persists ledger rows. Implementations must write each appended
// record as a unit and never modify rows already written.
type Store interface {
	// Load returns every reference currently recorded, in row order.
	Load(ctx context.Context) ([]string, error)
	// Append persists one record at the end of the ledger.
	Append(ctx context.Context, txn api.Transaction) error
	// Close flushes and releases the store.
	Close() error
	// Location describes where the ledger lives, for reporting.
	Location() string
}

type state int

const (
	stateLoaded state = iota + 1
	stateClosed
)

// Ledger owns the set of known references and the store behind it.
// It is not safe for concurrent use.
type Ledger struct {
	store  Store
	known  map[string]struct{}
	state  state
	logger *slog.Logger
}

// Open loads the known references from store. The store is closed when
// loading fails.
func Open(ctx context.Context, store Store, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	refs, err := store.Load(ctx)
	if err != nil {
		if closeErr := store.Close(); closeErr != nil {
			logger.Warn("failed to close store after load error", "error", closeErr)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreadable, store.Location(), err)
	}

	known := make(map[string]struct{}, len(refs))
	repeated := 0
	for _, ref := range refs {
		if _, ok := known[ref]; ok {
			repeated++
			continue
		}
		known[ref] = struct{}{}
	}
	if repeated > 0 {
		logger.Warn("ledger already contains repeated references", "count", repeated, "location", store.Location())
	}

	logger.Info("ledger loaded", "location", store.Location(), "references", len(known))

	return &Ledger{
		store:  store,
		known:  known,
		state:  stateLoaded,
		logger: logger,
	}, nil
}

// Merge appends txn unless its reference is already recorded.
func (l *Ledger) Merge(ctx context.Context, txn api.Transaction) (api.Outcome, error) {
	if l.state != stateLoaded {
		return api.OutcomeUnknown, ErrClosed
	}

	if _, ok := l.known[txn.Reference]; ok {
		l.logger.Debug("duplicate reference", "reference", txn.Reference)
		return api.OutcomeDuplicate, nil
	}

	if err := l.store.Append(ctx, txn); err != nil {
		return api.OutcomeUnknown, fmt.Errorf("%w: appending %s: %w", ErrUnwritable, txn.Reference, err)
	}
	l.known[txn.Reference] = struct{}{}

	l.logger.Debug("appended transaction", "reference", txn.Reference, "amount", txn.Amount)
	return api.OutcomeAppended, nil
}

// Known reports whether ref is already recorded.
func (l *Ledger) Known(ref string) bool {
	_, ok := l.known[ref]
	return ok
}

// Len returns the number of distinct references recorded.
func (l *Ledger) Len() int {
	return len(l.known)
}

// Location returns the store location.
func (l *Ledger) Location() string {
	return l.store.Location()
}

// Close releases the store. Calling Close more than once is a no-op.
func (l *Ledger) Close() error {
	if l.state == stateClosed {
		return nil
	}
	l.state = stateClosed

	if err := l.store.Close(); err != nil {
		return fmt.Errorf("closing ledger: %w", err)
	}
	l.logger.Info("ledger closed", "location", l.store.Location(), "references", len(l.known))
	return nil
}
