// Package sheets implements the ledger store on a Google Sheets tab.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/ArionMiles/mpesaledger/pkg/api"
)

// Default retry settings for rate-limited appends.
const (
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 60 * time.Second
)

// Config holds configuration for the Sheets store.
type Config struct {
	// SpreadsheetID is the ID of an existing spreadsheet.
	SpreadsheetID string
	// SheetName is the tab holding the ledger.
	SheetName string
	// RetryAttempts is the number of tries for a rate-limited append.
	RetryAttempts uint
	// RetryDelay is the wait between tries.
	RetryDelay time.Duration
}

// Store keeps ledger rows on one sheet tab, header in row 1.
type Store struct {
	client        *sheets.Service
	spreadsheetID string
	sheetName     string
	attempts      uint
	delay         time.Duration
	logger        *slog.Logger
}

// New creates a Sheets store. Pass option.WithHTTPClient with an
// authenticated client.
func New(ctx context.Context, cfg Config, logger *slog.Logger, opts ...option.ClientOption) (*Store, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("sheets store: spreadsheet ID is required")
	}
	if cfg.SheetName == "" {
		return nil, errors.New("sheets store: sheet name is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = DefaultRetryAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}

	client, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	return &Store{
		client:        client,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     cfg.SheetName,
		attempts:      cfg.RetryAttempts,
		delay:         cfg.RetryDelay,
		logger:        logger,
	}, nil
}

// Location identifies the spreadsheet tab.
func (s *Store) Location() string {
	return fmt.Sprintf("sheets:%s/%s", s.spreadsheetID, s.sheetName)
}

func (s *Store) rangeOf(cells string) string {
	return fmt.Sprintf("'%s'!%s", s.sheetName, cells)
}

// Load reads the reference column. An empty sheet gets the header row.
func (s *Store) Load(ctx context.Context) ([]string, error) {
	rows, err := s.rows(ctx)
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		if err := s.writeHeaders(ctx); err != nil {
			return nil, fmt.Errorf("writing headers: %w", err)
		}
		return nil, nil
	}

	refs := references(rows)
	s.logger.Info("sheet ledger loaded", "location", s.Location(), "rows", len(refs))
	return refs, nil
}

// References reads the reference column and leaves an empty sheet as it is.
func (s *Store) References(ctx context.Context) ([]string, error) {
	rows, err := s.rows(ctx)
	if err != nil {
		return nil, err
	}
	return references(rows), nil
}

func (s *Store) rows(ctx context.Context) ([][]any, error) {
	resp, err := s.client.Spreadsheets.Values.Get(s.spreadsheetID, s.rangeOf("A:E")).
		MajorDimension("ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("reading sheet: %w", err)
	}
	return resp.Values, nil
}

// references extracts the key column from data rows, skipping the header.
func references(rows [][]any) []string {
	if len(rows) <= 1 {
		return nil
	}

	refs := make([]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) <= api.KeyColumn {
			continue
		}
		ref, ok := row[api.KeyColumn].(string)
		if !ok || ref == "" {
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}

func (s *Store) writeHeaders(ctx context.Context) error {
	header := make([]any, len(api.Header))
	for i, h := range api.Header {
		header[i] = h
	}

	_, err := s.client.Spreadsheets.Values.Update(s.spreadsheetID, s.rangeOf("A1:E1"), &sheets.ValueRange{
		Values: [][]any{header},
	}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("updating headers: %w", err)
	}

	s.logger.Info("wrote headers to sheet", "location", s.Location())
	return nil
}

// Append adds one row. Values are written RAW so amounts and dates stay
// verbatim. Rate-limited calls are retried.
func (s *Store) Append(ctx context.Context, txn api.Transaction) error {
	row := make([]any, 0, len(api.Header))
	for _, v := range txn.Row() {
		row = append(row, v)
	}
	req := &sheets.ValueRange{Values: [][]any{row}}

	err := retry.Do(
		func() error {
			_, err := s.client.Spreadsheets.Values.Append(s.spreadsheetID, s.rangeOf("A:E"), req).
				ValueInputOption("RAW").
				InsertDataOption("INSERT_ROWS").
				Context(ctx).
				Do()
			return err
		},
		retry.RetryIf(func(err error) bool {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
				s.logger.Warn("rate limited, will retry", "reference", txn.Reference, "error", err)
				return true
			}
			return false
		}),
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return fmt.Errorf("appending row to sheet: %w", err)
	}

	s.logger.Debug("wrote transaction to sheet", "reference", txn.Reference)
	return nil
}

// Close is a no-op; the service holds no resources beyond its HTTP client.
func (s *Store) Close() error {
	return nil
}
