package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/ArionMiles/mpesaledger/pkg/client"
	"github.com/ArionMiles/mpesaledger/pkg/config"
	"github.com/ArionMiles/mpesaledger/pkg/extract"
	"github.com/ArionMiles/mpesaledger/pkg/ledger"
	"github.com/ArionMiles/mpesaledger/pkg/pipeline"
	"github.com/ArionMiles/mpesaledger/pkg/reader/smsbackup"
	csvstore "github.com/ArionMiles/mpesaledger/pkg/store/csv"
	jsonlstore "github.com/ArionMiles/mpesaledger/pkg/store/jsonl"
	pgstore "github.com/ArionMiles/mpesaledger/pkg/store/postgres"
	sheetsstore "github.com/ArionMiles/mpesaledger/pkg/store/sheets"
)

// runLedger merges every matching backup into the configured ledger.
// The ledger is closed on every path, including failures mid-run.
func runLedger(ctx context.Context, cfg config.Config, senderName string, out io.Writer, logger *slog.Logger, debug bool) (summary pipeline.Summary, err error) {
	senderName = strings.TrimSpace(senderName)
	if senderName == "" {
		return summary, errors.New("sender_name must not be empty")
	}

	extractor, err := extract.New(extract.WithMinReferenceLength(cfg.MinReferenceLength))
	if err != nil {
		return summary, fmt.Errorf("creating extractor: %w", err)
	}

	files, err := smsbackup.Discover(cfg.SMSPattern)
	if err != nil {
		return summary, err
	}
	if len(files) == 0 {
		logger.Warn("no backup documents found", "pattern", cfg.SMSPattern)
	}

	runID := uuid.New()
	store, err := openStore(ctx, cfg, runID, logger)
	if err != nil {
		return summary, err
	}

	l, err := ledger.Open(ctx, store, logger.With("component", "ledger"))
	if err != nil {
		return summary, err
	}
	defer func() {
		if closeErr := l.Close(); closeErr != nil {
			logger.Error("failed to close ledger", "error", closeErr)
			err = errors.Join(err, closeErr)
		}
	}()

	reporter := newConsoleReporter(out, senderName, debug)
	p := pipeline.New(pipeline.Config{
		SenderName: senderName,
		RunID:      runID.String(),
	}, l, extractor, reporter, logger.With("component", "pipeline", "run_id", runID.String()))

	summary, err = p.Run(ctx, files)
	reporter.Results(summary)
	if err != nil {
		return summary, fmt.Errorf("run stopped: %w", err)
	}
	return summary, nil
}

// openStore creates the ledger store selected by cfg.LedgerStore.
func openStore(ctx context.Context, cfg config.Config, runID uuid.UUID, logger *slog.Logger) (ledger.Store, error) {
	switch cfg.LedgerStore {
	case config.StoreCSV:
		s, err := csvstore.New(csvstore.Config{FilePath: cfg.LedgerOutput}, logger.With("component", "csv_store"))
		if err != nil {
			return nil, err
		}
		return s, nil

	case config.StoreJSONL:
		s, err := jsonlstore.New(jsonlstore.Config{FilePath: cfg.LedgerOutput}, logger.With("component", "jsonl_store"))
		if err != nil {
			return nil, err
		}
		return s, nil

	case config.StorePostgres:
		s, err := pgstore.New(ctx, pgstore.Config{
			Host:        cfg.PostgresHost,
			Port:        cfg.PostgresPort,
			Database:    cfg.PostgresDatabase,
			User:        cfg.PostgresUser,
			Password:    cfg.PostgresPassword,
			SSLMode:     cfg.PostgresSSLMode,
			MaxPoolSize: cfg.PostgresMaxPoolSize,
			RunID:       runID,
		}, logger.With("component", "postgres_store"))
		if err != nil {
			return nil, err
		}
		return s, nil

	case config.StoreSheets:
		httpClient, err := client.New(ctx, cfg.GoogleCredentialsFile, sheetsapi.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("creating http client: %w", err)
		}
		s, err := sheetsstore.New(ctx, sheetsstore.Config{
			SpreadsheetID: cfg.GSheetsID,
			SheetName:     cfg.GSheetsName,
		}, logger.With("component", "sheets_store"), option.WithHTTPClient(httpClient))
		if err != nil {
			return nil, err
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown ledger store %q", cfg.LedgerStore)
	}
}
