// Package csv implements the ledger store as an append-only CSV file.
package csv

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"

	"github.com/ArionMiles/mpesaledger/pkg/api"
)

// amountPattern matches a fully written amount cell.
var amountPattern = regexp.MustCompile(`^[\d,]+\.\d{2}$`)

// Store reads and appends ledger rows in a CSV file.
type Store struct {
	filePath string
	file     *os.File
	logger   *slog.Logger
}

// Config holds configuration for the CSV store.
type Config struct {
	// FilePath is the path to the ledger file. Load creates it with a header
	// row when it does not exist.
	FilePath string
}

// New creates a CSV store. The file is not touched until Load.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.FilePath == "" {
		return nil, errors.New("csv store: file path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		filePath: cfg.FilePath,
		logger:   logger,
	}, nil
}

// Location returns the ledger file path.
func (s *Store) Location() string {
	return s.filePath
}

// Load reads the references of every existing row and opens the file for
// appending. The header is written when the file is new or empty. An
// unterminated last row that is not a complete record is cut off, so the
// transaction it held is appended again in full.
func (s *Store) Load(ctx context.Context) ([]string, error) {
	if s.file != nil {
		return nil, errors.New("csv store already loaded")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	refs, complete, err := s.readReferences()
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(s.filePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening csv file: %w", err)
	}

	if err := s.prepare(file, complete); err != nil {
		if closeErr := file.Close(); closeErr != nil {
			return nil, fmt.Errorf("%w (close error: %w)", err, closeErr)
		}
		return nil, err
	}

	s.file = file
	s.logger.Info("csv ledger opened", "file", s.filePath, "rows", len(refs))
	return refs, nil
}

// References returns the references Load would report without creating or
// repairing the file.
func (s *Store) References(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	refs, _, err := s.readReferences()
	return refs, err
}

// readReferences returns the references of every complete row and the
// length of the file prefix those rows occupy.
func (s *Store) readReferences() ([]string, int64, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("reading csv file: %w", err)
	}

	body, tail := data, []byte(nil)
	if len(data) > 0 && data[len(data)-1] != '\n' {
		cut := bytes.LastIndexByte(data, '\n') + 1
		body, tail = data[:cut], data[cut:]
	}

	refs, lines, err := s.parseRows(body)
	if err != nil {
		return nil, 0, err
	}
	if tail == nil {
		return refs, int64(len(data)), nil
	}

	if record, ok := completeRow(tail, lines == 0); ok {
		if lines == 0 {
			s.checkHeader(record)
		} else {
			refs = append(refs, record[api.KeyColumn])
		}
		return refs, int64(len(data)), nil
	}

	s.logger.Warn("discarding incomplete last csv row", "file", s.filePath, "line", lines+1, "row", string(tail))
	return refs, int64(len(body)), nil
}

// parseRows reads newline-terminated rows. The first row is the header.
func (s *Store) parseRows(body []byte) ([]string, int, error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	var refs []string
	line := 0
	for ; ; line++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("reading csv file: %w", err)
		}

		if line == 0 {
			s.checkHeader(record)
			continue
		}

		if len(record) <= api.KeyColumn || record[api.KeyColumn] == "" {
			s.logger.Warn("skipping csv row without reference", "file", s.filePath, "line", line+1)
			continue
		}
		refs = append(refs, record[api.KeyColumn])
	}

	return refs, line, nil
}

func (s *Store) checkHeader(record []string) {
	if !slices.Equal(record, api.Header) {
		s.logger.Warn("unexpected csv header, treating first row as header", "file", s.filePath, "header", record)
	}
}

// completeRow reports whether an unterminated line holds a whole record:
// every column present, and for data rows a reference and a full amount.
func completeRow(line []byte, header bool) ([]string, bool) {
	record, err := csv.NewReader(bytes.NewReader(line)).Read()
	if err != nil || len(record) != len(api.Header) {
		return nil, false
	}
	if header {
		return record, true
	}
	if record[api.KeyColumn] == "" || !amountPattern.MatchString(record[len(record)-1]) {
		return nil, false
	}
	return record, true
}

// prepare cuts the file back to its complete rows, writes the header into
// an empty file and terminates a last row that lacks its newline.
func (s *Store) prepare(file *os.File, complete int64) error {
	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}

	size := stat.Size()
	if size > complete {
		if err := file.Truncate(complete); err != nil {
			return fmt.Errorf("removing incomplete last row: %w", err)
		}
		size = complete
	}

	if size == 0 {
		if err := s.writeRecord(file, api.Header); err != nil {
			return fmt.Errorf("writing headers: %w", err)
		}
		return nil
	}

	last := make([]byte, 1)
	if _, err := file.ReadAt(last, size-1); err != nil {
		return fmt.Errorf("reading csv file tail: %w", err)
	}
	if last[0] != '\n' {
		s.logger.Warn("csv file does not end with a newline, terminating last row", "file", s.filePath)
		if _, err := file.Write([]byte("\n")); err != nil {
			return fmt.Errorf("terminating last row: %w", err)
		}
	}
	return nil
}

// Append writes one row. The row is encoded in memory first and written
// with a single call, then synced.
func (s *Store) Append(ctx context.Context, txn api.Transaction) error {
	if s.file == nil {
		return errors.New("csv store not loaded")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.writeRecord(s.file, txn.Row()); err != nil {
		return fmt.Errorf("writing csv record: %w", err)
	}

	s.logger.Debug("wrote transaction to csv", "reference", txn.Reference)
	return nil
}

func (s *Store) writeRecord(file *os.File, record []string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(record); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	if _, err := file.Write(buf.Bytes()); err != nil {
		return err
	}
	return file.Sync()
}

// Close closes the CSV file.
func (s *Store) Close() error {
	if s.file == nil {
		return nil
	}

	err := s.file.Close()
	s.file = nil
	if err != nil {
		return fmt.Errorf("closing csv file: %w", err)
	}

	s.logger.Info("csv ledger closed", "file", s.filePath)
	return nil
}
