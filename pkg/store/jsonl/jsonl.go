// Package jsonl implements the ledger store as a JSON Lines file, one
// transaction object per line.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/ArionMiles/mpesaledger/pkg/api"
)

// maxLineSize bounds a single ledger line.
const maxLineSize = 1 << 20

// Store reads and appends transactions in a JSON Lines file.
type Store struct {
	filePath string
	file     *os.File
	logger   *slog.Logger
}

// Config holds configuration for the JSON Lines store.
type Config struct {
	// FilePath is the path to the ledger file.
	FilePath string
}

// New creates a JSON Lines store.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.FilePath == "" {
		return nil, errors.New("jsonl store: file path is required")
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

// Load returns the references of existing entries and opens the file for appending.
func (s *Store) Load(ctx context.Context) ([]string, error) {
	if s.file != nil {
		return nil, errors.New("jsonl store already loaded")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	refs, err := s.loadExisting()
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(s.filePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening jsonl file: %w", err)
	}

	if err := terminate(file); err != nil {
		if closeErr := file.Close(); closeErr != nil {
			return nil, fmt.Errorf("%w (close error: %w)", err, closeErr)
		}
		return nil, err
	}

	s.file = file
	s.logger.Info("jsonl ledger opened", "file", s.filePath, "existing_count", len(refs))
	return refs, nil
}

// References returns the references of existing entries without creating
// or repairing the file.
func (s *Store) References(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.loadExisting()
}

// loadExisting reads existing entries if the file exists. A line that is not
// valid JSON is skipped with a warning; it cannot hold a trustworthy reference.
func (s *Store) loadExisting() ([]string, error) {
	f, err := os.Open(s.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening jsonl file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var refs []string
	for line := 1; scanner.Scan(); line++ {
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}

		var txn api.Transaction
		if err := json.Unmarshal(data, &txn); err != nil {
			s.logger.Warn("skipping invalid jsonl line", "file", s.filePath, "line", line, "error", err)
			continue
		}
		if txn.Reference == "" {
			s.logger.Warn("skipping jsonl line without reference", "file", s.filePath, "line", line)
			continue
		}
		refs = append(refs, txn.Reference)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading jsonl file: %w", err)
	}

	return refs, nil
}

func terminate(file *os.File) error {
	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat jsonl file: %w", err)
	}
	if stat.Size() == 0 {
		return nil
	}

	last := make([]byte, 1)
	if _, err := file.ReadAt(last, stat.Size()-1); err != nil {
		return fmt.Errorf("reading jsonl file tail: %w", err)
	}
	if last[0] == '\n' {
		return nil
	}
	if _, err := file.Write([]byte("\n")); err != nil {
		return fmt.Errorf("terminating last line: %w", err)
	}
	return nil
}

// Append writes txn as one line with a single write call.
func (s *Store) Append(ctx context.Context, txn api.Transaction) error {
	if s.file == nil {
		return errors.New("jsonl store not loaded")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(txn)
	if err != nil {
		return fmt.Errorf("marshaling json: %w", err)
	}
	data = append(data, '\n')

	if _, err := s.file.Write(data); err != nil {
		return fmt.Errorf("writing jsonl file: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("syncing jsonl file: %w", err)
	}

	s.logger.Debug("wrote transaction to jsonl", "reference", txn.Reference)
	return nil
}

// Close closes the file.
func (s *Store) Close() error {
	if s.file == nil {
		return nil
	}

	err := s.file.Close()
	s.file = nil
	if err != nil {
		return fmt.Errorf("closing jsonl file: %w", err)
	}
	return nil
}
