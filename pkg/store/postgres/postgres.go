// Package postgres provides a PostgreSQL ledger store.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ArionMiles/mpesaledger/pkg/api"
)

//go:embed 001_create_mpesa_transactions.sql
var migrationSQL string

// Config holds the PostgreSQL store configuration.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// MaxPoolSize is the maximum number of connections in the pool.
	MaxPoolSize int

	// RunID tags every row written by this run.
	RunID uuid.UUID
	// Location is used to parse transaction dates. Defaults to East Africa Time.
	Location *time.Location
}

// Store keeps the ledger in the mpesa_transactions table. The reference
// column is unique, so the table enforces the ledger invariant as well.
type Store struct {
	pool     *pgxpool.Pool
	logger   *slog.Logger
	runID    uuid.UUID
	location *time.Location
	dsn      string
}

// EAT is the fixed UTC+3 zone M-PESA timestamps are expressed in.
var EAT = time.FixedZone("EAT", 3*60*60)

// New connects to PostgreSQL and runs the migration.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Host == "" {
		return nil, errors.New("postgres store: host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 4
	}
	if cfg.Location == nil {
		cfg.Location = EAT
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxPoolSize)
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("connected to PostgreSQL",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Database,
	)

	s := &Store{
		pool:     pool,
		logger:   logger,
		runID:    cfg.RunID,
		location: cfg.Location,
		dsn:      fmt.Sprintf("postgres://%s:%d/%s", cfg.Host, cfg.Port, cfg.Database),
	}

	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

func (s *Store) runMigrations(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, migrationSQL); err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}
	s.logger.Debug("migrations completed")
	return nil
}

// Location returns the database address without credentials.
func (s *Store) Location() string {
	return s.dsn
}

// Load returns all recorded references in insertion order.
func (s *Store) Load(ctx context.Context) ([]string, error) {
	return s.References(ctx)
}

// References returns all recorded references in insertion order.
func (s *Store) References(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT reference FROM mpesa_transactions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying references: %w", err)
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scanning reference: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading references: %w", err)
	}

	return refs, nil
}

// Append inserts txn. A reference that another writer recorded in the
// meantime is left untouched.
func (s *Store) Append(ctx context.Context, txn api.Transaction) error {
	args := insertArgs(txn, s.location, s.runID)

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO mpesa_transactions (
			reference, date, occurred_at, from_name, from_phone, amount, amount_kes, run_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7::text::numeric, $8::text::uuid)
		ON CONFLICT (reference) DO NOTHING
	`, args...)
	if err != nil {
		return fmt.Errorf("inserting transaction: %w", err)
	}

	if tag.RowsAffected() == 0 {
		s.logger.Warn("reference already present in database", "reference", txn.Reference)
	}
	return nil
}

// insertArgs maps txn onto the insert parameters. Fields that do not parse
// are stored as NULL; the verbatim columns are always set.
func insertArgs(txn api.Transaction, loc *time.Location, runID uuid.UUID) []any {
	var occurredAt *time.Time
	if ts, err := txn.Time(loc); err == nil {
		occurredAt = &ts
	}

	var amount *string
	if d, err := txn.AmountValue(); err == nil {
		v := d.StringFixed(2)
		amount = &v
	}

	var run *string
	if runID != uuid.Nil {
		v := runID.String()
		run = &v
	}

	return []any{
		txn.Reference,
		txn.Date,
		occurredAt,
		txn.FromName,
		txn.FromPhone,
		txn.Amount,
		amount,
		run,
	}
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
		s.logger.Info("closed PostgreSQL connection pool")
	}
	return nil
}
