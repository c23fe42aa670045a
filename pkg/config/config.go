// Package config loads mpesaledger settings from a .env file, an optional
// JSON file and the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	kJson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ArionMiles/mpesaledger/pkg/extract"
	"github.com/ArionMiles/mpesaledger/pkg/reader/smsbackup"
)

// Store backends.
const (
	StoreCSV      = "csv"
	StoreJSONL    = "jsonl"
	StorePostgres = "postgres"
	StoreSheets   = "sheets"
)

// Stores lists the supported LEDGER_STORE values.
var Stores = []string{StoreCSV, StoreJSONL, StorePostgres, StoreSheets}

const (
	// DotEnvFile is read when present; missing is not an error.
	DotEnvFile = ".env"
	// ClientSecretFile is the default path to the Google service account JSON file.
	ClientSecretFile = "data/client_secret.json"
	// DefaultOutput is the default ledger file.
	DefaultOutput = "mpesa_transactions.csv"
)

// Config holds the application configuration.
type Config struct {
	// LedgerStore selects the ledger backend: csv, jsonl, postgres or sheets.
	// Environment variable: LEDGER_STORE
	LedgerStore string `koanf:"LEDGER_STORE"`

	// LedgerOutput is the ledger file for the csv and jsonl stores.
	// Environment variable: LEDGER_OUTPUT
	LedgerOutput string `koanf:"LEDGER_OUTPUT"`

	// SMSPattern is the glob for backup documents.
	// Environment variable: SMS_PATTERN
	SMSPattern string `koanf:"SMS_PATTERN"`

	// MinReferenceLength is the shortest reference the extractor accepts.
	// Environment variable: MIN_REFERENCE_LENGTH
	MinReferenceLength int `koanf:"MIN_REFERENCE_LENGTH"`

	// Environment variables: LOG_LEVEL, LOG_JSON
	LogLevel string `koanf:"LOG_LEVEL"`
	LogJSON  bool   `koanf:"LOG_JSON"`

	// PostgreSQL connection, used by the postgres store.
	PostgresHost        string `koanf:"POSTGRES_HOST"`
	PostgresPort        int    `koanf:"POSTGRES_PORT"`
	PostgresDatabase    string `koanf:"POSTGRES_DB"`
	PostgresUser        string `koanf:"POSTGRES_USER"`
	PostgresPassword    string `koanf:"POSTGRES_PASSWORD"`
	PostgresSSLMode     string `koanf:"POSTGRES_SSLMODE"`
	PostgresMaxPoolSize int    `koanf:"POSTGRES_MAX_POOL_SIZE"`

	// GSheetsID is the ID of an existing Google Sheet.
	// Environment variable: GSHEETS_ID
	GSheetsID string `koanf:"GSHEETS_ID"`

	// GSheetsName is the name of the sheet/tab within the spreadsheet.
	// Environment variable: GSHEETS_NAME
	GSheetsName string `koanf:"GSHEETS_NAME"`

	// GoogleCredentialsFile is the service account key used by the sheets store.
	// Environment variable: GOOGLE_CREDENTIALS_FILE
	GoogleCredentialsFile string `koanf:"GOOGLE_CREDENTIALS_FILE"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		LedgerStore:           StoreCSV,
		LedgerOutput:          DefaultOutput,
		SMSPattern:            smsbackup.DefaultPattern,
		MinReferenceLength:    extract.DefaultMinReferenceLength,
		LogLevel:              "INFO",
		PostgresPort:          5432,
		PostgresSSLMode:       "disable",
		PostgresMaxPoolSize:   5,
		GSheetsName:           "Transactions",
		GoogleCredentialsFile: ClientSecretFile,
	}
}

// Load reads .env, then configFile when not empty, then the environment.
// Keys that no source sets keep their Default value.
func Load(configFile string) (Config, error) {
	if err := LoadDotEnv(DotEnvFile); err != nil {
		return Config{}, err
	}

	k := koanf.New(".")

	if configFile != "" {
		if err := k.Load(file.Provider(configFile), kJson.Parser()); err != nil {
			return Config{}, fmt.Errorf("loading config file %s: %w", configFile, err)
		}
	}

	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return Config{}, fmt.Errorf("loading config from environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.LedgerStore = strings.ToLower(strings.TrimSpace(cfg.LedgerStore))

	return cfg, nil
}

// LoadDotEnv exports the variables in path without overriding ones already
// set. A missing file is ignored.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Validate checks the settings the selected store needs.
func (c Config) Validate() error {
	if c.MinReferenceLength < 1 {
		return fmt.Errorf("MIN_REFERENCE_LENGTH must be positive, got %d", c.MinReferenceLength)
	}

	switch c.LedgerStore {
	case StoreCSV, StoreJSONL:
		if c.LedgerOutput == "" {
			return fmt.Errorf("LEDGER_OUTPUT is required for the %s store", c.LedgerStore)
		}
	case StorePostgres:
		var missing []string
		if c.PostgresHost == "" {
			missing = append(missing, "POSTGRES_HOST")
		}
		if c.PostgresDatabase == "" {
			missing = append(missing, "POSTGRES_DB")
		}
		if c.PostgresUser == "" {
			missing = append(missing, "POSTGRES_USER")
		}
		if len(missing) > 0 {
			return fmt.Errorf("postgres store requires %s", strings.Join(missing, ", "))
		}
	case StoreSheets:
		if c.GSheetsID == "" {
			return errors.New("GSHEETS_ID environment variable is required for the sheets store")
		}
		if c.GSheetsName == "" {
			return errors.New("GSHEETS_NAME environment variable is required for the sheets store")
		}
	default:
		return fmt.Errorf("unknown LEDGER_STORE %q (want one of %s)", c.LedgerStore, strings.Join(Stores, ", "))
	}

	return nil
}
