// Command mpesaledger extracts received M-PESA payments from SMS backup
// files into a deduplicated ledger.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/mpesaledger/pkg/config"
	"github.com/ArionMiles/mpesaledger/pkg/logging"
	"github.com/ArionMiles/mpesaledger/pkg/reader/smsbackup"
)

// options holds command line flags. Flags that are set override config.
type options struct {
	configFile string
	output     string
	store      string
	pattern    string
	debug      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "mpesaledger <sender_name>",
		Short: "Extract M-PESA transactions from SMS XML backups",
		Long: `Scans SMS backup files (sms-*.xml) for M-PESA "You have received" confirmations
whose body mentions sender_name, and appends each new transaction to the ledger.
Transactions already in the ledger are skipped by reference, so re-runs are safe.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd, opts)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(logger)
			defer cancel()

			_, err = runLedger(ctx, cfg, args[0], cmd.OutOrStdout(), logger, opts.debug)
			return err
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.output, "output", "o", config.DefaultOutput, "Output ledger file (csv and jsonl stores)")
	flags.BoolVarP(&opts.debug, "debug", "d", false, "Enable debug mode")
	flags.StringVarP(&opts.pattern, "pattern", "p", smsbackup.DefaultPattern, "Glob for SMS backup files")
	flags.StringVar(&opts.store, "store", config.StoreCSV, "Ledger store: csv, jsonl, postgres or sheets")
	flags.StringVar(&opts.configFile, "config", "", "Optional JSON config file")

	root.AddCommand(newStatusCmd(opts))

	return root
}

// setup loads configuration, applies flag overrides and configures logging.
func setup(cmd *cobra.Command, opts *options) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return config.Config{}, nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.LedgerOutput = opts.output
	}
	if flags.Changed("store") {
		cfg.LedgerStore = opts.store
	}
	if flags.Changed("pattern") {
		cfg.SMSPattern = opts.pattern
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.Setup(logging.New(cfg.LogLevel, cfg.LogJSON).WithDebug(opts.debug))
	return cfg, logger, nil
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
