package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ArionMiles/mpesaledger/pkg/config"
	"github.com/ArionMiles/mpesaledger/pkg/reader/smsbackup"
)

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and ledger statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd, opts)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if !runStatus(ctx, cfg, cmd.OutOrStdout(), logger) {
				return fmt.Errorf("status: problems detected")
			}
			return nil
		},
	}
}

var (
	okMark   = color.New(color.FgGreen).Sprint("✓")
	failMark = color.New(color.FgRed).Sprint("✗")
	warnMark = color.New(color.FgYellow).Sprint("⚠")
)

// runStatus prints the effective configuration, the backup files found and
// the ledger size. It reports whether everything checked out.
func runStatus(ctx context.Context, cfg config.Config, out io.Writer, logger *slog.Logger) bool {
	fmt.Fprintln(out, "=== mpesaledger status ===")
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Store: %s\n", cfg.LedgerStore)
	fmt.Fprintf(out, "Backup pattern: %s\n", cfg.SMSPattern)
	fmt.Fprintf(out, "Minimum reference length: %d\n", cfg.MinReferenceLength)
	fmt.Fprintln(out)

	allGood := true

	fmt.Fprint(out, "Backup files: ")
	files, err := smsbackup.Discover(cfg.SMSPattern)
	switch {
	case err != nil:
		fmt.Fprintf(out, "%s %v\n", failMark, err)
		allGood = false
	case len(files) == 0:
		fmt.Fprintf(out, "%s none found\n", warnMark)
	default:
		fmt.Fprintf(out, "%s %d found\n", okMark, len(files))
	}

	fmt.Fprint(out, "Ledger: ")
	if !checkLedger(ctx, cfg, out, logger) {
		allGood = false
	}

	fmt.Fprintln(out)
	if allGood {
		fmt.Fprintf(out, "Status: %s Ready to run\n", okMark)
	} else {
		fmt.Fprintf(out, "Status: %s Configuration issues detected\n", failMark)
	}
	return allGood
}

// referenceReader is implemented by stores that can count their entries
// without creating or repairing the ledger.
type referenceReader interface {
	References(ctx context.Context) ([]string, error)
}

func checkLedger(ctx context.Context, cfg config.Config, out io.Writer, logger *slog.Logger) bool {
	if cfg.LedgerStore == config.StoreCSV || cfg.LedgerStore == config.StoreJSONL {
		if _, err := os.Stat(cfg.LedgerOutput); os.IsNotExist(err) {
			fmt.Fprintf(out, "%s %s does not exist yet (created on first run)\n", warnMark, cfg.LedgerOutput)
			return true
		}
	}

	store, err := openStore(ctx, cfg, uuid.Nil, logger)
	if err != nil {
		fmt.Fprintf(out, "%s %v\n", failMark, err)
		return false
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close store", "error", err)
		}
	}()

	reader, ok := store.(referenceReader)
	if !ok {
		fmt.Fprintf(out, "%s %s store cannot be inspected\n", failMark, cfg.LedgerStore)
		return false
	}
	refs, err := reader.References(ctx)
	if err != nil {
		fmt.Fprintf(out, "%s %v\n", failMark, err)
		return false
	}

	distinct := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		distinct[ref] = struct{}{}
	}
	fmt.Fprintf(out, "%s %d entries in %s\n", okMark, len(distinct), store.Location())
	return true
}
