package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/ArionMiles/mpesaledger/pkg/api"
	"github.com/ArionMiles/mpesaledger/pkg/config"
)

const backup = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<smses count="4">
  <sms address="MPESA" type="1" date="1672563600000" body="QGH7XK2LMN Confirmed.You have received Ksh1,000.00 from JOHN DOE 254712345678 on 1/1/23 at 12:00 PM New M-PESA balance is Ksh3,000.00." />
  <sms address="MPESA" type="1" date="1672655400000" body="RAB12CD34E Confirmed.You have received Ksh2,500.00 from JANE DOE 254798765432 on 2/1/23 at 1:30 PM New M-PESA balance is Ksh5,500.00." />
  <sms address="MPESA" type="1" date="1672662600000" body="Dear JOHN DOE, your M-PESA statement is ready." />
  <sms address="OTHER" type="1" date="1672666200000" body="JOHN DOE says hi" />
</smses>
`

func init() {
	color.NoColor = true
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "sms-20230102.xml"), []byte(backup), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.SMSPattern = filepath.Join(dir, "sms-*.xml")
	cfg.LedgerOutput = filepath.Join(dir, "mpesa_transactions.csv")
	return cfg
}

func TestRunLedger(t *testing.T) {
	cfg := testConfig(t)

	var out bytes.Buffer
	summary, err := runLedger(context.Background(), cfg, "  john doe ", &out, quietLogger(), true)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Appended != 1 || summary.Mismatched != 1 || summary.Ineligible != 2 {
		t.Errorf("summary: got %+v", summary)
	}
	if summary.RunID == "" {
		t.Error("run id should be set")
	}

	got := out.String()
	for _, want := range []string{
		"Processing sms-20230102.xml",
		"Name 'john doe' not found in message:",
		"MATCHED TRANSACTION:",
		"    Ref: QGH7XK2LMN",
		"    Amount: 1,000.00",
		"PATTERN DIDN'T MATCH:",
		"  Dear JOHN DOE, your M-PESA statement is ready....",
		"RESULTS:",
		"- Found 1 new transactions (Ksh1000.00)",
		"- Output saved to " + cfg.LedgerOutput,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "says hi") {
		t.Error("messages from other senders must not be shown")
	}

	out.Reset()
	again, err := runLedger(context.Background(), cfg, "john doe", &out, quietLogger(), false)
	if err != nil {
		t.Fatalf("re-run: %v", err)
	}
	if again.Appended != 0 || again.Duplicates != 1 {
		t.Errorf("re-run summary: got %+v", again)
	}
	if !strings.Contains(out.String(), "Duplicate reference QGH7XK2LMN — Skipping") {
		t.Errorf("re-run output:\n%s", out.String())
	}
	if strings.Contains(out.String(), "not found in message") {
		t.Error("name misses are only shown in debug mode")
	}
}

func TestRunLedger_EmptySender(t *testing.T) {
	if _, err := runLedger(context.Background(), testConfig(t), "   ", io.Discard, quietLogger(), false); err == nil {
		t.Fatal("expected error for empty sender name")
	}
}

func TestRunLedger_UnreadableLedger(t *testing.T) {
	cfg := testConfig(t)
	cfg.LedgerOutput = t.TempDir()

	_, err := runLedger(context.Background(), cfg, "john doe", io.Discard, quietLogger(), false)
	if err == nil {
		t.Fatal("expected error when the ledger path is a directory")
	}
}

func TestRunLedger_Cancelled(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runLedger(ctx, cfg, "john doe", io.Discard, quietLogger(), false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestOpenStore_Unknown(t *testing.T) {
	cfg := config.Default()
	cfg.LedgerStore = "sqlite"
	if _, err := openStore(context.Background(), cfg, uuid.Nil, quietLogger()); err == nil {
		t.Fatal("expected error for unknown store")
	}
}

func TestConsoleReporter_Ineligible(t *testing.T) {
	var out bytes.Buffer
	r := newConsoleReporter(&out, "JOHN", true)

	r.Report(api.Event{Kind: api.EventIneligible, Verdict: api.VerdictWrongSender, Message: api.RawMessage{Body: "hidden"}})
	if out.Len() != 0 {
		t.Errorf("gate rejections other than the name are silent, got %q", out.String())
	}

	r.Report(api.Event{Kind: api.EventIneligible, Verdict: api.VerdictNameMissing, Message: api.RawMessage{Body: strings.Repeat("x", 100)}})
	if !strings.Contains(out.String(), "  "+strings.Repeat("x", 80)+"...\n") {
		t.Errorf("excerpt should be 80 characters: %q", out.String())
	}
}

func TestRootCmd(t *testing.T) {
	cfg := testConfig(t)
	t.Setenv("LEDGER_STORE", "")
	t.Setenv("LOG_LEVEL", "ERROR")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"JANE DOE", "--store", "jsonl", "-p", cfg.SMSPattern, "-o", cfg.LedgerOutput + ".jsonl"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), "    Ref: RAB12CD34E") {
		t.Errorf("output:\n%s", out.String())
	}

	b, err := os.ReadFile(cfg.LedgerOutput + ".jsonl")
	if err != nil {
		t.Fatalf("reading ledger: %v", err)
	}
	if !strings.Contains(string(b), `"reference":"RAB12CD34E"`) {
		t.Errorf("jsonl ledger: %s", b)
	}
}

func TestRootCmd_PatternDefault(t *testing.T) {
	flag := newRootCmd().PersistentFlags().Lookup("pattern")
	if flag == nil {
		t.Fatal("pattern flag not registered")
	}
	if flag.DefValue != config.Default().SMSPattern {
		t.Errorf("flag default %q differs from config default %q", flag.DefValue, config.Default().SMSPattern)
	}
}

func TestRootCmd_RequiresSender(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error without sender_name")
	}
}

func TestStatus(t *testing.T) {
	cfg := testConfig(t)

	var out bytes.Buffer
	if !runStatus(context.Background(), cfg, &out, quietLogger()) {
		t.Fatalf("status should pass:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "does not exist yet") {
		t.Errorf("missing ledger should be reported:\n%s", out.String())
	}
	if _, err := os.Stat(cfg.LedgerOutput); !os.IsNotExist(err) {
		t.Error("status must not create the ledger")
	}

	if _, err := runLedger(context.Background(), cfg, "doe", io.Discard, quietLogger(), false); err != nil {
		t.Fatal(err)
	}

	out.Reset()
	if !runStatus(context.Background(), cfg, &out, quietLogger()) {
		t.Fatalf("status should pass:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "2 entries in "+cfg.LedgerOutput) {
		t.Errorf("ledger size missing:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "1 found") {
		t.Errorf("backup count missing:\n%s", out.String())
	}
}

func TestStatus_LeavesEmptyLedgerUntouched(t *testing.T) {
	for _, store := range []string{config.StoreCSV, config.StoreJSONL} {
		t.Run(store, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.LedgerStore = store
			if err := os.WriteFile(cfg.LedgerOutput, nil, 0o600); err != nil {
				t.Fatal(err)
			}

			var out bytes.Buffer
			if !runStatus(context.Background(), cfg, &out, quietLogger()) {
				t.Fatalf("status should pass:\n%s", out.String())
			}
			if !strings.Contains(out.String(), "0 entries in "+cfg.LedgerOutput) {
				t.Errorf("ledger size missing:\n%s", out.String())
			}

			info, err := os.Stat(cfg.LedgerOutput)
			if err != nil {
				t.Fatal(err)
			}
			if info.Size() != 0 {
				t.Errorf("status wrote %d bytes into the ledger", info.Size())
			}
		})
	}
}
