package smsbackup

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseFile(t *testing.T) {
	doc, err := ParseFile(filepath.Join("testdata", "sms-20230102.xml"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if doc.Name != "sms-20230102.xml" {
		t.Errorf("name: got %q", doc.Name)
	}
	if len(doc.Messages) != 5 {
		t.Fatalf("messages: got %d, want 5", len(doc.Messages))
	}

	first := doc.Messages[0]
	if first.Address != "MPESA" || first.Type != 1 {
		t.Errorf("first message: got address=%q type=%d", first.Address, first.Type)
	}
	if !strings.HasPrefix(first.Body, "QGH7XK2LMN Confirmed.") {
		t.Errorf("first body: got %q", first.Body)
	}
	if first.Date != 1672563600000 {
		t.Errorf("first date: got %d", first.Date)
	}
	if first.Document != doc.Name {
		t.Errorf("document: got %q", first.Document)
	}

	if doc.Messages[2].Type != 2 {
		t.Errorf("third message type: got %d, want 2", doc.Messages[2].Type)
	}
	if !strings.Contains(doc.Messages[3].Body, "\nDial") {
		t.Errorf("character references should be decoded: %q", doc.Messages[3].Body)
	}
	if doc.Messages[4].Address != "OTHER" || doc.Messages[4].ContactName != "Friend" {
		t.Errorf("last message: got %+v", doc.Messages[4])
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not xml", "not a backup"},
		{"wrong root", "<messages><sms address=\"MPESA\" type=\"1\" body=\"x\"/></messages>"},
		{"truncated", "<smses><sms address=\"MPESA\" type=\"1\" body=\"x"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.input), "sms-test.xml")
			if !errors.Is(err, ErrMalformedDocument) {
				t.Fatalf("expected ErrMalformedDocument, got %v", err)
			}
			var malformed *MalformedDocumentError
			if !errors.As(err, &malformed) || malformed.Document != "sms-test.xml" {
				t.Errorf("expected *MalformedDocumentError for sms-test.xml, got %v", err)
			}
		})
	}
}

func TestParseFile_Broken(t *testing.T) {
	_, err := ParseFile(filepath.Join("testdata", "sms-broken.xml"))
	if !errors.Is(err, ErrMalformedDocument) {
		t.Fatalf("expected ErrMalformedDocument, got %v", err)
	}
}

func TestParseFile_Missing(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "sms-missing.xml"))
	if !errors.Is(err, ErrMalformedDocument) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected malformed document wrapping ErrNotExist, got %v", err)
	}
}

func TestParse_NonNumericType(t *testing.T) {
	doc, err := Parse(strings.NewReader(`<smses><sms address="MPESA" type="inbox" body="x"/><sms address="MPESA" body="y"/></smses>`), "sms.xml")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, m := range doc.Messages {
		if m.Type != 0 {
			t.Errorf("type: got %d, want 0", m.Type)
		}
	}
}

func TestDiscover(t *testing.T) {
	got, err := Discover(filepath.Join("testdata", "sms-*.xml"))
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	want := []string{
		filepath.Join("testdata", "sms-20230102.xml"),
		filepath.Join("testdata", "sms-broken.xml"),
	}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("files: got %v, want %v", got, want)
	}
}
