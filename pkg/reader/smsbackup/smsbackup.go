// Package smsbackup reads SMS backup XML documents (<smses><sms .../></smses>).
package smsbackup

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ArionMiles/mpesaledger/pkg/api"
)

// DefaultPattern matches the files written by SMS backup apps.
const DefaultPattern = "sms-*.xml"

// ErrMalformedDocument is wrapped by every parse failure of a whole document.
var ErrMalformedDocument = errors.New("malformed backup document")

// MalformedDocumentError reports a document that could not be parsed.
type MalformedDocumentError struct {
	Document string
	Err      error
}

func (e *MalformedDocumentError) Error() string {
	return fmt.Sprintf("%v %s: %v", ErrMalformedDocument, e.Document, e.Err)
}

func (e *MalformedDocumentError) Unwrap() []error {
	return []error{ErrMalformedDocument, e.Err}
}

// Document is one parsed backup file.
type Document struct {
	Name     string
	Messages []api.RawMessage
}

type smsEntry struct {
	Address     string `xml:"address,attr"`
	Type        string `xml:"type,attr"`
	Body        string `xml:"body,attr"`
	Date        string `xml:"date,attr"`
	ContactName string `xml:"contact_name,attr"`
}

type backup struct {
	XMLName xml.Name   `xml:"smses"`
	SMS     []smsEntry `xml:"sms"`
}

// Discover returns the files matching pattern in lexical order.
func Discover(pattern string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("matching %q: %w", pattern, err)
	}
	sort.Strings(matches)
	return matches, nil
}

// ParseFile parses the backup at path. The document name is the file's base name.
func ParseFile(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Document{}, &MalformedDocumentError{Document: filepath.Base(path), Err: err}
	}
	defer f.Close()

	return Parse(f, filepath.Base(path))
}

// Parse decodes a backup document. A message with a missing or non-numeric
// type keeps Type zero, which no filter accepts.
func Parse(r io.Reader, name string) (Document, error) {
	var b backup
	if err := xml.NewDecoder(r).Decode(&b); err != nil {
		return Document{}, &MalformedDocumentError{Document: name, Err: err}
	}

	doc := Document{
		Name:     name,
		Messages: make([]api.RawMessage, 0, len(b.SMS)),
	}
	for _, s := range b.SMS {
		typ, _ := strconv.Atoi(strings.TrimSpace(s.Type))
		date, _ := strconv.ParseInt(strings.TrimSpace(s.Date), 10, 64)
		doc.Messages = append(doc.Messages, api.RawMessage{
			Address:     s.Address,
			Type:        typ,
			Body:        s.Body,
			Date:        date,
			ContactName: s.ContactName,
			Document:    name,
		})
	}

	return doc, nil
}
