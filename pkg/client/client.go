// Package client provides an authenticated HTTP client for Google APIs.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// New creates an HTTP client from a Google credentials file. Service account
// keys and authorized user credentials (gcloud application-default login)
// are both accepted.
func New(ctx context.Context, credentialsFile string, scope ...string) (*http.Client, error) {
	if credentialsFile == "" {
		return nil, errors.New("credentials file is required")
	}

	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}

	return NewFromJSON(ctx, b, scope...)
}

// NewFromJSON creates an HTTP client from credentials JSON content.
func NewFromJSON(ctx context.Context, credentialsJSON []byte, scope ...string) (*http.Client, error) {
	creds, err := google.CredentialsFromJSON(ctx, credentialsJSON, scope...)
	if err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}

	return oauth2.NewClient(ctx, creds.TokenSource), nil
}
