package auth

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// CloudPlatformScope is the audience requested for every token.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// Credentials resolves Google credentials scoped to the cloud platform.
// With credentialsFile set, that JSON key file is used; otherwise the
// application-default chain is searched (GOOGLE_APPLICATION_CREDENTIALS,
// gcloud user credentials, metadata server).
func Credentials(ctx context.Context, credentialsFile string) (*google.Credentials, error) {
	if credentialsFile == "" {
		creds, err := google.FindDefaultCredentials(ctx, CloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("find default credentials: %w", err)
		}
		return creds, nil
	}

	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, CloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials file %s: %w", credentialsFile, err)
	}
	return creds, nil
}

// NewHTTPClient returns an http.Client that attaches OAuth2 tokens from the
// resolved credentials to every request.
func NewHTTPClient(ctx context.Context, credentialsFile string) (*http.Client, error) {
	creds, err := Credentials(ctx, credentialsFile)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, creds.TokenSource), nil
}
