package config

import "testing"

func withFakeHome(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
}

func TestLoadCredentialsMissingFileReturnsEmpty(t *testing.T) {
	withFakeHome(t)

	creds, err := LoadCredentials()
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if creds.GetAPIKey("anthropic") != "" {
		t.Fatal("expected no API key for a missing credentials file")
	}
}

func TestSaveAndLoadCredentialsRoundTrip(t *testing.T) {
	withFakeHome(t)

	creds := &Credentials{}
	creds.SetAPIKey("anthropic", "sk-test-123")
	if err := SaveCredentials(creds); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}

	loaded, err := LoadCredentials()
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if got := loaded.GetAPIKey("anthropic"); got != "sk-test-123" {
		t.Fatalf("expected round-tripped API key, got %q", got)
	}
}

func TestGetAPIKeyOnNilCredentials(t *testing.T) {
	var creds *Credentials
	if got := creds.GetAPIKey("anthropic"); got != "" {
		t.Fatalf("expected empty string on a nil receiver, got %q", got)
	}
}

func TestCredentialsFilePathMatchesSavePath(t *testing.T) {
	withFakeHome(t)

	creds := &Credentials{}
	creds.SetAPIKey("p", "key")
	if err := SaveCredentials(creds); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}

	path, err := CredentialsFilePath()
	if err != nil {
		t.Fatalf("CredentialsFilePath: %v", err)
	}
	if _, err := LoadCredentials(); err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if path == "" {
		t.Fatal("expected a non-empty credentials path")
	}
}
