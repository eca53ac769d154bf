package gemini

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/janekbaraniewski/openquota/internal/core"
	"github.com/janekbaraniewski/openquota/internal/providers/shared"
)

func writeFile(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestCLISource_Load(t *testing.T) {
	dir := t.TempDir()
	expiry := time.Now().Add(30 * time.Minute)
	writeFile(t, filepath.Join(dir, "oauth_creds.json"), oauthCreds{
		AccessToken:  "tok",
		RefreshToken: "ref",
		ExpiryDate:   expiry.UnixMilli(),
	})
	writeFile(t, filepath.Join(dir, "google_accounts.json"), googleAccounts{Active: "me@gmail.com"})
	t.Setenv("GOOGLE_CLOUD_PROJECT", "env-proj")

	src := &cliSource{dir: dir}
	creds, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(creds) != 1 {
		t.Fatalf("creds = %+v", creds)
	}
	c := creds[0]
	if c.AccountID != "me@gmail.com" || c.AccessToken != "tok" || c.RefreshToken != "ref" {
		t.Errorf("cred = %+v", c)
	}
	if c.ProjectID != "env-proj" {
		t.Errorf("project = %q, want env override", c.ProjectID)
	}
	if c.ExpiresAt.Unix() != expiry.Unix() {
		t.Errorf("expiry = %v, want %v", c.ExpiresAt, expiry)
	}
}

func TestCLISource_MissingAccountsFileStillLoads(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "oauth_creds.json"), oauthCreds{AccessToken: "tok", RefreshToken: "ref"})
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")

	creds, err := (&cliSource{dir: dir}).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(creds) != 1 || creds[0].AccountID != "gemini-cli" {
		t.Errorf("creds = %+v", creds)
	}
	if !creds[0].ExpiresAt.IsZero() {
		t.Errorf("missing expiry_date must stay zero, got %v", creds[0].ExpiresAt)
	}
}

func TestCLISource_MissingDir(t *testing.T) {
	creds, err := (&cliSource{dir: filepath.Join(t.TempDir(), "nope")}).Load(context.Background())
	if err != nil || creds != nil {
		t.Fatalf("missing dir should be silent: %v %v", creds, err)
	}
}

func TestCLISource_StoreTokenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "oauth_creds.json"), oauthCreds{
		AccessToken:  "tok-old",
		RefreshToken: "ref",
		IDToken:      "idtok",
	})

	src := &cliSource{dir: dir}
	expiry := time.Now().Add(time.Hour).Truncate(time.Millisecond)
	err := src.StoreToken(
		core.Credential{Provider: "gemini", AccountID: "me@gmail.com"},
		shared.Token{AccessToken: "tok-new", ExpiresAt: expiry},
	)
	if err != nil {
		t.Fatalf("StoreToken: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "oauth_creds.json"))
	if err != nil {
		t.Fatal(err)
	}
	var stored oauthCreds
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatal(err)
	}
	if stored.AccessToken != "tok-new" {
		t.Errorf("access token = %q", stored.AccessToken)
	}
	if stored.RefreshToken != "ref" {
		t.Errorf("refresh token = %q, must survive", stored.RefreshToken)
	}
	if stored.ExpiryDate != expiry.UnixMilli() {
		t.Errorf("expiry_date = %d, want %d", stored.ExpiryDate, expiry.UnixMilli())
	}
}

func TestIDESource_Load(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "accounts.json")
	writeFile(t, path, antigravityStore{Accounts: []antigravityAccount{
		{Email: "one@example.com", RefreshToken: "ref-1", ProjectID: "proj-a"},
		{Email: "two@example.com", RefreshToken: "ref-2", ManagedProjectID: "managed-b"},
		{Email: "broken@example.com"}, // no refresh token
	}})

	creds, err := (&ideSource{paths: []string{filepath.Join(dir, "missing.json"), path}}).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(creds) != 2 {
		t.Fatalf("creds = %+v", creds)
	}
	if creds[0].ProjectID != "proj-a" {
		t.Errorf("explicit project = %q", creds[0].ProjectID)
	}
	if creds[1].ProjectID != "managed-b" {
		t.Errorf("managed project fallback = %q", creds[1].ProjectID)
	}
	for _, c := range creds {
		if c.AccessToken != "" {
			t.Errorf("IDE store never holds access tokens: %+v", c)
		}
	}
}
