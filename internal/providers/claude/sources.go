package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/janekbaraniewski/openquota/internal/core"
	"github.com/janekbaraniewski/openquota/internal/providers/shared"
)

type storedCredentials struct {
	ClaudeAiOauth *oauthRecord `json:"claudeAiOauth"`
}

type oauthRecord struct {
	AccessToken      string   `json:"accessToken"`
	RefreshToken     string   `json:"refreshToken"`
	ExpiresAt        int64    `json:"expiresAt"` // Unix millis
	Scopes           []string `json:"scopes,omitempty"`
	SubscriptionType string   `json:"subscriptionType,omitempty"`
}

// login is one discovered Claude Code sign-in, paired with the sink that
// owns its storage.
type login struct {
	cred         core.Credential
	subscription string
	sink         shared.TokenSink
}

// loginSource finds a Claude Code sign-in in one backend. A nil login
// with a nil error means the backend simply has nothing.
type loginSource interface {
	Name() string
	Load(ctx context.Context) (*login, error)
}

type accountFile struct {
	OAuthAccount *oauthAccount `json:"oauthAccount"`
}

type oauthAccount struct {
	AccountUUID      string `json:"accountUuid,omitempty"`
	EmailAddress     string `json:"emailAddress,omitempty"`
	OrganizationUUID string `json:"organizationUuid,omitempty"`
	DisplayName      string `json:"displayName,omitempty"`
}

// fileSource reads the CLI login from ~/.claude/.credentials.json, with
// the account identity from ~/.claude.json when present. It owns the
// credentials file, so refreshed tokens are written back.
type fileSource struct {
	dir         string // ~/.claude
	accountPath string // ~/.claude.json
}

func (s *fileSource) Name() string { return "credentials-file" }

func (s *fileSource) credsPath() string { return filepath.Join(s.dir, ".credentials.json") }

func (s *fileSource) Load(context.Context) (*login, error) {
	data, err := os.ReadFile(s.credsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading credentials: %w", err)
	}
	var stored storedCredentials
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}
	cred, ok := credentialFromRecord(stored.ClaudeAiOauth, s.Name())
	if !ok {
		return nil, nil
	}
	s.fillIdentity(&cred)
	return &login{
		cred:         cred,
		subscription: stored.ClaudeAiOauth.SubscriptionType,
		sink:         s,
	}, nil
}

func (s *fileSource) fillIdentity(cred *core.Credential) {
	data, err := os.ReadFile(s.accountPath)
	if err != nil {
		return
	}
	var acct accountFile
	if err := json.Unmarshal(data, &acct); err != nil || acct.OAuthAccount == nil {
		return
	}
	if acct.OAuthAccount.EmailAddress != "" {
		cred.AccountID = acct.OAuthAccount.EmailAddress
	}
	cred.Label = acct.OAuthAccount.DisplayName
}

// StoreToken rewrites .credentials.json with the refreshed pair.
func (s *fileSource) StoreToken(cred core.Credential, tok shared.Token) error {
	var stored storedCredentials
	if data, err := os.ReadFile(s.credsPath()); err == nil {
		_ = json.Unmarshal(data, &stored)
	}
	if stored.ClaudeAiOauth == nil {
		stored.ClaudeAiOauth = &oauthRecord{}
	}
	stored.ClaudeAiOauth.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		stored.ClaudeAiOauth.RefreshToken = tok.RefreshToken
	} else if stored.ClaudeAiOauth.RefreshToken == "" {
		stored.ClaudeAiOauth.RefreshToken = cred.RefreshToken
	}
	if !tok.ExpiresAt.IsZero() {
		stored.ClaudeAiOauth.ExpiresAt = tok.ExpiresAt.UnixMilli()
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}
	data = append(data, '\n')
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating claude dir: %w", err)
	}
	if err := os.WriteFile(s.credsPath(), data, 0o600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	return nil
}

// keychainSource reads the same record from the macOS login keychain,
// where newer CLI versions store it instead of the dotfile. The keychain
// belongs to the CLI, so nothing is written back.
type keychainSource struct {
	// lookup is swappable in tests; nil means the real `security` call.
	lookup func(ctx context.Context) ([]byte, error)
}

func (s *keychainSource) Name() string { return "keychain" }

func (s *keychainSource) Load(ctx context.Context) (*login, error) {
	lookup := s.lookup
	if lookup == nil {
		if runtime.GOOS != "darwin" {
			return nil, nil
		}
		lookup = securityLookup
	}
	out, err := lookup(ctx)
	if err != nil {
		// Absent keychain entries are the common case, not a failure.
		return nil, nil
	}
	var stored storedCredentials
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(out))), &stored); err != nil {
		return nil, fmt.Errorf("parsing keychain credentials: %w", err)
	}
	cred, ok := credentialFromRecord(stored.ClaudeAiOauth, s.Name())
	if !ok {
		return nil, nil
	}
	return &login{
		cred:         cred,
		subscription: stored.ClaudeAiOauth.SubscriptionType,
		sink:         shared.NoopSink{},
	}, nil
}

func securityLookup(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return exec.CommandContext(ctx,
		"/usr/bin/security", "find-generic-password",
		"-s", "Claude Code-credentials",
		"-w",
	).Output()
}

func credentialFromRecord(rec *oauthRecord, source string) (core.Credential, bool) {
	if rec == nil || (rec.AccessToken == "" && rec.RefreshToken == "") {
		return core.Credential{}, false
	}
	cred := core.Credential{
		Provider:     "claude",
		AccountID:    "claude",
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		Source:       source,
	}
	if rec.ExpiresAt > 0 {
		cred.ExpiresAt = time.UnixMilli(rec.ExpiresAt)
	}
	return cred, true
}
