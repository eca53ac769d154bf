package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/janekbaraniewski/openquota/internal/core"
	"github.com/janekbaraniewski/openquota/internal/providers/shared"
)

type oauthCreds struct {
	AccessToken  string `json:"access_token"`
	Scope        string `json:"scope,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	ExpiryDate   int64  `json:"expiry_date,omitempty"` // Unix millis
	RefreshToken string `json:"refresh_token"`
}

type googleAccounts struct {
	Active string   `json:"active"`
	Old    []string `json:"old,omitempty"`
}

// cliSource reads the Gemini CLI login from ~/.gemini: oauth_creds.json
// for tokens and google_accounts.json for the active account identity.
// It owns the file, so refreshed tokens are written back.
type cliSource struct {
	dir string
}

func (s *cliSource) Name() string { return "gemini-cli" }

func (s *cliSource) credsPath() string { return filepath.Join(s.dir, "oauth_creds.json") }

func (s *cliSource) Load(context.Context) ([]core.Credential, error) {
	data, err := os.ReadFile(s.credsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading oauth creds: %w", err)
	}

	var creds oauthCreds
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parsing oauth creds: %w", err)
	}
	if creds.AccessToken == "" && creds.RefreshToken == "" {
		return nil, nil
	}

	cred := core.Credential{
		Provider:     "gemini",
		AccountID:    s.activeAccount(),
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		ProjectID:    strings.TrimSpace(os.Getenv("GOOGLE_CLOUD_PROJECT")),
		Source:       s.Name(),
	}
	if creds.ExpiryDate > 0 {
		cred.ExpiresAt = time.UnixMilli(creds.ExpiryDate)
	}
	if cred.AccountID == "" {
		cred.AccountID = "gemini-cli"
	}
	return []core.Credential{cred}, nil
}

func (s *cliSource) activeAccount() string {
	data, err := os.ReadFile(filepath.Join(s.dir, "google_accounts.json"))
	if err != nil {
		return ""
	}
	var accounts googleAccounts
	if err := json.Unmarshal(data, &accounts); err != nil {
		return ""
	}
	return strings.TrimSpace(accounts.Active)
}

// StoreToken rewrites oauth_creds.json with the refreshed token so the
// CLI and the next run start warm.
func (s *cliSource) StoreToken(cred core.Credential, tok shared.Token) error {
	var creds oauthCreds
	if data, err := os.ReadFile(s.credsPath()); err == nil {
		_ = json.Unmarshal(data, &creds)
	}
	creds.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		creds.RefreshToken = tok.RefreshToken
	} else if creds.RefreshToken == "" {
		creds.RefreshToken = cred.RefreshToken
	}
	if !tok.ExpiresAt.IsZero() {
		creds.ExpiryDate = tok.ExpiresAt.UnixMilli()
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling oauth creds: %w", err)
	}
	data = append(data, '\n')
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating gemini dir: %w", err)
	}
	if err := os.WriteFile(s.credsPath(), data, 0o600); err != nil {
		return fmt.Errorf("writing oauth creds: %w", err)
	}
	return nil
}

type antigravityAccount struct {
	Email            string `json:"email"`
	RefreshToken     string `json:"refreshToken"`
	ProjectID        string `json:"projectId,omitempty"`
	ManagedProjectID string `json:"managedProjectId,omitempty"`
	AddedAt          string `json:"addedAt,omitempty"`
}

type antigravityStore struct {
	Accounts []antigravityAccount `json:"accounts"`
}

// ideSource reads the Antigravity IDE account store. The store holds
// refresh tokens only, and it belongs to the IDE, so refreshed access
// tokens are never written back.
type ideSource struct {
	paths []string
}

func (s *ideSource) Name() string { return "antigravity" }

func (s *ideSource) Load(context.Context) ([]core.Credential, error) {
	for _, path := range s.paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var store antigravityStore
		if err := json.Unmarshal(data, &store); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}

		var out []core.Credential
		for _, acct := range store.Accounts {
			if acct.Email == "" || acct.RefreshToken == "" {
				continue
			}
			project := acct.ProjectID
			if project == "" {
				project = acct.ManagedProjectID
			}
			out = append(out, core.Credential{
				Provider:     "gemini",
				AccountID:    acct.Email,
				RefreshToken: acct.RefreshToken,
				ProjectID:    project,
				Source:       s.Name(),
			})
		}
		return out, nil
	}
	return nil, nil
}

func defaultAntigravityPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(home, ".config", "antigravity", "accounts.json"),
		filepath.Join(home, ".config", "opencode", "antigravity-accounts.json"),
	}
}
