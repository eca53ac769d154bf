package codex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/janekbaraniewski/openquota/internal/core"
	"github.com/janekbaraniewski/openquota/internal/providers/providerbase"
	"github.com/janekbaraniewski/openquota/internal/providers/shared"
)

const (
	defaultBaseURL = "https://chatgpt.com/backend-api"
	tokenEndpoint  = "https://auth.openai.com/oauth/token"
	oauthClientID  = "app_EMoamEEZ73f0CkXaXp7hrann"

	// Codex rotates its refresh window every 28 days; a token past that
	// is certainly dead, anything younger is worth trying as-is.
	accessTokenLifetime = 28 * 24 * time.Hour
)

type Provider struct {
	providerbase.Base

	Client     *http.Client
	Policy     shared.Policy
	BaseURL    string
	TokenURL   string
	ConfigDir  string // defaults to ~/.codex
	ResolveKey func() string
}

func New() *Provider {
	return &Provider{
		Base: providerbase.New(core.ProviderSpec{
			ID: "codex",
			Info: core.ProviderInfo{
				Name:         "Codex CLI",
				Capabilities: []string{"oauth", "api_key", "usage_endpoint"},
				DocURL:       "https://developers.openai.com/codex/cli",
			},
			Auth: core.ProviderAuthSpec{
				Type:         core.ProviderAuthTypeMixed,
				APIKeyEnv:    "OPENAI_API_KEY",
				LoginCommand: "codex login",
			},
		}),
		Client:   http.DefaultClient,
		Policy:   shared.DefaultPolicy(),
		BaseURL:  defaultBaseURL,
		TokenURL: tokenEndpoint,
	}
}

type authFile struct {
	OpenAIAPIKey string     `json:"OPENAI_API_KEY,omitempty"`
	AccountID    string     `json:"account_id,omitempty"`
	Tokens       authTokens `json:"tokens"`
	LastRefresh  string     `json:"last_refresh,omitempty"`
}

type authTokens struct {
	IDToken      string `json:"id_token,omitempty"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	AccountID    string `json:"account_id,omitempty"`
}

type usagePayload struct {
	AccountID string             `json:"account_id,omitempty"`
	Email     string             `json:"email,omitempty"`
	PlanType  string             `json:"plan_type,omitempty"`
	RateLimit *usageLimitDetails `json:"rate_limit,omitempty"`
}

type usageLimitDetails struct {
	Allowed         bool             `json:"allowed"`
	LimitReached    bool             `json:"limit_reached"`
	PrimaryWindow   *usageWindowInfo `json:"primary_window,omitempty"`
	SecondaryWindow *usageWindowInfo `json:"secondary_window,omitempty"`
}

type usageWindowInfo struct {
	UsedPercent        float64 `json:"used_percent"`
	LimitWindowSeconds int     `json:"limit_window_seconds"`
	ResetAt            int64   `json:"reset_at"`
}

func (p *Provider) configDir() string {
	if p.ConfigDir != "" {
		return p.ConfigDir
	}
	if home := os.Getenv("CODEX_HOME"); home != "" {
		return home
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".codex")
}

func (p *Provider) authPath() string {
	dir := p.configDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "auth.json")
}

func (p *Provider) apiKey() string {
	if p.ResolveKey != nil {
		if key := p.ResolveKey(); key != "" {
			return key
		}
	}
	return os.Getenv(p.Spec().Auth.APIKeyEnv)
}

func (p *Provider) IsConfigured(context.Context) bool {
	if path := p.authPath(); path != "" {
		if _, err := os.Stat(path); err == nil {
			return true
		}
	}
	return p.apiKey() != ""
}

func (p *Provider) Fetch(ctx context.Context) core.ProviderResult {
	auth, err := p.loadAuth()
	if err != nil {
		return core.ErrorResult(p.ID(), err)
	}

	if auth == nil || strings.TrimSpace(auth.Tokens.AccessToken) == "" {
		if key := p.apiKey(); key != "" {
			return p.apiKeyResult()
		}
		return core.NotConfiguredResult(p.ID(), p.LoginHint())
	}

	cred := p.credentialFrom(auth)

	token := cred.AccessToken
	if cred.Expired(time.Now()) && cred.RefreshToken != "" {
		fresh, err := p.refresh(ctx, cred)
		if err != nil {
			if errors.Is(err, shared.ErrAuth) {
				return core.AuthExpiredResult(p.ID(), err, p.LoginHint())
			}
			return core.ErrorResult(p.ID(), err)
		}
		token = fresh
	}

	var payload usagePayload
	err = shared.DoWithAuthRetry(ctx, token,
		func(ctx context.Context) (string, error) {
			// Reload first: an earlier refresh in this cycle may have
			// rotated the refresh token on disk.
			if a, loadErr := p.loadAuth(); loadErr == nil && a != nil && a.Tokens.RefreshToken != "" {
				cred = p.credentialFrom(a)
			}
			return p.refresh(ctx, cred)
		},
		func(ctx context.Context, tok string) error {
			return p.fetchUsage(ctx, tok, cred.AccountID, &payload)
		})
	if err != nil {
		if errors.Is(err, shared.ErrAuth) {
			return core.AuthExpiredResult(p.ID(), err, p.LoginHint())
		}
		return core.ErrorResult(p.ID(), err)
	}

	return core.OKResult(p.ID(), []core.AccountQuota{payloadToAccount(&payload, cred)})
}

func (p *Provider) loadAuth() (*authFile, error) {
	path := p.authPath()
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("codex: reading %s: %w", path, err)
	}
	var auth authFile
	if err := json.Unmarshal(data, &auth); err != nil {
		return nil, fmt.Errorf("codex: parsing %s: %w", path, err)
	}
	return &auth, nil
}

func (p *Provider) credentialFrom(auth *authFile) core.Credential {
	cred := core.Credential{
		Provider:     p.ID(),
		AccountID:    firstNonEmpty(auth.Tokens.AccountID, auth.AccountID, "codex"),
		AccessToken:  auth.Tokens.AccessToken,
		RefreshToken: auth.Tokens.RefreshToken,
		Source:       "auth.json",
	}
	if auth.LastRefresh != "" {
		if ts, err := time.Parse(time.RFC3339, auth.LastRefresh); err == nil {
			cred.ExpiresAt = ts.Add(accessTokenLifetime)
		}
	}
	return cred
}

// refresh exchanges the refresh token and writes the rotated pair back to
// auth.json so the CLI and the next run pick it up.
func (p *Provider) refresh(ctx context.Context, cred core.Credential) (string, error) {
	tok, err := shared.RefreshJSON(ctx, p.Client, p.TokenURL, oauthClientID, cred.RefreshToken,
		map[string]string{"scope": "openid profile email"})
	if err != nil {
		return "", err
	}
	if err := p.storeToken(cred, tok); err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

func (p *Provider) storeToken(cred core.Credential, tok shared.Token) error {
	auth, err := p.loadAuth()
	if err != nil {
		return err
	}
	if auth == nil {
		auth = &authFile{}
	}
	auth.Tokens.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		auth.Tokens.RefreshToken = tok.RefreshToken
	} else {
		auth.Tokens.RefreshToken = cred.RefreshToken
	}
	auth.LastRefresh = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(auth, "", "  ")
	if err != nil {
		return fmt.Errorf("codex: marshaling auth: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(p.authPath(), data, 0o600); err != nil {
		return fmt.Errorf("codex: writing auth: %w", err)
	}
	return nil
}

func (p *Provider) fetchUsage(ctx context.Context, token, accountID string, out *usagePayload) error {
	return p.Policy.Do(ctx, []string{p.BaseURL}, func(ctx context.Context, base string) error {
		req, err := shared.NewJSONRequest(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/wham/usage", nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if accountID != "" && accountID != "codex" {
			req.Header.Set("ChatGPT-Account-Id", accountID)
		}
		req.Header.Set("User-Agent", "openquota")

		err = shared.DoJSON(p.Client, req, out)
		// The usage endpoint answers 403 for revoked sessions, not just
		// missing entitlements; treat it as an auth failure.
		if shared.StatusOf(err) == http.StatusForbidden {
			return fmt.Errorf("%w: %w", shared.ErrAuth, err)
		}
		return err
	})
}

func payloadToAccount(payload *usagePayload, cred core.Credential) core.AccountQuota {
	acct := core.AccountQuota{
		ID:          firstNonEmpty(payload.Email, payload.AccountID, cred.AccountID),
		DisplayName: payload.Email,
		Tier:        planLabel(payload.PlanType),
	}
	if payload.RateLimit == nil {
		return acct
	}
	if !payload.RateLimit.Allowed {
		acct.Forbidden = true
	}
	if w := payload.RateLimit.PrimaryWindow; w != nil {
		acct.Models = append(acct.Models, windowQuota("5h", "5-hour limit", w))
	}
	if w := payload.RateLimit.SecondaryWindow; w != nil {
		acct.Models = append(acct.Models, windowQuota("weekly", "Weekly limit", w))
	}
	return acct
}

func windowQuota(name, display string, w *usageWindowInfo) core.ModelQuota {
	remaining := 1 - clampPercent(w.UsedPercent)/100
	var reset *time.Time
	if w.ResetAt > 0 {
		t := time.Unix(w.ResetAt, 0)
		reset = &t
	}
	return core.NewModelQuota(name, display, &remaining, reset)
}

func (p *Provider) apiKeyResult() core.ProviderResult {
	res := core.OKResult(p.ID(), []core.AccountQuota{{
		ID:          "api-key",
		DisplayName: "API key",
	}})
	res.Hint = "API keys are metered by billing, not quota; sign in with `codex login` for usage windows"
	return res
}

func planLabel(planType string) string {
	switch strings.ToLower(strings.TrimSpace(planType)) {
	case "":
		return ""
	case "plus":
		return "Plus"
	case "pro":
		return "Pro"
	case "team":
		return "Team"
	case "enterprise", "business":
		return "Business"
	case "free":
		return "Free"
	default:
		return planType
	}
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
