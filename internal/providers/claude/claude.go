package claude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
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
	defaultUsageURL = "https://api.anthropic.com/api/oauth/usage"
	defaultWebBase  = "https://claude.ai"
	tokenEndpoint   = "https://console.anthropic.com/v1/oauth/token"
	oauthClientID   = "9d1c250a-e61b-44d9-88ed-5944d1962f5e"
	oauthBeta       = "oauth-2025-04-20"
)

type Provider struct {
	providerbase.Base

	Client     *http.Client
	Policy     shared.Policy
	UsageURL   string
	WebBaseURL string
	TokenURL   string
	Sources    []loginSource
	ResolveKey func() string

	// AccountPath is ~/.claude.json, consulted for the organization UUID
	// when falling back to a web session.
	AccountPath string

	// loadSession is swappable in tests; nil means loadDesktopSession.
	loadSession func(orgUUID string) (*desktopSession, error)
}

func New() *Provider {
	home, _ := os.UserHomeDir()
	accountPath := filepath.Join(home, ".claude.json")
	return &Provider{
		Base: providerbase.New(core.ProviderSpec{
			ID: "claude",
			Info: core.ProviderInfo{
				Name:         "Claude Code",
				Capabilities: []string{"oauth", "api_key", "usage_endpoint", "web_session"},
				DocURL:       "https://docs.anthropic.com/en/docs/claude-code",
			},
			Auth: core.ProviderAuthSpec{
				Type:         core.ProviderAuthTypeMixed,
				APIKeyEnv:    "ANTHROPIC_API_KEY",
				LoginCommand: "claude login",
			},
		}),
		Client:     http.DefaultClient,
		Policy:     shared.DefaultPolicy(),
		UsageURL:   defaultUsageURL,
		WebBaseURL: defaultWebBase,
		TokenURL:   tokenEndpoint,
		Sources: []loginSource{
			&fileSource{dir: filepath.Join(home, ".claude"), accountPath: accountPath},
			&keychainSource{},
		},
		AccountPath: accountPath,
	}
}

type usageResponse struct {
	FiveHour       *usageBucket `json:"five_hour"`
	SevenDay       *usageBucket `json:"seven_day"`
	SevenDaySonnet *usageBucket `json:"seven_day_sonnet"`
	SevenDayOpus   *usageBucket `json:"seven_day_opus"`
	SevenDayCowork *usageBucket `json:"seven_day_cowork"`
}

type usageBucket struct {
	Utilization float64 `json:"utilization"`
	ResetsAt    string  `json:"resets_at"`
}

func (p *Provider) apiKey() string {
	if p.ResolveKey != nil {
		if key := p.ResolveKey(); key != "" {
			return key
		}
	}
	return os.Getenv(p.Spec().Auth.APIKeyEnv)
}

// findLogin walks the sources in order and takes the first sign-in found;
// the dotfile and keychain hold the same account, never two.
func (p *Provider) findLogin(ctx context.Context) *login {
	for _, src := range p.Sources {
		l, err := src.Load(ctx)
		if err != nil {
			log.Printf("[claude] source %s: %v", src.Name(), err)
			continue
		}
		if l != nil {
			return l
		}
	}
	return nil
}

func (p *Provider) IsConfigured(ctx context.Context) bool {
	if p.findLogin(ctx) != nil {
		return true
	}
	return p.apiKey() != ""
}

func (p *Provider) Fetch(ctx context.Context) core.ProviderResult {
	l := p.findLogin(ctx)
	if l == nil {
		if res, ok := p.fetchViaSession(ctx); ok {
			return res
		}
		if key := p.apiKey(); key != "" {
			return p.apiKeyResult()
		}
		return core.NotConfiguredResult(p.ID(), p.LoginHint())
	}

	token := l.cred.AccessToken
	if l.cred.Expired(time.Now()) && l.cred.RefreshToken != "" {
		fresh, err := p.refresh(ctx, l)
		if err != nil {
			if errors.Is(err, shared.ErrAuth) {
				return core.AuthExpiredResult(p.ID(), err, p.LoginHint())
			}
			return core.ErrorResult(p.ID(), err)
		}
		token = fresh
	}

	var usage usageResponse
	err := shared.DoWithAuthRetry(ctx, token,
		func(ctx context.Context) (string, error) {
			// Reload first: an earlier refresh in this cycle may have
			// rotated the refresh token in the store.
			if reloaded := p.findLogin(ctx); reloaded != nil && reloaded.cred.RefreshToken != "" {
				l = reloaded
			}
			return p.refresh(ctx, l)
		},
		func(ctx context.Context, tok string) error {
			return p.fetchUsage(ctx, tok, &usage)
		})
	if err != nil {
		if errors.Is(err, shared.ErrAuth) {
			return core.AuthExpiredResult(p.ID(), err, p.LoginHint())
		}
		return core.ErrorResult(p.ID(), err)
	}

	acct := core.AccountQuota{
		ID:          l.cred.AccountID,
		DisplayName: l.cred.Label,
		Tier:        tierLabel(l.subscription),
		Models:      bucketsToModels(&usage, time.Now()),
	}
	return core.OKResult(p.ID(), []core.AccountQuota{acct})
}

func (p *Provider) refresh(ctx context.Context, l *login) (string, error) {
	if l.cred.RefreshToken == "" {
		return "", fmt.Errorf("%w: no refresh token stored", shared.ErrAuth)
	}
	tok, err := shared.RefreshJSON(ctx, p.Client, p.TokenURL, oauthClientID, l.cred.RefreshToken, nil)
	if err != nil {
		return "", err
	}
	if err := l.sink.StoreToken(l.cred, tok); err != nil {
		return "", err
	}
	l.cred.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		l.cred.RefreshToken = tok.RefreshToken
	}
	return tok.AccessToken, nil
}

func (p *Provider) fetchUsage(ctx context.Context, token string, out *usageResponse) error {
	return p.Policy.Do(ctx, []string{p.UsageURL}, func(ctx context.Context, endpoint string) error {
		req, err := shared.NewJSONRequest(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("anthropic-beta", oauthBeta)
		req.Header.Set("User-Agent", "openquota")

		err = shared.DoJSON(p.Client, req, out)
		// A revoked session answers 403 here.
		if shared.StatusOf(err) == http.StatusForbidden {
			return fmt.Errorf("%w: %w", shared.ErrAuth, err)
		}
		return err
	})
}

// fetchViaSession is the fallback for desktop-app users who never ran
// `claude login`: scrape the web session cookies and read the claude.ai
// usage endpoint instead.
func (p *Provider) fetchViaSession(ctx context.Context) (core.ProviderResult, bool) {
	load := p.loadSession
	if load == nil {
		load = loadDesktopSession
	}
	session, err := load(p.orgUUID())
	if err != nil || session == nil {
		return core.ProviderResult{}, false
	}

	var usage usageResponse
	if err := p.fetchSessionUsage(ctx, session, &usage); err != nil {
		if shared.StatusOf(err) == http.StatusUnauthorized || shared.StatusOf(err) == http.StatusForbidden {
			return core.AuthExpiredResult(p.ID(), err, "sign in to claude.ai again in the desktop app or browser"), true
		}
		return core.ErrorResult(p.ID(), err), true
	}

	acct := core.AccountQuota{
		ID:     session.OrgUUID,
		Models: bucketsToModels(&usage, time.Now()),
	}
	res := core.OKResult(p.ID(), []core.AccountQuota{acct})
	res.Hint = "quota read from the claude.ai web session"
	return res, true
}

func (p *Provider) orgUUID() string {
	data, err := os.ReadFile(p.AccountPath)
	if err != nil {
		return ""
	}
	var acct accountFile
	if err := json.Unmarshal(data, &acct); err != nil || acct.OAuthAccount == nil {
		return ""
	}
	return acct.OAuthAccount.OrganizationUUID
}

func bucketsToModels(usage *usageResponse, now time.Time) []core.ModelQuota {
	var models []core.ModelQuota
	add := func(name, display string, bucket *usageBucket) {
		if bucket == nil {
			return
		}
		used := clampPercent(bucket.Utilization)
		var reset *time.Time
		if t, ok := parseReset(bucket.ResetsAt); ok {
			if !t.After(now) {
				// The window already rolled over; the reported
				// utilization belongs to the previous window.
				used = 0
			} else {
				reset = &t
			}
		}
		remaining := 1 - used/100
		models = append(models, core.NewModelQuota(name, display, &remaining, reset))
	}
	add("five_hour", "Session (5h)", usage.FiveHour)
	add("seven_day", "Weekly (all models)", usage.SevenDay)
	add("seven_day_sonnet", "Claude Sonnet", usage.SevenDaySonnet)
	add("seven_day_opus", "Claude Opus", usage.SevenDayOpus)
	add("seven_day_cowork", "Cowork (weekly)", usage.SevenDayCowork)
	return models
}

func parseReset(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (p *Provider) apiKeyResult() core.ProviderResult {
	res := core.OKResult(p.ID(), []core.AccountQuota{{
		ID:          "api-key",
		DisplayName: "API key",
	}})
	res.Hint = "API keys are metered by billing, not quota; run `claude login` for usage windows"
	return res
}

func tierLabel(subscription string) string {
	switch strings.ToLower(strings.TrimSpace(subscription)) {
	case "":
		return ""
	case "max":
		return "Max"
	case "pro":
		return "Pro"
	case "team":
		return "Team"
	case "enterprise":
		return "Enterprise"
	case "free":
		return "Free"
	default:
		return subscription
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
