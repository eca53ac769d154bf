package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/janekbaraniewski/openquota/internal/core"
	"github.com/janekbaraniewski/openquota/internal/providers/providerbase"
	"github.com/janekbaraniewski/openquota/internal/providers/shared"
)

const (
	oauthClientID     = "681255809395-oo8ft2oprdrnp9e3aqf6av3hmdib135j.apps.googleusercontent.com"
	oauthClientSecret = "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"
	tokenEndpoint     = "https://oauth2.googleapis.com/token"

	codeAssistAPIVersion = "v1internal"
)

// codeAssistEndpoints is the host fallback order for quota calls; the
// daily and sandbox hosts answer when the production one is mid-rollout.
var codeAssistEndpoints = []string{
	"https://cloudcode-pa.googleapis.com",
	"https://daily-cloudcode-pa.googleapis.com",
	"https://daily-cloudcode-pa.sandbox.googleapis.com",
}

type Provider struct {
	providerbase.Base

	Client    *http.Client
	Policy    shared.Policy
	Endpoints []string
	TokenURL  string
	// Sources overrides credential discovery (tests swap these out).
	Sources []core.CredentialSource
}

func New() *Provider {
	home, _ := os.UserHomeDir()
	return &Provider{
		Base: providerbase.New(core.ProviderSpec{
			ID: "gemini",
			Info: core.ProviderInfo{
				Name:         "Gemini CLI",
				Capabilities: []string{"oauth", "usage_endpoint", "multi_account"},
				DocURL:       "https://github.com/google-gemini/gemini-cli",
			},
			Auth: core.ProviderAuthSpec{
				Type:         core.ProviderAuthTypeOAuth,
				LoginCommand: "gemini",
			},
			Setup: core.ProviderSetup{
				Quickstart: []string{
					"Install the Gemini CLI and sign in with your Google account.",
					"Antigravity IDE accounts are picked up automatically.",
				},
			},
		}),
		Client:    http.DefaultClient,
		Policy:    shared.DefaultPolicy(),
		Endpoints: codeAssistEndpoints,
		TokenURL:  tokenEndpoint,
		Sources: []core.CredentialSource{
			&cliSource{dir: filepath.Join(home, ".gemini")},
			&ideSource{paths: defaultAntigravityPaths()},
		},
	}
}

func (p *Provider) IsConfigured(ctx context.Context) bool {
	return len(core.CollectCredentials(ctx, p.Sources...)) > 0
}

func (p *Provider) Fetch(ctx context.Context) core.ProviderResult {
	creds := core.CollectCredentials(ctx, p.Sources...)
	if len(creds) == 0 {
		return core.NotConfiguredResult(p.ID(), p.LoginHint())
	}

	sinks := p.sinksBySource()

	var accounts, failedAccounts []core.AccountQuota
	var authErrs, otherErrs []error
	for _, cred := range creds {
		acct, err := p.fetchAccount(ctx, cred, sinks[cred.Source])
		if err == nil {
			accounts = append(accounts, acct)
			continue
		}
		// A broken account still gets a row so the caller sees it next
		// to its healthy siblings.
		failedAccounts = append(failedAccounts, core.AccountQuota{
			ID:          cred.AccountID,
			DisplayName: cred.Label,
		})
		if errors.Is(err, shared.ErrAuth) {
			authErrs = append(authErrs, fmt.Errorf("%s: %w", cred.AccountID, err))
		} else {
			otherErrs = append(otherErrs, fmt.Errorf("%s: %w", cred.AccountID, err))
		}
	}

	if len(accounts) > 0 {
		res := core.OKResult(p.ID(), append(accounts, failedAccounts...))
		if failed := append(authErrs, otherErrs...); len(failed) > 0 {
			res.Err = errors.Join(failed...).Error()
		}
		return res
	}
	if len(authErrs) > 0 {
		return core.AuthExpiredResult(p.ID(), errors.Join(authErrs...), p.LoginHint())
	}
	return core.ErrorResult(p.ID(), errors.Join(otherErrs...))
}

func (p *Provider) sinksBySource() map[string]shared.TokenSink {
	sinks := make(map[string]shared.TokenSink, len(p.Sources))
	for _, src := range p.Sources {
		if sink, ok := src.(shared.TokenSink); ok {
			sinks[src.Name()] = sink
		} else {
			sinks[src.Name()] = shared.NoopSink{}
		}
	}
	return sinks
}

// fetchAccount resolves one credential to an account quota. A forbidden
// entitlement still yields an account so the caller can surface it.
func (p *Provider) fetchAccount(ctx context.Context, cred core.Credential, sink shared.TokenSink) (core.AccountQuota, error) {
	if sink == nil {
		sink = shared.NoopSink{}
	}

	refresh := func(ctx context.Context) (string, error) {
		if cred.RefreshToken == "" {
			return "", fmt.Errorf("%w: no refresh token for %s", shared.ErrAuth, cred.AccountID)
		}
		tok, err := shared.RefreshForm(ctx, p.Client, p.TokenURL, oauthClientID, oauthClientSecret, cred.RefreshToken)
		if err != nil {
			return "", err
		}
		if err := sink.StoreToken(cred, tok); err != nil {
			return "", err
		}
		return tok.AccessToken, nil
	}

	token := cred.AccessToken
	if cred.Expired(time.Now()) {
		fresh, err := refresh(ctx)
		if err != nil {
			return core.AccountQuota{}, err
		}
		token = fresh
	}

	acct := core.AccountQuota{
		ID:          cred.AccountID,
		DisplayName: cred.Label,
	}
	err := shared.DoWithAuthRetry(ctx, token, refresh, func(ctx context.Context, tok string) error {
		return p.resolveQuota(ctx, tok, cred.ProjectID, &acct)
	})
	if errors.Is(err, shared.ErrForbidden) {
		acct.Forbidden = true
		return acct, nil
	}
	if err != nil {
		return core.AccountQuota{}, err
	}
	return acct, nil
}

func (p *Provider) resolveQuota(ctx context.Context, token, projectID string, acct *core.AccountQuota) error {
	// Project and tier come from loadCodeAssist unless the credential
	// already pinned a project (env var or the IDE store).
	project, tier, err := p.loadCodeAssist(ctx, token, projectID)
	if err != nil {
		return err
	}
	if projectID != "" {
		project = projectID
	}
	acct.Tier = tier

	readings, err := p.fetchAvailableModels(ctx, token, project)
	if err != nil {
		return err
	}
	if len(readings) == 0 && project != "" {
		readings, err = p.retrieveUserUsage(ctx, token, project)
		if err != nil {
			return err
		}
	}

	acct.Models = core.GroupModels(readings, core.DefaultModelGroups)
	if acct.Tier == "" {
		acct.Tier = tierFromResets(readings, time.Now())
	}
	return nil
}

type clientMetadata struct {
	IDEType    string `json:"ideType"`
	Platform   string `json:"platform"`
	PluginType string `json:"pluginType"`
	Project    string `json:"duetProject,omitempty"`
}

type loadCodeAssistRequest struct {
	CloudAICompanionProject string         `json:"cloudaicompanionProject,omitempty"`
	Metadata                clientMetadata `json:"metadata"`
}

type tierInfo struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type loadCodeAssistResponse struct {
	CurrentTier             *tierInfo `json:"currentTier,omitempty"`
	CloudAICompanionProject string    `json:"cloudaicompanionProject,omitempty"`
}

func (p *Provider) loadCodeAssist(ctx context.Context, token, existingProject string) (string, string, error) {
	req := loadCodeAssistRequest{
		CloudAICompanionProject: existingProject,
		Metadata: clientMetadata{
			IDEType:    "IDE_UNSPECIFIED",
			Platform:   "PLATFORM_UNSPECIFIED",
			PluginType: "GEMINI",
			Project:    existingProject,
		},
	}
	var resp loadCodeAssistResponse
	if err := p.codeAssistPost(ctx, token, "loadCodeAssist", req, &resp); err != nil {
		return "", "", fmt.Errorf("loadCodeAssist: %w", err)
	}
	tier := ""
	if resp.CurrentTier != nil {
		tier = tierLabel(*resp.CurrentTier)
	}
	return resp.CloudAICompanionProject, tier, nil
}

type quotaInfo struct {
	RemainingFraction *float64 `json:"remainingFraction,omitempty"`
	ResetTime         string   `json:"resetTime,omitempty"`
}

type modelInfo struct {
	DisplayName string     `json:"displayName,omitempty"`
	QuotaInfo   *quotaInfo `json:"quotaInfo,omitempty"`
}

type availableModelsResponse struct {
	Models map[string]modelInfo `json:"models,omitempty"`
}

func (p *Provider) fetchAvailableModels(ctx context.Context, token, project string) ([]core.ModelReading, error) {
	req := map[string]string{}
	if project != "" {
		req["project"] = project
	}
	var resp availableModelsResponse
	if err := p.codeAssistPost(ctx, token, "fetchAvailableModels", req, &resp); err != nil {
		return nil, fmt.Errorf("fetchAvailableModels: %w", err)
	}

	ids := make([]string, 0, len(resp.Models))
	for id := range resp.Models {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var readings []core.ModelReading
	for _, id := range ids {
		info := resp.Models[id]
		if info.QuotaInfo == nil {
			continue
		}
		readings = append(readings, core.ModelReading{
			ModelID:     id,
			DisplayName: info.DisplayName,
			Remaining:   info.QuotaInfo.RemainingFraction,
			Reset:       parseResetTime(info.QuotaInfo.ResetTime),
		})
	}
	return readings, nil
}

type bucketInfo struct {
	RemainingFraction *float64 `json:"remainingFraction,omitempty"`
	ResetTime         string   `json:"resetTime,omitempty"`
	TokenType         string   `json:"tokenType,omitempty"`
	ModelID           string   `json:"modelId,omitempty"`
}

type userUsageResponse struct {
	Buckets []bucketInfo `json:"buckets,omitempty"`
}

func (p *Provider) retrieveUserUsage(ctx context.Context, token, project string) ([]core.ModelReading, error) {
	req := map[string]string{"project": project}
	var resp userUsageResponse
	if err := p.codeAssistPost(ctx, token, "retrieveUserUsage", req, &resp); err != nil {
		return nil, fmt.Errorf("retrieveUserUsage: %w", err)
	}

	var readings []core.ModelReading
	for _, b := range resp.Buckets {
		if b.ModelID == "" {
			continue
		}
		readings = append(readings, core.ModelReading{
			ModelID:   b.ModelID,
			Remaining: b.RemainingFraction,
			Reset:     parseResetTime(b.ResetTime),
		})
	}
	return readings, nil
}

// codeAssistPost posts one v1internal method, walking the host fallback
// list with retries.
func (p *Provider) codeAssistPost(ctx context.Context, token, method string, body, out any) error {
	return p.Policy.Do(ctx, p.Endpoints, func(ctx context.Context, base string) error {
		url := fmt.Sprintf("%s/%s:%s", strings.TrimSuffix(base, "/"), codeAssistAPIVersion, method)
		req, err := shared.NewJSONRequest(ctx, http.MethodPost, url, body)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("User-Agent", "openquota")

		err = shared.DoJSON(p.Client, req, out)
		if shared.StatusOf(err) == http.StatusForbidden {
			return classify403(err)
		}
		return err
	})
}

// classify403 splits entitlement denials from stale-session 403s: the
// former must not trigger a token refresh.
func classify403(err error) error {
	var he *shared.HTTPError
	if errors.As(err, &he) {
		body := strings.ToUpper(he.Body)
		for _, marker := range []string{"PERMISSION_DENIED", "SERVICE_DISABLED", "CONSUMER_INVALID", "ACCESS_TOKEN_SCOPE_INSUFFICIENT"} {
			if strings.Contains(body, marker) {
				return fmt.Errorf("%w: %w", shared.ErrForbidden, err)
			}
		}
	}
	return fmt.Errorf("%w: %w", shared.ErrAuth, err)
}

func parseResetTime(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}

func tierLabel(tier tierInfo) string {
	if tier.Name != "" {
		return tier.Name
	}
	switch strings.ToLower(tier.ID) {
	case "":
		return ""
	case "free-tier":
		return "Free"
	case "standard-tier", "paid-tier":
		return "Paid"
	case "legacy-tier":
		return "Legacy"
	default:
		return tier.ID
	}
}

// tierFromResets guesses the plan from reset cadence when the API never
// said: paid plans reset in short windows, free plans roll over daily or
// slower.
func tierFromResets(readings []core.ModelReading, now time.Time) string {
	soonest := time.Duration(-1)
	for _, r := range readings {
		if r.Reset == nil || r.Reset.Before(now) {
			continue
		}
		d := r.Reset.Sub(now)
		if soonest < 0 || d < soonest {
			soonest = d
		}
	}
	switch {
	case soonest < 0:
		return ""
	case soonest <= 6*time.Hour:
		return "Pro"
	default:
		return "Free"
	}
}
