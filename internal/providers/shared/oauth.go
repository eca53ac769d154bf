package shared

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/janekbaraniewski/openquota/internal/core"
)

// Token is the outcome of a refresh grant.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// TokenSink persists a refreshed token back to the credential's original
// backend so the next run starts warm.
type TokenSink interface {
	StoreToken(cred core.Credential, tok Token) error
}

// NoopSink is for credential backends we do not own (IDE account stores,
// keychains written by other tools).
type NoopSink struct{}

func (NoopSink) StoreToken(core.Credential, Token) error { return nil }

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

func (t tokenResponse) toToken(now time.Time) (Token, error) {
	if t.Error != "" {
		return Token{}, fmt.Errorf("%w: token endpoint: %s %s", ErrAuth, t.Error, t.ErrorDesc)
	}
	if t.AccessToken == "" {
		return Token{}, fmt.Errorf("%w: token endpoint returned no access token", ErrAuth)
	}
	tok := Token{AccessToken: t.AccessToken, RefreshToken: t.RefreshToken}
	if t.ExpiresIn > 0 {
		tok.ExpiresAt = now.Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	return tok, nil
}

// RefreshForm exchanges a refresh token at a form-encoded OAuth token
// endpoint (the Google shape).
func RefreshForm(ctx context.Context, client *http.Client, endpoint, clientID, clientSecret, refreshToken string) (Token, error) {
	form := url.Values{
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("creating refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var parsed tokenResponse
	if err := DoJSON(client, req, &parsed); err != nil {
		return Token{}, classifyRefreshErr(err)
	}
	return parsed.toToken(time.Now())
}

// RefreshJSON exchanges a refresh token at a JSON OAuth token endpoint
// (the OpenAI and Anthropic shape). extra is merged into the grant body.
func RefreshJSON(ctx context.Context, client *http.Client, endpoint, clientID, refreshToken string, extra map[string]string) (Token, error) {
	body := map[string]string{
		"client_id":     clientID,
		"refresh_token": refreshToken,
		"grant_type":    "refresh_token",
	}
	for k, v := range extra {
		body[k] = v
	}
	req, err := NewJSONRequest(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return Token{}, err
	}

	var parsed tokenResponse
	if err := DoJSON(client, req, &parsed); err != nil {
		return Token{}, classifyRefreshErr(err)
	}
	return parsed.toToken(time.Now())
}

// classifyRefreshErr maps token endpoint rejections onto ErrAuth: a 400
// or 403 on a refresh grant means the refresh token itself is dead.
func classifyRefreshErr(err error) error {
	switch StatusOf(err) {
	case http.StatusBadRequest, http.StatusForbidden:
		return fmt.Errorf("%w: %w", ErrAuth, err)
	}
	return err
}
