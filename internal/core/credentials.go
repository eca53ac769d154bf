package core

import (
	"context"
	"log"
	"strings"
	"time"
)

// expiryLeeway treats tokens that expire this soon as already expired so a
// refresh happens before the token dies mid-request.
const expiryLeeway = 5 * time.Minute

// Credential is a single discovered account credential, independent of
// which backend it came from.
type Credential struct {
	Provider     string
	AccountID    string
	Label        string
	AccessToken  string
	RefreshToken string
	APIKey       string
	ExpiresAt    time.Time // zero means the expiry is unknown
	ProjectID    string
	Source       string
}

// Expired reports whether the access token must be refreshed before use.
// An unknown expiry counts as expired.
func (c Credential) Expired(now time.Time) bool {
	if c.AccessToken == "" {
		return true
	}
	if c.ExpiresAt.IsZero() {
		return true
	}
	return !now.Add(expiryLeeway).Before(c.ExpiresAt)
}

// CredentialSource discovers credentials from one backend (a well-known
// file, an OS keychain, an IDE account store, ...).
type CredentialSource interface {
	Name() string
	Load(ctx context.Context) ([]Credential, error)
}

// CollectCredentials unions the credentials of every source, in source
// order. Duplicate accounts (same ID, case-insensitive) keep the first
// occurrence and only fill in fields the first one left empty. A failing
// source is logged and skipped so it never hides the other backends.
func CollectCredentials(ctx context.Context, sources ...CredentialSource) []Credential {
	var order []string
	byID := make(map[string]Credential)

	for _, src := range sources {
		creds, err := src.Load(ctx)
		if err != nil {
			log.Printf("[credentials] source %s: %v", src.Name(), err)
			continue
		}
		for _, c := range creds {
			if c.AccountID == "" {
				continue
			}
			key := strings.ToLower(c.AccountID)
			prev, seen := byID[key]
			if !seen {
				byID[key] = c
				order = append(order, key)
				continue
			}
			if prev.ProjectID == "" {
				prev.ProjectID = c.ProjectID
			}
			if prev.RefreshToken == "" {
				prev.RefreshToken = c.RefreshToken
			}
			if prev.Label == "" {
				prev.Label = c.Label
			}
			if prev.AccessToken == "" {
				prev.AccessToken = c.AccessToken
				prev.ExpiresAt = c.ExpiresAt
			}
			byID[key] = prev
		}
	}

	out := make([]Credential, 0, len(order))
	for _, key := range order {
		out = append(out, byID[key])
	}
	return out
}
