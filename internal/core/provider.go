package core

import "context"

type ProviderInfo struct {
	Name         string   // e.g. "Claude Code", "Codex CLI"
	Capabilities []string // "oauth", "api_key", "usage_endpoint", "multi_account"
	DocURL       string   // link to the vendor's usage/limits documentation
}

// Provider resolves the current quota state for one CLI vendor. Fetch
// never returns an error: every failure mode is folded into the result's
// status so one broken provider cannot take down a refresh cycle.
type Provider interface {
	ID() string

	Describe() ProviderInfo

	// IsConfigured reports whether any credential backend for this
	// provider has material worth fetching. It must stay cheap: local
	// files and env vars only, no network.
	IsConfigured(ctx context.Context) bool

	Fetch(ctx context.Context) ProviderResult
}
