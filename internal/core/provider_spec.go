package core

type ProviderAuthType string

const (
	ProviderAuthTypeOAuth  ProviderAuthType = "oauth"
	ProviderAuthTypeAPIKey ProviderAuthType = "api_key"
	// ProviderAuthTypeMixed covers providers that accept both an OAuth
	// login and a plain API key.
	ProviderAuthTypeMixed ProviderAuthType = "mixed"
)

type ProviderAuthSpec struct {
	Type      ProviderAuthType
	APIKeyEnv string
	// LoginCommand is the vendor CLI invocation that re-establishes
	// credentials, surfaced in auth_expired hints.
	LoginCommand string
}

type ProviderSetup struct {
	DocsURL    string
	Quickstart []string
}

// ProviderSpec centralizes provider metadata so provider packages only
// implement fetching.
type ProviderSpec struct {
	ID    string
	Info  ProviderInfo
	Auth  ProviderAuthSpec
	Setup ProviderSetup
}
