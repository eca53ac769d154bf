package providerbase

import (
	"fmt"

	"github.com/janekbaraniewski/openquota/internal/core"
)

// Base centralizes provider metadata. Provider packages embed this and
// implement only IsConfigured and Fetch.
type Base struct {
	spec core.ProviderSpec
}

func New(spec core.ProviderSpec) Base {
	normalized := spec
	if normalized.ID == "" {
		normalized.ID = "unknown"
	}
	if normalized.Info.Name == "" {
		normalized.Info.Name = normalized.ID
	}
	if normalized.Setup.DocsURL == "" {
		normalized.Setup.DocsURL = normalized.Info.DocURL
	}

	return Base{spec: normalized}
}

func (b Base) ID() string {
	return b.spec.ID
}

func (b Base) Describe() core.ProviderInfo {
	return b.spec.Info
}

func (b Base) Spec() core.ProviderSpec {
	return b.spec
}

// LoginHint is the remediation line attached to not_configured and
// auth_expired results.
func (b Base) LoginHint() string {
	if b.spec.Auth.LoginCommand != "" {
		return fmt.Sprintf("run `%s` to sign in again", b.spec.Auth.LoginCommand)
	}
	if b.spec.Setup.DocsURL != "" {
		return "see " + b.spec.Setup.DocsURL
	}
	return ""
}
