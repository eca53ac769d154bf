package providerbase

import (
	"testing"

	"github.com/janekbaraniewski/openquota/internal/core"
)

func TestNew_FillsDefaults(t *testing.T) {
	base := New(core.ProviderSpec{
		ID: "sample",
		Info: core.ProviderInfo{
			DocURL: "https://example.com/docs",
		},
	})

	spec := base.Spec()
	if spec.Info.Name != "sample" {
		t.Errorf("name defaults to id, got %q", spec.Info.Name)
	}
	if spec.Setup.DocsURL != "https://example.com/docs" {
		t.Errorf("setup docs = %q, want info doc url", spec.Setup.DocsURL)
	}
}

func TestNew_EmptyID(t *testing.T) {
	base := New(core.ProviderSpec{})
	if base.ID() != "unknown" {
		t.Errorf("id = %q, want unknown", base.ID())
	}
}

func TestLoginHint(t *testing.T) {
	withCmd := New(core.ProviderSpec{
		ID:   "claude",
		Auth: core.ProviderAuthSpec{LoginCommand: "claude login"},
	})
	if got := withCmd.LoginHint(); got != "run `claude login` to sign in again" {
		t.Errorf("hint = %q", got)
	}

	docsOnly := New(core.ProviderSpec{
		ID:   "x",
		Info: core.ProviderInfo{DocURL: "https://example.com"},
	})
	if got := docsOnly.LoginHint(); got != "see https://example.com" {
		t.Errorf("hint = %q", got)
	}

	bare := New(core.ProviderSpec{ID: "x"})
	if got := bare.LoginHint(); got != "" {
		t.Errorf("hint = %q, want empty", got)
	}
}
