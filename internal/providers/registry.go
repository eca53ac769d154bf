// Package providers wires the individual provider packages into the
// roster the registry runs.
package providers

import (
	"github.com/janekbaraniewski/openquota/internal/config"
	"github.com/janekbaraniewski/openquota/internal/core"
	"github.com/janekbaraniewski/openquota/internal/providers/claude"
	"github.com/janekbaraniewski/openquota/internal/providers/codex"
	"github.com/janekbaraniewski/openquota/internal/providers/gemini"
)

// All returns one instance of every provider, in display order.
func All() []core.Provider {
	return []core.Provider{
		claude.New(),
		codex.New(),
		gemini.New(),
	}
}

// WithKeys returns the roster with API-key resolution bound to the
// settings override cell and the given credentials file.
func WithKeys(keys *config.Keys, credentialsPath string) []core.Provider {
	cl := claude.New()
	cl.ResolveKey = config.ResolverFrom(keys, cl.ID(), cl.Spec().Auth.APIKeyEnv, credentialsPath)

	cx := codex.New()
	cx.ResolveKey = config.ResolverFrom(keys, cx.ID(), cx.Spec().Auth.APIKeyEnv, credentialsPath)

	gm := gemini.New()

	return []core.Provider{cl, cx, gm}
}
