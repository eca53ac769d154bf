package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/janekbaraniewski/openquota/internal/config"
	"github.com/janekbaraniewski/openquota/internal/core"
	"github.com/janekbaraniewski/openquota/internal/providers"
	"github.com/janekbaraniewski/openquota/internal/version"
)

func main() {
	if os.Getenv("OPENQUOTA_DEBUG") != "" {
		log.SetOutput(os.Stderr)
	} else {
		log.SetOutput(io.Discard)
	}

	// A local .env can hold API keys; absence is the normal case.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		fmt.Fprintf(os.Stderr, "Config path: %s\n", config.ConfigPath())
		os.Exit(1)
	}

	var jsonOut bool
	root := cobra.Command{
		Use:     "openquota",
		Short:   "OpenQuota reports remaining quota for AI CLI subscriptions.",
		Version: version.String(),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFetch(cmd, cfg, "", jsonOut)
		},
	}
	root.PersistentFlags().BoolVar(&jsonOut, "json", false, "emit results as JSON")

	root.AddCommand(newFetchCommand(cfg, &jsonOut))
	root.AddCommand(newWatchCommand(cfg, &jsonOut))
	root.AddCommand(newProvidersCommand())
	root.AddCommand(newKeyCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// newRegistry builds the registry with every provider bound to the
// configured key overrides.
func newRegistry(cfg config.Config) *core.Registry {
	keys := config.NewKeys(cfg.APIKeys)
	reg := core.NewRegistry()
	reg.SetTimeout(time.Duration(cfg.FetchTimeoutMS) * time.Millisecond)
	for _, p := range providers.WithKeys(keys, config.CredentialsPath()) {
		reg.Register(p)
	}
	return reg
}
