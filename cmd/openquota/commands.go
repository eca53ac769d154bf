package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/janekbaraniewski/openquota/internal/config"
	"github.com/janekbaraniewski/openquota/internal/core"
	"github.com/janekbaraniewski/openquota/internal/detect"
	"github.com/janekbaraniewski/openquota/internal/notify"
	"github.com/janekbaraniewski/openquota/internal/providers"
	"github.com/janekbaraniewski/openquota/internal/watch"
)

func newFetchCommand(cfg config.Config, jsonOut *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch [provider]",
		Short: "Fetch quota once and print it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			providerID := ""
			if len(args) == 1 {
				providerID = args[0]
			}
			return runFetch(cmd, cfg, providerID, *jsonOut)
		},
	}
}

func runFetch(cmd *cobra.Command, cfg config.Config, providerID string, jsonOut bool) error {
	reg := newRegistry(cfg)

	if providerID != "" {
		p, ok := reg.Provider(providerID)
		if !ok {
			return fmt.Errorf("unknown provider %q", providerID)
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(cfg.FetchTimeoutMS)*time.Millisecond)
		defer cancel()
		return printResults(cmd.OutOrStdout(), []core.ProviderResult{p.Fetch(ctx)}, jsonOut)
	}

	results := reg.RefreshAll(cmd.Context())
	return printResults(cmd.OutOrStdout(), results, jsonOut)
}

func newWatchCommand(cfg config.Config, jsonOut *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Poll continuously, re-printing on every refresh",
		Long: "Poll continuously at the configured interval, refreshing early when a " +
			"credential file changes, and raise desktop notifications on threshold crossings.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reg := newRegistry(cfg)

			var notifier *notify.Notifier
			if cfg.Notifications {
				notifier = notify.New(cfg.WarnBelowPercent, cfg.CritBelowPercent)
			}
			reg.OnUpdate(func(results []core.ProviderResult) {
				if err := printResults(cmd.OutOrStdout(), results, *jsonOut); err != nil {
					log.Printf("[watch] print: %v", err)
				}
				if notifier != nil {
					notifier.Check(results)
				}
			})

			w, err := watch.New(watch.CredentialPaths(), 0, func() {
				log.Printf("[watch] credential change, refreshing")
				reg.RefreshAll(ctx)
			})
			if err != nil {
				log.Printf("[watch] file watching disabled: %v", err)
			} else {
				defer w.Close()
			}

			reg.Run(ctx, time.Duration(cfg.RefreshIntervalMS)*time.Millisecond)
			return nil
		},
	}
}

func newProvidersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List supported providers and what is configured locally",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			for _, p := range providers.All() {
				info := p.Describe()
				configured := "not configured"
				if p.IsConfigured(cmd.Context()) {
					configured = "configured"
				}
				fmt.Fprintf(out, "%-8s %-14s %s\n", p.ID(), configured, info.Name)
				if info.DocURL != "" {
					fmt.Fprintf(out, "         docs: %s\n", info.DocURL)
				}
			}
			fmt.Fprintln(out)
			fmt.Fprint(out, detect.AutoDetect().Summary())
			return nil
		},
	}
}

func newKeyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage per-provider API key overrides",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <provider> <key>",
		Short: "Store an API key override for a provider",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.SaveAPIKey(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored API key for %s\n", args[0])
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear <provider>",
		Short: "Remove a provider's API key override",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.SaveAPIKey(args[0], ""); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared API key for %s\n", args[0])
			return nil
		},
	})
	return cmd
}
