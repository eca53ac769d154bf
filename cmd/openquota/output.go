package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/janekbaraniewski/openquota/internal/core"
)

// printResults renders one refresh cycle for a terminal, or as JSON when
// asked.
func printResults(w io.Writer, results []core.ProviderResult, jsonOut bool) error {
	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	for _, res := range results {
		fmt.Fprintf(w, "%-8s %-14s %s\n", res.ProviderID, res.Status, res.Health())
		if res.Err != "" {
			fmt.Fprintf(w, "  error: %s\n", res.Err)
		}
		if res.Hint != "" {
			fmt.Fprintf(w, "  hint: %s\n", res.Hint)
		}
		for _, acct := range res.Accounts {
			printAccount(w, acct)
		}
	}
	return nil
}

func printAccount(w io.Writer, acct core.AccountQuota) {
	label := acct.ID
	if acct.DisplayName != "" && acct.DisplayName != acct.ID {
		label = fmt.Sprintf("%s (%s)", acct.DisplayName, acct.ID)
	}
	if acct.Tier != "" {
		label += " · " + acct.Tier
	}
	if acct.Forbidden {
		label += " · no access"
	}
	fmt.Fprintf(w, "  %s\n", label)

	for _, m := range acct.Models {
		name := m.DisplayName
		if name == "" {
			name = m.Name
		}
		line := fmt.Sprintf("    %-24s %3d%% remaining", name, m.RemainingPercent)
		if m.ResetTime != nil {
			line += "  resets " + formatReset(*m.ResetTime)
		}
		fmt.Fprintln(w, line)
	}
}

// formatReset prints a reset as a countdown for near resets and a
// timestamp for far ones.
func formatReset(t time.Time) string {
	d := time.Until(t)
	switch {
	case d <= 0:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("in %dm", int(d.Minutes())+1)
	case d < 24*time.Hour:
		h := int(d.Hours())
		m := int(d.Minutes()) - h*60
		return fmt.Sprintf("in %dh%02dm", h, m)
	default:
		return t.Local().Format("Jan 2 15:04")
	}
}
