package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/janekbaraniewski/openquota/internal/core"
)

func sampleResults() []core.ProviderResult {
	frac := 0.42
	reset := time.Now().Add(30 * time.Minute)
	return []core.ProviderResult{
		core.OKResult("claude", []core.AccountQuota{{
			ID:   "me@example.com",
			Tier: "Max",
			Models: []core.ModelQuota{
				core.NewModelQuota("five_hour", "Session (5h)", &frac, &reset),
			},
		}}),
		core.AuthExpiredResult("codex", nil, "run `codex login` to sign in again"),
	}
}

func TestPrintResultsText(t *testing.T) {
	var buf bytes.Buffer
	if err := printResults(&buf, sampleResults(), false); err != nil {
		t.Fatalf("printResults: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"claude", "ok", "warning",
		"me@example.com", "Max",
		"Session (5h)", "42% remaining", "resets in",
		"codex", "auth_expired", "codex login",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintResultsJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := printResults(&buf, sampleResults(), true); err != nil {
		t.Fatalf("printResults: %v", err)
	}

	var decoded []core.ProviderResult
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(decoded) != 2 || decoded[0].ProviderID != "claude" {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded[0].Accounts[0].Models[0].RemainingPercent != 42 {
		t.Errorf("remaining = %d", decoded[0].Accounts[0].Models[0].RemainingPercent)
	}
}

func TestFormatReset(t *testing.T) {
	now := time.Now()
	if got := formatReset(now.Add(-time.Minute)); got != "now" {
		t.Errorf("past reset = %q", got)
	}
	if got := formatReset(now.Add(25 * time.Minute)); !strings.HasPrefix(got, "in ") || !strings.HasSuffix(got, "m") {
		t.Errorf("near reset = %q", got)
	}
	if got := formatReset(now.Add(5 * time.Hour)); !strings.Contains(got, "h") {
		t.Errorf("same-day reset = %q", got)
	}
	far := formatReset(now.Add(72 * time.Hour))
	if strings.HasPrefix(far, "in ") {
		t.Errorf("far reset = %q, want a timestamp", far)
	}
}
