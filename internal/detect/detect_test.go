package detect

import (
	"strings"
	"testing"
)

func TestDetectEnvKeys(t *testing.T) {
	for _, mapping := range envKeyMapping {
		t.Setenv(mapping.EnvVar, "")
	}
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-0123456789")
	t.Setenv("GEMINI_API_KEY", "AIza0123456789")
	t.Setenv("GOOGLE_API_KEY", "AIza9876543210")

	var result Result
	detectEnvKeys(&result)

	if len(result.Keys) != 2 {
		t.Fatalf("keys = %d, want 2 (one per provider)", len(result.Keys))
	}
	if result.Keys[0].Provider != "claude" || result.Keys[0].EnvVar != "ANTHROPIC_API_KEY" {
		t.Errorf("first key = %+v", result.Keys[0])
	}
	if result.Keys[1].Provider != "gemini" || result.Keys[1].EnvVar != "GEMINI_API_KEY" {
		t.Errorf("second key = %+v, GEMINI_API_KEY should win over GOOGLE_API_KEY", result.Keys[1])
	}
}

func TestMaskKey(t *testing.T) {
	if got := maskKey("short"); got != "****" {
		t.Errorf("maskKey(short) = %q", got)
	}
	got := maskKey("sk-ant-0123456789abcd")
	if !strings.HasPrefix(got, "sk-a") || !strings.HasSuffix(got, "abcd") || strings.Contains(got, "0123") {
		t.Errorf("maskKey = %q, want masked middle", got)
	}
}

func TestSummary(t *testing.T) {
	empty := Result{}
	if !strings.Contains(empty.Summary(), "No AI tools") {
		t.Errorf("empty summary = %q", empty.Summary())
	}

	r := Result{
		Tools: []DetectedTool{{Name: "Claude Code", BinaryPath: "/usr/local/bin/claude", SignedIn: true}},
		Keys:  []DetectedKey{{Provider: "codex", EnvVar: "OPENAI_API_KEY"}},
	}
	s := r.Summary()
	for _, want := range []string{"Claude Code", "(signed in)", "OPENAI_API_KEY", "provider: codex"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q:\n%s", want, s)
		}
	}
}
