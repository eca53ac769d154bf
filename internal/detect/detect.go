// Package detect implements auto-detection of AI coding tools and API keys
// configured on the workstation.
package detect

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
)

// DetectedTool represents a tool found on the workstation.
type DetectedTool struct {
	Name       string // e.g. "Claude Code", "Codex CLI"
	Provider   string // provider id the tool maps to
	BinaryPath string // resolved path to binary, if applicable
	ConfigDir  string // path to the tool's config directory
	SignedIn   bool   // a stored login was found
}

// DetectedKey is an API key found in the environment.
type DetectedKey struct {
	Provider string
	EnvVar   string
}

// Result holds the full auto-detection result.
type Result struct {
	Tools []DetectedTool
	Keys  []DetectedKey
}

// AutoDetect scans the workstation for the supported CLI tools and
// their API keys.
func AutoDetect() Result {
	var result Result

	detectClaude(&result)
	detectCodex(&result)
	detectGemini(&result)
	detectEnvKeys(&result)

	return result
}

func homeDir() string {
	h, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return h
}

// findBinary checks if a binary exists on PATH and returns its full path.
func findBinary(name string) string {
	path, err := exec.LookPath(name)
	if err != nil {
		return ""
	}
	return path
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// envKeyMapping maps environment variable names to provider ids.
var envKeyMapping = []struct {
	EnvVar   string
	Provider string
}{
	{"ANTHROPIC_API_KEY", "claude"},
	{"OPENAI_API_KEY", "codex"},
	{"GEMINI_API_KEY", "gemini"},
	{"GOOGLE_API_KEY", "gemini"},
}

// detectEnvKeys scans environment variables for known AI API keys.
func detectEnvKeys(result *Result) {
	for _, mapping := range envKeyMapping {
		val := os.Getenv(mapping.EnvVar)
		if val == "" {
			continue
		}
		log.Printf("[detect] Found %s=%s", mapping.EnvVar, maskKey(val))
		addKey(result, DetectedKey{Provider: mapping.Provider, EnvVar: mapping.EnvVar})
	}
}

// maskKey keeps just enough of a key to recognize it in logs.
func maskKey(val string) string {
	if len(val) < 10 {
		return "****"
	}
	return val[:4] + "..." + val[len(val)-4:]
}

// addKey adds a key unless the provider already has one.
func addKey(result *Result, key DetectedKey) {
	for _, existing := range result.Keys {
		if existing.Provider == key.Provider {
			return
		}
	}
	result.Keys = append(result.Keys, key)
}

// Summary returns a human-readable summary of what was detected.
func (r Result) Summary() string {
	var sb strings.Builder
	if len(r.Tools) > 0 {
		sb.WriteString(fmt.Sprintf("Detected %d tool(s):\n", len(r.Tools)))
		for _, t := range r.Tools {
			sb.WriteString(fmt.Sprintf("  • %s", t.Name))
			if t.BinaryPath != "" {
				sb.WriteString(fmt.Sprintf(" at %s", t.BinaryPath))
			}
			if t.SignedIn {
				sb.WriteString(" (signed in)")
			}
			sb.WriteString("\n")
		}
	}
	if len(r.Keys) > 0 {
		sb.WriteString(fmt.Sprintf("Found %d API key(s):\n", len(r.Keys)))
		for _, k := range r.Keys {
			sb.WriteString(fmt.Sprintf("  • %s (provider: %s)\n", k.EnvVar, k.Provider))
		}
	}
	if len(r.Tools) == 0 && len(r.Keys) == 0 {
		sb.WriteString("No AI tools or API keys detected on this workstation.\n")
	}
	return sb.String()
}
