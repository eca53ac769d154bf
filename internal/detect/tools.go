package detect

import (
	"log"
	"os"
	"path/filepath"
)

// detectClaude looks for the Claude Code CLI and its stored login.
//
// Claude Code keeps its login at ~/.claude/.credentials.json, or in the
// macOS login keychain on newer versions; the account identity lives in
// ~/.claude.json.
func detectClaude(result *Result) {
	bin := findBinary("claude")
	home := homeDir()
	configDir := filepath.Join(home, ".claude")

	if bin == "" && !dirExists(configDir) {
		return
	}
	if bin != "" {
		log.Printf("[detect] Found Claude Code at %s", bin)
	}

	result.Tools = append(result.Tools, DetectedTool{
		Name:       "Claude Code",
		Provider:   "claude",
		BinaryPath: bin,
		ConfigDir:  configDir,
		SignedIn:   fileExists(filepath.Join(configDir, ".credentials.json")),
	})
}

// detectCodex looks for the Codex CLI and its auth.json.
func detectCodex(result *Result) {
	bin := findBinary("codex")
	configDir := os.Getenv("CODEX_HOME")
	if configDir == "" {
		configDir = filepath.Join(homeDir(), ".codex")
	}

	if bin == "" && !dirExists(configDir) {
		return
	}
	if bin != "" {
		log.Printf("[detect] Found Codex CLI at %s", bin)
	}

	result.Tools = append(result.Tools, DetectedTool{
		Name:       "Codex CLI",
		Provider:   "codex",
		BinaryPath: bin,
		ConfigDir:  configDir,
		SignedIn:   fileExists(filepath.Join(configDir, "auth.json")),
	})
}

// detectGemini looks for the Gemini CLI and the Antigravity IDE, which
// share the same provider.
//
// Gemini CLI stores data at ~/.gemini/:
//   - oauth_creds.json — Google OAuth access/refresh tokens
//   - google_accounts.json — active account email
func detectGemini(result *Result) {
	bin := findBinary("gemini")
	home := homeDir()
	configDir := filepath.Join(home, ".gemini")
	antigravityAccounts := filepath.Join(home, ".config", "antigravity", "accounts.json")

	signedIn := fileExists(filepath.Join(configDir, "oauth_creds.json")) ||
		fileExists(antigravityAccounts)

	if bin == "" && !dirExists(configDir) && !signedIn {
		return
	}
	if bin != "" {
		log.Printf("[detect] Found Gemini CLI at %s", bin)
	}

	result.Tools = append(result.Tools, DetectedTool{
		Name:       "Gemini CLI",
		Provider:   "gemini",
		BinaryPath: bin,
		ConfigDir:  configDir,
		SignedIn:   signedIn,
	})
}
