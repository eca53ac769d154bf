package claude

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/browserutils/kooky"
	_ "github.com/browserutils/kooky/browser/all" // register cookie store finders
	_ "github.com/mattn/go-sqlite3"

	"golang.org/x/crypto/pbkdf2"

	"github.com/janekbaraniewski/openquota/internal/providers/shared"
)

// sessionCookieNames are the claude.ai cookies the usage endpoint needs.
var sessionCookieNames = []string{"sessionKey", "cf_clearance", "anthropic-device-id", "lastActiveOrg", "__cf_bm"}

// desktopSession is a logged-in claude.ai web session recovered from the
// desktop app or a browser. It is an alternative quota path for users
// who never ran `claude login`.
type desktopSession struct {
	OrgUUID string
	Cookies map[string]string
}

// loadDesktopSession tries the desktop app's cookie store first, then
// falls back to the installed browsers.
func loadDesktopSession(orgUUID string) (*desktopSession, error) {
	cookies, err := desktopAppCookies()
	if err != nil {
		cookies, err = browserCookies()
	}
	if err != nil {
		return nil, err
	}
	if cookies["sessionKey"] == "" {
		return nil, fmt.Errorf("no claude.ai session cookie found")
	}
	if orgUUID == "" {
		orgUUID = cookies["lastActiveOrg"]
	}
	if orgUUID == "" {
		return nil, fmt.Errorf("no organization id for the web session")
	}
	return &desktopSession{OrgUUID: orgUUID, Cookies: cookies}, nil
}

// desktopAppCookies decrypts the Claude desktop app's Chromium cookie DB.
// The DB is copied first because the app keeps it locked.
func desktopAppCookies() (map[string]string, error) {
	if runtime.GOOS != "darwin" {
		return nil, fmt.Errorf("desktop cookie extraction is macOS-only")
	}

	key, err := chromiumEncryptionKey()
	if err != nil {
		return nil, fmt.Errorf("getting encryption key: %w", err)
	}

	cookiesPath := filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "Claude", "Cookies")
	src, err := os.ReadFile(cookiesPath)
	if err != nil {
		return nil, fmt.Errorf("reading cookie store: %w", err)
	}

	tmp, err := os.CreateTemp("", "openquota-cookies-*.db")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)
	if err := os.WriteFile(tmpPath, src, 0o600); err != nil {
		return nil, fmt.Errorf("copying cookie store: %w", err)
	}

	db, err := sql.Open("sqlite3", tmpPath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("opening cookie store: %w", err)
	}
	defer db.Close()

	placeholders := make([]string, len(sessionCookieNames))
	args := make([]any, len(sessionCookieNames))
	for i, name := range sessionCookieNames {
		placeholders[i] = "?"
		args[i] = name
	}
	query := fmt.Sprintf(
		"SELECT name, encrypted_value FROM cookies WHERE host_key LIKE '%%claude.ai%%' AND name IN (%s)",
		strings.Join(placeholders, ","),
	)
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying cookies: %w", err)
	}
	defer rows.Close()

	cookies := make(map[string]string)
	for rows.Next() {
		var name string
		var encrypted []byte
		if err := rows.Scan(&name, &encrypted); err != nil {
			continue
		}
		value, err := decryptChromiumCookie(encrypted, key)
		if err != nil {
			continue
		}
		cookies[name] = value
	}
	return cookies, rows.Err()
}

func chromiumEncryptionKey() ([]byte, error) {
	out, err := exec.Command("/usr/bin/security", "find-generic-password", "-w", "-s", "Claude Safe Storage", "-a", "Claude").Output()
	if err != nil {
		return nil, fmt.Errorf("keychain lookup failed: %w", err)
	}
	password := strings.TrimSpace(string(out))
	return pbkdf2.Key([]byte(password), []byte("saltysalt"), 1003, 16, sha1.New), nil
}

func decryptChromiumCookie(encrypted, key []byte) (string, error) {
	if len(encrypted) < 3 || string(encrypted[:3]) != "v10" {
		return "", fmt.Errorf("unsupported cookie encryption format")
	}
	ciphertext := encrypted[3:]
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("ciphertext not aligned to block size")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("creating AES cipher: %w", err)
	}

	iv := []byte("                ") // 16 spaces, the Chromium convention
	mode := cipher.NewCBCDecrypter(block, iv)
	plaintext := make([]byte, len(ciphertext))
	mode.CryptBlocks(plaintext, ciphertext)

	if len(plaintext) == 0 {
		return "", fmt.Errorf("empty plaintext")
	}
	padLen := int(plaintext[len(plaintext)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(plaintext) {
		return "", fmt.Errorf("invalid PKCS7 padding")
	}
	plaintext = plaintext[:len(plaintext)-padLen]

	// Newer Chromium prepends a 32-byte SHA-256 of the host key.
	const hashPrefixLen = 32
	if len(plaintext) <= hashPrefixLen {
		return "", fmt.Errorf("decrypted value too short")
	}
	return string(plaintext[hashPrefixLen:]), nil
}

// browserCookies pulls the claude.ai session out of whatever browser the
// user signed in with.
func browserCookies() (map[string]string, error) {
	found := kooky.ReadCookies(kooky.Valid, kooky.DomainHasSuffix("claude.ai"))
	if len(found) == 0 {
		return nil, fmt.Errorf("no claude.ai cookies in any browser store")
	}
	cookies := make(map[string]string)
	for _, c := range found {
		for _, want := range sessionCookieNames {
			if c.Name == want && cookies[want] == "" {
				cookies[want] = c.Value
			}
		}
	}
	return cookies, nil
}

// fetchSessionUsage reads the web usage endpoint with the recovered
// session cookies.
func (p *Provider) fetchSessionUsage(ctx context.Context, session *desktopSession, out *usageResponse) error {
	url := fmt.Sprintf("%s/api/organizations/%s/usage", strings.TrimRight(p.WebBaseURL, "/"), session.OrgUUID)
	req, err := shared.NewJSONRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	parts := make([]string, 0, len(session.Cookies))
	for name, value := range session.Cookies {
		parts = append(parts, name+"="+value)
	}
	req.Header.Set("Cookie", strings.Join(parts, "; "))
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36")
	req.Header.Set("Referer", "https://claude.ai/settings/usage")
	req.Header.Set("anthropic-client-platform", "web_claude_ai")

	return shared.DoJSON(p.Client, req, out)
}
