// Package watch triggers refreshes when credential files change on disk,
// so a `claude login` or token rotation in another terminal shows up
// without waiting for the next poll.
package watch

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher observes a set of credential files and invokes a callback after
// changes settle. Directories are watched rather than the files
// themselves, so logins that create the file from scratch are caught too.
type Watcher struct {
	fsw      *fsnotify.Watcher
	files    map[string]struct{}
	debounce time.Duration
	onChange func()
	stop     chan struct{}

	timerMu sync.Mutex
	timer   *time.Timer
}

// CredentialPaths lists the stores the supported providers read from.
func CredentialPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	codexDir := os.Getenv("CODEX_HOME")
	if codexDir == "" {
		codexDir = filepath.Join(home, ".codex")
	}
	return []string{
		filepath.Join(home, ".claude", ".credentials.json"),
		filepath.Join(codexDir, "auth.json"),
		filepath.Join(home, ".gemini", "oauth_creds.json"),
		filepath.Join(home, ".gemini", "google_accounts.json"),
		filepath.Join(home, ".config", "antigravity", "accounts.json"),
		filepath.Join(home, ".config", "opencode", "antigravity-accounts.json"),
	}
}

// New starts watching the given files. Directories that do not exist yet
// are skipped; onChange runs on a watcher goroutine. A zero debounce
// means the default.
func New(paths []string, debounce time.Duration, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	w := &Watcher{
		fsw:      fsw,
		files:    make(map[string]struct{}, len(paths)),
		debounce: debounce,
		onChange: onChange,
		stop:     make(chan struct{}),
	}

	dirs := make(map[string]struct{})
	for _, p := range paths {
		if p == "" {
			continue
		}
		w.files[filepath.Clean(p)] = struct{}{}
		dirs[filepath.Dir(p)] = struct{}{}
	}
	watching := 0
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			log.Printf("[watch] cannot watch %s: %v", dir, err)
			continue
		}
		watching++
	}
	if watching == 0 {
		fsw.Close()
		return nil, fmt.Errorf("none of the credential directories can be watched")
	}

	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if _, watched := w.files[filepath.Clean(event.Name)]; !watched {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.schedule()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("[watch] %v", err)
		case <-w.stop:
			return
		}
	}
}

// schedule arms the debounce timer; rapid successive writes collapse into
// one callback.
func (w *Watcher) schedule() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.onChange)
}

func (w *Watcher) Close() error {
	close(w.stop)
	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timerMu.Unlock()
	return w.fsw.Close()
}
