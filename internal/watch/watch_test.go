package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestWatcher(t *testing.T, path string) chan struct{} {
	t.Helper()
	fired := make(chan struct{}, 1)
	w, err := New([]string{path}, 20*time.Millisecond, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return fired
}

func TestWatcherFiresOnCredentialWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "auth.json")
	fired := newTestWatcher(t, path)

	if err := os.WriteFile(path, []byte(`{}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("no callback after credential write")
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	fired := newTestWatcher(t, filepath.Join(dir, "auth.json"))

	if err := os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-fired:
		t.Fatal("callback fired for an unrelated file")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "oauth_creds.json")
	calls := make(chan struct{}, 10)
	w, err := New([]string{path}, 100*time.Millisecond, func() { calls <- struct{}{} })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { w.Close() })

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte(`{}`), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("no callback after burst")
	}
	select {
	case <-calls:
		t.Error("burst produced more than one callback")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestNewNoWatchableDirs(t *testing.T) {
	if _, err := New([]string{filepath.Join(t.TempDir(), "missing", "deep", "auth.json")}, 0, func() {}); err == nil {
		t.Fatal("expected an error when no directory can be watched")
	}
}
