package notify

import (
	"strings"
	"testing"

	"github.com/janekbaraniewski/openquota/internal/core"
)

func testNotifier(t *testing.T) (*Notifier, *[]string) {
	t.Helper()
	var sent []string
	n := New(30, 10)
	n.send = func(title, body string) error {
		sent = append(sent, title+": "+body)
		return nil
	}
	return n, &sent
}

func resultWithRemaining(remaining int) []core.ProviderResult {
	frac := float64(remaining) / 100
	return []core.ProviderResult{
		core.OKResult("claude", []core.AccountQuota{{
			ID:     "me@example.com",
			Models: []core.ModelQuota{core.NewModelQuota("five_hour", "Session (5h)", &frac, nil)},
		}}),
	}
}

func TestNotifiesOnDownwardCrossingOnly(t *testing.T) {
	n, sent := testNotifier(t)

	n.Check(resultWithRemaining(50)) // baseline, no alert
	if len(*sent) != 0 {
		t.Fatalf("first cycle alerted: %v", *sent)
	}

	n.Check(resultWithRemaining(25)) // crosses warn (30)
	if len(*sent) != 1 || !strings.Contains((*sent)[0], "quota low") {
		t.Fatalf("after warn crossing: %v", *sent)
	}

	n.Check(resultWithRemaining(24)) // still low, no re-alert
	if len(*sent) != 1 {
		t.Fatalf("re-alerted without a crossing: %v", *sent)
	}

	n.Check(resultWithRemaining(5)) // crosses crit (10)
	if len(*sent) != 2 || !strings.Contains((*sent)[1], "quota critical") {
		t.Fatalf("after crit crossing: %v", *sent)
	}
}

func TestNotifiesOnRecovery(t *testing.T) {
	n, sent := testNotifier(t)

	n.Check(resultWithRemaining(50))
	n.Check(resultWithRemaining(5))
	n.Check(resultWithRemaining(95))

	last := (*sent)[len(*sent)-1]
	if !strings.Contains(last, "quota refreshed") {
		t.Fatalf("expected a refresh notification, got %v", *sent)
	}
}

func TestNotifiesOnceOnAuthExpiry(t *testing.T) {
	n, sent := testNotifier(t)

	n.Check(resultWithRemaining(50))
	expired := []core.ProviderResult{
		core.AuthExpiredResult("claude", nil, "run `claude login` to sign in again"),
	}
	n.Check(expired)
	n.Check(expired)

	var authAlerts int
	for _, s := range *sent {
		if strings.Contains(s, "session expired") {
			authAlerts++
		}
	}
	if authAlerts != 1 {
		t.Fatalf("auth alerts = %d, want 1: %v", authAlerts, *sent)
	}
	if !strings.Contains((*sent)[len(*sent)-1], "claude login") {
		t.Errorf("alert should carry the sign-in hint: %v", *sent)
	}
}

func TestFirstCycleIsBaseline(t *testing.T) {
	n, sent := testNotifier(t)

	n.Check(resultWithRemaining(2)) // already critical, but no history
	if len(*sent) != 0 {
		t.Fatalf("alerted on the first cycle: %v", *sent)
	}
}
