// Package notify raises desktop notifications when an account crosses a
// quota threshold. Notifications fire on downward crossings only, so a
// provider sitting at 3% does not alert on every poll.
package notify

import (
	"fmt"
	"log"

	"github.com/gen2brain/beeep"

	"github.com/janekbaraniewski/openquota/internal/core"
)

// Notifier compares successive refresh results and alerts on threshold
// crossings. It is driven from the registry's OnUpdate hook.
type Notifier struct {
	WarnBelowPercent int
	CritBelowPercent int

	// send is swappable in tests; nil means beeep.Notify.
	send func(title, body string) error

	previous map[string]snapshot
}

type snapshot struct {
	status    core.Status
	remaining int
	hasModels bool
}

func New(warnBelow, critBelow int) *Notifier {
	return &Notifier{
		WarnBelowPercent: warnBelow,
		CritBelowPercent: critBelow,
		previous:         make(map[string]snapshot),
	}
}

// Check inspects one refresh cycle's results against the previous cycle.
func (n *Notifier) Check(results []core.ProviderResult) {
	for _, res := range results {
		for _, acct := range res.Accounts {
			n.checkAccount(res, acct)
		}
		n.checkStatus(res)
	}
}

func (n *Notifier) checkAccount(res core.ProviderResult, acct core.AccountQuota) {
	key := res.ProviderID + "/" + acct.ID
	remaining, ok := core.WorstRemaining(acct.Models)
	current := snapshot{status: res.Status, remaining: remaining, hasModels: ok}

	prev, seen := n.previous[key]
	n.previous[key] = current
	if !seen || !ok || !prev.hasModels {
		return
	}

	label := acct.ID
	if acct.DisplayName != "" {
		label = acct.DisplayName
	}

	switch {
	case remaining < n.CritBelowPercent && prev.remaining >= n.CritBelowPercent:
		n.notify(
			fmt.Sprintf("%s: quota critical", res.ProviderID),
			fmt.Sprintf("%s has %d%% remaining", label, remaining),
		)
	case remaining < n.WarnBelowPercent && prev.remaining >= n.WarnBelowPercent:
		n.notify(
			fmt.Sprintf("%s: quota low", res.ProviderID),
			fmt.Sprintf("%s has %d%% remaining", label, remaining),
		)
	case remaining >= n.WarnBelowPercent && prev.remaining < n.CritBelowPercent:
		n.notify(
			fmt.Sprintf("%s: quota refreshed", res.ProviderID),
			fmt.Sprintf("%s is back to %d%% remaining", label, remaining),
		)
	}
}

// checkStatus alerts once when a provider's session dies.
func (n *Notifier) checkStatus(res core.ProviderResult) {
	key := res.ProviderID
	prev, seen := n.previous[key]
	n.previous[key] = snapshot{status: res.Status}

	if !seen {
		return
	}
	if res.Status == core.StatusAuthExpired && prev.status != core.StatusAuthExpired {
		body := "sign in again to keep quota tracking"
		if res.Hint != "" {
			body = res.Hint
		}
		n.notify(fmt.Sprintf("%s: session expired", res.ProviderID), body)
	}
}

func (n *Notifier) notify(title, body string) {
	send := n.send
	if send == nil {
		send = func(title, body string) error {
			return beeep.Notify(title, body, "")
		}
	}
	if err := send(title, body); err != nil {
		log.Printf("[notify] %v", err)
	}
}
