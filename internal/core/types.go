package core

import (
	"math"
	"time"

	"github.com/samber/lo"
)

type Status string

const (
	StatusOK            Status = "ok"
	StatusNotConfigured Status = "not_configured"
	StatusAuthExpired   Status = "auth_expired"
	StatusError         Status = "error"
)

type Health string

const (
	HealthGood     Health = "good"
	HealthWarning  Health = "warning"
	HealthCritical Health = "critical"
	HealthUnknown  Health = "unknown"
)

const (
	// CriticalBelowPercent marks an account critical when any model drops
	// under this much remaining quota.
	CriticalBelowPercent = 30
	// WarningBelowPercent marks an account as warning territory.
	WarningBelowPercent = 70
)

type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

type ModelQuota struct {
	Name             string     `json:"name"`
	DisplayName      string     `json:"display_name"`
	RemainingPercent int        `json:"remaining_percent"`
	UsedPercent      int        `json:"used_percent"`
	ResetTime        *time.Time `json:"reset_time,omitempty"`
	Trend            Trend      `json:"trend,omitempty"`
}

// NewModelQuota converts a raw remaining fraction into integer percentages.
// A nil or NaN fraction counts as fully consumed; values outside [0,1] are
// clamped before conversion.
func NewModelQuota(name, displayName string, remaining *float64, reset *time.Time) ModelQuota {
	frac := 0.0
	if remaining != nil && !math.IsNaN(*remaining) {
		frac = math.Min(math.Max(*remaining, 0), 1)
	}
	pct := int(math.Round(frac * 100))
	return ModelQuota{
		Name:             name,
		DisplayName:      displayName,
		RemainingPercent: pct,
		UsedPercent:      100 - pct,
		ResetTime:        reset,
	}
}

type AccountQuota struct {
	ID          string       `json:"id"`
	DisplayName string       `json:"display_name,omitempty"`
	Tier        string       `json:"tier,omitempty"`
	Forbidden   bool         `json:"forbidden,omitempty"`
	Models      []ModelQuota `json:"models"`
	Health      Health       `json:"health"`
}

// ClassifyHealth derives account health from its per-model quotas. A
// forbidden account is always critical; an account with no model data and
// no access problem is unknown rather than good.
func ClassifyHealth(models []ModelQuota, forbidden bool) Health {
	if forbidden {
		return HealthCritical
	}
	worst, ok := WorstRemaining(models)
	if !ok {
		return HealthUnknown
	}
	switch {
	case worst < CriticalBelowPercent:
		return HealthCritical
	case worst < WarningBelowPercent:
		return HealthWarning
	default:
		return HealthGood
	}
}

// WorstRemaining returns the lowest remaining percentage across models.
func WorstRemaining(models []ModelQuota) (int, bool) {
	if len(models) == 0 {
		return 0, false
	}
	worst := lo.MinBy(models, func(a, b ModelQuota) bool {
		return a.RemainingPercent < b.RemainingPercent
	})
	return worst.RemainingPercent, true
}

type ProviderResult struct {
	ProviderID string         `json:"provider_id"`
	Status     Status         `json:"status"`
	Accounts   []AccountQuota `json:"accounts,omitempty"`
	Err        string         `json:"error,omitempty"`
	Hint       string         `json:"hint,omitempty"`
	FetchedAt  time.Time      `json:"fetched_at"`
}

func OKResult(providerID string, accounts []AccountQuota) ProviderResult {
	for i := range accounts {
		if accounts[i].Health == "" {
			accounts[i].Health = ClassifyHealth(accounts[i].Models, accounts[i].Forbidden)
		}
	}
	return ProviderResult{
		ProviderID: providerID,
		Status:     StatusOK,
		Accounts:   accounts,
		FetchedAt:  time.Now(),
	}
}

func NotConfiguredResult(providerID, hint string) ProviderResult {
	return ProviderResult{
		ProviderID: providerID,
		Status:     StatusNotConfigured,
		Hint:       hint,
		FetchedAt:  time.Now(),
	}
}

func AuthExpiredResult(providerID string, err error, hint string) ProviderResult {
	r := ProviderResult{
		ProviderID: providerID,
		Status:     StatusAuthExpired,
		Hint:       hint,
		FetchedAt:  time.Now(),
	}
	if err != nil {
		r.Err = err.Error()
	}
	return r
}

func ErrorResult(providerID string, err error) ProviderResult {
	r := ProviderResult{
		ProviderID: providerID,
		Status:     StatusError,
		FetchedAt:  time.Now(),
	}
	if err != nil {
		r.Err = err.Error()
	}
	return r
}

// Health reports the worst account health carried by the result. Results
// that never produced accounts report unknown.
func (r ProviderResult) Health() Health {
	if r.Status == StatusAuthExpired || r.Status == StatusError {
		return HealthCritical
	}
	if len(r.Accounts) == 0 {
		return HealthUnknown
	}
	rank := map[Health]int{
		HealthGood:     0,
		HealthUnknown:  1,
		HealthWarning:  2,
		HealthCritical: 3,
	}
	worst := lo.MaxBy(r.Accounts, func(a, b AccountQuota) bool {
		return rank[a.Health] > rank[b.Health]
	})
	return worst.Health
}
