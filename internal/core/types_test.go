package core

import (
	"errors"
	"math"
	"testing"
	"time"
)

func fp(v float64) *float64 { return &v }

func TestNewModelQuota_Normalizes(t *testing.T) {
	cases := []struct {
		name          string
		remaining     *float64
		wantRemaining int
	}{
		{"nil is fully consumed", nil, 0},
		{"nan is fully consumed", fp(math.NaN()), 0},
		{"negative clamps to zero", fp(-0.5), 0},
		{"above one clamps to hundred", fp(1.7), 100},
		{"half", fp(0.5), 50},
		{"rounds", fp(0.666), 67},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := NewModelQuota("m", "M", tc.remaining, nil)
			if q.RemainingPercent != tc.wantRemaining {
				t.Errorf("remaining = %d, want %d", q.RemainingPercent, tc.wantRemaining)
			}
			if q.UsedPercent != 100-tc.wantRemaining {
				t.Errorf("used = %d, want %d", q.UsedPercent, 100-tc.wantRemaining)
			}
		})
	}
}

func TestClassifyHealth(t *testing.T) {
	models := func(remaining ...int) []ModelQuota {
		out := make([]ModelQuota, len(remaining))
		for i, r := range remaining {
			out[i] = ModelQuota{Name: "m", RemainingPercent: r}
		}
		return out
	}

	cases := []struct {
		name      string
		models    []ModelQuota
		forbidden bool
		want      Health
	}{
		{"all plenty", models(90, 100), false, HealthGood},
		{"one under warning", models(90, 69), false, HealthWarning},
		{"one under critical", models(90, 29), false, HealthCritical},
		{"boundary 30 is warning", models(30), false, HealthWarning},
		{"boundary 70 is good", models(70), false, HealthGood},
		{"no models is unknown", nil, false, HealthUnknown},
		{"forbidden beats everything", models(100), true, HealthCritical},
		{"forbidden without models", nil, true, HealthCritical},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyHealth(tc.models, tc.forbidden); got != tc.want {
				t.Errorf("health = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestOKResult_FillsHealth(t *testing.T) {
	res := OKResult("codex", []AccountQuota{
		{ID: "a", Models: []ModelQuota{{Name: "5h", RemainingPercent: 12}}},
	})
	if res.Status != StatusOK {
		t.Fatalf("status = %q, want %q", res.Status, StatusOK)
	}
	if res.Accounts[0].Health != HealthCritical {
		t.Errorf("health = %q, want %q", res.Accounts[0].Health, HealthCritical)
	}
	if res.FetchedAt.IsZero() {
		t.Error("FetchedAt not set")
	}
}

func TestProviderResult_Health(t *testing.T) {
	okGood := OKResult("p", []AccountQuota{{ID: "a", Models: []ModelQuota{{RemainingPercent: 95}}}})
	if got := okGood.Health(); got != HealthGood {
		t.Errorf("good result health = %q", got)
	}

	mixed := OKResult("p", []AccountQuota{
		{ID: "a", Models: []ModelQuota{{RemainingPercent: 95}}},
		{ID: "b", Models: []ModelQuota{{RemainingPercent: 40}}},
	})
	if got := mixed.Health(); got != HealthWarning {
		t.Errorf("mixed result health = %q, want warning", got)
	}

	if got := AuthExpiredResult("p", errors.New("401"), "").Health(); got != HealthCritical {
		t.Errorf("auth_expired health = %q, want critical", got)
	}
	if got := NotConfiguredResult("p", "").Health(); got != HealthUnknown {
		t.Errorf("not_configured health = %q, want unknown", got)
	}
}

func TestCredential_Expired(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		cred Credential
		want bool
	}{
		{"no token", Credential{}, true},
		{"no expiry", Credential{AccessToken: "t"}, true},
		{"inside leeway", Credential{AccessToken: "t", ExpiresAt: now.Add(time.Minute)}, true},
		{"fresh", Credential{AccessToken: "t", ExpiresAt: now.Add(time.Hour)}, false},
		{"long gone", Credential{AccessToken: "t", ExpiresAt: now.Add(-time.Hour)}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cred.Expired(now); got != tc.want {
				t.Errorf("Expired = %v, want %v", got, tc.want)
			}
		})
	}
}
