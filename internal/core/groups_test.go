package core

import (
	"testing"
	"time"
)

func TestNormalizeModelKey(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"gemini-3-PRO-high", "gemini 3 pro high"},
		{"models/gemini_3_pro", "gemini 3 pro"},
		{"  Gemini  2.5   Flash ", "gemini 2.5 flash"},
		{"claude-sonnet-4-5", "claude sonnet 4 5"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := normalizeModelKey(tc.raw); got != tc.want {
			t.Errorf("normalizeModelKey(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestGroupModels_MinPerGroup(t *testing.T) {
	reset := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	readings := []ModelReading{
		{ModelID: "gemini-3-pro-high", Remaining: fp(0.80)},
		{ModelID: "gemini-3-pro-low", Remaining: fp(0.25), Reset: &reset},
		{ModelID: "gemini-3-flash", Remaining: fp(0.90)},
	}

	got := GroupModels(readings, DefaultModelGroups)
	if len(got) != 2 {
		t.Fatalf("got %d groups, want 2", len(got))
	}
	if got[0].Name != "Gemini 3 Pro" {
		t.Fatalf("first group = %q, want Gemini 3 Pro", got[0].Name)
	}
	if got[0].RemainingPercent != 25 {
		t.Errorf("Gemini 3 Pro remaining = %d, want min variant 25", got[0].RemainingPercent)
	}
	if got[0].ResetTime == nil || !got[0].ResetTime.Equal(reset) {
		t.Errorf("Gemini 3 Pro reset = %v, want reset of the min variant", got[0].ResetTime)
	}
	if got[1].Name != "Gemini 3 Flash" || got[1].RemainingPercent != 90 {
		t.Errorf("second group = %+v", got[1])
	}
}

func TestGroupModels_CaseAndSeparatorInsensitive(t *testing.T) {
	readings := []ModelReading{
		{ModelID: "GEMINI_3_PRO", Remaining: fp(1)},
		{ModelID: "claude-opus-4-6-thinking", Remaining: fp(0.5)},
		{ModelID: "sonnet", Remaining: fp(0.4)},
	}
	got := GroupModels(readings, DefaultModelGroups)
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3: %+v", len(got), got)
	}
	wantNames := []string{"Gemini 3 Pro", "Claude Sonnet", "Claude Opus"}
	for i, w := range wantNames {
		if got[i].Name != w {
			t.Errorf("entry %d = %q, want %q", i, got[i].Name, w)
		}
	}
}

func TestGroupModels_MatchesOnDisplayName(t *testing.T) {
	readings := []ModelReading{
		{ModelID: "internal-model-7", DisplayName: "Gemini 3 Pro Preview", Remaining: fp(0.8)},
		{ModelID: "internal-model-9", DisplayName: "Something Else", Remaining: fp(0.6)},
	}
	got := GroupModels(readings, DefaultModelGroups)
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2: %+v", len(got), got)
	}
	if got[0].Name != "Gemini 3 Pro" || got[0].RemainingPercent != 80 {
		t.Errorf("display-name match = %+v", got[0])
	}
	if got[1].DisplayName != "Something Else" {
		t.Errorf("standalone entry keeps its display name, got %+v", got[1])
	}
}

func TestGroupModels_UnmatchedSurviveStandalone(t *testing.T) {
	readings := []ModelReading{
		{ModelID: "mystery-model-x", Remaining: fp(0.6)},
		{ModelID: "gemini-2.5-flash", Remaining: fp(0.7)},
	}
	got := GroupModels(readings, DefaultModelGroups)
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].Name != "Gemini 2.5 Flash" {
		t.Errorf("grouped entry first, got %q", got[0].Name)
	}
	if got[1].Name != "mystery model x" || got[1].RemainingPercent != 60 {
		t.Errorf("standalone entry = %+v", got[1])
	}
}

func TestGroupModels_SkipsEmptyIDs(t *testing.T) {
	got := GroupModels([]ModelReading{{ModelID: "  "}, {ModelID: ""}}, DefaultModelGroups)
	if len(got) != 0 {
		t.Fatalf("got %d entries, want 0", len(got))
	}
}
