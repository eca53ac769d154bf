package core

import (
	"sort"
	"strings"
	"time"
)

// ModelGroup folds raw per-model quota readings under one display name.
// A raw model id belongs to the first group whose match string appears in
// its normalized form.
type ModelGroup struct {
	Name    string
	Matches []string
}

// DefaultModelGroups covers the model families the supported CLIs expose.
// Order matters: more specific groups come first.
var DefaultModelGroups = []ModelGroup{
	{Name: "Gemini 3 Pro", Matches: []string{"gemini 3 pro"}},
	{Name: "Gemini 3 Flash", Matches: []string{"gemini 3 flash"}},
	{Name: "Gemini 2.5 Flash", Matches: []string{"gemini 2.5 flash"}},
	{Name: "Claude Sonnet", Matches: []string{"claude sonnet", "sonnet"}},
	{Name: "Claude Opus", Matches: []string{"claude opus", "opus"}},
	{Name: "GPT-OSS", Matches: []string{"gpt oss"}},
}

// ModelReading is one raw quota measurement before grouping.
type ModelReading struct {
	ModelID     string
	DisplayName string
	Remaining   *float64
	Reset       *time.Time
}

var modelSeparators = strings.NewReplacer("-", " ", "_", " ", "/", " ")

// normalizeModelKey lowercases a raw model id and turns separators into
// spaces so "gemini-3-PRO-high" and "models/gemini_3_pro" compare equal.
func normalizeModelKey(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "models/")
	s = modelSeparators.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// matchGroup tries both the raw id and the display name; some providers
// expose a groupable family name only in one of the two.
func matchGroup(modelID, displayName string, groups []ModelGroup) (string, bool) {
	keys := []string{normalizeModelKey(modelID), normalizeModelKey(displayName)}
	for _, g := range groups {
		for _, m := range g.Matches {
			for _, key := range keys {
				if key != "" && strings.Contains(key, m) {
					return g.Name, true
				}
			}
		}
	}
	return "", false
}

// GroupModels buckets raw readings into groups, keeping the minimum
// remaining quota per group (the tightest variant is the one that gates
// the user). Readings that match no group survive as standalone entries.
// Output order is group table order, then unmatched models sorted by id.
func GroupModels(readings []ModelReading, groups []ModelGroup) []ModelQuota {
	grouped := make(map[string]ModelQuota)
	var loose []ModelQuota

	for _, r := range readings {
		if strings.TrimSpace(r.ModelID) == "" {
			continue
		}
		name, ok := matchGroup(r.ModelID, r.DisplayName, groups)
		if !ok {
			display := r.DisplayName
			if display == "" {
				display = r.ModelID
			}
			loose = append(loose, NewModelQuota(normalizeModelKey(r.ModelID), display, r.Remaining, r.Reset))
			continue
		}
		q := NewModelQuota(name, name, r.Remaining, r.Reset)
		prev, seen := grouped[name]
		if !seen || q.RemainingPercent < prev.RemainingPercent {
			grouped[name] = q
		}
	}

	out := make([]ModelQuota, 0, len(grouped)+len(loose))
	for _, g := range groups {
		if q, ok := grouped[g.Name]; ok {
			out = append(out, q)
		}
	}
	sort.Slice(loose, func(i, j int) bool { return loose[i].Name < loose[j].Name })
	out = append(out, loose...)
	return out
}
