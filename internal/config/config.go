package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

type Config struct {
	RefreshIntervalMS int `json:"refresh_interval_ms"`

	// Notification thresholds on remaining quota percent. Warn must stay
	// above Crit; invalid pairs fall back to the defaults on load.
	WarnBelowPercent int `json:"warn_below_percent"`
	CritBelowPercent int `json:"crit_below_percent"`

	// FetchTimeoutMS bounds a single provider fetch.
	FetchTimeoutMS int `json:"fetch_timeout_ms"`

	// APIKeys maps provider ID to an explicit API key that supersedes
	// env vars and the credentials store.
	APIKeys map[string]string `json:"api_keys,omitempty"`

	Notifications bool `json:"notifications"`
}

func DefaultConfig() Config {
	return Config{
		RefreshIntervalMS: 60_000,
		WarnBelowPercent:  30,
		CritBelowPercent:  10,
		FetchTimeoutMS:    30_000,
		Notifications:     true,
	}
}

func ConfigDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "openquota")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "openquota")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "settings.json")
}

func Load() (Config, error) {
	return LoadFrom(ConfigPath())
}

func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parsing config %s: %w", path, err)
	}

	def := DefaultConfig()
	if cfg.RefreshIntervalMS <= 0 {
		cfg.RefreshIntervalMS = def.RefreshIntervalMS
	}
	if cfg.FetchTimeoutMS <= 0 {
		cfg.FetchTimeoutMS = def.FetchTimeoutMS
	}
	if cfg.WarnBelowPercent <= 0 || cfg.CritBelowPercent < 0 || cfg.CritBelowPercent >= cfg.WarnBelowPercent {
		cfg.WarnBelowPercent = def.WarnBelowPercent
		cfg.CritBelowPercent = def.CritBelowPercent
	}

	return cfg, nil
}

// saveMu guards read-modify-write cycles on the config file.
var saveMu sync.Mutex

func Save(cfg Config) error {
	return SaveTo(ConfigPath(), cfg)
}

func SaveTo(path string, cfg Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// SaveAPIKey persists a provider API key override into the config file
// (read-modify-write). An empty key removes the override.
func SaveAPIKey(provider, key string) error {
	return SaveAPIKeyTo(ConfigPath(), provider, key)
}

func SaveAPIKeyTo(path, provider, key string) error {
	saveMu.Lock()
	defer saveMu.Unlock()

	cfg, err := LoadFrom(path)
	if err != nil {
		cfg = DefaultConfig()
	}
	if key == "" {
		delete(cfg.APIKeys, provider)
	} else {
		if cfg.APIKeys == nil {
			cfg.APIKeys = make(map[string]string)
		}
		cfg.APIKeys[provider] = key
	}
	return SaveTo(path, cfg)
}
