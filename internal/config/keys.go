package config

import (
	"os"
	"sync"
)

// Keys is the process-wide API key override cell. It is seeded from the
// config file's api_keys map at startup and mutated by `openquota key`.
// Providers read it through a resolver closure so they never touch files
// or globals directly.
type Keys struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewKeys(seed map[string]string) *Keys {
	m := make(map[string]string, len(seed))
	for k, v := range seed {
		m[k] = v
	}
	return &Keys{m: m}
}

func (k *Keys) Set(provider, key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if key == "" {
		delete(k.m, provider)
		return
	}
	k.m[provider] = key
}

func (k *Keys) Get(provider string) string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.m[provider]
}

func (k *Keys) Clear(provider string) {
	k.Set(provider, "")
}

// Resolver returns the key lookup for one provider: override cell first,
// then the named env var, then the credentials store.
func (k *Keys) Resolver(provider, envVar string) func() string {
	return ResolverFrom(k, provider, envVar, CredentialsPath())
}

func ResolverFrom(k *Keys, provider, envVar, credentialsPath string) func() string {
	return func() string {
		if k != nil {
			if key := k.Get(provider); key != "" {
				return key
			}
		}
		if envVar != "" {
			if key := os.Getenv(envVar); key != "" {
				return key
			}
		}
		creds, err := LoadCredentialsFrom(credentialsPath)
		if err != nil {
			return ""
		}
		return creds.Keys[provider]
	}
}
