package core

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Registry owns the provider set and the latest result per provider.
// RefreshAll fans out to every provider concurrently and installs the
// whole result set in one swap, so readers never observe a half-updated
// cycle.
type Registry struct {
	mu        sync.RWMutex
	order     []string // registration order, drives output ordering
	providers map[string]Provider
	results   map[string]ProviderResult
	timeout   time.Duration

	onUpdate func([]ProviderResult)
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		results:   make(map[string]ProviderResult),
		timeout:   30 * time.Second,
	}
}

// SetTimeout bounds each individual provider fetch.
func (r *Registry) SetTimeout(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d > 0 {
		r.timeout = d
	}
}

// Register adds a provider. Re-registering an ID replaces the provider
// but keeps its original position.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[p.ID()]; !ok {
		r.order = append(r.order, p.ID())
	}
	r.providers[p.ID()] = p
}

func (r *Registry) Provider(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.FilterMap(r.order, func(id string, _ int) (Provider, bool) {
		p, ok := r.providers[id]
		return p, ok
	})
}

// OnUpdate registers a callback invoked with the full ordered result set
// after every completed refresh cycle.
func (r *Registry) OnUpdate(fn func([]ProviderResult)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onUpdate = fn
}

// Results returns the latest completed cycle's results in registration
// order. Providers that never completed a cycle are absent.
func (r *Registry) Results() []ProviderResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.orderedLocked()
}

func (r *Registry) orderedLocked() []ProviderResult {
	return lo.FilterMap(r.order, func(id string, _ int) (ProviderResult, bool) {
		res, ok := r.results[id]
		return res, ok
	})
}

// RefreshAll fetches every provider concurrently, waits for all of them,
// then swaps the cached result set in one step. Overlapping cycles are
// allowed; the cycle that finishes last wins wholesale.
func (r *Registry) RefreshAll(ctx context.Context) []ProviderResult {
	r.mu.RLock()
	order := make([]string, len(r.order))
	copy(order, r.order)
	providers := make(map[string]Provider, len(r.providers))
	for id, p := range r.providers {
		providers[id] = p
	}
	timeout := r.timeout
	r.mu.RUnlock()

	var wg sync.WaitGroup
	results := make(chan ProviderResult, len(order))

	for _, id := range order {
		p := providers[id]
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()

			fetchCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			res := p.Fetch(fetchCtx)
			if res.ProviderID == "" {
				res.ProviderID = p.ID()
			}
			if res.FetchedAt.IsZero() {
				res.FetchedAt = time.Now()
			}
			results <- res
		}(p)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	fresh := make(map[string]ProviderResult, len(order))
	for res := range results {
		fresh[res.ProviderID] = res
	}

	r.mu.Lock()
	r.results = fresh
	ordered := r.orderedLocked()
	fn := r.onUpdate
	r.mu.Unlock()

	if fn != nil {
		fn(ordered)
	}
	return ordered
}

// Run refreshes immediately, then on every interval tick until the
// context is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	r.RefreshAll(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("registry: context cancelled, stopping refresh loop")
			return
		case <-ticker.C:
			r.RefreshAll(ctx)
		}
	}
}
