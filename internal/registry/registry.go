// Package registry caches normalized provider catalogs and keeps them fresh.
package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/router-for-me/promptdock/internal/catalog"
	"github.com/router-for-me/promptdock/internal/providers"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultRefreshInterval is the background refresh period.
	DefaultRefreshInterval = 60 * time.Minute
	defaultFetchTimeout    = 15 * time.Second
)

// Source produces provider catalogs.
type Source interface {
	FetchAll(ctx context.Context) (map[providers.ID][]catalog.NormalizedModel, error)
	FetchProvider(ctx context.Context, id providers.ID) ([]catalog.NormalizedModel, error)
}

// Store persists the last good catalog of each provider.
type Store interface {
	Save(ctx context.Context, id providers.ID, entry Entry) error
	Load(ctx context.Context) (map[providers.ID]Entry, error)
}

// Registry is the shared catalog cache. Refresh failures never clear cached data.
type Registry struct {
	source   Source
	store    Store
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time

	current atomic.Pointer[Snapshot]

	errMu   sync.RWMutex
	lastErr error
}

// New builds a registry. store may be nil; interval <= 0 selects DefaultRefreshInterval.
func New(source Source, store Store, interval time.Duration) *Registry {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	r := &Registry{
		source:   source,
		store:    store,
		interval: interval,
		timeout:  defaultFetchTimeout,
		now:      time.Now,
	}
	r.current.Store(emptySnapshot())
	return r
}

// Snapshot returns the current catalog view.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// Models returns the cached models of one provider.
func (r *Registry) Models(id providers.ID) ([]catalog.NormalizedModel, bool) {
	return r.Snapshot().Models(id)
}

// LastError returns the error of the latest refresh, or nil when it succeeded.
func (r *Registry) LastError() error {
	r.errMu.RLock()
	defer r.errMu.RUnlock()
	return r.lastErr
}

// State returns the snapshot together with the latest refresh error.
func (r *Registry) State() State {
	return State{Snapshot: r.Snapshot(), Err: r.LastError()}
}

func (r *Registry) setError(err error) {
	r.errMu.Lock()
	r.lastErr = err
	r.errMu.Unlock()
}

// Warm seeds the cache from the store so a restart serves the previous catalog.
func (r *Registry) Warm(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	entries, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("registry: warm: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}
	r.apply(entries)
	return nil
}

// FetchAll refreshes every provider. Providers that fail keep their cached models.
func (r *Registry) FetchAll(ctx context.Context) (map[providers.ID][]catalog.NormalizedModel, error) {
	if r.source == nil {
		return nil, fmt.Errorf("registry: nil source")
	}
	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	results, err := r.source.FetchAll(fetchCtx)
	if len(results) > 0 {
		updates := make(map[providers.ID]Entry, len(results))
		fetchedAt := r.now().UTC()
		for id, models := range results {
			updates[id] = Entry{Models: models, FetchedAt: fetchedAt}
		}
		r.apply(updates)
		r.persist(ctx, updates)
	}
	r.setError(err)
	if err != nil {
		return results, fmt.Errorf("registry: fetch all: %w", err)
	}
	return results, nil
}

// RefreshOne refetches a single provider and replaces only its slice of the cache.
func (r *Registry) RefreshOne(ctx context.Context, id providers.ID) ([]catalog.NormalizedModel, error) {
	if r.source == nil {
		return nil, fmt.Errorf("registry: nil source")
	}
	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	models, err := r.source.FetchProvider(fetchCtx, id)
	if err != nil {
		r.setError(err)
		return nil, fmt.Errorf("registry: refresh %s: %w", id, err)
	}
	updates := map[providers.ID]Entry{id: {Models: models, FetchedAt: r.now().UTC()}}
	r.apply(updates)
	r.persist(ctx, updates)
	r.setError(nil)
	return models, nil
}

// apply swaps in a copy of the current snapshot with updates applied. Concurrent refreshes are last-write-wins.
func (r *Registry) apply(updates map[providers.ID]Entry) {
	for {
		prev := r.current.Load()
		next := prev.withEntries(updates, r.now())
		if r.current.CompareAndSwap(prev, next) {
			return
		}
	}
}

func (r *Registry) persist(ctx context.Context, updates map[providers.ID]Entry) {
	if r.store == nil {
		return
	}
	for id, entry := range updates {
		if err := r.store.Save(ctx, id, entry); err != nil {
			log.WithError(err).Warnf("registry: persist %s failed", id)
		}
	}
}

// Start warms the cache, fetches once and then refreshes on the interval until ctx ends.
func (r *Registry) Start(ctx context.Context) {
	if r == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go r.run(ctx)
	log.Infof("provider registry started (interval=%s)", r.interval)
}

func (r *Registry) run(ctx context.Context) {
	if err := r.Warm(ctx); err != nil {
		log.WithError(err).Warn("provider registry: warm failed")
	}
	if _, err := r.FetchAll(ctx); err != nil {
		log.WithError(err).Warn("provider registry: initial fetch failed")
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.FetchAll(ctx); err != nil {
				log.WithError(err).Warn("provider registry: refresh failed")
			}
		}
	}
}
