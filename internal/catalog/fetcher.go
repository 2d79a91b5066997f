package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/router-for-me/promptdock/internal/providers"
	"golang.org/x/sync/errgroup"
	"resty.dev/v3"
)

// ErrNotConfigured is returned for a provider with no catalog key.
var ErrNotConfigured = errors.New("catalog: provider not configured")

// FetchError records one provider's failed fetch.
type FetchError struct {
	Provider providers.ID
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("catalog: fetch %s: %v", e.Provider, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher pulls model lists straight from provider APIs.
type Fetcher struct {
	client   *resty.Client
	keys     map[providers.ID]string
	baseURLs map[providers.ID]string
	now      func() time.Time
}

// NewFetcher builds a fetcher. Keys are indexed by provider id; openrouter works without one.
func NewFetcher(client *resty.Client, keys map[string]string) *Fetcher {
	normalized := make(map[providers.ID]string, len(keys))
	for name, key := range keys {
		if id := providers.Normalize(name); id != "" && key != "" {
			normalized[id] = key
		}
	}
	return &Fetcher{
		client:   client,
		keys:     normalized,
		baseURLs: make(map[providers.ID]string),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithBaseURL overrides the upstream base URL for one provider.
func (f *Fetcher) WithBaseURL(id providers.ID, baseURL string) *Fetcher {
	f.baseURLs[id] = baseURL
	return f
}

// Providers lists the providers this fetcher can query.
func (f *Fetcher) Providers() []providers.ID {
	out := make([]providers.ID, 0, len(f.keys)+1)
	for _, id := range providers.All() {
		if f.configured(id) {
			out = append(out, id)
		}
	}
	return out
}

func (f *Fetcher) configured(id providers.ID) bool {
	if _, ok := f.keys[id]; ok {
		return true
	}
	return id == providers.OpenRouter
}

// FetchProvider downloads and normalizes a single provider's catalog.
func (f *Fetcher) FetchProvider(ctx context.Context, id providers.ID) ([]NormalizedModel, error) {
	spec, ok := providers.Lookup(id)
	if !ok {
		return nil, &FetchError{Provider: id, Err: fmt.Errorf("unknown provider")}
	}
	if !f.configured(id) {
		return nil, &FetchError{Provider: id, Err: ErrNotConfigured}
	}
	base := spec.BaseURL
	if override, okOverride := f.baseURLs[id]; okOverride && override != "" {
		base = override
	}
	req := f.client.R().SetContext(ctx).SetHeader("Accept", "application/json")
	if key := f.keys[id]; key != "" {
		spec.Auth.Apply(req, key)
	}
	resp, err := req.Get(providers.JoinURL(base, spec.ModelsPath))
	if err != nil {
		return nil, &FetchError{Provider: id, Err: err}
	}
	if resp.IsError() {
		return nil, &FetchError{Provider: id, Err: fmt.Errorf("status %d: %s", resp.StatusCode(), truncate(resp.String(), 256))}
	}
	models, err := Parse(id, resp.Bytes(), f.now())
	if err != nil {
		return nil, &FetchError{Provider: id, Err: err}
	}
	return models, nil
}

// FetchAll queries every configured provider concurrently.
// Successful providers are returned even when others fail; failures are joined into the error.
func (f *Fetcher) FetchAll(ctx context.Context) (map[providers.ID][]NormalizedModel, error) {
	var (
		mu      sync.Mutex
		results = make(map[providers.ID][]NormalizedModel)
		errs    []error
	)
	group, groupCtx := errgroup.WithContext(ctx)
	for _, id := range f.Providers() {
		group.Go(func() error {
			models, err := f.FetchProvider(groupCtx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			results[id] = models
			return nil
		})
	}
	_ = group.Wait()
	return results, errors.Join(errs...)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
