package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/router-for-me/promptdock/internal/catalog"
	"github.com/router-for-me/promptdock/internal/db"
	"github.com/router-for-me/promptdock/internal/providers"
	"resty.dev/v3"
)

type fakeSource struct {
	mu       sync.Mutex
	all      map[providers.ID][]catalog.NormalizedModel
	allErr   error
	one      map[providers.ID][]catalog.NormalizedModel
	oneErr   error
	allCalls int
}

func (f *fakeSource) FetchAll(context.Context) (map[providers.ID][]catalog.NormalizedModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allCalls++
	return f.all, f.allErr
}

func (f *fakeSource) FetchProvider(_ context.Context, id providers.ID) ([]catalog.NormalizedModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.oneErr != nil {
		return nil, f.oneErr
	}
	return f.one[id], nil
}

func model(provider providers.ID, id string, tier catalog.CostTier, caps ...catalog.Capability) catalog.NormalizedModel {
	return catalog.NormalizedModel{
		ID:           string(provider) + ":" + id,
		OriginalID:   id,
		Provider:     provider,
		Name:         id,
		Capabilities: caps,
		CostTier:     tier,
		IsAvailable:  true,
	}
}

func TestFetchAllReplacesSnapshot(t *testing.T) {
	src := &fakeSource{all: map[providers.ID][]catalog.NormalizedModel{
		providers.OpenAI: {model(providers.OpenAI, "gpt-4o", catalog.TierMedium, catalog.CapText)},
	}}
	reg := New(src, nil, time.Minute)
	if _, err := reg.FetchAll(context.Background()); err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	got, ok := reg.Models(providers.OpenAI)
	if !ok || len(got) != 1 || got[0].OriginalID != "gpt-4o" {
		t.Fatalf("unexpected models %v", got)
	}
	if reg.LastError() != nil {
		t.Fatalf("expected no error, got %v", reg.LastError())
	}
}

func TestFetchAllKeepsStaleOnError(t *testing.T) {
	src := &fakeSource{all: map[providers.ID][]catalog.NormalizedModel{
		providers.OpenAI:    {model(providers.OpenAI, "gpt-4o", catalog.TierMedium, catalog.CapText)},
		providers.Anthropic: {model(providers.Anthropic, "claude-3-opus", catalog.TierHigh, catalog.CapText)},
	}}
	reg := New(src, nil, time.Minute)
	if _, err := reg.FetchAll(context.Background()); err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	before := reg.Snapshot()

	src.all = nil
	src.allErr = errors.New("network down")
	if _, err := reg.FetchAll(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if reg.Snapshot() != before {
		t.Fatalf("snapshot must not change on total failure")
	}
	state := reg.State()
	if state.Err == nil || len(state.Snapshot.All()) != 2 {
		t.Fatalf("expected stale data with error, got %+v", state)
	}

	// Partial failure: openai refreshes, anthropic keeps its cached models.
	src.all = map[providers.ID][]catalog.NormalizedModel{
		providers.OpenAI: {model(providers.OpenAI, "gpt-4o-mini", catalog.TierLow, catalog.CapText)},
	}
	src.allErr = errors.New("anthropic: status 500")
	if _, err := reg.FetchAll(context.Background()); err == nil {
		t.Fatalf("expected partial error")
	}
	openai, _ := reg.Models(providers.OpenAI)
	anthropic, _ := reg.Models(providers.Anthropic)
	if len(openai) != 1 || openai[0].OriginalID != "gpt-4o-mini" {
		t.Fatalf("openai should be refreshed, got %v", openai)
	}
	if len(anthropic) != 1 || anthropic[0].OriginalID != "claude-3-opus" {
		t.Fatalf("anthropic should be retained, got %v", anthropic)
	}
	if len(before.Providers[providers.OpenAI].Models) != 1 || before.Providers[providers.OpenAI].Models[0].OriginalID != "gpt-4o" {
		t.Fatalf("old snapshot must be immutable")
	}
}

func TestRefreshOne(t *testing.T) {
	src := &fakeSource{
		all: map[providers.ID][]catalog.NormalizedModel{
			providers.OpenAI: {model(providers.OpenAI, "gpt-4o", catalog.TierMedium, catalog.CapText)},
			providers.Gemini: {model(providers.Gemini, "gemini-1.5-pro", catalog.TierMedium, catalog.CapText)},
		},
		one: map[providers.ID][]catalog.NormalizedModel{
			providers.Gemini: {model(providers.Gemini, "gemini-2.0-flash", catalog.TierLow, catalog.CapText)},
		},
	}
	reg := New(src, nil, time.Minute)
	if _, err := reg.FetchAll(context.Background()); err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	got, err := reg.RefreshOne(context.Background(), providers.Gemini)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(got) != 1 || got[0].OriginalID != "gemini-2.0-flash" {
		t.Fatalf("unexpected refresh result %v", got)
	}
	openai, _ := reg.Models(providers.OpenAI)
	if len(openai) != 1 || openai[0].OriginalID != "gpt-4o" {
		t.Fatalf("other providers must be untouched")
	}

	src.oneErr = errors.New("boom")
	if _, err := reg.RefreshOne(context.Background(), providers.Gemini); err == nil {
		t.Fatalf("expected refresh error")
	}
	gemini, _ := reg.Models(providers.Gemini)
	if len(gemini) != 1 || gemini[0].OriginalID != "gemini-2.0-flash" {
		t.Fatalf("failed refresh must keep cached models, got %v", gemini)
	}
}

func TestRefreshOneClearsLastError(t *testing.T) {
	src := &fakeSource{
		allErr: errors.New("boom"),
		one: map[providers.ID][]catalog.NormalizedModel{
			providers.OpenAI: {model(providers.OpenAI, "gpt-4o", catalog.TierMedium, catalog.CapText)},
		},
	}
	reg := New(src, nil, time.Minute)
	if _, err := reg.FetchAll(context.Background()); err == nil {
		t.Fatalf("expected fetch error")
	}
	if reg.LastError() == nil {
		t.Fatalf("expected last error after failed fetch")
	}
	if _, err := reg.RefreshOne(context.Background(), providers.OpenAI); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := reg.LastError(); err != nil {
		t.Fatalf("successful refresh should clear the error, got %v", err)
	}
	if meta := reg.State().Aggregate().Meta; meta.Error != "" {
		t.Fatalf("expected empty _meta.error, got %q", meta.Error)
	}
}

func TestConcurrentRefreshesKeepWholeSnapshots(t *testing.T) {
	src := &fakeSource{one: map[providers.ID][]catalog.NormalizedModel{
		providers.OpenAI:     {model(providers.OpenAI, "gpt-4o", catalog.TierMedium, catalog.CapText)},
		providers.Anthropic:  {model(providers.Anthropic, "claude", catalog.TierMedium, catalog.CapText)},
		providers.Gemini:     {model(providers.Gemini, "gemini", catalog.TierMedium, catalog.CapText)},
		providers.OpenRouter: {model(providers.OpenRouter, "x", catalog.TierMedium, catalog.CapText)},
	}}
	reg := New(src, nil, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		for _, id := range providers.All() {
			wg.Add(1)
			go func(id providers.ID) {
				defer wg.Done()
				_, _ = reg.RefreshOne(context.Background(), id)
			}(id)
		}
	}
	wg.Wait()
	if len(reg.Snapshot().Providers) != len(providers.All()) {
		t.Fatalf("expected every provider cached, got %d", len(reg.Snapshot().Providers))
	}
}

func TestStartRunsInitialFetch(t *testing.T) {
	src := &fakeSource{all: map[providers.ID][]catalog.NormalizedModel{
		providers.OpenAI: {model(providers.OpenAI, "gpt-4o", catalog.TierMedium, catalog.CapText)},
	}}
	reg := New(src, nil, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := reg.Models(providers.OpenAI); ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("initial fetch did not populate the cache")
}

func TestGormStoreRoundTripAndWarm(t *testing.T) {
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	store := NewGormStore(conn)
	fetchedAt := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	entry := Entry{Models: []catalog.NormalizedModel{model(providers.OpenAI, "gpt-4o", catalog.TierMedium, catalog.CapText)}, FetchedAt: fetchedAt}
	if errSave := store.Save(context.Background(), providers.OpenAI, entry); errSave != nil {
		t.Fatalf("save: %v", errSave)
	}
	entry.Models = append(entry.Models, model(providers.OpenAI, "gpt-4o-mini", catalog.TierLow, catalog.CapText))
	if errSave := store.Save(context.Background(), providers.OpenAI, entry); errSave != nil {
		t.Fatalf("second save: %v", errSave)
	}

	reg := New(&fakeSource{}, store, time.Minute)
	if errWarm := reg.Warm(context.Background()); errWarm != nil {
		t.Fatalf("warm: %v", errWarm)
	}
	got, ok := reg.Models(providers.OpenAI)
	if !ok || len(got) != 2 {
		t.Fatalf("expected 2 warmed models, got %v", got)
	}
	if !reg.Snapshot().Providers[providers.OpenAI].FetchedAt.Equal(fetchedAt) {
		t.Fatalf("unexpected fetchedAt %s", reg.Snapshot().Providers[providers.OpenAI].FetchedAt)
	}
}

func TestHTTPSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/providers/models":
			_, _ = w.Write([]byte(`{"models":{"openai":[{"id":"openai:gpt-4o","originalId":"gpt-4o","provider":"openai","capabilities":["text"],"costTier":"medium","isAvailable":true}]},"_meta":{}}`))
		case "/providers/models/gemini":
			_, _ = w.Write([]byte(`{"models":[{"id":"gemini:gemini-1.5-pro","originalId":"gemini-1.5-pro","provider":"gemini","capabilities":["text","vision"],"costTier":"medium","isAvailable":true}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := resty.New()
	defer func() { _ = client.Close() }()
	src := NewHTTPSource(client, server.URL)

	all, err := src.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	if len(all[providers.OpenAI]) != 1 || all[providers.OpenAI][0].CostTier != catalog.TierMedium {
		t.Fatalf("unexpected aggregate %v", all)
	}
	gemini, err := src.FetchProvider(context.Background(), providers.Gemini)
	if err != nil {
		t.Fatalf("fetch provider: %v", err)
	}
	if len(gemini) != 1 || !gemini[0].Has(catalog.CapVision) {
		t.Fatalf("unexpected gemini %v", gemini)
	}
	if _, err := src.FetchProvider(context.Background(), providers.Anthropic); err == nil {
		t.Fatalf("expected error for 404")
	}
}

func TestStateAggregate(t *testing.T) {
	fetchedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	st := State{
		Snapshot: &Snapshot{Providers: map[providers.ID]Entry{
			providers.Gemini: {FetchedAt: fetchedAt},
		}},
		Err: errors.New("openai: boom"),
	}
	resp := st.Aggregate()
	if models, ok := resp.Models[providers.Gemini]; !ok || models == nil || len(models) != 0 {
		t.Fatalf("expected empty non-nil gemini slice, got %#v", resp.Models)
	}
	if resp.Meta.FetchedAt[providers.Gemini] != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected fetchedAt %q", resp.Meta.FetchedAt[providers.Gemini])
	}
	if resp.Meta.Error != "openai: boom" {
		t.Fatalf("unexpected meta error %q", resp.Meta.Error)
	}
	if empty := (State{}).Aggregate(); len(empty.Models) != 0 || empty.Meta.Error != "" {
		t.Fatalf("expected empty aggregate, got %+v", empty)
	}
}
