package registry

import (
	"time"

	"github.com/router-for-me/promptdock/internal/catalog"
	"github.com/router-for-me/promptdock/internal/providers"
)

// Entry is the cached catalog of one provider.
type Entry struct {
	Models    []catalog.NormalizedModel
	FetchedAt time.Time
}

// Snapshot is an immutable view of every cached provider catalog.
// Readers never see a partially applied refresh: a refresh builds a new Snapshot and swaps it in.
type Snapshot struct {
	Providers map[providers.ID]Entry
	UpdatedAt time.Time
}

func emptySnapshot() *Snapshot {
	return &Snapshot{Providers: make(map[providers.ID]Entry)}
}

// Models returns the cached models of one provider.
func (s *Snapshot) Models(id providers.ID) ([]catalog.NormalizedModel, bool) {
	if s == nil {
		return nil, false
	}
	entry, ok := s.Providers[id]
	return entry.Models, ok
}

// All flattens the snapshot in provider order.
func (s *Snapshot) All() []catalog.NormalizedModel {
	if s == nil {
		return nil
	}
	var out []catalog.NormalizedModel
	for _, id := range providers.All() {
		out = append(out, s.Providers[id].Models...)
	}
	return out
}

// withEntries copies s and overwrites the given providers.
func (s *Snapshot) withEntries(updates map[providers.ID]Entry, updatedAt time.Time) *Snapshot {
	next := &Snapshot{
		Providers: make(map[providers.ID]Entry, len(s.Providers)+len(updates)),
		UpdatedAt: updatedAt.UTC(),
	}
	for id, entry := range s.Providers {
		next.Providers[id] = entry
	}
	for id, entry := range updates {
		next.Providers[id] = entry
	}
	return next
}

// State pairs the last good snapshot with the error of the most recent refresh.
type State struct {
	Snapshot *Snapshot
	Err      error
}

// Aggregate renders the state as the GET /providers/models body.
func (st State) Aggregate() AggregateResponse {
	resp := AggregateResponse{
		Models: make(map[providers.ID][]catalog.NormalizedModel),
		Meta:   Meta{FetchedAt: make(map[providers.ID]string)},
	}
	if st.Snapshot != nil {
		for id, entry := range st.Snapshot.Providers {
			models := entry.Models
			if models == nil {
				models = []catalog.NormalizedModel{}
			}
			resp.Models[id] = models
			resp.Meta.FetchedAt[id] = entry.FetchedAt.UTC().Format(time.RFC3339)
		}
	}
	if st.Err != nil {
		resp.Meta.Error = st.Err.Error()
	}
	return resp
}
