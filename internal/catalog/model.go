// Package catalog normalizes provider model lists into one provider-agnostic shape.
package catalog

import (
	"sort"
	"time"

	"github.com/router-for-me/promptdock/internal/providers"
)

// Capability is a mode a model supports.
type Capability string

// Known capabilities.
const (
	CapText      Capability = "text"
	CapVision    Capability = "vision"
	CapReasoning Capability = "reasoning"
	CapWebSearch Capability = "web_search"
	CapCode      Capability = "code"
)

// CostTier is a coarse pricing bucket ordered free < low < medium < high < unknown.
type CostTier string

// Cost tiers.
const (
	TierFree    CostTier = "free"
	TierLow     CostTier = "low"
	TierMedium  CostTier = "medium"
	TierHigh    CostTier = "high"
	TierUnknown CostTier = "unknown"
)

var tierRank = map[CostTier]int{
	TierFree:    0,
	TierLow:     1,
	TierMedium:  2,
	TierHigh:    3,
	TierUnknown: 4,
}

// Rank returns the position of t in the tier order. Unrecognized tiers rank as unknown.
func (t CostTier) Rank() int {
	if rank, ok := tierRank[t]; ok {
		return rank
	}
	return tierRank[TierUnknown]
}

// Pricing is the USD price per token.
type Pricing struct {
	PromptPrice     float64 `json:"promptPrice"`
	CompletionPrice float64 `json:"completionPrice"`
}

// NormalizedModel is a provider-agnostic model record. It is never mutated after a fetch.
type NormalizedModel struct {
	ID            string       `json:"id"`
	OriginalID    string       `json:"originalId"`
	Provider      providers.ID `json:"provider"`
	Name          string       `json:"name"`
	Capabilities  []Capability `json:"capabilities"`
	ContextWindow *int         `json:"contextWindow"`
	CostTier      CostTier     `json:"costTier"`
	Pricing       *Pricing     `json:"pricing"`
	IsAvailable   bool         `json:"isAvailable"`
	FetchedAt     time.Time    `json:"fetchedAt"`
}

// Has reports whether the model carries capability c.
func (m NormalizedModel) Has(c Capability) bool {
	for _, have := range m.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// capabilitySet collects capabilities without duplicates.
type capabilitySet map[Capability]struct{}

func (s capabilitySet) add(c Capability, when bool) {
	if when {
		s[c] = struct{}{}
	}
}

// list returns the set in canonical order.
func (s capabilitySet) list() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	order := map[Capability]int{CapText: 0, CapVision: 1, CapReasoning: 2, CapWebSearch: 3, CapCode: 4}
	sort.Slice(out, func(i, j int) bool {
		oi, iok := order[out[i]]
		oj, jok := order[out[j]]
		if iok && jok {
			return oi < oj
		}
		if iok != jok {
			return iok
		}
		return out[i] < out[j]
	})
	return out
}

func modelID(provider providers.ID, originalID string) string {
	return string(provider) + ":" + originalID
}

func intPtr(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}
