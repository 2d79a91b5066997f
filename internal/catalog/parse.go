package catalog

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/router-for-me/promptdock/internal/providers"
)

// Parse converts a raw provider models response into normalized models.
func Parse(provider providers.ID, body []byte, fetchedAt time.Time) ([]NormalizedModel, error) {
	switch provider {
	case providers.OpenAI:
		return parseOpenAI(body, fetchedAt)
	case providers.Anthropic:
		return parseAnthropic(body, fetchedAt)
	case providers.Gemini:
		return parseGemini(body, fetchedAt)
	case providers.OpenRouter:
		return parseOpenRouter(body, fetchedAt)
	default:
		return nil, fmt.Errorf("catalog: unsupported provider %q", provider)
	}
}

type openAIList struct {
	Data []struct {
		ID      string `json:"id"`
		OwnedBy string `json:"owned_by"`
	} `json:"data"`
}

func parseOpenAI(body []byte, fetchedAt time.Time) ([]NormalizedModel, error) {
	var payload openAIList
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("catalog: decode openai models: %w", err)
	}
	out := make([]NormalizedModel, 0, len(payload.Data))
	for _, item := range payload.Data {
		id := strings.TrimSpace(item.ID)
		if id == "" || isNonChatOpenAI(id) {
			continue
		}
		out = append(out, fromID(providers.OpenAI, id, id, nil, fetchedAt))
	}
	return out, nil
}

type anthropicList struct {
	Data []struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
		Type        string `json:"type"`
	} `json:"data"`
}

func parseAnthropic(body []byte, fetchedAt time.Time) ([]NormalizedModel, error) {
	var payload anthropicList
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("catalog: decode anthropic models: %w", err)
	}
	out := make([]NormalizedModel, 0, len(payload.Data))
	for _, item := range payload.Data {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			continue
		}
		name := strings.TrimSpace(item.DisplayName)
		if name == "" {
			name = id
		}
		model := fromID(providers.Anthropic, id, name, nil, fetchedAt)
		model.ContextWindow = intPtr(200000)
		out = append(out, model)
	}
	return out, nil
}

type geminiList struct {
	Models []struct {
		Name                       string   `json:"name"`
		DisplayName                string   `json:"displayName"`
		InputTokenLimit            int      `json:"inputTokenLimit"`
		SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
	} `json:"models"`
}

func parseGemini(body []byte, fetchedAt time.Time) ([]NormalizedModel, error) {
	var payload geminiList
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("catalog: decode gemini models: %w", err)
	}
	out := make([]NormalizedModel, 0, len(payload.Models))
	for _, item := range payload.Models {
		id := strings.TrimPrefix(strings.TrimSpace(item.Name), "models/")
		if id == "" || strings.Contains(id, "embedding") || strings.HasPrefix(id, "aqa") {
			continue
		}
		name := strings.TrimSpace(item.DisplayName)
		if name == "" {
			name = id
		}
		model := fromID(providers.Gemini, id, name, nil, fetchedAt)
		model.ContextWindow = intPtr(item.InputTokenLimit)
		model.IsAvailable = false
		for _, method := range item.SupportedGenerationMethods {
			if method == "generateContent" {
				model.IsAvailable = true
				break
			}
		}
		out = append(out, model)
	}
	return out, nil
}

type openRouterList struct {
	Data []struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		ContextLength int    `json:"context_length"`
		Pricing       struct {
			Prompt     json.RawMessage `json:"prompt"`
			Completion json.RawMessage `json:"completion"`
		} `json:"pricing"`
		Architecture struct {
			InputModalities []string `json:"input_modalities"`
			Modality        string   `json:"modality"`
		} `json:"architecture"`
		SupportedParameters []string `json:"supported_parameters"`
	} `json:"data"`
}

func parseOpenRouter(body []byte, fetchedAt time.Time) ([]NormalizedModel, error) {
	var payload openRouterList
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("catalog: decode openrouter models: %w", err)
	}
	out := make([]NormalizedModel, 0, len(payload.Data))
	for _, item := range payload.Data {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			continue
		}
		name := strings.TrimSpace(item.Name)
		if name == "" {
			name = id
		}
		var pricing *Pricing
		prompt, okPrompt := parsePrice(item.Pricing.Prompt)
		completion, okCompletion := parsePrice(item.Pricing.Completion)
		if okPrompt && okCompletion {
			pricing = &Pricing{PromptPrice: prompt, CompletionPrice: completion}
		}
		model := fromID(providers.OpenRouter, id, name, pricing, fetchedAt)
		model.ContextWindow = intPtr(item.ContextLength)

		caps := capabilitySet{}
		for _, c := range model.Capabilities {
			caps.add(c, true)
		}
		for _, modality := range item.Architecture.InputModalities {
			caps.add(CapVision, modality == "image")
		}
		caps.add(CapVision, strings.Contains(item.Architecture.Modality, "image->"))
		for _, param := range item.SupportedParameters {
			caps.add(CapReasoning, param == "reasoning" || param == "include_reasoning")
			caps.add(CapWebSearch, param == "web_search_options")
		}
		model.Capabilities = caps.list()
		out = append(out, model)
	}
	return out, nil
}

// parsePrice accepts both "0.000002" and 0.000002.
func parsePrice(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		value, errParse := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if errParse != nil || value < 0 {
			return 0, false
		}
		return value, true
	}
	var value float64
	if err := json.Unmarshal(raw, &value); err != nil || value < 0 {
		return 0, false
	}
	return value, true
}

// fromID builds a model whose capabilities and tier come from id heuristics and optional pricing.
func fromID(provider providers.ID, originalID, name string, pricing *Pricing, fetchedAt time.Time) NormalizedModel {
	caps := capabilitySet{}
	caps.add(CapText, true)
	caps.add(CapVision, inferVision(originalID))
	caps.add(CapReasoning, inferReasoning(originalID))
	caps.add(CapWebSearch, inferWebSearch(originalID))
	caps.add(CapCode, inferCode(originalID))

	tier := tierFromPricing(pricing)
	if tier == TierUnknown {
		tier = tierFromID(originalID)
	}
	return NormalizedModel{
		ID:           modelID(provider, originalID),
		OriginalID:   originalID,
		Provider:     provider,
		Name:         name,
		Capabilities: caps.list(),
		CostTier:     tier,
		Pricing:      pricing,
		IsAvailable:  true,
		FetchedAt:    fetchedAt.UTC(),
	}
}
