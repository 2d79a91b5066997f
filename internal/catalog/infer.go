package catalog

import (
	"regexp"
	"strings"
)

var (
	reasoningFamily  = regexp.MustCompile(`^o[1-9](-|$)`)
	gpt4Legacy       = regexp.MustCompile(`^gpt-4(-\d{4}|-32k|-0314|-0613)?$`)
	nonChatOpenAIIDs = []string{"embedding", "whisper", "tts", "dall-e", "moderation", "davinci", "babbage", "transcribe", "gpt-image", "realtime", "audio"}
)

// baseID strips "models/" prefixes, vendor namespaces and ":variant" suffixes.
func baseID(id string) string {
	lower := strings.ToLower(strings.TrimSpace(id))
	lower = strings.TrimPrefix(lower, "models/")
	if idx := strings.LastIndex(lower, "/"); idx >= 0 {
		lower = lower[idx+1:]
	}
	if idx := strings.Index(lower, ":"); idx >= 0 {
		lower = lower[:idx]
	}
	return lower
}

func containsAny(s string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}

// IsReasoningOnly reports whether the model is a dedicated reasoning model
// (o-series, R1-style, "reasoner" variants) rather than a general chat model with optional reasoning.
func IsReasoningOnly(m NormalizedModel) bool {
	if !m.Has(CapReasoning) {
		return false
	}
	id := baseID(m.OriginalID)
	return reasoningFamily.MatchString(id) || containsAny(id, "deepseek-r1", "-reasoner", "qwq")
}

func isNonChatOpenAI(id string) bool {
	return containsAny(strings.ToLower(id), nonChatOpenAIIDs...)
}

func inferVision(id string) bool {
	id = baseID(id)
	switch {
	case strings.HasPrefix(id, "gpt-4o"), strings.HasPrefix(id, "gpt-4.1"), strings.HasPrefix(id, "gpt-4-turbo"),
		strings.HasPrefix(id, "gpt-4-vision"), strings.HasPrefix(id, "gpt-5"), strings.HasPrefix(id, "chatgpt-4o"):
		return true
	case reasoningFamily.MatchString(id):
		return !strings.HasPrefix(id, "o1-mini") && !strings.HasPrefix(id, "o3-mini")
	case strings.HasPrefix(id, "claude-"):
		return !strings.HasPrefix(id, "claude-2") && !strings.HasPrefix(id, "claude-instant")
	case strings.HasPrefix(id, "gemini-"):
		return !strings.HasPrefix(id, "gemini-1.0-pro") || strings.Contains(id, "vision")
	default:
		return containsAny(id, "vision", "-vl", "pixtral", "llava")
	}
}

func inferReasoning(id string) bool {
	id = baseID(id)
	if reasoningFamily.MatchString(id) {
		return true
	}
	return strings.HasPrefix(id, "gpt-5") ||
		containsAny(id, "deepseek-r1", "-reasoner", "qwq", "thinking", "claude-3-7", "claude-sonnet-4", "claude-opus-4", "gemini-2.5")
}

func inferWebSearch(id string) bool {
	lower := strings.ToLower(id)
	return containsAny(lower, "search", "sonar", ":online")
}

func inferCode(id string) bool {
	return containsAny(baseID(id), "code", "coder", "codex", "codestral", "devstral")
}

// tierFromPricing buckets per-token prices by prompt cost per million tokens.
func tierFromPricing(p *Pricing) CostTier {
	if p == nil || p.PromptPrice < 0 || p.CompletionPrice < 0 {
		return TierUnknown
	}
	if p.PromptPrice == 0 && p.CompletionPrice == 0 {
		return TierFree
	}
	perMillion := p.PromptPrice * 1e6
	switch {
	case perMillion <= 0.5:
		return TierLow
	case perMillion <= 5:
		return TierMedium
	default:
		return TierHigh
	}
}

// tierFromID guesses a tier from well-known model naming when no pricing is published.
func tierFromID(id string) CostTier {
	lower := strings.ToLower(id)
	base := baseID(id)
	switch {
	case strings.HasSuffix(lower, ":free"):
		return TierFree
	case containsAny(base, "mini", "flash", "haiku", "nano", "lite", "small", "3.5-turbo"):
		return TierLow
	case containsAny(base, "opus", "ultra", "o3-pro", "gpt-4.5") || base == "o1" || strings.HasPrefix(base, "o1-2") || gpt4Legacy.MatchString(base):
		return TierHigh
	case containsAny(base, "sonnet", "gpt-4o", "gpt-4.1", "gpt-4-turbo", "gpt-5", "gemini-", "-pro") || reasoningFamily.MatchString(base):
		return TierMedium
	default:
		return TierUnknown
	}
}
