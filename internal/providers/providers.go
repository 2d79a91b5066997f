// Package providers describes the upstream AI APIs: identifiers, base URLs and how each one authenticates.
package providers

import (
	"sort"
	"strings"

	"resty.dev/v3"
)

// ID identifies an upstream provider.
type ID string

// Supported providers.
const (
	OpenAI     ID = "openai"
	Anthropic  ID = "anthropic"
	Gemini     ID = "gemini"
	OpenRouter ID = "openrouter"
)

// AnthropicVersion is sent with every Anthropic request.
const AnthropicVersion = "2023-06-01"

// AuthKind selects how the API key travels to the provider.
type AuthKind int

const (
	// AuthBearer sends "Authorization: Bearer <key>".
	AuthBearer AuthKind = iota
	// AuthHeader sends the key in a dedicated header plus a version header.
	AuthHeader
	// AuthQuery sends the key as a query-string parameter.
	AuthQuery
)

// AuthStyle is the authentication convention of one provider.
type AuthStyle struct {
	Kind          AuthKind
	Header        string
	VersionHeader string
	Version       string
	QueryParam    string
}

// Spec is the fixed description of a provider.
type Spec struct {
	ID         ID
	BaseURL    string
	Auth       AuthStyle
	ModelsPath string
}

var specs = map[ID]Spec{
	OpenAI: {
		ID:         OpenAI,
		BaseURL:    "https://api.openai.com/v1",
		Auth:       AuthStyle{Kind: AuthBearer},
		ModelsPath: "/models",
	},
	Anthropic: {
		ID:      Anthropic,
		BaseURL: "https://api.anthropic.com/v1",
		Auth: AuthStyle{
			Kind:          AuthHeader,
			Header:        "x-api-key",
			VersionHeader: "anthropic-version",
			Version:       AnthropicVersion,
		},
		ModelsPath: "/models?limit=1000",
	},
	Gemini: {
		ID:         Gemini,
		BaseURL:    "https://generativelanguage.googleapis.com/v1",
		Auth:       AuthStyle{Kind: AuthQuery, QueryParam: "key"},
		ModelsPath: "/models?pageSize=1000",
	},
	OpenRouter: {
		ID:         OpenRouter,
		BaseURL:    "https://openrouter.ai/api/v1",
		Auth:       AuthStyle{Kind: AuthBearer},
		ModelsPath: "/models",
	},
}

var aliases = map[string]ID{
	"openai":         OpenAI,
	"anthropic":      Anthropic,
	"claude":         Anthropic,
	"gemini":         Gemini,
	"google":         Gemini,
	"openrouter":     OpenRouter,
	"open-router":    OpenRouter,
	"openrouter.ai":  OpenRouter,
	"google-gemini":  Gemini,
	"anthropic-api":  Anthropic,
	"openai-api":     OpenAI,
	"openai-chatgpt": OpenAI,
}

// Lookup returns the Spec for id.
func Lookup(id ID) (Spec, bool) {
	spec, ok := specs[id]
	return spec, ok
}

// Valid reports whether id is a supported provider.
func Valid(id ID) bool {
	_, ok := specs[id]
	return ok
}

// All returns every supported provider in stable order.
func All() []ID {
	out := make([]ID, 0, len(specs))
	for id := range specs {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Normalize maps user input to a canonical ID. Unknown input yields "".
func Normalize(value string) ID {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return ""
	}
	if id, ok := aliases[trimmed]; ok {
		return id
	}
	return ""
}

// Apply attaches the API key to req using the style's convention.
func (a AuthStyle) Apply(req *resty.Request, apiKey string) *resty.Request {
	if req == nil {
		return nil
	}
	switch a.Kind {
	case AuthHeader:
		req.SetHeader(a.Header, apiKey)
		if a.VersionHeader != "" {
			req.SetHeader(a.VersionHeader, a.Version)
		}
	case AuthQuery:
		req.SetQueryParam(a.QueryParam, apiKey)
	default:
		req.SetHeader("Authorization", "Bearer "+apiKey)
	}
	return req
}

// JoinURL concatenates base and endpoint with exactly one slash between them.
func JoinURL(base, endpoint string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return base
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return base + endpoint
}
