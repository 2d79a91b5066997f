package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/router-for-me/promptdock/internal/catalog"
	"github.com/router-for-me/promptdock/internal/providers"
	"resty.dev/v3"
)

// Meta describes the cache state returned alongside the aggregate catalog.
type Meta struct {
	FetchedAt map[providers.ID]string `json:"fetchedAt,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// AggregateResponse is the body of GET /providers/models.
type AggregateResponse struct {
	Models map[providers.ID][]catalog.NormalizedModel `json:"models"`
	Meta   Meta                                       `json:"_meta"`
}

// ProviderResponse is the body of GET /providers/models/:provider.
type ProviderResponse struct {
	Models []catalog.NormalizedModel `json:"models"`
}

// HTTPSource reads catalogs from another instance's registry endpoints.
type HTTPSource struct {
	client  *resty.Client
	baseURL string
}

// NewHTTPSource targets the registry served under baseURL.
func NewHTTPSource(client *resty.Client, baseURL string) *HTTPSource {
	return &HTTPSource{client: client, baseURL: baseURL}
}

// FetchAll issues one aggregate request for every provider.
func (s *HTTPSource) FetchAll(ctx context.Context) (map[providers.ID][]catalog.NormalizedModel, error) {
	var body AggregateResponse
	if err := s.get(ctx, "/providers/models", &body); err != nil {
		return nil, err
	}
	if body.Meta.Error != "" {
		return body.Models, fmt.Errorf("registry source: upstream reported: %s", body.Meta.Error)
	}
	return body.Models, nil
}

// FetchProvider reads a single provider's catalog.
func (s *HTTPSource) FetchProvider(ctx context.Context, id providers.ID) ([]catalog.NormalizedModel, error) {
	var body ProviderResponse
	if err := s.get(ctx, "/providers/models/"+url.PathEscape(string(id)), &body); err != nil {
		return nil, err
	}
	return body.Models, nil
}

func (s *HTTPSource) get(ctx context.Context, path string, out any) error {
	resp, err := s.client.R().SetContext(ctx).SetHeader("Accept", "application/json").Get(providers.JoinURL(s.baseURL, path))
	if err != nil {
		return fmt.Errorf("registry source: request %s: %w", path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("registry source: %s returned status %d", path, resp.StatusCode())
	}
	if err := json.Unmarshal(resp.Bytes(), out); err != nil {
		return fmt.Errorf("registry source: decode %s: %w", path, err)
	}
	return nil
}
