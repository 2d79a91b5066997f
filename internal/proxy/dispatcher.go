// Package proxy forwards authenticated calls to upstream AI providers using the caller's stored key.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/router-for-me/promptdock/internal/models"
	"github.com/router-for-me/promptdock/internal/providers"
	"github.com/router-for-me/promptdock/internal/ratelimit"
	"github.com/router-for-me/promptdock/internal/security"
	"github.com/router-for-me/promptdock/internal/store"
	"github.com/router-for-me/promptdock/internal/usage"
	"github.com/router-for-me/promptdock/internal/vault"
	log "github.com/sirupsen/logrus"
	"resty.dev/v3"
)

// Authenticator resolves a bearer token to a user id.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (uint64, error)
}

// KeyResolver finds the caller's active key for a provider and role.
type KeyResolver interface {
	ActiveKey(ctx context.Context, ownerID uint64, provider string, role models.Role) (*models.ProviderAPIKey, error)
}

// Limiter counts one call against the caller's window.
type Limiter interface {
	Check(ctx context.Context, key ratelimit.Key) (ratelimit.Result, error)
}

// Recorder receives one record per upstream attempt.
type Recorder interface {
	Record(ctx context.Context, rec usage.Record)
}

// Response is a successful upstream reply, passed through unchanged.
// RateLimit is set when a limit applied to the call.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
	RateLimit   *ratelimit.Result
}

// Dispatcher runs validate, authenticate, resolve, decrypt, dispatch and respond for each call.
// It holds no per-request state.
type Dispatcher struct {
	auth     Authenticator
	keys     KeyResolver
	vault    *vault.Vault
	client   *resty.Client
	limiter  Limiter
	recorder Recorder
	baseURLs map[providers.ID]string
}

// New constructs a Dispatcher.
func New(auth Authenticator, keys KeyResolver, v *vault.Vault, client *resty.Client) *Dispatcher {
	return &Dispatcher{
		auth:     auth,
		keys:     keys,
		vault:    v,
		client:   client,
		baseURLs: make(map[providers.ID]string),
	}
}

// WithLimiter enables per-caller throttling.
func (d *Dispatcher) WithLimiter(l Limiter) *Dispatcher {
	d.limiter = l
	return d
}

// WithRecorder logs every upstream attempt to rec.
func (d *Dispatcher) WithRecorder(rec Recorder) *Dispatcher {
	d.recorder = rec
	return d
}

// WithBaseURL overrides the base URL of one provider.
func (d *Dispatcher) WithBaseURL(id providers.ID, baseURL string) *Dispatcher {
	d.baseURLs[id] = baseURL
	return d
}

// Dispatch handles one proxy call. authorization is the raw Authorization header.
// Every failure is an *Error.
func (d *Dispatcher) Dispatch(ctx context.Context, authorization string, raw []byte) (*Response, error) {
	req, err := DecodeRequest(raw)
	if err != nil {
		return nil, err
	}

	token := security.BearerToken(authorization)
	if token == "" {
		return nil, authError("missing authorization")
	}
	userID, err := d.auth.Authenticate(ctx, token)
	if err != nil || userID == 0 {
		return nil, authError("invalid token")
	}

	quota, err := d.throttle(ctx, userID, req)
	if err != nil {
		return nil, err
	}
	resp, err := d.serve(ctx, userID, req)
	if quota != nil {
		var perr *Error
		switch {
		case resp != nil:
			resp.RateLimit = quota
		case errors.As(err, &perr):
			perr.RateLimit = quota
		}
	}
	return resp, err
}

// throttle counts the call against the caller's (provider, role) window.
// A failing limiter lets the call through.
func (d *Dispatcher) throttle(ctx context.Context, userID uint64, req Request) (*ratelimit.Result, error) {
	if d.limiter == nil {
		return nil, nil
	}
	res, err := d.limiter.Check(ctx, ratelimit.Key{UserID: userID, Provider: req.Provider, Role: string(req.KeyRole())})
	if err != nil {
		log.WithError(err).Warn("proxy: rate limit check failed")
		return nil, nil
	}
	if res.Limit <= 0 {
		return nil, nil
	}
	if !res.Allowed {
		return nil, &Error{Status: http.StatusTooManyRequests, Message: "rate limit exceeded", Err: ErrRateLimited, RateLimit: &res}
	}
	return &res, nil
}

// serve resolves and decrypts the caller's key, then forwards the call.
func (d *Dispatcher) serve(ctx context.Context, userID uint64, req Request) (*Response, error) {
	key, err := d.keys.ActiveKey(ctx, userID, req.Provider, req.KeyRole())
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return nil, &Error{Status: http.StatusNotFound, Message: "no active key for provider", Err: ErrNotFound}
		}
		log.WithError(err).Error("proxy: resolve key failed")
		return nil, internalError()
	}

	apiKey, err := d.vault.Decrypt(key.Ciphertext)
	if err != nil {
		log.WithField("key_id", key.ID).Error("proxy: stored key could not be decrypted")
		return nil, internalError()
	}

	start := time.Now()
	resp, err := d.forward(ctx, req, apiKey)
	d.record(ctx, userID, key.ID, req, resp, err, start)
	return resp, err
}

func (d *Dispatcher) record(ctx context.Context, userID, keyID uint64, req Request, resp *Response, err error, start time.Time) {
	if d.recorder == nil {
		return
	}
	rec := usage.Record{
		UserID:      userID,
		KeyID:       keyID,
		Provider:    req.Provider,
		Endpoint:    req.Endpoint,
		Method:      req.Method,
		Role:        string(req.KeyRole()),
		Latency:     time.Since(start),
		RequestedAt: start,
	}
	var perr *Error
	switch {
	case errors.As(err, &perr):
		rec.Status, rec.Failed = perr.Status, true
	case err != nil:
		rec.Status, rec.Failed = http.StatusInternalServerError, true
	case resp != nil:
		rec.Status, rec.Bytes = resp.Status, len(resp.Body)
	}
	d.recorder.Record(ctx, rec)
}

func (d *Dispatcher) forward(ctx context.Context, req Request, apiKey string) (*Response, error) {
	spec, ok := providers.Lookup(req.ProviderID())
	if !ok {
		return nil, validationError("provider must be one of: openai gemini anthropic openrouter")
	}
	base := spec.BaseURL
	if override := d.baseURLs[spec.ID]; override != "" {
		base = override
	}

	upstream := d.client.R().SetContext(ctx).SetHeader("Accept", "application/json")
	spec.Auth.Apply(upstream, apiKey)
	if req.HasBody() {
		upstream.SetHeader("Content-Type", "application/json").
			SetAllowMethodGetPayload(true).
			SetAllowMethodDeletePayload(true).
			SetBody([]byte(req.Body))
	}

	resp, err := upstream.Execute(req.Method, providers.JoinURL(base, req.Endpoint))
	if err != nil {
		log.WithError(err).Warnf("proxy: %s request failed", spec.ID)
		return nil, &Error{Status: http.StatusBadGateway, Message: "API request failed", Details: err.Error(), Err: ErrUpstream}
	}

	body := resp.Bytes()
	if resp.IsError() || resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return nil, &Error{Status: resp.StatusCode(), Message: "API request failed", Details: upstreamDetails(body), Err: ErrUpstream}
	}

	contentType := resp.Header().Get("Content-Type")
	if contentType == "" || strings.HasPrefix(contentType, "application/json") {
		contentType = "application/json"
	}
	return &Response{Status: resp.StatusCode(), ContentType: contentType, Body: body}, nil
}

// upstreamDetails returns the upstream body as JSON when it parses, else as text.
func upstreamDetails(body []byte) any {
	var parsed any
	if err := json.Unmarshal(body, &parsed); err == nil {
		return parsed
	}
	return string(body)
}
