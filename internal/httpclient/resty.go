// Package httpclient builds the resty clients used for upstream and backend calls.
package httpclient

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"resty.dev/v3"
)

type startedAtKey struct{}

// DefaultTimeout bounds a single upstream round trip when the caller sets no deadline.
const DefaultTimeout = 60 * time.Second

// New returns a resty client that logs every exchange at debug level under name.
func New(name string, timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := resty.New().SetTimeout(timeout)
	client.AddRequestMiddleware(func(_ *resty.Client, r *resty.Request) error {
		r.SetContext(context.WithValue(r.Context(), startedAtKey{}, time.Now()))
		return nil
	})
	client.AddResponseMiddleware(func(_ *resty.Client, r *resty.Response) error {
		if !log.IsLevelEnabled(log.DebugLevel) {
			return nil
		}
		startedAt, _ := r.Request.Context().Value(startedAtKey{}).(time.Time)
		fields := log.Fields{
			"client":  name,
			"status":  r.StatusCode(),
			"latency": time.Since(startedAt),
		}
		if raw := r.Request.RawRequest; raw != nil {
			fields["method"] = raw.Method
			fields["path"] = raw.URL.Path
		}
		log.WithFields(fields).Debug("http client request")
		return nil
	})
	return client
}
