package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

func TestNewClientRoundTrip(t *testing.T) {
	prev := log.GetLevel()
	log.SetLevel(log.DebugLevel)
	defer log.SetLevel(prev)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := New("test", time.Second)
	defer func() { _ = client.Close() }()

	resp, err := client.R().Get(server.URL + "/ping")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode() != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode())
	}
	if string(resp.Bytes()) != `{"ok":true}` {
		t.Fatalf("unexpected body %q", resp.Bytes())
	}
}

func TestNewClientDefaultTimeout(t *testing.T) {
	client := New("test", 0)
	defer func() { _ = client.Close() }()
	if client.Timeout() != DefaultTimeout {
		t.Fatalf("expected default timeout, got %s", client.Timeout())
	}
}
