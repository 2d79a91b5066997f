package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/promptdock/internal/db"
	"github.com/router-for-me/promptdock/internal/http/api"
	"github.com/router-for-me/promptdock/internal/models"
	"gorm.io/gorm"
)

type headerAuth struct{}

// Authenticate treats the token as "user-<id>".
func (headerAuth) Authenticate(_ context.Context, token string) (uint64, error) {
	switch token {
	case "user-1":
		return 1, nil
	case "user-2":
		return 2, nil
	default:
		return 0, errors.New("bad token")
	}
}

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "rest.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	r := gin.New()
	authed := r.Group("")
	authed.Use(api.RequireUser(headerAuth{}))
	NewHandler(conn).Register(authed)
	return r, conn
}

func do(r *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCRUDPrompts(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := do(r, http.MethodPost, "/api/prompts", "user-1", `{"title":"First","body":"hello","provider":"claude"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created models.Prompt
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == 0 || created.OwnerID != 1 || created.Provider != "anthropic" {
		t.Fatalf("unexpected created row %+v", created)
	}
	path := "/api/prompts/" + jsonID(created.ID)

	rec = do(r, http.MethodGet, path, "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}

	rec = do(r, http.MethodPut, path, "user-1", `{"body":"updated","owner_id":99,"unknown":"x"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var updated models.Prompt
	_ = json.Unmarshal(rec.Body.Bytes(), &updated)
	if updated.Body != "updated" || updated.Title != "First" || updated.OwnerID != 1 {
		t.Fatalf("partial update went wrong: %+v", updated)
	}

	if rec = do(r, http.MethodPut, path, "user-1", `{"owner_id":2}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("update with no writable fields: expected 400, got %d", rec.Code)
	}
	if rec = do(r, http.MethodPut, path, "user-1", `{"title":5}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("update with wrong type: expected 400, got %d", rec.Code)
	}

	if rec = do(r, http.MethodGet, path, "user-2", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("foreign get: expected 404, got %d", rec.Code)
	}
	if rec = do(r, http.MethodDelete, path, "user-2", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("foreign delete: expected 404, got %d", rec.Code)
	}
	if rec = do(r, http.MethodDelete, path, "user-1", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}
	if rec = do(r, http.MethodGet, path, "user-1", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("deleted get: expected 404, got %d", rec.Code)
	}
}

func TestListFiltersAndOrders(t *testing.T) {
	r, _ := newTestRouter(t)
	for _, body := range []string{
		`{"title":"a","provider":"openai"}`,
		`{"title":"b","provider":"gemini"}`,
		`{"title":"c","provider":"openai"}`,
	} {
		if rec := do(r, http.MethodPost, "/api/prompts", "user-1", body); rec.Code != http.StatusCreated {
			t.Fatalf("seed: %d %s", rec.Code, rec.Body.String())
		}
	}
	do(r, http.MethodPost, "/api/prompts", "user-2", `{"title":"other","provider":"openai"}`)

	titles := func(path string) []string {
		rec := do(r, http.MethodGet, path, "user-1", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("list %s: %d %s", path, rec.Code, rec.Body.String())
		}
		var rows []models.Prompt
		if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
			t.Fatalf("decode: %v", err)
		}
		out := make([]string, len(rows))
		for i, row := range rows {
			out[i] = row.Title
		}
		return out
	}

	if got := strings.Join(titles("/api/prompts"), ","); got != "c,b,a" {
		t.Fatalf("expected newest first, got %s", got)
	}
	if got := strings.Join(titles("/api/prompts?provider=openai"), ","); got != "c,a" {
		t.Fatalf("eq filter: got %s", got)
	}
	if got := strings.Join(titles("/api/prompts?provider=neq.openai"), ","); got != "b" {
		t.Fatalf("neq filter: got %s", got)
	}
	if got := titles("/api/prompts?provider=acme"); len(got) != 0 {
		t.Fatalf("expected empty list, got %v", got)
	}
}

func TestAPIKeysAreReadOnlyAndHideCiphertext(t *testing.T) {
	r, conn := newTestRouter(t)
	row := models.ProviderAPIKey{OwnerID: 1, Provider: "openai", Ciphertext: "secret-blob", KeyHint: "…1234"}
	if err := conn.Create(&row).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	rec := do(r, http.MethodGet, "/api/api_keys", "user-1", "")
	if rec.Code != http.StatusOK || strings.Contains(rec.Body.String(), "secret-blob") {
		t.Fatalf("unexpected list %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"key_hint":"…1234"`) {
		t.Fatalf("expected key hint in %s", rec.Body.String())
	}
	if rec = do(r, http.MethodPost, "/api/api_keys", "user-1", `{"provider":"gemini"}`); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("post api_keys: expected 405, got %d", rec.Code)
	}
	if rec = do(r, http.MethodPut, "/api/api_keys/"+jsonID(row.ID), "user-1", `{"provider":"gemini"}`); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("put api_keys: expected 405, got %d", rec.Code)
	}
}

func TestErrors(t *testing.T) {
	r, _ := newTestRouter(t)
	if rec := do(r, http.MethodGet, "/api/prompts", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no auth: expected 401, got %d", rec.Code)
	}
	if rec := do(r, http.MethodGet, "/api/users", "user-1", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown table: expected 404, got %d", rec.Code)
	}
	if rec := do(r, http.MethodGet, "/api/prompts/abc", "user-1", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id: expected 400, got %d", rec.Code)
	}
	if rec := do(r, http.MethodPost, "/api/prompts", "user-1", `{"body":"no title"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing title: expected 400, got %d", rec.Code)
	}
	if rec := do(r, http.MethodPost, "/api/prompts", "user-1", `not json`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json: expected 400, got %d", rec.Code)
	}
}

func jsonID(id uint64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
