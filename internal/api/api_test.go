package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/starford/muninn/internal/audit"
	"github.com/starford/muninn/internal/cache"
	"github.com/starford/muninn/internal/store"
	"github.com/starford/muninn/internal/testutil"
)

func testRouter(t *testing.T, authEnabled bool, token string) (http.Handler, *audit.Recorder, *store.Store) {
	t.Helper()
	db := testutil.TestStore(t)
	recorder := audit.NewRecorder(db, 16, testutil.Logger())
	t.Cleanup(recorder.Close)
	return NewRouter(db, cache.NewMemory(0, 0), recorder, authEnabled, token), recorder, db
}

func get(t *testing.T, h http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatsEndpoint(t *testing.T) {
	h, _, _ := testRouter(t, false, "")

	rec := get(t, h, "/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"store", "cache", "audit"} {
		if _, ok := body[key]; !ok {
			t.Errorf("stats missing %q: %v", key, body)
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	h, _, _ := testRouter(t, true, "secret")

	if rec := get(t, h, "/stats", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", rec.Code)
	}
	if rec := get(t, h, "/stats", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", rec.Code)
	}
	if rec := get(t, h, "/stats", "secret"); rec.Code != http.StatusOK {
		t.Errorf("good token status = %d, want 200", rec.Code)
	}
}

func TestAuditLogEndpoint(t *testing.T) {
	h, recorder, _ := testRouter(t, false, "")
	recorder.LogAction("u1", "context_item_create", "context_item", "i1", nil, nil, nil)
	recorder.LogAction("u2", "collection_create", "collection", "c1", nil, nil, nil)
	recorder.Close()

	rec := get(t, h, "/audit/log?actor_id=u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 1 {
		t.Errorf("count = %d, want 1", body.Count)
	}
}

func TestAuditStatsEndpoint(t *testing.T) {
	h, recorder, _ := testRouter(t, false, "")
	recorder.LogAction("u1", "x", "y", "", nil, nil, nil)
	recorder.Close()

	if rec := get(t, h, "/audit/stats?window=24h", ""); rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	rec := get(t, h, "/audit/stats?window=1y", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad window status = %d, want 400", rec.Code)
	}
	var body errResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Code != "validation_error" {
		t.Errorf("code = %q", body.Code)
	}
}
