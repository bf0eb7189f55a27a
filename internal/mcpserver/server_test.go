package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/muninn/internal/audit"
	"github.com/starford/muninn/internal/auth"
	"github.com/starford/muninn/internal/cache"
	"github.com/starford/muninn/internal/models"
	"github.com/starford/muninn/internal/repo"
	"github.com/starford/muninn/internal/search"
	"github.com/starford/muninn/internal/store"
	"github.com/starford/muninn/internal/testutil"
)

func testServer(t *testing.T, opts Options) (*Server, *store.Store) {
	t.Helper()
	db := testutil.TestStore(t)
	recorder := audit.NewRecorder(db, 32, testutil.Logger())
	t.Cleanup(recorder.Close)

	c := cache.NewMemory(0, 0)
	deps := Deps{
		Store:    db,
		Repo:     repo.New(db, c, recorder, testutil.Logger()),
		Search:   search.New(db, recorder, testutil.Logger()),
		Auth:     auth.New(db, recorder, testutil.Logger()),
		Recorder: recorder,
		Cache:    c,
	}
	return New(deps, opts, testutil.Logger()), db
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error
	switch name {
	case "search_context":
		result, err = srv.searchContext(ctx, req)
	case "get_context_item":
		result, err = srv.getContextItem(ctx, req)
	case "create_context_item":
		result, err = srv.createContextItem(ctx, req)
	case "update_context_item":
		result, err = srv.updateContextItem(ctx, req)
	case "list_collections":
		result, err = srv.listCollections(ctx, req)
	case "create_collection":
		result, err = srv.createCollection(ctx, req)
	case "get_analytics":
		result, err = srv.getAnalytics(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	if len(r.Content) == 0 {
		t.Fatal("empty result content")
	}
	tc, ok := r.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content type %T", r.Content[0])
	}
	return tc.Text
}

// decodeResult unmarshals a successful tool result into v.
func decodeResult(t *testing.T, r *mcp.CallToolResult, v any) {
	t.Helper()
	if r.IsError {
		t.Fatalf("tool failed: %s", resultText(t, r))
	}
	if err := json.Unmarshal([]byte(resultText(t, r)), v); err != nil {
		t.Fatalf("decode result: %v", err)
	}
}

func errorCode(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	if !r.IsError {
		t.Fatalf("expected error result, got %s", resultText(t, r))
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(resultText(t, r)), &body); err != nil {
		t.Fatalf("decode error result %q: %v", resultText(t, r), err)
	}
	return body.Error.Code
}

func TestCreateCollectionAndItemRoundTrip(t *testing.T) {
	srv, _ := testServer(t, Options{})

	var coll models.Collection
	decodeResult(t, callTool(t, srv, "create_collection", map[string]any{
		"name": "docs", "is_public": true, "tags": []any{"work"},
	}), &coll)
	if coll.Name != "docs" || !coll.IsPublic {
		t.Fatalf("collection = %+v", coll)
	}

	var item models.ContextItem
	decodeResult(t, callTool(t, srv, "create_context_item", map[string]any{
		"collection_id": coll.ID,
		"title":         "Note",
		"content":       "some text",
		"tags":          []any{"go"},
	}), &item)
	if item.Version != 1 || item.CollectionID != coll.ID {
		t.Fatalf("item = %+v", item)
	}

	var got models.ContextItem
	decodeResult(t, callTool(t, srv, "get_context_item", map[string]any{
		"item_id": item.ID, "include_versions": true,
	}), &got)
	if got.ID != item.ID || len(got.Versions) != 1 {
		t.Fatalf("got = %+v", got)
	}
}

func TestCreateItemDuplicateReported(t *testing.T) {
	srv, _ := testServer(t, Options{})

	var coll models.Collection
	decodeResult(t, callTool(t, srv, "create_collection", map[string]any{"name": "docs"}), &coll)

	args := map[string]any{"collection_id": coll.ID, "title": "A", "content": "same"}
	decodeResult(t, callTool(t, srv, "create_context_item", args), &struct{}{})

	dup := callTool(t, srv, "create_context_item", map[string]any{
		"collection_id": coll.ID, "title": "B", "content": "same",
	})
	if code := errorCode(t, dup); code != "duplicate_content" {
		t.Errorf("code = %q, want duplicate_content", code)
	}
}

func TestCreateItemValidation(t *testing.T) {
	srv, _ := testServer(t, Options{})

	res := callTool(t, srv, "create_context_item", map[string]any{
		"collection_id": "c", "title": "", "content": "x",
	})
	if code := errorCode(t, res); code != "validation_error" {
		t.Errorf("code = %q, want validation_error", code)
	}

	res = callTool(t, srv, "create_context_item", map[string]any{
		"collection_id": "c", "title": strings.Repeat("x", 501), "content": "x",
	})
	if code := errorCode(t, res); code != "validation_error" {
		t.Errorf("long title code = %q, want validation_error", code)
	}
}

func TestUpdateItemFlow(t *testing.T) {
	srv, _ := testServer(t, Options{})

	var coll models.Collection
	decodeResult(t, callTool(t, srv, "create_collection", map[string]any{"name": "docs"}), &coll)
	var item models.ContextItem
	decodeResult(t, callTool(t, srv, "create_context_item", map[string]any{
		"collection_id": coll.ID, "title": "Note", "content": "v1",
	}), &item)

	var updated models.ContextItem
	decodeResult(t, callTool(t, srv, "update_context_item", map[string]any{
		"item_id": item.ID, "content": "v2", "change_summary": "rewrite",
	}), &updated)
	if updated.Version != 2 || updated.Content != "v2" {
		t.Fatalf("updated = %+v", updated)
	}

	empty := callTool(t, srv, "update_context_item", map[string]any{"item_id": item.ID})
	if code := errorCode(t, empty); code != "no_changes" {
		t.Errorf("code = %q, want no_changes", code)
	}

	missing := callTool(t, srv, "update_context_item", map[string]any{
		"item_id": "nope", "content": "x",
	})
	if code := errorCode(t, missing); code != "not_found" {
		t.Errorf("code = %q, want not_found", code)
	}
}

func TestSearchContextTool(t *testing.T) {
	srv, _ := testServer(t, Options{})

	var coll models.Collection
	decodeResult(t, callTool(t, srv, "create_collection", map[string]any{"name": "docs"}), &coll)
	decodeResult(t, callTool(t, srv, "create_context_item", map[string]any{
		"collection_id": coll.ID, "title": "Go notes", "content": "goroutines everywhere",
	}), &struct{}{})

	var out struct {
		Results []search.Result `json:"results"`
		Count   int             `json:"count"`
	}
	decodeResult(t, callTool(t, srv, "search_context", map[string]any{"query": "goroutines"}), &out)
	if out.Count != 1 || len(out.Results) != 1 {
		t.Fatalf("search out = %+v", out)
	}

	bad := callTool(t, srv, "search_context", map[string]any{"query": "x", "search_type": "vector"})
	if code := errorCode(t, bad); code != "validation_error" {
		t.Errorf("code = %q, want validation_error", code)
	}
}

func TestListCollectionsTool(t *testing.T) {
	srv, _ := testServer(t, Options{})
	decodeResult(t, callTool(t, srv, "create_collection", map[string]any{"name": "a"}), &struct{}{})
	decodeResult(t, callTool(t, srv, "create_collection", map[string]any{"name": "b", "is_public": true}), &struct{}{})

	var out struct {
		Collections []models.Collection `json:"collections"`
		Count       int                 `json:"count"`
	}
	decodeResult(t, callTool(t, srv, "list_collections", map[string]any{}), &out)
	if out.Count != 2 {
		t.Fatalf("count = %d, want 2", out.Count)
	}
}

func TestGetAnalyticsTool(t *testing.T) {
	srv, _ := testServer(t, Options{})

	var out map[string]any
	decodeResult(t, callTool(t, srv, "get_analytics", map[string]any{"type": "usage"}), &out)
	if out["type"] != "usage" {
		t.Errorf("report = %v", out)
	}

	bad := callTool(t, srv, "get_analytics", map[string]any{"type": "bogus"})
	if code := errorCode(t, bad); code != "validation_error" {
		t.Errorf("code = %q, want validation_error", code)
	}
}

func TestAuthEnabledRejectsBadKey(t *testing.T) {
	srv, _ := testServer(t, Options{AuthEnabled: true, APIKey: "mnn_wrong"})

	res := callTool(t, srv, "list_collections", map[string]any{})
	if code := errorCode(t, res); code != "authentication_failure" {
		t.Errorf("code = %q, want authentication_failure", code)
	}
}

func TestAuthEnabledPermissions(t *testing.T) {
	srv, db := testServer(t, Options{AuthEnabled: true, APIKey: "mnn_reader"})
	ctx := context.Background()

	// A readonly identity holding the configured key.
	reader := testutil.SeedUser(t, db, "viewer", models.RoleReadonly)
	key, err := srv.deps.Auth.IssueAPIKey(ctx, reader.ID)
	if err != nil {
		t.Fatal(err)
	}
	srv.opts.APIKey = key

	res := callTool(t, srv, "create_collection", map[string]any{"name": "docs"})
	if code := errorCode(t, res); code != "permission_denied" {
		t.Errorf("readonly create code = %q, want permission_denied", code)
	}

	owner := testutil.SeedUser(t, db, "owner", models.RoleUser)
	coll := testutil.SeedCollection(t, db, owner.ID, "private")
	write := callTool(t, srv, "create_context_item", map[string]any{
		"collection_id": coll, "title": "T", "content": "c",
	})
	if code := errorCode(t, write); code != "permission_denied" {
		t.Errorf("unauthorized write code = %q, want permission_denied", code)
	}
}

func TestSchemaResource(t *testing.T) {
	srv, _ := testServer(t, Options{})
	contents, err := srv.readSchemaResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	text, ok := contents[0].(mcp.TextResourceContents)
	if !ok || !strings.Contains(text.Text, "duplicate_content") {
		t.Errorf("schema resource = %+v", contents)
	}
}

func TestToolCallAudited(t *testing.T) {
	srv, db := testServer(t, Options{AuditToolCalls: true})
	callTool(t, srv, "list_collections", map[string]any{})
	srv.deps.Recorder.Close()

	var n int
	if err := db.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM audit_log WHERE action = ?`, audit.ActionToolCall).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("tool_call entries = %d, want 1", n)
	}
}
