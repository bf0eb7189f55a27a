// Package mcpserver exposes the Muninn context store as MCP tools over
// stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/muninn/internal/apperr"
	"github.com/starford/muninn/internal/audit"
	"github.com/starford/muninn/internal/auth"
	"github.com/starford/muninn/internal/cache"
	"github.com/starford/muninn/internal/models"
	"github.com/starford/muninn/internal/repo"
	"github.com/starford/muninn/internal/search"
	"github.com/starford/muninn/internal/store"
)

// Deps are the collaborators the tool surface dispatches into.
type Deps struct {
	Store    *store.Store
	Repo     *repo.Repository
	Search   *search.Engine
	Auth     *auth.Service
	Recorder *audit.Recorder
	Cache    cache.Cache
}

// Options controls how the tool surface treats callers.
type Options struct {
	// AuthEnabled resolves APIKey to a user identity on every
	// invocation and enforces collection permissions.
	AuthEnabled bool
	APIKey      string
	// AuditToolCalls records an audit entry per invocation.
	AuditToolCalls bool
}

// Server wraps the MCP server with the Muninn tool set.
type Server struct {
	mcp    *server.MCPServer
	deps   Deps
	opts   Options
	logger *slog.Logger
}

// New creates an MCP server with all tools and resources registered.
func New(deps Deps, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{deps: deps, opts: opts, logger: logger}

	s.mcp = server.NewMCPServer(
		"Muninn",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_context",
		mcp.WithDescription("Search context items by lexical relevance, optionally scoped to collections and tags."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithString("search_type", mcp.Description("One of fulltext, semantic, hybrid (default hybrid)")),
		mcp.WithArray("collection_ids", mcp.Description("Restrict to these collection IDs")),
		mcp.WithArray("tags", mcp.Description("Require all of these tags")),
		mcp.WithNumber("limit", mcp.Description("Maximum results, up to 100 (default 10)")),
	), s.searchContext)

	s.mcp.AddTool(mcp.NewTool("get_context_item",
		mcp.WithDescription("Read a context item by ID, optionally with its full version history."),
		mcp.WithString("item_id", mcp.Required(), mcp.Description("Item ID")),
		mcp.WithBoolean("include_versions", mcp.Description("Attach version snapshots, newest first (default false)")),
	), s.getContextItem)

	s.mcp.AddTool(mcp.NewTool("create_context_item",
		mcp.WithDescription("Store a new context item in a collection. Identical active content is "+
			"rejected as a duplicate; read the muninn://schema resource for the full contract."),
		mcp.WithString("collection_id", mcp.Required(), mcp.Description("Target collection ID")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Item title (max 500 chars)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Text content")),
		mcp.WithString("content_type", mcp.Description("MIME type (default text/plain)")),
		mcp.WithString("source_url", mcp.Description("Provenance URL")),
		mcp.WithString("source_type", mcp.Description("One of file, url, api, manual (default manual)")),
		mcp.WithArray("tags", mcp.Description("Tags for filtering")),
		mcp.WithObject("metadata", mcp.Description("Free-form metadata")),
	), s.createContextItem)

	s.mcp.AddTool(mcp.NewTool("update_context_item",
		mcp.WithDescription("Update fields of a context item. Only supplied fields change; every "+
			"update writes a new immutable version snapshot."),
		mcp.WithString("item_id", mcp.Required(), mcp.Description("Item ID")),
		mcp.WithString("title", mcp.Description("New title (max 500 chars)")),
		mcp.WithString("content", mcp.Description("New content")),
		mcp.WithArray("tags", mcp.Description("Replacement tag set")),
		mcp.WithObject("metadata", mcp.Description("Replacement metadata")),
		mcp.WithString("change_summary", mcp.Description("Human-readable change description")),
	), s.updateContextItem)

	s.mcp.AddTool(mcp.NewTool("list_collections",
		mcp.WithDescription("List collections visible to the caller with live item counts."),
		mcp.WithBoolean("include_public", mcp.Description("Include public collections (default true)")),
		mcp.WithArray("tags", mcp.Description("Require all of these tags")),
		mcp.WithNumber("limit", mcp.Description("Page size, up to 200 (default 50)")),
		mcp.WithNumber("offset", mcp.Description("Page offset (default 0)")),
	), s.listCollections)

	s.mcp.AddTool(mcp.NewTool("create_collection",
		mcp.WithDescription("Create a collection owned by the caller. Names are unique per owner."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Collection name (max 255 chars)")),
		mcp.WithString("description", mcp.Description("Description")),
		mcp.WithBoolean("is_public", mcp.Description("Readable by everyone (default false)")),
		mcp.WithArray("tags", mcp.Description("Tags for filtering")),
		mcp.WithObject("metadata", mcp.Description("Free-form metadata")),
	), s.createCollection)

	s.mcp.AddTool(mcp.NewTool("get_analytics",
		mcp.WithDescription("Aggregate usage, search, or performance metrics over a time window."),
		mcp.WithString("type", mcp.Description("One of search, usage, performance (default usage)")),
		mcp.WithString("start_date", mcp.Description("Window start, RFC 3339 (default 30 days ago)")),
		mcp.WithString("end_date", mcp.Description("Window end, RFC 3339 (default now)")),
		mcp.WithArray("collection_ids", mcp.Description("Restrict search analytics to these collections")),
	), s.getAnalytics)

	s.mcp.AddResource(
		mcp.NewResource("muninn://schema", "Context Store Schema",
			mcp.WithResourceDescription("Data model and error contract for the context store."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readSchemaResource,
	)
	s.mcp.AddResource(
		mcp.NewResource("muninn://collections", "Collection List",
			mcp.WithResourceDescription("Collections visible to the caller, with item counts."),
			mcp.WithMIMEType("application/json"),
		),
		s.readCollectionsResource,
	)
	s.mcp.AddResource(
		mcp.NewResource("muninn://stats", "Server Statistics",
			mcp.WithResourceDescription("Live store, cache, and audit recorder health."),
			mcp.WithMIMEType("application/json"),
		),
		s.readStatsResource,
	)

	return s
}

// ServeStdio serves the MCP protocol on stdin/stdout until ctx is
// cancelled or stdin reaches EOF.
func (s *Server) ServeStdio(ctx context.Context) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// resolveActor authenticates the configured credential when auth is
// enabled. The second return is a ready error result when resolution
// fails.
func (s *Server) resolveActor(ctx context.Context) (*models.User, *mcp.CallToolResult) {
	if !s.opts.AuthEnabled {
		return nil, nil
	}
	u, err := s.deps.Auth.Authenticate(ctx, s.opts.APIKey)
	if err != nil {
		return nil, errResult(err)
	}
	if u == nil {
		return nil, errResult(apperr.New(apperr.KindAuthentication, "invalid or missing API key"))
	}
	return u, nil
}

func actorID(u *models.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}

// logCall records the tool invocation before dispatch.
func (s *Server) logCall(u *models.User, tool string, req mcp.CallToolRequest) {
	if !s.opts.AuditToolCalls || s.deps.Recorder == nil {
		return
	}
	s.deps.Recorder.LogToolCall(actorID(u), tool, req.GetArguments())
}

// errResult converts a classified error into a structured tool failure.
func errResult(err error) *mcp.CallToolResult {
	payload, _ := json.Marshal(map[string]any{
		"error": map[string]string{
			"code":    string(apperr.KindOf(err)),
			"message": err.Error(),
		},
	})
	return mcp.NewToolResultError(string(payload))
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

// denyUnless returns an error result when the actor lacks the permission.
// With auth disabled every check passes.
func (s *Server) denyUnless(ctx context.Context, u *models.User, collectionID string, action models.Action) *mcp.CallToolResult {
	if !s.opts.AuthEnabled {
		return nil
	}
	if !s.deps.Auth.HasPermission(ctx, u, collectionID, action) {
		return errResult(apperr.New(apperr.KindPermissionDenied, "%s access to collection %s denied", action, collectionID))
	}
	return nil
}

func (s *Server) searchContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	u, fail := s.resolveActor(ctx)
	if fail != nil {
		return fail, nil
	}
	s.logCall(u, "search_context", req)

	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in := searchInput{
		Query:         query,
		SearchType:    argString(req, "search_type", search.TypeHybrid),
		CollectionIDs: argStringSlice(req, "collection_ids"),
		Tags:          argStringSlice(req, "tags"),
		Limit:         argInt(req, "limit", 10),
	}
	if err := in.Validate(); err != nil {
		return errResult(apperr.Wrap(apperr.KindValidation, err, err.Error())), nil
	}
	for _, cid := range in.CollectionIDs {
		if fail := s.denyUnless(ctx, u, cid, models.ActionRead); fail != nil {
			return fail, nil
		}
	}

	results, err := s.deps.Search.Search(ctx, actorID(u), search.Request{
		Query:         in.Query,
		Type:          in.SearchType,
		CollectionIDs: in.CollectionIDs,
		Tags:          in.Tags,
		Limit:         in.Limit,
	})
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(map[string]any{"results": results, "count": len(results)}), nil
}

func (s *Server) getContextItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	u, fail := s.resolveActor(ctx)
	if fail != nil {
		return fail, nil
	}
	s.logCall(u, "get_context_item", req)

	itemID, err := req.RequireString("item_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	includeVersions := argBool(req, "include_versions", false)

	item, err := s.deps.Repo.GetItem(ctx, itemID, includeVersions)
	if err != nil {
		return errResult(err), nil
	}
	if fail := s.denyUnless(ctx, u, item.CollectionID, models.ActionRead); fail != nil {
		return fail, nil
	}
	return jsonResult(item), nil
}

func (s *Server) createContextItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	u, fail := s.resolveActor(ctx)
	if fail != nil {
		return fail, nil
	}
	s.logCall(u, "create_context_item", req)

	in := createItemInput{
		CollectionID: argString(req, "collection_id", ""),
		Title:        argString(req, "title", ""),
		Content:      argString(req, "content", ""),
		ContentType:  argString(req, "content_type", "text/plain"),
		SourceURL:    argString(req, "source_url", ""),
		SourceType:   argString(req, "source_type", string(models.SourceManual)),
		Tags:         argStringSlice(req, "tags"),
		Metadata:     argMap(req, "metadata"),
	}
	if err := in.Validate(); err != nil {
		return errResult(apperr.Wrap(apperr.KindValidation, err, err.Error())), nil
	}
	if fail := s.denyUnless(ctx, u, in.CollectionID, models.ActionWrite); fail != nil {
		return fail, nil
	}

	item, err := s.deps.Repo.CreateItem(ctx, actorID(u), repo.CreateItemParams{
		CollectionID: in.CollectionID,
		Title:        in.Title,
		Content:      in.Content,
		ContentType:  in.ContentType,
		SourceURL:    in.SourceURL,
		SourceType:   models.SourceType(in.SourceType),
		Tags:         in.Tags,
		Metadata:     in.Metadata,
	})
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(item), nil
}

func (s *Server) updateContextItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	u, fail := s.resolveActor(ctx)
	if fail != nil {
		return fail, nil
	}
	s.logCall(u, "update_context_item", req)

	itemID, err := req.RequireString("item_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in := updateItemInput{
		ItemID:        itemID,
		Title:         optionalString(req, "title"),
		Content:       optionalString(req, "content"),
		Tags:          argStringSlice(req, "tags"),
		Metadata:      argMap(req, "metadata"),
		ChangeSummary: argString(req, "change_summary", ""),
	}
	if err := in.Validate(); err != nil {
		return errResult(apperr.Wrap(apperr.KindValidation, err, err.Error())), nil
	}

	current, err := s.deps.Repo.GetItem(ctx, itemID, false)
	if err != nil {
		return errResult(err), nil
	}
	if fail := s.denyUnless(ctx, u, current.CollectionID, models.ActionWrite); fail != nil {
		return fail, nil
	}

	item, err := s.deps.Repo.UpdateItem(ctx, actorID(u), itemID, repo.UpdateItemParams{
		Title:         in.Title,
		Content:       in.Content,
		Tags:          in.Tags,
		Metadata:      in.Metadata,
		ChangeSummary: in.ChangeSummary,
	})
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(item), nil
}

func (s *Server) listCollections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	u, fail := s.resolveActor(ctx)
	if fail != nil {
		return fail, nil
	}
	s.logCall(u, "list_collections", req)

	collections, err := s.deps.Repo.ListCollections(ctx, actorID(u), repo.CollectionFilters{
		Tags:          argStringSlice(req, "tags"),
		IncludePublic: argBool(req, "include_public", true),
	}, argInt(req, "limit", 50), argInt(req, "offset", 0))
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(map[string]any{"collections": collections, "count": len(collections)}), nil
}

func (s *Server) createCollection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	u, fail := s.resolveActor(ctx)
	if fail != nil {
		return fail, nil
	}
	s.logCall(u, "create_collection", req)

	in := createCollectionInput{
		Name:        argString(req, "name", ""),
		Description: argString(req, "description", ""),
		IsPublic:    argBool(req, "is_public", false),
		Tags:        argStringSlice(req, "tags"),
		Metadata:    argMap(req, "metadata"),
	}
	if err := in.Validate(); err != nil {
		return errResult(apperr.Wrap(apperr.KindValidation, err, err.Error())), nil
	}
	if s.opts.AuthEnabled && u.Role == models.RoleReadonly {
		return errResult(apperr.New(apperr.KindPermissionDenied, "readonly users cannot create collections")), nil
	}

	c, err := s.deps.Repo.CreateCollection(ctx, actorID(u), in.Name, in.Description, in.IsPublic, in.Tags, in.Metadata)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(c), nil
}

func (s *Server) getAnalytics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	u, fail := s.resolveActor(ctx)
	if fail != nil {
		return fail, nil
	}
	s.logCall(u, "get_analytics", req)

	in := analyticsInput{
		Type:          argString(req, "type", audit.AnalyticsUsage),
		StartDate:     argString(req, "start_date", ""),
		EndDate:       argString(req, "end_date", ""),
		CollectionIDs: argStringSlice(req, "collection_ids"),
	}
	if err := in.Validate(); err != nil {
		return errResult(apperr.Wrap(apperr.KindValidation, err, err.Error())), nil
	}

	areq := audit.AnalyticsRequest{Type: in.Type, CollectionIDs: in.CollectionIDs}
	if in.StartDate != "" {
		t, _ := time.Parse(time.RFC3339, in.StartDate)
		areq.Start = &t
	}
	if in.EndDate != "" {
		t, _ := time.Parse(time.RFC3339, in.EndDate)
		areq.End = &t
	}

	report, err := s.deps.Recorder.Analytics(ctx, areq)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(report), nil
}

func (s *Server) readSchemaResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "muninn://schema",
			MIMEType: "text/markdown",
			Text:     SchemaContract,
		},
	}, nil
}

func (s *Server) readCollectionsResource(ctx context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	u, fail := s.resolveActor(ctx)
	if fail != nil {
		return nil, apperr.New(apperr.KindAuthentication, "invalid or missing API key")
	}
	collections, err := s.deps.Repo.ListCollections(ctx, actorID(u), repo.CollectionFilters{IncludePublic: true}, 200, 0)
	if err != nil {
		return nil, err
	}
	out, _ := json.MarshalIndent(collections, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "muninn://collections",
			MIMEType: "application/json",
			Text:     string(out),
		},
	}, nil
}

func (s *Server) readStatsResource(ctx context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	stats := map[string]any{
		"store": s.deps.Store.Stats(),
		"cache": s.deps.Cache.Stats(),
	}
	if s.deps.Recorder != nil {
		stats["audit"] = s.deps.Recorder.Stats()
	}
	out, _ := json.MarshalIndent(stats, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "muninn://stats",
			MIMEType: "application/json",
			Text:     string(out),
		},
	}, nil
}
