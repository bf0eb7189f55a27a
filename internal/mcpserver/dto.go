package mcpserver

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/muninn/internal/models"
	"github.com/starford/muninn/internal/search"
)

// Argument helpers over the raw tool-call payload. mcp-go surfaces
// arguments as map[string]any; these narrow them with defaults.

func argString(req mcp.CallToolRequest, key, def string) string {
	if v, ok := req.GetArguments()[key].(string); ok && v != "" {
		return v
	}
	return def
}

func argBool(req mcp.CallToolRequest, key string, def bool) bool {
	if v, ok := req.GetArguments()[key].(bool); ok {
		return v
	}
	return def
}

func argInt(req mcp.CallToolRequest, key string, def int) int {
	switch v := req.GetArguments()[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func argStringSlice(req mcp.CallToolRequest, key string) []string {
	raw, ok := req.GetArguments()[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func argMap(req mcp.CallToolRequest, key string) map[string]any {
	if v, ok := req.GetArguments()[key].(map[string]any); ok {
		return v
	}
	return nil
}

// optionalString returns a pointer only when the argument is present, so
// partial updates can distinguish "unset" from "empty".
func optionalString(req mcp.CallToolRequest, key string) *string {
	if v, ok := req.GetArguments()[key].(string); ok {
		return &v
	}
	return nil
}

// searchInput is the validated payload of search_context.
type searchInput struct {
	Query         string
	SearchType    string
	CollectionIDs []string
	Tags          []string
	Limit         int
}

func (in searchInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Query, validation.Required),
		validation.Field(&in.SearchType, validation.In(search.TypeFulltext, search.TypeSemantic, search.TypeHybrid)),
		validation.Field(&in.Limit, validation.Min(1), validation.Max(100)),
	)
}

// createItemInput is the validated payload of create_context_item.
type createItemInput struct {
	CollectionID string
	Title        string
	Content      string
	ContentType  string
	SourceURL    string
	SourceType   string
	Tags         []string
	Metadata     map[string]any
}

func (in createItemInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.CollectionID, validation.Required),
		validation.Field(&in.Title, validation.Required, validation.Length(1, 500)),
		validation.Field(&in.Content, validation.Required),
		validation.Field(&in.SourceType, validation.In(
			string(models.SourceFile), string(models.SourceURL),
			string(models.SourceAPI), string(models.SourceManual))),
	)
}

// updateItemInput is the validated payload of update_context_item.
type updateItemInput struct {
	ItemID        string
	Title         *string
	Content       *string
	Tags          []string
	Metadata      map[string]any
	ChangeSummary string
}

func (in updateItemInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.ItemID, validation.Required),
		validation.Field(&in.Title, validation.NilOrNotEmpty, validation.Length(0, 500)),
	)
}

// createCollectionInput is the validated payload of create_collection.
type createCollectionInput struct {
	Name        string
	Description string
	IsPublic    bool
	Tags        []string
	Metadata    map[string]any
}

func (in createCollectionInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(1, 255)),
	)
}

// analyticsInput is the validated payload of get_analytics.
type analyticsInput struct {
	Type          string
	StartDate     string
	EndDate       string
	CollectionIDs []string
}

func (in analyticsInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Type, validation.In("search", "usage", "performance")),
		validation.Field(&in.StartDate, validation.Date(time.RFC3339)),
		validation.Field(&in.EndDate, validation.Date(time.RFC3339)),
	)
}
