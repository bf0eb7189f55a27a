// Package models defines the domain types for Muninn.
package models

import "time"

// Role is a user's global role.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleUser     Role = "user"
	RoleReadonly Role = "readonly"
)

// PermissionLevel is the level of an explicit collection grant.
type PermissionLevel string

const (
	PermissionRead  PermissionLevel = "read"
	PermissionWrite PermissionLevel = "write"
	PermissionAdmin PermissionLevel = "admin"
)

// Action is an operation checked against permissions.
type Action string

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
	ActionAdmin Action = "admin"
)

// SourceType records where an item's content came from.
type SourceType string

const (
	SourceFile   SourceType = "file"
	SourceURL    SourceType = "url"
	SourceAPI    SourceType = "api"
	SourceManual SourceType = "manual"
)

// User is a registered identity. Users are never hard-deleted; IsActive
// is cleared instead.
type User struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	APIKeyHash     string     `json:"-"`
	Role           Role       `json:"role"`
	IsActive       bool       `json:"is_active"`
	FailedAttempts int        `json:"-"`
	LockedUntil    *time.Time `json:"-"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Collection is a named, owned grouping of context items.
type Collection struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	OwnerID     string         `json:"owner_id"`
	IsPublic    bool           `json:"is_public"`
	Tags        []string       `json:"tags"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	ItemCount   int            `json:"item_count"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// PermissionGrant is an explicit (collection, user, level) access record.
// At most one grant exists per (collection, user) pair.
type PermissionGrant struct {
	CollectionID string          `json:"collection_id"`
	UserID       string          `json:"user_id"`
	Level        PermissionLevel `json:"level"`
	GrantedAt    time.Time       `json:"granted_at"`
}

// ContextItem is a versioned unit of stored text content. An item belongs
// to exactly one collection for its lifetime.
type ContextItem struct {
	ID           string         `json:"id"`
	CollectionID string         `json:"collection_id"`
	Title        string         `json:"title"`
	Content      string         `json:"content"`
	ContentType  string         `json:"content_type"`
	SourceURL    string         `json:"source_url,omitempty"`
	SourceType   SourceType     `json:"source_type"`
	ContentHash  string         `json:"content_hash"`
	Size         int64          `json:"size"`
	Tags         []string       `json:"tags"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Version      int            `json:"version"`
	IsActive     bool           `json:"is_active"`
	CreatedBy    string         `json:"created_by"`
	UpdatedBy    string         `json:"updated_by"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Versions     []ItemVersion  `json:"versions,omitempty"`
}

// ItemVersion is an immutable snapshot of an item at one version number.
// Version numbers per item are contiguous starting at 1.
type ItemVersion struct {
	ItemID        string         `json:"item_id"`
	Version       int            `json:"version"`
	Title         string         `json:"title"`
	Content       string         `json:"content"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	ChangeSummary string         `json:"change_summary,omitempty"`
	CreatedBy     string         `json:"created_by"`
	CreatedAt     time.Time      `json:"created_at"`
}

// AuditEntry is an append-only record of one action.
type AuditEntry struct {
	ID           string         `json:"id"`
	ActorID      string         `json:"actor_id,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	OldValue     map[string]any `json:"old_value,omitempty"`
	NewValue     map[string]any `json:"new_value,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// SearchAnalyticsEntry is an append-only record of one search call.
type SearchAnalyticsEntry struct {
	ID            string    `json:"id"`
	ActorID       string    `json:"actor_id,omitempty"`
	Query         string    `json:"query"`
	SearchType    string    `json:"search_type"`
	ResultCount   int       `json:"result_count"`
	ExecutionMS   int64     `json:"execution_ms"`
	CollectionIDs []string  `json:"collection_ids,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
