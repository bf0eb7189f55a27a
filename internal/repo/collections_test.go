package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/starford/muninn/internal/apperr"
	"github.com/starford/muninn/internal/cache"
	"github.com/starford/muninn/internal/models"
	"github.com/starford/muninn/internal/testutil"
)

func TestCreateCollection(t *testing.T) {
	db := testutil.TestStore(t)
	owner := testutil.SeedUser(t, db, "owner", models.RoleUser)
	r := New(db, cache.Disabled{}, nil, testutil.Logger())
	ctx := context.Background()

	c, err := r.CreateCollection(ctx, owner.ID, "docs", "project docs", true, []string{"work"}, nil)
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if c.Name != "docs" || !c.IsPublic || c.OwnerID != owner.ID {
		t.Errorf("collection = %+v", c)
	}
	if c.ItemCount != 0 {
		t.Errorf("item count = %d, want 0", c.ItemCount)
	}
}

func TestCreateCollectionDuplicateName(t *testing.T) {
	db := testutil.TestStore(t)
	owner := testutil.SeedUser(t, db, "owner", models.RoleUser)
	other := testutil.SeedUser(t, db, "other", models.RoleUser)
	r := New(db, cache.Disabled{}, nil, testutil.Logger())
	ctx := context.Background()

	if _, err := r.CreateCollection(ctx, owner.ID, "docs", "", false, nil, nil); err != nil {
		t.Fatal(err)
	}
	_, err := r.CreateCollection(ctx, owner.ID, "docs", "", false, nil, nil)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("same-owner duplicate err = %v, want validation_error", err)
	}

	// Uniqueness is per owner, not global.
	if _, err := r.CreateCollection(ctx, other.ID, "docs", "", false, nil, nil); err != nil {
		t.Fatalf("other owner with same name: %v", err)
	}
}

func TestGetCollectionMissing(t *testing.T) {
	db := testutil.TestStore(t)
	r := New(db, cache.Disabled{}, nil, testutil.Logger())
	if _, err := r.GetCollection(context.Background(), "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want not_found", err)
	}
}

func TestCollectionItemCount(t *testing.T) {
	r, _, owner, coll := testRepo(t)
	ctx := context.Background()

	createItem(t, r, owner, coll, "A", "count a")
	b := createItem(t, r, owner, coll, "B", "count b")
	if err := r.DeleteItem(ctx, owner, b.ID); err != nil {
		t.Fatal(err)
	}

	c, err := r.GetCollection(ctx, coll)
	if err != nil {
		t.Fatal(err)
	}
	if c.ItemCount != 1 {
		t.Errorf("item count = %d, want 1 (inactive items excluded)", c.ItemCount)
	}
}

func TestListCollectionsVisibility(t *testing.T) {
	db := testutil.TestStore(t)
	owner := testutil.SeedUser(t, db, "owner", models.RoleUser)
	viewer := testutil.SeedUser(t, db, "viewer", models.RoleUser)
	r := New(db, cache.Disabled{}, nil, testutil.Logger())
	ctx := context.Background()

	if _, err := r.CreateCollection(ctx, owner.ID, "private", "", false, nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := r.CreateCollection(ctx, owner.ID, "public", "", true, nil, nil); err != nil {
		t.Fatal(err)
	}
	granted, err := r.CreateCollection(ctx, owner.ID, "granted", "", false, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(ctx, `INSERT INTO permissions (collection_id, user_id, level) VALUES (?, ?, 'read')`,
		granted.ID, viewer.ID); err != nil {
		t.Fatal(err)
	}

	got, err := r.ListCollections(ctx, viewer.ID, CollectionFilters{IncludePublic: true}, 50, 0)
	if err != nil {
		t.Fatalf("ListCollections: %v", err)
	}
	names := map[string]bool{}
	for _, c := range got {
		names[c.Name] = true
	}
	if !names["public"] || !names["granted"] {
		t.Errorf("visible = %v, want public and granted", names)
	}
	if names["private"] {
		t.Error("private collection leaked to non-owner")
	}

	// Without public collections the viewer only sees the grant.
	got, err = r.ListCollections(ctx, viewer.ID, CollectionFilters{}, 50, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "granted" {
		t.Errorf("visible without public = %+v", got)
	}
}

func TestListCollectionsTagFilter(t *testing.T) {
	db := testutil.TestStore(t)
	owner := testutil.SeedUser(t, db, "owner", models.RoleUser)
	r := New(db, cache.Disabled{}, nil, testutil.Logger())
	ctx := context.Background()

	if _, err := r.CreateCollection(ctx, owner.ID, "a", "", false, []string{"work", "go"}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := r.CreateCollection(ctx, owner.ID, "b", "", false, []string{"work"}, nil); err != nil {
		t.Fatal(err)
	}

	got, err := r.ListCollections(ctx, owner.ID, CollectionFilters{Tags: []string{"work", "go"}}, 50, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "a" {
		t.Errorf("tag intersection = %+v, want only a", got)
	}
}
