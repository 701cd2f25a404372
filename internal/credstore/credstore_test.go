package credstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return db
}

func TestPutAndGetByName(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	issued := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	rec := Record{Name: "chaty-web", ClientID: "abc123", IssuedAt: issued}
	if err := db.Put(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := db.GetByName(ctx, "chaty-web")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ClientID != "abc123" {
		t.Fatalf("unexpected client id: %s", got.ClientID)
	}
	if !got.IssuedAt.Equal(issued) {
		t.Fatalf("unexpected issued_at: %s", got.IssuedAt)
	}
}

func TestPutReplacesExistingRecord(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Put(ctx, Record{Name: "chaty-web", ClientID: "old", IssuedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := db.Put(ctx, Record{Name: "chaty-web", ClientID: "new", IssuedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetByName(ctx, "chaty-web")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ClientID != "new" {
		t.Fatalf("expected replacement, got %s", got.ClientID)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.GetByName(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Put(ctx, Record{Name: "chaty-web", ClientID: "abc", IssuedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := db.Delete(ctx, "chaty-web"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := db.Delete(ctx, "chaty-web"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := db.GetByName(ctx, "chaty-web"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
