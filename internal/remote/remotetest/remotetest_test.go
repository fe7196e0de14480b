package remotetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stockbook/stockbook/internal/remote"
)

// TestStore_UpsertSelect tests replace-by-id semantics and filters.
func TestStore_UpsertSelect(t *testing.T) {
	s := New()
	ctx := context.Background()

	rows := []remote.Row{
		{"id": int64(2), "name": "rice", "quantity": 4.0},
		{"id": int64(1), "name": "sugar", "quantity": 10.0},
	}
	if err := s.Upsert(ctx, "items", rows); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := s.Upsert(ctx, "items", []remote.Row{{"id": int64(1), "name": "sugar", "quantity": 7.0}}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got := s.Rows("items")
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0]["quantity"] != 7.0 {
		t.Errorf("expected sugar quantity 7, got %v", got[0]["quantity"])
	}

	found, err := s.Select(ctx, "items", remote.Filter{Column: "name", Op: remote.OpLike, Value: "ri%"})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(found) != 1 || found[0]["name"] != "rice" {
		t.Errorf("expected rice, got %v", found)
	}
	if s.UpsertCalls("items") != 2 {
		t.Errorf("expected 2 upsert calls, got %d", s.UpsertCalls("items"))
	}
}

// TestStore_FailTable tests injected failures.
func TestStore_FailTable(t *testing.T) {
	s := New()
	boom := errors.New("boom")
	s.FailTable("sales", boom)

	err := s.Upsert(context.Background(), "sales", []remote.Row{{"id": int64(1)}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if len(s.Rows("sales")) != 0 {
		t.Error("failed upsert must not store rows")
	}

	s.FailTable("sales", nil)
	if err := s.Upsert(context.Background(), "sales", []remote.Row{{"id": int64(1)}}); err != nil {
		t.Errorf("expected success after clearing failure, got %v", err)
	}
}

// TestStore_UpdateDelete tests filtered writes.
func TestStore_UpdateDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	_ = s.Upsert(ctx, "workers", []remote.Row{{"id": "a", "username": "amy"}, {"id": "b", "username": "bob"}})

	n, err := s.Update(ctx, "workers", remote.Row{"role": "admin"}, remote.Eq("username", "bob"))
	if err != nil || n != 1 {
		t.Fatalf("Update = %d, %v", n, err)
	}
	n, err = s.Delete(ctx, "workers", remote.Eq("id", "a"))
	if err != nil || n != 1 {
		t.Fatalf("Delete = %d, %v", n, err)
	}

	rows := s.Rows("workers")
	if len(rows) != 1 || rows[0]["role"] != "admin" {
		t.Errorf("unexpected rows: %v", rows)
	}
	if _, err := s.Delete(ctx, "workers"); !errors.Is(err, remote.ErrInvalidFilter) {
		t.Errorf("expected ErrInvalidFilter, got %v", err)
	}
}
