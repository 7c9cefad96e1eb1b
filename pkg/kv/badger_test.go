package kv_test

import (
	"context"
	"testing"

	"github.com/haivivi/playground/pkg/kv"
)

func newBadgerStore(t *testing.T) kv.Store {
	t.Helper()
	s, err := kv.NewBadger(kv.BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBadgerGetSetDelete(t *testing.T) {
	testGetSetDelete(t, newBadgerStore(t))
}

func TestBadgerRequiresDir(t *testing.T) {
	if _, err := kv.NewBadger(kv.BadgerOptions{}); err == nil {
		t.Fatal("expected error without Dir")
	}
}

func TestBadgerPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := kv.NewBadger(kv.BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	if err := kv.SetValue(ctx, s, kv.Key{"registry", "state"}, record{Name: "kept"}); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = kv.NewBadger(kv.BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := kv.GetValue[record](ctx, s, kv.Key{"registry", "state"})
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if got.Name != "kept" {
		t.Fatalf("Name = %q, want kept", got.Name)
	}
}
