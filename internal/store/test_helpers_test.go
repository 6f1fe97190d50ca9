package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/rehook/internal/ir"
)

// createTestStore opens a fresh store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCreate(t *testing.T, s *Store, id, app string) {
	t.Helper()
	if err := s.CreateInstance(context.Background(), Instance{ID: id, App: app}); err != nil {
		t.Fatalf("CreateInstance(%s) failed: %v", id, err)
	}
}

func stateOf(v ir.Value) ir.HookState {
	return ir.HookState{Kind: ir.KindState, Value: v}
}
