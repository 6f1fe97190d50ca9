package store

import (
	"context"

	"github.com/roach88/rehook/internal/ir"
)

// Backend is the persistence contract the host drives. *Store implements it
// over SQLite and boltstore.Store over bbolt; storetest checks both.
type Backend interface {
	CreateInstance(ctx context.Context, inst Instance) error
	GetInstance(ctx context.Context, id string) (Instance, error)
	ListInstances(ctx context.Context, app string) ([]Instance, error)
	DeleteInstance(ctx context.Context, id string) error
	LoadSnapshot(ctx context.Context, id string) (ir.Snapshot, error)
	Commit(ctx context.Context, id string, delta ir.Delta, entry CycleEntry) error
	ReadCycles(ctx context.Context, id string) ([]CycleEntry, error)
	Close() error
}

var _ Backend = (*Store)(nil)
