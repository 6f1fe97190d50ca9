// Package boltstore implements store.Backend on a single bbolt file.
//
// Layout:
//
//	instances/<id>          JSON store.Instance
//	hooks/<id>/<hook id>    canonical ir.HookState
//	cycles/<id>/<seq>       JSON store.CycleEntry, seq as big-endian uint64
//
// Keys sort bytewise, so listing by id and reading the log by seq need no
// extra ordering.
package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/roach88/rehook/internal/ir"
	"github.com/roach88/rehook/internal/store"
)

const (
	bucketInstances = "instances"
	bucketHooks     = "hooks"
	bucketCycles    = "cycles"
)

var initDB = map[string]func(*bolt.Tx) error{
	"initialize instance table": func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketInstances))
		return err
	},
	"initialize hook state table": func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketHooks))
		return err
	},
	"initialize cycle log table": func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketCycles))
		return err
	},
}

// Store is a bbolt-backed store.Backend.
type Store struct {
	db *bolt.DB
}

var _ store.Backend = (*Store)(nil)

// Open creates or opens the database file at path and makes sure every
// bucket exists. It waits at most a second for the file lock.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for name, fn := range initDB {
			if err := fn(tx); err != nil {
				return fmt.Errorf("failed to %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database file.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateInstance implements store.Backend.
func (s *Store) CreateInstance(_ context.Context, inst store.Instance) error {
	if inst.ID == "" || inst.App == "" {
		return fmt.Errorf("create instance: id and app are required")
	}
	if inst.Props == nil {
		inst.Props = ir.Object{}
	}
	inst.Seq = 0
	data, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketInstances))
		if b.Get([]byte(inst.ID)) != nil {
			return fmt.Errorf("create instance %s: %w", inst.ID, store.ErrInstanceExists)
		}
		return b.Put([]byte(inst.ID), data)
	})
}

// GetInstance implements store.Backend.
func (s *Store) GetInstance(_ context.Context, id string) (store.Instance, error) {
	var inst store.Instance
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		inst, err = getInstance(tx, id)
		return err
	})
	if err != nil {
		return store.Instance{}, fmt.Errorf("get instance %s: %w", id, err)
	}
	return inst, nil
}

// ListInstances implements store.Backend.
func (s *Store) ListInstances(_ context.Context, app string) ([]store.Instance, error) {
	var out []store.Instance
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketInstances)).ForEach(func(k, v []byte) error {
			var inst store.Instance
			if err := json.Unmarshal(v, &inst); err != nil {
				return fmt.Errorf("instance %s: %w", k, err)
			}
			if app == "" || inst.App == app {
				out = append(out, inst)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	return out, nil
}

// DeleteInstance implements store.Backend.
func (s *Store) DeleteInstance(_ context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		key := []byte(id)
		b := tx.Bucket([]byte(bucketInstances))
		if b.Get(key) == nil {
			return fmt.Errorf("delete instance %s: %w", id, store.ErrNotFound)
		}
		if err := b.Delete(key); err != nil {
			return err
		}
		for _, name := range []string{bucketHooks, bucketCycles} {
			err := tx.Bucket([]byte(name)).DeleteBucket(key)
			if err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return fmt.Errorf("delete instance %s: %w", id, err)
			}
		}
		return nil
	})
}

// LoadSnapshot implements store.Backend.
func (s *Store) LoadSnapshot(_ context.Context, id string) (ir.Snapshot, error) {
	snap := ir.Snapshot{}
	err := s.db.View(func(tx *bolt.Tx) error {
		if _, err := getInstance(tx, id); err != nil {
			return err
		}
		hooks := tx.Bucket([]byte(bucketHooks)).Bucket([]byte(id))
		if hooks == nil {
			return nil
		}
		return hooks.ForEach(func(k, v []byte) error {
			var st ir.HookState
			if err := json.Unmarshal(v, &st); err != nil {
				return fmt.Errorf("hook %s: %w", k, err)
			}
			snap[ir.HookID(k)] = st
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", id, err)
	}
	return snap, nil
}

// Commit implements store.Backend. The whole commit is one bbolt
// transaction.
func (s *Store) Commit(_ context.Context, id string, delta ir.Delta, entry store.CycleEntry) error {
	if len(entry.Response) == 0 {
		entry.Response = json.RawMessage("null")
	}
	logged, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("commit %s: marshal cycle: %w", id, err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		inst, err := getInstance(tx, id)
		if err != nil {
			return err
		}
		if inst.Seq != entry.Seq-1 {
			return fmt.Errorf("at seq %d, cycle seq %d: %w", inst.Seq, entry.Seq, store.ErrSeqConflict)
		}

		key := []byte(id)
		hooks, err := tx.Bucket([]byte(bucketHooks)).CreateBucketIfNotExists(key)
		if err != nil {
			return err
		}
		for _, hookID := range delta.SetIDs() {
			data, err := delta.Set[hookID].Canonical()
			if err != nil {
				return fmt.Errorf("hook %s: %w", hookID, err)
			}
			if err := hooks.Put([]byte(hookID), data); err != nil {
				return err
			}
		}
		for _, hookID := range delta.Removed {
			if err := hooks.Delete([]byte(hookID)); err != nil {
				return err
			}
		}

		cycles, err := tx.Bucket([]byte(bucketCycles)).CreateBucketIfNotExists(key)
		if err != nil {
			return err
		}
		if err := cycles.Put(marshalSeq(entry.Seq), logged); err != nil {
			return err
		}

		inst.Seq = entry.Seq
		data, err := json.Marshal(inst)
		if err != nil {
			return err
		}
		return tx.Bucket([]byte(bucketInstances)).Put(key, data)
	})
	if err != nil {
		return fmt.Errorf("commit %s: %w", id, err)
	}
	return nil
}

// ReadCycles implements store.Backend.
func (s *Store) ReadCycles(_ context.Context, id string) ([]store.CycleEntry, error) {
	var out []store.CycleEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		if _, err := getInstance(tx, id); err != nil {
			return err
		}
		b := tx.Bucket([]byte(bucketCycles)).Bucket([]byte(id))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var entry store.CycleEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("seq %d: %w", unmarshalSeq(k), err)
			}
			out = append(out, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read cycles %s: %w", id, err)
	}
	return out, nil
}

func getInstance(tx *bolt.Tx, id string) (store.Instance, error) {
	v := tx.Bucket([]byte(bucketInstances)).Get([]byte(id))
	if v == nil {
		return store.Instance{}, store.ErrNotFound
	}
	var inst store.Instance
	if err := json.Unmarshal(v, &inst); err != nil {
		return store.Instance{}, err
	}
	if inst.Props == nil {
		inst.Props = ir.Object{}
	}
	return inst, nil
}

func marshalSeq(seq int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(seq))
	return b
}

func unmarshalSeq(key []byte) uint64 {
	return binary.BigEndian.Uint64(key)
}
