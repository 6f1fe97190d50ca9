package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/rehook/internal/ir"
)

// LoadSnapshot returns the instance's current hook states.
// Returns ErrNotFound if the instance does not exist.
func (s *Store) LoadSnapshot(ctx context.Context, id string) (ir.Snapshot, error) {
	if _, err := s.GetInstance(ctx, id); err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT hook_id, state FROM hook_states
		WHERE instance_id = ?
		ORDER BY hook_id ASC COLLATE BINARY
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", id, err)
	}
	defer rows.Close()

	snap := ir.Snapshot{}
	for rows.Next() {
		var hookID, stateJSON string
		if err := rows.Scan(&hookID, &stateJSON); err != nil {
			return nil, fmt.Errorf("load snapshot %s: %w", id, err)
		}
		st, err := unmarshalState(stateJSON)
		if err != nil {
			return nil, fmt.Errorf("load snapshot %s: hook %s: %w", id, hookID, err)
		}
		snap[ir.HookID(hookID)] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", id, err)
	}
	return snap, nil
}

// Commit persists one cycle atomically: delta is applied to hook_states,
// entry is appended to the cycle log and the instance's seq advances to
// entry.Seq.
//
// The instance must currently be at entry.Seq-1; otherwise Commit returns
// ErrSeqConflict and nothing is written.
func (s *Store) Commit(ctx context.Context, id string, delta ir.Delta, entry CycleEntry) error {
	requestJSON, err := marshalJSON(entry.Request)
	if err != nil {
		return fmt.Errorf("commit %s: marshal request: %w", id, err)
	}
	response := string(entry.Response)
	if response == "" {
		response = "null"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit %s: %w", id, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE instances SET seq = ? WHERE id = ? AND seq = ?
	`, entry.Seq, id, entry.Seq-1)
	if err != nil {
		return fmt.Errorf("commit %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("commit %s: %w", id, err)
	}
	if n == 0 {
		var seq int64
		err := tx.QueryRowContext(ctx, `SELECT seq FROM instances WHERE id = ?`, id).Scan(&seq)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("commit %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("commit %s: %w", id, err)
		}
		return fmt.Errorf("commit %s: at seq %d, cycle seq %d: %w", id, seq, entry.Seq, ErrSeqConflict)
	}

	for _, hookID := range delta.SetIDs() {
		stateJSON, err := marshalState(delta.Set[hookID])
		if err != nil {
			return fmt.Errorf("commit %s: hook %s: %w", id, hookID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO hook_states (instance_id, hook_id, state)
			VALUES (?, ?, ?)
			ON CONFLICT(instance_id, hook_id) DO UPDATE SET state = excluded.state
		`, id, string(hookID), stateJSON); err != nil {
			return fmt.Errorf("commit %s: hook %s: %w", id, hookID, err)
		}
	}
	for _, hookID := range delta.Removed {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM hook_states WHERE instance_id = ? AND hook_id = ?
		`, id, string(hookID)); err != nil {
			return fmt.Errorf("commit %s: remove %s: %w", id, hookID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cycles (instance_id, seq, request, response, state_digest)
		VALUES (?, ?, ?, ?, ?)
	`, id, entry.Seq, requestJSON, response, entry.StateDigest); err != nil {
		return fmt.Errorf("commit %s: append cycle: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", id, err)
	}
	return nil
}
