package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// ReadCycles returns the instance's cycle log ordered by seq.
// Returns ErrNotFound if the instance does not exist.
func (s *Store) ReadCycles(ctx context.Context, id string) ([]CycleEntry, error) {
	if _, err := s.GetInstance(ctx, id); err != nil {
		return nil, fmt.Errorf("read cycles: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, request, response, state_digest FROM cycles
		WHERE instance_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("read cycles %s: %w", id, err)
	}
	defer rows.Close()

	var out []CycleEntry
	for rows.Next() {
		var (
			entry                 CycleEntry
			requestJSON, respJSON string
		)
		if err := rows.Scan(&entry.Seq, &requestJSON, &respJSON, &entry.StateDigest); err != nil {
			return nil, fmt.Errorf("read cycles %s: %w", id, err)
		}
		if err := json.Unmarshal([]byte(requestJSON), &entry.Request); err != nil {
			return nil, fmt.Errorf("read cycles %s: seq %d: request: %w", id, entry.Seq, err)
		}
		entry.Response = json.RawMessage(respJSON)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read cycles %s: %w", id, err)
	}
	return out, nil
}
