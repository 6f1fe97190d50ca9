package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateInstance inserts a new instance with seq 0.
// Returns ErrInstanceExists if the id is taken.
func (s *Store) CreateInstance(ctx context.Context, inst Instance) error {
	if inst.ID == "" || inst.App == "" {
		return fmt.Errorf("create instance: id and app are required")
	}
	propsJSON, err := marshalProps(inst.Props)
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO instances (id, app, props, seq)
		VALUES (?, ?, ?, 0)
		ON CONFLICT(id) DO NOTHING
	`, inst.ID, inst.App, propsJSON)
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("create instance %s: %w", inst.ID, ErrInstanceExists)
	}
	return nil
}

// GetInstance returns the instance with the given id or ErrNotFound.
func (s *Store) GetInstance(ctx context.Context, id string) (Instance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, app, props, seq FROM instances WHERE id = ?
	`, id)
	inst, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Instance{}, fmt.Errorf("get instance %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Instance{}, fmt.Errorf("get instance %s: %w", id, err)
	}
	return inst, nil
}

// ListInstances returns instances ordered by id. An empty app lists all.
func (s *Store) ListInstances(ctx context.Context, app string) ([]Instance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, app, props, seq FROM instances
		WHERE ? = '' OR app = ?
		ORDER BY id ASC COLLATE BINARY
	`, app, app)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var out []Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("list instances: %w", err)
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	return out, nil
}

// DeleteInstance removes the instance with its state and cycle log.
func (s *Store) DeleteInstance(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete instance %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete instance %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete instance %s: %w", id, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInstance(row scanner) (Instance, error) {
	var (
		inst      Instance
		propsJSON string
	)
	if err := row.Scan(&inst.ID, &inst.App, &propsJSON, &inst.Seq); err != nil {
		return Instance{}, err
	}
	props, err := unmarshalProps(propsJSON)
	if err != nil {
		return Instance{}, err
	}
	inst.Props = props
	return inst, nil
}
