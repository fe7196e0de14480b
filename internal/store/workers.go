package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ncruces/go-sqlite3"
	"github.com/stockbook/stockbook/internal/schema"
)

const workerColumns = `id, full_name, username, email, phone, password, role, synced, rev`

// CreateWorker inserts a worker with synced = 0. The password field must
// already hold a hash. Returns ErrDuplicateUsername if the username is taken.
func (q *queries) CreateWorker(ctx context.Context, w *schema.Worker) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("invalid worker: %w", err)
	}

	_, err := q.q.ExecContext(ctx, `
		INSERT INTO users (id, full_name, username, email, phone, password, role, synced, rev)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, 1)`,
		w.ID, w.FullName, w.Username, w.Email, w.Phone, w.Password, string(w.Role),
	)
	if errors.Is(err, sqlite3.CONSTRAINT_UNIQUE) || errors.Is(err, sqlite3.CONSTRAINT_PRIMARYKEY) {
		return fmt.Errorf("worker %q: %w", w.Username, ErrDuplicateUsername)
	}
	if err != nil {
		return fmt.Errorf("failed to insert worker %q: %w", w.Username, err)
	}

	w.Synced = false
	w.Rev = 1
	return nil
}

// UpdateWorker overwrites a worker's profile fields and marks it unsynced.
// Returns ErrNotFound if no worker has that id.
func (q *queries) UpdateWorker(ctx context.Context, w *schema.Worker) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("invalid worker: %w", err)
	}

	res, err := q.q.ExecContext(ctx, `
		UPDATE users SET
			full_name = ?, username = ?, email = ?, phone = ?, password = ?, role = ?,
			synced = 0, rev = rev + 1
		WHERE id = ?`,
		w.FullName, w.Username, w.Email, w.Phone, w.Password, string(w.Role), w.ID,
	)
	if errors.Is(err, sqlite3.CONSTRAINT_UNIQUE) {
		return fmt.Errorf("worker %q: %w", w.Username, ErrDuplicateUsername)
	}
	if err != nil {
		return fmt.Errorf("failed to update worker %s: %w", w.ID, err)
	}

	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("worker %s: %w", w.ID, ErrNotFound)
	}
	w.Synced = false
	w.Rev++
	return nil
}

// GetWorkerByUsername retrieves a worker. Returns ErrNotFound if none matches.
func (q *queries) GetWorkerByUsername(ctx context.Context, username string) (*schema.Worker, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT `+workerColumns+` FROM users WHERE username = ?`, strings.TrimSpace(username))
	w, err := scanWorker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("worker %q: %w", username, ErrNotFound)
	}
	return w, err
}

// ListWorkers returns every worker ordered by username.
func (q *queries) ListWorkers(ctx context.Context) ([]*schema.Worker, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+workerColumns+` FROM users ORDER BY username ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}
	defer rows.Close()

	var workers []*schema.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan worker: %w", err)
		}
		workers = append(workers, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workers: %w", err)
	}
	return workers, nil
}

func scanWorker(row rowScanner) (*schema.Worker, error) {
	var (
		w      schema.Worker
		role   string
		synced int
	)
	err := row.Scan(
		&w.ID,
		&w.FullName,
		&w.Username,
		&w.Email,
		&w.Phone,
		&w.Password,
		&role,
		&synced,
		&w.Rev,
	)
	if err != nil {
		return nil, err
	}
	w.Role = schema.Role(role)
	w.Synced = synced == 1
	return &w, nil
}
