package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/stockbook/stockbook/internal/schema"
)

const itemColumns = `id, name, quantity, alias, mp, sp, unit, target, created_at, updated_at, synced, rev`

// CreateItem inserts a new item with synced = 0 and both timestamps set to
// now. It does not check for an existing item with the same name; the
// merge-on-name policy belongs to the caller (see FindItemByName).
//
// On success item.ID, CreatedAt, UpdatedAt and Rev are filled in.
func (q *queries) CreateItem(ctx context.Context, item *schema.Item) error {
	item.Quantity = schema.RoundQuantity(item.Quantity)
	if err := item.Validate(); err != nil {
		return fmt.Errorf("invalid item: %w", err)
	}

	now := q.now()
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO items (name, quantity, alias, mp, sp, unit, target, created_at, updated_at, synced, rev)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 1)`,
		item.Name,
		item.Quantity,
		item.Alias,
		item.MP,
		item.SP,
		item.Unit,
		nullFloat(item.Target),
		schema.FormatTime(now),
		schema.FormatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to insert item %q: %w", item.Name, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read item id: %w", err)
	}

	item.ID = id
	item.CreatedAt = now
	item.UpdatedAt = now
	item.Synced = false
	item.Rev = 1
	return nil
}

// UpdateItem overwrites every mutable field of the item with the given id,
// refreshes updated_at and marks the row unsynced.
// Returns ErrNotFound if no row has that id.
func (q *queries) UpdateItem(ctx context.Context, item *schema.Item) error {
	item.Quantity = schema.RoundQuantity(item.Quantity)
	if err := item.Validate(); err != nil {
		return fmt.Errorf("invalid item: %w", err)
	}

	now := q.now()
	res, err := q.q.ExecContext(ctx, `
		UPDATE items SET
			name = ?, quantity = ?, alias = ?, mp = ?, sp = ?, unit = ?, target = ?,
			updated_at = ?, synced = 0, rev = rev + 1
		WHERE id = ?`,
		item.Name,
		item.Quantity,
		item.Alias,
		item.MP,
		item.SP,
		item.Unit,
		nullFloat(item.Target),
		schema.FormatTime(now),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update item %d: %w", item.ID, err)
	}

	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("item %d: %w", item.ID, ErrNotFound)
	}

	item.UpdatedAt = now
	item.Synced = false
	item.Rev++
	return nil
}

// DeleteItem removes an item permanently. The deletion is local only; it is
// not propagated to the remote replica.
// Returns nil if the item doesn't exist (idempotent).
func (q *queries) DeleteItem(ctx context.Context, id int64) error {
	if _, err := q.q.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete item %d: %w", id, err)
	}
	return nil
}

// GetItems returns every item ordered by name.
func (q *queries) GetItems(ctx context.Context) ([]*schema.Item, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// SearchItems returns items whose name or alias contains text, ignoring
// case, ordered by name.
func (q *queries) SearchItems(ctx context.Context, text string) ([]*schema.Item, error) {
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(text))) + "%"

	rows, err := q.q.QueryContext(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE lower(name) LIKE ? ESCAPE '\' OR lower(alias) LIKE ? ESCAPE '\'
		ORDER BY name ASC, id ASC`,
		pattern, pattern,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search items: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// GetItemByID retrieves a single item. Returns ErrNotFound if it doesn't exist.
func (q *queries) GetItemByID(ctx context.Context, id int64) (*schema.Item, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	return item, err
}

// FindItemByName looks an item up by its normalized name.
// Returns ErrNotFound if none matches.
func (q *queries) FindItemByName(ctx context.Context, name string) (*schema.Item, error) {
	norm := schema.NormalizeName(name)
	row := q.q.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE name = ? ORDER BY id ASC LIMIT 1`, norm)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %q: %w", norm, ErrNotFound)
	}
	return item, err
}

// AdjustQuantity decrements an item's quantity by delta in a single
// statement and marks the row unsynced. A negative delta restocks. The
// result is rounded to the quantity precision, so selling the exact
// remaining amount leaves zero.
//
// The decrement only applies while the result stays >= 0, so quantity can
// never go negative: if the item exists but holds less than delta,
// ErrInsufficientStock is returned and nothing is written.
// Returns ErrNotFound if the item doesn't exist.
func (q *queries) AdjustQuantity(ctx context.Context, id int64, delta float64) error {
	delta = schema.RoundQuantity(delta)
	res, err := q.q.ExecContext(ctx, `
		UPDATE items SET
			quantity = round(quantity - ?, 6), updated_at = ?, synced = 0, rev = rev + 1
		WHERE id = ? AND round(quantity - ?, 6) >= 0`,
		delta, schema.FormatTime(q.now()), id, delta,
	)
	if err != nil {
		return fmt.Errorf("failed to adjust quantity of item %d: %w", id, err)
	}

	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var have float64
	err = q.q.QueryRowContext(ctx, `SELECT quantity FROM items WHERE id = ?`, id).Scan(&have)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read quantity of item %d: %w", id, err)
	}
	return fmt.Errorf("item %d has %g, cannot remove %g: %w", id, have, delta, ErrInsufficientStock)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*schema.Item, error) {
	var (
		item                 schema.Item
		target               sql.NullFloat64
		createdAt, updatedAt string
		synced               int
	)

	err := row.Scan(
		&item.ID,
		&item.Name,
		&item.Quantity,
		&item.Alias,
		&item.MP,
		&item.SP,
		&item.Unit,
		&target,
		&createdAt,
		&updatedAt,
		&synced,
		&item.Rev,
	)
	if err != nil {
		return nil, err
	}

	item.Target = nullFloatPtr(target)
	item.Synced = synced == 1
	if t, err := schema.ParseTime(createdAt); err == nil {
		item.CreatedAt = t
	}
	if t, err := schema.ParseTime(updatedAt); err == nil {
		item.UpdatedAt = t
	}
	return &item, nil
}

func scanItems(rows *sql.Rows) ([]*schema.Item, error) {
	var items []*schema.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}
	return items, nil
}

// escapeLike escapes LIKE wildcards so user text matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
