package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stockbook/stockbook/internal/schema"
)

const saleColumns = `id, name, mp, sp, qty, subtotal, created_at, synced, rev`

// RecordSale inserts a sale line with synced = 0. Sales are immutable; there
// is no update operation.
//
// On success sale.ID, CreatedAt and Rev are filled in.
func (q *queries) RecordSale(ctx context.Context, sale *schema.Sale) error {
	if err := sale.Validate(); err != nil {
		return fmt.Errorf("invalid sale: %w", err)
	}

	now := q.now()
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO sales (name, mp, sp, qty, subtotal, created_at, synced, rev)
		VALUES (?, ?, ?, ?, ?, ?, 0, 1)`,
		sale.Name, sale.MP, sale.SP, sale.Qty, sale.Subtotal, schema.FormatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sale of %q: %w", sale.Name, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read sale id: %w", err)
	}

	sale.ID = id
	sale.CreatedAt = now
	sale.Synced = false
	sale.Rev = 1
	return nil
}

// GetSaleByID retrieves a single sale. Returns ErrNotFound if it doesn't exist.
func (q *queries) GetSaleByID(ctx context.Context, id int64) (*schema.Sale, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = ?`, id)
	sale, err := scanSale(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sale %d: %w", id, ErrNotFound)
	}
	return sale, err
}

// SalesFilter configures the ListSales query.
type SalesFilter struct {
	// From includes sales at or after this instant (zero = no lower bound)
	From time.Time
	// To includes sales strictly before this instant (zero = no upper bound)
	To time.Time
	// Name filters by exact item name (empty = all items)
	Name string
}

// ListSales returns sales matching the filter, oldest first.
func (q *queries) ListSales(ctx context.Context, filter SalesFilter) ([]*schema.Sale, error) {
	var conditions []string
	var args []any

	if !filter.From.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, schema.FormatTime(filter.From))
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "created_at < ?")
		args = append(args, schema.FormatTime(filter.To))
	}
	if filter.Name != "" {
		conditions = append(conditions, "name = ?")
		args = append(args, schema.NormalizeName(filter.Name))
	}

	query := `SELECT ` + saleColumns + ` FROM sales`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	defer rows.Close()

	var sales []*schema.Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sales: %w", err)
	}
	return sales, nil
}

func scanSale(row rowScanner) (*schema.Sale, error) {
	var (
		sale      schema.Sale
		createdAt string
		synced    int
	)
	err := row.Scan(
		&sale.ID,
		&sale.Name,
		&sale.MP,
		&sale.SP,
		&sale.Qty,
		&sale.Subtotal,
		&createdAt,
		&synced,
		&sale.Rev,
	)
	if err != nil {
		return nil, err
	}

	sale.Synced = synced == 1
	if t, err := schema.ParseTime(createdAt); err == nil {
		sale.CreatedAt = t
	}
	return &sale, nil
}
