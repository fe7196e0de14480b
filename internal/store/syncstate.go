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

// FindUnsynced returns every row of the entity with synced = 0, in id order.
func (q *queries) FindUnsynced(ctx context.Context, entity schema.Entity) ([]schema.Record, error) {
	tbl, err := table(entity)
	if err != nil {
		return nil, err
	}

	var columns string
	switch entity {
	case schema.EntityItem:
		columns = itemColumns
	case schema.EntitySale:
		columns = saleColumns
	case schema.EntityWorker:
		columns = workerColumns
	}

	rows, err := q.q.QueryContext(ctx,
		`SELECT `+columns+` FROM `+tbl+` WHERE synced = 0 ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsynced %s: %w", tbl, err)
	}
	defer rows.Close()

	var records []schema.Record
	for rows.Next() {
		var (
			rec     schema.Record
			scanErr error
		)
		switch entity {
		case schema.EntityItem:
			rec, scanErr = scanItem(rows)
		case schema.EntitySale:
			rec, scanErr = scanSale(rows)
		case schema.EntityWorker:
			rec, scanErr = scanWorker(rows)
		}
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan unsynced %s row: %w", tbl, scanErr)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unsynced %s: %w", tbl, err)
	}
	return records, nil
}

// MarkSynced sets synced = 1 for a single row, but only while the row is
// still at revision rev. A row edited after it was read for pushing keeps
// synced = 0 and goes out with the next cycle.
//
// Returns true if the row was marked.
func (q *queries) MarkSynced(ctx context.Context, entity schema.Entity, id any, rev int64) (bool, error) {
	tbl, err := table(entity)
	if err != nil {
		return false, err
	}

	res, err := q.q.ExecContext(ctx,
		`UPDATE `+tbl+` SET synced = 1 WHERE id = ? AND rev = ?`, id, rev)
	if err != nil {
		return false, fmt.Errorf("failed to mark %s %v synced: %w", tbl, id, err)
	}

	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UnsyncedCounts returns the number of pending rows per entity.
func (q *queries) UnsyncedCounts(ctx context.Context) (map[schema.Entity]int, error) {
	counts := make(map[schema.Entity]int, len(schema.Entities))
	for _, e := range schema.Entities {
		var n int
		err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+string(e)+` WHERE synced = 0`).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("failed to count unsynced %s: %w", e, err)
		}
		counts[e] = n
	}
	return counts, nil
}

// PendingFingerprint summarizes the unsynced rows of every entity. It
// changes whenever a row becomes pending or a pending row is edited, and
// stays the same while nothing new needs pushing.
func (q *queries) PendingFingerprint(ctx context.Context) (string, error) {
	parts := make([]string, 0, len(schema.Entities))
	for _, e := range schema.Entities {
		var count, revs int64
		var maxRowID sql.NullInt64
		err := q.q.QueryRowContext(ctx,
			`SELECT COUNT(*), COALESCE(SUM(rev), 0), MAX(rowid) FROM `+string(e)+` WHERE synced = 0`,
		).Scan(&count, &revs, &maxRowID)
		if err != nil {
			return "", fmt.Errorf("failed to fingerprint %s: %w", e, err)
		}
		parts = append(parts, fmt.Sprintf("%s:%d/%d/%d", e, count, revs, maxRowID.Int64))
	}
	return strings.Join(parts, ";"), nil
}

// SyncRun is one recorded sync cycle.
type SyncRun struct {
	ID            int64
	StartedAt     time.Time
	FinishedAt    time.Time
	Online        bool
	ItemsPushed   int
	SalesPushed   int
	WorkersPushed int
	Error         string
}

// RecordSyncRun appends a cycle to the sync history.
func (q *queries) RecordSyncRun(ctx context.Context, run *SyncRun) error {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO sync_runs (started_at, finished_at, online, items_pushed, sales_pushed, workers_pushed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		schema.FormatTime(run.StartedAt),
		schema.FormatTime(run.FinishedAt),
		boolToInt(run.Online),
		run.ItemsPushed,
		run.SalesPushed,
		run.WorkersPushed,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record sync run: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		run.ID = id
	}
	return nil
}

// LastSyncRun returns the most recent cycle. If onlineOnly is set, cycles
// skipped for lack of connectivity are ignored.
// Returns ErrNotFound if there is none.
func (q *queries) LastSyncRun(ctx context.Context, onlineOnly bool) (*SyncRun, error) {
	query := `SELECT id, started_at, finished_at, online, items_pushed, sales_pushed, workers_pushed, error FROM sync_runs`
	if onlineOnly {
		query += ` WHERE online = 1`
	}
	query += ` ORDER BY id DESC LIMIT 1`

	var (
		run               SyncRun
		started, finished string
		online            int
	)
	err := q.q.QueryRowContext(ctx, query).Scan(
		&run.ID, &started, &finished, &online,
		&run.ItemsPushed, &run.SalesPushed, &run.WorkersPushed, &run.Error,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sync run: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last sync run: %w", err)
	}

	run.Online = online == 1
	if t, err := schema.ParseTime(started); err == nil {
		run.StartedAt = t
	}
	if t, err := schema.ParseTime(finished); err == nil {
		run.FinishedAt = t
	}
	return &run, nil
}
