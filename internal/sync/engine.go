package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	gosync "sync"
	"time"

	"github.com/stockbook/stockbook/internal/probe"
	"github.com/stockbook/stockbook/internal/remote"
	"github.com/stockbook/stockbook/internal/schema"
	"github.com/stockbook/stockbook/internal/store"
)

// LocalStore is the part of the local database the engine needs.
// *store.Store satisfies it.
type LocalStore interface {
	FindUnsynced(ctx context.Context, entity schema.Entity) ([]schema.Record, error)
	MarkSynced(ctx context.Context, entity schema.Entity, id any, rev int64) (bool, error)
	RecordSyncRun(ctx context.Context, run *store.SyncRun) error
}

// Observer receives every finished cycle.
type Observer interface {
	SyncCompleted(report *Report)
}

// Config holds engine settings.
type Config struct {
	// BatchSize caps rows per upsert; 0 sends each entity in one batch.
	BatchSize int

	// RemoteTimeout bounds each remote call; 0 means no bound.
	RemoteTimeout time.Duration

	// Observer is notified after each cycle (optional).
	Observer Observer

	// Logger for sync activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RemoteTimeout: 30 * time.Second,
		Logger:        log.New(os.Stderr, "[sync] ", log.LstdFlags),
	}
}

// EntityReport is the outcome for one entity in a cycle.
type EntityReport struct {
	Entity  schema.Entity `json:"entity"`
	Table   string        `json:"table"`
	Pending int           `json:"pending"`
	Pushed  int           `json:"pushed"`
	Marked  int           `json:"marked"`
	// Stale counts pushed rows edited again before they could be marked.
	Stale int   `json:"stale"`
	Err   error `json:"-"`
}

// Report describes one sync cycle.
type Report struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Online     bool           `json:"online"`
	Coalesced  bool           `json:"coalesced"`
	Entities   []EntityReport `json:"entities"`
}

// Pushed returns the rows accepted by the remote for entity.
func (r *Report) Pushed(entity schema.Entity) int {
	for _, e := range r.Entities {
		if e.Entity == entity {
			return e.Pushed
		}
	}
	return 0
}

// TotalPushed returns the rows accepted by the remote across entities.
func (r *Report) TotalPushed() int {
	n := 0
	for _, e := range r.Entities {
		n += e.Pushed
	}
	return n
}

// Err joins the per-entity failures, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, e := range r.Entities {
		if e.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Entity, e.Err))
		}
	}
	return errors.Join(errs...)
}

// Engine runs sync cycles.
type Engine struct {
	local  LocalStore
	remote remote.Store
	prober probe.Prober
	config *Config

	mu      gosync.Mutex
	running bool
	pending bool
}

// New creates an Engine. A nil remote means no replica is configured and
// every cycle is skipped as offline.
func New(local LocalStore, rs remote.Store, prober probe.Prober, config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if prober == nil {
		prober = probe.NewTCP(probe.DefaultAddress, 0)
	}
	return &Engine{
		local:  local,
		remote: rs,
		prober: prober,
		config: config,
	}
}

// Sync runs one cycle and returns its report. If a cycle is already
// running, Sync returns a report with Coalesced set and the running cycle
// makes one more pass before it finishes.
//
// The error joins per-entity failures. Being offline is not an error.
func (e *Engine) Sync(ctx context.Context) (*Report, error) {
	e.mu.Lock()
	if e.running {
		e.pending = true
		e.mu.Unlock()
		return &Report{Coalesced: true}, nil
	}
	e.running = true
	e.mu.Unlock()

	var (
		report *Report
		err    error
	)
	for {
		report, err = e.cycle(ctx)

		e.mu.Lock()
		if !e.pending || ctx.Err() != nil {
			e.running = false
			e.pending = false
			e.mu.Unlock()
			break
		}
		e.pending = false
		e.mu.Unlock()

		e.config.Logger.Println("Changes arrived during sync, running again")
	}
	return report, err
}

// AutoSync runs Sync and logs instead of returning errors.
func (e *Engine) AutoSync(ctx context.Context) {
	if _, err := e.Sync(ctx); err != nil {
		e.config.Logger.Printf("Sync failed: %v", err)
	}
}

// cycle drains every entity once.
func (e *Engine) cycle(ctx context.Context) (*Report, error) {
	report := &Report{StartedAt: time.Now().UTC()}

	if e.remote == nil {
		e.config.Logger.Println("No remote configured, skipping sync")
		return e.finish(ctx, report), nil
	}
	if !e.prober.Connected(ctx) {
		e.config.Logger.Println("Offline, skipping sync")
		return e.finish(ctx, report), nil
	}
	report.Online = true

	for _, entity := range schema.Entities {
		report.Entities = append(report.Entities, e.syncEntity(ctx, entity))
	}

	e.finish(ctx, report)

	if err := report.Err(); err != nil {
		return report, err
	}
	if n := report.TotalPushed(); n > 0 {
		e.config.Logger.Printf("Sync complete: %d rows pushed", n)
	}
	return report, nil
}

// syncEntity pushes every pending row of one entity.
func (e *Engine) syncEntity(ctx context.Context, entity schema.Entity) EntityReport {
	er := EntityReport{Entity: entity, Table: entity.RemoteTable()}

	records, err := e.local.FindUnsynced(ctx, entity)
	if err != nil {
		er.Err = err
		e.config.Logger.Printf("Error reading unsynced %s: %v", entity, err)
		return er
	}
	er.Pending = len(records)

	for _, batch := range batches(records, e.config.BatchSize) {
		if err := e.push(ctx, er.Table, batch); err != nil {
			// Rows stay unsynced and are retried on the next cycle.
			er.Err = err
			e.config.Logger.Printf("Error pushing %d %s: %v", len(batch), entity, err)
			return er
		}
		er.Pushed += len(batch)

		for _, rec := range batch {
			ok, err := e.local.MarkSynced(ctx, entity, rec.RecordID(), rec.Revision())
			if err != nil {
				er.Err = err
				e.config.Logger.Printf("Error marking %s %v synced: %v", entity, rec.RecordID(), err)
				return er
			}
			if ok {
				er.Marked++
			} else {
				er.Stale++
			}
		}
	}
	return er
}

// push sends one batch under the configured timeout.
func (e *Engine) push(ctx context.Context, table string, batch []schema.Record) error {
	rows := make([]remote.Row, 0, len(batch))
	for _, rec := range batch {
		rows = append(rows, remote.Row(rec.Fields()))
	}

	if e.config.RemoteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.RemoteTimeout)
		defer cancel()
	}
	return e.remote.Upsert(ctx, table, rows)
}

// finish stamps, records and publishes a report.
func (e *Engine) finish(ctx context.Context, report *Report) *Report {
	report.FinishedAt = time.Now().UTC()

	run := &store.SyncRun{
		StartedAt:     report.StartedAt,
		FinishedAt:    report.FinishedAt,
		Online:        report.Online,
		ItemsPushed:   report.Pushed(schema.EntityItem),
		SalesPushed:   report.Pushed(schema.EntitySale),
		WorkersPushed: report.Pushed(schema.EntityWorker),
	}
	if err := report.Err(); err != nil {
		run.Error = err.Error()
	}
	if err := e.local.RecordSyncRun(ctx, run); err != nil {
		e.config.Logger.Printf("Warning: failed to record sync run: %v", err)
	}

	if e.config.Observer != nil {
		e.config.Observer.SyncCompleted(report)
	}
	return report
}

func batches(records []schema.Record, size int) [][]schema.Record {
	if len(records) == 0 {
		return nil
	}
	if size <= 0 || size >= len(records) {
		return [][]schema.Record{records}
	}
	var out [][]schema.Record
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		out = append(out, records[start:end])
	}
	return out
}
