// Package sync pushes locally pending rows to the remote replica.
//
// Overview
//
// Every local write leaves its row with synced = 0. A sync cycle drains
// those rows entity by entity and marks each one synced once the remote
// has accepted it:
//
//	Local Store (synced = 0 rows)
//	     ├── items   ─┐
//	     ├── sales   ─┼─→ Engine ─→ remote.Upsert(table, rows)
//	     └── users   ─┘                  ↓ success
//	                              MarkSynced(entity, id, rev) per row
//
// Usage
//
//	engine := sync.New(st, remoteStore, probe.NewTCP(addr, 0), nil)
//	report, err := engine.Sync(ctx)
//
// Fire-and-forget callers use AutoSync, which logs errors and returns
// nothing.
//
// Triggers
//
// A Runner drives the engine from a long-lived process: one cycle on
// start, one per interval tick, one per Notify call and, when watching is
// enabled, one after writes by other processes to the database file settle.
//
// Error Handling
//
// The engine is resilient to partial failure:
//
//   - Offline (probe fails) is a skipped cycle, not an error
//   - A rejected batch leaves its rows pending and stops that entity only
//   - Rows are marked one at a time, so an interrupted cycle re-sends the
//     unmarked rows next time (upsert by id makes that harmless)
//
// Concurrency
//
// Engine.Sync is safe for concurrent use. Overlapping calls coalesce: a
// call made while a cycle is running returns at once and the running cycle
// makes one more pass, so no two cycles ever overlap.
package sync
