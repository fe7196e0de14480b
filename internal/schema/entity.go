// Package schema provides the record types kept by the local store and
// pushed to the remote replica: items, sales and workers.
package schema

import (
	"fmt"
	"strings"
	"time"
)

// Entity names a record type. The value is the local table name.
type Entity string

const (
	// EntityItem is the stock item table.
	EntityItem Entity = "items"
	// EntitySale is the sales ledger table.
	EntitySale Entity = "sales"
	// EntityWorker is the users table holding workers and admins.
	EntityWorker Entity = "users"
)

// Entities lists every entity in sync order.
var Entities = []Entity{EntityItem, EntitySale, EntityWorker}

// RemoteTable returns the table name used on the remote replica.
// Workers live in "users" locally but "workers" remotely.
func (e Entity) RemoteTable() string {
	if e == EntityWorker {
		return "workers"
	}
	return string(e)
}

// Valid reports whether e is a known entity.
func (e Entity) Valid() bool {
	switch e {
	case EntityItem, EntitySale, EntityWorker:
		return true
	}
	return false
}

// ParseEntity converts a table name ("items", "sales", "users" or
// "workers") into an Entity.
func ParseEntity(s string) (Entity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "items", "item":
		return EntityItem, nil
	case "sales", "sale":
		return EntitySale, nil
	case "users", "user", "workers", "worker":
		return EntityWorker, nil
	}
	return "", fmt.Errorf("unknown entity %q", s)
}

// Record is a row that can be pushed to the remote replica.
//
// Fields returns the remote column set; the local-only bookkeeping columns
// (synced, rev) are never part of it.
type Record interface {
	RecordID() any
	Revision() int64
	Fields() map[string]any
}

// TimeLayout is the fixed-width UTC layout used for stored timestamps.
// Fixed width keeps lexical and chronological order identical.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders t in TimeLayout after converting to UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a stored timestamp. It also accepts RFC3339 and the
// "YYYY-MM-DD HH:MM:SS" form SQLite's datetime() produces.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range []string{TimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse time %q", s)
}

// NormalizeName trims, lower-cases and collapses inner whitespace so that
// "  Sugar  Cane" and "sugar cane" name the same item.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
