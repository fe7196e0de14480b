// Package remote defines the hosted replica the sync engine pushes to, and
// its gorm-backed implementation.
//
// The contract is deliberately small:
//
//	Upsert(table, rows)          insert-or-update keyed on "id"
//	Select/Update/Delete(table, filters...)
//
// Upsert is what the sync engine uses. Select, Update and Delete give
// online screens and tools an authoritative read/write path.
package remote

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Row is one record as column -> value.
type Row map[string]any

// Op is a filter comparison.
type Op string

const (
	OpEq   Op = "eq"
	OpNeq  Op = "neq"
	OpGt   Op = "gt"
	OpGte  Op = "gte"
	OpLt   Op = "lt"
	OpLte  Op = "lte"
	OpLike Op = "like"
)

// Filter restricts a Select, Update or Delete to matching rows.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Eq matches rows where column equals v.
func Eq(column string, v any) Filter { return Filter{Column: column, Op: OpEq, Value: v} }

// Gte matches rows where column >= v.
func Gte(column string, v any) Filter { return Filter{Column: column, Op: OpGte, Value: v} }

// Lte matches rows where column <= v.
func Lte(column string, v any) Filter { return Filter{Column: column, Op: OpLte, Value: v} }

// Lt matches rows where column < v.
func Lt(column string, v any) Filter { return Filter{Column: column, Op: OpLt, Value: v} }

var columnPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Validate checks the column name and operator.
func (f Filter) Validate() error {
	if !columnPattern.MatchString(f.Column) {
		return fmt.Errorf("%w: bad column %q", ErrInvalidFilter, f.Column)
	}
	switch f.Op {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpLike:
		return nil
	}
	return fmt.Errorf("%w: bad operator %q", ErrInvalidFilter, f.Op)
}

// Errors returned by remote stores.
var (
	// ErrUnknownTable is returned for a table outside Tables.
	ErrUnknownTable = errors.New("unknown remote table")

	// ErrInvalidFilter is returned for a malformed filter.
	ErrInvalidFilter = errors.New("invalid filter")
)

// Tables lists the replicated tables.
var Tables = []string{"items", "sales", "workers"}

// ValidTable reports whether table is replicated.
func ValidTable(table string) bool {
	for _, t := range Tables {
		if t == table {
			return true
		}
	}
	return false
}

// Store is the remote replica.
type Store interface {
	// Upsert inserts rows, or updates them when a row with the same id
	// exists. Repeating a call with the same rows is harmless.
	Upsert(ctx context.Context, table string, rows []Row) error

	// Select returns rows matching every filter, ordered by id.
	Select(ctx context.Context, table string, filters ...Filter) ([]Row, error)

	// Update sets values on rows matching every filter. At least one
	// filter is required. Returns the number of rows changed.
	Update(ctx context.Context, table string, values Row, filters ...Filter) (int64, error)

	// Delete removes rows matching every filter. At least one filter is
	// required. Returns the number of rows removed.
	Delete(ctx context.Context, table string, filters ...Filter) (int64, error)
}

// checkRequest validates a table and filters before a call is issued.
func checkRequest(table string, filters []Filter, needFilter bool) error {
	if !ValidTable(table) {
		return fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	if needFilter && len(filters) == 0 {
		return fmt.Errorf("%w: at least one filter is required", ErrInvalidFilter)
	}
	for _, f := range filters {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// CheckRequest is exported for alternative Store implementations.
func CheckRequest(table string, filters []Filter, needFilter bool) error {
	return checkRequest(table, filters, needFilter)
}
