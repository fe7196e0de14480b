// Package remotetest provides an in-memory remote.Store for tests, with call
// counting and fault injection.
package remotetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stockbook/stockbook/internal/remote"
)

// Store is an in-memory remote.Store.
type Store struct {
	mu      sync.Mutex
	tables  map[string]map[string]remote.Row
	calls   int
	upserts map[string]int
	fail    map[string]error

	// BeforeUpsert, if set, runs before every upsert outside the lock.
	BeforeUpsert func(ctx context.Context, table string, rows []remote.Row)
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		tables:  make(map[string]map[string]remote.Row),
		upserts: make(map[string]int),
		fail:    make(map[string]error),
	}
}

// FailTable makes every upsert into table return err. A nil err clears it.
func (s *Store) FailTable(table string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, table)
		return
	}
	s.fail[table] = err
}

// Calls returns the number of calls issued against the store.
func (s *Store) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// UpsertCalls returns the number of upserts issued for table.
func (s *Store) UpsertCalls(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts[table]
}

// Rows returns a copy of table's rows ordered by id.
func (s *Store) Rows(table string) []remote.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(table, nil)
}

// Upsert implements remote.Store.
func (s *Store) Upsert(ctx context.Context, table string, rows []remote.Row) error {
	if err := remote.CheckRequest(table, nil, false); err != nil {
		return err
	}
	if hook := s.BeforeUpsert; hook != nil {
		hook(ctx, table, rows)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	s.upserts[table]++
	if err := s.fail[table]; err != nil {
		return err
	}

	t := s.tables[table]
	if t == nil {
		t = make(map[string]remote.Row)
		s.tables[table] = t
	}
	for _, row := range rows {
		id, ok := row["id"]
		if !ok {
			return fmt.Errorf("upsert into %s: row without id", table)
		}
		t[key(id)] = copyRow(row)
	}
	return nil
}

// Select implements remote.Store.
func (s *Store) Select(ctx context.Context, table string, filters ...remote.Filter) ([]remote.Row, error) {
	if err := remote.CheckRequest(table, filters, false); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.sorted(table, filters), nil
}

// Update implements remote.Store.
func (s *Store) Update(ctx context.Context, table string, values remote.Row, filters ...remote.Filter) (int64, error) {
	if err := remote.CheckRequest(table, filters, true); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	var n int64
	for _, row := range s.tables[table] {
		if matchAll(row, filters) {
			for k, v := range values {
				row[k] = v
			}
			n++
		}
	}
	return n, nil
}

// Delete implements remote.Store.
func (s *Store) Delete(ctx context.Context, table string, filters ...remote.Filter) (int64, error) {
	if err := remote.CheckRequest(table, filters, true); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	var n int64
	for k, row := range s.tables[table] {
		if matchAll(row, filters) {
			delete(s.tables[table], k)
			n++
		}
	}
	return n, nil
}

func (s *Store) sorted(table string, filters []remote.Filter) []remote.Row {
	out := make([]remote.Row, 0, len(s.tables[table]))
	for _, row := range s.tables[table] {
		if matchAll(row, filters) {
			out = append(out, copyRow(row))
		}
	}
	sort.Slice(out, func(i, j int) bool { return compare(out[i]["id"], out[j]["id"]) < 0 })
	return out
}

func matchAll(row remote.Row, filters []remote.Filter) bool {
	for _, f := range filters {
		if !match(row[f.Column], f) {
			return false
		}
	}
	return true
}

func match(v any, f remote.Filter) bool {
	switch f.Op {
	case remote.OpLike:
		pattern := strings.ToLower(fmt.Sprint(f.Value))
		return likeMatch(strings.ToLower(fmt.Sprint(v)), pattern)
	}
	c := compare(v, f.Value)
	switch f.Op {
	case remote.OpEq:
		return c == 0
	case remote.OpNeq:
		return c != 0
	case remote.OpGt:
		return c > 0
	case remote.OpGte:
		return c >= 0
	case remote.OpLt:
		return c < 0
	case remote.OpLte:
		return c <= 0
	}
	return false
}

// likeMatch supports the % wildcard only.
func likeMatch(s, pattern string) bool {
	parts := strings.Split(pattern, "%")
	if len(parts) == 1 {
		return s == pattern
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	last := parts[len(parts)-1]
	for _, p := range parts[1 : len(parts)-1] {
		i := strings.Index(s, p)
		if i < 0 {
			return false
		}
		s = s[i+len(p):]
	}
	return strings.HasSuffix(s, last)
}

func compare(a, b any) int {
	if fa, ok := number(a); ok {
		if fb, ok := number(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func key(id any) string {
	if f, ok := number(id); ok {
		return fmt.Sprintf("n:%g", f)
	}
	return "s:" + fmt.Sprint(id)
}

func copyRow(row remote.Row) remote.Row {
	out := make(remote.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
