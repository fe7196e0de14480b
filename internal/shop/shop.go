// Package shop implements the store-front workflows on top of the local
// store: restocking, checkout, stock levels, sales reports and workers.
//
// Every workflow writes locally first and leaves rows unsynced; a Notifier
// is told after each checkout so the sync engine can push promptly.
package shop

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/stockbook/stockbook/internal/store"
)

// Errors returned by shop workflows. Check them with errors.Is.
var (
	// ErrEmptyCart is returned by Checkout for a cart with no lines.
	ErrEmptyCart = errors.New("cart is empty")

	// ErrInvalidLine is returned for a cart line with a non-positive
	// quantity or price.
	ErrInvalidLine = errors.New("invalid cart line")

	// ErrBelowCost is returned when a line is priced under the item's
	// market price and the sale was not confirmed.
	ErrBelowCost = errors.New("price is below cost")

	// ErrOutOfStock is returned when a cart asks for more than is held.
	// It also matches store.ErrInsufficientStock.
	ErrOutOfStock = fmt.Errorf("out of stock: %w", store.ErrInsufficientStock)

	// ErrDuplicateItem is returned when an edit would give an item the
	// name of another item.
	ErrDuplicateItem = errors.New("an item with that name already exists")

	// ErrInvalidCredentials is returned by Authenticate.
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// Notifier is told when local writes should be pushed soon.
type Notifier interface {
	Notify()
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func()

// Notify implements Notifier.
func (f NotifierFunc) Notify() { f() }

// Shop runs workflows against one local store.
type Shop struct {
	st       *store.Store
	notifier Notifier
	logger   *log.Logger
}

// New creates a Shop. notifier may be nil.
func New(st *store.Store, notifier Notifier, logger *log.Logger) *Shop {
	if logger == nil {
		logger = log.New(os.Stderr, "[shop] ", log.LstdFlags)
	}
	return &Shop{st: st, notifier: notifier, logger: logger}
}

// notify tells the notifier, if any, that there is something to push.
func (s *Shop) notify() {
	if s.notifier != nil {
		s.notifier.Notify()
	}
}
