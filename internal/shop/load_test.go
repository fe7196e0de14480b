package shop

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/stockbook/stockbook/internal/store"
)

// TestCheckout_ConcurrentNoOversell tests that concurrent checkouts against
// one item never sell more than is held.
func TestCheckout_ConcurrentNoOversell(t *testing.T) {
	s, st, _ := newTestShop(t)
	s.notifier = nil
	s.logger = log.New(io.Discard, "", 0)
	ctx := context.Background()

	item := stock(t, s, "rice", 80, 100, 10)

	const buyers = 25
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		sold     int
		rejected int
		failures []error
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Checkout(ctx, []CartLine{{ItemID: item.ID, Qty: 1}}, CheckoutOptions{})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				sold++
			case errors.Is(err, ErrOutOfStock), errors.Is(err, store.ErrInsufficientStock):
				rejected++
			default:
				failures = append(failures, err)
			}
		}()
	}
	wg.Wait()

	for _, err := range failures {
		t.Errorf("unexpected checkout error: %v", err)
	}
	if sold != 10 {
		t.Errorf("expected 10 sold, got %d", sold)
	}
	if rejected != buyers-10 {
		t.Errorf("expected %d rejected, got %d", buyers-10, rejected)
	}

	got, err := st.GetItemByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItemByID failed: %v", err)
	}
	if got.Quantity != 0 {
		t.Errorf("expected quantity 0, got %g", got.Quantity)
	}

	sales, err := st.ListSales(ctx, store.SalesFilter{})
	if err != nil {
		t.Fatalf("ListSales failed: %v", err)
	}
	if len(sales) != 10 {
		t.Errorf("expected 10 sales, got %d", len(sales))
	}
}
