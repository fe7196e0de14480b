package shop

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/stockbook/stockbook/internal/remote"
	"github.com/stockbook/stockbook/internal/remote/remotetest"
	"github.com/stockbook/stockbook/internal/schema"
	"github.com/stockbook/stockbook/internal/store"
)

// countingNotifier counts Notify calls.
type countingNotifier struct{ n int }

func (c *countingNotifier) Notify() { c.n++ }

// newTestShop returns a shop over a fresh temp database.
func newTestShop(t *testing.T) (*Shop, *store.Store, *countingNotifier) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "shop.db"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}

	n := &countingNotifier{}
	return New(st, n, log.New(io.Discard, "", 0)), st, n
}

func stock(t *testing.T, s *Shop, name string, mp, sp, qty float64) *schema.Item {
	t.Helper()

	item, _, err := s.AddStock(context.Background(), StockInput{Name: name, MP: mp, SP: sp, Quantity: qty, Unit: "kg"})
	if err != nil {
		t.Fatalf("AddStock(%q) failed: %v", name, err)
	}
	return item
}

// TestAddStock_Merge tests that restocking an existing name adds quantity.
func TestAddStock_Merge(t *testing.T) {
	s, st, _ := newTestShop(t)
	ctx := context.Background()

	first, merged, err := s.AddStock(ctx, StockInput{Name: "Sugar", Alias: "Sukari", MP: 100, SP: 120, Quantity: 10, Unit: "kg"})
	if err != nil {
		t.Fatalf("AddStock failed: %v", err)
	}
	if merged {
		t.Error("first AddStock should not merge")
	}
	if first.Name != "sugar" {
		t.Errorf("expected normalized name, got %q", first.Name)
	}

	second, merged, err := s.AddStock(ctx, StockInput{Name: "  SUGAR ", MP: 105, SP: 125, Quantity: 5})
	if err != nil {
		t.Fatalf("second AddStock failed: %v", err)
	}
	if !merged {
		t.Error("expected second AddStock to merge")
	}
	if second.ID != first.ID {
		t.Errorf("expected same id %d, got %d", first.ID, second.ID)
	}

	items, err := st.GetItems(ctx)
	if err != nil {
		t.Fatalf("GetItems failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	got := items[0]
	if got.Quantity != 15 || got.MP != 105 || got.SP != 125 {
		t.Errorf("unexpected merged item: qty=%g mp=%g sp=%g", got.Quantity, got.MP, got.SP)
	}
	if got.Unit != "kg" || got.Alias != "sukari" {
		t.Errorf("expected unit and alias kept, got unit=%q alias=%q", got.Unit, got.Alias)
	}
	if got.Synced {
		t.Error("expected merged item unsynced")
	}
}

// TestEditItem_DuplicateName tests that renames cannot collide.
func TestEditItem_DuplicateName(t *testing.T) {
	s, _, _ := newTestShop(t)

	stock(t, s, "sugar", 100, 120, 10)
	rice := stock(t, s, "rice", 50, 70, 10)

	rice.Name = "Sugar"
	if err := s.EditItem(context.Background(), rice); !errors.Is(err, ErrDuplicateItem) {
		t.Errorf("expected ErrDuplicateItem, got %v", err)
	}

	rice.Name = "basmati rice"
	if err := s.EditItem(context.Background(), rice); err != nil {
		t.Errorf("rename failed: %v", err)
	}
}

// TestSetTarget tests setting and clearing a target.
func TestSetTarget(t *testing.T) {
	s, _, _ := newTestShop(t)
	ctx := context.Background()
	item := stock(t, s, "sugar", 100, 120, 10)

	got, err := s.SetTarget(ctx, item.ID, 20)
	if err != nil {
		t.Fatalf("SetTarget failed: %v", err)
	}
	if !got.HasTarget() || *got.Target != 20 {
		t.Errorf("expected target 20, got %v", got.Target)
	}

	got, err = s.SetTarget(ctx, item.ID, 0)
	if err != nil {
		t.Fatalf("SetTarget(0) failed: %v", err)
	}
	if got.Target != nil {
		t.Errorf("expected target cleared, got %v", *got.Target)
	}

	if _, err := s.SetTarget(ctx, 999, 5); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestCheckout_Fractional tests selling fractional stock down to zero.
func TestCheckout_Fractional(t *testing.T) {
	s, st, _ := newTestShop(t)
	ctx := context.Background()
	item := stock(t, s, "rice", 100, 120, 0.3)

	for i := 0; i < 3; i++ {
		if _, err := s.Checkout(ctx, []CartLine{{ItemID: item.ID, Qty: 0.1}}, CheckoutOptions{}); err != nil {
			t.Fatalf("sale %d of 0.1 failed: %v", i+1, err)
		}
	}

	got, err := st.GetItemByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItemByID failed: %v", err)
	}
	if got.Quantity != 0 {
		t.Errorf("expected quantity 0, got %v", got.Quantity)
	}
	if level := Classify(got); level != LevelOutOfStock {
		t.Errorf("expected %s, got %s", LevelOutOfStock, level)
	}

	// Two lines summing to exactly what is held are accepted together.
	more := stock(t, s, "beans", 100, 120, 0.3)
	lines := []CartLine{{ItemID: more.ID, Qty: 0.1}, {ItemID: more.ID, Qty: 0.2}}
	if _, err := s.Checkout(ctx, lines, CheckoutOptions{}); err != nil {
		t.Fatalf("Checkout of 0.1 + 0.2 failed: %v", err)
	}
}

// TestCheckout_Scenario tests selling 3 of 10, then rejecting 10 of 7.
func TestCheckout_Scenario(t *testing.T) {
	s, st, n := newTestShop(t)
	ctx := context.Background()
	item := stock(t, s, "sugar", 100, 120, 10)

	receipt, err := s.Checkout(ctx, []CartLine{{ItemID: item.ID, Qty: 3}}, CheckoutOptions{})
	if err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}
	if receipt.Total != 360 || receipt.Profit != 60 {
		t.Errorf("unexpected receipt: total=%g profit=%g", receipt.Total, receipt.Profit)
	}

	got, _ := st.GetItemByID(ctx, item.ID)
	if got.Quantity != 7 {
		t.Fatalf("expected quantity 7, got %g", got.Quantity)
	}
	if n.n != 1 {
		t.Errorf("expected 1 notification, got %d", n.n)
	}

	_, err = s.Checkout(ctx, []CartLine{{ItemID: item.ID, Qty: 10}}, CheckoutOptions{})
	if !errors.Is(err, ErrOutOfStock) || !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}

	got, _ = st.GetItemByID(ctx, item.ID)
	if got.Quantity != 7 {
		t.Errorf("expected quantity unchanged at 7, got %g", got.Quantity)
	}
	sales, _ := st.ListSales(ctx, store.SalesFilter{})
	if len(sales) != 1 {
		t.Errorf("expected 1 sale recorded, got %d", len(sales))
	}
	if n.n != 1 {
		t.Errorf("rejected checkout must not notify, got %d", n.n)
	}
}

// TestCheckout_AllOrNothing tests that a failing line leaves earlier lines unwritten.
func TestCheckout_AllOrNothing(t *testing.T) {
	s, st, _ := newTestShop(t)
	ctx := context.Background()
	sugar := stock(t, s, "sugar", 100, 120, 10)
	rice := stock(t, s, "rice", 50, 70, 2)

	_, err := s.Checkout(ctx, []CartLine{
		{ItemID: sugar.ID, Qty: 1},
		{ItemID: rice.ID, Qty: 1},
		{ItemID: rice.ID, Qty: 2},
	}, CheckoutOptions{})
	if !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock for combined rice lines, got %v", err)
	}

	got, _ := st.GetItemByID(ctx, sugar.ID)
	if got.Quantity != 10 {
		t.Errorf("expected sugar untouched, got %g", got.Quantity)
	}
	sales, _ := st.ListSales(ctx, store.SalesFilter{})
	if len(sales) != 0 {
		t.Errorf("expected no sales, got %d", len(sales))
	}
}

// TestCheckout_Guards tests cart validation.
func TestCheckout_Guards(t *testing.T) {
	s, _, _ := newTestShop(t)
	ctx := context.Background()
	item := stock(t, s, "sugar", 100, 120, 10)

	tests := []struct {
		name  string
		lines []CartLine
		opts  CheckoutOptions
		want  error
	}{
		{"empty cart", nil, CheckoutOptions{}, ErrEmptyCart},
		{"zero qty", []CartLine{{ItemID: item.ID, Qty: 0}}, CheckoutOptions{}, ErrInvalidLine},
		{"negative price", []CartLine{{ItemID: item.ID, Qty: 1, Price: -5}}, CheckoutOptions{}, ErrInvalidLine},
		{"below cost", []CartLine{{ItemID: item.ID, Qty: 1, Price: 90}}, CheckoutOptions{}, ErrBelowCost},
		{"missing item", []CartLine{{ItemID: 999, Qty: 1}}, CheckoutOptions{}, store.ErrNotFound},
		{"below cost confirmed", []CartLine{{ItemID: item.ID, Qty: 1, Price: 90}}, CheckoutOptions{AllowBelowCost: true}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Checkout(ctx, tt.lines, tt.opts)
			if tt.want == nil {
				if err != nil {
					t.Errorf("expected success, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

// TestStockLevels tests bucket assignment.
func TestStockLevels(t *testing.T) {
	s, _, _ := newTestShop(t)
	ctx := context.Background()

	empty := stock(t, s, "empty", 1, 2, 0)
	untargeted := stock(t, s, "untargeted", 1, 2, 5)
	low := stock(t, s, "low", 1, 2, 4)
	good := stock(t, s, "good", 1, 2, 5)
	for _, it := range []*schema.Item{low, good} {
		if _, err := s.SetTarget(ctx, it.ID, 10); err != nil {
			t.Fatalf("SetTarget failed: %v", err)
		}
	}

	report, err := s.StockLevels(ctx)
	if err != nil {
		t.Fatalf("StockLevels failed: %v", err)
	}

	names := func(items []*schema.Item) []string {
		var out []string
		for _, i := range items {
			out = append(out, i.Name)
		}
		return out
	}
	check := func(label string, got []*schema.Item, want ...string) {
		t.Helper()
		g := names(got)
		if len(g) != len(want) {
			t.Errorf("%s = %v, want %v", label, g, want)
			return
		}
		for i := range want {
			if g[i] != want[i] {
				t.Errorf("%s = %v, want %v", label, g, want)
				return
			}
		}
	}

	check("no_target", report.NoTarget, empty.Name, untargeted.Name)
	check("out_of_stock", report.OutOfStock, empty.Name)
	check("running_low", report.RunningLow, low.Name)
	check("good", report.Good, good.Name)
}

// TestSalesReport tests totals, profit and stock warnings.
func TestSalesReport(t *testing.T) {
	s, _, _ := newTestShop(t)
	ctx := context.Background()

	sugar := stock(t, s, "sugar", 100, 120, 10)
	rice := stock(t, s, "rice", 50, 70, 3)
	if _, err := s.SetTarget(ctx, sugar.ID, 8); err != nil {
		t.Fatalf("SetTarget failed: %v", err)
	}

	if _, err := s.Checkout(ctx, []CartLine{
		{ItemID: sugar.ID, Qty: 3},
		{ItemID: rice.ID, Qty: 3, Price: 80},
	}, CheckoutOptions{}); err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}

	from, to := Day(time.Now())
	report, err := s.SalesReport(ctx, from, to)
	if err != nil {
		t.Fatalf("SalesReport failed: %v", err)
	}

	if report.Count != 2 {
		t.Errorf("expected 2 sales, got %d", report.Count)
	}
	if report.Total != 600 {
		t.Errorf("expected total 600, got %g", report.Total)
	}
	if report.Profit != 150 {
		t.Errorf("expected profit 150, got %g", report.Profit)
	}
	if len(report.Items) != 2 || report.Items[0].Name != "sugar" {
		t.Errorf("expected sugar first by total, got %+v", report.Items)
	}
	if len(report.OutOfStock) != 1 || report.OutOfStock[0].Name != "rice" {
		t.Errorf("expected rice out of stock, got %v", report.OutOfStock)
	}
	if len(report.LowStock) != 1 || report.LowStock[0].Name != "sugar" {
		t.Errorf("expected sugar low (7 <= 8), got %v", report.LowStock)
	}

	yFrom, yTo := Day(time.Now().AddDate(0, 0, -1))
	yesterday, err := s.SalesReport(ctx, yFrom, yTo)
	if err != nil {
		t.Fatalf("SalesReport failed: %v", err)
	}
	if yesterday.Count != 0 {
		t.Errorf("expected no sales yesterday, got %d", yesterday.Count)
	}
}

// TestRemoteSalesReport tests building a report from replica rows.
func TestRemoteSalesReport(t *testing.T) {
	s, _, _ := newTestShop(t)
	rs := remotetest.New()
	ctx := context.Background()

	now := time.Now().UTC()
	_ = rs.Upsert(ctx, "sales", []remote.Row{
		{"id": int64(1), "name": "sugar", "mp": 100.0, "sp": 120.0, "qty": 2.0, "subtotal": 240.0, "created_at": now},
		{"id": int64(2), "name": "sugar", "mp": 100.0, "sp": 120.0, "qty": 1.0, "subtotal": 120.0, "created_at": now.AddDate(0, 0, -3)},
	})
	_ = rs.Upsert(ctx, "items", []remote.Row{
		{"id": int64(1), "name": "sugar", "quantity": 0.0, "mp": 100.0, "sp": 120.0, "target": nil},
	})

	report, err := s.RemoteSalesReport(ctx, rs, now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("RemoteSalesReport failed: %v", err)
	}
	if report.Source != "remote" {
		t.Errorf("expected remote source, got %q", report.Source)
	}
	if report.Count != 1 || report.Total != 240 || report.Profit != 40 {
		t.Errorf("unexpected report: count=%d total=%g profit=%g", report.Count, report.Total, report.Profit)
	}
	if len(report.OutOfStock) != 1 {
		t.Errorf("expected 1 out-of-stock item, got %d", len(report.OutOfStock))
	}
}

// TestRemoteRows_NullName tests that NULL remote names read as empty.
func TestRemoteRows_NullName(t *testing.T) {
	sale := saleFromRow(remote.Row{"id": int64(3), "name": nil, "qty": 1.0, "sp": 5.0, "subtotal": 5.0})
	if sale.Name != "" {
		t.Errorf("expected empty sale name, got %q", sale.Name)
	}
	item := itemFromRow(remote.Row{"id": int64(4), "name": nil, "quantity": 2.0})
	if item.Name != "" {
		t.Errorf("expected empty item name, got %q", item.Name)
	}
}

// TestWorkers tests creation, defaults and authentication.
func TestWorkers(t *testing.T) {
	s, _, _ := newTestShop(t)
	ctx := context.Background()

	w, err := s.CreateWorker(ctx, WorkerInput{FullName: "Ama Mensah", Username: "ama"})
	if err != nil {
		t.Fatalf("CreateWorker failed: %v", err)
	}
	if w.Role != schema.RoleClient {
		t.Errorf("expected default role client, got %q", w.Role)
	}
	if w.Password == DefaultPassword {
		t.Error("password must be stored hashed")
	}

	if _, err := s.CreateWorker(ctx, WorkerInput{FullName: "Other", Username: "ama"}); !errors.Is(err, store.ErrDuplicateUsername) {
		t.Errorf("expected ErrDuplicateUsername, got %v", err)
	}

	if _, err := s.Authenticate(ctx, "ama", DefaultPassword); err != nil {
		t.Errorf("Authenticate with default password failed: %v", err)
	}
	if _, err := s.Authenticate(ctx, "ama", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := s.Authenticate(ctx, "nobody", DefaultPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	if err := s.ChangePassword(ctx, "ama", DefaultPassword, "n3w-secret"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if _, err := s.Authenticate(ctx, "ama", "n3w-secret"); err != nil {
		t.Errorf("Authenticate with new password failed: %v", err)
	}
}
