package shop

import (
	"context"
	"fmt"

	"github.com/stockbook/stockbook/internal/schema"
	"github.com/stockbook/stockbook/internal/store"
)

// CartLine is one item in a checkout.
type CartLine struct {
	ItemID int64
	Qty    float64
	// Price per unit; zero means the item's selling price.
	Price float64
}

// CheckoutOptions adjusts checkout guards.
type CheckoutOptions struct {
	// AllowBelowCost confirms lines priced under the market price.
	AllowBelowCost bool
}

// Receipt is the result of a successful checkout.
type Receipt struct {
	Sales  []*schema.Sale `json:"sales" yaml:"sales"`
	Total  float64        `json:"total" yaml:"total"`
	Profit float64        `json:"profit" yaml:"profit"`
}

// Checkout sells a cart. All lines are checked against current stock
// before anything is written; then each line is recorded as a sale and its
// quantity taken off the item, in one transaction. Nothing is written if
// any line fails.
func (s *Shop) Checkout(ctx context.Context, lines []CartLine, opts CheckoutOptions) (*Receipt, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	for i, line := range lines {
		if line.Qty <= 0 {
			return nil, fmt.Errorf("line %d: quantity must be positive (got %g): %w", i+1, line.Qty, ErrInvalidLine)
		}
		if line.Price < 0 {
			return nil, fmt.Errorf("line %d: price cannot be negative (got %g): %w", i+1, line.Price, ErrInvalidLine)
		}
	}

	receipt := &Receipt{}
	err := s.st.WithTx(ctx, func(tx *store.Tx) error {
		items := make(map[int64]*schema.Item, len(lines))
		wanted := make(map[int64]float64, len(lines))
		sales := make([]*schema.Sale, 0, len(lines))

		for i, line := range lines {
			item, ok := items[line.ItemID]
			if !ok {
				var err error
				if item, err = tx.GetItemByID(ctx, line.ItemID); err != nil {
					return fmt.Errorf("line %d: %w", i+1, err)
				}
				items[line.ItemID] = item
			}

			price := line.Price
			if price == 0 {
				price = item.SP
			}
			if price <= 0 {
				return fmt.Errorf("line %d: %s has no selling price: %w", i+1, item.Name, ErrInvalidLine)
			}
			if price < item.MP && !opts.AllowBelowCost {
				return fmt.Errorf("line %d: %s at %g is under cost %g: %w", i+1, item.Name, price, item.MP, ErrBelowCost)
			}

			wanted[item.ID] = schema.RoundQuantity(wanted[item.ID] + line.Qty)
			if wanted[item.ID] > schema.RoundQuantity(item.Quantity) {
				return fmt.Errorf("%s has %g, cart needs %g: %w", item.Name, item.Quantity, wanted[item.ID], ErrOutOfStock)
			}

			sales = append(sales, schema.NewSale(item.Name, item.MP, price, line.Qty))
		}

		for i, sale := range sales {
			if err := tx.RecordSale(ctx, sale); err != nil {
				return err
			}
			if err := tx.AdjustQuantity(ctx, lines[i].ItemID, sale.Qty); err != nil {
				return err
			}
			receipt.Total += sale.Subtotal
			receipt.Profit += sale.Profit()
		}
		receipt.Sales = sales
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Printf("Checkout: %d lines, total %.2f", len(receipt.Sales), receipt.Total)
	s.notify()
	return receipt, nil
}
