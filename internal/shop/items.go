package shop

import (
	"context"
	"errors"
	"fmt"

	"github.com/stockbook/stockbook/internal/schema"
	"github.com/stockbook/stockbook/internal/store"
)

// StockInput describes stock being brought in.
type StockInput struct {
	Name     string
	Alias    string
	Unit     string
	MP       float64
	SP       float64
	Quantity float64
	Target   *float64
}

// AddStock records incoming stock. If an item with the same normalized name
// exists, its quantity is increased and its prices are replaced; unit,
// alias and target are replaced only when given. Otherwise a new item is
// created.
//
// Returns the stored item and whether an existing item was restocked.
func (s *Shop) AddStock(ctx context.Context, in StockInput) (*schema.Item, bool, error) {
	if in.Quantity < 0 {
		return nil, false, fmt.Errorf("quantity cannot be negative (got %g)", in.Quantity)
	}

	var (
		result *schema.Item
		merged bool
	)
	err := s.st.WithTx(ctx, func(tx *store.Tx) error {
		existing, err := tx.FindItemByName(ctx, in.Name)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		if existing == nil {
			item := &schema.Item{
				Name:     in.Name,
				Alias:    in.Alias,
				Unit:     in.Unit,
				MP:       in.MP,
				SP:       in.SP,
				Quantity: in.Quantity,
				Target:   in.Target,
			}
			item.Normalize()
			if err := tx.CreateItem(ctx, item); err != nil {
				return err
			}
			result = item
			return nil
		}

		existing.Quantity += in.Quantity
		existing.MP = in.MP
		existing.SP = in.SP
		if in.Unit != "" {
			existing.Unit = in.Unit
		}
		if in.Alias != "" {
			existing.Alias = in.Alias
		}
		if in.Target != nil {
			existing.Target = in.Target
		}
		existing.Normalize()
		if err := tx.UpdateItem(ctx, existing); err != nil {
			return err
		}
		result = existing
		merged = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if merged {
		s.logger.Printf("Restocked %s: now %g", result.Name, result.Quantity)
	} else {
		s.logger.Printf("Added item %s (%g)", result.Name, result.Quantity)
	}
	return result, merged, nil
}

// EditItem overwrites an item's fields. Renaming an item onto another
// item's name returns ErrDuplicateItem.
func (s *Shop) EditItem(ctx context.Context, item *schema.Item) error {
	item.Normalize()
	return s.st.WithTx(ctx, func(tx *store.Tx) error {
		other, err := tx.FindItemByName(ctx, item.Name)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if other != nil && other.ID != item.ID {
			return fmt.Errorf("%q: %w", item.Name, ErrDuplicateItem)
		}
		return tx.UpdateItem(ctx, item)
	})
}

// DeleteItem removes an item locally. The remote copy is left alone.
func (s *Shop) DeleteItem(ctx context.Context, id int64) error {
	return s.st.DeleteItem(ctx, id)
}

// SetTarget sets an item's restock threshold. Zero clears it.
func (s *Shop) SetTarget(ctx context.Context, id int64, target float64) (*schema.Item, error) {
	if target < 0 {
		return nil, fmt.Errorf("target cannot be negative (got %g)", target)
	}

	var item *schema.Item
	err := s.st.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		if item, err = tx.GetItemByID(ctx, id); err != nil {
			return err
		}
		item.Target = schema.Float(target)
		item.Normalize()
		return tx.UpdateItem(ctx, item)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// StockLevel buckets an item by how close it is to its target.
type StockLevel string

const (
	LevelNoTarget   StockLevel = "no_target"
	LevelOutOfStock StockLevel = "out_of_stock"
	LevelRunningLow StockLevel = "running_low"
	LevelGood       StockLevel = "good"
)

// runningLowRatio is the share of target below which stock is running low.
const runningLowRatio = 0.5

// Classify returns the level of a single item. An empty item is out of
// stock whether or not it has a target.
func Classify(item *schema.Item) StockLevel {
	switch {
	case schema.RoundQuantity(item.Quantity) <= 0:
		return LevelOutOfStock
	case !item.HasTarget():
		return LevelNoTarget
	case item.Quantity < *item.Target*runningLowRatio:
		return LevelRunningLow
	default:
		return LevelGood
	}
}

// StockReport groups items by level. NoTarget and OutOfStock may share
// items: an untargeted item with nothing left appears in both.
type StockReport struct {
	NoTarget   []*schema.Item `json:"no_target" yaml:"no_target"`
	OutOfStock []*schema.Item `json:"out_of_stock" yaml:"out_of_stock"`
	RunningLow []*schema.Item `json:"running_low" yaml:"running_low"`
	Good       []*schema.Item `json:"good" yaml:"good"`
}

// StockLevels groups every item by level.
func (s *Shop) StockLevels(ctx context.Context) (*StockReport, error) {
	items, err := s.st.GetItems(ctx)
	if err != nil {
		return nil, err
	}

	report := &StockReport{}
	for _, item := range items {
		if !item.HasTarget() {
			report.NoTarget = append(report.NoTarget, item)
		}
		switch Classify(item) {
		case LevelOutOfStock:
			report.OutOfStock = append(report.OutOfStock, item)
		case LevelRunningLow:
			report.RunningLow = append(report.RunningLow, item)
		case LevelGood:
			report.Good = append(report.Good, item)
		}
	}
	return report, nil
}
