package schema

import (
	"fmt"
	"math"
	"time"
)

// Sale is an immutable ledger line. Name, MP and SP are copied from the item
// at sale time so history survives renames and deletions.
type Sale struct {
	ID        int64     `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	MP        float64   `json:"mp" yaml:"mp"`
	SP        float64   `json:"sp" yaml:"sp"`
	Qty       float64   `json:"qty" yaml:"qty"`
	Subtotal  float64   `json:"subtotal" yaml:"subtotal"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`

	Synced bool  `json:"synced" yaml:"synced"`
	Rev    int64 `json:"-" yaml:"-"`
}

// NewSale builds a sale line with subtotal = qty * sp.
func NewSale(name string, mp, sp, qty float64) *Sale {
	return &Sale{
		Name:     name,
		MP:       mp,
		SP:       sp,
		Qty:      qty,
		Subtotal: qty * sp,
	}
}

// Validate checks field values before the sale is written.
func (s *Sale) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Qty <= 0 {
		return fmt.Errorf("qty must be greater than 0 (got %g)", s.Qty)
	}
	if s.SP < 0 || s.MP < 0 {
		return fmt.Errorf("prices cannot be negative (mp=%g, sp=%g)", s.MP, s.SP)
	}
	if math.Abs(s.Subtotal-s.Qty*s.SP) > 1e-6 {
		return fmt.Errorf("subtotal %g does not equal qty*sp (%g)", s.Subtotal, s.Qty*s.SP)
	}
	return nil
}

// Profit is the margin earned on this line.
func (s *Sale) Profit() float64 {
	return (s.SP - s.MP) * s.Qty
}

// RecordID implements Record.
func (s *Sale) RecordID() any { return s.ID }

// Revision implements Record.
func (s *Sale) Revision() int64 { return s.Rev }

// Fields implements Record.
func (s *Sale) Fields() map[string]any {
	return map[string]any{
		"id":         s.ID,
		"name":       s.Name,
		"mp":         s.MP,
		"sp":         s.SP,
		"qty":        s.Qty,
		"subtotal":   s.Subtotal,
		"created_at": s.CreatedAt.UTC(),
	}
}
