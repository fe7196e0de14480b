package schema

import (
	"fmt"
	"math"
	"time"
)

// quantityScale fixes quantities to six decimal places so fractional
// units add up exactly across sales.
const quantityScale = 1e6

// RoundQuantity rounds v to the stored quantity precision.
func RoundQuantity(v float64) float64 {
	return math.Round(v*quantityScale) / quantityScale
}

// Item is a stock line. Name is the business key and is stored normalized.
type Item struct {
	ID       int64   `json:"id" yaml:"id"`
	Name     string  `json:"name" yaml:"name"`
	Alias    string  `json:"alias,omitempty" yaml:"alias,omitempty"`
	MP       float64 `json:"mp" yaml:"mp"` // market (cost) price
	SP       float64 `json:"sp" yaml:"sp"` // selling price
	Unit     string  `json:"unit,omitempty" yaml:"unit,omitempty"`
	Quantity float64 `json:"quantity" yaml:"quantity"`

	// Target is the restock threshold; nil means no target.
	Target *float64 `json:"target,omitempty" yaml:"target,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`

	Synced bool  `json:"synced" yaml:"synced"`
	Rev    int64 `json:"-" yaml:"-"`
}

// Normalize rewrites Name and Alias into their canonical form, rounds the
// quantity and turns a zero target into "unset".
func (i *Item) Normalize() {
	i.Name = NormalizeName(i.Name)
	i.Alias = NormalizeName(i.Alias)
	i.Quantity = RoundQuantity(i.Quantity)
	if i.Target != nil && *i.Target == 0 {
		i.Target = nil
	}
}

// Validate checks field values before the item is written.
func (i *Item) Validate() error {
	if i.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(i.Name) > 200 {
		return fmt.Errorf("name must be 200 characters or less (got %d)", len(i.Name))
	}
	if i.Quantity < 0 {
		return fmt.Errorf("quantity cannot be negative (got %g)", i.Quantity)
	}
	if i.MP < 0 {
		return fmt.Errorf("mp cannot be negative (got %g)", i.MP)
	}
	if i.SP < 0 {
		return fmt.Errorf("sp cannot be negative (got %g)", i.SP)
	}
	if i.Target != nil && *i.Target < 0 {
		return fmt.Errorf("target cannot be negative (got %g)", *i.Target)
	}
	return nil
}

// HasTarget reports whether a restock threshold is set.
func (i *Item) HasTarget() bool {
	return i.Target != nil && *i.Target > 0
}

// RecordID implements Record.
func (i *Item) RecordID() any { return i.ID }

// Revision implements Record.
func (i *Item) Revision() int64 { return i.Rev }

// Fields implements Record.
func (i *Item) Fields() map[string]any {
	var target any
	if i.Target != nil {
		target = *i.Target
	}
	return map[string]any{
		"id":         i.ID,
		"name":       i.Name,
		"quantity":   i.Quantity,
		"alias":      i.Alias,
		"mp":         i.MP,
		"sp":         i.SP,
		"unit":       i.Unit,
		"target":     target,
		"created_at": i.CreatedAt.UTC(),
		"updated_at": i.UpdatedAt.UTC(),
	}
}

// Float returns a pointer to v, for optional fields such as Item.Target.
func Float(v float64) *float64 {
	return &v
}
