package shop

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/stockbook/stockbook/internal/remote"
	"github.com/stockbook/stockbook/internal/schema"
	"github.com/stockbook/stockbook/internal/store"
)

// ItemSales totals the sales of one item within a report.
type ItemSales struct {
	Name   string  `json:"name" yaml:"name"`
	Lines  int     `json:"lines" yaml:"lines"`
	Qty    float64 `json:"qty" yaml:"qty"`
	Total  float64 `json:"total" yaml:"total"`
	Profit float64 `json:"profit" yaml:"profit"`
}

// SalesReport summarizes sales over [From, To) alongside current stock
// warnings.
type SalesReport struct {
	From   time.Time   `json:"from" yaml:"from"`
	To     time.Time   `json:"to" yaml:"to"`
	Source string      `json:"source" yaml:"source"`
	Count  int         `json:"count" yaml:"count"`
	Total  float64     `json:"total" yaml:"total"`
	Profit float64     `json:"profit" yaml:"profit"`
	Items  []ItemSales `json:"items" yaml:"items"`

	OutOfStock []*schema.Item `json:"out_of_stock" yaml:"out_of_stock"`
	LowStock   []*schema.Item `json:"low_stock" yaml:"low_stock"`
}

// SalesReport builds a report from the local store.
func (s *Shop) SalesReport(ctx context.Context, from, to time.Time) (*SalesReport, error) {
	sales, err := s.st.ListSales(ctx, store.SalesFilter{From: from, To: to})
	if err != nil {
		return nil, err
	}
	items, err := s.st.GetItems(ctx)
	if err != nil {
		return nil, err
	}
	return buildReport("local", from, to, sales, items), nil
}

// RemoteSalesReport builds the same report from the remote replica, which
// includes sales made on other devices.
func (s *Shop) RemoteSalesReport(ctx context.Context, rs remote.Store, from, to time.Time) (*SalesReport, error) {
	var filters []remote.Filter
	if !from.IsZero() {
		filters = append(filters, remote.Gte("created_at", from.UTC()))
	}
	if !to.IsZero() {
		filters = append(filters, remote.Lt("created_at", to.UTC()))
	}

	saleRows, err := rs.Select(ctx, "sales", filters...)
	if err != nil {
		return nil, err
	}
	itemRows, err := rs.Select(ctx, "items")
	if err != nil {
		return nil, err
	}

	sales := make([]*schema.Sale, 0, len(saleRows))
	for _, row := range saleRows {
		sales = append(sales, saleFromRow(row))
	}
	items := make([]*schema.Item, 0, len(itemRows))
	for _, row := range itemRows {
		items = append(items, itemFromRow(row))
	}
	return buildReport("remote", from, to, sales, items), nil
}

func buildReport(source string, from, to time.Time, sales []*schema.Sale, items []*schema.Item) *SalesReport {
	report := &SalesReport{From: from, To: to, Source: source, Count: len(sales)}

	byName := make(map[string]*ItemSales)
	for _, sale := range sales {
		report.Total += sale.Subtotal
		report.Profit += sale.Profit()

		is := byName[sale.Name]
		if is == nil {
			is = &ItemSales{Name: sale.Name}
			byName[sale.Name] = is
		}
		is.Lines++
		is.Qty += sale.Qty
		is.Total += sale.Subtotal
		is.Profit += sale.Profit()
	}

	for _, is := range byName {
		report.Items = append(report.Items, *is)
	}
	sort.Slice(report.Items, func(i, j int) bool {
		if report.Items[i].Total != report.Items[j].Total {
			return report.Items[i].Total > report.Items[j].Total
		}
		return report.Items[i].Name < report.Items[j].Name
	})

	for _, item := range items {
		switch {
		case schema.RoundQuantity(item.Quantity) <= 0:
			report.OutOfStock = append(report.OutOfStock, item)
		case item.HasTarget() && item.Quantity <= *item.Target:
			report.LowStock = append(report.LowStock, item)
		}
	}
	return report
}

// Day returns the local-time bounds [start, end) of the day containing t.
func Day(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

func saleFromRow(row remote.Row) *schema.Sale {
	return &schema.Sale{
		ID:        toInt(row["id"]),
		Name:      toString(row["name"]),
		MP:        toFloat(row["mp"]),
		SP:        toFloat(row["sp"]),
		Qty:       toFloat(row["qty"]),
		Subtotal:  toFloat(row["subtotal"]),
		CreatedAt: toTime(row["created_at"]),
		Synced:    true,
	}
}

func itemFromRow(row remote.Row) *schema.Item {
	item := &schema.Item{
		ID:        toInt(row["id"]),
		Name:      toString(row["name"]),
		Alias:     toString(row["alias"]),
		Unit:      toString(row["unit"]),
		MP:        toFloat(row["mp"]),
		SP:        toFloat(row["sp"]),
		Quantity:  toFloat(row["quantity"]),
		CreatedAt: toTime(row["created_at"]),
		UpdatedAt: toTime(row["updated_at"]),
		Synced:    true,
	}
	if row["target"] != nil {
		item.Target = schema.Float(toFloat(row["target"]))
		item.Normalize()
	}
	return item
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

func toInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func toString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func toTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := schema.ParseTime(t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
