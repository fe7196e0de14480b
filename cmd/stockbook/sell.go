package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/stockbook/stockbook/internal/shop"
	"github.com/stockbook/stockbook/internal/store"
	"github.com/stockbook/stockbook/internal/ui"
)

var sellCmd = &cobra.Command{
	Use:     "sell <item>:<qty>[@price]...",
	GroupID: "shop",
	Short:   "Check out a cart",
	Long: `Sell one or more items in a single checkout.

Each argument is an item (id or name), a quantity and an optional unit
price. Without a price the item's selling price is used:

  stockbook sell sugar:2 12:1.5 "cooking oil:1@450"

All lines are checked against current stock before anything is written.
A price under the item's cost is refused unless --allow-below-cost is set
or the sale is confirmed at the prompt.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		allow, _ := cmd.Flags().GetBool("allow-below-cost")

		entries := make([]cartEntry, 0, len(args))
		for _, arg := range args {
			entry, err := parseCartArg(arg)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := context.Background()
		lines, err := resolveCart(ctx, a.store, entries)
		if err != nil {
			return err
		}

		receipt, err := a.shop.Checkout(ctx, lines, shop.CheckoutOptions{AllowBelowCost: allow})
		if errors.Is(err, shop.ErrBelowCost) && !allow && ui.IsInteractive() {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderWarn("⚠"), err)
			confirmed := false
			prompt := huh.NewConfirm().
				Title("Sell below cost?").
				Affirmative("Sell").
				Negative("Cancel").
				Value(&confirmed)
			if perr := prompt.Run(); perr != nil {
				return perr
			}
			if !confirmed {
				fmt.Println("Checkout cancelled.")
				return nil
			}
			receipt, err = a.shop.Checkout(ctx, lines, shop.CheckoutOptions{AllowBelowCost: true})
		}
		if err != nil {
			return fmt.Errorf("checkout failed: %w", err)
		}

		rows := make([][]string, 0, len(receipt.Sales))
		for _, sale := range receipt.Sales {
			rows = append(rows, []string{sale.Name, num(sale.Qty), money(sale.SP), money(sale.Subtotal)})
		}
		fmt.Println(ui.Table([]string{"ITEM", "QTY", "PRICE", "SUBTOTAL"}, rows))
		fmt.Printf("%s Sold %d line(s), total %s (profit %s)\n",
			ui.RenderPass("✓"), len(receipt.Sales), money(receipt.Total), money(receipt.Profit))
		return nil
	},
}

// cartEntry is one parsed sell argument.
type cartEntry struct {
	Ref   string
	Qty   float64
	Price float64
}

// parseCartArg parses "item:qty" or "item:qty@price". The item part may
// itself contain colons; the last one separates the quantity.
func parseCartArg(arg string) (cartEntry, error) {
	i := strings.LastIndex(arg, ":")
	if i <= 0 || i == len(arg)-1 {
		return cartEntry{}, fmt.Errorf("invalid cart line %q (want item:qty[@price])", arg)
	}
	entry := cartEntry{Ref: strings.TrimSpace(arg[:i])}
	rest := arg[i+1:]

	if at := strings.Index(rest, "@"); at >= 0 {
		price, err := strconv.ParseFloat(rest[at+1:], 64)
		if err != nil || price <= 0 {
			return cartEntry{}, fmt.Errorf("invalid price in %q", arg)
		}
		entry.Price = price
		rest = rest[:at]
	}

	qty, err := strconv.ParseFloat(rest, 64)
	if err != nil || qty <= 0 {
		return cartEntry{}, fmt.Errorf("invalid quantity in %q", arg)
	}
	entry.Qty = qty
	if entry.Ref == "" {
		return cartEntry{}, fmt.Errorf("missing item in %q", arg)
	}
	return entry, nil
}

// resolveCart turns item references into ids. A numeric reference is an
// id; anything else is looked up by name.
func resolveCart(ctx context.Context, st *store.Store, entries []cartEntry) ([]shop.CartLine, error) {
	lines := make([]shop.CartLine, 0, len(entries))
	for _, entry := range entries {
		ref := strings.TrimPrefix(entry.Ref, "#")
		id, err := strconv.ParseInt(ref, 10, 64)
		if err != nil {
			item, ferr := st.FindItemByName(ctx, entry.Ref)
			if ferr != nil {
				return nil, ferr
			}
			id = item.ID
		}
		lines = append(lines, shop.CartLine{ItemID: id, Qty: entry.Qty, Price: entry.Price})
	}
	return lines, nil
}

func init() {
	sellCmd.Flags().Bool("allow-below-cost", false, "sell under cost without asking")
	rootCmd.AddCommand(sellCmd)
}
