package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/stockbook/stockbook/internal/schema"
	"github.com/stockbook/stockbook/internal/shop"
	"github.com/stockbook/stockbook/internal/ui"
)

var itemCmd = &cobra.Command{
	Use:     "item",
	GroupID: "shop",
	Short:   "Manage items",
}

var itemAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add stock, restocking an existing item with the same name",
	Long: `Add stock for an item.

If an item with the same name already exists (names are compared
case-insensitively after trimming), its quantity is increased and its
prices replaced. Unit, alias and target are replaced only when given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := shop.StockInput{Name: args[0]}
		in.Alias, _ = cmd.Flags().GetString("alias")
		in.Unit, _ = cmd.Flags().GetString("unit")
		in.MP, _ = cmd.Flags().GetFloat64("mp")
		in.SP, _ = cmd.Flags().GetFloat64("sp")
		in.Quantity, _ = cmd.Flags().GetFloat64("qty")
		if cmd.Flags().Changed("target") {
			target, _ := cmd.Flags().GetFloat64("target")
			in.Target = schema.Float(target)
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		item, merged, err := a.shop.AddStock(context.Background(), in)
		if err != nil {
			return err
		}
		verb := "Added"
		if merged {
			verb = "Restocked"
		}
		fmt.Printf("%s %s %s (#%d): %s %s in stock\n",
			ui.RenderPass("✓"), verb, item.Name, item.ID, num(item.Quantity), item.Unit)
		return nil
	},
}

var itemListCmd = &cobra.Command{
	Use:   "list",
	Short: "List items",
	RunE: func(cmd *cobra.Command, args []string) error {
		search, _ := cmd.Flags().GetString("search")
		format, _ := cmd.Flags().GetString("format")
		if err := checkFormat(format); err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := context.Background()
		var items []*schema.Item
		if search != "" {
			items, err = a.store.SearchItems(ctx, search)
		} else {
			items, err = a.store.GetItems(ctx)
		}
		if err != nil {
			return fmt.Errorf("failed to list items: %w", err)
		}
		if done, err := emit(format, items); done {
			return err
		}

		if len(items) == 0 {
			fmt.Println("No items.")
			return nil
		}
		fmt.Println(ui.Table(itemHeaders, itemRows(items)))
		return nil
	},
}

var itemShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		if err := checkFormat(format); err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		item, err := a.store.GetItemByID(context.Background(), id)
		if err != nil {
			return err
		}
		if done, err := emit(format, item); done {
			return err
		}

		target := "-"
		if item.HasTarget() {
			target = num(*item.Target)
		}
		fmt.Printf("\n%s %s (#%d)\n\n", ui.RenderAccent("■"), item.Name, item.ID)
		fmt.Printf("Alias:    %s\n", orDash(item.Alias))
		fmt.Printf("Unit:     %s\n", orDash(item.Unit))
		fmt.Printf("Quantity: %s\n", num(item.Quantity))
		fmt.Printf("Target:   %s (%s)\n", target, shop.Classify(item))
		fmt.Printf("MP / SP:  %s / %s\n", money(item.MP), money(item.SP))
		fmt.Printf("Updated:  %s\n", item.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Printf("Synced:   %v\n\n", item.Synced)
		return nil
	},
}

var itemEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit an item's fields",
	Long: `Edit an item. Only the flags given are changed.

Setting --qty overwrites the stock count; use 'item add' to restock.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := context.Background()
		item, err := a.store.GetItemByID(ctx, id)
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		changed := false
		if flags.Changed("name") {
			item.Name, _ = flags.GetString("name")
			changed = true
		}
		if flags.Changed("alias") {
			item.Alias, _ = flags.GetString("alias")
			changed = true
		}
		if flags.Changed("unit") {
			item.Unit, _ = flags.GetString("unit")
			changed = true
		}
		if flags.Changed("mp") {
			item.MP, _ = flags.GetFloat64("mp")
			changed = true
		}
		if flags.Changed("sp") {
			item.SP, _ = flags.GetFloat64("sp")
			changed = true
		}
		if flags.Changed("qty") {
			item.Quantity, _ = flags.GetFloat64("qty")
			changed = true
		}
		if flags.Changed("target") {
			target, _ := flags.GetFloat64("target")
			item.Target = schema.Float(target)
			changed = true
		}
		if !changed {
			fmt.Printf("%s Nothing to change\n", ui.RenderWarn("⚠"))
			return nil
		}

		if err := a.shop.EditItem(ctx, item); err != nil {
			return err
		}
		fmt.Printf("%s Updated %s (#%d)\n", ui.RenderPass("✓"), item.Name, item.ID)
		return nil
	},
}

var itemRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete an item locally",
	Long: `Delete an item from the local database.

Past sales keep their copy of the name and prices. The item is not
removed from the remote replica.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.shop.DeleteItem(context.Background(), id); err != nil {
			return err
		}
		fmt.Printf("%s Deleted item #%d\n", ui.RenderPass("✓"), id)
		return nil
	},
}

var itemTargetCmd = &cobra.Command{
	Use:   "target <id> <quantity>",
	Short: "Set an item's restock target (0 clears it)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		target, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid target %q", args[1])
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		item, err := a.shop.SetTarget(context.Background(), id, target)
		if err != nil {
			return err
		}
		if item.HasTarget() {
			fmt.Printf("%s %s target set to %s (%s)\n",
				ui.RenderPass("✓"), item.Name, num(*item.Target), shop.Classify(item))
		} else {
			fmt.Printf("%s %s target cleared\n", ui.RenderPass("✓"), item.Name)
		}
		return nil
	},
}

var stockCmd = &cobra.Command{
	Use:     "stock",
	GroupID: "shop",
	Short:   "Show stock levels against targets",
	Long: `Group items by stock level:

  no target     no restock target set
  out of stock  quantity is zero
  running low   below half of the target
  good          everything else

An item without a target that is also out of stock appears in both of the
first two groups.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		if err := checkFormat(format); err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		levels, err := a.shop.StockLevels(context.Background())
		if err != nil {
			return fmt.Errorf("failed to read stock: %w", err)
		}
		if done, err := emit(format, levels); done {
			return err
		}

		groups := []struct {
			title  string
			render func(string) string
			items  []*schema.Item
		}{
			{"No target", ui.RenderMuted, levels.NoTarget},
			{"Out of stock", ui.RenderFail, levels.OutOfStock},
			{"Running low", ui.RenderWarn, levels.RunningLow},
			{"Good", ui.RenderPass, levels.Good},
		}
		for _, g := range groups {
			fmt.Printf("\n%s %s (%d)\n", g.render("●"), g.title, len(g.items))
			if len(g.items) > 0 {
				fmt.Println(ui.Table(itemHeaders, itemRows(g.items)))
			}
		}
		fmt.Println()
		return nil
	},
}

var itemHeaders = []string{"ID", "NAME", "QTY", "UNIT", "TARGET", "MP", "SP", "SYNCED"}

func itemRows(items []*schema.Item) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		target := "-"
		if item.HasTarget() {
			target = num(*item.Target)
		}
		synced := ui.RenderPass("yes")
		if !item.Synced {
			synced = ui.RenderWarn("no")
		}
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			item.Name,
			num(item.Quantity),
			orDash(item.Unit),
			target,
			money(item.MP),
			money(item.SP),
			synced,
		})
	}
	return rows
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid item id %q", s)
	}
	return id, nil
}

func init() {
	for _, c := range []*cobra.Command{itemAddCmd, itemEditCmd} {
		c.Flags().String("alias", "", "alternative name")
		c.Flags().String("unit", "", "unit of measure (kg, pcs, ...)")
		c.Flags().Float64("mp", 0, "market (cost) price per unit")
		c.Flags().Float64("sp", 0, "selling price per unit")
		c.Flags().Float64("qty", 0, "quantity")
		c.Flags().Float64("target", 0, "restock target (0 clears)")
	}
	itemEditCmd.Flags().String("name", "", "new name")

	itemListCmd.Flags().StringP("search", "s", "", "filter by name or alias")
	for _, c := range []*cobra.Command{itemListCmd, itemShowCmd, stockCmd} {
		c.Flags().String("format", formatText, "output format: text, json or yaml")
	}

	itemCmd.AddCommand(itemAddCmd, itemListCmd, itemShowCmd, itemEditCmd, itemRmCmd, itemTargetCmd)
	rootCmd.AddCommand(itemCmd, stockCmd)
}
