package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/stockbook/stockbook/internal/schema"
	"github.com/stockbook/stockbook/internal/shop"
	"github.com/stockbook/stockbook/internal/ui"
)

var reportCmd = &cobra.Command{
	Use:     "report",
	GroupID: "shop",
	Short:   "Summarize sales and profit",
	Long: `Summarize sales for a day or a time range.

Profit is the sum of (selling price - market price) x quantity over the
sales in range. The report also lists items that are out of stock or at
or below their target.

Dates accept YYYY-MM-DD or phrases such as "yesterday", "last monday" or
"3 days ago":

  stockbook report                      # today
  stockbook report --day yesterday
  stockbook report --since 2024-03-01 --until 2024-04-01
  stockbook report --remote --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		day, _ := cmd.Flags().GetString("day")
		since, _ := cmd.Flags().GetString("since")
		until, _ := cmd.Flags().GetString("until")
		fromRemote, _ := cmd.Flags().GetBool("remote")
		format, _ := cmd.Flags().GetString("format")
		if err := checkFormat(format); err != nil {
			return err
		}

		from, to, err := reportRange(day, since, until, time.Now())
		if err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := context.Background()
		var report *shop.SalesReport
		if fromRemote {
			if a.remote == nil {
				return errNoRemote
			}
			rctx, cancel := context.WithTimeout(ctx, a.cfg.Remote.Timeout)
			report, err = a.shop.RemoteSalesReport(rctx, a.remote, from, to)
			cancel()
		} else {
			report, err = a.shop.SalesReport(ctx, from, to)
		}
		if err != nil {
			return fmt.Errorf("failed to build report: %w", err)
		}
		if done, err := emit(format, report); done {
			return err
		}
		printReport(report)
		return nil
	},
}

func printReport(r *shop.SalesReport) {
	fmt.Printf("\n%s Sales %s (%s)\n\n", ui.RenderAccent("📊"), describeRange(r.From, r.To), r.Source)
	fmt.Printf("Sales:  %d\n", r.Count)
	fmt.Printf("Total:  %s\n", money(r.Total))
	fmt.Printf("Profit: %s\n", money(r.Profit))

	if len(r.Items) > 0 {
		rows := make([][]string, 0, len(r.Items))
		for _, is := range r.Items {
			rows = append(rows, []string{is.Name, fmt.Sprint(is.Lines), num(is.Qty), money(is.Total), money(is.Profit)})
		}
		fmt.Println()
		fmt.Println(ui.Table([]string{"ITEM", "SALES", "QTY", "TOTAL", "PROFIT"}, rows))
	}

	if len(r.OutOfStock) > 0 {
		fmt.Printf("\n%s Out of stock: %s\n", ui.RenderFail("●"), itemNames(r.OutOfStock))
	}
	if len(r.LowStock) > 0 {
		fmt.Printf("%s At or below target: %s\n", ui.RenderWarn("●"), itemNames(r.LowStock))
	}
	fmt.Println()
}

// reportRange resolves the report flags into [from, to). --since and
// --until take precedence over --day; a missing bound is open.
func reportRange(day, since, until string, now time.Time) (time.Time, time.Time, error) {
	if since == "" && until == "" {
		t, err := parseDate(day, now)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from, to := shop.Day(t)
		return from, to, nil
	}

	var from, to time.Time
	var err error
	if since != "" {
		if from, err = parseDate(since, now); err != nil {
			return time.Time{}, time.Time{}, err
		}
		from, _ = shop.Day(from)
	}
	if until != "" {
		if to, err = parseDate(until, now); err != nil {
			return time.Time{}, time.Time{}, err
		}
		to, _ = shop.Day(to)
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("--since must be before --until")
	}
	return from, to, nil
}

var dateParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseDate accepts YYYY-MM-DD or a natural-language phrase relative to now.
func parseDate(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return now, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, now.Location()); err == nil {
		return t, nil
	}
	r, err := dateParser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return r.Time, nil
}

func describeRange(from, to time.Time) string {
	const layout = "2006-01-02"
	switch {
	case from.IsZero() && to.IsZero():
		return "all time"
	case to.IsZero():
		return "since " + from.Format(layout)
	case from.IsZero():
		return "before " + to.Format(layout)
	case to.Equal(from.AddDate(0, 0, 1)):
		return "on " + from.Format(layout)
	default:
		return from.Format(layout) + " to " + to.AddDate(0, 0, -1).Format(layout)
	}
}

func itemNames(items []*schema.Item) string {
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Name)
	}
	return strings.Join(names, ", ")
}

func init() {
	reportCmd.Flags().String("day", "today", "day to report on")
	reportCmd.Flags().String("since", "", "first day of a range (inclusive)")
	reportCmd.Flags().String("until", "", "day after the range ends (exclusive)")
	reportCmd.Flags().Bool("remote", false, "read sales from the remote replica")
	reportCmd.Flags().String("format", formatText, "output format: text, json or yaml")
	rootCmd.AddCommand(reportCmd)
}
