package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stockbook/stockbook/internal/schema"
	"github.com/stockbook/stockbook/internal/store"
	"github.com/stockbook/stockbook/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Push unsynced changes to the remote replica",
	Long: `Run one sync cycle now.

If the network probe fails, nothing is sent and nothing is marked. Items
are pushed first, then sales, then workers; a failure in one entity does
not stop the others. Rows are marked synced only after the remote accepted
them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if a.remote == nil {
			return errNoRemote
		}

		fmt.Printf("%s Syncing %s...\n", ui.RenderAccent("🔄"), a.store.Path())
		start := time.Now()
		report, err := a.engine.Sync(context.Background())
		elapsed := time.Since(start)

		if !report.Online {
			fmt.Printf("%s Offline, nothing sent\n", ui.RenderWarn("⚠"))
			return nil
		}

		for _, e := range report.Entities {
			mark := ui.RenderPass("✓")
			if e.Err != nil {
				mark = ui.RenderFail("✗")
			}
			fmt.Printf("   %s %-6s pending %d, pushed %d, marked %d", mark, e.Entity, e.Pending, e.Pushed, e.Marked)
			if e.Stale > 0 {
				fmt.Printf(", %d edited again", e.Stale)
			}
			fmt.Println()
		}

		if err != nil {
			return fmt.Errorf("sync finished with failures: %w", err)
		}
		fmt.Printf("%s Sync complete in %v (%d rows)\n",
			ui.RenderPass("✓"), elapsed.Round(time.Millisecond), report.TotalPushed())
		return nil
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pending changes and the last sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		checkNet, _ := cmd.Flags().GetBool("probe")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := context.Background()
		counts, err := a.store.UnsyncedCounts(ctx)
		if err != nil {
			return fmt.Errorf("failed to count pending rows: %w", err)
		}

		fmt.Printf("\n%s Sync Status\n\n", ui.RenderAccent("📊"))
		fmt.Printf("Database: %s\n", a.store.Path())
		if a.cfg.Remote.DSN == "" {
			fmt.Printf("Remote:   %s\n", ui.RenderWarn("not configured"))
		} else {
			fmt.Printf("Remote:   configured (probe %s)\n", a.cfg.ProbeAddress())
		}
		if checkNet {
			if a.prober.Connected(ctx) {
				fmt.Printf("Network:  %s\n", ui.RenderPass("reachable"))
			} else {
				fmt.Printf("Network:  %s\n", ui.RenderFail("unreachable"))
			}
		}

		fmt.Println("\nPending:")
		for _, e := range schema.Entities {
			n := counts[e]
			label := ui.RenderPass("0")
			if n > 0 {
				label = ui.RenderWarn(fmt.Sprint(n))
			}
			fmt.Printf("   %-6s %s\n", e, label)
		}

		attempt, err := lastRun(ctx, a.store, false)
		if err != nil {
			return err
		}
		online, err := lastRun(ctx, a.store, true)
		if err != nil {
			return err
		}
		fmt.Println()
		printRun("Last attempt:", attempt)
		printRun("Last online: ", online)
		fmt.Println()
		return nil
	},
}

// lastRun returns the latest recorded cycle, or nil if there is none.
func lastRun(ctx context.Context, st *store.Store, onlineOnly bool) (*store.SyncRun, error) {
	run, err := st.LastSyncRun(ctx, onlineOnly)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return run, err
}

func printRun(label string, run *store.SyncRun) {
	if run == nil {
		fmt.Printf("%s %s\n", label, ui.RenderMuted("never"))
		return
	}
	when := run.FinishedAt.Local().Format("2006-01-02 15:04:05")
	switch {
	case !run.Online:
		fmt.Printf("%s %s %s\n", label, when, ui.RenderMuted("(offline)"))
	case run.Error != "":
		fmt.Printf("%s %s %s %s\n", label, when, ui.RenderFail("failed:"), run.Error)
	default:
		fmt.Printf("%s %s (items %d, sales %d, workers %d)\n",
			label, when, run.ItemsPushed, run.SalesPushed, run.WorkersPushed)
	}
}

func init() {
	syncStatusCmd.Flags().Bool("probe", false, "also check network connectivity")
	syncCmd.AddCommand(syncStatusCmd)
	rootCmd.AddCommand(syncCmd)
}
