package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stockbook/stockbook/internal/dashboard"
	stocksync "github.com/stockbook/stockbook/internal/sync"
	"github.com/stockbook/stockbook/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Keep the remote replica up to date (foreground)",
	Long: `Run the sync loop in the foreground until interrupted.

The daemon syncs:
  1. Once at start-up
  2. Every sync.interval (default 24h)
  3. Shortly after another stockbook process writes to the database,
     when sync.watch is on

With a dashboard port, a WebSocket feed of sync results and stock
statistics is served at ws://<host>:<port>/ws, and a JSON summary of
the latest statistics at http://<host>:<port>/.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if a.remote == nil {
			fmt.Fprintf(os.Stderr, "%s No remote configured; cycles will be skipped\n", ui.RenderWarn("⚠"))
		}

		port := a.cfg.Dashboard.Port
		if cmd.Flags().Changed("dashboard-port") {
			port, _ = cmd.Flags().GetInt("dashboard-port")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if port > 0 {
			addr := net.JoinHostPort(a.cfg.Dashboard.Host, strconv.Itoa(port))
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("failed to start dashboard: %w", err)
			}

			feed := dashboard.New(dashboard.StoreStats(a.store, a.shop), a.logs.Logger("dashboard"))
			a.syncConfig.Observer = feed

			feedDone := make(chan error, 1)
			go func() { feedDone <- feed.Run(ctx, ln) }()
			defer func() {
				stop()
				if err := <-feedDone; err != nil {
					fmt.Fprintf(os.Stderr, "Error stopping dashboard: %v\n", err)
				}
			}()
			fmt.Printf("   Dashboard: ws://%s/ws\n", ln.Addr())
		}

		runnerConfig := &stocksync.RunnerConfig{
			Interval:         a.cfg.Sync.Interval,
			SyncOnStart:      true,
			DebounceInterval: a.cfg.Sync.Debounce,
			Logger:           a.logs.Logger("runner"),
		}
		if a.cfg.Sync.Watch {
			runnerConfig.WatchPath = a.store.Path()
		}
		runner := stocksync.NewRunner(a.engine, a.store, runnerConfig)
		a.notifier = runner

		fmt.Printf("%s Starting sync daemon...\n", ui.RenderAccent("🚀"))
		fmt.Printf("   Database: %s\n", a.store.Path())
		fmt.Printf("   Interval: %v\n", a.cfg.Sync.Interval)
		fmt.Printf("   Watching: %v\n", a.cfg.Sync.Watch)
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		if err := runner.Run(ctx); err != nil {
			return fmt.Errorf("daemon stopped: %w", err)
		}
		return nil
	},
}

func init() {
	daemonCmd.Flags().Int("dashboard-port", 0, "serve the WebSocket dashboard on this port (0 disables)")
	rootCmd.AddCommand(daemonCmd)
}
