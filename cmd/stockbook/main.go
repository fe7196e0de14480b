// Command stockbook is an offline-first stock and sales book for small
// shops. Every write lands in a local database first and is pushed to a
// Postgres replica whenever the network allows.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/stockbook/stockbook/internal/config"
	"github.com/stockbook/stockbook/internal/logging"
	"github.com/stockbook/stockbook/internal/probe"
	"github.com/stockbook/stockbook/internal/remote"
	"github.com/stockbook/stockbook/internal/shop"
	"github.com/stockbook/stockbook/internal/store"
	stocksync "github.com/stockbook/stockbook/internal/sync"
)

var (
	cfgFile string
	dbPath  string
	noSync  bool
)

var rootCmd = &cobra.Command{
	Use:   "stockbook",
	Short: "Offline-first stock and sales book",
	Long: `stockbook keeps a shop's items, sales and workers in a local database
that works without a network, and pushes changes to a shared Postgres
replica when one is reachable.

Configuration is read from stockbook.toml (working directory,
$STOCKBOOK_HOME or ~/.stockbook), STOCKBOOK_* environment variables
and .env.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./stockbook.toml or ~/.stockbook/stockbook.toml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "local database path (overrides db.path)")
	rootCmd.PersistentFlags().BoolVar(&noSync, "no-sync", false, "do not push changes after this command")

	rootCmd.AddGroup(
		&cobra.Group{ID: "shop", Title: "Shop:"},
		&cobra.Group{ID: "people", Title: "Workers:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// errNoRemote is returned by commands that need the remote replica.
var errNoRemote = errors.New("no remote configured (set remote.dsn or DATABASE_URL)")

// app holds everything a command needs. Build it with openApp and release
// it with Close.
type app struct {
	cfg    *config.Config
	logs   *logging.Output
	store  *store.Store
	shop   *shop.Shop
	remote remote.Store // nil when no DSN is configured
	prober probe.Prober
	engine *stocksync.Engine
	// syncConfig is shared with engine; Observer may be set before the
	// first cycle.
	syncConfig *stocksync.Config

	// notifier receives shop notifications; nil means push on Close.
	notifier      shop.Notifier
	syncRequested bool
}

// loadConfig reads configuration honouring the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DB.Path = dbPath
	}
	return cfg, nil
}

// openApp opens the local store and wires the remote, engine and shop.
// The remote connects lazily, so this works offline.
func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logs := logging.Open(cfg.Log)

	st, err := store.Open(cfg.DB.Path)
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := st.InitSchema(context.Background()); err != nil {
		_ = st.Close()
		_ = logs.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	var rs remote.Store
	if cfg.Remote.DSN != "" {
		rs = remote.NewPostgres(remote.Config{
			DSN:         cfg.Remote.DSN,
			AutoMigrate: cfg.Remote.AutoMigrate,
			Logger:      logs.Logger("remote"),
		})
	}
	return newApp(cfg, logs, st, rs, probe.NewTCP(cfg.ProbeAddress(), cfg.Probe.Timeout)), nil
}

// newApp wires the engine and shop around an opened store. rs may be nil.
func newApp(cfg *config.Config, logs *logging.Output, st *store.Store, rs remote.Store, prober probe.Prober) *app {
	a := &app{cfg: cfg, logs: logs, store: st, remote: rs, prober: prober}
	a.syncConfig = &stocksync.Config{
		BatchSize:     cfg.Sync.BatchSize,
		RemoteTimeout: cfg.Remote.Timeout,
		Logger:        logs.Logger("sync"),
	}
	a.engine = stocksync.New(st, rs, prober, a.syncConfig)
	a.shop = shop.New(st, shop.NotifierFunc(a.notify), logs.Logger("shop"))
	return a
}

// notify records that a push is wanted, or forwards to a runner.
func (a *app) notify() {
	if a.notifier != nil {
		a.notifier.Notify()
		return
	}
	a.syncRequested = true
}

// Close pushes pending changes if a workflow asked for it, then releases
// resources. The push is best-effort and bounded by the remote timeout.
func (a *app) Close() {
	if a.syncRequested && !noSync && a.remote != nil {
		timeout := a.cfg.Remote.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout+a.cfg.Probe.Timeout)
		a.engine.AutoSync(ctx)
		cancel()
	}
	a.syncRequested = false

	if closer, ok := a.remote.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			a.logs.Logger("remote").Printf("Error closing remote: %v", err)
		}
	}
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error closing database: %v\n", err)
	}
	_ = a.logs.Close()
}
