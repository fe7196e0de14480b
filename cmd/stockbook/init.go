package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/stockbook/stockbook/internal/config"
	"github.com/stockbook/stockbook/internal/ui"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "setup",
	Short:   "Create the local database",
	Long: `Create the local database and its tables. Safe to run again.

With --remote, the remote tables are created as well; this needs the
network and a configured remote.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		withRemote, _ := cmd.Flags().GetBool("remote")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Printf("%s Local database ready: %s\n", ui.RenderPass("✓"), a.store.Path())
		if a.cfg.File != "" {
			fmt.Printf("   Config: %s\n", a.cfg.File)
		} else {
			fmt.Printf("   Config: %s (run 'stockbook config init' to write one)\n", ui.RenderMuted("built-in defaults"))
		}

		if !withRemote {
			return nil
		}
		m, ok := a.remote.(migrator)
		if !ok {
			return errNoRemote
		}

		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Remote.Timeout)
		defer cancel()
		if err := m.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to create remote tables: %w", err)
		}
		fmt.Printf("%s Remote tables ready\n", ui.RenderPass("✓"))
		return nil
	},
}

// migrator is a remote that can create its own tables.
type migrator interface {
	Migrate(ctx context.Context) error
}

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default config file",
	Long: `Write the built-in defaults to a TOML file for editing.

The default location is ~/.stockbook/stockbook.toml, or the --config path.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		path := cfgFile
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			path = filepath.Join(config.DataDir(), config.FileName)
		}

		if err := config.WriteDefault(path, config.Default(), force); err != nil {
			return fmt.Errorf("%w (use --force to overwrite)", err)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as TOML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		shown := *cfg
		if shown.Remote.DSN != "" {
			shown.Remote.DSN = "(set)"
		}
		if cfg.File != "" {
			fmt.Printf("# read from %s\n", cfg.File)
		}
		return toml.NewEncoder(os.Stdout).Encode(shown)
	},
}

func init() {
	initCmd.Flags().Bool("remote", false, "also create the remote tables")
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(initCmd, configCmd)
}
