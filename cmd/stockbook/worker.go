package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/stockbook/stockbook/internal/schema"
	"github.com/stockbook/stockbook/internal/shop"
	"github.com/stockbook/stockbook/internal/store"
	"github.com/stockbook/stockbook/internal/ui"
)

var workerCmd = &cobra.Command{
	Use:     "worker",
	GroupID: "people",
	Short:   "Manage workers",
}

var workerAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a worker",
	Long: `Create a worker account.

Without --username, and on a terminal, a form asks for the details.
Workers created without --password get the default password and should
change it with 'stockbook passwd'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		in := shop.WorkerInput{}
		in.FullName, _ = cmd.Flags().GetString("name")
		in.Username, _ = cmd.Flags().GetString("username")
		in.Email, _ = cmd.Flags().GetString("email")
		in.Phone, _ = cmd.Flags().GetString("phone")
		in.Password, _ = cmd.Flags().GetString("password")
		role, _ := cmd.Flags().GetString("role")

		if in.Username == "" {
			if !ui.IsInteractive() {
				return errors.New("--username is required")
			}
			if err := workerForm(&in, &role).Run(); err != nil {
				return err
			}
		}
		if role == "" {
			role = string(schema.RoleClient)
		}
		in.Role = schema.Role(role)
		if !in.Role.Valid() {
			return fmt.Errorf("invalid role %q (want client, admin or owner)", role)
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		w, err := a.shop.CreateWorker(context.Background(), in)
		if errors.Is(err, store.ErrDuplicateUsername) {
			return fmt.Errorf("username %q is taken", in.Username)
		}
		if err != nil {
			return err
		}

		fmt.Printf("%s Created %s (%s, %s)\n", ui.RenderPass("✓"), w.Username, w.FullName, w.Role)
		if in.Password == "" {
			fmt.Printf("   Default password: %s\n", shop.DefaultPassword)
		}
		return nil
	},
}

// workerForm asks for the fields of a new worker.
func workerForm(in *shop.WorkerInput, role *string) *huh.Form {
	required := func(field string) func(string) error {
		return func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("%s is required", field)
			}
			return nil
		}
	}

	roles := make([]string, 0, len(schema.Roles))
	for _, r := range schema.Roles {
		roles = append(roles, string(r))
	}
	if *role == "" {
		*role = string(schema.RoleClient)
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Full name").Value(&in.FullName).Validate(required("full name")),
			huh.NewInput().Title("Username").Value(&in.Username).Validate(required("username")),
			huh.NewInput().Title("Email").Value(&in.Email),
			huh.NewInput().Title("Phone").Value(&in.Phone),
			huh.NewSelect[string]().Title("Role").Options(huh.NewOptions(roles...)...).Value(role),
		),
	)
}

var workerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workers",
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

		workers, err := a.shop.Workers(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list workers: %w", err)
		}
		if done, err := emit(format, workers); done {
			return err
		}
		if len(workers) == 0 {
			fmt.Println("No workers.")
			return nil
		}

		rows := make([][]string, 0, len(workers))
		for _, w := range workers {
			rows = append(rows, []string{w.Username, w.FullName, string(w.Role), orDash(w.Email), orDash(w.Phone)})
		}
		fmt.Println(ui.Table([]string{"USERNAME", "NAME", "ROLE", "EMAIL", "PHONE"}, rows))
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:     "login <username>",
	GroupID: "people",
	Short:   "Check a worker's credentials",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			var err error
			if password, err = askPassword("Password"); err != nil {
				return err
			}
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		w, err := a.shop.Authenticate(context.Background(), args[0], password)
		if err != nil {
			return err
		}
		fmt.Printf("%s Welcome, %s (%s)\n", ui.RenderPass("✓"), w.FullName, w.Role)
		if w.CheckPassword(shop.DefaultPassword) {
			fmt.Printf("%s You are using the default password. Change it with 'stockbook passwd %s'\n",
				ui.RenderWarn("⚠"), w.Username)
		}
		return nil
	},
}

var passwdCmd = &cobra.Command{
	Use:     "passwd <username>",
	GroupID: "people",
	Short:   "Change a worker's password",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !ui.IsInteractive() {
			return errors.New("passwd needs a terminal")
		}
		oldPassword, err := askPassword("Current password")
		if err != nil {
			return err
		}
		newPassword, err := askPassword("New password")
		if err != nil {
			return err
		}
		repeat, err := askPassword("Repeat new password")
		if err != nil {
			return err
		}
		if repeat != newPassword {
			return errors.New("passwords do not match")
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.shop.ChangePassword(context.Background(), args[0], oldPassword, newPassword); err != nil {
			return err
		}
		fmt.Printf("%s Password changed\n", ui.RenderPass("✓"))
		return nil
	},
}

// askPassword prompts for a password without echo.
func askPassword(title string) (string, error) {
	if !ui.IsInteractive() {
		return "", errors.New("--password is required")
	}
	var password string
	err := huh.NewInput().
		Title(title).
		EchoMode(huh.EchoModePassword).
		Value(&password).
		Run()
	return password, err
}

func init() {
	workerAddCmd.Flags().String("name", "", "full name")
	workerAddCmd.Flags().String("username", "", "login name (unique)")
	workerAddCmd.Flags().String("email", "", "email address")
	workerAddCmd.Flags().String("phone", "", "phone number")
	workerAddCmd.Flags().String("role", "", "client, admin or owner (default client)")
	workerAddCmd.Flags().String("password", "", "initial password (default "+shop.DefaultPassword+")")
	workerListCmd.Flags().String("format", formatText, "output format: text, json or yaml")
	loginCmd.Flags().String("password", "", "password (prompted when omitted)")

	workerCmd.AddCommand(workerAddCmd, workerListCmd)
	rootCmd.AddCommand(workerCmd, loginCmd, passwdCmd)
}
