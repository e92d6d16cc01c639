package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"recargas/internal/console"
	"recargas/internal/core"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var (
	userEmail    string
	userName     string
	userPassword string
	userStaff    bool
)

var userCreateCmd = &cobra.Command{
	Use:   "create USERNAME",
	Short: "Create a user account",
	Long: `Creates a user. The password comes from --password or the
RECARGAS_PASSWORD environment variable.`,
	Args: cobra.ExactArgs(1),
	RunE: runUserCreate,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users with their recharge counts",
	RunE:  runUserList,
}

func init() {
	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "e-mail address")
	userCreateCmd.Flags().StringVar(&userName, "name", "", "first name")
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "password (prefer RECARGAS_PASSWORD)")
	userCreateCmd.Flags().BoolVar(&userStaff, "staff", false, "grant access to the admin pages")
	userCmd.AddCommand(userCreateCmd, userListCmd)
	rootCmd.AddCommand(userCmd)
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	password := userPassword
	if password == "" {
		password = os.Getenv("RECARGAS_PASSWORD")
	}
	if len(password) < 8 {
		return fmt.Errorf("password must have at least 8 characters")
	}

	cfg, st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(st)

	u, err := newAccounts(cfg, st.Store).CreateUser(ctx, core.User{
		Username:  args[0],
		Email:     userEmail,
		FirstName: userName,
		IsStaff:   userStaff,
	}, password)
	if err != nil {
		return err
	}
	role := "user"
	if u.IsStaff {
		role = console.Cyan("staff")
	}
	out.Success("Created %s %s (id %d)", role, u.Username, u.ID)
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(st)

	users, err := newAccounts(cfg, st.Store).ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		out.Info("no users")
		return nil
	}
	out.Println(console.Users(users))
	return nil
}
