package cmd

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"staff-registry/core"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage login accounts",
}

var (
	listPage    int
	listPerPage int
)

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, _, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		items, total, err := store.List(ctx, listPage, listPerPage)
		if err != nil {
			return fmt.Errorf("failed to list users: %w", err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSERNAME\tFULL NAME\tROLE\tACTIVE\tCREATED")
		for _, p := range items {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t%s\n", p.ID, p.Username, p.FullName, p.Role, p.Active, p.CreatedAt.Format("2006-01-02 15:04"))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d account(s)\n", len(items), total)
		return nil
	},
}

var (
	roleFlag   string
	activeFlag bool
)

var usersSetRoleCmd = &cobra.Command{
	Use:   "set-role <id>",
	Short: "Change the role of an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		role, err := core.ParseRole(roleFlag)
		if err != nil || roleFlag == "" {
			return fmt.Errorf("--role must be %q or %q", core.RoleUser, core.RoleAdmin)
		}

		ctx := cmd.Context()
		store, _, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.SetRole(ctx, id, role); err != nil {
			return fmt.Errorf("failed to update role: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "user %d is now %s\n", id, role)
		return nil
	},
}

var usersSetActiveCmd = &cobra.Command{
	Use:   "set-active <id>",
	Short: "Enable or disable an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		store, _, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.SetActive(ctx, id, activeFlag); err != nil {
			return fmt.Errorf("failed to update status: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "user %d active=%t\n", id, activeFlag)
		return nil
	},
}

var usersDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		store, _, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "user %d deleted\n", id)
		return nil
	},
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func init() {
	usersListCmd.Flags().IntVar(&listPage, "page", 1, "Page number")
	usersListCmd.Flags().IntVar(&listPerPage, "per-page", 50, "Accounts per page")

	usersSetRoleCmd.Flags().StringVar(&roleFlag, "role", "", "New role (user or admin)")
	_ = usersSetRoleCmd.MarkFlagRequired("role")
	usersSetActiveCmd.Flags().BoolVar(&activeFlag, "active", true, "Whether the account may sign in")

	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersCreateCmd)
	usersCmd.AddCommand(usersSetRoleCmd)
	usersCmd.AddCommand(usersSetActiveCmd)
	usersCmd.AddCommand(usersDeleteCmd)
}
