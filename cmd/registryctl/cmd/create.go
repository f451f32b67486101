package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"staff-registry/core"
)

var (
	usernameFlag string
	fullNameFlag string
	newRoleFlag  string
	stdinFlag    bool
)

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an account",
	Long: `Creates an account with the given role. The password is prompted for on a
terminal, or read from the first line of stdin with --stdin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		role, err := core.ParseRole(newRoleFlag)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		password, err := readPassword(cmd.InOrStdin(), out, stdinFlag)
		if err != nil {
			return err
		}
		username, fullName, err := core.ValidateAccount(usernameFlag, password, fullNameFlag)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		store, cfg, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		hash, err := core.NewBcryptHasher(cfg.BcryptCost).Hash(password)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		created, err := store.Insert(ctx, username, hash, fullName, role)
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		if !created {
			return fmt.Errorf("username %q already exists", username)
		}
		fmt.Fprintf(out, "created %s (%s)\n", username, role)
		return nil
	},
}

// readPassword reads one line from in when fromStdin is set, otherwise
// prompts twice on the terminal without echo.
func readPassword(in io.Reader, out io.Writer, fromStdin bool) (string, error) {
	if fromStdin {
		return readPasswordLine(in)
	}
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return "", errors.New("stdin is not a terminal; use --stdin to pipe the password")
	}
	fd := int(f.Fd())

	fmt.Fprint(out, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Fprint(out, "Confirm password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}

func readPasswordLine(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return "", errors.New("no password on stdin")
	}
	return strings.TrimRight(scanner.Text(), "\r"), nil
}

func init() {
	usersCreateCmd.Flags().StringVar(&usernameFlag, "username", "", "Login name")
	usersCreateCmd.Flags().StringVar(&fullNameFlag, "full-name", "", "Display name")
	usersCreateCmd.Flags().StringVar(&newRoleFlag, "role", string(core.RoleUser), "Role (user or admin)")
	usersCreateCmd.Flags().BoolVar(&stdinFlag, "stdin", false, "Read password from stdin instead of prompting")
	_ = usersCreateCmd.MarkFlagRequired("username")
	_ = usersCreateCmd.MarkFlagRequired("full-name")
}
