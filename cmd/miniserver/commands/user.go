package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/marmos91/miniserver/internal/cli/output"
	"github.com/marmos91/miniserver/internal/cli/prompt"
	"github.com/marmos91/miniserver/pkg/config"
	"github.com/marmos91/miniserver/pkg/models"
	"github.com/marmos91/miniserver/pkg/store"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
	Long: `Manage the users stored in the configured database.

Subcommands:
  list    List all users
  create  Create a user and its credentials
  delete  Delete a user, its credentials and tokens`,
}

var (
	userListOutput string

	userCreateName string
	userCreateTag  string

	userDeleteYes bool
)

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all users",
	Long: `List all users.

Examples:
  # List users as table
  miniserver user list

  # List as JSON
  miniserver user list -o json`,
	Args: cobra.NoArgs,
	RunE: runUserList,
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user",
	Long: `Create a user and its credentials. Prompts for the name when --name
is not given.

Examples:
  miniserver user create --name alice --tag ops`,
	Args: cobra.NoArgs,
	RunE: runUserCreate,
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a user",
	Long: `Delete a user together with its credentials and tokens.

This action is irreversible. You will be prompted for confirmation
unless --yes is specified.

Examples:
  miniserver user delete alice --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runUserDelete,
}

func init() {
	userListCmd.Flags().StringVarP(&userListOutput, "output", "o", "table", "Output format (table|json|yaml)")

	userCreateCmd.Flags().StringVar(&userCreateName, "name", "", "User name")
	userCreateCmd.Flags().StringVar(&userCreateTag, "tag", "", "Optional tag")

	userDeleteCmd.Flags().BoolVarP(&userDeleteYes, "yes", "y", false, "Skip confirmation prompt")

	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userDeleteCmd)
}

// UserList is a list of users for table rendering.
type UserList []*models.User

// Headers implements TableRenderer.
func (ul UserList) Headers() []string {
	return []string{"NAME", "TAG", "ID"}
}

// Rows implements TableRenderer.
func (ul UserList) Rows() [][]string {
	rows := make([][]string, 0, len(ul))
	for _, u := range ul {
		tag := u.GetTag()
		if tag == "" {
			tag = "-"
		}
		rows = append(rows, []string{u.Name, tag, u.ID})
	}
	return rows
}

var userValidator = validator.New(validator.WithRequiredStructEnabled())

func validateUserName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name is required")
	}
	return userValidator.Var(name, "max=255")
}

func runUserList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(userListOutput)
	if err != nil {
		return err
	}

	return withStore(func(ctx context.Context, _ *config.Config, st *store.GORMStore) error {
		users, err := st.ListUsers(ctx)
		if err != nil {
			return fmt.Errorf("failed to list users: %w", err)
		}

		printer := output.NewPrinter(cmd.OutOrStdout(), format)
		if len(users) == 0 && format == output.FormatTable {
			printer.Warning("No users found.")
			return nil
		}
		return printer.Print(UserList(users))
	})
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	name, err := prompt.ValueOrPrompt(userCreateName, "Name", validateUserName)
	if err != nil {
		return err
	}

	user := &models.User{Name: name}
	if userCreateTag != "" {
		tag := userCreateTag
		user.Tag = &tag
	}

	return withStore(func(ctx context.Context, _ *config.Config, st *store.GORMStore) error {
		if _, err := st.CreateUser(ctx, user); err != nil {
			if errors.Is(err, models.ErrDuplicateUser) {
				return fmt.Errorf("user %q already exists", name)
			}
			return fmt.Errorf("failed to create user: %w", err)
		}

		creds := &models.UserCredentials{ModelID: user.ID}
		if _, err := st.CreateCredentials(ctx, creds); err != nil {
			return fmt.Errorf("failed to create credentials: %w", err)
		}

		printer := output.NewPrinter(cmd.OutOrStdout(), output.FormatTable)
		printer.Success("User %q created", name)
		return output.PrintPairs(cmd.OutOrStdout(), [][2]string{
			{"ID", user.ID},
			{"Credentials", creds.ID},
		})
	})
}

func runUserDelete(cmd *cobra.Command, args []string) error {
	name := args[0]

	ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Delete user %q", name), userDeleteYes)
	if err != nil {
		if prompt.IsAborted(err) {
			return nil
		}
		return fmt.Errorf("%w (use --yes to confirm)", err)
	}
	if !ok {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
		return nil
	}

	return withStore(func(ctx context.Context, _ *config.Config, st *store.GORMStore) error {
		if err := st.PurgeUser(ctx, name); err != nil {
			if errors.Is(err, models.ErrUserNotFound) {
				return fmt.Errorf("user %q not found", name)
			}
			return fmt.Errorf("failed to delete user: %w", err)
		}
		output.NewPrinter(cmd.OutOrStdout(), output.FormatTable).Success("User %q deleted", name)
		return nil
	})
}
