package cmd

import (
	"fmt"
	"os"

	"github.com/fitteam/fitlib/internal/models"
	"github.com/fitteam/fitlib/internal/output"
	"github.com/fitteam/fitlib/internal/portaldb"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var userCmd = &cobra.Command{
	Use:     "user",
	Aliases: []string{"users"},
	Short:   "Manage portal accounts",
	GroupID: "accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add <login-id>",
	Short: "Create an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")
		grade, _ := cmd.Flags().GetString("grade")
		if name == "" {
			name = args[0]
		}
		password, err := passwordInput(cmd)
		if err != nil {
			return err
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		u, err := store.CreateUser(portaldb.NewUser{
			LoginID:  args[0],
			Name:     name,
			Email:    email,
			Password: password,
			Grade:    models.Grade(grade),
		})
		if err != nil {
			return err
		}
		if jsonOut {
			return output.JSON(u)
		}
		output.Success("CREATED %s", u.ID)
		output.Info("%s", output.UserLine(u))
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List accounts",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		users, err := store.ListUsers(!all)
		if err != nil {
			return err
		}
		if jsonOut {
			if users == nil {
				users = []*models.User{}
			}
			return output.JSON(users)
		}
		if len(users) == 0 {
			output.Info("no users")
			return nil
		}
		now := store.Now()
		for _, u := range users {
			output.Info("%s  joined %s", output.UserLine(u), output.FormatTimeAgo(u.CreatedAt, now))
		}
		return nil
	},
}

var userGradeCmd = &cobra.Command{
	Use:   "grade <login-id> <grade>",
	Short: "Change an account's grade (admin, leader, member, guest)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		grade := models.Grade(args[1])
		if !grade.Valid() {
			return fmt.Errorf("%w: unknown grade %q", errUsage, args[1])
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		u, err := lookupUser(store, args[0])
		if err != nil {
			return err
		}
		u, err = store.UpdateUser(u.ID, portaldb.UserUpdate{Grade: &grade})
		if err != nil {
			return err
		}
		if err := store.RecordAudit("cli", "update", "user", u.ID); err != nil {
			output.Warning("audit: %v", err)
		}
		if jsonOut {
			return output.JSON(u)
		}
		output.Success("%s is now %s", u.LoginID, u.Grade)
		return nil
	},
}

var userPasswdCmd = &cobra.Command{
	Use:   "passwd <login-id>",
	Short: "Reset an account's password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := passwordInput(cmd)
		if err != nil {
			return err
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		u, err := lookupUser(store, args[0])
		if err != nil {
			return err
		}
		if err := store.SetPassword(u.ID, password); err != nil {
			return err
		}
		if err := store.RecordAudit("cli", "password", "user", u.ID); err != nil {
			output.Warning("audit: %v", err)
		}
		if jsonOut {
			return output.JSON(map[string]string{"id": u.ID, "login_id": u.LoginID})
		}
		output.Success("password updated for %s", u.LoginID)
		return nil
	},
}

// lookupUser resolves a login id to its account.
func lookupUser(store *portaldb.DB, loginID string) (*models.User, error) {
	u, err := store.GetUserByLogin(loginID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("user %q: %w", loginID, portaldb.ErrNotFound)
	}
	return u, nil
}

// passwordInput returns --password, or prompts for it when stdin is a terminal.
func passwordInput(cmd *cobra.Command) (string, error) {
	if pw, _ := cmd.Flags().GetString("password"); pw != "" {
		return pw, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("%w: --password is required when stdin is not a terminal", errUsage)
	}
	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

func init() {
	userAddCmd.Flags().String("name", "", "display name (default: login id)")
	userAddCmd.Flags().String("email", "", "email address")
	userAddCmd.Flags().String("grade", string(models.GradeMember), "grade: admin, leader, member, guest")
	userAddCmd.Flags().String("password", "", "initial password (prompted when omitted)")

	userListCmd.Flags().BoolP("all", "a", false, "include deactivated accounts")

	userPasswdCmd.Flags().String("password", "", "new password (prompted when omitted)")

	userCmd.AddCommand(userAddCmd, userListCmd, userGradeCmd, userPasswdCmd)
	rootCmd.AddCommand(userCmd)
}
