package cmd

import (
	"time"

	"github.com/fitteam/fitlib/internal/output"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:     "token",
	Short:   "Manage bearer tokens",
	GroupID: "accounts",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue <login-id>",
	Short: "Issue a bearer token for an account",
	Long:  `Creates a session for the account and prints its token once. The token is not stored in plaintext.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl, _ := cmd.Flags().GetDuration("ttl")
		name, _ := cmd.Flags().GetString("name")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		u, err := lookupUser(store, args[0])
		if err != nil {
			return err
		}
		token, sess, err := store.IssueToken(u.ID, name, ttl)
		if err != nil {
			return err
		}
		if jsonOut {
			return output.JSON(map[string]any{
				"token":      token,
				"session_id": sess.ID,
				"expires_at": sess.ExpiresAt,
			})
		}
		output.Info("%s", token)
		output.Info("session %s for %s, expires %s", sess.ID, u.LoginID, sess.ExpiresAt.Local().Format(time.DateTime))
		return nil
	},
}

func init() {
	tokenIssueCmd.Flags().Duration("ttl", 30*24*time.Hour, "token lifetime")
	tokenIssueCmd.Flags().String("name", "cli", "session label")

	tokenCmd.AddCommand(tokenIssueCmd)
	rootCmd.AddCommand(tokenCmd)
}
