package cmd

import (
	"github.com/fitteam/fitlib/internal/models"
	"github.com/fitteam/fitlib/internal/output"
	"github.com/fitteam/fitlib/internal/portaldb"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the first admin account",
	Long: `Creates an admin account when the portal has no active admin yet. It does
nothing on a database that already has one.`,
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		login, _ := cmd.Flags().GetString("login")
		name, _ := cmd.Flags().GetString("name")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		admins, err := store.CountAdmins()
		if err != nil {
			return err
		}
		if admins > 0 {
			if jsonOut {
				return output.JSON(map[string]any{"created": false, "admins": admins})
			}
			output.Warning("%d active admin(s) already present; nothing to do", admins)
			return nil
		}

		password, err := passwordInput(cmd)
		if err != nil {
			return err
		}
		u, err := store.CreateUser(portaldb.NewUser{
			LoginID:  login,
			Name:     name,
			Password: password,
			Grade:    models.GradeAdmin,
		})
		if err != nil {
			return err
		}
		if jsonOut {
			return output.JSON(map[string]any{"created": true, "user": u})
		}
		output.Success("CREATED admin %s (%s)", u.LoginID, u.ID)
		return nil
	},
}

func init() {
	seedCmd.Flags().String("login", "admin", "admin login id")
	seedCmd.Flags().String("name", "관리자", "admin display name")
	seedCmd.Flags().String("password", "", "admin password (prompted when omitted)")
	rootCmd.AddCommand(seedCmd)
}
