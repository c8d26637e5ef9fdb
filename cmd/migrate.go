package cmd

import (
	"github.com/fitteam/fitlib/internal/output"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	Short:   "Create or upgrade the portal database schema",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		// Open already applied pending migrations; a second pass reports zero.
		n, err := store.RunMigrations()
		if err != nil {
			return err
		}
		if jsonOut {
			return output.JSON(map[string]int{"schema_version": store.SchemaVersion(), "applied": n})
		}
		output.Success("schema version %d", store.SchemaVersion())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
