package cmd

import (
	"fmt"
	"log/slog"

	"github.com/fitteam/fitlib/internal/models"
	"github.com/fitteam/fitlib/internal/output"
	"github.com/fitteam/fitlib/internal/permission"
	"github.com/spf13/cobra"
)

var menusCmd = &cobra.Command{
	Use:     "menus",
	Short:   "Show the menu permission table",
	Long:    `Prints the navigation menus, optionally filtered to those a grade can see. Reads menus_file from the config when set.`,
	GroupID: "portal",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		grade, _ := cmd.Flags().GetString("grade")
		file, _ := cmd.Flags().GetString("file")
		if file == "" && configPath != "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			file = cfg.MenusFile
		}

		store, err := permission.NewStore(file, slog.Default())
		if err != nil {
			return err
		}
		table := store.Table()

		items := table.Items()
		if grade != "" {
			g := models.Grade(grade)
			if !g.Valid() {
				return fmt.Errorf("%w: unknown grade %q", errUsage, grade)
			}
			items = table.Filter(g)
		}
		if jsonOut {
			return output.JSON(items)
		}
		if len(items) == 0 {
			output.Info("no menus")
			return nil
		}
		output.Info("%s", output.MenuTree(items))
		return nil
	},
}

func init() {
	menusCmd.Flags().StringP("grade", "g", "", "show only menus visible to this grade")
	menusCmd.Flags().String("file", "", "menus YAML file (default: embedded table)")
	rootCmd.AddCommand(menusCmd)
}
