package cmd

import (
	"fmt"

	"github.com/fitteam/fitlib/internal/dateparse"
	"github.com/fitteam/fitlib/internal/models"
	"github.com/fitteam/fitlib/internal/output"
	"github.com/fitteam/fitlib/internal/portaldb"
	"github.com/fitteam/fitlib/internal/vacation"
	"github.com/spf13/cobra"
)

var vacationCmd = &cobra.Command{
	Use:     "vacation",
	Aliases: []string{"vacations"},
	Short:   "Inspect the leave calendar",
	GroupID: "portal",
}

var vacationListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List leave requests overlapping a month",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		month, _ := cmd.Flags().GetString("month")
		login, _ := cmd.Flags().GetString("user")
		status, _ := cmd.Flags().GetString("status")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		first, err := dateparse.ParseMonthFrom(month, store.Now())
		if err != nil {
			return fmt.Errorf("%w: --month: %v", errUsage, err)
		}
		rng := vacation.MonthRange(first)
		f := portaldb.VacationFilter{
			Status: models.VacationStatus(status),
			From:   rng.StartString(),
			To:     rng.EndString(),
		}
		if login != "" {
			u, err := lookupUser(store, login)
			if err != nil {
				return err
			}
			f.UserID = u.ID
		}

		list, err := store.ListVacations(f)
		if err != nil {
			return err
		}
		if jsonOut {
			return output.JSON(list)
		}
		output.Info("%s", first.Format(dateparse.MonthLayout))
		if len(list) == 0 {
			output.Info("no vacations")
			return nil
		}
		width := 0
		if output.IsTerminal() {
			width = output.TerminalWidth(0) - 4
		}
		for _, status := range vacationStatusOrder {
			var group []*models.Vacation
			for _, v := range list {
				if v.Status == status {
					group = append(group, v)
				}
			}
			if len(group) == 0 {
				continue
			}
			output.Info("%s", output.SectionHeader(string(status)))
			for _, v := range group {
				output.Info("%s", output.VacationLine(v))
				if v.Reason != "" {
					output.Info("%s", output.IndentString(output.Truncate(v.Reason, width), 4))
				}
			}
		}
		return nil
	},
}

var vacationStatusOrder = []models.VacationStatus{
	models.VacationPending,
	models.VacationApproved,
	models.VacationRejected,
	models.VacationCancelled,
}

func init() {
	vacationListCmd.Flags().StringP("month", "m", "", "month as YYYY-MM (default: current month)")
	vacationListCmd.Flags().StringP("user", "u", "", "only this login id")
	vacationListCmd.Flags().String("status", "", "only this status (pending, approved, rejected, cancelled)")

	vacationCmd.AddCommand(vacationListCmd)
	rootCmd.AddCommand(vacationCmd)
}
