package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newForecastCommand() *cobra.Command {
	var tenantID string
	var months int

	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Project recurring payments into a monthly balance forecast",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			if months <= 0 {
				months = e.cfg.Forecast.HorizonMonths
			}
			f, err := e.forecaster().Project(cmd.Context(), tenantID, months)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "balance %s as of %s\n",
				f.CurrentBalance.StringFixed(2), f.AsOfDate.Format("2006-01-02"))
			for _, m := range f.Months {
				flag := ""
				if m.Tentative {
					flag = " (tentative)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  income %s  costs %s  balance %s%s\n",
					m.Month.Format("2006-01"), m.ProjectedIncome.StringFixed(2),
					m.ProjectedCosts.StringFixed(2), m.ProjectedBalance.StringFixed(2), flag)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id (required)")
	_ = cmd.MarkFlagRequired("tenant")
	cmd.Flags().IntVar(&months, "months", 0, "forecast horizon in months (default from config)")

	return cmd
}
