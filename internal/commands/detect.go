package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDetectCommand() *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Scan transaction history for recurring payments",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			patterns, err := e.detector().Detect(cmd.Context(), tenantID)
			if err != nil {
				return err
			}
			for _, p := range patterns {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s  day %d  confidence %.2f  (%d occurrences)\n",
					p.ID, p.Frequency, p.AmountAvg.StringFixed(2), p.DayOfMonth, p.Confidence, len(p.Evidence))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d patterns\n", len(patterns))
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id (required)")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}
