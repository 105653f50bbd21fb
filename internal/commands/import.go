package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newImportCommand() *cobra.Command {
	var tenantID, accountID string

	cmd := &cobra.Command{
		Use:   "import <statement.sta>",
		Short: "Import an MT940 statement file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			res, err := e.importer().Import(cmd.Context(), tenantID, accountID, data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d, skipped %d duplicates\n", res.Imported, res.Skipped)
			for _, re := range res.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "record %d: %s\n", re.Index, re.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id (required)")
	_ = cmd.MarkFlagRequired("tenant")
	cmd.Flags().StringVar(&accountID, "account", "", "target account id (required)")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}
