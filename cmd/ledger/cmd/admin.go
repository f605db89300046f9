package cmd

import (
	"context"

	"github.com/spf13/cobra"

	cliapi "finance-ledger/internal/cli"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Control the ingestion scheduler",
	Long:  `Inspect and control the server's ingestion scheduler. Requires the admin API key.`,
}

func init() {
	rootCmd.AddCommand(adminCmd)

	adminCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show scheduler state and the last run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, formatter, client, err := initializeClient(cmd)
			if err != nil {
				return err
			}
			status, err := client.AdminStatus(cmd.Context())
			if err != nil {
				formatter.PrintError(err)
				return err
			}
			return formatter.PrintAdminStatus(status)
		},
	})

	for _, action := range []struct {
		use   string
		short string
		call  func(*cliapi.Client, context.Context) (*cliapi.StatusMessage, error)
	}{
		{"pause", "Pause scheduled ingestion", (*cliapi.Client).AdminPause},
		{"resume", "Resume scheduled ingestion", (*cliapi.Client).AdminResume},
		{"run", "Start an ingestion run over all active sources", (*cliapi.Client).AdminRun},
	} {
		adminCmd.AddCommand(&cobra.Command{
			Use:   action.use,
			Short: action.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				_, formatter, client, err := initializeClient(cmd)
				if err != nil {
					return err
				}
				msg, err := action.call(client, cmd.Context())
				if err != nil {
					formatter.PrintError(err)
					return err
				}
				formatter.PrintSuccess(msg.Message)
				return nil
			},
		})
	}
}
