package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"rokubridge/internal/bridge"
	"rokubridge/internal/cli"
)

var (
	tokenConfigPath string
	tokenClient     string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a control API token",
	Long: `Issue a bearer token for the control API, signed with the secret in the
bridge configuration. Pass it as "Authorization: Bearer <token>" or as the
token query parameter of the event stream.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(tokenConfigPath); err != nil {
			return fmt.Errorf("cannot read config %s: %w", tokenConfigPath, err)
		}

		token, err := cli.NewConfigManager(tokenConfigPath).IssueToken(tokenClient)
		if err != nil {
			return fmt.Errorf("failed to issue token: %w", err)
		}

		cmd.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenConfigPath, "config", "c", bridge.DefaultConfigPath, "Bridge configuration file")
	tokenCmd.Flags().StringVar(&tokenClient, "client", "cli", "Client name recorded in the token")
}
