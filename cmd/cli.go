package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"rokubridge/cmd/cli"
	internalcli "rokubridge/internal/cli"
	"rokubridge/internal/logger"
)

var (
	debugFlag bool
)

var cliCmd = &cobra.Command{
	Use:   "cli",
	Short: "Start the interactive remote",
	Long: `Launch the interactive Terminal User Interface (TUI). It connects to a
running bridge, lists its devices and turns the keyboard into a Roku remote.
The bridge URL and token default to values derived from the bridge config.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// the alternate screen owns the terminal, so logs stay off unless asked for
		if debugFlag {
			logger.SetSilentMode(false)
			logger.SetLevel(logger.LOG_DEBUG)
		} else {
			logger.SetSilentMode(true)
		}

		options := cli.Options{
			BridgeURL: apiURL,
			Token:     apiToken,
			Debug:     debugFlag,
		}

		if _, err := os.Stat(apiConfigPath); err == nil {
			cm := internalcli.NewConfigManager(apiConfigPath)
			if options.BridgeURL == "" {
				if baseURL, err := cm.APIBaseURL(); err == nil {
					options.BridgeURL = baseURL
				}
			}
			if options.Token == "" {
				if token, err := cm.IssueToken("tui"); err == nil {
					options.Token = token
				}
			}
		}

		log := logger.New()
		log.Info().
			Bool("debug", debugFlag).
			Str("bridge", options.BridgeURL).
			Msg("Starting interactive remote")

		if err := cli.StartTUI(options); err != nil {
			log.Error().Err(err).Msg("Failed to start TUI")
			exitWithError(err)
		}

		return nil
	},
}

func init() {
	addAPIFlags(cliCmd)
	cliCmd.Flags().BoolVar(&debugFlag, "debug", false, "Show the action log and enable debug logging")
}
