package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"rokubridge/internal/logger"
)

var (
	verbose bool
	log     = logger.New()
)

var rootCmd = &cobra.Command{
	Use:   "rokubridge",
	Short: "rokubridge - discover and control Roku devices",
	Long: `rokubridge finds Roku players and TVs on the local network with SSDP,
exposes each one as a controllable device with an activeApp property and
remote-control actions, and serves them over an authenticated HTTP API.
It also talks to devices directly over the External Control Protocol.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.SetSilentMode(false)
			logger.SetLevel(logger.LOG_DEBUG)
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(cliCmd)
	rootCmd.AddCommand(bridgeCmd)
	rootCmd.AddCommand(rokuCmd)
	rootCmd.AddCommand(deviceCmd)
	rootCmd.AddCommand(tokenCmd)
}

func exitWithError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
