package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"rokubridge/internal/bridge"
	"rokubridge/internal/cli"
	"rokubridge/internal/host"
	"rokubridge/internal/logger"
)

var (
	bridgeConfigPath string
	bridgeDebugFlag  bool
	bridgeTestFlag   bool
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Start the Roku bridge daemon",
	Long: `The bridge daemon registers the Roku devices listed in its configuration,
optionally searches the network for more, polls each device for its foreground
app and serves the devices over the control API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.SetSilentMode(false)
		if bridgeDebugFlag {
			logger.SetLevel(logger.LOG_DEBUG)
		}

		log = logger.New()
		log.Info().
			Str("config_path", bridgeConfigPath).
			Bool("debug", bridgeDebugFlag).
			Bool("test", bridgeTestFlag).
			Msg("Starting Roku bridge daemon")

		if _, err := os.Stat(bridgeConfigPath); os.IsNotExist(err) {
			defaultConfig := bridge.NewDefaultConfig()
			if err := bridge.SaveConfig(defaultConfig, bridgeConfigPath); err != nil {
				log.Error().Err(err).Msg("Failed to create default config file")
				return fmt.Errorf("failed to create default config file: %w", err)
			}
			log.Info().
				Str("config_path", bridgeConfigPath).
				Msg("Created default configuration file. Please edit it with your settings.")
			return nil
		}

		daemon, err := bridge.NewDaemon(bridgeConfigPath, bridgeDebugFlag, bridgeTestFlag)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create bridge daemon")
			return fmt.Errorf("failed to create bridge daemon: %w", err)
		}

		// blocks until shutdown
		if err := daemon.Start(); err != nil {
			log.Error().Err(err).Msg("Bridge daemon stopped with error")
			return fmt.Errorf("bridge daemon error: %w", err)
		}

		return nil
	},
}

var bridgeStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check bridge daemon status",
	Long:  `Query the health endpoint of the bridge described by the configuration file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		baseURL, err := cli.NewConfigManager(bridgeConfigPath).APIBaseURL()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		health, err := host.NewAPIClient(baseURL, "", 5*time.Second).Health(ctx)
		if err != nil {
			return fmt.Errorf("bridge at %s is not reachable: %w", baseURL, err)
		}

		cmd.Printf("Bridge at %s is %v\n", baseURL, health["status"])
		cmd.Printf("Registered devices: %v\n", health["device_count"])
		cmd.Printf("Discovery running: %v\n", health["pairing"])
		return nil
	},
}

var bridgeConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage bridge configuration",
	Long:  `Generate or validate bridge configuration files.`,
}

var bridgeConfigGenerateCmd = &cobra.Command{
	Use:   "generate [config-file]",
	Short: "Generate default configuration file",
	Long:  `Generate a default configuration file with a fresh bridge id and API secret.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := bridgeConfigPath
		if len(args) > 0 {
			configPath = args[0]
		}

		if err := bridge.SaveConfig(bridge.NewDefaultConfig(), configPath); err != nil {
			return fmt.Errorf("failed to save default config: %w", err)
		}

		cmd.Printf("Default configuration saved to: %s\n", configPath)
		cmd.Println("Please edit the file with the addresses of your Roku devices.")
		return nil
	},
}

var bridgeConfigValidateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate configuration file",
	Long:  `Validate a bridge configuration file for syntax and required fields.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := bridgeConfigPath
		if len(args) > 0 {
			configPath = args[0]
		}

		config, err := bridge.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		cmd.Printf("Configuration file is valid: %s\n", configPath)
		cmd.Printf("Bridge id: %s\n", config.Bridge.ID)
		cmd.Printf("Control API: %s\n", config.API.Listen)
		cmd.Printf("Configured devices: %d\n", len(config.Devices))

		invalid := make(map[string]bool)
		for _, address := range config.InvalidDevices() {
			invalid[address] = true
		}
		for _, address := range config.Devices {
			if invalid[address] {
				cmd.Printf("  - %s (ignored: expected http://a.b.c.d:port)\n", address)
				continue
			}
			cmd.Printf("  - %s\n", address)
		}

		return nil
	},
}

var bridgeDevicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List, add or remove configured device addresses",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := cli.NewConfigManager(bridgeConfigPath).ListDevices()
		if err != nil {
			return err
		}

		for _, address := range devices {
			cmd.Println(address)
		}
		return nil
	},
}

var bridgeDevicesAddCmd = &cobra.Command{
	Use:   "add <address>",
	Short: "Add a device address such as 192.168.1.100:8060",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		address, err := cli.NewConfigManager(bridgeConfigPath).AddDevice(args[0])
		if err != nil {
			return err
		}

		cmd.Printf("Added %s\n", address)
		return nil
	},
}

var bridgeDevicesRemoveCmd = &cobra.Command{
	Use:   "remove <address>",
	Short: "Remove a device address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cli.NewConfigManager(bridgeConfigPath).RemoveDevice(args[0]); err != nil {
			return err
		}

		cmd.Printf("Removed %s\n", args[0])
		return nil
	},
}

func init() {
	bridgeCmd.PersistentFlags().StringVarP(&bridgeConfigPath, "config", "c", bridge.DefaultConfigPath, "Path to bridge configuration file")
	bridgeCmd.Flags().BoolVarP(&bridgeDebugFlag, "debug", "d", false, "Enable debug logging")
	bridgeCmd.Flags().BoolVar(&bridgeTestFlag, "test", false, "Enable test mode (simulate device responses)")

	bridgeCmd.AddCommand(bridgeStatusCmd)
	bridgeCmd.AddCommand(bridgeConfigCmd)
	bridgeCmd.AddCommand(bridgeDevicesCmd)
	bridgeConfigCmd.AddCommand(bridgeConfigGenerateCmd)
	bridgeConfigCmd.AddCommand(bridgeConfigValidateCmd)
	bridgeDevicesCmd.AddCommand(bridgeDevicesAddCmd)
	bridgeDevicesCmd.AddCommand(bridgeDevicesRemoveCmd)
}
