package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"rokubridge/internal/bridge"
	"rokubridge/internal/cli"
	"rokubridge/internal/device"
	"rokubridge/internal/host"
)

var (
	apiURL        string
	apiToken      string
	apiConfigPath string
	journalLimit  int
)

// newAPIClient builds a control API client from flags, filling the URL and
// token from the bridge configuration when they are not given
func newAPIClient() (*host.APIClient, error) {
	baseURL, token := apiURL, apiToken

	if baseURL == "" || token == "" {
		if _, err := os.Stat(apiConfigPath); err != nil {
			return nil, fmt.Errorf("no --url/--token given and config %s is unreadable: %w", apiConfigPath, err)
		}

		cm := cli.NewConfigManager(apiConfigPath)
		if baseURL == "" {
			derived, err := cm.APIBaseURL()
			if err != nil {
				return nil, err
			}
			baseURL = derived
		}
		if token == "" {
			issued, err := cm.IssueToken("cli")
			if err != nil {
				return nil, fmt.Errorf("failed to issue API token: %w", err)
			}
			token = issued
		}
	}

	return host.NewAPIClient(baseURL, token, 15*time.Second), nil
}

func addAPIFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&apiURL, "url", "", "Bridge API base URL (default: derived from config)")
	cmd.PersistentFlags().StringVar(&apiToken, "token", "", "Bridge API token (default: issued from config)")
	cmd.PersistentFlags().StringVarP(&apiConfigPath, "config", "c", bridge.DefaultConfigPath, "Bridge configuration file")
}

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Manage devices through a running bridge",
}

var deviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		devices, err := client.Devices(context.Background())
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			cmd.Println("No devices registered")
			return nil
		}

		for _, desc := range devices {
			active := "-"
			if prop, ok := desc.Properties["activeApp"]; ok && prop.Value != nil {
				active = *prop.Value
			}
			cmd.Printf("%-28s %-32s %-28s %s\n", desc.ID, desc.Name, desc.Address, active)
		}
		return nil
	},
}

var deviceShowCmd = &cobra.Command{
	Use:   "show <device-id>",
	Short: "Show a device description",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		desc, err := client.Device(context.Background(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, desc)
	},
}

var deviceActionCmd = &cobra.Command{
	Use:   "action <device-id> <action> [input]",
	Short: "Perform an action such as sendKeypress Home or launchApp Netflix",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := device.ActionRequest{
			Name:  args[1],
			Input: strings.Join(args[2:], " "),
			Nonce: bridge.GenerateNonce(),
		}

		resp, err := client.PerformAction(context.Background(), args[0], req)
		if err != nil {
			return err
		}

		if !resp.Success {
			return fmt.Errorf("action %s failed: %s", req.Name, resp.Error)
		}
		cmd.Printf("Action %s %s\n", req.Name, resp.Action.Status)
		return nil
	},
}

var deviceRemoveCmd = &cobra.Command{
	Use:   "remove <device-id>",
	Short: "Forget a registered device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		removed, err := client.RemoveDevice(context.Background(), args[0])
		if err != nil {
			return err
		}
		if !removed {
			cmd.Printf("Device %s was not registered\n", args[0])
			return nil
		}
		cmd.Printf("Removed %s\n", args[0])
		return nil
	},
}

var devicePairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Start a discovery sweep",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		started, err := client.StartPairing(context.Background())
		if err != nil {
			return err
		}
		if started {
			cmd.Println("Discovery started")
		} else {
			cmd.Println("Discovery already running")
		}
		return nil
	},
}

var deviceUnpairCmd = &cobra.Command{
	Use:   "cancel-pair",
	Short: "Cancel the running discovery sweep",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if err := client.CancelPairing(context.Background()); err != nil {
			return err
		}
		cmd.Println("Discovery cancelled")
		return nil
	},
}

var deviceJournalCmd = &cobra.Command{
	Use:   "journal [device-id]",
	Short: "Show recent actions",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		deviceID := ""
		if len(args) > 0 {
			deviceID = args[0]
		}

		entries, err := client.Actions(context.Background(), deviceID, journalLimit)
		if err != nil {
			return err
		}

		for _, entry := range entries {
			line := fmt.Sprintf("%s %-24s %-14s %-10s %s",
				entry.TimeRequested.Format(time.RFC3339), entry.DeviceID, entry.Name, entry.Status, entry.Input)
			if entry.Error != "" {
				line += " (" + entry.Error + ")"
			}
			cmd.Println(line)
		}
		return nil
	},
}

func init() {
	addAPIFlags(deviceCmd)
	deviceJournalCmd.Flags().IntVarP(&journalLimit, "limit", "n", 20, "Number of entries")

	deviceCmd.AddCommand(deviceListCmd)
	deviceCmd.AddCommand(deviceShowCmd)
	deviceCmd.AddCommand(deviceActionCmd)
	deviceCmd.AddCommand(deviceRemoveCmd)
	deviceCmd.AddCommand(devicePairCmd)
	deviceCmd.AddCommand(deviceUnpairCmd)
	deviceCmd.AddCommand(deviceJournalCmd)
}
