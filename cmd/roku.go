package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"rokubridge/internal"
	"rokubridge/internal/ecp"
	"rokubridge/internal/logger"
)

var (
	rokuHost    string
	rokuDebug   bool
	rokuTest    bool
	rokuTimeout time.Duration
)

var rokuCmd = &cobra.Command{
	Use:   "roku",
	Short: "Control a Roku device directly",
	Long: `Talk to a single Roku device over the External Control Protocol without
a running bridge. Devices are addressed as http://ip:8060 or ip:8060.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if rokuDebug || verbose {
			logger.SetSilentMode(false)
			logger.SetLevel(logger.LOG_DEBUG)
		}
	},
}

func newRokuClient() (*ecp.Client, error) {
	if rokuHost == "" {
		return nil, fmt.Errorf("--host is required")
	}

	address := rokuHost
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	address, err := ecp.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	return ecp.NewClient(address, rokuTimeout, internal.NewRunMode(
		internal.WithDebug(rokuDebug),
		internal.WithSimulation(rokuTest),
	)), nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(data))
	return nil
}

var rokuInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show device information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newRokuClient()
		if err != nil {
			return err
		}

		info, err := client.Info(context.Background())
		if err != nil {
			return err
		}
		return printJSON(cmd, info)
	},
}

var rokuAppsCmd = &cobra.Command{
	Use:   "apps",
	Short: "List installed channels",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newRokuClient()
		if err != nil {
			return err
		}

		apps, err := client.Apps(context.Background())
		if err != nil {
			return err
		}

		sort.SliceStable(apps, func(i, j int) bool { return apps[i].Name < apps[j].Name })
		for _, app := range apps {
			cmd.Printf("%-8s %s\n", app.ID, app.Name)
		}
		return nil
	},
}

var rokuActiveCmd = &cobra.Command{
	Use:   "active",
	Short: "Show the foreground app",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newRokuClient()
		if err != nil {
			return err
		}

		app, err := client.ActiveApp(context.Background())
		if err != nil {
			return err
		}
		if app == nil {
			cmd.Println("(home screen)")
			return nil
		}
		cmd.Printf("%s (%s)\n", app.Name, app.ID)
		return nil
	},
}

var rokuKeyCmd = &cobra.Command{
	Use:   "key <button>",
	Short: "Press a remote button",
	Long: `Press a remote button. Accepts a button name such as volume_up or ok,
or an ECP command such as VolumeUp or Select. See 'rokubridge roku keys'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := resolveKey(args[0])
		if err != nil {
			return err
		}

		client, err := newRokuClient()
		if err != nil {
			return err
		}

		log.Info().
			Str("host", client.Address()).
			Str("key", string(key)).
			Msg("Sending keypress")

		return client.Keypress(context.Background(), key)
	},
}

// resolveKey accepts a catalog button name or a raw ECP command
func resolveKey(name string) (ecp.Key, error) {
	if key, ok := ecp.Keys[strings.ToLower(name)]; ok {
		return key, nil
	}
	for _, command := range ecp.Commands() {
		if strings.EqualFold(command, name) {
			return ecp.Key(command), nil
		}
	}
	return "", fmt.Errorf("unknown button: %s", name)
}

var rokuTextCmd = &cobra.Command{
	Use:   "text <text>",
	Short: "Type text into the focused field",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newRokuClient()
		if err != nil {
			return err
		}
		return client.Text(context.Background(), strings.Join(args, " "))
	},
}

var rokuLaunchCmd = &cobra.Command{
	Use:   "launch <app>",
	Short: "Launch a channel by name or id",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newRokuClient()
		if err != nil {
			return err
		}

		ctx := context.Background()
		target := strings.Join(args, " ")
		apps, err := client.Apps(ctx)
		if err != nil {
			return err
		}

		for _, app := range apps {
			if app.ID == target || strings.EqualFold(app.Name, target) {
				log.Info().
					Str("app", app.Name).
					Str("app_id", app.ID).
					Msg("Launching channel")
				return client.Launch(ctx, app.ID)
			}
		}
		return fmt.Errorf("no installed channel matches %q", target)
	},
}

var rokuTuneCmd = &cobra.Command{
	Use:   "tune <channel>",
	Short: "Tune the TV tuner to a channel such as 5.1",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newRokuClient()
		if err != nil {
			return err
		}
		return client.TuneChannel(context.Background(), args[0])
	},
}

var rokuDiscoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Search the network for Roku devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), rokuTimeout+time.Second)
		defer cancel()

		addresses, err := ecp.NewDiscoverer(rokuTimeout).Discover(ctx)
		if err != nil {
			return err
		}
		if len(addresses) == 0 {
			cmd.Println("No Roku devices answered")
			return nil
		}

		for _, address := range addresses {
			info, err := ecp.NewClient(address, rokuTimeout, nil).Info(ctx)
			if err != nil {
				cmd.Printf("%-28s (unreachable: %v)\n", address, err)
				continue
			}
			cmd.Printf("%-28s %s [%s]\n", address, info.FriendlyDeviceName, info.FriendlyModelName)
		}
		return nil
	},
}

var rokuKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List remote buttons",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		names := make([]string, 0, len(ecp.Keys))
		for name := range ecp.Keys {
			names = append(names, name)
		}
		sort.Strings(names)

		cmd.Println("Available remote buttons:")
		for _, name := range names {
			cmd.Printf("  %-16s %s\n", name, ecp.Keys[name])
		}
		return nil
	},
}

func init() {
	rokuCmd.PersistentFlags().StringVarP(&rokuHost, "host", "H", "", "Roku device address (ip:port)")
	rokuCmd.PersistentFlags().BoolVarP(&rokuDebug, "debug", "d", false, "Enable debug logging")
	rokuCmd.PersistentFlags().BoolVar(&rokuTest, "test", false, "Simulate device responses")
	rokuCmd.PersistentFlags().DurationVarP(&rokuTimeout, "timeout", "t", ecp.DefaultDiscoveryTimeout, "Request and discovery timeout")

	rokuCmd.AddCommand(rokuInfoCmd)
	rokuCmd.AddCommand(rokuAppsCmd)
	rokuCmd.AddCommand(rokuActiveCmd)
	rokuCmd.AddCommand(rokuKeyCmd)
	rokuCmd.AddCommand(rokuTextCmd)
	rokuCmd.AddCommand(rokuLaunchCmd)
	rokuCmd.AddCommand(rokuTuneCmd)
	rokuCmd.AddCommand(rokuDiscoverCmd)
	rokuCmd.AddCommand(rokuKeysCmd)
}
