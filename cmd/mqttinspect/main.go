// mqttinspect is an interactive MQTT debugging shell.
//
// It subscribes to a broker (or generates demo traffic), keeps recent
// messages in memory, and filters the live view with SQL-like rules:
//
//	mqtt> filter SELECT temp, humidity FROM 'sensors/+/climate' WHERE temp > 25
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	// defaultConfigPath is tried when neither --config nor MQTTINSPECT_CONFIG
	// is set. A missing file there is not an error.
	defaultConfigPath = "configs/config.yaml"

	// configEnv names the environment variable holding the config path.
	configEnv = "MQTTINSPECT_CONFIG"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "mqttinspect",
		Short:         "Interactive MQTT debugging shell",
		Long:          "mqttinspect watches MQTT traffic, keeps a searchable history, and filters the live view with SQL-like rules.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to config file (default $"+configEnv+" or "+defaultConfigPath+")")

	shellCmd := newShellCmd(flags)
	root.RunE = shellCmd.RunE
	root.Flags().AddFlagSet(shellCmd.Flags())

	root.AddCommand(
		shellCmd,
		newCheckCmd(),
		newRulesCmd(flags),
		newTokenCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mqttinspect %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
