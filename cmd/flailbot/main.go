// flailbot is a headless client for brutal.io game servers.
//
// It resolves a game server through the master server, keeps a websocket
// session alive, decodes every inbound frame into a live entity table and
// fans decoded events out to an HTTP API, a SQLite recorder, Prometheus
// metrics and MQTT.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flailbot/flailbot/internal/config"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
   __ _       _ _ _           _
  / _| | __ _(_) | |__   ___ | |_
 | |_| |/ _' | | | '_ \ / _ \| __|
 |  _| | (_| | | | |_) | (_) | |_
 |_| |_|\__,_|_|_|_.__/ \___/ \__|  %s
`

func main() {
	var configDir string

	rootCmd := &cobra.Command{
		Use:   "flailbot",
		Short: "Headless brutal.io client and protocol decoder",
		Long: `flailbot connects to a brutal.io game server, decodes the binary
protocol into a live world model and publishes what it sees.

Use "flailbot run" to play or observe, "flailbot decode" to inspect
captured frames offline.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", config.DefaultConfigDir, "configuration directory")

	rootCmd.AddCommand(
		runCmd(&configDir),
		decodeCmd(),
		setupCmd(&configDir),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

// printBanner prints the ASCII art banner.
func printBanner() {
	fmt.Printf(banner, version)
	fmt.Println()
}
