// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/satcam/internal/command"
)

var (
	// Global flags
	configFile string
	socketPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "satcam",
	Short: "satcam - on-board camera payload controller",
	Long: `satcam runs the camera payload of a small satellite.
It listens for CSP capture triggers on CAN or UDP, captures and encodes
frames from the camera buffer, and reports progress to the ground.

Features:
  - CSP v2 over CAN (CFP fragmentation) or UDP
  - Standard CSP services: ping, buffer status, uptime, ident, reboot
  - Local control: CLI via Unix Domain Socket
  - Manual override: force a capture without a ground trigger`,
	Version:       command.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/satcam/satcam.yml",
		"config file path")
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "/var/run/satcam.sock",
		"daemon socket path")

	// Add subcommands
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(sendTriggerCmd)
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
