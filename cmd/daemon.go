// Package cmd implements CLI commands.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/satcam/internal/daemon"
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run satcam daemon in foreground",
	Long: `Run the satcam daemon process in foreground.

The daemon will:
  1. Load global configuration from config file
  2. Initialize logging and metrics
  3. Open the CSP interface (CAN or UDP)
  4. Bring up the camera and start the dispatcher and capture coordinator
  5. Start UDS server for CLI control
  6. Handle signals for graceful shutdown (SIGTERM, SIGINT) and reload (SIGHUP)`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runDaemon(); err != nil {
			exitWithError("daemon failed", err)
		}
	},
}

var pidFile string

func init() {
	daemonCmd.Flags().StringVarP(&pidFile, "pidfile", "p", "/var/run/satcam.pid",
		"PID file path")
}

func runDaemon() error {
	fmt.Println("Starting satcam daemon...")
	fmt.Printf("Config: %s\n", configFile)
	fmt.Printf("Socket: %s\n", socketPath)
	fmt.Printf("PID file: %s\n", pidFile)

	d, err := daemon.New(configFile, socketPath, pidFile)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Blocks until shutdown
	return d.Run()
}
