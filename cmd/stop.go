// Package cmd implements CLI commands.
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/satcam/internal/daemon"
)

// stopCmd represents the stop command
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the satcam daemon",
	Long: `Stop the satcam daemon gracefully.

This command sends daemon_shutdown over the Unix Domain Socket. If the socket
is unreachable it falls back to SIGTERM on the process in the PID file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStop(cmd.Context(), newControlClient(), cmd.OutOrStdout(), func() error {
			return daemon.SignalStop(stopPIDFile, stopTimeout)
		})
	},
}

var (
	stopPIDFile string
	stopTimeout time.Duration
)

func init() {
	stopCmd.Flags().StringVarP(&stopPIDFile, "pidfile", "p", "/var/run/satcam.pid",
		"PID file used when the socket is unreachable")
	stopCmd.Flags().DurationVarP(&stopTimeout, "timeout", "t", 10*time.Second,
		"how long to wait for the process to exit after SIGTERM")
}

func runStop(ctx context.Context, client ControlClient, out io.Writer, signalStop func() error) error {
	resp, err := client.DaemonShutdown(ctx)
	if err != nil {
		fmt.Fprintf(out, "socket unreachable (%v), signalling PID file\n", err)
		if serr := signalStop(); serr != nil {
			return fmt.Errorf("failed to stop daemon: %w", serr)
		}
		fmt.Fprintln(out, "✓ Daemon stopped")
		return nil
	}
	if resp.Error != nil {
		return fmt.Errorf("daemon_shutdown failed: %s", resp.Error.Message)
	}
	fmt.Fprintln(out, "✓ Shutdown initiated")
	return nil
}
