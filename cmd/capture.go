// Package cmd implements CLI commands.
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Control the capture coordinator",
}

var captureForceCmd = &cobra.Command{
	Use:   "force",
	Short: "Arm the manual override",
	Long: `Arm the one-shot override. The coordinator consumes it on its next idle
cycle and captures without waiting for a ground trigger. Arming twice before
the coordinator runs has the same effect as arming once.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCaptureForce(cmd.Context(), newControlClient(), cmd.OutOrStdout())
	},
}

var captureStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show coordinator state, gates and the last capture session",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newControlClient().CaptureStatus(cmd.Context())
		if err != nil {
			return fmt.Errorf("daemon is not running or socket is inaccessible: %w", err)
		}
		return printResult(cmd.OutOrStdout(), "capture_status", resp)
	},
}

func init() {
	captureCmd.AddCommand(captureForceCmd)
	captureCmd.AddCommand(captureStatusCmd)
}

func runCaptureForce(ctx context.Context, client ControlClient, out io.Writer) error {
	resp, err := client.CaptureForce(ctx)
	if err != nil {
		return fmt.Errorf("daemon is not running or socket is inaccessible: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("capture_force failed: %s", resp.Error.Message)
	}
	if m, ok := resp.Result.(map[string]interface{}); ok && m["status"] == "already_armed" {
		fmt.Fprintln(out, "Override already armed")
		return nil
	}
	fmt.Fprintln(out, "✓ Override armed")
	return nil
}
