// Package cmd implements CLI commands.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/satcam/internal/command"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Query the satcam daemon for its overall status.

Shows: version, uptime, node address, interface and running tasks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(cmd.Context(), newControlClient(), cmd.OutOrStdout())
	},
}

func runStatus(ctx context.Context, client ControlClient, out io.Writer) error {
	resp, err := client.DaemonStatus(ctx)
	if err != nil {
		return fmt.Errorf("daemon is not running or socket is inaccessible: %w", err)
	}
	return printResult(out, "daemon_status", resp)
}

// printResult writes resp.Result as indented JSON, or turns resp.Error into an error.
func printResult(out io.Writer, method string, resp *command.Response) error {
	if resp.Error != nil {
		return fmt.Errorf("%s failed: %s", method, resp.Error.Message)
	}
	resultJSON, err := json.MarshalIndent(resp.Result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format result: %w", err)
	}
	fmt.Fprintln(out, string(resultJSON))
	return nil
}
