// Package cmd implements CLI commands.
package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/satcam/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the daemon configuration file",
	Long: `Load the configuration file given by --config, apply defaults and
environment overrides, validate it, and print the effective result as YAML.

Examples:
  satcam validate -c /etc/satcam/satcam.yml
  SATCAM_CAMERA_QUALITY=high satcam validate -c satcam.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(configFile, cmd.OutOrStdout())
	},
}

func runValidate(path string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]*config.GlobalConfig{"satcam": cfg}); err != nil {
		return fmt.Errorf("failed to format config: %w", err)
	}
	return enc.Close()
}
