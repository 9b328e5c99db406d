package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/hypersearch/internal/config"
	"github.com/Aman-CERP/hypersearch/internal/logging"
	"github.com/Aman-CERP/hypersearch/internal/output"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Inspect and initialize configuration.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/hypersearch/config.yaml)
  3. Project config (./hypersearch.yaml or --config)
  4. Environment variables (HYPERSEARCH_*)`,
		Example: `  hypersearch config show
  hypersearch config init
  hypersearch config path`,
	}

	cmd.AddCommand(newConfigShowCmd(opts))
	cmd.AddCommand(newConfigInitCmd(opts))
	cmd.AddCommand(newConfigPathCmd(opts))
	return cmd
}

func newConfigShowCmd(opts *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(opts.cfg)
			}
			shown := *opts.cfg
			if shown.Agents.LLM.APIKey != "" {
				shown.Agents.LLM.APIKey = "********"
			}
			data, err := yaml.Marshal(&shown)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newConfigInitCmd(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the user configuration file",
		Long: `Write the effective configuration to the user configuration file.

An existing file is left alone unless --force is given; it is then backed up
next to the original before being replaced.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, opts.cfg, config.GetUserConfigPath(), force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration (a backup is kept)")
	return cmd
}

func runConfigInit(cmd *cobra.Command, cfg *config.Config, path string, force bool) error {
	out := output.New(cmd.OutOrStdout())

	var backupPath string
	if fileExists(path) {
		if !force {
			out.Warning("Configuration already exists")
			out.Statusf("📁", "Location: %s", path)
			out.Status("💡", "Use --force to overwrite it (a backup is kept)")
			return nil
		}
		var err error
		backupPath, err = config.BackupFile(path)
		if err != nil {
			return err
		}
	}

	if err := cfg.WriteYAML(path); err != nil {
		return err
	}

	out.Success("Wrote configuration")
	out.Statusf("📁", "Location: %s", path)
	if backupPath != "" {
		out.Statusf("💾", "Backup: %s", backupPath)
	}
	return nil
}

func newConfigPathCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print configuration and data paths",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "user config:    %s\n", config.GetUserConfigPath())
			_, _ = fmt.Fprintf(w, "project config: %s\n", config.ProjectConfigName)
			_, _ = fmt.Fprintf(w, "data dir:       %s\n", opts.cfg.DataDir)
			_, _ = fmt.Fprintf(w, "debug log:      %s\n", logging.DefaultLogPath())
			return nil
		},
	}
}
