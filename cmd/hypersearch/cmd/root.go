// Package cmd provides the CLI commands for HyperSearch.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hypersearch/internal/config"
	"github.com/Aman-CERP/hypersearch/internal/errors"
	"github.com/Aman-CERP/hypersearch/internal/logging"
	"github.com/Aman-CERP/hypersearch/pkg/version"
)

// rootOptions carries the persistent flags and the state the persistent
// hooks set up for every subcommand.
type rootOptions struct {
	configPath string
	debug      bool

	cfg     *config.Config
	logger  *slog.Logger
	cleanup func()
}

// NewRootCmd creates the root command for the hypersearch CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "hypersearch",
		Short: "Multi-modal search orchestration engine",
		Long: `HyperSearch fans a query out to per-modality search agents and a
vector retrieval backend, then fuses the partial results into one ranked list.

Run 'hypersearch index corpus.jsonl' to build the indexes, then
'hypersearch serve' to expose the HTTP API.`,
		Version:           version.Version,
		SilenceUsage:      true,
		PersistentPreRunE: opts.setup,
		PersistentPostRun: func(*cobra.Command, []string) { opts.teardown() },
	}
	cmd.SetVersionTemplate("hypersearch version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML configuration file")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging to ~/.hypersearch/logs/")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newIndexCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newSuggestCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setup loads the configuration and installs the logger. Only serve logs to
// stderr at the configured level; the other commands keep stderr quiet
// unless --debug is set.
func (o *rootOptions) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	o.cfg = cfg

	logCfg := logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.File,
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: true,
	}
	if cmd.Name() != "serve" {
		logCfg.Level = "error"
	}
	if o.debug {
		logCfg.Level = "debug"
		if logCfg.FilePath == "" {
			logCfg.FilePath = logging.DefaultLogPath()
		}
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	o.logger = logger
	o.cleanup = cleanup
	slog.SetDefault(logger)
	if o.debug {
		logger.Debug("debug_logging_enabled",
			slog.String("log_file", logCfg.FilePath),
			slog.String("version", version.Version))
	}
	return nil
}

func (o *rootOptions) teardown() {
	if o.cleanup != nil {
		o.cleanup()
		o.cleanup = nil
	}
}

// Execute runs the root command and prints a failure in the CLI error format.
func Execute() error {
	root := NewRootCmd()
	root.SilenceErrors = true
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprint(os.Stderr, errors.FormatForCLI(err))
		return err
	}
	return nil
}
