// Package cli builds the zmapd command tree.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"zmapd/internal/config"
	"zmapd/internal/manager"
	"zmapd/internal/registry"
	"zmapd/pkg/types"
)

// Version is set at link time.
var Version = "dev"

// Options are the flags shared by every subcommand.
type Options struct {
	ConfigPath string
	LogLevel   string
	DataDir    string
	Samtools   string
	DNA        bool
}

func defaultOptions() *Options {
	return &Options{
		ConfigPath: envStr("ZMAPD_CONFIG", ""),
		LogLevel:   envStr("ZMAPD_LOG_LEVEL", "info"),
		DataDir:    envStr("ZMAPD_DATA_DIR", ""),
		Samtools:   envStr("ZMAPD_SAMTOOLS", "samtools"),
		DNA:        envBool("ZMAPD_DNA", false),
	}
}

// NewRootCmd constructs the command tree.
func NewRootCmd() *cobra.Command { return newRootCmdWith(defaultOptions()) }

func newRootCmdWith(o *Options) *cobra.Command {
	root := &cobra.Command{
		Use:           "zmapd",
		Short:         "Genome annotation view server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&o.ConfigPath, "config", o.ConfigPath, "Config file (.yaml, .json or .toml); defaults to ZMAPD_CONFIG")
	pf.StringVar(&o.LogLevel, "log-level", o.LogLevel, "Log level: debug|info|warn|error|off")
	pf.StringVar(&o.DataDir, "data-dir", o.DataDir, "Directory scanned for GFF/SAM/BAM/CRAM files served as extra sources")
	pf.StringVar(&o.Samtools, "samtools", o.Samtools, "samtools binary used to decode CRAM")
	pf.BoolVar(&o.DNA, "dna", o.DNA, "Request DNA along with features")

	root.AddCommand(newServeCmd(o), newLoadCmd(o), newVersionCmd())
	return root
}

// Execute runs the command tree with args.
func Execute(ctx context.Context, args []string) error {
	root := NewRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "zmapd %s\n", Version)
			return err
		},
	}
}

// settings merges the config file with the flags. Flags given on the command
// line win; otherwise config file values win over flag defaults.
func (o *Options) settings(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	if o.ConfigPath != "" {
		var err error
		if cfg, err = config.Load(o.ConfigPath); err != nil {
			return cfg, err
		}
	}
	flags := cmd.Flags()
	pick := func(name string, dst *string, v string) {
		if flags.Changed(name) || *dst == "" {
			*dst = v
		}
	}
	pick("log-level", &cfg.LogLevel, o.LogLevel)
	pick("data-dir", &cfg.DataDir, o.DataDir)
	pick("samtools", &cfg.Samtools, o.Samtools)
	if flags.Changed("dna") || !cfg.DNA {
		cfg.DNA = o.DNA
	}
	sources, err := collectSources(cfg)
	if err != nil {
		return cfg, err
	}
	cfg.Sources = sources
	return cfg, nil
}

// sources returns the configured sources plus whatever the data directory
// holds.
func collectSources(cfg config.Config) ([]types.Source, error) {
	if cfg.DataDir == "" {
		return cfg.Sources, nil
	}
	found, err := registry.LoadDir(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("scan data dir: %w", err)
	}
	return registry.Merge(cfg.Sources, found), nil
}

// waitReady blocks until the manager loop accepts commands.
func waitReady(ctx context.Context, m *manager.Manager) error {
	t := time.NewTicker(5 * time.Millisecond)
	defer t.Stop()
	for !m.Ready() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}
