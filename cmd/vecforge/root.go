package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/vecforge/errs"
	"github.com/hupe1980/vecforge/internal/config"
	"github.com/hupe1980/vecforge/logging"
)

// app carries the configuration shared by all subcommands. Each root
// command owns its own viper instance.
type app struct {
	v *viper.Viper
}

// NewRootCmd creates the root vecforge command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:           "vecforge",
		Short:         "Build, persist and query proximity-graph vector indexes",
		Long:          "vecforge builds graph indexes on the host or an accelerator, saves them in a portable format and answers nearest-neighbor queries.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.readConfig(cmd)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newGenerateCmd(a),
		newBuildCmd(a),
		newSearchCmd(a),
		newInspectCmd(a),
		newBenchCmd(a),
		newServeCmd(a),
		newVersionCmd(),
	)
	return root
}

// readConfig reads the config file named by --config, if any. Defaults and
// VECFORGE_* variables are already registered on a.v.
func (a *app) readConfig(cmd *cobra.Command) error {
	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		a.v.SetConfigFile(cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			return errs.IO("cli.config", cfgFile, err)
		}
	}
	if err := a.v.BindPFlag("log.level", cmd.Root().PersistentFlags().Lookup("log-level")); err != nil {
		return fmt.Errorf("binding log-level flag: %w", err)
	}
	return nil
}

// config binds the command's flags to their keys and returns the validated
// configuration. flags maps config keys to flag names.
func (a *app) config(cmd *cobra.Command, flags map[string]string) (*config.Config, error) {
	for key, name := range flags {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			return nil, fmt.Errorf("unknown flag %q", name)
		}
		if err := a.v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("binding %s flag: %w", name, err)
		}
	}
	return config.FromViper(a.v)
}

func newLogger(w io.Writer, cfg config.LogConfig) *logging.Logger {
	level := logging.ParseLevel(cfg.Level)
	if strings.EqualFold(cfg.Format, "json") {
		return logging.NewJSONLogger(w, level)
	}
	return logging.NewTextLogger(w, level)
}
