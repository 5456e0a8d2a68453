// Package cli implements the stash command-line tool: a user profile bound
// to a configurable backend.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/zoobzio/stash/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Backend    string
	Key        string
	Dir        string
	Addr       string
	DSN        string
	Project    string
	Verbose    bool
	Format     string // "json" | "text"

	cfg   *config.Config
	log   zerolog.Logger
	store *Store
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the stash CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "stash",
		Short:         "stash - persistent reactive values",
		Long:          "Read, write and watch a user profile bound to a durable backend.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.setup(cmd)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if opts.store != nil {
				opts.store.Close()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "path to a TOML config file")
	flags.StringVar(&opts.Backend, "backend", "", "backend kind ("+strings.Join(config.Backends, "|")+")")
	flags.StringVarP(&opts.Key, "key", "k", "", "durable key of the profile")
	flags.StringVar(&opts.Dir, "dir", "", "directory for the file backend")
	flags.StringVar(&opts.Addr, "addr", "", "address for redis, nats or consul")
	flags.StringVar(&opts.DSN, "dsn", "", "DSN for sqlite or postgres")
	flags.StringVar(&opts.Project, "project", "", "GCP project for the firestore backend")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewSetCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewRawCommand(opts))

	return cmd
}

// setup resolves configuration, builds the logger and opens the backend.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return err
	}

	flags := cmd.Flags()
	override := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	override("backend", &cfg.Backend.Kind, o.Backend)
	override("key", &cfg.Key, o.Key)
	override("dir", &cfg.Backend.Dir, o.Dir)
	override("addr", &cfg.Backend.Addr, o.Addr)
	override("dsn", &cfg.Backend.DSN, o.DSN)
	override("project", &cfg.Backend.Project, o.Project)
	if o.Verbose {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	o.cfg = cfg

	o.log = NewLogger(cfg.Logging, cmd.ErrOrStderr())
	HookSignals(o.log)

	store, err := Open(cmd.Context(), cfg.Backend)
	if err != nil {
		return err
	}
	o.store = store

	o.log.Debug().Str("backend", cfg.Backend.Kind).Str("key", cfg.Key).Msg("backend opened")
	return nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
