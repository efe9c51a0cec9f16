package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fortressi/provision"
	"github.com/fortressi/provision/host"
	"github.com/fortressi/provision/internal/config"
	"github.com/fortressi/provision/internal/plan"
)

var version = "dev"

// app carries what every subcommand needs once flags and config are parsed.
type app struct {
	configFile string
	statePath  string
	logLevel   string

	cfg    config.Config
	logger zerolog.Logger

	// newHost overrides the local host, e.g. with host.Memory in tests.
	newHost func() host.Host
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "nodeprov",
		Short:         "Provision a node host as a resumable transaction",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "path to a YAML config file")
	flags.StringVar(&a.statePath, "state", "", "transaction state file (default "+provision.DefaultStatePath+")")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newInstallCmd(a),
		newResumeCmd(a),
		newStatusCmd(a),
		newClearCmd(a),
		newPlanCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	v, err := config.NewViper(a.configFile)
	if err != nil {
		return err
	}
	if err := v.BindPFlag("state_path", cmd.Flags().Lookup("state")); err != nil {
		return err
	}
	if err := v.BindPFlag("log_level", cmd.Flags().Lookup("log-level")); err != nil {
		return err
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(cfg.LogLevel).
		With().Timestamp().Logger()
	return nil
}

func (a *app) store() (*provision.FileStore, error) {
	return provision.NewFileStore(a.cfg.StatePath, provision.WithStoreLogger(a.logger))
}

func (a *app) host() host.Host {
	if a.newHost != nil {
		return a.newHost()
	}
	return host.NewLocal(host.WithTimeout(a.cfg.CommandTimeout), host.WithLogger(a.logger))
}

func (a *app) plan(h host.Host) ([]provision.Operation, provision.Metadata, error) {
	return plan.Build(h, a.cfg, a.logger)
}

func requireRoot() error {
	if os.Geteuid() != 0 {
		return fmt.Errorf("this command must be run as root")
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		// config is not needed to print the version
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "nodeprov %s\n", version)
		},
	}
}
