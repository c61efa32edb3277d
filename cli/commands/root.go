// Package commands implements CLI commands.
package commands

import (
	"context"

	"github.com/spf13/cobra"

	seal "github.com/satishbabariya/seal-go"
	"github.com/satishbabariya/seal-go/cli/internal/version"
	"github.com/satishbabariya/seal-go/config"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	dataSource string
	verbose    bool
}

// NewRootCommand creates the seal command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "seal",
		Short:         "Inspect and query configured data sources",
		Long:          "seal opens the data sources of a seal configuration file and runs statements through their pools.",
		Version:       version.Get().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default: .seal.yaml in ., $HOME or ~/.config/seal)")
	cmd.PersistentFlags().StringVarP(&opts.dataSource, "data-source", "d", "", "Data source name (default: the configured default)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log every statement")

	cmd.AddCommand(newInitCommand())
	cmd.AddCommand(newPingCommand(opts))
	cmd.AddCommand(newColumnsCommand(opts))
	cmd.AddCommand(newQueryCommand(opts))
	cmd.AddCommand(newExecCommand(opts))
	cmd.AddCommand(newStatsCommand(opts))

	return cmd
}

// Execute is the main entry point for the CLI
func Execute() error {
	return NewRootCommand().Execute()
}

// open loads the configuration and opens every data source in it.
func (o *globalOptions) open(ctx context.Context) (*seal.DB, *seal.Source, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.verbose {
		cfg.Log.Enabled = true
		cfg.Log.Level = "debug"
	}

	db, err := seal.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if o.dataSource == "" {
		return db, db.Source, nil
	}
	src, err := db.On(o.dataSource)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, src, nil
}
