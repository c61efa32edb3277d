package commands

import (
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/satishbabariya/seal-go/cli/internal/ui"
	"github.com/satishbabariya/seal-go/config"
	"github.com/satishbabariya/seal-go/query/sqlgen"
)

func newInitCommand() *cobra.Command {
	var (
		path    string
		dialect string
		dbPath  string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			exists, err := afero.Exists(config.AppFs, path)
			if err != nil {
				return err
			}
			if exists && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			ds := config.DataSource{
				Dialect: sqlgen.NormalizeDialect(dialect),
				Default: true,
				Pool: config.Pool{
					MinConnections:    1,
					MaxConnections:    10,
					AcquireTimeout:    5 * time.Second,
					KeepAliveInterval: time.Minute,
				},
			}
			switch ds.Dialect {
			case sqlgen.SQLite:
				ds.Path = dbPath
			case sqlgen.MySQL:
				ds.Host, ds.Port, ds.User, ds.Database = "localhost", 3306, "root", "app"
			case sqlgen.Postgres:
				ds.Host, ds.Port, ds.User, ds.Database = "localhost", 5432, "postgres", "app"
			default:
				return fmt.Errorf("%w: %q", sqlgen.ErrUnsupportedDialect, dialect)
			}

			cfg := &config.Config{
				DataSources: map[string]config.DataSource{"main": ds},
				ORM: config.ORM{
					LogicalDeletedField: "deleted",
					LogicalDeletedTrue:  1,
					LogicalDeletedFalse: 0,
					CreatedAtField:      "create_at",
					UpdatedAtField:      "update_at",
				},
				Log: config.Log{Level: "info", Format: "text"},
			}
			if err := config.Save(cfg, path); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}

			ui.PrintSuccess(out, "Wrote %s", path)
			ui.PrintWarning(out, "Review the orm section: columns it names are filled and filtered automatically")
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "output", ".seal.yaml", "Config file to write")
	cmd.Flags().StringVar(&dialect, "dialect", "sqlite", "mysql, sqlite or postgres")
	cmd.Flags().StringVar(&dbPath, "path", "app.db", "SQLite database file")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	return cmd
}
