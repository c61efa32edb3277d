package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	seal "github.com/satishbabariya/seal-go"
	"github.com/satishbabariya/seal-go/cli/internal/ui"
)

func newPingCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that every data source accepts connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, _, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			var failed int
			for _, name := range db.Registry().Names() {
				src, err := db.On(name)
				if err != nil {
					return err
				}
				start := time.Now()
				if _, err := src.CustomQuery(seal.NewUnitOfWork(ctx), "SELECT 1"); err != nil {
					ui.PrintError(out, "%s: %v", name, err)
					failed++
					continue
				}
				ui.PrintSuccess(out, "%s (%s) %s", name, src.Executor().Dialect(), time.Since(start).Round(time.Microsecond))
			}
			if failed > 0 {
				return fmt.Errorf("%d data source(s) unreachable", failed)
			}
			return nil
		},
	}
}

func newColumnsCommand(opts *globalOptions) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "columns <table>",
		Short: "Show the introspected structure of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, src, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			if refresh {
				src.Executor().Refresh(args[0])
			}
			s, err := src.Executor().Structure(seal.NewUnitOfWork(ctx), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			ui.PrintSection(out, fmt.Sprintf("%s.%s", src.Name(), s.Table))
			rows := make([][]string, len(s.Columns))
			for i, c := range s.Columns {
				rows[i] = []string{
					c.Name,
					c.Type,
					c.Kind.String(),
					strconv.FormatBool(c.Nullable),
					flag(c.PrimaryKey),
					defaultValue(c.Default),
				}
			}
			return ui.PrintTable(out, []string{"Column", "Type", "Kind", "Nullable", "Key", "Default"}, rows)
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Drop the cached structure and introspect again")

	return cmd
}

func newQueryCommand(opts *globalOptions) *cobra.Command {
	var table string

	cmd := &cobra.Command{
		Use:   "query <sql> [args...]",
		Short: "Run a SELECT and print the rows",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, src, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			uow := seal.NewUnitOfWork(ctx)
			params := statementArgs(args[1:])
			var columns []string
			var maps []map[string]interface{}
			if table != "" {
				rows, err := src.CustomQueryAs(uow, table, args[0], params...)
				if err != nil {
					return err
				}
				columns, maps = rows.Columns(), rows.AsMaps()
			} else {
				rows, err := src.CustomQuery(uow, args[0], params...)
				if err != nil {
					return err
				}
				columns, maps = rows.Columns(), rows.AsMaps()
			}
			return ui.PrintRows(cmd.OutOrStdout(), columns, maps)
		},
	}

	cmd.Flags().StringVarP(&table, "table", "t", "", "Type the rows with this table's structure")

	return cmd
}

func newExecCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <sql> [args...]",
		Short: "Run a statement and print the affected row count",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, src, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := src.CustomUpdate(seal.NewUnitOfWork(ctx), args[0], statementArgs(args[1:])...)
			if err != nil {
				return err
			}
			ui.PrintSuccess(cmd.OutOrStdout(), "%d row(s) affected", n)
			return nil
		},
	}
}

func newStatsCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show pool statistics for every data source",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			var rows [][]string
			for _, s := range db.Registry().Stats() {
				rows = append(rows, []string{
					s.Name,
					strconv.Itoa(s.Min),
					strconv.Itoa(s.Max),
					strconv.Itoa(s.Size),
					strconv.Itoa(s.Idle),
					strconv.Itoa(s.Occupied),
					strconv.FormatInt(s.Acquired, 10),
					strconv.FormatInt(s.Timeouts, 10),
				})
			}
			out := cmd.OutOrStdout()
			ui.PrintSection(out, "Pools")
			if err := ui.PrintTable(out, []string{"Data source", "Min", "Max", "Size", "Idle", "Occupied", "Acquired", "Timeouts"}, rows); err != nil {
				return err
			}

			cs := db.Registry().Structures().Stats()
			ui.PrintSection(out, "Structure cache")
			return ui.PrintTable(out, []string{"Size", "Capacity", "Hits", "Misses", "Evictions", "Hit rate", "Loads"}, [][]string{{
				strconv.Itoa(cs.Size),
				capacity(cs.MaxSize),
				strconv.FormatInt(cs.Hits, 10),
				strconv.FormatInt(cs.Misses, 10),
				strconv.FormatInt(cs.Evictions, 10),
				fmt.Sprintf("%.1f%%", cs.HitRate),
				strconv.FormatInt(cs.Loads, 10),
			}})
		},
	}
}

// statementArgs passes integers as int64 and everything else as text, so
// "1" compares equal to an INTEGER column.
func statementArgs(raw []string) []interface{} {
	args := make([]interface{}, len(raw))
	for i, s := range raw {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			args[i] = n
		} else if strings.EqualFold(s, "null") {
			args[i] = nil
		} else {
			args[i] = s
		}
	}
	return args
}

func defaultValue(v *string) string {
	if v == nil {
		return ui.FormatValue(nil)
	}
	return *v
}

func capacity(n int) string {
	if n <= 0 {
		return "unbounded"
	}
	return strconv.Itoa(n)
}

func flag(b bool) string {
	if b {
		return "PK"
	}
	return ""
}
