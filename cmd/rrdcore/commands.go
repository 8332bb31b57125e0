package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-rrd/internal/auth"
	"github.com/nerrad567/gray-logic-rrd/internal/catalog"
	"github.com/nerrad567/gray-logic-rrd/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-rrd/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-rrd/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-rrd/internal/ingest"
	"github.com/nerrad567/gray-logic-rrd/internal/rrdtool"
)

// closeTimeout bounds the wait for queued work when a one-shot command exits.
const closeTimeout = 10 * time.Second

// errNoPassword is returned by hash-password when stdin is empty.
var errNoPassword = errors.New("no password given")

// withManager loads the configuration, builds a Manager and runs fn with it.
func withManager(cmd *cobra.Command, opts *cliOptions, fn func(ctx context.Context, cfg *config.Config, mgr *rrdtool.Manager) error) error {
	cfg, err := config.LoadLocal(opts.path())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	mgr := newManager(cfg, newCommandRunner(cfg))
	// stdout carries command output.
	mgr.SetLogger(logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging, version).Component("rrdtool"))

	fnErr := fn(cmd.Context(), cfg, mgr)

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return errors.Join(fnErr, mgr.Close(ctx))
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newCreateCmd(opts *cliOptions) *cobra.Command {
	var step, start int64
	cmd := &cobra.Command{
		Use:     "create NAME DS:...|RRA:... [...]",
		Short:   "Create a database unless it already exists",
		Example: "  rrdcore create power --step 300 DS:watts:GAUGE:600:0:U RRA:AVERAGE:0.5:1:288",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd, opts, func(ctx context.Context, _ *config.Config, mgr *rrdtool.Manager) error {
				db, err := mgr.Create(ctx, args[0], args[1:], rrdtool.CreateOptions{Step: step, Start: start})
				if errors.Is(err, rrdtool.ErrExists) {
					db, err = mgr.Get(ctx, args[0])
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), db.Filename())
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&step, "step", 0, "base interval in seconds")
	cmd.Flags().Int64Var(&start, "start", 0, "first timestamp that may be written (Unix seconds)")
	return cmd
}

func newInfoCmd(opts *cliOptions) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "info NAME",
		Short: "Describe a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd, opts, func(ctx context.Context, _ *config.Config, mgr *rrdtool.Manager) error {
				db, err := mgr.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if raw {
					tree, err := db.InfoTree(ctx)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), tree)
				}
				info, err := db.Info(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), info)
			})
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the generic info tree instead of the typed description")
	return cmd
}

func newFetchCmd(opts *cliOptions) *cobra.Command {
	var (
		cf        string
		fetchOpts rrdtool.FetchOptions
	)
	cmd := &cobra.Command{
		Use:   "fetch NAME",
		Short: "Read consolidated rows from one archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := rrdtool.ParseConsolidationFunction(strings.ToUpper(cf))
			if err != nil {
				return err
			}
			return withManager(cmd, opts, func(ctx context.Context, _ *config.Config, mgr *rrdtool.Manager) error {
				rows, err := mgr.Fetch(ctx, args[0], parsed, fetchOpts)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rows)
			})
		},
	}
	cmd.Flags().StringVar(&cf, "cf", string(rrdtool.Average), "consolidation function (AVERAGE, MIN, MAX, LAST)")
	cmd.Flags().Int64Var(&fetchOpts.Start, "start", 0, "first timestamp (Unix seconds)")
	cmd.Flags().Int64Var(&fetchOpts.End, "end", 0, "last timestamp (Unix seconds)")
	cmd.Flags().Int64Var(&fetchOpts.Resolution, "resolution", 0, "seconds per row")
	cmd.Flags().BoolVar(&fetchOpts.AlignStart, "align-start", false, "align start to the resolution")
	return cmd
}

func newLastCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "last NAME",
		Short: "Print the timestamp of the most recent update",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd, opts, func(ctx context.Context, _ *config.Config, mgr *rrdtool.Manager) error {
				db, err := mgr.Get(ctx, args[0])
				if err != nil {
					return err
				}
				ts, err := db.Last(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ts)
				return nil
			})
		},
	}
}

func newLastUpdateCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lastupdate NAME",
		Short: "Print the most recent value of every data source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd, opts, func(ctx context.Context, _ *config.Config, mgr *rrdtool.Manager) error {
				db, err := mgr.Get(ctx, args[0])
				if err != nil {
					return err
				}
				lu, err := db.LastUpdate(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), lu)
			})
		},
	}
}

func newUpdateCmd(opts *cliOptions) *cobra.Command {
	var (
		timestamp int64
		skipPast  bool
	)
	cmd := &cobra.Command{
		Use:   "update NAME DS=VALUE [...]",
		Short: "Write one sample and record it in the catalog",
		Long: "Write one sample. VALUE is a number or U for unknown. The update is\n" +
			"recorded in the catalog database like updates received over MQTT.",
		Example: "  rrdcore update power watts=1250 volts=U --time 1405942100",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseValues(args[1:])
			if err != nil {
				return err
			}
			return withManager(cmd, opts, func(ctx context.Context, cfg *config.Config, mgr *rrdtool.Manager) error {
				db, err := database.Open(database.FromConfig(cfg.Database))
				if err != nil {
					return fmt.Errorf("opening database: %w", err)
				}
				defer db.Close() //nolint:errcheck // Read-mostly; close errors are not actionable
				if err := db.Migrate(ctx); err != nil {
					return fmt.Errorf("running migrations: %w", err)
				}

				svc, err := ingest.New(ingest.Deps{
					Store:   mgr,
					Catalog: catalog.NewSQLiteRepository(db.DB),
					Source:  mgr,
				})
				if err != nil {
					return err
				}
				ev, err := svc.Apply(ctx, ingest.Request{
					Name:            args[0],
					Timestamp:       timestamp,
					Values:          values,
					SkipPastUpdates: skipPast,
				}, catalog.SourceCLI)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), ev)
			})
		},
	}
	cmd.Flags().Int64Var(&timestamp, "time", 0, "sample timestamp (Unix seconds, default now)")
	cmd.Flags().BoolVar(&skipPast, "skip-past-updates", false, "ignore samples older than the last update")
	return cmd
}

// parseValues reads DS=VALUE pairs. U (any case) is unknown.
func parseValues(pairs []string) (map[string]rrdtool.Float, error) {
	values := make(map[string]rrdtool.Float, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" || raw == "" {
			return nil, fmt.Errorf("invalid value %q: want DS=VALUE", pair)
		}
		if _, dup := values[name]; dup {
			return nil, fmt.Errorf("data source %q given twice", name)
		}
		if strings.EqualFold(raw, "U") {
			values[name] = rrdtool.Float(math.NaN())
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", name, err)
		}
		values[name] = rrdtool.Float(v)
	}
	return values, nil
}

func newDumpCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dump NAME",
		Short: "Print the XML dump of a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd, opts, func(ctx context.Context, _ *config.Config, mgr *rrdtool.Manager) error {
				db, err := mgr.Get(ctx, args[0])
				if err != nil {
					return err
				}
				xml, err := db.Dump(ctx)
				if err != nil {
					return err
				}
				_, err = io.WriteString(cmd.OutOrStdout(), xml)
				return err
			})
		},
	}
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password read from stdin for security.users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sc := bufio.NewScanner(cmd.InOrStdin())
			if !sc.Scan() {
				if err := sc.Err(); err != nil {
					return err
				}
				return errNoPassword
			}
			password := strings.TrimRight(sc.Text(), "\r")
			if password == "" {
				return errNoPassword
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rrdcore %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
