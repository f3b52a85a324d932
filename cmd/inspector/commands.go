package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/ledgerline/ledgerlog/internal/config"
	"github.com/ledgerline/ledgerlog/internal/model"
	"github.com/ledgerline/ledgerlog/internal/pkg/sanitize"
	"github.com/ledgerline/ledgerlog/internal/repository"
	"github.com/ledgerline/ledgerlog/internal/service"
	"github.com/spf13/cobra"
)

type inspector struct {
	cfg   *config.Config
	store *repository.LogStore
	close func()
}

func openStore(cmd *cobra.Command) (*inspector, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dsn, _ := cmd.Flags().GetString("dsn"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	db, err := repository.NewDB(cfg)
	if err != nil {
		return nil, err
	}
	if err := repository.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	store := repository.NewLogStore(db, repository.RetentionDays(
		cfg.Retention.APIDays,
		cfg.Retention.ErrorDays,
		cfg.Retention.ActivityDays,
		cfg.Retention.FrontendDays,
	), clockwork.NewRealClock())
	return &inspector{
		cfg:   cfg,
		store: store,
		close: func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		},
	}, nil
}

func sinceRange(since time.Duration) model.TimeRange {
	if since <= 0 {
		return model.TimeRange{}
	}
	from := time.Now().UTC().Add(-since)
	return model.TimeRange{From: &from}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newStatsCommand() *cobra.Command {
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print record counts and error figures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			in, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer in.close()

			ctx := context.Background()
			r := sinceRange(since)
			overview, err := in.store.Overview(ctx, r)
			if err != nil {
				return err
			}
			perf, err := in.store.PerformanceStats(ctx, r)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"overview":    overview,
				"performance": perf,
			})
		},
	}
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "only count records newer than this; 0 for all")
	return cmd
}

func newPurgeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete records past their retention period once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			in, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer in.close()

			purged, err := in.store.PurgeExpired(context.Background())
			for kind, n := range purged {
				fmt.Fprintf(cmd.OutOrStdout(), "%-9s %d deleted\n", kind, n)
			}
			return err
		},
	}
}

func newErrorsCommand() *cobra.Command {
	var (
		limit    int
		severity string
	)
	cmd := &cobra.Command{
		Use:   "errors",
		Short: "List unresolved errors, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			in, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer in.close()

			recs, err := in.store.UnresolvedErrors(context.Background(),
				model.ErrorLogFilter{Severity: severity},
				model.Page{Limit: limit}.Normalize())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTIME\tSEVERITY\tTYPE\tENDPOINT\tMESSAGE")
			for _, r := range recs {
				msg := r.ErrorMessage
				if len(msg) > 80 {
					msg = msg[:77] + "..."
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.Timestamp.Format(time.RFC3339), r.Severity, r.ErrorType, r.Endpoint, msg)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	cmd.Flags().StringVar(&severity, "severity", "", "LOW, MEDIUM, HIGH or CRITICAL")
	return cmd
}

func newExportCommand() *cobra.Command {
	var (
		format string
		out    string
		since  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "export api|errors|activities",
		Short: "Write records as CSV or JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, ok := service.ParseExportType(args[0])
			if !ok {
				return fmt.Errorf("invalid export type %q", args[0])
			}
			cmd.SilenceUsage = true
			in, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer in.close()

			san := sanitize.New(sanitize.Options{Enabled: in.cfg.Logging.Sanitization})
			clock := clockwork.NewRealClock()
			logging := service.NewLoggingService(in.cfg, in.store, service.NewFormatter(san, in.cfg.Server.Environment, clock), nil, clock)
			defer logging.Close()

			recs, err := logging.CollectExport(context.Background(), t, sinceRange(since))
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if format == "csv" {
				return service.WriteCSV(w, recs)
			}
			return service.WriteJSON(w, recs)
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "csv or json")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file; stdout when empty")
	cmd.Flags().DurationVar(&since, "since", 0, "only export records newer than this; 0 for all")
	return cmd
}

func newTrailCommand() *cobra.Command {
	var (
		username string
		session  string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "trail",
		Short: "Show the requests of a user or the activities of a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (username == "") == (session == "") {
				return fmt.Errorf("exactly one of --username or --session is required")
			}
			cmd.SilenceUsage = true
			in, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer in.close()

			ctx := context.Background()
			page := model.Page{Limit: limit}.Normalize()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			if username != "" {
				recs, err := in.store.APILogsByUsername(ctx, username, page)
				if err != nil {
					return err
				}
				fmt.Fprintln(tw, "TIME\tMETHOD\tENDPOINT\tSTATUS\tMS\tREQUEST")
				for _, r := range recs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
						r.Timestamp.Format(time.RFC3339), r.Method, r.Endpoint, r.ResponseStatus, r.ResponseTime, r.RequestID)
				}
				return tw.Flush()
			}

			recs, err := in.store.ActivitiesBySession(ctx, session, page)
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "TIME\tUSER\tACTIVITY\tOK\tDESCRIPTION")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n",
					r.Timestamp.Format(time.RFC3339), r.Username, r.Activity, r.Success, r.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "list API requests made by this user")
	cmd.Flags().StringVar(&session, "session", "", "list activities recorded in this session")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}
