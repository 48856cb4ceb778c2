package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/xavierca1/leadflow/internal/config"
	"github.com/xavierca1/leadflow/internal/entity"
	"github.com/xavierca1/leadflow/internal/infra/database"
	"github.com/xavierca1/leadflow/internal/logger"
	"github.com/xavierca1/leadflow/internal/usecase"
)

// store is an opened database plus the service on top of it.
type store struct {
	db      *sql.DB
	repo    *database.LeadRepository
	service *usecase.LeadService
}

func (s *store) Close() error { return s.db.Close() }

func openStore(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*store, error) {
	db, dialect, err := database.Open(cfg.DB.Driver, cfg.DB.Path, cfg.DB.URL)
	if err != nil {
		return nil, err
	}

	repo := database.NewLeadRepository(db, dialect)
	service := usecase.NewLeadService(repo, nil, log)
	if err := service.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &store{db: db, repo: repo, service: service}, nil
}

func newRootCmd() *cobra.Command {
	var (
		cfg config.Config
		log *logrus.Logger
	)

	root := &cobra.Command{
		Use:           "leadctl",
		Short:         "Operate the lead store from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(); err != nil {
				return err
			}
			log = logger.NewWithOutput(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
			return nil
		},
	}

	withStore := func(run func(cmd *cobra.Command, args []string, s *store) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer s.Close()
			return run(cmd, args, s)
		}
	}

	root.AddCommand(
		newInitCmd(withStore),
		newListCmd(withStore),
		newStatsCmd(withStore),
		newStageCmd(withStore),
		newDeleteCmd(withStore),
		newImportCmd(withStore),
		newBackupCmd(withStore),
		newRestoreCmd(func() config.Config { return cfg }),
	)
	return root
}

type storeRunner func(run func(cmd *cobra.Command, args []string, s *store) error) func(*cobra.Command, []string) error

func newInitCmd(withStore storeRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the leads table if it does not exist",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, args []string, s *store) error {
			total, err := s.service.TotalCount(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "lead store ready (%d leads)\n", total)
			return nil
		}),
	}
}

func newListCmd(withStore storeRunner) *cobra.Command {
	var filter entity.LeadFilter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List leads, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, args []string, s *store) error {
			leads, err := s.service.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			writeLeads(cmd.OutOrStdout(), leads)
			return nil
		}),
	}

	cmd.Flags().StringVar(&filter.Search, "search", "", "substring of company, contact, email or interest")
	cmd.Flags().StringVar(&filter.Stage, "stage", entity.FilterAll, "only leads in this stage")
	cmd.Flags().StringVar(&filter.Interest, "interest", entity.FilterAll, "only leads with this interest")
	return cmd
}

func newStatsCmd(withStore storeRunner) *cobra.Command {
	var top, recent int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show totals, stage counts, top interests and recent updates",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, args []string, s *store) error {
			data, err := s.service.Dashboard(cmd.Context(), top, recent)
			if err != nil {
				return err
			}
			writeDashboard(cmd.OutOrStdout(), data)
			return nil
		}),
	}

	cmd.Flags().IntVar(&top, "top", usecase.DefaultTopInterests, "number of interests to show")
	cmd.Flags().IntVar(&recent, "recent", usecase.DefaultRecent, "number of recent updates to show")
	return cmd
}

func newStageCmd(withStore storeRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "stage ID STAGE",
		Short: "Move a lead to another stage",
		Long:  "Move a lead to another stage. STAGE is one of: " + stageList() + ".",
		Args:  cobra.ExactArgs(2),
		RunE: withStore(func(cmd *cobra.Command, args []string, s *store) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := s.service.UpdateStage(cmd.Context(), id, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "lead %d moved to %s\n", id, strings.TrimSpace(args[1]))
			return nil
		}),
	}
}

func newDeleteCmd(withStore storeRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a lead",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, args []string, s *store) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			removed, err := s.service.Delete(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintf(cmd.OutOrStdout(), "lead %d not found, nothing deleted\n", id)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "lead %d deleted\n", id)
			return nil
		}),
	}
}

func newImportCmd(withStore storeRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import leads from a CSV export",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, args []string, s *store) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			result, err := s.service.ImportCSV(cmd.Context(), f)
			if err != nil {
				return err
			}
			writeImportResult(cmd.OutOrStdout(), result)
			return nil
		}),
	}
}

func newBackupCmd(withStore storeRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "backup DEST",
		Short: "Write a snapshot of the sqlite database to DEST",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, args []string, s *store) error {
			if err := s.repo.Backup(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backup written to %s\n", args[0])
			return nil
		}),
	}
}

// restore runs without an open store: the database file is replaced.
func newRestoreCmd(cfg func() config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "restore SRC",
		Short: "Replace the sqlite database with a backup",
		Long:  "Replace the sqlite database with a backup. Stop the API first; the current file is kept as a pre-restore snapshot.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			dialect, err := database.ParseDialect(c.DB.Driver)
			if err != nil {
				return err
			}
			if dialect != database.DialectSQLite {
				return database.ErrBackupUnsupported
			}

			result, err := database.Restore(cmd.Context(), args[0], c.DB.Path, time.Now())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "restored %s from %s\n", c.DB.Path, args[0])
			fmt.Fprintf(out, "previous database saved as %s\n", result.PreRestoreBackupPath)
			if result.RestartRequired {
				fmt.Fprintln(out, "restart the API to pick up the restored data")
			}
			return nil
		},
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid lead id %q", raw)
	}
	return id, nil
}

func stageList() string {
	stages := entity.Stages()
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.String()
	}
	return strings.Join(names, ", ")
}

const timeLayout = "2006-01-02 15:04"

func writeLeads(out io.Writer, leads []entity.Lead) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCOMPANY\tCONTACT\tEMAIL\tINTEREST\tSTAGE\tUPDATED")
	for _, l := range leads {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			l.ID, l.Company, l.ContactName, l.Email, l.Interest, l.Stage,
			l.UpdatedAt.Local().Format(timeLayout))
	}
	tw.Flush()
	fmt.Fprintf(out, "%d lead(s)\n", len(leads))
}

func writeDashboard(out io.Writer, data *usecase.DashboardData) {
	fmt.Fprintf(out, "Total leads: %d\n\n", data.Total)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tLEADS")
	for _, stage := range entity.Stages() {
		fmt.Fprintf(tw, "%s\t%d\n", stage, data.ByStage[stage])
	}
	tw.Flush()

	if len(data.TopInterests) > 0 {
		fmt.Fprintln(out)
		tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "INTEREST\tLEADS")
		for _, ic := range data.TopInterests {
			fmt.Fprintf(tw, "%s\t%d\n", ic.Interest, ic.Count)
		}
		tw.Flush()
	}

	if len(data.Recent) > 0 {
		fmt.Fprintln(out)
		tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCOMPANY\tSTAGE\tUPDATED")
		for _, r := range data.Recent {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.ID, r.Company, r.Stage, r.UpdatedAt.Local().Format(timeLayout))
		}
		tw.Flush()
	}
}

func writeImportResult(out io.Writer, result *usecase.ImportResult) {
	fmt.Fprintf(out, "imported: %d, skipped: %d\n", result.Imported, result.Skipped)
	for _, e := range result.Errors {
		line := fmt.Sprintf("  row %d: %s", e.Row, e.Message)
		if e.Column != "" && e.ReceivedValue != "" {
			line += fmt.Sprintf(" (%s=%q)", e.Column, e.ReceivedValue)
		}
		fmt.Fprintln(out, line)
	}
}
