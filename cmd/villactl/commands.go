package main

import (
	"fmt"
	"time"

	"villaops/internal/config"
	"villaops/internal/database"
	"villaops/internal/export"
	"villaops/internal/google"
	"villaops/internal/models"
	"villaops/internal/notify"
	"villaops/internal/repository"
	"villaops/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func checkCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the database and every configured integration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := open(cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			failed := 0
			report := func(name string, err error) {
				if err != nil {
					failed++
					fmt.Fprintf(out, "FAIL  %-9s %v\n", name, err)
					return
				}
				fmt.Fprintf(out, "ok    %s\n", name)
			}

			report("database", e.db.PingContext(ctx))

			if e.cfg.Redis.Address != "" {
				client := repository.NewRedisClient(e.cfg.Redis)
				report("redis", repository.Ping(ctx, client))
				_ = repository.Close(client)
			}

			if e.cfg.Google.GoogleCredentialsFile != "" {
				email, err := google.ServiceAccountEmail(e.cfg.Google.GoogleCredentialsFile)
				if err == nil {
					fmt.Fprintf(out, "      share the spreadsheet with %s\n", email)
					var sheets *google.SheetsService
					sheets, err = google.NewSheetsService(ctx, e.cfg.Google.GoogleCredentialsFile, e.cfg.Google.BookingSpreadSheetID)
					if err == nil {
						err = sheets.TestConnection(ctx)
					}
				}
				report("sheets", err)
			}

			if e.cfg.Telegram.BotToken != "" {
				_, err := notify.NewBot(e.cfg.Telegram.BotToken, false)
				report("telegram", err)
			}

			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}

func exportCmd(open opener) *cobra.Command {
	var (
		start string
		days  int
		dir   string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the occupancy calendar and job list to an xlsx file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, err := parseStart(start)
			if err != nil {
				return err
			}
			e, err := open(cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()

			if dir == "" {
				dir = e.cfg.Exports.Path
			}
			path, err := export.NewExporter(e.db, dir, e.logger).WriteFile(cmd.Context(), from, days)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "First night, YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&days, "days", 30, "Number of nights")
	cmd.Flags().StringVar(&dir, "dir", "", "Output directory (default exports.path)")
	return cmd
}

func backupCmd(open opener) *cobra.Command {
	var cleanup bool

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the database into backup.storage_path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := open(cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()

			if e.cfg.Backup.StoragePath == "" {
				return fmt.Errorf("backup.storage_path is not set")
			}
			svc := database.NewBackupService(e.db, e.cfg.Backup, e.logger)
			path, err := svc.PerformBackup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			if cleanup {
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d old backup(s)\n", svc.CleanupOldBackups())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "Also delete backups past backup.retention_days")
	return cmd
}

func sheetsCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sheets",
		Short: "Rebuild the Google Sheets mirror",
	}

	connect := func(cmd *cobra.Command) (*env, *google.SheetsService, error) {
		e, err := open(cmd, true)
		if err != nil {
			return nil, nil, err
		}
		if e.cfg.Google.GoogleCredentialsFile == "" || e.cfg.Google.BookingSpreadSheetID == "" {
			e.Close()
			return nil, nil, fmt.Errorf("google.credentials_file and google.bookings_spreadsheet_id are required")
		}
		sheets, err := google.NewSheetsService(cmd.Context(), e.cfg.Google.GoogleCredentialsFile, e.cfg.Google.BookingSpreadSheetID)
		if err != nil {
			e.Close()
			return nil, nil, err
		}
		return e, sheets, nil
	}

	bookings := &cobra.Command{
		Use:   "bookings",
		Short: "Rewrite the bookings sheet from the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, sheets, err := connect(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			list, err := e.db.ListBookings(cmd.Context(), models.BookingFilter{})
			if err != nil {
				return err
			}
			if err := sheets.ReplaceBookingsSheet(cmd.Context(), list); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d booking(s)\n", len(list))
			return nil
		},
	}

	var (
		start string
		days  int
	)
	schedule := &cobra.Command{
		Use:   "schedule",
		Short: "Rewrite the schedule sheet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, err := parseStart(start)
			if err != nil {
				return err
			}
			e, sheets, err := connect(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			grid, _, err := export.NewExporter(e.db, e.cfg.Exports.Path, e.logger).Load(cmd.Context(), from, days)
			if err != nil {
				return err
			}
			return sheets.WriteSchedule(cmd.Context(), grid)
		},
	}
	schedule.Flags().StringVar(&start, "start", "", "First night, YYYY-MM-DD (default today)")
	schedule.Flags().IntVar(&days, "days", 30, "Number of nights")

	cmd.AddCommand(bookings, schedule)
	return cmd
}

func propertiesCmd(open opener) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "properties",
		Short: "Validate a property catalog and load it into the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := open(cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()

			if file == "" {
				file = e.cfg.PropertiesFile
			}
			if file == "" {
				return fmt.Errorf("no catalog file: pass --file or set properties_file")
			}
			properties, err := config.LoadProperties(file)
			if err != nil {
				return err
			}
			if err := e.db.SyncProperties(cmd.Context(), properties); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "synced %d properties\n", len(properties))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Catalog file (default properties_file)")
	return cmd
}

func syncCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Inspect the spreadsheet sync queue",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Count queued sync tasks by status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := open(cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()

			counts, err := e.db.CountSyncTasksByStatus(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range []string{
				models.SyncStatusPending,
				models.SyncStatusRetry,
				models.SyncStatusProcessing,
				models.SyncStatusCompleted,
				models.SyncStatusFailed,
			} {
				fmt.Fprintf(out, "%-10s %d\n", s, counts[s])
			}
			return nil
		},
	}

	var limit int64
	deadLetters := &cobra.Command{
		Use:   "dead-letters",
		Short: "List tasks that ran out of retries, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := open(cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()

			var client *redis.Client
			if e.cfg.Redis.Address != "" {
				client = repository.NewRedisClient(e.cfg.Redis)
				defer repository.Close(client)
			}
			tasks, err := worker.NewSheetsWorker(e.db, nil, client, worker.RetryPolicy{}, e.logger).DeadLetters(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(tasks) == 0 {
				fmt.Fprintln(out, "no dead letters")
				return nil
			}
			for _, t := range tasks {
				reason := ""
				if t.LastError != nil {
					reason = *t.LastError
				}
				fmt.Fprintf(out, "%-6d %-18s booking=%-6d retries=%d  %s\n", t.ID, t.TaskType, t.BookingID, t.RetryCount, reason)
			}
			return nil
		},
	}
	deadLetters.Flags().Int64Var(&limit, "limit", 50, "Maximum number of tasks to list")

	cmd.AddCommand(status, deadLetters)
	return cmd
}

func parseStart(s string) (time.Time, error) {
	if s == "" {
		return models.DateOnly(time.Now()), nil
	}
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --start %q; expected YYYY-MM-DD", s)
	}
	return t, nil
}
