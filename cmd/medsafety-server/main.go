package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/medsafety/internal/config"
	"github.com/ehr/medsafety/internal/domain/administration"
	"github.com/ehr/medsafety/internal/domain/interaction"
	"github.com/ehr/medsafety/internal/domain/medication"
	"github.com/ehr/medsafety/internal/platform/db"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "medsafety-server",
		Short: "Medication safety and administration verification service",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(scheduleCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

// loadSource resolves a rules source outside the server. A database pool
// is only opened for the postgres source.
func loadSource(ctx context.Context, location string) (interaction.Source, func(), error) {
	cfg, err := config.Load()
	if err != nil && location == "postgres" {
		return nil, nil, err
	}
	opts := interaction.SourceOptions{}
	closeFn := func() {}
	if cfg != nil {
		opts.AWSRegion, opts.S3Endpoint = cfg.AWSRegion, cfg.S3Endpoint
		if location == "" {
			location = cfg.RulesSource
		}
		if location == "postgres" {
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return nil, nil, err
			}
			opts.Pool, closeFn = pool, pool.Close
		}
	}
	src, err := interaction.ParseSource(ctx, location, opts)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return src, closeFn, nil
}

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and publish interaction rule packs",
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Load a rule pack and report its contents",
		RunE: func(cmd *cobra.Command, args []string) error {
			location, _ := cmd.Flags().GetString("source")
			ctx := context.Background()
			src, closeFn, err := loadSource(ctx, location)
			if err != nil {
				return err
			}
			defer closeFn()

			rules, err := interaction.LoadRuleSet(ctx, src)
			if err != nil {
				return err
			}
			s := rules.Stats()
			fmt.Printf("%s: %d drug-drug, %d allergy classes, %d condition, %d lab rules\n",
				src.Name(), s.DrugDrug, s.AllergyClasses, s.ConditionRules, s.LabRules)
			return nil
		},
	}
	validateCmd.Flags().String("source", "", "Rules source (defaults to RULES_SOURCE)")
	cmd.AddCommand(validateCmd)

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write a rule pack to a SQLite file",
		RunE: func(cmd *cobra.Command, args []string) error {
			location, _ := cmd.Flags().GetString("source")
			out, _ := cmd.Flags().GetString("sqlite")
			if out == "" {
				return fmt.Errorf("--sqlite is required")
			}
			ctx := context.Background()
			src, closeFn, err := loadSource(ctx, location)
			if err != nil {
				return err
			}
			defer closeFn()

			doc, err := src.Load(ctx)
			if err != nil {
				return err
			}
			if err := interaction.WriteSQLitePack(ctx, out, doc); err != nil {
				return err
			}
			fmt.Printf("Exported %s to %s\n", src.Name(), out)
			return nil
		},
	}
	exportCmd.Flags().String("source", "builtin", "Rules source to export")
	exportCmd.Flags().String("sqlite", "", "Destination SQLite file")
	cmd.AddCommand(exportCmd)

	publishCmd := &cobra.Command{
		Use:   "publish",
		Short: "Replace the rule tables in the database with a rule pack",
		RunE: func(cmd *cobra.Command, args []string) error {
			location, _ := cmd.Flags().GetString("source")
			if location == "postgres" {
				return fmt.Errorf("--source must not be postgres")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			src, closeFn, err := loadSource(ctx, location)
			if err != nil {
				return err
			}
			defer closeFn()

			doc, err := src.Load(ctx)
			if err != nil {
				return err
			}
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := interaction.SavePG(ctx, pool, doc); err != nil {
				return err
			}
			fmt.Printf("Published %s to the database\n", src.Name())
			return nil
		},
	}
	publishCmd.Flags().String("source", "builtin", "Rules source to publish")
	cmd.AddCommand(publishCmd)

	return cmd
}

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Print a patient's administration schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("patient")
			days, _ := cmd.Flags().GetInt("days")
			patientID, err := uuid.Parse(raw)
			if err != nil {
				return fmt.Errorf("--patient must be a UUID: %w", err)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			sched := administration.NewScheduler(
				medication.NewPrescriptionRepoPG(pool),
				medication.NewMedicationRepoPG(pool),
				medication.NewAdministrationRepoPG(pool),
			)
			out, err := sched.GenerateSchedule(ctx, patientID, days)
			if err != nil {
				return err
			}
			return printSchedule(os.Stdout, out)
		},
	}
	cmd.Flags().String("patient", "", "Patient ID")
	cmd.Flags().Int("days", 1, "Number of days to print")
	return cmd
}

func printSchedule(w io.Writer, s *administration.Schedule) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tTIME\tMEDICATION\tDOSAGE\tPRIORITY")
	for _, day := range s.Days {
		for _, h := range day.Hours {
			entries := append([]administration.ScheduleEntry(nil), h.Entries...)
			sort.SliceStable(entries, func(i, j int) bool {
				if !entries[i].Time.Equal(entries[j].Time) {
					return entries[i].Time.Before(entries[j].Time)
				}
				return entries[i].MedicationName < entries[j].MedicationName
			})
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					day.Date, e.Time.Format(time.Kitchen), e.MedicationName, e.Dosage, e.Priority)
			}
		}
	}
	return tw.Flush()
}
