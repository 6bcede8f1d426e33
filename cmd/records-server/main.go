package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicrecords/records/internal/config"
	"github.com/clinicrecords/records/internal/domain/clinic"
	"github.com/clinicrecords/records/internal/platform/db"
	"github.com/clinicrecords/records/internal/platform/seed"
	"github.com/clinicrecords/records/migrations"
	"github.com/clinicrecords/records/pkg/client"
	"github.com/clinicrecords/records/pkg/pagination"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "records-server",
		Short: "Clinical records API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(patientsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
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
	var schema, dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}
	cmd.PersistentFlags().StringVar(&schema, "schema", "", "target schema (defaults to DB_SCHEMA)")
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "migrations directory (defaults to the embedded set)")

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, pool, err := connect(ctx, schema)
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := db.NewMigrator(pool, migrationSource(firstNonEmpty(dir, cfg.MigrationsDir))).Up(ctx, cfg.DBSchema)
			if err != nil {
				return fmt.Errorf("migrate up: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s) to schema %q\n", n, cfg.DBSchema)
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, pool, err := connect(ctx, schema)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationSource(firstNonEmpty(dir, cfg.MigrationsDir))).Status(ctx, cfg.DBSchema)
			if err != nil {
				return fmt.Errorf("migrate status: %w", err)
			}
			printMigrationStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	}

	cmd.AddCommand(upCmd, statusCmd)
	return cmd
}

func seedCmd() *cobra.Command {
	var schema string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the demo doctors, patients and medical records",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, pool, err := connect(ctx, schema)
			if err != nil {
				return err
			}
			defer pool.Close()

			logger := newLogger(cfg)
			svc := newClinicService(pool, nil, logger)
			res, err := seed.NewSeeder(svc, db.NewTxManager(pool), logger).Run(ctx)
			if err != nil {
				return err
			}
			if res.Skipped {
				fmt.Fprintln(cmd.OutOrStdout(), "demo data already present")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d doctors, %d patients, %d medical records\n",
				res.Doctors, res.Patients, res.Records)
			return nil
		},
	}
	cmd.Flags().StringVar(&schema, "schema", "", "target schema (defaults to DB_SCHEMA)")
	return cmd
}

func patientsCmd() *cobra.Command {
	var (
		server   string
		token    string
		opts     client.PatientListOptions
		doctorID string
	)

	cmd := &cobra.Command{
		Use:   "patients",
		Short: "List patients from a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if doctorID != "" {
				id, err := uuid.Parse(doctorID)
				if err != nil {
					return fmt.Errorf("invalid --doctor: %w", err)
				}
				opts.DoctorID = id
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			c := client.New(server, client.WithToken(token))
			page, err := c.ListPatients(ctx, opts)
			if err != nil {
				return err
			}
			printPatients(cmd.OutOrStdout(), page)
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:8000", "server base URL")
	cmd.Flags().StringVar(&token, "token", os.Getenv("RECORDS_TOKEN"), "bearer token")
	cmd.Flags().StringVar(&opts.Search, "search", "", "case-insensitive name or email filter")
	cmd.Flags().IntVar(&opts.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", pagination.DefaultPageSize, "page size")
	cmd.Flags().StringVar(&opts.Sort, "sort", "", "sort column (name, email, gender, dateOfBirth, createdAt)")
	cmd.Flags().StringVar(&opts.Order, "order", "", "asc or desc")
	cmd.Flags().StringVar(&doctorID, "doctor", "", "only patients with records by this doctor")
	return cmd
}

// connect loads configuration, applies an explicit --schema override and
// opens a pool against it.
func connect(ctx context.Context, schema string) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if schema != "" {
		cfg.DBSchema = schema
	}
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func migrationSource(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	return migrations.FS
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		state, at := "pending", ""
		if s.Applied {
			state = "applied"
			if s.AppliedAt != nil {
				at = s.AppliedAt.Format(time.RFC3339)
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, state, at)
	}
}

func printPatients(w io.Writer, page *pagination.Response[*clinic.Patient]) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tGENDER\tDATE OF BIRTH")
	for _, p := range page.Items {
		name, email := "", ""
		if p.User != nil {
			name, email = p.User.Name, p.User.Email
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.UserID, name, email, p.Gender, p.DateOfBirth)
	}
	tw.Flush()

	more := ""
	if page.HasMore {
		more = ", more available"
	}
	fmt.Fprintf(w, "page %d (size %d) of %d patient(s)%s\n", page.Page, page.PageSize, page.Total, more)
}
