// Package cli wires configuration, storage and the domain services into the
// aal-api command tree:
//
//	aal-api serve                 # HTTP API
//	aal-api migrate-job-types     # relabel legacy job types, print the report
//	aal-api next-job-number       # preview the next number of a bucket
//
// Configuration comes from the environment (AAL_*), optionally seeded from a
// .env file. Flags override the matching variables for one run.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/example/aal-logistics/api-go/internal/config"
	"github.com/example/aal-logistics/api-go/internal/httpapi"
	"github.com/example/aal-logistics/api-go/internal/invoices"
	"github.com/example/aal-logistics/api-go/internal/jobs"
	"github.com/example/aal-logistics/api-go/internal/logging"
	"github.com/example/aal-logistics/api-go/internal/migrator"
	"github.com/example/aal-logistics/api-go/internal/model"
	"github.com/example/aal-logistics/api-go/internal/reports"
	"github.com/example/aal-logistics/api-go/internal/store"
)

const version = "1.0.0"

func BuildCLI() *cobra.Command {
	root := &cobra.Command{
		Use:           "aal-api",
		Short:         "AAL logistics backend",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildServeCommand(), buildMigrateCommand(), buildNextNumberCommand())
	return root
}

// app holds the wired dependencies shared by every command.
type app struct {
	cfg      config.Config
	log      *logrus.Logger
	store    *store.Store
	jobs     *jobs.Service
	invoices *invoices.Composer
	migrator *migrator.Migrator
	reports  *reports.Archive
}

func openApp(ctx context.Context, cfg config.Config) (*app, error) {
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir data dir: %w", err)
	}

	st, err := store.Open(ctx, cfg.DBDriver, cfg.DBDSN, store.Options{Serializable: cfg.SerializableAllocation})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	mapping := migrator.DefaultMapping()
	if cfg.MigrationMappingFile != "" {
		if mapping, err = migrator.LoadMapping(cfg.MigrationMappingFile); err != nil {
			st.Close()
			return nil, err
		}
	}
	m, err := migrator.New(st, migrator.Config{
		Mapping:              mapping,
		BucketByCreationYear: cfg.MigrationByCreationYear,
		MaxAttempts:          cfg.MigrationMaxAttempts,
		Logger:               log.WithField("component", "migrator"),
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	return &app{
		cfg:   cfg,
		log:   log,
		store: st,
		jobs: jobs.New(st, jobs.Config{
			MaxAttempts: cfg.AllocationMaxAttempts,
			Logger:      log.WithField("component", "jobs"),
		}),
		invoices: invoices.NewComposer(st, log.WithField("component", "invoices")),
		migrator: m,
		reports:  &reports.Archive{Root: filepath.Join(cfg.DataDir, "reports")},
	}, nil
}

func (a *app) Close() error { return a.store.Close() }

func buildServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.serve(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides AAL_API_ADDR)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	server := httpapi.Server{
		Jobs:     a.jobs,
		Invoices: a.invoices,
		Migrator: a.migrator,
		Reports:  a.reports,
		Log:      a.log.WithField("component", "http"),
	}
	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.WithFields(logrus.Fields{"addr": a.cfg.Addr, "driver": a.cfg.DBDriver}).Info("API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildMigrateCommand() *cobra.Command {
	var (
		mappingFile    string
		byCreationYear bool
	)
	cmd := &cobra.Command{
		Use:   "migrate-job-types",
		Short: "Relabel legacy job types and re-number the affected jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if mappingFile != "" {
				cfg.MigrationMappingFile = mappingFile
			}
			if cmd.Flags().Changed("by-creation-year") {
				cfg.MigrationByCreationYear = byCreationYear
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.migrate(ctx, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&mappingFile, "mapping", "m", "", "YAML mapping file (overrides AAL_MIGRATION_MAPPING_FILE)")
	cmd.Flags().BoolVar(&byCreationYear, "by-creation-year", false, "number jobs in the bucket of their creation year")
	return cmd
}

// migrate runs the batch, archives the report even when the batch aborted,
// and prints it as JSON.
func (a *app) migrate(ctx context.Context, out io.Writer) error {
	report, runErr := a.migrator.MigrateAll(ctx)
	if key, err := a.reports.Save("migration", report.StartedAt, report); err != nil {
		a.log.WithError(err).Warn("archive migration report")
	} else {
		a.log.WithField("report", key).Info("migration report archived")
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d job(s) failed to migrate", len(report.Failed))
	}
	return nil
}

func buildNextNumberCommand() *cobra.Command {
	var (
		jobType string
		year    int
	)
	cmd := &cobra.Command{
		Use:   "next-job-number",
		Short: "Print the next job number of a bucket without reserving it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			jt, err := model.ParseJobType(jobType)
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.jobs.NextNumber(cmd.Context(), jt, year)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), n.String())
			return err
		},
	}
	cmd.Flags().StringVarP(&jobType, "type", "t", "", "canonical job type, e.g. SEA_FREIGHT_IMPORT")
	cmd.Flags().IntVarP(&year, "year", "y", 0, "bucket year (defaults to the current year)")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}
