package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"course-statistics-service/app/client"
	"course-statistics-service/app/export"
	models "course-statistics-service/app/models"
	"course-statistics-service/app/repository"
	"course-statistics-service/app/service"
	"course-statistics-service/config"
	"course-statistics-service/database"
	"course-statistics-service/logger"
	"course-statistics-service/route"
	"course-statistics-service/server"
	"course-statistics-service/utils"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

var (
	exportUser   int64
	exportCourse string
	exportStart  string
	exportEnd    string
	exportOut    string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "statistics",
		Short:        "Course statistics service",
		SilenceUsage: true,
		RunE:         runServe,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE:  runServe,
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create the statistics table",
		RunE:  runMigrate,
	})
	rootCmd.AddCommand(newExportCmd())

	return rootCmd
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the filtered statistics to an xlsx file",
		RunE:  runExport,
	}
	cmd.Flags().Int64Var(&exportUser, "user", 0, "only this user id")
	cmd.Flags().StringVar(&exportCourse, "course", "", "only this course id")
	cmd.Flags().StringVar(&exportStart, "start", "", "start date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVar(&exportEnd, "end", "", "end date, inclusive")
	cmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default estadisticas_<timestamp>.xlsx)")
	return cmd
}

// 1. Load .env  2. Logger  3. Database
func bootstrap() (config.Config, *logger.Logger, *sqlx.DB, error) {
	config.LoadEnv()
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}

	db, err := database.Connect(cfg.DBDriver, cfg.DSN())
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	return cfg, log, db, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync()
	defer db.Close()

	if err := cfg.RequireUpstreams(); err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	// Collaborators
	identity := client.NewIdentityClient(cfg.AuthServiceURL)
	roster := client.NewRosterClient(cfg.CoursesServiceURL)

	var tokens *utils.TokenHolder
	if cfg.ServiceUsername != "" {
		tokens = utils.NewTokenHolder(identity, cfg.ServiceUsername, cfg.ServicePassword)
		if _, err := tokens.Token(cmd.Context()); err != nil {
			// the holder retries the login on the first roster call
			log.Error("service authentication failed", "error", err)
		} else {
			log.Info("service authenticated")
		}
	}

	// Repositories & services
	repo := repository.NewStatisticsRepository(db)
	reconciler := service.NewReconciler(repo, roster, log,
		service.WithStrictUserEvents(cfg.StrictUserEvents),
		service.WithFanoutWorkers(cfg.FanoutWorkers),
	)
	statistics := service.NewStatisticsService(reconciler, service.NewAggregator(repo), log)

	app := server.SetupFiber(log, true)
	route.SetupRoutes(app, route.Deps{
		Statistics: statistics,
		Identity:   identity,
		Tokens:     tokens,
		Log:        log,
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	log.Info("server running", "addr", cfg.Addr(), "environment", cfg.Environment,
		"strict_user_events", cfg.StrictUserEvents)
	return server.Run(app, cfg.Addr(), quit, log)
}

func runMigrate(_ *cobra.Command, _ []string) error {
	_, log, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync()
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		return err
	}
	log.Info("schema up to date")
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	_, log, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync()
	defer db.Close()

	var req models.ExportRequest
	if cmd.Flags().Changed("user") {
		req.UserID = &exportUser
	}
	if exportCourse != "" {
		req.CourseID = &exportCourse
	}
	if exportStart != "" {
		req.StartDate = &exportStart
	}
	if exportEnd != "" {
		req.EndDate = &exportEnd
	}

	filter, err := service.ExportFilter(req)
	if err != nil {
		return err
	}
	records, err := service.NewAggregator(repository.NewStatisticsRepository(db)).Export(cmd.Context(), filter)
	if err != nil {
		return err
	}

	out := exportOut
	if out == "" {
		out = export.FileName(time.Now())
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := export.Write(f, records); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	log.Info("export written", "file", out, "rows", len(records))
	return nil
}
