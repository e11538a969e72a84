package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medleads/medleads/internal/config"
	"github.com/medleads/medleads/internal/domain/identity"
	"github.com/medleads/medleads/internal/domain/patients"
	"github.com/medleads/medleads/internal/platform/auth"
	"github.com/medleads/medleads/internal/platform/blobstore"
	"github.com/medleads/medleads/internal/platform/db"
	"github.com/medleads/medleads/internal/platform/middleware"
	"github.com/medleads/medleads/internal/platform/notification"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "medleads-server",
		Short: "MedLeads patient relationship API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

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

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
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

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
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

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	tokenCfg := auth.TokenConfig{
		Secret: []byte(cfg.JWTSecret),
		TTL:    time.Duration(cfg.TokenTTLHours) * time.Hour,
		Issuer: "medleads",
	}

	// Notification delivery. Without an SMTP relay configured, emails go to
	// the in-memory mock so development flows still exercise the templates.
	var sender notification.EmailSender
	if cfg.SMTPAddr != "" {
		sender = &notification.SMTPSender{Addr: cfg.SMTPAddr, From: cfg.SMTPFrom}
	} else {
		logger.Warn().Msg("SMTP_ADDR not set; email delivery is mocked")
		sender = &notification.MockEmailSender{}
	}
	notifier := notification.NewManager(sender, notification.NewTemplateEngine())

	blobs := blobstore.NewInMemoryBlobStore()

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M", "12M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// API groups: auth endpoints are public, everything else requires a token.
	public := e.Group("/api/v1")
	api := e.Group("/api/v1")
	api.Use(auth.JWTMiddleware(tokenCfg))
	api.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
	api.Use(middleware.Audit(logger))

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Identity domain
	userRepo := identity.NewUserRepoPG(pool)
	profileRepo := identity.NewProfileRepoPG(pool)
	agentRepo := identity.NewAgentRepoPG(pool)
	identitySvc := identity.NewService(userRepo, profileRepo, agentRepo, notifier, tokenCfg,
		func(ctx context.Context, fn func(ctx context.Context) error) error {
			return db.InTx(ctx, pool, fn)
		}, logger)
	identityHandler := identity.NewHandler(identitySvc)
	identityHandler.RegisterRoutes(public, api)

	// Patients domain
	patientRepo := patients.NewPatientRepoPG(pool)
	categoryRepo := patients.NewCategoryRepoPG(pool)
	followUpRepo := patients.NewFollowUpRepoPG(pool)
	patientsSvc := patients.NewService(patientRepo, categoryRepo, followUpRepo,
		agentRepo, profileRepo, blobs, notifier, cfg.NotifyRecipient, logger)
	patientsHandler := patients.NewHandler(patientsSvc, identitySvc)
	patientsHandler.RegisterRoutes(api)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
