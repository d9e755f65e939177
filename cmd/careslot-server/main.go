package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/careslot/careslot/internal/config"
	"github.com/careslot/careslot/internal/domain/scheduling"
	"github.com/careslot/careslot/internal/platform/auth"
	"github.com/careslot/careslot/internal/platform/clock"
	"github.com/careslot/careslot/internal/platform/db"
	"github.com/careslot/careslot/internal/platform/middleware"
	"github.com/careslot/careslot/internal/platform/notification"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "careslot-server",
		Short: "Appointment slot and booking API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(mongoCmd())
	rootCmd.AddCommand(tokenCmd())

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
		Short: "Run Postgres migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printStatus(os.Stdout, statuses)
				return nil
			})
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func withMigrator(cmd *cobra.Command, fn func(context.Context, *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = cfg.MigrationsDir
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, dir))
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func mongoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mongo",
		Short: "Manage the Mongo store",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "indexes",
		Short: "Create the collection indexes, including the held-slot unique index",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.MongoURI == "" {
				return fmt.Errorf("MONGO_URI is required")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			client, err := db.NewMongoClient(ctx, cfg.MongoURI)
			if err != nil {
				return err
			}
			defer client.Disconnect(context.Background())

			if err := ensureIndexes(ctx, client.Database(cfg.MongoDatabase), mongoIndexers); err != nil {
				return err
			}
			fmt.Printf("Indexes ensured on database %s.\n", cfg.MongoDatabase)
			return nil
		},
	})
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("sub")
			role, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if subject == "" {
				return fmt.Errorf("--sub is required")
			}
			if !validRole(role) {
				return fmt.Errorf("--role must be one of patient, doctor, admin")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.AuthSecret == "" {
				return fmt.Errorf("AUTH_SECRET is required")
			}
			tok, err := auth.IssueToken(jwtConfig(cfg), subject, ttl, role)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().String("sub", "", "User ID placed in the sub claim")
	cmd.Flags().String("role", auth.RolePatient, "Role: patient, doctor or admin")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func validRole(role string) bool {
	switch role {
	case auth.RolePatient, auth.RoleDoctor, auth.RoleAdmin:
		return true
	}
	return false
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	return auth.JWTConfig{Issuer: cfg.AuthIssuer, SigningKey: []byte(cfg.AuthSecret)}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rl.RequestsPerSecond <= 0 || rl.BurstSize <= 0 {
		rl = middleware.DefaultRateLimitConfig()
	}
	return rl
}

// newRouter builds the echo server with middleware, health endpoints and the
// versioned API.
func newRouter(cfg *config.Config, logger zerolog.Logger, svc *scheduling.Service, notifications *notification.Manager, health db.Check) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(middleware.SecurityOptions{HSTS: !cfg.IsDev()}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(health))

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(rateLimitConfig(cfg), logger))
	apiV1.Use(middleware.BodyLimit("1M"))
	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware())
	} else {
		apiV1.Use(auth.JWTMiddleware(jwtConfig(cfg)))
	}
	apiV1.Use(middleware.Audit(logger, nil))

	scheduling.NewHandler(svc).RegisterRoutes(apiV1)
	notification.NewHandler(notifications).RegisterRoutes(apiV1)

	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
	}
	defer st.close()

	slots := slotCache(ctx, cfg, logger)
	if c, ok := slots.(io.Closer); ok {
		defer c.Close()
	}
	clk := clock.NewZoned(cfg.ClockUTCOffsetHours)
	reports, err := reportRequester(cfg, logger, clk.Now)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure report service")
	}
	notifications := notification.NewManager(st.notifications, notification.NewTemplateEngine(), clk.Now)
	svc := scheduling.NewService(st.templates, st.bookings, st.doctors, clk,
		scheduling.WithBlockingPolicy(scheduling.BlockingPolicy{BlockOnOngoing: cfg.BlockOnOngoing}),
		scheduling.WithSlotCache(slots),
		scheduling.WithNotifier(scheduling.NewNotificationNotifier(notifications)),
		scheduling.WithReportRequester(reports),
		scheduling.WithLogger(logger.With().Str("component", "scheduling").Logger()),
	)

	e := newRouter(cfg, logger, svc, notifications, st.health)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().
			Str("addr", addr).
			Str("driver", cfg.StoreDriver).
			Str("zone", clk.Location().String()).
			Bool("block_on_ongoing", cfg.BlockOnOngoing).
			Msg("starting server")
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
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	svc.Wait()
	logger.Info().Msg("server stopped")
	return nil
}
