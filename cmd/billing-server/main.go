package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hospbill/billing/internal/config"
	"github.com/hospbill/billing/internal/domain/audit"
	"github.com/hospbill/billing/internal/domain/billing"
	"github.com/hospbill/billing/internal/domain/catalog"
	"github.com/hospbill/billing/internal/domain/identity"
	"github.com/hospbill/billing/internal/domain/patient"
	"github.com/hospbill/billing/internal/domain/pricing"
	"github.com/hospbill/billing/internal/platform/auth"
	"github.com/hospbill/billing/internal/platform/db"
	"github.com/hospbill/billing/internal/platform/lock"
	"github.com/hospbill/billing/internal/platform/middleware"
	"github.com/hospbill/billing/internal/platform/reporting"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "billing-server",
		Short: "Hospital billing API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(pricesCmd())
	rootCmd.AddCommand(userCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(level).With().Timestamp().Logger()
	}
	return logger
}

// connect loads config and opens the pool for one-shot commands.
func connect(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the billing API server",
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

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, cfg.MigrationsDir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, cfg.MigrationsDir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd, statuses)
			return nil
		},
	})

	return cmd
}

func printMigrationStatus(cmd *cobra.Command, statuses []db.MigrationStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func pricesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prices",
		Short: "Scheduled price maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "apply-due",
		Short: "Apply scheduled price changes that are due today",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			logger := newLogger(cfg)

			locker, closeLocker := newLocker(ctx, cfg, logger)
			defer closeLocker()

			app := buildApp(cfg, pool, locker, logger)
			res, ran, err := app.applier.RunOnce(ctx)
			if err != nil {
				return err
			}
			if !ran {
				fmt.Fprintln(cmd.OutOrStdout(), "Another sweep is in progress, nothing done.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d, failed %d, skipped %d.\n", len(res.Applied), len(res.Failed), res.Skipped)
			return nil
		},
	})
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user, typically the first admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			name, _ := cmd.Flags().GetString("name")
			role, _ := cmd.Flags().GetString("role")
			password, _ := cmd.Flags().GetString("password")
			if password == "" {
				password = os.Getenv("BILLING_USER_PASSWORD")
			}

			ctx := cmd.Context()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			app := buildApp(cfg, pool, lock.NewLocalLocker(), newLogger(cfg))
			u, err := app.identity.CreateUser(ctx, auth.System, identity.CreateUserRequest{
				Email: email, FullName: name, Role: role, Password: password,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s user %s (%s).\n", u.Role, u.Email, u.ID)
			return nil
		},
	}
	create.Flags().String("email", "", "Login email")
	create.Flags().String("name", "", "Full name")
	create.Flags().String("role", auth.RoleAdmin, "Role: admin, staff, pharmacist or accountant")
	create.Flags().String("password", "", "Password (defaults to $BILLING_USER_PASSWORD)")
	cmd.AddCommand(create)
	return cmd
}

// newLocker prefers Redis so replicas share the sweep lock, and falls back
// to a process-local lock when REDIS_URL is unset or unreachable.
func newLocker(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (lock.Locker, func()) {
	if cfg.RedisURL == "" {
		return lock.NewLocalLocker(), func() {}
	}
	client, err := lock.Connect(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, using local lock")
		return lock.NewLocalLocker(), func() {}
	}
	return lock.NewRedisLocker(client, "billing:"), func() { client.Close() }
}

// app holds the wired services and handlers.
type app struct {
	catalog   *catalog.Store
	patients  *patient.Service
	billing   *billing.Service
	pricing   *pricing.Service
	identity  *identity.Service
	reporting *reporting.Service
	audit     *audit.Recorder
	applier   *pricing.Applier
	jwt       auth.JWTConfig
	maxUpload int64
}

func buildApp(cfg *config.Config, pool *pgxpool.Pool, locker lock.Locker, logger zerolog.Logger) *app {
	tx := db.NewTransactor(pool)
	recorder := audit.NewRecorder(audit.NewRepoPG(pool))
	jwtCfg := auth.JWTConfig{Issuer: cfg.JWTIssuer, SigningKey: cfg.SigningKey(), TTL: cfg.TokenTTL}

	store := catalog.NewStore(catalog.NewServiceRepoPG(pool), catalog.NewPharmacyRepoPG(pool),
		catalog.NewPriceHistoryRepoPG(pool), tx, recorder)
	patients := patient.NewService(patient.NewRepoPG(pool), tx, recorder)
	billingSvc := billing.NewService(billing.NewAccountRepoPG(pool), billing.NewInvoiceRepoPG(pool),
		billing.NewPaymentRepoPG(pool), store, patients, tx, recorder)
	pricingSvc := pricing.NewService(pricing.NewRepoPG(pool), store, tx, recorder)

	return &app{
		catalog:   store,
		patients:  patients,
		billing:   billingSvc,
		pricing:   pricingSvc,
		identity:  identity.NewService(identity.NewUserRepo(pool), tx, recorder, jwtCfg),
		reporting: reporting.NewService(reporting.NewStorePG(pool)),
		audit:     recorder,
		applier:   pricing.NewApplier(pricingSvc, locker, cfg.PriceSweepInterval, logger),
		jwt:       jwtCfg,
		maxUpload: cfg.UploadMaxBytes,
	}
}

// newEcho builds the HTTP surface. Only login and health are reachable
// without a token.
func newEcho(cfg *config.Config, a *app, health echo.HandlerFunc, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)
	e.Validator = middleware.NewValidator()

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	if cfg.UploadMaxBytes > 0 {
		// room for multipart framing around the largest accepted sheet
		e.Use(echomw.BodyLimit(strconv.FormatInt(cfg.UploadMaxBytes+64<<10, 10)))
	}
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	e.GET("/health", health)

	limiter := middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
	})

	identityHandler := identity.NewHandler(a.identity)
	public := e.Group("/api", limiter)
	identityHandler.RegisterPublicRoutes(public)

	authMW := auth.JWTMiddleware(a.jwt)
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware(a.jwt)
	}
	api := e.Group("/api", limiter, authMW)
	identityHandler.RegisterRoutes(api)
	patient.NewHandler(a.patients).RegisterRoutes(api)
	catalog.NewHandler(a.catalog).RegisterRoutes(api)
	billing.NewHandler(a.billing).RegisterRoutes(api)
	pricing.NewHandler(a.pricing, a.maxUpload).RegisterRoutes(api)
	reporting.NewHandler(a.reporting).RegisterRoutes(api)
	audit.NewHandler(a.audit).RegisterRoutes(api)
	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	locker, closeLocker := newLocker(ctx, cfg, logger)
	defer closeLocker()

	a := buildApp(cfg, pool, locker, logger)
	e := newEcho(cfg, a, db.HealthHandler(pool, time.Now()), logger)

	go a.applier.Run(ctx)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
