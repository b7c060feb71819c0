package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hospitalflow/logistics/internal/config"
	"github.com/hospitalflow/logistics/internal/domain/fulfillment"
	"github.com/hospitalflow/logistics/internal/domain/inventory"
	"github.com/hospitalflow/logistics/internal/domain/transport"
	"github.com/hospitalflow/logistics/internal/platform/auth"
	"github.com/hospitalflow/logistics/internal/platform/clock"
	"github.com/hospitalflow/logistics/internal/platform/db"
	"github.com/hospitalflow/logistics/internal/platform/loadsignal"
	"github.com/hospitalflow/logistics/internal/platform/metrics"
	appmw "github.com/hospitalflow/logistics/internal/platform/middleware"
	"github.com/hospitalflow/logistics/internal/platform/sweep"
)

var migrationsDir string

func main() {
	rootCmd := &cobra.Command{
		Use:   "logistics-server",
		Short: "Hospital logistics core: transport scheduling and inventory reordering",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and the lifecycle sweep",
		RunE:  runServe,
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE:  runMigrate,
	}
	migrateCmd.Flags().StringVar(&migrationsDir, "dir", "migrations", "directory containing migration files")

	migrateStatusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE:  runMigrateStatus,
	}
	migrateStatusCmd.Flags().StringVar(&migrationsDir, "dir", "migrations", "directory containing migration files")
	migrateCmd.AddCommand(migrateStatusCmd)

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a single lifecycle sweep and exit",
		RunE:  runSweepOnce,
	}

	rootCmd.AddCommand(serveCmd, migrateCmd, sweepCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return logger
}

func setup(ctx context.Context) (*config.Config, zerolog.Logger, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	logger := newLogger(cfg)

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("connect database: %w", err)
	}
	return cfg, logger, pool, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, pool, err := setup(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	clk := clock.System{}
	m := metrics.New()

	transportRepo := transport.NewRepoPG(pool)
	inventoryRepo := inventory.NewRepoPG(pool)

	load := loadsignal.NewCached(loadsignal.Static{}, time.Minute)
	engine := inventory.NewEngine(cfg.LeadTimeDays)
	inventorySvc := inventory.NewService(inventoryRepo, engine, load, clk, logger)
	transportSvc := transport.NewService(transportRepo, clk)

	coupling := fulfillment.NewCoupling(inventoryRepo, logger)
	coupling.SetMetrics(m)

	policy := transport.DelayPolicy{
		Probability: cfg.DelayProbability,
		MinFraction: cfg.DelayMinFraction,
		MaxFraction: cfg.DelayMaxFraction,
	}
	sweeper := transport.NewSweeper(transportRepo, clk, policy, nil, coupling, logger)
	sweeper.SetMetrics(m)

	txRunner := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	}
	fulfillmentSvc := fulfillment.NewService(inventorySvc, inventoryRepo, transportSvc, txRunner, clk, nil, logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(appmw.RequestID())
	e.Use(appmw.Logger(logger))
	e.Use(appmw.Recovery(logger))

	e.GET("/healthz", db.HealthHandler(pool))
	e.GET("/metrics", m.Handler())

	api := e.Group("/api")
	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		logger.Warn().Msg("development mode, auth disabled")
		api.Use(auth.DevAuthMiddleware())
	} else {
		jwtCfg := auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
		}
		if cfg.AuthSigningKey != "" {
			jwtCfg.SigningKey = []byte(cfg.AuthSigningKey)
		} else {
			jwtCfg.JWKSURL = cfg.AuthIssuer + "/.well-known/jwks.json"
		}
		api.Use(auth.JWTMiddleware(jwtCfg))
	}

	transport.NewHandler(transportSvc, sweeper).RegisterRoutes(api)
	inventory.NewHandler(inventorySvc).RegisterRoutes(api)
	fulfillment.NewHandler(fulfillmentSvc).RegisterRoutes(api)

	runner := sweep.NewRunner(sweeper, cfg.SweepIntervalDuration(), logger)
	runner.SetMetrics(m)
	go runner.Run(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	logger.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("starting logistics server")
	if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	_, logger, pool, err := setup(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	migrator := db.NewMigrator(pool, migrationsDir)
	applied, err := migrator.Up(ctx)
	if err != nil {
		return err
	}
	logger.Info().Int("applied", applied).Msg("migrations complete")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	_, _, pool, err := setup(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	statuses, err := db.NewMigrator(pool, migrationsDir).Status(ctx)
	if err != nil {
		return err
	}
	for _, s := range statuses {
		state := "pending"
		if s.Applied {
			state = "applied"
		}
		fmt.Printf("%03d  %-40s %s\n", s.Version, s.Name, state)
	}
	return nil
}

func runSweepOnce(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, logger, pool, err := setup(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	clk := clock.System{}
	transportRepo := transport.NewRepoPG(pool)
	inventoryRepo := inventory.NewRepoPG(pool)
	coupling := fulfillment.NewCoupling(inventoryRepo, logger)

	policy := transport.DelayPolicy{
		Probability: cfg.DelayProbability,
		MinFraction: cfg.DelayMinFraction,
		MaxFraction: cfg.DelayMaxFraction,
	}
	sweeper := transport.NewSweeper(transportRepo, clk, policy, nil, coupling, logger)

	res, err := sweeper.Sweep(ctx)
	if err != nil {
		return err
	}
	logger.Info().
		Int("activated", res.Activated).
		Int("delayed", res.Delayed).
		Int("completed", res.Completed).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("sweep complete")
	return nil
}
