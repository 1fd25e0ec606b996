/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the staking engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults, file, STAKING_* env, flags)
  2. Initialize logger and SQLite store
  3. Build clock, treasury, metrics and strategies
  4. Configure HTTP router and the deposit scheduler
  5. Start server with graceful shutdown

COMMANDS:
  server            Run the HTTP server (default)
  server validate   Load the config and build every strategy in memory

FLAGS:
  --config      YAML config file
  --port        HTTP server port (default: 8080)
  --db          SQLite database path (default: staking.db)
                Use ":memory:" for in-memory database
  --log-level   debug, info, warn, error
  --log-format  text or json
  --clock       system or manual

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (server.shutdown_timeout)
  4. Close database connection

EXAMPLES:
  # Run with file database
  ./server --db=./data/staking.db

  # Demo deployment with a movable clock
  ./server --db=":memory:" --clock=manual --config=./demo.yaml

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/warp/staking-engine/api"
	"github.com/warp/staking-engine/config"
	"github.com/warp/staking-engine/factory"
	"github.com/warp/staking-engine/generic"
	"github.com/warp/staking-engine/generic/store"
	"github.com/warp/staking-engine/logging"
	"github.com/warp/staking-engine/metrics"
	"github.com/warp/staking-engine/store/sqlite"
	"github.com/warp/staking-engine/treasury"
)

var configPath string

func main() {
	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Staking rewards accounting engine",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "YAML config file")
	flags.Int("port", 8080, "HTTP server port")
	flags.String("db", "staking.db", "SQLite database path")
	flags.String("log-level", "info", "Log level")
	flags.String("log-format", "text", "Log format (text, json)")
	flags.String("clock", "system", "Clock mode (system, manual)")

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the config and strategy definitions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			return validate(cmd.Context(), cfg)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}

	// Initialize store
	db, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	clock := newClock(cfg)
	vault, err := newVault(cfg, clock, log)
	if err != nil {
		return err
	}

	deps := generic.Deps{
		Store:     db,
		Positions: db,
		Treasury:  vault,
		Operators: generic.NewOperatorSet(cfg.OperatorAddresses()...),
		Clock:     clock,
		Logger:    log,
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(cfg.Metrics.Namespace, reg)
		deps.Recorder = m
	}

	registry, err := factory.NewStrategyFactory(deps, db).BuildAll(ctx, strategyDefs(cfg))
	if err != nil {
		return fmt.Errorf("failed to build strategies: %w", err)
	}
	for _, s := range registry.List() {
		log.Info().Str("strategy", string(s.ID())).Str("kind", string(s.Kind())).Msg("strategy loaded")
	}

	handler := api.NewHandler(registry, db, vault, deps.Operators, clock, log)
	handler.Ping = db.Ping
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         log,
		Metrics:        m,
	})

	if cfg.Scheduler.Enabled {
		var recorder api.SchedulerRecorder
		if m != nil {
			recorder = m
		}
		sched, err := api.NewDepositScheduler(registry, common.HexToAddress(cfg.Scheduler.Operator),
			cfg.Scheduler.Spec, clock, log, recorder)
		if err != nil {
			return err
		}
		sched.Start()
		defer func() { <-sched.Stop().Done() }()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("clock", cfg.Clock.Mode).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

// validate builds every strategy against an in-memory store, which runs the
// same schema and timeline checks as a real boot.
func validate(ctx context.Context, cfg *config.Config) error {
	log, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	clock := newClock(cfg)
	vault, err := newVault(cfg, clock, log)
	if err != nil {
		return err
	}
	mem := store.NewMemory()
	registry, err := factory.NewStrategyFactory(generic.Deps{
		Store:     mem,
		Positions: mem,
		Treasury:  vault,
		Clock:     clock,
		Logger:    log,
	}, mem).BuildAll(ctx, strategyDefs(cfg))
	if err != nil {
		return err
	}
	log.Info().Int("strategies", len(registry.List())).Int("tokens", len(vault.Tokens())).Msg("config is valid")
	return nil
}

func newClock(cfg *config.Config) generic.Clock {
	if cfg.Clock.Mode != "manual" {
		return generic.SystemClock{}
	}
	start := cfg.ClockStart()
	if start.IsZero() {
		start = time.Now().UTC()
	}
	return generic.NewManualClock(start)
}

func newVault(cfg *config.Config, clock generic.Clock, log zerolog.Logger) (*treasury.Vault, error) {
	vault := treasury.NewVault(clock, log)
	for _, tc := range cfg.Treasury.Tokens {
		tok, reserve, err := tc.Token()
		if err != nil {
			return nil, err
		}
		if err := vault.AddToken(tok, reserve); err != nil {
			return nil, err
		}
	}
	return vault, nil
}

// strategyDefs returns the configured strategies, or the five-year presets.
func strategyDefs(cfg *config.Config) []factory.StrategyJSON {
	if len(cfg.Strategies) > 0 {
		return cfg.Strategies
	}
	defs := make([]factory.StrategyJSON, 0, 2)
	for _, js := range []string{
		factory.FiveYearsFixedJSON("fixed-5y", "Five years fixed"),
		factory.FiveYearsFlexibleJSON("flex-5y", "Five years flexible"),
	} {
		var sj factory.StrategyJSON
		if err := json.Unmarshal([]byte(js), &sj); err != nil {
			panic(err)
		}
		defs = append(defs, sj)
	}
	return defs
}
