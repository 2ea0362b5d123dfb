package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/iliyamo/flights-api/internal/config"
	"github.com/iliyamo/flights-api/internal/database"
	"github.com/iliyamo/flights-api/internal/handler"
	"github.com/iliyamo/flights-api/internal/logger"
	"github.com/iliyamo/flights-api/internal/metrics"
	"github.com/iliyamo/flights-api/internal/queue"
	"github.com/iliyamo/flights-api/internal/repository"
	"github.com/iliyamo/flights-api/internal/router"
	"github.com/iliyamo/flights-api/internal/seed"
	"github.com/iliyamo/flights-api/internal/service"
)

const shutdownTimeout = 10 * time.Second

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "server",
		Short:         "Flights record management API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	cmd.AddCommand(newServeCommand(), newInitDBCommand(), newSeedCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newInitDBCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create the schema and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			gw, err := bootstrap(cmd.Context(), cfg.DB, log)
			if err != nil {
				return err
			}
			defer gw.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", gw.Dialect())
			return nil
		},
	}
}

func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Insert or replace flights from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			gw, err := bootstrap(cmd.Context(), cfg.DB, log)
			if err != nil {
				return err
			}
			defer gw.Close()

			n, err := seed.LoadFile(cmd.Context(), repository.NewFlightRepo(gw, log, nil), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d flights from %s\n", n, args[0])
			return nil
		},
	}
}

func setup() (config.Config, *logger.ZapLogger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger.New(cfg.LogLevel), nil
}

func bootstrap(ctx context.Context, cfg config.DBConfig, log logger.Logger) (*database.Gateway, error) {
	gw, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := gw.InitSchema(ctx); err != nil {
		_ = gw.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	log.Info("store ready", "driver", cfg.Driver, "dialect", string(gw.Dialect()))
	return gw, nil
}

func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	gw, err := bootstrap(ctx, cfg.DB, log)
	if err != nil {
		return err
	}
	defer gw.Close()

	m := metrics.New("flights", prometheus.DefaultRegisterer)
	flights := repository.NewFlightRepo(gw, log, m)
	logs := repository.NewFlightLogRepo(gw, log, m)

	if _, err := seed.LoadIfEmpty(ctx, flights, cfg.SeedFile, log); err != nil {
		log.Warn("startup seed failed", "path", cfg.SeedFile, "error", err)
	}

	var pub service.Publisher
	if cfg.Events.Enabled {
		url := cfg.Events.BrokerURL()
		pub = service.NewAMQPPublisher(url, cfg.Events.Queue, m)
		if cfg.Events.Consume {
			consumer := queue.NewConsumer(url, cfg.Events.Queue, cfg.Events.LogDir, log, m)
			go func() {
				if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("flight consumer stopped", "error", err)
				}
			}()
		}
	}

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		log.Warn("redis unavailable, caching and rate limiting disabled", "addr", cfg.Redis.Address())
	} else {
		defer rdb.Close()
	}

	svc := service.NewFlightService(flights, logs, pub, log)
	e := router.New(router.Deps{
		Flights: handler.NewFlightHandler(svc, log),
		Store:   gw,
		Redis:   rdb,
		Cache:   cfg.Cache,
		Limit:   cfg.RateLimit,
		Log:     log,
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(sctx)
}
