package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ball-and-four/newwons/api"
	"github.com/ball-and-four/newwons/config"
	"github.com/ball-and-four/newwons/schedule"
	"github.com/ball-and-four/newwons/storage"
	"github.com/ball-and-four/newwons/storage/memory"
	"github.com/ball-and-four/newwons/storage/postgres"
	"github.com/gin-gonic/gin"
)

type flagConfig struct {
	configPath string
	listen     string
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		slog.Error("failed to load config", "config_path", flags.configPath, "error", err)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if err := conf.Validate(); err != nil {
		slog.Error("invalid config", "config_path", flags.configPath, "error", err)
		os.Exit(1)
	}

	logger := newLogger(conf)
	slog.SetDefault(logger)
	gin.SetMode(gin.ReleaseMode)

	if err := run(conf, logger); err != nil {
		logger.Error("newwons stopped", "error", err)
		os.Exit(1)
	}
}

func run(conf *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := conf.Location()
	if err != nil {
		return err
	}

	docs, closeStore, err := openStore(ctx, conf, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	logger.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"store", conf.Store.Driver,
		"refresh", conf.RefreshCron,
		"reconcile_on_failure", conf.ReconcileOnFailure)

	colors := schedule.NewColorAssignments(schedule.NewColorDirectory(docs), logger)
	store := schedule.NewEventStore(docs, loc, logger)
	cache := schedule.NewEventCache(store, logger)
	refresher := schedule.NewRefresher(colors, cache, loc, logger)

	opts := []schedule.ControllerOption{schedule.WithLogger(logger)}
	if conf.ReconcileOnFailure {
		opts = append(opts, schedule.WithReconciler(refresher.Reconcile))
	}
	controller := schedule.NewController(store, cache, opts...)

	if _, _, err := refresher.RefreshNow(ctx); err != nil {
		logger.Warn("initial refresh failed", "error", err)
	}
	if conf.RefreshEnabled() {
		if err := refresher.Start(conf.RefreshCron); err != nil {
			return err
		}
	}

	handler := api.NewHandler(colors, cache, controller, refresher, loc, logger)
	srv := &http.Server{
		Addr:              conf.Listen,
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", conf.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("signal received, shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	<-refresher.Stop().Done()
	controller.Wait()
	logger.Info("newwons exited")
	return nil
}

func openStore(ctx context.Context, conf *config.Config, logger *slog.Logger) (storage.DocumentStore, func(), error) {
	if conf.Store.Driver != config.DriverPostgres {
		return memory.New(), func() {}, nil
	}
	pg, err := postgres.Open(ctx, conf.Store.DSN, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	return pg, func() { pg.Close() }, nil
}

func newLogger(conf *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: conf.Level()}
	if conf.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "newwons.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")

	flag.Parse()

	return cfg
}
