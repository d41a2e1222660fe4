package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"registry/internal/platform/clients"
	"registry/internal/platform/config"
	"registry/internal/platform/database"
	"registry/internal/platform/httpserver"
	"registry/internal/platform/logger"
	platformmetrics "registry/internal/platform/metrics"
	"registry/internal/platform/redis"
	"registry/internal/registry/cache"
	"registry/internal/registry/custo"
	"registry/internal/registry/handler"
	registrymetrics "registry/internal/registry/metrics"
	"registry/internal/registry/service"
	"registry/internal/registry/store"
	"registry/internal/registry/store/memory"
	"registry/internal/registry/store/postgres"
	httptransport "registry/internal/transport/http"
)

// main wires the configured store, cache and collaborators into the registry
// service and serves the API until SIGINT or SIGTERM.
func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}

	reg, err := custo.NewLoader(cfg.Custo.File).Registry()
	if err != nil {
		return fmt.Errorf("load customization: %w", err)
	}
	if cfg.DumpSchema {
		return dumpSchema(os.Stdout, reg)
	}

	log, closer, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, closeStore, err := openStore(ctx, cfg.Database, reg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(registrymetrics.New(promReg)),
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		opts = append(opts, service.WithGalleryCache(
			cache.NewRedis(redisClient, cache.WithTTL(cfg.Redis.GalleryCacheTTL), cache.WithRegisterer(promReg))))
		log.Info("gallery cache enabled")
	}
	if cfg.Clients.UINURL != "" {
		opts = append(opts, service.WithUINGenerator(clients.NewUIN(cfg.Clients.UINURL, cfg.Clients.Timeout)))
	}
	if cfg.Clients.NotifyURL != "" {
		opts = append(opts, service.WithNotifier(
			clients.NewNotifier(cfg.Clients.NotifyURL, cfg.Clients.NotifyTopic, cfg.Clients.Timeout)))
	}

	svc, err := service.New(backend, reg, opts...)
	if err != nil {
		return err
	}
	promReg.MustRegister(registrymetrics.NewCountsCollector(svc.Counts, cfg.Database.TxTimeout))

	routerOpts := httptransport.Options{
		Logger:         log,
		Metrics:        platformmetrics.New(promReg),
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodySize:    cfg.Server.MaxBodySize,
		Health:         svc.Health,
	}
	if cfg.Server.MonitoringAddr == "" {
		routerOpts.Gatherer = promReg
	}
	api := httpserver.New(cfg.Server.Addr, httptransport.NewRouter(routerOpts, handler.New(svc, log)), cfg.Server.RequestTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpserver.Run(gctx, api, log, "api") })
	if cfg.Server.MonitoringAddr != "" {
		monitoring := httpserver.New(cfg.Server.MonitoringAddr,
			httptransport.NewMonitoringRouter(promReg, svc.Health), cfg.Server.RequestTimeout)
		g.Go(func() error { return httpserver.Run(gctx, monitoring, log, "monitoring") })
	}
	return g.Wait()
}

// openStore selects PostgreSQL when a database URL is configured and the
// in-memory store otherwise.
func openStore(ctx context.Context, cfg config.Database, reg *custo.Registry, log *slog.Logger) (store.Backend, func(), error) {
	if cfg.URL == "" {
		log.Warn("no database configured, using the in-memory store")
		return memory.New(), func() {}, nil
	}

	db, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	pg := postgres.New(db, reg, postgres.WithIsolation(cfg.Isolation), postgres.WithTxTimeout(cfg.TxTimeout))
	if !cfg.DontCreateSchema {
		if err := pg.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return pg, func() { _ = db.Close() }, nil
}

// dumpSchema writes the SQL DDL followed by the JSON Schema of the customization.
func dumpSchema(w io.Writer, reg *custo.Registry) error {
	if _, err := fmt.Fprintln(w, postgres.DDL(reg)); err != nil {
		return err
	}
	doc, err := reg.SchemaDocument(false)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
