// Command server runs the assent consent platform: the runtime-config API,
// the consent receipt pipeline, and optionally the edge gateway fronting a
// customer site. Everything ships in one binary; config decides which
// surfaces are live.
package main

import (
	"context"
	"database/sql"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"assent/internal/admintoken"
	"assent/internal/gateway"
	gatewaymetrics "assent/internal/gateway/metrics"
	"assent/internal/loader/consent"
	loadermetrics "assent/internal/loader/metrics"
	"assent/internal/loader/registry"
	"assent/internal/platform/config"
	"assent/internal/platform/httpserver"
	"assent/internal/platform/logger"
	"assent/internal/platform/metrics"
	platformredis "assent/internal/platform/redis"
	"assent/internal/platform/tracer"
	receipthandler "assent/internal/receipt/handler"
	receiptmetrics "assent/internal/receipt/metrics"
	receiptpublisher "assent/internal/receipt/publisher"
	receiptservice "assent/internal/receipt/service"
	receiptsink "assent/internal/receipt/sink"
	receiptstore "assent/internal/receipt/store"
	receiptsweeper "assent/internal/receipt/sweeper"
	"assent/internal/site"
	httptransport "assent/internal/transport/http"
	websitehandler "assent/internal/website/handler"
	websitemetrics "assent/internal/website/metrics"
	"assent/internal/website/schema"
	websiteservice "assent/internal/website/service"
	websitestore "assent/internal/website/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "assent:", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flag.StringVar(&configPath, "config", os.Getenv("ASSENT_CONFIG"), "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, closeLogs, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = closeLogs() }()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Runtime-config documents.
	siteMetrics := websitemetrics.New()
	websiteStore, pool, err := buildWebsiteStore(ctx, cfg, redisClient, log, siteMetrics)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	validator, err := schema.NewValidator()
	if err != nil {
		return err
	}
	siteOpts := []websiteservice.Option{
		websiteservice.WithLogger(log),
		websiteservice.WithMetrics(siteMetrics),
	}
	if cache, ok := websiteStore.(*websitestore.Cache); ok {
		siteOpts = append(siteOpts, websiteservice.WithCachePurger(cache))
	}
	siteService := websiteservice.New(websiteStore, validator, siteOpts...)
	siteHandler := websitehandler.New(siteService, log, cfg.Website.CacheTTL.Std())

	// Consent receipts.
	recMetrics := receiptmetrics.New(prometheus.DefaultRegisterer)
	recStore, receiptDB, err := buildReceiptStore(ctx, cfg)
	if err != nil {
		return err
	}
	if receiptDB != nil {
		defer receiptDB.Close()
	}
	recOpts := []receiptservice.Option{
		receiptservice.WithLogger(log),
		receiptservice.WithMetrics(recMetrics),
	}
	if receiptDB != nil {
		recOpts = append(recOpts, receiptservice.WithStoreTx(newReceiptPostgresTx(receiptDB)))
	}
	if cfg.Receipts.Kafka.Enabled {
		sink, err := receiptsink.NewKafka(ctx, cfg.Receipts.Kafka.Brokers, cfg.Receipts.Kafka.Topic, log)
		if err != nil {
			return err
		}
		defer sink.Close()
		recOpts = append(recOpts, receiptservice.WithSink(sink))
	}
	recorder := receiptservice.New(recStore, cfg.Receipts.DedupWindow.Std(), cfg.Receipts.Retention.Std(), recOpts...)

	intake := receiptpublisher.NewPublisher(recorder,
		receiptpublisher.WithAsyncBuffer(cfg.Receipts.Buffer),
		receiptpublisher.WithLogger(log),
		receiptpublisher.WithMetrics(recMetrics),
	)

	sweeper := receiptsweeper.New(recorder, cfg.Receipts.SweepSchedule, log)
	if err := sweeper.Start(); err != nil {
		return err
	}

	receiptHandler := receipthandler.New(intake, recorder, log)

	tokens := admintoken.New(cfg.Admin.JWTSigningKey, cfg.Admin.Issuer, cfg.Admin.TokenTTL.Std())

	gatewayHandler, err := buildGateway(cfg, intake, log)
	if err != nil {
		return err
	}

	router := httptransport.NewRouter(httptransport.RouterOptions{
		Logger:          log,
		Metrics:         metrics.New(),
		Website:         siteHandler,
		Receipts:        receiptHandler,
		AdminValidator:  tokens,
		Gateway:         gatewayHandler,
		RequestTimeout:  cfg.Server.RequestTimeout.Std(),
		PublicRateRPS:   cfg.Server.PublicRateRPS,
		PublicRateBurst: cfg.Server.PublicRateBurst,
	})

	srv := httpserver.New(cfg.Server.Addr, router)

	log.InfoContext(ctx, "assent server starting",
		"addr", cfg.Server.Addr,
		"website_store", cfg.Website.Store,
		"receipt_store", cfg.Receipts.Store,
		"kafka_sink", cfg.Receipts.Kafka.Enabled,
		"gateway", cfg.Gateway.Enabled,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(gctx, srv, cfg.Server.ShutdownTimeout.Std())
	})
	g.Go(func() error {
		<-gctx.Done()
		// Drain order matters: stop producing deletes, then flush queued
		// receipts while the stores are still up.
		sweeper.Stop()
		intake.Close()
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("assent server stopped")
	return nil
}

// buildWebsiteStore selects the runtime-config document store and, when Redis
// is configured, wraps it in the read-through cache.
func buildWebsiteStore(ctx context.Context, cfg *config.Config, redisClient *platformredis.Client, log *slog.Logger, m *websitemetrics.Metrics) (websitestore.Store, *pgxpool.Pool, error) {
	var (
		inner websitestore.Store
		pool  *pgxpool.Pool
	)
	switch cfg.Website.Store {
	case "postgres":
		poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse postgres url: %w", err)
		}
		if cfg.Postgres.MaxConns > 0 {
			poolCfg.MaxConns = cfg.Postgres.MaxConns
		}
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		inner = websitestore.NewPostgres(pool)
	default:
		inner = websitestore.NewInMemory()
	}

	if redisClient != nil {
		return websitestore.NewCache(inner, redisClient.Client, cfg.Website.CacheTTL.Std(), log, m), pool, nil
	}
	return inner, pool, nil
}

// buildReceiptStore selects the receipt store. Postgres runs over database/sql
// so the dedup check and the append can share one context transaction.
func buildReceiptStore(ctx context.Context, cfg *config.Config) (receiptstore.Store, *sql.DB, error) {
	if cfg.Receipts.Store != "postgres" {
		return receiptstore.NewInMemory(), nil, nil
	}
	db, err := sql.Open("postgres", cfg.Postgres.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("open receipts postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping receipts postgres: %w", err)
	}
	return receiptstore.NewPostgres(db), db, nil
}

// buildGateway assembles the edge gateway when enabled. The runtime base URL
// defaults to this same process, which is the single-binary deployment.
func buildGateway(cfg *config.Config, intake gateway.ReceiptIntake, log *slog.Logger) (http.Handler, error) {
	if !cfg.Gateway.Enabled {
		return nil, nil
	}

	upstream, err := url.Parse(cfg.Gateway.Upstream)
	if err != nil {
		return nil, fmt.Errorf("parse gateway upstream: %w", err)
	}

	key, err := hex.DecodeString(cfg.Gateway.SealKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode gateway seal key: %w", err)
	}
	sealer, err := consent.NewSealer(key)
	if err != nil {
		return nil, err
	}

	runtimeBase := cfg.Gateway.RuntimeBaseURL
	if runtimeBase == "" {
		runtimeBase = "http://127.0.0.1" + cfg.Server.Addr
	}
	source := site.NewClient(runtimeBase, log, site.ClientOptions{
		Timeout:            cfg.Loader.ConfigTimeout.Std(),
		MaxConfigBytes:     cfg.Loader.MaxConfigBytes,
		BreakerMaxFailures: cfg.Loader.BreakerMaxFailures,
		BreakerTimeout:     cfg.Loader.BreakerTimeout.Std(),
		BreakerInterval:    cfg.Loader.BreakerInterval.Std(),
	})

	return gateway.New(gateway.Options{
		SiteID:         cfg.Gateway.SiteID,
		Upstream:       upstream,
		Source:         source,
		Sealer:         sealer,
		Receipts:       intake,
		Logger:         log,
		Metrics:        gatewaymetrics.New(),
		LoaderMetrics:  loadermetrics.New(),
		CookieSecure:   cfg.Gateway.CookieSecure,
		MaxBodyBytes:   cfg.Gateway.MaxBodyBytes,
		UntaggedPolicy: registry.UntaggedPolicy(cfg.Loader.UntaggedPolicy),
	})
}
