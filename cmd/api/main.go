package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bookmarket/internal/asset"
	"bookmarket/internal/config"
	"bookmarket/internal/httpx"
	"bookmarket/internal/listing"
	"bookmarket/internal/platform/cache"
	"bookmarket/internal/platform/events"
	"bookmarket/internal/platform/logger"
	"bookmarket/internal/profile"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "bookmarket api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := openDB(ctx, cfg.DB.DSN, log)
	if err != nil {
		return err
	}
	defer dbPool.Close()

	assets, err := asset.NewMinioStore(ctx, asset.Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		UseSSL:    cfg.Storage.UseSSL,
		PublicURL: cfg.Storage.PublicURL,
	}, log)
	if err != nil {
		return err
	}

	profileService := profile.NewService(profile.NewPostgresRepo(dbPool, cfg.DB.QueryTimeout))

	opts := []listing.Option{
		listing.WithLogger(log),
		listing.WithOwnerResolver(profileService),
	}
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		opts = append(opts, listing.WithCache(cache.NewListingCache(rdb, cfg.Redis.TTL)))
		log.Info("listing cache enabled", zap.String("addr", cfg.Redis.Addr))
	}
	if cfg.NATS.URL != "" {
		pub, err := events.NewPublisher(cfg.NATS.URL, cfg.NATS.ConnectTimeout, log)
		if err != nil {
			return err
		}
		defer pub.Close()
		opts = append(opts, listing.WithEvents(pub))
	}

	listingService := listing.NewService(
		listing.NewPostgresRepo(dbPool, cfg.DB.QueryTimeout),
		assets,
		opts...,
	)

	router := routes{
		listings:  listing.NewHTTPHandler(listingService, log),
		profiles:  profile.NewHTTPHandler(profileService),
		db:        dbPool,
		jwtSecret: cfg.JWTSecret,
	}.handler()

	limiter := httpx.NewRateLimiter(ctx, cfg.HTTPServer.RateLimitRPS, cfg.HTTPServer.RateLimitBurst)
	handler := httpx.Chain(router,
		httpx.RequestIDMiddleware,
		httpx.AccessLogMiddleware(log),
		httpx.RecoveryMiddleware(log),
		httpx.SecurityHeadersMiddleware(cfg.HTTPServer.EnableHSTS),
		httpx.CORSMiddleware(cfg.HTTPServer.AllowedOrigins),
		limiter.Middleware,
		httpx.RequestSizeLimitMiddleware(cfg.HTTPServer.MaxBodyBytes),
	)

	httpServer := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		log.Info("starting server", zap.String("addr", cfg.HTTPServer.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	grp.Go(func() error {
		<-grpCtx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPServer.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return grp.Wait()
}

func openDB(ctx context.Context, dsn string, log *zap.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot create db pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("cannot ping database (%s): %w", redactDSN(dsn), err)
	}
	log.Info("database connection OK")
	return pool, nil
}

func redactDSN(dsn string) string {
	const marker = "://"
	start := strings.Index(dsn, marker)
	if start < 0 {
		return dsn
	}
	start += len(marker)
	end := strings.Index(dsn[start:], "@")
	if end < 0 {
		return dsn
	}
	return dsn[:start] + "***" + dsn[start+end:]
}
