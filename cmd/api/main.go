package main

import (
    "context"
    "errors"
    "log"
    "net/http"
    "os"
    "os/signal"
    "strings"
    "syscall"
    "time"

    "github.com/redis/go-redis/v9"
    "github.com/shopspring/decimal"
    "golang.org/x/sync/errgroup"

    "shipestimate/internal/config"
    "shipestimate/internal/db"
    "shipestimate/internal/quotelog"
    "shipestimate/internal/rate"
    "shipestimate/internal/ratecache"
    "shipestimate/internal/ratelimit"
    "shipestimate/internal/server"
)

func main() {
    cfg := config.Load()

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    // Select rate provider from config
    est, err := rate.NewByName(cfg.RateProvider, rate.Options{
        APIKey:  cfg.EasyPostAPIKey,
        BaseURL: cfg.EasyPostURL,
        Timeout: cfg.EasyPostTimeout,
        MaxRPS:  cfg.EasyPostMaxRPS,
    })
    switch {
    case errors.Is(err, rate.ErrNotConfigured):
        log.Printf("EASYPOST_API_KEY not set; shipping estimates will answer 503")
        est = nil
    case err != nil:
        log.Fatalf("rate provider: %v", err)
    }

    cache := ratecache.New(
        ratecache.WithTTL(cfg.CacheTTL),
        ratecache.WithSweepEvery(cfg.CacheSweepEvery),
        ratecache.WithMaxEntries(cfg.CacheMaxEntries),
    )
    log.Printf("rate cache ttl=%s max_entries=%d", cache.TTL(), cfg.CacheMaxEntries)

    var limiter ratelimit.Limiter
    if strings.TrimSpace(cfg.RedisAddr) != "" {
        rdb := redis.NewClient(&redis.Options{
            Addr:     cfg.RedisAddr,
            Password: cfg.RedisPassword,
            DB:       cfg.RedisDB,
        })
        defer rdb.Close()
        pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
        if err := rdb.Ping(pingCtx).Err(); err != nil {
            log.Printf("redis ping failed (%v); limiter will fail open until it recovers", err)
        }
        cancel()
        limiter = ratelimit.NewRedis(rdb, cfg.RateLimitRequests, cfg.RateLimitWindow)
    } else {
        mem := ratelimit.NewMemory(cfg.RateLimitRequests, cfg.RateLimitWindow)
        mem.StartJanitor(ctx)
        limiter = mem
    }

    deps := server.Deps{
        Estimator:             est,
        Cache:                 cache,
        Limiter:               limiter,
        TrustXFF:              cfg.TrustXFF,
        FreeShippingThreshold: decimal.NewFromFloat(cfg.FreeShippingThreshold),
    }

    if strings.TrimSpace(cfg.DatabaseURL) != "" {
        dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
        pool, err := db.NewPool(dbCtx, cfg.DatabaseURL)
        if err != nil {
            cancel()
            log.Fatalf("failed to connect db: %v", err)
        }
        defer pool.Close()
        store := quotelog.NewStore(pool)
        if err := store.EnsureSchema(dbCtx); err != nil {
            cancel()
            log.Fatalf("quote log schema: %v", err)
        }
        cancel()
        deps.Quotes = store
    }

    srv := &http.Server{
        Addr:              ":" + cfg.Port,
        Handler:           server.New(deps),
        ReadTimeout:       10 * time.Second,
        ReadHeaderTimeout: 10 * time.Second,
        WriteTimeout:      20 * time.Second,
        IdleTimeout:       60 * time.Second,
    }

    g, gctx := errgroup.WithContext(ctx)
    g.Go(func() error {
        cache.Run(gctx)
        return nil
    })
    g.Go(func() error {
        provider := cfg.RateProvider
        if est != nil {
            provider = est.Name()
        }
        log.Printf("api listening on :%s (RATE_PROVIDER=%s quote_log=%t redis=%t)",
            cfg.Port, provider, deps.Quotes != nil, cfg.RedisAddr != "")
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            return err
        }
        return nil
    })
    g.Go(func() error {
        <-gctx.Done()
        shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
        defer cancel()
        return srv.Shutdown(shutdownCtx)
    })

    if err := g.Wait(); err != nil {
        log.Println("server error:", err)
        os.Exit(1)
    }
    log.Println("api stopped")
}
