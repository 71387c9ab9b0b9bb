package config

import (
    "os"
    "strconv"
    "strings"
    "time"
)

type Config struct {
    Port         string
    DatabaseURL  string
    RateProvider string

    EasyPostAPIKey  string
    EasyPostURL     string
    EasyPostTimeout time.Duration
    EasyPostMaxRPS  float64

    RateLimitRequests int
    RateLimitWindow   time.Duration
    // TrustXFF keys the limiter on X-Forwarded-For. Only safe behind a proxy
    // that overwrites the header; set TRUST_XFF=false when exposed directly.
    TrustXFF          bool

    RedisAddr     string
    RedisPassword string
    RedisDB       int

    CacheTTL        time.Duration
    CacheSweepEvery time.Duration
    CacheMaxEntries int

    // FreeShippingThreshold is the order subtotal (USD) for free ground shipping; 0 disables the hint.
    FreeShippingThreshold float64
}

func Load() Config {
    return Config{
        Port:         getenvDefault("PORT", "8080"),
        DatabaseURL:  os.Getenv("DATABASE_URL"),
        RateProvider: getenvDefault("RATE_PROVIDER", "easypost"),

        EasyPostAPIKey:  strings.TrimSpace(os.Getenv("EASYPOST_API_KEY")),
        EasyPostURL:     getenvDefault("EASYPOST_API_URL", "https://api.easypost.com/v2"),
        EasyPostTimeout: getenvDurationDefault("EASYPOST_TIMEOUT", 10*time.Second),
        EasyPostMaxRPS:  getenvFloatDefault("EASYPOST_MAX_RPS", 5),

        RateLimitRequests: getenvIntDefault("RATE_LIMIT_REQUESTS", 20),
        RateLimitWindow:   getenvDurationDefault("RATE_LIMIT_WINDOW", 60*time.Second),
        TrustXFF:          getenvBoolDefault("TRUST_XFF", true),

        RedisAddr:     os.Getenv("REDIS_ADDR"),
        RedisPassword: os.Getenv("REDIS_PASSWORD"),
        RedisDB:       getenvIntDefault("REDIS_DB", 0),

        CacheTTL:        getenvDurationDefault("RATE_CACHE_TTL", 15*time.Minute),
        CacheSweepEvery: getenvDurationDefault("RATE_CACHE_SWEEP", 10*time.Minute),
        CacheMaxEntries: getenvIntDefault("RATE_CACHE_MAX", 10000),

        FreeShippingThreshold: getenvFloatDefault("FREE_SHIPPING_THRESHOLD", 0),
    }
}

func getenvDefault(k, def string) string {
    if v := strings.TrimSpace(os.Getenv(k)); v != "" {
        return v
    }
    return def
}

func getenvIntDefault(k string, def int) int {
    v := strings.TrimSpace(os.Getenv(k))
    if v == "" {
        return def
    }
    i, err := strconv.Atoi(v)
    if err != nil {
        return def
    }
    return i
}

func getenvFloatDefault(k string, def float64) float64 {
    v := strings.TrimSpace(os.Getenv(k))
    if v == "" {
        return def
    }
    f, err := strconv.ParseFloat(v, 64)
    if err != nil {
        return def
    }
    return f
}

func getenvBoolDefault(k string, def bool) bool {
    v := strings.TrimSpace(os.Getenv(k))
    if v == "" {
        return def
    }
    b, err := strconv.ParseBool(v)
    if err != nil {
        return def
    }
    return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
    v := strings.TrimSpace(os.Getenv(k))
    if v == "" {
        return def
    }
    d, err := time.ParseDuration(v)
    if err != nil {
        return def
    }
    return d
}
