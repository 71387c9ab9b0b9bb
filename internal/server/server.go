package server

import (
    "context"
    "encoding/json"
    "net/http"
    "strings"

    "github.com/go-chi/chi/v5"
    "github.com/go-chi/chi/v5/middleware"
    "github.com/google/uuid"
    "github.com/shopspring/decimal"

    "shipestimate/internal/quotelog"
    "shipestimate/internal/rate"
    "shipestimate/internal/ratecache"
    "shipestimate/internal/ratelimit"
)

// QuoteLog is the optional persistence for upstream quote fetches.
type QuoteLog interface {
    Record(ctx context.Context, q quotelog.Quote) error
    Get(ctx context.Context, id uuid.UUID) (quotelog.Quote, error)
    Recent(ctx context.Context, zip string, limit int) ([]quotelog.Quote, error)
}

// Deps wires the server. A nil Estimator means shipping estimates are not
// configured and every estimate request answers 503.
type Deps struct {
    Estimator rate.Estimator
    Cache     *ratecache.Cache
    Limiter   ratelimit.Limiter
    Quotes    QuoteLog
    TrustXFF  bool
    // FreeShippingThreshold enables the free-shipping hint when positive.
    FreeShippingThreshold decimal.Decimal
}

type Server struct {
    est      rate.Estimator
    cache    *ratecache.Cache
    limiter  ratelimit.Limiter
    quotes   QuoteLog
    trustXFF bool
    freeShip decimal.Decimal
}

func New(d Deps) http.Handler {
    if d.Cache == nil {
        d.Cache = ratecache.New()
    }
    if d.Limiter == nil {
        d.Limiter = ratelimit.NewMemory(ratelimit.DefaultLimit, ratelimit.DefaultWindow)
    }
    s := &Server{
        est:      d.Estimator,
        cache:    d.Cache,
        limiter:  d.Limiter,
        quotes:   d.Quotes,
        trustXFF: d.TrustXFF,
        freeShip: d.FreeShippingThreshold,
    }

    r := chi.NewRouter()
    // Observability: Request ID and basic logger
    r.Use(requestIDMiddleware)
    r.Use(middleware.Logger)
    r.Use(middleware.Recoverer)
    r.Get("/healthz", s.handleHealth)
    r.Post("/shipping/estimate", s.handleEstimate)
    // storefront path
    r.Post("/api/shipping/estimate", s.handleEstimate)
    r.Get("/shipping/cache/stats", s.handleCacheStats)
    r.Get("/shipping/quotes", s.handleListQuotes)
    r.Get("/shipping/quotes/{id}", s.handleGetQuote)
    return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
    w.WriteHeader(http.StatusOK)
    w.Write([]byte("ok"))
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, s.cache.Stats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(v)
}

// writeErrorJSON writes the error body shared by every endpoint:
// {"error": message, "code": code}. message is safe to show to shoppers.
func writeErrorJSON(w http.ResponseWriter, status int, code string, message string) {
    writeJSON(w, status, map[string]string{
        "error": message,
        "code":  code,
    })
}

// requestIDMiddleware ensures X-Request-ID is set on the response.
// If provided in the request header, it is propagated; otherwise a UUID is generated.
func requestIDMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
        if rid == "" {
            rid = uuid.New().String()
        }
        w.Header().Set("X-Request-ID", rid)
        next.ServeHTTP(w, r)
    })
}
