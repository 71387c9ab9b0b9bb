package server

import (
    "bytes"
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "sync"
    "testing"

    "github.com/google/uuid"
    "github.com/shopspring/decimal"
    "go.uber.org/atomic"

    "shipestimate/internal/quotelog"
    "shipestimate/internal/rate"
    "shipestimate/internal/ratelimit"
)

type fakeEstimator struct {
    mu      sync.Mutex
    calls   atomic.Int64
    rates   []rate.FormattedRate
    err     error
    lastOz  float64
    lastZip string
}

func (f *fakeEstimator) Name() string { return "fake" }

func (f *fakeEstimator) Rates(ctx context.Context, weightOz float64, zip string) ([]rate.FormattedRate, error) {
    f.calls.Inc()
    f.mu.Lock()
    defer f.mu.Unlock()
    f.lastOz, f.lastZip = weightOz, zip
    if f.err != nil {
        return nil, f.err
    }
    return f.rates, nil
}

func (f *fakeEstimator) last() (float64, string) {
    f.mu.Lock()
    defer f.mu.Unlock()
    return f.lastOz, f.lastZip
}

type countingLimiter struct {
    calls atomic.Int64
    dec   ratelimit.Decision
    err   error
}

func (c *countingLimiter) Allow(ctx context.Context, key string) (ratelimit.Decision, error) {
    c.calls.Inc()
    return c.dec, c.err
}

type fakeQuoteLog struct {
    mu     sync.Mutex
    quotes []quotelog.Quote
    err    error
}

func (f *fakeQuoteLog) Record(ctx context.Context, q quotelog.Quote) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    if f.err != nil {
        return f.err
    }
    f.quotes = append(f.quotes, q)
    return nil
}

func (f *fakeQuoteLog) Get(ctx context.Context, id uuid.UUID) (quotelog.Quote, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    for _, q := range f.quotes {
        if q.ID == id {
            return q, nil
        }
    }
    return quotelog.Quote{}, quotelog.ErrNotFound
}

func (f *fakeQuoteLog) Recent(ctx context.Context, zip string, limit int) ([]quotelog.Quote, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    out := []quotelog.Quote{}
    for i := len(f.quotes) - 1; i >= 0 && len(out) < limit; i-- {
        if zip == "" || f.quotes[i].Zip == zip {
            out = append(out, f.quotes[i])
        }
    }
    return out, nil
}

func (f *fakeQuoteLog) count() int {
    f.mu.Lock()
    defer f.mu.Unlock()
    return len(f.quotes)
}

func sampleRates() []rate.FormattedRate {
    return []rate.FormattedRate{
        {Carrier: "usps", CarrierTitle: "USPS", Method: "GroundAdvantage", MethodTitle: "Ground Advantage", Price: decimal.RequireFromString("8.05"), EstimatedDays: "3 business days"},
        {Carrier: "upsdap", CarrierTitle: "UPS", Method: "NextDayAir", MethodTitle: "Next Day Air", Price: decimal.RequireFromString("42.10"), EstimatedDays: "1 business day"},
    }
}

// stdError is the error body shared by every endpoint.
type stdError struct {
    Error string `json:"error"`
    Code  string `json:"code"`
}

type estimateBody struct {
    Rates []struct {
        Carrier       string  `json:"carrier"`
        CarrierTitle  string  `json:"carrierTitle"`
        Method        string  `json:"method"`
        MethodTitle   string  `json:"methodTitle"`
        Price         float64 `json:"price"`
        EstimatedDays string  `json:"estimatedDays"`
    } `json:"rates"`
    Cached       bool          `json:"cached"`
    FreeShipping *FreeShipping `json:"freeShipping"`
}

func postEstimate(t *testing.T, h http.Handler, ip string, payload any) *httptest.ResponseRecorder {
    t.Helper()
    var body []byte
    switch p := payload.(type) {
    case string:
        body = []byte(p)
    default:
        var err error
        body, err = json.Marshal(p)
        if err != nil {
            t.Fatalf("marshal payload: %v", err)
        }
    }
    req := httptest.NewRequest(http.MethodPost, "/shipping/estimate", bytes.NewReader(body))
    req.Header.Set("Content-Type", "application/json")
    if ip != "" {
        req.Header.Set("X-Forwarded-For", ip)
    }
    rr := httptest.NewRecorder()
    h.ServeHTTP(rr, req)
    return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) stdError {
    t.Helper()
    var e stdError
    if err := json.Unmarshal(rr.Body.Bytes(), &e); err != nil {
        t.Fatalf("unmarshal error body: %v; body=%s", err, rr.Body.String())
    }
    return e
}

func decodeEstimate(t *testing.T, rr *httptest.ResponseRecorder) estimateBody {
    t.Helper()
    var b estimateBody
    if err := json.Unmarshal(rr.Body.Bytes(), &b); err != nil {
        t.Fatalf("unmarshal estimate body: %v; body=%s", err, rr.Body.String())
    }
    return b
}
