package server

import (
    "context"
    "encoding/json"
    "errors"
    "io"
    "log"
    "math"
    "net/http"
    "regexp"
    "strconv"
    "time"

    "github.com/shopspring/decimal"

    "shipestimate/internal/quotelog"
    "shipestimate/internal/rate"
    "shipestimate/internal/ratelimit"
)

const (
    msgNotConfigured = "Shipping estimates are not configured"
    msgRateLimited   = "Too many requests. Please try again shortly."
    msgInvalidBody   = "Invalid request body"
    msgZipRequired   = "zipCode is required"
    msgZipInvalid    = "Please enter a valid 5-digit US ZIP code"
    msgInvalidWeight = "weight is out of range"
    msgUpstream      = "Unable to estimate shipping rates. Please try again."

    maxEstimateBody = 64 << 10
    quoteLogTimeout = 2 * time.Second
)

var zipPattern = regexp.MustCompile(`^\d{5}$`)

// EstimateRequest is the storefront's product-page payload. sku is informational.
type EstimateRequest struct {
    SKU     string  `json:"sku"`
    Qty     int     `json:"qty"`
    Weight  float64 `json:"weight"` // lbs, from the catalog
    ZipCode string  `json:"zipCode"`
    // Price is the unit price; only used for the free-shipping hint.
    Price float64 `json:"price"`
}

type EstimateResponse struct {
    Rates        []rate.FormattedRate `json:"rates"`
    Cached       bool                 `json:"cached,omitempty"`
    FreeShipping *FreeShipping        `json:"freeShipping,omitempty"`
}

type FreeShipping struct {
    Threshold float64 `json:"threshold"`
    Eligible  bool    `json:"eligible"`
    Remaining float64 `json:"remaining"`
}

// parcelWeightOz converts catalog weight to ounces. A missing or non-positive
// weight counts as 1 lb so an estimate is always possible.
func parcelWeightOz(weightLbs float64, qty int) float64 {
    if qty <= 0 {
        qty = 1
    }
    if !(weightLbs > 0) {
        weightLbs = 1
    }
    return weightLbs * float64(qty) * 16
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
    if s.est == nil {
        writeErrorJSON(w, http.StatusServiceUnavailable, "not_configured", msgNotConfigured)
        return
    }

    ip := ratelimit.ClientIP(r, s.trustXFF)
    dec, err := s.limiter.Allow(r.Context(), "shipping-estimate:"+ip)
    switch {
    case err != nil:
        // fail open
        log.Printf("shipping estimate: rate limiter error ip=%s: %v", ip, err)
    case !dec.Allowed:
        w.Header().Set("X-RateLimit-Remaining", "0")
        w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(dec.RetryAfter)))
        writeErrorJSON(w, http.StatusTooManyRequests, "rate_limited", msgRateLimited)
        return
    default:
        w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))
    }

    var req EstimateRequest
    if err := decodeBody(w, r, &req); err != nil {
        writeErrorJSON(w, http.StatusBadRequest, "invalid_json", msgInvalidBody)
        return
    }
    if req.ZipCode == "" {
        writeErrorJSON(w, http.StatusBadRequest, "invalid_request", msgZipRequired)
        return
    }
    if !zipPattern.MatchString(req.ZipCode) {
        writeErrorJSON(w, http.StatusBadRequest, "invalid_request", msgZipInvalid)
        return
    }
    if req.Qty <= 0 {
        req.Qty = 1
    }

    weightOz := parcelWeightOz(req.Weight, req.Qty)
    if math.IsInf(weightOz, 0) {
        writeErrorJSON(w, http.StatusBadRequest, "invalid_request", msgInvalidWeight)
        return
    }
    resp := EstimateResponse{FreeShipping: s.freeShipping(req)}

    if cached, ok := s.cache.Get(weightOz, req.ZipCode); ok {
        resp.Rates = cached.Rates
        resp.Cached = true
        writeJSON(w, http.StatusOK, resp)
        return
    }

    rates, err := s.est.Rates(r.Context(), weightOz, req.ZipCode)
    if err != nil {
        log.Printf("shipping estimate: provider=%s zip=%s weight_oz=%.2f: %v", s.est.Name(), req.ZipCode, weightOz, err)
        if errors.Is(err, rate.ErrUpstreamUnavailable) {
            writeErrorJSON(w, http.StatusBadGateway, "upstream_unavailable", msgUpstream)
        } else {
            writeErrorJSON(w, http.StatusInternalServerError, "internal_error", msgUpstream)
        }
        return
    }
    if rates == nil {
        rates = []rate.FormattedRate{}
    }

    s.cache.Set(weightOz, req.ZipCode, rates)
    s.recordQuote(r.Context(), weightOz, req.ZipCode, rates)

    resp.Rates = rates
    writeJSON(w, http.StatusOK, resp)
}

// decodeBody reads exactly one JSON value; anything after it is an error.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
    dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEstimateBody))
    if err := dec.Decode(v); err != nil {
        return err
    }
    if err := dec.Decode(&struct{}{}); err != io.EOF {
        return errors.New("unexpected data after request body")
    }
    return nil
}

// recordQuote logs the fetch when a quote log is configured. Failures are logged only.
func (s *Server) recordQuote(ctx context.Context, weightOz float64, zip string, rates []rate.FormattedRate) {
    if s.quotes == nil {
        return
    }
    ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), quoteLogTimeout)
    defer cancel()
    if err := s.quotes.Record(ctx, quotelog.NewQuote(s.est.Name(), zip, weightOz, rates)); err != nil {
        log.Printf("shipping estimate: quote log write failed zip=%s: %v", zip, err)
    }
}

// freeShipping computes the hint for price*qty against the configured threshold.
func (s *Server) freeShipping(req EstimateRequest) *FreeShipping {
    if !s.freeShip.IsPositive() || !(req.Price > 0) {
        return nil
    }
    subtotal := decimal.NewFromFloat(req.Price).Mul(decimal.NewFromInt(int64(req.Qty)))
    remaining := s.freeShip.Sub(subtotal)
    if remaining.IsNegative() {
        remaining = decimal.Zero
    }
    return &FreeShipping{
        Threshold: s.freeShip.InexactFloat64(),
        Eligible:  subtotal.GreaterThanOrEqual(s.freeShip),
        Remaining: remaining.Round(2).InexactFloat64(),
    }
}

func retryAfterSeconds(d time.Duration) int {
    secs := int(math.Ceil(d.Seconds()))
    if secs < 1 {
        secs = 1
    }
    return secs
}
