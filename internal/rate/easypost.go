package rate

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "log"
    "net/http"
    "strings"
    "time"

    "github.com/shopspring/decimal"
    xrate "golang.org/x/time/rate"
)

const (
    DefaultEasyPostURL     = "https://api.easypost.com/v2"
    DefaultEasyPostTimeout = 10 * time.Second
)

// Address is an EasyPost address object.
type Address struct {
    Company string `json:"company,omitempty"`
    Street1 string `json:"street1,omitempty"`
    City    string `json:"city,omitempty"`
    State   string `json:"state,omitempty"`
    Zip     string `json:"zip"`
    Country string `json:"country"`
    Phone   string `json:"phone,omitempty"`
}

// Parcel dimensions are inches, weight is ounces.
type Parcel struct {
    Length float64 `json:"length"`
    Width  float64 `json:"width"`
    Height float64 `json:"height"`
    Weight float64 `json:"weight"`
}

// Warehouse origin (Cary, IL).
var OriginAddress = Address{
    Company: "Technimark",
    Street1: "720 Industrial Dr",
    City:    "Cary",
    State:   "IL",
    Zip:     "60013",
    Country: "US",
    Phone:   "8476394700",
}

// DefaultParcel is used when only the weight is known.
var DefaultParcel = Parcel{Length: 12, Width: 10, Height: 6}

// DestinationCountry is the only market quotes are requested for.
const DestinationCountry = "US"

type shipmentRequest struct {
    Shipment shipmentBody `json:"shipment"`
}

type shipmentBody struct {
    FromAddress Address `json:"from_address"`
    ToAddress   Address `json:"to_address"`
    Parcel      Parcel  `json:"parcel"`
}

type easyPostRate struct {
    ID              string          `json:"id"`
    Carrier         string          `json:"carrier"`
    Service         string          `json:"service"`
    Rate            json.RawMessage `json:"rate"`
    Currency        string          `json:"currency"`
    DeliveryDays    *int            `json:"delivery_days"`
    EstDeliveryDays *int            `json:"est_delivery_days"`
}

type shipmentResponse struct {
    Rates []easyPostRate `json:"rates"`
}

// EasyPost quotes rates by creating a shipment against the EasyPost API.
type EasyPost struct {
    apiKey  string
    baseURL string
    http    *http.Client
    timeout time.Duration
    limiter *xrate.Limiter
}

type EasyPostOption func(*EasyPost)

func WithBaseURL(u string) EasyPostOption {
    return func(e *EasyPost) { e.baseURL = strings.TrimRight(u, "/") }
}

// WithTimeout bounds a whole Rates call, throttle wait included.
func WithTimeout(d time.Duration) EasyPostOption {
    return func(e *EasyPost) { e.timeout = d }
}

func WithHTTPClient(c *http.Client) EasyPostOption {
    return func(e *EasyPost) { e.http = c }
}

// WithRequestLimit throttles outbound calls to rps with the given burst.
func WithRequestLimit(rps float64, burst int) EasyPostOption {
    return func(e *EasyPost) {
        if burst < 1 {
            burst = 1
        }
        e.limiter = xrate.NewLimiter(xrate.Limit(rps), burst)
    }
}

func NewEasyPost(apiKey string, opts ...EasyPostOption) *EasyPost {
    e := &EasyPost{
        apiKey:  apiKey,
        baseURL: DefaultEasyPostURL,
        http:    &http.Client{},
        timeout: DefaultEasyPostTimeout,
    }
    for _, opt := range opts {
        opt(e)
    }
    return e
}

func (e *EasyPost) Name() string { return "easypost" }

// Rates requests quotes for a parcel of weightOz ounces shipped from the
// warehouse to zip. Every failure wraps ErrUpstreamUnavailable.
func (e *EasyPost) Rates(ctx context.Context, weightOz float64, zip string) ([]FormattedRate, error) {
    if e.timeout > 0 {
        var cancel context.CancelFunc
        ctx, cancel = context.WithTimeout(ctx, e.timeout)
        defer cancel()
    }
    if e.limiter != nil {
        if err := e.limiter.Wait(ctx); err != nil {
            return nil, fmt.Errorf("%w: throttle: %v", ErrUpstreamUnavailable, err)
        }
    }

    parcel := DefaultParcel
    parcel.Weight = weightOz
    payload, err := json.Marshal(shipmentRequest{Shipment: shipmentBody{
        FromAddress: OriginAddress,
        ToAddress:   Address{Zip: zip, Country: DestinationCountry},
        Parcel:      parcel,
    }})
    if err != nil {
        return nil, err
    }

    req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/shipments", bytes.NewReader(payload))
    if err != nil {
        return nil, err
    }
    req.Header.Set("Content-Type", "application/json")
    req.SetBasicAuth(e.apiKey, "")

    res, err := e.http.Do(req)
    if err != nil {
        return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
    }
    defer res.Body.Close()

    if res.StatusCode < 200 || res.StatusCode > 299 {
        body, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
        log.Printf("easypost: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(body)))
        return nil, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, res.StatusCode)
    }

    var data shipmentResponse
    if err := json.NewDecoder(res.Body).Decode(&data); err != nil {
        return nil, fmt.Errorf("%w: decode: %v", ErrUpstreamUnavailable, err)
    }
    return formatRates(data.Rates), nil
}

// formatRates keeps strictly positive quotes, labels them and sorts by price.
func formatRates(in []easyPostRate) []FormattedRate {
    out := make([]FormattedRate, 0, len(in))
    for _, r := range in {
        price, ok := parseAmount(r.Rate)
        if !ok || !price.IsPositive() {
            continue
        }
        days := r.DeliveryDays
        if days == nil {
            days = r.EstDeliveryDays
        }
        out = append(out, FormattedRate{
            Carrier:       strings.ToLower(r.Carrier),
            CarrierTitle:  FriendlyCarrier(r.Carrier),
            Method:        r.Service,
            MethodTitle:   FriendlyService(r.Service),
            Price:         price,
            EstimatedDays: FormatDeliveryDays(days),
        })
    }
    sortRates(out)
    return out
}

// parseAmount accepts both "12.34" and 12.34.
func parseAmount(raw json.RawMessage) (decimal.Decimal, bool) {
    s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
    if s == "" || s == "null" {
        return decimal.Decimal{}, false
    }
    d, err := decimal.NewFromString(s)
    if err != nil {
        return decimal.Decimal{}, false
    }
    return d, true
}
