package rate

import (
    "context"
    "encoding/json"
    "errors"
    "sort"
    "strings"
    "time"

    "github.com/shopspring/decimal"
)

var (
    // ErrUpstreamUnavailable marks any failure to obtain quotes from the provider.
    ErrUpstreamUnavailable = errors.New("rate provider unavailable")
    // ErrNotConfigured is returned when the selected provider has no credential.
    ErrNotConfigured = errors.New("rate provider not configured")
)

// FormattedRate is a single carrier quote ready for display.
type FormattedRate struct {
    Carrier       string          `json:"carrier"`
    CarrierTitle  string          `json:"carrierTitle"`
    Method        string          `json:"method"`
    MethodTitle   string          `json:"methodTitle"`
    Price         decimal.Decimal `json:"price"`
    EstimatedDays string          `json:"estimatedDays"`
}

// MarshalJSON writes price as a JSON number rather than decimal's quoted string.
func (r FormattedRate) MarshalJSON() ([]byte, error) {
    type plain FormattedRate
    return json.Marshal(struct {
        plain
        Price json.Number `json:"price"`
    }{plain(r), json.Number(r.Price.String())})
}

// Estimator defines the interface for rate estimation engines.
type Estimator interface {
    Name() string
    Rates(ctx context.Context, weightOz float64, zip string) ([]FormattedRate, error)
}

// Options configures provider construction in NewByName.
type Options struct {
    APIKey  string
    BaseURL string
    Timeout time.Duration
    MaxRPS  float64
}

// NewByName returns an Estimator by provider name.
// "easypost" (the default) requires an API key; "dummy" needs nothing.
func NewByName(name string, opts Options) (Estimator, error) {
    switch strings.ToLower(strings.TrimSpace(name)) {
    case "easypost", "":
        if strings.TrimSpace(opts.APIKey) == "" {
            return nil, ErrNotConfigured
        }
        var epOpts []EasyPostOption
        if opts.BaseURL != "" {
            epOpts = append(epOpts, WithBaseURL(opts.BaseURL))
        }
        if opts.Timeout > 0 {
            epOpts = append(epOpts, WithTimeout(opts.Timeout))
        }
        if opts.MaxRPS > 0 {
            epOpts = append(epOpts, WithRequestLimit(opts.MaxRPS, int(opts.MaxRPS+0.5)))
        }
        return NewEasyPost(opts.APIKey, epOpts...), nil
    case "dummy":
        return NewDummy(), nil
    default:
        return nil, errors.New("unknown rate provider: " + name)
    }
}

// sortRates orders rates by ascending price, keeping provider order on ties.
func sortRates(rates []FormattedRate) {
    sort.SliceStable(rates, func(i, j int) bool {
        return rates[i].Price.LessThan(rates[j].Price)
    })
}

// Dummy returns fixed-formula quotes so the service can run without a provider account.
type Dummy struct{}

func NewDummy() *Dummy { return &Dummy{} }

func (d *Dummy) Name() string { return "dummy" }

func (d *Dummy) Rates(ctx context.Context, weightOz float64, zip string) ([]FormattedRate, error) {
    if err := ctx.Err(); err != nil {
        return nil, err
    }
    lbs := decimal.NewFromFloat(weightOz).Div(decimal.NewFromInt(16))
    quote := func(carrier, service string, base, perLb float64, days int) FormattedRate {
        price := decimal.NewFromFloat(base).Add(lbs.Mul(decimal.NewFromFloat(perLb))).Round(2)
        return FormattedRate{
            Carrier:       strings.ToLower(carrier),
            CarrierTitle:  FriendlyCarrier(carrier),
            Method:        service,
            MethodTitle:   FriendlyService(service),
            Price:         price,
            EstimatedDays: FormatDeliveryDays(&days),
        }
    }
    rates := []FormattedRate{
        quote("UPSDAP", "NextDayAir", 24.0, 1.2, 1),
        quote("UPSDAP", "Ground", 7.5, 0.55, 4),
        quote("USPS", "GroundAdvantage", 4.25, 0.35, 5),
    }
    sortRates(rates)
    return rates, nil
}
