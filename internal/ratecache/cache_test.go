package ratecache

import (
    "context"
    "math"
    "sync"
    "testing"
    "time"

    "github.com/shopspring/decimal"

    "shipestimate/internal/rate"
)

type fakeClock struct {
    mu  sync.Mutex
    now time.Time
}

func newFakeClock() *fakeClock {
    return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
    f.mu.Lock()
    defer f.mu.Unlock()
    return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
    f.mu.Lock()
    f.now = f.now.Add(d)
    f.mu.Unlock()
}

func sampleRates(price string) []rate.FormattedRate {
    return []rate.FormattedRate{{Carrier: "usps", Method: "GroundAdvantage", Price: decimal.RequireFromString(price)}}
}

func TestNewKey_RoundsToNearestOunce(t *testing.T) {
    cases := []struct {
        lbs  float64
        want int64
    }{
        {1.0, 16},
        {1.01, 16},   // 16.16oz
        {1.03, 16},   // 16.48oz
        {1.04, 17},   // 16.64oz
        {1.03125, 17}, // 16.5oz rounds half up
        {2, 32},
    }
    for _, tc := range cases {
        if got := NewKey(tc.lbs*16, "60614").WeightOz; got != tc.want {
            t.Errorf("NewKey(%v lbs) = %d oz, want %d", tc.lbs, got, tc.want)
        }
    }
    if s := NewKey(32, "60614").String(); s != "32:60614" {
        t.Fatalf("unexpected key string %q", s)
    }
}

func TestNewKey_ClampsOutOfRangeWeights(t *testing.T) {
    cases := []struct {
        oz   float64
        want int64
    }{
        {1e30, MaxKeyOz},
        {math.Inf(1), MaxKeyOz},
        {float64(MaxKeyOz) + 4096, MaxKeyOz},
        {math.Inf(-1), 0},
        {-12.4, 0},
        {math.NaN(), 0},
        {float64(MaxKeyOz), MaxKeyOz},
    }
    for _, tc := range cases {
        if got := NewKey(tc.oz, "60614").WeightOz; got != tc.want {
            t.Errorf("NewKey(%v) = %d, want %d", tc.oz, got, tc.want)
        }
    }
}

func TestTTL_ReportsConfiguredValue(t *testing.T) {
    if got := New().TTL(); got != DefaultTTL {
        t.Fatalf("default TTL = %s, want %s", got, DefaultTTL)
    }
    if got := New(WithTTL(time.Minute)).TTL(); got != time.Minute {
        t.Fatalf("TTL = %s, want 1m", got)
    }
}

func TestGetSet_HitWithinTTL(t *testing.T) {
    clk := newFakeClock()
    c := New(WithClock(clk.Now))

    if _, ok := c.Get(32, "60614"); ok {
        t.Fatalf("expected miss on empty cache")
    }
    c.Set(32, "60614", sampleRates("8.05"))

    // 32.3oz rounds to the same key
    got, ok := c.Get(32.3, "60614")
    if !ok {
        t.Fatalf("expected hit")
    }
    if len(got.Rates) != 1 || !got.Rates[0].Price.Equal(decimal.RequireFromString("8.05")) {
        t.Fatalf("unexpected cached rates: %+v", got.Rates)
    }
    if !got.ExpiresAt.Equal(clk.Now().Add(DefaultTTL)) {
        t.Fatalf("unexpected expiry: %v", got.ExpiresAt)
    }
    if _, ok := c.Get(32, "60615"); ok {
        t.Fatalf("different zip must miss")
    }
    st := c.Stats()
    if st.Hits != 1 || st.Misses != 2 || st.Sets != 1 || st.Entries != 1 {
        t.Fatalf("unexpected stats: %+v", st)
    }
}

func TestGet_ExpiredIsMissButNotDeleted(t *testing.T) {
    clk := newFakeClock()
    c := New(WithClock(clk.Now), WithTTL(time.Minute))
    c.Set(16, "60614", sampleRates("5.00"))

    clk.Advance(59 * time.Second)
    if _, ok := c.Get(16, "60614"); !ok {
        t.Fatalf("expected hit before expiry")
    }
    clk.Advance(time.Second) // now == expiresAt
    if _, ok := c.Get(16, "60614"); ok {
        t.Fatalf("expected miss at expiresAt")
    }
    if c.Len() != 1 {
        t.Fatalf("Get must not delete stale entries, len=%d", c.Len())
    }
    if n := c.Sweep(); n != 1 {
        t.Fatalf("expected sweep to remove 1, got %d", n)
    }
    if c.Len() != 0 {
        t.Fatalf("expected empty cache after sweep")
    }
}

func TestSet_OverwritesAndRefreshesExpiry(t *testing.T) {
    clk := newFakeClock()
    c := New(WithClock(clk.Now), WithTTL(time.Minute))
    c.Set(16, "60614", sampleRates("5.00"))
    clk.Advance(50 * time.Second)
    c.Set(16, "60614", sampleRates("6.00"))
    clk.Advance(50 * time.Second)

    got, ok := c.Get(16, "60614")
    if !ok {
        t.Fatalf("expected hit after overwrite")
    }
    if !got.Rates[0].Price.Equal(decimal.RequireFromString("6.00")) {
        t.Fatalf("expected last write to win, got %s", got.Rates[0].Price)
    }
}

func TestSweep_KeepsLiveEntries(t *testing.T) {
    clk := newFakeClock()
    c := New(WithClock(clk.Now), WithTTL(time.Minute))
    c.Set(16, "11111", sampleRates("1.00"))
    clk.Advance(30 * time.Second)
    c.Set(16, "22222", sampleRates("2.00"))
    clk.Advance(31 * time.Second)

    if n := c.Sweep(); n != 1 {
        t.Fatalf("expected 1 removed, got %d", n)
    }
    if _, ok := c.Get(16, "22222"); !ok {
        t.Fatalf("live entry should survive sweep")
    }
    if c.Stats().Swept != 1 {
        t.Fatalf("unexpected swept counter: %+v", c.Stats())
    }
}

func TestSet_BoundedEvictsSoonestExpiry(t *testing.T) {
    clk := newFakeClock()
    c := New(WithClock(clk.Now), WithTTL(time.Minute), WithMaxEntries(2))
    c.Set(16, "11111", sampleRates("1.00"))
    clk.Advance(time.Second)
    c.Set(16, "22222", sampleRates("2.00"))
    clk.Advance(time.Second)
    c.Set(16, "33333", sampleRates("3.00"))

    if c.Len() != 2 {
        t.Fatalf("expected bounded size 2, got %d", c.Len())
    }
    if _, ok := c.Get(16, "11111"); ok {
        t.Fatalf("oldest entry should have been evicted")
    }
    if c.Stats().Evicted != 1 {
        t.Fatalf("unexpected evicted counter: %+v", c.Stats())
    }

    // overwriting an existing key never evicts
    c.Set(16, "22222", sampleRates("2.50"))
    if c.Len() != 2 || c.Stats().Evicted != 1 {
        t.Fatalf("overwrite must not evict: %+v", c.Stats())
    }
}

func TestRun_SweepsOnTickerAndStops(t *testing.T) {
    c := New(WithTTL(time.Millisecond), WithSweepEvery(5*time.Millisecond))
    c.Set(16, "60614", sampleRates("1.00"))

    ctx, cancel := context.WithCancel(context.Background())
    done := make(chan struct{})
    go func() {
        c.Run(ctx)
        close(done)
    }()

    deadline := time.Now().Add(time.Second)
    for c.Len() != 0 {
        if time.Now().After(deadline) {
            cancel()
            t.Fatalf("sweeper did not remove expired entry")
        }
        time.Sleep(2 * time.Millisecond)
    }
    cancel()
    select {
    case <-done:
    case <-time.After(time.Second):
        t.Fatalf("Run did not return after cancel")
    }
}

func TestConcurrentAccess(t *testing.T) {
    c := New()
    var wg sync.WaitGroup
    for i := 0; i < 8; i++ {
        wg.Add(1)
        go func(i int) {
            defer wg.Done()
            for j := 0; j < 200; j++ {
                c.Set(float64(j%10), "60614", sampleRates("1.00"))
                c.Get(float64(j%10), "60614")
                if j%50 == 0 {
                    c.Sweep()
                }
            }
        }(i)
    }
    wg.Wait()
    if c.Len() > 10 {
        t.Fatalf("unexpected entry count %d", c.Len())
    }
}
