// Package ratelimit implements fixed-window request quotas per caller key.
//
// Two backends share the Limiter contract: Memory keeps counters in the
// process, Redis keeps them in a shared Redis so several replicas enforce one
// quota. In both, a key's window opens on its first request and lasts for the
// configured length.
package ratelimit

import (
    "context"
    "net"
    "net/http"
    "strings"
    "time"
)

const (
    DefaultLimit  = 20
    DefaultWindow = 60 * time.Second
)

// Decision is the outcome of a single Allow call.
type Decision struct {
    Allowed    bool
    Remaining  int
    RetryAfter time.Duration
}

// Limiter decides whether key may make one more request now.
type Limiter interface {
    Allow(ctx context.Context, key string) (Decision, error)
}

func decide(count int64, limit int, resetAt, now time.Time) Decision {
    if count > int64(limit) {
        return Decision{Allowed: false, RetryAfter: resetAt.Sub(now)}
    }
    return Decision{Allowed: true, Remaining: limit - int(count)}
}

// ClientIP returns the caller address used as limiter key.
// With trustXFF the first X-Forwarded-For entry wins (the original client
// behind the storefront proxy); otherwise RemoteAddr's host is used.
func ClientIP(r *http.Request, trustXFF bool) string {
    if trustXFF {
        if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
            first, _, _ := strings.Cut(xff, ",")
            if ip := strings.TrimSpace(first); ip != "" {
                return ip
            }
        }
    }
    host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
    if err == nil && host != "" {
        return host
    }
    if r.RemoteAddr != "" {
        return r.RemoteAddr
    }
    return "unknown"
}
