package ratelimit

import (
    "context"
    "sync"
    "time"
)

// Memory is an in-process fixed-window counter per key. A key's window opens
// on its first request; closed windows are dropped by Cleanup.
type Memory struct {
    mu           sync.Mutex
    entries      map[string]*windowEntry
    limit        int
    window       time.Duration
    cleanupEvery time.Duration
    now          func() time.Time
}

type windowEntry struct {
    resetAt time.Time
    count   int64
}

type MemoryOption func(*Memory)

func WithCleanupEvery(d time.Duration) MemoryOption {
    return func(m *Memory) { m.cleanupEvery = d }
}

func WithMemoryClock(now func() time.Time) MemoryOption {
    return func(m *Memory) { m.now = now }
}

func NewMemory(limit int, window time.Duration, opts ...MemoryOption) *Memory {
    if limit <= 0 {
        limit = DefaultLimit
    }
    if window <= 0 {
        window = DefaultWindow
    }
    m := &Memory{
        entries:      make(map[string]*windowEntry),
        limit:        limit,
        window:       window,
        cleanupEvery: 2 * time.Minute,
        now:          time.Now,
    }
    for _, opt := range opts {
        opt(m)
    }
    return m
}

func (m *Memory) Allow(ctx context.Context, key string) (Decision, error) {
    now := m.now()

    m.mu.Lock()
    ent, ok := m.entries[key]
    if !ok || !now.Before(ent.resetAt) {
        ent = &windowEntry{resetAt: now.Add(m.window)}
        m.entries[key] = ent
    }
    ent.count++
    count, resetAt := ent.count, ent.resetAt
    m.mu.Unlock()

    return decide(count, m.limit, resetAt, now), nil
}

// Cleanup drops counters whose window has closed.
func (m *Memory) Cleanup() int {
    now := m.now()

    m.mu.Lock()
    defer m.mu.Unlock()

    removed := 0
    for k, ent := range m.entries {
        if !now.Before(ent.resetAt) {
            delete(m.entries, k)
            removed++
        }
    }
    return removed
}

func (m *Memory) Len() int {
    m.mu.Lock()
    defer m.mu.Unlock()
    return len(m.entries)
}

// StartJanitor runs Cleanup periodically until ctx is done.
func (m *Memory) StartJanitor(ctx context.Context) {
    if m.cleanupEvery <= 0 {
        return
    }
    t := time.NewTicker(m.cleanupEvery)
    go func() {
        defer t.Stop()
        for {
            select {
            case <-ctx.Done():
                return
            case <-t.C:
                m.Cleanup()
            }
        }
    }()
}
