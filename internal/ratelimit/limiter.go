// Package ratelimit limits how often a client may request quotes. Each client
// key gets a token bucket holding MaxPerWindow tokens that refills over Window.
package ratelimit

import (
	"context"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Clock interface for testing time-dependent behavior.
type Clock interface {
	Now() time.Time
}

// realClock implements Clock using the system time.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Config holds rate limit configuration.
type Config struct {
	MaxPerWindow  int           // Burst size and requests refilled per window (default: 60)
	Window        time.Duration // Time to refill a full bucket (default: 1m)
	CleanupPeriod time.Duration // How often idle clients are dropped (default: 5m)

	// Clock for testing (nil uses real time)
	Clock Clock
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxPerWindow:  60,
		Window:        time.Minute,
		CleanupPeriod: 5 * time.Minute,
	}
}

// LimitResult contains the result of a rate limit check.
type LimitResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	Reason     string // For logging
}

// client is one key's bucket and when it was last used.
type client struct {
	limiter *rate.Limiter
	lastAt  time.Time
}

// Limiter keeps a token bucket per client key.
type Limiter struct {
	config  *Config
	clock   Clock
	refill  rate.Limit
	mu      sync.Mutex
	clients map[string]*client

	// Cleanup goroutine management
	cleanupCtx    context.Context
	cleanupCancel context.CancelFunc
	cleanupOnce   sync.Once
	cleanupWg     sync.WaitGroup
}

// New creates a new rate limiter with the given config.
func New(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	defaults := DefaultConfig()
	if cfg.MaxPerWindow <= 0 {
		cfg.MaxPerWindow = defaults.MaxPerWindow
	}
	if cfg.Window <= 0 {
		cfg.Window = defaults.Window
	}
	if cfg.CleanupPeriod <= 0 {
		cfg.CleanupPeriod = defaults.CleanupPeriod
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Limiter{
		config:        cfg,
		clock:         clock,
		refill:        rate.Every(cfg.Window / time.Duration(cfg.MaxPerWindow)),
		clients:       make(map[string]*client),
		cleanupCtx:    ctx,
		cleanupCancel: cancel,
	}
}

// Close stops the cleanup goroutine and releases resources.
func (l *Limiter) Close() {
	l.cleanupCancel()
	l.cleanupWg.Wait()
}

// Allow takes one token from key's bucket. A rejected request consumes
// nothing; RetryAfter is the wait until the next token.
func (l *Limiter) Allow(key string) LimitResult {
	l.startCleanup()
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.clients[key]
	if c == nil {
		c = &client{limiter: rate.NewLimiter(l.refill, l.config.MaxPerWindow)}
		l.clients[key] = c
	}
	c.lastAt = now

	if c.limiter.AllowN(now, 1) {
		return LimitResult{Allowed: true, Remaining: remaining(c.limiter, now)}
	}
	reservation := c.limiter.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	reservation.CancelAt(now)
	return LimitResult{
		Allowed:    false,
		RetryAfter: delay,
		Reason:     "bucket_empty",
	}
}

func remaining(limiter *rate.Limiter, now time.Time) int {
	tokens := math.Floor(limiter.TokensAt(now) + 1e-9)
	if tokens < 0 {
		return 0
	}
	return int(tokens)
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *Limiter) startCleanup() {
	l.cleanupOnce.Do(func() {
		l.cleanupWg.Add(1)
		go func() {
			defer l.cleanupWg.Done()
			ticker := time.NewTicker(l.config.CleanupPeriod)
			defer ticker.Stop()
			for {
				select {
				case <-l.cleanupCtx.Done():
					return
				case <-ticker.C:
					l.cleanup()
				}
			}
		}()
	})
}

// cleanup drops clients idle for a full window, whose buckets have refilled.
func (l *Limiter) cleanup() {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, c := range l.clients {
		if now.Sub(c.lastAt) >= l.config.Window {
			delete(l.clients, k)
		}
	}
}

// GetClientIP returns the address a request is counted under. Forwarding
// headers are honoured only when trustProxy is set; the rightmost public
// X-Forwarded-For entry wins since earlier entries are client supplied.
func GetClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip, ok := forwardedFor(r.Header.Get("X-Forwarded-For")); ok {
			return ip
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}
	return remoteIP(r.RemoteAddr)
}

func forwardedFor(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	hops := strings.Split(header, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop != "" && !isPrivateIP(hop) {
			return hop, true
		}
	}
	return strings.TrimSpace(hops[len(hops)-1]), true
}

// remoteIP strips the port from addr. Addresses without a port, such as
// unix sockets, come back unchanged.
func remoteIP(addr string) string {
	if ap, err := netip.ParseAddrPort(addr); err == nil {
		return ap.Addr().Unmap().String()
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// isPrivateIP reports whether ip is loopback, link-local or in a private
// range. IPv4-mapped IPv6 addresses match as their IPv4 form.
func isPrivateIP(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast()
}

// LogRateLimitExceeded logs a rejected request.
func LogRateLimitExceeded(limitType, ip, reason string) {
	log.Warn().
		Str("event", "rate_limit_exceeded").
		Str("type", limitType).
		Str("ip", ip).
		Str("reason", reason).
		Msg("Rate limit exceeded")
}
