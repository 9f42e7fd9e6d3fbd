package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// mockClock is a controllable clock for testing.
type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock() *mockClock {
	return &mockClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestAllow_BucketLimit(t *testing.T) {
	clock := newMockClock()
	// Four requests per two seconds refills one token every 500ms.
	l := New(&Config{MaxPerWindow: 4, Window: 2 * time.Second, Clock: clock})
	defer l.Close()

	for i := 0; i < 4; i++ {
		result := l.Allow("203.0.113.50")
		if !result.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if result.Remaining != 3-i {
			t.Errorf("request %d Remaining = %d, want %d", i+1, result.Remaining, 3-i)
		}
	}

	result := l.Allow("203.0.113.50")
	if result.Allowed {
		t.Fatal("5th request should be blocked")
	}
	if result.Reason != "bucket_empty" {
		t.Errorf("Reason = %q, want %q", result.Reason, "bucket_empty")
	}
	if result.RetryAfter != 500*time.Millisecond {
		t.Errorf("RetryAfter = %v, want 500ms", result.RetryAfter)
	}

	clock.Advance(250 * time.Millisecond)
	result = l.Allow("203.0.113.50")
	if result.Allowed {
		t.Fatal("request before the next token should be blocked")
	}
	if result.RetryAfter != 250*time.Millisecond {
		t.Errorf("RetryAfter = %v, want 250ms", result.RetryAfter)
	}

	clock.Advance(250 * time.Millisecond)
	if !l.Allow("203.0.113.50").Allowed {
		t.Fatal("request after a refill should be allowed")
	}
	if l.Allow("203.0.113.50").Allowed {
		t.Fatal("a single refilled token should allow a single request")
	}

	clock.Advance(2 * time.Second)
	if got := l.Allow("203.0.113.50"); !got.Allowed || got.Remaining != 3 {
		t.Fatalf("after a full window Allow() = %+v, want allowed with 3 remaining", got)
	}
}

func TestAllow_SeparateClients(t *testing.T) {
	clock := newMockClock()
	l := New(&Config{MaxPerWindow: 1, Window: time.Minute, Clock: clock})
	defer l.Close()

	if !l.Allow("a").Allowed || !l.Allow("b").Allowed {
		t.Fatal("first request of each client should be allowed")
	}
	if l.Allow("a").Allowed {
		t.Fatal("second request of client a should be blocked")
	}
}

func TestCleanupDropsExpiredEntries(t *testing.T) {
	clock := newMockClock()
	l := New(&Config{MaxPerWindow: 5, Window: time.Minute, Clock: clock})
	defer l.Close()

	l.Allow("a")
	clock.Advance(30 * time.Second)
	l.Allow("b")
	clock.Advance(40 * time.Second)
	l.cleanup()

	if got := l.Len(); got != 1 {
		t.Fatalf("Len() after cleanup = %d, want 1", got)
	}
}

func TestNew_NilConfig(t *testing.T) {
	l := New(nil)
	defer l.Close()

	if l.config.MaxPerWindow != 60 || l.config.Window != time.Minute {
		t.Errorf("New(nil) config = %+v, want defaults", l.config)
	}
}

func TestConcurrentAccess(t *testing.T) {
	l := New(&Config{MaxPerWindow: 50, Window: time.Hour, Clock: newMockClock()})
	defer l.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Fatalf("allowed = %d, want 50", allowed)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		realIP     string
		remoteAddr string
		trustProxy bool
		want       string
	}{
		{name: "rightmost public forwarded hop", xff: "203.0.113.50, 10.0.0.1", remoteAddr: "10.0.0.1:12345", trustProxy: true, want: "203.0.113.50"},
		{name: "all forwarded hops private", xff: "192.168.1.1, 10.0.0.1", remoteAddr: "10.0.0.1:12345", trustProxy: true, want: "10.0.0.1"},
		{name: "real ip header", realIP: "203.0.113.51", remoteAddr: "10.0.0.1:12345", trustProxy: true, want: "203.0.113.51"},
		{name: "untrusted forwarded header ignored", xff: "1.2.3.4", remoteAddr: "192.168.1.100:54321", want: "192.168.1.100"},
		{name: "untrusted real ip header ignored", realIP: "203.0.113.51", remoteAddr: "192.168.1.100:54321", want: "192.168.1.100"},
		{name: "remote addr only", remoteAddr: "192.168.1.100:54321", trustProxy: true, want: "192.168.1.100"},
		{name: "remote addr without port", remoteAddr: "192.168.1.100", want: "192.168.1.100"},
		{name: "ipv6 remote addr", remoteAddr: "[2001:db8::1]:443", want: "2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/v1/quotes", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := GetClientIP(r, tt.trustProxy); got != tt.want {
				t.Fatalf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := map[string]bool{
		"10.0.0.1":             true,
		"172.31.255.255":       true,
		"192.168.1.1":          true,
		"127.0.0.1":            true,
		"::1":                  true,
		"fc00::1":              true,
		"fe80::1":              true,
		"::ffff:192.168.1.1":   true,
		"::ffff:8.8.8.8":       false,
		"203.0.113.50":         false,
		"2001:4860:4860::8888": false,
		"invalid":              false,
		"":                     false,
	}
	for ip, want := range tests {
		if got := isPrivateIP(ip); got != want {
			t.Fatalf("isPrivateIP(%q) = %v, want %v", ip, got, want)
		}
	}
}
