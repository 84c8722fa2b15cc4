// ABOUTME: Per-IP rate limiting using token bucket algorithm.
// ABOUTME: Guards the public contact route against floods.

package main

import (
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiter settings.
type RateLimitConfig struct {
	Interval time.Duration // Time between allowed requests
	Burst    int           // Max burst size
}

// ContactRateLimitConfig allows one message per minute with a burst of 3.
func ContactRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Interval: time.Minute,
		Burst:    3,
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiterStore manages per-key rate limiters.
type rateLimiterStore struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	config   RateLimitConfig
}

func newRateLimiterStore(config RateLimitConfig) *rateLimiterStore {
	return &rateLimiterStore{
		limiters: make(map[string]*limiterEntry),
		config:   config,
	}
}

func (s *rateLimiterStore) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.limiters[key]; ok {
		e.lastSeen = time.Now()
		return e.limiter
	}
	e := &limiterEntry{
		limiter:  rate.NewLimiter(rate.Every(s.config.Interval), s.config.Burst),
		lastSeen: time.Now(),
	}
	s.limiters[key] = e
	return e.limiter
}

func (s *rateLimiterStore) setConfig(interval time.Duration, burst int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = RateLimitConfig{Interval: interval, Burst: burst}
	// Clear existing limiters so they pick up new config
	s.limiters = make(map[string]*limiterEntry)
}

// prune drops limiters not used since cutoff and returns how many went.
func (s *rateLimiterStore) prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(s.limiters, k)
			n++
		}
	}
	return n
}

func (s *rateLimiterStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// getClientIP returns the caller's address. Proxy headers are only trusted
// when TRUSTED_PROXY=1.
func getClientIP(r *http.Request) string {
	if os.Getenv("TRUSTED_PROXY") == "1" {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
