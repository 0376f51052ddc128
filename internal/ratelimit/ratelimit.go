// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package ratelimit throttles requests per client with token buckets.
package ratelimit

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per client key.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// New creates a limiter allowing rps requests per second with the given burst.
func New(rps float64, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(rps),
		burst:    burst,
	}
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = limiter
	}
	return limiter
}

// Allow reports whether a request for key may proceed now.
func (l *Limiter) Allow(key string) bool {
	return l.get(key).Allow()
}

// Cleanup drops buckets that have refilled completely. A fresh bucket would
// start in the same state, so throttled clients are never reset.
func (l *Limiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, limiter := range l.limiters {
		if limiter.Tokens() >= float64(l.burst) {
			delete(l.limiters, key)
		}
	}
}

// StartCleanup runs Cleanup every interval until stop is closed.
func (l *Limiter) StartCleanup(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Cleanup()
			case <-stop:
				return
			}
		}
	}()
}

// Middleware rejects requests over the limit with 429, keyed by client IP.
// The IP comes from the Echo instance's IPExtractor. A zero or negative rate
// disables throttling.
func (l *Limiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if l.rate <= 0 {
				return next(c)
			}

			key := c.RealIP()
			if !l.Allow(key) {
				slog.Warn("rate_limit_exceeded",
					"ip", key,
					"path", c.Request().URL.Path,
					"method", c.Request().Method,
				)
				c.Response().Header().Set("Retry-After", "1")
				return echo.NewHTTPError(http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests))
			}
			return next(c)
		}
	}
}
