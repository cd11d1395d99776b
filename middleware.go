package main

import (
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SecurityHeaders middleware adds security headers
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		next.ServeHTTP(w, r)
	})
}

// Logging middleware logs requests
func (a *App) Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		a.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", wrapped.statusCode),
			zap.Duration("duration", time.Since(start)))
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// ipThrottle keeps an in-memory token bucket per client IP. This is a cheap
// first line in front of the auth endpoints; the durable per-identity
// limiter lives in the store.
type ipThrottle struct {
	limiters  map[string]*rate.Limiter
	mu        sync.RWMutex
	perMinute int
}

func newIPThrottle(perMinute int) *ipThrottle {
	return &ipThrottle{
		limiters:  make(map[string]*rate.Limiter),
		perMinute: perMinute,
	}
}

func (t *ipThrottle) getLimiter(ip string) *rate.Limiter {
	t.mu.RLock()
	limiter, exists := t.limiters[ip]
	t.mu.RUnlock()

	if !exists {
		t.mu.Lock()
		// Double-check after acquiring write lock
		limiter, exists = t.limiters[ip]
		if !exists {
			limiter = rate.NewLimiter(rate.Limit(t.perMinute)/60, t.perMinute)
			t.limiters[ip] = limiter
		}
		t.mu.Unlock()
	}

	return limiter
}

// Throttle middleware enforces the per-IP request budget.
func (a *App) Throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.throttle.getLimiter(clientIP(r)).Allow() {
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth wraps protected handlers. Unauthenticated requests get the
// requested path stored as the post-login target and a redirect to login.
func (a *App) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc, err := a.session(r)
		if err != nil {
			a.serverError(w, r, err)
			return
		}
		if _, ok := sc.CurrentUserID(); !ok {
			sc.SetRedirectTarget(r.URL.RequestURI())
			if err := sc.Save(r, w); err != nil {
				a.serverError(w, r, err)
				return
			}
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		}
		next(w, r)
	}
}

// requireGuest redirects an authenticated caller away from guest-only pages
// to the default landing target.
func (a *App) requireGuest(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc, err := a.session(r)
		if err != nil {
			a.serverError(w, r, err)
			return
		}
		if _, ok := sc.CurrentUserID(); ok {
			http.Redirect(w, r, defaultRedirectAfterLogin, http.StatusSeeOther)
			return
		}
		next(w, r)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
