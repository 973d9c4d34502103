package router

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// EnforceJSONHandler rejects bodies that do not declare JSON.
func EnforceJSONHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType := r.Header.Get("Content-Type")
		if r.Body != nil && r.ContentLength > 0 && contentType != "" &&
			!strings.HasPrefix(contentType, "application/json") {
			http.Error(w, "Content-Type header is not application/json",
				http.StatusUnsupportedMediaType)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (api *API) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				w.Header().Set("Connection", "close")
				api.log.Error("panic in handler", zap.Any("panic", err),
					zap.String("path", r.URL.Path))
				http.Error(w, http.StatusText(http.StatusInternalServerError),
					http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// RealIP rewrites RemoteAddr from proxy headers when present.
func RealIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if i := strings.Index(xff, ","); i >= 0 {
				xff = xff[:i]
			}
			r.RemoteAddr = strings.TrimSpace(xff)
		} else if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
			r.RemoteAddr = xrip
		}
		next.ServeHTTP(w, r)
	})
}

// Heartbeat answers liveness probes before the rest of the chain runs.
func Heartbeat(endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if (r.Method == http.MethodGet || r.Method == http.MethodHead) &&
				strings.EqualFold(r.URL.Path, "/"+endpoint) {
				w.Header().Set("Content-Type", "text/plain")
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("."))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Logger logs one line per request with latency.
func Logger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote", r.RemoteAddr),
				zap.Duration("latency", time.Since(start)))
		})
	}
}

// Labels stamps common response headers.
func Labels(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Service", "transitx-tracker")
		next.ServeHTTP(w, r)
	})
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	limiterMu sync.Mutex
	limiters  = make(map[string]*ipLimiter)
)

func limiterFor(ip string, rps float64, burst int) *rate.Limiter {
	limiterMu.Lock()
	defer limiterMu.Unlock()

	entry, ok := limiters[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
		limiters[ip] = entry
	}
	entry.lastSeen = time.Now()

	// Entries idle for over 3 minutes are dropped so the map stays bounded.
	for k, v := range limiters {
		if time.Since(v.lastSeen) > 3*time.Minute {
			delete(limiters, k)
		}
	}
	return entry.limiter
}

// Limit rate-limits per client IP.
func Limit(next http.Handler) http.Handler {
	viper.SetDefault("HTTP_RATE_LIMIT_RPS", 20.0)
	viper.SetDefault("HTTP_RATE_LIMIT_BURST", 40)
	rps := viper.GetFloat64("HTTP_RATE_LIMIT_RPS")
	burst := viper.GetInt("HTTP_RATE_LIMIT_BURST")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !limiterFor(ip, rps, burst).Allow() {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", 1))
			http.Error(w, http.StatusText(http.StatusTooManyRequests),
				http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
