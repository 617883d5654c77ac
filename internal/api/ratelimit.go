package api

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/star/groundtrack/internal/httputil"
	"github.com/star/groundtrack/internal/metrics"
)

const (
	maxTrackedClients = 10000
	clientIdleTTL     = 10 * time.Minute
)

// Probes and scrapes are never throttled.
var unlimitedPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// ipRateLimiter keeps one token bucket per client IP. The table is bounded
// and entries expire after clientIdleTTL without requests.
type ipRateLimiter struct {
	clients    *expirable.LRU[string, *rate.Limiter]
	r          rate.Limit
	b          int
	trustProxy bool
}

func newIPRateLimiter(perSecond float64, burst int, trustProxy bool, capacity int) *ipRateLimiter {
	if burst < 1 {
		burst = max(1, int(perSecond))
	}
	return &ipRateLimiter{
		clients:    expirable.NewLRU[string, *rate.Limiter](capacity, nil, clientIdleTTL),
		r:          rate.Limit(perSecond),
		b:          burst,
		trustProxy: trustProxy,
	}
}

func (l *ipRateLimiter) get(ip string) *rate.Limiter {
	lim, ok := l.clients.Get(ip)
	if !ok {
		lim = rate.NewLimiter(l.r, l.b)
	}
	// Re-adding refreshes the idle expiry.
	l.clients.Add(ip, lim)
	return lim
}

func (l *ipRateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if unlimitedPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		if !l.get(httputil.ClientIP(r, l.trustProxy)).Allow() {
			metrics.RecordRateLimited()
			retry := max(1, int(math.Ceil(1/float64(l.r))))
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			httputil.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
