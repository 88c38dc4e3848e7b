// Package admission is the request gate spec §7 describes: API-key and
// IP-allowlist checks, per-remote-address rate limiting (in-process or,
// when configured, backed by Redis for multi-instance deployments), a
// global connection cap, and the Prometheus/stats surfacing the gate
// exposes at /metrics and /stats.
package admission

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/jordigilh/devctx-mcp/internal/config"
	"github.com/jordigilh/devctx-mcp/internal/errors"
)

// Gate enforces spec §7's admission checks ahead of the MCP dispatcher.
// It is safe for concurrent use across every transport.
type Gate struct {
	apiKeys    map[string]struct{}
	allowedIPs []*net.IPNet
	limiter    limiter
	maxConns   int
	timeout    time.Duration
	perSeconds int
	log        *logrus.Entry
	metrics    *Metrics

	mu     sync.Mutex
	active int
}

// limiter abstracts the in-process and Redis-backed rate-limit strategies
// so Gate.Allow does not branch on which one is configured.
type limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

func New(cfg config.AdmissionConfig, log *logrus.Logger, metrics *Metrics) *Gate {
	keys := make(map[string]struct{}, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		keys[k] = struct{}{}
	}

	var nets []*net.IPNet
	for _, cidr := range cfg.AllowedIPs {
		if !strings.Contains(cidr, "/") {
			cidr += "/32"
			if strings.Contains(cidr, ":") {
				cidr = strings.TrimSuffix(cidr, "/32") + "/128"
			}
		}
		if _, ipnet, err := net.ParseCIDR(cidr); err == nil {
			nets = append(nets, ipnet)
		}
	}

	burst := cfg.RateLimit
	if burst <= 0 {
		burst = 60
	}
	perSeconds := cfg.RatePerSeconds
	if perSeconds <= 0 {
		perSeconds = 60
	}
	// A token bucket of `rate` tokens refilling over `per_seconds` seconds
	// (spec §4.H / §9) refills continuously at rate/per_seconds tokens per
	// second — golang.org/x/time/rate.Limit is already a per-second unit, so
	// this conversion, not rate*60/per_seconds, is what rate.NewLimiter wants.
	ratePerSec := float64(burst) / float64(perSeconds)

	var lim limiter
	if cfg.RedisAddr != "" {
		lim = newRedisLimiter(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), burst, perSeconds)
	} else {
		lim = newLocalLimiter(ratePerSec, burst)
	}

	return &Gate{
		apiKeys:    keys,
		allowedIPs: nets,
		limiter:    lim,
		maxConns:   cfg.MaxConnections,
		timeout:    cfg.RequestTimeout(),
		perSeconds: perSeconds,
		log:        log.WithField("component", "admission"),
		metrics:    metrics,
	}
}

// Check runs every admission rule for one inbound request, returning a
// structured AppError (Validation for a bad key or a disallowed remote
// address, RateLimit for a throttled remote) when the request should be
// rejected. The connection cap is enforced separately by Acquire.
func (g *Gate) Check(ctx context.Context, remoteAddr, apiKey string) error {
	if len(g.apiKeys) > 0 {
		if _, ok := g.apiKeys[apiKey]; !ok {
			g.metrics.recordRejected("bad_api_key")
			return errors.NewValidationError("invalid or missing API key")
		}
	}

	if len(g.allowedIPs) > 0 && !g.ipAllowed(remoteAddr) {
		g.metrics.recordRejected("ip_not_allowed")
		return errors.NewValidationError("remote address not allowed")
	}

	allowed, err := g.limiter.Allow(ctx, remoteKey(remoteAddr))
	if err != nil {
		g.log.WithError(err).Warn("rate limiter backend error, failing open")
	} else if !allowed {
		g.metrics.recordRejected("rate_limited")
		return errors.NewRateLimitError(g.perSeconds)
	}

	return nil
}

// Acquire reserves one of the global connection slots, returning a
// release func to call (typically deferred) once the connection ends.
func (g *Gate) Acquire() (release func(), err error) {
	g.mu.Lock()
	if g.maxConns > 0 && g.active >= g.maxConns {
		g.mu.Unlock()
		g.metrics.recordRejected("max_connections")
		return nil, errors.NewUnavailableError("connection limit reached")
	}
	g.active++
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		g.active--
		g.mu.Unlock()
	}, nil
}

func (g *Gate) ipAllowed(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, n := range g.allowedIPs {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func remoteKey(remoteAddr string) string {
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return h
	}
	return remoteAddr
}

// Middleware wraps an http.Handler with Check and Acquire, extracting the
// API key from the Authorization: Bearer header and rejecting with the
// AppError's HTTP status when a check fails.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		release, err := g.Acquire()
		if err != nil {
			writeError(w, err)
			return
		}
		defer release()

		apiKey := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		ctx, cancel := context.WithTimeout(r.Context(), g.timeout)
		defer cancel()

		if err := g.Check(ctx, r.RemoteAddr, apiKey); err != nil {
			writeError(w, err)
			return
		}

		g.metrics.recordAccepted()
		started := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		g.metrics.Observe(time.Since(started))
	})
}

// StatsHandler exposes the /stats JSON summary (spec §4.H).
func (g *Gate) StatsHandler() http.Handler {
	return g.metrics.StatsHandler()
}

// MetricsHandler exposes the /metrics Prometheus exposition (spec §4.H).
func (g *Gate) MetricsHandler() http.Handler {
	return g.metrics.Handler()
}

func writeError(w http.ResponseWriter, err error) {
	var appErr *errors.AppError
	status := http.StatusInternalServerError
	msg := err.Error()
	retryAfter := 0
	if errors.As(err, &appErr) {
		status = appErr.StatusCode
		msg = appErr.Message
		retryAfter = appErr.RetryAfterSeconds
	}

	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":       msg,
			"retry_after": retryAfter,
		})
		return
	}
	http.Error(w, msg, status)
}

// newLocalLimiter backs Allow with an in-process token bucket per remote
// key, matching golang.org/x/time/rate's standard per-key pattern: a
// continuous refill of ratePerSec tokens/second up to a burst capacity of
// `burst` (spec §4.H's `(rate, per_seconds)` token bucket).
func newLocalLimiter(ratePerSec float64, burst int) *localLimiter {
	return &localLimiter{ratePerSec: ratePerSec, burst: burst, buckets: make(map[string]*rate.Limiter)}
}

type localLimiter struct {
	ratePerSec float64
	burst      int
	mu         sync.Mutex
	buckets    map[string]*rate.Limiter
}

func (l *localLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(rate.Limit(l.ratePerSec), l.burst)
		l.buckets[key] = b
	}
	l.mu.Unlock()
	return b.Allow(), nil
}

// newRedisLimiter backs Allow with a fixed-window counter in Redis so rate
// limits hold across a multi-instance deployment (spec §7's "optional
// distributed rate limiting"): at most `burst` requests per `perSeconds`-
// second window per key, matching the local limiter's (rate, per_seconds)
// parameters rather than an always-one-second window.
func newRedisLimiter(client *redis.Client, burst, perSeconds int) *redisLimiter {
	return &redisLimiter{client: client, limit: burst, window: time.Duration(perSeconds) * time.Second}
}

type redisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func (l *redisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	windowIndex := time.Now().UnixNano() / int64(l.window)
	redisKey := "devctx:ratelimit:" + key + ":" + strconv.FormatInt(windowIndex, 10)
	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		l.client.Expire(ctx, redisKey, l.window)
	}
	return int(count) <= l.limit, nil
}
