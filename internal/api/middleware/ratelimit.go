package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hearme/signbridge/internal/metrics"
)

// Scope selects who shares a rule's budget.
type Scope int

const (
	// PerClient gives every client address one budget.
	PerClient Scope = iota
	// PerRoom gives every client address one budget per room.
	PerRoom
)

// Rule limits requests with a matching method and path prefix. Rules with
// the same name share a bucket.
type Rule struct {
	Name     string
	Method   string
	Prefix   string
	Requests int
	Window   time.Duration
	Scope    Scope
}

// DefaultRules are checked in order and the first match applies. A relay
// poller asks twice a second, so polls get a larger budget than posts.
var DefaultRules = []Rule{
	{"predict", "POST", "/predict", 1200, time.Minute, PerClient},
	{"transcription-post", "POST", "/transcription/", 240, time.Minute, PerRoom},
	{"transcription-poll", "GET", "/transcription/", 300, time.Minute, PerRoom},
	{"gesture-post", "POST", "/gesture/", 240, time.Minute, PerRoom},
	{"gesture-poll", "GET", "/gesture/", 300, time.Minute, PerRoom},
	{"room-join", "POST", "/room/", 30, time.Minute, PerRoom},
	{"room-read", "GET", "/room/", 120, time.Minute, PerRoom},
	{"room-create", "POST", "/room", 20, time.Minute, PerClient},
	{"token", "POST", "/token", 30, time.Minute, PerClient},
	{"token", "POST", "/api/azure/token", 30, time.Minute, PerClient},
	{"user-id", "GET", "/my-user-id", 30, time.Minute, PerClient},
}

const (
	violationLimit  = 10
	violationWindow = time.Hour
	blockDuration   = 24 * time.Hour
)

// countScript increments a fixed-window counter, starting the window on the
// first hit, and returns the count and the milliseconds left in the window.
var countScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {n, redis.call('PTTL', KEYS[1])}
`)

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled bool     // Enable auto-blocking after repeated violations
	Rules            []Rule   // DefaultRules when empty
}

// RateLimiter applies fixed-window limits kept in Redis. When Redis is
// unreachable requests are let through.
type RateLimiter struct {
	client    *redis.Client
	rules     []Rule
	whitelist []netip.Prefix
	autoBlock bool
	logger    zerolog.Logger
	now       func() time.Time
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		client:    client,
		rules:     cfg.Rules,
		autoBlock: cfg.AutoBlockEnabled,
		logger:    logger,
		now:       time.Now,
	}
	if len(rl.rules) == 0 {
		rl.rules = DefaultRules
	}

	for _, entry := range cfg.Whitelist {
		p, err := parsePrefix(entry)
		if err != nil {
			logger.Warn().Str("entry", entry).Err(err).Msg("invalid rate limit whitelist entry")
			continue
		}
		rl.whitelist = append(rl.whitelist, p)
	}
	if len(rl.whitelist) > 0 {
		logger.Info().Int("entries", len(rl.whitelist)).Msg("rate limit whitelist configured")
	}

	return rl
}

// parsePrefix accepts a CIDR or a single address.
func parsePrefix(entry string) (netip.Prefix, error) {
	if strings.Contains(entry, "/") {
		return netip.ParsePrefix(entry)
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func (rl *RateLimiter) whitelisted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	for _, p := range rl.whitelist {
		if p.Contains(addr.Unmap()) {
			return true
		}
	}
	return false
}

// clientIP is the host part of RemoteAddr. chi's RealIP middleware has
// already replaced it with the forwarded address when there is one.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// match returns the first rule for the request.
func (rl *RateLimiter) match(r *http.Request) (Rule, bool) {
	for _, rule := range rl.rules {
		if r.Method == rule.Method && strings.HasPrefix(r.URL.Path, rule.Prefix) {
			return rule, true
		}
	}
	return Rule{}, false
}

// bucketKey names the counter for a rule, client and, for room rules, the
// room id taken from the first path segment after the prefix.
func bucketKey(rule Rule, r *http.Request, ip string) string {
	if rule.Scope == PerRoom {
		room := strings.TrimPrefix(r.URL.Path, rule.Prefix)
		if i := strings.IndexByte(room, '/'); i >= 0 {
			room = room[:i]
		}
		return fmt.Sprintf("ratelimit:%s:%s:%s", rule.Name, room, ip)
	}
	return fmt.Sprintf("ratelimit:%s:%s", rule.Name, ip)
}

// take counts one request against key. It reports whether the request fits
// the budget, how many remain and when the window ends.
func (rl *RateLimiter) take(ctx context.Context, key string, rule Rule) (bool, int, time.Time, error) {
	res, err := countScript.Run(ctx, rl.client, []string{key}, rule.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return true, rule.Requests, time.Time{}, err
	}
	count, ttl := res[0], time.Duration(res[1])*time.Millisecond
	if ttl < 0 {
		ttl = rule.Window
	}
	remaining := rule.Requests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return count <= int64(rule.Requests), remaining, rl.now().Add(ttl), nil
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if rl.whitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		if rl.autoBlock && rl.isBlocked(ctx, ip) {
			metrics.BlockedRequests.WithLabelValues("ip_blocked").Inc()
			rl.logger.Warn().
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("path", r.URL.Path).
				Msg("blocked client attempted request")
			writeJSONError(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		rule, ok := rl.match(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		key := bucketKey(rule, r, ip)
		allowed, remaining, resetAt, err := rl.take(ctx, key, rule)
		if err != nil {
			rl.logger.Warn().Err(err).Str("rule", rule.Name).Msg("rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rule.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			retry := int(resetAt.Sub(rl.now()).Round(time.Second).Seconds())
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			metrics.RateLimitHits.WithLabelValues(rule.Name).Inc()
			rl.logger.Warn().
				Str("event", "rate_limit_exceeded").
				Str("rule", rule.Name).
				Str("ip", ip).
				Str("path", r.URL.Path).
				Msg("rate limit exceeded")
			if rl.autoBlock {
				rl.recordViolation(ctx, ip)
			}
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func blockedKey(ip string) string   { return "ratelimit:blocked:" + ip }
func violationKey(ip string) string { return "ratelimit:violations:" + ip }

func (rl *RateLimiter) isBlocked(ctx context.Context, ip string) bool {
	n, err := rl.client.Exists(ctx, blockedKey(ip)).Result()
	return err == nil && n > 0
}

// recordViolation blocks a client once it has been limited violationLimit
// times within violationWindow.
func (rl *RateLimiter) recordViolation(ctx context.Context, ip string) {
	res, err := countScript.Run(ctx, rl.client, []string{violationKey(ip)}, violationWindow.Milliseconds()).Int64Slice()
	if err != nil || res[0] < violationLimit {
		return
	}
	if err := rl.client.Set(ctx, blockedKey(ip), res[0], blockDuration).Err(); err != nil {
		rl.logger.Warn().Err(err).Str("ip", ip).Msg("failed to block client")
		return
	}
	rl.logger.Warn().
		Str("event", "ip_auto_blocked").
		Str("ip", ip).
		Int64("violations", res[0]).
		Msg("client blocked for repeated rate limit violations")
}
