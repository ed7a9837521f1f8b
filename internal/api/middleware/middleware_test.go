package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

var testRules = []Rule{
	{"gesture-post", "POST", "/gesture/", 2, time.Hour, PerRoom},
	{"gesture-poll", "GET", "/gesture/", 100, time.Hour, PerRoom},
	{"room-join", "POST", "/room/", 100, time.Hour, PerRoom},
	{"room-create", "POST", "/room", 3, time.Hour, PerClient},
}

func newTestLimiter(t *testing.T, cfg RateLimiterConfig) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	if cfg.Rules == nil {
		cfg.Rules = testRules
	}
	return NewRateLimiter(client, zerolog.Nop(), cfg), mr
}

func send(h http.Handler, method, path, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = ip + ":40000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func post(h http.Handler, path, ip string) *httptest.ResponseRecorder {
	return send(h, "POST", path, ip)
}

func TestRateLimiter_Limits(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimiterConfig{})
	h := rl.Middleware(okHandler)

	for i := 0; i < 3; i++ {
		rec := post(h, "/room", "10.0.0.1")
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rec.Code)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "3" {
			t.Errorf("limit header = %q", rec.Header().Get("X-RateLimit-Limit"))
		}
		if want := strconv.Itoa(2 - i); rec.Header().Get("X-RateLimit-Remaining") != want {
			t.Errorf("remaining = %q, want %s", rec.Header().Get("X-RateLimit-Remaining"), want)
		}
	}

	rec := post(h, "/room", "10.0.0.1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("fourth request: status = %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "3600" {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	if !strings.Contains(rec.Body.String(), `"error":"rate limit exceeded"`) {
		t.Errorf("body = %s", rec.Body.String())
	}

	// Other clients keep their own budget.
	if rec := post(h, "/room", "10.0.0.2"); rec.Code != http.StatusOK {
		t.Errorf("other ip: status = %d", rec.Code)
	}
	// The first matching rule wins, so room sub-routes use their own budget.
	if rec := post(h, "/room/demo/add-participant", "10.0.0.1"); rec.Code != http.StatusOK {
		t.Errorf("add-participant: status = %d", rec.Code)
	}
	// Unlisted routes are not limited.
	if rec := post(h, "/elsewhere", "10.0.0.1"); rec.Code != http.StatusOK || rec.Header().Get("X-RateLimit-Limit") != "" {
		t.Errorf("unlisted: status = %d", rec.Code)
	}
}

func TestRateLimiter_WindowExpires(t *testing.T) {
	rl, mr := newTestLimiter(t, RateLimiterConfig{})
	h := rl.Middleware(okHandler)

	for i := 0; i < 3; i++ {
		post(h, "/room", "10.0.0.1")
	}
	if rec := post(h, "/room", "10.0.0.1"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", rec.Code)
	}
	mr.FastForward(time.Hour + time.Second)
	if rec := post(h, "/room", "10.0.0.1"); rec.Code != http.StatusOK {
		t.Errorf("after window: status = %d", rec.Code)
	}
}

func TestRateLimiter_RoomScope(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimiterConfig{})
	h := rl.Middleware(okHandler)

	for i := 0; i < 2; i++ {
		if rec := post(h, "/gesture/room-a", "10.0.0.1"); rec.Code != http.StatusOK {
			t.Fatalf("post %d: status = %d", i, rec.Code)
		}
	}
	if rec := post(h, "/gesture/room-a", "10.0.0.1"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third post: status = %d", rec.Code)
	}

	// Another room, and another client in the same room, start fresh.
	if rec := post(h, "/gesture/room-b", "10.0.0.1"); rec.Code != http.StatusOK {
		t.Errorf("other room: status = %d", rec.Code)
	}
	if rec := post(h, "/gesture/room-a", "10.0.0.2"); rec.Code != http.StatusOK {
		t.Errorf("other client: status = %d", rec.Code)
	}
	// Polling has its own budget.
	if rec := send(h, "GET", "/gesture/room-a", "10.0.0.1"); rec.Code != http.StatusOK {
		t.Errorf("poll: status = %d", rec.Code)
	}
}

func TestRateLimiter_RedisDown(t *testing.T) {
	rl, mr := newTestLimiter(t, RateLimiterConfig{AutoBlockEnabled: true})
	h := rl.Middleware(okHandler)
	mr.Close()

	// Past the gesture-post budget of two, requests still go through.
	for i := 0; i < 3; i++ {
		if rec := post(h, "/gesture/r1", "10.0.0.1"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rec.Code)
		}
	}
}

func TestRateLimiter_Whitelist(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimiterConfig{Whitelist: []string{"10.1.0.0/16", "192.168.0.9", "bad/cidr"}})
	h := rl.Middleware(okHandler)

	for i := 0; i < 10; i++ {
		if rec := post(h, "/room", "10.1.2.3"); rec.Code != http.StatusOK {
			t.Fatalf("cidr request %d: status = %d", i, rec.Code)
		}
		if rec := post(h, "/room", "192.168.0.9"); rec.Code != http.StatusOK {
			t.Fatalf("ip request %d: status = %d", i, rec.Code)
		}
	}
	if rec := post(h, "/room", "[::ffff:10.1.9.9]"); rec.Code != http.StatusOK {
		t.Errorf("mapped ipv6: status = %d", rec.Code)
	}
}

func TestRateLimiter_AutoBlock(t *testing.T) {
	rl, mr := newTestLimiter(t, RateLimiterConfig{AutoBlockEnabled: true})
	h := rl.Middleware(okHandler)

	for i := 0; i < 3+violationLimit; i++ {
		post(h, "/room", "10.0.0.5")
	}
	if !mr.Exists(blockedKey("10.0.0.5")) {
		t.Fatal("client not blocked after repeated violations")
	}
	if rec := post(h, "/room/x", "10.0.0.5"); rec.Code != http.StatusForbidden {
		t.Errorf("blocked client: status = %d", rec.Code)
	}
	if rec := post(h, "/room/x", "10.0.0.6"); rec.Code != http.StatusOK {
		t.Errorf("other client: status = %d", rec.Code)
	}

	mr.Del(blockedKey("10.0.0.5"))
	if rec := post(h, "/room/x", "10.0.0.5"); rec.Code != http.StatusOK {
		t.Errorf("after unblock: status = %d", rec.Code)
	}
}

func TestDefaultRules_RelayBudgets(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop(), RateLimiterConfig{})
	tests := []struct {
		method, path, rule string
	}{
		{"POST", "/transcription/r1", "transcription-post"},
		{"GET", "/transcription/r1", "transcription-poll"},
		{"POST", "/gesture/r1", "gesture-post"},
		{"POST", "/room/r1/add-participant", "room-join"},
		{"POST", "/room", "room-create"},
		{"POST", "/api/azure/token", "token"},
	}
	for _, tt := range tests {
		rule, ok := rl.match(httptest.NewRequest(tt.method, tt.path, nil))
		if !ok || rule.Name != tt.rule {
			t.Errorf("%s %s matched %q, want %q", tt.method, tt.path, rule.Name, tt.rule)
		}
	}

	req := httptest.NewRequest("POST", "/room/r1/add-participant", nil)
	rule, _ := rl.match(req)
	if got := bucketKey(rule, req, "10.0.0.1"); got != "ratelimit:room-join:r1:10.0.0.1" {
		t.Errorf("bucket key = %q", got)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/transcription/abc":        "/transcription/:room_id",
		"/gesture/abc":              "/gesture/:room_id",
		"/room/abc":                 "/room/:room_id",
		"/room/abc/add-participant": "/room/:room_id/add-participant",
		"/room":                     "/room",
		"/predict":                  "/predict",
		"/transcription/":           "/transcription/",
	}
	for in, want := range tests {
		if got := normalizePath(in); got != want {
			t.Errorf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidateRequest(t *testing.T) {
	h := ValidateRequest(okHandler)

	tests := []struct {
		name, method, target, contentType, body string
		want                                    int
	}{
		{"json post", "POST", "/predict", "application/json", "{}", http.StatusOK},
		{"empty post", "POST", "/token", "", "", http.StatusOK},
		{"form post", "POST", "/predict", "text/plain", "{}", http.StatusUnsupportedMediaType},
		{"traversal", "GET", "/gesture/..", "", "", http.StatusBadRequest},
		{"script query", "GET", "/gesture/a?since=%3Cscript", "", "", http.StatusOK},
		{"raw script query", "GET", "/gesture/a?x=<script>", "", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestMaxBodySize(t *testing.T) {
	h := MaxBodySize(16)(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/predict", strings.NewReader(strings.Repeat("x", 17))))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/predict", strings.NewReader("{}")))
	if rec.Code != http.StatusOK {
		t.Errorf("small: status = %d", rec.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(okHandler).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy", "Cache-Control"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("missing %s", h)
		}
	}
}
