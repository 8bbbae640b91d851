package http

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, 1)
	defer rl.Stop()
	for i := 0; i < 100; i++ {
		if !rl.Allow("k") {
			t.Fatal("disabled limiter blocked")
		}
	}
	if rl.Enabled() || rl.RetryAfter() != 0 {
		t.Error("disabled limiter reports enabled")
	}
}

func TestRateLimiter_PerKey(t *testing.T) {
	rl := NewRateLimiter(60, 2)
	defer rl.Stop()
	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("burst not honored")
	}
	if rl.Allow("a") {
		t.Error("third request in burst allowed")
	}
	if !rl.Allow("b") {
		t.Error("keys are not independent")
	}
	if got := rl.RetryAfter(); got != time.Second {
		t.Errorf("RetryAfter = %s", got)
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	defer rl.Stop()
	rl.Allow("a")
	rl.cleanup(time.Now().Add(time.Minute))
	if _, ok := rl.limiters.Load("a"); ok {
		t.Error("stale entry kept")
	}
}

func TestClientKey(t *testing.T) {
	r := httptest.NewRequest("GET", "/v1/analyze", nil)
	r.RemoteAddr = "10.0.0.7:5555"
	if got := clientKey(r); got != "ip:10.0.0.7" {
		t.Errorf("clientKey = %q", got)
	}
	r.Header.Set("Authorization", "Bearer abc")
	if got := clientKey(r); got != "token:abc" {
		t.Errorf("clientKey = %q", got)
	}
	if redactKey("token:abc") != "token:****" {
		t.Error("token not redacted")
	}
}

func TestTokenMatch(t *testing.T) {
	if !tokenMatch("", "") || !tokenMatch("x", "") {
		t.Error("empty expected should allow")
	}
	if tokenMatch("a", "b") || !tokenMatch("b", "b") {
		t.Error("compare broken")
	}
}
