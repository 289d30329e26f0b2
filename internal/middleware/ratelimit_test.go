package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

// newClientRequest は指定した接続元IPからのリクエストを生成する。
func newClientRequest(method, path, ip string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = ip + ":54321"
	return req
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// --- GeneralMiddleware のテスト ---

func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	cfg := RateLimiterConfig{
		GeneralRate:     2, // 2 req/sec
		GeneralBurst:    5, // バースト5
		CompareRate:     1,
		CompareBurst:    10,
		CleanupInterval: 1 * time.Minute,
	}

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	handlerCallCount := 0
	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCallCount++
		w.WriteHeader(http.StatusOK)
	}))

	// バースト内の5リクエストは全て通る
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newClientRequest(http.MethodGet, "/api/library", "10.0.0.1"))

		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Result().StatusCode, http.StatusOK)
		}
	}

	if handlerCallCount != 5 {
		t.Errorf("handler call count = %d, want 5", handlerCallCount)
	}
}

func TestRateLimitMiddleware_Returns429WithRetryAfterHeader(t *testing.T) {
	cfg := RateLimiterConfig{
		GeneralRate:     1, // 1 req/sec
		GeneralBurst:    1, // バースト1
		CompareRate:     1,
		CompareBurst:    10,
		CleanupInterval: 1 * time.Minute,
	}

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	// 1回目は通る
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newClientRequest(http.MethodGet, "/api/library", "10.0.0.2"))

	// 2回目は429になる
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, newClientRequest(http.MethodGet, "/api/library", "10.0.0.2"))

	resp := w2.Result()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTooManyRequests)
	}

	retrySeconds, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil {
		t.Errorf("Retry-After header should be a number, got %q", resp.Header.Get("Retry-After"))
	}
	if retrySeconds < 1 {
		t.Errorf("Retry-After = %d, should be at least 1", retrySeconds)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode 429 response body: %v", err)
	}
	if body.Code != "RATE_LIMIT_EXCEEDED" || body.Category != "system" {
		t.Errorf("body = %+v", body)
	}
}

func TestRateLimitMiddleware_IsolatesClients(t *testing.T) {
	cfg := RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    1,
		CompareRate:     1,
		CompareBurst:    10,
		CleanupInterval: 1 * time.Minute,
	}

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	wA := httptest.NewRecorder()
	handler.ServeHTTP(wA, newClientRequest(http.MethodGet, "/api/library", "192.0.2.1"))
	if wA.Result().StatusCode != http.StatusOK {
		t.Errorf("client A first request: status = %d, want %d", wA.Result().StatusCode, http.StatusOK)
	}

	wA2 := httptest.NewRecorder()
	handler.ServeHTTP(wA2, newClientRequest(http.MethodGet, "/api/library", "192.0.2.1"))
	if wA2.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("client A second request: status = %d, want %d", wA2.Result().StatusCode, http.StatusTooManyRequests)
	}

	// 別のクライアントはAのレートに影響されない
	wB := httptest.NewRecorder()
	handler.ServeHTTP(wB, newClientRequest(http.MethodGet, "/api/library", "192.0.2.2"))
	if wB.Result().StatusCode != http.StatusOK {
		t.Errorf("client B first request: status = %d, want %d", wB.Result().StatusCode, http.StatusOK)
	}

	if rl.GeneralLimiterCount() != 2 {
		t.Errorf("GeneralLimiterCount = %d, want 2", rl.GeneralLimiterCount())
	}
}

func TestRateLimitMiddleware_SameIPDifferentPortsShareLimit(t *testing.T) {
	cfg := RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    1,
		CompareRate:     1,
		CompareBurst:    1,
		CleanupInterval: 1 * time.Minute,
	}

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	req1 := httptest.NewRequest(http.MethodGet, "/api/library", nil)
	req1.RemoteAddr = "203.0.113.5:1111"
	handler.ServeHTTP(httptest.NewRecorder(), req1)

	req2 := httptest.NewRequest(http.MethodGet, "/api/library", nil)
	req2.RemoteAddr = "203.0.113.5:2222"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req2)

	if w.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusTooManyRequests)
	}
}

// --- CompareMiddleware のテスト ---

func TestCompareRateLimit_Returns429WhenLimitExceeded(t *testing.T) {
	cfg := RateLimiterConfig{
		GeneralRate:     100,
		GeneralBurst:    200,
		CompareRate:     1, // 1 req/sec
		CompareBurst:    2, // バースト2
		CleanupInterval: 1 * time.Minute,
	}

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	handler := rl.CompareMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newClientRequest(http.MethodGet, "/api/compare", "10.1.1.1"))
		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Result().StatusCode, http.StatusOK)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newClientRequest(http.MethodGet, "/api/compare", "10.1.1.1"))
	if w.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusTooManyRequests)
	}
	if rl.CompareLimiterCount() != 1 {
		t.Errorf("CompareLimiterCount = %d, want 1", rl.CompareLimiterCount())
	}
}

func TestCompareRateLimit_IndependentFromGeneralLimit(t *testing.T) {
	cfg := RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    1,
		CompareRate:     1,
		CompareBurst:    1,
		CleanupInterval: 1 * time.Minute,
	}

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	// General MWでリクエスト（バーストを消費）
	rl.GeneralMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), newClientRequest(http.MethodGet, "/api/library", "10.2.2.2"))

	// General limitは使い果たした。Compare limitはまだ使える
	w := httptest.NewRecorder()
	rl.CompareMiddleware()(okHandler()).ServeHTTP(w, newClientRequest(http.MethodGet, "/api/compare", "10.2.2.2"))

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("compare should still be allowed: status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

// --- 設定とクリーンアップのテスト ---

func TestNewRateLimiterConfig_ConvertsPerMinute(t *testing.T) {
	cfg := NewRateLimiterConfig(120, 20)

	if float64(cfg.GeneralRate) != 2.0 {
		t.Errorf("GeneralRate = %v, want 2", cfg.GeneralRate)
	}
	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", cfg.GeneralBurst)
	}
	if float64(cfg.CompareRate) != 20.0/60.0 {
		t.Errorf("CompareRate = %v, want %v", cfg.CompareRate, 20.0/60.0)
	}
	if cfg.CompareBurst != 20 {
		t.Errorf("CompareBurst = %d, want 20", cfg.CompareBurst)
	}

	fallback := NewRateLimiterConfig(0, -1)
	if fallback != DefaultRateLimiterConfig() {
		t.Errorf("invalid values should fall back to defaults: %+v", fallback)
	}
}

func TestRateLimiter_CleanupRemovesStaleEntries(t *testing.T) {
	cfg := RateLimiterConfig{
		GeneralRate:     10,
		GeneralBurst:    10,
		CompareRate:     10,
		CompareBurst:    10,
		CleanupInterval: 1 * time.Hour,
	}

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	rl.GeneralMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), newClientRequest(http.MethodGet, "/", "10.3.3.3"))
	rl.CompareMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), newClientRequest(http.MethodGet, "/", "10.3.3.3"))

	// 最終アクセス時刻を過去に書き換える
	stale := time.Now().Add(-3 * time.Hour)
	rl.general.mu.Lock()
	for _, cl := range rl.general.limiters {
		cl.lastAccess = stale
	}
	rl.general.mu.Unlock()

	rl.cleanup()

	if rl.GeneralLimiterCount() != 0 {
		t.Errorf("GeneralLimiterCount = %d, want 0", rl.GeneralLimiterCount())
	}
	if rl.CompareLimiterCount() != 1 {
		t.Errorf("CompareLimiterCount = %d, want 1 (recently used)", rl.CompareLimiterCount())
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	rl.Stop()
	rl.Stop()
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		remoteAddr string
		want       string
	}{
		{"192.0.2.1:1234", "192.0.2.1"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"no-port", "no-port"},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remoteAddr
		if got := ClientKey(req); got != tt.want {
			t.Errorf("ClientKey(%q) = %q, want %q", tt.remoteAddr, got, tt.want)
		}
	}
}
