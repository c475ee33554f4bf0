package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/queso/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	Rate            rate.Limit    // クライアントごとのトークン補充レート（req/sec）
	Burst           int           // 連続して許可する最大リクエスト数
	CleanupInterval time.Duration // 使われていないエントリを掃除する間隔
}

// DefaultRateLimiterConfig は 10 req/min/IP の設定を返す。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Rate:            rate.Limit(10.0 / 60.0),
		Burst:           10,
		CleanupInterval: 5 * time.Minute,
	}
}

// PerMinute は1分あたりの回数からRateLimiterConfigを作る。
func PerMinute(n int) RateLimiterConfig {
	cfg := DefaultRateLimiterConfig()
	if n > 0 {
		cfg.Rate = rate.Limit(float64(n) / 60.0)
		cfg.Burst = n
	}
	return cfg
}

type limiterKey struct {
	scope string
	ip    string
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter はスコープとクライアントIPの組ごとにトークンバケットを管理する。
// パスワード推測や認可コードの総当たりを抑えるため、未認証の認証系エンドポイントに適用する。
type RateLimiter struct {
	config RateLimiterConfig

	mu       sync.Mutex
	limiters map[limiterKey]*clientLimiter

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter はRateLimiterを生成し、バックグラウンドの掃除を開始する。
// 不要になったらStopを呼ぶこと。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultRateLimiterConfig().CleanupInterval
	}
	rl := &RateLimiter{
		config:   config,
		limiters: make(map[limiterKey]*clientLimiter),
		stopCh:   make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop は掃除のゴルーチンを停止する。複数回呼んでもよい。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Middleware はscope単位で予算を分けたレート制限ミドルウェアを返す。
// ログインの試行がサインアップの予算を消費しないよう、エンドポイントごとに別のscopeを使う。
func (rl *RateLimiter) Middleware(scope string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			lim := rl.limiterFor(limiterKey{scope: scope, ip: ip})

			if !lim.Allow() {
				retryAfter := retryAfter(lim)
				slog.Warn("rate limit exceeded",
					slog.String("scope", scope),
					slog.String("client_ip", ip),
					slog.String("path", r.URL.Path),
					slog.Int("retry_after_sec", retryAfter),
				)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				WriteAPIError(w, model.NewRateLimitedError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LimiterCount は管理中のエントリ数を返す。
func (rl *RateLimiter) LimiterCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *RateLimiter) limiterFor(key limiterKey) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, ok := rl.limiters[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.config.Rate, rl.config.Burst)}
		rl.limiters[key] = cl
	}
	cl.lastAccess = time.Now()
	return cl.limiter
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup はCleanupIntervalの2倍以上アクセスのないエントリを削除する。
// その時点でバケットは満タンに戻っているため、削除しても制限は緩まない。
func (rl *RateLimiter) cleanup(now time.Time) {
	ttl := rl.config.CleanupInterval * 2

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, cl := range rl.limiters {
		if now.Sub(cl.lastAccess) > ttl {
			delete(rl.limiters, key)
		}
	}
}

// retryAfter は次のトークンが使えるまでの秒数を返す（最低1秒）。
// 予約は取り消すため、バケットの状態は変わらない。
func retryAfter(lim *rate.Limiter) int {
	res := lim.Reserve()
	if !res.OK() {
		return 60
	}
	delay := res.Delay()
	res.Cancel()

	sec := int(math.Ceil(delay.Seconds()))
	if sec < 1 {
		sec = 1
	}
	return sec
}

// clientIP はリクエスト元のIPアドレスを返す。
// X-Forwarded-For は偽装できるため信用せず、接続元アドレスのみを使う。
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
