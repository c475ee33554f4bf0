package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/queso/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	TokenVerifier     middleware.TokenVerifier
	VerifyRecorder    middleware.VerifyFailureRecorder
	StatusRecorder    middleware.StatusCodeRecorder
	// CORSAllowedOrigin はカンマ区切りの許可オリジン。
	CORSAllowedOrigin string
	// HSTS はStrict-Transport-Securityヘッダーを付与するかどうか。
	HSTS bool
	// RateLimiter はログイン、OAuthコールバック、サインアップに適用する。nilの場合は制限しない。
	RateLimiter *middleware.RateLimiter

	// ヘルスチェック
	HealthChecker HealthChecker
	// MetricsHandler は /metrics で公開する。nilの場合はルートを登録しない。
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Logging → Metrics → Recovery → SecurityHeaders → CORS → (Auth | RateLimit)
//
// panicもアクセスログとステータス集計に500として残るよう、Recoveryはその内側に置く。
// 保護されたルートはBearerトークン検証を通過した場合のみ到達する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService)
	requireAuth := middleware.NewAuthMiddleware(deps.TokenVerifier, deps.VerifyRecorder)

	throttle := func(scope string) func(http.Handler) http.Handler {
		if deps.RateLimiter == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return deps.RateLimiter.Middleware(scope)
	}

	// --- 運用 ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 認証 ---
	r.Route("/api/auth", func(r chi.Router) {
		r.With(throttle("login")).Post("/login", authHandler.Login)
		r.Get("/google/login", authHandler.GoogleLogin)
		r.With(throttle("oauth_callback")).Post("/google/callback", authHandler.GoogleCallback)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/me", authHandler.Me)
			r.Post("/logout", authHandler.Logout)
		})
	})

	// --- ユーザー管理 ---
	r.Route("/api/users", func(r chi.Router) {
		// 新規登録は認証不要
		r.With(throttle("signup")).Post("/", userHandler.Create)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/", userHandler.List)
			r.Get("/{id}", userHandler.Get)
			r.Delete("/{id}", userHandler.Delete)
		})
	})

	return r
}
