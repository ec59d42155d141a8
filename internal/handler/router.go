package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/schoolsite/internal/metrics"
	"github.com/hitoshi/schoolsite/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	AdminResolver     middleware.AdminResolver
	CSRFConfig        middleware.CSRFConfig
	CORSAllowedOrigin string
	TrustProxyHeaders bool
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector

	// 運用エンドポイント
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 管理画面
	UserFinder UserFinder
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → RealIP(TrustProxyHeaders時のみ) → Logging → SecurityHeaders → CORS → CSRF(/api) → AdminSession → RateLimit(General)
//
// ログインは未認証で到達するため、IP単位のログイン用レート制限のみを適用する。
// プロキシヘッダーはクライアントが自由に付けられるため、信頼するプロキシ配下でない限り
// RemoteAddrをそのままレート制限のキーにする。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware())
	if deps.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	adminHandler := NewAdminHandler(deps.UserFinder)

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

		// --- 認証不要のルート ---
		r.Route("/auth", func(r chi.Router) {
			r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.Get("/status", authHandler.Status)
		})

		// --- 管理者セッションが必要なルート ---
		// ミドルウェアスタック: AdminSession → RateLimit(General)
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.NewAdminSessionMiddleware(deps.AdminResolver))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Get("/me", adminHandler.Me)
		})
	})

	return r
}
