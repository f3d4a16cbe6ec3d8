package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/vendorhub/internal/auth"
	"github.com/hitoshi/vendorhub/internal/metrics"
	"github.com/hitoshi/vendorhub/internal/middleware"
	"github.com/hitoshi/vendorhub/internal/session"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	CORSAllowedOrigin string
	CSRF              middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter

	// セッション
	Sessions    session.Manager
	Cookie      session.CookieConfig
	Refresh     session.RefreshPolicy
	PublicPaths middleware.PublicPaths
	SignInPath  string
	AdminPolicy auth.AdminPolicy

	// ヘルスチェック
	HealthChecker HealthChecker

	// サービス
	AuthService     AuthServiceInterface
	PasskeyService  PasskeyServiceInterface
	AccessService   AccessServiceInterface
	VendorService   VendorServiceInterface
	FeedbackService FeedbackServiceInterface
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Recovery → Logging → Metrics → SecurityHeaders → CORS → Gate
//
// 認証が必要なグループはさらに RequireSession → CSRF → RateLimit(General) を通る。
// 許可リストのルートでセッションが必要なものはルート単位でLoadSessionを適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(collector))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.Cookie.Secure))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewGate(middleware.GateConfig{
		Sessions:   deps.Sessions,
		Cookie:     deps.Cookie,
		Refresh:    deps.Refresh,
		Public:     deps.PublicPaths,
		SignInPath: deps.SignInPath,
		Metrics:    collector,
	}))

	loadSession := middleware.NewLoadSessionMiddleware(deps.Sessions, deps.Cookie)
	publicLimit := deps.RateLimiter.PublicMiddleware()
	requireAdmin := middleware.NewRequireAdminMiddleware(deps.AdminPolicy)

	healthHandler := NewHealthHandler(deps.HealthChecker)
	authHandler := NewAuthHandler(deps.AuthService, deps.Sessions, deps.Cookie)
	webauthnHandler := NewWebAuthnHandler(deps.PasskeyService, deps.Cookie)
	accessHandler := NewAccessHandler(deps.AccessService)
	vendorHandler := NewVendorHandler(deps.VendorService)
	feedbackHandler := NewFeedbackHandler(deps.FeedbackService)

	// --- 許可リストのルート ---

	r.Get("/api/health", healthHandler.Health)
	r.Get("/invite", authHandler.Invite)

	r.Route("/api/auth", func(r chi.Router) {
		r.With(loadSession).Get("/session", authHandler.Session)
		r.Post("/logout", authHandler.Logout)
		r.With(publicLimit).Get("/bootstrap-invite", authHandler.BootstrapInvite)
		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))
	})

	r.Route("/api/webauthn", func(r chi.Router) {
		r.Use(publicLimit)
		r.With(loadSession).Post("/register/options", webauthnHandler.RegisterOptions)
		r.With(loadSession).Post("/register/verify", webauthnHandler.RegisterVerify)
		r.Post("/login/options", webauthnHandler.LoginOptions)
		r.Post("/login/verify", webauthnHandler.LoginVerify)
	})

	r.With(publicLimit).Post("/api/access-requests", accessHandler.Submit)

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession)
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/vendors", func(r chi.Router) {
			r.Get("/", vendorHandler.ListVendors)
			r.With(requireAdmin).Post("/", vendorHandler.CreateVendor)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", vendorHandler.GetVendor)
				r.With(requireAdmin).Delete("/", vendorHandler.DeleteVendor)
			})
		})

		r.Get("/api/filters", vendorHandler.FilterOptions)
		r.Post("/api/feedback", feedbackHandler.Submit)

		// 管理者
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(requireAdmin)
			r.Get("/access-requests", accessHandler.ListPending)
			r.Post("/access-requests/{id}/approve", accessHandler.Approve)
			r.Post("/access-requests/{id}/reject", accessHandler.Reject)
			r.Post("/invites", authHandler.CreateInvite)
		})
	})

	return r
}
