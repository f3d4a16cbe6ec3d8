package app

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/vendorhub/internal/access"
	"github.com/hitoshi/vendorhub/internal/auth"
	"github.com/hitoshi/vendorhub/internal/config"
	"github.com/hitoshi/vendorhub/internal/directory"
	"github.com/hitoshi/vendorhub/internal/feedback"
	"github.com/hitoshi/vendorhub/internal/handler"
	"github.com/hitoshi/vendorhub/internal/metrics"
	"github.com/hitoshi/vendorhub/internal/middleware"
	"github.com/hitoshi/vendorhub/internal/notify"
	"github.com/hitoshi/vendorhub/internal/passkey"
	"github.com/hitoshi/vendorhub/internal/repository"
	"github.com/hitoshi/vendorhub/internal/security"
	"github.com/hitoshi/vendorhub/internal/session"
)

// server はserveモードで起動するコンポーネント一式。
type server struct {
	handler  http.Handler
	registry *prometheus.Registry
	closers  []io.Closer
	stop     func()
}

// Close はバックグラウンド処理と外部接続を解放する。
func (s *server) Close() {
	if s.stop != nil {
		s.stop()
	}
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close resource", slog.String("error", err.Error()))
		}
	}
}

// newRegistry はアプリケーションとランタイムのメトリクスを登録したレジストリを返す。
func newRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// buildServer は設定とDB接続から全依存関係をワイヤリングしたルーターを構築する。
// DBへの接続はリクエスト処理時まで行わない。
func buildServer(cfg *config.Config, db *sql.DB, logger *slog.Logger) (*server, error) {
	srv := &server{}
	registry, collector := newRegistry()
	srv.registry = registry

	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	vendorRepo := repository.NewPostgresVendorRepo(db)
	capabilityRepo := repository.NewPostgresCapabilityRepo(db)
	feedbackRepo := repository.NewPostgresFeedbackRepo(db)
	accessRepo := repository.NewPostgresAccessRequestRepo(db)
	passkeyRepo := repository.NewPostgresPasskeyRepo(db)

	// 2. セッション
	sessions, err := newSessionManager(cfg, sessionRepo)
	if err != nil {
		return nil, err
	}
	invites, err := session.NewInviteSigner(cfg.AuthSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create invite signer: %w", err)
	}

	// 3. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	// 4. ドメインサービスの初期化
	policy := auth.NewAdminPolicy(cfg.AdminEmails)
	authService := auth.NewService(userRepo, sessions, invites, policy, auth.ServiceConfig{
		BaseURL:            cfg.BaseURL,
		AllowedEmailDomain: cfg.AllowedEmailDomain,
		SessionTTL:         cfg.SessionTTL,
		PreAuthTTL:         cfg.PreAuthTTL,
		InviteTTL:          cfg.InviteTTL,
		BootstrapInviteTTL: cfg.BootstrapInviteTTL,
	})

	ceremony, err := passkey.NewWebAuthn(passkey.RelyingParty{
		ID:      cfg.WebAuthnRPID,
		Name:    cfg.WebAuthnRPName,
		Origins: cfg.WebAuthnOrigins,
		Timeout: cfg.WebAuthnChallengeTTL,
	})
	if err != nil {
		return nil, err
	}
	challenges, closer, err := newChallengeStore(cfg, db)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		srv.closers = append(srv.closers, closer)
	}
	passkeyService := passkey.NewService(ceremony, userRepo, passkeyRepo, challenges, authService, cfg.WebAuthnChallengeTTL)

	accessService := access.NewService(accessRepo, authService, newNotifier(cfg, ssrfGuard), collector, access.ServiceConfig{
		AllowedEmailDomain: cfg.AllowedEmailDomain,
		AdminContactEmail:  cfg.AdminContactEmail,
		NotifyTimeout:      cfg.NotifyTimeout,
	})

	mode, ok := directory.ParseServiceMatchMode(cfg.ServiceMatchMode)
	if !ok {
		mode = directory.MatchAny
	}
	vendorService := directory.NewService(vendorRepo, capabilityRepo, sanitizer, mode, collector)
	feedbackService := feedback.NewService(feedbackRepo, vendorRepo, sanitizer, ssrfGuard, collector)

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitPublic))
	srv.stop = rateLimiter.Stop

	srv.handler = handler.NewRouter(&handler.RouterDeps{
		Logger:            logger,
		Metrics:           collector,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: rateLimiter,

		Sessions: sessions,
		Cookie: session.CookieConfig{
			Domain: cfg.CookieDomain,
			Secure: cfg.CookieSecure,
		},
		Refresh: session.RefreshPolicy{
			TTL:       cfg.SessionTTL,
			Threshold: cfg.SessionRefreshThreshold,
		},
		PublicPaths: middleware.DefaultPublicPaths(),
		SignInPath:  middleware.DefaultSignInPath,
		AdminPolicy: policy,

		HealthChecker: db,

		AuthService:     authService,
		PasskeyService:  passkeyService,
		AccessService:   accessService,
		VendorService:   vendorService,
		FeedbackService: feedbackService,
	})

	return srv, nil
}

// newSessionManager は設定されたセッション方式のManagerを返す。
func newSessionManager(cfg *config.Config, store session.Store) (session.Manager, error) {
	switch cfg.SessionStrategy {
	case config.SessionStrategyDatabase:
		return session.NewDatabaseManager(store), nil
	case config.SessionStrategyJWT, "":
		m, err := session.NewJWTManager(cfg.AuthSecret)
		if err != nil {
			return nil, fmt.Errorf("failed to create session manager: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown session strategy %q", cfg.SessionStrategy)
	}
}

// newChallengeStore は設定されたWebAuthnチャレンジの保存先を返す。
// Redisを使う場合は接続を閉じるためのio.Closerも返す。
func newChallengeStore(cfg *config.Config, db *sql.DB) (passkey.ChallengeStore, io.Closer, error) {
	switch cfg.ChallengeStore {
	case config.ChallengeStoreRedis:
		client, err := passkey.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return passkey.NewRedisChallengeStore(client), client, nil
	case config.ChallengeStorePostgres, "":
		return repository.NewPostgresChallengeRepo(db), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown challenge store %q", cfg.ChallengeStore)
	}
}

// newNotifier はWebhook URLが設定されていればSSRF対策済みクライアントで通知する
// Notifierを返し、未設定ならNoopを返す。
func newNotifier(cfg *config.Config, guard security.SSRFGuardService) notify.Notifier {
	if cfg.NotifyWebhookURL == "" {
		return notify.Noop{}
	}
	return notify.NewWebhookNotifier(cfg.NotifyWebhookURL, guard.NewSafeClient(cfg.NotifyTimeout))
}
