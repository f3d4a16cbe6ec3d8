package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/hitoshi/vendorhub/internal/metrics"
	"github.com/hitoshi/vendorhub/internal/session"
)

const (
	// GateHeader はGateの判定結果を示すレスポンスヘッダー。
	GateHeader = "X-VendorHub-MW"

	// DefaultSignInPath は未認証リクエストのリダイレクト先。
	DefaultSignInPath = "/signin"

	// callbackParam はリダイレクト先に元のパスを渡すクエリパラメータ名。
	callbackParam = "callbackUrl"
)

// PublicPaths はGateを素通りさせるパスの許可リスト。
// Prefixesはセグメント単位で一致させる。"/api/auth" は "/api/auth" と "/api/auth/..." にのみ一致し、
// "/api/authz" には一致しない。
type PublicPaths struct {
	Exact    []string
	Prefixes []string
}

// DefaultPublicPaths は既定の許可リストを返す。
func DefaultPublicPaths() PublicPaths {
	return PublicPaths{
		Exact: []string{
			"/signin",
			"/invite",
			"/setup-passkey",
			"/api/health",
			"/api/access-requests",
			"/favicon.ico",
			"/robots.txt",
			"/sitemap.xml",
		},
		Prefixes: []string{
			"/api/auth",
			"/api/webauthn",
			"/static",
			"/assets",
			"/images",
		},
	}
}

// Match はパスが許可リストに含まれるかを返す。
// 正規化前後で形が変わるパス（"..", "//", 末尾スラッシュなど）は常に非公開として扱う。
func (p PublicPaths) Match(rawPath string) bool {
	if rawPath == "" || path.Clean(rawPath) != rawPath {
		return false
	}

	for _, e := range p.Exact {
		if rawPath == e {
			return true
		}
	}
	for _, prefix := range p.Prefixes {
		prefix = strings.TrimSuffix(prefix, "/")
		if rawPath == prefix || strings.HasPrefix(rawPath, prefix+"/") {
			return true
		}
	}
	return false
}

// GateConfig はGateミドルウェアの設定。
type GateConfig struct {
	Sessions session.Manager
	Cookie   session.CookieConfig
	Refresh  session.RefreshPolicy
	Public   PublicPaths
	// SignInPath は未認証時のリダイレクト先。空ならDefaultSignInPath。
	SignInPath string
	Metrics    metrics.MetricsCollector
	// Now は現在時刻の取得関数。nilならtime.Now。
	Now func() time.Time
}

// NewGate はリクエストごとにセッションを確認するGateミドルウェアを返す。
//
//   - 許可リストのパスはセッションを検証せずに通す（X-VendorHub-MW: public）
//   - 有効な通常セッションがあればコンテキストに注入して通す（X-VendorHub-MW: auth）。
//     残り有効期間が閾値を下回っていれば更新したCookieを付与する
//   - それ以外は307でサインインページへリダイレクトする。callbackUrlには元のパスとクエリを渡す
func NewGate(config GateConfig) func(next http.Handler) http.Handler {
	signIn := config.SignInPath
	if signIn == "" {
		signIn = DefaultSignInPath
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	recorder := config.Metrics
	if recorder == nil {
		recorder = metrics.Nop{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config.Public.Match(r.URL.Path) {
				recorder.RecordGateDecision(metrics.GatePublic)
				w.Header().Set(GateHeader, "public")
				next.ServeHTTP(w, r)
				return
			}

			s := verifySession(r, config)
			if s == nil || s.PreAuth {
				recorder.RecordGateDecision(metrics.GateRedirect)
				http.Redirect(w, r, signInURL(signIn, r.URL), http.StatusTemporaryRedirect)
				return
			}

			if config.Refresh.Due(s, now()) {
				token, err := config.Sessions.Refresh(r.Context(), s, config.Refresh.TTL)
				if err != nil {
					slog.Warn("failed to refresh session",
						slog.String("user_id", s.Subject),
						slog.String("error", err.Error()),
					)
					recorder.RecordSessionRefresh(false)
				} else {
					config.Cookie.Set(w, token, config.Refresh.TTL)
					recorder.RecordSessionRefresh(true)
				}
			}

			recorder.RecordGateDecision(metrics.GateAuth)
			w.Header().Set(GateHeader, "auth")
			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), s)))
		})
	}
}

// verifySession はCookieのトークンを検証する。検証できなければnil。
func verifySession(r *http.Request, config GateConfig) *session.Session {
	token := config.Cookie.Token(r)
	if token == "" {
		return nil
	}
	s, err := config.Sessions.Verify(r.Context(), token)
	if err != nil {
		slog.Error("failed to verify session",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return s
}

// signInURL はcallbackUrlに元のパスとクエリを載せたサインインURLを組み立てる。
func signInURL(signIn string, u *url.URL) string {
	callback := u.EscapedPath()
	if u.RawQuery != "" {
		callback += "?" + u.RawQuery
	}
	return signIn + "?" + url.Values{callbackParam: {callback}}.Encode()
}
