// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/vendorhub/internal/auth"
	"github.com/hitoshi/vendorhub/internal/model"
	"github.com/hitoshi/vendorhub/internal/session"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// sessionContextKey はリクエストコンテキストに検証済みセッションを格納するためのキー。
var sessionContextKey = contextKey("session")

// SessionFromContext はリクエストコンテキストから検証済みセッションを取得する。
// GateまたはLoadSessionを通過したリクエストでのみ値がある。
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(*session.Session)
	if !ok || s == nil {
		return nil, false
	}
	return s, true
}

// ContextWithSession はコンテキストにセッションを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, s *session.Session) context.Context {
	if s != nil {
		recordSubject(ctx, s.Subject)
	}
	return context.WithValue(ctx, sessionContextKey, s)
}

// ClaimsFromContext はセッションのclaimsを返す。セッションがなければnil。
func ClaimsFromContext(ctx context.Context) *session.Claims {
	s, ok := SessionFromContext(ctx)
	if !ok {
		return nil
	}
	claims := s.Claims
	return &claims
}

// NewLoadSessionMiddleware はCookieのトークンを検証し、有効ならセッションをコンテキストに注入する。
// 仮セッションも注入する。セッションがなくてもリクエストは通す。
// Gateの対象外となる公開ルートのうち、セッションを参照するものに使用する。
func NewLoadSessionMiddleware(manager session.Manager, cookie session.CookieConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := SessionFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			token := cookie.Token(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			s, err := manager.Verify(r.Context(), token)
			if err != nil {
				slog.Error("failed to verify session",
					slog.String("error", err.Error()),
				)
			}
			if s != nil {
				r = r.WithContext(ContextWithSession(r.Context(), s))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSession は通常セッションがないリクエストに401を返すミドルウェア。
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := SessionFromContext(r.Context())
		if !ok || s.PreAuth {
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewRequireAdminMiddleware は管理者以外のリクエストに403を返すミドルウェアを返す。
// 管理者かどうかはセッションのロールと管理者ポリシーの両方で判定する。
func NewRequireAdminMiddleware(policy auth.AdminPolicy) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := SessionFromContext(r.Context())
			if !ok || s.PreAuth {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if !policy.IsAdmin(s.Email, s.IsAdmin()) {
				slog.Warn("admin access denied",
					slog.String("user_id", s.Subject),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
