package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/vendorhub/internal/auth"
	"github.com/hitoshi/vendorhub/internal/middleware"
	"github.com/hitoshi/vendorhub/internal/session"
)

const (
	// setupPasskeyPath は招待受理後のリダイレクト先。
	setupPasskeyPath = "/setup-passkey"
	// inviteErrorPath は招待の検証に失敗した場合のリダイレクト先。
	inviteErrorPath = "/signin?error=invite"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	AcceptInvite(ctx context.Context, token string) (*auth.IssuedSession, error)
	BootstrapInvite(ctx context.Context, email string) (string, error)
	CreateInvite(ctx context.Context, email string) (string, error)
}

// AuthHandler は招待・セッション関連のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	sessions session.Manager
	cookie   session.CookieConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, sessions session.Manager, cookie session.CookieConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		sessions: sessions,
		cookie:   cookie,
	}
}

// userResponse はセッションのユーザー情報。
type userResponse struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Role    string `json:"role"`
	IsAdmin bool   `json:"isAdmin"`
	PreAuth bool   `json:"preAuth"`
}

// sessionResponse は現在のセッション。未ログインの場合Userはnull。
type sessionResponse struct {
	User *userResponse `json:"user"`
}

type emailRequest struct {
	Email string `json:"email"`
}

// Invite は招待トークンを検証し、事前認証セッションを発行してパスキー登録画面へ遷移させる。
// GET /invite?token=xxx
func (h *AuthHandler) Invite(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Redirect(w, r, inviteErrorPath, http.StatusSeeOther)
		return
	}

	issued, err := h.service.AcceptInvite(r.Context(), token)
	if err != nil {
		slog.Warn("invite rejected", slog.String("error", err.Error()))
		http.Redirect(w, r, inviteErrorPath, http.StatusSeeOther)
		return
	}

	h.cookie.Set(w, issued.Token, issued.TTL)
	http.Redirect(w, r, setupPasskeyPath, http.StatusSeeOther)
}

// Session は現在のセッションのユーザー情報を返す。
// GET /api/auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusOK, sessionResponse{})
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{User: toUserResponse(claims)})
}

// Logout はセッションを無効化しCookieを削除する。Cookieがなくても成功を返す。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := h.cookie.Token(r); token != "" {
		if err := h.sessions.Revoke(r.Context(), token); err != nil {
			slog.Error("failed to revoke session", slog.String("error", err.Error()))
		}
	}
	h.cookie.Clear(w)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// BootstrapInvite はユーザーが一人もいない場合に最初の管理者の招待URLを返す。
// GET /api/auth/bootstrap-invite?email=xxx
func (h *AuthHandler) BootstrapInvite(w http.ResponseWriter, r *http.Request) {
	url, err := h.service.BootstrapInvite(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, urlResponse{URL: url})
}

// CreateInvite は管理者が指定したメールアドレスの招待URLを発行する。
// POST /api/admin/invites
func (h *AuthHandler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	url, err := h.service.CreateInvite(r.Context(), req.Email)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, urlResponse{URL: url})
}

func toUserResponse(c *session.Claims) *userResponse {
	return &userResponse{
		ID:      c.Subject,
		Email:   c.Email,
		Name:    c.Name,
		Role:    string(c.Role),
		IsAdmin: c.IsAdmin(),
		PreAuth: c.PreAuth,
	}
}
