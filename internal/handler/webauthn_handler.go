package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/hitoshi/vendorhub/internal/auth"
	"github.com/hitoshi/vendorhub/internal/middleware"
	"github.com/hitoshi/vendorhub/internal/model"
	"github.com/hitoshi/vendorhub/internal/session"
)

// PasskeyServiceInterface はWebAuthnハンドラーが必要とするサービスインターフェース。
type PasskeyServiceInterface interface {
	BeginRegistration(ctx context.Context, caller *session.Claims, email string) (*protocol.CredentialCreation, error)
	FinishRegistration(ctx context.Context, caller *session.Claims, email string, credential []byte) (*auth.IssuedSession, error)
	BeginLogin(ctx context.Context, email string) (*protocol.CredentialAssertion, error)
	FinishLogin(ctx context.Context, email string, assertion []byte) (*auth.IssuedSession, error)
}

// WebAuthnHandler はパスキー登録・認証のHTTPハンドラー。
type WebAuthnHandler struct {
	service PasskeyServiceInterface
	cookie  session.CookieConfig
}

// NewWebAuthnHandler はWebAuthnHandlerを生成する。
func NewWebAuthnHandler(service PasskeyServiceInterface, cookie session.CookieConfig) *WebAuthnHandler {
	return &WebAuthnHandler{service: service, cookie: cookie}
}

// verifyRequest はセレモニー完了リクエスト。Credentialはブラウザが返した応答をそのまま持つ。
type verifyRequest struct {
	Email      string          `json:"email"`
	Credential json.RawMessage `json:"credential"`
}

// RegisterOptions はパスキー登録のオプションを返す。
// POST /api/webauthn/register/options
func (h *WebAuthnHandler) RegisterOptions(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	opts, err := h.service.BeginRegistration(r.Context(), middleware.ClaimsFromContext(r.Context()), req.Email)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

// RegisterVerify は登録応答を検証し、本認証セッションを発行する。
// POST /api/webauthn/register/verify
func (h *WebAuthnHandler) RegisterVerify(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeVerify(w, r)
	if !ok {
		return
	}

	issued, err := h.service.FinishRegistration(r.Context(), middleware.ClaimsFromContext(r.Context()), req.Email, req.Credential)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.cookie.Set(w, issued.Token, issued.TTL)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// LoginOptions はパスキー認証のオプションを返す。
// POST /api/webauthn/login/options
func (h *WebAuthnHandler) LoginOptions(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	if req.Email == "" {
		handleServiceError(w, model.NewInvalidEmailError("メールアドレスを入力してください。"))
		return
	}

	opts, err := h.service.BeginLogin(r.Context(), req.Email)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

// LoginVerify は認証応答を検証し、本認証セッションを発行する。
// POST /api/webauthn/login/verify
func (h *WebAuthnHandler) LoginVerify(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeVerify(w, r)
	if !ok {
		return
	}

	issued, err := h.service.FinishLogin(r.Context(), req.Email, req.Credential)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.cookie.Set(w, issued.Token, issued.TTL)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// decodeVerify はemailとcredentialの両方を必須としてデコードする。
// 失敗時はエラーレスポンスを書き込みfalseを返す。
func (h *WebAuthnHandler) decodeVerify(w http.ResponseWriter, r *http.Request) (verifyRequest, bool) {
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return req, false
	}
	if req.Email == "" || len(req.Credential) == 0 || string(req.Credential) == "null" {
		handleServiceError(w, model.NewInvalidRequestError())
		return req, false
	}
	return req, true
}
