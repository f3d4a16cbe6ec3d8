package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/hitoshi/vendorhub/internal/access"
	"github.com/hitoshi/vendorhub/internal/auth"
	"github.com/hitoshi/vendorhub/internal/directory"
	"github.com/hitoshi/vendorhub/internal/middleware"
	"github.com/hitoshi/vendorhub/internal/model"
	"github.com/hitoshi/vendorhub/internal/session"
)

const testCSRFToken = "csrf-test-token"

// createIntegrationRouter はモックサービスを注入した完全なルーターを構築する。
// Cookieのトークン "member" "admin" "preauth" がそれぞれのセッションに対応する。
func createIntegrationRouter(t *testing.T, publicPerMinute int) http.Handler {
	t.Helper()

	now := time.Now()
	sessions := map[string]*session.Session{
		"member":  {Claims: memberClaims(), ExpiresAt: now.Add(10 * 24 * time.Hour), Token: "member"},
		"admin":   {Claims: adminClaims(), ExpiresAt: now.Add(10 * 24 * time.Hour), Token: "admin"},
		"preauth": {Claims: session.Claims{Subject: "u-new", Email: "new@example.com", Role: model.RoleUser, PreAuth: true}, ExpiresAt: now.Add(10 * time.Minute), Token: "preauth"},
	}
	manager := &mockSessionManager{
		verifyFn: func(ctx context.Context, token string) (*session.Session, error) {
			return sessions[token], nil
		},
	}

	rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(1000, publicPerMinute))
	t.Cleanup(rl.Stop)

	deps := &RouterDeps{
		Logger:      slog.New(slog.NewJSONHandler(io.Discard, nil)),
		RateLimiter: rl,
		Sessions:    manager,
		Cookie:      testCookie,
		Refresh:     session.RefreshPolicy{TTL: 30 * 24 * time.Hour, Threshold: 24 * time.Hour},
		PublicPaths: middleware.DefaultPublicPaths(),
		AdminPolicy: auth.NewAdminPolicy(nil),

		HealthChecker: &mockHealthChecker{},
		AuthService:   &mockAuthService{},
		PasskeyService: &mockPasskeyService{
			beginRegistrationFn: func(ctx context.Context, caller *session.Claims, email string) (*protocol.CredentialCreation, error) {
				if caller == nil {
					return nil, model.NewUnauthorizedError()
				}
				return &protocol.CredentialCreation{}, nil
			},
		},
		AccessService: &mockAccessService{
			submitFn: func(ctx context.Context, in access.SubmitInput) (*access.SubmitResult, error) {
				return &access.SubmitResult{ID: "req-1"}, nil
			},
		},
		VendorService: &mockVendorService{
			listVendorsFn: func(ctx context.Context, f directory.Filter) ([]directory.Row, error) {
				return []directory.Row{sampleRow()}, nil
			},
			createVendorFn: func(ctx context.Context, in directory.CreateVendorInput) (string, error) {
				return "v-new", nil
			},
		},
		FeedbackService: &mockFeedbackService{},
	}
	return NewRouter(deps)
}

// newRequest はsessionToken（空なら未ログイン）とCSRFトークンを付与したリクエストを作る。
func newRequest(method, path, body, sessionToken string, withCSRF bool) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sessionToken != "" {
		req.AddCookie(&http.Cookie{Name: "vh_session", Value: sessionToken})
	}
	if withCSRF {
		req.AddCookie(&http.Cookie{Name: "csrf_token", Value: testCSRFToken})
		req.Header.Set("X-CSRF-Token", testCSRFToken)
	}
	return req
}

func TestIntegration_Gate_PublicAndProtected(t *testing.T) {
	router := createIntegrationRouter(t, 100)

	tests := []struct {
		name         string
		method       string
		path         string
		token        string
		wantStatus   int
		wantGate     string
		wantLocation string
	}{
		{"ヘルスチェックは公開", http.MethodGet, "/api/health", "", http.StatusOK, "public", ""},
		{"セッション取得は公開", http.MethodGet, "/api/auth/session", "", http.StatusOK, "public", ""},
		{"未ログインの一覧はリダイレクト", http.MethodGet, "/api/vendors?q=a", "", http.StatusTemporaryRedirect, "", "/signin?callbackUrl=%2Fapi%2Fvendors%3Fq%3Da"},
		{"仮セッションはリダイレクト", http.MethodGet, "/api/vendors", "preauth", http.StatusTemporaryRedirect, "", "/signin?callbackUrl=%2Fapi%2Fvendors"},
		{"不明なトークンはリダイレクト", http.MethodGet, "/api/filters", "forged", http.StatusTemporaryRedirect, "", "/signin?callbackUrl=%2Fapi%2Ffilters"},
		{"一般ユーザーの一覧", http.MethodGet, "/api/vendors", "member", http.StatusOK, "auth", ""},
		{"一般ユーザーは管理APIに403", http.MethodGet, "/api/admin/access-requests", "member", http.StatusForbidden, "auth", ""},
		{"管理者は管理API", http.MethodGet, "/api/admin/access-requests", "admin", http.StatusOK, "auth", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, newRequest(tt.method, tt.path, "", tt.token, false))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantGate != "" {
				if got := w.Header().Get(middleware.GateHeader); got != tt.wantGate {
					t.Errorf("%s = %q, want %q", middleware.GateHeader, got, tt.wantGate)
				}
			}
			if tt.wantLocation != "" {
				if got := w.Header().Get("Location"); got != tt.wantLocation {
					t.Errorf("Location = %q, want %q", got, tt.wantLocation)
				}
			}
		})
	}
}

func TestIntegration_CreateVendor_RequiresCSRFAndAdmin(t *testing.T) {
	router := createIntegrationRouter(t, 100)
	body := `{"name":"Gamma"}`

	tests := []struct {
		name       string
		token      string
		csrf       bool
		wantStatus int
	}{
		{"CSRFトークンなし", "admin", false, http.StatusForbidden},
		{"一般ユーザー", "member", true, http.StatusForbidden},
		{"管理者", "admin", true, http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, newRequest(http.MethodPost, "/api/vendors", body, tt.token, tt.csrf))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestIntegration_Session_IncludesPreAuth(t *testing.T) {
	router := createIntegrationRouter(t, 100)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, newRequest(http.MethodGet, "/api/auth/session", "", "preauth", false))

	var body sessionResponse
	decodeBody(t, w, &body)
	if body.User == nil || !body.User.PreAuth || body.User.Email != "new@example.com" {
		t.Errorf("user = %+v", body.User)
	}
}

func TestIntegration_RegisterOptions_LoadsSessionOnPublicRoute(t *testing.T) {
	router := createIntegrationRouter(t, 100)

	tests := []struct {
		name       string
		token      string
		wantStatus int
	}{
		{"仮セッションで登録開始", "preauth", http.StatusOK},
		{"セッションなしは401", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, newRequest(http.MethodPost, "/api/webauthn/register/options", `{"email":"new@example.com"}`, tt.token, false))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestIntegration_AccessRequests_PublicRateLimit(t *testing.T) {
	router := createIntegrationRouter(t, 2)
	body := `{"email":"new@example.com"}`

	for i := range 2 {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, newRequest(http.MethodPost, "/api/access-requests", body, "", false))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, w.Code)
		}
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, newRequest(http.MethodPost, "/api/access-requests", body, "", false))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header is missing")
	}
	if code := errorCode(t, w); code != model.ErrCodeRateLimitExceeded {
		t.Errorf("code = %q", code)
	}
}

func TestIntegration_Logout_IsPublicAndClearsCookie(t *testing.T) {
	router := createIntegrationRouter(t, 100)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, newRequest(http.MethodPost, "/api/auth/logout", "", "member", false))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if c := findCookie(w.Result(), "vh_session"); c == nil || c.MaxAge >= 0 {
		t.Errorf("cookie = %+v, want cleared", c)
	}
}
