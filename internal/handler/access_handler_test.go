package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/vendorhub/internal/access"
	"github.com/hitoshi/vendorhub/internal/model"
)

// --- モック定義 ---

type mockAccessService struct {
	submitFn      func(ctx context.Context, in access.SubmitInput) (*access.SubmitResult, error)
	listPendingFn func(ctx context.Context) ([]model.AccessRequest, error)
	approveFn     func(ctx context.Context, id string) (string, error)
	rejectFn      func(ctx context.Context, id string) error
}

func (m *mockAccessService) Submit(ctx context.Context, in access.SubmitInput) (*access.SubmitResult, error) {
	if m.submitFn != nil {
		return m.submitFn(ctx, in)
	}
	return &access.SubmitResult{}, nil
}

func (m *mockAccessService) ListPending(ctx context.Context) ([]model.AccessRequest, error) {
	if m.listPendingFn != nil {
		return m.listPendingFn(ctx)
	}
	return nil, nil
}

func (m *mockAccessService) Approve(ctx context.Context, id string) (string, error) {
	if m.approveFn != nil {
		return m.approveFn(ctx, id)
	}
	return "", nil
}

func (m *mockAccessService) Reject(ctx context.Context, id string) error {
	if m.rejectFn != nil {
		return m.rejectFn(ctx, id)
	}
	return nil
}

// newAdminAccessRouter はURLパラメータを解決するためにchiルーター経由でハンドラーを呼ぶ。
func newAdminAccessRouter(svc AccessServiceInterface) http.Handler {
	h := NewAccessHandler(svc)
	r := chi.NewRouter()
	r.Get("/api/admin/access-requests", h.ListPending)
	r.Post("/api/admin/access-requests/{id}/approve", h.Approve)
	r.Post("/api/admin/access-requests/{id}/reject", h.Reject)
	return r
}

// --- テスト ---

func TestAccessHandler_Submit_ReturnsIDAndMailto(t *testing.T) {
	svc := &mockAccessService{
		submitFn: func(ctx context.Context, in access.SubmitInput) (*access.SubmitResult, error) {
			if in.Email != "new@example.com" || in.Name != "New" || in.Company != "" {
				t.Errorf("input = %+v", in)
			}
			return &access.SubmitResult{ID: "req-1", Mailto: "mailto:admin@example.com?subject=x"}, nil
		},
	}
	h := NewAccessHandler(svc)

	w := httptest.NewRecorder()
	h.Submit(w, httptest.NewRequest(http.MethodPost, "/api/access-requests",
		strings.NewReader(`{"email":"new@example.com","name":"New","message":"hi"}`)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body submitAccessResponse
	decodeBody(t, w, &body)
	if !body.OK || body.ID != "req-1" || body.Mailto == "" {
		t.Errorf("body = %+v", body)
	}
}

func TestAccessHandler_Submit_Honeypot_OmitsID(t *testing.T) {
	svc := &mockAccessService{
		submitFn: func(ctx context.Context, in access.SubmitInput) (*access.SubmitResult, error) {
			return &access.SubmitResult{}, nil
		},
	}
	h := NewAccessHandler(svc)

	w := httptest.NewRecorder()
	h.Submit(w, httptest.NewRequest(http.MethodPost, "/api/access-requests",
		strings.NewReader(`{"email":"bot@example.com","company":"ACME"}`)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"ok":true}` {
		t.Errorf("body = %s, want {\"ok\":true}", got)
	}
}

func TestAccessHandler_Submit_InvalidEmail(t *testing.T) {
	svc := &mockAccessService{
		submitFn: func(ctx context.Context, in access.SubmitInput) (*access.SubmitResult, error) {
			return nil, model.NewInvalidEmailError("invalid")
		},
	}
	h := NewAccessHandler(svc)

	w := httptest.NewRecorder()
	h.Submit(w, httptest.NewRequest(http.MethodPost, "/api/access-requests", strings.NewReader(`{"email":"x"}`)))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if code := errorCode(t, w); code != model.ErrCodeInvalidEmail {
		t.Errorf("code = %q", code)
	}
}

func TestAccessHandler_ListPending(t *testing.T) {
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	svc := &mockAccessService{
		listPendingFn: func(ctx context.Context) ([]model.AccessRequest, error) {
			return []model.AccessRequest{
				{ID: "r1", Email: "a@example.com", Status: model.AccessRequestPending, CreatedAt: created},
			}, nil
		},
	}

	w := httptest.NewRecorder()
	newAdminAccessRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/access-requests", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body accessRequestListResponse
	decodeBody(t, w, &body)
	if len(body.Data) != 1 || body.Data[0].Status != "PENDING" || !body.Data[0].CreatedAt.Equal(created) {
		t.Errorf("data = %+v", body.Data)
	}
}

func TestAccessHandler_ListPending_Empty_ReturnsArray(t *testing.T) {
	w := httptest.NewRecorder()
	newAdminAccessRouter(&mockAccessService{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/access-requests", nil))

	if got := strings.TrimSpace(w.Body.String()); got != `{"data":[]}` {
		t.Errorf("body = %s", got)
	}
}

func TestAccessHandler_Approve(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"承認して招待URLを返す", nil, http.StatusOK},
		{"存在しない申請は404", model.NewAccessRequestNotFoundError("r9"), http.StatusNotFound},
		{"決定済みは409", model.NewAccessRequestDecidedError(model.AccessRequestRejected), http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAccessService{
				approveFn: func(ctx context.Context, id string) (string, error) {
					if id != "r9" {
						t.Errorf("id = %q, want r9", id)
					}
					if tt.err != nil {
						return "", tt.err
					}
					return "https://vh.example.com/invite?token=t", nil
				},
			}

			w := httptest.NewRecorder()
			newAdminAccessRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/admin/access-requests/r9/approve", nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.err == nil {
				var body urlResponse
				decodeBody(t, w, &body)
				if body.URL == "" {
					t.Error("url is empty")
				}
			}
		})
	}
}

func TestAccessHandler_Reject(t *testing.T) {
	var rejected string
	svc := &mockAccessService{
		rejectFn: func(ctx context.Context, id string) error {
			rejected = id
			return nil
		},
	}

	w := httptest.NewRecorder()
	newAdminAccessRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/admin/access-requests/r2/reject", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if rejected != "r2" {
		t.Errorf("rejected = %q, want r2", rejected)
	}
}
