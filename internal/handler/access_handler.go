package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/vendorhub/internal/access"
	"github.com/hitoshi/vendorhub/internal/model"
)

// AccessServiceInterface はアクセス申請ハンドラーが必要とするサービスインターフェース。
type AccessServiceInterface interface {
	Submit(ctx context.Context, in access.SubmitInput) (*access.SubmitResult, error)
	ListPending(ctx context.Context) ([]model.AccessRequest, error)
	Approve(ctx context.Context, id string) (string, error)
	Reject(ctx context.Context, id string) error
}

// AccessHandler はアクセス申請の受付と管理者による承認・却下のHTTPハンドラー。
type AccessHandler struct {
	service AccessServiceInterface
}

// NewAccessHandler はAccessHandlerを生成する。
func NewAccessHandler(service AccessServiceInterface) *AccessHandler {
	return &AccessHandler{service: service}
}

// submitAccessResponse は申請受付のレスポンス。
type submitAccessResponse struct {
	OK     bool   `json:"ok"`
	ID     string `json:"id,omitempty"`
	Mailto string `json:"mailto,omitempty"`
}

// accessRequestResponse は申請一覧の1件。
type accessRequestResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Message   string    `json:"message"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type accessRequestListResponse struct {
	Data []accessRequestResponse `json:"data"`
}

// Submit はアクセス申請を受け付ける。
// POST /api/access-requests
func (h *AccessHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var in access.SubmitInput
	if err := decodeJSON(w, r, &in); err != nil {
		handleServiceError(w, err)
		return
	}

	result, err := h.service.Submit(r.Context(), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submitAccessResponse{OK: true, ID: result.ID, Mailto: result.Mailto})
}

// ListPending は承認待ちの申請を新しい順に返す。
// GET /api/admin/access-requests
func (h *AccessHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.service.ListPending(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	data := make([]accessRequestResponse, len(reqs))
	for i, req := range reqs {
		data[i] = accessRequestResponse{
			ID:        req.ID,
			Email:     req.Email,
			Name:      req.Name,
			Message:   req.Message,
			Status:    string(req.Status),
			CreatedAt: req.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, accessRequestListResponse{Data: data})
}

// Approve は申請を承認し、申請者の招待URLを返す。
// POST /api/admin/access-requests/{id}/approve
func (h *AccessHandler) Approve(w http.ResponseWriter, r *http.Request) {
	url, err := h.service.Approve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, urlResponse{URL: url})
}

// Reject は申請を却下する。
// POST /api/admin/access-requests/{id}/reject
func (h *AccessHandler) Reject(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reject(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}
