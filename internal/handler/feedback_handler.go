package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/vendorhub/internal/feedback"
	"github.com/hitoshi/vendorhub/internal/middleware"
	"github.com/hitoshi/vendorhub/internal/model"
)

// FeedbackServiceInterface はフィードバックハンドラーが必要とするサービスインターフェース。
type FeedbackServiceInterface interface {
	Submit(ctx context.Context, author feedback.Author, in feedback.SubmitInput) (string, error)
}

// FeedbackHandler はフィードバック投稿のHTTPハンドラー。
type FeedbackHandler struct {
	service FeedbackServiceInterface
}

// NewFeedbackHandler はFeedbackHandlerを生成する。
func NewFeedbackHandler(service FeedbackServiceInterface) *FeedbackHandler {
	return &FeedbackHandler{service: service}
}

type submitFeedbackResponse struct {
	OK bool   `json:"ok"`
	ID string `json:"id"`
}

// Submit はフィードバックを投稿する。投稿者はセッションから決まる。
// POST /api/feedback
func (h *FeedbackHandler) Submit(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil || claims.PreAuth {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var in feedback.SubmitInput
	if err := decodeJSON(w, r, &in); err != nil {
		handleServiceError(w, err)
		return
	}

	author := feedback.Author{ID: claims.Subject, Name: claims.Name, Email: claims.Email}
	id, err := h.service.Submit(r.Context(), author, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitFeedbackResponse{OK: true, ID: id})
}
