package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/vendorhub/internal/directory"
	"github.com/hitoshi/vendorhub/internal/middleware"
	"github.com/hitoshi/vendorhub/internal/model"
)

// VendorServiceInterface はベンダーハンドラーが必要とするサービスインターフェース。
type VendorServiceInterface interface {
	ListVendors(ctx context.Context, f directory.Filter) ([]directory.Row, error)
	GetVendor(ctx context.Context, id string, viewer directory.Viewer) (*directory.VendorDetail, error)
	CreateVendor(ctx context.Context, in directory.CreateVendorInput) (string, error)
	DeleteVendor(ctx context.Context, id string) error
	FilterOptions(ctx context.Context) (*directory.FilterOptions, error)
}

// VendorHandler はベンダーディレクトリのHTTPハンドラー。
type VendorHandler struct {
	service VendorServiceInterface
}

// NewVendorHandler はVendorHandlerを生成する。
func NewVendorHandler(service VendorServiceInterface) *VendorHandler {
	return &VendorHandler{service: service}
}

// --- レスポンス型 ---

type capabilityResponse struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

type costTierResponse struct {
	ID           string   `json:"id"`
	TierLabel    string   `json:"tierLabel"`
	HourlyUSDMin *float64 `json:"hourlyUsdMin"`
	HourlyUSDMax *float64 `json:"hourlyUsdMax"`
	Currency     string   `json:"currency"`
	Notes        string   `json:"notes"`
}

// vendorRowResponse は一覧の1行。派生値を含む。
type vendorRowResponse struct {
	ID                 string               `json:"id"`
	Name               string               `json:"name"`
	Overview           string               `json:"overview"`
	Website            string               `json:"website"`
	Country            string               `json:"country"`
	Regions            []string             `json:"regions"`
	Platforms          []string             `json:"platforms"`
	Industries         []string             `json:"industries"`
	ServiceOptions     []string             `json:"serviceOptions"`
	RaterTrainingSpeed *string              `json:"raterTrainingSpeed"`
	Capabilities       []capabilityResponse `json:"capabilities"`
	CostTiers          []costTierResponse   `json:"costTiers"`
	MinTierCost        *float64             `json:"minTierCost"`
	SelectedTierCost   *float64             `json:"selectedTierCost"`
	AvgRating          *float64             `json:"avgRating"`
	FeedbackCount      int                  `json:"feedbackCount"`
}

type vendorListResponse struct {
	Data []vendorRowResponse `json:"data"`
}

type feedbackResponse struct {
	ID            string    `json:"id"`
	Author        string    `json:"author"`
	RatingQuality *int      `json:"ratingQuality"`
	RatingSpeed   *int      `json:"ratingSpeed"`
	RatingComm    *int      `json:"ratingComm"`
	Text          string    `json:"text"`
	Tags          []string  `json:"tags"`
	Link          *string   `json:"link"`
	IsPrivate     bool      `json:"isPrivate"`
	CreatedAt     time.Time `json:"createdAt"`
}

// vendorDetailResponse は詳細。閲覧者に見えるフィードバックを新しい順に持つ。
type vendorDetailResponse struct {
	vendorRowResponse
	Feedback []feedbackResponse `json:"feedback"`
}

type vendorOptionResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type filterOptionsResponse struct {
	Vendors      []vendorOptionResponse `json:"vendors"`
	Capabilities []capabilityResponse   `json:"capabilities"`
}

type createVendorResponse struct {
	ID string `json:"id"`
}

// --- リクエスト型 ---

type costTierRequest struct {
	TierLabel    string   `json:"tierLabel"`
	HourlyUSDMin *float64 `json:"hourlyUsdMin"`
	HourlyUSDMax *float64 `json:"hourlyUsdMax"`
	Currency     string   `json:"currency"`
	Notes        string   `json:"notes"`
}

type capabilityRequest struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

type createVendorRequest struct {
	Name               string              `json:"name"`
	Overview           string              `json:"overview"`
	Platforms          []string            `json:"platforms"`
	Industries         []string            `json:"industries"`
	ServiceOptions     []string            `json:"serviceOptions"`
	RaterTrainingSpeed *string             `json:"raterTrainingSpeed"`
	Website            string              `json:"website"`
	Country            string              `json:"country"`
	Regions            []string            `json:"regions"`
	CostTiers          []costTierRequest   `json:"costTiers"`
	Capabilities       []capabilityRequest `json:"capabilities"`
}

// ListVendors は絞り込み・並べ替え済みのベンダー一覧を返す。
// GET /api/vendors?q=&vendors=&caps=&svc=&svcMode=&ratingMin=&tier=&tierMax=&sort=
func (h *VendorHandler) ListVendors(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.ListVendors(r.Context(), directory.ParseFilter(r.URL.Query()))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	data := make([]vendorRowResponse, len(rows))
	for i, row := range rows {
		data[i] = toVendorRowResponse(row)
	}
	writeJSON(w, http.StatusOK, vendorListResponse{Data: data})
}

// GetVendor はベンダー詳細を返す。
// GET /api/vendors/{id}
func (h *VendorHandler) GetVendor(w http.ResponseWriter, r *http.Request) {
	var viewer directory.Viewer
	if claims := middleware.ClaimsFromContext(r.Context()); claims != nil {
		viewer = directory.Viewer{Subject: claims.Subject, IsAdmin: claims.IsAdmin()}
	}

	detail, err := h.service.GetVendor(r.Context(), chi.URLParam(r, "id"), viewer)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := vendorDetailResponse{
		vendorRowResponse: toVendorRowResponse(detail.Row),
		Feedback:          make([]feedbackResponse, len(detail.Feedback)),
	}
	for i, fb := range detail.Feedback {
		resp.Feedback[i] = feedbackResponse{
			ID:            fb.ID,
			Author:        fb.Author,
			RatingQuality: fb.RatingQuality,
			RatingSpeed:   fb.RatingSpeed,
			RatingComm:    fb.RatingComm,
			Text:          fb.Text,
			Tags:          orEmpty(fb.Tags),
			Link:          fb.Link,
			IsPrivate:     fb.IsPrivate,
			CreatedAt:     fb.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateVendor はベンダーを登録する。管理者のみ。
// POST /api/vendors
func (h *VendorHandler) CreateVendor(w http.ResponseWriter, r *http.Request) {
	var req createVendorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	in := directory.CreateVendorInput{
		Name:               req.Name,
		Overview:           req.Overview,
		Platforms:          req.Platforms,
		Industries:         req.Industries,
		ServiceOptions:     req.ServiceOptions,
		RaterTrainingSpeed: req.RaterTrainingSpeed,
		Website:            req.Website,
		Country:            req.Country,
		Regions:            req.Regions,
	}
	for _, t := range req.CostTiers {
		in.CostTiers = append(in.CostTiers, directory.TierInput{
			Label:        t.TierLabel,
			HourlyUSDMin: t.HourlyUSDMin,
			HourlyUSDMax: t.HourlyUSDMax,
			Currency:     t.Currency,
			Notes:        t.Notes,
		})
	}
	for _, c := range req.Capabilities {
		in.Capabilities = append(in.Capabilities, directory.CapabilityInput{Slug: c.Slug, Name: c.Name})
	}

	id, err := h.service.CreateVendor(r.Context(), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createVendorResponse{ID: id})
}

// DeleteVendor はベンダーを論理削除する。管理者のみ。
// DELETE /api/vendors/{id}
func (h *VendorHandler) DeleteVendor(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteVendor(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FilterOptions は絞り込みUIの選択肢を返す。
// GET /api/filters
func (h *VendorHandler) FilterOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := h.service.FilterOptions(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := filterOptionsResponse{
		Vendors:      make([]vendorOptionResponse, len(opts.Vendors)),
		Capabilities: toCapabilityResponses(opts.Capabilities),
	}
	for i, v := range opts.Vendors {
		resp.Vendors[i] = vendorOptionResponse{ID: v.ID, Name: v.Name}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- ヘルパー関数 ---

func toVendorRowResponse(row directory.Row) vendorRowResponse {
	v := row.Vendor
	options := make([]string, len(v.ServiceOptions))
	for i, o := range v.ServiceOptions {
		options[i] = string(o)
	}

	tiers := make([]costTierResponse, len(row.CostTiers))
	for i, t := range row.CostTiers {
		tiers[i] = costTierResponse{
			ID:           t.ID,
			TierLabel:    t.TierLabel,
			HourlyUSDMin: t.HourlyUSDMin,
			HourlyUSDMax: t.HourlyUSDMax,
			Currency:     t.Currency,
			Notes:        t.Notes,
		}
	}

	return vendorRowResponse{
		ID:                 v.ID,
		Name:               v.Name,
		Overview:           v.Overview,
		Website:            v.Website,
		Country:            v.Country,
		Regions:            orEmpty(v.Regions),
		Platforms:          orEmpty(v.Platforms),
		Industries:         orEmpty(v.Industries),
		ServiceOptions:     options,
		RaterTrainingSpeed: v.RaterTrainingSpeed,
		Capabilities:       toCapabilityResponses(row.Capabilities),
		CostTiers:          tiers,
		MinTierCost:        row.MinTierCost,
		SelectedTierCost:   row.SelectedTierCost,
		AvgRating:          row.AvgRating,
		FeedbackCount:      row.FeedbackCount,
	}
}

func toCapabilityResponses(caps []model.Capability) []capabilityResponse {
	out := make([]capabilityResponse, len(caps))
	for i, c := range caps {
		out[i] = capabilityResponse{ID: c.ID, Slug: c.Slug, Name: c.Name}
	}
	return out
}

// orEmpty はnilスライスをJSONの空配列として出力するために空スライスに置き換える。
func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
