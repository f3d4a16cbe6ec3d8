package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"

	"github.com/hitoshi/vendorhub/internal/directory"
	"github.com/hitoshi/vendorhub/internal/model"
)

// --- モック定義 ---

type mockVendorService struct {
	listVendorsFn   func(ctx context.Context, f directory.Filter) ([]directory.Row, error)
	getVendorFn     func(ctx context.Context, id string, viewer directory.Viewer) (*directory.VendorDetail, error)
	createVendorFn  func(ctx context.Context, in directory.CreateVendorInput) (string, error)
	deleteVendorFn  func(ctx context.Context, id string) error
	filterOptionsFn func(ctx context.Context) (*directory.FilterOptions, error)
}

func (m *mockVendorService) ListVendors(ctx context.Context, f directory.Filter) ([]directory.Row, error) {
	if m.listVendorsFn != nil {
		return m.listVendorsFn(ctx, f)
	}
	return nil, nil
}

func (m *mockVendorService) GetVendor(ctx context.Context, id string, viewer directory.Viewer) (*directory.VendorDetail, error) {
	if m.getVendorFn != nil {
		return m.getVendorFn(ctx, id, viewer)
	}
	return nil, model.NewVendorNotFoundError(id)
}

func (m *mockVendorService) CreateVendor(ctx context.Context, in directory.CreateVendorInput) (string, error) {
	if m.createVendorFn != nil {
		return m.createVendorFn(ctx, in)
	}
	return "", nil
}

func (m *mockVendorService) DeleteVendor(ctx context.Context, id string) error {
	if m.deleteVendorFn != nil {
		return m.deleteVendorFn(ctx, id)
	}
	return nil
}

func (m *mockVendorService) FilterOptions(ctx context.Context) (*directory.FilterOptions, error) {
	if m.filterOptionsFn != nil {
		return m.filterOptionsFn(ctx)
	}
	return &directory.FilterOptions{}, nil
}

func newVendorRouter(svc VendorServiceInterface) http.Handler {
	h := NewVendorHandler(svc)
	r := chi.NewRouter()
	r.Get("/api/vendors", h.ListVendors)
	r.Post("/api/vendors", h.CreateVendor)
	r.Get("/api/vendors/{id}", h.GetVendor)
	r.Delete("/api/vendors/{id}", h.DeleteVendor)
	r.Get("/api/filters", h.FilterOptions)
	return r
}

func ptr[T any](v T) *T { return &v }

func sampleRow() directory.Row {
	return directory.Row{
		Vendor: model.Vendor{
			ID:             "v1",
			Name:           "Alpha",
			ServiceOptions: []model.ServiceOption{model.ServiceFTE},
		},
		CostTiers:     []model.CostTier{{ID: "t1", TierLabel: "Gold", HourlyUSDMin: ptr(10.0), Currency: "USD"}},
		Capabilities:  []model.Capability{{ID: "c1", Slug: "image", Name: "Image"}},
		MinTierCost:   ptr(10.0),
		AvgRating:     ptr(4.5),
		FeedbackCount: 2,
	}
}

// --- テスト ---

func TestVendorHandler_ListVendors_ParsesFilter(t *testing.T) {
	var got directory.Filter
	svc := &mockVendorService{
		listVendorsFn: func(ctx context.Context, f directory.Filter) ([]directory.Row, error) {
			got = f
			return []directory.Row{sampleRow()}, nil
		},
	}

	w := httptest.NewRecorder()
	newVendorRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/api/vendors?q=alp&caps=image,text&tier=Gold&sort=name_asc", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if diff := cmp.Diff(directory.ParseFilter(map[string][]string{
		"q": {"alp"}, "caps": {"image,text"}, "tier": {"Gold"}, "sort": {"name_asc"},
	}), got); diff != "" {
		t.Errorf("filter mismatch (-want +got):\n%s", diff)
	}

	var body vendorListResponse
	decodeBody(t, w, &body)
	if len(body.Data) != 1 {
		t.Fatalf("len(data) = %d", len(body.Data))
	}
	row := body.Data[0]
	if row.Name != "Alpha" || *row.MinTierCost != 10 || row.SelectedTierCost != nil || *row.AvgRating != 4.5 {
		t.Errorf("row = %+v", row)
	}
	if len(row.ServiceOptions) != 1 || row.ServiceOptions[0] != "FTE" {
		t.Errorf("serviceOptions = %v", row.ServiceOptions)
	}
	if row.Platforms == nil || row.Regions == nil {
		t.Error("nil slices must be encoded as empty arrays")
	}
}

func TestVendorHandler_ListVendors_NullDerivedValues(t *testing.T) {
	svc := &mockVendorService{
		listVendorsFn: func(ctx context.Context, f directory.Filter) ([]directory.Row, error) {
			return []directory.Row{{Vendor: model.Vendor{ID: "v2", Name: "Beta"}}}, nil
		},
	}

	w := httptest.NewRecorder()
	newVendorRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/vendors", nil))

	body := w.Body.String()
	for _, want := range []string{`"minTierCost":null`, `"avgRating":null`, `"costTiers":[]`, `"capabilities":[]`} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %s: %s", want, body)
		}
	}
}

func TestVendorHandler_GetVendor_PassesViewer(t *testing.T) {
	var gotViewer directory.Viewer
	svc := &mockVendorService{
		getVendorFn: func(ctx context.Context, id string, viewer directory.Viewer) (*directory.VendorDetail, error) {
			gotViewer = viewer
			return &directory.VendorDetail{
				Row: sampleRow(),
				Feedback: []model.Feedback{
					{ID: "f1", Author: "Hana", RatingQuality: ptr(5), Text: "good", IsPrivate: true, CreatedAt: time.Now()},
				},
			}, nil
		},
	}

	req := withClaims(httptest.NewRequest(http.MethodGet, "/api/vendors/v1", nil), adminClaims())
	w := httptest.NewRecorder()
	newVendorRouter(svc).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if gotViewer != (directory.Viewer{Subject: "admin1", IsAdmin: true}) {
		t.Errorf("viewer = %+v", gotViewer)
	}
	var body vendorDetailResponse
	decodeBody(t, w, &body)
	if body.ID != "v1" || len(body.Feedback) != 1 || !body.Feedback[0].IsPrivate || body.Feedback[0].Tags == nil {
		t.Errorf("detail = %+v", body)
	}
}

func TestVendorHandler_GetVendor_NotFound(t *testing.T) {
	w := httptest.NewRecorder()
	newVendorRouter(&mockVendorService{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/vendors/missing", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if code := errorCode(t, w); code != model.ErrCodeVendorNotFound {
		t.Errorf("code = %q", code)
	}
}

func TestVendorHandler_CreateVendor_MapsRequest(t *testing.T) {
	var got directory.CreateVendorInput
	svc := &mockVendorService{
		createVendorFn: func(ctx context.Context, in directory.CreateVendorInput) (string, error) {
			got = in
			return "new-id", nil
		},
	}

	body := `{"name":"Gamma","serviceOptions":["FTE"],"costTiers":[{"tierLabel":"Gold","hourlyUsdMin":0,"currency":"USD"}],"capabilities":[{"slug":"image"}]}`
	w := httptest.NewRecorder()
	newVendorRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/vendors", strings.NewReader(body)))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	want := directory.CreateVendorInput{
		Name:           "Gamma",
		ServiceOptions: []string{"FTE"},
		CostTiers:      []directory.TierInput{{Label: "Gold", HourlyUSDMin: ptr(0.0), Currency: "USD"}},
		Capabilities:   []directory.CapabilityInput{{Slug: "image"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("input mismatch (-want +got):\n%s", diff)
	}
	var resp createVendorResponse
	decodeBody(t, w, &resp)
	if resp.ID != "new-id" {
		t.Errorf("id = %q", resp.ID)
	}
}

func TestVendorHandler_CreateVendor_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantFields int
	}{
		{"不正なJSON", `[`, nil, http.StatusBadRequest, 0},
		{"入力検証エラー", `{"name":""}`, model.NewValidationError([]model.FieldError{{Field: "name", Message: "required"}}), http.StatusBadRequest, 1},
		{"名前の重複", `{"name":"Alpha"}`, model.NewVendorAlreadyExistsError("Alpha"), http.StatusConflict, 0},
		{"内部エラー", `{"name":"Alpha"}`, errors.New("db down"), http.StatusInternalServerError, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockVendorService{
				createVendorFn: func(ctx context.Context, in directory.CreateVendorInput) (string, error) {
					return "", tt.err
				},
			}

			w := httptest.NewRecorder()
			newVendorRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/vendors", strings.NewReader(tt.body)))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var resp struct {
				Fields []model.FieldError `json:"fields"`
			}
			decodeBody(t, w, &resp)
			if len(resp.Fields) != tt.wantFields {
				t.Errorf("fields = %+v, want %d", resp.Fields, tt.wantFields)
			}
		})
	}
}

func TestVendorHandler_DeleteVendor(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"削除成功は204", nil, http.StatusNoContent},
		{"存在しないベンダーは404", model.NewVendorNotFoundError("v9"), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockVendorService{
				deleteVendorFn: func(ctx context.Context, id string) error {
					if id != "v9" {
						t.Errorf("id = %q", id)
					}
					return tt.err
				},
			}

			w := httptest.NewRecorder()
			newVendorRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/vendors/v9", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestVendorHandler_FilterOptions(t *testing.T) {
	svc := &mockVendorService{
		filterOptionsFn: func(ctx context.Context) (*directory.FilterOptions, error) {
			return &directory.FilterOptions{
				Vendors:      []model.Vendor{{ID: "v1", Name: "Alpha", Overview: "hidden"}},
				Capabilities: []model.Capability{{ID: "c1", Slug: "image", Name: "Image"}},
			}, nil
		},
	}

	w := httptest.NewRecorder()
	newVendorRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/filters", nil))

	want := `{"vendors":[{"id":"v1","name":"Alpha"}],"capabilities":[{"id":"c1","slug":"image","name":"Image"}]}`
	if got := strings.TrimSpace(w.Body.String()); got != want {
		t.Errorf("body =\n%s\nwant\n%s", got, want)
	}
}
