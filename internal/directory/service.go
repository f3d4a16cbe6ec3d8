package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/vendorhub/internal/model"
	"github.com/hitoshi/vendorhub/internal/repository"
	"github.com/hitoshi/vendorhub/internal/security"
)

const (
	maxVendorNameLength = 200
	maxOverviewLength   = 5000
	maxTierLabelLength  = 100
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// QueryRecorder はベンダー一覧取得の所要時間と件数を記録する。
type QueryRecorder interface {
	ObserveVendorQuery(duration time.Duration, results int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveVendorQuery(time.Duration, int) {}

// Viewer は詳細取得を行う利用者。非公開フィードバックの表示判定に使う。
type Viewer struct {
	Subject string
	IsAdmin bool
}

// VendorDetail はベンダー詳細。Feedbackは閲覧者に見えるものだけを新しい順に持つ。
type VendorDetail struct {
	Row
	Feedback []model.Feedback
}

// FilterOptions は絞り込みUIに表示する選択肢。
type FilterOptions struct {
	Vendors      []model.Vendor
	Capabilities []model.Capability
}

// TierInput はベンダー登録時の料金帯。
type TierInput struct {
	Label        string
	HourlyUSDMin *float64
	HourlyUSDMax *float64
	Currency     string
	Notes        string
}

// CapabilityInput はベンダー登録時のケイパビリティ。Nameが空の場合はSlugを使う。
type CapabilityInput struct {
	Slug string
	Name string
}

// CreateVendorInput はベンダー登録の入力。
type CreateVendorInput struct {
	Name               string
	Overview           string
	Platforms          []string
	Industries         []string
	ServiceOptions     []string
	RaterTrainingSpeed *string
	Website            string
	Country            string
	Regions            []string
	CostTiers          []TierInput
	Capabilities       []CapabilityInput
}

// Service はベンダーディレクトリのサービス層。
type Service struct {
	vendors      repository.VendorRepository
	capabilities repository.CapabilityRepository
	sanitizer    security.ContentSanitizerService
	recorder     QueryRecorder
	defaultMode  ServiceMatchMode
	now          func() time.Time
}

// NewService はServiceを生成する。recorderがnilの場合は記録しない。
func NewService(
	vendors repository.VendorRepository,
	capabilities repository.CapabilityRepository,
	sanitizer security.ContentSanitizerService,
	defaultMode ServiceMatchMode,
	recorder QueryRecorder,
) *Service {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if defaultMode == "" {
		defaultMode = MatchAny
	}
	return &Service{
		vendors:      vendors,
		capabilities: capabilities,
		sanitizer:    sanitizer,
		recorder:     recorder,
		defaultMode:  defaultMode,
		now:          time.Now,
	}
}

// ListVendors は絞り込み・並べ替え済みのベンダー一覧を返す。
func (s *Service) ListVendors(ctx context.Context, f Filter) ([]Row, error) {
	start := s.now()

	aggs, err := s.vendors.ListAggregates(ctx)
	if err != nil {
		return nil, fmt.Errorf("ベンダー一覧の取得に失敗しました: %w", err)
	}

	rows := Process(aggs, f, s.defaultMode)
	s.recorder.ObserveVendorQuery(s.now().Sub(start), len(rows))
	return rows, nil
}

// GetVendor はベンダー詳細を返す。
// 非公開フィードバックは管理者と投稿者本人にのみ含まれる。
func (s *Service) GetVendor(ctx context.Context, id string, viewer Viewer) (*VendorDetail, error) {
	agg, err := s.vendors.FindAggregateByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ベンダーの取得に失敗しました: %w", err)
	}
	if agg == nil {
		return nil, model.NewVendorNotFoundError(id)
	}

	// 平均評価は非公開分も含めた全フィードバックから算出する
	row := Process([]model.VendorAggregate{*agg}, Filter{}, s.defaultMode)[0]

	visible := make([]model.Feedback, 0, len(agg.Feedback))
	for _, fb := range agg.Feedback {
		if fb.IsPrivate && !viewer.IsAdmin && (viewer.Subject == "" || fb.AuthorID != viewer.Subject) {
			continue
		}
		visible = append(visible, fb)
	}
	sort.SliceStable(visible, func(i, j int) bool {
		return visible[i].CreatedAt.After(visible[j].CreatedAt)
	})

	return &VendorDetail{Row: row, Feedback: visible}, nil
}

// CreateVendor はベンダーを登録し、IDを返す。
func (s *Service) CreateVendor(ctx context.Context, in CreateVendorInput) (string, error) {
	// 1. 入力検証
	vendor, tiers, caps, fields := s.buildVendor(in)
	if len(fields) > 0 {
		return "", model.NewValidationError(fields)
	}

	// 2. 永続化
	now := s.now()
	vendor.ID = uuid.New().String()
	vendor.CreatedAt = now
	vendor.UpdatedAt = now
	for i := range tiers {
		tiers[i].ID = uuid.New().String()
		tiers[i].VendorID = vendor.ID
	}
	for i := range caps {
		caps[i].ID = uuid.New().String()
	}

	if err := s.vendors.Create(ctx, vendor, tiers, caps); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return "", model.NewVendorAlreadyExistsError(vendor.Name)
		}
		return "", fmt.Errorf("ベンダーの登録に失敗しました: %w", err)
	}

	slog.Info("ベンダーを登録しました",
		slog.String("vendor_id", vendor.ID),
		slog.String("name", vendor.Name),
		slog.Int("cost_tiers", len(tiers)),
		slog.Int("capabilities", len(caps)),
	)
	return vendor.ID, nil
}

// DeleteVendor はベンダーを論理削除する。
func (s *Service) DeleteVendor(ctx context.Context, id string) error {
	ok, err := s.vendors.SoftDelete(ctx, id, s.now())
	if err != nil {
		return fmt.Errorf("ベンダーの削除に失敗しました: %w", err)
	}
	if !ok {
		return model.NewVendorNotFoundError(id)
	}

	slog.Info("ベンダーを削除しました", slog.String("vendor_id", id))
	return nil
}

// FilterOptions は絞り込みUI用のベンダーとケイパビリティの一覧を返す。
func (s *Service) FilterOptions(ctx context.Context) (*FilterOptions, error) {
	vendors, err := s.vendors.ListSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("ベンダー候補の取得に失敗しました: %w", err)
	}
	caps, err := s.capabilities.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ケイパビリティ候補の取得に失敗しました: %w", err)
	}
	return &FilterOptions{Vendors: vendors, Capabilities: caps}, nil
}

// buildVendor は入力を検証してモデルに変換する。
func (s *Service) buildVendor(in CreateVendorInput) (*model.Vendor, []model.CostTier, []model.Capability, []model.FieldError) {
	var fields []model.FieldError
	addField := func(field, msg string) {
		fields = append(fields, model.FieldError{Field: field, Message: msg})
	}

	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		addField("name", "ベンダー名は必須です。")
	case utf8.RuneCountInString(name) > maxVendorNameLength:
		addField("name", fmt.Sprintf("ベンダー名は%d文字以内で入力してください。", maxVendorNameLength))
	}

	overview := s.sanitizer.SanitizeHTML(in.Overview)
	if utf8.RuneCountInString(overview) > maxOverviewLength {
		addField("overview", fmt.Sprintf("概要は%d文字以内で入力してください。", maxOverviewLength))
	}

	website := strings.TrimSpace(in.Website)
	if website != "" && !isHTTPURL(website) {
		addField("website", "WebサイトはhttpまたはhttpsのURLで入力してください。")
	}

	var options []model.ServiceOption
	for i, raw := range in.ServiceOptions {
		opt := model.ServiceOption(strings.ToUpper(strings.TrimSpace(raw)))
		if !opt.IsValid() {
			addField(fmt.Sprintf("serviceOptions[%d]", i), "提供形態はWHITE_GLOVE、CROWD_SOURCED、FTEのいずれかです。")
			continue
		}
		if !containsOption(options, opt) {
			options = append(options, opt)
		}
	}

	tiers := make([]model.CostTier, 0, len(in.CostTiers))
	for i, t := range in.CostTiers {
		prefix := fmt.Sprintf("costTiers[%d]", i)
		label := strings.TrimSpace(t.Label)
		if label == "" || utf8.RuneCountInString(label) > maxTierLabelLength {
			addField(prefix+".label", "料金帯の名称は必須です。")
		}
		if t.HourlyUSDMin != nil && *t.HourlyUSDMin < 0 {
			addField(prefix+".hourlyUsdMin", "料金は0以上で入力してください。")
		}
		if t.HourlyUSDMax != nil && *t.HourlyUSDMax < 0 {
			addField(prefix+".hourlyUsdMax", "料金は0以上で入力してください。")
		}
		if t.HourlyUSDMin != nil && t.HourlyUSDMax != nil && *t.HourlyUSDMin > *t.HourlyUSDMax {
			addField(prefix+".hourlyUsdMax", "上限は下限以上で入力してください。")
		}
		currency := strings.ToUpper(strings.TrimSpace(t.Currency))
		if currency == "" {
			currency = "USD"
		}
		tiers = append(tiers, model.CostTier{
			TierLabel:    label,
			HourlyUSDMin: t.HourlyUSDMin,
			HourlyUSDMax: t.HourlyUSDMax,
			Currency:     currency,
			Notes:        strings.TrimSpace(t.Notes),
		})
	}

	caps := make([]model.Capability, 0, len(in.Capabilities))
	seen := make(map[string]bool, len(in.Capabilities))
	for i, c := range in.Capabilities {
		slug := strings.ToLower(strings.TrimSpace(c.Slug))
		if !slugPattern.MatchString(slug) {
			addField(fmt.Sprintf("capabilities[%d].slug", i), "slugは英小文字・数字・ハイフンで入力してください。")
			continue
		}
		if seen[slug] {
			continue
		}
		seen[slug] = true
		capName := strings.TrimSpace(c.Name)
		if capName == "" {
			capName = slug
		}
		caps = append(caps, model.Capability{Slug: slug, Name: capName})
	}

	vendor := &model.Vendor{
		Name:               name,
		Overview:           overview,
		Platforms:          cleanList(in.Platforms),
		Industries:         cleanList(in.Industries),
		ServiceOptions:     options,
		RaterTrainingSpeed: trimmedOrNil(in.RaterTrainingSpeed),
		Website:            website,
		Country:            strings.TrimSpace(in.Country),
		Regions:            cleanList(in.Regions),
	}
	return vendor, tiers, caps, fields
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func containsOption(list []model.ServiceOption, o model.ServiceOption) bool {
	for _, v := range list {
		if v == o {
			return true
		}
	}
	return false
}

// cleanList は前後の空白を除き、空要素と重複を取り除く。
func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" && !containsString(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
