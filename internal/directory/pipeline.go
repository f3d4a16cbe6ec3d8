package directory

import (
	"math"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/hitoshi/vendorhub/internal/model"
)

// Row は一覧表示用に派生値を付与したベンダー。
type Row struct {
	Vendor       model.Vendor
	CostTiers    []model.CostTier // TierLabel順
	Capabilities []model.Capability

	// MinTierCost は全料金帯の代表価格の最小値。価格のある料金帯がなければnil。
	MinTierCost *float64
	// SelectedTierCost は指定ラベルの料金帯の代表価格。指定なし・該当なしはnil。
	SelectedTierCost *float64
	// AvgRating は全フィードバックのnilでない評価値の平均（小数第1位）。評価がなければnil。
	AvgRating     *float64
	FeedbackCount int
}

// CapabilitySlugs はケイパビリティのslug一覧を返す。
func (r Row) CapabilitySlugs() []string {
	slugs := make([]string, len(r.Capabilities))
	for i, c := range r.Capabilities {
		slugs[i] = c.Slug
	}
	return slugs
}

// Process はベンダー集約に派生値を計算し、絞り込みと並べ替えを行う。
// fの各条件はすべて満たす必要がある（AND）。
// f.ServiceModeが空の場合はdefaultModeを使う。
func Process(aggs []model.VendorAggregate, f Filter, defaultMode ServiceMatchMode) []Row {
	mode := f.ServiceMode
	if mode == "" {
		mode = defaultMode
	}

	col := collate.New(language.English, collate.IgnoreCase)

	rows := make([]Row, 0, len(aggs))
	for _, agg := range aggs {
		row := deriveRow(agg, f.Tier, col)
		if !matchesCoarse(row, f, mode) || !matchesDerived(row, f) {
			continue
		}
		rows = append(rows, row)
	}

	sortRows(rows, f.Sort, col)
	return rows
}

// deriveRow は派生値を計算したRowを作る。
func deriveRow(agg model.VendorAggregate, tier string, col *collate.Collator) Row {
	tiers := append([]model.CostTier(nil), agg.CostTiers...)
	sort.SliceStable(tiers, func(i, j int) bool {
		return col.CompareString(tiers[i].TierLabel, tiers[j].TierLabel) < 0
	})

	return Row{
		Vendor:           agg.Vendor,
		CostTiers:        tiers,
		Capabilities:     agg.Capabilities,
		MinTierCost:      MinTierCost(agg.CostTiers),
		SelectedTierCost: SelectedTierCost(agg.CostTiers, tier),
		AvgRating:        AverageRating(agg.Feedback),
		FeedbackCount:    len(agg.Feedback),
	}
}

// MinTierCost は料金帯の代表価格（minがあればmin、なければmax）の最小値を返す。
// 0は有効な価格として扱う。価格のある料金帯がなければnilを返す。
func MinTierCost(tiers []model.CostTier) *float64 {
	var least *float64
	for _, t := range tiers {
		p := t.Price()
		if p == nil {
			continue
		}
		if least == nil || *p < *least {
			v := *p
			least = &v
		}
	}
	return least
}

// SelectedTierCost はラベルがtierに一致する最初の料金帯の代表価格を返す。
func SelectedTierCost(tiers []model.CostTier, tier string) *float64 {
	if tier == "" {
		return nil
	}
	for _, t := range tiers {
		if t.TierLabel == tier {
			if p := t.Price(); p != nil {
				v := *p
				return &v
			}
			return nil
		}
	}
	return nil
}

// AverageRating は全フィードバックのnilでない評価値（品質・速度・コミュニケーション）の
// 算術平均を小数第1位に四捨五入して返す。評価値が1つもなければnilを返す。
func AverageRating(feedback []model.Feedback) *float64 {
	sum, n := 0, 0
	for _, fb := range feedback {
		for _, r := range fb.Ratings() {
			sum += r
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := math.Floor(float64(sum)/float64(n)*10+0.5) / 10
	return &avg
}

// matchesCoarse は派生値に依存しない条件を判定する。
func matchesCoarse(row Row, f Filter, mode ServiceMatchMode) bool {
	v := row.Vendor

	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(v.Name), q) && !strings.Contains(strings.ToLower(v.Overview), q) {
			return false
		}
	}

	if len(f.Vendors) > 0 && !containsString(f.Vendors, v.ID) && !containsString(f.Vendors, v.Name) {
		return false
	}

	if len(f.Capabilities) > 0 && !hasAnyCapability(row.Capabilities, f.Capabilities) {
		return false
	}

	if len(f.ServiceOptions) > 0 && !matchServiceOptions(v.ServiceOptions, f.ServiceOptions, mode) {
		return false
	}

	if f.Tier != "" && !hasTier(row.CostTiers, f.Tier) {
		return false
	}

	return true
}

// matchesDerived は評価下限と料金上限を判定する。
func matchesDerived(row Row, f Filter) bool {
	if f.RatingMin != nil {
		// 評価なしは0として扱う
		if valueOr(row.AvgRating, 0) < *f.RatingMin {
			return false
		}
	}

	if f.TierMax != nil {
		cost := row.MinTierCost
		if f.Tier != "" {
			cost = row.SelectedTierCost
		}
		if cost == nil || *cost > *f.TierMax {
			return false
		}
	}

	return true
}

func matchServiceOptions(have, want []model.ServiceOption, mode ServiceMatchMode) bool {
	set := make(map[model.ServiceOption]struct{}, len(have))
	for _, o := range have {
		set[o] = struct{}{}
	}

	if mode == MatchAll {
		for _, o := range want {
			if _, ok := set[o]; !ok {
				return false
			}
		}
		return true
	}

	for _, o := range want {
		if _, ok := set[o]; ok {
			return true
		}
	}
	return false
}

func hasAnyCapability(caps []model.Capability, slugs []string) bool {
	for _, c := range caps {
		if containsString(slugs, c.Slug) {
			return true
		}
	}
	return false
}

func hasTier(tiers []model.CostTier, label string) bool {
	for _, t := range tiers {
		if t.TierLabel == label {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func valueOr(p *float64, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	return *p
}

// sortRows は安定ソートで並べ替える。
// 昇順ではnilを末尾、降順ではnilを-1として扱う。
func sortRows(rows []Row, key SortKey, col *collate.Collator) {
	inf := math.Inf(1)

	var less func(a, b Row) bool
	switch key {
	case SortRatingAsc:
		less = func(a, b Row) bool { return valueOr(a.AvgRating, inf) < valueOr(b.AvgRating, inf) }
	case SortRatingDesc:
		less = func(a, b Row) bool { return valueOr(a.AvgRating, -1) > valueOr(b.AvgRating, -1) }
	case SortCostSelAsc:
		less = func(a, b Row) bool { return valueOr(a.SelectedTierCost, inf) < valueOr(b.SelectedTierCost, inf) }
	case SortCostSelDesc:
		less = func(a, b Row) bool { return valueOr(a.SelectedTierCost, -1) > valueOr(b.SelectedTierCost, -1) }
	case SortCostMinAsc:
		less = func(a, b Row) bool { return valueOr(a.MinTierCost, inf) < valueOr(b.MinTierCost, inf) }
	case SortNameAsc:
		less = func(a, b Row) bool { return col.CompareString(a.Vendor.Name, b.Vendor.Name) < 0 }
	default:
		less = func(a, b Row) bool {
			ra, rb := valueOr(a.AvgRating, -1), valueOr(b.AvgRating, -1)
			if ra != rb {
				return ra > rb
			}
			return valueOr(a.MinTierCost, inf) < valueOr(b.MinTierCost, inf)
		}
	}

	sort.SliceStable(rows, func(i, j int) bool { return less(rows[i], rows[j]) })
}
