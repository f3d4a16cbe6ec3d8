// Package directory はベンダー一覧の絞り込み・並べ替えとベンダー管理を提供する。
package directory

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/hitoshi/vendorhub/internal/model"
)

// ServiceMatchMode は提供形態フィルタで複数指定されたときの一致条件。
type ServiceMatchMode string

const (
	// MatchAny はいずれか1つを提供していれば一致とする。
	MatchAny ServiceMatchMode = "any"
	// MatchAll はすべてを提供していれば一致とする。
	MatchAll ServiceMatchMode = "all"
)

// ParseServiceMatchMode は文字列をServiceMatchModeに変換する。未知の値はokがfalse。
func ParseServiceMatchMode(s string) (ServiceMatchMode, bool) {
	switch ServiceMatchMode(strings.ToLower(strings.TrimSpace(s))) {
	case MatchAny:
		return MatchAny, true
	case MatchAll:
		return MatchAll, true
	default:
		return "", false
	}
}

// SortKey は並べ替えキー。
type SortKey string

const (
	// SortDefault は評価の降順、同点は最低コストの昇順。
	SortDefault     SortKey = ""
	SortRatingAsc   SortKey = "rating_asc"
	SortRatingDesc  SortKey = "rating_desc"
	SortCostSelAsc  SortKey = "cost_sel_asc"
	SortCostSelDesc SortKey = "cost_sel_desc"
	SortCostMinAsc  SortKey = "cost_min_asc"
	SortNameAsc     SortKey = "name_asc"
)

func parseSortKey(s string) SortKey {
	switch k := SortKey(strings.TrimSpace(s)); k {
	case SortRatingAsc, SortRatingDesc, SortCostSelAsc, SortCostSelDesc, SortCostMinAsc, SortNameAsc:
		return k
	default:
		return SortDefault
	}
}

// Filter はベンダー一覧の絞り込み条件。ゼロ値の項目は条件なしを表す。
type Filter struct {
	Query          string
	Vendors        []string
	Capabilities   []string
	ServiceOptions []model.ServiceOption
	// ServiceMode が空の場合はServiceの既定値を使う。
	ServiceMode ServiceMatchMode
	RatingMin   *float64
	Tier        string
	TierMax     *float64
	Sort        SortKey
}

// ParseFilter はクエリ文字列から絞り込み条件を組み立てる。
// リスト項目はカンマ区切りで、同じキーを複数回指定してもよい。
// 数値として解釈できない値は条件なしとして扱う。
func ParseFilter(q url.Values) Filter {
	f := Filter{
		Query:        strings.TrimSpace(q.Get("q")),
		Vendors:      parseList(q["vendors"]),
		Capabilities: parseList(q["caps"]),
		Tier:         strings.TrimSpace(q.Get("tier")),
		RatingMin:    parseNumber(q.Get("ratingMin")),
		TierMax:      parseNumber(q.Get("tierMax")),
		Sort:         parseSortKey(q.Get("sort")),
	}

	for _, s := range parseList(q["svc"]) {
		f.ServiceOptions = append(f.ServiceOptions, model.ServiceOption(strings.ToUpper(s)))
	}

	if mode, ok := ParseServiceMatchMode(q.Get("svcMode")); ok {
		f.ServiceMode = mode
	}

	return f
}

// parseList はカンマ区切りの値を前後の空白を除いて展開する。空要素は捨てる。
func parseList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// parseNumber は有限の数値に変換できればそのポインタを、できなければnilを返す。
func parseNumber(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
