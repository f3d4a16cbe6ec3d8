package model

import "time"

// ServiceOption はベンダーの提供形態を表す。
type ServiceOption string

const (
	ServiceWhiteGlove   ServiceOption = "WHITE_GLOVE"
	ServiceCrowdSourced ServiceOption = "CROWD_SOURCED"
	ServiceFTE          ServiceOption = "FTE"
)

// IsValid は定義済みの提供形態かどうかを返す。
func (o ServiceOption) IsValid() bool {
	switch o {
	case ServiceWhiteGlove, ServiceCrowdSourced, ServiceFTE:
		return true
	default:
		return false
	}
}

// Vendor はディレクトリに掲載される外注ベンダーを表す。
// Nameはディレクトリ内で一意。
type Vendor struct {
	ID                 string
	Name               string
	Overview           string
	Platforms          []string
	Industries         []string
	ServiceOptions     []ServiceOption
	RaterTrainingSpeed *string
	Website            string
	Country            string
	Regions            []string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DeletedAt          *time.Time
}

// CostTier はベンダーの料金帯を表す。
// HourlyUSDMinとHourlyUSDMaxの両方がnilの料金帯はコスト計算から除外される。
type CostTier struct {
	ID           string
	VendorID     string
	TierLabel    string
	HourlyUSDMin *float64
	HourlyUSDMax *float64
	Currency     string
	Notes        string
}

// Price は料金帯の代表価格を返す。minがあればmin、なければmax。
// どちらもない場合はnilを返す。0は有効な価格として扱う。
func (t CostTier) Price() *float64 {
	if t.HourlyUSDMin != nil {
		return t.HourlyUSDMin
	}
	if t.HourlyUSDMax != nil {
		return t.HourlyUSDMax
	}
	return nil
}

// Capability はベンダーに紐付けられるスキルタグ。
type Capability struct {
	ID   string
	Slug string
	Name string
}

// Feedback はベンダーに対するレビュー。作成後に更新・削除されない。
type Feedback struct {
	ID            string
	VendorID      string
	AuthorID      string
	Author        string
	RatingQuality *int
	RatingSpeed   *int
	RatingComm    *int
	Text          string
	Tags          []string
	Link          *string
	IsPrivate     bool
	CreatedAt     time.Time
}

// Ratings はnilでない評価値のみを返す。
func (f Feedback) Ratings() []int {
	var out []int
	for _, r := range []*int{f.RatingQuality, f.RatingSpeed, f.RatingComm} {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// VendorAggregate はベンダーと関連する料金帯・ケイパビリティ・フィードバックをまとめたもの。
type VendorAggregate struct {
	Vendor       Vendor
	CostTiers    []CostTier
	Capabilities []Capability
	Feedback     []Feedback
}
