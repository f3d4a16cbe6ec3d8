package feedback

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Rating はJSONの数値、数値文字列、nullのいずれかで送られる評価値。
// 変換できない値もエラーにせず保持し、入力検証でまとめて報告する。
type Rating struct {
	value   float64
	present bool
	invalid bool
}

// NewRating は数値から評価値を生成する。
func NewRating(v float64) Rating {
	return Rating{value: v, present: true}
}

// UnmarshalJSON はnull、空文字列を未指定として扱う。
func (r *Rating) UnmarshalJSON(b []byte) error {
	*r = Rating{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}

	var raw string
	if b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			r.present, r.invalid = true, true
			return nil
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil
		}
	} else {
		raw = string(b)
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		r.present, r.invalid = true, true
		return nil
	}
	r.value, r.present = v, true
	return nil
}

// resolve は1〜5の整数ならその値を、未指定ならnilを返す。okがfalseなら範囲外か不正な値。
func (r Rating) resolve() (*int, bool) {
	if !r.present {
		return nil, true
	}
	if r.invalid || r.value != math.Trunc(r.value) || r.value < 1 || r.value > 5 {
		return nil, false
	}
	v := int(r.value)
	return &v, true
}
