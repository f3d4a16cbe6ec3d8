// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService はユーザーが入力したテキストを保存前に無害化する。
// ベンダー概要は限られたタグのみ許可し、フィードバック本文はタグをすべて除去した
// プレーンテキストとして保存する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はユーザー入力のサニタイズ機能のインターフェース。
type ContentSanitizerService interface {
	// SanitizeHTML は許可タグ（p, br, a, ul, ol, li, strong, em）のみを残したHTMLを返す。
	// aタグにはtarget="_blank"とrel="noopener noreferrer"が付与される。
	SanitizeHTML(raw string) string
	// SanitizeText はタグをすべて除去し、実体参照を戻したプレーンテキストを返す。
	// scriptとstyleの中身も除去される。
	SanitizeText(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type contentSanitizer struct {
	htmlPolicy *bluemonday.Policy
	textPolicy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "br", "ul", "ol", "li", "strong", "em")
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("https", "http", "mailto")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &contentSanitizer{
		htmlPolicy: p,
		textPolicy: bluemonday.StrictPolicy(),
	}
}

// SanitizeHTML は許可リストに従ってHTMLを無害化する。
func (s *contentSanitizer) SanitizeHTML(raw string) string {
	return strings.TrimSpace(s.htmlPolicy.Sanitize(raw))
}

// SanitizeText はタグを除去したプレーンテキストを返す。
// StrictPolicyは出力をエスケープするため、保存前に実体参照を戻す。
func (s *contentSanitizer) SanitizeText(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.textPolicy.Sanitize(raw)))
}
