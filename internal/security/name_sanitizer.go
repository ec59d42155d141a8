// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NameSanitizer は管理画面に表示されるユーザー名からHTMLを除去する。
// bluemondayのStrictPolicyを使用し、タグを一切通過させない。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// NameSanitizer は表示名のサニタイズ機能のインターフェースを定義する。
type NameSanitizer interface {
	// Sanitize は表示名からHTMLタグを除去し、前後の空白を取り除いた文字列を返す。
	// script, styleタグは中身ごと除去される。
	Sanitize(name string) string
}

// nameSanitizer はNameSanitizerの実装。
type nameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はNameSanitizerの新しいインスタンスを生成する。
func NewNameSanitizer() NameSanitizer {
	return &nameSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は表示名からHTMLを除去する。
// StrictPolicyは残ったテキストをエスケープするため、保存用にアンエスケープして返す。
func (s *nameSanitizer) Sanitize(name string) string {
	stripped := s.policy.Sanitize(name)
	return strings.TrimSpace(html.UnescapeString(stripped))
}
