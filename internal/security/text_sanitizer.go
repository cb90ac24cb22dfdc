// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService は候補者登録フォームの自由記述項目からマークアップを除去する。
// 台帳に記録された値は変更できないため、記録前に平文へ正規化する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService は自由記述テキストのサニタイズ機能のインターフェースを定義する。
type TextSanitizerService interface {
	// Sanitize は入力からHTMLタグを除去し、前後の空白を取り除いた平文を返す。
	// 文字参照は元の文字に戻す。同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicyはスレッドセーフに共有できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はタグを除去した平文を返す。
func (s *textSanitizer) Sanitize(raw string) string {
	out := raw
	// 文字参照の復元でタグが現れる場合があるため、変化しなくなるまで繰り返す
	for {
		next := html.UnescapeString(s.policy.Sanitize(out))
		if next == out {
			return strings.TrimSpace(out)
		}
		if len(next) >= len(out) {
			// 短くならない場合は収束しないので、エスケープしたまま返す
			return strings.TrimSpace(s.policy.Sanitize(out))
		}
		out = next
	}
}
