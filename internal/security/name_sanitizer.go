// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NameSanitizerService はクライアントから受け取る表示名
// （患者名、テンプレート名など）からHTMLタグを除去し、
// フロントエンドでの表示時にXSSが成立しないことを保証する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// NameSanitizerService は表示名サニタイズ機能のインターフェースを定義する。
// 患者・テンプレートの保存前に使用される。
type NameSanitizerService interface {
	// Sanitize は表示名からすべてのHTMLタグを除去し、前後の空白を取り除いて返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(name string) string
}

// nameSanitizer はNameSanitizerServiceの実装。
// bluemondayのStrictPolicy（全タグ除去）を保持し、スレッドセーフに処理を行う。
type nameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はNameSanitizerServiceの新しいインスタンスを生成する。
// 表示名にマークアップは不要のため、許可タグなしのStrictPolicyを使う。
func NewNameSanitizer() *nameSanitizer {
	return &nameSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は表示名からすべてのHTMLタグを除去して返す。
func (s *nameSanitizer) Sanitize(name string) string {
	return strings.TrimSpace(s.policy.Sanitize(name))
}
