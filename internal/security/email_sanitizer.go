package security

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

// EmailSanitizer はメール本文に埋め込むユーザー入力をサニタイズする。
// つながり申請のメッセージ、イベントやミーティングの説明、拒否理由などが対象。
// 改行として挿入する<br>と簡単な強調以外のタグは除去し、テキストはエスケープする。
type EmailSanitizer struct {
	policy *bluemonday.Policy
	strict *bluemonday.Policy
}

// NewEmailSanitizer はEmailSanitizerを生成する。
func NewEmailSanitizer() *EmailSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements("br", "strong", "em", "b", "i")

	// リンクは絶対URLのみ。メールクライアントでは新しいタブで開かせる
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https", "mailto")
	p.AllowRelativeURLs(false)
	p.RequireNoReferrerOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)

	return &EmailSanitizer{policy: p, strict: bluemonday.StrictPolicy()}
}

// Sanitize はHTML断片をサニタイズする。同じ入力には常に同じ結果を返す。
func (s *EmailSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}

// StripTags は全てのタグを除去したプレーンテキストを返す。件名など、HTMLにならない箇所に使う。
// StrictPolicyが付けるエスケープは戻すため、"&" などはそのまま残る。
func (s *EmailSanitizer) StripTags(raw string) string {
	return html.UnescapeString(s.strict.Sanitize(raw))
}
